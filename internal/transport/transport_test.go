package transport

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>upstream exploded</html>")
	}))
	defer srv.Close()

	resp, err := New(srv.Client()).Send(context.Background(), NewGet(srv.URL, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.False(t, resp.OK())
	assert.Empty(t, resp.Data)
	assert.NotNil(t, resp.Data)
	assert.Equal(t, "<html>upstream exploded</html>", resp.Raw)
	assert.Equal(t, "<html>upstream exploded</html>", resp.ErrorDetail())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantKeys int
	}{
		{name: "object", raw: `{"a":1,"b":"x"}`, wantKeys: 2},
		{name: "array", raw: `[1,2,3]`, wantKeys: 0},
		{name: "null", raw: `null`, wantKeys: 0},
		{name: "empty", raw: ``, wantKeys: 0},
		{name: "truncated", raw: `{"a":`, wantKeys: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := Parse(http.StatusOK, nil, []byte(tt.raw))
			assert.Len(t, resp.Data, tt.wantKeys)
			assert.Equal(t, tt.raw, resp.Raw)
			assert.NotNil(t, resp.Header)
		})
	}
}

func TestErrorDetailPriority(t *testing.T) {
	long := strings.Repeat("é", 400)
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "error_description first", raw: `{"detail":"d","message":"m","error":"e","error_description":"ed"}`, want: "ed"},
		{name: "error before message", raw: `{"detail":"d","message":"m","error":"e"}`, want: "e"},
		{name: "message before detail", raw: `{"detail":"d","message":"m"}`, want: "m"},
		{name: "detail", raw: `{"detail":"d","title":"t"}`, want: "d"},
		{name: "null skipped", raw: `{"error":null,"message":"m"}`, want: "m"},
		{name: "nested graph error", raw: `{"error":{"message":"Invalid OAuth access token.","code":190}}`, want: "Invalid OAuth access token."},
		{name: "nested code only", raw: `{"error":{"code":"access_token_invalid","message":""}}`, want: "access_token_invalid"},
		{name: "raw fallback", raw: `{"status":"bad"}`, want: `{"status":"bad"}`},
		{name: "raw prefix", raw: long, want: strings.Repeat("é", 300)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := Parse(http.StatusBadRequest, nil, []byte(tt.raw))
			assert.Equal(t, tt.want, resp.ErrorDetail())
		})
	}
}

func TestDecode(t *testing.T) {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	resp := Parse(http.StatusOK, nil, []byte(`{"access_token":"tok"}`))
	require.True(t, resp.Decode(&out))
	assert.Equal(t, "tok", out.AccessToken)

	assert.False(t, Parse(http.StatusOK, nil, []byte("nope")).Decode(&out))
	assert.False(t, Parse(http.StatusOK, nil, nil).Decode(&out))
}

func TestRequestBuilders(t *testing.T) {
	var got *http.Request
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("X-Test", "yes")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()
	c := New(srv.Client())

	t.Run("form", func(t *testing.T) {
		req := NewForm(http.MethodPost, srv.URL, Bearer("tok"), url.Values{"a": {"1"}, "b": {"two words"}})
		resp, err := c.Send(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "yes", resp.Header.Get("X-Test"))
		assert.Equal(t, "application/x-www-form-urlencoded", got.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok", got.Header.Get("Authorization"))
		assert.Equal(t, "a=1&b=two+words", string(body))
	})

	t.Run("json", func(t *testing.T) {
		req, err := NewJSON(http.MethodPost, srv.URL, nil, map[string]string{"text": "hi"})
		require.NoError(t, err)
		_, err = c.Send(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
		assert.JSONEq(t, `{"text":"hi"}`, string(body))
	})

	t.Run("binary", func(t *testing.T) {
		_, err := c.Send(context.Background(), NewBinary(http.MethodPut, srv.URL, nil, "video/mp4", []byte{0, 1, 2}))
		require.NoError(t, err)
		assert.Equal(t, http.MethodPut, got.Method)
		assert.Equal(t, "video/mp4", got.Header.Get("Content-Type"))
		assert.Equal(t, []byte{0, 1, 2}, body)
	})

	t.Run("multipart", func(t *testing.T) {
		req, err := NewMultipart(http.MethodPost, srv.URL, nil,
			[][2]string{{"caption", "hello"}, {"published", "false"}},
			File{Field: "source", Name: "upload.png", MIMEType: "image/png", Data: []byte("PNGDATA")})
		require.NoError(t, err)
		_, err = c.Send(context.Background(), req)
		require.NoError(t, err)

		_, params, err := mime.ParseMediaType(got.Header.Get("Content-Type"))
		require.NoError(t, err)
		mr := multipart.NewReader(strings.NewReader(string(body)), params["boundary"])
		form, err := mr.ReadForm(1 << 20)
		require.NoError(t, err)
		assert.Equal(t, []string{"hello"}, form.Value["caption"])
		assert.Equal(t, []string{"false"}, form.Value["published"])
		require.Len(t, form.File["source"], 1)
		assert.Equal(t, "image/png", form.File["source"][0].Header.Get("Content-Type"))
	})
}

func TestSendNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(nil).Send(context.Background(), NewGet(addr+"/x?access_token=secret", nil))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
}
