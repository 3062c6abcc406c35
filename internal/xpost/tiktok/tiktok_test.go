package tiktok

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/crosspub/internal/xpost"
	"github.com/blacktop/crosspub/internal/xpost/xposttest"
)

func TestExchangeToken(t *testing.T) {
	up := xposttest.New(t, func(w http.ResponseWriter, r *http.Request) {
		xposttest.JSON(w, http.StatusOK, `{"access_token":"act.1","refresh_token":"rft.1","expires_in":86400,"open_id":"o1","scope":"user.info.basic,video.publish","token_type":"Bearer"}`)
	})
	c := New(xpost.Options{Transport: up.Transport()}, "")

	verifier := "pkce"
	res, err := c.ExchangeToken(context.Background(), xpost.TokenExchangeRequest{
		Code: "abc", ClientID: "key1", ClientSecret: "secret1", RedirectURI: "https://app/cb", CodeVerifier: &verifier,
	})
	require.NoError(t, err)
	assert.Equal(t, "act.1", res.AccessToken)
	require.NotNil(t, res.RefreshToken)
	assert.Equal(t, "rft.1", *res.RefreshToken)
	require.NotNil(t, res.ExpiresInSeconds)
	assert.EqualValues(t, 86400, *res.ExpiresInSeconds)

	reqs := up.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "open.tiktokapis.com", reqs[0].Host)
	assert.Equal(t, "/v2/oauth/token/", reqs[0].Path)
	form, err := url.ParseQuery(string(reqs[0].Body))
	require.NoError(t, err)
	assert.Equal(t, "key1", form.Get("client_key"))
	assert.False(t, form.Has("client_id"))
	assert.Equal(t, "secret1", form.Get("client_secret"))
	assert.Equal(t, "pkce", form.Get("code_verifier"))
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
}

func TestExchangeTokenFailure(t *testing.T) {
	up := xposttest.New(t, func(w http.ResponseWriter, r *http.Request) {
		xposttest.JSON(w, http.StatusOK, `{"error":"invalid_grant","error_description":"Authorization code is expired.","log_id":"x"}`)
	})
	c := New(xpost.Options{Transport: up.Transport()}, "")

	_, err := c.ExchangeToken(context.Background(), xpost.TokenExchangeRequest{Code: "abc"})
	var apiErr *xpost.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "Authorization code is expired.", apiErr.Detail)
}

func TestFetchIdentity(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		display string
		profile string
	}{
		{
			name:    "username",
			body:    `{"data":{"user":{"open_id":"o1","display_name":"Ada L","username":"ada"}},"error":{"code":"ok","message":""}}`,
			display: "@ada",
			profile: "https://www.tiktok.com/@ada",
		},
		{
			name:    "display name fallback",
			body:    `{"data":{"user":{"open_id":"o1","display_name":"Ada L"}},"error":{"code":"ok","message":""}}`,
			display: "@Ada L",
		},
		{
			name:    "default name",
			body:    `{"data":{"user":{"open_id":"o1"}},"error":{"code":"ok","message":""}}`,
			display: "@TikTok User",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := xposttest.New(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer act.1", r.Header.Get("Authorization"))
				assert.Equal(t, "open_id,display_name,avatar_url,username", r.URL.Query().Get("fields"))
				xposttest.JSON(w, http.StatusOK, tt.body)
			})
			c := New(xpost.Options{Transport: up.Transport()}, "")

			id, err := c.FetchIdentity(context.Background(), "act.1")
			require.NoError(t, err)
			assert.Equal(t, "o1", id.UserID)
			assert.Equal(t, tt.display, id.DisplayName)
			assert.Equal(t, tt.profile, id.ProfileURL)
		})
	}
}

func TestFetchIdentityInvalidToken(t *testing.T) {
	up := xposttest.New(t, func(w http.ResponseWriter, r *http.Request) {
		xposttest.JSON(w, http.StatusUnauthorized, `{"data":{},"error":{"code":"access_token_invalid","message":"The access token is invalid or not found in the request.","log_id":"2024"}}`)
	})
	c := New(xpost.Options{Transport: up.Transport()}, "")

	_, err := c.FetchIdentity(context.Background(), "bad")
	require.Error(t, err)
	assert.Equal(t, "Failed to fetch TikTok profile (401): The access token is invalid or not found in the request.", err.Error())
}

func TestPublishRejectsWithoutNetwork(t *testing.T) {
	tests := []struct {
		name    string
		content xpost.PostContent
		msg     string
	}{
		{name: "text only", content: xpost.PostContent{Text: "hi"}, msg: mediaRequired},
		{
			name:    "image",
			content: xpost.PostContent{Media: &xpost.Media{Kind: xpost.MediaImage, MIMEType: "image/png", Data: []byte("png")}},
			msg:     videoOnly,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := xposttest.New(t, func(w http.ResponseWriter, r *http.Request) {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			})
			c := New(xpost.Options{Transport: up.Transport()}, "")

			_, err := c.Publish(context.Background(), "act.1", tt.content)
			var apiErr *xpost.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusBadRequest, apiErr.Status)
			assert.Equal(t, tt.msg, apiErr.Error())
			assert.Empty(t, up.Requests())
		})
	}
}

func TestPublishVideo(t *testing.T) {
	video := []byte("0123456789")
	up := xposttest.New(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/post/publish/video/init/":
			assert.Equal(t, "Bearer act.1", r.Header.Get("Authorization"))
			assert.Equal(t, "application/json; charset=UTF-8", r.Header.Get("Content-Type"))
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{
				"post_info":{"title":"my clip","privacy_level":"PUBLIC_TO_EVERYONE","disable_comment":false,"disable_duet":false,"disable_stitch":false},
				"source_info":{"source":"FILE_UPLOAD","video_size":10,"chunk_size":10,"total_chunk_count":1}
			}`, string(body))
			xposttest.JSON(w, http.StatusOK, `{"data":{"publish_id":"v_pub_1","upload_url":"https://open-upload.tiktokapis.com/video/?upload_id=1"},"error":{"code":"ok","message":""}}`)
		case "/video/":
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "open-upload.tiktokapis.com", r.Header.Get("X-Original-Host"))
			assert.Equal(t, "bytes 0-9/10", r.Header.Get("Content-Range"))
			assert.Equal(t, "video/mp4", r.Header.Get("Content-Type"))
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, video, body)
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})
	c := New(xpost.Options{Transport: up.Transport()}, "PUBLIC_TO_EVERYONE")

	res, err := c.Publish(context.Background(), "act.1", xpost.PostContent{
		Text:  "my clip",
		Media: &xpost.Media{Kind: xpost.MediaVideo, MIMEType: "video/mp4", Data: video},
	})
	require.NoError(t, err)
	assert.Equal(t, "v_pub_1", res.ID)
	assert.Len(t, up.Requests(), 2)
}

func TestPublishInitRejected(t *testing.T) {
	up := xposttest.New(t, func(w http.ResponseWriter, r *http.Request) {
		xposttest.JSON(w, http.StatusForbidden, `{"error":{"code":"unaudited_client_can_only_post_to_private_accounts","message":"Please review our integration guidelines."}}`)
	})
	c := New(xpost.Options{Transport: up.Transport()}, "PUBLIC_TO_EVERYONE")

	_, err := c.Publish(context.Background(), "act.1", xpost.PostContent{
		Media: &xpost.Media{Kind: xpost.MediaVideo, MIMEType: "video/mp4", Data: []byte("v")},
	})
	var apiErr *xpost.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "TikTok upload initialization failed", apiErr.Label)
	assert.Len(t, up.Requests(), 1)
}

func TestPublishUploadFailureIsTerminal(t *testing.T) {
	up := xposttest.New(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			xposttest.JSON(w, http.StatusOK, `{"data":{"publish_id":"p","upload_url":"https://open-upload.tiktokapis.com/video/?upload_id=2"},"error":{"code":"ok"}}`)
			return
		}
		http.Error(w, "range mismatch", http.StatusRequestedRangeNotSatisfiable)
	})
	c := New(xpost.Options{Transport: up.Transport()}, "")

	_, err := c.Publish(context.Background(), "act.1", xpost.PostContent{
		Media: &xpost.Media{Kind: xpost.MediaVideo, MIMEType: "video/mp4", Data: []byte("v")},
	})
	var apiErr *xpost.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, apiErr.Status)
	assert.Contains(t, apiErr.Detail, "range mismatch")
	assert.Len(t, up.Requests(), 2)
}
