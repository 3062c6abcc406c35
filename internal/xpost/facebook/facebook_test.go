package facebook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/crosspub/internal/xpost"
	"github.com/blacktop/crosspub/internal/xpost/xposttest"
)

const twoPages = `{"data":[
	{"id":"p1","name":"Bakery","access_token":"page-tok-1","instagram_business_account":{"id":"ig1"}},
	{"id":"p2","name":"Cafe","access_token":"page-tok-2"}
]}`

func TestExchangeToken(t *testing.T) {
	up := xposttest.New(t, func(w http.ResponseWriter, r *http.Request) {
		xposttest.JSON(w, http.StatusOK, `{"access_token":"fbtok","token_type":"bearer","expires_in":5183944}`)
	})
	c := New(xpost.Options{Transport: up.Transport()})

	res, err := c.ExchangeToken(context.Background(), xpost.TokenExchangeRequest{
		Code: "abc", ClientID: "id1", ClientSecret: "secret1", RedirectURI: "https://app/cb",
	})
	require.NoError(t, err)
	assert.Equal(t, "fbtok", res.AccessToken)
	require.NotNil(t, res.ExpiresInSeconds)
	assert.EqualValues(t, 5183944, *res.ExpiresInSeconds)

	reqs := up.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Equal(t, "graph.facebook.com", reqs[0].Host)
	assert.Equal(t, "/v21.0/oauth/access_token", reqs[0].Path)
	assert.Equal(t, "id1", reqs[0].Query.Get("client_id"))
	assert.Equal(t, "secret1", reqs[0].Query.Get("client_secret"))
	assert.Equal(t, "https://app/cb", reqs[0].Query.Get("redirect_uri"))
	assert.Equal(t, "abc", reqs[0].Query.Get("code"))
	assert.Empty(t, reqs[0].Body)
}

func TestExchangeTokenGraphError(t *testing.T) {
	up := xposttest.New(t, func(w http.ResponseWriter, r *http.Request) {
		xposttest.JSON(w, http.StatusBadRequest, `{"error":{"message":"This authorization code has expired.","type":"OAuthException","code":100}}`)
	})
	c := New(xpost.Options{Transport: up.Transport()})

	_, err := c.ExchangeToken(context.Background(), xpost.TokenExchangeRequest{Code: "old"})
	require.Error(t, err)
	assert.Equal(t, "Facebook token exchange failed (400): This authorization code has expired.", err.Error())
}

func TestFetchIdentity(t *testing.T) {
	up := xposttest.New(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "usertok", r.URL.Query().Get("access_token"))
		switch r.URL.Path {
		case "/v21.0/me":
			assert.Equal(t, "id,name", r.URL.Query().Get("fields"))
			xposttest.JSON(w, http.StatusOK, `{"id":"u1","name":"Ada Lovelace"}`)
		case "/v21.0/me/accounts":
			xposttest.JSON(w, http.StatusOK, twoPages)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	c := New(xpost.Options{Transport: up.Transport()})

	id, err := c.FetchIdentity(context.Background(), "usertok")
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, "Ada Lovelace (Page: Bakery)", id.DisplayName)
	assert.Equal(t, "https://facebook.com/u1", id.ProfileURL)
	require.Len(t, id.Pages, 2)
	assert.Equal(t, "ig1", id.Pages[0].InstagramAccountID)
	assert.Equal(t, "Cafe", id.Pages[1].Name)

	out, err := json.Marshal(id)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "page-tok")
}

func TestFetchIdentityNoPages(t *testing.T) {
	up := xposttest.New(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v21.0/me" {
			xposttest.JSON(w, http.StatusOK, `{"id":"u1","name":"Ada"}`)
			return
		}
		xposttest.JSON(w, http.StatusOK, `{"data":[]}`)
	})
	c := New(xpost.Options{Transport: up.Transport()})

	_, err := c.FetchIdentity(context.Background(), "usertok")
	var apiErr *xpost.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, noPagesMessage, apiErr.Error())
}

func TestPublishNoPagesMakesNoPost(t *testing.T) {
	up := xposttest.New(t, func(w http.ResponseWriter, r *http.Request) {
		xposttest.JSON(w, http.StatusOK, `{"data":[]}`)
	})
	c := New(xpost.Options{Transport: up.Transport()})

	_, err := c.Publish(context.Background(), "usertok", xpost.PostContent{Text: "hello"})
	var apiErr *xpost.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "No Facebook Pages found")

	reqs := up.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/v21.0/me/accounts", reqs[0].Path)
}

func TestPublishText(t *testing.T) {
	up := xposttest.New(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v21.0/me/accounts":
			xposttest.JSON(w, http.StatusOK, twoPages)
		case "/v21.0/p1/feed":
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"message":"hello","access_token":"page-tok-1"}`, string(body))
			xposttest.JSON(w, http.StatusOK, `{"id":"p1_123"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	c := New(xpost.Options{Transport: up.Transport()})

	res, err := c.Publish(context.Background(), "usertok", xpost.PostContent{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "p1_123", res.ID)
}

func TestPublishSelectsPage(t *testing.T) {
	up := xposttest.New(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v21.0/me/accounts":
			xposttest.JSON(w, http.StatusOK, twoPages)
		case "/v21.0/p2/feed":
			xposttest.JSON(w, http.StatusOK, `{"id":"p2_9"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	c := New(xpost.Options{Transport: up.Transport()})

	res, err := c.Publish(context.Background(), "usertok", xpost.PostContent{Text: "hi", PageID: "p2"})
	require.NoError(t, err)
	assert.Equal(t, "p2_9", res.ID)

	_, err = c.Publish(context.Background(), "usertok", xpost.PostContent{Text: "hi", PageID: "nope"})
	var apiErr *xpost.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestPublishImage(t *testing.T) {
	up := xposttest.New(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v21.0/me/accounts":
			xposttest.JSON(w, http.StatusOK, twoPages)
		case "/v21.0/p1/photos":
			assert.Equal(t, "graph.facebook.com", r.Header.Get("X-Original-Host"))
			assert.Equal(t, "page-tok-1", r.FormValue("access_token"))
			assert.Equal(t, "sunrise", r.FormValue("caption"))
			assert.Empty(t, r.FormValue("published"))
			f, hdr, err := r.FormFile("source")
			require.NoError(t, err)
			assert.Equal(t, "image.jpg", hdr.Filename)
			data, _ := io.ReadAll(f)
			assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)
			xposttest.JSON(w, http.StatusOK, `{"id":"photo1","post_id":"p1_456"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	c := New(xpost.Options{Transport: up.Transport()})

	res, err := c.Publish(context.Background(), "usertok", xpost.PostContent{
		Text:  "sunrise",
		Media: &xpost.Media{Kind: xpost.MediaImage, MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}},
	})
	require.NoError(t, err)
	assert.Equal(t, "p1_456", res.ID)
}

func TestPublishVideo(t *testing.T) {
	up := xposttest.New(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v21.0/me/accounts":
			xposttest.JSON(w, http.StatusOK, twoPages)
		case "/v21.0/p1/videos":
			assert.Equal(t, "graph-video.facebook.com", r.Header.Get("X-Original-Host"))
			assert.Equal(t, "clip", r.FormValue("description"))
			xposttest.JSON(w, http.StatusOK, `{"id":"vid1"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	c := New(xpost.Options{Transport: up.Transport()})

	res, err := c.Publish(context.Background(), "usertok", xpost.PostContent{
		Text:  "clip",
		Media: &xpost.Media{Kind: xpost.MediaVideo, MIMEType: "video/mp4", Data: []byte("mp4")},
	})
	require.NoError(t, err)
	assert.Equal(t, "vid1", res.ID)
}

func TestPublishUploadRejected(t *testing.T) {
	up := xposttest.New(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v21.0/me/accounts" {
			xposttest.JSON(w, http.StatusOK, twoPages)
			return
		}
		xposttest.JSON(w, http.StatusForbidden, `{"error":{"message":"(#200) Requires pages_manage_posts permission","code":200}}`)
	})
	c := New(xpost.Options{Transport: up.Transport()})

	_, err := c.Publish(context.Background(), "usertok", xpost.PostContent{
		Media: &xpost.Media{Kind: xpost.MediaImage, MIMEType: "image/png", Data: []byte("png")},
	})
	require.Error(t, err)
	assert.Equal(t, "Facebook photo upload failed (403): (#200) Requires pages_manage_posts permission", err.Error())
}

func TestSelectPage(t *testing.T) {
	pages := []xpost.Page{{ID: "a"}, {ID: "b"}}

	p, err := SelectPage(pages, "")
	require.NoError(t, err)
	assert.Equal(t, "a", p.ID)

	p, err = SelectPage(pages, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", p.ID)

	_, err = SelectPage(pages, "c")
	assert.Error(t, err)
}
