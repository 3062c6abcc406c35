// Package tiktok implements the TikTok Login Kit token flow and direct
// posting through the Content Posting API v2.
package tiktok

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/blacktop/crosspub/internal/logutil"
	"github.com/blacktop/crosspub/internal/transport"
	"github.com/blacktop/crosspub/internal/xpost"
)

const (
	providerName = "tiktok"

	tokenEndpoint     = "https://open.tiktokapis.com/v2/oauth/token/"
	userInfoEndpoint  = "https://open.tiktokapis.com/v2/user/info/?fields=open_id,display_name,avatar_url,username"
	videoInitEndpoint = "https://open.tiktokapis.com/v2/post/publish/video/init/"

	// DefaultPrivacyLevel is the only level unaudited clients may post with.
	DefaultPrivacyLevel = "SELF_ONLY"

	defaultUserName = "TikTok User"
	mediaRequired   = "TikTok requires video or photo content for every post. Text-only posts are not supported."
	videoOnly       = "TikTok direct upload supports video only. Attach a video instead of an image."
)

// PrivacyLevels lists the values accepted for post_info.privacy_level.
var PrivacyLevels = []string{"PUBLIC_TO_EVERYONE", "MUTUAL_FOLLOW_FRIENDS", "FOLLOWER_OF_CREATOR", DefaultPrivacyLevel}

// Client implements xpost.Adapter for TikTok.
type Client struct {
	http    *transport.Client
	privacy string
}

// New constructs a TikTok adapter posting with the given privacy level.
func New(opts xpost.Options, privacyLevel string) *Client {
	if privacyLevel == "" {
		privacyLevel = DefaultPrivacyLevel
	}
	return &Client{http: opts.Client(), privacy: privacyLevel}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return providerName }

// Platform returns xpost.TikTok.
func (c *Client) Platform() xpost.Platform { return xpost.TikTok }

// ExchangeToken redeems an authorization code. TikTok names the client id
// client_key.
func (c *Client) ExchangeToken(ctx context.Context, req xpost.TokenExchangeRequest) (*xpost.TokenResult, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_key":    {req.ClientID},
		"client_secret": {req.ClientSecret},
		"code":          {req.Code},
		"redirect_uri":  {req.RedirectURI},
	}
	if req.CodeVerifier != nil {
		form.Set("code_verifier", *req.CodeVerifier)
	}

	resp, err := c.http.Send(ctx, transport.NewForm(http.MethodPost, tokenEndpoint, nil, form))
	if err != nil {
		return nil, fmt.Errorf("tiktok token exchange: %w", err)
	}
	return xpost.TokenFromResponse("TikTok token exchange failed", resp)
}

// apiError is the envelope every Open API response carries; code "ok" means
// success.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

type userInfoResponse struct {
	Data struct {
		User struct {
			OpenID      string `json:"open_id"`
			DisplayName string `json:"display_name"`
			AvatarURL   string `json:"avatar_url"`
			Username    string `json:"username"`
		} `json:"user"`
	} `json:"data"`
	Error apiError `json:"error"`
}

// FetchIdentity resolves the creator profile.
func (c *Client) FetchIdentity(ctx context.Context, accessToken string) (*xpost.Identity, error) {
	resp, err := c.http.Send(ctx, transport.NewGet(userInfoEndpoint, transport.Bearer(accessToken)))
	if err != nil {
		return nil, fmt.Errorf("tiktok user info: %w", err)
	}
	var out userInfoResponse
	if !resp.Decode(&out) || out.Data.User.OpenID == "" {
		return nil, xpost.FromResponse("Failed to fetch TikTok profile", resp)
	}

	u := out.Data.User
	name := u.Username
	if name == "" {
		name = u.DisplayName
	}
	if name == "" {
		name = defaultUserName
	}
	id := &xpost.Identity{UserID: u.OpenID, DisplayName: "@" + name}
	if u.Username != "" {
		id.ProfileURL = "https://www.tiktok.com/@" + u.Username
	}
	return id, nil
}

type initRequest struct {
	PostInfo   postInfo   `json:"post_info"`
	SourceInfo sourceInfo `json:"source_info"`
}

type postInfo struct {
	Title          string `json:"title"`
	PrivacyLevel   string `json:"privacy_level"`
	DisableComment bool   `json:"disable_comment"`
	DisableDuet    bool   `json:"disable_duet"`
	DisableStitch  bool   `json:"disable_stitch"`
}

type sourceInfo struct {
	Source          string `json:"source"`
	VideoSize       int    `json:"video_size"`
	ChunkSize       int    `json:"chunk_size"`
	TotalChunkCount int    `json:"total_chunk_count"`
}

type initResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
		UploadURL string `json:"upload_url"`
	} `json:"data"`
	Error apiError `json:"error"`
}

// Publish opens a direct-post session and uploads the video as a single
// chunk. TikTok finishes publishing asynchronously, so the publish id is the
// result.
func (c *Client) Publish(ctx context.Context, accessToken string, content xpost.PostContent) (*xpost.PublishResult, error) {
	if content.Media == nil {
		return nil, xpost.BusinessError(mediaRequired)
	}
	if !content.Media.IsVideo() {
		return nil, xpost.BusinessError(videoOnly)
	}
	size := len(content.Media.Data)

	body := initRequest{
		PostInfo: postInfo{Title: content.Text, PrivacyLevel: c.privacy},
		SourceInfo: sourceInfo{
			Source:          "FILE_UPLOAD",
			VideoSize:       size,
			ChunkSize:       size,
			TotalChunkCount: 1,
		},
	}
	logutil.Debugf("initialize upload: bytes=%d privacy=%s", size, c.privacy)
	req, err := transport.NewJSON(http.MethodPost, videoInitEndpoint, transport.Bearer(accessToken), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	resp, err := c.http.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("tiktok init: %w", err)
	}
	var initRes initResponse
	if !resp.OK() || !resp.Decode(&initRes) || initRes.Error.Code != "ok" || initRes.Data.UploadURL == "" {
		return nil, xpost.FromResponse("TikTok upload initialization failed", resp)
	}
	logutil.Debugf("initialize complete: publish_id=%s", initRes.Data.PublishID)

	put := transport.NewBinary(http.MethodPut, initRes.Data.UploadURL, nil, content.Media.MIMEType, content.Media.Data)
	put.Header.Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", size-1, size))
	resp, err = c.http.Send(ctx, put)
	if err != nil {
		return nil, fmt.Errorf("tiktok upload: %w", err)
	}
	if !resp.OK() {
		return nil, xpost.FromResponse("TikTok video upload failed", resp)
	}
	logutil.Debugf("upload complete: publish_id=%s", initRes.Data.PublishID)

	return &xpost.PublishResult{ID: initRes.Data.PublishID}, nil
}
