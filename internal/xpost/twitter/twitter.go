package twitter

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/resources"
	"github.com/michimani/gotwi/tweet/managetweet"
	managetweettypes "github.com/michimani/gotwi/tweet/managetweet/types"
	"github.com/michimani/gotwi/user/userlookup"
	userlookuptypes "github.com/michimani/gotwi/user/userlookup/types"

	"github.com/blacktop/crosspub/internal/logutil"
	"github.com/blacktop/crosspub/internal/transport"
	"github.com/blacktop/crosspub/internal/xpost"
)

const (
	providerName = "x"

	tokenEndpoint = "https://api.twitter.com/2/oauth2/token"
)

// Client implements xpost.Adapter for X (Twitter). Identity, tweet creation
// and chunked video upload go through gotwi; OAuth and the one-shot image
// upload use the raw transport.
type Client struct {
	http   *transport.Client
	poller xpost.Poller
}

// New constructs an X adapter.
func New(opts xpost.Options) *Client {
	return &Client{http: opts.Client(), poller: opts.Poller}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return providerName }

// Platform returns xpost.X.
func (c *Client) Platform() xpost.Platform { return xpost.X }

// ExchangeToken redeems a PKCE authorization code. The client secret travels
// only in the Basic auth header.
func (c *Client) ExchangeToken(ctx context.Context, req xpost.TokenExchangeRequest) (*xpost.TokenResult, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {req.Code},
		"client_id":    {req.ClientID},
		"redirect_uri": {req.RedirectURI},
	}
	if req.CodeVerifier != nil {
		form.Set("code_verifier", *req.CodeVerifier)
	}

	h := http.Header{}
	h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(req.ClientID+":"+req.ClientSecret)))

	resp, err := c.http.Send(ctx, transport.NewForm(http.MethodPost, tokenEndpoint, h, form))
	if err != nil {
		return nil, fmt.Errorf("x token exchange: %w", err)
	}
	return xpost.TokenFromResponse("X token exchange failed", resp)
}

// FetchIdentity looks up the token owner with users/me.
func (c *Client) FetchIdentity(ctx context.Context, accessToken string) (*xpost.Identity, error) {
	api, err := c.api(accessToken)
	if err != nil {
		return nil, err
	}

	out, err := userlookup.GetMe(ctx, api, &userlookuptypes.GetMeInput{})
	if err != nil {
		return nil, apiError("X API error", err)
	}
	if out == nil || out.Data.ID == nil || out.Data.Username == nil {
		detail := "users/me returned no user"
		if out != nil {
			if perr := partialError(out.Errors); perr != nil {
				detail = perr.Error()
			}
		}
		return nil, &xpost.APIError{Status: http.StatusBadGateway, Label: "Unexpected X API response", Detail: detail}
	}

	username := gotwi.StringValue(out.Data.Username)
	return &xpost.Identity{
		UserID:      gotwi.StringValue(out.Data.ID),
		DisplayName: "@" + username,
		ProfileURL:  "https://x.com/" + username,
	}, nil
}

// Publish posts the tweet, uploading the attachment first if present.
func (c *Client) Publish(ctx context.Context, accessToken string, content xpost.PostContent) (*xpost.PublishResult, error) {
	var mediaIDs []string
	if content.Media != nil {
		logutil.Debugf("uploading media: kind=%s bytes=%d", content.Media.Kind, len(content.Media.Data))
		mediaID, err := c.uploadMedia(ctx, accessToken, content.Media)
		if err != nil {
			return nil, err
		}
		mediaIDs = append(mediaIDs, mediaID)
		logutil.Debugf("media uploaded: media_id=%s", mediaID)
	}

	api, err := c.api(accessToken)
	if err != nil {
		return nil, err
	}

	input := &managetweettypes.CreateInput{
		Text: gotwi.String(content.Text),
	}
	if len(mediaIDs) > 0 {
		input.Media = &managetweettypes.CreateInputMedia{MediaIDs: mediaIDs}
	}

	logutil.Debugf("posting tweet: media_count=%d", len(mediaIDs))
	out, err := managetweet.Create(ctx, api, input)
	if err != nil {
		return nil, apiError("X post failed", err)
	}
	if out == nil || out.Data.ID == nil {
		return nil, &xpost.APIError{Status: http.StatusBadGateway, Label: "X post failed", Detail: "response carried no tweet id"}
	}
	logutil.Debugf("tweet posted successfully")

	return &xpost.PublishResult{ID: gotwi.StringValue(out.Data.ID)}, nil
}

// api builds a gotwi client bound to one user's OAuth2 token.
func (c *Client) api(accessToken string) (*gotwi.Client, error) {
	api, err := gotwi.NewClientWithAccessToken(&gotwi.NewClientWithAccessTokenInput{
		HTTPClient:  c.http.HTTPClient(),
		AccessToken: accessToken,
	})
	if err != nil {
		return nil, fmt.Errorf("create X client: %w", err)
	}
	return api, nil
}

func apiError(label string, err error) error {
	var gwErr *gotwi.GotwiError
	if errors.As(err, &gwErr) && gwErr != nil {
		status := gwErr.StatusCode
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		return &xpost.APIError{Status: status, Label: label, Detail: summarizeGotwiError(gwErr)}
	}
	return fmt.Errorf("%s: %w", label, err)
}

func partialError(partials []resources.PartialError) error {
	if len(partials) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(partials))
	for _, pe := range partials {
		switch {
		case pe.Detail != nil && *pe.Detail != "":
			msgs = append(msgs, *pe.Detail)
		case pe.Title != nil && *pe.Title != "":
			msgs = append(msgs, *pe.Title)
		case pe.ResourceType != nil:
			msgs = append(msgs, *pe.ResourceType)
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "unknown error")
	}
	return errors.New(strings.Join(msgs, "; "))
}

func summarizeGotwiError(err *gotwi.GotwiError) string {
	if err == nil {
		return "unknown X API error"
	}

	parts := make([]string, 0, 4)
	if err.Title != "" {
		parts = append(parts, err.Title)
	}
	if err.Detail != "" {
		parts = append(parts, err.Detail)
	}
	for _, apiErr := range err.APIErrors {
		if apiErr.Message != "" {
			parts = append(parts, apiErr.Message)
		}
	}
	if len(parts) == 0 {
		if msg := err.Error(); msg != "" {
			parts = append(parts, msg)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "X API request failed")
	}

	return strings.Join(parts, "; ")
}
