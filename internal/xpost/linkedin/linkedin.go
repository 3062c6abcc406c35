package linkedin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/blacktop/crosspub/internal/logutil"
	"github.com/blacktop/crosspub/internal/transport"
	"github.com/blacktop/crosspub/internal/xpost"
)

const (
	providerName = "linkedin"

	tokenEndpoint    = "https://www.linkedin.com/oauth/v2/accessToken"
	userinfoEndpoint = "https://api.linkedin.com/v2/userinfo"
	postsEndpoint    = "https://api.linkedin.com/rest/posts"
	imagesEndpoint   = "https://api.linkedin.com/rest/images"
	videosEndpoint   = "https://api.linkedin.com/rest/videos"

	apiVersion      = "202601"
	restliProtocol  = "2.0.0"
	defaultUserName = "LinkedIn User"
)

// Client implements xpost.Adapter for LinkedIn.
type Client struct {
	http *transport.Client
}

// New constructs a LinkedIn adapter.
func New(opts xpost.Options) *Client {
	return &Client{http: opts.Client()}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return providerName }

// Platform returns xpost.LinkedIn.
func (c *Client) Platform() xpost.Platform { return xpost.LinkedIn }

// ExchangeToken redeems an authorization code.
func (c *Client) ExchangeToken(ctx context.Context, req xpost.TokenExchangeRequest) (*xpost.TokenResult, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {req.Code},
		"client_id":     {req.ClientID},
		"client_secret": {req.ClientSecret},
		"redirect_uri":  {req.RedirectURI},
	}
	if req.CodeVerifier != nil {
		form.Set("code_verifier", *req.CodeVerifier)
	}

	resp, err := c.http.Send(ctx, transport.NewForm(http.MethodPost, tokenEndpoint, nil, form))
	if err != nil {
		return nil, fmt.Errorf("linkedin token exchange: %w", err)
	}
	return xpost.TokenFromResponse("LinkedIn token exchange failed", resp)
}

type userinfo struct {
	Sub        string `json:"sub"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

func (u userinfo) displayName() string {
	if u.Name != "" {
		return u.Name
	}
	if full := strings.TrimSpace(u.GivenName + " " + u.FamilyName); full != "" {
		return full
	}
	return defaultUserName
}

func (c *Client) fetchUserinfo(ctx context.Context, accessToken, label string) (*userinfo, error) {
	resp, err := c.http.Send(ctx, transport.NewGet(userinfoEndpoint, transport.Bearer(accessToken)))
	if err != nil {
		return nil, fmt.Errorf("linkedin userinfo: %w", err)
	}
	var u userinfo
	if !resp.Decode(&u) || u.Sub == "" {
		return nil, xpost.FromResponse(label, resp)
	}
	return &u, nil
}

// FetchIdentity resolves the OpenID Connect profile of the token owner.
func (c *Client) FetchIdentity(ctx context.Context, accessToken string) (*xpost.Identity, error) {
	u, err := c.fetchUserinfo(ctx, accessToken, "Failed to fetch LinkedIn profile")
	if err != nil {
		return nil, err
	}
	return &xpost.Identity{UserID: u.Sub, DisplayName: u.displayName()}, nil
}

type postBody struct {
	Author                    string       `json:"author"`
	Commentary                string       `json:"commentary"`
	Visibility                string       `json:"visibility"`
	Distribution              distribution `json:"distribution"`
	Content                   *postContent `json:"content,omitempty"`
	LifecycleState            string       `json:"lifecycleState"`
	IsReshareDisabledByAuthor bool         `json:"isReshareDisabledByAuthor"`
}

type distribution struct {
	FeedDistribution               string   `json:"feedDistribution"`
	TargetEntities                 []string `json:"targetEntities"`
	ThirdPartyDistributionChannels []string `json:"thirdPartyDistributionChannels"`
}

type postContent struct {
	Media postMedia `json:"media"`
}

type postMedia struct {
	ID string `json:"id"`
}

// Publish creates a member post, uploading the attachment first if present.
func (c *Client) Publish(ctx context.Context, accessToken string, content xpost.PostContent) (*xpost.PublishResult, error) {
	u, err := c.fetchUserinfo(ctx, accessToken, "Failed to get LinkedIn user info")
	if err != nil {
		return nil, err
	}
	author := "urn:li:person:" + u.Sub

	body := postBody{
		Author:     author,
		Commentary: content.Text,
		Visibility: "PUBLIC",
		Distribution: distribution{
			FeedDistribution:               "MAIN_FEED",
			TargetEntities:                 []string{},
			ThirdPartyDistributionChannels: []string{},
		},
		LifecycleState: "PUBLISHED",
	}

	if content.Media != nil {
		logutil.Debugf("uploading media: kind=%s bytes=%d", content.Media.Kind, len(content.Media.Data))
		urn, err := c.uploadMedia(ctx, accessToken, author, content.Media)
		if err != nil {
			return nil, err
		}
		logutil.Debugf("media uploaded: urn=%s", urn)
		body.Content = &postContent{Media: postMedia{ID: urn}}
	}

	req, err := transport.NewJSON(http.MethodPost, postsEndpoint, restHeaders(accessToken), body)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("linkedin post: %w", err)
	}
	if resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK {
		id := resp.Header.Get("x-restli-id")
		if id == "" {
			id = "created"
		}
		logutil.Debugf("post created: id=%s", id)
		return &xpost.PublishResult{ID: id}, nil
	}
	return nil, xpost.FromResponse("LinkedIn post failed", resp)
}

func restHeaders(accessToken string) http.Header {
	h := transport.Bearer(accessToken)
	h.Set("LinkedIn-Version", apiVersion)
	h.Set("X-Restli-Protocol-Version", restliProtocol)
	return h
}
