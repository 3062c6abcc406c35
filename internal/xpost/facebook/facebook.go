package facebook

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/samber/lo"

	"github.com/blacktop/crosspub/internal/logutil"
	"github.com/blacktop/crosspub/internal/transport"
	"github.com/blacktop/crosspub/internal/xpost"
)

const (
	providerName = "facebook"

	// GraphURL is the pinned Graph API root.
	GraphURL = "https://graph.facebook.com/v21.0"
	// GraphVideoURL is the upload host for video edges.
	GraphVideoURL = "https://graph-video.facebook.com/v21.0"

	noPagesMessage = "No Facebook Pages found. The Facebook API posts to Pages, not personal profiles. Create a Page first."
)

// Client implements xpost.Adapter for Facebook Pages.
type Client struct {
	http *transport.Client
}

// New constructs a Facebook adapter.
func New(opts xpost.Options) *Client {
	return &Client{http: opts.Client()}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return providerName }

// Platform returns xpost.Facebook.
func (c *Client) Platform() xpost.Platform { return xpost.Facebook }

// ExchangeToken redeems an authorization code with a query-string GET.
func (c *Client) ExchangeToken(ctx context.Context, req xpost.TokenExchangeRequest) (*xpost.TokenResult, error) {
	q := url.Values{
		"client_id":     {req.ClientID},
		"client_secret": {req.ClientSecret},
		"redirect_uri":  {req.RedirectURI},
		"code":          {req.Code},
	}
	if req.CodeVerifier != nil {
		q.Set("code_verifier", *req.CodeVerifier)
	}
	resp, err := c.http.Send(ctx, transport.NewGet(GraphURL+"/oauth/access_token?"+q.Encode(), nil))
	if err != nil {
		return nil, fmt.Errorf("facebook token exchange: %w", err)
	}
	return xpost.TokenFromResponse("Facebook token exchange failed", resp)
}

type user struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FetchIdentity resolves the user and the pages they manage. A user with no
// pages cannot publish, so that is reported as a business-rule failure.
func (c *Client) FetchIdentity(ctx context.Context, accessToken string) (*xpost.Identity, error) {
	q := url.Values{"fields": {"id,name"}, "access_token": {accessToken}}
	resp, err := c.http.Send(ctx, transport.NewGet(GraphURL+"/me?"+q.Encode(), nil))
	if err != nil {
		return nil, fmt.Errorf("facebook user: %w", err)
	}
	var u user
	if !resp.OK() || !resp.Decode(&u) || u.ID == "" {
		return nil, xpost.FromResponse("Facebook user fetch failed", resp)
	}

	pages, err := c.Pages(ctx, accessToken, "id,name,access_token,instagram_business_account")
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, xpost.BusinessError(noPagesMessage)
	}

	return &xpost.Identity{
		UserID:      u.ID,
		DisplayName: fmt.Sprintf("%s (Page: %s)", u.Name, pages[0].Name),
		ProfileURL:  "https://facebook.com/" + u.ID,
		Pages:       pages,
	}, nil
}

// Publish posts to the selected page: text to /feed, images to /photos and
// videos to /videos.
func (c *Client) Publish(ctx context.Context, accessToken string, content xpost.PostContent) (*xpost.PublishResult, error) {
	pages, err := c.Pages(ctx, accessToken, "id,name,access_token")
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, xpost.BusinessError(noPagesMessage)
	}
	page, err := SelectPage(pages, content.PageID)
	if err != nil {
		return nil, err
	}
	logutil.Debugf("publishing to page: page_id=%s", page.ID)

	if content.Media != nil {
		id, err := c.UploadMedia(ctx, page, content.Media, content.Text, true)
		if err != nil {
			return nil, err
		}
		return &xpost.PublishResult{ID: id}, nil
	}

	req, err := transport.NewJSON(http.MethodPost, GraphURL+"/"+page.ID+"/feed", nil, map[string]string{
		"message":      content.Text,
		"access_token": page.AccessToken,
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("facebook post: %w", err)
	}
	var out struct {
		ID string `json:"id"`
	}
	if !resp.Decode(&out) || out.ID == "" {
		return nil, xpost.FromResponse("Facebook post failed", resp)
	}
	return &xpost.PublishResult{ID: out.ID}, nil
}

type accountsResponse struct {
	Data []struct {
		ID                       string `json:"id"`
		Name                     string `json:"name"`
		AccessToken              string `json:"access_token"`
		InstagramBusinessAccount *struct {
			ID string `json:"id"`
		} `json:"instagram_business_account"`
	} `json:"data"`
}

// Pages lists the pages the user manages, requesting the given fields.
func (c *Client) Pages(ctx context.Context, accessToken, fields string) ([]xpost.Page, error) {
	q := url.Values{"fields": {fields}, "access_token": {accessToken}}
	resp, err := c.http.Send(ctx, transport.NewGet(GraphURL+"/me/accounts?"+q.Encode(), nil))
	if err != nil {
		return nil, fmt.Errorf("facebook pages: %w", err)
	}
	var out accountsResponse
	if !resp.OK() || !resp.Decode(&out) {
		return nil, xpost.FromResponse("Facebook pages fetch failed", resp)
	}
	pages := make([]xpost.Page, 0, len(out.Data))
	for _, p := range out.Data {
		page := xpost.Page{ID: p.ID, Name: p.Name, AccessToken: p.AccessToken}
		if p.InstagramBusinessAccount != nil {
			page.InstagramAccountID = p.InstagramBusinessAccount.ID
		}
		pages = append(pages, page)
	}
	logutil.Debugf("pages found: count=%d", len(pages))
	return pages, nil
}

// SelectPage returns the page with the given id, or the first page when id
// is empty. pages must not be empty.
func SelectPage(pages []xpost.Page, id string) (xpost.Page, error) {
	if id == "" {
		return pages[0], nil
	}
	page, ok := lo.Find(pages, func(p xpost.Page) bool { return p.ID == id })
	if !ok {
		return xpost.Page{}, xpost.BusinessError(fmt.Sprintf("Facebook Page %s is not managed by this account.", id))
	}
	return page, nil
}

// UploadMedia sends the binary to the page's /photos or /videos edge and
// returns the resulting id. Unpublished uploads stage media for other
// products (Instagram containers) without creating a page post.
func (c *Client) UploadMedia(ctx context.Context, page xpost.Page, media *xpost.Media, text string, published bool) (string, error) {
	endpoint := GraphURL + "/" + page.ID + "/photos"
	textField := "caption"
	label := "Facebook photo upload failed"
	if media.IsVideo() {
		endpoint = GraphVideoURL + "/" + page.ID + "/videos"
		textField = "description"
		label = "Facebook video upload failed"
	}

	fields := [][2]string{{"access_token", page.AccessToken}}
	if text != "" {
		fields = append(fields, [2]string{textField, text})
	}
	if !published {
		fields = append(fields, [2]string{"published", "false"})
	}

	logutil.Debugf("upload %s: page_id=%s bytes=%d published=%t", media.Kind, page.ID, len(media.Data), published)
	req, err := transport.NewMultipart(http.MethodPost, endpoint, nil, fields,
		transport.File{Field: "source", Name: media.FileName(), MIMEType: media.MIMEType, Data: media.Data})
	if err != nil {
		return "", err
	}
	resp, err := c.http.Send(ctx, req)
	if err != nil {
		return "", fmt.Errorf("facebook %s upload: %w", media.Kind, err)
	}
	var out struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if !resp.OK() || !resp.Decode(&out) || (out.ID == "" && out.PostID == "") {
		return "", xpost.FromResponse(label, resp)
	}
	if published && out.PostID != "" {
		return out.PostID, nil
	}
	return lo.Ternary(out.ID != "", out.ID, out.PostID), nil
}
