// Package instagram publishes to Instagram Business and Creator accounts
// linked to a Facebook Page. Media is staged on the page first, because the
// content publishing API only accepts media by URL.
package instagram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/samber/lo"

	"github.com/blacktop/crosspub/internal/logutil"
	"github.com/blacktop/crosspub/internal/transport"
	"github.com/blacktop/crosspub/internal/xpost"
	"github.com/blacktop/crosspub/internal/xpost/facebook"
)

const (
	providerName = "instagram"

	statusFinished = "FINISHED"
	statusError    = "ERROR"
	statusExpired  = "EXPIRED"

	noAccountMessage  = "No Instagram Business account found linked to your Facebook Pages. Make sure your Instagram account is a Business or Creator account and is linked to a Facebook Page."
	mediaRequired     = "Instagram requires media (photo or video) for every post. Text-only posts are not supported."
	linkedPagesFields = "id,name,access_token,instagram_business_account"
)

// Client implements xpost.Adapter for Instagram.
type Client struct {
	http   *transport.Client
	fb     *facebook.Client
	poller xpost.Poller
}

// New constructs an Instagram adapter. It shares the transport with an
// internal Facebook adapter.
func New(opts xpost.Options) *Client {
	opts.Transport = opts.Client()
	return &Client{http: opts.Transport, fb: facebook.New(opts), poller: opts.Poller}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return providerName }

// Platform returns xpost.Instagram.
func (c *Client) Platform() xpost.Platform { return xpost.Instagram }

// ExchangeToken uses the Facebook Login flow.
func (c *Client) ExchangeToken(ctx context.Context, req xpost.TokenExchangeRequest) (*xpost.TokenResult, error) {
	return c.fb.ExchangeToken(ctx, req)
}

type account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// FetchIdentity returns the first linked business account that resolves.
func (c *Client) FetchIdentity(ctx context.Context, accessToken string) (*xpost.Identity, error) {
	pages, err := c.linkedPages(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	for _, page := range pages {
		q := url.Values{"fields": {"id,username,name"}, "access_token": {accessToken}}
		resp, err := c.http.Send(ctx, transport.NewGet(facebook.GraphURL+"/"+page.InstagramAccountID+"?"+q.Encode(), nil))
		if err != nil {
			return nil, fmt.Errorf("instagram account: %w", err)
		}
		var acct account
		if !resp.OK() || !resp.Decode(&acct) || acct.Username == "" {
			logutil.Debugf("skipping linked account: page_id=%s status=%d", page.ID, resp.StatusCode)
			continue
		}
		return &xpost.Identity{
			UserID:      lo.Ternary(acct.ID != "", acct.ID, page.InstagramAccountID),
			DisplayName: "@" + acct.Username,
			ProfileURL:  "https://instagram.com/" + acct.Username,
			Pages:       pages,
		}, nil
	}
	return nil, xpost.BusinessError(noAccountMessage)
}

// Publish stages the media on the linked page, builds a container from the
// hosted URL, waits for it to finish processing and publishes it.
func (c *Client) Publish(ctx context.Context, accessToken string, content xpost.PostContent) (*xpost.PublishResult, error) {
	if content.Media == nil {
		return nil, xpost.BusinessError(mediaRequired)
	}

	page, err := c.selectLinkedPage(ctx, accessToken, content.PageID)
	if err != nil {
		return nil, err
	}
	igID := page.InstagramAccountID
	logutil.Debugf("publishing via page: page_id=%s ig_id=%s", page.ID, igID)

	mediaURL, err := c.stageMedia(ctx, page, content.Media)
	if err != nil {
		return nil, err
	}

	containerID, err := c.createContainer(ctx, accessToken, igID, mediaURL, content)
	if err != nil {
		return nil, err
	}
	logutil.Debugf("container created: id=%s", containerID)

	if err := c.awaitContainer(ctx, accessToken, containerID); err != nil {
		return nil, err
	}

	form := url.Values{"creation_id": {containerID}, "access_token": {accessToken}}
	resp, err := c.http.Send(ctx, transport.NewForm(http.MethodPost, facebook.GraphURL+"/"+igID+"/media_publish", nil, form))
	if err != nil {
		return nil, fmt.Errorf("instagram publish: %w", err)
	}
	var out struct {
		ID string `json:"id"`
	}
	if !resp.OK() || !resp.Decode(&out) || out.ID == "" {
		return nil, xpost.FromResponse("Instagram publish failed", resp)
	}
	logutil.Debugf("media published: id=%s", out.ID)
	return &xpost.PublishResult{ID: out.ID}, nil
}

// linkedPages returns only the pages that carry an Instagram business
// account.
func (c *Client) linkedPages(ctx context.Context, accessToken string) ([]xpost.Page, error) {
	pages, err := c.fb.Pages(ctx, accessToken, linkedPagesFields)
	if err != nil {
		return nil, err
	}
	return lo.Filter(pages, func(p xpost.Page, _ int) bool { return p.InstagramAccountID != "" }), nil
}

// selectLinkedPage picks the page to publish through: the one named by id,
// or the first page with a linked account.
func (c *Client) selectLinkedPage(ctx context.Context, accessToken, id string) (xpost.Page, error) {
	pages, err := c.fb.Pages(ctx, accessToken, linkedPagesFields)
	if err != nil {
		return xpost.Page{}, err
	}
	linked := lo.Filter(pages, func(p xpost.Page, _ int) bool { return p.InstagramAccountID != "" })
	if len(linked) == 0 {
		return xpost.Page{}, xpost.BusinessError(noAccountMessage)
	}
	if id == "" {
		return linked[0], nil
	}
	page, err := facebook.SelectPage(pages, id)
	if err != nil {
		return xpost.Page{}, err
	}
	if page.InstagramAccountID == "" {
		return xpost.Page{}, xpost.BusinessError(fmt.Sprintf("Facebook Page %s has no linked Instagram Business account.", id))
	}
	return page, nil
}

// stageMedia uploads the media unpublished to the page and resolves the URL
// Facebook hosts it at.
func (c *Client) stageMedia(ctx context.Context, page xpost.Page, media *xpost.Media) (string, error) {
	const label = "Instagram media staging failed"

	id, err := c.fb.UploadMedia(ctx, page, media, "", false)
	if err != nil {
		return "", err
	}

	fields := "images"
	if media.IsVideo() {
		fields = "source"
	}
	q := url.Values{"fields": {fields}, "access_token": {page.AccessToken}}
	resp, err := c.http.Send(ctx, transport.NewGet(facebook.GraphURL+"/"+id+"?"+q.Encode(), nil))
	if err != nil {
		return "", fmt.Errorf("instagram staged media: %w", err)
	}
	var out struct {
		Source string `json:"source"`
		Images []struct {
			Source string `json:"source"`
		} `json:"images"`
	}
	if !resp.OK() || !resp.Decode(&out) {
		return "", xpost.FromResponse(label, resp)
	}
	if media.IsVideo() {
		if out.Source == "" {
			return "", xpost.FromResponse(label, resp)
		}
		return out.Source, nil
	}
	if len(out.Images) == 0 || out.Images[0].Source == "" {
		return "", xpost.FromResponse(label, resp)
	}
	logutil.Debugf("media staged: id=%s", id)
	return out.Images[0].Source, nil
}

func (c *Client) createContainer(ctx context.Context, accessToken, igID, mediaURL string, content xpost.PostContent) (string, error) {
	form := url.Values{"access_token": {accessToken}}
	if content.Text != "" {
		form.Set("caption", content.Text)
	}
	if content.Media.IsVideo() {
		form.Set("media_type", "REELS")
		form.Set("video_url", mediaURL)
	} else {
		form.Set("image_url", mediaURL)
	}

	resp, err := c.http.Send(ctx, transport.NewForm(http.MethodPost, facebook.GraphURL+"/"+igID+"/media", nil, form))
	if err != nil {
		return "", fmt.Errorf("instagram container: %w", err)
	}
	var out struct {
		ID string `json:"id"`
	}
	if !resp.OK() || !resp.Decode(&out) || out.ID == "" {
		return "", xpost.FromResponse("Instagram container creation failed", resp)
	}
	return out.ID, nil
}

type containerStatus struct {
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}

func (c *Client) awaitContainer(ctx context.Context, accessToken, containerID string) error {
	q := url.Values{"fields": {"status_code,status"}, "access_token": {accessToken}}
	endpoint := facebook.GraphURL + "/" + containerID + "?" + q.Encode()

	check := func(ctx context.Context, attempt int) (containerStatus, time.Duration, error) {
		resp, err := c.http.Send(ctx, transport.NewGet(endpoint, nil))
		if err != nil {
			return containerStatus{}, 0, fmt.Errorf("instagram container status: %w", err)
		}
		var st containerStatus
		if !resp.OK() || !resp.Decode(&st) || st.StatusCode == "" {
			return containerStatus{}, 0, xpost.FromResponse("Instagram container status failed", resp)
		}
		logutil.Debugf("poll attempt=%d container=%s status=%s", attempt, containerID, st.StatusCode)
		return st, 0, nil
	}
	isTerminal := func(st containerStatus) bool {
		return st.StatusCode == statusFinished || st.StatusCode == statusError || st.StatusCode == statusExpired
	}

	final, err := xpost.PollUntilTerminal(ctx, c.poller, check, isTerminal)
	if err != nil {
		var timeout *xpost.PollTimeoutError
		if errors.As(err, &timeout) {
			return xpost.ProcessingError("Instagram media processing timed out", fmt.Sprintf("container %s still processing after %d status checks", containerID, timeout.Attempts))
		}
		return err
	}
	if final.StatusCode != statusFinished {
		detail := "status_code=" + final.StatusCode
		if final.Status != "" {
			detail = final.Status
		}
		return xpost.ProcessingError("Instagram media processing failed", detail)
	}
	return nil
}
