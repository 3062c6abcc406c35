package linkedin

import (
	"context"
	"fmt"
	"net/http"

	"github.com/blacktop/crosspub/internal/logutil"
	"github.com/blacktop/crosspub/internal/transport"
	"github.com/blacktop/crosspub/internal/xpost"
)

// uploadSession is the state of one initializeUpload call. Images come back
// with a single upload URL; videos may be split into byte-range parts.
type uploadSession struct {
	urn   string
	token string
	parts []uploadPart
}

type uploadPart struct {
	URL       string `json:"uploadUrl"`
	FirstByte int64  `json:"firstByte"`
	LastByte  int64  `json:"lastByte"`
}

type initializeImageResponse struct {
	Value struct {
		UploadURL string `json:"uploadUrl"`
		Image     string `json:"image"`
	} `json:"value"`
}

type initializeVideoResponse struct {
	Value struct {
		Video              string       `json:"video"`
		UploadToken        string       `json:"uploadToken"`
		UploadInstructions []uploadPart `json:"uploadInstructions"`
	} `json:"value"`
}

func (c *Client) uploadMedia(ctx context.Context, accessToken, owner string, media *xpost.Media) (string, error) {
	session, err := c.initializeUpload(ctx, accessToken, owner, media)
	if err != nil {
		return "", err
	}
	logutil.Debugf("initialize complete: urn=%s parts=%d", session.urn, len(session.parts))

	etags := make([]string, 0, len(session.parts))
	for i, part := range session.parts {
		if part.FirstByte < 0 || part.LastByte < part.FirstByte || part.LastByte >= int64(len(media.Data)) {
			return "", &xpost.APIError{
				Status: http.StatusBadGateway,
				Label:  "LinkedIn media upload failed",
				Detail: fmt.Sprintf("upload instruction %d has invalid byte range %d-%d", i, part.FirstByte, part.LastByte),
			}
		}
		logutil.Debugf("upload part: urn=%s part=%d bytes=%d-%d", session.urn, i, part.FirstByte, part.LastByte)
		resp, err := c.http.Send(ctx, transport.NewBinary(http.MethodPut, part.URL, transport.Bearer(accessToken), "application/octet-stream", media.Data[part.FirstByte:part.LastByte+1]))
		if err != nil {
			return "", fmt.Errorf("linkedin media upload: %w", err)
		}
		if !resp.OK() {
			return "", xpost.FromResponse("LinkedIn media upload failed", resp)
		}
		etags = append(etags, resp.Header.Get("ETag"))
	}

	if media.IsVideo() {
		if err := c.finalizeVideo(ctx, accessToken, session, etags); err != nil {
			return "", err
		}
	}
	return session.urn, nil
}

func (c *Client) initializeUpload(ctx context.Context, accessToken, owner string, media *xpost.Media) (*uploadSession, error) {
	const label = "LinkedIn upload initialization failed"

	if !media.IsVideo() {
		body := map[string]any{"initializeUploadRequest": map[string]any{"owner": owner}}
		resp, err := c.postAction(ctx, accessToken, imagesEndpoint+"?action=initializeUpload", body)
		if err != nil {
			return nil, err
		}
		var out initializeImageResponse
		if !resp.OK() || !resp.Decode(&out) || out.Value.UploadURL == "" || out.Value.Image == "" {
			return nil, xpost.FromResponse(label, resp)
		}
		return &uploadSession{
			urn:   out.Value.Image,
			parts: []uploadPart{{URL: out.Value.UploadURL, FirstByte: 0, LastByte: int64(len(media.Data)) - 1}},
		}, nil
	}

	body := map[string]any{"initializeUploadRequest": map[string]any{
		"owner":           owner,
		"fileSizeBytes":   len(media.Data),
		"uploadCaptions":  false,
		"uploadThumbnail": false,
	}}
	resp, err := c.postAction(ctx, accessToken, videosEndpoint+"?action=initializeUpload", body)
	if err != nil {
		return nil, err
	}
	var out initializeVideoResponse
	if !resp.OK() || !resp.Decode(&out) || out.Value.Video == "" || len(out.Value.UploadInstructions) == 0 {
		return nil, xpost.FromResponse(label, resp)
	}
	return &uploadSession{
		urn:   out.Value.Video,
		token: out.Value.UploadToken,
		parts: out.Value.UploadInstructions,
	}, nil
}

func (c *Client) finalizeVideo(ctx context.Context, accessToken string, session *uploadSession, etags []string) error {
	body := map[string]any{"finalizeUploadRequest": map[string]any{
		"video":           session.urn,
		"uploadToken":     session.token,
		"uploadedPartIds": etags,
	}}
	resp, err := c.postAction(ctx, accessToken, videosEndpoint+"?action=finalizeUpload", body)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return xpost.FromResponse("LinkedIn video finalize failed", resp)
	}
	logutil.Debugf("finalize complete: urn=%s", session.urn)
	return nil
}

func (c *Client) postAction(ctx context.Context, accessToken, endpoint string, body any) (*transport.Response, error) {
	req, err := transport.NewJSON(http.MethodPost, endpoint, restHeaders(accessToken), body)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("linkedin %s: %w", endpoint, err)
	}
	return resp, nil
}
