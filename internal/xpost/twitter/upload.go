package twitter

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/media/upload"
	uploadtypes "github.com/michimani/gotwi/media/upload/types"
	"github.com/michimani/gotwi/resources"
	"github.com/samber/lo"

	"github.com/blacktop/crosspub/internal/logutil"
	"github.com/blacktop/crosspub/internal/transport"
	"github.com/blacktop/crosspub/internal/xpost"
)

const uploadEndpoint = "https://api.x.com/2/media/upload"

// Terminal values of processing_info.state; pending and in_progress are not.
const (
	stateSucceeded = string(resources.ProcessingInfoStateSucceeded)
	stateFailed    = string(resources.ProcessingInfoStateFailed)
)

type processingInfo struct {
	State          string `json:"state"`
	CheckAfterSecs int    `json:"check_after_secs"`
	ProgressPct    int    `json:"progress_percent"`
	Error          *struct {
		Code    int    `json:"code"`
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *processingInfo) checkAfter() time.Duration {
	if p == nil || p.CheckAfterSecs <= 0 {
		return 0
	}
	return time.Duration(p.CheckAfterSecs) * time.Second
}

func (p *processingInfo) failure() string {
	if p.Error != nil && p.Error.Message != "" {
		return p.Error.Message
	}
	return "state=" + p.State
}

// mediaResponse covers both the v2 envelope and the legacy top-level shape.
type mediaResponse struct {
	Data struct {
		ID             string          `json:"id"`
		ProcessingInfo *processingInfo `json:"processing_info"`
	} `json:"data"`
	MediaIDString  string          `json:"media_id_string"`
	ProcessingInfo *processingInfo `json:"processing_info"`
}

func (m *mediaResponse) id() string {
	if m.Data.ID != "" {
		return m.Data.ID
	}
	return m.MediaIDString
}

// statusResponse is the STATUS body; unlike gotwi's upload outputs it keeps
// processing_info.error.
type statusResponse struct {
	mediaResponse
	Errors []resources.PartialError `json:"errors"`
}

func (r *statusResponse) HasPartialError() bool {
	return len(r.Errors) > 0
}

func (m *mediaResponse) processing() *processingInfo {
	if m.Data.ProcessingInfo != nil {
		return m.Data.ProcessingInfo
	}
	return m.ProcessingInfo
}

func mediaCategory(media *xpost.Media) string {
	switch {
	case media.IsVideo():
		return "tweet_video"
	case media.MIMEType == "image/gif":
		return "tweet_gif"
	default:
		return "tweet_image"
	}
}

func (c *Client) uploadMedia(ctx context.Context, accessToken string, media *xpost.Media) (string, error) {
	if media.IsVideo() {
		return c.uploadChunked(ctx, accessToken, media)
	}
	return c.uploadSimple(ctx, accessToken, media)
}

// uploadSimple sends an image in one base64-encoded request. gotwi only
// wraps the chunked endpoints, so this goes through the transport.
func (c *Client) uploadSimple(ctx context.Context, accessToken string, media *xpost.Media) (string, error) {
	form := url.Values{
		"media_data":     {base64.StdEncoding.EncodeToString(media.Data)},
		"media_category": {mediaCategory(media)},
	}
	resp, err := c.http.Send(ctx, transport.NewForm(http.MethodPost, uploadEndpoint, transport.Bearer(accessToken), form))
	if err != nil {
		return "", fmt.Errorf("x media upload: %w", err)
	}
	var out mediaResponse
	if !resp.OK() || !resp.Decode(&out) || out.id() == "" {
		return "", xpost.FromResponse("X media upload failed", resp)
	}
	return out.id(), nil
}

// uploadChunked drives INIT, a single APPEND segment, FINALIZE and then the
// STATUS poll until processing reaches a terminal state.
func (c *Client) uploadChunked(ctx context.Context, accessToken string, media *xpost.Media) (string, error) {
	api, err := c.api(accessToken)
	if err != nil {
		return "", err
	}

	logutil.Debugf("initialize upload: media_type=%s bytes=%d", media.MIMEType, len(media.Data))
	initRes, err := upload.Initialize(ctx, api, &uploadtypes.InitializeInput{
		MediaType:     uploadtypes.MediaType(media.MIMEType),
		TotalBytes:    len(media.Data),
		MediaCategory: uploadtypes.MediaCategory(mediaCategory(media)),
	})
	if err != nil {
		return "", apiError("X media init failed", err)
	}
	if err := partialError(initRes.Errors); err != nil {
		return "", &xpost.APIError{Status: http.StatusBadGateway, Label: "X media init failed", Detail: err.Error()}
	}
	mediaID := initRes.Data.MediaID
	if mediaID == "" {
		return "", &xpost.APIError{Status: http.StatusBadGateway, Label: "X media init failed", Detail: "response carried no media id"}
	}
	logutil.Debugf("initialize complete: media_id=%s", mediaID)

	appendIn := &uploadtypes.AppendInput{
		MediaID:      mediaID,
		Media:        bytes.NewReader(media.Data),
		SegmentIndex: 0,
	}
	appendIn.GenerateBoundary()

	logutil.Debugf("append upload: media_id=%s segment=0", mediaID)
	appendRes, err := upload.Append(ctx, api, appendIn)
	if err != nil {
		return "", apiError("X media append failed", err)
	}
	if err := partialError(appendRes.Errors); err != nil {
		return "", &xpost.APIError{Status: http.StatusBadGateway, Label: "X media append failed", Detail: err.Error()}
	}
	logutil.Debugf("append completed")

	finalizeRes, err := upload.Finalize(ctx, api, &uploadtypes.FinalizeInput{MediaID: mediaID})
	if err != nil {
		return "", apiError("X media finalize failed", err)
	}
	if err := partialError(finalizeRes.Errors); err != nil {
		return "", &xpost.APIError{Status: http.StatusBadGateway, Label: "X media finalize failed", Detail: err.Error()}
	}

	info := &processingInfo{
		State:          string(finalizeRes.Data.ProcessingInfo.State),
		CheckAfterSecs: finalizeRes.Data.ProcessingInfo.CheckAfterSecs,
		ProgressPct:    finalizeRes.Data.ProcessingInfo.ProgressPercent,
	}
	logutil.Debugf("finalize state=%s media_id=%s", lo.Ternary(info.State == "", "none", info.State), mediaID)
	if info.State == "" {
		return mediaID, nil
	}

	final, err := c.awaitProcessing(ctx, api, mediaID, info)
	if err != nil {
		return "", err
	}
	if final.State != stateSucceeded {
		return "", xpost.ProcessingError("X media processing failed", final.failure())
	}
	return mediaID, nil
}

// awaitProcessing treats the FINALIZE result as the first check, so its
// check_after_secs governs the wait before the first STATUS call.
func (c *Client) awaitProcessing(ctx context.Context, api *gotwi.Client, mediaID string, finalized *processingInfo) (*processingInfo, error) {
	check := func(ctx context.Context, attempt int) (*processingInfo, time.Duration, error) {
		if attempt == 1 {
			finalized.State = strings.ToLower(finalized.State)
			return finalized, finalized.checkAfter(), nil
		}
		out := &statusResponse{}
		if err := api.CallAPI(ctx, uploadEndpoint, http.MethodGet, &statusParameters{mediaID: mediaID}, out); err != nil {
			return nil, 0, apiError("X media status failed", err)
		}
		info := out.processing()
		if info == nil {
			detail := "status response carried no processing_info"
			if perr := partialError(out.Errors); perr != nil {
				detail = perr.Error()
			}
			return nil, 0, &xpost.APIError{Status: http.StatusBadGateway, Label: "X media status failed", Detail: detail}
		}
		info.State = strings.ToLower(info.State)
		logutil.Debugf("poll attempt=%d media_id=%s state=%s progress=%d%%", attempt, mediaID, info.State, info.ProgressPct)
		return info, info.checkAfter(), nil
	}
	isTerminal := func(p *processingInfo) bool {
		return p.State == stateSucceeded || p.State == stateFailed || p.State == ""
	}

	final, err := xpost.PollUntilTerminal(ctx, c.poller, check, isTerminal)
	if err != nil {
		var timeout *xpost.PollTimeoutError
		if errors.As(err, &timeout) {
			// FINALIZE is the first check, so one fewer STATUS call was made.
			return nil, xpost.ProcessingError("X media processing timed out", fmt.Sprintf("media %s still processing after %d status checks", mediaID, timeout.Attempts-1))
		}
		return nil, err
	}
	if final.State == "" {
		final.State = stateSucceeded
	}
	return final, nil
}

// statusParameters addresses the STATUS command, which gotwi has no wrapper
// for.
type statusParameters struct {
	mediaID     string
	accessToken string
}

func (p *statusParameters) SetAccessToken(token string) {
	p.accessToken = token
}

func (p *statusParameters) AccessToken() string {
	return p.accessToken
}

func (p *statusParameters) ResolveEndpoint(endpointBase string) string {
	q := url.Values{"command": {"STATUS"}, "media_id": {p.mediaID}}
	return endpointBase + "?" + q.Encode()
}

func (p *statusParameters) Body() (io.Reader, error) {
	return nil, nil
}

func (p *statusParameters) ParameterMap() map[string]string {
	return map[string]string{"command": "STATUS", "media_id": p.mediaID}
}
