// Package dispatch maps API paths onto adapter operations and turns their
// outcomes into status/body pairs.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/blacktop/crosspub/internal/logutil"
	"github.com/blacktop/crosspub/internal/xpost"
)

type operation int

const (
	opToken operation = iota
	opUser
	opPost
)

func (o operation) String() string {
	switch o {
	case opToken:
		return "token"
	case opUser:
		return "user"
	case opPost:
		return "post"
	}
	return "unknown"
}

type route struct {
	adapter xpost.Adapter
	op      operation
}

// Result is the response to one API call. Body is marshalled as JSON.
type Result struct {
	Status int
	Body   any
}

// ErrorBody is the failure envelope.
type ErrorBody struct {
	Error string `json:"error"`
}

// Dispatcher routes /api/auth/{platform}/token, /api/user/{platform} and
// /api/post/{platform}.
type Dispatcher struct {
	routes       map[string]route
	hideInternal bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHiddenInternalErrors replaces the text of unexpected errors with a
// generic message.
func WithHiddenInternalErrors(hide bool) Option {
	return func(d *Dispatcher) { d.hideInternal = hide }
}

// New registers the three routes of every adapter.
func New(adapters []xpost.Adapter, opts ...Option) *Dispatcher {
	d := &Dispatcher{routes: make(map[string]route, len(adapters)*3)}
	for _, a := range adapters {
		name := string(a.Platform())
		d.routes["/api/auth/"+name+"/token"] = route{adapter: a, op: opToken}
		d.routes["/api/user/"+name] = route{adapter: a, op: opUser}
		d.routes["/api/post/"+name] = route{adapter: a, op: opPost}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type userParams struct {
	AccessToken string `json:"accessToken"`
}

type postParams struct {
	AccessToken string `json:"accessToken"`
	Text        string `json:"text"`
	Image       string `json:"image"`
	Video       string `json:"video"`
	PageID      string `json:"pageId"`
}

// Dispatch runs one API call. It never panics.
func (d *Dispatcher) Dispatch(ctx context.Context, method, path string, body []byte) (res Result) {
	if method != http.MethodPost {
		return errorResult(http.StatusMethodNotAllowed, "Method not allowed")
	}
	rt, ok := d.routes[path]
	if !ok {
		return errorResult(http.StatusNotFound, "Not found")
	}

	defer func() {
		if r := recover(); r != nil {
			logutil.Errorf("panic in %s %s: %v", rt.adapter.Name(), rt.op, r)
			res = errorResult(http.StatusInternalServerError, "internal error")
		}
	}()

	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}

	var (
		out any
		err error
	)
	switch rt.op {
	case opToken:
		out, err = d.token(ctx, rt.adapter, body)
	case opUser:
		out, err = d.user(ctx, rt.adapter, body)
	case opPost:
		out, err = d.post(ctx, rt.adapter, body)
	}
	if err != nil {
		return d.failure(rt, err)
	}
	return Result{Status: http.StatusOK, Body: out}
}

func (d *Dispatcher) token(ctx context.Context, a xpost.Adapter, body []byte) (any, error) {
	var req xpost.TokenExchangeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errInvalidBody
	}
	if req.Code == "" {
		return nil, xpost.BusinessError("code is required")
	}
	return a.ExchangeToken(ctx, req)
}

func (d *Dispatcher) user(ctx context.Context, a xpost.Adapter, body []byte) (any, error) {
	var p userParams
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, errInvalidBody
	}
	if p.AccessToken == "" {
		return nil, xpost.BusinessError("accessToken is required")
	}
	return a.FetchIdentity(ctx, p.AccessToken)
}

func (d *Dispatcher) post(ctx context.Context, a xpost.Adapter, body []byte) (any, error) {
	var p postParams
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, errInvalidBody
	}
	if p.AccessToken == "" {
		return nil, xpost.BusinessError("accessToken is required")
	}
	content := xpost.PostContent{Text: p.Text, PageID: p.PageID}
	switch {
	case p.Image != "" && p.Video != "":
		return nil, xpost.BusinessError("only one of image or video may be attached")
	case p.Image != "":
		media, err := xpost.MediaFromDataURI(xpost.MediaImage, p.Image)
		if err != nil {
			return nil, xpost.ValidationError{Provider: a.Name(), Reason: "image: " + err.Error()}
		}
		content.Media = media
	case p.Video != "":
		media, err := xpost.MediaFromDataURI(xpost.MediaVideo, p.Video)
		if err != nil {
			return nil, xpost.ValidationError{Provider: a.Name(), Reason: "video: " + err.Error()}
		}
		content.Media = media
	}
	return a.Publish(ctx, p.AccessToken, content)
}

var errInvalidBody = xpost.BusinessError("invalid request body")

func (d *Dispatcher) failure(rt route, err error) Result {
	var (
		apiErr *xpost.APIError
		valErr xpost.ValidationError
	)
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Status >= http.StatusInternalServerError {
			logutil.Errorf("%s %s: %v", rt.adapter.Name(), rt.op, apiErr)
		} else {
			logutil.Warnf("%s %s: %v", rt.adapter.Name(), rt.op, apiErr)
		}
		return errorResult(apiErr.Status, apiErr.Error())
	case errors.As(err, &valErr):
		logutil.Warnf("%s %s: %v", rt.adapter.Name(), rt.op, valErr)
		return errorResult(http.StatusBadRequest, valErr.Error())
	}

	logutil.Errorf("%s %s: %v", rt.adapter.Name(), rt.op, err)
	if d.hideInternal {
		return errorResult(http.StatusInternalServerError, "internal error")
	}
	return errorResult(http.StatusInternalServerError, fmt.Sprint(err))
}

func errorResult(status int, msg string) Result {
	return Result{Status: status, Body: ErrorBody{Error: msg}}
}
