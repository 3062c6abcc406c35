// Package transport issues outbound platform requests and captures every
// response body, whether or not it decodes as JSON.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/blacktop/crosspub/internal/logutil"
)

const defaultTimeout = 60 * time.Second

// Request describes a single outbound call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the fully-read upstream reply. Data is never nil: bodies that
// are not a JSON object leave it empty while Raw keeps the text.
type Response struct {
	StatusCode int
	Header     http.Header
	Raw        string
	Data       map[string]any
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the raw body into v and reports whether it succeeded.
func (r *Response) Decode(v any) bool {
	if r.Raw == "" {
		return false
	}
	return json.Unmarshal([]byte(r.Raw), v) == nil
}

// Client sends requests without retrying them.
type Client struct {
	http *http.Client
}

// New wraps hc; a nil client gets a default one with a 60s timeout.
func New(hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{http: hc}
}

// HTTPClient returns the underlying client for SDKs that need one.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Send performs the request and reads the whole body. Only network-level
// failures return an error.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	res, err := c.http.Do(httpReq)
	if err != nil {
		// url.Error embeds the full URL, query string included.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("%s %s: %w", req.Method, redact(req.URL), err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	logutil.Debugf("%s %s status=%d bytes=%d took=%s", req.Method, redact(req.URL), res.StatusCode, len(raw), time.Since(start).Round(time.Millisecond))

	return Parse(res.StatusCode, res.Header, raw), nil
}

// Parse classifies a body as a JSON object or not.
func Parse(status int, header http.Header, raw []byte) *Response {
	resp := &Response{
		StatusCode: status,
		Header:     header,
		Raw:        string(raw),
		Data:       map[string]any{},
	}
	if header == nil {
		resp.Header = http.Header{}
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil && obj != nil {
		resp.Data = obj
	}
	return resp
}

// NewGet builds a GET request.
func NewGet(rawURL string, header http.Header) *Request {
	return &Request{Method: http.MethodGet, URL: rawURL, Header: cloneHeader(header)}
}

// NewForm builds an application/x-www-form-urlencoded request.
func NewForm(method, rawURL string, header http.Header, form url.Values) *Request {
	h := cloneHeader(header)
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	return &Request{Method: method, URL: rawURL, Header: h, Body: []byte(form.Encode())}
}

// NewJSON builds a request with a JSON-encoded body.
func NewJSON(method, rawURL string, header http.Header, v any) (*Request, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	h := cloneHeader(header)
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/json")
	}
	return &Request{Method: method, URL: rawURL, Header: h, Body: buf}, nil
}

// NewBinary builds a request whose body is the exact byte payload.
func NewBinary(method, rawURL string, header http.Header, contentType string, data []byte) *Request {
	h := cloneHeader(header)
	h.Set("Content-Type", contentType)
	return &Request{Method: method, URL: rawURL, Header: h, Body: data}
}

// File is the binary part of a multipart request.
type File struct {
	Field    string
	Name     string
	MIMEType string
	Data     []byte
}

// NewMultipart builds a multipart/form-data request from plain fields and
// one file part.
func NewMultipart(method, rawURL string, header http.Header, fields [][2]string, file File) (*Request, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, fmt.Errorf("write field %s: %w", kv[0], err)
		}
	}

	part := textproto.MIMEHeader{}
	part.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.Name))
	part.Set("Content-Type", file.MIMEType)
	w, err := mw.CreatePart(part)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := w.Write(file.Data); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	h := cloneHeader(header)
	h.Set("Content-Type", mw.FormDataContentType())
	return &Request{Method: method, URL: rawURL, Header: h, Body: buf.Bytes()}, nil
}

// Bearer returns an Authorization header for an OAuth2 access token.
func Bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	return h.Clone()
}

// redact strips query strings, which carry access tokens on the Graph API.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}
