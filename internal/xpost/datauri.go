package xpost

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDataURI is wrapped by every data URI decoding failure.
var ErrInvalidDataURI = errors.New("invalid data URI")

// DecodeDataURI splits a "data:<mime-type>;base64,<payload>" URI into its
// MIME type and decoded bytes.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing data: scheme", ErrInvalidDataURI)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}

	params := strings.Split(meta, ";")
	mimeType := strings.ToLower(strings.TrimSpace(params[0]))
	if mimeType == "" || !strings.Contains(mimeType, "/") {
		return "", nil, fmt.Errorf("%w: missing MIME type", ErrInvalidDataURI)
	}
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURI)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some encoders drop the padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
		}
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: empty payload", ErrInvalidDataURI)
	}
	return mimeType, data, nil
}

// MediaFromDataURI decodes uri and checks that its MIME type matches kind.
func MediaFromDataURI(kind MediaKind, uri string) (*Media, error) {
	mimeType, data, err := DecodeDataURI(uri)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(mimeType, kind.String()+"/") {
		return nil, fmt.Errorf("%w: %s does not match %s media", ErrInvalidDataURI, mimeType, kind)
	}
	return &Media{Kind: kind, MIMEType: mimeType, Data: data}, nil
}
