package transport

import (
	"encoding/json"
	"fmt"
)

// rawPrefixLimit bounds the raw-body fallback used in error messages.
const rawPrefixLimit = 300

var detailFields = []string{"error_description", "error", "message", "detail"}

// ErrorDetail extracts a readable message from a failed response. The first
// present field of error_description, error, message, detail wins; without
// any, the first 300 characters of the raw body are used.
func (r *Response) ErrorDetail() string {
	for _, key := range detailFields {
		v, ok := r.Data[key]
		if !ok || v == nil {
			continue
		}
		return stringify(v)
	}
	return prefix(r.Raw, rawPrefixLimit)
}

// stringify renders a detail value. Graph and TikTok nest their errors as
// {"error": {"message": ..., "code": ...}}.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if msg, ok := t["message"].(string); ok && msg != "" {
			return msg
		}
		if code, ok := t["code"]; ok && code != nil {
			return fmt.Sprint(code)
		}
	case float64, bool:
		return fmt.Sprint(t)
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(buf)
}

func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
