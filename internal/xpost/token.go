package xpost

import (
	"strconv"
	"strings"

	"github.com/blacktop/crosspub/internal/transport"
)

// TokenFromResponse turns a token endpoint reply into a TokenResult. The
// presence of a string access_token is the only success signal; the other
// fields are read one at a time so an odd refresh_token or expires_in never
// fails the exchange.
func TokenFromResponse(label string, resp *transport.Response) (*TokenResult, error) {
	accessToken, _ := resp.Data["access_token"].(string)
	if accessToken == "" {
		return nil, FromResponse(label, resp)
	}
	out := &TokenResult{AccessToken: accessToken, ExpiresInSeconds: seconds(resp.Data["expires_in"])}
	if refresh, ok := resp.Data["refresh_token"].(string); ok && refresh != "" {
		out.RefreshToken = &refresh
	}
	return out, nil
}

// seconds accepts both 3600 and "3600".
func seconds(v any) *int64 {
	var n int64
	switch t := v.(type) {
	case float64:
		n = int64(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		n = int64(f)
	default:
		return nil
	}
	return &n
}
