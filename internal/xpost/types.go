package xpost

import (
	"context"
	"fmt"
	"strings"

	"github.com/blacktop/crosspub/internal/transport"
)

// Platform identifies one of the supported networks.
type Platform string

const (
	LinkedIn  Platform = "linkedin"
	X         Platform = "x"
	Facebook  Platform = "facebook"
	Instagram Platform = "instagram"
	TikTok    Platform = "tiktok"
)

// Platforms lists every supported network in a stable order.
var Platforms = []Platform{LinkedIn, X, Facebook, Instagram, TikTok}

// ParsePlatform maps a user-supplied name onto a Platform. "twitter" is
// accepted as an alias for X.
func ParsePlatform(s string) (Platform, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "twitter" {
		return X, nil
	}
	for _, p := range Platforms {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unsupported platform %q", s)
}

// TokenExchangeRequest carries an authorization code and the client
// credentials needed to redeem it. CodeVerifier is nil unless the caller ran
// a PKCE flow.
type TokenExchangeRequest struct {
	Code         string  `json:"code"`
	ClientID     string  `json:"clientId"`
	ClientSecret string  `json:"clientSecret"`
	RedirectURI  string  `json:"redirectUri"`
	CodeVerifier *string `json:"codeVerifier,omitempty"`
}

// TokenResult is a redeemed access token.
type TokenResult struct {
	AccessToken      string  `json:"accessToken"`
	RefreshToken     *string `json:"refreshToken,omitempty"`
	ExpiresInSeconds *int64  `json:"expiresIn,omitempty"`
}

// Page is a Facebook Page the user manages. Page access tokens never leave
// the adapter.
type Page struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	InstagramAccountID string `json:"instagramAccountId,omitempty"`
	AccessToken        string `json:"-"`
}

// Identity is the normalized account profile.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	ProfileURL  string `json:"profileUrl,omitempty"`
	Pages       []Page `json:"pages,omitempty"`
}

// MediaKind tags the Media union.
type MediaKind int

const (
	MediaImage MediaKind = iota + 1
	MediaVideo
)

func (k MediaKind) String() string {
	switch k {
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	}
	return "unknown"
}

// Media is a decoded binary attachment.
type Media struct {
	Kind     MediaKind
	MIMEType string
	Data     []byte
}

// IsVideo reports whether the attachment is a video.
func (m *Media) IsVideo() bool { return m != nil && m.Kind == MediaVideo }

// FileName derives a placeholder file name for multipart uploads.
func (m *Media) FileName() string {
	ext := "bin"
	if _, sub, ok := strings.Cut(m.MIMEType, "/"); ok && sub != "" {
		ext = sub
		if ext == "jpeg" {
			ext = "jpg"
		}
		if ext == "quicktime" {
			ext = "mov"
		}
	}
	return m.Kind.String() + "." + ext
}

// PostContent is what gets published. A nil Media means a text-only post.
// PageID selects the Facebook Page (and its linked Instagram account); empty
// selects the first managed page.
type PostContent struct {
	Text   string
	Media  *Media
	PageID string
}

// PublishResult identifies the created post.
type PublishResult struct {
	ID string `json:"id"`
}

// Adapter implements the three operations a platform exposes. Adapters hold
// no per-user state, so one instance serves concurrent callers.
type Adapter interface {
	Name() string
	Platform() Platform
	ExchangeToken(ctx context.Context, req TokenExchangeRequest) (*TokenResult, error)
	FetchIdentity(ctx context.Context, accessToken string) (*Identity, error)
	Publish(ctx context.Context, accessToken string, content PostContent) (*PublishResult, error)
}

// Options carries the collaborators every adapter needs.
type Options struct {
	Transport *transport.Client
	Poller    Poller
}

// Client returns the configured transport or a default one.
func (o Options) Client() *transport.Client {
	if o.Transport == nil {
		return transport.New(nil)
	}
	return o.Transport
}
