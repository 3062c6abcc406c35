package dispatch

import (
	"net/http"
	"time"

	"github.com/blacktop/crosspub/internal/config"
	"github.com/blacktop/crosspub/internal/transport"
	"github.com/blacktop/crosspub/internal/xpost"
	"github.com/blacktop/crosspub/internal/xpost/facebook"
	"github.com/blacktop/crosspub/internal/xpost/instagram"
	"github.com/blacktop/crosspub/internal/xpost/linkedin"
	"github.com/blacktop/crosspub/internal/xpost/tiktok"
	"github.com/blacktop/crosspub/internal/xpost/twitter"
)

// NewAdapters builds one adapter per platform, in xpost.Platforms order,
// sharing a single outbound client.
func NewAdapters(cfg config.Config) []xpost.Adapter {
	return NewAdaptersWithClient(cfg, transport.New(&http.Client{Timeout: cfg.HTTPTimeout}))
}

// NewAdaptersWithClient is NewAdapters with a caller-supplied transport.
func NewAdaptersWithClient(cfg config.Config, tc *transport.Client) []xpost.Adapter {
	poller := func(delay time.Duration) xpost.Poller {
		return xpost.Poller{Delay: delay, MaxAttempts: cfg.Polling.MaxAttempts, Sleep: xpost.Sleep}
	}
	return []xpost.Adapter{
		linkedin.New(xpost.Options{Transport: tc}),
		twitter.New(xpost.Options{Transport: tc, Poller: poller(cfg.Polling.XDefaultDelay)}),
		facebook.New(xpost.Options{Transport: tc}),
		instagram.New(xpost.Options{Transport: tc, Poller: poller(cfg.Polling.InstagramDelay)}),
		tiktok.New(xpost.Options{Transport: tc}, cfg.TikTok.PrivacyLevel),
	}
}
