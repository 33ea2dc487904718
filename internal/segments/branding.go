package segments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JustinTDCT/SkipVault/internal/logger"
)

const (
	DefaultBrandingURL = "https://sponsor.ajay.app"
	DefaultBrandingTTL = 10 * time.Minute
)

// Branding is the best community title/thumbnail suggestion for a video.
type Branding struct {
	Title         string   `json:"title,omitempty"`
	TitleLocked   bool     `json:"title_locked,omitempty"`
	ThumbnailTime *float64 `json:"thumbnail_time,omitempty"`
	RandomTime    float64  `json:"random_time,omitempty"`
}

type brandingTitle struct {
	Title    string `json:"title"`
	Original bool   `json:"original"`
	Votes    int    `json:"votes"`
	Locked   bool   `json:"locked"`
}

type brandingThumbnail struct {
	Timestamp *float64 `json:"timestamp"`
	Original  bool     `json:"original"`
	Votes     int      `json:"votes"`
	Locked    bool     `json:"locked"`
}

type brandingResponse struct {
	Titles     []brandingTitle     `json:"titles"`
	Thumbnails []brandingThumbnail `json:"thumbnails"`
	RandomTime float64             `json:"randomTime"`
}

// BrandingClient looks up community title/thumbnail replacements. Like the
// segment client it is fail-open: anything but a 200 yields nil.
type BrandingClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	cache     *Cache[*Branding]
	log       *slog.Logger
}

type BrandingConfig struct {
	BaseURL    string
	TTL        time.Duration
	Timeout    time.Duration
	UserAgent  string
	Shared     SharedStore
	Now        func() time.Time
	HTTPClient *http.Client
}

func NewBrandingClient(cfg BrandingConfig, log *slog.Logger) *BrandingClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBrandingURL
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultBrandingTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "SkipVault/1.0"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	log = logger.Component(log, "branding-client")
	return &BrandingClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		http:      cfg.HTTPClient,
		cache: NewCache[*Branding]("branding", cfg.TTL,
			WithFetchTimeout(cfg.Timeout),
			WithClock(cfg.Now),
			WithSharedStore(cfg.Shared),
			WithCacheLogger(log),
		),
		log: log,
	}
}

func (b *BrandingClient) Cache() *Cache[*Branding] {
	return b.cache
}

// FetchBranding returns the best candidate for contentID, or nil.
func (b *BrandingClient) FetchBranding(ctx context.Context, contentID string) *Branding {
	if contentID == "" {
		return nil
	}
	res, err := b.cache.Load(ctx, contentID, func(fctx context.Context) (*Branding, error) {
		return b.fetch(fctx, contentID)
	})
	if err != nil {
		code := Classify(err)
		if code == CodeRateLimited {
			b.log.Warn("branding lookup rate limited, lower request frequency", "content_id", contentID)
		} else {
			b.log.Debug("branding lookup failed", "content_id", contentID, "code", string(code), "error", err)
		}
		return nil
	}
	if res == nil {
		return nil
	}
	cp := *res
	return &cp
}

func (b *BrandingClient) fetch(ctx context.Context, contentID string) (*Branding, error) {
	u, err := url.Parse(b.baseURL + "/api/branding")
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("videoID", contentID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", b.userAgent)

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("branding service unreachable: %w", err)
	}
	defer resp.Body.Close()

	// nothing known for this video; cached like a hit
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}

	var br brandingResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&br); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return pickBranding(br), nil
}

// pickBranding takes the first non-original candidate the community has not
// voted down. The service returns candidates best-first.
func pickBranding(br brandingResponse) *Branding {
	out := &Branding{RandomTime: br.RandomTime}
	for _, t := range br.Titles {
		if t.Original || t.Title == "" {
			continue
		}
		if t.Locked || t.Votes >= 0 {
			out.Title = t.Title
			out.TitleLocked = t.Locked
			break
		}
	}
	for _, th := range br.Thumbnails {
		if th.Original || th.Timestamp == nil {
			continue
		}
		if th.Locked || th.Votes >= 0 {
			ts := *th.Timestamp
			out.ThumbnailTime = &ts
			break
		}
	}
	return out
}
