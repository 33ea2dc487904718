package segments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/JustinTDCT/SkipVault/internal/logger"
	"github.com/JustinTDCT/SkipVault/internal/models"
)

// Default community service endpoints per platform.
var DefaultBaseURLs = map[models.Platform]string{
	models.PlatformYouTube:  "https://sponsor.ajay.app",
	models.PlatformBilibili: "https://bsbsb.top",
}

const (
	DefaultSegmentTTL = 30 * time.Minute
	DefaultTimeout    = 8 * time.Second

	// maxResponseBody bounds decoded community responses.
	maxResponseBody = 1 << 20
)

// Source is what the decision engine needs from a segment provider.
type Source interface {
	FetchSegments(ctx context.Context, platform models.Platform, contentID string, categories []models.Category) []models.Segment
}

// UserIDSource supplies the anonymous submitter id.
type UserIDSource interface {
	UserID() string
}

type Config struct {
	BaseURLs          map[models.Platform]string
	TTL               time.Duration
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
	Shared            SharedStore
	Now               func() time.Time
	HTTPClient        *http.Client
}

func (c Config) withDefaults() Config {
	if c.BaseURLs == nil {
		c.BaseURLs = DefaultBaseURLs
	}
	if c.TTL <= 0 {
		c.TTL = DefaultSegmentTTL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 5
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	if c.UserAgent == "" {
		c.UserAgent = "SkipVault/1.0"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c
}

// Client talks to the community skip-segment service. Fetches never fail:
// every error resolves to an empty list.
type Client struct {
	baseURLs  map[models.Platform]string
	userAgent string
	timeout   time.Duration
	http      *http.Client
	limiter   *rate.Limiter
	cache     *Cache[[]models.Segment]
	users     UserIDSource
	log       *slog.Logger
}

func NewClient(cfg Config, users UserIDSource, log *slog.Logger) *Client {
	cfg = cfg.withDefaults()
	log = logger.Component(log, "segment-client")
	return &Client{
		baseURLs:  cfg.BaseURLs,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		http:      cfg.HTTPClient,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cache: NewCache[[]models.Segment]("segments", cfg.TTL,
			WithFetchTimeout(cfg.Timeout),
			WithClock(cfg.Now),
			WithSharedStore(cfg.Shared),
			WithCacheLogger(log),
		),
		users: users,
		log:   log,
	}
}

// Cache exposes the underlying cache for sweeping.
func (c *Client) Cache() *Cache[[]models.Segment] {
	return c.cache
}

// ──────────────────── Fetch ────────────────────

type remoteSegment struct {
	Segment       []float64 `json:"segment"`
	Category      string    `json:"category"`
	UUID          string    `json:"UUID"`
	Votes         int       `json:"votes"`
	Locked        int       `json:"locked"`
	ActionType    string    `json:"actionType"`
	VideoDuration float64   `json:"videoDuration"`
}

func cacheKey(platform models.Platform, contentID string, cats []models.Category) string {
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	return fmt.Sprintf("%s:%s:%s", platform, contentID, strings.Join(names, ","))
}

func contentPrefix(platform models.Platform, contentID string) string {
	return fmt.Sprintf("%s:%s:", platform, contentID)
}

// FetchSegments returns community segments for contentID restricted to
// categories. The returned slice is owned by the caller.
func (c *Client) FetchSegments(ctx context.Context, platform models.Platform, contentID string, categories []models.Category) []models.Segment {
	if contentID == "" {
		return nil
	}
	var cats []models.Category
	for _, cat := range models.NormalizeCategories(categories) {
		if cat.Remote() {
			cats = append(cats, cat)
		}
	}
	if len(cats) == 0 {
		return nil
	}

	key := cacheKey(platform, contentID, cats)
	segs, err := c.cache.Load(ctx, key, func(fctx context.Context) ([]models.Segment, error) {
		return c.fetch(fctx, platform, contentID, cats)
	})
	if err != nil {
		c.logFailure(err, "fetch segments", "platform", platform, "content_id", contentID)
		return nil
	}
	out := make([]models.Segment, len(segs))
	copy(out, segs)
	return out
}

func (c *Client) endpoint(platform models.Platform, path string) (*url.URL, error) {
	base, ok := c.baseURLs[platform]
	if !ok || base == "" {
		return nil, fmt.Errorf("no segment service for platform %q: %w", platform, ErrClientStatus)
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + path)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	return u, nil
}

func (c *Client) fetch(ctx context.Context, platform models.Platform, contentID string, cats []models.Category) ([]models.Segment, error) {
	u, err := c.endpoint(platform, "/api/skipSegments")
	if err != nil {
		return nil, err
	}
	catJSON, _ := json.Marshal(cats)
	q := u.Query()
	q.Set("videoID", contentID)
	q.Set("categories", string(catJSON))
	q.Set("actionTypes", `["skip","mute"]`)
	u.RawQuery = q.Encode()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("segment service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.log.Debug("no segments", "platform", platform, "content_id", contentID)
		return []models.Segment{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}

	var raw []remoteSegment
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	segs := convertRemote(raw)
	c.log.Debug("fetched segments", "platform", platform, "content_id", contentID,
		"received", len(raw), "kept", len(segs))
	return segs, nil
}

// convertRemote keeps well-formed skip/mute items and clamps them to the
// reported video duration.
func convertRemote(raw []remoteSegment) []models.Segment {
	out := make([]models.Segment, 0, len(raw))
	for _, r := range raw {
		if len(r.Segment) != 2 {
			continue
		}
		var action models.ActionType
		switch r.ActionType {
		case "", string(models.ActionSkip):
			action = models.ActionSkip
		case string(models.ActionMute):
			action = models.ActionMute
		default:
			continue
		}
		cat := models.Category(r.Category)
		if !cat.Remote() {
			continue
		}
		seg := models.Segment{
			ID:         r.UUID,
			Start:      r.Segment[0],
			End:        r.Segment[1],
			Category:   cat,
			ActionType: action,
			Votes:      r.Votes,
			Locked:     r.Locked != 0,
		}
		if r.VideoDuration > 0 && seg.End > r.VideoDuration {
			seg.End = r.VideoDuration
		}
		if !seg.Valid() {
			continue
		}
		out = append(out, seg)
	}
	return out
}

// Invalidate drops every cached entry for one content item.
func (c *Client) Invalidate(ctx context.Context, platform models.Platform, contentID string) {
	n := c.cache.InvalidatePrefix(ctx, contentPrefix(platform, contentID))
	c.log.Debug("cache invalidated", "platform", platform, "content_id", contentID, "entries", n)
}

func (c *Client) logFailure(err error, op string, attrs ...any) {
	code := Classify(err)
	attrs = append(attrs, "code", string(code), "error", err)
	switch code {
	case CodeRateLimited:
		c.log.Warn(op+": rate limited by segment service, lower request frequency", attrs...)
	case CodeCancel:
		c.log.Debug(op+": cancelled", attrs...)
	default:
		c.log.Info(op+" failed", attrs...)
	}
}

// ──────────────────── Submit & Vote ────────────────────

type VoteType int

const (
	VoteDown VoteType = 0
	VoteUp   VoteType = 1
	VoteUndo VoteType = 20
)

type submitSegment struct {
	Segment    [2]float64 `json:"segment"`
	Category   string     `json:"category"`
	ActionType string     `json:"actionType"`
}

type submitRequest struct {
	VideoID   string          `json:"videoID"`
	UserID    string          `json:"userID"`
	UserAgent string          `json:"userAgent"`
	Segments  []submitSegment `json:"segments"`
}

// SubmitSegment posts a new segment. On success the content's cache entries
// are invalidated so the next fetch sees it.
func (c *Client) SubmitSegment(ctx context.Context, platform models.Platform, contentID string, start, end float64, category models.Category) bool {
	if contentID == "" || start < 0 || end <= start || !category.Remote() {
		c.log.Info("submission rejected locally", "content_id", contentID,
			"start", start, "end", end, "category", category)
		return false
	}
	action := models.ActionSkip
	if category == models.CategoryMute {
		action = models.ActionMute
	}
	body, err := json.Marshal(submitRequest{
		VideoID:   contentID,
		UserID:    c.userID(),
		UserAgent: c.userAgent,
		Segments: []submitSegment{{
			Segment:    [2]float64{start, end},
			Category:   string(category),
			ActionType: string(action),
		}},
	})
	if err != nil {
		return false
	}

	u, err := c.endpoint(platform, "/api/skipSegments")
	if err != nil {
		c.logFailure(err, "submit segment", "content_id", contentID)
		return false
	}
	if !c.post(ctx, u, body, "submit segment", contentID) {
		return false
	}
	c.Invalidate(ctx, platform, contentID)
	return true
}

// VoteOnSegment records a vote on segmentID, which belongs to contentID.
func (c *Client) VoteOnSegment(ctx context.Context, platform models.Platform, contentID, segmentID string, vote VoteType) bool {
	if segmentID == "" || strings.HasPrefix(segmentID, "native-") {
		return false
	}
	u, err := c.endpoint(platform, "/api/voteOnSponsorTime")
	if err != nil {
		c.logFailure(err, "vote", "segment_id", segmentID)
		return false
	}
	q := u.Query()
	q.Set("UUID", segmentID)
	q.Set("userID", c.userID())
	q.Set("type", fmt.Sprintf("%d", vote))
	u.RawQuery = q.Encode()

	if !c.post(ctx, u, nil, "vote", contentID) {
		return false
	}
	c.Invalidate(ctx, platform, contentID)
	return true
}

func (c *Client) post(ctx context.Context, u *url.URL, body []byte, op, contentID string) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		c.logFailure(err, op, "content_id", contentID)
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return false
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logFailure(fmt.Errorf("segment service unreachable: %w", err), op, "content_id", contentID)
		return false
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logFailure(statusError(resp.StatusCode), op, "content_id", contentID)
		return false
	}
	c.log.Info(op+" accepted", "content_id", contentID)
	return true
}

func (c *Client) userID() string {
	if c.users == nil {
		return ""
	}
	return c.users.UserID()
}
