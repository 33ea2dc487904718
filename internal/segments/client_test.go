package segments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/SkipVault/internal/logger"
	"github.com/JustinTDCT/SkipVault/internal/models"
)

type staticUser string

func (s staticUser) UserID() string { return string(s) }

const sampleSegments = `[
	{"segment":[0,10],"category":"sponsor","UUID":"s1","votes":3,"locked":1,"actionType":"skip","videoDuration":600},
	{"segment":[0,5],"category":"intro","UUID":"i1","votes":0,"locked":0,"actionType":"skip","videoDuration":600},
	{"segment":[30,40],"category":"sponsor","UUID":"m1","votes":0,"locked":0,"actionType":"mute","videoDuration":600},
	{"segment":[50,50],"category":"sponsor","UUID":"bad-range"},
	{"segment":[60],"category":"sponsor","UUID":"bad-shape"},
	{"segment":[70,80],"category":"poi_highlight","UUID":"bad-cat"},
	{"segment":[90,95],"category":"sponsor","UUID":"full","actionType":"full"},
	{"segment":[590,700],"category":"outro","UUID":"clamped","videoDuration":600}
]`

func newTestClient(t *testing.T, srv *httptest.Server, mod func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		BaseURLs: map[models.Platform]string{
			models.PlatformYouTube:  srv.URL,
			models.PlatformBilibili: srv.URL,
		},
		Timeout:           200 * time.Millisecond,
		RequestsPerSecond: 1000,
		Burst:             1000,
	}
	if mod != nil {
		mod(&cfg)
	}
	return NewClient(cfg, staticUser("user-1"), logger.Discard())
}

func TestFetchSegments_ParsesAndFilters(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/skipSegments", r.URL.Path)
		gotQuery = map[string]string{
			"videoID":     r.URL.Query().Get("videoID"),
			"categories":  r.URL.Query().Get("categories"),
			"actionTypes": r.URL.Query().Get("actionTypes"),
		}
		w.Write([]byte(sampleSegments))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	segs := c.FetchSegments(context.Background(), models.PlatformYouTube, "X",
		[]models.Category{models.CategoryIntro, models.CategorySponsor, models.CategoryNativeAd})

	assert.Equal(t, "X", gotQuery["videoID"])
	assert.Equal(t, `["sponsor","intro"]`, gotQuery["categories"])
	assert.Equal(t, `["skip","mute"]`, gotQuery["actionTypes"])

	require.Len(t, segs, 4)
	assert.Equal(t, models.Segment{ID: "s1", Start: 0, End: 10, Category: models.CategorySponsor,
		ActionType: models.ActionSkip, Votes: 3, Locked: true}, segs[0])
	assert.Equal(t, models.ActionMute, segs[2].ActionType)
	assert.Equal(t, "clamped", segs[3].ID)
	assert.Equal(t, 600.0, segs[3].End)
}

func TestFetchSegments_CacheHitAndExpiry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(sampleSegments))
	}))
	defer srv.Close()

	clk := newFakeClock()
	c := newTestClient(t, srv, func(cfg *Config) {
		cfg.TTL = 30 * time.Minute
		cfg.Now = clk.Now
	})
	cats := []models.Category{models.CategorySponsor}

	first := c.FetchSegments(context.Background(), models.PlatformYouTube, "X", cats)
	clk.Advance(29 * time.Minute)
	second := c.FetchSegments(context.Background(), models.PlatformYouTube, "X", cats)
	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, first, second)

	// a different category filter is a different key
	c.FetchSegments(context.Background(), models.PlatformYouTube, "X", []models.Category{models.CategoryIntro})
	assert.EqualValues(t, 2, hits.Load())

	clk.Advance(time.Minute)
	c.FetchSegments(context.Background(), models.PlatformYouTube, "X", cats)
	assert.EqualValues(t, 3, hits.Load())
}

func TestFetchSegments_CoalescesConcurrentRequests(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write([]byte(sampleSegments))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, func(cfg *Config) { cfg.Timeout = 5 * time.Second })
	const n = 10
	results := make([][]models.Segment, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.FetchSegments(context.Background(), models.PlatformYouTube, "X",
				[]models.Category{models.CategorySponsor, models.CategoryIntro})
		}(i)
	}

	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, hits.Load())
	for _, r := range results {
		assert.Equal(t, results[0], r)
		assert.NotEmpty(t, r)
	}
}

func TestFetchSegments_FailOpen(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"bad request", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}},
		{"rate limited", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"segment":`))
		}},
		{"unexpected shape", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"segments":[]}`))
		}},
		{"oversized body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("[" + strings.Repeat(" ", maxResponseBody) +
				`{"segment":[0,10],"category":"sponsor","UUID":"s1","actionType":"skip"}]`))
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(500 * time.Millisecond)
			w.Write([]byte(sampleSegments))
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				tc.handler(w, r)
			}))
			defer srv.Close()

			c := newTestClient(t, srv, nil)
			cats := []models.Category{models.CategorySponsor}
			assert.Empty(t, c.FetchSegments(context.Background(), models.PlatformYouTube, "X", cats))
			assert.Empty(t, c.FetchSegments(context.Background(), models.PlatformYouTube, "X", cats))
			assert.EqualValues(t, 2, hits.Load(), "failures must not be cached")
		})
	}
}

func TestFetchSegments_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := newTestClient(t, srv, nil)
	assert.Empty(t, c.FetchSegments(context.Background(), models.PlatformYouTube, "X",
		[]models.Category{models.CategorySponsor}))
}

func TestFetchSegments_NotFoundIsCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	cats := []models.Category{models.CategorySponsor}
	assert.Empty(t, c.FetchSegments(context.Background(), models.PlatformYouTube, "X", cats))
	assert.Empty(t, c.FetchSegments(context.Background(), models.PlatformYouTube, "X", cats))
	assert.EqualValues(t, 1, hits.Load())
}

func TestFetchSegments_NoCategoriesNoRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected request")
	}))
	defer srv.Close()
	c := newTestClient(t, srv, nil)
	assert.Nil(t, c.FetchSegments(context.Background(), models.PlatformYouTube, "X",
		[]models.Category{models.CategoryNativeAd}))
	assert.Nil(t, c.FetchSegments(context.Background(), models.PlatformYouTube, "", nil))
}

func TestSubmitSegment_InvalidatesCache(t *testing.T) {
	var gets atomic.Int32
	var submitted submitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			gets.Add(1)
			w.Write([]byte(sampleSegments))
		case http.MethodPost:
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&submitted))
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	cats := []models.Category{models.CategorySponsor}
	c.FetchSegments(context.Background(), models.PlatformYouTube, "X", cats)
	c.FetchSegments(context.Background(), models.PlatformYouTube, "X", cats)
	require.EqualValues(t, 1, gets.Load())

	ok := c.SubmitSegment(context.Background(), models.PlatformYouTube, "X", 12, 20, models.CategorySponsor)
	require.True(t, ok)
	assert.Equal(t, "X", submitted.VideoID)
	assert.Equal(t, "user-1", submitted.UserID)
	require.Len(t, submitted.Segments, 1)
	assert.Equal(t, [2]float64{12, 20}, submitted.Segments[0].Segment)

	c.FetchSegments(context.Background(), models.PlatformYouTube, "X", cats)
	assert.EqualValues(t, 2, gets.Load())
}

func TestSubmitSegment_Rejections(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	c := newTestClient(t, srv, nil)
	ctx := context.Background()

	assert.False(t, c.SubmitSegment(ctx, models.PlatformYouTube, "X", 10, 5, models.CategorySponsor))
	assert.False(t, c.SubmitSegment(ctx, models.PlatformYouTube, "X", 0, 5, models.CategoryNativeAd))
	assert.EqualValues(t, 0, posts.Load())

	assert.False(t, c.SubmitSegment(ctx, models.PlatformYouTube, "X", 0, 5, models.CategorySponsor))
	assert.EqualValues(t, 1, posts.Load())
}

func TestVoteOnSegment(t *testing.T) {
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/voteOnSponsorTime", r.URL.Path)
		query = map[string]string{
			"UUID":   r.URL.Query().Get("UUID"),
			"userID": r.URL.Query().Get("userID"),
			"type":   r.URL.Query().Get("type"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	c := newTestClient(t, srv, nil)

	assert.True(t, c.VoteOnSegment(context.Background(), models.PlatformYouTube, "X", "s1", VoteUp))
	assert.Equal(t, map[string]string{"UUID": "s1", "userID": "user-1", "type": "1"}, query)
	assert.False(t, c.VoteOnSegment(context.Background(), models.PlatformYouTube, "X", "native-0", VoteDown))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, CodeRateLimited, Classify(statusError(429)))
	assert.Equal(t, CodeClient, Classify(statusError(400)))
	assert.Equal(t, CodeServer, Classify(statusError(503)))
	assert.Equal(t, CodeCancel, Classify(context.Canceled))
	assert.Equal(t, CodeNetwork, Classify(context.DeadlineExceeded))
	assert.Equal(t, CodeUnknown, Classify(nil))
}
