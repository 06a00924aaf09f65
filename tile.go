package boardloop

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"

	// Tiles are PNG per the provider URL templates.
	_ "image/png"
)

// tileProviders maps known provider names to URL template bases,
// tiles resolve as {base}/{zoom}/{x}/{y}.png.
var tileProviders = map[string]string{
	"osm":         "https://tile.openstreetmap.org",
	"carto-dark":  "https://basemaps.cartocdn.com/dark_all",
	"carto-light": "https://basemaps.cartocdn.com/light_all",
}

// TilesConfig controls a tile fetcher.
type TilesConfig struct {
	// Logger is an instance of contextualized logger, can be nil.
	Logger ctxd.Logger

	// Stats is metrics collector, can be nil.
	Stats stats.Tracker

	// Cache stores tile images, in-memory created by default. Use a Disk
	// instance to survive restarts.
	Cache ReadWriter

	// Provider selects a known URL template, default "osm".
	Provider string

	// BaseURL overrides the provider template base.
	BaseURL string

	// TimeToLive is tile cache TTL, default 24h.
	TimeToLive time.Duration

	// MaxAttempts bounds tries of one download including the first,
	// default 3. Only transient statuses (429, 5xx) are retried.
	MaxAttempts int

	// RetryBackoff is the initial delay between attempts, doubling each time,
	// default 250ms.
	RetryBackoff time.Duration

	// DisableThreshold is the count of consecutive failures after which
	// fetching short-circuits without network I/O until Reset, default 5.
	// Use -1 to keep fetching no matter what.
	DisableThreshold int

	// Client is the HTTP client, a 10s-timeout client by default.
	Client *http.Client

	// FadeIntensity dims tiles for compositing under foreground content,
	// 0 invisible, 1 opaque. Default 0.4.
	FadeIntensity float64
}

// Tiles fetches and caches map tile images.
//
// A broken tile provider must not impose repeated timeout latency on every
// render cycle: consecutive failures trip a breaker and subsequent calls
// return ErrTilesDisabled immediately, the display simply omits the map
// background until Reset (e.g. on config reload).
type Tiles struct {
	config TilesConfig
	log    ctxd.Logger
	stat   stats.Tracker
	cache  ReadWriter
	client *http.Client
	base   string

	lock     sync.Mutex // Securing keyLocks and breaker state.
	keyLocks map[string]chan struct{}
	failures int
	disabled bool
}

// NewTiles creates a tile fetcher.
func NewTiles(config TilesConfig) (*Tiles, error) {
	if config.Provider == "" {
		config.Provider = "osm"
	}

	base := config.BaseURL
	if base == "" {
		b, ok := tileProviders[config.Provider]
		if !ok {
			return nil, fmt.Errorf("unknown tile provider %q", config.Provider)
		}

		base = b
	}

	if config.TimeToLive == 0 {
		config.TimeToLive = 24 * time.Hour
	}

	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}

	if config.RetryBackoff == 0 {
		config.RetryBackoff = 250 * time.Millisecond
	}

	if config.DisableThreshold == 0 {
		config.DisableThreshold = 5
	}

	if config.FadeIntensity == 0 {
		config.FadeIntensity = 0.4
	}

	t := &Tiles{
		config:   config,
		log:      config.Logger,
		stat:     config.Stats,
		cache:    config.Cache,
		client:   config.Client,
		base:     strings.TrimSuffix(base, "/"),
		keyLocks: make(map[string]chan struct{}),
	}

	if t.log == nil {
		t.log = ctxd.NoOpLogger{}
	}

	if t.stat == nil {
		t.stat = stats.NoOp{}
	}

	if t.cache == nil {
		t.cache = NewMemory(MemoryConfig{
			Name:       "tiles",
			Logger:     config.Logger,
			Stats:      config.Stats,
			TimeToLive: config.TimeToLive,
		})
	}

	if t.client == nil {
		t.client = &http.Client{Timeout: 10 * time.Second}
	}

	return t, nil
}

// URL returns the download location of a tile.
func (t *Tiles) URL(k TileKey) string {
	return fmt.Sprintf("%s/%d/%d/%d.png", t.base, k.Zoom, k.X, k.Y)
}

// Disabled reports whether the failure breaker has tripped.
func (t *Tiles) Disabled() bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.disabled
}

// Reset re-enables fetching and clears the failure count, e.g. on config
// reload.
func (t *Tiles) Reset() {
	t.lock.Lock()
	t.disabled = false
	t.failures = 0
	t.lock.Unlock()
}

// FadeIntensity returns the configured compositing fade.
func (t *Tiles) FadeIntensity() float64 {
	return t.config.FadeIntensity
}

// FetchTile returns the image bytes of a tile, from cache when possible.
//
// Concurrent calls for the same tile issue a single download. A response that
// does not declare an image content type is a failure and is never cached.
func (t *Tiles) FetchTile(ctx context.Context, k TileKey) ([]byte, error) {
	if t.Disabled() {
		return nil, ErrTilesDisabled
	}

	ck := k.String()

	if v, err := t.cache.Read(ctx, ck); err == nil {
		return v.([]byte), nil
	}

	unlock := t.lockKey(ck)
	defer unlock()

	// The previous lock owner may have filled the cache meanwhile.
	if v, err := t.cache.Read(ctx, ck); err == nil {
		return v.([]byte), nil
	}

	if t.Disabled() {
		return nil, ErrTilesDisabled
	}

	b, err := t.download(ctx, k)
	if err != nil {
		t.fail(ctx, k, err)

		return nil, err
	}

	if err := t.cache.Write(WithTTL(ctx, t.config.TimeToLive), ck, b); err != nil {
		t.fail(ctx, k, err)

		return nil, err
	}

	t.lock.Lock()
	t.failures = 0
	t.lock.Unlock()

	t.stat.Add(ctx, MetricTileFetch, 1, "provider", t.config.Provider)

	return b, nil
}

func (t *Tiles) lockKey(k string) func() {
	for {
		t.lock.Lock()

		keyLock, alreadyLocked := t.keyLocks[k]
		if !alreadyLocked {
			keyLock = make(chan struct{})
			t.keyLocks[k] = keyLock
			t.lock.Unlock()

			return func() {
				t.lock.Lock()
				delete(t.keyLocks, k)
				close(keyLock)
				t.lock.Unlock()
			}
		}

		t.lock.Unlock()
		<-keyLock
	}
}

// fail counts a consecutive failure and trips the breaker at the threshold.
func (t *Tiles) fail(ctx context.Context, k TileKey, err error) {
	t.stat.Add(ctx, MetricTileFailed, 1, "provider", t.config.Provider)
	t.log.Warn(ctx, "tile fetch failed",
		"tile", k.String(),
		"error", err)

	t.lock.Lock()
	defer t.lock.Unlock()

	t.failures++

	if t.config.DisableThreshold > 0 && t.failures >= t.config.DisableThreshold && !t.disabled {
		t.disabled = true

		t.log.Warn(ctx, "tile fetching disabled after consecutive failures",
			"failures", t.failures)
		t.stat.Add(ctx, MetricTileDisabled, 1, "provider", t.config.Provider)
	}
}

// download gets tile bytes with bounded retries and exponential backoff on
// transient statuses.
func (t *Tiles) download(ctx context.Context, k TileKey) ([]byte, error) {
	url := t.URL(k)
	backoff := t.config.RetryBackoff

	var lastErr error

	for attempt := 0; attempt < t.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ErrFetchTimeout
			}

			backoff *= 2
		}

		b, retriable, err := t.get(ctx, url)
		if err == nil {
			return b, nil
		}

		lastErr = err

		if !retriable {
			break
		}
	}

	return nil, lastErr
}

func (t *Tiles) get(ctx context.Context, url string) (b []byte, retriable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ErrFetchTimeout
		}

		return nil, true, err
	}

	defer func() {
		if clErr := resp.Body.Close(); clErr != nil && err == nil {
			err = clErr
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("%w: %d", ErrFetchHTTP, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("%w: %d", ErrFetchHTTP, resp.StatusCode)
	}

	// Error pages served with 200 must not end up in the cache.
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, false, fmt.Errorf("%w: content type %q", ErrDecode, ct)
	}

	b, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}

	return b, false, nil
}

// DecodeTile decodes tile bytes into an image.
func DecodeTile(b []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecode, err.Error())
	}

	return img, nil
}

// Fade applies a uniform brightness/alpha reduction for compositing tiles
// under foreground content. Intensity 0 yields an invisible tile, 1 leaves it
// opaque. Values outside [0, 1] are clamped.
func Fade(img image.Image, intensity float64) *image.RGBA {
	if intensity < 0 {
		intensity = 0
	}

	if intensity > 1 {
		intensity = 1
	}

	bounds := img.Bounds()
	out := image.NewRGBA(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()

			i := out.PixOffset(x, y)
			out.Pix[i] = uint8(float64(r>>8) * intensity)
			out.Pix[i+1] = uint8(float64(g>>8) * intensity)
			out.Pix[i+2] = uint8(float64(b>>8) * intensity)
			out.Pix[i+3] = uint8(float64(a>>8) * intensity)
		}
	}

	return out
}
