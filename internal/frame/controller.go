// Package frame implements the picture-frame state machine: it mediates
// between the HTTP API, the image store, the configuration store, the
// cycler and the panel driver.
package frame

import (
	"context"
	"image"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/asetapen/picinplace/internal/codec"
	"github.com/asetapen/picinplace/internal/config"
	"github.com/asetapen/picinplace/internal/display"
	"github.com/asetapen/picinplace/internal/events"
	"github.com/asetapen/picinplace/internal/models"
	"github.com/asetapen/picinplace/internal/store"
)

// Controller is the central coordinator. Configuration reads and writes are
// guarded here; the image collection and cursor live behind the store's own
// lock; panel renders always happen outside both.
type Controller struct {
	mu     sync.RWMutex
	cfg    models.Config
	store  *store.ImageStore
	drv    display.Driver
	cfgSt  config.Store
	bus    *events.Bus
	cycler *Cycler
	uiURL  string

	// autoCycle mirrors the last explicit start/stop request so the first
	// insert into an empty frame only starts cycling when it is wanted.
	autoCycle bool
}

// New creates a Controller, loading the persisted configuration.
func New(st *store.ImageStore, drv display.Driver, cfgSt config.Store, bus *events.Bus, uiURL string) (*Controller, error) {
	cfg, err := cfgSt.Load()
	if err != nil {
		return nil, err
	}
	st.SetMaxImages(cfg.MaxImages)

	c := &Controller{
		cfg:       cfg,
		store:     st,
		drv:       drv,
		cfgSt:     cfgSt,
		bus:       bus,
		uiURL:     uiURL,
		autoCycle: true,
	}
	c.cycler = NewCycler(st, c.cycleRender, c.interval)
	return c, nil
}

// Start scans the image directory and brings the panel to its initial
// state: the oldest stored image plus a running cycler when images exist,
// the upload splash otherwise.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.store.Load(); err != nil {
		return err
	}

	if img, err := c.store.At(0); err == nil {
		c.renderStored(img)
		c.cycler.Start()
	} else {
		c.renderSplash(ctx)
	}
	c.publish()
	return nil
}

// Shutdown stops the cycling loop, waiting for an in-flight tick.
func (c *Controller) Shutdown() {
	c.cycler.Stop()
}

// Upload normalizes and stores a new image, then renders it immediately,
// out-of-band from the cycle timer.
func (c *Controller) Upload(ctx context.Context, raw []byte, filename string) (models.StoredImage, *models.AppError) {
	img, err := c.store.Insert(raw, filename)
	if err != nil {
		if appErr, ok := err.(*models.AppError); ok {
			return models.StoredImage{}, appErr
		}
		return models.StoredImage{}, models.ErrInternal(err.Error())
	}

	c.renderStored(img)

	c.mu.RLock()
	auto := c.autoCycle
	c.mu.RUnlock()
	if auto {
		c.cycler.Start()
	}
	c.publish()
	return img, nil
}

// State returns the frame snapshot for GET /api/images.
func (c *Controller) State() models.FrameState {
	names, current, total := c.store.List()
	return models.FrameState{
		Images:       names,
		CurrentIndex: current,
		Total:        total,
		Cycling:      c.cycler.Running(),
	}
}

// GetConfig returns a snapshot of the current configuration.
func (c *Controller) GetConfig() models.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// UpdateConfig merges the partial update over the current configuration,
// validates it, and persists synchronously. On validation failure the prior
// configuration is left fully unchanged.
func (c *Controller) UpdateConfig(upd models.ConfigUpdate) (models.Config, *models.AppError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.cfg.Merge(upd)
	if appErr := next.Validate(); appErr != nil {
		return models.Config{}, appErr
	}
	if err := c.cfgSt.Save(next); err != nil {
		return models.Config{}, models.ErrIO("persist config: " + err.Error())
	}

	c.cfg = next
	// Shrinking max_images defers eviction to the next insert.
	c.store.SetMaxImages(next.MaxImages)

	slog.Info("frame: config updated",
		"max_images", next.MaxImages,
		"cycle_interval", next.CycleInterval,
		"saturation", next.Saturation,
	)
	return next, nil
}

// ReloadConfig replaces the configuration after an out-of-band edit of the
// persisted file. Invalid or unchanged configs are ignored.
func (c *Controller) ReloadConfig(cfg models.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg == c.cfg || cfg.Validate() != nil {
		return
	}
	c.cfg = cfg
	c.store.SetMaxImages(cfg.MaxImages)
	slog.Info("frame: config replaced from file", "max_images", cfg.MaxImages)
}

// Cycle handles POST /api/cycle/{action} with action start or stop.
func (c *Controller) Cycle(action string) *models.AppError {
	switch action {
	case "start":
		c.mu.Lock()
		c.autoCycle = true
		c.mu.Unlock()
		c.cycler.Start()
	case "stop":
		c.mu.Lock()
		c.autoCycle = false
		c.mu.Unlock()
		c.cycler.Stop()
	default:
		return models.ErrBadRequest("invalid action " + action + ": want start or stop")
	}
	c.publish()
	return nil
}

// JumpTo moves the cursor to index and renders that image immediately.
// The cycle timer keeps its phase.
func (c *Controller) JumpTo(ctx context.Context, index int) (models.StoredImage, *models.AppError) {
	img, err := c.store.SetCurrent(index)
	if err != nil {
		return models.StoredImage{}, err.(*models.AppError)
	}
	c.renderStored(img)
	c.publish()
	return img, nil
}

// Thumbnail returns the thumbnail bytes for the named image.
func (c *Controller) Thumbnail(name string) ([]byte, *models.AppError) {
	data, err := c.store.Thumbnail(name)
	if err != nil {
		if appErr, ok := err.(*models.AppError); ok {
			return nil, appErr
		}
		return nil, models.ErrInternal(err.Error())
	}
	return data, nil
}

// HEICSupported reports whether the optional HEIC codec is compiled in.
func (c *Controller) HEICSupported() bool { return codec.HEICSupported() }

// interval is the cycler's live view of the configured tick period.
func (c *Controller) interval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.cfg.CycleInterval) * time.Second
}

// renderStored decodes a stored artifact and pushes it to the panel.
// Display failures are logged, never propagated: a broken panel must not
// fail uploads or API responses.
func (c *Controller) renderStored(img models.StoredImage) {
	data, err := os.ReadFile(img.Path)
	if err != nil {
		slog.Error("frame: cannot read image for display", "name", img.Name, "err", err)
		return
	}
	decoded, derr := codec.Decode(data, img.Name)
	if derr != nil {
		slog.Error("frame: cannot decode image for display", "name", img.Name, "err", derr)
		return
	}
	c.render(decoded)
	slog.Info("frame: displayed image", "name", img.Name)
}

// cycleRender is the cycler's tick callback: render, then let subscribers
// know the cursor moved.
func (c *Controller) cycleRender(img models.StoredImage) {
	c.renderStored(img)
	c.publish()
}

func (c *Controller) render(img image.Image) {
	c.mu.RLock()
	sat := c.cfg.Saturation
	c.mu.RUnlock()
	if err := c.drv.Render(context.Background(), img, sat); err != nil {
		slog.Warn("frame: display render failed", "err", err)
	}
}

// renderSplash shows the idle screen when no images are stored.
func (c *Controller) renderSplash(ctx context.Context) {
	splash := display.Splash(c.drv.Bounds(), c.uiURL)
	if err := c.drv.Render(ctx, splash, 0.5); err != nil {
		slog.Warn("frame: splash render failed", "err", err)
	}
}

// publish pushes the current snapshot to SSE subscribers.
func (c *Controller) publish() {
	if c.bus != nil {
		c.bus.Publish(c.State())
	}
}
