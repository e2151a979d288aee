package frame

import (
	"log/slog"
	"sync"
	"time"

	"github.com/asetapen/picinplace/internal/models"
	"github.com/asetapen/picinplace/internal/store"
)

// Cycler runs the background rotation: every interval it renders the image
// at the cursor and advances it.
//
// Start and Stop are idempotent; at most one loop goroutine ever exists.
// The loop observes a stop channel rather than a flag in a sleep loop, so
// tests can shut it down deterministically.
type Cycler struct {
	store    *store.ImageStore
	render   func(models.StoredImage)
	interval func() time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewCycler creates a stopped Cycler. render is invoked outside the store
// lock; interval is re-read before every tick so config updates apply from
// the next cycle on.
func NewCycler(st *store.ImageStore, render func(models.StoredImage), interval func() time.Duration) *Cycler {
	return &Cycler{
		store:    st,
		render:   render,
		interval: interval,
	}
}

// Start transitions to Running. Calling while already running has no
// effect: exactly one timer loop exists.
func (c *Cycler) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(c.stop, c.done)
	slog.Info("cycler: started", "interval", c.interval())
}

// Stop transitions to Stopped and waits for the loop to exit. An in-flight
// tick is allowed to finish its render; no further ticks fire.
func (c *Cycler) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stop)
	done := c.done
	c.mu.Unlock()

	<-done
	slog.Info("cycler: stopped")
}

// Running reports whether the cycling loop is active.
func (c *Cycler) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Cycler) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		timer := time.NewTimer(c.interval())
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
			c.tick()
		}
	}
}

// tick renders the image at the cursor and advances it. A tick on an empty
// collection is a no-op.
func (c *Cycler) tick() {
	img, ok := c.store.NextForRender()
	if !ok {
		return
	}
	// Render outside the store lock: an e-ink refresh takes seconds and
	// must not block uploads or API reads.
	c.render(img)
}
