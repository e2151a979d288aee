package display

import (
	"context"
	"errors"
	"image"
	"sync"
)

// Mock is a thread-safe in-memory display driver for testing and for
// running the server without panel hardware.
type Mock struct {
	mu         sync.Mutex
	renders    int
	last       image.Image
	lastSat    float64
	failRender bool
	width      int
	height     int
}

// NewMock creates a mock driver with the standard panel resolution.
func NewMock() *Mock {
	return &Mock{width: 800, height: 480}
}

// Init is a no-op for the mock.
func (m *Mock) Init(ctx context.Context) error { return nil }

// Render records the frame and saturation. Fails when SetFailRender(true)
// has been called, to exercise the render-errors-are-swallowed paths.
func (m *Mock) Render(ctx context.Context, img image.Image, saturation float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRender {
		return errors.New("mock: render failure injected")
	}
	m.renders++
	m.last = img
	m.lastSat = saturation
	return nil
}

// Bounds returns the mock panel resolution.
func (m *Mock) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.width, m.height)
}

// SetFailRender makes subsequent Render calls fail.
func (m *Mock) SetFailRender(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRender = fail
}

// RenderCount returns how many frames have been rendered.
func (m *Mock) RenderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renders
}

// LastRender returns the most recent frame and its saturation.
func (m *Mock) LastRender() (image.Image, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.lastSat
}

var _ Driver = (*Mock)(nil)
