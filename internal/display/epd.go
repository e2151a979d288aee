//go:build linux

package display

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// EPD drives an 800x480 7-color ACeP e-paper panel (UC8159-class
// controller) over SPI.
type EPD struct {
	spiDev spi.Conn
	dc     gpio.PinOut
	reset  gpio.PinOut
	busy   gpio.PinIn
	width  int
	height int
}

const (
	// UC8159 commands
	cmdPSR  = 0x00 // panel setting
	cmdPWR  = 0x01 // power setting
	cmdPOF  = 0x02 // power off
	cmdPON  = 0x04 // power on
	cmdBTST = 0x06 // booster soft start
	cmdDTM1 = 0x10 // data start transmission
	cmdDRF  = 0x12 // display refresh
	cmdIPC  = 0x13 // image process
	cmdPLL  = 0x30 // PLL control
	cmdTSE  = 0x41 // temperature sensor enable
	cmdCDI  = 0x50 // vcom and data interval
	cmdTCON = 0x60 // gate/source non-overlap
	cmdTRES = 0x61 // resolution setting
	cmdPWS  = 0xE3 // power saving

	epdWidth  = 800
	epdHeight = 480
)

// The panel renders 7 fixed inks; every pixel is quantized to the nearest
// one. Saturation blends between the measured on-panel colors (desaturated)
// and the nominal ink colors (saturated), matching how the vendor library
// treats its saturation parameter.
var (
	desatPalette = [7][3]float64{
		{57, 48, 57},    // black
		{255, 255, 255}, // white
		{58, 91, 70},    // green
		{61, 59, 94},    // blue
		{156, 72, 75},   // red
		{208, 190, 71},  // yellow
		{177, 106, 73},  // orange
	}
	satPalette = [7][3]float64{
		{0, 0, 0},
		{217, 242, 255},
		{3, 124, 76},
		{27, 46, 198},
		{245, 80, 34},
		{255, 255, 68},
		{239, 121, 44},
	}
)

// NewEPD opens the SPI port and control pins for the panel.
func NewEPD() (*EPD, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph.io init: %w", err)
	}

	port, err := spireg.Open("/dev/spidev0.0")
	if err != nil {
		return nil, fmt.Errorf("open SPI: %w", err)
	}
	conn, err := port.Connect(3*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("connect SPI: %w", err)
	}

	dc := gpioreg.ByName("GPIO22")
	if dc == nil {
		return nil, fmt.Errorf("failed to open GPIO22 (DC pin)")
	}
	reset := gpioreg.ByName("GPIO27")
	if reset == nil {
		return nil, fmt.Errorf("failed to open GPIO27 (reset pin)")
	}
	busy := gpioreg.ByName("GPIO17")
	if busy == nil {
		return nil, fmt.Errorf("failed to open GPIO17 (busy pin)")
	}

	return &EPD{
		spiDev: conn,
		dc:     dc,
		reset:  reset,
		busy:   busy,
		width:  epdWidth,
		height: epdHeight,
	}, nil
}

// Bounds returns the panel resolution.
func (e *EPD) Bounds() image.Rectangle {
	return image.Rect(0, 0, e.width, e.height)
}

// Init resets the controller and runs the power-on sequence.
func (e *EPD) Init(ctx context.Context) error {
	if err := e.reset.Out(gpio.Low); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	if err := e.reset.Out(gpio.High); err != nil {
		return err
	}
	if err := e.waitBusy(ctx, 1*time.Second); err != nil {
		return err
	}

	w, h := e.width, e.height
	steps := []struct {
		cmd  byte
		data []byte
	}{
		{cmdTRES, []byte{byte(w >> 8), byte(w), byte(h >> 8), byte(h)}},
		{cmdPSR, []byte{0xE3, 0x08}},
		{cmdPWR, []byte{0x37, 0x00, 0x23, 0x23}},
		{cmdPLL, []byte{0x3C}},
		{cmdTSE, []byte{0x00}},
		{cmdCDI, []byte{0x37}},
		{cmdTCON, []byte{0x22}},
		{cmdIPC, []byte{0x00}},
		{cmdPWS, []byte{0xAA}},
		{cmdBTST, []byte{0xC7, 0xC7, 0x1D}},
	}
	for _, s := range steps {
		if err := e.writeCommand(s.cmd, s.data...); err != nil {
			return fmt.Errorf("init cmd %#02x: %w", s.cmd, err)
		}
	}

	slog.Info("epd: panel initialized", "width", w, "height", h)
	return nil
}

// Render quantizes img to the 7-ink palette, streams it to the controller
// and triggers a refresh. Blocks for the full refresh cycle (tens of
// seconds on ACeP panels).
func (e *EPD) Render(ctx context.Context, img image.Image, saturation float64) error {
	buf := e.quantize(img, saturation)

	if err := e.writeCommand(cmdDTM1); err != nil {
		return err
	}
	if err := e.writeData(buf); err != nil {
		return err
	}

	if err := e.writeCommand(cmdPON); err != nil {
		return err
	}
	if err := e.waitBusy(ctx, 5*time.Second); err != nil {
		return err
	}
	if err := e.writeCommand(cmdDRF); err != nil {
		return err
	}
	if err := e.waitBusy(ctx, 40*time.Second); err != nil {
		return err
	}
	if err := e.writeCommand(cmdPOF); err != nil {
		return err
	}
	return e.waitBusy(ctx, 5*time.Second)
}

// quantize maps img to 4-bit palette indices, two pixels per byte.
func (e *EPD) quantize(img image.Image, saturation float64) []byte {
	if saturation < 0 {
		saturation = 0
	} else if saturation > 1 {
		saturation = 1
	}

	var palette [7][3]float64
	for i := range palette {
		for c := 0; c < 3; c++ {
			palette[i][c] = desatPalette[i][c]*(1-saturation) + satPalette[i][c]*saturation
		}
	}

	nearest := func(r, g, b float64) byte {
		best := 0
		bestDist := -1.0
		for i, p := range palette {
			dr, dg, db := r-p[0], g-p[1], b-p[2]
			dist := dr*dr + dg*dg + db*db
			if bestDist < 0 || dist < bestDist {
				bestDist = dist
				best = i
			}
		}
		return byte(best)
	}

	buf := make([]byte, e.width*e.height/2)
	min := img.Bounds().Min
	i := 0
	for y := 0; y < e.height; y++ {
		for x := 0; x < e.width; x += 2 {
			r1, g1, b1, _ := img.At(min.X+x, min.Y+y).RGBA()
			r2, g2, b2, _ := img.At(min.X+x+1, min.Y+y).RGBA()
			hi := nearest(float64(r1>>8), float64(g1>>8), float64(b1>>8))
			lo := nearest(float64(r2>>8), float64(g2>>8), float64(b2>>8))
			buf[i] = hi<<4 | lo
			i++
		}
	}
	return buf
}

// writeCommand writes a command and optional data bytes to the controller.
func (e *EPD) writeCommand(cmd byte, data ...byte) error {
	// DC low = command
	if err := e.dc.Out(gpio.Low); err != nil {
		return err
	}
	if err := e.spiDev.Tx([]byte{cmd}, nil); err != nil {
		return err
	}
	if len(data) > 0 {
		return e.writeData(data)
	}
	return nil
}

// writeData writes a data buffer with DC high, chunked to the SPI driver's
// maximum transfer size.
func (e *EPD) writeData(data []byte) error {
	if err := e.dc.Out(gpio.High); err != nil {
		return err
	}
	const chunkSize = 4096
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := e.spiDev.Tx(data[off:end], nil); err != nil {
			return err
		}
	}
	return nil
}

// waitBusy polls the busy pin until the controller is idle.
func (e *EPD) waitBusy(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for e.busy.Read() == gpio.Low {
		if time.Now().After(deadline) {
			return fmt.Errorf("epd: busy timeout after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return nil
}

var _ Driver = (*EPD)(nil)
