//go:build !linux

package main

import (
	"errors"

	"github.com/asetapen/picinplace/internal/display"
)

func newPanel() (display.Driver, error) {
	return nil, errors.New("e-paper panel only supported on linux; use --mock")
}
