//go:build linux

package main

import "github.com/asetapen/picinplace/internal/display"

func newPanel() (display.Driver, error) {
	return display.NewEPD()
}
