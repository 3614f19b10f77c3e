// Package direction implements the direction controller (spec.md §4.6):
// the only component that touches both the receive and transmit state
// machines, serializing start/stop of each side of the half-duplex line
// and flipping the RS-485 driver-enable GPIO between them.
//
// Concurrent calls to Controller are not supported; the caller (the
// public API, C8) must serialize direction changes, per spec.md §4.6.
package direction

import (
	"time"

	"github.com/usbarmory/tamago-dmx512/frame"
	"github.com/usbarmory/tamago-dmx512/hal"
	"github.com/usbarmory/tamago-dmx512/ring"
	"github.com/usbarmory/tamago-dmx512/rx"
	"github.com/usbarmory/tamago-dmx512/tx"
)

// Direction selects which side of the half-duplex line is active.
type Direction int

const (
	Receive Direction = iota
	Transmit
)

// Controller serializes start/stop of RX and TX and mediates the GPIO
// direction pin between them.
type Controller struct {
	hw  hal.Hardware
	rx  *rx.Machine
	pps *rx.PPSCounter
	tx  *tx.Machine
	dmx *ring.Ring[frame.DMX]

	current   Direction
	dataOn    bool
	installed bool
}

// New builds a direction controller over the given state machines.
func New(hw hal.Hardware, rxm *rx.Machine, pps *rx.PPSCounter, txm *tx.Machine, dmx *ring.Ring[frame.DMX]) *Controller {
	return &Controller{hw: hw, rx: rxm, pps: pps, tx: txm, dmx: dmx, current: Receive}
}

// Set stops whichever side is currently active, flips the GPIO, and
// (if enableData) starts the newly selected side. Implements spec.md
// §4.6 steps 1-3.
func (c *Controller) Set(dir Direction, enableData bool) {
	c.stopCurrent()

	c.hw.SetDirection(dir == Transmit)
	c.current = dir
	c.dataOn = enableData

	if !enableData {
		c.installed = false
		return
	}

	switch dir {
	case Transmit:
		c.tx.Start()
	case Receive:
		c.pps.Start()
		c.hw.EnableFIQ()
	}
	c.installed = true
}

// stopCurrent implements spec.md §4.6 step 1 verbatim: if TX was active,
// spin-wait (bounded by one period) for it to finish the current packet
// and disarm its timer; unconditionally disable the RX FIQ, force the RX
// state machine back to IDLE, and zero every DMX ring slot so stale data
// can't be consumed after the switch.
func (c *Controller) stopCurrent() {
	if c.installed && c.current == Transmit {
		deadline := time.Duration(c.tx.PeriodUs()) * time.Microsecond
		start := time.Now()
		for c.tx.State() != tx.StateIdle {
			if time.Since(start) > deadline {
				break // forced stop: spec.md §7, warning-class, not fatal
			}
		}
		c.tx.Stop()
	}

	if c.installed && c.current == Receive {
		c.pps.Stop()
	}

	c.hw.DisableFIQ()
	c.rx.Stop()
	c.dmx.Clear()
}
