// Package sim implements hal.Hardware entirely in software, for host
// development and testing builds (GOOS=linux/darwin/...) where no real
// UART or ARM timer exists. It plays the role of the FIQ with a
// dedicated goroutine reading a loopback byte channel, and the role of
// the timer interrupt with time.AfterFunc, the runtime timer wheel
// standing in for the hardware compare channels.
//
// This mirrors the examples pack's fake-hardware convention (see
// google-periph's gpiotest/spitest packages): a software peripheral a
// test or CLI can feed events into deterministically, without real
// silicon.
package sim

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/usbarmory/tamago-dmx512/hal"
)

// Hardware is a software hal.Hardware backed by an in-process loopback
// wire: bytes written with WriteByte are, after an optional pacing
// limiter, delivered back to the installed RX handler as if received
// from the far end of the RS-485 line. Direction and BREAK state are
// tracked but have no physical effect.
type Hardware struct {
	start time.Time

	mu         sync.Mutex
	rxHandler  func(hal.RxEvent)
	slotTimer  *time.Timer
	ppsTimer   *time.Timer
	transmit   bool
	breakOn    bool
	fiqEnabled bool
	txBusy     atomic.Bool

	wire chan hal.RxEvent

	// Limiter, if set, paces WriteByte's loopback delivery, to simulate
	// line timing instead of an instantaneous channel round-trip.
	// InjectByte, InjectBreak and SendBreak are not paced by it.
	Limiter *rate.Limiter

	closed chan struct{}
}

// New returns a ready-to-use simulated line. Loopback delivery runs in
// a background goroutine until Close is called.
func New() *Hardware {
	h := &Hardware{
		start:  time.Now(),
		wire:   make(chan hal.RxEvent, 4096),
		closed: make(chan struct{}),
	}
	go h.deliver()
	return h
}

// Close stops the loopback delivery goroutine.
func (h *Hardware) Close() {
	close(h.closed)
}

func (h *Hardware) deliver() {
	for {
		select {
		case ev := <-h.wire:
			h.mu.Lock()
			handler := h.rxHandler
			enabled := h.fiqEnabled
			h.mu.Unlock()

			if handler != nil && enabled {
				handler(ev)
			}
		case <-h.closed:
			return
		}
	}
}

// NowMicros returns microseconds elapsed since the Hardware was created.
func (h *Hardware) NowMicros() uint32 {
	return uint32(time.Since(h.start).Microseconds())
}

func (h *Hardware) armTimer(slot bool, atMicros uint32, fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var t **time.Timer
	if slot {
		t = &h.slotTimer
	} else {
		t = &h.ppsTimer
	}
	if *t != nil {
		(*t).Stop()
	}

	delay := time.Duration(atMicros)*time.Microsecond - time.Since(h.start)
	if delay < 0 {
		delay = 0
	}
	*t = time.AfterFunc(delay, fn)
}

func (h *Hardware) disarmTimer(slot bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var t **time.Timer
	if slot {
		t = &h.slotTimer
	} else {
		t = &h.ppsTimer
	}
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (h *Hardware) ArmSlotTimer(atMicros uint32, fn func()) { h.armTimer(true, atMicros, fn) }
func (h *Hardware) DisarmSlotTimer()                        { h.disarmTimer(true) }
func (h *Hardware) ArmPPSTimer(atMicros uint32, fn func())  { h.armTimer(false, atMicros, fn) }
func (h *Hardware) DisarmPPSTimer()                         { h.disarmTimer(false) }

// ConfigureUART validates the requested baud rate; the simulated line
// has no real serial hardware to program.
func (h *Hardware) ConfigureUART(baud uint32) error {
	if baud == 0 {
		return errors.New("sim: invalid baud rate")
	}
	return nil
}

func (h *Hardware) SetRxHandler(fn func(hal.RxEvent)) {
	h.mu.Lock()
	h.rxHandler = fn
	h.mu.Unlock()
}

// WriteByte delivers a byte to the loopback wire. If Limiter is set, the
// delivery is paced against it; otherwise it is queued immediately.
func (h *Hardware) WriteByte(b byte) {
	h.txBusy.Store(true)
	go func() {
		if h.Limiter != nil {
			_ = h.Limiter.Wait(context.Background())
		}
		h.wire <- hal.RxEvent{Byte: b}
		h.txBusy.Store(false)
	}()
}

func (h *Hardware) TxBusy() bool { return h.txBusy.Load() }

// SendBreak records BREAK assertion and, on assertion, injects a BREAK
// event onto the wire so a loopback receiver observes framing the same
// way a real far-end UART would.
func (h *Hardware) SendBreak(on bool) {
	h.mu.Lock()
	wasOn := h.breakOn
	h.breakOn = on
	h.mu.Unlock()

	if on && !wasOn {
		h.wire <- hal.RxEvent{Break: true}
	}
}

func (h *Hardware) SetDirection(transmit bool) {
	h.mu.Lock()
	h.transmit = transmit
	h.mu.Unlock()
}

func (h *Hardware) DisableFIQ() {
	h.mu.Lock()
	h.fiqEnabled = false
	h.mu.Unlock()
}

func (h *Hardware) EnableFIQ() {
	h.mu.Lock()
	h.fiqEnabled = true
	h.mu.Unlock()
}

// InjectByte feeds a byte directly onto the wire, bypassing WriteByte's
// TX-busy bookkeeping. Used by tests and cmd/dmxmon to simulate incoming
// traffic from the far end of the line.
func (h *Hardware) InjectByte(b byte) {
	h.wire <- hal.RxEvent{Byte: b}
}

// InjectBreak feeds a BREAK condition directly onto the wire.
func (h *Hardware) InjectBreak() {
	h.wire <- hal.RxEvent{Break: true}
}
