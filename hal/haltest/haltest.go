// Package haltest provides a fake hal.Hardware for driving the receive
// and transmit state machines from table-driven tests, without any real
// UART or timer hardware.
//
// Modify its exported fields and call its Feed/Advance helpers to simulate
// hardware events, the same way google-periph's gpiotest.Pin and
// spitest.Playback let a test script a fake peripheral.
package haltest

import "github.com/usbarmory/tamago-dmx512/hal"

// pendingTimer records one armed single-shot timer callback.
type pendingTimer struct {
	at      uint32
	fn      func()
	pending bool
}

// Hardware is a fully in-memory, single-goroutine hal.Hardware fake. It
// is not safe for concurrent use; tests drive it from one goroutine and
// call Advance*/Feed to simulate interrupts synchronously.
type Hardware struct {
	Now uint32

	rxHandler func(hal.RxEvent)

	slot pendingTimer
	pps  pendingTimer

	Written    []byte
	TxBusyFlag bool
	BreakOn    bool

	Transmit bool

	FIQDisabled bool

	ConfigureErr error
	ConfiguredAt uint32
}

// New returns a ready-to-use fake.
func New() *Hardware {
	return &Hardware{FIQDisabled: true}
}

func (h *Hardware) NowMicros() uint32 { return h.Now }

func (h *Hardware) ArmSlotTimer(atMicros uint32, fn func()) {
	h.slot = pendingTimer{at: atMicros, fn: fn, pending: true}
}

func (h *Hardware) DisarmSlotTimer() { h.slot.pending = false }

func (h *Hardware) ArmPPSTimer(atMicros uint32, fn func()) {
	h.pps = pendingTimer{at: atMicros, fn: fn, pending: true}
}

func (h *Hardware) DisarmPPSTimer() { h.pps.pending = false }

func (h *Hardware) ConfigureUART(baud uint32) error {
	h.ConfiguredAt = baud
	return h.ConfigureErr
}

func (h *Hardware) SetRxHandler(fn func(hal.RxEvent)) { h.rxHandler = fn }

func (h *Hardware) WriteByte(b byte) {
	h.Written = append(h.Written, b)
}

func (h *Hardware) TxBusy() bool { return h.TxBusyFlag }

func (h *Hardware) SendBreak(on bool) { h.BreakOn = on }

func (h *Hardware) SetDirection(transmit bool) { h.Transmit = transmit }

func (h *Hardware) DisableFIQ() { h.FIQDisabled = true }
func (h *Hardware) EnableFIQ()  { h.FIQDisabled = false }

// Feed delivers one RxEvent to the installed handler, as the FIQ would,
// advancing Now to at first.
func (h *Hardware) Feed(at uint32, ev hal.RxEvent) {
	h.Now = at
	if h.rxHandler != nil {
		h.rxHandler(ev)
	}
}

// FeedByte is shorthand for Feed with a data byte.
func (h *Hardware) FeedByte(at uint32, b byte) {
	h.Feed(at, hal.RxEvent{Byte: b})
}

// FeedBreak is shorthand for Feed with a BREAK condition.
func (h *Hardware) FeedBreak(at uint32) {
	h.Feed(at, hal.RxEvent{Break: true})
}

// AdvanceSlotTimer fires the pending slot timer callback, if any, after
// moving Now forward to its armed deadline (or to 'at' if later).
func (h *Hardware) AdvanceSlotTimer(at uint32) bool {
	if !h.slot.pending {
		return false
	}
	if h.slot.at > h.Now {
		h.Now = h.slot.at
	}
	if at > h.Now {
		h.Now = at
	}
	fn := h.slot.fn
	h.slot.pending = false
	fn()
	return true
}

// AdvancePPSTimer fires the pending PPS timer callback, if any.
func (h *Hardware) AdvancePPSTimer(at uint32) bool {
	if !h.pps.pending {
		return false
	}
	if at > h.Now {
		h.Now = at
	}
	fn := h.pps.fn
	h.pps.pending = false
	fn()
	return true
}

// SlotArmed reports whether a slot timer callback is currently pending,
// and at what deadline.
func (h *Hardware) SlotArmed() (uint32, bool) { return h.slot.at, h.slot.pending }
