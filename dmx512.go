// Package dmx512 is a bare-metal DMX512/RDM line driver: a bidirectional
// UART-backed transceiver that receives and transmits DMX512 lighting
// packets, tunnels RDM request/response frames, and captures discovery
// replies, all on one RS-485 half-duplex line driven by one hardware
// UART with microsecond-accurate timing.
//
// Driver is the public API (component C8): foreground-visible operations
// for configuring the line, retrieving received frames, detecting
// changes, staging data to send, and reading statistics. Everything else
// in this module (rings, the RX/TX state machines, the direction
// controller) is reached only through a Driver.
package dmx512

import (
	"github.com/usbarmory/tamago-dmx512/direction"
	"github.com/usbarmory/tamago-dmx512/frame"
	"github.com/usbarmory/tamago-dmx512/hal"
	"github.com/usbarmory/tamago-dmx512/proto"
	"github.com/usbarmory/tamago-dmx512/ring"
	"github.com/usbarmory/tamago-dmx512/rx"
	"github.com/usbarmory/tamago-dmx512/stats"
	"github.com/usbarmory/tamago-dmx512/tx"
)

// dmxRingSize and rdmRingSize are small, power-of-two ring depths; the
// source firmware this is modeled on uses a ring of 1-4 entries, trading
// history depth for a bounded, allocation-free footprint (spec.md §3).
const (
	dmxRingSize = 4
	rdmRingSize = 4

	dmxBaud = 250_000
)

// Driver owns every shared data structure between the RX interrupt, the
// TX/watchdog timer interrupt, and foreground callers: the two frame
// rings, the RX and TX state machines, the direction controller, the
// statistics totals, and the previous-DMX snapshot used by
// IsDataChanged. Per spec.md §9, this struct is the sole integration
// point; applications construct exactly one.
type Driver struct {
	hw hal.Hardware

	dmxRing *ring.Ring[frame.DMX]
	rdmRing *ring.Ring[frame.RDM]

	rx  *rx.Machine
	pps *rx.PPSCounter
	tx  *tx.Machine
	dir *direction.Controller

	totals stats.Totals

	prevValid bool
	prevLen   int
	prevData  [proto.DMXFrameSize]byte

	// dmxOut and rdmOut hold the most recently popped frames, copied out
	// of their ring slots before those slots are reset and released.
	dmxOut frame.DMX
	rdmOut frame.RDM

	initialized bool
}

// New builds a Driver over the given hardware abstraction. It does not
// touch the hardware; call Init to do that.
func New(hw hal.Hardware) *Driver {
	d := &Driver{hw: hw}

	d.dmxRing = ring.New[frame.DMX](dmxRingSize, func(f *frame.DMX) { f.Reset() })
	d.rdmRing = ring.New[frame.RDM](rdmRingSize, func(f *frame.RDM) { f.Reset() })

	d.rx = rx.New(hw, d.dmxRing, d.rdmRing, &d.totals)
	d.pps = rx.NewPPSCounter(hw, &d.totals)
	d.tx = tx.New(hw)
	d.dir = direction.New(hw, d.rx, d.pps, d.tx, d.dmxRing)

	return d
}

// Init is idempotent: it zeros the rings, configures the UART for
// 250 kbaud 8-N-2 with BREAK detection, installs the RX handler, and
// defaults to receive direction with data disabled (spec.md §4.8).
func (d *Driver) Init() error {
	if d.initialized {
		return nil
	}

	if err := d.hw.ConfigureUART(dmxBaud); err != nil {
		return err
	}

	d.hw.SetRxHandler(d.rx.HandleEvent)
	d.dmxRing.Clear()
	d.rdmRing.Clear()
	d.totals.Reset()

	d.dir.Set(direction.Receive, false)
	d.initialized = true

	return nil
}

// SetDirection serializes start/stop of RX and TX and flips the RS-485
// direction pin (spec.md §4.6). Calls are not safe for concurrent use;
// the caller must serialize its own direction changes.
func (d *Driver) SetDirection(dir direction.Direction, enableData bool) {
	d.dir.Set(dir, enableData)
}

// GetAvailableDMX pops the oldest unconsumed DMX frame, if any. The
// returned pointer is valid until the next call that consumes from the
// DMX ring.
func (d *Driver) GetAvailableDMX() (*frame.DMX, bool) {
	f, ok := d.dmxRing.PeekTail()
	if !ok {
		return nil, false
	}
	d.dmxOut = *f
	d.dmxRing.ConsumeTail()
	return &d.dmxOut, true
}

// GetAvailableRDM pops the oldest unconsumed RDM frame, if any.
func (d *Driver) GetAvailableRDM() (*frame.RDM, bool) {
	f, ok := d.rdmRing.PeekTail()
	if !ok {
		return nil, false
	}
	d.rdmOut = *f
	d.rdmRing.ConsumeTail()
	return &d.rdmOut, true
}

// IsDataChanged pops the next DMX frame and compares it against the
// shadow of the last frame returned by this method: if the length or any
// payload byte differs, the shadow is updated and the frame is returned;
// otherwise it returns (nil, false) with the shadow left untouched. This
// is the only diff API, combining pop and diff to keep the shadow
// coherent (spec.md §4.8).
func (d *Driver) IsDataChanged() (*frame.DMX, bool) {
	f, ok := d.dmxRing.PeekTail()
	if !ok {
		return nil, false
	}
	d.dmxOut = *f
	d.dmxRing.ConsumeTail()
	f = &d.dmxOut

	changed := !d.prevValid || f.SlotsInPacket != d.prevLen
	if !changed {
		for i := 0; i <= f.SlotsInPacket; i++ {
			if f.Data[i] != d.prevData[i] {
				changed = true
				break
			}
		}
	}

	if !changed {
		return nil, false
	}

	d.prevValid = true
	d.prevLen = f.SlotsInPacket
	copy(d.prevData[:f.SlotsInPacket+1], f.Data[:f.SlotsInPacket+1])

	return f, true
}

// SetSendData copies buf (start code + up to 512 slots) into the
// transmit staging buffer and recomputes the effective period.
func (d *Driver) SetSendData(buf []byte, length int) {
	d.tx.SetSendData(buf, length)
}

// SetBreakTimeUs sets the transmit BREAK duration, clamped to its
// protocol minimum, and recomputes the effective period.
func (d *Driver) SetBreakTimeUs(v uint32) { d.tx.SetBreakTimeUs(v) }

// SetMabTimeUs sets the transmit mark-after-break duration, clamped to
// its protocol minimum, and recomputes the effective period.
func (d *Driver) SetMabTimeUs(v uint32) { d.tx.SetMabTimeUs(v) }

// SetPeriodUs sets the requested transmit break-to-break period and
// recomputes the effective period against it.
func (d *Driver) SetPeriodUs(v uint32) { d.tx.SetPeriodUs(v) }

// GetTotalStatistics returns a point-in-time snapshot of the aggregate
// counters, with DMXDropped/RDMDropped filled in from the two frame
// rings, the actual site that detects and counts an overrun.
func (d *Driver) GetTotalStatistics() stats.Snapshot {
	snap := d.totals.Snapshot()
	snap.DMXDropped = d.dmxRing.Dropped()
	snap.RDMDropped = d.rdmRing.Dropped()
	return snap
}

// GetUpdatesPerSecond returns the most recent once-a-second sample of
// DMX frames started.
func (d *Driver) GetUpdatesPerSecond() uint32 {
	return d.totals.UpdatesPerSecond.Load()
}

// GetReceiveState returns the RX state machine's current state.
func (d *Driver) GetReceiveState() rx.State {
	return d.rx.State()
}

// DMXRingDropped and RDMRingDropped expose the dropped-frame counters
// resolving spec.md §9's open question on overrun visibility.
func (d *Driver) DMXRingDropped() uint32 { return d.dmxRing.Dropped() }
func (d *Driver) RDMRingDropped() uint32 { return d.rdmRing.Dropped() }
