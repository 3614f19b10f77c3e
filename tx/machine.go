// Package tx implements the transmit pacing state machine (spec.md
// §4.5): BREAK -> mark-after-break -> data -> idle-to-period, driven by
// the same single-shot timer channel the receive side uses for its slot
// watchdog (the two are never armed concurrently, since RX and TX are
// mutually exclusive per spec.md §3).
package tx

import (
	"sync/atomic"

	"github.com/usbarmory/tamago-dmx512/hal"
	"github.com/usbarmory/tamago-dmx512/proto"
)

// SendState is the transmit context's position in the pacing cycle.
type SendState int32

const (
	StateIdle SendState = iota
	StateBreak
	StateMab
	StateData
)

func (s SendState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateBreak:
		return "BREAK"
	case StateMab:
		return "MAB"
	case StateData:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

const (
	minBreakTimeUs = proto.MinBreakUs + 4 // 92 per spec.md §3
	minMabTimeUs   = proto.MinMabUs + 4   // 12 per spec.md §3
)

// Machine is the single transmit context. It is driven entirely by its
// own timer callback (tick) once Start is called; foreground code only
// touches the staging buffer and the pacing parameters.
type Machine struct {
	hw hal.Hardware

	state atomic.Int32

	breakMicros uint32

	breakTimeUs       uint32
	mabTimeUs         uint32
	periodRequestedUs uint32
	periodUs          uint32

	dataLen int
	buf     [proto.DMXFrameSize]byte
}

// New builds a transmit state machine with spec-minimum pacing defaults.
func New(hw hal.Hardware) *Machine {
	m := &Machine{
		hw:          hw,
		breakTimeUs: minBreakTimeUs,
		mabTimeUs:   minMabTimeUs,
		dataLen:     1,
	}
	m.buf[0] = proto.StartCodeDMX
	m.recomputePeriod()
	return m
}

// State returns the current transmit state.
func (m *Machine) State() SendState {
	return SendState(m.state.Load())
}

func (m *Machine) setState(s SendState) {
	m.state.Store(int32(s))
}

// SetSendData copies buf (start code + up to 512 slots) into the staging
// buffer and recomputes the effective period. len must be 1..513.
func (m *Machine) SetSendData(buf []byte, length int) {
	if length < 1 || length > proto.DMXFrameSize {
		panic("tx: invalid send length")
	}
	copy(m.buf[:length], buf[:length])
	m.dataLen = length
	m.recomputePeriod()
}

// SetBreakTimeUs sets the BREAK duration, clamped to its protocol
// minimum, and recomputes the effective period.
func (m *Machine) SetBreakTimeUs(v uint32) {
	if v < minBreakTimeUs {
		v = minBreakTimeUs
	}
	m.breakTimeUs = v
	m.recomputePeriod()
}

// SetMabTimeUs sets the mark-after-break duration, clamped to its
// protocol minimum, and recomputes the effective period.
func (m *Machine) SetMabTimeUs(v uint32) {
	if v < minMabTimeUs {
		v = minMabTimeUs
	}
	m.mabTimeUs = v
	m.recomputePeriod()
}

// SetPeriodUs sets the requested break-to-break period and recomputes
// the effective period against it.
func (m *Machine) SetPeriodUs(v uint32) {
	m.periodRequestedUs = v
	m.recomputePeriod()
}

// recomputePeriod derives the effective period from break/mab/data_len
// per spec.md §4.5: pkt = break+mab+data_len*44; period is the requested
// value unless it is zero or smaller than pkt, in which case it becomes
// max(1204, pkt+44).
func (m *Machine) recomputePeriod() {
	pkt := m.breakTimeUs + m.mabTimeUs + uint32(m.dataLen)*proto.SlotToSlotFloorUs

	if m.periodRequestedUs == 0 || m.periodRequestedUs < pkt {
		period := pkt + proto.SlotToSlotFloorUs
		if period < proto.MinBreakToBreakUs {
			period = proto.MinBreakToBreakUs
		}
		m.periodUs = period
	} else {
		m.periodUs = m.periodRequestedUs
	}
}

// PeriodUs returns the currently effective break-to-break period.
func (m *Machine) PeriodUs() uint32 { return m.periodUs }

// Start begins transmission: arms the first BREAK so that a burst
// immediately after a direction change still respects the timing of the
// last BREAK this machine sent (zero, the first time).
func (m *Machine) Start() {
	m.setState(StateIdle)
	now := m.hw.NowMicros()
	next := m.breakMicros + m.periodUs
	if now > next {
		next = now
	}
	m.hw.ArmSlotTimer(next+4, m.tick)
}

// Stop disarms the pacing timer and returns to IDLE. The caller
// (direction.Controller) is responsible for waiting for TxBusy to clear
// first if a clean line is required.
func (m *Machine) Stop() {
	m.hw.DisarmSlotTimer()
	m.setState(StateIdle)
}

// tick walks one edge of the BREAK -> MAB -> DATA -> IDLE cycle. Called
// from interrupt context I.
func (m *Machine) tick() {
	now := m.hw.NowMicros()

	switch m.State() {
	case StateIdle:
		m.hw.SendBreak(true)
		m.breakMicros = now
		m.setState(StateBreak)
		m.hw.ArmSlotTimer(now+m.breakTimeUs, m.tick)

	case StateBreak:
		m.hw.SendBreak(false)
		m.setState(StateMab)
		m.hw.ArmSlotTimer(now+m.mabTimeUs, m.tick)

	case StateMab:
		// Data bytes are pushed in a tight, bounded poll: at 250 kbaud
		// with a modest FIFO, byte enqueue does not need interrupt
		// granularity, and the next interrupt only needs to fire at
		// the post-period boundary. Bounded by dataLen*44µs (<=~23ms
		// for a full universe).
		for i := 0; i < m.dataLen; i++ {
			for m.hw.TxBusy() {
			}
			m.hw.WriteByte(m.buf[i])
		}
		for m.hw.TxBusy() {
		}

		m.setState(StateIdle)
		m.hw.ArmSlotTimer(m.breakMicros+m.periodUs, m.tick)

	case StateData:
		// unreachable: StateMab inlines the data phase and returns
		// directly to StateIdle.
	}
}
