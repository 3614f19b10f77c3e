// Package rx implements the receive framing state machine (spec.md
// §4.3), its slot watchdog (§4.4), and the once-a-second
// updates-per-second sampler, which runs on its own timer channel.
//
// Machine.HandleEvent runs in the highest-priority interrupt context: it
// never allocates, never blocks, and must return in well under one DMX
// slot time. All cross-context fields (State, the counters in
// stats.Totals, the rings) use atomic or release/acquire-ordered
// accesses so foreground readers never observe a torn frame.
package rx

import (
	"sync/atomic"

	"github.com/usbarmory/tamago-dmx512/frame"
	"github.com/usbarmory/tamago-dmx512/hal"
	"github.com/usbarmory/tamago-dmx512/proto"
	"github.com/usbarmory/tamago-dmx512/ring"
	"github.com/usbarmory/tamago-dmx512/stats"
)

// Machine is the single receive context shared by the RX interrupt and
// the slot watchdog timer callback it arms. There is exactly one
// instance per driver; it is not safe for use from more than the two
// contexts spec.md §5 describes (F: the RX handler, I: the watchdog).
type Machine struct {
	hw     hal.Hardware
	dmx    *ring.Ring[frame.DMX]
	rdm    *ring.Ring[frame.RDM]
	totals *stats.Totals

	state atomic.Int32 // rx.State, readable from foreground

	index           int
	rdmChecksum     uint16
	messageLength   int
	discIndex       int
	lastByteMicros  uint32
	lastBreakMicros uint32
	prevBreakMicros uint32
	prevBreakWasDMX bool

	curDMX *frame.DMX
	curRDM *frame.RDM
}

// New builds a receive state machine bound to the given rings, hardware,
// and counter block. The rings and hardware must outlive the Machine.
func New(hw hal.Hardware, dmx *ring.Ring[frame.DMX], rdm *ring.Ring[frame.RDM], totals *stats.Totals) *Machine {
	m := &Machine{hw: hw, dmx: dmx, rdm: rdm, totals: totals}
	m.state.Store(int32(StateIdle))
	return m
}

// State returns the receive context's current state. Safe to call from
// foreground code concurrently with HandleEvent.
func (m *Machine) State() State {
	return State(m.state.Load())
}

func (m *Machine) setState(s State) {
	m.state.Store(int32(s))
}

// HandleEvent processes one RX byte or BREAK event. It is the sole
// entrypoint called from the RX FIQ.
func (m *Machine) HandleEvent(ev hal.RxEvent) {
	now := m.hw.NowMicros()
	defer func() { m.lastByteMicros = now }()

	if ev.Break {
		m.lastBreakMicros = now
		m.setState(StateBreak)
		return
	}

	switch m.State() {
	case StateIdle:
		if ev.Byte == proto.StartCodeDiscovery {
			m.beginDiscovery()
		}
		// any other byte in IDLE is ignored

	case StateBreak:
		switch ev.Byte {
		case proto.StartCodeDMX:
			m.beginDMX(now)
		case proto.StartCodeRDM:
			m.beginRDM()
		default:
			m.prevBreakWasDMX = false
			m.setState(StateIdle)
		}

	case StateDMXData:
		m.handleDMXByte(now, ev.Byte)

	case StateRDMData:
		m.handleRDMByte(ev.Byte)

	case StateChecksumHigh:
		m.handleChecksumHigh(ev.Byte)

	case StateChecksumLow:
		m.handleChecksumLow(ev.Byte)

	case StateDiscPreamble:
		m.handleDiscPreamble(ev.Byte)

	case StateDiscEUID:
		m.handleDiscEUID(ev.Byte)

	case StateDiscChecksum:
		m.handleDiscChecksum(ev.Byte)
	}
}

func (m *Machine) beginDMX(now uint32) {
	m.curDMX = m.dmx.ReserveHead()
	m.curDMX.Reset()
	m.curDMX.Data[0] = proto.StartCodeDMX
	m.index = 1

	m.totals.DMXPackets.Add(1)

	if m.prevBreakWasDMX {
		m.curDMX.BreakToBreakUs = m.lastBreakMicros - m.prevBreakMicros
	}
	m.prevBreakMicros = m.lastBreakMicros
	m.prevBreakWasDMX = true

	m.setState(StateDMXData)

	// No slot has arrived yet to measure a cadence from; bound the
	// start-code-to-first-slot gap with the same watchdog used between
	// slots, using the 1s inter-slot ceiling as the timeout until a
	// measured slot-to-slot interval replaces it.
	m.hw.ArmSlotTimer(now+proto.MaxInterSlotUs, m.watchdogFire)
}

func (m *Machine) handleDMXByte(now uint32, b byte) {
	slotToSlot := now - m.lastByteMicros
	if slotToSlot < proto.SlotToSlotFloorUs {
		slotToSlot = proto.SlotToSlotFloorUs
	}
	m.curDMX.SlotToSlotUs = slotToSlot

	m.curDMX.Data[m.index] = b
	m.index++

	m.hw.ArmSlotTimer(now+slotToSlot+12, m.watchdogFire)

	if m.index > proto.DMXUniverseSize {
		m.curDMX.SlotsInPacket = proto.DMXUniverseSize
		m.dmx.PublishHead()
		m.totals.DMXDelivered.Add(1)
		m.hw.DisarmSlotTimer()
		m.setState(StateIdle)
	}
}

// watchdogFire is armed by handleDMXByte (or beginDMX) and invoked by the
// hardware timer from interrupt context I. It finalizes a truncated DMX
// frame when the line has gone quiet past the last measured slot-to-slot
// interval, per spec.md §4.4.
func (m *Machine) watchdogFire() {
	if m.State() != StateDMXData {
		return
	}

	now := m.hw.NowMicros()
	threshold := m.curDMX.SlotToSlotUs
	if threshold == 0 {
		threshold = proto.MaxInterSlotUs
	}

	if now-m.lastByteMicros > threshold {
		m.curDMX.SlotsInPacket = m.index - 1
		m.dmx.PublishHead()
		m.totals.DMXDelivered.Add(1)
		m.setState(StateIdle)
		return
	}

	m.hw.ArmSlotTimer(now+threshold, m.watchdogFire)
}

func (m *Machine) beginRDM() {
	m.curRDM = m.rdm.ReserveHead()
	m.curRDM.Reset()
	m.curRDM.Data[0] = proto.StartCodeRDM
	m.rdmChecksum = proto.StartCodeRDM
	m.index = 1
	m.messageLength = 0

	m.totals.RDMPackets.Add(1)
	m.prevBreakWasDMX = false

	m.setState(StateRDMData)
}

func (m *Machine) handleRDMByte(b byte) {
	if m.index >= len(m.curRDM.Data) {
		m.setState(StateIdle)
		return
	}

	m.curRDM.Data[m.index] = b
	m.rdmChecksum += uint16(b)

	if m.index == 2 {
		ml := int(b)
		// spec.md §9 open question 2: clamp/reject an out-of-range
		// message_length instead of letting it corrupt index tracking.
		if ml < 3 || ml > proto.RDMBufferSize-2 {
			m.setState(StateIdle)
			return
		}
		m.messageLength = ml
	}

	m.index++

	if m.messageLength != 0 && m.index == m.messageLength {
		m.setState(StateChecksumHigh)
	}
}

func (m *Machine) handleChecksumHigh(b byte) {
	if m.index >= len(m.curRDM.Data) {
		m.setState(StateIdle)
		return
	}
	m.curRDM.Data[m.index] = b
	m.rdmChecksum -= uint16(b) << 8
	m.index++
	m.setState(StateChecksumLow)
}

func (m *Machine) handleChecksumLow(b byte) {
	if m.index >= len(m.curRDM.Data) {
		m.setState(StateIdle)
		return
	}
	m.curRDM.Data[m.index] = b
	m.rdmChecksum -= uint16(b)
	m.index++

	if m.rdmChecksum == 0 && m.curRDM.Data[1] == proto.RDMSubStartCode {
		m.curRDM.Len = m.index
		m.curRDM.Discovery = false
		m.rdm.PublishHead()
		m.totals.RDMDelivered.Add(1)
	}

	m.setState(StateIdle)
}

func (m *Machine) beginDiscovery() {
	m.curRDM = m.rdm.ReserveHead()
	m.curRDM.Reset()
	m.curRDM.Data[0] = proto.StartCodeDiscovery
	m.index = 1

	// Discovery replies are not preceded by a BREAK->start-code edge, so
	// nothing increments RDMPackets on this path in the source table;
	// we count it as started here anyway so dmx_packets+rdm_packets
	// never undercounts frames handed to the consumer (spec.md §8
	// invariant 5).
	m.totals.RDMPackets.Add(1)

	m.setState(StateDiscPreamble)
}

func (m *Machine) handleDiscPreamble(b byte) {
	if m.index >= len(m.curRDM.Data) {
		m.setState(StateIdle)
		return
	}

	switch b {
	case proto.StartCodeDiscovery:
		if m.index >= maxDiscoveryPreambleBytes {
			m.setState(StateIdle)
			return
		}
		m.curRDM.Data[m.index] = b
		m.index++
	case proto.DiscoveryDelimiter:
		m.curRDM.Data[m.index] = b
		m.index++
		m.discIndex = 0
		m.setState(StateDiscEUID)
	default:
		m.setState(StateIdle)
	}
}

func (m *Machine) handleDiscEUID(b byte) {
	if m.index >= len(m.curRDM.Data) {
		m.setState(StateIdle)
		return
	}
	m.curRDM.Data[m.index] = b
	m.index++
	m.discIndex++

	if m.discIndex == proto.DiscoveryEUIDBytes {
		m.discIndex = 0
		m.setState(StateDiscChecksum)
	}
}

func (m *Machine) handleDiscChecksum(b byte) {
	if m.index >= len(m.curRDM.Data) {
		m.setState(StateIdle)
		return
	}
	m.curRDM.Data[m.index] = b
	m.index++
	m.discIndex++

	if m.discIndex == proto.DiscoveryChecksumBytes {
		m.curRDM.Len = m.index
		m.curRDM.Discovery = true
		m.rdm.PublishHead()
		m.totals.RDMDelivered.Add(1)
		m.setState(StateIdle)
	}
}

// Stop disarms the slot watchdog and returns the machine to IDLE, for use
// by direction.Controller when receive is being stopped.
func (m *Machine) Stop() {
	m.hw.DisarmSlotTimer()
	m.setState(StateIdle)
}
