package rx

import (
	"testing"

	"github.com/usbarmory/tamago-dmx512/frame"
	"github.com/usbarmory/tamago-dmx512/hal/haltest"
	"github.com/usbarmory/tamago-dmx512/proto"
	"github.com/usbarmory/tamago-dmx512/ring"
	"github.com/usbarmory/tamago-dmx512/stats"
)

func newMachine() (*Machine, *haltest.Hardware, *ring.Ring[frame.DMX], *ring.Ring[frame.RDM], *stats.Totals) {
	hw := haltest.New()
	dmx := ring.New[frame.DMX](4, func(f *frame.DMX) { f.Reset() })
	rdm := ring.New[frame.RDM](4, func(f *frame.RDM) { f.Reset() })
	totals := &stats.Totals{}
	m := New(hw, dmx, rdm, totals)
	hw.SetRxHandler(m.HandleEvent)
	return m, hw, dmx, rdm, totals
}

func TestDMXFrameFinalizedByWatchdogOnTruncatedPacket(t *testing.T) {
	m, hw, dmx, _, totals := newMachine()

	hw.FeedBreak(0)
	hw.FeedByte(100, proto.StartCodeDMX)
	hw.FeedByte(144, 0x11)
	hw.FeedByte(188, 0x22)

	if ok := hw.AdvanceSlotTimer(188 + proto.SlotToSlotFloorUs + 12 + 1); !ok {
		t.Fatal("expected slot watchdog to be armed")
	}

	if hw.AdvanceSlotTimer(0) {
		t.Fatal("expected nothing armed after the frame was finalized on the previous fire")
	}

	f, ok := dmx.PeekTail()
	if !ok {
		t.Fatal("expected a finalized DMX frame")
	}
	if f.SlotsInPacket != 2 {
		t.Fatalf("expected 2 slots, got %d", f.SlotsInPacket)
	}
	if got := f.Payload(); len(got) != 2 || got[0] != 0x11 || got[1] != 0x22 {
		t.Fatalf("unexpected payload %v", got)
	}
	if totals.DMXPackets.Load() != 1 || totals.DMXDelivered.Load() != 1 {
		t.Fatalf("unexpected counters: packets=%d delivered=%d", totals.DMXPackets.Load(), totals.DMXDelivered.Load())
	}
	if m.State() != StateIdle {
		t.Fatalf("expected IDLE after finalize, got %s", m.State())
	}
}

func TestDMXFullUniverseFinalizesOnLastSlot(t *testing.T) {
	_, hw, dmx, _, totals := newMachine()

	hw.FeedBreak(0)
	hw.FeedByte(100, proto.StartCodeDMX)

	at := uint32(144)
	for i := 0; i < proto.DMXUniverseSize; i++ {
		hw.FeedByte(at, byte(i))
		at += proto.SlotToSlotFloorUs
	}

	f, ok := dmx.PeekTail()
	if !ok {
		t.Fatal("expected a published full-universe frame")
	}
	if f.SlotsInPacket != proto.DMXUniverseSize {
		t.Fatalf("expected %d slots, got %d", proto.DMXUniverseSize, f.SlotsInPacket)
	}
	if totals.DMXDelivered.Load() != 1 {
		t.Fatalf("expected 1 delivered frame, got %d", totals.DMXDelivered.Load())
	}
}

func TestRDMFrameWithValidChecksumIsPublished(t *testing.T) {
	_, hw, _, rdm, totals := newMachine()

	msg := rdmMessage(t)

	hw.FeedBreak(0)
	hw.FeedByte(100, proto.StartCodeRDM)
	at := uint32(144)
	for _, b := range msg[1:] {
		hw.FeedByte(at, b)
		at += 44
	}

	f, ok := rdm.PeekTail()
	if !ok {
		t.Fatal("expected a published RDM frame")
	}
	if f.Discovery {
		t.Fatal("expected a non-discovery RDM frame")
	}
	if f.Len != len(msg) {
		t.Fatalf("expected len %d, got %d", len(msg), f.Len)
	}
	if totals.RDMDelivered.Load() != 1 {
		t.Fatalf("expected 1 delivered RDM frame, got %d", totals.RDMDelivered.Load())
	}
}

func TestRDMFrameWithBadChecksumIsDropped(t *testing.T) {
	_, hw, _, rdm, totals := newMachine()

	msg := rdmMessage(t)
	msg[len(msg)-1] ^= 0xff // corrupt checksum low byte

	hw.FeedBreak(0)
	hw.FeedByte(100, proto.StartCodeRDM)
	at := uint32(144)
	for _, b := range msg[1:] {
		hw.FeedByte(at, b)
		at += 44
	}

	if _, ok := rdm.PeekTail(); ok {
		t.Fatal("expected no frame published for bad checksum")
	}
	if totals.RDMDelivered.Load() != 0 {
		t.Fatalf("expected 0 delivered frames, got %d", totals.RDMDelivered.Load())
	}
}

// rdmMessage builds a minimal well-formed RDM message: start code, sub
// start code, message_length, then enough filler bytes to reach
// message_length, followed by a correct 16-bit checksum.
func rdmMessage(t *testing.T) []byte {
	t.Helper()

	const msgLen = 10
	msg := make([]byte, msgLen+2)
	msg[0] = proto.StartCodeRDM
	msg[1] = proto.RDMSubStartCode
	msg[2] = msgLen
	for i := 3; i < msgLen; i++ {
		msg[i] = byte(i)
	}

	var sum uint16
	for _, b := range msg[:msgLen] {
		sum += uint16(b)
	}
	msg[msgLen] = byte(sum >> 8)
	msg[msgLen+1] = byte(sum & 0xff)

	return msg
}

func TestDiscoveryReplyIsPublished(t *testing.T) {
	_, hw, _, rdm, totals := newMachine()

	hw.FeedByte(0, proto.StartCodeDiscovery)
	hw.FeedByte(4, proto.StartCodeDiscovery)
	hw.FeedByte(8, proto.DiscoveryDelimiter)

	euid := [12]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	at := uint32(12)
	for _, b := range euid {
		hw.FeedByte(at, b)
		at += 44
	}
	for i := 0; i < proto.DiscoveryChecksumBytes; i++ {
		hw.FeedByte(at, 0x00)
		at += 44
	}

	f, ok := rdm.PeekTail()
	if !ok {
		t.Fatal("expected a published discovery reply")
	}
	if !f.Discovery {
		t.Fatal("expected Discovery to be true")
	}
	if totals.RDMPackets.Load() != 1 || totals.RDMDelivered.Load() != 1 {
		t.Fatalf("unexpected counters: packets=%d delivered=%d", totals.RDMPackets.Load(), totals.RDMDelivered.Load())
	}
}
