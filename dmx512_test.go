package dmx512

import (
	"testing"

	"github.com/usbarmory/tamago-dmx512/direction"
	"github.com/usbarmory/tamago-dmx512/hal/haltest"
	"github.com/usbarmory/tamago-dmx512/proto"
)

// feedOneSlotDMXFrame drives a minimal one-slot DMX frame (BREAK, start
// code, one data byte) through to finalization via the slot watchdog,
// starting at t0 microseconds.
func feedOneSlotDMXFrame(hw *haltest.Hardware, t0 uint32, slot byte) {
	hw.FeedBreak(t0)
	hw.FeedByte(t0+100, proto.StartCodeDMX)
	hw.FeedByte(t0+150, slot)
	hw.AdvanceSlotTimer(t0 + 250)
}

func TestInitConfiguresUARTAndDefaultsToReceive(t *testing.T) {
	hw := haltest.New()
	d := New(hw)

	if err := d.Init(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hw.ConfiguredAt != dmxBaud {
		t.Fatalf("expected UART configured at %d baud, got %d", dmxBaud, hw.ConfiguredAt)
	}
	if hw.Transmit {
		t.Fatal("expected default direction to be receive")
	}

	// Init is idempotent
	hw.ConfiguredAt = 0
	if err := d.Init(); err != nil {
		t.Fatalf("unexpected error on second Init: %v", err)
	}
	if hw.ConfiguredAt != 0 {
		t.Fatal("expected second Init to be a no-op")
	}
}

func TestGetAvailableDMXPopsOldestFrame(t *testing.T) {
	hw := haltest.New()
	d := New(hw)
	d.Init()
	d.SetDirection(direction.Receive, true)

	feedOneSlotDMXFrame(hw, 1000, 0x42)

	f, ok := d.GetAvailableDMX()
	if !ok {
		t.Fatal("expected a frame to be available")
	}
	if f.SlotsInPacket != 1 || f.Data[1] != 0x42 {
		t.Fatalf("unexpected frame: slots=%d data=%v", f.SlotsInPacket, f.Data[:2])
	}

	if _, ok := d.GetAvailableDMX(); ok {
		t.Fatal("expected no second frame available")
	}
}

func TestIsDataChangedOnlyReturnsOnDifference(t *testing.T) {
	hw := haltest.New()
	d := New(hw)
	d.Init()
	d.SetDirection(direction.Receive, true)

	feedOneSlotDMXFrame(hw, 1000, 0x10)
	if _, ok := d.IsDataChanged(); !ok {
		t.Fatal("expected the first frame to report changed")
	}

	feedOneSlotDMXFrame(hw, 2000, 0x10)
	if _, ok := d.IsDataChanged(); ok {
		t.Fatal("expected an identical frame to report unchanged")
	}

	feedOneSlotDMXFrame(hw, 3000, 0x11)
	if _, ok := d.IsDataChanged(); !ok {
		t.Fatal("expected a differing frame to report changed")
	}
}

func TestSetSendDataTransmitsOverTheLine(t *testing.T) {
	hw := haltest.New()
	d := New(hw)
	d.Init()

	d.SetSendData([]byte{proto.StartCodeDMX, 0x01, 0x02, 0x03}, 4)
	d.SetDirection(direction.Transmit, true)

	// walk IDLE -> BREAK -> MAB -> (data, back to IDLE)
	for i := 0; i < 3; i++ {
		if !hw.AdvanceSlotTimer(0) {
			t.Fatalf("expected a pending TX tick at step %d", i)
		}
	}

	if len(hw.Written) != 4 {
		t.Fatalf("expected 4 bytes written, got %d: %v", len(hw.Written), hw.Written)
	}
	if hw.Written[0] != proto.StartCodeDMX || hw.Written[3] != 0x03 {
		t.Fatalf("unexpected bytes written: %v", hw.Written)
	}
}

func TestRingDroppedCountersAdvanceOnOverrun(t *testing.T) {
	hw := haltest.New()
	d := New(hw)
	d.Init()
	d.SetDirection(direction.Receive, true)

	// dmxRingSize is 4 and the ring keeps one slot free, so the 4th and
	// 5th unconsumed frames must be counted as dropped rather than
	// evicting a committed one.
	for i := 0; i < dmxRingSize+1; i++ {
		feedOneSlotDMXFrame(hw, uint32(1000*(i+1)), byte(i))
	}

	if got := d.DMXRingDropped(); got == 0 {
		t.Fatal("expected at least one dropped DMX frame")
	}
}

func TestGetTotalStatisticsReflectsDeliveredFrames(t *testing.T) {
	hw := haltest.New()
	d := New(hw)
	d.Init()
	d.SetDirection(direction.Receive, true)

	feedOneSlotDMXFrame(hw, 1000, 0x01)
	feedOneSlotDMXFrame(hw, 2000, 0x02)

	snap := d.GetTotalStatistics()
	if snap.DMXPackets != 2 || snap.DMXDelivered != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
