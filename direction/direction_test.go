package direction

import (
	"testing"

	"github.com/usbarmory/tamago-dmx512/frame"
	"github.com/usbarmory/tamago-dmx512/hal/haltest"
	"github.com/usbarmory/tamago-dmx512/ring"
	"github.com/usbarmory/tamago-dmx512/rx"
	"github.com/usbarmory/tamago-dmx512/stats"
	"github.com/usbarmory/tamago-dmx512/tx"
)

func newController() (*Controller, *haltest.Hardware, *ring.Ring[frame.DMX]) {
	hw := haltest.New()
	dmx := ring.New[frame.DMX](4, func(f *frame.DMX) { f.Reset() })
	rdm := ring.New[frame.RDM](4, func(f *frame.RDM) { f.Reset() })
	totals := &stats.Totals{}

	rxm := rx.New(hw, dmx, rdm, totals)
	pps := rx.NewPPSCounter(hw, totals)
	txm := tx.New(hw)

	return New(hw, rxm, pps, txm, dmx), hw, dmx
}

func TestSetReceiveEnablesFIQAndDriverPin(t *testing.T) {
	c, hw, _ := newController()

	c.Set(Receive, true)

	if hw.FIQDisabled {
		t.Fatal("expected FIQ enabled for receive with data on")
	}
	if hw.Transmit {
		t.Fatal("expected direction pin set to receive")
	}
}

func TestSetTransmitStartsTxAndDisablesFIQ(t *testing.T) {
	c, hw, _ := newController()

	c.Set(Receive, true)
	c.Set(Transmit, true)

	if !hw.Transmit {
		t.Fatal("expected direction pin set to transmit")
	}
	if !hw.FIQDisabled {
		t.Fatal("expected FIQ disabled once receive is stopped")
	}
	if _, armed := hw.SlotArmed(); !armed {
		t.Fatal("expected TX start to arm the first tick")
	}
}

func TestSetAlwaysZeroesDMXRingEvenWhenSwitchingFromTransmit(t *testing.T) {
	c, _, dmx := newController()

	// publish a frame as if it arrived while still receiving
	f := dmx.ReserveHead()
	f.SlotsInPacket = 2
	f.Data[1], f.Data[2] = 0x11, 0x22
	dmx.PublishHead()

	c.Set(Transmit, true)
	// switching TO transmit must already have cleared the ring (spec
	// requires this on every direction change, not just away-from-receive)
	if !dmx.Empty() {
		t.Fatal("expected DMX ring cleared on direction change into transmit")
	}

	// publish again, then switch transmit -> receive: must clear again
	f = dmx.ReserveHead()
	f.SlotsInPacket = 1
	dmx.PublishHead()

	c.Set(Receive, true)
	if !dmx.Empty() {
		t.Fatal("expected DMX ring cleared on direction change into receive")
	}
}

func TestSetWithDataOffLeavesSideUninstalled(t *testing.T) {
	c, hw, _ := newController()

	c.Set(Receive, false)

	if !hw.FIQDisabled {
		t.Fatal("expected FIQ left disabled when data is not enabled")
	}
	if c.installed {
		t.Fatal("expected controller to record no side installed")
	}
}

func TestSetForcesStopWhenTxNeverReturnsToIdle(t *testing.T) {
	c, hw, _ := newController()

	c.Set(Transmit, true)
	// drive the TX machine one tick forward (Idle -> Break) so that, from
	// stopCurrent's perspective, TX is mid-packet; nothing here ever fires
	// another tick, so the machine can never reach Idle on its own and
	// stopCurrent's bounded spin-wait must time out and force the stop.
	if !hw.AdvanceSlotTimer(0) {
		t.Fatal("expected Start to have armed the first TX tick")
	}

	c.Set(Receive, true)

	if hw.Transmit {
		t.Fatal("expected direction pin set to receive after forced stop")
	}
	if hw.FIQDisabled {
		t.Fatal("expected FIQ re-enabled after completing the switch to receive")
	}
}
