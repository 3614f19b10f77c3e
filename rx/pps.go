package rx

import (
	"github.com/usbarmory/tamago-dmx512/hal"
	"github.com/usbarmory/tamago-dmx512/stats"
)

const ppsIntervalUs = 1_000_000

// PPSCounter samples stats.Totals.UpdatesPerSecond once a second on its
// own timer channel (T_PPS in spec.md §4.4), independent of the slot
// watchdog's channel.
type PPSCounter struct {
	hw     hal.Hardware
	totals *stats.Totals
}

// NewPPSCounter builds a PPS sampler bound to the given hardware and
// counter block.
func NewPPSCounter(hw hal.Hardware, totals *stats.Totals) *PPSCounter {
	return &PPSCounter{hw: hw, totals: totals}
}

// Start arms the first one-second sample.
func (p *PPSCounter) Start() {
	p.arm()
}

// Stop cancels the pending sample.
func (p *PPSCounter) Stop() {
	p.hw.DisarmPPSTimer()
}

func (p *PPSCounter) arm() {
	p.hw.ArmPPSTimer(p.hw.NowMicros()+ppsIntervalUs, p.fire)
}

func (p *PPSCounter) fire() {
	p.totals.SampleUpdatesPerSecond()
	p.arm()
}
