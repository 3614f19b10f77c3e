// Package stats holds the aggregate counters maintained by the receive
// state machine and sampled by the public API: packet totals and the
// once-a-second updates-per-second rate. Snapshot also carries the
// rings' dropped-frame counts, which the caller fills in.
package stats

import "sync/atomic"

// Totals is the single-writer-in-the-RX-ISR, many-reader counter block.
// Readers accept torn reads across the whole struct as statistical only,
// per spec.md §5; individual fields are read and written atomically.
type Totals struct {
	// DMXPackets and RDMPackets count frames *started* (incremented on
	// the BREAK->start-code transition; RDMPackets is also incremented
	// when a discovery reply's first preamble byte arrives), not frames successfully
	// delivered to a consumer. This mirrors the original firmware's
	// counting point; see DMXDelivered/RDMDelivered for the delivered
	// count.
	DMXPackets atomic.Uint32
	RDMPackets atomic.Uint32

	// DMXDelivered and RDMDelivered count frames actually published to
	// their ring, i.e. that survived framing/checksum validation.
	DMXDelivered atomic.Uint32
	RDMDelivered atomic.Uint32

	// UpdatesPerSecond is DMXPackets sampled once a second by the PPS
	// timer and differenced against the previous sample.
	UpdatesPerSecond atomic.Uint32

	prevDMXSample atomic.Uint32
}

// SampleUpdatesPerSecond is called once a second (by rx.PPSCounter) to
// refresh UpdatesPerSecond from the running DMXPackets counter.
func (t *Totals) SampleUpdatesPerSecond() {
	current := t.DMXPackets.Load()
	prev := t.prevDMXSample.Swap(current)
	t.UpdatesPerSecond.Store(current - prev)
}

// Reset zeroes all counters. Permitted only while RX is stopped, per
// spec.md §4.7.
func (t *Totals) Reset() {
	t.DMXPackets.Store(0)
	t.RDMPackets.Store(0)
	t.DMXDelivered.Store(0)
	t.RDMDelivered.Store(0)
	t.UpdatesPerSecond.Store(0)
	t.prevDMXSample.Store(0)
}

// Snapshot is a point-in-time, non-atomic copy of Totals suitable for
// returning from the public API. DMXDropped and RDMDropped are not part
// of Totals: the dropped-frame count is owned by the ring that detects
// the overrun (spec.md §9 open question 3), not by the RX ISR, so the
// caller populates these two fields from ring.Ring[T].Dropped() after
// taking the snapshot.
type Snapshot struct {
	DMXPackets       uint32
	RDMPackets       uint32
	DMXDelivered     uint32
	RDMDelivered     uint32
	DMXDropped       uint32
	RDMDropped       uint32
	UpdatesPerSecond uint32
}

// Snapshot reads every counter into a plain struct for the caller.
// DMXDropped and RDMDropped are left zero; see Snapshot's doc comment.
func (t *Totals) Snapshot() Snapshot {
	return Snapshot{
		DMXPackets:       t.DMXPackets.Load(),
		RDMPackets:       t.RDMPackets.Load(),
		DMXDelivered:     t.DMXDelivered.Load(),
		RDMDelivered:     t.RDMDelivered.Load(),
		UpdatesPerSecond: t.UpdatesPerSecond.Load(),
	}
}
