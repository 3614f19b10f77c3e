package stats

import "testing"

func TestSampleUpdatesPerSecondDiffsAgainstPreviousSample(t *testing.T) {
	var totals Totals

	totals.DMXPackets.Store(10)
	totals.SampleUpdatesPerSecond()
	if got := totals.UpdatesPerSecond.Load(); got != 10 {
		t.Fatalf("expected first sample to be 10, got %d", got)
	}

	totals.DMXPackets.Store(37)
	totals.SampleUpdatesPerSecond()
	if got := totals.UpdatesPerSecond.Load(); got != 27 {
		t.Fatalf("expected second sample to be 27, got %d", got)
	}
}

func TestResetZeroesEverything(t *testing.T) {
	var totals Totals

	totals.DMXPackets.Store(5)
	totals.RDMPackets.Store(3)
	totals.DMXDelivered.Store(5)
	totals.SampleUpdatesPerSecond()

	totals.Reset()

	snap := totals.Snapshot()
	if snap != (Snapshot{}) {
		t.Fatalf("expected zeroed snapshot after Reset, got %+v", snap)
	}

	// a sample taken right after Reset must not see the pre-reset counter
	// as its "previous" value
	totals.DMXPackets.Store(4)
	totals.SampleUpdatesPerSecond()
	if got := totals.UpdatesPerSecond.Load(); got != 4 {
		t.Fatalf("expected post-reset sample to be 4, got %d", got)
	}
}
