// Command dmxmon drives a simulated DMX512/RDM line (board/sim) for
// development and demonstration on a host machine, where no USB armory and
// no real UART are present. It generates a synthetic DMX stream at a
// configurable rate, injects an occasional RDM discovery reply, and prints
// frame and statistics activity to stderr as it arrives.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/time/rate"

	dmx512 "github.com/usbarmory/tamago-dmx512"
	"github.com/usbarmory/tamago-dmx512/board/sim"
	"github.com/usbarmory/tamago-dmx512/direction"
	"github.com/usbarmory/tamago-dmx512/proto"
)

func mainImpl() error {
	slots := flag.Int("slots", 32, "number of DMX slots to generate per frame (1-512)")
	rateHz := flag.Float64("rate", 40, "synthetic DMX frames per second")
	seconds := flag.Int("seconds", 5, "how long to run before exiting")
	discovery := flag.Bool("discovery", false, "inject one RDM discovery reply partway through the run")
	flag.Parse()

	if *slots < 1 || *slots > proto.DMXUniverseSize {
		return fmt.Errorf("dmxmon: slots must be in [1, %d]", proto.DMXUniverseSize)
	}

	hw := sim.New()
	defer hw.Close()

	hw.Limiter = rate.NewLimiter(rate.Limit(250_000/10), 64)

	drv := dmx512.New(hw)
	if err := drv.Init(); err != nil {
		return fmt.Errorf("dmxmon: init: %w", err)
	}

	drv.SetDirection(direction.Receive, true)

	deadline := time.Now().Add(time.Duration(*seconds) * time.Second)
	tick := time.NewTicker(time.Second / time.Duration(*rateHz))
	defer tick.Stop()

	go generateDMX(hw, *slots, *rateHz)

	if *discovery {
		go func() {
			time.Sleep(time.Duration(*seconds) * time.Second / 2)
			injectDiscoveryReply(hw)
		}()
	}

	report := time.NewTicker(time.Second)
	defer report.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-tick.C:
			if f, ok := drv.IsDataChanged(); ok {
				log.Printf("dmx: %d slots, first=%v", f.SlotsInPacket, f.Payload()[:min(8, f.SlotsInPacket)])
			}
			if r, ok := drv.GetAvailableRDM(); ok {
				log.Printf("rdm: %d bytes, discovery=%v", r.Len, r.Discovery)
			}
		case <-report.C:
			snap := drv.GetTotalStatistics()
			log.Printf("stats: dmx=%d rdm=%d dmx_dropped=%d rdm_dropped=%d ups=%d state=%s",
				snap.DMXPackets, snap.RDMPackets, snap.DMXDropped, snap.RDMDropped,
				drv.GetUpdatesPerSecond(), drv.GetReceiveState())
		}
	}

	return nil
}

// generateDMX injects a slowly-ramping synthetic DMX universe onto the
// simulated line, framed exactly as a real transmitter would: BREAK, start
// code, slots, rateHz frames per second.
func generateDMX(hw *sim.Hardware, slots int, rateHz float64) {
	var level byte
	interval := time.Duration(float64(time.Second) / rateHz)

	for {
		hw.InjectBreak()

		buf := make([]byte, slots+1)
		buf[0] = proto.StartCodeDMX
		for i := 1; i <= slots; i++ {
			buf[i] = level
		}

		for _, b := range buf {
			hw.InjectByte(b)
		}

		level++
		time.Sleep(interval)
	}
}

// injectDiscoveryReply feeds one well-formed RDM discovery unique-branch
// reply (preamble + delimiter + 12-byte interleaved EUID + 4-byte checksum)
// onto the line. Discovery replies have no leading BREAK in the real
// protocol; the state machine's beginDiscovery only needs the 0xFE that
// starts the preamble.
func injectDiscoveryReply(hw *sim.Hardware) {
	for i := 0; i < 4; i++ {
		hw.InjectByte(proto.StartCodeDiscovery)
	}
	hw.InjectByte(proto.DiscoveryDelimiter)

	euid := [12]byte{0xfe, 0xfe, 0xfe, 0xfe, 0xfe, 0xfe, 0xfe, 0xfe, 0xaa, 0xaa, 0xaa, 0xaa}
	for _, b := range euid {
		hw.InjectByte(b)
	}
	// discovery checksum covers only the 12 EUID bytes, per E1.20 5.3.2
	var sum uint16
	for _, b := range euid {
		sum += uint16(b)
	}
	hw.InjectByte(byte(sum >> 8))
	hw.InjectByte(byte(sum & 0xff))
	hw.InjectByte(byte(sum >> 8))
	hw.InjectByte(byte(sum & 0xff))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
