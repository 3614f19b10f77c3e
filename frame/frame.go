// Package frame defines the ring-buffer payload types produced by the
// receive state machine and consumed by foreground callers: one fixed
// 513-byte DMX slot buffer and one fixed RDM message buffer, each
// carrying its own per-frame timing statistics.
package frame

import "github.com/usbarmory/tamago-dmx512/proto"

// DMX is one received (or staged-for-transmit) DMX512 packet: the start
// code plus up to 512 data slots, with per-frame timing statistics filled
// in by the receive state machine.
//
// A DMX value is owned exclusively by its producer until the owning ring
// slot is published; after that it is immutable until the ring reuses the
// slot for a later frame.
type DMX struct {
	Data [proto.DMXFrameSize]byte

	// SlotsInPacket is the number of data slots received, excluding the
	// start code: 0 <= SlotsInPacket <= 512. It is the authoritative
	// frame length and is set before the slot is published.
	SlotsInPacket int

	// SlotToSlotUs is the time between the start bits of the last two
	// slots received, clamped to >= proto.SlotToSlotFloorUs.
	SlotToSlotUs uint32

	// BreakToBreakUs is the time since the previous DMX frame's BREAK
	// start, or zero for the first DMX frame of a sequence.
	BreakToBreakUs uint32
}

// Reset clears a DMX slot for reuse without reallocating its backing array.
func (f *DMX) Reset() {
	f.SlotsInPacket = 0
	f.SlotToSlotUs = 0
	f.BreakToBreakUs = 0
}

// Payload returns the data slots received so far (excluding the start code).
func (f *DMX) Payload() []byte {
	if f.SlotsInPacket <= 0 {
		return nil
	}
	return f.Data[1 : 1+f.SlotsInPacket]
}

// RDM is one received RDM frame: either a GET/SET request/response or a
// discovery reply, sized for the largest message this driver accepts.
type RDM struct {
	Data [proto.RDMBufferSize]byte

	// Len is the number of valid bytes in Data, including start code and
	// (for non-discovery frames) the trailing checksum.
	Len int

	// Discovery is true when Data holds a discovery reply (0xFE preamble
	// + 0xAA delimiter + EUID + checksum) rather than a checksummed RDM
	// message.
	Discovery bool
}

// Reset clears an RDM slot for reuse without reallocating its backing array.
func (f *RDM) Reset() {
	f.Len = 0
	f.Discovery = false
}

// Payload returns the valid bytes of the frame.
func (f *RDM) Payload() []byte {
	if f.Len <= 0 {
		return nil
	}
	return f.Data[:f.Len]
}
