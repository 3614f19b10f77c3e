// Package hal defines the hardware-abstraction boundary this driver
// requires and nothing more: a free-running microsecond clock, two
// single-shot timer channels, a break-aware UART byte stream, a
// direction GPIO, and FIQ enable/disable. Everything on the other side
// of this interface is, per the governing specification, an external
// collaborator: board clock/GPIO/UART register bindings are assumed
// available, not implemented here.
//
// board/usbarmory adapts the github.com/usbarmory/tamago runtime to this
// interface for real hardware. board/sim adapts a goroutine-driven
// software model of the same contract for host-side tests and tooling.
package hal

// RxEvent is one UART receive event: either a data byte, or a BREAK
// condition flagged by the UART framing-error detector. A BREAK event
// carries no byte; Byte is valid only when Break is false.
type RxEvent struct {
	Byte  byte
	Break bool
}

// Hardware is the full contract required by this driver. All methods
// except the timer callbacks and SetRxHandler's installed function may
// be called from foreground code; the RxEvent callback runs in the
// highest-priority interrupt context and must return in well under one
// DMX slot time (44 µs).
type Hardware interface {
	// NowMicros returns a free-running microsecond timestamp. It never
	// blocks and is safe to call from any context.
	NowMicros() uint32

	// ArmSlotTimer schedules fn to run once, at approximately atMicros
	// (NowMicros() clock domain). A second call before fn has fired
	// replaces the pending callback. Runs in interrupt context (not the
	// RX FIQ).
	ArmSlotTimer(atMicros uint32, fn func())
	// DisarmSlotTimer cancels a pending ArmSlotTimer callback, if any.
	DisarmSlotTimer()

	// ArmPPSTimer and DisarmPPSTimer are the same contract as the slot
	// timer, on an independent channel reserved for the once-a-second
	// updates-per-second sample.
	ArmPPSTimer(atMicros uint32, fn func())
	DisarmPPSTimer()

	// ConfigureUART programs the UART for 8 data bits, no parity, two
	// stop bits, BREAK-detect enabled, at the given baud rate (this
	// driver always requests 250000).
	ConfigureUART(baud uint32) error

	// SetRxHandler installs the function invoked once per received
	// character or BREAK condition. It must be set before data is
	// enabled in receive direction.
	SetRxHandler(fn func(RxEvent))

	// WriteByte enqueues one byte for transmission. The caller is
	// responsible for pacing writes against TxBusy.
	WriteByte(b byte)
	// TxBusy reports whether the UART transmit path (FIFO and shift
	// register) still holds unsent data.
	TxBusy() bool
	// SendBreak asserts (true) or deasserts (false) a BREAK condition on
	// the line.
	SendBreak(on bool)

	// SetDirection drives the RS-485 direction pin: true selects
	// transmit (driver enabled), false selects receive (driver
	// disabled, line is high-impedance on this node).
	SetDirection(transmit bool)

	// DisableFIQ and EnableFIQ mask and unmask the UART receive
	// interrupt at the controller level.
	DisableFIQ()
	EnableFIQ()
}
