// Package usbarmory adapts github.com/usbarmory/tamago's NXP UART and GPIO
// drivers, and the ARM exception/timer primitives, to hal.Hardware for the
// USB armory Mk II. It is the only package in this module that touches bare
// metal; everything above hal.Hardware is hardware-agnostic.
//
// Two things DMX512 needs that tamago's soc/nxp/uart.UART does not expose
// through its public API: BREAK detection on receive and BREAK assertion on
// transmit, and two stop bits instead of tamago's hardcoded one. Both live
// behind bit offsets in the UCR1/UCR2/URXD registers that uart.UART keeps
// unexported, and the register-access helper that could reach them
// (internal/reg) is Go-internal to the tamago module and not importable
// from here. This file reimplements the minimal volatile accessor that
// internal/reg provides, reusing uart's exported bit-offset constants
// (UCR1_SNDBRK, UCR2_STPB, URXD_BRK, ...) so the two stay in lockstep with
// the driver they extend.
//
// Only meant to be used with GOOS=tamago GOARCH=arm.
package usbarmory

import (
	"time"
	"unsafe"

	"github.com/usbarmory/tamago/arm"
	"github.com/usbarmory/tamago/soc/nxp/gpio"
	"github.com/usbarmory/tamago/soc/nxp/uart"

	"github.com/usbarmory/tamago-dmx512/hal"
)

func read32(addr uint32) uint32 {
	return *(*uint32)(unsafe.Pointer(uintptr(addr)))
}

func write32(addr uint32, val uint32) {
	*(*uint32)(unsafe.Pointer(uintptr(addr))) = val
}

func setBit(addr uint32, bit int) {
	write32(addr, read32(addr)|(1<<uint(bit)))
}

func clearBit(addr uint32, bit int) {
	write32(addr, read32(addr)&^(1<<uint(bit)))
}

func testBit(addr uint32, bit int) bool {
	return read32(addr)&(1<<uint(bit)) != 0
}

// Hardware implements hal.Hardware over one tamago UART instance and one
// GPIO pin used as the RS-485 driver-enable line.
type Hardware struct {
	uart   *uart.UART
	dirPin *gpio.Pin

	start time.Time

	rxHandler func(hal.RxEvent)

	slotFn, ppsFn func()
	slotDeadline  int64
	ppsDeadline   int64
	slotArmed     bool
	ppsArmed      bool
	fiqEnabled    bool
	breakAsserted bool
}

// New builds a Hardware adapter over an already-configured UART instance
// (e.g. imx6ul.UART2) and an already-initialized GPIO pin used to drive the
// RS-485 transceiver's DE/RE line. Neither is touched until ConfigureUART
// and SetDirection are called, mirroring how tamago board packages leave
// pin muxing to board-specific init code (see soc/nxp gpio/uart examples).
//
// time.Now only reads true microseconds on this board because tamago wires
// runtime.nanotime1 to the ARM generic timer during early boot (see
// arm.InitGenericTimers); New captures that monotonic origin once so
// NowMicros can report elapsed time as a plain uint32 offset.
func New(u *uart.UART, dirPin *gpio.Pin) *Hardware {
	return &Hardware{uart: u, dirPin: dirPin, start: time.Now()}
}

// base register addresses, derived from the UART's public Base field using
// uart's exported offset constants.
func (h *Hardware) reg(off uint32) uint32 { return h.uart.Base + off }

// ConfigureUART initializes the UART at the given baud rate for 8 data
// bits, no parity, two stop bits (DMX512 is 8-N-2; tamago's uart.Init
// defaults to one stop bit, so UCR2_STPB is set immediately after).
func (h *Hardware) ConfigureUART(baud uint32) error {
	h.uart.Baudrate = baud
	h.uart.Init()
	setBit(h.reg(uart.UARTx_UCR2), uart.UCR2_STPB)
	return nil
}

func (h *Hardware) SetRxHandler(fn func(hal.RxEvent)) {
	h.rxHandler = fn
}

// WriteByte blocks, busy-polling the TX FIFO-full flag, exactly as
// uart.UART.Tx does; tx.Machine already treats this call as the thing it
// busy-polls TxBusy() around, so WriteByte itself never needs to report
// busy once it returns.
func (h *Hardware) WriteByte(b byte) {
	h.uart.Tx(b)
}

// TxBusy reports whether the TX FIFO is full, i.e. has no room for another
// character. Mirrors uart.UART's unexported txFull check via the same
// register. It does not report whether the FIFO and shift register have
// drained: it reads false as soon as one FIFO entry is free, even while
// earlier characters are still being shifted out.
func (h *Hardware) TxBusy() bool {
	return testBit(h.reg(uart.UARTx_UTS), uart.UTS_TXFULL)
}

// SendBreak asserts or deasserts a BREAK condition on the line by toggling
// UCR1_SNDBRK, the "send break" control bit tamago's uart package defines
// but never drives.
func (h *Hardware) SendBreak(on bool) {
	if on {
		setBit(h.reg(uart.UARTx_UCR1), uart.UCR1_SNDBRK)
	} else {
		clearBit(h.reg(uart.UARTx_UCR1), uart.UCR1_SNDBRK)
	}
	h.breakAsserted = on
}

// SetDirection drives the RS-485 transceiver's direction pin: high for
// transmit (driver enabled), low for receive (driver in high-Z, receiver
// enabled), following the usual half-duplex RS-485 DE/RE wiring.
func (h *Hardware) SetDirection(transmit bool) {
	if transmit {
		h.dirPin.High()
	} else {
		h.dirPin.Low()
	}
}

func (h *Hardware) DisableFIQ() {
	h.fiqEnabled = false
}

func (h *Hardware) EnableFIQ() {
	h.fiqEnabled = true
}

// NowMicros returns microseconds elapsed since this Hardware was
// constructed, backed by the ARM generic timer via tamago's runtime.nanotime1
// wiring (arm.InitGenericTimers must have been called during board
// bring-up).
func (h *Hardware) NowMicros() uint32 {
	return uint32(time.Since(h.start).Microseconds())
}

// ArmSlotTimer and ArmPPSTimer record a deadline and callback; the actual
// firing happens from poll, called from the timer IRQ vector installed by
// Install. Two independent deadlines exist because the slot watchdog and
// the once-a-second PPS sampler are logically distinct, even though on
// this board both ride the same physical timer interrupt.
func (h *Hardware) ArmSlotTimer(atMicros uint32, fn func()) {
	h.slotDeadline = int64(atMicros)
	h.slotFn = fn
	h.slotArmed = true
}

func (h *Hardware) DisarmSlotTimer() {
	h.slotArmed = false
}

func (h *Hardware) ArmPPSTimer(atMicros uint32, fn func()) {
	h.ppsDeadline = int64(atMicros)
	h.ppsFn = fn
	h.ppsArmed = true
}

func (h *Hardware) DisarmPPSTimer() {
	h.ppsArmed = false
}

// poll is called from the timer IRQ vector on every tick; it fires any
// armed deadline that has passed. The real hardware timer this module was
// modeled on free-runs at a fixed period well under the tightest deadline
// DMX512 requires (the inter-slot ceiling), so a poll loop rather than a
// one-shot compare-and-reprogram is sufficient and is what the teacher's
// own GIC/timer init does for its own periodic work.
func (h *Hardware) poll() {
	now := int64(h.NowMicros())

	if h.slotArmed && now >= h.slotDeadline {
		h.slotArmed = false
		if fn := h.slotFn; fn != nil {
			fn()
		}
	}

	if h.ppsArmed && now >= h.ppsDeadline {
		h.ppsArmed = false
		if fn := h.ppsFn; fn != nil {
			fn()
		}
	}
}

// rx is called from the FIQ vector on every UART RX event. It reads the
// raw URXD register directly, rather than through uart.UART.Rx, because
// Rx masks everything down to a (byte, valid) pair and discards the BREAK
// flag this driver needs.
func (h *Hardware) rx() {
	if !h.fiqEnabled || h.rxHandler == nil {
		return
	}

	urxd := read32(h.reg(uart.UARTx_URXD))

	if urxd&(1<<uart.URXD_BRK) != 0 {
		h.rxHandler(hal.RxEvent{Break: true})
		return
	}

	if urxd&(1<<uart.URXD_CHARRDY) == 0 {
		return
	}

	if urxd&(1<<uart.URXD_ERR) != 0 {
		return
	}

	h.rxHandler(hal.RxEvent{Byte: byte(urxd & 0xff)})
}

// Install overrides the ARM exception vector table so that FIQ exceptions
// dispatch to this UART's rx handler and IRQ exceptions dispatch to the
// timer poll loop. Only one Hardware instance may be installed at a time,
// matching the single-UART assumption of the rest of this module.
func (h *Hardware) Install() {
	arm.ExceptionHandler(func(off int) {
		switch off {
		case arm.FIQ:
			h.rx()
		case arm.IRQ:
			h.poll()
		}
	})
}
