package vm

import (
	"io"

	"github.com/rv32emu/rv32emu/rvgo/riscv"
)

// 16550 register offsets
const (
	UARTRegRBR = 0 // receive buffer (read), transmit holding (write)
	UARTRegTHR = 0
	UARTRegIER = 1
	UARTRegIIR = 2 // interrupt identification (read), FIFO control (write)
	UARTRegFCR = 2
	UARTRegLCR = 3
	UARTRegMCR = 4
	UARTRegLSR = 5
	UARTRegMSR = 6
	UARTRegSCR = 7
)

const (
	UARTLSRDataReady = 1 << 0
	UARTLSRTHREmpty  = 1 << 5
	UARTLSRTxEmpty   = 1 << 6

	UARTIERRxAvail = 1 << 0

	UARTIIRNone   = 0x01
	UARTIIRRxData = 0x04
	UARTIIRFIFO   = 0xc0

	UARTLCRDLAB = 1 << 7
)

// UART is a 16550-style console. Transmit never blocks: LSR always reports the
// transmitter empty. Received bytes come from the host through EnqueueInput.
type UART struct {
	IER uint8 `json:"ier"`
	FCR uint8 `json:"fcr"`
	LCR uint8 `json:"lcr"`
	MCR uint8 `json:"mcr"`
	SCR uint8 `json:"scr"`
	DLL uint8 `json:"dll"`
	DLM uint8 `json:"dlm"`

	Input []byte `json:"input,omitempty"`

	Output io.Writer `json:"-"`
}

func NewUART(output io.Writer) *UART {
	return &UART{Output: output}
}

func (u *UART) Size() uint32 {
	return riscv.UARTSize
}

func (u *UART) EnqueueInput(b []byte) {
	u.Input = append(u.Input, b...)
}

func (u *UART) rxInterrupt() bool {
	return u.IER&UARTIERRxAvail != 0 && len(u.Input) > 0
}

// Pending returns MEIP while a receive interrupt is enabled and data is waiting.
// There is no PLIC: the UART line drives the machine external interrupt directly.
func (u *UART) Pending() uint32 {
	if u.rxInterrupt() {
		return riscv.MipMEIP
	}
	return 0
}

func (u *UART) dlab() bool {
	return u.LCR&UARTLCRDLAB != 0
}

// Load and Store address single byte registers. Wider accesses use the low byte.
func (u *UART) Load(offset uint32, size int) (uint32, error) {
	switch offset {
	case UARTRegRBR:
		if u.dlab() {
			return uint32(u.DLL), nil
		}
		if len(u.Input) == 0 {
			return 0, nil
		}
		b := u.Input[0]
		u.Input = u.Input[1:]
		if len(u.Input) == 0 {
			u.Input = nil
		}
		return uint32(b), nil
	case UARTRegIER:
		if u.dlab() {
			return uint32(u.DLM), nil
		}
		return uint32(u.IER), nil
	case UARTRegIIR:
		iir := uint32(UARTIIRNone)
		if u.rxInterrupt() {
			iir = UARTIIRRxData
		}
		if u.FCR&1 != 0 {
			iir |= UARTIIRFIFO
		}
		return iir, nil
	case UARTRegLCR:
		return uint32(u.LCR), nil
	case UARTRegMCR:
		return uint32(u.MCR), nil
	case UARTRegLSR:
		lsr := uint32(UARTLSRTHREmpty | UARTLSRTxEmpty)
		if len(u.Input) > 0 {
			lsr |= UARTLSRDataReady
		}
		return lsr, nil
	case UARTRegMSR:
		return 0, nil
	case UARTRegSCR:
		return uint32(u.SCR), nil
	}
	return 0, nil
}

func (u *UART) Store(offset uint32, size int, value uint32) error {
	b := uint8(value)
	switch offset {
	case UARTRegTHR:
		if u.dlab() {
			u.DLL = b
			return nil
		}
		if u.Output != nil {
			if _, err := u.Output.Write([]byte{b}); err != nil {
				return err
			}
		}
	case UARTRegIER:
		if u.dlab() {
			u.DLM = b
			return nil
		}
		u.IER = b & 0x0f
	case UARTRegFCR:
		u.FCR = b
		if b&0x02 != 0 {
			u.Input = nil
		}
	case UARTRegLCR:
		u.LCR = b
	case UARTRegMCR:
		u.MCR = b
	case UARTRegSCR:
		u.SCR = b
	}
	return nil
}

var _ Device = (*UART)(nil)
