package vm

import (
	"io"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
)

// InstrumentedState binds a machine to the host: the UART console, and a logger
// that records traps and, when Trace is set, every executed instruction.
type InstrumentedState struct {
	state *State
	log   log.Logger

	Trace bool
}

func NewInstrumentedState(state *State, console io.Writer, l log.Logger) *InstrumentedState {
	state.UART.Output = console
	return &InstrumentedState{
		state: state,
		log:   l,
	}
}

func (m *InstrumentedState) State() *State {
	return m.state
}

// EnqueueInput hands host keyboard input to the UART. Call it between steps only.
func (m *InstrumentedState) EnqueueInput(b []byte) {
	if len(b) > 0 {
		m.state.UART.EnqueueInput(b)
	}
}

func (m *InstrumentedState) Step() (Status, error) {
	s := m.state
	pc, priv := s.PC, s.Priv
	if m.Trace {
		if ins, ok := Decode(s.Instr()); ok {
			m.log.Trace("exec", "step", s.Step, "pc", hexutil.Uint64(pc), "priv", priv, "insn", ins.String())
		} else {
			m.log.Trace("exec", "step", s.Step, "pc", hexutil.Uint64(pc), "priv", priv, "raw", hexutil.Uint64(s.Instr()))
		}
	}
	status, err := Step(s)
	if t := s.LastTrap(); t.Pending() {
		m.log.Debug("trap", "step", s.Step-1, "pc", hexutil.Uint64(pc), "from", priv,
			"cause", hexutil.Uint64(t.MCause()), "trap", t.String(), "handler", hexutil.Uint64(s.PC))
	}
	switch status {
	case StatusHalted:
		m.log.Debug("halted", "step", s.Step, "exit", s.ExitCode)
	case StatusFault:
		m.log.Error("machine fault", "step", s.Step, "pc", hexutil.Uint64(s.PC), "err", err)
	}
	return status, err
}
