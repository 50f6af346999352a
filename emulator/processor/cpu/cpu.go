/*
Copyright (c) 2024-2026 The Zenix Authors

This software is provided 'as-is', without any express or implied
warranty. In no event will the authors be held liable for any damages
arising from the use of this software.

Permission is granted to anyone to use this software for any purpose,
including commercial applications, and to alter it and redistribute it
freely, subject to the following restrictions:

1. The origin of this software must not be misrepresented; you must not
   claim that you wrote the original software. If you use this software
   in a product, an acknowledgment in the product documentation would be
   appreciated but is not required.
2. Altered source versions must be plainly marked as such, and must not be
   misrepresented as being the original software.
3. This notice may not be removed or altered from any source distribution.
*/

package cpu

import (
	"errors"

	"github.com/normalform/zenix/emulator/interrupt"
	"github.com/normalform/zenix/emulator/memory"
	"github.com/normalform/zenix/emulator/processor"
	"github.com/normalform/zenix/emulator/processor/trace"
)

var (
	ErrNoMemory              = errors.New("cpu: no memory attached")
	ErrNoInterruptController = errors.New("cpu: no interrupt controller attached")
)

// Fixed T-state costs of the interrupt acknowledge sequences.
const (
	cyclesNMI  = 11
	cyclesIM0  = 13
	cyclesIM1  = 13
	cyclesIM2  = 19
	cyclesHalt = 4
)

// CPU is the Z80 instruction engine. Step is synchronous and must only
// be called from one goroutine; the interrupt controller is the only
// state shared with other threads.
type CPU struct {
	processor.Registers

	mem memory.Memory
	ic  *interrupt.Controller

	cycles uint64
	stats  processor.Stats
}

func NewCPU(mem memory.Memory, ic *interrupt.Controller) (*CPU, error) {
	if mem == nil {
		return nil, ErrNoMemory
	}
	if ic == nil {
		return nil, ErrNoInterruptController
	}
	return &CPU{mem: mem, ic: ic}, nil
}

func (p *CPU) Reset() {
	p.Registers.Reset()
	p.SP = p.mem.RAMTop()
	p.cycles = 0
	p.stats = processor.Stats{}
	p.ic.Reset()
}

// Cycles is the number of T-states elapsed since the last Reset.
func (p *CPU) Cycles() uint64 {
	return p.cycles
}

func (p *CPU) GetRegisters() *processor.Registers {
	return &p.Registers
}

func (p *CPU) GetInterruptController() *interrupt.Controller {
	return p.ic
}

func (p *CPU) GetStats() processor.Stats {
	s := p.stats
	p.stats = processor.Stats{}
	return s
}

func (p *CPU) Break() {
	p.Debug = true
}

// Step executes one instruction boundary: advance the EI delay, let the
// controller divert control flow to an interrupt, otherwise idle through
// HALT or fetch, decode and execute the next opcode. Returns the T-state
// cost of whatever happened.
func (p *CPU) Step() (int, error) {
	p.ic.BeforeInstruction()

	if req, ok := p.ic.ShouldProcessInterrupt(); ok {
		return p.HandleInterrupt(req)
	}

	if p.Halted {
		p.cycles += cyclesHalt
		return cyclesHalt, nil
	}

	pc := p.PC
	op := p.fetchByte()
	cycles, err := p.execute(op)
	if err != nil {
		return 0, err
	}

	p.cycles += uint64(cycles)
	p.stats.NumInstructions++
	trace.Push(trace.Event{PC: pc, Opcode: op, Cycles: cycles, After: p.Registers})
	return cycles, nil
}

// HandleInterrupt performs the service sequence for a request selected
// by the controller: push PC, jump to the service address, wake from
// HALT and charge the mode-specific fixed cost.
//
// In Mode 0 the acknowledge byte is decoded only if it matches the RST
// pattern 11xxx111; any other byte falls back to the IM1 vector. Real
// hardware would execute whatever the device places on the bus, so this
// is a known simplification, not faithful Z80 bus behavior.
func (p *CPU) HandleInterrupt(req interrupt.Request) (int, error) {
	instr, vector, err := p.ic.ProcessInterrupt(req)
	if err != nil {
		return 0, err
	}

	p.Halted = false
	p.pushWord(p.PC)

	cycles := cyclesNMI
	if req.Type == interrupt.NonMaskable {
		p.PC = vector
	} else {
		switch p.ic.InterruptMode() {
		case interrupt.Mode0:
			if instr&0xC7 == 0xC7 { // RST: 11xxx111
				p.PC = uint16(instr & 0x38)
			} else {
				p.PC = interrupt.VectorIM1
			}
			cycles = cyclesIM0
		case interrupt.Mode1:
			p.PC = vector
			cycles = cyclesIM1
		default:
			p.PC = vector
			cycles = cyclesIM2
		}
	}

	p.cycles += uint64(cycles)
	p.stats.NumInterrupts++
	trace.Push(trace.Event{PC: p.PC, Opcode: instr, Interrupt: true, Cycles: cycles, After: p.Registers})
	return cycles, nil
}

func (p *CPU) readMem(addr uint16) byte {
	p.stats.RX++
	return p.mem.ReadByte(addr)
}

func (p *CPU) writeMem(addr uint16, data byte) {
	p.stats.TX++
	p.mem.WriteByte(addr, data)
}

func (p *CPU) fetchByte() byte {
	v := p.readMem(p.PC)
	p.PC++
	return v
}

func (p *CPU) fetchWord() uint16 {
	lo := p.fetchByte()
	hi := p.fetchByte()
	return uint16(hi)<<8 | uint16(lo)
}

func (p *CPU) pushWord(v uint16) {
	p.SP--
	p.writeMem(p.SP, byte(v>>8))
	p.SP--
	p.writeMem(p.SP, byte(v))
}

func (p *CPU) popWord() uint16 {
	lo := p.readMem(p.SP)
	p.SP++
	hi := p.readMem(p.SP)
	p.SP++
	return uint16(hi)<<8 | uint16(lo)
}
