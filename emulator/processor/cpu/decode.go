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
	"fmt"

	"github.com/normalform/zenix/emulator/interrupt"
	"github.com/normalform/zenix/emulator/processor"
)

// Register operand encoding used by the LD/ALU/INC/DEC opcode blocks.
// Index 6 addresses memory through HL.
const regIndirect = 6

func (p *CPU) getReg8(idx byte) byte {
	switch idx {
	case 0:
		return p.B
	case 1:
		return p.C
	case 2:
		return p.D
	case 3:
		return p.E
	case 4:
		return p.H
	case 5:
		return p.L
	case regIndirect:
		return p.readMem(p.HL())
	default:
		return p.A
	}
}

func (p *CPU) setReg8(idx byte, v byte) {
	switch idx {
	case 0:
		p.B = v
	case 1:
		p.C = v
	case 2:
		p.D = v
	case 3:
		p.E = v
	case 4:
		p.H = v
	case 5:
		p.L = v
	case regIndirect:
		p.writeMem(p.HL(), v)
	default:
		p.A = v
	}
}

// 16-bit pair encoding for LD rr,nn / INC rr / DEC rr / ADD HL,rr.
func (p *CPU) getPair(idx byte) uint16 {
	switch idx {
	case 0:
		return p.BC()
	case 1:
		return p.DE()
	case 2:
		return p.HL()
	default:
		return p.SP
	}
}

func (p *CPU) setPair(idx byte, v uint16) {
	switch idx {
	case 0:
		p.SetBC(v)
	case 1:
		p.SetDE(v)
	case 2:
		p.SetHL(v)
	default:
		p.SP = v
	}
}

// alu applies accumulator operation fn (the middle bits of the 0x80-0xBF
// block) to v. Only the Zero and Carry flags are maintained.
func (p *CPU) alu(fn, v byte) {
	switch fn {
	case 0, 1: // ADD/ADC
		carry := uint16(0)
		if fn == 1 && p.F.GetBool(processor.Carry) {
			carry = 1
		}
		r := uint16(p.A) + uint16(v) + carry
		p.A = byte(r)
		p.F.SetBool(processor.Carry, r > 0xFF)
		p.F.SetBool(processor.Zero, p.A == 0)
	case 2, 3, 7: // SUB/SBC/CP
		borrow := uint16(0)
		if fn == 3 && p.F.GetBool(processor.Carry) {
			borrow = 1
		}
		r := uint16(p.A) - uint16(v) - borrow
		p.F.SetBool(processor.Carry, r > 0xFF)
		p.F.SetBool(processor.Zero, byte(r) == 0)
		if fn != 7 { // CP discards the result
			p.A = byte(r)
		}
	case 4: // AND
		p.A &= v
		p.F.Clear(processor.Carry)
		p.F.SetBool(processor.Zero, p.A == 0)
	case 5: // XOR
		p.A ^= v
		p.F.Clear(processor.Carry)
		p.F.SetBool(processor.Zero, p.A == 0)
	case 6: // OR
		p.A |= v
		p.F.Clear(processor.Carry)
		p.F.SetBool(processor.Zero, p.A == 0)
	}
}

func (p *CPU) inc8(v byte) byte {
	v++
	p.F.SetBool(processor.Zero, v == 0)
	return v
}

func (p *CPU) dec8(v byte) byte {
	v--
	p.F.SetBool(processor.Zero, v == 0)
	return v
}

// condition decodes the NZ/Z/NC/C condition field. The sign and parity
// conditions belong to unmodeled flags and their opcodes decode as
// unimplemented.
func (p *CPU) condition(idx byte) bool {
	switch idx {
	case 0:
		return !p.F.GetBool(processor.Zero)
	case 1:
		return p.F.GetBool(processor.Zero)
	case 2:
		return !p.F.GetBool(processor.Carry)
	default:
		return p.F.GetBool(processor.Carry)
	}
}

// jumpRelative consumes the displacement byte from the instruction
// stream regardless of whether the branch is taken.
func (p *CPU) jumpRelative(taken bool) bool {
	off := int8(p.fetchByte())
	if taken {
		p.PC += uint16(int16(off))
	}
	return taken
}

func (p *CPU) execute(op byte) (int, error) {
	switch op {
	case 0x00: // NOP
		return 4, nil

	case 0x01, 0x11, 0x21, 0x31: // LD rr,nn
		p.setPair(op>>4, p.fetchWord())
		return 10, nil

	case 0x02: // LD (BC),A
		p.writeMem(p.BC(), p.A)
		return 7, nil
	case 0x12: // LD (DE),A
		p.writeMem(p.DE(), p.A)
		return 7, nil
	case 0x0A: // LD A,(BC)
		p.A = p.readMem(p.BC())
		return 7, nil
	case 0x1A: // LD A,(DE)
		p.A = p.readMem(p.DE())
		return 7, nil

	case 0x03, 0x13, 0x23, 0x33: // INC rr
		p.setPair(op>>4, p.getPair(op>>4)+1)
		return 6, nil
	case 0x0B, 0x1B, 0x2B, 0x3B: // DEC rr
		p.setPair(op>>4, p.getPair(op>>4)-1)
		return 6, nil

	case 0x04, 0x0C, 0x14, 0x1C, 0x24, 0x2C, 0x3C: // INC r
		idx := (op >> 3) & 7
		p.setReg8(idx, p.inc8(p.getReg8(idx)))
		return 4, nil
	case 0x34: // INC (HL)
		p.writeMem(p.HL(), p.inc8(p.readMem(p.HL())))
		return 11, nil

	case 0x05, 0x0D, 0x15, 0x1D, 0x25, 0x2D, 0x3D: // DEC r
		idx := (op >> 3) & 7
		p.setReg8(idx, p.dec8(p.getReg8(idx)))
		return 4, nil
	case 0x35: // DEC (HL)
		p.writeMem(p.HL(), p.dec8(p.readMem(p.HL())))
		return 11, nil

	case 0x06, 0x0E, 0x16, 0x1E, 0x26, 0x2E, 0x3E: // LD r,n
		p.setReg8((op>>3)&7, p.fetchByte())
		return 7, nil
	case 0x36: // LD (HL),n
		p.writeMem(p.HL(), p.fetchByte())
		return 10, nil

	case 0x09, 0x19, 0x29, 0x39: // ADD HL,rr
		r := uint32(p.HL()) + uint32(p.getPair(op>>4))
		p.SetHL(uint16(r))
		p.F.SetBool(processor.Carry, r > 0xFFFF)
		return 11, nil

	case 0x10: // DJNZ d
		p.B--
		if p.jumpRelative(p.B != 0) {
			return 13, nil
		}
		return 8, nil

	case 0x18: // JR d
		p.jumpRelative(true)
		return 12, nil
	case 0x20, 0x28, 0x30, 0x38: // JR cc,d
		if p.jumpRelative(p.condition((op >> 3) & 3)) {
			return 12, nil
		}
		return 7, nil

	case 0x32: // LD (nn),A
		p.writeMem(p.fetchWord(), p.A)
		return 13, nil
	case 0x3A: // LD A,(nn)
		p.A = p.readMem(p.fetchWord())
		return 13, nil

	case 0x76: // HALT
		p.Halted = true
		return 4, nil

	case 0xC3: // JP nn
		p.PC = p.fetchWord()
		return 10, nil
	case 0xC2, 0xCA, 0xD2, 0xDA: // JP cc,nn
		addr := p.fetchWord()
		if p.condition((op >> 3) & 3) {
			p.PC = addr
		}
		return 10, nil
	case 0xE9: // JP (HL)
		p.PC = p.HL()
		return 4, nil

	case 0xCD: // CALL nn
		addr := p.fetchWord()
		p.pushWord(p.PC)
		p.PC = addr
		return 17, nil
	case 0xC4, 0xCC, 0xD4, 0xDC: // CALL cc,nn
		addr := p.fetchWord()
		if p.condition((op >> 3) & 3) {
			p.pushWord(p.PC)
			p.PC = addr
			return 17, nil
		}
		return 10, nil

	case 0xC9: // RET
		p.PC = p.popWord()
		return 10, nil
	case 0xC0, 0xC8, 0xD0, 0xD8: // RET cc
		if p.condition((op >> 3) & 3) {
			p.PC = p.popWord()
			return 11, nil
		}
		return 5, nil

	case 0xC5: // PUSH BC
		p.pushWord(p.BC())
		return 11, nil
	case 0xD5: // PUSH DE
		p.pushWord(p.DE())
		return 11, nil
	case 0xE5: // PUSH HL
		p.pushWord(p.HL())
		return 11, nil
	case 0xF5: // PUSH AF
		p.pushWord(p.AF())
		return 11, nil

	case 0xC1: // POP BC
		p.SetBC(p.popWord())
		return 10, nil
	case 0xD1: // POP DE
		p.SetDE(p.popWord())
		return 10, nil
	case 0xE1: // POP HL
		p.SetHL(p.popWord())
		return 10, nil
	case 0xF1: // POP AF
		p.SetAF(p.popWord())
		return 10, nil

	case 0xC6, 0xCE, 0xD6, 0xDE, 0xE6, 0xEE, 0xF6, 0xFE: // ALU A,n
		p.alu((op>>3)&7, p.fetchByte())
		return 7, nil

	case 0xC7, 0xCF, 0xD7, 0xDF, 0xE7, 0xEF, 0xF7, 0xFF: // RST n
		p.pushWord(p.PC)
		p.PC = uint16(op & 0x38)
		return 11, nil

	case 0xF3: // DI
		p.ic.DisableInterrupts()
		return 4, nil
	case 0xFB: // EI
		p.ic.EnableInterrupts()
		return 4, nil

	case 0xF9: // LD SP,HL
		p.SP = p.HL()
		return 6, nil

	case 0xED:
		return p.executeExtended(p.fetchByte())
	}

	switch {
	case op >= 0x40 && op <= 0x7F: // LD r,r'
		dst, src := (op>>3)&7, op&7
		p.setReg8(dst, p.getReg8(src))
		if dst == regIndirect || src == regIndirect {
			return 7, nil
		}
		return 4, nil

	case op >= 0x80 && op <= 0xBF: // ALU A,r
		p.alu((op>>3)&7, p.getReg8(op&7))
		if op&7 == regIndirect {
			return 7, nil
		}
		return 4, nil
	}

	return 0, fmt.Errorf("%w: 0x%02X at 0x%04X", processor.ErrUnimplementedOpcode, op, p.PC-1)
}

func (p *CPU) executeExtended(op byte) (int, error) {
	switch op {
	case 0x46: // IM 0
		p.ic.SetInterruptMode(interrupt.Mode0)
		return 8, nil
	case 0x56: // IM 1
		p.ic.SetInterruptMode(interrupt.Mode1)
		return 8, nil
	case 0x5E: // IM 2
		p.ic.SetInterruptMode(interrupt.Mode2)
		return 8, nil

	case 0x45: // RETN
		p.ic.ReturnFromNonMaskableInterrupt()
		p.PC = p.popWord()
		return 14, nil
	case 0x4D: // RETI
		p.ic.ReturnFromInterrupt()
		p.PC = p.popWord()
		return 14, nil

	case 0x47: // LD I,A
		p.ic.SetVectorRegister(p.A)
		return 9, nil
	case 0x57: // LD A,I
		p.A = p.ic.VectorRegister()
		p.F.SetBool(processor.Zero, p.A == 0)
		return 9, nil
	}

	return 0, fmt.Errorf("%w: 0xED 0x%02X at 0x%04X", processor.ErrUnimplementedOpcode, op, p.PC-2)
}
