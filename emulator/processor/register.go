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

package processor

import (
	"fmt"
)

// Z80 flag bits in the F register. Only Zero and Carry carry meaning in
// this implementation; the remaining bits are reserved and read back as
// written.
const (
	Carry Flags = 0x01
	Zero  Flags = 0x40
)

type Flags byte

func (r *Flags) Get(f Flags) Flags {
	return *r & f
}

func (r *Flags) GetBool(f Flags) bool {
	return r.Get(f) != 0
}

func (r *Flags) Set(f Flags) {
	*r |= f
}

func (r *Flags) SetBool(f Flags, b bool) {
	if b {
		r.Set(f)
		return
	}
	r.Clear(f)
}

func (r *Flags) Clear(f Flags) {
	*r &= ^f
}

func (r *Flags) Store(f byte) {
	*r = Flags(f)
}

func (r *Flags) Load() byte {
	return byte(*r)
}

// Registers is the Z80 register file. B/C, D/E and H/L combine into
// 16-bit pairs with the high byte first.
type Registers struct {
	A byte
	F Flags

	B, C,
	D, E,
	H, L byte

	SP, PC uint16

	Halted bool
	Debug  bool
}

func (r *Registers) Reset() {
	*r = Registers{}
}

func (r *Registers) AF() uint16 {
	return uint16(r.A)<<8 | uint16(r.F.Load())
}

func (r *Registers) SetAF(v uint16) {
	r.A = byte(v >> 8)
	r.F.Store(byte(v))
}

func (r *Registers) BC() uint16 {
	return uint16(r.B)<<8 | uint16(r.C)
}

func (r *Registers) SetBC(v uint16) {
	r.B = byte(v >> 8)
	r.C = byte(v)
}

func (r *Registers) DE() uint16 {
	return uint16(r.D)<<8 | uint16(r.E)
}

func (r *Registers) SetDE(v uint16) {
	r.D = byte(v >> 8)
	r.E = byte(v)
}

func (r *Registers) HL() uint16 {
	return uint16(r.H)<<8 | uint16(r.L)
}

func (r *Registers) SetHL(v uint16) {
	r.H = byte(v >> 8)
	r.L = byte(v)
}

func (r *Registers) FlagString() string {
	s := [2]rune{'-', '-'}
	if r.F.GetBool(Zero) {
		s[0] = 'Z'
	}
	if r.F.GetBool(Carry) {
		s[1] = 'C'
	}
	return string(s[:])
}

func (r *Registers) String() string {
	return fmt.Sprintf(
		"A=0x%02X F=%s BC=0x%04X DE=0x%04X HL=0x%04X SP=0x%04X PC=0x%04X",
		r.A, r.FlagString(), r.BC(), r.DE(), r.HL(), r.SP, r.PC,
	)
}
