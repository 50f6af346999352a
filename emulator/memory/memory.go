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

package memory

// Size is the full Z80 address space.
const Size = 0x10000

// Memory is the byte-addressable view consumed by the CPU core.
type Memory interface {
	ReadByte(addr uint16) byte
	WriteByte(addr uint16, data byte)
	RAMTop() uint16
}

// Bus is the flat MSX-style memory map: ROM at the bottom of the address
// space, RAM at the top, and an open window in between. Reads hit the
// whole space; writes land only inside the RAM window and are silently
// dropped everywhere else.
type Bus struct {
	mem     [Size]byte
	romSize int
	ramSize int
}

func NewBus(romSize, ramSize int) *Bus {
	b := &Bus{}
	b.Configure(romSize, ramSize)
	return b
}

func (b *Bus) Configure(romSize, ramSize int) {
	if romSize < 0 {
		romSize = 0
	}
	if romSize > Size {
		romSize = Size
	}
	if ramSize < 0 {
		ramSize = 0
	}
	if ramSize > Size {
		ramSize = Size
	}
	b.romSize = romSize
	b.ramSize = ramSize
}

// LoadROM clears the full address space, copies data at address 0 and
// treats its length as the new ROM size.
func (b *Bus) LoadROM(data []byte) {
	b.mem = [Size]byte{}
	n := copy(b.mem[:], data)
	b.romSize = n
}

// RAMTop is the highest writable address, used as the initial stack
// pointer on reset.
func (b *Bus) RAMTop() uint16 {
	if b.ramSize == 0 {
		return 0
	}
	return Size - 1
}

func (b *Bus) ROMSize() int {
	return b.romSize
}

func (b *Bus) RAMSize() int {
	return b.ramSize
}

func (b *Bus) ReadByte(addr uint16) byte {
	return b.mem[addr]
}

func (b *Bus) WriteByte(addr uint16, data byte) {
	if int(addr) < Size-b.ramSize || int(addr) < b.romSize {
		return
	}
	b.mem[addr] = data
}

func (b *Bus) ReadWord(addr uint16) uint16 {
	return uint16(b.ReadByte(addr)) | uint16(b.ReadByte(addr+1))<<8
}

func (b *Bus) WriteWord(addr uint16, data uint16) {
	b.WriteByte(addr, byte(data))
	b.WriteByte(addr+1, byte(data>>8))
}

// ReadRange copies n bytes starting at addr, wrapping at the top of the
// address space. Used by the inspection front end.
func (b *Bus) ReadRange(addr uint16, n int) []byte {
	if n < 0 {
		n = 0
	}
	if n > Size {
		n = Size
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = b.ReadByte(addr + uint16(i))
	}
	return out
}

// WriteRange writes data starting at addr through the normal write path,
// so ROM and unmapped regions stay protected.
func (b *Bus) WriteRange(addr uint16, data []byte) {
	for i, d := range data {
		b.WriteByte(addr+uint16(i), d)
	}
}
