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

package interrupt

import (
	"fmt"
)

// Type distinguishes the two Z80 interrupt lines.
type Type byte

const (
	Maskable Type = iota
	NonMaskable
)

func (t Type) String() string {
	if t == NonMaskable {
		return "NMI"
	}
	return "INT"
}

// PriorityNMI is the sentinel priority attached to requests synthesized
// for the non-maskable line. It outranks every maskable priority.
const PriorityNMI = -1

// Fixed service vectors.
const (
	VectorNMI uint16 = 0x0066
	VectorIM1 uint16 = 0x0038
)

// Request is an immutable interrupt request. Lower priority values are
// more urgent; requests are copied by value once enqueued.
type Request struct {
	Type     Type
	Vector   byte
	Priority int
	Source   Source
}

func (r Request) String() string {
	return fmt.Sprintf("%s vector=0x%02X priority=%d from %s",
		r.Type, r.Vector, r.Priority, r.Source)
}
