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
	"errors"
	"fmt"
	"sync"
)

// Mode is the Z80 interrupt acknowledge mode.
type Mode byte

const (
	Mode0 Mode = iota // acknowledge byte decoded as a bus instruction
	Mode1             // fixed vector 0x0038
	Mode2             // vector table lookup through the I register
)

func (m Mode) String() string {
	switch m {
	case Mode0:
		return "IM0"
	case Mode1:
		return "IM1"
	case Mode2:
		return "IM2"
	default:
		return fmt.Sprintf("IM?(%d)", byte(m))
	}
}

// ErrInvalidMode is returned when the acknowledge cycle meets a Mode
// value outside the three the hardware defines.
var ErrInvalidMode = errors.New("invalid interrupt mode")

// Controller is the Z80 interrupt state machine: the IFF1/IFF2 enable
// flip-flops, the acknowledge mode, the EI one-instruction delay, the
// edge-triggered NMI latch and the priority-ordered queue of pending
// maskable requests.
//
// A single mutex guards all state. The CPU consults the controller
// synchronously on every instruction boundary while the async scheduler
// (and any inspection thread) calls RequestInterrupt concurrently.
type Controller struct {
	mu sync.Mutex

	iff1, iff2 bool
	mode       Mode
	vector     byte // the I register
	eiDelay    int
	sample     bool

	nmiPending   bool
	nmiTriggered bool

	// Sorted ascending by priority; equal priorities keep arrival order.
	pending []Request
}

func NewController() *Controller {
	c := &Controller{}
	c.Reset()
	return c
}

func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.iff1 = false
	c.iff2 = false
	c.mode = Mode0
	c.vector = 0
	c.eiDelay = 0
	c.sample = true
	c.nmiPending = false
	c.nmiTriggered = false
	c.pending = c.pending[:0]
}

// EnableInterrupts implements EI. Interrupts become recognizable only
// after the instruction following EI, hence the one-step delay.
func (c *Controller) EnableInterrupts() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.iff1 = true
	c.iff2 = true
	c.eiDelay = 1
}

// DisableInterrupts implements DI.
func (c *Controller) DisableInterrupts() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.iff1 = false
	c.iff2 = false
	c.eiDelay = 0
}

func (c *Controller) SetInterruptMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

func (c *Controller) InterruptMode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetVectorRegister stores the I register, the high byte of the IM2
// vector table address.
func (c *Controller) SetVectorRegister(v byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vector = v
}

func (c *Controller) VectorRegister() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vector
}

func (c *Controller) InterruptsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.iff1
}

// BeforeInstruction advances the EI delay and latches the sample point
// for this instruction boundary. The latch is taken before the delay is
// consumed, so the instruction immediately after EI still runs with
// interrupts unrecognized.
func (c *Controller) BeforeInstruction() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sample = c.eiDelay == 0
	if c.eiDelay > 0 {
		c.eiDelay--
	}
}

// RequestInterrupt enqueues a request. Non-maskable requests coalesce
// into a single pending edge; maskable requests insert into the queue
// keeping ascending priority and stable arrival order.
func (c *Controller) RequestInterrupt(req Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req.Type == NonMaskable {
		c.nmiPending = true
		return
	}

	at := len(c.pending)
	for i, p := range c.pending {
		if p.Priority > req.Priority {
			at = i
			break
		}
	}
	c.pending = append(c.pending, Request{})
	copy(c.pending[at+1:], c.pending[at:])
	c.pending[at] = req
}

// ShouldProcessInterrupt reports whether the CPU must divert to an
// interrupt at this instruction boundary. NMI always wins and ignores
// IFF1; while one NMI is in service no second one is selected. A
// maskable request is delivered only when IFF1 is set and the sample
// point holds.
func (c *Controller) ShouldProcessInterrupt() (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nmiPending && !c.nmiTriggered {
		c.nmiTriggered = true
		c.nmiPending = false
		return Request{
			Type:     NonMaskable,
			Priority: PriorityNMI,
			Source:   NMI,
		}, true
	}

	if c.iff1 && c.sample && len(c.pending) > 0 {
		req := c.pending[0]
		c.pending = c.pending[1:]
		return req, true
	}

	return Request{}, false
}

// ProcessInterrupt performs the acknowledge cycle for a request returned
// by ShouldProcessInterrupt. It returns the instruction byte placed on
// the bus (Mode 0 only) and the service vector. Both interrupt types
// save IFF1 into IFF2 and then clear IFF1.
func (c *Controller) ProcessInterrupt(req Request) (byte, uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.iff2 = c.iff1
	c.iff1 = false

	if req.Type == NonMaskable {
		c.nmiTriggered = false
		return 0, VectorNMI, nil
	}

	switch c.mode {
	case Mode0:
		return req.Vector, 0, nil
	case Mode1:
		return 0, VectorIM1, nil
	case Mode2:
		return 0, uint16(c.vector)<<8 | uint16(req.Vector), nil
	default:
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidMode, byte(c.mode))
	}
}

// ReturnFromInterrupt implements RETI. On real hardware RETI additionally
// signals daisy-chained peripheral controllers, which is why it stays a
// separate operation from RETN even though the flip-flop restore is the
// same.
func (c *Controller) ReturnFromInterrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.iff1 = c.iff2
}

// ReturnFromNonMaskableInterrupt implements RETN.
func (c *Controller) ReturnFromNonMaskableInterrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.iff1 = c.iff2
}

func (c *Controller) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// DiagnosticState is a human-readable dump for the inspection front end.
func (c *Controller) DiagnosticState() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return fmt.Sprintf(
		"IFF1=%t IFF2=%t %s I=0x%02X pending=%d nmiPending=%t nmiTriggered=%t eiDelay=%d",
		c.iff1, c.iff2, c.mode, c.vector, len(c.pending),
		c.nmiPending, c.nmiTriggered, c.eiDelay,
	)
}
