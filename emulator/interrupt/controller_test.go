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
	"strings"
	"testing"
)

func maskable(vector byte, priority int) Request {
	return Request{Type: Maskable, Vector: vector, Priority: priority, Source: None}
}

// enable flips the flip-flops and runs enough instruction boundaries for
// the EI delay to expire.
func enable(c *Controller) {
	c.EnableInterrupts()
	c.BeforeInstruction()
	c.BeforeInstruction()
}

func TestDequeueOrderIsAscendingPriority(t *testing.T) {
	c := NewController()
	enable(c)

	c.RequestInterrupt(maskable(0x10, 10))
	c.RequestInterrupt(maskable(0x05, 5))
	c.RequestInterrupt(maskable(0x01, 1))

	for _, want := range []int{1, 5, 10} {
		req, ok := c.ShouldProcessInterrupt()
		if !ok {
			t.Fatalf("expected a pending request at priority %d", want)
		}
		if req.Priority != want {
			t.Errorf("got priority %d, want %d", req.Priority, want)
		}
		if _, _, err := c.ProcessInterrupt(req); err != nil {
			t.Fatal(err)
		}
		enable(c)
	}
}

func TestEqualPriorityKeepsArrivalOrder(t *testing.T) {
	c := NewController()
	enable(c)

	c.RequestInterrupt(maskable(0xA1, 3))
	c.RequestInterrupt(maskable(0xA2, 3))
	c.RequestInterrupt(maskable(0xA3, 3))

	for _, want := range []byte{0xA1, 0xA2, 0xA3} {
		req, ok := c.ShouldProcessInterrupt()
		if !ok {
			t.Fatal("expected a pending request")
		}
		if req.Vector != want {
			t.Errorf("got vector 0x%02X, want 0x%02X", req.Vector, want)
		}
	}
}

func TestEnableInterruptsDelaysOneInstruction(t *testing.T) {
	c := NewController()
	c.RequestInterrupt(maskable(0xC7, 5))

	c.EnableInterrupts()

	// The instruction right after EI must not see the interrupt.
	c.BeforeInstruction()
	if _, ok := c.ShouldProcessInterrupt(); ok {
		t.Fatal("interrupt recognized during the EI shadow instruction")
	}

	// The one after it must.
	c.BeforeInstruction()
	req, ok := c.ShouldProcessInterrupt()
	if !ok {
		t.Fatal("interrupt not recognized after the EI delay expired")
	}
	if req.Type != Maskable || req.Vector != 0xC7 || req.Priority != 5 {
		t.Errorf("unexpected request: %v", req)
	}
}

func TestMaskableBlockedWhileDisabled(t *testing.T) {
	c := NewController()
	c.BeforeInstruction()
	c.RequestInterrupt(maskable(0x01, 1))

	if _, ok := c.ShouldProcessInterrupt(); ok {
		t.Fatal("maskable interrupt delivered with IFF1 clear")
	}
	if c.PendingCount() != 1 {
		t.Errorf("pending count = %d, want 1", c.PendingCount())
	}
}

func TestNMICoalescesUntilServiced(t *testing.T) {
	c := NewController()

	nmi := Request{Type: NonMaskable, Priority: PriorityNMI, Source: NMI}
	c.RequestInterrupt(nmi)
	c.RequestInterrupt(nmi)

	req, ok := c.ShouldProcessInterrupt()
	if !ok || req.Type != NonMaskable {
		t.Fatal("expected an NMI")
	}

	// The latch holds until ProcessInterrupt, even if another edge
	// arrives meanwhile.
	c.RequestInterrupt(nmi)
	if _, ok := c.ShouldProcessInterrupt(); ok {
		t.Fatal("second NMI selected while the first is in service")
	}

	if _, _, err := c.ProcessInterrupt(req); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.ShouldProcessInterrupt(); !ok {
		t.Fatal("coalesced NMI edge lost after service completed")
	}
}

func TestNMIIgnoresIFF1(t *testing.T) {
	c := NewController()
	c.DisableInterrupts()
	c.RequestInterrupt(Request{Type: NonMaskable, Source: NMI})

	req, ok := c.ShouldProcessInterrupt()
	if !ok {
		t.Fatal("NMI masked by IFF1")
	}
	if req.Type != NonMaskable || !req.Source.Equal(NMI) || req.Priority != PriorityNMI {
		t.Errorf("unexpected NMI request: %v", req)
	}
}

func TestProcessInterruptSavesAndClearsIFF1(t *testing.T) {
	for _, typ := range []Type{Maskable, NonMaskable} {
		for _, enabled := range []bool{true, false} {
			c := NewController()
			if enabled {
				c.EnableInterrupts()
			}

			if _, _, err := c.ProcessInterrupt(Request{Type: typ}); err != nil {
				t.Fatal(err)
			}
			if c.InterruptsEnabled() {
				t.Errorf("%v enabled=%t: IFF1 not cleared", typ, enabled)
			}

			// RETI/RETN restore the saved state.
			c.ReturnFromInterrupt()
			if c.InterruptsEnabled() != enabled {
				t.Errorf("%v enabled=%t: IFF1 not restored to %t", typ, enabled, enabled)
			}
		}
	}
}

func TestReturnFromNonMaskableRestoresIFF1(t *testing.T) {
	c := NewController()
	c.EnableInterrupts()

	c.RequestInterrupt(Request{Type: NonMaskable, Source: NMI})
	req, _ := c.ShouldProcessInterrupt()
	if _, _, err := c.ProcessInterrupt(req); err != nil {
		t.Fatal(err)
	}
	if c.InterruptsEnabled() {
		t.Fatal("IFF1 still set during NMI service")
	}

	c.ReturnFromNonMaskableInterrupt()
	if !c.InterruptsEnabled() {
		t.Fatal("RETN did not restore IFF1")
	}
}

func TestNMIAcknowledgeVector(t *testing.T) {
	c := NewController()
	instr, vector, err := c.ProcessInterrupt(Request{Type: NonMaskable})
	if err != nil {
		t.Fatal(err)
	}
	if instr != 0 || vector != VectorNMI {
		t.Errorf("got (0x%02X, 0x%04X), want (0, 0x0066)", instr, vector)
	}
}

func TestMode0ReturnsBusInstruction(t *testing.T) {
	c := NewController()
	c.SetInterruptMode(Mode0)

	instr, vector, err := c.ProcessInterrupt(maskable(0xEF, 0))
	if err != nil {
		t.Fatal(err)
	}
	if instr != 0xEF || vector != 0 {
		t.Errorf("got (0x%02X, 0x%04X), want (0xEF, 0)", instr, vector)
	}
}

func TestMode1VectorIsFixed(t *testing.T) {
	c := NewController()
	c.SetInterruptMode(Mode1)

	for _, v := range []byte{0x00, 0x42, 0xFF} {
		instr, vector, err := c.ProcessInterrupt(maskable(v, 0))
		if err != nil {
			t.Fatal(err)
		}
		if instr != 0 || vector != VectorIM1 {
			t.Errorf("vector byte 0x%02X: got (0x%02X, 0x%04X), want (0, 0x0038)", v, instr, vector)
		}
	}
}

func TestMode2VectorComposition(t *testing.T) {
	c := NewController()
	c.SetInterruptMode(Mode2)
	c.SetVectorRegister(0xAB)

	instr, vector, err := c.ProcessInterrupt(maskable(0xCD, 0))
	if err != nil {
		t.Fatal(err)
	}
	if instr != 0 || vector != 0xABCD {
		t.Errorf("got (0x%02X, 0x%04X), want (0, 0xABCD)", instr, vector)
	}
}

func TestInvalidModeIsAnError(t *testing.T) {
	c := NewController()
	c.SetInterruptMode(Mode(7))

	if _, _, err := c.ProcessInterrupt(maskable(0, 0)); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("got %v, want ErrInvalidMode", err)
	}
}

func TestResetClearsEverything(t *testing.T) {
	c := NewController()
	c.EnableInterrupts()
	c.SetInterruptMode(Mode2)
	c.SetVectorRegister(0x12)
	c.RequestInterrupt(maskable(1, 1))
	c.RequestInterrupt(Request{Type: NonMaskable})

	c.Reset()

	if c.InterruptsEnabled() {
		t.Error("IFF1 survived reset")
	}
	if c.InterruptMode() != Mode0 {
		t.Error("mode not reset to IM0")
	}
	if c.VectorRegister() != 0 {
		t.Error("vector register survived reset")
	}
	if c.PendingCount() != 0 {
		t.Error("pending queue survived reset")
	}
	if _, ok := c.ShouldProcessInterrupt(); ok {
		t.Error("NMI latch survived reset")
	}
}

func TestDiagnosticStateMentionsKeyFields(t *testing.T) {
	c := NewController()
	c.SetInterruptMode(Mode2)
	c.SetVectorRegister(0x7F)
	c.RequestInterrupt(maskable(1, 1))

	s := c.DiagnosticState()
	for _, want := range []string{"IM2", "0x7F", "pending=1", "IFF1=false"} {
		if !strings.Contains(s, want) {
			t.Errorf("diagnostic state %q missing %q", s, want)
		}
	}
}
