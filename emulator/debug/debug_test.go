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

package debug

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/normalform/zenix/emulator/interrupt"
	"github.com/normalform/zenix/emulator/memory"
	"github.com/normalform/zenix/emulator/processor/cpu"
)

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
	seq  int
}

func newTestSetup(t *testing.T, program ...byte) (*cpu.CPU, *testClient) {
	t.Helper()

	bus := memory.NewBus(0, 0x8000)
	bus.LoadROM(program)
	p, err := cpu.NewCPU(bus, interrupt.NewController())
	if err != nil {
		t.Fatal(err)
	}
	p.Reset()

	srv, err := NewServer("127.0.0.1:0", p, bus)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close() })

	// Stand-in for the emulator run loop: service the command mailbox
	// until the server shuts down.
	go func() {
		for srv.Tick(nil) == nil {
			time.Sleep(time.Millisecond)
		}
	}()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	return p, &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) call(command string, args interface{}) Response {
	c.t.Helper()

	c.seq++
	req := Request{Seq: c.seq, Command: command}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			c.t.Fatal(err)
		}
		req.Args = raw
	}

	body, err := json.Marshal(req)
	if err != nil {
		c.t.Fatal(err)
	}
	if _, err := fmt.Fprintf(c.conn, "Content-Length: %d\n%s\n", len(body), body); err != nil {
		c.t.Fatal(err)
	}

	resp := c.readResponse()
	if resp.Seq != req.Seq {
		c.t.Fatalf("response seq = %d, want %d", resp.Seq, req.Seq)
	}
	return resp
}

func (c *testClient) readResponse() Response {
	c.t.Helper()

	line, err := c.r.ReadString('\n')
	if err != nil {
		c.t.Fatal(err)
	}
	line = strings.TrimSpace(line)
	const prefix = "Content-Length:"
	if !strings.HasPrefix(line, prefix) {
		c.t.Fatalf("bad envelope header: %q", line)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[len(prefix):]))
	if err != nil {
		c.t.Fatal(err)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(c.r, body); err != nil {
		c.t.Fatal(err)
	}
	c.r.ReadByte() // trailing newline

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		c.t.Fatal(err)
	}
	return resp
}

func (c *testClient) registers() registerData {
	c.t.Helper()
	resp := c.call("registers", nil)
	if !resp.Success {
		c.t.Fatalf("registers failed: %s", resp.Error)
	}
	var regs registerData
	decode(c.t, resp.Data, &regs)
	return regs
}

func decode(t *testing.T, data interface{}, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatal(err)
	}
}

func TestRegistersCommand(t *testing.T) {
	_, client := newTestSetup(t, 0x00)

	regs := client.registers()
	if regs.PC != 0 {
		t.Errorf("pc = 0x%04X, want 0", regs.PC)
	}
	if regs.SP != 0xFFFF {
		t.Errorf("sp = 0x%04X, want 0xFFFF", regs.SP)
	}
}

func TestStepCommand(t *testing.T) {
	_, client := newTestSetup(t,
		0x3E, 0x42, // LD A,0x42
		0x06, 0x07, // LD B,0x07
	)

	resp := client.call("step", map[string]int{"count": 2})
	if !resp.Success {
		t.Fatalf("step failed: %s", resp.Error)
	}

	var regs registerData
	decode(t, resp.Data, &regs)
	if regs.A != 0x42 || regs.B != 0x07 {
		t.Errorf("A=0x%02X B=0x%02X, want A=0x42 B=0x07", regs.A, regs.B)
	}
	if regs.PC != 4 {
		t.Errorf("pc = 0x%04X, want 4", regs.PC)
	}
	if regs.Cycles != 14 {
		t.Errorf("cycles = %d, want 14", regs.Cycles)
	}
}

func TestStepDefaultsToOne(t *testing.T) {
	_, client := newTestSetup(t, 0x00, 0x00)

	resp := client.call("step", nil)
	var regs registerData
	decode(t, resp.Data, &regs)
	if regs.PC != 1 {
		t.Errorf("pc = 0x%04X, want 1", regs.PC)
	}
}

func TestSetRegister(t *testing.T) {
	p, client := newTestSetup(t, 0x00)

	resp := client.call("set-register", map[string]interface{}{"name": "pc", "value": 0x1234})
	if !resp.Success {
		t.Fatalf("set-register failed: %s", resp.Error)
	}
	if p.PC != 0x1234 {
		t.Errorf("PC = 0x%04X, want 0x1234", p.PC)
	}

	resp = client.call("set-register", map[string]interface{}{"name": "xyzzy", "value": 1})
	if resp.Success {
		t.Error("unknown register name must fail")
	}
}

func TestMemoryReadWriteRoundTrip(t *testing.T) {
	_, client := newTestSetup(t, 0x00)

	resp := client.call("write-memory", map[string]interface{}{
		"address": 0xC000,
		"bytes":   "deadbeef",
	})
	if !resp.Success {
		t.Fatalf("write-memory failed: %s", resp.Error)
	}

	resp = client.call("read-memory", map[string]interface{}{
		"address": 0xC000,
		"length":  4,
	})
	if !resp.Success {
		t.Fatalf("read-memory failed: %s", resp.Error)
	}

	var data struct {
		Bytes string `json:"bytes"`
	}
	decode(t, resp.Data, &data)
	if data.Bytes != "deadbeef" {
		t.Errorf("bytes = %q, want deadbeef", data.Bytes)
	}
}

func TestBreakpointPausesStepping(t *testing.T) {
	_, client := newTestSetup(t,
		0x00, // NOP
		0x00, // NOP at 0x0001, breakpoint here
		0x00,
	)

	if resp := client.call("set-breakpoint", map[string]int{"address": 0x0001}); !resp.Success {
		t.Fatalf("set-breakpoint failed: %s", resp.Error)
	}

	resp := client.call("step", map[string]int{"count": 3})
	var regs registerData
	decode(t, resp.Data, &regs)
	if regs.PC <= 0x0001 {
		t.Errorf("pc = 0x%04X, steps after the hit still run on explicit request", regs.PC)
	}

	var status struct {
		Paused bool `json:"paused"`
	}
	decode(t, client.call("status", nil).Data, &status)
	if !status.Paused {
		t.Error("breakpoint did not pause the machine")
	}

	if resp := client.call("continue", nil); !resp.Success {
		t.Fatalf("continue failed: %s", resp.Error)
	}
	decode(t, client.call("status", nil).Data, &status)
	if status.Paused {
		t.Error("continue did not clear the paused state")
	}
}

func TestBreakpointListing(t *testing.T) {
	_, client := newTestSetup(t, 0x00)

	client.call("set-breakpoint", map[string]int{"address": 0x0010})
	client.call("set-breakpoint", map[string]int{"address": 0x0020})
	client.call("clear-breakpoint", map[string]int{"address": 0x0010})

	var data struct {
		Breakpoints []uint16 `json:"breakpoints"`
	}
	decode(t, client.call("breakpoints", nil).Data, &data)
	if len(data.Breakpoints) != 1 || data.Breakpoints[0] != 0x0020 {
		t.Errorf("breakpoints = %v, want [0x0020]", data.Breakpoints)
	}
}

func TestResetCommand(t *testing.T) {
	_, client := newTestSetup(t, 0x3E, 0x42)

	client.call("step", nil)
	resp := client.call("reset", nil)

	var regs registerData
	decode(t, resp.Data, &regs)
	if regs.PC != 0 || regs.Cycles != 0 {
		t.Errorf("pc=0x%04X cycles=%d after reset, want both 0", regs.PC, regs.Cycles)
	}
}

func TestShutdownUnblocksPausedTick(t *testing.T) {
	bus := memory.NewBus(0, 0x8000)
	bus.LoadROM([]byte{0x00})
	p, err := cpu.NewCPU(bus, interrupt.NewController())
	if err != nil {
		t.Fatal(err)
	}
	p.Reset()

	srv, err := NewServer("127.0.0.1:0", p, bus)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close() })

	stop := make(chan struct{})
	ticked := make(chan error, 1)
	go func() {
		for {
			if err := srv.Tick(stop); err != nil {
				ticked <- err
				return
			}
			select {
			case <-stop:
				ticked <- nil
				return
			default:
			}
			time.Sleep(time.Millisecond)
		}
	}()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	client := &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}

	if resp := client.call("pause", nil); !resp.Success {
		t.Fatalf("pause failed: %s", resp.Error)
	}

	// With the machine paused and no client commands in flight, Tick
	// blocks. A run-loop shutdown must still get through.
	close(stop)
	select {
	case err := <-ticked:
		if err != nil {
			t.Fatalf("Tick: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Tick stayed blocked after shutdown while paused")
	}
}

func TestUnknownCommand(t *testing.T) {
	_, client := newTestSetup(t, 0x00)

	resp := client.call("bogus", nil)
	if resp.Success {
		t.Error("unknown command must fail")
	}
	if !strings.Contains(resp.Error, "unknown command") {
		t.Errorf("error = %q", resp.Error)
	}
}
