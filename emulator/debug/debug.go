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

// Package debug exposes the emulator over a TCP wire protocol:
// newline-delimited, Content-Length-prefixed JSON envelopes carrying
// register, memory, stepping and breakpoint commands.
//
// The CPU loop stays single-threaded: connection goroutines never touch
// the CPU directly, they post commands into a mailbox the run loop
// services between steps via Tick.
package debug

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/normalform/zenix/emulator/memory"
	"github.com/normalform/zenix/emulator/processor/cpu"
)

var ErrClosed = errors.New("debug: server closed")

// Request is one inbound protocol envelope.
type Request struct {
	Seq     int             `json:"seq"`
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// Response is one outbound protocol envelope.
type Response struct {
	Seq     int         `json:"seq"`
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type registerData struct {
	A      byte   `json:"a"`
	F      byte   `json:"f"`
	B      byte   `json:"b"`
	C      byte   `json:"c"`
	D      byte   `json:"d"`
	E      byte   `json:"e"`
	H      byte   `json:"h"`
	L      byte   `json:"l"`
	SP     uint16 `json:"sp"`
	PC     uint16 `json:"pc"`
	Halted bool   `json:"halted"`
	Cycles uint64 `json:"cycles"`
}

type command struct {
	req   Request
	reply chan Response
}

// Server accepts one inspection client at a time, mirroring the
// single-connection telnet debugger it replaces.
type Server struct {
	cpu *cpu.CPU
	mem *memory.Bus

	ln   net.Listener
	cmds chan command
	quit chan struct{}

	// Loop-goroutine state, only ever touched from Tick/CheckBreakpoint.
	paused      bool
	breakpoints map[uint16]bool

	mu   sync.Mutex
	conn net.Conn
}

func NewServer(addr string, c *cpu.CPU, m *memory.Bus) (*Server, error) {
	if c == nil {
		return nil, errors.New("debug: no cpu attached")
	}
	if m == nil {
		return nil, errors.New("debug: no memory attached")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cpu:         c,
		mem:         m,
		ln:          ln,
		cmds:        make(chan command),
		quit:        make(chan struct{}),
		breakpoints: make(map[uint16]bool),
	}
	go s.acceptLoop()

	log.Print("debugger listening on ", ln.Addr())
	return s, nil
}

func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

func (s *Server) Close() error {
	close(s.quit)
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()
	return s.ln.Close()
}

// Tick services pending debugger commands on the run-loop goroutine.
// While the machine is paused it blocks here, stepping only on request.
// A close of stop (the run loop shutting down, e.g. on SIGINT) unblocks
// the pause so the process can exit without a connected client.
func (s *Server) Tick(stop <-chan struct{}) error {
	for {
		if s.paused {
			select {
			case cmd := <-s.cmds:
				cmd.reply <- s.dispatch(cmd.req)
			case <-stop:
				return nil
			case <-s.quit:
				return ErrClosed
			}
			continue
		}

		select {
		case cmd := <-s.cmds:
			cmd.reply <- s.dispatch(cmd.req)
		case <-s.quit:
			return ErrClosed
		default:
			return nil
		}
	}
}

// CheckBreakpoint pauses the machine when the PC reached after a Step is
// a breakpoint.
func (s *Server) CheckBreakpoint(pc uint16) {
	if s.breakpoints[pc] {
		log.Printf("breakpoint hit at 0x%04X", pc)
		s.paused = true
		s.cpu.Break()
	}
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
			default:
				log.Print("debug: accept: ", err)
			}
			return
		}

		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.conn = conn
		s.mu.Unlock()

		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	for {
		req, err := readEnvelope(r)
		if err != nil {
			if err != io.EOF {
				log.Print("debug: read: ", err)
			}
			return
		}

		cmd := command{req: req, reply: make(chan Response, 1)}
		select {
		case s.cmds <- cmd:
		case <-s.quit:
			return
		}

		var resp Response
		select {
		case resp = <-cmd.reply:
		case <-s.quit:
			return
		}

		if err := writeEnvelope(conn, resp); err != nil {
			log.Print("debug: write: ", err)
			return
		}
	}
}

// readEnvelope parses "Content-Length: N" followed by a newline and then
// exactly N bytes of JSON.
func readEnvelope(r *bufio.Reader) (Request, error) {
	var req Request

	line, err := r.ReadString('\n')
	if err != nil {
		return req, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return req, errors.New("empty envelope header")
	}

	const prefix = "Content-Length:"
	if !strings.HasPrefix(line, prefix) {
		return req, fmt.Errorf("bad envelope header: %q", line)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[len(prefix):]))
	if err != nil || n < 0 {
		return req, fmt.Errorf("bad content length: %q", line)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return req, err
	}
	// Trailing newline after the body.
	if b, err := r.ReadByte(); err == nil && b != '\n' {
		r.UnreadByte()
	}

	err = json.Unmarshal(body, &req)
	return req, err
}

func writeEnvelope(w io.Writer, resp Response) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "Content-Length: %d\n%s\n", len(body), body)
	return err
}

func (s *Server) dispatch(req Request) Response {
	data, err := s.run(req)
	if err != nil {
		return Response{Seq: req.Seq, Success: false, Error: err.Error()}
	}
	return Response{Seq: req.Seq, Success: true, Data: data}
}

func (s *Server) run(req Request) (interface{}, error) {
	switch req.Command {
	case "registers":
		return s.registerData(), nil

	case "set-register":
		var args struct {
			Name  string `json:"name"`
			Value uint16 `json:"value"`
		}
		if err := json.Unmarshal(req.Args, &args); err != nil {
			return nil, err
		}
		if err := s.setRegister(args.Name, args.Value); err != nil {
			return nil, err
		}
		return s.registerData(), nil

	case "read-memory":
		var args struct {
			Address uint16 `json:"address"`
			Length  int    `json:"length"`
		}
		if err := json.Unmarshal(req.Args, &args); err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"address": args.Address,
			"bytes":   hex.EncodeToString(s.mem.ReadRange(args.Address, args.Length)),
		}, nil

	case "write-memory":
		var args struct {
			Address uint16 `json:"address"`
			Bytes   string `json:"bytes"`
		}
		if err := json.Unmarshal(req.Args, &args); err != nil {
			return nil, err
		}
		data, err := hex.DecodeString(args.Bytes)
		if err != nil {
			return nil, err
		}
		s.mem.WriteRange(args.Address, data)
		return nil, nil

	case "step":
		var args struct {
			Count int `json:"count"`
		}
		if len(req.Args) > 0 {
			if err := json.Unmarshal(req.Args, &args); err != nil {
				return nil, err
			}
		}
		if args.Count < 1 {
			args.Count = 1
		}
		for i := 0; i < args.Count; i++ {
			if _, err := s.cpu.Step(); err != nil {
				return s.registerData(), err
			}
			s.CheckBreakpoint(s.cpu.PC)
		}
		return s.registerData(), nil

	case "pause":
		s.paused = true
		return nil, nil

	case "continue":
		s.paused = false
		s.cpu.Debug = false
		return nil, nil

	case "set-breakpoint":
		addr, err := breakpointArg(req.Args)
		if err != nil {
			return nil, err
		}
		s.breakpoints[addr] = true
		return nil, nil

	case "clear-breakpoint":
		addr, err := breakpointArg(req.Args)
		if err != nil {
			return nil, err
		}
		delete(s.breakpoints, addr)
		return nil, nil

	case "breakpoints":
		list := make([]uint16, 0, len(s.breakpoints))
		for addr := range s.breakpoints {
			list = append(list, addr)
		}
		return map[string]interface{}{"breakpoints": list}, nil

	case "reset":
		s.cpu.Reset()
		return s.registerData(), nil

	case "status":
		return map[string]interface{}{
			"paused":     s.paused,
			"pc":         s.cpu.PC,
			"cycles":     s.cpu.Cycles(),
			"interrupts": s.cpu.GetInterruptController().DiagnosticState(),
		}, nil
	}

	return nil, fmt.Errorf("unknown command: %q", req.Command)
}

func breakpointArg(raw json.RawMessage) (uint16, error) {
	var args struct {
		Address uint16 `json:"address"`
	}
	err := json.Unmarshal(raw, &args)
	return args.Address, err
}

func (s *Server) registerData() registerData {
	r := s.cpu.GetRegisters()
	return registerData{
		A: r.A, F: r.F.Load(),
		B: r.B, C: r.C,
		D: r.D, E: r.E,
		H: r.H, L: r.L,
		SP: r.SP, PC: r.PC,
		Halted: r.Halted,
		Cycles: s.cpu.Cycles(),
	}
}

func (s *Server) setRegister(name string, v uint16) error {
	r := s.cpu.GetRegisters()
	switch strings.ToLower(name) {
	case "a":
		r.A = byte(v)
	case "f":
		r.F.Store(byte(v))
	case "b":
		r.B = byte(v)
	case "c":
		r.C = byte(v)
	case "d":
		r.D = byte(v)
	case "e":
		r.E = byte(v)
	case "h":
		r.H = byte(v)
	case "l":
		r.L = byte(v)
	case "sp":
		r.SP = v
	case "pc":
		r.PC = v
	default:
		return fmt.Errorf("unknown register: %q", name)
	}
	return nil
}
