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

// Package emulator wires the machine together and owns the run loop.
package emulator

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/normalform/zenix/emulator/debug"
	"github.com/normalform/zenix/emulator/interrupt"
	"github.com/normalform/zenix/emulator/memory"
	"github.com/normalform/zenix/emulator/monitor"
	"github.com/normalform/zenix/emulator/processor/cpu"
	"github.com/normalform/zenix/emulator/processor/trace"
	"github.com/normalform/zenix/emulator/scheduler"
)

// DefaultClockHz is the MSX master clock feeding the Z80.
const DefaultClockHz = 3579545

const (
	DefaultRAMSize = 0x8000 // top 32KB

	vblankRate     = 60
	vblankPriority = 1
	vblankVector   = 0xFF // RST 38h acknowledge byte
)

type Config struct {
	ROMPath string
	RAMSize int

	ClockHz  float64 // 0 = unlimited
	MaxSteps uint64  // 0 = run until shutdown

	DebugAddr       string
	Monitor         bool
	VBlank          bool
	TraceFile       string
	TraceInterrupts bool

	// Fs defaults to the OS filesystem; tests inject a memory-backed one.
	Fs afero.Fs
}

// statusBoard hands consistent machine snapshots to the monitor thread
// without letting it touch live CPU state.
type statusBoard struct {
	mu sync.Mutex
	st monitor.Status
}

func (b *statusBoard) set(st monitor.Status) {
	b.mu.Lock()
	b.st = st
	b.mu.Unlock()
}

func (b *statusBoard) get() monitor.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st
}

func Run(cfg Config) error {
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	rom, err := afero.ReadFile(fs, cfg.ROMPath)
	if err != nil {
		return err
	}

	ramSize := cfg.RAMSize
	if ramSize == 0 {
		ramSize = DefaultRAMSize
	}

	bus := memory.NewBus(0, ramSize)
	bus.LoadROM(rom)

	ic := interrupt.NewController()
	c, err := cpu.NewCPU(bus, ic)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(ic)
	if err != nil {
		return err
	}
	defer sched.Close()

	trace.Initialize(cfg.TraceFile, trace.DefaultQueueSize, trace.DefaultBufferSize)
	defer trace.Shutdown()

	if cfg.VBlank {
		period := time.Second / vblankRate
		sched.ScheduleRepeatingInterrupt(period, period, vblankVector, vblankPriority,
			interrupt.NewTimerSource("vblank", vblankRate), "VBlank")
	}

	if cfg.TraceInterrupts {
		go func() {
			for ev := range sched.Events() {
				log.Printf("interrupt fired: %s (%s)", ev.Description, ev.Request)
			}
		}()
	}

	var stop int32
	stopCh := make(chan struct{})
	var stopOnce sync.Once
	shutdown := func() {
		atomic.StoreInt32(&stop, 1)
		stopOnce.Do(func() { close(stopCh) })
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		shutdown()
	}()

	var dbg *debug.Server
	if cfg.DebugAddr != "" {
		if dbg, err = debug.NewServer(cfg.DebugAddr, c, bus); err != nil {
			return err
		}
		defer dbg.Close()
	}

	board := &statusBoard{}
	if cfg.Monitor {
		mon, err := monitor.New(sched, board.get, shutdown)
		if err != nil {
			return err
		}
		defer mon.Close()
	}

	snapshot := func() monitor.Status {
		return monitor.Status{
			Regs:       c.Registers,
			Cycles:     c.Cycles(),
			Interrupts: ic.DiagnosticState(),
		}
	}

	c.Reset()
	board.set(snapshot())

	var limit int64
	if cfg.ClockHz > 0 {
		limit = int64(float64(time.Second) / cfg.ClockHz) // ns per T-state
	}

	var steps uint64
	for atomic.LoadInt32(&stop) == 0 {
		var cycles int64
		t := time.Now().UnixNano()

	step:
		if dbg != nil {
			if err := dbg.Tick(stopCh); err != nil {
				if errors.Is(err, debug.ErrClosed) {
					return nil
				}
				return err
			}
			if atomic.LoadInt32(&stop) != 0 {
				break
			}
		}

		n, err := c.Step()
		if err != nil {
			log.Print(err)
			return err
		}
		if dbg != nil {
			dbg.CheckBreakpoint(c.PC)
		}

		cycles += int64(n)
		if steps++; cfg.MaxSteps > 0 && steps >= cfg.MaxSteps {
			break
		}

	wait:
		if d := time.Now().UnixNano() - t; d <= 0 {
			runtime.Gosched()
			goto step
		} else if d < limit*cycles {
			goto wait
		}

		board.set(snapshot())
	}

	board.set(snapshot())
	return nil
}
