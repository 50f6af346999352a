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

// Package monitor is a terminal front panel: a live register view plus
// key bindings that inject simulated peripheral interrupts through the
// async scheduler. Any printable key acts as the keyboard, Ctrl-R as the
// reset button.
package monitor

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell"

	"github.com/normalform/zenix/emulator/interrupt"
	"github.com/normalform/zenix/emulator/processor"
	"github.com/normalform/zenix/emulator/scheduler"
)

const (
	keyboardVector   = 0xFF // RST 38h acknowledge byte
	keyboardPriority = 2
	refreshInterval  = 50 * time.Millisecond
)

// Status is a consistent snapshot of the machine, provided by the run
// loop so the monitor never reads CPU state across goroutines.
type Status struct {
	Regs       processor.Registers
	Cycles     uint64
	Interrupts string
}

type Monitor struct {
	screen tcell.Screen
	sched  *scheduler.Scheduler
	status func() Status
	onQuit func()

	keySource   interrupt.Source
	resetSource interrupt.Source

	quit chan struct{}
}

func New(sched *scheduler.Scheduler, status func() Status, onQuit func()) (*Monitor, error) {
	tcell.SetEncodingFallback(tcell.EncodingFallbackASCII)

	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	screen.Clear()

	m := &Monitor{
		screen:      screen,
		sched:       sched,
		status:      status,
		onQuit:      onQuit,
		keySource:   interrupt.NewIOPortSource("keyboard", 0xA9),
		resetSource: interrupt.NewSystemSource("reset button"),
		quit:        make(chan struct{}),
	}

	go m.eventLoop()
	go m.refreshLoop()
	return m, nil
}

func (m *Monitor) Close() error {
	select {
	case <-m.quit:
	default:
		close(m.quit)
	}
	m.screen.Fini()
	return nil
}

func (m *Monitor) eventLoop() {
	for {
		ev := m.screen.PollEvent()
		if ev == nil {
			return
		}

		switch ev := ev.(type) {
		case *tcell.EventResize:
			m.screen.Sync()
		case *tcell.EventKey:
			switch ev.Key() {
			case tcell.KeyEscape, tcell.KeyCtrlC:
				if m.onQuit != nil {
					m.onQuit()
				}
				return
			case tcell.KeyCtrlR:
				m.sched.ScheduleNonMaskableInterrupt(0, m.resetSource, "reset button")
			case tcell.KeyRune:
				m.sched.ScheduleMaskableInterrupt(
					0, keyboardVector, keyboardPriority, m.keySource,
					fmt.Sprintf("key %q", ev.Rune()))
			}
		}
	}
}

func (m *Monitor) refreshLoop() {
	t := time.NewTicker(refreshInterval)
	defer t.Stop()

	for {
		select {
		case <-m.quit:
			return
		case <-t.C:
			m.draw()
		}
	}
}

func (m *Monitor) draw() {
	st := m.status()
	r := st.Regs

	lines := []string{
		"ZENIX MONITOR  (ESC quit, Ctrl-R reset button, keys -> keyboard IRQ)",
		"",
		fmt.Sprintf(" A  0x%02X   F  %s", r.A, r.FlagString()),
		fmt.Sprintf(" BC 0x%04X DE 0x%04X HL 0x%04X", r.BC(), r.DE(), r.HL()),
		fmt.Sprintf(" SP 0x%04X PC 0x%04X", r.SP, r.PC),
		fmt.Sprintf(" cycles %d  halted %t", st.Cycles, r.Halted),
		"",
		" " + st.Interrupts,
	}

	m.screen.Clear()
	style := tcell.StyleDefault
	for y, line := range lines {
		for x, c := range line {
			m.screen.SetContent(x, y, c, nil, style)
		}
	}
	m.screen.Show()
}
