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

// Package scheduler fires interrupt requests into the interrupt
// controller at wall-clock-scheduled times, independent of how fast the
// CPU loop is stepping. It stands in for real peripherals: a VBlank
// timer, a keyboard, a reset button.
package scheduler

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/normalform/zenix/emulator/interrupt"
)

// Target is the delivery side of the interrupt controller.
type Target interface {
	RequestInterrupt(interrupt.Request)
}

var ErrNoController = errors.New("scheduler: no interrupt controller")

// DefaultPollInterval bounds how late a due entry can fire: delivery
// happens no later than due time plus one poll interval.
const DefaultPollInterval = time.Millisecond

const closeTimeout = time.Second

// Event is the diagnostic notification emitted each time an entry is
// delivered to the controller. It carries no control-flow meaning.
type Event struct {
	Request     interrupt.Request
	Description string
	FiredAt     time.Time
}

type entry struct {
	req      interrupt.Request
	desc     string
	due      time.Time
	repeat   bool
	interval time.Duration
}

type op struct {
	clear bool
	e     entry
}

// Scheduler owns a background poll loop. Producers push schedule and
// clear operations onto a buffered channel; the loop drains it each
// iteration without blocking either side, checks due times against the
// wall clock and calls RequestInterrupt for everything that is due.
type Scheduler struct {
	target Target
	poll   time.Duration

	ops     chan op
	events  chan Event
	pending int64

	quit chan struct{}
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func New(target Target) (*Scheduler, error) {
	if target == nil {
		return nil, ErrNoController
	}
	s := &Scheduler{
		target: target,
		poll:   DefaultPollInterval,
		ops:    make(chan op, 128),
		events: make(chan Event, 128),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.loop()
	return s, nil
}

// ScheduleMaskableInterrupt enqueues a one-shot maskable request due at
// now+delay.
func (s *Scheduler) ScheduleMaskableInterrupt(delay time.Duration, vector byte, priority int, src interrupt.Source, desc string) {
	s.push(entry{
		req: interrupt.Request{
			Type:     interrupt.Maskable,
			Vector:   vector,
			Priority: priority,
			Source:   src,
		},
		desc: desc,
		due:  time.Now().Add(delay),
	})
}

// ScheduleNonMaskableInterrupt enqueues a one-shot NMI due at now+delay.
func (s *Scheduler) ScheduleNonMaskableInterrupt(delay time.Duration, src interrupt.Source, desc string) {
	s.push(entry{
		req: interrupt.Request{
			Type:     interrupt.NonMaskable,
			Priority: interrupt.PriorityNMI,
			Source:   src,
		},
		desc: desc,
		due:  time.Now().Add(delay),
	})
}

// ScheduleRepeatingInterrupt enqueues a maskable request that fires at
// now+initial and then every interval until cleared or the scheduler is
// closed.
func (s *Scheduler) ScheduleRepeatingInterrupt(initial, interval time.Duration, vector byte, priority int, src interrupt.Source, desc string) {
	s.push(entry{
		req: interrupt.Request{
			Type:     interrupt.Maskable,
			Vector:   vector,
			Priority: priority,
			Source:   src,
		},
		desc:     desc,
		due:      time.Now().Add(initial),
		repeat:   true,
		interval: interval,
	})
}

// ClearPendingRequests discards every entry that has not fired yet.
// Requests already delivered to the controller are unaffected.
func (s *Scheduler) ClearPendingRequests() {
	select {
	case s.ops <- op{clear: true}:
	case <-s.done:
	}
}

// PendingRequestCount is the number of scheduled entries that have not
// fired. A repeating entry counts as one until it is cleared.
func (s *Scheduler) PendingRequestCount() int {
	return int(atomic.LoadInt64(&s.pending))
}

// Events exposes the fired-entry notifications. The channel is buffered
// and never blocks the loop; with no reader, notifications are dropped.
// It is closed when the scheduler shuts down, so range loops terminate.
func (s *Scheduler) Events() <-chan Event {
	return s.events
}

// Close asks the loop to stop and waits for it with a bounded timeout.
// Entries scheduled but never fired are discarded.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.quit)
	select {
	case <-s.done:
	case <-time.After(closeTimeout):
		log.Print("scheduler: loop did not stop in time")
	}
	atomic.StoreInt64(&s.pending, 0)
	return nil
}

// push hands an entry to the loop. The mutex excludes Close, so an entry
// is either counted and enqueued before shutdown starts or dropped
// entirely; the pending count never outlives the scheduler.
func (s *Scheduler) push(e entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.ops <- op{e: e}:
		atomic.AddInt64(&s.pending, 1)
	case <-s.done:
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)
	defer func() {
		// A failing loop degrades to a no-op rather than crashing the
		// host process.
		if r := recover(); r != nil {
			log.Print("scheduler: loop failure: ", r)
		}
	}()
	defer close(s.events)

	var entries []entry

	for {
		select {
		case <-s.quit:
			return
		default:
		}

	drain:
		for {
			select {
			case o := <-s.ops:
				if o.clear {
					atomic.AddInt64(&s.pending, -int64(len(entries)))
					entries = entries[:0]
				} else {
					entries = append(entries, o.e)
				}
			default:
				break drain
			}
		}

		now := time.Now()
		for i := 0; i < len(entries); {
			e := &entries[i]
			if now.Before(e.due) {
				i++
				continue
			}

			s.target.RequestInterrupt(e.req)
			select {
			case s.events <- Event{Request: e.req, Description: e.desc, FiredAt: now}:
			default:
			}

			if e.repeat {
				e.due = now.Add(e.interval)
				i++
				continue
			}
			atomic.AddInt64(&s.pending, -1)
			entries = append(entries[:i], entries[i+1:]...)
		}

		time.Sleep(s.poll)
	}
}
