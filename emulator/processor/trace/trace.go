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

// Package trace streams one JSON event per executed instruction or
// serviced interrupt to a file. Encoding happens on a background
// goroutine so the CPU loop never blocks on disk.
package trace

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"os"

	"github.com/normalform/zenix/emulator/processor"
)

const (
	DefaultQueueSize  = 1024
	DefaultBufferSize = 0x100000 // flush every 1MB
)

// Event captures one step of the CPU.
type Event struct {
	PC        uint16
	Opcode    byte
	Interrupt bool
	Cycles    int
	After     processor.Registers
}

var (
	outputFile string
	outputChan chan Event
	quitChan   chan struct{}
)

// Initialize opens the trace file and starts the writer. An empty output
// name disables tracing entirely; every push becomes a cheap no-op.
func Initialize(output string, queueSize, bufferSize int) {
	if outputFile = output; output == "" {
		return
	}

	outputChan = make(chan Event, queueSize)
	quitChan = make(chan struct{})

	fp, err := os.Create(outputFile)
	if err != nil {
		log.Panic(err)
	}

	go func() {
		var buffer bytes.Buffer

		defer fp.Close()
		defer func() { io.Copy(fp, &buffer); quitChan <- struct{}{} }()

		enc := json.NewEncoder(&buffer)

		for ev := range outputChan {
			if err := enc.Encode(ev); err != nil {
				log.Print(err)
				return
			}
			if buffer.Len() >= bufferSize {
				if _, err := io.Copy(fp, &buffer); err != nil {
					log.Print(err)
					return
				}
			}
		}
	}()
}

// Push records one event. Drops the event rather than stalling the CPU
// loop when the writer falls behind.
func Push(ev Event) {
	if outputFile == "" {
		return
	}
	select {
	case outputChan <- ev:
	default:
	}
}

func Enabled() bool {
	return outputFile != ""
}

func Shutdown() {
	if outputFile == "" {
		return
	}
	close(outputChan)
	<-quitChan
	outputFile = ""
}
