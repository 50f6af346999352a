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
	"sync/atomic"
)

// Category classifies where an interrupt request originated.
type Category byte

const (
	CategoryUnknown Category = iota
	CategoryCPU
	CategoryTimer
	CategoryIO
	CategoryVideo
	CategoryAudio
	CategoryExternal
	CategorySystem
	CategoryTest
)

func (c Category) String() string {
	switch c {
	case CategoryCPU:
		return "cpu"
	case CategoryTimer:
		return "timer"
	case CategoryIO:
		return "io"
	case CategoryVideo:
		return "video"
	case CategoryAudio:
		return "audio"
	case CategoryExternal:
		return "external"
	case CategorySystem:
		return "system"
	case CategoryTest:
		return "test"
	default:
		return "unknown"
	}
}

// Source identifies the origin of an interrupt request. It is pure
// identity: two sources are the same device exactly when their IDs are
// equal. Frequency and Port are informational attributes carried by
// timer and I/O sources.
type Source struct {
	ID       string
	Name     string
	Category Category

	// Frequency is the nominal rate of a timer source, in hertz.
	Frequency float64

	// Port is the I/O port of an I/O device source. HasPort reports
	// whether the device actually occupies one.
	Port    byte
	HasPort bool
}

// Canonical sources. These are the only two with fixed IDs; all other
// sources are minted per device instance.
var (
	None = Source{ID: "none", Name: "Unspecified", Category: CategoryUnknown}
	NMI  = Source{ID: "cpu.nmi", Name: "CPU NMI", Category: CategoryCPU}
)

var sourceSeq uint64

func nextID(prefix, name string) string {
	return fmt.Sprintf("%s.%s.%d", prefix, name, atomic.AddUint64(&sourceSeq, 1))
}

func NewTimerSource(name string, hz float64) Source {
	return Source{
		ID:        nextID("timer", name),
		Name:      name,
		Category:  CategoryTimer,
		Frequency: hz,
	}
}

func NewIOSource(name string) Source {
	return Source{ID: nextID("io", name), Name: name, Category: CategoryIO}
}

func NewIOPortSource(name string, port byte) Source {
	return Source{
		ID:       nextID("io", name),
		Name:     name,
		Category: CategoryIO,
		Port:     port,
		HasPort:  true,
	}
}

func NewVideoSource(name string) Source {
	return Source{ID: nextID("video", name), Name: name, Category: CategoryVideo}
}

func NewSystemSource(reason string) Source {
	return Source{ID: nextID("system", reason), Name: reason, Category: CategorySystem}
}

func NewTestSource(label string) Source {
	return Source{ID: nextID("test", label), Name: label, Category: CategoryTest}
}

func (s Source) Equal(o Source) bool {
	return s.ID == o.ID
}

func (s Source) String() string {
	switch {
	case s.Category == CategoryTimer && s.Frequency > 0:
		return fmt.Sprintf("%s (%s, %.4g Hz)", s.Name, s.Category, s.Frequency)
	case s.HasPort:
		return fmt.Sprintf("%s (%s, port 0x%02X)", s.Name, s.Category, s.Port)
	default:
		return fmt.Sprintf("%s (%s)", s.Name, s.Category)
	}
}
