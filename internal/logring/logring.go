// Package logring implements the fixed-capacity log ring from §3: a
// circular buffer of recent log entries, filterable by coarse category, fed
// by a zerolog hook instead of the vprintf-interception trick the original
// firmware used.
package logring

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Category is the coarse filter the web UI applies to the log ring.
type Category string

const (
	CategoryAll      Category = "all"
	CategoryCore     Category = "core"
	CategoryCamera   Category = "camera"
	CategoryDoorbell Category = "doorbell"
)

// componentCategory maps the "component" field every logger in this module
// sets to one of the coarse categories the web UI filters by.
var componentCategory = map[string]Category{
	"orchestrator": CategoryCore,
	"nvs":          CategoryCore,
	"netinfo":      CategoryCore,
	"camera":       CategoryCamera,
	"rtsp":         CategoryCamera,
	"mjpeg":        CategoryCamera,
	"sip":          CategoryDoorbell,
	"sip-rtp":      CategoryDoorbell,
	"button":       CategoryDoorbell,
	"audio":        CategoryDoorbell,
	"led":          CategoryDoorbell,
}

// Entry is one ring slot.
type Entry struct {
	Time      time.Time `json:"time"`
	Level     string    `json:"level"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
}

const capacity = 100

// Ring is a fixed-capacity circular buffer, short-held-mutex protected per
// §5's shared-resource table.
type Ring struct {
	mu      sync.Mutex
	entries [capacity]Entry
	head    int // next write position
	count   int
}

func New() *Ring {
	return &Ring{}
}

func (r *Ring) append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.head] = e
	r.head = (r.head + 1) % capacity
	if r.count < capacity {
		r.count++
	}
}

// Snapshot returns entries matching category, oldest first. Callers do the
// JSON marshaling outside the lock.
func (r *Ring) Snapshot(category Category) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, r.count)
	start := (r.head - r.count + capacity) % capacity
	for i := 0; i < r.count; i++ {
		e := r.entries[(start+i)%capacity]
		if category == CategoryAll || categoryOf(e.Component) == category {
			out = append(out, e)
		}
	}
	return out
}

func categoryOf(component string) Category {
	if c, ok := componentCategory[component]; ok {
		return c
	}
	return CategoryCore
}

// Logger returns a child of base tagged with component, both as a normal
// zerolog "component" field and as a hook that mirrors every record into
// the ring under that component name.
func (r *Ring) Logger(base zerolog.Logger, component string) zerolog.Logger {
	hook := zerolog.HookFunc(func(e *zerolog.Event, level zerolog.Level, msg string) {
		r.append(Entry{Time: time.Now(), Level: level.String(), Component: component, Message: msg})
	})
	return base.With().Str("component", component).Logger().Hook(hook)
}
