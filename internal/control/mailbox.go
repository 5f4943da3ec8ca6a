// Package control carries hardware-parameter updates from the outside
// (API, UI, scripts) to the frame source without ever blocking acquisition.
//
// The channel is a single-slot mailbox with last-write-wins semantics: a
// newer unconsumed update replaces an older one, and the reader polls with
// a non-blocking receive. Only the latest requested state matters.
package control

import "sync"

// ParameterUpdate is a partial set of camera parameters. Nil fields are
// absent and never overwrite previously applied values.
type ParameterUpdate struct {
	// Exposure is the requested exposure time in seconds. The frame source
	// converts it to device milliseconds before it reaches the camera.
	Exposure *float64 `json:"exposure,omitempty"`

	// Gain is the requested sensor gain in device-native units.
	Gain *float64 `json:"gain,omitempty"`
}

// Mailbox is a single-slot, concurrency-safe inbox for ParameterUpdates.
type Mailbox struct {
	mu         sync.Mutex
	pending    *ParameterUpdate
	overwrites uint64
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Submit places an update in the mailbox, replacing any unconsumed one.
// Never blocks.
func (m *Mailbox) Submit(u ParameterUpdate) {
	m.mu.Lock()
	if m.pending != nil {
		m.overwrites++
	}
	m.pending = &u
	m.mu.Unlock()
}

// TryReceive consumes the pending update if present. Never blocks; the
// second return value reports whether an update was there.
func (m *Mailbox) TryReceive() (ParameterUpdate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return ParameterUpdate{}, false
	}
	u := *m.pending
	m.pending = nil
	return u, true
}

// Overwrites returns how many updates were superseded before being read.
func (m *Mailbox) Overwrites() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overwrites
}
