// Package presence tracks which identities are currently reachable over
// a live connection. It is best-effort by contract: operations on
// unknown identities are no-ops, never errors, because any client may be
// behind an unreliable transport.
package presence

import (
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
)

type Role string

const (
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
)

// Sink is the write side of a live connection. The registry stores it;
// the dispatcher and relay use it to push events to the client.
type Sink interface {
	Send(msgType string, payload any) error
}

// Entry is a point-in-time copy of one identity's presence state.
type Entry struct {
	ID           string
	Role         Role
	VehicleClass models.VehicleClass
	Available    bool
	LastSeen     time.Time
	Location     *models.Coord
	Sink         Sink
}

// DefaultGracePeriod is how long a disconnected entry survives before
// hard removal. Reconnects inside the window resume the same entry.
const DefaultGracePeriod = 30 * time.Second

type liveEntry struct {
	Entry
	disconnected bool
	removal      *time.Timer
}

// Registry is the in-memory presence directory owned by the server
// instance and injected into the dispatcher and the lifecycle engine.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*liveEntry
	grace   time.Duration
}

func NewRegistry(grace time.Duration) *Registry {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Registry{entries: make(map[string]*liveEntry), grace: grace}
}

// Register inserts or refreshes an entry. Re-registering inside the
// grace period cancels the pending removal and keeps the previous
// availability flag: it is a reconnect, not a new presence.
func (r *Registry) Register(id string, role Role, sink Sink) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		if e.removal != nil {
			e.removal.Stop()
			e.removal = nil
		}
		e.disconnected = false
		e.Role = role
		e.Sink = sink
		e.LastSeen = time.Now()
		r.updateGauge()
		return
	}
	r.entries[id] = &liveEntry{Entry: Entry{
		ID:       id,
		Role:     role,
		Sink:     sink,
		LastSeen: time.Now(),
	}}
}

// updateGauge recounts reachable available drivers; callers hold r.mu.
func (r *Registry) updateGauge() {
	n := 0
	for _, e := range r.entries {
		if e.Role == RoleDriver && e.Available && !e.disconnected {
			n++
		}
	}
	observability.DriversAvailable.Set(float64(n))
}

// SetAvailability flips a driver's availability flag and optionally
// records a location. Non-drivers and unknown identities are no-ops.
func (r *Registry) SetAvailability(id string, available bool, loc *models.Coord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.Role != RoleDriver {
		return
	}
	e.Available = available
	if loc != nil {
		c := *loc
		e.Location = &c
	}
	e.LastSeen = time.Now()
	r.updateGauge()
}

// SetVehicleClass records the class a driver serves; dispatch filters
// on it.
func (r *Registry) SetVehicleClass(id string, class models.VehicleClass) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok && e.Role == RoleDriver {
		e.VehicleClass = class
	}
}

// Touch refreshes the last-seen timestamp, recording a location when
// one is pushed with the heartbeat.
func (r *Registry) Touch(id string, loc *models.Coord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return
	}
	if loc != nil {
		c := *loc
		e.Location = &c
	}
	e.LastSeen = time.Now()
}

func (r *Registry) Lookup(id string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}

// ListAvailable returns a point-in-time snapshot of reachable, available
// entries of the given role. class narrows to drivers serving that
// class; entries that never announced a class match any. Availability
// changes after the call do not affect the returned slice.
func (r *Registry) ListAvailable(role Role, class models.VehicleClass) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Role != role || !e.Available || e.disconnected {
			continue
		}
		if class != "" && e.VehicleClass != "" && e.VehicleClass != class {
			continue
		}
		out = append(out, e.Entry)
	}
	return out
}

// OnDisconnect marks the entry tentatively disconnected and schedules
// hard removal after the grace period. A Register before the timer
// fires cancels it. The timer runs off the request path.
func (r *Registry) OnDisconnect(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return
	}
	e.disconnected = true
	e.Sink = nil
	if e.removal != nil {
		e.removal.Stop()
	}
	e.removal = time.AfterFunc(r.grace, func() { r.remove(id) })
	r.updateGauge()
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok && e.disconnected {
		delete(r.entries, id)
		r.updateGauge()
	}
}

// Close stops all pending removal timers. Entries are left in place;
// the registry is about to be dropped anyway.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.removal != nil {
			e.removal.Stop()
		}
	}
}
