package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/presence"
)

type nopSink struct{}

func (nopSink) Send(string, any) error { return nil }

type recordingRelay struct {
	mu         sync.Mutex
	dead       map[string]bool // recipients whose connection is gone
	byKind     map[string][]string
	lastCounts []int
}

func newRecordingRelay() *recordingRelay {
	return &recordingRelay{dead: map[string]bool{}, byKind: map[string][]string{}}
}

func (r *recordingRelay) Notify(_ context.Context, recipientID, kind, _ string, payload map[string]any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKind[kind] = append(r.byKind[kind], recipientID)
	if kind == "drivers_notified" {
		r.lastCounts = append(r.lastCounts, payload["count"].(int))
	}
	return !r.dead[recipientID]
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	types []string
}

func (b *recordingBroadcaster) BroadcastToRole(_ presence.Role, msgType string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.types = append(b.types, msgType)
}

func testRide(class models.VehicleClass) *models.Ride {
	return &models.Ride{
		ID:           "ride1",
		PassengerID:  "p1",
		VehicleClass: class,
		Status:       models.RideRequested,
		Fare:         1500,
	}
}

func TestDispatchNotifiesAvailableDriversOnce(t *testing.T) {
	reg := presence.NewRegistry(time.Second)
	defer reg.Close()
	for _, id := range []string{"d1", "d2", "d3"} {
		reg.Register(id, presence.RoleDriver, nopSink{})
		reg.SetAvailability(id, true, nil)
	}
	reg.Register("d4", presence.RoleDriver, nopSink{})
	// d4 never became available

	relay := newRecordingRelay()
	bc := &recordingBroadcaster{}
	d := NewDispatcher(reg, relay, bc, nil)

	count := d.Dispatch(context.Background(), testRide(""))
	if count != 3 {
		t.Fatalf("notified %d drivers, want 3", count)
	}
	notified := relay.byKind["new_ride_request"]
	if len(notified) != 3 {
		t.Fatalf("per-driver notifications: %v", notified)
	}
	seen := map[string]bool{}
	for _, id := range notified {
		if seen[id] {
			t.Fatalf("driver %s notified twice", id)
		}
		seen[id] = true
		if id == "d4" {
			t.Fatal("unavailable driver was notified")
		}
	}
	if len(bc.types) != 1 || bc.types[0] != "driver_ride_request" {
		t.Fatalf("role fallback broadcast: %v", bc.types)
	}
	if len(relay.lastCounts) != 1 || relay.lastCounts[0] != 3 {
		t.Fatalf("passenger count events: %v", relay.lastCounts)
	}
}

func TestDispatchExcludesDeadConnectionsFromCount(t *testing.T) {
	reg := presence.NewRegistry(time.Second)
	defer reg.Close()
	for _, id := range []string{"d1", "d2"} {
		reg.Register(id, presence.RoleDriver, nopSink{})
		reg.SetAvailability(id, true, nil)
	}
	relay := newRecordingRelay()
	relay.dead["d2"] = true
	d := NewDispatcher(reg, relay, nil, nil)

	if count := d.Dispatch(context.Background(), testRide("")); count != 1 {
		t.Fatalf("count %d, want 1 (dead connection excluded, not an error)", count)
	}
}

func TestDispatchFiltersVehicleClass(t *testing.T) {
	reg := presence.NewRegistry(time.Second)
	defer reg.Close()
	reg.Register("eco", presence.RoleDriver, nopSink{})
	reg.SetVehicleClass("eco", models.VehicleEconomy)
	reg.SetAvailability("eco", true, nil)
	reg.Register("xl", presence.RoleDriver, nopSink{})
	reg.SetVehicleClass("xl", models.VehicleXL)
	reg.SetAvailability("xl", true, nil)

	relay := newRecordingRelay()
	d := NewDispatcher(reg, relay, nil, nil)

	if count := d.Dispatch(context.Background(), testRide(models.VehicleXL)); count != 1 {
		t.Fatalf("count %d, want 1", count)
	}
	if got := relay.byKind["new_ride_request"]; len(got) != 1 || got[0] != "xl" {
		t.Fatalf("notified %v, want [xl]", got)
	}
}

func TestDispatchNoDriversReachesZero(t *testing.T) {
	reg := presence.NewRegistry(time.Second)
	defer reg.Close()
	relay := newRecordingRelay()
	d := NewDispatcher(reg, relay, nil, nil)

	if count := d.Dispatch(context.Background(), testRide("")); count != 0 {
		t.Fatalf("count %d, want 0", count)
	}
	// the passenger still learns that nobody was reached
	if len(relay.lastCounts) != 1 || relay.lastCounts[0] != 0 {
		t.Fatalf("passenger count events: %v", relay.lastCounts)
	}
}

// Two concurrent dispatch passes each enumerate an independent
// snapshot; no driver is dropped or double-counted within one pass.
func TestConcurrentDispatchesIndependentSnapshots(t *testing.T) {
	reg := presence.NewRegistry(time.Second)
	defer reg.Close()
	for _, id := range []string{"d1", "d2", "d3"} {
		reg.Register(id, presence.RoleDriver, nopSink{})
		reg.SetAvailability(id, true, nil)
	}
	relay := newRecordingRelay()
	d := NewDispatcher(reg, relay, nil, nil)

	var wg sync.WaitGroup
	counts := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := testRide("")
			r.ID = "ride" + string(rune('1'+i))
			counts[i] = d.Dispatch(context.Background(), r)
		}(i)
	}
	wg.Wait()
	if counts[0] != 3 || counts[1] != 3 {
		t.Fatalf("counts %v, want [3 3]", counts)
	}
}
