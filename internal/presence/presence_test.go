package presence

import (
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

type nopSink struct{}

func (nopSink) Send(string, any) error { return nil }

func TestRegisterIdempotent(t *testing.T) {
	r := NewRegistry(time.Second)
	defer r.Close()
	r.Register("d1", RoleDriver, nopSink{})
	r.Register("d1", RoleDriver, nopSink{})
	if got := len(r.ListAvailable(RoleDriver, "")); got != 0 {
		t.Fatalf("fresh driver should not be available, got %d", got)
	}
	if _, ok := r.Lookup("d1"); !ok {
		t.Fatal("expected entry for d1")
	}
}

func TestSetAvailabilityDriverOnly(t *testing.T) {
	r := NewRegistry(time.Second)
	defer r.Close()
	r.Register("p1", RolePassenger, nopSink{})
	r.SetAvailability("p1", true, nil)
	if e, _ := r.Lookup("p1"); e.Available {
		t.Fatal("passenger must never become available")
	}
	// unknown identity is a no-op, not a panic or error
	r.SetAvailability("ghost", true, nil)
}

func TestListAvailableSnapshot(t *testing.T) {
	r := NewRegistry(time.Second)
	defer r.Close()
	for _, id := range []string{"a", "b", "c"} {
		r.Register(id, RoleDriver, nopSink{})
		r.SetAvailability(id, true, nil)
	}
	r.Register("d", RoleDriver, nopSink{})

	snap := r.ListAvailable(RoleDriver, "")
	if len(snap) != 3 {
		t.Fatalf("expected 3 available drivers, got %d", len(snap))
	}
	// mutation after the snapshot must not affect it
	r.SetAvailability("a", false, nil)
	if len(snap) != 3 {
		t.Fatal("snapshot changed retroactively")
	}
	seen := map[string]bool{}
	for _, e := range snap {
		if seen[e.ID] {
			t.Fatalf("duplicate entry %s in snapshot", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestListAvailableVehicleClassFilter(t *testing.T) {
	r := NewRegistry(time.Second)
	defer r.Close()
	r.Register("eco", RoleDriver, nopSink{})
	r.SetVehicleClass("eco", models.VehicleEconomy)
	r.SetAvailability("eco", true, nil)
	r.Register("xl", RoleDriver, nopSink{})
	r.SetVehicleClass("xl", models.VehicleXL)
	r.SetAvailability("xl", true, nil)
	r.Register("any", RoleDriver, nopSink{})
	r.SetAvailability("any", true, nil)

	got := r.ListAvailable(RoleDriver, models.VehicleXL)
	ids := map[string]bool{}
	for _, e := range got {
		ids[e.ID] = true
	}
	if len(got) != 2 || !ids["xl"] || !ids["any"] {
		t.Fatalf("expected xl+any, got %v", ids)
	}
}

func TestReconnectWithinGraceKeepsEntry(t *testing.T) {
	r := NewRegistry(200 * time.Millisecond)
	defer r.Close()
	r.Register("d1", RoleDriver, nopSink{})
	r.SetAvailability("d1", true, nil)

	r.OnDisconnect("d1")
	// tentatively disconnected drivers are not dispatchable
	if n := len(r.ListAvailable(RoleDriver, "")); n != 0 {
		t.Fatalf("disconnected driver still listed, got %d", n)
	}

	time.Sleep(50 * time.Millisecond)
	r.Register("d1", RoleDriver, nopSink{})

	e, ok := r.Lookup("d1")
	if !ok || !e.Available {
		t.Fatalf("reconnect within grace must keep availability, entry=%+v ok=%v", e, ok)
	}
	// the canceled removal must not fire later
	time.Sleep(300 * time.Millisecond)
	if _, ok := r.Lookup("d1"); !ok {
		t.Fatal("entry removed despite reconnect")
	}
}

func TestReconnectAfterGraceIsFresh(t *testing.T) {
	r := NewRegistry(50 * time.Millisecond)
	defer r.Close()
	r.Register("d1", RoleDriver, nopSink{})
	r.SetAvailability("d1", true, nil)

	r.OnDisconnect("d1")
	time.Sleep(150 * time.Millisecond)

	if _, ok := r.Lookup("d1"); ok {
		t.Fatal("entry should be gone after grace period")
	}
	r.Register("d1", RoleDriver, nopSink{})
	if e, _ := r.Lookup("d1"); e.Available {
		t.Fatal("fresh registration must not inherit old availability")
	}
}

func TestTouchUpdatesLocation(t *testing.T) {
	r := NewRegistry(time.Second)
	defer r.Close()
	r.Register("d1", RoleDriver, nopSink{})
	loc := models.Coord{Lat: 43.2, Lon: 76.9}
	r.Touch("d1", &loc)
	e, _ := r.Lookup("d1")
	if e.Location == nil || e.Location.Lat != 43.2 {
		t.Fatalf("location not recorded: %+v", e.Location)
	}
}
