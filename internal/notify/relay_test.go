package notify

import (
	"context"
	"testing"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/storage"
)

type fakeForwarder struct {
	reachable map[string]bool
	sent      []string // identity:kind
}

func (f *fakeForwarder) SendTo(identity, msgType string, payload any) bool {
	if !f.reachable[identity] {
		return false
	}
	f.sent = append(f.sent, identity+":"+msgType)
	return true
}

type fakePublisher struct {
	keys []string
	fail bool
}

func (f *fakePublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	if f.fail {
		return context.DeadlineExceeded
	}
	f.keys = append(f.keys, routingKey)
	return nil
}

func TestNotifyReachableRecipient(t *testing.T) {
	fw := &fakeForwarder{reachable: map[string]bool{"d1": true}}
	pub := &fakePublisher{}
	r := NewRelay(storage.NewMemoryStore(), pub, fw, nil)

	delivered := r.Notify(context.Background(), "d1", "new_ride_request", "ride1", map[string]any{"ride_id": "ride1"})
	if !delivered {
		t.Fatal("expected live delivery to reachable recipient")
	}
	if len(fw.sent) != 1 || fw.sent[0] != "d1:new_ride_request" {
		t.Fatalf("forwarded events: %v", fw.sent)
	}
	if len(pub.keys) != 1 || pub.keys[0] != "ride.new_ride_request" {
		t.Fatalf("published routing keys: %v", pub.keys)
	}
}

func TestNotifyUnreachableStillDurable(t *testing.T) {
	store := storage.NewMemoryStore()
	fw := &fakeForwarder{reachable: map[string]bool{}}
	r := NewRelay(store, nil, fw, nil)

	delivered := r.Notify(context.Background(), "ghost", "ride_status_changed", "ride1", nil)
	if delivered {
		t.Fatal("unreachable recipient reported as delivered")
	}
}

func TestNotifySurvivesBrokerFailure(t *testing.T) {
	fw := &fakeForwarder{reachable: map[string]bool{"p1": true}}
	r := NewRelay(storage.NewMemoryStore(), &fakePublisher{fail: true}, fw, nil)

	if !r.Notify(context.Background(), "p1", "drivers_notified", "ride1", nil) {
		t.Fatal("broker failure must not block live delivery")
	}
}

func TestRideStatusChangedPayload(t *testing.T) {
	fw := &captureForwarder{}
	r := NewRelay(storage.NewMemoryStore(), nil, fw, nil)
	ride := &models.Ride{ID: "r1", DriverID: "d1", Status: models.RideCompleted, Fare: 1500}

	r.RideStatusChanged(context.Background(), "p1", ride, models.RidePickedUp)

	if fw.lastType != "ride_status_changed" {
		t.Fatalf("event type %q", fw.lastType)
	}
	p, ok := fw.lastPayload.(map[string]any)
	if !ok {
		t.Fatalf("payload type %T", fw.lastPayload)
	}
	if p["status"] != "completed" || p["previous_status"] != "picked_up" || p["fare"] != 1500.0 {
		t.Fatalf("payload %v", p)
	}
}

type captureForwarder struct {
	lastType    string
	lastPayload any
}

func (c *captureForwarder) SendTo(identity, msgType string, payload any) bool {
	c.lastType = msgType
	c.lastPayload = payload
	return true
}
