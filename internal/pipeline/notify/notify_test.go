package notify

import "testing"

func TestPublishDeliversToAllSubscribersOfTenant(t *testing.T) {
	p := New()

	ch1, unsub1 := p.Subscribe("tenant-a")
	defer unsub1()
	ch2, unsub2 := p.Subscribe("tenant-a")
	defer unsub2()
	chOther, unsubOther := p.Subscribe("tenant-b")
	defer unsubOther()

	p.Publish("tenant-a", "artifact:approved", map[string]any{"artifact_id": "a1"})

	for _, ch := range []<-chan Message{ch1, ch2} {
		select {
		case msg := <-ch:
			if msg.Event != "artifact:approved" {
				t.Fatalf("event = %q, want artifact:approved", msg.Event)
			}
		default:
			t.Fatalf("expected message for tenant-a subscriber")
		}
	}

	select {
	case <-chOther:
		t.Fatalf("tenant-b subscriber should not receive tenant-a's broadcast")
	default:
	}
}

func TestPublishDoesNotBlockWhenSubscriberBufferIsFull(t *testing.T) {
	p := New()
	ch, unsub := p.Subscribe("tenant-a")
	defer unsub()

	for i := 0; i < 64; i++ {
		p.Publish("tenant-a", "ping", nil)
	}

	drained := 0
	for {
		select {
		case <-ch:
			drained++
		default:
			if drained == 0 {
				t.Fatalf("expected at least one buffered message")
			}
			return
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	p := New()
	ch, unsub := p.Subscribe("tenant-a")
	unsub()

	p.Publish("tenant-a", "ping", nil)

	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed after unsubscribe")
	}
}
