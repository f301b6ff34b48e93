package eventbus

import (
	"context"
	"testing"
)

type testEvent struct{ N int }
type otherEvent struct{}

func TestGlobalBusDispatch(t *testing.T) {
	Use(New())
	defer Use(nil)

	var got []int
	unsubscribe := Subscribe(func(ctx context.Context, e testEvent) {
		got = append(got, e.N)
	})
	Subscribe(func(ctx context.Context, e otherEvent) {
		t.Fatal("handler for unrelated type fired")
	})

	Publish(context.Background(), testEvent{N: 1})
	Publish(context.Background(), testEvent{N: 2})
	unsubscribe()
	Publish(context.Background(), testEvent{N: 3})

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("got %v", got)
	}
}

func TestNilBusDropsEvents(t *testing.T) {
	Use(nil)
	// Must not panic and must not invoke anything.
	Publish(context.Background(), testEvent{N: 1})
	if unsubscribe := Subscribe(func(context.Context, testEvent) {}); unsubscribe == nil {
		t.Fatal("expected no-op unsubscribe")
	}
}
