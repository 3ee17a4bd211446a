package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreSessionIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sessions := NewMemoryStore().SessionStore()

	st := NewSession("s1", time.Now())
	if err := sessions.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	st.OrderData.Food = "mutated after save"

	got, err := sessions.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.OrderData.Food != "" {
		t.Fatalf("stored session shares memory with caller: %q", got.OrderData.Food)
	}

	if _, err := sessions.Load(ctx, "nope"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load(nope) error = %v, want ErrStateNotFound", err)
	}
	if err := sessions.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := sessions.Load(ctx, "s1"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() after Delete error = %v", err)
	}
}

func TestMemoryStoreOrderContactUniqueness(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	orders := NewMemoryStore().OrderStore()
	now := time.Now()
	restaurant := Candidate{Name: "Sushi", ContactID: "5511988887777"}

	o1 := NewOrder("o1", "s1", restaurant, OrderData{}, now)
	if err := orders.Create(ctx, o1); err != nil {
		t.Fatalf("Create(o1) error = %v", err)
	}
	if err := orders.Create(ctx, NewOrder("o2", "s2", restaurant, OrderData{}, now)); !errors.Is(err, ErrContactInUse) {
		t.Fatalf("Create(o2) error = %v, want ErrContactInUse", err)
	}

	o1.Status = StatusOutForDelivery
	if err := orders.Update(ctx, o1); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := orders.Create(ctx, NewOrder("o2", "s2", restaurant, OrderData{}, now)); err != nil {
		t.Fatalf("Create(o2) after release error = %v", err)
	}

	got, err := orders.GetByContact(ctx, restaurant.ContactID)
	if err != nil || got.OrderID != "o2" {
		t.Fatalf("GetByContact() = %v, %v", got, err)
	}
	old, err := orders.GetBySession(ctx, "s1")
	if err != nil || old.Status != StatusOutForDelivery {
		t.Fatalf("GetBySession(s1) = %v, %v", old, err)
	}
}

func TestMemoryStoreDeleteReleasesContact(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	orders := NewMemoryStore().OrderStore()
	now := time.Now()
	restaurant := Candidate{Name: "Sushi", ContactID: "5511988887777"}

	if err := orders.Create(ctx, NewOrder("o1", "s1", restaurant, OrderData{}, now)); err != nil {
		t.Fatalf("Create(o1) error = %v", err)
	}
	if err := orders.Delete(ctx, "o1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := orders.Get(ctx, "o1"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("Get() after Delete error = %v, want ErrOrderNotFound", err)
	}
	if _, err := orders.GetBySession(ctx, "s1"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("GetBySession() after Delete error = %v, want ErrOrderNotFound", err)
	}
	if err := orders.Create(ctx, NewOrder("o2", "s2", restaurant, OrderData{}, now)); err != nil {
		t.Fatalf("Create(o2) after Delete error = %v", err)
	}
	if err := orders.Delete(ctx, "missing"); err != nil {
		t.Fatalf("Delete(missing) error = %v", err)
	}
}

func TestMemoryMailboxPopConsumes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mailbox := NewMemoryStore().Mailbox()

	if _, err := mailbox.Pop(ctx, "s1"); !errors.Is(err, ErrMailboxEmpty) {
		t.Fatalf("Pop() on empty error = %v", err)
	}
	_ = mailbox.Push(ctx, "s1", PendingMessage{Text: "a"})
	_ = mailbox.Push(ctx, "s1", PendingMessage{Text: "b"})

	first, _ := mailbox.Pop(ctx, "s1")
	second, _ := mailbox.Pop(ctx, "s1")
	if first.Text != "a" || second.Text != "b" {
		t.Fatalf("unexpected order: %q, %q", first.Text, second.Text)
	}
	if _, err := mailbox.Pop(ctx, "s1"); !errors.Is(err, ErrMailboxEmpty) {
		t.Fatalf("message delivered twice: %v", err)
	}
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	t.Parallel()

	km := NewKeyedMutex()
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("session-1")
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
	if _, ok := km.locks.Load("session-1"); ok {
		t.Fatal("idle key should be released")
	}
}
