package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	schedulex "github.com/tanpawarit/chative-order-relay/agent/schedule"
	statex "github.com/tanpawarit/chative-order-relay/agent/state"
)

type stamped struct {
	text string
	at   time.Time
}

func TestFanoutConfirmedSequence(t *testing.T) {
	t.Parallel()

	gaps := []time.Duration{30 * time.Millisecond, 25 * time.Millisecond, 20 * time.Millisecond}
	sched := schedulex.New()
	f := NewFanout(sched, Config{ConfirmedGaps: gaps})

	var (
		mu   sync.Mutex
		got  []stamped
		call int
	)
	recipient := func(ctx context.Context, text string) error {
		mu.Lock()
		defer mu.Unlock()
		call++
		got = append(got, stamped{text: text, at: time.Now()})
		if call == 2 {
			return errors.New("send failed")
		}
		return nil
	}

	if err := f.Notify("o-1", statex.StatusConfirmed, recipient); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	sched.Wait()

	if len(got) != 4 {
		t.Fatalf("sent %d messages, want 4", len(got))
	}
	want := Messages(statex.StatusConfirmed)
	for i := range got {
		if got[i].text != want[i] {
			t.Fatalf("message %d = %q, want %q", i, got[i].text, want[i])
		}
		if i > 0 {
			if gap := got[i].at.Sub(got[i-1].at); gap < gaps[i-1] {
				t.Fatalf("gap before message %d = %s, want >= %s", i, gap, gaps[i-1])
			}
		}
	}
}

func TestFanoutSingleStatusMessages(t *testing.T) {
	t.Parallel()

	sched := schedulex.New()
	f := NewFanout(sched, Config{})

	var (
		mu  sync.Mutex
		got []string
	)
	recipient := func(ctx context.Context, text string) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, text)
		return nil
	}

	_ = f.Notify("o-1", statex.StatusPreparing, recipient)
	sched.Wait()
	_ = f.Notify("o-1", statex.StatusOutForDelivery, recipient)
	sched.Wait()
	_ = f.Notify("o-1", statex.StatusOrderSent, recipient)
	sched.Wait()

	if len(got) != 2 {
		t.Fatalf("messages = %v, want preparing and out_for_delivery only", got)
	}
}

func TestFanoutKeepsConfirmedSequenceContiguous(t *testing.T) {
	t.Parallel()

	gaps := []time.Duration{30 * time.Millisecond, 30 * time.Millisecond, 30 * time.Millisecond}
	sched := schedulex.New()
	f := NewFanout(sched, Config{ConfirmedGaps: gaps})

	var (
		mu  sync.Mutex
		got []string
	)
	recipient := func(ctx context.Context, text string) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, text)
		return nil
	}

	if err := f.Notify("o-1", statex.StatusConfirmed, recipient); err != nil {
		t.Fatalf("Notify(confirmed) error = %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := f.Notify("o-1", statex.StatusPreparing, recipient); err != nil {
		t.Fatalf("Notify(preparing) error = %v", err)
	}
	if err := f.Forward("o-1", "Qual o ponto de referência?", recipient); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	sched.Wait()

	want := append(Messages(statex.StatusConfirmed), Messages(statex.StatusPreparing)...)
	want = append(want, "Qual o ponto de referência?")
	if len(got) != len(want) {
		t.Fatalf("messages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("message %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	ok := Config{MinDelay: time.Second, MaxDelay: 2 * time.Second, ConfirmedGaps: []time.Duration{1, 2, 3}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	bad := ok
	bad.MaxDelay = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("Validate() expected error for inverted range")
	}
	bad = ok
	bad.ConfirmedGaps = bad.ConfirmedGaps[:1]
	if err := bad.Validate(); err == nil {
		t.Fatal("Validate() expected error for missing gaps")
	}
}
