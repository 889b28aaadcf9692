// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xchange-foundation/msglog/lib/clock"
)

func TestRunCallsAtEachOccurrence(t *testing.T) {
	fake := clock.Fake(date(2026, 3, 1, 10, 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schedule := mustParse(t, "@every 1h")
	calls := make(chan time.Time, 10)
	done := make(chan error, 1)
	go func() {
		runs := 0
		done <- Run(ctx, "test", schedule, fake, nil, func(context.Context) error {
			runs++
			calls <- fake.Now()
			if runs == 1 {
				return errors.New("first run fails")
			}
			return nil
		})
	}()

	for hour := 11; hour <= 12; hour++ {
		fake.WaitForTimers(1)
		fake.Advance(time.Hour)
		select {
		case at := <-calls:
			if want := date(2026, 3, 1, hour, 0); !at.Equal(want) {
				t.Errorf("run at %v, want %v", at, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("no run for %02d:00", hour)
		}
	}

	fake.WaitForTimers(1)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
