// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestFakeNowOnlyMovesOnAdvance(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)

	if got := fake.Now(); !got.Equal(epoch) {
		t.Fatalf("Now: got %v, want %v", got, epoch)
	}
	fake.Advance(90 * time.Second)
	if got, want := fake.Now(), epoch.Add(90*time.Second); !got.Equal(want) {
		t.Errorf("Now after Advance: got %v, want %v", got, want)
	}
}

func TestFakeAfterFuncFiresAtDeadline(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)

	fired := 0
	fake.AfterFunc(time.Second, func() { fired++ })

	fake.Advance(999 * time.Millisecond)
	if fired != 0 {
		t.Fatalf("fired before deadline: %d", fired)
	}
	fake.Advance(time.Millisecond)
	if fired != 1 {
		t.Fatalf("fired: got %d, want 1", fired)
	}
	fake.Advance(time.Hour)
	if fired != 1 {
		t.Errorf("one-shot fired again: got %d, want 1", fired)
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)

	fired := false
	timer := fake.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("Stop on pending timer: got false, want true")
	}
	if timer.Stop() {
		t.Error("second Stop: got true, want false")
	}
	fake.Advance(time.Minute)
	if fired {
		t.Error("stopped timer fired")
	}
	if fake.PendingCount() != 0 {
		t.Errorf("PendingCount: got %d, want 0", fake.PendingCount())
	}
}

func TestFakeAfterFuncRearmedFromCallback(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)

	calls := 0
	var arm func()
	arm = func() {
		fake.AfterFunc(time.Second, func() {
			calls++
			if calls < 3 {
				arm()
			}
		})
	}
	arm()

	for i := 0; i < 5; i++ {
		fake.Advance(time.Second)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestFakeTickerDropsUnreadTicks(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)

	ticker := fake.NewTicker(time.Minute)
	defer ticker.Stop()

	fake.Advance(5 * time.Minute)

	select {
	case <-ticker.C:
	default:
		t.Fatal("expected a buffered tick")
	}
	select {
	case tick := <-ticker.C:
		t.Fatalf("unexpected second tick at %v", tick)
	default:
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)

	select {
	case got := <-fake.After(0):
		if !got.Equal(epoch) {
			t.Errorf("After(0): got %v, want %v", got, epoch)
		}
	default:
		t.Fatal("After(0) did not deliver immediately")
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	t.Parallel()
	fake := Fake(epoch)

	done := make(chan struct{})
	go func() {
		<-fake.After(time.Second)
		close(done)
	}()

	fake.WaitForTimers(1)
	fake.Advance(time.Second)
	<-done
}
