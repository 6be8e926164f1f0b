package testfixtures

import (
	"testing"
	"time"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
	if got := clock.Date(); got != "2026-02-04" {
		t.Fatalf("expected 2026-02-04, got %s", got)
	}
}

func TestClockAdvance(t *testing.T) {
	clock := NewClock(time.Time{})

	if got := clock.Advance(90 * time.Second); !got.Equal(ReferenceTime().Add(90 * time.Second)) {
		t.Fatalf("advance returned %v", got)
	}
	clock.AdvanceDays(3)
	if got := clock.Date(); got != "2026-02-07" {
		t.Fatalf("expected the Saturday after, got %s", got)
	}
	if h, m, s := clock.Now().Clock(); h != 19 || m != 1 || s != 30 {
		t.Fatalf("expected time of day to be kept, got %02d:%02d:%02d", h, m, s)
	}
}

func TestClockSetDate(t *testing.T) {
	clock := NewClock(time.Time{})
	nowFn := clock.NowFunc()

	clock.SetDate("2026-01-24")
	if got := nowFn(); !got.Equal(time.Date(2026, time.January, 24, 19, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %v", got)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic for a malformed date")
		}
	}()
	clock.SetDate("24/01/2026")
}
