package leave

import (
	"testing"
	"time"
)

func TestInclusiveDays(t *testing.T) {
	start := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	if days := InclusiveDays(start, end); days != 1 {
		t.Fatalf("expected 1 day, got %v", days)
	}

	end = time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC)
	if days := InclusiveDays(start, end); days != 3 {
		t.Fatalf("expected 3 days, got %v", days)
	}
}

func TestInclusiveDaysIgnoresClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)
	end := time.Date(2024, 1, 3, 0, 15, 0, 0, time.UTC)

	if days := InclusiveDays(start, end); days != 3 {
		t.Fatalf("expected 3 days, got %v", days)
	}
}

func TestInclusiveDaysAcrossLeapDay(t *testing.T) {
	start := time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	if days := InclusiveDays(start, end); days != 3 {
		t.Fatalf("expected 3 days, got %v", days)
	}
}
