package model

import (
	"testing"
	"time"
)

func TestPriorityDecrement(t *testing.T) {
	// Higher priority, smaller decrement: the counter decays slower.
	order := []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}
	for i := 1; i < len(order); i++ {
		if order[i-1].Decrement() >= order[i].Decrement() {
			t.Errorf("%s decrement %d should be smaller than %s decrement %d",
				order[i-1], order[i-1].Decrement(), order[i], order[i].Decrement())
		}
	}
}

func TestPriorityRank(t *testing.T) {
	if PriorityCritical.Rank() <= PriorityHigh.Rank() ||
		PriorityHigh.Rank() <= PriorityNormal.Rank() ||
		PriorityNormal.Rank() <= PriorityLow.Rank() {
		t.Error("priority ranks should be strictly ordered")
	}
}

func TestPriorityValid(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical} {
		if !p.Valid() {
			t.Errorf("%s should be valid", p)
		}
	}
	if Priority("urgent").Valid() {
		t.Error("unknown priority should be invalid")
	}
}

func TestTimeArithmetic(t *testing.T) {
	var boot Time
	later := boot.Add(150 * time.Millisecond)
	if later.Sub(boot) != 150*time.Millisecond {
		t.Errorf("Sub = %s, want 150ms", later.Sub(boot))
	}
	if later.String() != "150ms" {
		t.Errorf("String = %q, want 150ms", later.String())
	}
}

func TestPidString(t *testing.T) {
	if got := Pid(7).String(); got != "pid_7" {
		t.Errorf("String = %q, want pid_7", got)
	}
}
