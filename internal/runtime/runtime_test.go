package runtime

import (
	"testing"
	"time"
)

func TestUntilNextMidnightIsPositiveAndUnderADay(t *testing.T) {
	d := untilNextMidnight()
	if d <= 0 {
		t.Errorf("untilNextMidnight() = %v, want positive", d)
	}
	if d > 24*time.Hour {
		t.Errorf("untilNextMidnight() = %v, want <= 24h", d)
	}
}
