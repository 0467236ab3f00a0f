package returns

import (
	"math"
	"testing"
)

func TestMovingAverages_GrowingWindow(t *testing.T) {
	closes := []float64{100, 110, 121}

	points := MovingAverages(closes, 2, 90)
	if len(points) != 2 {
		t.Fatalf("expected 2 averages from the 2nd observation on, got %d", len(points))
	}

	// 2nd day: window of 2, mean of [100, 110]
	if points[0].Index != 1 || points[0].WindowDays != 2 {
		t.Errorf("first point = %+v, want index 1 window 2", points[0])
	}
	if math.Abs(points[0].Value-105) > 1e-9 {
		t.Errorf("MA at 2nd day = %v, want 105", points[0].Value)
	}

	// 3rd day: window of 3, mean of [100, 110, 121]
	if points[1].WindowDays != 3 {
		t.Errorf("second point window = %d, want 3", points[1].WindowDays)
	}
	want := (100.0 + 110.0 + 121.0) / 3.0
	if math.Abs(points[1].Value-want) > 1e-9 {
		t.Errorf("MA at 3rd day = %v, want %v", points[1].Value, want)
	}
}

func TestMovingAverages_CappedWindow(t *testing.T) {
	// 10 observations with a target window of 5: the last average covers
	// only the trailing 5 closes.
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	points := MovingAverages(closes, 2, 5)
	last := points[len(points)-1]
	if last.WindowDays != 5 {
		t.Errorf("capped window = %d, want 5", last.WindowDays)
	}
	want := (6.0 + 7.0 + 8.0 + 9.0 + 10.0) / 5.0
	if math.Abs(last.Value-want) > 1e-9 {
		t.Errorf("capped MA = %v, want %v", last.Value, want)
	}

	// Window grows one per observation until the cap
	for _, p := range points {
		wantWindow := p.Index + 1
		if wantWindow > 5 {
			wantWindow = 5
		}
		if p.WindowDays != wantWindow {
			t.Errorf("index %d: window = %d, want %d", p.Index, p.WindowDays, wantWindow)
		}
	}
}

func TestMovingAverages_InsufficientHistory(t *testing.T) {
	if points := MovingAverages([]float64{100}, 2, 90); points != nil {
		t.Errorf("below-minimum history should yield nil, got %v", points)
	}
}
