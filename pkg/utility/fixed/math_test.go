package fixed

import (
	"testing"
)

func TestFixedMath_Mean(t *testing.T) {
	points := []Point{FromInt64(1, 0), FromInt64(2, 0), FromInt64(3, 0)}
	if got := Mean(points); !got.Eq(Two) {
		t.Errorf("Mean = %s; want 2", got.String())
	}
	if got := Mean(nil); !got.IsZero() {
		t.Errorf("Mean of empty = %s; want 0", got.String())
	}
}

func TestFixedMath_StdDev(t *testing.T) {
	points := []Point{FromInt64(2, 0), FromInt64(4, 0), FromInt64(4, 0), FromInt64(4, 0), FromInt64(5, 0), FromInt64(5, 0), FromInt64(7, 0), FromInt64(9, 0)}
	got := StdDev(points, Mean(points))
	if !got.Eq(Two) {
		t.Errorf("StdDev = %s; want 2", got.String())
	}
	if got := StdDev([]Point{One}, One); !got.IsZero() {
		t.Errorf("StdDev of single point = %s; want 0", got.String())
	}
}

func TestFixedMath_SharpeRatio(t *testing.T) {
	flat := []Point{One, One, One}
	if got := SharpeRatio(flat, Zero); !got.IsZero() {
		t.Errorf("SharpeRatio with zero volatility = %s; want 0", got.String())
	}

	mixed := []Point{FromFloat64(0.01), FromFloat64(-0.01), FromFloat64(0.02)}
	if got := SharpeRatio(mixed, Zero); !got.IsPos() {
		t.Errorf("SharpeRatio = %s; want positive", got.String())
	}
}

func TestFixedMath_SortinoRatio(t *testing.T) {
	allGains := []Point{FromFloat64(0.01), FromFloat64(0.02)}
	if got := SortinoRatio(allGains, Zero); !got.IsZero() {
		t.Errorf("SortinoRatio without downside = %s; want 0", got.String())
	}

	mixed := []Point{FromFloat64(0.03), FromFloat64(-0.01), FromFloat64(-0.02), FromFloat64(0.04)}
	if got := SortinoRatio(mixed, Zero); !got.IsPos() {
		t.Errorf("SortinoRatio = %s; want positive", got.String())
	}
}
