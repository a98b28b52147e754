package planner

import (
	"math"
	"testing"

	"github.com/ethosn/cascadec/internal/graph"
	"github.com/ethosn/cascadec/pkg/npu"
)

func TestBuildReluInfoBoundedU8(t *testing.T) {
	got := BuildReluInfo(1.0, -1.0, false, npu.QAsymmU8, npu.QuantInfo{ZeroPoint: 20, Scale: 0.1})
	want := graph.ReluInfo{Min: 10, Max: 30}
	if got != want {
		t.Errorf("BuildReluInfo = %+v, want %+v", got, want)
	}
}

func TestBuildReluInfoBoundedS8(t *testing.T) {
	got := BuildReluInfo(1.0, -1.0, false, npu.QAsymmS8, npu.QuantInfo{ZeroPoint: -20, Scale: 0.1})
	want := graph.ReluInfo{Min: -30, Max: -10}
	if got != want {
		t.Errorf("BuildReluInfo = %+v, want %+v", got, want)
	}
}

func TestBuildReluInfoUnboundedU8(t *testing.T) {
	got := BuildReluInfo(0, 0, true, npu.QAsymmU8, npu.QuantInfo{ZeroPoint: 20, Scale: 0.1})
	want := graph.ReluInfo{Min: 20, Max: 255}
	if got != want {
		t.Errorf("BuildReluInfo = %+v, want %+v", got, want)
	}
}

func TestRescaleMultiplierShiftRoundTrips(t *testing.T) {
	m, s := RescaleMultiplierShift(1.0, 2.0)
	reconstructed := float64(m) / math.Pow(2, float64(s))
	if diff := reconstructed - 0.5; diff > 1e-3 || diff < -1e-3 {
		t.Errorf("reconstructed ratio = %v, want ~0.5", reconstructed)
	}
}
