package planner

import (
	"math"

	"github.com/ethosn/cascadec/internal/graph"
	"github.com/ethosn/cascadec/pkg/npu"
)

// BuildReluInfo converts a floating-point ReLU bound pair into the
// quantised ReluInfo the MCE applies at its output, per §4.4/§8
// scenario 4.
//
// BoundedReLu's two real-valued bounds are canonicalised (the smaller
// becomes the real lower bound, the larger the real upper bound)
// before quantisation, so callers do not need to pass them in a
// particular order. Each bound is quantised and saturated to dt's
// representable range. Unbounded ReLu ignores both arguments: its real
// lower bound is always zero (so its quantised lower bound is exactly
// the tensor's zero point) and its upper bound is the data type's
// maximum.
func BuildReluInfo(a, b float64, unbounded bool, dt npu.DataType, quant npu.QuantInfo) graph.ReluInfo {
	qMin, qMax := dt.Range()

	if unbounded {
		return graph.ReluInfo{Min: quant.Quantise(0, dt), Max: qMax}
	}

	realMin, realMax := a, b
	if realMin > realMax {
		realMin, realMax = realMax, realMin
	}

	lower := quant.Quantise(realMin, dt)
	upper := quant.Quantise(realMax, dt)
	if lower < qMin {
		lower = qMin
	}
	if upper > qMax {
		upper = qMax
	}
	return graph.ReluInfo{Min: lower, Max: upper}
}

// RescaleMultiplierShift computes the quantised multiplier/shift pair
// representing inScale/outScale, expressed as a u16 multiplier and u8
// shift with round-half-to-even, per §4.4. Used by Addition_Rescale and
// by any activation whose input and output scale differ.
func RescaleMultiplierShift(inScale, outScale float32) (multiplier uint16, shift uint8) {
	ratio := float64(inScale) / float64(outScale)
	if ratio <= 0 {
		return 0, 0
	}

	// Find a shift such that ratio * 2^shift lands in [2^14, 2^15) so the
	// 16-bit multiplier carries full precision.
	s := 0
	scaled := ratio
	for scaled < (1 << 14) && s < 255 {
		scaled *= 2
		s++
	}
	for scaled >= (1 << 15) && s > 0 {
		scaled /= 2
		s--
	}

	m := math.RoundToEven(scaled)
	if m >= (1 << 16) {
		m = (1 << 16) - 1
	}
	if m < 0 {
		m = 0
	}
	return uint16(m), uint8(s)
}
