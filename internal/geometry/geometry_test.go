package geometry

import (
	"testing"

	"github.com/ethosn/cascadec/internal/hwcaps"
	"github.com/ethosn/cascadec/pkg/npu"
)

func TestRoundUp(t *testing.T) {
	cases := []struct{ x, m, want int }{
		{10, 8, 16},
		{16, 8, 16},
		{1, 16, 16},
		{0, 8, 0},
	}
	for _, c := range cases {
		if got := RoundUp(c.x, c.m); got != c.want {
			t.Errorf("RoundUp(%d,%d) = %d, want %d", c.x, c.m, got, c.want)
		}
	}
}

func TestDivRoundUp(t *testing.T) {
	if got := DivRoundUp(17, 8); got != 3 {
		t.Errorf("DivRoundUp(17,8) = %d, want 3", got)
	}
	if got := DivRoundUp(16, 8); got != 2 {
		t.Errorf("DivRoundUp(16,8) = %d, want 2", got)
	}
}

func TestCreateStripeFullLength(t *testing.T) {
	tensor := npu.Shape{N: 1, H: 32, W: 32, C: 16}
	stripe := CreateStripe(tensor, npu.Shape{}, 16)
	if stripe != tensor {
		t.Errorf("full-length stripe = %+v, want %+v", stripe, tensor)
	}
}

func TestCreateStripeClampsAndRounds(t *testing.T) {
	tensor := npu.Shape{N: 1, H: 20, W: 20, C: 48}
	stripe := CreateStripe(tensor, npu.Shape{H: 10, W: 10, C: 17}, 16)
	if stripe.H != 16 {
		t.Errorf("stripe.H = %d, want 16", stripe.H)
	}
	if stripe.W != 16 {
		t.Errorf("stripe.W = %d, want 16", stripe.W)
	}
	if stripe.C != 32 {
		t.Errorf("stripe.C = %d, want 32", stripe.C)
	}
}

func TestByteCountNHWCB(t *testing.T) {
	caps := hwcaps.Ethos78_4Tops_4PleRatio()
	shape := npu.Shape{N: 1, H: 9, W: 9, C: 17}
	got := ByteCount(shape, NHWCB, npu.QAsymmU8, caps)
	// H,W (9) round up to 16; C (17) rounds up to 32, the next multiple of
	// the brick group channel count (16).
	want := int64(1 * 16 * 16 * 32)
	if got != want {
		t.Errorf("ByteCount = %d, want %d", got, want)
	}
}

func TestCalculateTileSizeNoBoundary(t *testing.T) {
	caps := hwcaps.Ethos78_4Tops_4PleRatio()
	tensor := npu.Shape{N: 1, H: 32, W: 32, C: 16}
	stripe := npu.Shape{N: 1, H: 16, W: 32, C: 16}
	ts := CalculateTileSize(caps, tensor, stripe, PackedBoundary{}, 2, npu.QAsymmU8, false)
	if ts.SlotSizeBytes <= 0 {
		t.Fatal("expected positive slot size")
	}
	if ts.SizeBytes > ts.SlotSizeBytes*2 {
		t.Errorf("tile size %d exceeds num_slots*slot_size %d", ts.SizeBytes, ts.SlotSizeBytes*2)
	}
}

func TestCalculateTileSizeWithBoundary(t *testing.T) {
	caps := hwcaps.Ethos78_4Tops_4PleRatio()
	tensor := npu.Shape{N: 1, H: 32, W: 32, C: 16}
	stripe := npu.Shape{N: 1, H: 16, W: 32, C: 16}
	ts := CalculateTileSize(caps, tensor, stripe, PackedBoundary{Before: 8, After: 8}, 2, npu.QAsymmU8, false)
	if ts.SizeBytes != ts.SlotSizeBytes*2 {
		t.Errorf("boundary-present tile size should be exactly slot_size*num_slots: got %d want %d", ts.SizeBytes, ts.SlotSizeBytes*2)
	}
}

func TestBoundaryRequirements(t *testing.T) {
	before, after := BoundaryRequirements(0, 32, 16, 32, 3)
	if !after {
		t.Error("expected an after-boundary when kernel > 1 and input is split")
	}
	before2, after2 := BoundaryRequirements(0, 32, 32, 32, 3)
	if before2 || after2 {
		t.Error("expected no boundary when neither side is split")
	}
	_ = before
}

func TestBoundaryRequirementsNoBoundaryForPointwiseKernel(t *testing.T) {
	before, after := BoundaryRequirements(0, 32, 16, 32, 1)
	if before || after {
		t.Error("kernel == 1 should never need packed boundary")
	}
}
