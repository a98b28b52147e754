package npu

import "testing"

func TestBuildShape(t *testing.T) {
	cases := []struct {
		dims []int
		want Shape
	}{
		{[]int{23}, Shape{N: 1, H: 23, W: 1, C: 1}},
		{[]int{23, 45}, Shape{N: 1, H: 23, W: 45, C: 1}},
		{[]int{23, 45, 4}, Shape{N: 1, H: 23, W: 45, C: 4}},
		{[]int{23, 45, 4, 235}, Shape{N: 23, H: 45, W: 4, C: 235}},
	}
	for _, c := range cases {
		got, err := BuildShape(c.dims)
		if err != nil {
			t.Fatalf("BuildShape(%v): %v", c.dims, err)
		}
		if got != c.want {
			t.Errorf("BuildShape(%v) = %+v, want %+v", c.dims, got, c.want)
		}
	}
}

func TestBuildShapeRejectsBadRank(t *testing.T) {
	if _, err := BuildShape(nil); err == nil {
		t.Fatal("expected error for rank 0")
	}
	if _, err := BuildShape([]int{1, 2, 3, 4, 5}); err == nil {
		t.Fatal("expected error for rank 5")
	}
}

func TestVersionInRange(t *testing.T) {
	min := Version{1, 0, 0}
	max := Version{2, 5, 0}
	if !(Version{1, 2, 3}.InRange(min, max)) {
		t.Error("expected 1.2.3 in range")
	}
	if (Version{3, 0, 0}).InRange(min, max) {
		t.Error("expected 3.0.0 out of range")
	}
	if (Version{0, 9, 9}).InRange(min, max) {
		t.Error("expected 0.9.9 out of range")
	}
}
