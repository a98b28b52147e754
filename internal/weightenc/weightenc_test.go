package weightenc

import (
	"bytes"
	"errors"
	"testing"
)

func sampleParams() Params {
	return Params{
		WeightsData: []byte{1, 2, 3, 4},
		BiasData:    []byte{5, 6},
		StripeDepth: 16,
		StrideH:     1,
		StrideW:     1,
		Operation:   OpConvolution,
	}
}

func TestCacheMemoises(t *testing.T) {
	calls := 0
	cache := New(func(p Params) (EncodedWeights, error) {
		calls++
		return EncodedWeights{Data: []byte{0xAB}, MaxSlotSize: 128}, nil
	})

	p := sampleParams()
	first, err := cache.Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	second, err := cache.Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if calls != 1 {
		t.Errorf("encoder called %d times, want 1", calls)
	}
	if !bytes.Equal(first.Data, second.Data) || first.MaxSlotSize != second.MaxSlotSize {
		t.Error("cached results diverge")
	}
	if cache.Len() != 1 {
		t.Errorf("cache.Len() = %d, want 1", cache.Len())
	}
}

func TestCacheDifferentKeysMissIndependently(t *testing.T) {
	calls := 0
	cache := New(func(p Params) (EncodedWeights, error) {
		calls++
		return EncodedWeights{MaxSlotSize: p.StripeDepth}, nil
	})

	p1 := sampleParams()
	p2 := sampleParams()
	p2.StripeDepth = 32

	if _, err := cache.Encode(p1); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Encode(p2); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("expected two distinct encoder calls, got %d", calls)
	}
}

func TestCacheSurfacesEncodeFailure(t *testing.T) {
	wantErr := errors.New("boom")
	cache := New(func(p Params) (EncodedWeights, error) {
		return EncodedWeights{}, wantErr
	})
	if _, err := cache.Encode(sampleParams()); err == nil {
		t.Fatal("expected error")
	}
}

func sequentialBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return b
}

func TestSwizzleOHWIToHWIO(t *testing.T) {
	// O=2, H=4, W=4, I=2, values 1..64.
	got := SwizzleOHWIToHWIO(sequentialBytes(64), 2, 4, 4, 2, 1)
	want := []byte{
		1, 33, 2, 34, 3, 35, 4, 36, 5, 37, 6, 38, 7, 39, 8, 40,
		9, 41, 10, 42, 11, 43, 12, 44, 13, 45, 14, 46, 15, 47, 16, 48,
		17, 49, 18, 50, 19, 51, 20, 52, 21, 53, 22, 54, 23, 55, 24, 56,
		25, 57, 26, 58, 27, 59, 28, 60, 29, 61, 30, 62, 31, 63, 32, 64,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("SwizzleOHWIToHWIO = %v, want %v", got, want)
	}
}

func TestSwizzleOIHWToHWIO(t *testing.T) {
	// O=2, I=2, H=4, W=4, values 1..64.
	got := SwizzleOIHWToHWIO(sequentialBytes(64), 2, 2, 4, 4, 1)
	want := []byte{
		1, 33, 17, 49, 2, 34, 18, 50, 3, 35, 19, 51, 4, 36, 20, 52,
		5, 37, 21, 53, 6, 38, 22, 54, 7, 39, 23, 55, 8, 40, 24, 56,
		9, 41, 25, 57, 10, 42, 26, 58, 11, 43, 27, 59, 12, 44, 28, 60,
		13, 45, 29, 61, 14, 46, 30, 62, 15, 47, 31, 63, 16, 48, 32, 64,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("SwizzleOIHWToHWIO = %v, want %v", got, want)
	}
}

func TestCacheEncodeSwizzlesOHWIWeightsBeforeCalling(t *testing.T) {
	var seen []byte
	cache := New(func(p Params) (EncodedWeights, error) {
		seen = p.WeightsData
		return EncodedWeights{}, nil
	})

	p := sampleParams()
	p.WeightsData = sequentialBytes(64)
	p.WeightsInfo.Shape.N, p.WeightsInfo.Shape.H, p.WeightsInfo.Shape.W, p.WeightsInfo.Shape.C = 2, 4, 4, 2
	p.Layout = LayoutOHWI

	if _, err := cache.Encode(p); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := SwizzleOHWIToHWIO(sequentialBytes(64), 2, 4, 4, 2, 1)
	if !bytes.Equal(seen, want) {
		t.Fatalf("encoder saw %v, want swizzled %v", seen, want)
	}
}

func TestCacheEncodePassesThroughAlreadyHWIOWeights(t *testing.T) {
	var seen []byte
	cache := New(func(p Params) (EncodedWeights, error) {
		seen = p.WeightsData
		return EncodedWeights{}, nil
	})

	p := sampleParams()
	if _, err := cache.Encode(p); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(seen, p.WeightsData) {
		t.Fatalf("encoder saw %v, want unchanged %v", seen, p.WeightsData)
	}
}

func TestFingerprintStableAcrossBackingArrays(t *testing.T) {
	p1 := sampleParams()
	p2 := sampleParams()
	p2.WeightsData = append([]byte{}, p1.WeightsData...) // distinct backing array, same contents

	d1 := fingerprintDigest(p1)
	d2 := fingerprintDigest(p2)
	if !bytes.Equal(d1, d2) {
		t.Error("fingerprint should not depend on slice identity")
	}
}
