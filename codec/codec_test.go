package codec

import "testing"

func roundTrip(t *testing.T, values []int32, useDelta, reverse bool) []int32 {
	t.Helper()
	out := make([]int32, EncodedLen(len(values))+2*len(values))
	n, err := Encode(values, out, useDelta)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded := make([]int32, len(values))
	got, err := Decode(out[:n], decoded, useDelta, reverse)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != len(values) {
		t.Fatalf("Decode returned n=%d, want %d", got, len(values))
	}
	return decoded
}

func assertEqual(t *testing.T, got, want []int32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestRoundTripPlain(t *testing.T) {
	values := []int32{5, 7, 2, 900, 0, 17, 123456}
	got := roundTrip(t, values, false, false)
	assertEqual(t, got, values)
}

func TestRoundTripDeltaMonotone(t *testing.T) {
	values := make([]int32, 128)
	v := int32(1)
	for i := range values {
		v += int32(i%5) + 1
		values[i] = v
	}
	got := roundTrip(t, values, true, false)
	assertEqual(t, got, values)
}

func TestRoundTripWithException(t *testing.T) {
	values := make([]int32, 64)
	for i := range values {
		values[i] = int32(i + 1)
	}
	values[40] = 1_000_000 // outlier forcing a frame exception
	got := roundTrip(t, values, false, false)
	assertEqual(t, got, values)
}

func TestRoundTripReverse(t *testing.T) {
	// Simulate a reverse-mode block: Encode delta-codes the reversed
	// sequence, and Decode with reverse=true restores the original order.
	original := []int32{100, 90, 80, 70, 60}
	reversed := make([]int32, len(original))
	for i, v := range original {
		reversed[len(original)-1-i] = v
	}
	got := roundTrip(t, reversed, true, true)
	assertEqual(t, got, original)
}

func TestEncodeEmptyBlock(t *testing.T) {
	out := make([]int32, EncodedLen(0)+4)
	n, err := Encode(nil, out, true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded := make([]int32, 0)
	got, err := Decode(out[:n], decoded, true, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
}

func TestEncodeRejectsOversizedBlock(t *testing.T) {
	values := make([]int32, B+1)
	out := make([]int32, 4096)
	if _, err := Encode(values, out, false); err == nil {
		t.Fatalf("expected error for block larger than B")
	}
}

func TestEncodeRejectsUndersizedBuffer(t *testing.T) {
	values := []int32{1, 2, 3}
	out := make([]int32, 1)
	if _, err := Encode(values, out, false); err == nil {
		t.Fatalf("expected error for undersized output buffer")
	}
}

func TestRoundTripSingleValue(t *testing.T) {
	got := roundTrip(t, []int32{42}, true, false)
	assertEqual(t, got, []int32{42})
}

func TestRoundTripAllZero(t *testing.T) {
	values := make([]int32, 128)
	got := roundTrip(t, values, false, false)
	assertEqual(t, got, values)
}
