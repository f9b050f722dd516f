package vector

import "testing"

func TestEncodeDecodeEmbedding(t *testing.T) {
	vec := []float32{0.1, -0.5, 1.0, 0}
	b := EncodeEmbedding(vec)
	if len(b) != len(vec)*4 {
		t.Fatalf("blob length = %d, want %d", len(b), len(vec)*4)
	}
	got, err := DecodeEmbedding(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(vec) {
		t.Fatalf("decoded length = %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], vec[i])
		}
	}
}

func TestEncodeEmbedding_Empty(t *testing.T) {
	if EncodeEmbedding(nil) != nil {
		t.Error("empty vector should encode to nil")
	}
	got, err := DecodeEmbedding(nil)
	if err != nil || got != nil {
		t.Errorf("DecodeEmbedding(nil) = %v, %v, want nil, nil", got, err)
	}
}

func TestDecodeEmbedding_BadLength(t *testing.T) {
	if _, err := DecodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for non-multiple-of-4 blob")
	}
}
