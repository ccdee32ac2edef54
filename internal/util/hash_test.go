package util

import "testing"

func TestHashKey(t *testing.T) {
	a := HashKey("text-embedding-3-small", "wooden desk")
	if len(a) != 32 {
		t.Fatalf("key length = %d, want 32", len(a))
	}
	if a != HashKey("text-embedding-3-small", "wooden desk") {
		t.Error("HashKey is not deterministic")
	}
	if HashKey("ab", "c") == HashKey("a", "bc") {
		t.Error("part boundaries must affect the key")
	}
	if HashKey("model-a", "desk") == HashKey("model-b", "desk") {
		t.Error("different models must produce different keys")
	}
}
