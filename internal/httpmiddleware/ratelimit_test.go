package httpmiddleware

import "testing"

func TestTokenBucket_ExhaustsAndRefills(t *testing.T) {
	l := NewSimpleTokenBucket(2, 60)

	if !l.allow("1.2.3.4") || !l.allow("1.2.3.4") {
		t.Fatalf("first two requests must pass")
	}
	if l.allow("1.2.3.4") {
		t.Fatalf("third request must be limited")
	}
	if !l.allow("5.6.7.8") {
		t.Fatalf("limits are per key")
	}
}

func TestTokenBucket_DefaultCapacity(t *testing.T) {
	l := NewSimpleTokenBucket(0, 10)
	if l.capacity != 10 {
		t.Fatalf("capacity should default to rate, got %d", l.capacity)
	}
}
