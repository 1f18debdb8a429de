package pool

import "testing"

func TestPoolRoundTrip(t *testing.T) {
	p := New(func() *[]byte {
		buf := make([]byte, 1024)
		return &buf
	})

	buf := p.Get()
	if buf == nil || len(*buf) != 1024 {
		t.Fatal("expected a fresh 1024-byte buffer")
	}
	(*buf)[0] = 0xaa
	p.Put(buf)

	// Pool may or may not return the same buffer; either way Get works.
	again := p.Get()
	if again == nil || len(*again) != 1024 {
		t.Fatal("expected a usable buffer after Put")
	}
}
