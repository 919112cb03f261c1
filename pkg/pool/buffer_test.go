package pool

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewFixedBufferPanicsOnInvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("expected panic for size %d", size)
				}
			}()
			_ = NewFixedBuffer(size)
		}()
	}
}

func TestFixedBufferPoolGetPut(t *testing.T) {
	fp := NewFixedBuffer(1024)

	b := fp.Get()
	if len(*b) != 1024 {
		t.Fatalf("expected len 1024, got %d", len(*b))
	}

	// A shortened buffer is restored to its full length.
	*b = (*b)[:10]
	fp.Put(b)
	b2 := fp.Get()
	if len(*b2) != 1024 {
		t.Errorf("expected len 1024 after reuse, got %d", len(*b2))
	}

	// Foreign buffers and nil are ignored.
	foreign := make([]byte, 512)
	fp.Put(&foreign)
	fp.Put(nil)
}

func TestFixedBufferPoolCopyBuffer(t *testing.T) {
	fp := NewFixedBuffer(16)
	src := strings.Repeat("pgl-deploy ", 100)

	var dst bytes.Buffer
	n, err := fp.CopyBuffer(&dst, strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != int64(len(src)) || dst.String() != src {
		t.Errorf("copy mismatch: copied %d bytes", n)
	}
}

func TestSharedCopyPool(t *testing.T) {
	if Copy.Size() != CopyBufferSize {
		t.Errorf("expected shared pool of %d bytes, got %d", CopyBufferSize, Copy.Size())
	}
}
