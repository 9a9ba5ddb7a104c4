// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package memory

import "testing"

func TestBufferGrow(t *testing.T) {
	b := NewBuffer(8, 2)
	if b.Len() != 2 {
		t.Fatalf("Len = %d, want 2", b.Len())
	}
	copy(b.Record(1), []byte{1, 2, 3, 4, 5, 6, 7, 8})
	b.Grow(5)
	if b.Len() != 5 {
		t.Fatalf("Len after Grow = %d, want 5", b.Len())
	}
	if b.Record(1)[0] != 1 {
		t.Fatal("Grow discarded existing data")
	}
	if b.Record(4)[0] != 0 {
		t.Fatal("Grow did not zero new tail")
	}
}

func TestBufferGrowNoShrink(t *testing.T) {
	b := NewBuffer(4, 10)
	orig := b.Bytes()
	b.Grow(3)
	if len(b.Bytes()) != len(orig) {
		t.Fatal("Grow shrank the buffer")
	}
}
