package transcription

import (
	"strconv"
	"testing"

	"github.com/yoockh/vtutor/internal/models"
)

func fillBuffer(b *DisplayBuffer, n int) {
	for i := 0; i < n; i++ {
		b.Append(models.DisplayItem{ID: strconv.Itoa(i), Type: models.DisplayText})
	}
}

func TestDisplayBufferOrder(t *testing.T) {
	b := NewDisplayBuffer(10)
	fillBuffer(b, 4)

	items := b.Items()
	if len(items) != 4 {
		t.Fatalf("len = %d, want 4", len(items))
	}
	for i, item := range items {
		if item.ID != strconv.Itoa(i) {
			t.Fatalf("items[%d].ID = %q, want %q", i, item.ID, strconv.Itoa(i))
		}
	}
}

func TestDisplayBufferEvictsOldestFirst(t *testing.T) {
	b := NewDisplayBuffer(5)
	fillBuffer(b, 12)

	if b.Size() != 5 {
		t.Fatalf("Size = %d, want 5", b.Size())
	}
	items := b.Items()
	// the 5 most recent, still in arrival order
	for i, item := range items {
		want := strconv.Itoa(7 + i)
		if item.ID != want {
			t.Fatalf("items[%d].ID = %q, want %q", i, item.ID, want)
		}
	}
	if b.Appended() != 12 {
		t.Fatalf("Appended = %d, want 12", b.Appended())
	}
}

func TestDisplayBufferSnapshotIsDetached(t *testing.T) {
	b := NewDisplayBuffer(5)
	fillBuffer(b, 3)

	snap := b.Items()
	b.Append(models.DisplayItem{ID: "new"})
	if len(snap) != 3 {
		t.Fatalf("snapshot grew after Append: %d", len(snap))
	}
}

func TestDisplayBufferClear(t *testing.T) {
	b := NewDisplayBuffer(5)
	fillBuffer(b, 5)

	b.Clear()
	if b.Size() != 0 {
		t.Fatalf("Size after Clear = %d, want 0", b.Size())
	}
	if got := b.Items(); len(got) != 0 {
		t.Fatalf("Items after Clear = %+v, want empty", got)
	}

	// reusable after clear
	fillBuffer(b, 2)
	if b.Size() != 2 {
		t.Fatalf("Size after refill = %d, want 2", b.Size())
	}
}

func TestDisplayBufferDefaultCapacity(t *testing.T) {
	b := NewDisplayBuffer(0)
	if b.Capacity() != DefaultBufferCapacity {
		t.Fatalf("Capacity = %d, want %d", b.Capacity(), DefaultBufferCapacity)
	}
}
