package transcription

import (
	"sync"

	"github.com/yoockh/vtutor/internal/models"
)

const DefaultBufferCapacity = 500

// DisplayBuffer is a fixed-capacity ordered store of display-ready items.
// Once full, Append evicts the oldest item first, bounding memory for
// long-running sessions while keeping the most recent context. Stored items
// are never mutated.
type DisplayBuffer struct {
	mu       sync.Mutex
	items    []models.DisplayItem
	start    int
	count    int
	appended int64
}

func NewDisplayBuffer(capacity int) *DisplayBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &DisplayBuffer{items: make([]models.DisplayItem, capacity)}
}

func (b *DisplayBuffer) Append(item models.DisplayItem) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.items)
	if b.count == n {
		b.items[b.start] = item
		b.start = (b.start + 1) % n
	} else {
		b.items[(b.start+b.count)%n] = item
		b.count++
	}
	b.appended++
}

// Items returns a snapshot in arrival order, not a live view.
func (b *DisplayBuffer) Items() []models.DisplayItem {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.DisplayItem, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.items[(b.start+i)%len(b.items)]
	}
	return out
}

func (b *DisplayBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *DisplayBuffer) Capacity() int {
	return len(b.items)
}

// Appended is the total number of items ever appended, including evicted ones.
func (b *DisplayBuffer) Appended() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appended
}

func (b *DisplayBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start = 0
	b.count = 0
}
