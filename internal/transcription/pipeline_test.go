package transcription

import (
	"testing"
	"time"

	"github.com/yoockh/vtutor/internal/models"
)

// runSegmenter emits a fixed segment list, letting tests drive coalescing
// without going through the heuristics.
type runSegmenter struct {
	segments []models.TextSegment
}

func (s runSegmenter) Segment(string) []models.TextSegment { return s.segments }

func TestPipelineIngestMixedUtterance(t *testing.T) {
	buf := NewDisplayBuffer(10)
	p := NewPipeline(nil, nil, buf, nil)

	now := time.Now().UTC()
	pt := p.Ingest("The equation x^2 + 5x + 6 = 0 has two roots", "student", now)

	if pt.OriginalText != "The equation x^2 + 5x + 6 = 0 has two roots" {
		t.Fatalf("OriginalText = %q", pt.OriginalText)
	}
	if pt.Speaker != "student" || !pt.Timestamp.Equal(now) {
		t.Fatalf("speaker/timestamp not carried: %+v", pt)
	}
	if len(pt.Segments) != 3 {
		t.Fatalf("segments = %d, want 3: %+v", len(pt.Segments), pt.Segments)
	}

	items := buf.Items()
	if len(items) != 3 {
		t.Fatalf("display items = %d, want 3: %+v", len(items), items)
	}
	if items[0].Type != models.DisplayText || items[0].Content != "The equation" {
		t.Fatalf("items[0] = %+v", items[0])
	}
	if items[1].Type != models.DisplayMath || items[1].Content != "x^2 + 5x + 6 = 0" {
		t.Fatalf("items[1] = %+v", items[1])
	}
	if items[2].Type != models.DisplayText || items[2].Content != "has two roots" {
		t.Fatalf("items[2] = %+v", items[2])
	}
	for _, item := range items {
		if item.ID == "" {
			t.Fatalf("item without ID: %+v", item)
		}
		if item.Speaker != "student" {
			t.Fatalf("item speaker = %q, want student", item.Speaker)
		}
	}
}

func TestPipelineCoalescesSameTypeRuns(t *testing.T) {
	seg := runSegmenter{segments: []models.TextSegment{
		{Text: "first ", Type: models.SegmentText},
		{Text: "second", Type: models.SegmentText},
		{Text: "x=1", Type: models.SegmentMath},
		{Text: "y=2", Type: models.SegmentMath},
		{Text: " done", Type: models.SegmentText},
	}}
	buf := NewDisplayBuffer(10)
	p := NewPipeline(seg, NewPlainNormalizer(), buf, nil)

	p.Ingest("ignored", "tutor", time.Now())

	items := buf.Items()
	if len(items) != 3 {
		t.Fatalf("display items = %d, want 3 (coalesced): %+v", len(items), items)
	}
	if items[0].Content != "first second" {
		t.Fatalf("items[0].Content = %q, want %q", items[0].Content, "first second")
	}
	if items[1].Type != models.DisplayMath || items[1].Content != "x=1y=2" {
		t.Fatalf("items[1] = %+v", items[1])
	}
	if items[2].Content != "done" {
		t.Fatalf("items[2].Content = %q, want %q", items[2].Content, "done")
	}
}

func TestPipelineMathPassesThroughUntouched(t *testing.T) {
	// spoken cues inside a math segment must not be substituted
	seg := runSegmenter{segments: []models.TextSegment{
		{Text: "a plus b equals c", Type: models.SegmentMath},
	}}
	buf := NewDisplayBuffer(10)
	p := NewPipeline(seg, NewNormalizer(), buf, nil)

	p.Ingest("ignored", "student", time.Now())

	items := buf.Items()
	if len(items) != 1 {
		t.Fatalf("display items = %d, want 1", len(items))
	}
	if items[0].Content != "a plus b equals c" {
		t.Fatalf("math content rewritten: %q", items[0].Content)
	}
}

func TestPipelineEmptyUtterance(t *testing.T) {
	buf := NewDisplayBuffer(10)
	p := NewPipeline(nil, nil, buf, nil)

	pt := p.Ingest("", "student", time.Now())
	if len(pt.Segments) != 0 {
		t.Fatalf("segments = %+v, want none", pt.Segments)
	}
	if buf.Size() != 0 {
		t.Fatalf("buffer size = %d, want 0", buf.Size())
	}
}

func TestPipelineSystemNotice(t *testing.T) {
	buf := NewDisplayBuffer(10)
	p := NewPipeline(nil, nil, buf, nil)

	item := p.SystemNotice("session paused", map[string]string{"reason": "user"})
	if item.Type != models.DisplaySystem {
		t.Fatalf("item type = %v, want system", item.Type)
	}
	items := buf.Items()
	if len(items) != 1 || items[0].Content != "session paused" {
		t.Fatalf("buffer = %+v", items)
	}
	if items[0].Metadata["reason"] != "user" {
		t.Fatalf("metadata not carried: %+v", items[0].Metadata)
	}
}
