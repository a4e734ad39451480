package transcription

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/vtutor/internal/models"
)

// Pipeline turns raw speech-derived text into typed, display-ready items. It
// is a pure transformation: no I/O beyond appending to the session's
// DisplayBuffer, and Ingest never blocks.
type Pipeline struct {
	seg  Segmenter
	norm *Normalizer
	buf  *DisplayBuffer
	log  *logrus.Entry
}

func NewPipeline(seg Segmenter, norm *Normalizer, buf *DisplayBuffer, log *logrus.Entry) *Pipeline {
	if seg == nil {
		seg = MathSegmenter{}
	}
	if norm == nil {
		norm = NewNormalizer()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Pipeline{seg: seg, norm: norm, buf: buf, log: log}
}

func (p *Pipeline) Buffer() *DisplayBuffer { return p.buf }

// Ingest segments and normalizes one utterance, appends the resulting display
// items to the buffer, and returns the immutable ProcessedText record.
// Normalization applies to text segments only; math content passes through
// untouched.
func (p *Pipeline) Ingest(rawText, speaker string, timestamp time.Time) models.ProcessedText {
	segments := p.seg.Segment(rawText)
	now := time.Now().UTC()

	pt := models.ProcessedText{
		OriginalText: rawText,
		Segments:     segments,
		Timestamp:    timestamp,
		Speaker:      speaker,
	}

	// Coalesce adjacent same-type segments into one display item each, in
	// input order.
	var processed []string
	for i := 0; i < len(segments); {
		j := i
		var run []string
		for j < len(segments) && segments[j].Type == segments[i].Type {
			run = append(run, segments[j].Text)
			j++
		}

		content := joinRun(run)
		itemType := models.DisplayText
		if segments[i].Type == models.SegmentMath {
			itemType = models.DisplayMath
		} else {
			content = p.norm.Normalize(content)
		}
		processed = append(processed, content)

		if p.buf != nil && content != "" {
			p.buf.Append(models.DisplayItem{
				ID:        uuid.NewString(),
				Type:      itemType,
				Content:   content,
				Timestamp: now,
				Speaker:   speaker,
			})
		}
		i = j
	}

	pt.ProcessedText = joinRun(processed)
	p.log.WithFields(logrus.Fields{
		"speaker":  speaker,
		"segments": len(segments),
		"chars":    len(rawText),
	}).Debug("utterance processed")
	return pt
}

// SystemNotice appends a system-typed item (pause banners, reconnect notices)
// directly, bypassing segmentation.
func (p *Pipeline) SystemNotice(content string, metadata map[string]string) models.DisplayItem {
	item := models.DisplayItem{
		ID:        uuid.NewString(),
		Type:      models.DisplaySystem,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
	if p.buf != nil {
		p.buf.Append(item)
	}
	return item
}

func joinRun(parts []string) string { return strings.Join(parts, "") }
