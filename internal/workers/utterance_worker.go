package workers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/vtutor/internal/models"
	"github.com/yoockh/vtutor/internal/providers/llm"
	"github.com/yoockh/vtutor/internal/providers/stt"
	"github.com/yoockh/vtutor/internal/services"
	"github.com/yoockh/vtutor/internal/storage"
)

// SessionIngest is the slice of the orchestrator the workers call back into.
type SessionIngest interface {
	HandleUtterance(ctx context.Context, sessionID, speaker, rawText string) (*models.ProcessedText, error)
	GetState(ctx context.Context, sessionID string) (*models.VoiceSession, error)
}

// UtterancePool drains the audio stream: each chunk runs STT, the student
// utterance enters the orchestrator's pipeline, and the tutor's streamed
// answer follows it. Progress fans out on the per-session pubsub channels.
type UtterancePool struct {
	Redis      *redis.Client
	Sessions   SessionIngest
	Content    services.ContentService
	NumWorkers int

	STT stt.Provider
	LLM llm.Provider

	// Archive is optional; when set, raw audio chunks are stored for replay.
	Archive storage.Uploader

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *UtterancePool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Sessions == nil || p.STT == nil || p.LLM == nil {
		return errors.New("UtterancePool missing dependency: Redis/Sessions/STT/LLM must be set")
	}
	if p.Stream == "" {
		p.Stream = "audio:stream"
	}
	if p.Group == "" {
		p.Group = "utterance-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 5
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

// Enqueue pushes one raw audio chunk onto the stream; the orchestrator's
// audio sink calls this from the transport event path.
func (p *UtterancePool) Enqueue(ctx context.Context, sessionID string, seq int64, payload []byte) error {
	return p.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: p.Stream,
		Values: map[string]any{
			"session_id":   sessionID,
			"seq":          strconv.FormatInt(seq, 10),
			"audio_base64": base64.StdEncoding.EncodeToString(payload),
			"ts_unix":      strconv.FormatInt(time.Now().UTC().Unix(), 10),
		},
	}).Err()
}

func (p *UtterancePool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func normalizeLanguage(v string) string {
	v = strings.TrimSpace(v)
	switch v {
	case "en", "en-IN":
		return "en-IN"
	case "hi", "hi-IN":
		return "hi-IN"
	default:
		if v == "" {
			return "en-IN"
		}
		return v
	}
}

func (p *UtterancePool) publishStatus(ctx context.Context, sessionID, status, message string, seq int64) {
	payload, _ := json.Marshal(map[string]any{
		"type":    "status",
		"status":  status,
		"message": message,
		"seq":     seq,
	})
	_ = p.Redis.Publish(ctx, "session:"+sessionID+":status", string(payload)).Err()
}

func (p *UtterancePool) handleMsg(ctx context.Context, msg redis.XMessage) {
	getStr := func(k string) string {
		v, ok := msg.Values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	sessionID := getStr("session_id")
	seqStr := getStr("seq")
	if sessionID == "" || seqStr == "" {
		return
	}
	seq, _ := strconv.ParseInt(seqStr, 10, 64)

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":   msg.ID,
		"session_id": sessionID,
		"seq":        seq,
	})

	respCh := "session:" + sessionID + ":response"
	language := normalizeLanguage(getStr("language"))

	audioBytes, err := p.fetchAudio(ctx, getStr("audio_base64"), getStr("audio_url"))
	if err != nil {
		log.WithError(err).Warn("audio fetch failed")
		p.publishStatus(ctx, sessionID, "failed", err.Error(), seq)
		return
	}
	if len(audioBytes) == 0 {
		return
	}

	if p.Archive != nil {
		name := fmt.Sprintf("audio/%s/%d.pcm", sessionID, seq)
		if _, aerr := p.Archive.Upload(ctx, name, "application/octet-stream", bytes.NewReader(audioBytes)); aerr != nil {
			log.WithError(aerr).Warn("audio archive failed")
		}
	}

	// STT
	p.publishStatus(ctx, sessionID, "processing", "stt processing", seq)
	text, conf, err := p.STT.Transcribe(ctx, audioBytes, language)
	if err != nil {
		log.WithError(err).Error("stt failed")
		p.publishStatus(ctx, sessionID, "failed", "stt failed", seq)
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	if _, err := p.Sessions.HandleUtterance(ctx, sessionID, "student", text); err != nil {
		log.WithError(err).Debug("student utterance dropped")
		return
	}

	sttPayload, _ := json.Marshal(map[string]any{
		"type":       "stt_result",
		"seq":        seq,
		"text":       text,
		"confidence": conf,
		"is_final":   true,
	})
	_ = p.Redis.Publish(ctx, respCh, string(sttPayload)).Err()

	// Tutor answer, grounded in the student's profile and the session's
	// chapter content when available.
	start := time.Now()
	p.publishStatus(ctx, sessionID, "processing", "tutor thinking", seq)

	prompt := p.tutorPrompt(ctx, sessionID, text)

	chunks, errs := p.LLM.StreamAnswer(ctx, prompt)

	full := strings.Builder{}
	chunkSeq := int64(0)
	for chunk := range chunks {
		chunkSeq++
		full.WriteString(chunk)

		chPayload, _ := json.Marshal(map[string]any{
			"type":  "tutor_chunk",
			"seq":   seq,
			"part":  chunkSeq,
			"chunk": chunk,
		})
		_ = p.Redis.Publish(ctx, respCh, string(chPayload)).Err()
	}

	var streamErr error
	select {
	case streamErr = <-errs:
	default:
	}
	if streamErr != nil {
		log.WithError(streamErr).Error("tutor stream failed")
		p.publishStatus(ctx, sessionID, "failed", "tutor response failed", seq)
		return
	}

	answer := full.String()
	if strings.TrimSpace(answer) == "" {
		return
	}

	if _, err := p.Sessions.HandleUtterance(ctx, sessionID, "tutor", answer); err != nil {
		log.WithError(err).Debug("tutor utterance dropped")
	}

	donePayload, _ := json.Marshal(map[string]any{
		"type":               "tutor_complete",
		"seq":                seq,
		"full_response":      answer,
		"processing_time_ms": time.Since(start).Milliseconds(),
	})
	_ = p.Redis.Publish(ctx, respCh, string(donePayload)).Err()
	p.publishStatus(ctx, sessionID, "done", "utterance processed", seq)
}

// tutorPrompt assembles the LLM prompt for one utterance: student profile and
// topic content are both best-effort, a prompt without them is still valid.
func (p *UtterancePool) tutorPrompt(ctx context.Context, sessionID, utterance string) string {
	var profile *models.StudentProfile
	var topicContext string

	if p.Content != nil {
		if sess, err := p.Sessions.GetState(ctx, sessionID); err == nil {
			if sp, perr := p.Content.StudentContext(ctx, sess.StudentID); perr == nil {
				profile = sp
			}
			if tc, cerr := p.Content.TopicContext(ctx, sess.Topic, nil, 5); cerr == nil {
				topicContext = tc
			}
		}
	}
	return llm.BuildTutorPrompt(profile, topicContext, utterance)
}

func (p *UtterancePool) fetchAudio(ctx context.Context, b64, audioURL string) ([]byte, error) {
	if b64 != "" {
		raw := b64
		if i := strings.Index(raw, ","); i >= 0 {
			raw = raw[i+1:] // strip data:...;base64,
		}
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, errors.New("invalid audio_base64")
		}
		return decoded, nil
	}
	if audioURL != "" {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, errors.New("failed to fetch audio_url")
		}
		defer resp.Body.Close()

		const maxBytes = 10 << 20
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
		if len(body) == 0 {
			return nil, errors.New("empty audio")
		}
		return body, nil
	}
	return nil, nil
}
