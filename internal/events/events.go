package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autograde-api/internal/observability"
)

// Subjects published by the API.
const (
	SubjectSubmissionGraded    = "autograde.submission.graded"
	SubjectSimilarityRequested = "autograde.similarity.requested"
	SubjectFlagsCreated        = "autograde.similarity.flagged"
)

// SimilarityQueue is the queue group shared by similarity workers.
const SimilarityQueue = "autograde-similarity"

// SubmissionGraded is emitted after a submission receives a grade.
type SubmissionGraded struct {
	ExamID       uint      `json:"exam_id"`
	SubmissionID uint      `json:"submission_id"`
	StudentID    uint      `json:"student_id"`
	GradeTotal   float64   `json:"grade_total"`
	MaxTotal     float64   `json:"max_total"`
	GradedAt     time.Time `json:"graded_at"`
}

// SimilarityRequested asks a worker to run incremental detection.
type SimilarityRequested struct {
	ExamID        uint      `json:"exam_id"`
	SubmissionID  uint      `json:"submission_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	RequestedAt   time.Time `json:"requested_at"`
}

// FlagsCreated reports newly persisted similarity flags.
type FlagsCreated struct {
	ExamID       uint      `json:"exam_id"`
	SubmissionID uint      `json:"submission_id,omitempty"`
	Created      int64     `json:"created"`
	DetectedAt   time.Time `json:"detected_at"`
}

// Publisher delivers domain events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, subject string, event interface{}) error
}

type natsPublisher struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

// NewNATSPublisher publishes JSON encoded events on conn. A nil connection
// yields a publisher that drops every event.
func NewNATSPublisher(conn *nats.Conn, logger zerolog.Logger) Publisher {
	if conn == nil {
		return NopPublisher{}
	}
	return &natsPublisher{
		conn:   conn,
		logger: logger.With().Str("component", "event_publisher").Logger(),
	}
}

func (p *natsPublisher) Publish(ctx context.Context, subject string, event interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", subject, err)
	}

	if err := p.conn.Publish(subject, payload); err != nil {
		observability.EventsPublished().WithLabelValues(subject, "error").Inc()
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	observability.EventsPublished().WithLabelValues(subject, "ok").Inc()
	p.logger.Debug().Str("subject", subject).Int("bytes", len(payload)).Msg("event published")
	return nil
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }
