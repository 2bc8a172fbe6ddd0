package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Workflow event names published on paper lifecycle changes. Delivery past
// the broker (mail, push, in-app) belongs to the notification collaborator.
const (
	EventPaperDistributed  = "paper.distributed"
	EventChapterSubmitted  = "chapter.submitted"
	EventChapterDecided    = "chapter.decided"
	EventFinalUploaded     = "final.uploaded"
	EventFinalDecided      = "final.decided"
	EventPaperVerified     = "paper.verified"
	EventPaperGraded       = "paper.graded"
	EventViolationRecorded = "violation.recorded"
)

// WorkflowEvent is the envelope pushed to the brokers.
type WorkflowEvent struct {
	Name      string                 `json:"name"`
	PaperID   uint                   `json:"paper_id,omitempty"`
	StudentID uint                   `json:"student_id,omitempty"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	SentAt    time.Time              `json:"sent_at"`
}

// EventPublisher pushes workflow events to interested consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event WorkflowEvent)
}

type eventPublisher struct {
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	now         func() time.Time
}

// NewEventPublisher constructs a broker-backed publisher. Both brokers are
// optional; an absent broker disables that path.
func NewEventPublisher(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) EventPublisher {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &eventPublisher{
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "event_publisher").Logger(),
		now:         time.Now,
	}
}

// Publish is best-effort: a broker failure is logged, never surfaced to the
// workflow operation that triggered the event.
func (p *eventPublisher) Publish(ctx context.Context, event WorkflowEvent) {
	if event.SentAt.IsZero() {
		event.SentAt = p.now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("event", event.Name).Msg("failed to marshal workflow event")
		return
	}

	if p.redis != nil && p.redisStream != "" {
		err := p.redis.XAdd(ctx, &redis.XAddArgs{
			Stream: p.redisStream,
			Values: map[string]interface{}{"event": string(payload)},
		}).Err()
		if err != nil {
			p.logger.Warn().Err(err).Str("event", event.Name).Msg("failed to publish event to redis stream")
		}
	}

	if p.nats != nil && p.natsSubject != "" {
		subject := p.natsSubject + "." + event.Name
		if err := p.nats.Publish(subject, payload); err != nil {
			p.logger.Warn().Err(err).Str("event", event.Name).Msg("failed to publish event to nats")
		}
	}
}

// NopEventPublisher discards events. Used when no broker is configured.
type NopEventPublisher struct{}

// Publish implements EventPublisher.
func (NopEventPublisher) Publish(context.Context, WorkflowEvent) {}
