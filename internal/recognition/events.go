package recognition

import (
	"context"
	"encoding/json"
	"log"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// ProgressTopic is the single logical stream all progress events travel on.
const ProgressTopic = "recognition.progress"

// Stage names a progress event's origin. The verify phase reports its
// completion under the "confidence" stage name.
type Stage string

const (
	StageLatex      Stage = "latex"
	StageAnalysis   Stage = "analysis"
	StageConfidence Stage = "confidence"
)

// ProgressEvent is one notification on the progress stream. Only the
// fields relevant to the tagged stage are populated; Err is set instead
// of payload fields when the stage's dispatch failed.
type ProgressEvent struct {
	ID                 string        `json:"id"`
	Stage              Stage         `json:"stage"`
	Latex              string        `json:"latex,omitempty"`
	Title              string        `json:"title,omitempty"`
	Analysis           *Analysis     `json:"analysis,omitempty"`
	ConfidenceScore    *int          `json:"confidence_score,omitempty"`
	Verification       *Verification `json:"verification,omitempty"`
	VerificationReport string        `json:"verification_report,omitempty"`
	CreatedAt          string        `json:"created_at,omitempty"`
	OriginalImage      string        `json:"original_image,omitempty"`
	ModelName          string        `json:"model_name,omitempty"`
	Err                string        `json:"error,omitempty"`
}

// Listener receives progress events. Listeners must derive any state they
// keep purely from the event stream: the same event may be delivered more
// than once (direct delivery plus bus subscription), so handling must be
// idempotent.
type Listener interface {
	OnProgress(ev ProgressEvent)
}

// Listeners fans an event out to every registered listener, in order.
type Listeners []Listener

func (ls Listeners) OnProgress(ev ProgressEvent) {
	for _, l := range ls {
		l.OnProgress(ev)
	}
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(ev ProgressEvent)

func (f ListenerFunc) OnProgress(ev ProgressEvent) { f(ev) }

// Bus is the process-wide progress event channel. It wraps an in-process
// watermill pub/sub so any number of independent subscribers (a global
// tracker, a page-scoped view, tests) can consume the same stream.
type Bus struct {
	pubSub *gochannel.GoChannel
}

// NewBus creates the event bus. Publishing blocks until every subscriber
// acks, which is what keeps per-subscriber delivery in publish order;
// SubscribeProgress acks before forwarding, so the block is brief.
func NewBus() *Bus {
	return &Bus{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            64,
				BlockPublishUntilSubscriberAck: true,
			},
			watermill.NewStdLogger(false, false),
		),
	}
}

// PublishProgress emits one event to every current subscriber.
func (b *Bus) PublishProgress(ev ProgressEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.pubSub.Publish(ProgressTopic, message.NewMessage(watermill.NewUUID(), payload))
}

// SubscribeProgress returns a channel of decoded progress events. The
// subscription lives until ctx is cancelled or the bus is closed.
// Malformed payloads are logged and dropped.
func (b *Bus) SubscribeProgress(ctx context.Context) (<-chan ProgressEvent, error) {
	msgs, err := b.pubSub.Subscribe(ctx, ProgressTopic)
	if err != nil {
		return nil, err
	}

	out := make(chan ProgressEvent, 16)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev ProgressEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				log.Printf("⚠️  Dropping malformed progress event: %v", err)
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// OnProgress lets the bus itself act as a Listener, so publishing is just
// another fan-out target for the orchestrator.
func (b *Bus) OnProgress(ev ProgressEvent) {
	if err := b.PublishProgress(ev); err != nil {
		log.Printf("⚠️  Failed to publish progress event for session %s: %v", ev.ID, err)
	}
}

// Close shuts the bus down; active subscriber channels are closed.
func (b *Bus) Close() error {
	return b.pubSub.Close()
}
