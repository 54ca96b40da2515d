package projector

import (
	"context"
	"encoding/json"
	"time"
)

// DLQMessage is the dead-letter envelope published after a message has
// failed dlqThreshold consecutive times, grounded on the reference
// DLQHandler's DLQMessage shape. It carries diagnostics for operators; it is
// never consumed back into the main pipeline automatically — the original
// message is still redelivered by the broker per at-least-once semantics.
type DLQMessage struct {
	OriginalTopic string    `json:"originalTopic"`
	MessageKey    string    `json:"messageKey"`
	MessageValue  []byte    `json:"messageValue"`
	ErrorMessage  string    `json:"errorMessage"`
	RetryCount    int       `json:"retryCount"`
	FirstFailedAt time.Time `json:"firstFailedAt"`
	LastFailedAt  time.Time `json:"lastFailedAt"`
}

func (p *Projector) publishDeadLetter(ctx context.Context, topic, key string, value []byte, failErr error, retryCount int, firstFailedAt time.Time) error {
	if p.dlqPublisher == nil {
		return nil
	}
	msg := &DLQMessage{
		OriginalTopic: topic,
		MessageKey:    key,
		MessageValue:  value,
		ErrorMessage:  failErr.Error(),
		RetryCount:    retryCount,
		FirstFailedAt: firstFailedAt,
		LastFailedAt:  time.Now(),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.dlqPublisher.PublishRaw(ctx, p.dlqTopic, key, raw)
}
