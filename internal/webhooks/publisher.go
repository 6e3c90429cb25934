package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Target struct {
	URL    string
	Secret string
}

type Publisher struct {
	Queue   *Queue
	Targets []Target
}

func NewPublisher(q *Queue, targets []Target) *Publisher {
	return &Publisher{Queue: q, Targets: targets}
}

// Emit enqueues one notification per configured target.
func (p *Publisher) Emit(_ context.Context, eventType string, data any) {
	if p == nil || len(p.Targets) == 0 {
		return
	}
	payload := map[string]any{
		"id":   "evt_" + uuid.NewString(),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	}
	body, _ := json.Marshal(payload)
	for _, t := range p.Targets {
		_ = p.Queue.Enqueue(eventType, t.URL, t.Secret, body)
	}
}
