package webhooks

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Delivery statuses.
const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusDead      = "dead"
)

var ErrNotFound = errors.New("delivery not found")

// Delivery is one notification addressed to one target.
type Delivery struct {
	ID            string    `json:"id"`
	EventType     string    `json:"eventType"`
	URL           string    `json:"url"`
	Secret        string    `json:"-"`
	Payload       []byte    `json:"-"`
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	NextAttemptAt time.Time `json:"nextAttemptAt"`
	LastError     string    `json:"lastError,omitempty"`
	ResponseCode  int       `json:"responseCode,omitempty"`
	LatencyMs     int       `json:"latencyMs,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Queue is the in-memory delivery queue. Dead deliveries stay in it as the
// dead-letter queue until requeued.
type Queue struct {
	mu    sync.Mutex
	items map[string]*Delivery
	now   func() time.Time
}

func NewQueue() *Queue {
	return &Queue{items: map[string]*Delivery{}, now: time.Now}
}

func (q *Queue) Enqueue(eventType, url, secret string, payload []byte) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	d := &Delivery{
		ID:            "whd_" + uuid.NewString(),
		EventType:     eventType,
		URL:           url,
		Secret:        secret,
		Payload:       payload,
		Status:        StatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	q.items[d.ID] = d
	return d.ID
}

// Due returns up to limit pending deliveries whose next attempt is due,
// oldest first.
func (q *Queue) Due(limit int) []Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	var out []Delivery
	for _, d := range q.items {
		if d.Status == StatusPending && !d.NextAttemptAt.After(now) {
			out = append(out, *d)
		}
	}
	sortByCreated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Mark records one attempt. Successful deliveries leave the pending set.
func (q *Queue) Mark(id string, success bool, next time.Time, lastErr string, code, latencyMs int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.items[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.LastError, d.ResponseCode, d.LatencyMs = lastErr, code, latencyMs
	if success {
		d.Status = StatusDelivered
		return nil
	}
	d.NextAttemptAt = next
	return nil
}

// Fail records a final failed attempt and dead-letters the delivery.
func (q *Queue) Fail(id, lastErr string, code, latencyMs int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.items[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = StatusDead
	d.LastError, d.ResponseCode, d.LatencyMs = lastErr, code, latencyMs
	return nil
}

// List returns deliveries with the given status, or all when status is empty.
func (q *Queue) List(status string) []Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := []Delivery{}
	for _, d := range q.items {
		if status == "" || d.Status == status {
			out = append(out, *d)
		}
	}
	sortByCreated(out)
	return out
}

// Requeue moves a dead delivery back to pending with a fresh attempt budget.
func (q *Queue) Requeue(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.items[id]
	if !ok || d.Status != StatusDead {
		return ErrNotFound
	}
	d.Status = StatusPending
	d.Attempts = 0
	d.NextAttemptAt = q.now()
	return nil
}

func sortByCreated(ds []Delivery) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].CreatedAt.Equal(ds[j].CreatedAt) {
			return ds[i].ID < ds[j].ID
		}
		return ds[i].CreatedAt.Before(ds[j].CreatedAt)
	})
}
