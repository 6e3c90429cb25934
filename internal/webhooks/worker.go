package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	"baechamap/internal/logger"
	"baechamap/internal/metrics"
)

// Worker POSTs due deliveries, retrying with exponential backoff and
// dead-lettering after MaxAttempts.
type Worker struct {
	Queue       *Queue
	HTTP        *http.Client
	Stop        chan struct{}
	MaxAttempts int
	Interval    time.Duration
	Log         logger.Logger
}

func NewWorker(q *Queue, maxAttempts int, log logger.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Worker{
		Queue:       q,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		Stop:        make(chan struct{}),
		MaxAttempts: maxAttempts,
		Interval:    time.Second,
		Log:         log,
	}
}

func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.Stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

func (w *Worker) processOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, it := range w.Queue.Due(50) {
		w.deliver(ctx, it)
	}
}

func (w *Worker) deliver(ctx context.Context, it Delivery) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		w.Log.Errorf("delivery %s: %v", it.ID, err)
		_ = w.Queue.Fail(it.ID, err.Error(), 0, 0)
		metrics.WebhookDeliveries.WithLabelValues(it.EventType, StatusDead).Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", it.EventType)
	if it.Secret != "" {
		req.Header.Set(SignatureHeader, SignHMAC(it.Secret, it.Payload))
	}

	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latency := int(time.Since(start).Milliseconds())
	code := 0
	success := false
	if err == nil {
		code = resp.StatusCode
		_ = resp.Body.Close()
		success = code >= 200 && code < 300
	}
	lastErr := ""
	switch {
	case err != nil:
		lastErr = err.Error()
	case !success:
		lastErr = "status " + strconv.Itoa(code)
	}

	status := StatusDelivered
	switch {
	case success:
		_ = w.Queue.Mark(it.ID, true, time.Time{}, "", code, latency)
	case it.Attempts+1 >= w.MaxAttempts:
		status = StatusDead
		w.Log.Warnf("delivery %s to %s dead-lettered after %d attempts: %s", it.ID, it.URL, it.Attempts+1, lastErr)
		_ = w.Queue.Fail(it.ID, lastErr, code, latency)
	default:
		status = "retry"
		_ = w.Queue.Mark(it.ID, false, time.Now().Add(nextBackoff(it.Attempts)), lastErr, code, latency)
	}
	metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
	metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
