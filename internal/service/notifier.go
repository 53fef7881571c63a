package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"wadispatch/internal/models"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

const (
	subscriberBuffer  = 16
	progressWriteWait = 5 * time.Second
)

// ProgressHub fans progress events out to websocket subscribers.
// Publish never blocks; a subscriber that cannot keep up loses events
// rather than stalling dispatch.
type ProgressHub struct {
	logger *logrus.Logger

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	events chan models.ProgressEvent
}

// NewProgressHub creates a progress hub
func NewProgressHub(logger *logrus.Logger) *ProgressHub {
	return &ProgressHub{
		logger:      logger,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Publish delivers the event to every subscriber with room in its
// buffer and drops it for the rest.
func (h *ProgressHub) Publish(event models.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		select {
		case sub.events <- event:
		default:
		}
	}
}

// ServeHTTP upgrades the request to a websocket and streams progress
// events until the client disconnects.
func (h *ProgressHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to accept websocket connection")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	sub := &subscriber{events: make(chan models.ProgressEvent, subscriberBuffer)}
	h.add(sub)
	defer h.remove(sub)

	// We never read application messages; CloseRead keeps control
	// frames flowing and cancels the context on disconnect.
	ctx := conn.CloseRead(r.Context())
	h.logger.WithField("remote_addr", r.RemoteAddr).Debug("Progress subscriber connected")

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event := <-sub.events:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.WithError(err).Error("Failed to marshal progress event")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, progressWriteWait)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.WithError(err).Debug("Progress subscriber write failed, dropping subscriber")
				return
			}
		}
	}
}

func (h *ProgressHub) add(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub] = struct{}{}
}

func (h *ProgressHub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, sub)
}

// SubscriberCount reports the current number of connected clients
func (h *ProgressHub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// publishJobProgress loads current job state and emits a progress
// event. Failures are logged, never propagated; progress is best
// effort.
func publishJobProgress(ctx context.Context, store Store, notifier ProgressNotifier, logger *logrus.Logger, jobID string) {
	job, err := store.GetJob(ctx, jobID)
	if err != nil {
		logger.WithError(err).WithField("job_id", jobID).Warn("Failed to load job for progress event")
		return
	}
	notifier.Publish(models.ProgressEvent{
		JobID:      job.ID,
		Status:     job.Status,
		Sent:       job.Counters.Sent,
		Delivered:  job.Counters.Delivered,
		Failed:     job.Counters.Failed,
		Skipped:    job.Counters.Skipped,
		Pending:    job.Counters.Pending,
		Percentage: job.Counters.Percentage(),
		Timestamp:  time.Now(),
	})
}
