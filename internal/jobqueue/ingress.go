package jobqueue

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Ingress accepts the remote sheet's event-trigger push (spec §4.8's "push
// from the remote sheet's event trigger") over a websocket connection,
// schema-validates each frame, and hands it to the job queue. Grounded on
// the teacher's go.mod dependency on nhooyr.io/websocket, which the teacher
// itself never exercised; this is that dependency's first real caller.
type Ingress struct {
	queue *Queue
	log   *logrus.Entry
}

// NewIngress returns an Ingress that enqueues onto queue.
func NewIngress(queue *Queue, logger *logrus.Logger) *Ingress {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Ingress{queue: queue, log: logrus.NewEntry(logger).WithField("component", "jobqueue-ingress")}
}

// ServeHTTP upgrades the connection and reads envelopes until the client
// disconnects or the server shuts down.
func (i *Ingress) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		i.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "ingress closing")

	ctx := r.Context()
	for {
		var raw map[string]any
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			i.log.WithError(err).Debug("ingress connection ended")
			return
		}
		i.handleFrame(ctx, raw)
	}
}

func (i *Ingress) handleFrame(ctx context.Context, raw map[string]any) {
	if _, ok := raw["submittedAt"]; !ok {
		raw["submittedAt"] = time.Now().Unix()
	}
	// The remote sheet's own event trigger doesn't carry a job id.
	if jobID, ok := raw["jobId"].(string); !ok || jobID == "" {
		raw["jobId"] = uuid.NewString()
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		i.log.WithError(err).Warn("failed to re-marshal ingress frame")
		return
	}
	if err := i.SubmitRaw(ctx, payload); err != nil {
		i.log.WithError(err).Warn("rejecting malformed ingress frame")
	}
}

// SubmitRaw validates a raw JSON envelope and enqueues it, shared by the
// websocket listener above and the httpapi POST /edit route (spec §6),
// which both feed the same job queue.
func (i *Ingress) SubmitRaw(ctx context.Context, raw []byte) error {
	if err := validateEnvelope(raw); err != nil {
		return err
	}
	enqueueCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ok, err := i.queue.TryEnqueue(enqueueCtx, string(raw))
	if err != nil {
		return err
	}
	if !ok {
		i.log.Warn("job queue at capacity, dropping ingress envelope")
	}
	return nil
}
