// Package worker provides a NATS worker that runs deck sync batches on request.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/anki-speech/internal/batch"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
)

// DefaultBatchTimeout bounds one requested batch.
const DefaultBatchTimeout = 30 * time.Minute

// ErrDeckEmpty indicates a sync request without a deck name.
var ErrDeckEmpty = errors.New("deck cannot be empty")

// Runner runs one batch over a collection.
type Runner interface {
	Process(ctx context.Context, collection string, force bool) (batch.Report, error)
}

// SyncRequest is the payload accepted on the sync subject.
type SyncRequest struct {
	Deck  string `json:"deck"`
	Force bool   `json:"force"`
}

// SyncReply is sent back to the requester. Error is set when the batch was
// rejected or aborted; Report then holds whatever was accumulated.
type SyncReply struct {
	Report *batch.Report `json:"report,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// NatsWorker listens for sync requests on a NATS subject and processes them
// one at a time.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	runner         Runner
	batchTimeout   time.Duration
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	runner Runner,
	batchTimeout time.Duration,
	log *logger.Logger,
) *NatsWorker {
	if batchTimeout <= 0 {
		batchTimeout = DefaultBatchTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		runner:         runner,
		batchTimeout:   batchTimeout,
		log:            log,
	}
}

// Run starts the worker and blocks until ctx is done.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, func(msg *nats.Msg) {
		w.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for sync requests on %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(parent context.Context, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(parent, w.batchTimeout)
	defer cancel()

	request, err := parseRequest(msg.Data)
	if err != nil {
		w.log.Error("Failed to parse sync request: %v", err)
		w.reply(msg, SyncReply{Error: err.Error()})

		return
	}

	w.log.Info("Sync requested for deck '%s' (force=%t)", request.Deck, request.Force)

	report, processErr := w.runner.Process(ctx, request.Deck, request.Force)

	reply := SyncReply{Report: &report}
	if processErr != nil {
		w.log.Error("Sync of deck '%s' aborted: %v", request.Deck, processErr)
		reply.Error = processErr.Error()
	}

	w.reply(msg, reply)
}

func (w *NatsWorker) reply(msg *nats.Msg, reply SyncReply) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(reply)
	if err != nil {
		w.log.Error("Failed to marshal sync reply: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish sync reply: %v", err)
	}
}

func parseRequest(data []byte) (SyncRequest, error) {
	var request SyncRequest

	err := json.Unmarshal(data, &request)
	if err != nil {
		return SyncRequest{}, fmt.Errorf("failed to unmarshal sync request: %w", err)
	}

	request.Deck = strings.TrimSpace(request.Deck)
	if request.Deck == "" {
		return SyncRequest{}, ErrDeckEmpty
	}

	return request, nil
}
