package ingest

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/docuchat/docuchat/pkg/natsutil"
)

const (
	// Subject carries upload jobs to the ingest workers.
	Subject = "docuchat.ingest"
	// DLQSubject receives jobs that exhausted their retries.
	DLQSubject = "docuchat.ingest.dlq"
	// Queue is the worker queue group; jobs are load-balanced across
	// subscribers sharing it.
	Queue = "ingest-workers"
	// MaxRetries before a job lands on the DLQ.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// dlqMessage wraps a failed job with its failure for the DLQ.
type dlqMessage struct {
	Job     Job    `json:"job"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

// Enqueue publishes a job for asynchronous ingestion.
func Enqueue(ctx context.Context, nc *nats.Conn, job Job) error {
	return natsutil.Publish(ctx, nc, Subject, job)
}

// StartConsumer subscribes the service to the ingest queue group. Failed
// jobs are re-published with an incremented retry header until MaxRetries,
// then moved to the DLQ. A consistency gap goes straight to the DLQ: the
// rows are already persisted, so re-running the job would duplicate them.
func (s *Service) StartConsumer(nc *nats.Conn) (*nats.Subscription, error) {
	return nc.QueueSubscribe(Subject, Queue, func(msg *nats.Msg) {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			s.log.Error("ingest: bad message", "error", err)
			return
		}

		ctx := context.Background()
		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get(retryHeader); v != "" {
				retries, _ = strconv.Atoi(v)
			}
		}

		_, err := s.Ingest(ctx, job)
		if err == nil {
			return
		}
		retries++
		s.log.Error("ingest: job failed",
			"file", job.Filename, "retry", retries, "error", err)

		if retries >= MaxRetries || IsConsistencyGap(err) {
			dlq := dlqMessage{Job: job, Error: err.Error(), Retries: retries}
			if err := natsutil.Publish(ctx, nc, DLQSubject, dlq); err != nil {
				s.log.Error("ingest: dlq publish failed", "error", err)
			}
			return
		}

		retry := nats.NewMsg(Subject)
		retry.Data = msg.Data
		retry.Header = nats.Header{}
		retry.Header.Set(retryHeader, strconv.Itoa(retries))
		if err := nc.PublishMsg(retry); err != nil {
			s.log.Error("ingest: retry publish failed", "error", err)
		}
	})
}
