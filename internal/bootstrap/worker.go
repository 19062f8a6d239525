package bootstrap

import (
	"errors"
	"fmt"

	"github.com/kirillkom/portfolio-chatbot/internal/config"
	"github.com/kirillkom/portfolio-chatbot/internal/core/usecase"
	"github.com/kirillkom/portfolio-chatbot/internal/infrastructure/queue/nats"
	"github.com/kirillkom/portfolio-chatbot/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/portfolio-chatbot/internal/observability/metrics"
)

// Worker holds the transcript archiver dependencies.
type Worker struct {
	Config   config.Config
	Queue    *nats.Queue
	Archiver *usecase.TranscriptArchiver
	Metrics  *metrics.WorkerMetrics
}

func NewWorker(cfg config.Config) (*Worker, error) {
	if cfg.NATSURL == "" {
		return nil, errors.New("NATS_URL is required for the worker")
	}
	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init transcript storage: %w", err)
	}
	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	return &Worker{
		Config:   cfg,
		Queue:    queue,
		Archiver: usecase.NewTranscriptArchiver(storage),
		Metrics:  metrics.NewWorkerMetrics("worker"),
	}, nil
}

func (w *Worker) Close() {
	if w.Queue != nil {
		w.Queue.Close()
	}
}
