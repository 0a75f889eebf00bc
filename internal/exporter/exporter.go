package exporter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/expanse-labs/expander-go/internal/expander"
	"github.com/expanse-labs/expander-go/internal/store"
	"github.com/expanse-labs/expander-go/pkg/model"
)

const (
	dateFormat     = "2006-01-02"
	checkpointName = "events"
)

// Publisher publishes canonical envelopes; satisfied by internal/publisher.
type Publisher interface {
	PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error
}

// Exporter periodically pulls Expander events for the window since the last
// checkpoint and fans them out to NATS, optionally mirroring each event to
// the Postgres sink. Expander has no push mechanism, so a date-windowed pull
// is the only way to stream events downstream.
type Exporter struct {
	logger    *zap.Logger
	client    *expander.Client
	pub       Publisher
	store     store.Store
	subject   string
	service   string
	interval  time.Duration
	window    time.Duration
	pageLimit int
	stopCh    chan struct{}
}

// New constructs an exporter. window bounds the initial backfill when no
// checkpoint exists yet.
func New(
	logger *zap.Logger,
	client *expander.Client,
	pub Publisher,
	st store.Store,
	subject string,
	service string,
	interval time.Duration,
	window time.Duration,
	pageLimit int,
) *Exporter {
	return &Exporter{
		logger:    logger,
		client:    client,
		pub:       pub,
		store:     st,
		subject:   subject,
		service:   service,
		interval:  interval,
		window:    window,
		pageLimit: pageLimit,
		stopCh:    make(chan struct{}),
	}
}

// Stop signals the export loop to terminate.
func (e *Exporter) Stop() {
	close(e.stopCh)
}

// Run exports once immediately, then on every interval tick until the context
// is canceled or Stop is called.
func (e *Exporter) Run(ctx context.Context) error {
	if _, err := e.ExportOnce(ctx); err != nil {
		e.logger.Warn("exporter.run_failed", zap.Error(err))
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stopCh:
			return nil
		case <-ticker.C:
			if _, err := e.ExportOnce(ctx); err != nil {
				e.logger.Warn("exporter.run_failed", zap.Error(err))
			}
		}
	}
}

// ExportOnce pulls all event pages since the checkpoint up to yesterday
// (the API rejects windows touching today) and publishes them. It returns the
// number of events exported.
func (e *Exporter) ExportOnce(ctx context.Context) (int, error) {
	since, err := e.store.GetCheckpoint(ctx, checkpointName)
	if err != nil {
		e.logger.Warn("exporter.checkpoint_read_failed", zap.Error(err))
	}
	if since.IsZero() {
		since = time.Now().UTC().Add(-e.window)
	}

	end := time.Now().UTC().AddDate(0, 0, -1)
	if end.Format(dateFormat) < since.Format(dateFormat) {
		// Checkpoint already covers everything the API can serve.
		return 0, nil
	}

	pages, err := e.client.ListEvents(expander.EventParams{
		StartDate: since.Format(dateFormat),
		EndDate:   end.Format(dateFormat),
		Limit:     e.pageLimit,
	})
	if err != nil {
		return 0, err
	}

	total := 0
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return total, err
		}
		for _, ev := range page.Items {
			if err := e.exportEvent(ctx, ev); err != nil {
				return total, err
			}
			total++
		}
		e.logger.Info("exporter.page_done",
			zap.Int("page_events", len(page.Items)),
			zap.Int("total", total),
			zap.Int("total_count", page.TotalCount))
	}

	if err := e.store.SetCheckpoint(ctx, checkpointName, end); err != nil {
		e.logger.Warn("exporter.checkpoint_write_failed", zap.Error(err))
	}

	e.logger.Info("exporter.sync_complete",
		zap.String("start", since.Format(dateFormat)),
		zap.String("end", end.Format(dateFormat)),
		zap.Int("events", total))
	return total, nil
}

// exportEvent publishes one event envelope and mirrors it to the sink.
// Sink failures are logged but do not stop the export; publish failures do.
func (e *Exporter) exportEvent(ctx context.Context, ev expander.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		EventType:     ev.EventType,
		Version:       "v1",
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}
	if err := e.pub.PublishEnvelope(ctx, e.subject, env); err != nil {
		return err
	}

	if err := e.store.InsertEvent(ctx, model.ExportedEvent{
		ID:           ev.ID,
		EventType:    ev.EventType,
		EventTime:    ev.EventTime,
		BusinessUnit: ev.BusinessUnit.Name,
		Payload:      payload,
		Source:       e.service,
	}); err != nil {
		e.logger.Warn("exporter.sink_failed",
			zap.String("event_id", ev.ID),
			zap.Error(err))
	}
	return nil
}
