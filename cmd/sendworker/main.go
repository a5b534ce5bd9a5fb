// Command sendworker drains the send_jobs queue: it claims queued jobs,
// renders the outbound email for each document and delivers it over
// SMTP. Claiming uses FOR UPDATE SKIP LOCKED so multiple workers can
// run side by side, and jobs a crashed worker left in SENDING are
// reclaimed once their claim goes stale.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/CindyDuong5/pdf-polish/internal/config"
	"github.com/CindyDuong5/pdf-polish/internal/logger"
	"github.com/CindyDuong5/pdf-polish/internal/mailer"
	"github.com/CindyDuong5/pdf-polish/internal/metrics"
	"github.com/CindyDuong5/pdf-polish/internal/model"
	"github.com/CindyDuong5/pdf-polish/internal/objstore"
	"github.com/CindyDuong5/pdf-polish/internal/store"
	"github.com/CindyDuong5/pdf-polish/pkg/db"
	"github.com/CindyDuong5/pdf-polish/pkg/decisiontoken"
)

const (
	pollInterval      = 5 * time.Second
	claimBatch        = 10
	sendParallel      = 4
	sendingStaleAfter = 10 * time.Minute
)

// registry is the slice of the store the worker needs; tests substitute
// an in-memory fake.
type registry interface {
	GetDocument(ctx context.Context, id string) (model.Document, error)
	ClaimSendJobs(ctx context.Context, limit int, staleAfter time.Duration) ([]model.SendJob, error)
	CompleteSendJob(ctx context.Context, id string) error
	FailSendJob(ctx context.Context, id, message string) error
}

type emailSender interface {
	Send(ctx context.Context, e mailer.Email) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("pdf-polish-sendworker", "info", false)
		bootLog.Fatal().Err(err).Msg("configuration")
	}
	log := logger.New("pdf-polish-sendworker", cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connect")
	}
	defer pool.Close()

	objects, err := objstore.NewS3(ctx, cfg.S3Bucket, cfg.AWSRegion)
	if err != nil {
		log.Fatal().Err(err).Msg("object storage")
	}

	tokens := decisiontoken.New(cfg.DecisionTokenSecret, cfg.DecisionTokenTTL)

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil {
			log.Error().Err(err).Msg("metrics listener")
		}
	}()

	w := &worker{
		st:      store.New(pool),
		objects: objects,
		builder: mailer.NewBuilder(tokens, cfg.PublicBaseURL),
		sender: mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
			ReplyTo:  cfg.EmailReplyTo,
		}),
		log: log,
		met: met,
	}

	log.Info().Msg("send worker started")
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		w.runOnce(ctx)

		select {
		case <-ctx.Done():
			log.Info().Msg("send worker stopping")
			return
		case <-ticker.C:
		}
	}
}

type worker struct {
	st      registry
	objects objstore.Store
	builder *mailer.Builder
	sender  emailSender
	log     zerolog.Logger
	met     *metrics.Metrics
}

// runOnce claims one batch (including stale SENDING leftovers) and
// delivers it with bounded parallelism.
func (w *worker) runOnce(ctx context.Context) {
	jobs, err := w.st.ClaimSendJobs(ctx, claimBatch, sendingStaleAfter)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("claim send jobs")
		}
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sendParallel)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			if err := w.process(gctx, job); err != nil {
				w.met.SendJobsTotal.WithLabelValues("failed").Inc()
				w.log.Error().Err(err).Str("job_id", job.ID).Str("document_id", job.DocumentID).Msg("send failed")
				if ferr := w.st.FailSendJob(gctx, job.ID, err.Error()); ferr != nil {
					w.log.Error().Err(ferr).Str("job_id", job.ID).Msg("mark failed")
				}
				return nil
			}
			w.met.SendJobsTotal.WithLabelValues("sent").Inc()
			w.log.Info().Str("job_id", job.ID).Str("document_id", job.DocumentID).Str("to", job.ToEmail).Msg("sent")
			return nil
		})
	}
	_ = g.Wait()
}

// process sends one claimed job end to end. The attached artifact is
// the final PDF when one exists, otherwise the styled draft.
func (w *worker) process(ctx context.Context, job model.SendJob) error {
	doc, err := w.st.GetDocument(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	key := doc.FinalKey
	if key == "" {
		key = doc.StyledDraftKey
	}
	if key == "" {
		return fmt.Errorf("document %s has no styled artifact", doc.ID)
	}
	pdf, err := w.objects.Download(ctx, key)
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	email, err := w.builder.Build(doc, job.ToEmail, job.CCEmails, pdf)
	if err != nil {
		return fmt.Errorf("compose email: %w", err)
	}
	if err := w.sender.Send(ctx, email); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return w.st.CompleteSendJob(ctx, job.ID)
}
