// Package lifecycle drives a document's production state machine:
//
//	NEW -> STYLING -> READY -> FINALIZING -> FINAL
//
// coordinating the external rendering engine and object storage, and
// translating their failures into retryable ERROR transitions.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/CindyDuong5/pdf-polish/internal/keylock"
	"github.com/CindyDuong5/pdf-polish/internal/metrics"
	"github.com/CindyDuong5/pdf-polish/internal/model"
	"github.com/CindyDuong5/pdf-polish/internal/objstore"
	"github.com/CindyDuong5/pdf-polish/internal/styling"
)

// Registry is the slice of the document store the orchestrator mutates.
type Registry interface {
	GetDocument(ctx context.Context, id string) (model.Document, error)
	BeginStyling(ctx context.Context, id string, staleAfter time.Duration) (model.Document, bool, error)
	FinishStyling(ctx context.Context, id, draftKey string, fields *model.FieldsSnapshot) error
	BeginFinalizing(ctx context.Context, id string, staleAfter time.Duration) (model.Document, bool, error)
	FinishFinal(ctx context.Context, id, finalKey string, fields model.FieldsSnapshot) error
	MarkError(ctx context.Context, id, message string) error
	GetFields(ctx context.Context, id string) (draft, final *model.FieldsSnapshot, err error)
	GetDecision(ctx context.Context, docID string) (*model.Decision, error)
}

type Deps struct {
	Registry Registry
	Renderer styling.Renderer
	Objects  objstore.Store
	Locks    *keylock.KeyLock
	Log      zerolog.Logger
	Metrics  *metrics.Metrics
}

type Options struct {
	TaxRate         decimal.Decimal
	RenderTimeout   time.Duration
	FinalizeTimeout time.Duration

	// StylingStaleAfter bounds both in-flight markers: a STYLING or
	// FINALIZING claim older than this may be taken over, so a crashed
	// worker cannot wedge a document in either transient state.
	StylingStaleAfter time.Duration
}

type Orchestrator struct {
	reg      Registry
	renderer styling.Renderer
	objects  objstore.Store
	locks    *keylock.KeyLock
	log      zerolog.Logger
	met      *metrics.Metrics
	opts     Options
}

func New(deps Deps, opts Options) *Orchestrator {
	if opts.RenderTimeout <= 0 {
		opts.RenderTimeout = 2 * time.Minute
	}
	if opts.FinalizeTimeout <= 0 {
		opts.FinalizeTimeout = 2 * time.Minute
	}
	if opts.StylingStaleAfter <= 0 {
		opts.StylingStaleAfter = 10 * time.Minute
	}
	if opts.TaxRate.IsZero() {
		opts.TaxRate = decimal.NewFromFloat(0.13)
	}
	return &Orchestrator{
		reg:      deps.Registry,
		renderer: deps.Renderer,
		objects:  deps.Objects,
		locks:    deps.Locks,
		log:      deps.Log,
		met:      deps.Metrics,
		opts:     opts,
	}
}

// Restyle regenerates the styled draft and extracted fields. A second
// restyle while one is in flight observes STYLING and is rejected with a
// Conflict; a claim whose in-flight marker has gone stale may be taken
// over.
func (o *Orchestrator) Restyle(ctx context.Context, docID string) (model.Document, error) {
	unlock := o.locks.Lock(docID)
	defer unlock()

	doc, ok, err := o.reg.BeginStyling(ctx, docID, o.opts.StylingStaleAfter)
	if err != nil {
		return model.Document{}, err
	}
	if !ok {
		return doc, &model.ConflictError{Current: doc.Status, Msg: "restyle already in progress"}
	}
	o.transition(model.StatusStyling)
	o.log.Info().Str("document_id", docID).Msg("restyle started")

	ctx, cancel := context.WithTimeout(ctx, o.opts.RenderTimeout)
	defer cancel()

	original, err := o.objects.Download(ctx, doc.OriginalKey)
	if err != nil {
		return o.fail(docID, "download original", err, o.opts.RenderTimeout)
	}
	result, err := o.renderer.Restyle(ctx, doc, original)
	if err != nil {
		return o.fail(docID, "restyle", err, o.opts.RenderTimeout)
	}
	draftKey := styling.StyledDraftKey(doc.OriginalKey, doc.ID)
	if err := o.objects.UploadPDF(ctx, draftKey, result.StyledPDF); err != nil {
		return o.fail(docID, "upload styled draft", err, o.opts.RenderTimeout)
	}

	fields := result.Fields
	if fields != nil {
		normalized := NormalizeFields(*fields, o.opts.TaxRate)
		fields = &normalized
	}
	if err := o.reg.FinishStyling(ctx, docID, draftKey, fields); err != nil {
		return o.fail(docID, "persist styled draft", err, o.opts.RenderTimeout)
	}
	o.transition(model.StatusReady)
	o.log.Info().Str("document_id", docID).Str("styled_draft_key", draftKey).Msg("restyle complete")

	return o.reg.GetDocument(ctx, docID)
}

// SaveFinal recomputes totals from the submitted items and renders the
// locked final artifact. Once a customer decision exists the document is
// locked and further saves are rejected.
func (o *Orchestrator) SaveFinal(ctx context.Context, docID string, fields model.FieldsSnapshot) (model.Document, error) {
	unlock := o.locks.Lock(docID)
	defer unlock()

	dec, err := o.reg.GetDecision(ctx, docID)
	if err != nil {
		return model.Document{}, err
	}
	if dec != nil {
		doc, err := o.reg.GetDocument(ctx, docID)
		if err != nil {
			return model.Document{}, err
		}
		return doc, &model.ConflictError{Current: doc.Status, Msg: fmt.Sprintf("quote already %s; document is locked", dec.Decision)}
	}
	return o.finalize(ctx, docID, fields)
}

// FinalizeForDecision runs the save-final path on the then-current draft
// fields so an accepted quote always produces a fresh FINAL snapshot.
// The caller (the decision recorder) already holds the per-document
// lock.
func (o *Orchestrator) FinalizeForDecision(ctx context.Context, docID string) (model.Document, error) {
	draft, final, err := o.reg.GetFields(ctx, docID)
	if err != nil {
		return model.Document{}, err
	}
	var fields model.FieldsSnapshot
	switch {
	case draft != nil:
		fields = *draft
	case final != nil:
		fields = *final
	}
	return o.finalize(ctx, docID, fields)
}

func (o *Orchestrator) finalize(ctx context.Context, docID string, fields model.FieldsSnapshot) (model.Document, error) {
	normalized := NormalizeFields(fields, o.opts.TaxRate)

	doc, ok, err := o.reg.BeginFinalizing(ctx, docID, o.opts.StylingStaleAfter)
	if err != nil {
		return model.Document{}, err
	}
	if !ok {
		return doc, &model.ConflictError{Current: doc.Status, Msg: "save-final not allowed from current status"}
	}
	o.transition(model.StatusFinalizing)

	ctx, cancel := context.WithTimeout(ctx, o.opts.FinalizeTimeout)
	defer cancel()

	sourceKey := doc.StyledDraftKey
	if sourceKey == "" {
		sourceKey = doc.OriginalKey
	}
	source, err := o.objects.Download(ctx, sourceKey)
	if err != nil {
		return o.fail(docID, "download source", err, o.opts.FinalizeTimeout)
	}
	pdf, err := o.renderer.Finalize(ctx, doc, source, normalized)
	if err != nil {
		return o.fail(docID, "finalize", err, o.opts.FinalizeTimeout)
	}
	finalKey := styling.FinalKey(doc.OriginalKey, doc.ID)
	if err := o.objects.UploadPDF(ctx, finalKey, pdf); err != nil {
		return o.fail(docID, "upload final", err, o.opts.FinalizeTimeout)
	}
	if err := o.reg.FinishFinal(ctx, docID, finalKey, normalized); err != nil {
		return o.fail(docID, "persist final", err, o.opts.FinalizeTimeout)
	}
	o.transition(model.StatusFinal)
	o.log.Info().Str("document_id", docID).Str("final_key", finalKey).Msg("final saved")

	return o.reg.GetDocument(ctx, docID)
}

// fail records a collaborator failure as a retryable ERROR status. A
// deadline overrun gets a timeout-specific message so an operator can
// tell a stuck engine from a broken one.
func (o *Orchestrator) fail(docID, op string, cause error, timeout time.Duration) (model.Document, error) {
	message := fmt.Sprintf("%s: %v", op, cause)
	if errors.Is(cause, context.DeadlineExceeded) {
		message = fmt.Sprintf("%s timed out after %s", op, timeout)
	}
	// Mark on a fresh context: the operation context may already be
	// expired, and the ERROR transition must still land.
	markCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.reg.MarkError(markCtx, docID, message); err != nil {
		o.log.Error().Err(err).Str("document_id", docID).Msg("failed to record error status")
	}
	o.transition(model.StatusError)
	o.log.Error().Str("document_id", docID).Str("op", op).Err(cause).Msg("lifecycle operation failed")

	doc, err := o.reg.GetDocument(markCtx, docID)
	if err != nil {
		return model.Document{}, err
	}
	return doc, &model.CollaboratorError{Op: message, Err: cause}
}

func (o *Orchestrator) transition(to model.Status) {
	if o.met != nil {
		o.met.TransitionsTotal.WithLabelValues(string(to)).Inc()
	}
}
