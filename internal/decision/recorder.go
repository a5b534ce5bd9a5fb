// Package decision applies a customer's accept/reject verdict to a quote
// exactly once. The first successful application wins; every replay —
// same token, a re-submitted form, or a different action on an already
// decided document — reads back the original outcome and never mutates.
package decision

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/CindyDuong5/pdf-polish/internal/keylock"
	"github.com/CindyDuong5/pdf-polish/internal/metrics"
	"github.com/CindyDuong5/pdf-polish/internal/model"
	"github.com/CindyDuong5/pdf-polish/pkg/decisiontoken"
)

// Registry is the slice of the document store the recorder needs.
type Registry interface {
	GetDocument(ctx context.Context, id string) (model.Document, error)
	GetDecision(ctx context.Context, docID string) (*model.Decision, error)
	InsertDecision(ctx context.Context, d model.Decision) (bool, error)
}

// Finalizer produces the FINAL snapshot for an accepted quote. The
// lifecycle orchestrator implements it.
type Finalizer interface {
	FinalizeForDecision(ctx context.Context, docID string) (model.Document, error)
}

// Payload carries the customer-entered decision details.
type Payload struct {
	PONumber       string
	Note           string
	Reason         string
	DecidedByEmail string
}

// Result reports whether this call applied the decision and the
// authoritative decision + document state either way.
type Result struct {
	Applied  bool
	Decision model.Decision
	Document model.Document
}

type Recorder struct {
	reg    Registry
	fin    Finalizer
	tokens *decisiontoken.Codec
	locks  *keylock.KeyLock
	log    zerolog.Logger
	met    *metrics.Metrics
	now    func() time.Time
}

func NewRecorder(reg Registry, fin Finalizer, tokens *decisiontoken.Codec, locks *keylock.KeyLock, log zerolog.Logger, met *metrics.Metrics) *Recorder {
	return &Recorder{reg: reg, fin: fin, tokens: tokens, locks: locks, log: log, met: met, now: time.Now}
}

// Decide verifies the token, then applies the action exactly once. The
// token must have been issued for this document and this action; claims
// decoded client-side carry no authority here.
func (r *Recorder) Decide(ctx context.Context, docID, token string, action decisiontoken.Action, p Payload) (Result, error) {
	claims, err := r.tokens.Verify(token)
	if err != nil {
		return Result{}, err
	}
	if claims.DocumentID != docID || claims.Action != action {
		return Result{}, decisiontoken.ErrInvalid
	}
	if action == decisiontoken.ActionReject && strings.TrimSpace(p.Reason) == "" {
		return Result{}, model.Invalid("rejection reason is required")
	}

	unlock := r.locks.Lock(docID)
	defer unlock()

	doc, err := r.reg.GetDocument(ctx, docID)
	if err != nil {
		return Result{}, err
	}
	if existing, err := r.reg.GetDecision(ctx, docID); err != nil {
		return Result{}, err
	} else if existing != nil {
		return Result{Applied: false, Decision: *existing, Document: doc}, nil
	}

	d := model.Decision{
		DocumentID:     docID,
		DecidedAt:      r.now().UTC(),
		DecidedByEmail: strings.TrimSpace(p.DecidedByEmail),
	}
	if action == decisiontoken.ActionAccept {
		d.Decision = model.DecisionAccepted
		d.PONumber = strings.TrimSpace(p.PONumber)
		d.Note = strings.TrimSpace(p.Note)
	} else {
		d.Decision = model.DecisionRejected
		d.RejectReason = strings.TrimSpace(p.Reason)
	}

	inserted, err := r.reg.InsertDecision(ctx, d)
	if err != nil {
		return Result{}, err
	}
	if !inserted {
		// Lost a cross-process race; the stored row is authoritative.
		existing, err := r.reg.GetDecision(ctx, docID)
		if err != nil {
			return Result{}, err
		}
		return Result{Applied: false, Decision: *existing, Document: doc}, nil
	}

	if r.met != nil {
		r.met.DecisionsTotal.WithLabelValues(string(d.Decision)).Inc()
	}
	r.log.Info().Str("document_id", docID).Str("decision", string(d.Decision)).Msg("quote decision applied")

	if action == decisiontoken.ActionAccept {
		// Approval refreshes the FINAL snapshot from the current draft
		// fields. A collaborator failure here leaves the document in a
		// retryable ERROR state; the decision itself stands.
		final, err := r.fin.FinalizeForDecision(ctx, docID)
		if err != nil {
			r.log.Error().Err(err).Str("document_id", docID).Msg("finalize after accept failed")
		} else {
			doc = final
		}
		if refreshed, gerr := r.reg.GetDocument(ctx, docID); gerr == nil {
			doc = refreshed
		}
	}

	return Result{Applied: true, Decision: d, Document: doc}, nil
}

// Status serves the idempotent customer page reload: any valid token for
// this document may read the current decision state.
func (r *Recorder) Status(ctx context.Context, docID, token string) (Result, error) {
	claims, err := r.tokens.Verify(token)
	if err != nil {
		return Result{}, err
	}
	if claims.DocumentID != docID {
		return Result{}, decisiontoken.ErrInvalid
	}
	doc, err := r.reg.GetDocument(ctx, docID)
	if err != nil {
		return Result{}, err
	}
	existing, err := r.reg.GetDecision(ctx, docID)
	if err != nil {
		return Result{}, err
	}
	if existing == nil {
		return Result{Applied: false, Document: doc}, nil
	}
	return Result{Applied: false, Decision: *existing, Document: doc}, nil
}
