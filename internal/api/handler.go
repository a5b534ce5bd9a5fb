// Package api is the HTTP surface of the service: document listing and
// retrieval, artifact links, lifecycle actions, the customer decision
// endpoints and the send-email enqueue.
package api

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/CindyDuong5/pdf-polish/internal/decision"
	"github.com/CindyDuong5/pdf-polish/internal/model"
	"github.com/CindyDuong5/pdf-polish/internal/store"
	"github.com/CindyDuong5/pdf-polish/pkg/decisiontoken"
	"github.com/CindyDuong5/pdf-polish/pkg/httpx"
)

// Store is the slice of the registry the handlers read and enqueue
// against. Lifecycle mutations go through Lifecycle, decisions through
// Decider.
type Store interface {
	ListDocuments(ctx context.Context, f store.ListFilter) ([]model.Document, error)
	GetDocument(ctx context.Context, id string) (model.Document, error)
	GetFields(ctx context.Context, id string) (draft, final *model.FieldsSnapshot, err error)
	GetDecision(ctx context.Context, docID string) (*model.Decision, error)
	CreateSendJob(ctx context.Context, job model.SendJob) error
	MarkSent(ctx context.Context, docID, to string, cc []string) error
}

type Lifecycle interface {
	Restyle(ctx context.Context, docID string) (model.Document, error)
	SaveFinal(ctx context.Context, docID string, fields model.FieldsSnapshot) (model.Document, error)
}

type Decider interface {
	Decide(ctx context.Context, docID, token string, action decisiontoken.Action, p decision.Payload) (decision.Result, error)
	Status(ctx context.Context, docID, token string) (decision.Result, error)
}

type Presigner interface {
	PresignGet(ctx context.Context, key string, expires time.Duration, filename string, inline bool) (string, error)
}

type Handler struct {
	Store     Store
	Lifecycle Lifecycle
	Decider   Decider
	Presigner Presigner
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/documents", func(api chi.Router) {
		api.Get("/", h.listDocuments)
		api.Get("/{id}", h.getDocument)
		api.Get("/{id}/links", h.getLinks)
		api.Get("/{id}/presign", h.presign)
		api.Post("/{id}/restyle", h.restyle)
		api.Get("/{id}/fields", h.getFields)
		api.Post("/{id}/save-final", h.saveFinal)
		api.Post("/{id}/quote/accept", h.quoteAccept)
		api.Post("/{id}/quote/reject", h.quoteReject)
		api.Get("/{id}/quote/decision", h.quoteDecision)
		api.Post("/{id}/send-email", h.sendEmail)
	})
}

// writeDomainError maps domain errors onto the envelope. Token failures
// deliberately collapse into one generic customer-facing message.
func writeDomainError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	var cerr *model.ConflictError
	var collab *model.CollaboratorError
	switch {
	case errors.As(err, &verr):
		httpx.WriteError(w, 400, "VALIDATION_ERROR", verr.Msg, nil)
	case errors.As(err, &cerr):
		httpx.WriteError(w, 409, "CONFLICT", cerr.Msg, map[string]any{"status": cerr.Current})
	case errors.Is(err, decisiontoken.ErrInvalid):
		httpx.WriteError(w, 403, "TOKEN_INVALID", "invalid or expired link", nil)
	case errors.Is(err, model.ErrNotFound):
		httpx.WriteError(w, 404, "NOT_FOUND", "document not found", nil)
	case errors.As(err, &collab):
		httpx.WriteError(w, 502, "COLLABORATOR_ERROR", collab.Op, nil)
	default:
		httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
	}
}

// docSummary is the list-view projection: no keys or snapshots, just
// enough to render a row.
type docSummary struct {
	ID              string        `json:"id"`
	DocType         model.DocType `json:"doc_type"`
	Status          model.Status  `json:"status"`
	CustomerName    string        `json:"customer_name,omitempty"`
	CustomerEmail   string        `json:"customer_email,omitempty"`
	PropertyAddress string        `json:"property_address,omitempty"`
	InvoiceNumber   string        `json:"invoice_number,omitempty"`
	QuoteNumber     string        `json:"quote_number,omitempty"`
	JobReportNumber string        `json:"job_report_number,omitempty"`
	Error           string        `json:"error,omitempty"`
	HasStyledDraft  bool          `json:"has_styled_draft"`
	HasFinal        bool          `json:"has_final"`
	SentAt          *time.Time    `json:"sent_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func summarize(d model.Document) docSummary {
	return docSummary{
		ID: d.ID, DocType: d.DocType, Status: d.Status,
		CustomerName: d.CustomerName, CustomerEmail: d.CustomerEmail, PropertyAddress: d.PropertyAddress,
		InvoiceNumber: d.InvoiceNumber, QuoteNumber: d.QuoteNumber, JobReportNumber: d.JobReportNumber,
		Error:          d.Error,
		HasStyledDraft: d.StyledDraftKey != "",
		HasFinal:       d.FinalKey != "",
		SentAt:         d.SentAt,
		CreatedAt:      d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httpx.WriteError(w, 400, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		limit = n
	}
	docs, err := h.Store.ListDocuments(r.Context(), store.ListFilter{
		Q:       strings.TrimSpace(q.Get("q")),
		DocType: q.Get("doc_type"),
		Status:  q.Get("status"),
		Limit:   limit,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	summaries := make([]docSummary, len(docs))
	for i, d := range docs {
		summaries[i] = summarize(d)
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "documents": summaries})
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "document": doc})
}

const (
	defaultPresignExpiry = 10 * time.Minute
	maxPresignExpiry     = time.Hour
)

type artifactLink struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

func (h *Handler) link(ctx context.Context, key, filename string) (*artifactLink, error) {
	if key == "" {
		return nil, nil
	}
	u, err := h.Presigner.PresignGet(ctx, key, defaultPresignExpiry, filename, true)
	if err != nil {
		return nil, err
	}
	return &artifactLink{Key: key, URL: u}, nil
}

func (h *Handler) getLinks(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	filename := doc.Filename()
	original, err := h.link(r.Context(), doc.OriginalKey, filename)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	draft, err := h.link(r.Context(), doc.StyledDraftKey, filename)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	final, err := h.link(r.Context(), doc.FinalKey, filename)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id": httpx.NewRequestID(),
		"document":   doc,
		"links": map[string]any{
			"original":     original,
			"styled_draft": draft,
			"final":        final,
		},
	})
}

func (h *Handler) presign(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var key string
	which := r.URL.Query().Get("which")
	switch which {
	case "original":
		key = doc.OriginalKey
	case "styled_draft":
		key = doc.StyledDraftKey
	case "final":
		key = doc.FinalKey
	default:
		httpx.WriteError(w, 400, "VALIDATION_ERROR", "which must be one of original, styled_draft, final", nil)
		return
	}
	if key == "" {
		httpx.WriteError(w, 404, "NOT_FOUND", "artifact not produced yet", map[string]any{"which": which})
		return
	}

	expires := defaultPresignExpiry
	if v := r.URL.Query().Get("expires_seconds"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httpx.WriteError(w, 400, "VALIDATION_ERROR", "expires_seconds must be a positive integer", nil)
			return
		}
		expires = time.Duration(n) * time.Second
		if expires > maxPresignExpiry {
			expires = maxPresignExpiry
		}
	}

	u, err := h.Presigner.PresignGet(r.Context(), key, expires, doc.Filename(), true)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id": httpx.NewRequestID(),
		"which":      which,
		"key":        key,
		"url":        u,
	})
}

func (h *Handler) restyle(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Lifecycle.Restyle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeLifecycleError(w, doc, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "document": doc})
}

// writeLifecycleError reports a failed lifecycle mutation. Conflicts and
// collaborator failures both carry the authoritative record in details so
// the caller can render current state without a re-read.
func writeLifecycleError(w http.ResponseWriter, doc model.Document, err error) {
	var cerr *model.ConflictError
	if errors.As(err, &cerr) {
		httpx.WriteError(w, 409, "CONFLICT", cerr.Msg, map[string]any{"status": cerr.Current, "document": doc})
		return
	}
	var collab *model.CollaboratorError
	if errors.As(err, &collab) {
		httpx.WriteError(w, 502, "COLLABORATOR_ERROR", collab.Op, map[string]any{"status": doc.Status, "document": doc})
		return
	}
	writeDomainError(w, err)
}

func (h *Handler) getFields(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Store.GetDocument(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	draft, final, err := h.Store.GetFields(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id":  httpx.NewRequestID(),
		"document_id": id,
		"draft":       draft,
		"final":       final,
	})
}

func (h *Handler) saveFinal(w http.ResponseWriter, r *http.Request) {
	var fields model.FieldsSnapshot
	if err := httpx.ReadJSON(r, &fields); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	doc, err := h.Lifecycle.SaveFinal(r.Context(), chi.URLParam(r, "id"), fields)
	if err != nil {
		writeLifecycleError(w, doc, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "document": doc})
}

func (h *Handler) quoteAccept(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token          string `json:"token"`
		QuotePONumber  string `json:"quote_po_number"`
		QuoteNote      string `json:"quote_note"`
		DecidedByEmail string `json:"decided_by_email"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	res, err := h.Decider.Decide(r.Context(), chi.URLParam(r, "id"), req.Token, decisiontoken.ActionAccept, decision.Payload{
		PONumber:       req.QuotePONumber,
		Note:           req.QuoteNote,
		DecidedByEmail: req.DecidedByEmail,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeDecision(w, res)
}

func (h *Handler) quoteReject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token          string `json:"token"`
		Reason         string `json:"reason"`
		DecidedByEmail string `json:"decided_by_email"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	res, err := h.Decider.Decide(r.Context(), chi.URLParam(r, "id"), req.Token, decisiontoken.ActionReject, decision.Payload{
		Reason:         req.Reason,
		DecidedByEmail: req.DecidedByEmail,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeDecision(w, res)
}

func (h *Handler) quoteDecision(w http.ResponseWriter, r *http.Request) {
	res, err := h.Decider.Status(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("token"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeDecision(w, res)
}

func writeDecision(w http.ResponseWriter, res decision.Result) {
	body := map[string]any{
		"request_id":      httpx.NewRequestID(),
		"applied":         res.Applied,
		"decision_status": "PENDING",
		"document":        res.Document,
	}
	if res.Decision.Decision != "" {
		body["decision_status"] = res.Decision.Decision
		body["decision"] = res.Decision
	}
	httpx.WriteJSON(w, 200, body)
}

func (h *Handler) sendEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientEmail string   `json:"client_email"`
		CC          []string `json:"cc"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	to := strings.TrimSpace(req.ClientEmail)
	if _, err := mail.ParseAddress(to); err != nil {
		httpx.WriteError(w, 400, "VALIDATION_ERROR", "client_email is not a valid email address", nil)
		return
	}
	cc := make([]string, 0, len(req.CC))
	for _, addr := range req.CC {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, err := mail.ParseAddress(addr); err != nil {
			httpx.WriteError(w, 400, "VALIDATION_ERROR", "cc contains an invalid email address", map[string]any{"address": addr})
			return
		}
		cc = append(cc, addr)
	}

	id := chi.URLParam(r, "id")
	doc, err := h.Store.GetDocument(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if doc.StyledDraftKey == "" && doc.FinalKey == "" {
		httpx.WriteError(w, 409, "CONFLICT", "no styled artifact to send yet", map[string]any{"status": doc.Status})
		return
	}

	job := model.SendJob{
		ID:         uuid.NewString(),
		DocumentID: id,
		ToEmail:    to,
		CCEmails:   cc,
		Status:     model.SendJobQueued,
	}
	if err := h.Store.CreateSendJob(r.Context(), job); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Store.MarkSent(r.Context(), id, to, cc); err != nil {
		writeDomainError(w, err)
		return
	}
	doc, err = h.Store.GetDocument(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, 202, map[string]any{
		"request_id": httpx.NewRequestID(),
		"document":   doc,
		"send_job":   job,
	})
}
