package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/CindyDuong5/pdf-polish/internal/decision"
	"github.com/CindyDuong5/pdf-polish/internal/model"
	"github.com/CindyDuong5/pdf-polish/internal/store"
	"github.com/CindyDuong5/pdf-polish/pkg/decisiontoken"
)

type fakeStore struct {
	docs      map[string]model.Document
	draft     *model.FieldsSnapshot
	final     *model.FieldsSnapshot
	decision  *model.Decision
	sendJobs  []model.SendJob
	sentTo    string
	sentCC    []string
	sentCount int
}

func (f *fakeStore) ListDocuments(ctx context.Context, fl store.ListFilter) ([]model.Document, error) {
	out := []model.Document{}
	for _, d := range f.docs {
		if fl.DocType != "" && string(d.DocType) != fl.DocType {
			continue
		}
		if fl.Status != "" && string(d.Status) != fl.Status {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeStore) GetDocument(ctx context.Context, id string) (model.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return model.Document{}, model.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) GetFields(ctx context.Context, id string) (*model.FieldsSnapshot, *model.FieldsSnapshot, error) {
	return f.draft, f.final, nil
}

func (f *fakeStore) GetDecision(ctx context.Context, docID string) (*model.Decision, error) {
	return f.decision, nil
}

func (f *fakeStore) CreateSendJob(ctx context.Context, job model.SendJob) error {
	f.sendJobs = append(f.sendJobs, job)
	return nil
}

func (f *fakeStore) MarkSent(ctx context.Context, docID, to string, cc []string) error {
	f.sentTo, f.sentCC = to, cc
	f.sentCount++
	return nil
}

type fakeLifecycle struct {
	restyle   func(id string) (model.Document, error)
	saveFinal func(id string, fields model.FieldsSnapshot) (model.Document, error)
}

func (f *fakeLifecycle) Restyle(ctx context.Context, id string) (model.Document, error) {
	return f.restyle(id)
}

func (f *fakeLifecycle) SaveFinal(ctx context.Context, id string, fields model.FieldsSnapshot) (model.Document, error) {
	return f.saveFinal(id, fields)
}

type fakeDecider struct {
	decide func(docID, token string, action decisiontoken.Action, p decision.Payload) (decision.Result, error)
	status func(docID, token string) (decision.Result, error)
}

func (f *fakeDecider) Decide(ctx context.Context, docID, token string, action decisiontoken.Action, p decision.Payload) (decision.Result, error) {
	return f.decide(docID, token, action, p)
}

func (f *fakeDecider) Status(ctx context.Context, docID, token string) (decision.Result, error) {
	return f.status(docID, token)
}

type fakePresigner struct{}

func (fakePresigner) PresignGet(ctx context.Context, key string, expires time.Duration, filename string, inline bool) (string, error) {
	return "https://signed.example/" + key, nil
}

func testDoc() model.Document {
	return model.Document{
		ID:          "doc-1",
		DocType:     model.DocTypeServiceQuote,
		Status:      model.StatusReady,
		QuoteNumber: "Q-1001",
		OriginalKey: "original/2026-01-02/doc-1.pdf",
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
}

func serve(h *Handler, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	r := chi.NewRouter()
	h.Routes(r)
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v\n%s", err, rec.Body.String())
	}
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestListDocumentsReturnsSummaries(t *testing.T) {
	doc := testDoc()
	doc.StyledDraftKey = "styled_draft/2026-01-02/doc-1.pdf"
	h := &Handler{Store: &fakeStore{docs: map[string]model.Document{"doc-1": doc}}, Presigner: fakePresigner{}}

	rec := serve(h, "GET", "/api/documents?doc_type=SERVICE_QUOTE", nil)
	if rec.Code != 200 {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	docs, _ := body["documents"].([]any)
	if len(docs) != 1 {
		t.Fatalf("documents = %v", docs)
	}
	row := docs[0].(map[string]any)
	if row["has_styled_draft"] != true || row["has_final"] != false {
		t.Fatalf("artifact flags wrong: %v", row)
	}
	if _, ok := row["original_s3_key"]; ok {
		t.Fatalf("summary must not expose storage keys")
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	h := &Handler{Store: &fakeStore{docs: map[string]model.Document{}}}
	rec := serve(h, "GET", "/api/documents/nope", nil)
	if rec.Code != 404 || errorCode(t, rec) != "NOT_FOUND" {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestGetLinksOmitsAbsentArtifacts(t *testing.T) {
	doc := testDoc()
	h := &Handler{Store: &fakeStore{docs: map[string]model.Document{"doc-1": doc}}, Presigner: fakePresigner{}}

	rec := serve(h, "GET", "/api/documents/doc-1/links", nil)
	if rec.Code != 200 {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	links := body["links"].(map[string]any)
	orig := links["original"].(map[string]any)
	if orig["url"] != "https://signed.example/original/2026-01-02/doc-1.pdf" {
		t.Fatalf("original link = %v", orig)
	}
	if links["styled_draft"] != nil || links["final"] != nil {
		t.Fatalf("absent artifacts must be null: %v", links)
	}
}

func TestPresignValidatesWhich(t *testing.T) {
	doc := testDoc()
	h := &Handler{Store: &fakeStore{docs: map[string]model.Document{"doc-1": doc}}, Presigner: fakePresigner{}}

	rec := serve(h, "GET", "/api/documents/doc-1/presign?which=bogus", nil)
	if rec.Code != 400 || errorCode(t, rec) != "VALIDATION_ERROR" {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = serve(h, "GET", "/api/documents/doc-1/presign?which=final", nil)
	if rec.Code != 404 {
		t.Fatalf("absent artifact: code = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = serve(h, "GET", "/api/documents/doc-1/presign?which=original&expires_seconds=120", nil)
	if rec.Code != 200 {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body.String())
	}
	if decode(t, rec)["url"] != "https://signed.example/original/2026-01-02/doc-1.pdf" {
		t.Fatalf("url = %v", decode(t, rec)["url"])
	}
}

func TestRestyleConflictCarriesStatus(t *testing.T) {
	doc := testDoc()
	doc.Status = model.StatusStyling
	h := &Handler{
		Store: &fakeStore{docs: map[string]model.Document{"doc-1": doc}},
		Lifecycle: &fakeLifecycle{restyle: func(id string) (model.Document, error) {
			return doc, &model.ConflictError{Current: model.StatusStyling, Msg: "restyle already in progress"}
		}},
	}

	rec := serve(h, "POST", "/api/documents/doc-1/restyle", nil)
	if rec.Code != 409 || errorCode(t, rec) != "CONFLICT" {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	details := body["error"].(map[string]any)["details"].(map[string]any)
	if details["status"] != "STYLING" {
		t.Fatalf("details = %v", details)
	}
	if details["document"] == nil {
		t.Fatalf("conflict must embed the authoritative document")
	}
}

func TestCollaboratorFailureEmbedsErrorStateDocument(t *testing.T) {
	doc := testDoc()
	doc.Status = model.StatusError
	doc.Error = "restyle: engine crashed"
	lc := &fakeLifecycle{
		restyle: func(id string) (model.Document, error) {
			return doc, &model.CollaboratorError{Op: "restyle: engine crashed", Err: errors.New("engine crashed")}
		},
		saveFinal: func(id string, fields model.FieldsSnapshot) (model.Document, error) {
			return doc, &model.CollaboratorError{Op: "finalize: engine crashed", Err: errors.New("engine crashed")}
		},
	}
	h := &Handler{Lifecycle: lc}

	for _, rec := range []*httptest.ResponseRecorder{
		serve(h, "POST", "/api/documents/doc-1/restyle", nil),
		serve(h, "POST", "/api/documents/doc-1/save-final", model.FieldsSnapshot{}),
	} {
		if rec.Code != 502 || errorCode(t, rec) != "COLLABORATOR_ERROR" {
			t.Fatalf("code = %d body = %s", rec.Code, rec.Body.String())
		}
		details := decode(t, rec)["error"].(map[string]any)["details"].(map[string]any)
		if details["status"] != "ERROR" {
			t.Fatalf("details = %v", details)
		}
		embedded, _ := details["document"].(map[string]any)
		if embedded == nil || embedded["status"] != "ERROR" || embedded["error"] != "restyle: engine crashed" {
			t.Fatalf("authoritative document missing from details: %v", details)
		}
	}
}

func TestSaveFinalReturnsDocument(t *testing.T) {
	want := testDoc()
	want.Status = model.StatusFinal
	want.FinalKey = "final/2026-01-02/doc-1.pdf"
	var gotFields model.FieldsSnapshot
	h := &Handler{
		Lifecycle: &fakeLifecycle{saveFinal: func(id string, fields model.FieldsSnapshot) (model.Document, error) {
			gotFields = fields
			return want, nil
		}},
	}

	rec := serve(h, "POST", "/api/documents/doc-1/save-final", model.FieldsSnapshot{
		Items: []model.LineItem{{Name: "Inspection", Price: "100.00"}},
	})
	if rec.Code != 200 {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body.String())
	}
	if len(gotFields.Items) != 1 || gotFields.Items[0].Name != "Inspection" {
		t.Fatalf("fields not forwarded: %+v", gotFields)
	}
	doc := decode(t, rec)["document"].(map[string]any)
	if doc["status"] != "FINAL" {
		t.Fatalf("document = %v", doc)
	}
}

func TestQuoteAcceptAppliedAndReplay(t *testing.T) {
	doc := testDoc()
	doc.Status = model.StatusFinal
	applied := true
	h := &Handler{
		Decider: &fakeDecider{decide: func(docID, token string, action decisiontoken.Action, p decision.Payload) (decision.Result, error) {
			res := decision.Result{
				Applied:  applied,
				Decision: model.Decision{DocumentID: docID, Decision: model.DecisionAccepted, PONumber: p.PONumber},
				Document: doc,
			}
			return res, nil
		}},
	}

	rec := serve(h, "POST", "/api/documents/doc-1/quote/accept", map[string]any{
		"token": "tok", "quote_po_number": "PO-42",
	})
	if rec.Code != 200 {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["applied"] != true || body["decision_status"] != "ACCEPTED" {
		t.Fatalf("body = %v", body)
	}

	applied = false
	rec = serve(h, "POST", "/api/documents/doc-1/quote/accept", map[string]any{"token": "tok"})
	body = decode(t, rec)
	if body["applied"] != false || body["decision_status"] != "ACCEPTED" {
		t.Fatalf("replay body = %v", body)
	}
}

func TestQuoteRejectEmptyReasonIsValidationError(t *testing.T) {
	h := &Handler{
		Decider: &fakeDecider{decide: func(docID, token string, action decisiontoken.Action, p decision.Payload) (decision.Result, error) {
			return decision.Result{}, model.Invalid("rejection reason is required")
		}},
	}

	rec := serve(h, "POST", "/api/documents/doc-1/quote/reject", map[string]any{"token": "tok", "reason": " "})
	if rec.Code != 400 || errorCode(t, rec) != "VALIDATION_ERROR" {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestQuoteEndpointsCollapseTokenFailures(t *testing.T) {
	h := &Handler{
		Decider: &fakeDecider{
			decide: func(docID, token string, action decisiontoken.Action, p decision.Payload) (decision.Result, error) {
				return decision.Result{}, decisiontoken.ErrInvalid
			},
			status: func(docID, token string) (decision.Result, error) {
				return decision.Result{}, decisiontoken.ErrInvalid
			},
		},
	}

	for _, req := range []*httptest.ResponseRecorder{
		serve(h, "POST", "/api/documents/doc-1/quote/accept", map[string]any{"token": "bad"}),
		serve(h, "GET", "/api/documents/doc-1/quote/decision?token=bad", nil),
	} {
		if req.Code != 403 || errorCode(t, req) != "TOKEN_INVALID" {
			t.Fatalf("code = %d body = %s", req.Code, req.Body.String())
		}
		msg := decode(t, req)["error"].(map[string]any)["message"]
		if msg != "invalid or expired link" {
			t.Fatalf("token failure must stay generic, got %q", msg)
		}
	}
}

func TestQuoteDecisionPending(t *testing.T) {
	doc := testDoc()
	h := &Handler{
		Decider: &fakeDecider{status: func(docID, token string) (decision.Result, error) {
			return decision.Result{Document: doc}, nil
		}},
	}

	rec := serve(h, "GET", "/api/documents/doc-1/quote/decision?token=tok", nil)
	body := decode(t, rec)
	if body["decision_status"] != "PENDING" {
		t.Fatalf("body = %v", body)
	}
	if _, ok := body["decision"]; ok {
		t.Fatalf("pending reload must not carry a decision object")
	}
}

func TestSendEmailValidatesAndEnqueues(t *testing.T) {
	doc := testDoc()
	doc.StyledDraftKey = "styled_draft/2026-01-02/doc-1.pdf"
	st := &fakeStore{docs: map[string]model.Document{"doc-1": doc}}
	h := &Handler{Store: st}

	rec := serve(h, "POST", "/api/documents/doc-1/send-email", map[string]any{"client_email": "not-an-email"})
	if rec.Code != 400 || errorCode(t, rec) != "VALIDATION_ERROR" {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = serve(h, "POST", "/api/documents/doc-1/send-email", map[string]any{
		"client_email": "pat@example.com",
		"cc":           []string{"office@example.com", " "},
	})
	if rec.Code != 202 {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body.String())
	}
	if len(st.sendJobs) != 1 {
		t.Fatalf("send jobs = %v", st.sendJobs)
	}
	job := st.sendJobs[0]
	if job.ToEmail != "pat@example.com" || len(job.CCEmails) != 1 || job.Status != model.SendJobQueued {
		t.Fatalf("job = %+v", job)
	}
	if st.sentTo != "pat@example.com" || st.sentCount != 1 {
		t.Fatalf("sent stamp = %q count %d", st.sentTo, st.sentCount)
	}
}

func TestSendEmailRequiresArtifact(t *testing.T) {
	doc := testDoc()
	doc.Status = model.StatusNew
	st := &fakeStore{docs: map[string]model.Document{"doc-1": doc}}
	h := &Handler{Store: st}

	rec := serve(h, "POST", "/api/documents/doc-1/send-email", map[string]any{"client_email": "pat@example.com"})
	if rec.Code != 409 || errorCode(t, rec) != "CONFLICT" {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body.String())
	}
	if len(st.sendJobs) != 0 {
		t.Fatalf("job enqueued despite missing artifact")
	}
}
