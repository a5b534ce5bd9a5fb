// Package store is the Document Registry: the single source of truth for
// document records, field snapshots, quote decisions and send jobs.
//
// Status transitions are guarded in SQL (conditional UPDATE, ON CONFLICT
// DO NOTHING) so the exactly-once and linearizability guarantees hold
// even if more than one process mutates the same document.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CindyDuong5/pdf-polish/internal/model"
)

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

const documentColumns = `
id,doc_type,status,
coalesce(customer_name,''),coalesce(customer_email,''),coalesce(property_address,''),
coalesce(invoice_number,''),coalesce(quote_number,''),coalesce(job_report_number,''),
original_s3_key,coalesce(styled_draft_s3_key,''),coalesce(final_s3_key,''),
coalesce(error,''),styling_started_at,
sent_at,coalesce(sent_to,''),coalesce(sent_cc,'{}'),
created_at,updated_at`

func scanDocument(row pgx.Row) (model.Document, error) {
	var d model.Document
	err := row.Scan(
		&d.ID, &d.DocType, &d.Status,
		&d.CustomerName, &d.CustomerEmail, &d.PropertyAddress,
		&d.InvoiceNumber, &d.QuoteNumber, &d.JobReportNumber,
		&d.OriginalKey, &d.StyledDraftKey, &d.FinalKey,
		&d.Error, &d.StylingStartedAt,
		&d.SentAt, &d.SentTo, &d.SentCC,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Document{}, model.ErrNotFound
		}
		return model.Document{}, err
	}
	return d, nil
}

type ListFilter struct {
	Q       string
	DocType string
	Status  string
	Limit   int
}

func (s *Store) ListDocuments(ctx context.Context, f ListFilter) ([]model.Document, error) {
	limit := f.Limit
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	where := []string{}
	args := []any{}
	if f.DocType != "" {
		args = append(args, f.DocType)
		where = append(where, fmt.Sprintf("doc_type=$%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if f.Q != "" {
		args = append(args, f.Q)
		n := len(args)
		where = append(where, fmt.Sprintf(`(
invoice_number ilike '%%'||$%d||'%%' OR
quote_number ilike '%%'||$%d||'%%' OR
job_report_number ilike '%%'||$%d||'%%' OR
customer_name ilike '%%'||$%d||'%%' OR
property_address ilike '%%'||$%d||'%%')`, n, n, n, n, n))
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit)

	rows, err := s.DB.Query(ctx, fmt.Sprintf(`
SELECT %s FROM documents %s ORDER BY created_at DESC LIMIT $%d
`, documentColumns, whereSQL, len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) GetDocument(ctx context.Context, id string) (model.Document, error) {
	return scanDocument(s.DB.QueryRow(ctx, `
SELECT `+documentColumns+` FROM documents WHERE id=$1
`, id))
}

// inFlightStatuses are the transient states stamped with
// styling_started_at. A claim in either state whose marker has gone
// stale may be taken over, so a crashed worker can never wedge a
// document.
var inFlightStatuses = []string{string(model.StatusStyling), string(model.StatusFinalizing)}

// BeginStyling claims the restyle slot. The conditional update admits a
// fresh restyle from NEW/READY/ERROR/FINAL, or takes over a STYLING or
// FINALIZING claim whose in-flight marker is older than the staleness
// cutoff. Zero rows means the transition is not valid right now; the
// current record is returned so the caller can report a Conflict.
func (s *Store) BeginStyling(ctx context.Context, id string, staleAfter time.Duration) (model.Document, bool, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	d, err := scanDocument(s.DB.QueryRow(ctx, `
UPDATE documents
SET status=$2, styling_started_at=now(), error=NULL, updated_at=now()
WHERE id=$1
  AND (status = ANY($3)
       OR (status = ANY($5) AND styling_started_at IS NOT NULL AND styling_started_at < $4))
RETURNING `+documentColumns+`
`, id, model.StatusStyling,
		[]string{string(model.StatusNew), string(model.StatusReady), string(model.StatusError), string(model.StatusFinal)},
		cutoff, inFlightStatuses))
	if err == nil {
		return d, true, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.Document{}, false, err
	}
	current, err := s.GetDocument(ctx, id)
	if err != nil {
		return model.Document{}, false, err
	}
	return current, false, nil
}

// FinishStyling records the styled draft artifact and the extracted
// draft snapshot in one transaction and moves the document to READY.
func (s *Store) FinishStyling(ctx context.Context, id, draftKey string, fields *model.FieldsSnapshot) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
UPDATE documents
SET styled_draft_s3_key=$2, status=$3, styling_started_at=NULL, error=NULL, updated_at=now()
WHERE id=$1
`, id, draftKey, model.StatusReady)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	if fields != nil {
		b, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO document_fields(doc_id,draft_json,updated_at)
VALUES($1,$2::jsonb,now())
ON CONFLICT (doc_id) DO UPDATE SET draft_json=EXCLUDED.draft_json, updated_at=now()
`, id, string(b)); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// BeginFinalizing admits save-final from READY or FINAL (re-saving
// overwrites, never appends), or takes over a FINALIZING claim whose
// in-flight marker has gone stale. The marker is stamped here and
// cleared by FinishFinal or MarkError.
func (s *Store) BeginFinalizing(ctx context.Context, id string, staleAfter time.Duration) (model.Document, bool, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	d, err := scanDocument(s.DB.QueryRow(ctx, `
UPDATE documents
SET status=$2, styling_started_at=now(), error=NULL, updated_at=now()
WHERE id=$1
  AND (status = ANY($3)
       OR (status=$2 AND styling_started_at IS NOT NULL AND styling_started_at < $4))
RETURNING `+documentColumns+`
`, id, model.StatusFinalizing,
		[]string{string(model.StatusReady), string(model.StatusFinal)},
		cutoff))
	if err == nil {
		return d, true, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.Document{}, false, err
	}
	current, err := s.GetDocument(ctx, id)
	if err != nil {
		return model.Document{}, false, err
	}
	return current, false, nil
}

// FinishFinal persists the final artifact key and snapshot atomically,
// replacing any prior final snapshot.
func (s *Store) FinishFinal(ctx context.Context, id, finalKey string, fields model.FieldsSnapshot) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
UPDATE documents
SET final_s3_key=$2, status=$3, styling_started_at=NULL, error=NULL, updated_at=now()
WHERE id=$1
`, id, finalKey, model.StatusFinal)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO document_fields(doc_id,final_json,updated_at)
VALUES($1,$2::jsonb,now())
ON CONFLICT (doc_id) DO UPDATE SET final_json=EXCLUDED.final_json, updated_at=now()
`, id, string(b)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MarkError records a collaborator failure. Previously produced draft
// and final keys are deliberately left untouched.
func (s *Store) MarkError(ctx context.Context, id, message string) error {
	message = truncate(message, 1000)
	tag, err := s.DB.Exec(ctx, `
UPDATE documents
SET status=$2, error=$3, styling_started_at=NULL, updated_at=now()
WHERE id=$1
`, id, model.StatusError, message)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// GetFields returns the draft and final snapshots; either may be nil.
func (s *Store) GetFields(ctx context.Context, id string) (draft, final *model.FieldsSnapshot, err error) {
	var draftJSON, finalJSON []byte
	err = s.DB.QueryRow(ctx, `
SELECT draft_json, final_json FROM document_fields WHERE doc_id=$1
`, id).Scan(&draftJSON, &finalJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if len(draftJSON) > 0 {
		draft = &model.FieldsSnapshot{}
		if err := json.Unmarshal(draftJSON, draft); err != nil {
			return nil, nil, fmt.Errorf("decode draft fields: %w", err)
		}
	}
	if len(finalJSON) > 0 {
		final = &model.FieldsSnapshot{}
		if err := json.Unmarshal(finalJSON, final); err != nil {
			return nil, nil, fmt.Errorf("decode final fields: %w", err)
		}
	}
	return draft, final, nil
}

func (s *Store) GetDecision(ctx context.Context, docID string) (*model.Decision, error) {
	var d model.Decision
	err := s.DB.QueryRow(ctx, `
SELECT document_id,decision,coalesce(po_number,''),coalesce(note,''),coalesce(reject_reason,''),
       decided_at,coalesce(decided_by_email,'')
FROM quote_decisions WHERE document_id=$1
`, docID).Scan(&d.DocumentID, &d.Decision, &d.PONumber, &d.Note, &d.RejectReason, &d.DecidedAt, &d.DecidedByEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// InsertDecision is the exactly-once gate: the first insert wins, every
// later attempt reports inserted=false and leaves the row untouched.
func (s *Store) InsertDecision(ctx context.Context, d model.Decision) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
INSERT INTO quote_decisions(document_id,decision,po_number,note,reject_reason,decided_at,decided_by_email)
VALUES($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (document_id) DO NOTHING
`, d.DocumentID, d.Decision, nullable(d.PONumber), nullable(d.Note), nullable(d.RejectReason), d.DecidedAt, nullable(d.DecidedByEmail))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) MarkSent(ctx context.Context, docID, to string, cc []string) error {
	tag, err := s.DB.Exec(ctx, `
UPDATE documents SET sent_at=now(), sent_to=$2, sent_cc=$3, updated_at=now() WHERE id=$1
`, docID, to, cc)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSendJob(ctx context.Context, job model.SendJob) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO send_jobs(id,document_id,to_email,cc_emails,status)
VALUES($1,$2,$3,$4,$5)
`, job.ID, job.DocumentID, job.ToEmail, job.CCEmails, model.SendJobQueued)
	return err
}

// ClaimSendJobs moves up to limit queued jobs to SENDING under
// FOR UPDATE SKIP LOCKED so concurrent workers never double-send. A job
// another worker left in SENDING longer than staleAfter is reclaimed,
// the same takeover rule the document in-flight marker uses.
func (s *Store) ClaimSendJobs(ctx context.Context, limit int, staleAfter time.Duration) ([]model.SendJob, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	rows, err := s.DB.Query(ctx, `
WITH claimed AS (
  SELECT id FROM send_jobs
  WHERE status=$1 OR (status=$3 AND updated_at < $4)
  ORDER BY created_at ASC
  LIMIT $2
  FOR UPDATE SKIP LOCKED
)
UPDATE send_jobs j
SET status=$3, updated_at=now(), error=NULL
FROM claimed
WHERE j.id=claimed.id
RETURNING j.id,j.document_id,j.to_email,coalesce(j.cc_emails,'{}'),j.status,coalesce(j.error,''),j.created_at,j.updated_at
`, model.SendJobQueued, limit, model.SendJobSending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.SendJob{}
	for rows.Next() {
		var j model.SendJob
		if err := rows.Scan(&j.ID, &j.DocumentID, &j.ToEmail, &j.CCEmails, &j.Status, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *Store) CompleteSendJob(ctx context.Context, id string) error {
	_, err := s.DB.Exec(ctx, `
UPDATE send_jobs SET status=$2, error=NULL, updated_at=now() WHERE id=$1
`, id, model.SendJobSent)
	return err
}

func (s *Store) FailSendJob(ctx context.Context, id, message string) error {
	message = truncate(message, 1000)
	_, err := s.DB.Exec(ctx, `
UPDATE send_jobs SET status=$2, error=$3, updated_at=now() WHERE id=$1
`, id, model.SendJobFailed, message)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// truncate caps s at n bytes without splitting a UTF-8 rune; Postgres
// rejects text values containing a torn multi-byte sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
