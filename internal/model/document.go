package model

import "time"

type DocType string

const (
	DocTypeInvoice      DocType = "INVOICE"
	DocTypeServiceQuote DocType = "SERVICE_QUOTE"
	DocTypeProjectQuote DocType = "PROJECT_QUOTE"
	DocTypeJobReport    DocType = "JOB_REPORT"
	DocTypeOther        DocType = "OTHER"
)

// IsQuote reports whether a document type participates in the customer
// decision workflow.
func (t DocType) IsQuote() bool {
	return t == DocTypeServiceQuote || t == DocTypeProjectQuote
}

// Status is the production state of a document.
//
//	NEW -> STYLING -> READY -> FINALIZING -> FINAL
//
// ERROR is reachable from any non-terminal state and is retryable: a
// restyle from ERROR behaves as if from NEW. The customer decision
// sub-state lives in Decision and is orthogonal to Status.
type Status string

const (
	StatusNew        Status = "NEW"
	StatusStyling    Status = "STYLING"
	StatusReady      Status = "READY"
	StatusFinalizing Status = "FINALIZING"
	StatusFinal      Status = "FINAL"
	StatusError      Status = "ERROR"
)

// Document is the registry record for one ingested PDF.
type Document struct {
	ID              string    `json:"id"`
	DocType         DocType   `json:"doc_type"`
	Status          Status    `json:"status"`
	CustomerName    string    `json:"customer_name"`
	CustomerEmail   string    `json:"customer_email"`
	PropertyAddress string    `json:"property_address"`
	InvoiceNumber   string    `json:"invoice_number"`
	QuoteNumber     string    `json:"quote_number"`
	JobReportNumber string    `json:"job_report_number"`

	// Object-storage keys, each set exactly once when produced. The
	// styled draft key is present iff status has progressed past
	// STYLING; the final key is present iff a save-final or accepted
	// decision has completed.
	OriginalKey    string `json:"original_s3_key"`
	StyledDraftKey string `json:"styled_draft_s3_key"`
	FinalKey       string `json:"final_s3_key"`

	Error string `json:"error,omitempty"`

	// StylingStartedAt marks an in-flight restyle or finalize so a
	// crashed worker cannot wedge the document: past the staleness
	// threshold another operation may take over even though status
	// still reads STYLING or FINALIZING.
	StylingStartedAt *time.Time `json:"styling_started_at,omitempty"`

	SentAt *time.Time `json:"sent_at,omitempty"`
	SentTo string     `json:"sent_to,omitempty"`
	SentCC []string   `json:"sent_cc,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Label is the human-facing reference number used in filenames and email
// subjects, falling back to the id.
func (d Document) Label() string {
	switch {
	case d.InvoiceNumber != "":
		return d.InvoiceNumber
	case d.QuoteNumber != "":
		return d.QuoteNumber
	case d.JobReportNumber != "":
		return d.JobReportNumber
	}
	return d.ID
}

func (d Document) Filename() string {
	return string(d.DocType) + "_" + d.Label() + ".pdf"
}

type LineItem struct {
	Name        string `json:"name"`
	Price       string `json:"price"`
	Description string `json:"description"`
}

// FieldsSnapshot is the editable field set extracted from a styled
// service quote. Subtotal, Tax and Total are derived from Items and the
// configured tax rate; inbound values for them are always discarded and
// recomputed server-side.
type FieldsSnapshot struct {
	ClientName       string     `json:"client_name"`
	ClientPhone      string     `json:"client_phone"`
	ClientEmail      string     `json:"client_email"`
	CompanyName      string     `json:"company_name"`
	CompanyAddress   string     `json:"company_address"`
	PropertyName     string     `json:"property_name"`
	PropertyAddress  string     `json:"property_address"`
	QuoteNumber      string     `json:"quote_number"`
	QuoteDate        string     `json:"quote_date"`
	QuoteDescription string     `json:"quote_description"`
	Items            []LineItem `json:"items"`
	Subtotal         string     `json:"subtotal"`
	Tax              string     `json:"tax"`
	Total            string     `json:"total"`
}

type DecisionValue string

const (
	DecisionAccepted DecisionValue = "ACCEPTED"
	DecisionRejected DecisionValue = "REJECTED"
)

// Decision is the customer's terminal verdict on a quote. One row per
// document, written exactly once.
type Decision struct {
	DocumentID     string        `json:"document_id"`
	Decision       DecisionValue `json:"decision"`
	PONumber       string        `json:"po_number,omitempty"`
	Note           string        `json:"note,omitempty"`
	RejectReason   string        `json:"reject_reason,omitempty"`
	DecidedAt      time.Time     `json:"decided_at"`
	DecidedByEmail string        `json:"decided_by_email,omitempty"`
}

type SendJobStatus string

const (
	SendJobQueued  SendJobStatus = "QUEUED"
	SendJobSending SendJobStatus = "SENDING"
	SendJobSent    SendJobStatus = "SENT"
	SendJobFailed  SendJobStatus = "FAILED"
)

// SendJob is one queued outbound notification email.
type SendJob struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"document_id"`
	ToEmail    string        `json:"to_email"`
	CCEmails   []string      `json:"cc_emails"`
	Status     SendJobStatus `json:"status"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
