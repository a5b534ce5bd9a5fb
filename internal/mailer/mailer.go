// Package mailer composes and delivers the outbound document emails:
// subject and template routing per document type, decision links for
// quotes, and SMTP submission.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/CindyDuong5/pdf-polish/internal/model"
	"github.com/CindyDuong5/pdf-polish/pkg/decisiontoken"
)

// Email is a fully composed outbound message.
type Email struct {
	To       string
	CC       []string
	Subject  string
	HTML     string
	Text     string
	Filename string
	PDF      []byte
}

// KindFor routes a document type onto an email kind the way the
// business talks about them: anything quote-like gets the decision
// email, reports and invoices get their own wording.
func KindFor(t model.DocType) Kind {
	dt := strings.ToUpper(string(t))
	switch {
	case strings.Contains(dt, "QUOTE"):
		return KindQuote
	case strings.Contains(dt, "INVOICE"):
		return KindInvoice
	case strings.Contains(dt, "JOB"), strings.Contains(dt, "REPORT"):
		return KindJobReport
	}
	return KindGeneric
}

// SubjectFor builds the subject line for a routed email.
func SubjectFor(kind Kind, t model.DocType, label string) string {
	switch kind {
	case KindQuote:
		return fmt.Sprintf("Quote %s - Please Review", label)
	case KindInvoice:
		return fmt.Sprintf("Invoice %s", label)
	case KindJobReport:
		return fmt.Sprintf("Report %s", label)
	}
	name := string(t)
	if name == "" {
		name = "Document"
	}
	return fmt.Sprintf("%s %s", name, label)
}

// Builder composes document emails. For quotes it issues one-time
// decision tokens and embeds the accept/reject links.
type Builder struct {
	tokens        *decisiontoken.Codec
	publicBaseURL string
}

func NewBuilder(tokens *decisiontoken.Codec, publicBaseURL string) *Builder {
	return &Builder{tokens: tokens, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// Build composes the email for a document, attaching the supplied PDF.
func (b *Builder) Build(doc model.Document, to string, cc []string, pdf []byte) (Email, error) {
	kind := KindFor(doc.DocType)
	data := templateData{
		CustomerName: doc.CustomerName,
		Label:        doc.Label(),
		DocTypeName:  docTypeName(doc.DocType),
	}
	if kind == KindQuote {
		accept, err := b.tokens.Issue(doc.ID, decisiontoken.ActionAccept, doc.QuoteNumber)
		if err != nil {
			return Email{}, fmt.Errorf("issue accept token: %w", err)
		}
		reject, err := b.tokens.Issue(doc.ID, decisiontoken.ActionReject, doc.QuoteNumber)
		if err != nil {
			return Email{}, fmt.Errorf("issue reject token: %w", err)
		}
		data.AcceptURL = b.decisionURL(doc.ID, "accept", accept)
		data.RejectURL = b.decisionURL(doc.ID, "reject", reject)
	}

	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, string(kind), data); err != nil {
		return Email{}, fmt.Errorf("render %s email: %w", kind, err)
	}
	return Email{
		To:       to,
		CC:       cc,
		Subject:  SubjectFor(kind, doc.DocType, doc.Label()),
		HTML:     buf.String(),
		Text:     textFallback(kind, data),
		Filename: doc.Filename(),
		PDF:      pdf,
	}, nil
}

func docTypeName(t model.DocType) string {
	if t == "" || t == model.DocTypeOther {
		return "document"
	}
	return strings.ReplaceAll(strings.ToLower(string(t)), "_", " ")
}

func (b *Builder) decisionURL(docID, action, token string) string {
	return fmt.Sprintf("%s/quote/%s/%s?token=%s", b.publicBaseURL, docID, action, url.QueryEscape(token))
}

func textFallback(kind Kind, data templateData) string {
	greeting := "Hello,"
	if data.CustomerName != "" {
		greeting = "Hello " + data.CustomerName + ","
	}
	switch kind {
	case KindQuote:
		return fmt.Sprintf("%s\n\nPlease find attached your quote %s from Mainline Fire Protection.\n\nAccept: %s\nDecline: %s\n\nThese links are valid for 14 days.\n\nThank you,\nMainline Fire Protection\n",
			greeting, data.Label, data.AcceptURL, data.RejectURL)
	case KindInvoice:
		return fmt.Sprintf("%s\n\nPlease find attached invoice %s from Mainline Fire Protection.\n\nThank you,\nMainline Fire Protection\n", greeting, data.Label)
	case KindJobReport:
		return fmt.Sprintf("%s\n\nPlease find attached the report %s for your records.\n\nThank you,\nMainline Fire Protection\n", greeting, data.Label)
	}
	return fmt.Sprintf("%s\n\nPlease find attached %s %s from Mainline Fire Protection.\n\nThank you,\nMainline Fire Protection\n", greeting, data.DocTypeName, data.Label)
}

// SMTPConfig carries the relay credentials. From accepts either a bare
// address or the display form "Name <addr>".
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	ReplyTo  string
}

// SMTPSender delivers composed emails over authenticated STARTTLS SMTP.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send submits one email. The connection is dialed per call; send jobs
// are infrequent enough that pooling buys nothing.
func (s *SMTPSender) Send(ctx context.Context, e Email) error {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return fmt.Errorf("from address %q: %w", s.cfg.From, err)
	}
	if err := msg.To(e.To); err != nil {
		return fmt.Errorf("to address %q: %w", e.To, err)
	}
	for _, cc := range e.CC {
		cc = strings.TrimSpace(cc)
		if cc == "" {
			continue
		}
		if err := msg.AddCc(cc); err != nil {
			return fmt.Errorf("cc address %q: %w", cc, err)
		}
	}
	if s.cfg.ReplyTo != "" {
		if err := msg.ReplyTo(s.cfg.ReplyTo); err != nil {
			return fmt.Errorf("reply-to address %q: %w", s.cfg.ReplyTo, err)
		}
	}
	msg.Subject(e.Subject)
	msg.SetBodyString(mail.TypeTextPlain, e.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, e.HTML)
	if len(e.PDF) > 0 {
		if err := msg.AttachReader(e.Filename, bytes.NewReader(e.PDF), mail.WithFileContentType(mail.ContentType("application/pdf"))); err != nil {
			return fmt.Errorf("attach %q: %w", e.Filename, err)
		}
	}

	client, err := mail.NewClient(s.cfg.Host,
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.User),
		mail.WithPassword(s.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
