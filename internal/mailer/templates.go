package mailer

import "html/template"

// Kind selects the email template and subject line for a document.
type Kind string

const (
	KindQuote     Kind = "QUOTE"
	KindInvoice   Kind = "INVOICE"
	KindJobReport Kind = "JOB_REPORT"
	KindGeneric   Kind = "GENERIC"
)

// templateData is the rendering context shared by all email kinds. The
// decision links are only populated for quotes.
type templateData struct {
	CustomerName string
	Label        string
	DocTypeName  string
	AcceptURL    string
	RejectURL    string
}

var emailTemplates = template.Must(template.New("emails").Parse(`
{{define "QUOTE"}}<!doctype html>
<html><body style="font-family: Arial, Helvetica, sans-serif; color: #1a1a1a;">
<p>Hello{{if .CustomerName}} {{.CustomerName}}{{end}},</p>
<p>Please find attached your quote <strong>{{.Label}}</strong> from Mainline Fire Protection.</p>
<p>You can respond directly using the buttons below:</p>
<p>
  <a href="{{.AcceptURL}}" style="background:#1d7a34;color:#ffffff;padding:10px 24px;text-decoration:none;border-radius:4px;">Accept Quote</a>
  &nbsp;&nbsp;
  <a href="{{.RejectURL}}" style="background:#a12626;color:#ffffff;padding:10px 24px;text-decoration:none;border-radius:4px;">Decline Quote</a>
</p>
<p>These links are valid for 14 days. If you have any questions, simply reply to this email.</p>
<p>Thank you,<br>Mainline Fire Protection</p>
</body></html>{{end}}

{{define "INVOICE"}}<!doctype html>
<html><body style="font-family: Arial, Helvetica, sans-serif; color: #1a1a1a;">
<p>Hello{{if .CustomerName}} {{.CustomerName}}{{end}},</p>
<p>Please find attached invoice <strong>{{.Label}}</strong> from Mainline Fire Protection.</p>
<p>If you have any questions about this invoice, simply reply to this email.</p>
<p>Thank you,<br>Mainline Fire Protection</p>
</body></html>{{end}}

{{define "JOB_REPORT"}}<!doctype html>
<html><body style="font-family: Arial, Helvetica, sans-serif; color: #1a1a1a;">
<p>Hello{{if .CustomerName}} {{.CustomerName}}{{end}},</p>
<p>Please find attached the report <strong>{{.Label}}</strong> for your records.</p>
<p>If anything looks off, simply reply to this email.</p>
<p>Thank you,<br>Mainline Fire Protection</p>
</body></html>{{end}}

{{define "GENERIC"}}<!doctype html>
<html><body style="font-family: Arial, Helvetica, sans-serif; color: #1a1a1a;">
<p>Hello{{if .CustomerName}} {{.CustomerName}}{{end}},</p>
<p>Please find attached {{.DocTypeName}} <strong>{{.Label}}</strong> from Mainline Fire Protection.</p>
<p>Thank you,<br>Mainline Fire Protection</p>
</body></html>{{end}}
`))
