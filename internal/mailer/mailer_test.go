package mailer

import (
	"strings"
	"testing"

	"github.com/CindyDuong5/pdf-polish/internal/model"
	"github.com/CindyDuong5/pdf-polish/pkg/decisiontoken"
)

func TestKindFor(t *testing.T) {
	cases := []struct {
		docType model.DocType
		want    Kind
	}{
		{model.DocTypeServiceQuote, KindQuote},
		{model.DocTypeProjectQuote, KindQuote},
		{model.DocTypeInvoice, KindInvoice},
		{model.DocTypeJobReport, KindJobReport},
		{model.DocTypeOther, KindGeneric},
		{"", KindGeneric},
	}
	for _, tc := range cases {
		if got := KindFor(tc.docType); got != tc.want {
			t.Errorf("KindFor(%q) = %s, want %s", tc.docType, got, tc.want)
		}
	}
}

func TestSubjectFor(t *testing.T) {
	cases := []struct {
		kind    Kind
		docType model.DocType
		label   string
		want    string
	}{
		{KindQuote, model.DocTypeServiceQuote, "Q-1001", "Quote Q-1001 - Please Review"},
		{KindInvoice, model.DocTypeInvoice, "INV-7", "Invoice INV-7"},
		{KindJobReport, model.DocTypeJobReport, "JR-3", "Report JR-3"},
		{KindGeneric, model.DocTypeOther, "abc", "OTHER abc"},
		{KindGeneric, "", "abc", "Document abc"},
	}
	for _, tc := range cases {
		if got := SubjectFor(tc.kind, tc.docType, tc.label); got != tc.want {
			t.Errorf("SubjectFor(%s, %q, %q) = %q, want %q", tc.kind, tc.docType, tc.label, got, tc.want)
		}
	}
}

func TestBuildQuoteEmailCarriesDecisionLinks(t *testing.T) {
	codec := decisiontoken.New("secret", 0)
	b := NewBuilder(codec, "https://portal.example.com/")

	doc := model.Document{
		ID:           "doc-1",
		DocType:      model.DocTypeServiceQuote,
		QuoteNumber:  "Q-1001",
		CustomerName: "Pat",
	}
	e, err := b.Build(doc, "pat@example.com", []string{"office@example.com"}, []byte("%PDF"))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if e.Subject != "Quote Q-1001 - Please Review" {
		t.Fatalf("subject = %q", e.Subject)
	}
	if e.Filename != "SERVICE_QUOTE_Q-1001.pdf" {
		t.Fatalf("filename = %q", e.Filename)
	}
	if !strings.Contains(e.HTML, "https://portal.example.com/quote/doc-1/accept?token=") {
		t.Fatalf("accept link missing from html:\n%s", e.HTML)
	}
	if !strings.Contains(e.HTML, "https://portal.example.com/quote/doc-1/reject?token=") {
		t.Fatalf("reject link missing from html:\n%s", e.HTML)
	}
	if !strings.Contains(e.Text, "Accept: https://portal.example.com/quote/doc-1/accept?token=") {
		t.Fatalf("accept link missing from text:\n%s", e.Text)
	}

	// Embedded tokens must verify for the right document and action.
	for _, action := range []decisiontoken.Action{decisiontoken.ActionAccept, decisiontoken.ActionReject} {
		marker := "/quote/doc-1/" + string(action) + "?token="
		i := strings.Index(e.Text, marker)
		if i < 0 {
			t.Fatalf("no %s link in text body", action)
		}
		tok := e.Text[i+len(marker):]
		if j := strings.IndexAny(tok, "\n \""); j >= 0 {
			tok = tok[:j]
		}
		claims, err := codec.Verify(tok)
		if err != nil {
			t.Fatalf("verify %s token: %v", action, err)
		}
		if claims.DocumentID != "doc-1" || claims.Action != action {
			t.Fatalf("claims = %+v", claims)
		}
	}
}

func TestBuildInvoiceEmailHasNoDecisionLinks(t *testing.T) {
	b := NewBuilder(decisiontoken.New("secret", 0), "https://portal.example.com")

	doc := model.Document{ID: "doc-2", DocType: model.DocTypeInvoice, InvoiceNumber: "INV-7"}
	e, err := b.Build(doc, "pat@example.com", nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if e.Subject != "Invoice INV-7" {
		t.Fatalf("subject = %q", e.Subject)
	}
	if strings.Contains(e.HTML, "token=") || strings.Contains(e.Text, "token=") {
		t.Fatalf("invoice email must not carry decision links")
	}
}
