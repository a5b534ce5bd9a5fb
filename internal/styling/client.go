// Package styling is the boundary to the external rendering engine that
// produces styled drafts and stamps final documents. This service only
// moves bytes and extracted fields; the engine owns all visual output.
package styling

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/CindyDuong5/pdf-polish/internal/model"
)

// RenderResult is a styled draft plus the editable fields the engine
// extracted from it. Fields is nil for document types without an
// editable snapshot.
type RenderResult struct {
	StyledPDF []byte
	Fields    *model.FieldsSnapshot
}

// Renderer is consumed by the lifecycle orchestrator; the HTTP client
// below is the production implementation and tests substitute fakes.
type Renderer interface {
	// Restyle produces a styled draft from the original document.
	Restyle(ctx context.Context, doc model.Document, original []byte) (RenderResult, error)
	// Finalize renders the locked final artifact from the source PDF
	// and the totals-recomputed field snapshot.
	Finalize(ctx context.Context, doc model.Document, source []byte, fields model.FieldsSnapshot) ([]byte, error)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 5 * time.Minute}}
}

type renderRequest struct {
	DocumentID string                `json:"document_id"`
	DocType    model.DocType         `json:"doc_type"`
	PDFBase64  string                `json:"pdf_base64"`
	Fields     *model.FieldsSnapshot `json:"fields,omitempty"`
}

type renderResponse struct {
	PDFBase64 string                `json:"pdf_base64"`
	Fields    *model.FieldsSnapshot `json:"fields,omitempty"`
}

func (c *Client) Restyle(ctx context.Context, doc model.Document, original []byte) (RenderResult, error) {
	resp, err := c.post(ctx, "/restyle", renderRequest{
		DocumentID: doc.ID,
		DocType:    doc.DocType,
		PDFBase64:  base64.StdEncoding.EncodeToString(original),
	})
	if err != nil {
		return RenderResult{}, err
	}
	pdf, err := base64.StdEncoding.DecodeString(resp.PDFBase64)
	if err != nil {
		return RenderResult{}, fmt.Errorf("decode styled pdf: %w", err)
	}
	return RenderResult{StyledPDF: pdf, Fields: resp.Fields}, nil
}

func (c *Client) Finalize(ctx context.Context, doc model.Document, source []byte, fields model.FieldsSnapshot) ([]byte, error) {
	resp, err := c.post(ctx, "/finalize", renderRequest{
		DocumentID: doc.ID,
		DocType:    doc.DocType,
		PDFBase64:  base64.StdEncoding.EncodeToString(source),
		Fields:     &fields,
	})
	if err != nil {
		return nil, err
	}
	pdf, err := base64.StdEncoding.DecodeString(resp.PDFBase64)
	if err != nil {
		return nil, fmt.Errorf("decode final pdf: %w", err)
	}
	return pdf, nil
}

func (c *Client) post(ctx context.Context, path string, body renderRequest) (renderResponse, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return renderResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return renderResponse{}, err
	}
	req.Header.Set("content-type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return renderResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return renderResponse{}, fmt.Errorf("styler returned %d", resp.StatusCode)
	}
	var out renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return renderResponse{}, err
	}
	return out, nil
}
