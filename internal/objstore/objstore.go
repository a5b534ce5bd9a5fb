// Package objstore is the boundary to binary object storage. The
// registry records which artifact keys exist; this package moves the
// bytes and signs read URLs.
package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store is the storage surface the lifecycle orchestrator and the API
// consume. Tests substitute in-memory fakes.
type Store interface {
	Download(ctx context.Context, key string) ([]byte, error)
	UploadPDF(ctx context.Context, key string, data []byte) error
	PresignGet(ctx context.Context, key string, expires time.Duration, filename string, inline bool) (string, error)
}

type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

func NewS3(ctx context.Context, bucket, region string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Store{client: client, presign: s3.NewPresignClient(client), bucket: bucket}, nil
}

func (s *S3Store) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Store) UploadPDF(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// PresignGet signs a time-bounded GET URL. The content disposition pins
// the download filename; inline lets the browser render the PDF in-tab.
func (s *S3Store) PresignGet(ctx context.Context, key string, expires time.Duration, filename string, inline bool) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if filename != "" {
		disp := "attachment"
		if inline {
			disp = "inline"
		}
		input.ResponseContentDisposition = aws.String(
			fmt.Sprintf("%s; filename*=UTF-8''%s", disp, url.PathEscape(SafeFilename(filename))))
		input.ResponseContentType = aws.String("application/pdf")
	}
	req, err := s.presign.PresignGetObject(ctx, input, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("presign s3://%s/%s: %w", s.bucket, key, err)
	}
	return req.URL, nil
}

// SafeFilename normalizes a display filename for Content-Disposition;
// browsers are picky about control characters and missing extensions.
func SafeFilename(name string) string {
	name = strings.TrimSpace(strings.NewReplacer("\n", " ", "\r", " ").Replace(name))
	if name == "" {
		name = "document.pdf"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}
