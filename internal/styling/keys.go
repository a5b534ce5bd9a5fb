package styling

import (
	"fmt"
	"strings"
	"time"
)

// Artifact keys are partitioned by ingestion day:
//
//	original/2026-08-25/<id>.pdf
//	styled_draft/2026-08-25/<id>.pdf
//	final/2026-08-25/<id>.pdf
//
// Derived keys inherit the day from the original key so all artifacts of
// one document live under the same date prefix.

func utcDay() string {
	return time.Now().UTC().Format("2006-01-02")
}

func dayFromKey(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) >= 3 && parts[1] != "" {
		return parts[1]
	}
	return utcDay()
}

func StyledDraftKey(originalKey, docID string) string {
	return fmt.Sprintf("styled_draft/%s/%s.pdf", dayFromKey(originalKey), docID)
}

func FinalKey(originalKey, docID string) string {
	return fmt.Sprintf("final/%s/%s.pdf", dayFromKey(originalKey), docID)
}
