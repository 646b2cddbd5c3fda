// Package idgen mints the non-sequential, natural-feeling tokens the
// Store doesn't hand out itself: correlation ids (spec.md §4.D.1) and
// API-key public ids. Surrogate keys for LogEntry/JobExecution/Alert/
// AlertInstance are sequential and owned by internal/store's
// AUTOINCREMENT columns, per spec.md §3.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// CorrelationID returns a 12-hex-char opaque token, the default used
// by StartExecution when the caller doesn't supply one (spec.md §4.D.1).
func CorrelationID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// APIKeyID returns a fresh public identifier for an APIKey row.
func APIKeyID() string {
	return uuid.New().String()
}
