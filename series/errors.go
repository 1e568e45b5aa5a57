/*
errors.go - Error types for the transform core

PURPOSE:
  All series-level errors in one place. The pipeline distinguishes two
  severities: structural failures (a batch whose shape cannot be trusted)
  abort the run, row/cell anomalies are skipped and counted.

ERROR CATEGORIES:
  Structural: ErrEmptyTable, ErrBadPeriod - the whole batch is discarded
  Data quality: ErrUnknownClassification - the unit is skipped, the run
  continues, the occurrence is counted into the run summary

USAGE:
  Match with errors.Is; wrap with github.com/pkg/errors for call-site
  context.
*/
package series

import (
	"fmt"

	"github.com/pkg/errors"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEmptyTable is returned when a source yields no data rows or no
	// value columns. Structural: the run must not continue on this source.
	ErrEmptyTable = errors.New("empty source table")

	// ErrBadPeriod is returned when a period cell cannot be parsed as a
	// month. Structural: one bad period poisons the whole batch.
	ErrBadPeriod = errors.New("malformed period")

	// ErrUnknownClassification is returned by nature derivation for a
	// division-level classification missing from the fixed table. It
	// signals taxonomy drift in the upstream source; callers skip the
	// derivation, count the occurrence, and continue.
	ErrUnknownClassification = errors.New("unknown division classification")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PeriodError reports the raw cell that failed month parsing.
type PeriodError struct {
	Raw string
	Row int
}

func (e *PeriodError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("malformed period %q (row %d)", e.Raw, e.Row)
	}
	return fmt.Sprintf("malformed period %q", e.Raw)
}

func (e *PeriodError) Unwrap() error { return ErrBadPeriod }

// ClassificationError reports a division classification with no nature
// mapping.
type ClassificationError struct {
	Category       string
	Classification string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("no nature mapping for %s/%s", e.Category, e.Classification)
}

func (e *ClassificationError) Unwrap() error { return ErrUnknownClassification }
