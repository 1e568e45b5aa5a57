/*
dto.go - Data transfer objects for API requests and responses

PURPOSE:
  Defines the JSON structures of the API. These types decouple the store's
  row types from the external contract: months travel as "YYYY-MM" strings,
  metric slots as decimal strings (never floats), and absent slots as
  nulls.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: builds these from store rows and pipeline reports
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/austral/ipc-engine/warehouse"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// TriggerRunRequest is the optional body of POST /api/runs. An empty or
// missing from selects the incremental window.
type TriggerRunRequest struct {
	From string `json:"from"`
}

// RunDTO represents a persisted run in API responses.
type RunDTO struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	Inserted   int    `json:"inserted"`
	Updated    int    `json:"updated"`
	Unchanged  int    `json:"unchanged"`
	Warnings   int    `json:"warnings"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// RegionDTO represents a region dimension row.
type RegionDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CategoryDTO represents a category dimension row.
type CategoryDTO struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Classification string  `json:"classification"`
	Nature         *string `json:"nature,omitempty"`
}

// ObservationDTO represents one fact joined with its dimensions.
type ObservationDTO struct {
	Month          string  `json:"month"`
	Region         string  `json:"region"`
	Category       string  `json:"category"`
	Classification string  `json:"classification"`
	Nature         *string `json:"nature,omitempty"`
	Incidence      *string `json:"incidence"`
	MoMVariation   *string `json:"mom_variation"`
	UpdatedAt      string  `json:"updated_at"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toRunDTO(r warehouse.Run) RunDTO {
	dto := RunDTO{
		ID:        r.ID,
		Status:    r.Status,
		From:      r.From.String(),
		To:        r.To.String(),
		Inserted:  r.Inserted,
		Updated:   r.Updated,
		Unchanged: r.Unchanged,
		Warnings:  r.Warnings,
		Error:     r.Error,
		StartedAt: r.StartedAt.Format(time.RFC3339),
	}
	if r.FinishedAt != nil {
		dto.FinishedAt = r.FinishedAt.Format(time.RFC3339)
	}
	return dto
}

func toObservationDTO(row warehouse.ObservationRow) ObservationDTO {
	return ObservationDTO{
		Month:          row.Month.String(),
		Region:         row.Region,
		Category:       row.Category,
		Classification: row.Classification,
		Nature:         row.Nature,
		Incidence:      decimalString(row.Incidence),
		MoMVariation:   decimalString(row.MoMVariation),
		UpdatedAt:      row.UpdatedAt.Format(time.RFC3339),
	}
}

func decimalString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}
