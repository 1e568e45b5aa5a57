package warehouse

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/austral/ipc-engine/logger"
	"github.com/austral/ipc-engine/series"
)

// =============================================================================
// REVISION WINDOW
// =============================================================================

// RevisionMonths is how many complete months before the latest loaded
// one are always reprocessed. The statistical office revises recently
// published figures; reloading the tail picks the revisions up.
const RevisionMonths = 2

// factScale is the decimal scale facts are stored at.
const factScale = 4

// RevisionStart returns the first month an incremental run reprocesses.
// ok is the store's MaxPeriod ok flag; on an empty store the zero month
// is returned and the caller falls back to its configured start date.
func RevisionStart(max series.Month, ok bool) series.Month {
	if !ok {
		return series.Month{}
	}
	return max.AddMonths(-RevisionMonths)
}

// =============================================================================
// WRITER
// =============================================================================

// Summary reports what one Apply did. Callers surface it for
// operational visibility; it never drives control flow.
type Summary struct {
	From      series.Month `json:"from"`
	To        series.Month `json:"to"`
	Inserted  int          `json:"inserted"`
	Updated   int          `json:"updated"`
	Unchanged int          `json:"unchanged"`
	Warnings  int          `json:"warnings"`
}

// Writer applies reconciled records to a Store. The whole batch runs
// inside one transaction: any write error rolls everything back, so the
// store never holds dimension rows from a half-applied batch.
type Writer struct {
	store Store
	log   logger.Logger
}

func NewWriter(store Store, log logger.Logger) *Writer {
	if log == nil {
		log = logger.NopLogger
	}
	return &Writer{store: store, log: log.WithPrefix("writer: ")}
}

// Apply upserts every record. Dimension ids are resolved once per name
// within the batch. A record whose division classification has no nature
// mapping is skipped and counted as a warning; its value may not be
// attached to a malformed dimension row.
func (w *Writer) Apply(ctx context.Context, records []series.Record) (Summary, error) {
	var s Summary
	if len(records) == 0 {
		return s, nil
	}

	err := w.store.WithTx(ctx, func(b Batch) error {
		type catIdent struct {
			name           string
			classification string
		}
		regionIDs := make(map[string]int64)
		categoryIDs := make(map[catIdent]int64)

		for _, r := range records {
			nature, err := series.DeriveNature(r.Key.Category, r.Key.Classification)
			if err != nil {
				s.Warnings++
				w.log.Warnf("skipping %s: %v", r.Key, err)
				continue
			}

			regionID, ok := regionIDs[r.Key.Region]
			if !ok {
				regionID, err = b.UpsertRegion(ctx, r.Key.Region)
				if err != nil {
					return err
				}
				regionIDs[r.Key.Region] = regionID
			}

			ci := catIdent{r.Key.Category, r.Key.Classification}
			categoryID, ok := categoryIDs[ci]
			if !ok {
				categoryID, err = b.UpsertCategory(ctx, ci.name, ci.classification, naturePtr(nature))
				if err != nil {
					return err
				}
				categoryIDs[ci] = categoryID
			}

			outcome, err := b.UpsertFact(ctx, Fact{
				Month:        r.Key.Month,
				RegionID:     regionID,
				CategoryID:   categoryID,
				Incidence:    roundSlot(r.Incidence),
				MoMVariation: roundSlot(r.MoMVariation),
			})
			if err != nil {
				return err
			}
			switch outcome {
			case OutcomeInserted:
				s.Inserted++
			case OutcomeUpdated:
				s.Updated++
			default:
				s.Unchanged++
			}

			if s.From.IsZero() || r.Key.Month.Before(s.From) {
				s.From = r.Key.Month
			}
			if s.To.IsZero() || r.Key.Month.After(s.To) {
				s.To = r.Key.Month
			}
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	w.log.Infof("applied %d records: %d inserted, %d updated, %d unchanged, %d warnings",
		s.Inserted+s.Updated+s.Unchanged, s.Inserted, s.Updated, s.Unchanged, s.Warnings)
	return s, nil
}

func roundSlot(v decimal.NullDecimal) decimal.NullDecimal {
	if !v.Valid {
		return v
	}
	return decimal.NullDecimal{Decimal: v.Decimal.Round(factScale), Valid: true}
}

func naturePtr(n series.Nature) *string {
	if n == series.NatureNone {
		return nil
	}
	s := string(n)
	return &s
}
