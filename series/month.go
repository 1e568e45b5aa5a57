package series

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// MONTH - The period unit of every observation
// =============================================================================

// Month identifies one calendar month. Every period in the source data is
// published as the first day of its month; Month is the normalized form.
// The zero value means "no month".
type Month struct {
	Year  int
	Month time.Month
}

func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth accepts "2006-01-02" (any day, normalized to its month) and
// "2006-01".
func ParseMonth(s string) (Month, error) {
	for _, layout := range []string{"2006-01-02", "2006-01"} {
		if t, err := time.Parse(layout, s); err == nil {
			return MonthOf(t), nil
		}
	}
	return Month{}, &PeriodError{Raw: s}
}

// Comparison
func (m Month) Equal(o Month) bool { return m == o }
func (m Month) Before(o Month) bool {
	return m.Year < o.Year || (m.Year == o.Year && m.Month < o.Month)
}
func (m Month) After(o Month) bool         { return o.Before(m) }
func (m Month) BeforeOrEqual(o Month) bool { return !o.Before(m) }
func (m Month) AfterOrEqual(o Month) bool  { return !m.Before(o) }

// Arithmetic
func (m Month) AddMonths(n int) Month {
	return MonthOf(time.Date(m.Year, m.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC))
}
func (m Month) Next() Month { return m.AddMonths(1) }
func (m Month) Prev() Month { return m.AddMonths(-1) }

// Properties
func (m Month) IsZero() bool { return m.Year == 0 }

// Date returns the first day of the month at UTC midnight.
func (m Month) Date() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

func (m Month) String() string {
	if m.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// CurrentMonth returns the month containing now.
func CurrentMonth() Month { return MonthOf(time.Now().UTC()) }

// JSON wire form is the String form, empty for the zero month.
func (m Month) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Month) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*m = Month{}
		return nil
	}
	parsed, err := ParseMonth(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
