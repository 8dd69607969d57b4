package core

import (
	"fmt"
	"strings"
	"time"
)

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

// MonthNames are the lowercase names used by external JSON payloads.
var MonthNames = [12]string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

// MonthAbbreviations are the column headers used by spreadsheets and sqlite.
var MonthAbbreviations = [12]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

// MonthIndex resolves a month name or abbreviation (any case) to 0-11.
func MonthIndex(name string) (int, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i := range MonthNames {
		if name == MonthNames[i] || name == strings.ToLower(MonthAbbreviations[i]) {
			return i, true
		}
	}
	return 0, false
}

// NewYearMonth validates the year and the 1-12 month.
func NewYearMonth(year, month int) (YearMonth, error) {
	if month < 1 || month > 12 {
		return YearMonth{}, fmt.Errorf("%w: %d", ErrInvalidMonth, month)
	}
	if year < 1900 || year > 9999 {
		return YearMonth{}, fmt.Errorf("%w: year %d out of range", ErrInvalidMonth, year)
	}
	return YearMonth{Year: year, Month: time.Month(month)}, nil
}

// ParseYearMonth parses the "YYYY-MM" form.
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return YearMonth{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return NewYearMonth(t.Year(), int(t.Month()))
}

// YearMonthOf returns the month containing t.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// Index is the zero-based position of the month within its year.
func (ym YearMonth) Index() int {
	return int(ym.Month) - 1
}

func (ym YearMonth) Before(o YearMonth) bool {
	return ym.Year < o.Year || (ym.Year == o.Year && ym.Month < o.Month)
}

func (ym YearMonth) After(o YearMonth) bool {
	return o.Before(ym)
}

// Start is midnight UTC on the first day of the month.
func (ym YearMonth) Start() time.Time {
	return time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the exclusive upper bound: the start of the following month.
func (ym YearMonth) End() time.Time {
	return ym.Start().AddDate(0, 1, 0)
}

// Contains reports whether t falls inside the month.
func (ym YearMonth) Contains(t time.Time) bool {
	return YearMonthOf(t.UTC()) == ym
}

func (ym YearMonth) MarshalText() ([]byte, error) {
	return []byte(ym.String()), nil
}

func (ym *YearMonth) UnmarshalText(b []byte) error {
	parsed, err := ParseYearMonth(string(b))
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}
