// Package query builds Gmail search query strings from request filters.
package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// yearMonthLayout is the request format of a calendar month token.
const yearMonthLayout = "2006-01"

// SearchFilter holds the optional search criteria of a retrieval request.
type SearchFilter struct {
	From      string
	Subject   string
	YearMonth string
	// HasAttachment defaults to true when nil.
	HasAttachment *bool
}

// Build returns the Gmail query for f. Tokens are emitted in the fixed order
// sender, subject, date range, attachment presence, separated by spaces.
// Build performs no validation; use ParseYearMonth before building when the
// month comes from untrusted input.
func Build(f SearchFilter) string {
	var parts []string
	if f.From != "" {
		parts = append(parts, "from:"+f.From)
	}
	if f.Subject != "" {
		parts = append(parts, "subject:"+f.Subject)
	}
	if f.YearMonth != "" {
		after, before := MonthRange(f.YearMonth)
		parts = append(parts, "after:"+after, "before:"+before)
	}
	if f.HasAttachment == nil || *f.HasAttachment {
		parts = append(parts, "has:attachment")
	}
	return strings.Join(parts, " ")
}

// MonthRange expands "YYYY-MM" into Gmail date bounds: day 1 of the month
// (inclusive) and day 1 of the following month (exclusive). December rolls
// over to January of the next year. Input that does not parse is still
// expanded, with non-numeric components read as zero.
func MonthRange(yearMonth string) (after, before string) {
	if ym, err := ParseYearMonth(yearMonth); err == nil {
		next := ym.Next()
		return formatDate(ym.Year, int(ym.Month)), formatDate(next.Year, int(next.Month))
	}

	year, month := splitYearMonth(yearMonth)
	return formatDate(year, month), formatDate(year, month+1)
}

func splitYearMonth(s string) (int, int) {
	yearPart, monthPart, _ := strings.Cut(s, "-")
	year, _ := strconv.Atoi(yearPart)
	month, _ := strconv.Atoi(monthPart)
	return year, month
}

func formatDate(year, month int) string {
	return fmt.Sprintf("%d/%d/1", year, month)
}

// YearMonth is a validated calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

// ParseYearMonth validates a "YYYY-MM" token. Months outside 01..12 and
// non-numeric input are rejected.
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse(yearMonthLayout, s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("year_month %q must be in YYYY-MM format", s)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

// Next returns the following calendar month.
func (ym YearMonth) Next() YearMonth {
	if ym.Month == time.December {
		return YearMonth{Year: ym.Year + 1, Month: time.January}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month + 1}
}
