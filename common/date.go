package common

import (
	"fmt"
	"strconv"
	"time"

	"github.com/araddon/dateparse"
	"github.com/soniakeys/meeus/v3/julian"
)

// Date is a day of a year, formatted YYYYDDD
type Date struct {
	Year int
	DoY  int
}

// NewDate returns the date of the doy-th day of the year. Out-of-range doys are normalized.
func NewDate(year, doy int) Date {
	d := Date{Year: year, DoY: 1}
	return d.AddDays(doy - 1)
}

// DateFromTime returns the day of t (UTC)
func DateFromTime(t time.Time) Date {
	t = t.UTC()
	return Date{Year: t.Year(), DoY: t.YearDay()}
}

// ParseDate parses a YYYYDDD date or any date understood by dateparse
func ParseDate(s string) (Date, error) {
	if len(s) == 7 {
		if v, err := strconv.Atoi(s); err == nil {
			d := Date{Year: v / 1000, DoY: v % 1000}
			if d.DoY < 1 || d.DoY > DaysInYear(d.Year) {
				return Date{}, fmt.Errorf("ParseDate: invalid day of year in %s", s)
			}
			return d, nil
		}
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return Date{}, fmt.Errorf("ParseDate: %w", err)
	}
	return DateFromTime(t), nil
}

// IsLeapYear returns true if the gregorian year has 366 days
func IsLeapYear(year int) bool {
	return julian.LeapYearGregorian(year)
}

// DaysInYear returns 365 or 366
func DaysInYear(year int) int {
	if IsLeapYear(year) {
		return 366
	}
	return 365
}

// Time returns midnight UTC of the date
func (d Date) Time() time.Time {
	m, day := julian.DayOfYearToCalendar(d.DoY, IsLeapYear(d.Year))
	return time.Date(d.Year, time.Month(m), day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the date n days after d (n may be negative)
func (d Date) AddDays(n int) Date {
	doy, year := d.DoY+n, d.Year
	for doy > DaysInYear(year) {
		doy -= DaysInYear(year)
		year++
	}
	for doy < 1 {
		year--
		doy += DaysInYear(year)
	}
	return Date{Year: year, DoY: doy}
}

// Before returns true if d is strictly before o
func (d Date) Before(o Date) bool {
	return d.Year < o.Year || (d.Year == o.Year && d.DoY < o.DoY)
}

// String returns YYYYDDD
func (d Date) String() string {
	return fmt.Sprintf("%04d%03d", d.Year, d.DoY)
}

// PriorDoYs returns the days of year of the 8-day prior periods (1, 9, ..., 361)
func PriorDoYs() []int {
	doys := make([]int, 0, 46)
	for doy := 1; doy <= 361; doy += 8 {
		doys = append(doys, doy)
	}
	return doys
}
