package core

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	MaxIntervalYears  = 10
	MaxIntervalMonths = 11
	MaxIntervalDays   = 30
)

var (
	ErrInvalidInterval = errors.New("invalid interval")
	ErrZeroInterval    = errors.New("interval must not be zero")

	intervalPattern = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{1,2})$`)
)

// Interval is a calendar offset used to advance recurring expenses.
type Interval struct {
	Years  int
	Months int
	Days   int
}

// ParseInterval parses the "Y-M-D" form, e.g. "0-1-0" for monthly.
func ParseInterval(s string) (Interval, error) {
	m := intervalPattern.FindStringSubmatch(s)
	if m == nil {
		return Interval{}, fmt.Errorf("%w: %q is not Y-M-D", ErrInvalidInterval, s)
	}
	var parts [3]int
	for i := range parts {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Interval{}, fmt.Errorf("%w: %q", ErrInvalidInterval, s)
		}
		parts[i] = n
	}
	iv := Interval{Years: parts[0], Months: parts[1], Days: parts[2]}
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

func (iv Interval) Validate() error {
	if iv.Years < 0 || iv.Years > MaxIntervalYears {
		return fmt.Errorf("%w: years must be 0-%d", ErrInvalidInterval, MaxIntervalYears)
	}
	if iv.Months < 0 || iv.Months > MaxIntervalMonths {
		return fmt.Errorf("%w: months must be 0-%d", ErrInvalidInterval, MaxIntervalMonths)
	}
	if iv.Days < 0 || iv.Days > MaxIntervalDays {
		return fmt.Errorf("%w: days must be 0-%d", ErrInvalidInterval, MaxIntervalDays)
	}
	return nil
}

func (iv Interval) IsZero() bool {
	return iv.Years == 0 && iv.Months == 0 && iv.Days == 0
}

func (iv Interval) String() string {
	return fmt.Sprintf("%d-%d-%d", iv.Years, iv.Months, iv.Days)
}

// AddTo applies years and months first, clamping the day to the length of
// the target month (Jan 31 + 1 month is Feb 28 or 29), then adds days.
func (iv Interval) AddTo(d Date) Date {
	total := d.Year()*12 + (d.Month() - 1) + iv.Years*12 + iv.Months
	year, month := total/12, total%12+1
	day := d.Day()
	if last := daysIn(year, month); day > last {
		day = last
	}
	return NewDate(year, month, day).AddDays(iv.Days)
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (iv Interval) MarshalText() ([]byte, error) {
	return []byte(iv.String()), nil
}

func (iv *Interval) UnmarshalText(b []byte) error {
	parsed, err := ParseInterval(string(b))
	if err != nil {
		return err
	}
	*iv = parsed
	return nil
}
