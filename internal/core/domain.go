package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"

	// DateLayout is the wire and storage form of a Date.
	DateLayout = "2006-01-02"

	MaxDescriptionLength = 150
)

type (
	Kind string

	Category string

	Date struct {
		time.Time
	}

	Transaction struct {
		ID          int64
		OwnerID     int64
		Kind        Kind
		Amount      decimal.Decimal
		Category    Category
		Description string
		IsFixed     bool      // income only
		IsRecurring bool      // expense only
		Interval    *Interval // required when IsRecurring
		Date        Date
	}

	BudgetSetting struct {
		IncomeGoal    decimal.Decimal
		ExpenseBudget decimal.Decimal
	}

	Owner struct {
		ID        int64
		FirstName string
		LastName  string
		Username  string
		Email     string
		Budget    BudgetSetting
	}
)

const CategoryOther Category = "OTHER"

var categorySets = map[Kind][]Category{
	Income: {
		"SALARY", "INVESTMENT", "INTEREST", "GOVERNMENT",
		"BUSINESS", "DIVIDEND", "PENSION", CategoryOther,
	},
	Expense: {
		"FOOD", "HOUSING", "TRANSPORTATION", "MEDICAL", "INSURANCE",
		"EDUCATION", "HOUSEHOLD", "SHOPPING", "ENTERTAINMENT", "INVESTMENT",
		"SUBSCRIPTION", "SAVING", "DEBT", CategoryOther,
	},
}

var (
	ErrInvalidDay         = errors.New("invalid day")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidKind        = errors.New("invalid transaction kind")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrDescriptionTooLong = errors.New("description too long")
	ErrKindFlagMismatch   = errors.New("flag not allowed for transaction kind")
	ErrMissingInterval    = errors.New("recurring expense requires an interval")
	ErrEmptyUsername      = errors.New("empty username")
)

// IsValidation reports whether err is one of the domain validation errors.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidDay, ErrInvalidMonth, ErrInvalidDate, ErrInvalidAmount,
		ErrInvalidKind, ErrInvalidCategory, ErrDescriptionTooLong,
		ErrKindFlagMismatch, ErrMissingInterval, ErrEmptyUsername,
		ErrInvalidInterval, ErrZeroInterval,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// AddMonths moves by whole months from the first of the month, so no day
// overflow can happen.
func (d Date) AddMonths(n int) Date {
	return NewDate(d.Year(), d.Month()+n, 1)
}

func (d Date) FirstOfMonth() Date {
	return NewDate(d.Year(), d.Month(), 1)
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool  { return d.Time.Equal(o.Time) }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (k Kind) Validate() error {
	if _, ok := categorySets[k]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidKind, k)
	}
	return nil
}

// Categories returns the closed category set of k in declaration order.
func (k Kind) Categories() []Category {
	return append([]Category(nil), categorySets[k]...)
}

func (k Kind) ValidCategory(c Category) bool {
	for _, known := range categorySets[k] {
		if known == c {
			return true
		}
	}
	return false
}

// Normalize fills defaults the caller may leave empty and rounds the amount
// to cents.
func (t *Transaction) Normalize() {
	if t.Category == "" {
		t.Category = CategoryOther
	}
	t.Category = Category(strings.ToUpper(strings.TrimSpace(string(t.Category))))
	t.Description = strings.TrimSpace(t.Description)
	t.Amount = RoundAmount(t.Amount)
}

func (t Transaction) Validate() error {
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := ValidateAmount(t.Amount); err != nil {
		return err
	}
	if !t.Kind.ValidCategory(t.Category) {
		return fmt.Errorf("%w: %q for %s", ErrInvalidCategory, t.Category, t.Kind)
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLength {
		return fmt.Errorf("%w (max %d characters)", ErrDescriptionTooLong, MaxDescriptionLength)
	}
	switch t.Kind {
	case Income:
		if t.IsRecurring {
			return fmt.Errorf("%w: income cannot be recurring", ErrKindFlagMismatch)
		}
	case Expense:
		if t.IsFixed {
			return fmt.Errorf("%w: expense cannot be fixed", ErrKindFlagMismatch)
		}
	}
	if t.IsRecurring && t.Interval == nil {
		return ErrMissingInterval
	}
	if t.Interval != nil {
		if err := t.Interval.Validate(); err != nil {
			return err
		}
		if t.IsRecurring && t.Interval.IsZero() {
			return ErrZeroInterval
		}
	}
	return nil
}

// Validate bounds both values like transaction amounts, so every store can
// hold them exactly.
func (b BudgetSetting) Validate() error {
	if b.IncomeGoal.IsNegative() || b.ExpenseBudget.IsNegative() {
		return fmt.Errorf("%w: budget values must not be negative", ErrInvalidAmount)
	}
	if err := ValidateAmount(b.IncomeGoal); err != nil {
		return fmt.Errorf("income goal: %w", err)
	}
	if err := ValidateAmount(b.ExpenseBudget); err != nil {
		return fmt.Errorf("expense budget: %w", err)
	}
	return nil
}

func (o Owner) Validate() error {
	if strings.TrimSpace(o.Username) == "" {
		return ErrEmptyUsername
	}
	return o.Budget.Validate()
}
