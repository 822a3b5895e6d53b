package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

// maxBodyBytes caps request bodies; payloads here are a few hundred bytes.
const maxBodyBytes = 64 << 10

// flexString accepts a JSON string or a bare JSON number, so amounts may be
// sent either as 12.5 or as "12,50".
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*f = flexString(n)
		return nil
	}
}

// transactionPayload is the wire form of an income or expense. Incomes name
// their category "source"; "type" is the fixed flag for incomes and the
// recurring flag for expenses.
type transactionPayload struct {
	User        int64      `json:"user"`
	Amount      flexString `json:"amount"`
	Source      string     `json:"source"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Type        bool       `json:"type"`
	Interval    string     `json:"interval"`
	Date        string     `json:"date"`
}

type ownerPayload struct {
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	IncomeGoal    flexString `json:"income_goal"`
	ExpenseBudget flexString `json:"expense_budget"`
}

// decodeJSON reads a single JSON object from the request body into v,
// rejecting unknown fields and trailing data.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("empty request body")
		}
		return badRequest("malformed JSON: %v", err)
	}
	if dec.More() {
		return badRequest("unexpected data after JSON object")
	}
	return nil
}

// toTransaction converts the payload into a transaction of the given kind.
// Domain validation is left to the ledger service.
func (p transactionPayload) toTransaction(kind core.Kind) (core.Transaction, error) {
	amount := decimal.Zero
	if s := strings.TrimSpace(string(p.Amount)); s != "" {
		var err error
		if amount, err = core.ParseAmount(s); err != nil {
			return core.Transaction{}, err
		}
	}

	date, err := core.ParseDate(p.Date)
	if err != nil {
		return core.Transaction{}, err
	}

	tx := core.Transaction{
		OwnerID:     p.User,
		Kind:        kind,
		Amount:      amount,
		Description: p.Description,
		Date:        date,
	}
	switch kind {
	case core.Income:
		tx.Category = core.Category(p.Source)
		tx.IsFixed = p.Type
	case core.Expense:
		tx.Category = core.Category(p.Category)
		tx.IsRecurring = p.Type
	}

	if s := strings.TrimSpace(p.Interval); s != "" {
		iv, err := core.ParseInterval(s)
		if err != nil {
			return core.Transaction{}, err
		}
		tx.Interval = &iv
	}
	return tx, nil
}

func (p ownerPayload) toOwner() (core.Owner, error) {
	o := core.Owner{
		FirstName: strings.TrimSpace(p.FirstName),
		LastName:  strings.TrimSpace(p.LastName),
		Username:  strings.TrimSpace(p.Username),
		Email:     strings.TrimSpace(p.Email),
	}
	var err error
	if o.Budget.IncomeGoal, err = optionalDecimal(string(p.IncomeGoal)); err != nil {
		return core.Owner{}, err
	}
	if o.Budget.ExpenseBudget, err = optionalDecimal(string(p.ExpenseBudget)); err != nil {
		return core.Owner{}, err
	}
	return o, nil
}

// optionalDecimal parses s, treating an empty string as zero. The sign is
// kept so that range checks report negative budgets.
func optionalDecimal(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, badRequest("invalid decimal %q", s)
	}
	return d, nil
}

// budgetParam parses an optional budget query parameter; nil when absent.
func budgetParam(r *http.Request, key string) (*decimal.Decimal, error) {
	if !r.URL.Query().Has(key) {
		return nil, nil
	}
	d, err := optionalDecimal(r.URL.Query().Get(key))
	if err != nil {
		return nil, err
	}
	return &d, nil
}
