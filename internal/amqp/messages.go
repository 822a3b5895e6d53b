package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

// UpcomingExpense is one due recurring expense inside a reminder message.
type UpcomingExpense struct {
	ID          int64           `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Category    core.Category   `json:"category"`
	Description string          `json:"description,omitempty"`
	Date        core.Date       `json:"date"`
}

// UpcomingExpensesMessage lists the recurring expenses of one owner that fall
// due within the horizon after a rollforward on Today.
type UpcomingExpensesMessage struct {
	OwnerID   int64             `json:"owner_id"`
	Today     core.Date         `json:"today"`
	Expenses  []UpcomingExpense `json:"expenses"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewUpcomingExpensesMessage snapshots the given expenses into a message.
func NewUpcomingExpensesMessage(ownerID int64, today core.Date, upcoming []core.Transaction) *UpcomingExpensesMessage {
	expenses := make([]UpcomingExpense, len(upcoming))
	for i, tx := range upcoming {
		expenses[i] = UpcomingExpense{
			ID:          tx.ID,
			Amount:      tx.Amount,
			Category:    tx.Category,
			Description: tx.Description,
			Date:        tx.Date,
		}
	}
	return &UpcomingExpensesMessage{
		OwnerID:   ownerID,
		Today:     today,
		Expenses:  expenses,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *UpcomingExpensesMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// UpcomingExpensesMessageFromJSON decodes a message and rejects one without an owner.
func UpcomingExpensesMessageFromJSON(data []byte) (*UpcomingExpensesMessage, error) {
	var msg UpcomingExpensesMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.OwnerID <= 0 {
		return nil, errors.New("message has no owner_id")
	}
	return &msg, nil
}
