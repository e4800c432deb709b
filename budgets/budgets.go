package budgets

import (
	"time"

	"github.com/jrsteele09/family-budget-client/families"
	"github.com/jrsteele09/family-budget-client/internal/utils"
	"github.com/jrsteele09/family-budget-client/users"
	"github.com/shopspring/decimal"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type BudgetType string

const (
	Income  BudgetType = "income"
	Expense BudgetType = "expense"
)

type Period string

const (
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

// Budget is a planned income or expense amount for a family over a date range.
type Budget struct {
	ID          int              `json:"id"`
	Family      *families.Family `json:"family,omitempty"`
	Name        string           `json:"name"`
	Amount      decimal.Decimal  `json:"amount"`
	BudgetType  BudgetType       `json:"budget_type"`
	Period      Period           `json:"period"`
	Description string           `json:"description,omitempty"`
	StartDate   utils.Date       `json:"start_date"`
	EndDate     utils.Date       `json:"end_date"`
	CreatedBy   *users.Profile   `json:"created_by,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`

	// SpentAmount is the sum of the budget's transactions, computed by the server.
	SpentAmount decimal.Decimal `json:"spent_amount"`
}

// Remaining is what is left of an expense budget, or how far income is over its target.
func (b Budget) Remaining() decimal.Decimal {
	return remaining(b.BudgetType, b.Amount, b.SpentAmount)
}

func remaining(t BudgetType, amount, total decimal.Decimal) decimal.Decimal {
	if t == Income {
		return total.Sub(amount)
	}
	return amount.Sub(total)
}

// Input is the writable part of a budget.
type Input struct {
	FamilyID    int             `json:"family_id"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	BudgetType  BudgetType      `json:"budget_type"`
	Period      Period          `json:"period"`
	Description string          `json:"description,omitempty"`
	StartDate   utils.Date      `json:"start_date"`
	EndDate     utils.Date      `json:"end_date"`
}

// DefaultEndDate derives an end date from the start and period when none is given.
// Unknown periods default to one month.
func DefaultEndDate(start utils.Date, period Period) utils.Date {
	switch period {
	case Weekly:
		return start.AddDate(0, 0, 7)
	case Yearly:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}

// Summary is returned by GET /budgets/{id}/summary/.
type Summary struct {
	Budget            Budget          `json:"budget"`
	TotalTransactions decimal.Decimal `json:"total_transactions"`
	Remaining         decimal.Decimal `json:"remaining"`
}

// Transaction is a single amount booked against a budget.
type Transaction struct {
	ID          int             `json:"id"`
	Budget      *Budget         `json:"budget,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Date        utils.Date      `json:"date"`
	CreatedBy   *users.Profile  `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TransactionInput is the writable part of a transaction.
type TransactionInput struct {
	BudgetID    int             `json:"budget_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Date        utils.Date      `json:"date"`
}

// Utilization compares planned and booked amounts for one budget type.
type Utilization struct {
	BudgetAmount          decimal.Decimal `json:"budget_amount"`
	TransactionAmount     decimal.Decimal `json:"transaction_amount"`
	UtilizationPercentage decimal.Decimal `json:"utilization_percentage"`
}

// GoalProgress is one savings goal as reported by the analytics endpoint.
type GoalProgress struct {
	GoalID             int             `json:"goal_id"`
	Name               string          `json:"name"`
	TargetAmount       decimal.Decimal `json:"target_amount"`
	CurrentAmount      decimal.Decimal `json:"current_amount"`
	ProgressPercentage decimal.Decimal `json:"progress_percentage"`
	TargetDate         utils.Date      `json:"target_date"`
}

// Analytics is returned by GET /budgets/families/{id}/analytics/budget/.
type Analytics struct {
	BudgetUtilization map[BudgetType]Utilization `json:"budget_utilization"`
	SavingsProgress   []GoalProgress             `json:"savings_progress"`
}

// Percentage returns part/whole*100, or zero when whole is not positive.
func Percentage(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100))
}
