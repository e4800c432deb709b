package budgets

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jrsteele09/family-budget-client/apiclient"
	"github.com/jrsteele09/family-budget-client/internal/errors"
	"github.com/jrsteele09/family-budget-client/internal/utils"
	pkgerrors "github.com/pkg/errors"
)

const (
	basePath         = "/budgets/"
	transactionsPath = "/budgets/transactions/"
)

func budgetPath(id int) string {
	return fmt.Sprintf("/budgets/%d/", id)
}

func familyPath(familyID int, suffix string) string {
	return fmt.Sprintf("/budgets/families/%d/%s", familyID, suffix)
}

// Service wraps the budget, transaction and analytics endpoints.
type Service struct {
	api apiclient.API
}

func NewService(api apiclient.API) *Service {
	return &Service{api: api}
}

// List returns the budgets of one family.
func (s *Service) List(ctx context.Context, familyID int) ([]Budget, error) {
	query := url.Values{"family": {strconv.Itoa(familyID)}}
	var out []Budget
	if err := s.api.Do(ctx, apiclient.Get(basePath, query), &out); err != nil {
		return nil, pkgerrors.Wrapf(err, "[budgets.Service.List] family %d", familyID)
	}
	return out, nil
}

// Create validates in, fills the start date with today and the end date from the period
// when they are missing, and creates the budget.
func (s *Service) Create(ctx context.Context, in Input) (*Budget, error) {
	in = withDefaults(in)
	if err := validate(in); err != nil {
		return nil, err
	}
	var out Budget
	if err := s.api.Post(ctx, basePath, in, &out); err != nil {
		return nil, pkgerrors.Wrap(err, "[budgets.Service.Create]")
	}
	return &out, nil
}

func withDefaults(in Input) Input {
	if in.StartDate.IsZero() {
		in.StartDate = utils.DateOf(NowTimeFunc())
	}
	if in.EndDate.IsZero() {
		in.EndDate = DefaultEndDate(in.StartDate, in.Period)
	}
	return in
}

func validate(in Input) error {
	switch {
	case in.FamilyID == 0:
		return errors.Invalid("family_id", "Family is required")
	case strings.TrimSpace(in.Name) == "":
		return errors.Invalid("name", "Budget name is required")
	case !in.Amount.IsPositive():
		return errors.Invalid("amount", "Amount must be greater than zero")
	case in.BudgetType != Income && in.BudgetType != Expense:
		return errors.Invalid("budget_type", `Budget type must be "income" or "expense"`)
	case in.EndDate.Before(in.StartDate.Time):
		return errors.Invalid("end_date", "End date must not be before the start date")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id int) (*Budget, error) {
	var out Budget
	if err := s.api.Get(ctx, budgetPath(id), &out); err != nil {
		return nil, pkgerrors.Wrapf(err, "[budgets.Service.Get] %d", id)
	}
	return &out, nil
}

func (s *Service) Update(ctx context.Context, id int, in Input) (*Budget, error) {
	var out Budget
	if err := s.api.Put(ctx, budgetPath(id), in, &out); err != nil {
		return nil, pkgerrors.Wrapf(err, "[budgets.Service.Update] %d", id)
	}
	return &out, nil
}

func (s *Service) Delete(ctx context.Context, id int) error {
	if err := s.api.Delete(ctx, budgetPath(id), nil); err != nil {
		return pkgerrors.Wrapf(err, "[budgets.Service.Delete] %d", id)
	}
	return nil
}

func (s *Service) Summary(ctx context.Context, id int) (*Summary, error) {
	var out Summary
	if err := s.api.Get(ctx, budgetPath(id)+"summary/", &out); err != nil {
		return nil, pkgerrors.Wrapf(err, "[budgets.Service.Summary] %d", id)
	}
	return &out, nil
}

// Transactions lists the transactions booked against one budget.
func (s *Service) Transactions(ctx context.Context, budgetID int) ([]Transaction, error) {
	query := url.Values{"budget_id": {strconv.Itoa(budgetID)}}
	var out []Transaction
	if err := s.api.Do(ctx, apiclient.Get(transactionsPath, query), &out); err != nil {
		return nil, pkgerrors.Wrapf(err, "[budgets.Service.Transactions] budget %d", budgetID)
	}
	return out, nil
}

// AddTransaction books an amount against a budget. A missing date means today.
func (s *Service) AddTransaction(ctx context.Context, in TransactionInput) (*Transaction, error) {
	if in.BudgetID == 0 {
		return nil, errors.Invalid("budget_id", "Budget is required")
	}
	if !in.Amount.IsPositive() {
		return nil, errors.Invalid("amount", "Amount must be greater than zero")
	}
	if in.Date.IsZero() {
		in.Date = utils.DateOf(NowTimeFunc())
	}
	var out Transaction
	if err := s.api.Post(ctx, transactionsPath, in, &out); err != nil {
		return nil, pkgerrors.Wrap(err, "[budgets.Service.AddTransaction]")
	}
	return &out, nil
}

func (s *Service) DeleteTransaction(ctx context.Context, id int) error {
	if err := s.api.Delete(ctx, fmt.Sprintf("%s%d/", transactionsPath, id), nil); err != nil {
		return pkgerrors.Wrapf(err, "[budgets.Service.DeleteTransaction] %d", id)
	}
	return nil
}

// FamilyHistory lists every transaction of a family, newest first.
func (s *Service) FamilyHistory(ctx context.Context, familyID int) ([]Transaction, error) {
	var out []Transaction
	if err := s.api.Get(ctx, familyPath(familyID, "transactions/"), &out); err != nil {
		return nil, pkgerrors.Wrapf(err, "[budgets.Service.FamilyHistory] family %d", familyID)
	}
	return out, nil
}

func (s *Service) Analytics(ctx context.Context, familyID int) (*Analytics, error) {
	var out Analytics
	if err := s.api.Get(ctx, familyPath(familyID, "analytics/budget/"), &out); err != nil {
		return nil, pkgerrors.Wrapf(err, "[budgets.Service.Analytics] family %d", familyID)
	}
	return &out, nil
}

// CreateMessage is the user-facing text for a failed budget creation.
func CreateMessage(err error) string {
	return apiclient.Message(err, "Failed to create budget", "name", "amount", "start_date", "end_date", "family_id", "detail")
}

// TransactionMessage is the user-facing text for a failed transaction.
func TransactionMessage(err error) string {
	return apiclient.Message(err, "Failed to save transaction", "amount", "date", "budget_id", "detail")
}
