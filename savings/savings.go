package savings

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/family-budget-client/apiclient"
	"github.com/jrsteele09/family-budget-client/families"
	"github.com/jrsteele09/family-budget-client/internal/errors"
	"github.com/jrsteele09/family-budget-client/internal/utils"
	"github.com/jrsteele09/family-budget-client/users"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	goalsPath         = "/budgets/savings-goals/"
	contributionsPath = "/budgets/savings-contributions/"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Goal is a family savings target. CurrentAmount is maintained by the server from
// contributions.
type Goal struct {
	ID            int              `json:"id"`
	Family        *families.Family `json:"family,omitempty"`
	Name          string           `json:"name"`
	TargetAmount  decimal.Decimal  `json:"target_amount"`
	CurrentAmount decimal.Decimal  `json:"current_amount"`
	TargetDate    utils.Date       `json:"target_date"`
	CreatedBy     *users.Profile   `json:"created_by,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Progress is the saved share of the target as a percentage, capped at 100.
func (g Goal) Progress() decimal.Decimal {
	if !g.TargetAmount.IsPositive() {
		return decimal.Zero
	}
	p := g.CurrentAmount.Div(g.TargetAmount).Mul(decimal.NewFromInt(100))
	return decimal.Min(p, decimal.NewFromInt(100))
}

// DaysRemaining counts whole days from now until the target date. ok is false when the goal
// has no target date.
func (g Goal) DaysRemaining(now time.Time) (days int, ok bool) {
	if g.TargetDate.IsZero() {
		return 0, false
	}
	diff := g.TargetDate.Sub(utils.DateOf(now).Time)
	return int(math.Ceil(diff.Hours() / 24)), true
}

// GoalInput is the writable part of a goal.
type GoalInput struct {
	FamilyID     int             `json:"family_id"`
	Name         string          `json:"name"`
	TargetAmount decimal.Decimal `json:"target_amount"`
	TargetDate   utils.Date      `json:"target_date"`
}

// Contribution is the body of POST /budgets/savings-contributions/.
type Contribution struct {
	ID            int             `json:"id,omitempty"`
	SavingsGoalID int             `json:"savings_goal_id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          utils.Date      `json:"date"`
}

// Service wraps the savings goal endpoints.
type Service struct {
	api apiclient.API
}

func NewService(api apiclient.API) *Service {
	return &Service{api: api}
}

func goalPath(id int) string {
	return fmt.Sprintf("%s%d/", goalsPath, id)
}

func (s *Service) List(ctx context.Context, familyID int) ([]Goal, error) {
	query := url.Values{"family_id": {strconv.Itoa(familyID)}}
	var out []Goal
	if err := s.api.Do(ctx, apiclient.Get(goalsPath, query), &out); err != nil {
		return nil, pkgerrors.Wrapf(err, "[savings.Service.List] family %d", familyID)
	}
	return out, nil
}

func (s *Service) Create(ctx context.Context, in GoalInput) (*Goal, error) {
	if err := validateGoal(in); err != nil {
		return nil, err
	}
	var out Goal
	if err := s.api.Post(ctx, goalsPath, in, &out); err != nil {
		return nil, pkgerrors.Wrap(err, "[savings.Service.Create]")
	}
	return &out, nil
}

func validateGoal(in GoalInput) error {
	switch {
	case in.FamilyID == 0:
		return errors.Invalid("family_id", "Family is required")
	case strings.TrimSpace(in.Name) == "":
		return errors.Invalid("name", "Goal name is required")
	case !in.TargetAmount.IsPositive():
		return errors.Invalid("target_amount", "Target amount must be greater than zero")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id int) (*Goal, error) {
	var out Goal
	if err := s.api.Get(ctx, goalPath(id), &out); err != nil {
		return nil, pkgerrors.Wrapf(err, "[savings.Service.Get] %d", id)
	}
	return &out, nil
}

func (s *Service) Update(ctx context.Context, id int, in GoalInput) (*Goal, error) {
	if err := validateGoal(in); err != nil {
		return nil, err
	}
	var out Goal
	if err := s.api.Put(ctx, goalPath(id), in, &out); err != nil {
		return nil, pkgerrors.Wrapf(err, "[savings.Service.Update] %d", id)
	}
	return &out, nil
}

func (s *Service) Delete(ctx context.Context, id int) error {
	if err := s.api.Delete(ctx, goalPath(id), nil); err != nil {
		return pkgerrors.Wrapf(err, "[savings.Service.Delete] %d", id)
	}
	return nil
}

// Contribute adds amount to a goal and returns the goal as updated by the server.
// A zero date means today.
func (s *Service) Contribute(ctx context.Context, goalID int, amount decimal.Decimal, date utils.Date) (*Goal, error) {
	if !amount.IsPositive() {
		return nil, errors.Invalid("amount", "Amount must be greater than zero")
	}
	if date.IsZero() {
		date = utils.DateOf(NowTimeFunc())
	}
	in := Contribution{SavingsGoalID: goalID, Amount: amount, Date: date}
	if err := s.api.Post(ctx, contributionsPath, in, nil); err != nil {
		return nil, pkgerrors.Wrapf(err, "[savings.Service.Contribute] goal %d", goalID)
	}
	return s.Get(ctx, goalID)
}

// Message is the user-facing text for a failed goal or contribution change.
func Message(err error) string {
	return apiclient.Message(err, "Failed to save savings goal", "name", "target_amount", "amount", "target_date", "detail")
}
