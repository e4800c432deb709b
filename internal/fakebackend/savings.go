package fakebackend

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jrsteele09/family-budget-client/savings"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

func (b *Backend) familyGoals(familyID int) []savings.Goal {
	return sortedByID(b.goals, func(g *savings.Goal) bool { return g.Family.ID == familyID })
}

func (b *Backend) listGoals(c echo.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	user := currentUser(c)
	familyID, filtered := queryInt(c, "family_id")
	out := sortedByID(b.goals, func(g *savings.Goal) bool {
		return b.isMember(g.Family.ID, user) && (!filtered || g.Family.ID == familyID)
	})
	return c.JSON(http.StatusOK, out)
}

func (b *Backend) createGoal(c echo.Context) error {
	var in savings.GoalInput
	if err := bindBody(c, &in); err != nil {
		return detail(c, http.StatusBadRequest, "Malformed request.")
	}
	if strings.TrimSpace(in.Name) == "" {
		return fieldError(c, "name", "This field is required.")
	}
	if in.TargetAmount.IsZero() {
		return fieldError(c, "target_amount", "A valid number is required.")
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	user := currentUser(c)
	f, exists := b.families[in.FamilyID]
	if !exists || !b.isMember(f.ID, user) {
		return fieldError(c, "family_id", "Invalid pk \""+strconv.Itoa(in.FamilyID)+"\" - object does not exist.")
	}
	g := &savings.Goal{
		ID:            b.newID(),
		Family:        f,
		Name:          in.Name,
		TargetAmount:  in.TargetAmount,
		CurrentAmount: decimal.Zero,
		TargetDate:    in.TargetDate,
		CreatedBy:     b.profileOf(user),
		CreatedAt:     b.now().UTC(),
	}
	b.goals[g.ID] = g
	return c.JSON(http.StatusCreated, g)
}

func (b *Backend) memberGoal(c echo.Context) (*savings.Goal, error) {
	id, ok := intParam(c, "id")
	if !ok {
		return nil, notFound(c)
	}
	g, exists := b.goals[id]
	if !exists || !b.isMember(g.Family.ID, currentUser(c)) {
		return nil, notFound(c)
	}
	return g, nil
}

func (b *Backend) getGoal(c echo.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	g, err := b.memberGoal(c)
	if g == nil {
		return err
	}
	return c.JSON(http.StatusOK, g)
}

func (b *Backend) updateGoal(c echo.Context) error {
	var in savings.GoalInput
	if err := bindBody(c, &in); err != nil {
		return detail(c, http.StatusBadRequest, "Malformed request.")
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	g, err := b.memberGoal(c)
	if g == nil {
		return err
	}
	if in.Name != "" {
		g.Name = in.Name
	}
	if !in.TargetAmount.IsZero() {
		g.TargetAmount = in.TargetAmount
	}
	g.TargetDate = in.TargetDate
	return c.JSON(http.StatusOK, g)
}

func (b *Backend) deleteGoal(c echo.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	g, err := b.memberGoal(c)
	if g == nil {
		return err
	}
	delete(b.goals, g.ID)
	return c.NoContent(http.StatusNoContent)
}

// contribute books a contribution and raises the goal's current amount.
func (b *Backend) contribute(c echo.Context) error {
	var in savings.Contribution
	if err := bindBody(c, &in); err != nil {
		return detail(c, http.StatusBadRequest, "Malformed request.")
	}
	if in.Amount.IsZero() {
		return fieldError(c, "amount", "A valid number is required.")
	}
	if in.Date.IsZero() {
		return fieldError(c, "date", "This field is required.")
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	g, exists := b.goals[in.SavingsGoalID]
	if !exists || !b.isMember(g.Family.ID, currentUser(c)) {
		return fieldError(c, "savings_goal_id", "Invalid pk \""+strconv.Itoa(in.SavingsGoalID)+"\" - object does not exist.")
	}
	g.CurrentAmount = g.CurrentAmount.Add(in.Amount)
	in.ID = b.newID()
	return c.JSON(http.StatusCreated, in)
}
