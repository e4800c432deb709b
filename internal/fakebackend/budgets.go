package fakebackend

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/jrsteele09/family-budget-client/budgets"
	"github.com/jrsteele09/family-budget-client/families"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

func (b *Backend) spent(budgetID int) decimal.Decimal {
	total := decimal.Zero
	for _, t := range b.transactions {
		if t.Budget.ID == budgetID {
			total = total.Add(t.Amount)
		}
	}
	return total
}

// withSpent returns a copy of bd with SpentAmount filled in.
func (b *Backend) withSpent(bd *budgets.Budget) budgets.Budget {
	out := *bd
	out.SpentAmount = b.spent(bd.ID)
	return out
}

func queryInt(c echo.Context, name string) (int, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	return v, err == nil
}

// invalidBudget returns the first failing field and its message, or "" when in is valid.
func invalidBudget(in budgets.Input) (field, msg string) {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return "name", "This field is required."
	case in.Amount.IsZero():
		return "amount", "A valid number is required."
	case in.BudgetType != budgets.Income && in.BudgetType != budgets.Expense:
		return "budget_type", `"` + string(in.BudgetType) + `" is not a valid choice.`
	case in.StartDate.IsZero():
		return "start_date", "This field is required."
	case in.EndDate.IsZero():
		return "end_date", "This field is required."
	}
	return "", ""
}

func (b *Backend) listBudgets(c echo.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	user := currentUser(c)
	familyID, filtered := queryInt(c, "family")
	list := sortedByID(b.budgets, func(bd *budgets.Budget) bool {
		return b.isMember(bd.Family.ID, user) && (!filtered || bd.Family.ID == familyID)
	})
	for i := range list {
		list[i].SpentAmount = b.spent(list[i].ID)
	}
	return c.JSON(http.StatusOK, list)
}

func (b *Backend) createBudget(c echo.Context) error {
	var in budgets.Input
	if err := bindBody(c, &in); err != nil {
		return detail(c, http.StatusBadRequest, "Malformed request.")
	}
	if field, msg := invalidBudget(in); field != "" {
		return fieldError(c, field, msg)
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	user := currentUser(c)
	f, exists := b.families[in.FamilyID]
	if !exists || !b.isMember(f.ID, user) {
		return fieldError(c, "family_id", "Invalid pk \""+strconv.Itoa(in.FamilyID)+"\" - object does not exist.")
	}
	bd := &budgets.Budget{
		ID:          b.newID(),
		Family:      f,
		Name:        in.Name,
		Amount:      in.Amount,
		BudgetType:  in.BudgetType,
		Period:      in.Period,
		Description: in.Description,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		CreatedBy:   b.profileOf(user),
		CreatedAt:   b.now().UTC(),
	}
	b.budgets[bd.ID] = bd
	return c.JSON(http.StatusCreated, b.withSpent(bd))
}

// memberBudget resolves :id to a budget visible to the caller, or writes a 404.
func (b *Backend) memberBudget(c echo.Context) (*budgets.Budget, error) {
	id, ok := intParam(c, "id")
	if !ok {
		return nil, notFound(c)
	}
	bd, exists := b.budgets[id]
	if !exists || !b.isMember(bd.Family.ID, currentUser(c)) {
		return nil, notFound(c)
	}
	return bd, nil
}

func (b *Backend) getBudget(c echo.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	bd, err := b.memberBudget(c)
	if bd == nil {
		return err
	}
	return c.JSON(http.StatusOK, b.withSpent(bd))
}

// updateBudget applies a partial update: zero fields keep their value.
func (b *Backend) updateBudget(c echo.Context) error {
	var in budgets.Input
	if err := bindBody(c, &in); err != nil {
		return detail(c, http.StatusBadRequest, "Malformed request.")
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	bd, err := b.memberBudget(c)
	if bd == nil {
		return err
	}
	if in.Name != "" {
		bd.Name = in.Name
	}
	if !in.Amount.IsZero() {
		bd.Amount = in.Amount
	}
	if in.BudgetType != "" {
		bd.BudgetType = in.BudgetType
	}
	if in.Period != "" {
		bd.Period = in.Period
	}
	if in.Description != "" {
		bd.Description = in.Description
	}
	if !in.StartDate.IsZero() {
		bd.StartDate = in.StartDate
	}
	if !in.EndDate.IsZero() {
		bd.EndDate = in.EndDate
	}
	return c.JSON(http.StatusOK, b.withSpent(bd))
}

func (b *Backend) deleteBudget(c echo.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	bd, err := b.memberBudget(c)
	if bd == nil {
		return err
	}
	b.deleteBudgetCascade(bd.ID)
	return c.NoContent(http.StatusNoContent)
}

func (b *Backend) deleteBudgetCascade(id int) {
	delete(b.budgets, id)
	for tid, t := range b.transactions {
		if t.Budget.ID == id {
			delete(b.transactions, tid)
		}
	}
}

func (b *Backend) budgetSummary(c echo.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	bd, err := b.memberBudget(c)
	if bd == nil {
		return err
	}
	full := b.withSpent(bd)
	return c.JSON(http.StatusOK, budgets.Summary{
		Budget:            full,
		TotalTransactions: full.SpentAmount,
		Remaining:         full.Remaining(),
	})
}

func (b *Backend) listTransactions(c echo.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	user := currentUser(c)
	budgetID, filtered := queryInt(c, "budget_id")
	out := sortedByID(b.transactions, func(t *budgets.Transaction) bool {
		return b.isMember(t.Budget.Family.ID, user) && (!filtered || t.Budget.ID == budgetID)
	})
	return c.JSON(http.StatusOK, out)
}

func (b *Backend) createTransaction(c echo.Context) error {
	var in budgets.TransactionInput
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

	user := currentUser(c)
	bd, exists := b.budgets[in.BudgetID]
	if !exists || !b.isMember(bd.Family.ID, user) {
		return fieldError(c, "budget_id", "Invalid pk \""+strconv.Itoa(in.BudgetID)+"\" - object does not exist.")
	}
	t := &budgets.Transaction{
		ID:          b.newID(),
		Budget:      bd,
		Amount:      in.Amount,
		Description: in.Description,
		Date:        in.Date,
		CreatedBy:   b.profileOf(user),
		CreatedAt:   b.now().UTC(),
	}
	b.transactions[t.ID] = t
	return c.JSON(http.StatusCreated, t)
}

func (b *Backend) deleteTransaction(c echo.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	id, _ := intParam(c, "id")
	t, exists := b.transactions[id]
	if !exists || !b.isMember(t.Budget.Family.ID, currentUser(c)) {
		return notFound(c)
	}
	delete(b.transactions, id)
	return c.NoContent(http.StatusNoContent)
}

// familyHistory lists a family's transactions newest first.
func (b *Backend) familyHistory(c echo.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	familyID, _ := intParam(c, "id")
	if !b.isMember(familyID, currentUser(c)) {
		return notFound(c)
	}
	out := sortedByID(b.transactions, func(t *budgets.Transaction) bool {
		return t.Budget.Family.ID == familyID
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return c.JSON(http.StatusOK, out)
}

func (b *Backend) analytics(c echo.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	familyID, _ := intParam(c, "id")
	if !b.isMember(familyID, currentUser(c)) {
		return notFound(c)
	}

	planned := map[budgets.BudgetType]decimal.Decimal{}
	for _, bd := range b.budgets {
		if bd.Family.ID == familyID {
			planned[bd.BudgetType] = planned[bd.BudgetType].Add(bd.Amount)
		}
	}
	booked := map[budgets.BudgetType]decimal.Decimal{}
	for _, t := range b.transactions {
		if t.Budget.Family.ID == familyID {
			booked[t.Budget.BudgetType] = booked[t.Budget.BudgetType].Add(t.Amount)
		}
	}

	out := budgets.Analytics{
		BudgetUtilization: map[budgets.BudgetType]budgets.Utilization{},
		SavingsProgress:   []budgets.GoalProgress{},
	}
	for _, bt := range []budgets.BudgetType{budgets.Income, budgets.Expense} {
		out.BudgetUtilization[bt] = budgets.Utilization{
			BudgetAmount:          planned[bt],
			TransactionAmount:     booked[bt],
			UtilizationPercentage: budgets.Percentage(booked[bt], planned[bt]),
		}
	}
	for _, g := range b.familyGoals(familyID) {
		out.SavingsProgress = append(out.SavingsProgress, budgets.GoalProgress{
			GoalID:             g.ID,
			Name:               g.Name,
			TargetAmount:       g.TargetAmount,
			CurrentAmount:      g.CurrentAmount,
			ProgressPercentage: budgets.Percentage(g.CurrentAmount, g.TargetAmount),
			TargetDate:         g.TargetDate,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// AddBudget stores a budget directly for familyID, created by its owner.
func (b *Backend) AddBudget(familyID int, in budgets.Input) budgets.Budget {
	b.lock.Lock()
	defer b.lock.Unlock()
	f := b.families[familyID]
	bd := &budgets.Budget{
		ID:          b.newID(),
		Family:      f,
		Name:        in.Name,
		Amount:      in.Amount,
		BudgetType:  in.BudgetType,
		Period:      in.Period,
		Description: in.Description,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		CreatedBy:   f.CreatedBy,
		CreatedAt:   b.now().UTC(),
	}
	b.budgets[bd.ID] = bd
	return b.withSpent(bd)
}

// FamilyOf returns the family a budget belongs to.
func (b *Backend) FamilyOf(budgetID int) (families.Family, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	bd, ok := b.budgets[budgetID]
	if !ok {
		return families.Family{}, false
	}
	return *bd.Family, true
}
