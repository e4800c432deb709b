package fakebackend

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/jrsteele09/family-budget-client/families"
	"github.com/jrsteele09/family-budget-client/internal/utils"
	"github.com/labstack/echo/v4"
)

func intParam(c echo.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	return v, err == nil
}

// membership returns the user's membership in family with the given status, or nil.
func (b *Backend) membership(familyID, userID int, status families.MembershipStatus) *families.Membership {
	for _, m := range b.memberships {
		if m.Family.ID == familyID && m.User.ID == userID && m.Status == status {
			return m
		}
	}
	return nil
}

func (b *Backend) isMember(familyID, userID int) bool {
	return b.membership(familyID, userID, families.StatusAccepted) != nil
}

func (b *Backend) isAdmin(familyID, userID int) bool {
	m := b.membership(familyID, userID, families.StatusAccepted)
	return m != nil && m.Role == families.RoleAdmin
}

func (b *Backend) countMembers(familyID int, role families.RoleType) int {
	n := 0
	for _, m := range b.memberships {
		if m.Family.ID == familyID && m.Status == families.StatusAccepted && (role == "" || m.Role == role) {
			n++
		}
	}
	return n
}

func sortedByID[T any](m map[int]*T, keep func(*T) bool) []T {
	ids := make([]int, 0, len(m))
	for id, v := range m {
		if keep(v) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m[id])
	}
	return out
}

// AddFamily creates a family owned by ownerID, who becomes its admin.
func (b *Backend) AddFamily(ownerID int, name string) families.Family {
	b.lock.Lock()
	defer b.lock.Unlock()
	return *b.addFamily(ownerID, families.Input{Name: name})
}

func (b *Backend) addFamily(ownerID int, in families.Input) *families.Family {
	f := &families.Family{
		ID:          b.newID(),
		Name:        in.Name,
		Description: in.Description,
		CreatedAt:   b.now().UTC(),
		CreatedBy:   b.profileOf(ownerID),
	}
	b.families[f.ID] = f
	b.addMembership(f, ownerID, ownerID, families.RoleAdmin, families.StatusAccepted)
	return f
}

// AddMember adds userID to a family as an accepted member.
func (b *Backend) AddMember(familyID, userID int) families.Membership {
	b.lock.Lock()
	defer b.lock.Unlock()
	return *b.addMembership(b.families[familyID], userID, b.families[familyID].CreatedBy.ID, families.RoleMember, families.StatusAccepted)
}

func (b *Backend) addMembership(f *families.Family, userID, invitedBy int, role families.RoleType, status families.MembershipStatus) *families.Membership {
	m := &families.Membership{
		ID:        b.newID(),
		Family:    f,
		User:      b.profileOf(userID),
		Role:      role,
		Status:    status,
		InvitedBy: b.profileOf(invitedBy),
		InvitedAt: b.now().UTC(),
	}
	b.memberships[m.ID] = m
	return m
}

func (b *Backend) listFamilies(c echo.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	user := currentUser(c)
	out := sortedByID(b.families, func(f *families.Family) bool { return b.isMember(f.ID, user) })
	return c.JSON(http.StatusOK, out)
}

func (b *Backend) createFamily(c echo.Context) error {
	var in families.Input
	if err := bindBody(c, &in); err != nil {
		return detail(c, http.StatusBadRequest, "Malformed request.")
	}
	if strings.TrimSpace(in.Name) == "" {
		return fieldError(c, "name", "This field is required.")
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	return c.JSON(http.StatusCreated, b.addFamily(currentUser(c), in))
}

// memberFamily resolves the :id family for an accepted member, or writes a 404.
func (b *Backend) memberFamily(c echo.Context) (*families.Family, error) {
	id, ok := intParam(c, "id")
	if !ok {
		return nil, notFound(c)
	}
	f, exists := b.families[id]
	if !exists || !b.isMember(id, currentUser(c)) {
		return nil, notFound(c)
	}
	return f, nil
}

func (b *Backend) getFamily(c echo.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	f, err := b.memberFamily(c)
	if f == nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}

func (b *Backend) updateFamily(c echo.Context) error {
	var in families.Input
	if err := bindBody(c, &in); err != nil {
		return detail(c, http.StatusBadRequest, "Malformed request.")
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	f, err := b.memberFamily(c)
	if f == nil {
		return err
	}
	if strings.TrimSpace(in.Name) != "" {
		f.Name = in.Name
	}
	f.Description = in.Description
	return c.JSON(http.StatusOK, f)
}

func (b *Backend) listMembers(c echo.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	f, err := b.memberFamily(c)
	if f == nil {
		return err
	}
	out := sortedByID(b.memberships, func(m *families.Membership) bool {
		return m.Family.ID == f.ID && m.Status == families.StatusAccepted
	})
	return c.JSON(http.StatusOK, out)
}

func (b *Backend) invite(c echo.Context) error {
	var in families.InviteRequest
	if err := bindBody(c, &in); err != nil {
		return detail(c, http.StatusBadRequest, "Malformed request.")
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	id, _ := intParam(c, "id")
	f, exists := b.families[id]
	if !exists || !b.isAdmin(id, currentUser(c)) {
		return notFound(c)
	}
	invitedID, known := b.emails[strings.ToLower(in.Email)]
	if !known {
		return fieldError(c, "email", "User with this email does not exist.")
	}

	for _, m := range b.memberships {
		if m.Family.ID != f.ID || m.User.ID != invitedID {
			continue
		}
		switch m.Status {
		case families.StatusAccepted:
			return detail(c, http.StatusBadRequest, "User is already a member of this family.")
		case families.StatusPending:
			return detail(c, http.StatusBadRequest, "User already has a pending invitation to this family.")
		default:
			m.Status = families.StatusPending
			m.InvitedBy = b.profileOf(currentUser(c))
			m.InvitedAt = b.now().UTC()
			m.RespondedAt = nil
			return detail(c, http.StatusCreated, fmt.Sprintf("Invitation sent to %s.", in.Email))
		}
	}
	b.addMembership(f, invitedID, currentUser(c), families.RoleMember, families.StatusPending)
	return detail(c, http.StatusCreated, fmt.Sprintf("Invitation sent to %s.", in.Email))
}

func (b *Backend) listInvitations(c echo.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	user := currentUser(c)
	out := sortedByID(b.memberships, func(m *families.Membership) bool {
		return m.User.ID == user && m.Status == families.StatusPending
	})
	return c.JSON(http.StatusOK, out)
}

func (b *Backend) respondInvitation(c echo.Context) error {
	var in families.RespondRequest
	if err := bindBody(c, &in); err != nil {
		return detail(c, http.StatusBadRequest, "Malformed request.")
	}
	if in.Response != families.Accept && in.Response != families.Reject {
		return fieldError(c, "response", fmt.Sprintf("%q is not a valid choice.", in.Response))
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	id, _ := intParam(c, "id")
	m, exists := b.memberships[id]
	if !exists || m.User.ID != currentUser(c) || m.Status != families.StatusPending {
		return notFound(c)
	}
	if in.Response == families.Accept {
		m.Status = families.StatusAccepted
	} else {
		m.Status = families.StatusRejected
	}
	m.RespondedAt = utils.Ptr(b.now().UTC())
	return detail(c, http.StatusOK, fmt.Sprintf("Invitation %sed.", in.Response))
}

// targetMember resolves the :member membership of an admin's family, or writes an error.
func (b *Backend) targetMember(c echo.Context) (*families.Membership, error) {
	familyID, _ := intParam(c, "id")
	memberID, _ := intParam(c, "member")
	if _, exists := b.families[familyID]; !exists || !b.isAdmin(familyID, currentUser(c)) {
		return nil, notFound(c)
	}
	m, exists := b.memberships[memberID]
	if !exists || m.Family.ID != familyID || m.Status != families.StatusAccepted {
		return nil, notFound(c)
	}
	return m, nil
}

func (b *Backend) removeMember(c echo.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	m, err := b.targetMember(c)
	if m == nil {
		return err
	}
	if m.Role == families.RoleAdmin && b.countMembers(m.Family.ID, families.RoleAdmin) <= 1 {
		return detail(c, http.StatusBadRequest, "Cannot remove the last admin of the family.")
	}
	delete(b.memberships, m.ID)
	return c.NoContent(http.StatusNoContent)
}

func (b *Backend) promoteMember(c echo.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	m, err := b.targetMember(c)
	if m == nil {
		return err
	}
	if m.Role == families.RoleAdmin {
		return detail(c, http.StatusBadRequest, "User is already an admin.")
	}
	m.Role = families.RoleAdmin
	return detail(c, http.StatusOK, "Member promoted to admin.")
}

func (b *Backend) leaveFamily(c echo.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	familyID, _ := intParam(c, "id")
	user := currentUser(c)
	m := b.membership(familyID, user, families.StatusAccepted)
	if m == nil {
		return notFound(c)
	}
	if m.Role == families.RoleAdmin && b.countMembers(familyID, families.RoleAdmin) <= 1 && b.countMembers(familyID, "") > 1 {
		return detail(c, http.StatusBadRequest, "You are the only admin. Please promote another member to admin before leaving.")
	}

	delete(b.memberships, m.ID)
	if m.Family.CreatedBy != nil && m.Family.CreatedBy.ID == user && b.countMembers(familyID, "") == 0 {
		b.deleteFamily(familyID)
		return detail(c, http.StatusOK, "You have left the family. The family has been deleted as there are no members left.")
	}
	return detail(c, http.StatusOK, "You have left the family.")
}

// deleteFamily cascades to memberships, budgets, transactions and goals.
func (b *Backend) deleteFamily(familyID int) {
	delete(b.families, familyID)
	for id, m := range b.memberships {
		if m.Family.ID == familyID {
			delete(b.memberships, id)
		}
	}
	for id, bd := range b.budgets {
		if bd.Family.ID == familyID {
			b.deleteBudgetCascade(id)
		}
	}
	for id, g := range b.goals {
		if g.Family.ID == familyID {
			delete(b.goals, id)
		}
	}
}
