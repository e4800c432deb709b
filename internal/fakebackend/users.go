package fakebackend

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/family-budget-client/token"
	"github.com/jrsteele09/family-budget-client/users"
	"github.com/labstack/echo/v4"
)

// AddUser creates an account directly, bypassing registration checks.
func (b *Backend) AddUser(email, password, firstName, lastName string) users.Profile {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.addAccount(email, password, firstName, lastName).profile()
}

func (b *Backend) addAccount(email, password, firstName, lastName string) *account {
	a := &account{
		id:        b.newID(),
		email:     strings.ToLower(email),
		password:  password,
		firstName: firstName,
		lastName:  lastName,
	}
	b.accounts[a.id] = a
	b.emails[a.email] = a.id
	return a
}

func (a *account) profile() users.Profile {
	return users.Profile{ID: a.id, Email: a.email, FirstName: a.firstName, LastName: a.lastName}
}

func (b *Backend) profileOf(id int) *users.Profile {
	a, ok := b.accounts[id]
	if !ok {
		return nil
	}
	p := a.profile()
	return &p
}

func (b *Backend) register(c echo.Context) error {
	var in users.Registration
	if err := bindBody(c, &in); err != nil {
		return detail(c, http.StatusBadRequest, "Malformed request.")
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	errs := echo.Map{}
	if strings.TrimSpace(in.Email) == "" {
		errs["email"] = []string{"This field is required."}
	} else if _, taken := b.emails[strings.ToLower(in.Email)]; taken {
		errs["email"] = []string{"user with this email already exists."}
	}
	if len(in.Password) < users.MinPasswordLength {
		errs["password"] = []string{"This password is too short. It must contain at least 8 characters."}
	}
	if in.Password != in.PasswordConfirm {
		errs["non_field_errors"] = []string{"Password fields didn't match."}
	}
	if len(errs) > 0 {
		return c.JSON(http.StatusBadRequest, errs)
	}

	a := b.addAccount(in.Email, in.Password, in.FirstName, in.LastName)
	return c.JSON(http.StatusCreated, a.profile())
}

func (b *Backend) obtainToken(c echo.Context) error {
	var in token.LoginRequest
	if err := bindBody(c, &in); err != nil {
		return detail(c, http.StatusBadRequest, "Malformed request.")
	}

	b.lock.Lock()
	id, ok := b.emails[strings.ToLower(in.Email)]
	valid := ok && b.accounts[id].password == in.Password
	accessGen, refreshGen := b.accessGen, b.refreshGen
	b.lock.Unlock()

	if !valid {
		return detail(c, http.StatusUnauthorized, "No active account found with the given credentials")
	}

	access, err := b.issue(id, "access", b.accessTTL, accessGen)
	if err != nil {
		return detail(c, http.StatusInternalServerError, err.Error())
	}
	refresh, err := b.issue(id, "refresh", b.refreshTTL, refreshGen)
	if err != nil {
		return detail(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, token.Pair{Access: access, Refresh: refresh})
}

func (b *Backend) refreshToken(c echo.Context) error {
	var in token.RefreshRequest
	if err := bindBody(c, &in); err != nil || in.Refresh == "" {
		return fieldError(c, "refresh", "This field is required.")
	}

	b.lock.Lock()
	accessGen, refreshGen := b.accessGen, b.refreshGen
	b.lock.Unlock()

	userID, ok := b.verify(in.Refresh, "refresh", refreshGen)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "Token is invalid or expired", "code": "token_not_valid"})
	}
	access, err := b.issue(userID, "access", b.accessTTL, accessGen)
	if err != nil {
		return detail(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, token.RefreshResponse{Access: access})
}

func (b *Backend) getProfile(c echo.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	return c.JSON(http.StatusOK, b.profileOf(currentUser(c)))
}

func (b *Backend) updateProfile(c echo.Context) error {
	var in users.ProfileUpdate
	if err := bindBody(c, &in); err != nil {
		return detail(c, http.StatusBadRequest, "Malformed request.")
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	a := b.accounts[currentUser(c)]
	if in.Email != "" && !strings.EqualFold(in.Email, a.email) {
		if _, taken := b.emails[strings.ToLower(in.Email)]; taken {
			return fieldError(c, "email", "user with this email already exists.")
		}
		delete(b.emails, a.email)
		a.email = strings.ToLower(in.Email)
		b.emails[a.email] = a.id
	}
	a.firstName = in.FirstName
	a.lastName = in.LastName
	return c.JSON(http.StatusOK, a.profile())
}

func (b *Backend) changePassword(c echo.Context) error {
	var in users.PasswordChange
	if err := bindBody(c, &in); err != nil {
		return detail(c, http.StatusBadRequest, "Malformed request.")
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	a := b.accounts[currentUser(c)]
	if a.password != in.OldPassword {
		return fieldError(c, "old_password", "Wrong password.")
	}
	if len(in.NewPassword) < users.MinPasswordLength {
		return fieldError(c, "new_password", "This password is too short. It must contain at least 8 characters.")
	}
	a.password = in.NewPassword
	return c.JSON(http.StatusOK, echo.Map{"message": "Password changed successfully."})
}
