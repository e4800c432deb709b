package families_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/jrsteele09/family-budget-client/apiclient"
	"github.com/jrsteele09/family-budget-client/families"
	"github.com/jrsteele09/family-budget-client/internal/errors"
	"github.com/jrsteele09/family-budget-client/internal/fakebackend"
	"github.com/jrsteele09/family-budget-client/session"
	"github.com/jrsteele09/family-budget-client/token"
	tokenrepofake "github.com/jrsteele09/family-budget-client/token/repofake"
	"github.com/jrsteele09/family-budget-client/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const (
	testUserEmail    = "owner@example.com"
	testUserPassword = "password123"
	otherEmail       = "member@example.com"
	otherPassword    = "password456"
)

type testFixture struct {
	backend *fakebackend.Backend
	server  *httptest.Server
	storage *tokenrepofake.FakeTokenStore
	store   *session.Store
	service *families.Service
	owner   users.Profile
	other   users.Profile
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		backend: fakebackend.New(),
		storage: tokenrepofake.NewFakeTokenStore(),
	}
	f.owner = f.backend.AddUser(testUserEmail, testUserPassword, "Olive", "Owner")
	f.other = f.backend.AddUser(otherEmail, otherPassword, "Max", "Member")
	f.server = httptest.NewServer(f.backend)
	t.Cleanup(f.server.Close)

	client := apiclient.New(f.server.URL+fakebackend.APIPrefix, apiclient.WithRegisterer(prometheus.NewRegistry()))
	f.store = session.New(context.Background(), client, f.storage)
	client.SetAuthenticator(f.store)
	f.service = families.NewService(client, f.storage)

	f.loginAs(t, testUserEmail, testUserPassword)
	return f
}

func (f *testFixture) loginAs(t *testing.T, email, password string) {
	t.Helper()
	res := f.store.Login(context.Background(), email, password)
	require.True(t, res.Success, res.Message)
}

func TestService_CreateListGet(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, families.Input{Name: "Smiths", Description: "Household"})
	require.NoError(t, err)
	require.Equal(t, "Smiths", created.Name)
	require.Equal(t, f.owner.ID, created.CreatedBy.ID)

	list, err := f.service.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, created.ID, list[0].ID)

	got, err := f.service.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Household", got.Description)

	updated, err := f.service.Update(ctx, created.ID, families.Input{Name: "Smith family"})
	require.NoError(t, err)
	require.Equal(t, "Smith family", updated.Name)

	members, err := f.service.Members(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.True(t, members[0].IsAdmin())
}

func TestService_CreateValidation(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Create(context.Background(), families.Input{Name: "  "})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	require.Equal(t, "Family name is required", families.CreateMessage(err))
	require.Equal(t, 0, f.backend.Hits(http.MethodPost, "/families/"))
}

func TestService_GetUnknownFamily(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Get(context.Background(), 999)
	require.Equal(t, http.StatusNotFound, apiclient.StatusCode(err))
	require.Equal(t, "Not found.", apiclient.Message(err, "fallback", "detail"))
}

func TestService_InvitationFlow(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	fam, err := f.service.Create(ctx, families.Input{Name: "Smiths"})
	require.NoError(t, err)

	msg, err := f.service.Invite(ctx, fam.ID, otherEmail)
	require.NoError(t, err)
	require.Equal(t, "Invitation sent to "+otherEmail+".", msg)

	_, err = f.service.Invite(ctx, fam.ID, otherEmail)
	require.Equal(t, "User already has a pending invitation to this family.", families.InviteMessage(err))

	_, err = f.service.Invite(ctx, fam.ID, "nobody@example.com")
	require.Equal(t, "User with this email does not exist.", families.InviteMessage(err))

	f.store.Logout()
	f.loginAs(t, otherEmail, otherPassword)

	invitations, err := f.service.Invitations(ctx)
	require.NoError(t, err)
	require.Len(t, invitations, 1)
	require.Equal(t, families.StatusPending, invitations[0].Status)
	require.Equal(t, fam.ID, invitations[0].Family.ID)

	_, err = f.service.Respond(ctx, invitations[0].ID, "maybe")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	msg, err = f.service.Respond(ctx, invitations[0].ID, families.Accept)
	require.NoError(t, err)
	require.Equal(t, "Invitation accepted.", msg)

	list, err := f.service.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	members, err := f.service.Members(ctx, fam.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
}

func TestService_MemberManagement(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	fam := f.backend.AddFamily(f.owner.ID, "Smiths")
	membership := f.backend.AddMember(fam.ID, f.other.ID)

	require.NoError(t, f.service.PromoteMember(ctx, fam.ID, membership.ID))
	members, err := f.service.Members(ctx, fam.ID)
	require.NoError(t, err)
	for _, m := range members {
		require.True(t, m.IsAdmin())
	}

	require.NoError(t, f.service.RemoveMember(ctx, fam.ID, membership.ID))
	members, err = f.service.Members(ctx, fam.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)

	err = f.service.RemoveMember(ctx, fam.ID, members[0].ID)
	require.Equal(t, http.StatusBadRequest, apiclient.StatusCode(err))
	require.Equal(t, "Cannot remove the last admin of the family.", apiclient.Message(err, "", "detail"))
}

func TestService_Leave(t *testing.T) {
	t.Run("only admin with members cannot leave", func(t *testing.T) {
		f := setupTestFixture(t)
		fam := f.backend.AddFamily(f.owner.ID, "Smiths")
		f.backend.AddMember(fam.ID, f.other.ID)

		_, err := f.service.Leave(context.Background(), fam.ID)
		require.Equal(t, "You are the only admin. Please promote another member to admin before leaving.",
			apiclient.Message(err, "", "detail"))
	})

	t.Run("last member deletes the family and clears selection", func(t *testing.T) {
		f := setupTestFixture(t)
		ctx := context.Background()
		fam := f.backend.AddFamily(f.owner.ID, "Smiths")
		require.NoError(t, f.service.Select(ctx, fam.ID))

		msg, err := f.service.Leave(ctx, fam.ID)
		require.NoError(t, err)
		require.Contains(t, msg, "The family has been deleted")

		_, err = f.storage.Get(ctx, token.SelectedFamilyIDKey)
		require.True(t, errors.Is(err, errors.ErrKeyNotFound))

		list, err := f.service.List(ctx)
		require.NoError(t, err)
		require.Empty(t, list)
	})
}

func TestService_Selected(t *testing.T) {
	t.Run("defaults to the first family and persists it", func(t *testing.T) {
		f := setupTestFixture(t)
		ctx := context.Background()
		first := f.backend.AddFamily(f.owner.ID, "First")
		f.backend.AddFamily(f.owner.ID, "Second")

		got, err := f.service.Selected(ctx)
		require.NoError(t, err)
		require.Equal(t, first.ID, got.ID)

		stored, err := f.storage.Get(ctx, token.SelectedFamilyIDKey)
		require.NoError(t, err)
		require.Equal(t, strconv.Itoa(first.ID), stored)
	})

	t.Run("uses the stored choice", func(t *testing.T) {
		f := setupTestFixture(t)
		ctx := context.Background()
		f.backend.AddFamily(f.owner.ID, "First")
		second := f.backend.AddFamily(f.owner.ID, "Second")
		require.NoError(t, f.service.Select(ctx, second.ID))

		got, err := f.service.Selected(ctx)
		require.NoError(t, err)
		require.Equal(t, second.ID, got.ID)
	})

	t.Run("stale choice falls back to the first family", func(t *testing.T) {
		f := setupTestFixture(t)
		ctx := context.Background()
		first := f.backend.AddFamily(f.owner.ID, "First")
		require.NoError(t, f.service.Select(ctx, 4242))

		got, err := f.service.Selected(ctx)
		require.NoError(t, err)
		require.Equal(t, first.ID, got.ID)
	})

	t.Run("no families", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.service.Selected(context.Background())
		require.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("cleared by logout", func(t *testing.T) {
		f := setupTestFixture(t)
		ctx := context.Background()
		fam := f.backend.AddFamily(f.owner.ID, "First")
		require.NoError(t, f.service.Select(ctx, fam.ID))

		f.store.Logout()

		_, err := f.storage.Get(ctx, token.SelectedFamilyIDKey)
		require.True(t, errors.Is(err, errors.ErrKeyNotFound))
	})
}
