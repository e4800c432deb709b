package families

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jrsteele09/family-budget-client/apiclient"
	"github.com/jrsteele09/family-budget-client/internal/errors"
	"github.com/jrsteele09/family-budget-client/token"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	basePath        = "/families/"
	invitationsPath = "/families/invitations/"
)

func familyPath(id int) string {
	return fmt.Sprintf("/families/%d/", id)
}

func memberPath(familyID, memberID int) string {
	return fmt.Sprintf("/families/%d/members/%d/", familyID, memberID)
}

// Service wraps the family and membership endpoints. It also owns the selected-family
// convenience value in token storage.
type Service struct {
	api     apiclient.API
	storage token.Storage
	logger  zerolog.Logger
}

type Option func(*Service)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(api apiclient.API, storage token.Storage, options ...Option) *Service {
	s := &Service{api: api, storage: storage, logger: log.Logger}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// List returns the families the user has an accepted membership in.
func (s *Service) List(ctx context.Context) ([]Family, error) {
	var out []Family
	if err := s.api.Get(ctx, basePath, &out); err != nil {
		return nil, pkgerrors.Wrap(err, "[families.Service.List]")
	}
	return out, nil
}

// Create makes a family with the caller as its admin.
func (s *Service) Create(ctx context.Context, in Input) (*Family, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, errors.Invalid("name", "Family name is required")
	}
	var out Family
	if err := s.api.Post(ctx, basePath, in, &out); err != nil {
		return nil, pkgerrors.Wrap(err, "[families.Service.Create]")
	}
	return &out, nil
}

func (s *Service) Get(ctx context.Context, id int) (*Family, error) {
	var out Family
	if err := s.api.Get(ctx, familyPath(id), &out); err != nil {
		return nil, pkgerrors.Wrapf(err, "[families.Service.Get] %d", id)
	}
	return &out, nil
}

func (s *Service) Update(ctx context.Context, id int, in Input) (*Family, error) {
	var out Family
	if err := s.api.Put(ctx, familyPath(id), in, &out); err != nil {
		return nil, pkgerrors.Wrapf(err, "[families.Service.Update] %d", id)
	}
	return &out, nil
}

// Members lists the accepted members of a family.
func (s *Service) Members(ctx context.Context, familyID int) ([]Membership, error) {
	var out []Membership
	if err := s.api.Get(ctx, familyPath(familyID)+"members/", &out); err != nil {
		return nil, pkgerrors.Wrapf(err, "[families.Service.Members] %d", familyID)
	}
	return out, nil
}

// Invite sends an invitation to an existing user. It returns the server's acknowledgement.
func (s *Service) Invite(ctx context.Context, familyID int, email string) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", errors.Invalid("email", "Email is required")
	}
	var out DetailResponse
	if err := s.api.Post(ctx, familyPath(familyID)+"invite/", InviteRequest{Email: email}, &out); err != nil {
		return "", pkgerrors.Wrapf(err, "[families.Service.Invite] %d", familyID)
	}
	return out.Detail, nil
}

func (s *Service) RemoveMember(ctx context.Context, familyID, memberID int) error {
	if err := s.api.Delete(ctx, memberPath(familyID, memberID), nil); err != nil {
		return pkgerrors.Wrapf(err, "[families.Service.RemoveMember] %d/%d", familyID, memberID)
	}
	return nil
}

func (s *Service) PromoteMember(ctx context.Context, familyID, memberID int) error {
	if err := s.api.Post(ctx, memberPath(familyID, memberID)+"promote/", nil, nil); err != nil {
		return pkgerrors.Wrapf(err, "[families.Service.PromoteMember] %d/%d", familyID, memberID)
	}
	return nil
}

// Leave removes the caller from a family. The selected family is cleared if it was this one.
func (s *Service) Leave(ctx context.Context, familyID int) (string, error) {
	var out DetailResponse
	if err := s.api.Delete(ctx, familyPath(familyID)+"leave/", &out); err != nil {
		return "", pkgerrors.Wrapf(err, "[families.Service.Leave] %d", familyID)
	}
	if selected, ok := s.storedSelection(ctx); ok && selected == familyID {
		if err := s.storage.Delete(ctx, token.SelectedFamilyIDKey); err != nil {
			s.logger.Warn().Err(err).Msg("failed to clear selected family")
		}
	}
	return out.Detail, nil
}

// Invitations lists the caller's pending invitations.
func (s *Service) Invitations(ctx context.Context) ([]Membership, error) {
	var out []Membership
	if err := s.api.Get(ctx, invitationsPath, &out); err != nil {
		return nil, pkgerrors.Wrap(err, "[families.Service.Invitations]")
	}
	return out, nil
}

func (s *Service) Respond(ctx context.Context, invitationID int, response InvitationResponse) (string, error) {
	if response != Accept && response != Reject {
		return "", errors.Invalid("response", `Response must be "accept" or "reject"`)
	}
	var out DetailResponse
	path := fmt.Sprintf("%s%d/respond/", invitationsPath, invitationID)
	if err := s.api.Post(ctx, path, RespondRequest{Response: response}, &out); err != nil {
		return "", pkgerrors.Wrapf(err, "[families.Service.Respond] %d", invitationID)
	}
	return out.Detail, nil
}

// Selected returns the family budgets and goals are shown for. A stored choice is used when it
// is still one of the user's families; otherwise the first family is chosen and persisted.
func (s *Service) Selected(ctx context.Context) (*Family, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "no families")
	}

	if id, ok := s.storedSelection(ctx); ok {
		for i := range list {
			if list[i].ID == id {
				return &list[i], nil
			}
		}
		s.logger.Debug().Int("family_id", id).Msg("stored family selection is stale")
	}

	first := &list[0]
	if err := s.persistSelection(ctx, first.ID); err != nil {
		return nil, err
	}
	return first, nil
}

// Select stores id as the selected family.
func (s *Service) Select(ctx context.Context, id int) error {
	return s.persistSelection(ctx, id)
}

func (s *Service) persistSelection(ctx context.Context, id int) error {
	if err := s.storage.Set(ctx, token.SelectedFamilyIDKey, strconv.Itoa(id)); err != nil {
		return pkgerrors.Wrap(err, "[families.Service.Select]")
	}
	return nil
}

func (s *Service) storedSelection(ctx context.Context) (int, bool) {
	raw, err := s.storage.Get(ctx, token.SelectedFamilyIDKey)
	if err != nil {
		if !errors.Is(err, errors.ErrKeyNotFound) {
			s.logger.Warn().Err(err).Msg("failed to read selected family")
		}
		return 0, false
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

// CreateMessage is the user-facing text for a failed family creation.
func CreateMessage(err error) string {
	return apiclient.Message(err, "Failed to create family", "name", "description", "detail")
}

// InviteMessage is the user-facing text for a failed invitation.
func InviteMessage(err error) string {
	return apiclient.Message(err, "Failed to send invitation", "email", "detail")
}
