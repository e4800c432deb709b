package users

import (
	"context"

	"github.com/jrsteele09/family-budget-client/apiclient"
	"github.com/pkg/errors"
)

const (
	ProfilePath        = "/users/profile/"
	RegisterPath       = "/users/register/"
	ChangePasswordPath = "/users/change-password/"
)

// ProfileCache receives the profile after a successful edit. The session store implements it.
type ProfileCache interface {
	UpdateCachedProfile(Profile)
}

// Service wraps the profile endpoints.
type Service struct {
	api   apiclient.API
	cache ProfileCache
}

// NewService creates a profile service. cache may be nil.
func NewService(api apiclient.API, cache ProfileCache) *Service {
	return &Service{api: api, cache: cache}
}

func (s *Service) GetProfile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := s.api.Get(ctx, ProfilePath, &p); err != nil {
		return nil, errors.Wrap(err, "[users.Service.GetProfile]")
	}
	return &p, nil
}

// UpdateProfile saves the edit and pushes the server's copy into the cache.
func (s *Service) UpdateProfile(ctx context.Context, update ProfileUpdate) (*Profile, error) {
	var p Profile
	if err := s.api.Put(ctx, ProfilePath, update, &p); err != nil {
		return nil, errors.Wrap(err, "[users.Service.UpdateProfile]")
	}
	if s.cache != nil {
		s.cache.UpdateCachedProfile(p)
	}
	return &p, nil
}

func (s *Service) ChangePassword(ctx context.Context, change PasswordChange) error {
	if err := change.Validate(); err != nil {
		return err
	}
	if err := s.api.Post(ctx, ChangePasswordPath, change, nil); err != nil {
		return errors.Wrap(err, "[users.Service.ChangePassword]")
	}
	return nil
}

// ProfileUpdateMessage is the user-facing text for a failed profile edit.
func ProfileUpdateMessage(err error) string {
	return apiclient.Message(err, "Failed to update profile", "email", "first_name", "last_name", "detail")
}

// PasswordChangeMessage is the user-facing text for a failed password change.
func PasswordChangeMessage(err error) string {
	return apiclient.Message(err, "Failed to change password", "old_password", "new_password", "detail")
}
