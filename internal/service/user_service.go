package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/invoyq/invoyq-api/internal/models"
	appErrors "github.com/invoyq/invoyq-api/pkg/errors"
)

type profileRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, update models.UserUpdate) error
	Deactivate(ctx context.Context, id string) error
}

type assetStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Delete(filename string) error
}

// UserService manages account profiles and their uploaded assets.
type UserService struct {
	repo       profileRepository
	storage    assetStorage
	validator  *validator.Validate
	logger     *zap.Logger
	appBaseURL string
}

// NewUserService constructs a UserService instance.
func NewUserService(repo profileRepository, storage assetStorage, validate *validator.Validate, logger *zap.Logger, appBaseURL string) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, storage: storage, validator: validate, logger: logger, appBaseURL: appBaseURL}
}

// Get returns the profile for an account id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "user not found")
	}
	return user, nil
}

// UpdateProfile applies a partial profile update and returns the fresh record.
func (s *UserService) UpdateProfile(ctx context.Context, id string, update models.UserUpdate) (*models.User, error) {
	if update.Website != nil && *update.Website != "" {
		if err := s.validator.Var(*update.Website, "url"); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid website url")
		}
	}
	if err := s.repo.UpdateProfile(ctx, id, update); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return s.Get(ctx, id)
}

// allowed upload extensions for avatars and logos
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

// UploadAvatar stores the avatar image and records its public URL.
func (s *UserService) UploadAvatar(ctx context.Context, id, filename string, r io.Reader) (*models.User, error) {
	url, err := s.storeImage(id, "avatars", filename, r)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProfile(ctx, id, models.UserUpdate{AvatarURL: &url}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save avatar")
	}
	return s.Get(ctx, id)
}

// UploadLogo stores the company logo and records its public URL. The logo is
// what appears on generated invoice PDFs.
func (s *UserService) UploadLogo(ctx context.Context, id, filename string, r io.Reader) (*models.User, error) {
	url, err := s.storeImage(id, "logos", filename, r)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProfile(ctx, id, models.UserUpdate{CompanyLogoURL: &url}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save logo")
	}
	return s.Get(ctx, id)
}

// Deactivate soft-deletes the account.
func (s *UserService) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate account")
	}
	return nil
}

func (s *UserService) storeImage(id, kind, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !imageExtensions[ext] {
		return "", appErrors.Clone(appErrors.ErrValidation, "unsupported image type")
	}
	name := fmt.Sprintf("%s/%s_%d%s", kind, id, time.Now().UTC().Unix(), ext)
	stored, err := s.storage.SaveStream(name, r)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store image")
	}
	return strings.TrimRight(s.appBaseURL, "/") + "/static/" + stored, nil
}
