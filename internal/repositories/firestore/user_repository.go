package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/stylehive/api/internal/domain"
	pfirestore "github.com/stylehive/api/internal/platform/firestore"
)

const usersCollection = "users"

// UserRepository stores user profile projections synced from Firebase Auth.
type UserRepository struct {
	users *pfirestore.BaseRepository[userProfileDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	users := pfirestore.NewBaseRepository[userProfileDocument](provider, usersCollection)
	return &UserRepository{users: users}, nil
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if r == nil || r.users == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	doc, err := r.users.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *UserRepository) UpsertProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if r == nil || r.users == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	userID := strings.TrimSpace(profile.ID)
	if userID == "" {
		return domain.UserProfile{}, errors.New("user repository: user id is required")
	}

	doc := newUserProfileDocument(profile)
	if _, err := r.users.Set(ctx, userID, doc); err != nil {
		return domain.UserProfile{}, err
	}
	return doc.toDomain(userID), nil
}

type userProfileDocument struct {
	DisplayName  string    `firestore:"displayName,omitempty"`
	Email        string    `firestore:"email,omitempty"`
	PhoneNumber  string    `firestore:"phoneNumber,omitempty"`
	PhotoURL     string    `firestore:"photoUrl,omitempty"`
	Roles        []string  `firestore:"roles,omitempty"`
	IsActive     bool      `firestore:"isActive"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
	LastSyncTime time.Time `firestore:"lastSyncTime"`
}

func newUserProfileDocument(profile domain.UserProfile) userProfileDocument {
	return userProfileDocument{
		DisplayName:  strings.TrimSpace(profile.DisplayName),
		Email:        strings.TrimSpace(profile.Email),
		PhoneNumber:  strings.TrimSpace(profile.PhoneNumber),
		PhotoURL:     strings.TrimSpace(profile.PhotoURL),
		Roles:        profile.Roles,
		IsActive:     profile.IsActive,
		CreatedAt:    profile.CreatedAt.UTC(),
		UpdatedAt:    profile.UpdatedAt.UTC(),
		LastSyncTime: profile.LastSyncTime.UTC(),
	}
}

func (d userProfileDocument) toDomain(id string) domain.UserProfile {
	return domain.UserProfile{
		ID:           id,
		DisplayName:  d.DisplayName,
		Email:        d.Email,
		PhoneNumber:  d.PhoneNumber,
		PhotoURL:     d.PhotoURL,
		Roles:        d.Roles,
		IsActive:     d.IsActive,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		LastSyncTime: d.LastSyncTime,
	}
}
