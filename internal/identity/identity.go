// Package identity resolves the already-authenticated user id into the
// session descriptor every command receives: display name, role, region and
// the capability set derived from them. Authentication itself happens
// upstream; this package only looks profiles up.
package identity

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/comercialav/services/deliveries/internal/delivery"
	"example.com/comercialav/services/deliveries/internal/models"
)

// Session is the per-request identity handed to commands and views
type Session struct {
	UserID      string
	DisplayName string
	Role        delivery.Role
	Island      delivery.IslandCode
	Caps        delivery.Capabilities
}

// UpdatedByLabel is the display label recorded on audit fields and
// notification payloads.
func (s Session) UpdatedByLabel() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return "Usuario"
}

// Provider resolves user ids into sessions
type Provider interface {
	SessionFor(ctx context.Context, userID string) (Session, error)
}

// Service is the database-backed Provider
type Service struct {
	db *gorm.DB
}

// NewService creates a profile lookup service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// SessionFor loads the user profile and derives the session. A user without
// a profile falls back to the purchasing role.
func (s *Service) SessionFor(ctx context.Context, userID string) (Session, error) {
	if userID == "" {
		return Session{}, errors.New("user id is required")
	}

	var profile models.UserProfile
	err := s.db.WithContext(ctx).First(&profile, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn().Str("user_id", userID).Msg("No user profile found, falling back to purchasing role")
			return sessionFrom(userID, "", models.RoleCompras, nil), nil
		}
		return Session{}, errors.Wrap(err, "failed to load user profile")
	}

	return sessionFrom(profile.ID, profile.DisplayName, profile.Role, profile.Island), nil
}

// StaticProvider hands out the same role and region for every user id. Used
// with the in-memory store driver, where no profile table exists.
type StaticProvider struct {
	Role   delivery.Role
	Island delivery.IslandCode
}

// SessionFor derives a session from the static role assignment
func (p StaticProvider) SessionFor(ctx context.Context, userID string) (Session, error) {
	if userID == "" {
		return Session{}, errors.New("user id is required")
	}
	return Session{
		UserID: userID,
		Role:   p.Role,
		Island: p.Island,
		Caps:   delivery.CapabilitiesFor(p.Role, p.Island),
	}, nil
}

func sessionFrom(userID, displayName, rawRole string, island *string) Session {
	role := delivery.RoleFromProfile(rawRole)
	var code delivery.IslandCode
	if island != nil {
		code = delivery.IslandCode(*island)
	}
	return Session{
		UserID:      userID,
		DisplayName: displayName,
		Role:        role,
		Island:      code,
		Caps:        delivery.CapabilitiesFor(role, code),
	}
}
