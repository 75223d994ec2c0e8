package directory

import (
	"context"
	"errors"

	"backend-tripjournal/internal/db"
)

// Unknown is the display fallback for identities that cannot be resolved.
const Unknown = "Unknown"

var ErrNotFound = errors.New("user not found")

// Service maps between usernames and identities over the users table.
type Service struct {
	db db.Querier
}

func NewService(q db.Querier) *Service {
	return &Service{db: q}
}

func (s *Service) UIDForUsername(ctx context.Context, username string) (string, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id FROM users WHERE username=$1
	`, username)
	var uid string
	if err := row.Scan(&uid); err != nil {
		return "", ErrNotFound
	}
	return uid, nil
}

func (s *Service) UsernameForUID(ctx context.Context, uid string) string {
	row := s.db.QueryRow(ctx, `
		SELECT username FROM users WHERE id=$1
	`, uid)
	var username string
	if err := row.Scan(&username); err != nil || username == "" {
		return Unknown
	}
	return username
}

// DisplayName prefers the profile full name, falls back to the username,
// and finally to the Unknown sentinel.
func (s *Service) DisplayName(ctx context.Context, uid string) string {
	row := s.db.QueryRow(ctx, `
		SELECT username, COALESCE(full_name, '') FROM users WHERE id=$1
	`, uid)
	var username, fullName string
	if err := row.Scan(&username, &fullName); err != nil {
		return Unknown
	}
	if fullName != "" {
		return fullName
	}
	if username != "" {
		return username
	}
	return Unknown
}
