package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/virtlab-edu/virtlab-go/internal/domain"
	"github.com/virtlab-edu/virtlab-go/internal/repo"
)

type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	if db == nil {
		return nil
	}
	return &UserStore{db: db}
}

// UpsertByGoogleSubject inserts the user on first login and refreshes email
// and name on subsequent ones. Role and credits are never overwritten here.
func (s *UserStore) UpsertByGoogleSubject(ctx context.Context, user domain.User) (domain.User, error) {
	if s == nil || s.db == nil {
		return domain.User{}, fmt.Errorf("user store not initialized")
	}
	if err := user.Validate(); err != nil {
		return domain.User{}, err
	}
	if user.Credits == 0 {
		user.Credits = domain.DefaultCredits
	}
	row := s.db.QueryRowContext(
		ctx,
		`INSERT INTO users (user_id, google_subject, email, first_name, last_name, role, credits, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (google_subject) DO UPDATE
		 SET email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name
		 RETURNING user_id, google_subject, email, first_name, last_name, role, credits, created_at`,
		strings.TrimSpace(user.ID),
		strings.TrimSpace(user.GoogleSubject),
		strings.TrimSpace(user.Email),
		strings.TrimSpace(user.FirstName),
		strings.TrimSpace(user.LastName),
		nullIfEmpty(user.Role),
		user.Credits,
		normalizeTime(user.CreatedAt),
	)
	return scanUser(row.Scan)
}

func (s *UserStore) Get(ctx context.Context, id string) (domain.User, error) {
	if s == nil || s.db == nil {
		return domain.User{}, fmt.Errorf("user store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.User{}, fmt.Errorf("user id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT user_id, google_subject, email, first_name, last_name, role, credits, created_at
		 FROM users
		 WHERE user_id = $1`,
		id,
	)
	return scanUser(row.Scan)
}

// SetRole records the first-login role choice; it fails with ErrNotFound when
// the user is missing or a role is already set.
func (s *UserStore) SetRole(ctx context.Context, id, role string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("user store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("user id is required")
	}
	if !domain.ValidRole(role) {
		return fmt.Errorf("role must be student or admin")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE users SET role = $2 WHERE user_id = $1 AND role IS NULL`,
		id,
		role,
	)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set role rows affected: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var user domain.User
	var role sql.NullString
	if err := scan(&user.ID, &user.GoogleSubject, &user.Email, &user.FirstName, &user.LastName,
		&role, &user.Credits, &user.CreatedAt); err != nil {
		return domain.User{}, handleNotFound(err)
	}
	if role.Valid {
		user.Role = role.String
	}
	return user, nil
}
