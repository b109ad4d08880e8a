package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"clientdesk.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore { return &userStore{db: s.db} }
func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore {
	return &refreshTokenStore{db: s.db}
}
func (s *PGStore) ConfirmationTokens(context.Context) ConfirmationTokenStore {
	return &confirmationTokenStore{db: s.db}
}

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, first_name, last_name, password_hash, role, enabled, locked)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, string(u.Role), u.Enabled, u.Locked,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`select id, email, first_name, last_name, password_hash, role, enabled, locked, created_at, confirmed_at
		 from users where id=$1`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`select id, email, first_name, last_name, password_hash, role, enabled, locked, created_at, confirmed_at
		 from users where email=$1`, email))
}

func (s *userStore) scanUser(row *sql.Row) (*User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
		&role, &u.Enabled, &u.Locked, &u.CreatedAt, &u.ConfirmedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

func (s *userStore) MarkConfirmed(ctx context.Context, userID string, when time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set confirmed_at=$2 where id=$1 and confirmed_at is null`,
		userID, when.UTC())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlreadyConfirmed
	}
	return nil
}

// Refresh token store ------------------------------------------------------
type refreshTokenStore struct{ db *sql.DB }

func (s *refreshTokenStore) Create(ctx context.Context, tok *RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, expires_at)
		 values($1,$2,$3,$4)`,
		tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt.UTC(),
	)
	return err
}

func (s *refreshTokenStore) Find(ctx context.Context, id string) (*RefreshToken, error) {
	var tok RefreshToken
	err := s.db.QueryRowContext(ctx,
		`select id, user_id, token_hash, expires_at, created_at, revoked
		 from refresh_tokens where id=$1`, id).
		Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.ExpiresAt, &tok.CreatedAt, &tok.Revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tok, nil
}

func (s *refreshTokenStore) MarkRevoked(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where id=$1`, id)
	return err
}

func (s *refreshTokenStore) MarkRevokedByUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where user_id=$1 and revoked=false`, userID)
	return err
}

// Confirmation token store -------------------------------------------------
type confirmationTokenStore struct{ db *sql.DB }

func (s *confirmationTokenStore) Create(ctx context.Context, tok *ConfirmationToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into confirmation_tokens(token, user_id, expires_at)
		 values($1,$2,$3)`,
		tok.Token, tok.UserID, tok.ExpiresAt.UTC(),
	)
	return err
}

func (s *confirmationTokenStore) Find(ctx context.Context, token string) (*ConfirmationToken, error) {
	var tok ConfirmationToken
	err := s.db.QueryRowContext(ctx,
		`select token, user_id, expires_at, created_at, confirmed_at
		 from confirmation_tokens where token=$1`, token).
		Scan(&tok.Token, &tok.UserID, &tok.ExpiresAt, &tok.CreatedAt, &tok.ConfirmedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tok, nil
}

func (s *confirmationTokenStore) MarkConfirmed(ctx context.Context, token string, when time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update confirmation_tokens set confirmed_at=$2 where token=$1 and confirmed_at is null`,
		token, when.UTC())
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
