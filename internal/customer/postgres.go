package customer

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) List(ctx context.Context) ([]Customer, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, email, age, created_at, updated_at from customers order by id asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Age, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (s *PGStore) Get(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := s.db.QueryRowContext(ctx,
		`select id, name, email, age, created_at, updated_at from customers where id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Age, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, err
	}
	return c, nil
}

func (s *PGStore) Create(ctx context.Context, in Input) (Customer, error) {
	var c Customer
	err := s.db.QueryRowContext(ctx,
		`insert into customers(name, email, age) values($1,$2,$3)
		 returning id, name, email, age, created_at, updated_at`,
		in.Name, in.Email, in.Age).
		Scan(&c.ID, &c.Name, &c.Email, &c.Age, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Customer{}, ErrDuplicateEmail
		}
		return Customer{}, err
	}
	return c, nil
}

func (s *PGStore) Update(ctx context.Context, id int64, in Input) (Customer, error) {
	var c Customer
	err := s.db.QueryRowContext(ctx,
		`update customers set name=$2, email=$3, age=$4, updated_at=now()
		 where id=$1
		 returning id, name, email, age, created_at, updated_at`,
		id, in.Name, in.Email, in.Age).
		Scan(&c.ID, &c.Name, &c.Email, &c.Age, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		if isUniqueViolation(err) {
			return Customer{}, ErrDuplicateEmail
		}
		return Customer{}, err
	}
	return c, nil
}

func (s *PGStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from customers where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
