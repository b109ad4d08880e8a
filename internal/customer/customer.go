// Package customer implements the customer resource: a small CRUD service
// over PostgreSQL, gated by the auth layer at the HTTP boundary.
package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound       = errors.New("customer: not found")
	ErrDuplicateEmail = errors.New("customer: email already exists")
	ErrInvalidInput   = errors.New("customer: invalid input")
)

// Customer is the stored resource.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Age       int       `json:"age"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input carries create/update fields.
type Input struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Age   int    `json:"age"`
}

// Store describes customer persistence.
type Store interface {
	List(ctx context.Context) ([]Customer, error)
	Get(ctx context.Context, id int64) (Customer, error)
	Create(ctx context.Context, in Input) (Customer, error)
	Update(ctx context.Context, id int64, in Input) (Customer, error)
	Delete(ctx context.Context, id int64) error
}

// Service validates input and delegates to the store.
type Service struct {
	store Store
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("customer: store is required")
	}
	return &Service{store: store}, nil
}

func (s *Service) List(ctx context.Context) ([]Customer, error) {
	return s.store.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (Customer, error) {
	if id <= 0 {
		return Customer{}, fmt.Errorf("%w: id must be positive", ErrInvalidInput)
	}
	return s.store.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, in Input) (Customer, error) {
	norm, err := validate(in)
	if err != nil {
		return Customer{}, err
	}
	return s.store.Create(ctx, norm)
}

func (s *Service) Update(ctx context.Context, id int64, in Input) (Customer, error) {
	if id <= 0 {
		return Customer{}, fmt.Errorf("%w: id must be positive", ErrInvalidInput)
	}
	norm, err := validate(in)
	if err != nil {
		return Customer{}, err
	}
	return s.store.Update(ctx, id, norm)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidInput)
	}
	return s.store.Delete(ctx, id)
}

func validate(in Input) (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Name == "" {
		return Input{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if at := strings.Index(in.Email, "@"); in.Email == "" || at <= 0 || at == len(in.Email)-1 {
		return Input{}, fmt.Errorf("%w: email is malformed", ErrInvalidInput)
	}
	if in.Age < 0 || in.Age > 150 {
		return Input{}, fmt.Errorf("%w: age is out of range", ErrInvalidInput)
	}
	return in, nil
}
