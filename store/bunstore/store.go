// Package bunstore provides a bun backed identity.UserStore.
package bunstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/uptrace/bun"
)

// Store implements identity.UserStore on a bun.DB.
type Store struct {
	db *bun.DB
}

var _ identity.UserStore = (*Store)(nil)

// New returns a Store on the given database handle.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// CreateTableIfNotExists provisions the auth_users table. Meant for tests
// and embedded deployments, production schemas are migration managed.
func (s *Store) CreateTableIfNotExists(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*identity.AuthUser)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to create auth_users table")
	}
	return nil
}

// GetByEmail fetches a record by email, (nil, nil) when absent.
func (s *Store) GetByEmail(ctx context.Context, email string) (*identity.AuthUser, error) {
	user := new(identity.AuthUser)
	err := s.db.NewSelect().
		Model(user).
		Where("email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to select user by email")
	}
	return user, nil
}

// Get fetches a record by id or email, (nil, nil) when absent. Identifiers
// containing @ are treated as emails, everything else as record ids.
func (s *Store) Get(ctx context.Context, idOrEmail string) (*identity.AuthUser, error) {
	if strings.Contains(idOrEmail, "@") {
		return s.GetByEmail(ctx, idOrEmail)
	}

	user := new(identity.AuthUser)
	err := s.db.NewSelect().
		Model(user).
		Where("id = ?", idOrEmail).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to select user by id")
	}
	return user, nil
}

// Upsert inserts or updates by primary key, stamping timestamps.
func (s *Store) Upsert(ctx context.Context, user *identity.AuthUser) (*identity.AuthUser, error) {
	if user == nil || user.ID == "" {
		return nil, errors.New("user with id required", errors.CategoryBadInput)
	}

	now := time.Now()
	user.UpdatedAt = &now

	existing, err := s.Get(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		user.CreatedAt = &now
		if _, err := s.db.NewInsert().Model(user).Exec(ctx); err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to insert user")
		}
		return user, nil
	}

	user.CreatedAt = existing.CreatedAt
	if _, err := s.db.NewUpdate().Model(user).WherePK().Exec(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to update user")
	}
	return user, nil
}

// Remove deletes a record by id or email, reporting whether it existed.
func (s *Store) Remove(ctx context.Context, idOrEmail string) (bool, error) {
	user, err := s.Get(ctx, idOrEmail)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, nil
	}

	if _, err := s.db.NewDelete().Model(user).WherePK().Exec(ctx); err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to delete user")
	}
	return true, nil
}

// List returns records matching the query. Email and paging filter in SQL;
// tags filter in Go since the column is stored as a JSON document.
func (s *Store) List(ctx context.Context, query identity.ListQuery) ([]*identity.AuthUser, error) {
	var users []*identity.AuthUser

	q := s.db.NewSelect().
		Model(&users).
		Order("created_at ASC")

	if query.Email != "" {
		q = q.Where("email = ?", query.Email)
	}
	if query.Limit > 0 && len(query.Tags) == 0 {
		q = q.Limit(query.Limit)
	}
	if query.Offset > 0 && len(query.Tags) == 0 {
		q = q.Offset(query.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to list users")
	}

	if len(query.Tags) == 0 {
		return users, nil
	}

	filtered := filterByTags(users, query.Tags)
	return page(filtered, query.Limit, query.Offset), nil
}

// Count returns the number of records matching the query.
func (s *Store) Count(ctx context.Context, query identity.ListQuery) (int, error) {
	if len(query.Tags) > 0 {
		users, err := s.List(ctx, identity.ListQuery{Email: query.Email, Tags: query.Tags})
		if err != nil {
			return 0, err
		}
		return len(users), nil
	}

	q := s.db.NewSelect().Model((*identity.AuthUser)(nil))
	if query.Email != "" {
		q = q.Where("email = ?", query.Email)
	}

	n, err := q.Count(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to count users")
	}
	return n, nil
}

func filterByTags(users []*identity.AuthUser, tags []string) []*identity.AuthUser {
	var out []*identity.AuthUser
	for _, u := range users {
		match := true
		for _, tag := range tags {
			if !u.HasTag(tag) {
				match = false
				break
			}
		}
		if match {
			out = append(out, u)
		}
	}
	return out
}

func page(users []*identity.AuthUser, limit, offset int) []*identity.AuthUser {
	if offset > 0 {
		if offset >= len(users) {
			return nil
		}
		users = users[offset:]
	}
	if limit > 0 && limit < len(users) {
		users = users[:limit]
	}
	return users
}
