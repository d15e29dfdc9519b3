package auth

import (
	"context"
	"errors"

	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/shared"
)

// Repository defines persistence operations for accounts.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (User, error)
	Create(ctx context.Context, user User) error
	UpdatePassword(ctx context.Context, id string, hash PasswordHash) error
	List(ctx context.Context) ([]User, error)
}

// SQLRepository implements Repository on the users table.
type SQLRepository struct {
	manager *db.Manager
}

// NewRepository constructs the users repository.
func NewRepository(manager *db.Manager) *SQLRepository {
	return &SQLRepository{manager: manager}
}

const userColumns = "id, name, username, password, role, phone, active, created"

func userFromRow(row db.Row) User {
	return User{
		ID:       row.String("id"),
		Name:     row.String("name"),
		Username: row.String("username"),
		Password: ParseHash(row.String("password")),
		Role:     row.String("role"),
		Phone:    row.String("phone"),
		Active:   row.Bool("active"),
		Created:  row.String("created"),
	}
}

// FindByUsername fetches an account by its folded username.
func (r *SQLRepository) FindByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := r.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		row, err := u.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE LOWER(username) = ?", username)
		if errors.Is(err, db.ErrNoRows) {
			return shared.NotFound("auth: find user", "user %s not found", username)
		}
		if err != nil {
			return err
		}
		user = userFromRow(row)
		return nil
	})
	return user, err
}

// Create inserts an account. A taken username is a conflict.
func (r *SQLRepository) Create(ctx context.Context, user User) error {
	return r.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		n, err := u.Count(ctx, "SELECT COUNT(*) FROM users WHERE LOWER(username) = ?", user.Username)
		if err != nil {
			return err
		}
		if n > 0 {
			return shared.Conflict("auth: create user", "username %s already exists", user.Username)
		}
		active := 0
		if user.Active {
			active = 1
		}
		_, err = u.Exec(ctx, db.Insert("users", "id", "name", "username", "password", "role", "phone", "active", "created"),
			user.ID, user.Name, user.Username, user.Password.Value, user.Role, user.Phone, active, user.Created)
		if db.IsConflict(err) {
			return shared.Conflict("auth: create user", "username %s already exists", user.Username)
		}
		return err
	})
}

// UpdatePassword replaces the stored hash.
func (r *SQLRepository) UpdatePassword(ctx context.Context, id string, hash PasswordHash) error {
	return r.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		res, err := u.Exec(ctx, "UPDATE users SET password = ? WHERE id = ?", hash.Value, id)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return shared.NotFound("auth: update password", "user %s not found", id)
		}
		return nil
	})
}

// List returns every account ordered by username.
func (r *SQLRepository) List(ctx context.Context) ([]User, error) {
	var out []User
	err := r.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		rows, err := u.Query(ctx, "SELECT "+userColumns+" FROM users ORDER BY username")
		if err != nil {
			return err
		}
		out = make([]User, 0, len(rows))
		for _, row := range rows {
			out = append(out, userFromRow(row))
		}
		return nil
	})
	return out, err
}

var _ Repository = (*SQLRepository)(nil)
