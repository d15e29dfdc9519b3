package customers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/tillpoint/tillpoint/internal/masterdata/shared"
	"github.com/tillpoint/tillpoint/internal/platform/db"
	internalShared "github.com/tillpoint/tillpoint/internal/shared"
)

const columns = `id, name, phone, email, address, notes, created, last_updated`

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Customer, int, error)
	Get(ctx context.Context, id int64) (Customer, error)
	GetByPhone(ctx context.Context, phone string) (Customer, error)
	Create(ctx context.Context, customer Customer) (Customer, error)
	Update(ctx context.Context, id int64, customer Customer) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *db.Manager
}

func NewRepository(manager *db.Manager) Repository {
	return &repository{db: manager}
}

// RecordFromSale makes sure a customer row exists for phone. Existing rows
// only gain a name or email they did not have; nothing is overwritten.
func RecordFromSale(ctx context.Context, u *db.Unit, name, phone, email, now string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil
	}
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if _, err := u.Exec(ctx, db.InsertIgnore("customers", "name", "phone", "email", "created", "last_updated"),
		name, phone, email, now, now); err != nil {
		return err
	}
	_, err := u.Exec(ctx, `UPDATE customers SET
		name = CASE WHEN name IS NULL OR name = '' THEN ? ELSE name END,
		email = CASE WHEN email IS NULL OR email = '' THEN ? ELSE email END,
		last_updated = ?
		WHERE phone = ?`, name, email, now, phone)
	return err
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Customer, int, error) {
	where := ""
	var args []any
	if filters.Search != "" {
		like := "%" + strings.ToLower(filters.Search) + "%"
		where = ` WHERE (LOWER(name) LIKE ? OR phone LIKE ? OR LOWER(email) LIKE ?)`
		args = append(args, like, like, like)
	}

	var (
		customers []Customer
		total     int64
	)
	err := r.db.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		var err error
		total, err = u.Count(ctx, `SELECT COUNT(*) FROM customers`+where, args...)
		if err != nil {
			return err
		}
		query := `SELECT ` + columns + ` FROM customers` + where +
			` ORDER BY ` + shared.OrderBy(filters.SortBy, filters.SortDir, []string{"name", "phone", "created", "last_updated"}, "name")
		if filters.Limit > 0 {
			query += ` LIMIT ` + strconv.Itoa(filters.Limit) + ` OFFSET ` + strconv.Itoa(filters.Offset())
		}
		rows, err := u.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		customers = make([]Customer, 0, len(rows))
		for _, row := range rows {
			customers = append(customers, fromRow(row))
		}
		return nil
	})
	return customers, int(total), err
}

func (r *repository) Get(ctx context.Context, id int64) (Customer, error) {
	return r.getBy(ctx, "id", id)
}

func (r *repository) GetByPhone(ctx context.Context, phone string) (Customer, error) {
	return r.getBy(ctx, "phone", phone)
}

func (r *repository) getBy(ctx context.Context, col string, key any) (Customer, error) {
	var c Customer
	err := r.db.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		row, err := u.QueryRow(ctx, `SELECT `+columns+` FROM customers WHERE `+col+` = ?`, key)
		if errors.Is(err, db.ErrNoRows) {
			return internalShared.NotFound("customers: get", "customer %v not found", key)
		}
		if err != nil {
			return err
		}
		c = fromRow(row)
		return nil
	})
	return c, err
}

func (r *repository) Create(ctx context.Context, customer Customer) (Customer, error) {
	err := r.db.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		res, err := u.Exec(ctx, db.Insert("customers",
			"name", "phone", "email", "address", "notes", "created", "last_updated"),
			customer.Name, customer.Phone, customer.Email, customer.Address, customer.Notes,
			customer.Created, customer.LastUpdated)
		if err != nil {
			return err
		}
		customer.ID = res.LastInsertID
		return nil
	})
	if db.IsConflict(err) {
		return Customer{}, internalShared.Conflict("customers: create", "phone %s already registered", customer.Phone)
	}
	if err != nil {
		return Customer{}, err
	}
	return customer, nil
}

func (r *repository) Update(ctx context.Context, id int64, customer Customer) error {
	return r.db.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		res, err := u.Exec(ctx, `UPDATE customers SET name = ?, phone = ?, email = ?, address = ?, notes = ?,
			last_updated = ? WHERE id = ?`,
			customer.Name, customer.Phone, customer.Email, customer.Address, customer.Notes, customer.LastUpdated, id)
		if db.IsConflict(err) {
			return internalShared.Conflict("customers: update", "phone %s already registered", customer.Phone)
		}
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return internalShared.NotFound("customers: update", "customer %d not found", id)
		}
		return nil
	})
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	return r.db.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		res, err := u.Exec(ctx, `DELETE FROM customers WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return internalShared.NotFound("customers: delete", "customer %d not found", id)
		}
		return nil
	})
}

func fromRow(row db.Row) Customer {
	return Customer{
		ID:          row.Int64("id"),
		Name:        row.String("name"),
		Phone:       row.String("phone"),
		Email:       row.String("email"),
		Address:     row.String("address"),
		Notes:       row.String("notes"),
		Created:     row.String("created"),
		LastUpdated: row.String("last_updated"),
	}
}
