package suppliers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/tillpoint/tillpoint/internal/masterdata/shared"
	"github.com/tillpoint/tillpoint/internal/platform/db"
	internalShared "github.com/tillpoint/tillpoint/internal/shared"
)

const columns = `id, name, contact_person, phone, email, address, notes, created, last_updated`

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error)
	Get(ctx context.Context, id int64) (Supplier, error)
	GetByName(ctx context.Context, name string) (Supplier, error)
	Create(ctx context.Context, supplier Supplier) (Supplier, error)
	Update(ctx context.Context, id int64, supplier Supplier) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *db.Manager
}

func NewRepository(manager *db.Manager) Repository {
	return &repository{db: manager}
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	where := ""
	var args []any
	if filters.Search != "" {
		like := "%" + strings.ToLower(filters.Search) + "%"
		where = ` WHERE (LOWER(name) LIKE ? OR LOWER(contact_person) LIKE ? OR phone LIKE ?)`
		args = append(args, like, like, like)
	}

	var (
		suppliers []Supplier
		total     int64
	)
	err := r.db.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		var err error
		total, err = u.Count(ctx, `SELECT COUNT(*) FROM suppliers`+where, args...)
		if err != nil {
			return err
		}
		query := `SELECT ` + columns + ` FROM suppliers` + where +
			` ORDER BY ` + shared.OrderBy(filters.SortBy, filters.SortDir, []string{"name", "created", "last_updated"}, "name")
		if filters.Limit > 0 {
			query += ` LIMIT ` + strconv.Itoa(filters.Limit) + ` OFFSET ` + strconv.Itoa(filters.Offset())
		}
		rows, err := u.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		suppliers = make([]Supplier, 0, len(rows))
		for _, row := range rows {
			suppliers = append(suppliers, fromRow(row))
		}
		return nil
	})
	return suppliers, int(total), err
}

func (r *repository) Get(ctx context.Context, id int64) (Supplier, error) {
	return r.getBy(ctx, "id", id)
}

func (r *repository) GetByName(ctx context.Context, name string) (Supplier, error) {
	return r.getBy(ctx, "name", name)
}

func (r *repository) getBy(ctx context.Context, col string, key any) (Supplier, error) {
	var s Supplier
	err := r.db.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		row, err := u.QueryRow(ctx, `SELECT `+columns+` FROM suppliers WHERE `+col+` = ?`, key)
		if errors.Is(err, db.ErrNoRows) {
			return internalShared.NotFound("suppliers: get", "supplier %v not found", key)
		}
		if err != nil {
			return err
		}
		s = fromRow(row)
		return nil
	})
	return s, err
}

func (r *repository) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	err := r.db.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		res, err := u.Exec(ctx, db.Insert("suppliers",
			"name", "contact_person", "phone", "email", "address", "notes", "created", "last_updated"),
			supplier.Name, supplier.ContactPerson, supplier.Phone, supplier.Email, supplier.Address, supplier.Notes,
			supplier.Created, supplier.LastUpdated)
		if err != nil {
			return err
		}
		supplier.ID = res.LastInsertID
		return nil
	})
	if db.IsConflict(err) {
		return Supplier{}, internalShared.Conflict("suppliers: create", "supplier %q already exists", supplier.Name)
	}
	if err != nil {
		return Supplier{}, err
	}
	return supplier, nil
}

func (r *repository) Update(ctx context.Context, id int64, supplier Supplier) error {
	return r.db.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		res, err := u.Exec(ctx, `UPDATE suppliers SET name = ?, contact_person = ?, phone = ?, email = ?, address = ?,
			notes = ?, last_updated = ? WHERE id = ?`,
			supplier.Name, supplier.ContactPerson, supplier.Phone, supplier.Email, supplier.Address,
			supplier.Notes, supplier.LastUpdated, id)
		if db.IsConflict(err) {
			return internalShared.Conflict("suppliers: update", "supplier %q already exists", supplier.Name)
		}
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return internalShared.NotFound("suppliers: update", "supplier %d not found", id)
		}
		return nil
	})
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	return r.db.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		res, err := u.Exec(ctx, `DELETE FROM suppliers WHERE id = ?`, id)
		if db.IsConflict(err) {
			return internalShared.Conflict("suppliers: delete", "supplier %d has purchase orders", id)
		}
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return internalShared.NotFound("suppliers: delete", "supplier %d not found", id)
		}
		return nil
	})
}

func fromRow(row db.Row) Supplier {
	return Supplier{
		ID:            row.Int64("id"),
		Name:          row.String("name"),
		ContactPerson: row.String("contact_person"),
		Phone:         row.String("phone"),
		Email:         row.String("email"),
		Address:       row.String("address"),
		Notes:         row.String("notes"),
		Created:       row.String("created"),
		LastUpdated:   row.String("last_updated"),
	}
}
