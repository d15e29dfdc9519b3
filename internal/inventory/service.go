package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tillpoint/tillpoint/internal/shared"
)

// codeAttempts bounds regeneration of colliding SKUs and barcodes.
const codeAttempts = 5

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, sku string) (Product, error)
	FindByBarcode(ctx context.Context, barcode string) (Product, error)
	ListProducts(ctx context.Context, filter ListFilter) ([]Product, error)
	ListLog(ctx context.Context, sku string, limit int) ([]LogEntry, error)
	ListPurchases(ctx context.Context, sku string) ([]Purchase, error)
}

// Service coordinates product maintenance and explicit stock movements.
type Service struct {
	repo     RepositoryPort
	logger   *slog.Logger
	recorder shared.LedgerRecorder
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger, recorder shared.LedgerRecorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = shared.NopRecorder{}
	}
	return &Service{repo: repo, logger: logger, recorder: recorder, now: time.Now}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// GetProduct returns one product.
func (s *Service) GetProduct(ctx context.Context, sku string) (Product, error) {
	return s.repo.GetProduct(ctx, strings.TrimSpace(sku))
}

// FindByBarcode resolves a scanned barcode.
func (s *Service) FindByBarcode(ctx context.Context, barcode string) (Product, error) {
	return s.repo.FindByBarcode(ctx, strings.TrimSpace(barcode))
}

// ListProducts lists products matching filter.
func (s *Service) ListProducts(ctx context.Context, filter ListFilter) ([]Product, error) {
	return s.repo.ListProducts(ctx, filter)
}

// History returns stock history newest first.
func (s *Service) History(ctx context.Context, sku string, limit int) ([]LogEntry, error) {
	return s.repo.ListLog(ctx, sku, limit)
}

// Purchases returns purchase history of one product.
func (s *Service) Purchases(ctx context.Context, sku string) ([]Purchase, error) {
	return s.repo.ListPurchases(ctx, sku)
}

func validateProduct(op string, in ProductInput) error {
	if err := shared.ValidateStruct(op, in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Name) == "" {
		return shared.Validation(op, "name is required")
	}
	if err := shared.NonNegative(op, "cost_price", in.CostPrice); err != nil {
		return err
	}
	return shared.NonNegative(op, "selling_price", in.SellingPrice)
}

// CreateProduct adds a product. Missing SKU and barcode are generated as
// random six digit codes and regenerated on collision.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	const op = "inventory: create product"
	if err := validateProduct(op, in); err != nil {
		return Product{}, err
	}
	reorder := 3
	if in.ReorderLevel != nil {
		reorder = *in.ReorderLevel
	}
	now := shared.Timestamp(s.now())
	product := Product{
		SKU:          strings.TrimSpace(in.SKU),
		Barcode:      strings.TrimSpace(in.Barcode),
		Name:         strings.TrimSpace(in.Name),
		Category:     in.Category,
		Brand:        in.Brand,
		Description:  in.Description,
		CostPrice:    in.CostPrice,
		SellingPrice: in.SellingPrice,
		Quantity:     in.Quantity,
		ReorderLevel: reorder,
		Dimensions:   in.Dimensions,
		Weight:       in.Weight,
		Color:        in.Color,
		ImagePath:    in.ImagePath,
		Supplier:     in.Supplier,
		DateAdded:    now,
		LastUpdated:  now,
	}
	generateSKU := product.SKU == ""
	generateBarcode := product.Barcode == ""

	var err error
	for attempt := 0; attempt < codeAttempts; attempt++ {
		if generateSKU {
			product.SKU = shared.SixDigit()
		}
		if generateBarcode {
			product.Barcode = shared.SixDigit()
		}
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.InsertProduct(ctx, product)
		})
		if !errors.Is(err, shared.ErrConflict) || (!generateSKU && !generateBarcode) {
			break
		}
	}
	if errors.Is(err, shared.ErrConflict) {
		return Product{}, shared.Conflict(op, "sku %s or barcode %s already exists", product.SKU, product.Barcode)
	}
	if err != nil {
		return Product{}, err
	}
	return product, nil
}

// UpdateProduct replaces the editable fields of sku and logs what changed.
func (s *Service) UpdateProduct(ctx context.Context, actor shared.Actor, sku string, in ProductInput) (Product, error) {
	const op = "inventory: update product"
	if err := validateProduct(op, in); err != nil {
		return Product{}, err
	}
	var updated Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetProduct(ctx, sku)
		if err != nil {
			return err
		}
		now := shared.Timestamp(s.now())
		next := current
		next.Barcode = strings.TrimSpace(in.Barcode)
		if next.Barcode == "" {
			next.Barcode = current.Barcode
		}
		next.Name = strings.TrimSpace(in.Name)
		next.Category = in.Category
		next.Brand = in.Brand
		next.Description = in.Description
		next.CostPrice = in.CostPrice
		next.SellingPrice = in.SellingPrice
		next.Quantity = in.Quantity
		if in.ReorderLevel != nil {
			next.ReorderLevel = *in.ReorderLevel
		}
		next.Dimensions = in.Dimensions
		next.Weight = in.Weight
		next.Color = in.Color
		next.ImagePath = in.ImagePath
		next.Supplier = in.Supplier
		next.LastUpdated = now

		if err := tx.UpdateProduct(ctx, next, current.Quantity); err != nil {
			return err
		}
		for _, entry := range changeLog(current, next, actor, now) {
			tx.AppendLog(ctx, entry)
		}
		updated = next
		return nil
	})
	if errors.Is(err, shared.ErrConflict) {
		return Product{}, shared.Conflict(op, "barcode %s already in use", in.Barcode)
	}
	return updated, err
}

func changeLog(before, after Product, actor shared.Actor, now string) []LogEntry {
	var out []LogEntry
	by := actor.DisplayName()
	if !before.SellingPrice.Equal(after.SellingPrice) || !before.CostPrice.Equal(after.CostPrice) {
		out = append(out, LogEntry{
			SKU:         after.SKU,
			Action:      ActionPriceChanged,
			Description: fmt.Sprintf("price updated by %s", by),
			OldValue:    fmt.Sprintf("cost %s / sell %s", before.CostPrice.StringFixed(2), before.SellingPrice.StringFixed(2)),
			NewValue:    fmt.Sprintf("cost %s / sell %s", after.CostPrice.StringFixed(2), after.SellingPrice.StringFixed(2)),
			Created:     now,
		})
	}
	if before.Quantity != after.Quantity {
		out = append(out, LogEntry{
			SKU:         after.SKU,
			Action:      ActionQtyAdjusted,
			Description: fmt.Sprintf("quantity edited by %s", by),
			OldValue:    strconv.Itoa(before.Quantity),
			NewValue:    strconv.Itoa(after.Quantity),
			QtyChange:   after.Quantity - before.Quantity,
			Created:     now,
		})
	}
	b, a := before, after
	b.SellingPrice, b.CostPrice, b.Quantity, b.LastUpdated = a.SellingPrice, a.CostPrice, a.Quantity, a.LastUpdated
	if b != a {
		out = append(out, LogEntry{
			SKU:         after.SKU,
			Action:      ActionEdited,
			Description: fmt.Sprintf("details edited by %s", by),
			Created:     now,
		})
	}
	return out
}

// DeleteProduct removes a product that has no stock history.
func (s *Service) DeleteProduct(ctx context.Context, sku string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteProduct(ctx, sku)
	})
}

// AdjustStock applies an explicit signed correction and logs it as Qty Adjusted.
// A negative delta larger than the quantity on hand is rejected.
func (s *Service) AdjustStock(ctx context.Context, actor shared.Actor, in AdjustInput) (product Product, err error) {
	const op = "inventory: adjust stock"
	defer func() { s.recorder.ObserveLedger("stock.adjust", err) }()
	if err := shared.ValidateStruct(op, in); err != nil {
		return Product{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetProduct(ctx, in.SKU)
		if err != nil {
			return err
		}
		now := shared.Timestamp(s.now())
		if in.Delta < 0 {
			err = tx.Decrement(ctx, in.SKU, -in.Delta, now)
		} else {
			err = tx.Increment(ctx, in.SKU, in.Delta, now)
		}
		if err != nil {
			return err
		}
		desc := strings.TrimSpace(in.Reason)
		if desc == "" {
			desc = "manual adjustment"
		}
		tx.AppendLog(ctx, LogEntry{
			SKU:         in.SKU,
			Action:      ActionQtyAdjusted,
			Description: fmt.Sprintf("%s (by %s)", desc, actor.DisplayName()),
			OldValue:    strconv.Itoa(current.Quantity),
			NewValue:    strconv.Itoa(current.Quantity + in.Delta),
			QtyChange:   in.Delta,
			Created:     now,
		})
		product, err = tx.GetProduct(ctx, in.SKU)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	s.logger.Info("stock adjusted", slog.String("sku", in.SKU), slog.Int("delta", in.Delta))
	return product, nil
}

// RecordPurchase adds stock bought outside a purchase order and records it in
// purchase history. Non-zero prices on the input update the product prices.
func (s *Service) RecordPurchase(ctx context.Context, in PurchaseInput) (purchase Purchase, err error) {
	const op = "inventory: record purchase"
	defer func() { s.recorder.ObserveLedger("stock.purchase", err) }()
	if err := shared.ValidateStruct(op, in); err != nil {
		return Purchase{}, err
	}
	if err := shared.NonNegative(op, "cost_price", in.CostPrice); err != nil {
		return Purchase{}, err
	}
	if err := shared.NonNegative(op, "selling_price", in.SellingPrice); err != nil {
		return Purchase{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetProduct(ctx, in.SKU)
		if err != nil {
			return err
		}
		t := s.now()
		now := shared.Timestamp(t)
		if err := tx.Increment(ctx, in.SKU, in.Quantity, now); err != nil {
			return err
		}
		cost, sell := current.CostPrice, current.SellingPrice
		if in.CostPrice.IsPositive() || in.SellingPrice.IsPositive() {
			next := current
			next.Quantity = current.Quantity + in.Quantity
			next.LastUpdated = now
			if in.CostPrice.IsPositive() {
				next.CostPrice, cost = in.CostPrice, in.CostPrice
			}
			if in.SellingPrice.IsPositive() {
				next.SellingPrice, sell = in.SellingPrice, in.SellingPrice
			}
			if err := tx.UpdateProduct(ctx, next, next.Quantity); err != nil {
				return err
			}
		}
		date := in.Date
		if date == "" {
			date = shared.Date(t)
		}
		purchase = Purchase{
			SKU:           in.SKU,
			Date:          date,
			Supplier:      in.Supplier,
			Quantity:      in.Quantity,
			CostPrice:     cost,
			SellingPrice:  sell,
			TotalCost:     cost.Mul(decimal.NewFromInt(int64(in.Quantity))),
			InvoiceNumber: in.InvoiceNumber,
			Notes:         in.Notes,
			Created:       now,
		}
		id, err := tx.InsertPurchase(ctx, purchase)
		if err != nil {
			return err
		}
		purchase.ID = id
		tx.AppendLog(ctx, LogEntry{
			SKU:         in.SKU,
			Action:      ActionPurchase,
			Description: purchaseDescription(in),
			OldValue:    strconv.Itoa(current.Quantity),
			NewValue:    strconv.Itoa(current.Quantity + in.Quantity),
			QtyChange:   in.Quantity,
			Created:     now,
		})
		return nil
	})
	if err != nil {
		return Purchase{}, err
	}
	return purchase, nil
}

func purchaseDescription(in PurchaseInput) string {
	parts := []string{fmt.Sprintf("purchased %d", in.Quantity)}
	if in.Supplier != "" {
		parts = append(parts, "from "+in.Supplier)
	}
	if in.InvoiceNumber != "" {
		parts = append(parts, "invoice "+in.InvoiceNumber)
	}
	return strings.Join(parts, " ")
}
