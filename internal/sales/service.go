package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tillpoint/tillpoint/internal/inventory"
	salesshared "github.com/tillpoint/tillpoint/internal/sales/shared"
	"github.com/tillpoint/tillpoint/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, receipt string) (Sale, error)
	ListSales(ctx context.Context, req ListSalesRequest) ([]Sale, error)
	HeldStore
}

// Service runs the sale ledger: checkout, void and held carts.
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

// GetSale returns one sale with its items.
func (s *Service) GetSale(ctx context.Context, receipt string) (Sale, error) {
	return s.repo.GetSale(ctx, strings.TrimSpace(receipt))
}

// ListSales lists sales newest first.
func (s *Service) ListSales(ctx context.Context, req ListSalesRequest) ([]Sale, error) {
	if err := shared.ValidateStruct("sales: list", req); err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, req)
}

func validateSale(op string, req CreateSaleRequest) error {
	if err := shared.ValidateStruct(op, req); err != nil {
		return err
	}
	if err := shared.NonNegative(op, "discount_amount", req.DiscountAmount); err != nil {
		return err
	}
	if err := shared.NonNegative(op, "tax_amount", req.TaxAmount); err != nil {
		return err
	}
	for i, line := range req.Items {
		if strings.TrimSpace(line.SKU) == "" && strings.TrimSpace(line.Name) == "" {
			return shared.Validation(op, "items[%d]: sku or name is required", i)
		}
		if err := shared.NonNegative(op, fmt.Sprintf("items[%d].unit_price", i), line.UnitPrice); err != nil {
			return err
		}
		if err := shared.NonNegative(op, fmt.Sprintf("items[%d].discount_value", i), line.DiscountValue); err != nil {
			return err
		}
	}
	return nil
}

// CreateSale validates stock for every line, then writes the header, the
// item snapshots and the stock movements in one transaction. Any shortage
// aborts the sale before the first write and reports every short line.
func (s *Service) CreateSale(ctx context.Context, actor shared.Actor, req CreateSaleRequest) (sale Sale, err error) {
	const op = "sales: create"
	defer func() { s.recorder.ObserveLedger("sale.create", err) }()
	if err := validateSale(op, req); err != nil {
		return Sale{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		products, err := checkStock(ctx, tx.Stock(), req.Items)
		if err != nil {
			return err
		}

		t := s.now()
		now := shared.Timestamp(t)
		items := make([]SaleItem, 0, len(req.Items))
		subtotal := decimal.Zero
		for _, line := range req.Items {
			item := buildItem(line, products)
			subtotal = subtotal.Add(item.FinalTotal)
			items = append(items, item)
		}

		cashier := strings.TrimSpace(req.Cashier)
		if cashier == "" {
			cashier = actor.DisplayName()
		}
		payment := strings.TrimSpace(req.PaymentMethod)
		if payment == "" {
			payment = "Cash"
		}
		sale = Sale{
			Timestamp:      now,
			Date:           shared.Date(t),
			Subtotal:       subtotal,
			DiscountAmount: req.DiscountAmount,
			TaxAmount:      req.TaxAmount,
			GrandTotal:     salesshared.GrandTotal(subtotal, req.DiscountAmount, req.TaxAmount),
			PaymentMethod:  payment,
			Cashier:        cashier,
			CustomerName:   strings.TrimSpace(req.CustomerName),
			CustomerPhone:  strings.TrimSpace(req.CustomerPhone),
			CustomerEmail:  strings.TrimSpace(req.CustomerEmail),
			Status:         StatusComplete,
		}
		if err := s.insertHeader(ctx, tx, &sale, t); err != nil {
			return err
		}

		onHand := make(map[string]int, len(products))
		for sku, p := range products {
			onHand[sku] = p.Quantity
		}
		for i := range items {
			item := &items[i]
			item.SaleID = sale.ID
			if err := tx.InsertItem(ctx, item); err != nil {
				return fmt.Errorf("insert sale item: %w", err)
			}
			if item.SKU == "" {
				continue
			}
			if err := tx.Stock().Decrement(ctx, item.SKU, item.Quantity, now); err != nil {
				return err
			}
			before := onHand[item.SKU]
			onHand[item.SKU] = before - item.Quantity
			tx.Stock().AppendLog(ctx, inventory.LogEntry{
				SKU:         item.SKU,
				Action:      inventory.ActionSale,
				Description: fmt.Sprintf("Sold %d (%s)", item.Quantity, sale.ReceiptNumber),
				OldValue:    strconv.Itoa(before),
				NewValue:    strconv.Itoa(onHand[item.SKU]),
				QtyChange:   -item.Quantity,
				Created:     now,
			})
		}
		sale.Items = items

		if sale.CustomerPhone != "" {
			if err := tx.RecordCustomer(ctx, sale.CustomerName, sale.CustomerPhone, sale.CustomerEmail, now); err != nil {
				return fmt.Errorf("record customer: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	s.logger.Info("sale created",
		slog.String("receipt", sale.ReceiptNumber),
		slog.Int("lines", len(sale.Items)),
		slog.String("grand_total", sale.GrandTotal.StringFixed(2)))
	return sale, nil
}

// checkStock reads every referenced product once and compares the summed
// requested quantity per SKU with the quantity on hand.
func checkStock(ctx context.Context, stock inventory.TxRepository, lines []LineInput) (map[string]inventory.Product, error) {
	requested := make(map[string]int)
	var order []string
	for _, line := range lines {
		sku := strings.TrimSpace(line.SKU)
		if sku == "" {
			continue
		}
		if _, seen := requested[sku]; !seen {
			order = append(order, sku)
		}
		requested[sku] += line.Quantity
	}

	products := make(map[string]inventory.Product, len(order))
	var shortages []shared.Shortage
	for _, sku := range order {
		p, err := stock.GetProduct(ctx, sku)
		if errors.Is(err, shared.ErrNotFound) {
			shortages = append(shortages, shared.Shortage{SKU: sku, Requested: requested[sku], Missing: true})
			continue
		}
		if err != nil {
			return nil, err
		}
		products[sku] = p
		if p.Quantity < requested[sku] {
			shortages = append(shortages, shared.Shortage{
				SKU:       sku,
				Name:      p.Name,
				Available: p.Quantity,
				Requested: requested[sku],
			})
		}
	}
	if len(shortages) > 0 {
		return nil, &shared.InsufficientStockError{Shortages: shortages}
	}
	return products, nil
}

func buildItem(line LineInput, products map[string]inventory.Product) SaleItem {
	sku := strings.TrimSpace(line.SKU)
	name := strings.TrimSpace(line.Name)
	price := line.UnitPrice
	if p, ok := products[sku]; ok {
		if name == "" {
			name = p.Name
		}
		if price.IsZero() {
			price = p.SellingPrice
		}
	}
	kind := line.DiscountType
	if kind == "" {
		kind = salesshared.DiscountNone
	}
	lineTotal, discount, final := salesshared.CalculateLineTotals(line.Quantity, price, kind, line.DiscountValue)
	return SaleItem{
		SKU:            sku,
		Name:           name,
		Quantity:       line.Quantity,
		UnitPrice:      price,
		LineTotal:      lineTotal,
		DiscountType:   kind,
		DiscountValue:  line.DiscountValue,
		DiscountAmount: discount,
		FinalTotal:     final,
	}
}

func (s *Service) insertHeader(ctx context.Context, tx TxRepository, sale *Sale, t time.Time) error {
	var err error
	for attempt := 0; attempt < receiptAttempts; attempt++ {
		sale.ReceiptNumber = shared.ReceiptNumber(t)
		err = tx.InsertSale(ctx, sale)
		if !errors.Is(err, shared.ErrConflict) {
			return err
		}
		s.logger.Warn("receipt number collision", slog.String("receipt", sale.ReceiptNumber), slog.Int("attempt", attempt+1))
	}
	return shared.Wrap(shared.ErrConflict, "sales: receipt number", err)
}

// VoidSale reverses a completed sale: every line quantity returns to stock,
// one Void Refund entry is logged per SKU line and the sale is marked Voided.
// The sale and its items are kept.
func (s *Service) VoidSale(ctx context.Context, actor shared.Actor, receipt string, req VoidSaleRequest) (sale Sale, err error) {
	const op = "sales: void"
	defer func() { s.recorder.ObserveLedger("sale.void", err) }()
	if !actor.CanVoid() {
		return Sale{}, shared.Errorf(shared.ErrForbidden, op, "only admin or manager can void sales")
	}
	if err := shared.ValidateStruct(op, req); err != nil {
		return Sale{}, err
	}
	receipt = strings.TrimSpace(receipt)
	reason := strings.TrimSpace(req.Reason)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSale(ctx, receipt)
		if err != nil {
			return err
		}
		if current.Voided() {
			return shared.Errorf(shared.ErrInvalidState, op, "sale %s is already voided", receipt)
		}
		now := shared.Timestamp(s.now())
		by := actor.DisplayName()
		if err := tx.MarkVoided(ctx, current.ID, now, by, reason); err != nil {
			return err
		}
		for _, item := range current.Items {
			if item.SKU == "" || item.Quantity <= 0 {
				continue
			}
			p, err := tx.Stock().GetProduct(ctx, item.SKU)
			if errors.Is(err, shared.ErrNotFound) {
				s.logger.Warn("void skipped restock of missing product",
					slog.String("receipt", receipt), slog.String("sku", item.SKU))
				continue
			}
			if err != nil {
				return err
			}
			if err := tx.Stock().Increment(ctx, item.SKU, item.Quantity, now); err != nil {
				return err
			}
			desc := fmt.Sprintf("Void of %s", receipt)
			if reason != "" {
				desc += ": " + reason
			}
			tx.Stock().AppendLog(ctx, inventory.LogEntry{
				SKU:         item.SKU,
				Action:      inventory.ActionVoidRefund,
				Description: desc,
				OldValue:    strconv.Itoa(p.Quantity),
				NewValue:    strconv.Itoa(p.Quantity + item.Quantity),
				QtyChange:   item.Quantity,
				Created:     now,
			})
		}
		current.Status = StatusVoided
		current.VoidedAt = now
		current.VoidedBy = by
		current.VoidReason = reason
		sale = current
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	s.logger.Info("sale voided", slog.String("receipt", receipt), slog.String("by", sale.VoidedBy))
	return sale, nil
}
