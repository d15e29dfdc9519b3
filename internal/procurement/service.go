package procurement

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
	"github.com/tillpoint/tillpoint/internal/shared"
)

// RepositoryPort abstracts persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPOs(ctx context.Context, filters ListFilters) ([]PurchaseOrder, int, error)
}

// Service orchestrates purchase orders and their receiving.
type Service struct {
	repo     RepositoryPort
	logger   *slog.Logger
	recorder shared.LedgerRecorder
	now      func() time.Time
}

// NewService constructs the procurement service.
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

// GetPurchaseOrder returns one order with its lines.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetPO(ctx, id)
}

// ListPurchaseOrders lists orders newest first.
func (s *Service) ListPurchaseOrders(ctx context.Context, filters ListFilters) ([]PurchaseOrder, int, error) {
	return s.repo.ListPOs(ctx, filters)
}

// CreatePurchaseOrder stores a draft order for an existing supplier and
// existing products. Line names and totals are snapshotted.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePOInput) (PurchaseOrder, error) {
	const op = "procurement: create po"
	if err := shared.ValidateStruct(op, input); err != nil {
		return PurchaseOrder{}, err
	}
	seen := make(map[string]struct{}, len(input.Lines))
	for i, line := range input.Lines {
		sku := strings.TrimSpace(line.SKU)
		if _, dup := seen[sku]; dup {
			return PurchaseOrder{}, shared.Validation(op, "items[%d]: sku %s listed twice", i, sku)
		}
		seen[sku] = struct{}{}
		if err := shared.NonNegative(op, fmt.Sprintf("items[%d].cost_price", i), line.CostPrice); err != nil {
			return PurchaseOrder{}, err
		}
	}

	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		supplier, err := tx.SupplierName(ctx, input.SupplierID)
		if err != nil {
			return err
		}
		t := s.now()
		now := shared.Timestamp(t)
		orderDate := input.OrderDate
		if orderDate == "" {
			orderDate = shared.Date(t)
		}
		lines := make([]POLine, 0, len(input.Lines))
		total := decimal.Zero
		for _, in := range input.Lines {
			sku := strings.TrimSpace(in.SKU)
			p, err := tx.Stock().GetProduct(ctx, sku)
			if err != nil {
				return err
			}
			cost := in.CostPrice
			if cost.IsZero() {
				cost = p.CostPrice
			}
			lineTotal := cost.Mul(decimal.NewFromInt(int64(in.Quantity))).Round(2)
			total = total.Add(lineTotal)
			lines = append(lines, POLine{SKU: sku, ProductName: p.Name, Quantity: in.Quantity, CostPrice: cost, LineTotal: lineTotal})
		}
		po = PurchaseOrder{
			InvoiceNumber: strings.TrimSpace(input.InvoiceNumber),
			SupplierID:    input.SupplierID,
			SupplierName:  supplier,
			OrderDate:     orderDate,
			ExpectedDate:  input.ExpectedDate,
			Status:        POStatusDraft,
			Notes:         input.Notes,
			TotalAmount:   total,
			Created:       now,
			LastUpdated:   now,
		}
		for attempt := 0; ; attempt++ {
			po.OrderNumber = shared.OrderNumber(t)
			err = tx.CreatePO(ctx, &po)
			if !errors.Is(err, shared.ErrConflict) {
				break
			}
			if attempt+1 == orderNumberAttempts {
				return shared.Wrap(shared.ErrConflict, op, err)
			}
		}
		if err != nil {
			return err
		}
		for i := range lines {
			lines[i].OrderID = po.ID
			if err := tx.InsertPOLine(ctx, &lines[i]); err != nil {
				return err
			}
		}
		po.Items = lines
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.logger.Info("purchase order created", slog.String("order", po.OrderNumber), slog.Int("lines", len(po.Items)))
	return po, nil
}

// ReceivePurchaseOrder takes a batch of received quantities into stock.
// Each proposed quantity is clamped to what is still outstanding on its line;
// only the clamped amount moves stock and is written to history. The order
// becomes received once every line is complete, partial otherwise.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, actor shared.Actor, id int64, input ReceiveInput) (result ReceiveResult, err error) {
	const op = "procurement: receive po"
	defer func() { s.recorder.ObserveLedger("po.receive", err) }()
	if err := shared.ValidateStruct(op, input); err != nil {
		return ReceiveResult{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPO(ctx, id)
		if err != nil {
			return err
		}
		if po.Status == POStatusReceived {
			return shared.Errorf(shared.ErrInvalidState, op, "purchase order %s is already received", po.OrderNumber)
		}

		lineBySKU := make(map[string]int, len(po.Items))
		for i, item := range po.Items {
			lineBySKU[item.SKU] = i
		}
		proposed := make(map[string]int, len(input.Lines))
		var order []string
		for _, in := range input.Lines {
			sku := strings.TrimSpace(in.SKU)
			if _, ok := lineBySKU[sku]; !ok {
				return shared.Validation(op, "sku %s is not on purchase order %s", sku, po.OrderNumber)
			}
			if _, seen := proposed[sku]; !seen {
				order = append(order, sku)
			}
			proposed[sku] += in.Quantity
		}

		t := s.now()
		now := shared.Timestamp(t)
		invoice := strings.TrimSpace(input.InvoiceNumber)
		if invoice == "" {
			invoice = po.InvoiceNumber
		}
		applied := make([]AppliedLine, 0, len(order))
		for _, sku := range order {
			item := &po.Items[lineBySKU[sku]]
			qty := min(proposed[sku], item.Outstanding())
			applied = append(applied, AppliedLine{SKU: sku, Requested: proposed[sku], Applied: qty})
			if qty <= 0 {
				continue
			}
			if err := s.receiveLine(ctx, tx, po, item, qty, invoice, t); err != nil {
				return err
			}
			item.ReceivedQty += qty
		}

		if po.FullyReceived() {
			po.Status = POStatusReceived
		} else {
			po.Status = POStatusPartial
		}
		po.InvoiceNumber = invoice
		po.ReceivedDate = shared.Date(t)
		po.ReceivedBy = actor.DisplayName()
		if notes := strings.TrimSpace(input.Notes); notes != "" {
			po.ReceiveNotes = notes
		}
		po.LastUpdated = now
		if err := tx.MarkReceived(ctx, po); err != nil {
			return err
		}
		result = ReceiveResult{Order: po, Applied: applied}
		return nil
	})
	if err != nil {
		return ReceiveResult{}, err
	}
	s.logger.Info("purchase order received",
		slog.String("order", result.Order.OrderNumber),
		slog.String("status", string(result.Order.Status)))
	return result, nil
}

func (s *Service) receiveLine(ctx context.Context, tx TxRepository, po PurchaseOrder, item *POLine, qty int, invoice string, t time.Time) error {
	now := shared.Timestamp(t)
	product, err := tx.Stock().GetProduct(ctx, item.SKU)
	if err != nil {
		return err
	}
	if err := tx.ReceiveLine(ctx, item.ID, qty); err != nil {
		return err
	}
	if err := tx.Stock().Increment(ctx, item.SKU, qty, now); err != nil {
		return err
	}
	tx.Stock().AppendLog(ctx, inventory.LogEntry{
		SKU:         item.SKU,
		Action:      inventory.ActionPOReceived,
		Description: fmt.Sprintf("Received %d on %s", qty, po.OrderNumber),
		OldValue:    strconv.Itoa(product.Quantity),
		NewValue:    strconv.Itoa(product.Quantity + qty),
		QtyChange:   qty,
		Created:     now,
	})
	_, err = tx.Stock().InsertPurchase(ctx, inventory.Purchase{
		SKU:           item.SKU,
		Date:          shared.Date(t),
		Supplier:      po.SupplierName,
		Quantity:      qty,
		CostPrice:     item.CostPrice,
		SellingPrice:  product.SellingPrice,
		TotalCost:     item.CostPrice.Mul(decimal.NewFromInt(int64(qty))).Round(2),
		InvoiceNumber: invoice,
		Notes:         po.OrderNumber,
		Created:       now,
	})
	return err
}

// DeletePurchaseOrder removes an order that has not been fully received.
func (s *Service) DeletePurchaseOrder(ctx context.Context, id int64) error {
	const op = "procurement: delete po"
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPO(ctx, id)
		if err != nil {
			return err
		}
		if po.Status == POStatusReceived {
			return shared.Errorf(shared.ErrInvalidState, op, "received purchase order %s cannot be deleted", po.OrderNumber)
		}
		return tx.DeletePO(ctx, id)
	})
}
