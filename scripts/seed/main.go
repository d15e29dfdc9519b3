package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/tillpoint/tillpoint/internal/app"
	"github.com/tillpoint/tillpoint/internal/auth"
	"github.com/tillpoint/tillpoint/internal/inventory"
	"github.com/tillpoint/tillpoint/internal/masterdata/customers"
	"github.com/tillpoint/tillpoint/internal/masterdata/suppliers"
	"github.com/tillpoint/tillpoint/internal/procurement"
	"github.com/tillpoint/tillpoint/internal/sales"
	"github.com/tillpoint/tillpoint/internal/shared"
)

// Demo data for a fresh shop. Every step tolerates rows that already exist.
func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := app.NewServices(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open services: %v", err)
	}
	defer svc.Close()
	if _, err := app.Migrate(ctx, cfg, svc.Manager, logger); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	fmt.Println("→ Seeding users...")
	admin := seedUsers(ctx, svc)

	fmt.Println("→ Seeding suppliers and customers...")
	supplierID := seedParties(ctx, svc)

	fmt.Println("→ Seeding products...")
	skus := seedProducts(ctx, svc)

	fmt.Println("→ Seeding a purchase order...")
	seedPurchaseOrder(ctx, svc, admin, supplierID, skus)

	fmt.Println("→ Seeding a sale...")
	seedSale(ctx, svc, admin, skus)

	fmt.Println("✓ Seed complete")
}

func seedUsers(ctx context.Context, svc *app.Services) shared.Actor {
	users := []auth.CreateUserInput{
		{Username: "admin", Password: "admin123", Name: "Shop Owner", Role: shared.RoleAdmin},
		{Username: "manager", Password: "manager123", Name: "Floor Manager", Role: shared.RoleManager},
		{Username: "cashier", Password: "cashier123", Name: "Front Cashier", Role: shared.RoleStaff},
	}
	var owner shared.Actor
	for _, input := range users {
		u, err := svc.Auth.CreateUser(ctx, input)
		if err != nil && !errors.Is(err, shared.ErrConflict) {
			log.Fatalf("create user %s: %v", input.Username, err)
		}
		if input.Role == shared.RoleAdmin {
			owner = u.Actor()
			if owner.Username == "" {
				owner = shared.Actor{Username: input.Username, Name: input.Name, Role: input.Role}
			}
		}
	}
	return owner
}

func seedParties(ctx context.Context, svc *app.Services) int64 {
	supplier, err := svc.Suppliers.GetByName(ctx, "Northwind Wholesale")
	if errors.Is(err, shared.ErrNotFound) {
		supplier, err = svc.Suppliers.Create(ctx, suppliers.Supplier{
			Name:          "Northwind Wholesale",
			ContactPerson: "Dana Reyes",
			Phone:         "555-0100",
			Email:         "orders@northwind.example",
		})
	}
	if err != nil {
		log.Fatalf("supplier: %v", err)
	}
	_, err = svc.Customers.Create(ctx, customers.Customer{Name: "Walk-in Regular", Phone: "555-0199"})
	if err != nil && !errors.Is(err, shared.ErrConflict) {
		log.Fatalf("customer: %v", err)
	}
	return supplier.ID
}

func seedProducts(ctx context.Context, svc *app.Services) []string {
	products := []inventory.ProductInput{
		{SKU: "100001", Name: "Electric Kettle", Category: "Kitchen", Brand: "Brio", CostPrice: decimal.RequireFromString("14.50"), SellingPrice: decimal.RequireFromString("29.99"), Quantity: 12},
		{SKU: "100002", Name: "Ceramic Mug", Category: "Kitchen", CostPrice: decimal.RequireFromString("1.80"), SellingPrice: decimal.RequireFromString("4.50"), Quantity: 60},
		{SKU: "100003", Name: "Desk Lamp", Category: "Lighting", Brand: "Luma", CostPrice: decimal.RequireFromString("9.00"), SellingPrice: decimal.RequireFromString("21.00"), Quantity: 2},
	}
	skus := make([]string, 0, len(products))
	for _, p := range products {
		if _, err := svc.Inventory.CreateProduct(ctx, p); err != nil && !errors.Is(err, shared.ErrConflict) {
			log.Fatalf("product %s: %v", p.SKU, err)
		}
		skus = append(skus, p.SKU)
	}
	return skus
}

func seedPurchaseOrder(ctx context.Context, svc *app.Services, actor shared.Actor, supplierID int64, skus []string) {
	po, err := svc.Procurement.CreatePurchaseOrder(ctx, procurement.CreatePOInput{
		SupplierID: supplierID,
		Notes:      "demo restock",
		Lines: []procurement.POLineInput{
			{SKU: skus[2], Quantity: 10, CostPrice: decimal.RequireFromString("8.75")},
		},
	})
	if err != nil {
		log.Fatalf("purchase order: %v", err)
	}
	_, err = svc.Procurement.ReceivePurchaseOrder(ctx, actor, po.ID, procurement.ReceiveInput{
		Lines: []procurement.ReceiveLine{{SKU: skus[2], Quantity: 4}},
	})
	if err != nil {
		log.Fatalf("receive %s: %v", po.OrderNumber, err)
	}
}

func seedSale(ctx context.Context, svc *app.Services, actor shared.Actor, skus []string) {
	sale, err := svc.Sales.CreateSale(ctx, actor, sales.CreateSaleRequest{
		Items: []sales.LineInput{
			{SKU: skus[0], Quantity: 1, UnitPrice: decimal.RequireFromString("29.99")},
			{SKU: skus[1], Quantity: 2, UnitPrice: decimal.RequireFromString("4.50")},
		},
		PaymentMethod: "Cash",
		CustomerPhone: "555-0199",
	})
	if err != nil {
		var stock *shared.InsufficientStockError
		if errors.As(err, &stock) {
			fmt.Println("  skipped sale:", err)
			return
		}
		log.Fatalf("sale: %v", err)
	}
	fmt.Println("  receipt", sale.ReceiptNumber)
}
