package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/apperror"
	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DTOs
type CreateProductRequest struct {
	SKU       string   `json:"sku" binding:"required"`
	Name      string   `json:"name" binding:"required"`
	Price     float64  `json:"price" binding:"min=0"`
	SalePrice *float64 `json:"salePrice" binding:"omitempty,min=0"`
	Images    []string `json:"images"`
}

type UpdateProductRequest struct {
	SKU       string   `json:"sku" binding:"required"`
	Name      string   `json:"name" binding:"required"`
	Price     float64  `json:"price" binding:"min=0"`
	SalePrice *float64 `json:"salePrice" binding:"omitempty,min=0"`
	Images    []string `json:"images"`
}

type AdjustStockRequest struct {
	Type     string `json:"type" binding:"required,oneof=IN OUT"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
	Note     string `json:"note"`
}

// ProductResponse uses the storefront field names so the cart can snapshot it directly
type ProductResponse struct {
	ID        string   `json:"_id"`
	SKU       string   `json:"sku"`
	Name      string   `json:"name"`
	Price     float64  `json:"price"`
	SalePrice *float64 `json:"salePrice,omitempty"`
	Images    []string `json:"images"`
	Stock     int      `json:"stock"`
	CreatedAt string   `json:"created_at"`
}

type StockMovementResponse struct {
	ID              string `json:"id"`
	TransactionType string `json:"transaction_type"`
	QuantityChanged int    `json:"quantity_changed"`
	StockAfter      int    `json:"stock_after"`
	Note            string `json:"note"`
	CreatedAt       string `json:"created_at"`
}

type ProductService interface {
	GetProducts(ctx context.Context, page, limit int, search string) ([]ProductResponse, int64, error)
	GetProduct(ctx context.Context, id string) (*ProductResponse, error)
	CreateProduct(ctx context.Context, actorID string, req CreateProductRequest) (*ProductResponse, error)
	UpdateProduct(ctx context.Context, actorID, id string, req UpdateProductRequest) (*ProductResponse, error)
	DeleteProduct(ctx context.Context, actorID, id string) error
	AdjustStock(ctx context.Context, actorID, id string, req AdjustStockRequest) (*ProductResponse, error)
	StockHistory(ctx context.Context, id string, limit int) ([]StockMovementResponse, error)
}

type productService struct {
	productRepo repository.ProductRepository
	ledgerRepo  repository.InventoryTxRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	log         *zap.Logger
}

func NewProductService(
	productRepo repository.ProductRepository,
	ledgerRepo repository.InventoryTxRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	log *zap.Logger,
) ProductService {
	return &productService{
		productRepo: productRepo,
		ledgerRepo:  ledgerRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		log:         log,
	}
}

func toProductResponse(p model.Product) ProductResponse {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return ProductResponse{
		ID:        p.ID.String(),
		SKU:       p.SKU,
		Name:      p.Name,
		Price:     p.Price,
		SalePrice: p.SalePrice,
		Images:    images,
		Stock:     p.Stock,
		CreatedAt: p.CreatedAt.Format(timeLayout),
	}
}

func validateSalePrice(price float64, sale *float64) error {
	if sale != nil && *sale > price {
		return apperror.Validation("sale price cannot exceed price")
	}
	return nil
}

func (s *productService) GetProducts(ctx context.Context, page, limit int, search string) ([]ProductResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	products, total, err := s.productRepo.List(ctx, page, limit, strings.TrimSpace(search))
	if err != nil {
		return nil, 0, err
	}

	res := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		res = append(res, toProductResponse(p))
	}
	return res, total, nil
}

func (s *productService) GetProduct(ctx context.Context, id string) (*ProductResponse, error) {
	productID, err := parseID(id, "product")
	if err != nil {
		return nil, err
	}
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, lookupErr(err, "product")
	}
	res := toProductResponse(*product)
	return &res, nil
}

func (s *productService) ensureUniqueSKU(ctx context.Context, sku string, self uuid.UUID) error {
	existing, err := s.productRepo.FindBySKU(ctx, sku)
	if err == nil && existing.ID != self {
		return apperror.Conflict("sku %q already exists", sku)
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}

func (s *productService) CreateProduct(ctx context.Context, actorID string, req CreateProductRequest) (*ProductResponse, error) {
	if err := validateSalePrice(req.Price, req.SalePrice); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueSKU(ctx, req.SKU, uuid.Nil); err != nil {
		return nil, err
	}

	product := model.Product{
		SKU:       req.SKU,
		Name:      req.Name,
		Price:     req.Price,
		SalePrice: req.SalePrice,
		Images:    req.Images,
		Stock:     0,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.productRepo.Create(txCtx, &product); err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionCreateProduct, product.ID.String(), product.Name, req)
	})
	if err != nil {
		return nil, err
	}

	res := toProductResponse(product)
	return &res, nil
}

func (s *productService) UpdateProduct(ctx context.Context, actorID, id string, req UpdateProductRequest) (*ProductResponse, error) {
	productID, err := parseID(id, "product")
	if err != nil {
		return nil, err
	}
	if err := validateSalePrice(req.Price, req.SalePrice); err != nil {
		return nil, err
	}

	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, lookupErr(err, "product")
	}
	if req.SKU != product.SKU {
		if err := s.ensureUniqueSKU(ctx, req.SKU, product.ID); err != nil {
			return nil, err
		}
	}

	product.SKU = req.SKU
	product.Name = req.Name
	product.Price = req.Price
	product.SalePrice = req.SalePrice
	product.Images = req.Images

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.productRepo.Update(txCtx, product); err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionUpdateProduct, product.ID.String(), product.Name, req)
	})
	if err != nil {
		return nil, err
	}

	res := toProductResponse(*product)
	return &res, nil
}

func (s *productService) DeleteProduct(ctx context.Context, actorID, id string) error {
	productID, err := parseID(id, "product")
	if err != nil {
		return err
	}
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return lookupErr(err, "product")
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.productRepo.Delete(txCtx, productID); err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionDeleteProduct, product.ID.String(), product.Name, nil)
	})
}

// AdjustStock moves stock in or out under a row lock and records the movement in the ledger
func (s *productService) AdjustStock(ctx context.Context, actorID, id string, req AdjustStockRequest) (*ProductResponse, error) {
	productID, err := parseID(id, "product")
	if err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, apperror.Validation("quantity must be positive")
	}
	if req.Type != model.TxTypeIn && req.Type != model.TxTypeOut {
		return nil, apperror.Validation("type must be IN or OUT")
	}

	var updated model.Product
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := s.productRepo.FindByIDForUpdate(txCtx, productID)
		if err != nil {
			return lookupErr(err, "product")
		}

		newStock := product.Stock + req.Quantity
		if req.Type == model.TxTypeOut {
			if product.Stock < req.Quantity {
				return apperror.InsufficientStock("insufficient stock for %s: requested %d, available %d", product.Name, req.Quantity, product.Stock)
			}
			newStock = product.Stock - req.Quantity
		}

		if err := s.productRepo.UpdateStock(txCtx, product.ID, newStock); err != nil {
			return fmt.Errorf("failed to update stock: %w", err)
		}

		var uid *uuid.UUID
		if parsed, err := uuid.Parse(actorID); err == nil {
			uid = &parsed
		}
		entry := &model.InventoryTransaction{
			ProductID:       product.ID,
			UserID:          uid,
			TransactionType: req.Type,
			QuantityChanged: req.Quantity,
			StockAfter:      newStock,
			Note:            req.Note,
		}
		if err := s.ledgerRepo.Create(txCtx, entry); err != nil {
			return fmt.Errorf("failed to record inventory transaction: %w", err)
		}

		product.Stock = newStock
		updated = *product
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionAdjustStock, product.ID.String(), product.Name, req)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("stock adjusted",
		zap.String("product_id", updated.ID.String()),
		zap.String("type", req.Type),
		zap.Int("quantity", req.Quantity),
		zap.Int("stock_after", updated.Stock))

	res := toProductResponse(updated)
	return &res, nil
}

func (s *productService) StockHistory(ctx context.Context, id string, limit int) ([]StockMovementResponse, error) {
	productID, err := parseID(id, "product")
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if _, err := s.productRepo.FindByID(ctx, productID); err != nil {
		return nil, lookupErr(err, "product")
	}

	txs, err := s.ledgerRepo.ListByProduct(ctx, productID, limit)
	if err != nil {
		return nil, err
	}
	res := make([]StockMovementResponse, 0, len(txs))
	for _, t := range txs {
		res = append(res, StockMovementResponse{
			ID:              t.ID.String(),
			TransactionType: t.TransactionType,
			QuantityChanged: t.QuantityChanged,
			StockAfter:      t.StockAfter,
			Note:            t.Note,
			CreatedAt:       t.CreatedAt.Format(timeLayout),
		})
	}
	return res, nil
}
