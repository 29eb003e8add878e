package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stocklot/stocklot-backend/pkg/database"
	"github.com/stocklot/stocklot-backend/pkg/errors"
)

// Product is a semi-finished good produced in-house from a recipe. Yield
// is the output quantity of one production run at recipe scale 1.
type Product struct {
	ID             string          `db:"id" json:"id"`
	TenantID       string          `db:"tenant_id" json:"-"`
	Name           string          `db:"name" json:"name"`
	Unit           string          `db:"unit" json:"unit"`
	Yield          decimal.Decimal `db:"yield" json:"yield"`
	ShelfLifeHours *int            `db:"shelf_life_hours" json:"shelf_life_hours,omitempty"`
	IsActive       bool            `db:"is_active" json:"is_active"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// RecipeLine is one ingredient of a product's recipe. Quantity is the
// amount consumed by a run at scale 1, in the line's unit.
type RecipeLine struct {
	ID        string          `db:"id" json:"id"`
	TenantID  string          `db:"tenant_id" json:"-"`
	ProductID string          `db:"product_id" json:"product_id"`
	ItemID    string          `db:"item_id" json:"item_id"`
	Quantity  decimal.Decimal `db:"quantity" json:"quantity"`
	Unit      string          `db:"unit" json:"unit"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// RecipeRepository handles products and their recipes
type RecipeRepository struct {
	db *database.DB
}

// NewRecipeRepository creates a new recipe repository
func NewRecipeRepository(db *database.DB) *RecipeRepository {
	return &RecipeRepository{db: db}
}

// CreateProduct creates a product
func (r *RecipeRepository) CreateProduct(ctx context.Context, tenantID string, product *Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	product.TenantID = tenantID

	query := `
		INSERT INTO products (id, tenant_id, name, unit, yield, shelf_life_hours, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowxContext(ctx, query,
		product.ID, product.TenantID, product.Name, product.Unit,
		product.Yield, product.ShelfLifeHours, product.IsActive,
	).Scan(&product.CreatedAt, &product.UpdatedAt)
}

// GetProduct gets a product by ID
func (r *RecipeRepository) GetProduct(ctx context.Context, tenantID, id string) (*Product, error) {
	var product Product
	query := `SELECT * FROM products WHERE tenant_id = $1 AND id = $2`
	if err := r.db.GetContext(ctx, &product, query, tenantID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("product")
		}
		return nil, err
	}
	return &product, nil
}

// AddLine appends an ingredient line to a product's recipe
func (r *RecipeRepository) AddLine(ctx context.Context, tenantID string, line *RecipeLine) error {
	if line.ID == "" {
		line.ID = uuid.New().String()
	}
	line.TenantID = tenantID

	query := `
		INSERT INTO recipe_lines (id, tenant_id, product_id, item_id, quantity, unit)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	return r.db.QueryRowxContext(ctx, query,
		line.ID, line.TenantID, line.ProductID, line.ItemID, line.Quantity, line.Unit,
	).Scan(&line.CreatedAt)
}

// ListLines returns a product's recipe lines ordered by ingredient item so
// production runs always lock ingredients in the same order
func (r *RecipeRepository) ListLines(ctx context.Context, tenantID, productID string) ([]*RecipeLine, error) {
	var lines []*RecipeLine
	query := `
		SELECT * FROM recipe_lines
		WHERE tenant_id = $1 AND product_id = $2
		ORDER BY item_id ASC
	`
	if err := r.db.SelectContext(ctx, &lines, query, tenantID, productID); err != nil {
		return nil, err
	}
	return lines, nil
}

// AffectedProductNames returns the names of active products whose recipes
// consume the given item. Used for the out-of-stock alert hint.
func (r *RecipeRepository) AffectedProductNames(ctx context.Context, tenantID, itemID string) ([]string, error) {
	var names []string
	query := `
		SELECT DISTINCT p.name FROM products p
		JOIN recipe_lines rl ON rl.product_id = p.id AND rl.tenant_id = p.tenant_id
		WHERE p.tenant_id = $1 AND rl.item_id = $2 AND p.is_active = true
		ORDER BY p.name
	`
	if err := r.db.SelectContext(ctx, &names, query, tenantID, itemID); err != nil {
		return nil, err
	}
	return names, nil
}
