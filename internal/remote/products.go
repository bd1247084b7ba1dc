package remote

import (
	"context"
	"fmt"
	"strings"

	"frostflow/internal/models"
)

// ListActiveProducts fetches all rows where is_active=true, ordered by name.
func (g *Gateway) ListActiveProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	query := fmt.Sprintf(
		`SELECT * FROM %s WHERE is_active = true ORDER BY name ASC`,
		g.table("products"))

	err := g.readRetry(ctx, "list_active_products", func(ctx context.Context) error {
		products = products[:0]
		return g.db.SelectContext(ctx, &products, query)
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct fetches one product by id regardless of its active flag.
func (g *Gateway) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	query := fmt.Sprintf(`SELECT * FROM %s WHERE id = $1`, g.table("products"))

	err := g.readRetry(ctx, "get_product", func(ctx context.Context) error {
		return g.db.GetContext(ctx, &product, query, id)
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// InsertProduct inserts a product and returns the authoritative row,
// including the generated id and timestamps.
func (g *Gateway) InsertProduct(ctx context.Context, np models.NewProduct) (*models.Product, error) {
	var product models.Product
	query := fmt.Sprintf(`
		INSERT INTO %s
			(name, category, unit_price, box_price, cost_price, base_unit,
			 is_variable_weight, standard_box_weight, image_url, is_active, unit, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true, 0, $10)
		RETURNING *`, g.table("products"))

	err := g.write(ctx, "insert_product", func(ctx context.Context) error {
		return g.db.GetContext(ctx, &product, query,
			np.Name, np.Category, np.UnitPrice, np.BoxPrice, np.CostPrice,
			np.BaseUnit, np.IsVariableWeight, np.StandardBoxWeight,
			np.ImageURL, np.CreatedBy)
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// UpdateProduct applies a partial update and returns the full updated row.
// Also the quantity-adjustment primitive for resolution and sale voiding.
func (g *Gateway) UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	sets, args := patchClauses(patch)
	if len(sets) == 0 {
		return g.GetProduct(ctx, id)
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d RETURNING *`,
		g.table("products"), strings.Join(sets, ", "), len(args))

	var product models.Product
	err := g.write(ctx, "update_product", func(ctx context.Context) error {
		return g.db.GetContext(ctx, &product, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// SoftDeleteProduct archives a product. Rows are never physically deleted.
func (g *Gateway) SoftDeleteProduct(ctx context.Context, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET is_active = false WHERE id = $1`, g.table("products"))

	return g.write(ctx, "soft_delete_product", func(ctx context.Context) error {
		res, err := g.db.ExecContext(ctx, query, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AdjustProductUnit sets the on-hand quantity to an absolute value.
func (g *Gateway) AdjustProductUnit(ctx context.Context, id string, unit float64) error {
	query := fmt.Sprintf(`UPDATE %s SET unit = $1 WHERE id = $2`, g.table("products"))

	return g.write(ctx, "adjust_product_unit", func(ctx context.Context) error {
		res, err := g.db.ExecContext(ctx, query, unit, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func patchClauses(patch models.ProductPatch) ([]string, []interface{}) {
	var sets []string
	var args []interface{}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.UnitPrice != nil {
		add("unit_price", *patch.UnitPrice)
	}
	if patch.BoxPrice != nil {
		add("box_price", *patch.BoxPrice)
	}
	if patch.CostPrice != nil {
		add("cost_price", *patch.CostPrice)
	}
	if patch.BaseUnit != nil {
		add("base_unit", *patch.BaseUnit)
	}
	if patch.IsVariableWeight != nil {
		add("is_variable_weight", *patch.IsVariableWeight)
	}
	if patch.StandardBoxWeight != nil {
		add("standard_box_weight", *patch.StandardBoxWeight)
	}
	if patch.ImageURL != nil {
		add("image_url", *patch.ImageURL)
	}
	if patch.Unit != nil {
		add("unit", *patch.Unit)
	}
	return sets, args
}
