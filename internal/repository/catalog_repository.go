package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/deskgo-io/deskgo/internal/models"
)

// SQLCatalogRepository reads the routing catalog. Catalog rows are flat
// reference data, so reads go through sqlx struct scanning.
type SQLCatalogRepository struct {
	db *sqlx.DB
}

func NewSQLCatalogRepository(db *sqlx.DB) *SQLCatalogRepository {
	return &SQLCatalogRepository{db: db}
}

func (r *SQLCatalogRepository) Menu(ctx context.Context, organizationID int) (*models.Menu, error) {
	menu := &models.Menu{}

	err := r.db.SelectContext(ctx, &menu.Areas, `
		SELECT id, organization_id, name FROM areas
		WHERE organization_id = $1 ORDER BY name`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list areas: %w", err)
	}

	err = r.db.SelectContext(ctx, &menu.Categories, `
		SELECT id, organization_id, name FROM categories
		WHERE organization_id = $1 ORDER BY name`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	if len(menu.Categories) > 0 {
		var subcategories []models.Subcategory
		query, args, err := sqlx.In(`
			SELECT s.id, s.category_id, s.name FROM subcategories s
			WHERE s.category_id IN (?) ORDER BY s.name`, categoryIDs(menu.Categories))
		if err != nil {
			return nil, fmt.Errorf("failed to build subcategory query: %w", err)
		}
		query = r.db.Rebind(query)
		if err := r.db.SelectContext(ctx, &subcategories, query, args...); err != nil {
			return nil, fmt.Errorf("failed to list subcategories: %w", err)
		}
		byCategory := make(map[int][]models.Subcategory, len(menu.Categories))
		for _, sub := range subcategories {
			byCategory[sub.CategoryID] = append(byCategory[sub.CategoryID], sub)
		}
		for i := range menu.Categories {
			menu.Categories[i].Subcategories = byCategory[menu.Categories[i].ID]
		}
	}

	err = r.db.SelectContext(ctx, &menu.Products, `
		SELECT id, organization_id, name FROM products
		WHERE organization_id = $1 ORDER BY name`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	return menu, nil
}

func categoryIDs(categories []models.Category) []int {
	ids := make([]int, len(categories))
	for i, category := range categories {
		ids[i] = category.ID
	}
	return ids
}
