package menu

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
)

// ItemInput creates a menu item. It doubles as the seed file row.
type ItemInput struct {
	Name        string             `json:"name" yaml:"name" validate:"required"`
	Description string             `json:"description" yaml:"description"`
	Price       decimal.Decimal    `json:"price" yaml:"price"`
	Category    enums.MenuCategory `json:"category" yaml:"category" validate:"required"`
	ImageURL    *string            `json:"image_url,omitempty" yaml:"image_url"`
	Size        string             `json:"size" yaml:"size"`
	Popular     bool               `json:"popular" yaml:"popular"`
	Spicy       bool               `json:"spicy" yaml:"spicy"`
	Available   *bool              `json:"available,omitempty" yaml:"available"`
}

// ItemPatch edits a menu item. Nil fields are untouched.
type ItemPatch struct {
	Name        *string             `json:"name,omitempty"`
	Description *string             `json:"description,omitempty"`
	Price       *decimal.Decimal    `json:"price,omitempty"`
	Category    *enums.MenuCategory `json:"category,omitempty"`
	ImageURL    *string             `json:"image_url,omitempty"`
	Size        *string             `json:"size,omitempty"`
	Popular     *bool               `json:"popular,omitempty"`
	Spicy       *bool               `json:"spicy,omitempty"`
	Available   *bool               `json:"available,omitempty"`
}

func (in ItemInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if !in.Category.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid category %q", in.Category)
	}
	if in.Price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	return nil
}

func (in ItemInput) toModel() *models.MenuItem {
	available := true
	if in.Available != nil {
		available = *in.Available
	}
	return &models.MenuItem{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price,
		Category:    in.Category,
		ImageURL:    in.ImageURL,
		Size:        strings.TrimSpace(in.Size),
		Popular:     in.Popular,
		Spicy:       in.Spicy,
		Available:   available,
	}
}

func (p ItemPatch) fields() (map[string]any, error) {
	out := map[string]any{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name must not be blank")
		}
		out["name"] = name
	}
	if p.Description != nil {
		out["description"] = strings.TrimSpace(*p.Description)
	}
	if p.Price != nil {
		if p.Price.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
		}
		out["price"] = *p.Price
	}
	if p.Category != nil {
		if !p.Category.IsValid() {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid category %q", *p.Category)
		}
		out["category"] = *p.Category
	}
	if p.ImageURL != nil {
		out["image_url"] = *p.ImageURL
	}
	if p.Size != nil {
		out["size"] = strings.TrimSpace(*p.Size)
	}
	if p.Popular != nil {
		out["popular"] = *p.Popular
	}
	if p.Spicy != nil {
		out["spicy"] = *p.Spicy
	}
	if p.Available != nil {
		out["available"] = *p.Available
	}
	if len(out) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}
	return out, nil
}
