package restock

import (
	"errors"
	"time"

	"github.com/gondolapp/gondolapp/internal/catalog"
)

// Item tracks how many units of a variant must be brought to the shelf.
// Restocked and OutOfStock are independent flags.
type Item struct {
	ID         string    `json:"id"`
	VariantID  string    `json:"varianteId"`
	Quantity   int       `json:"cantidad"`
	Restocked  bool      `json:"repuesto"`
	OutOfStock bool      `json:"sinStock"`
	AddedAt    time.Time `json:"fechaAgregado"`
	UpdatedAt  time.Time `json:"actualizadoEn"`
}

// Entry pairs an item with its variant; Variant is nil for dangling items.
type Entry struct {
	Item
	Variant *catalog.ProductVariant `json:"variante,omitempty"`
}

// AddInput describes a request to put a variant on the restock list.
type AddInput struct {
	VariantID string `json:"varianteId" validate:"required"`
	Quantity  int    `json:"cantidad" validate:"gte=1,lte=100000"`
}

// UpdateInput changes quantity or flags; nil fields are left untouched.
type UpdateInput struct {
	Quantity   *int  `json:"cantidad" validate:"omitempty,gte=1,lte=100000"`
	Restocked  *bool `json:"repuesto"`
	OutOfStock *bool `json:"sinStock"`
}

var (
	// ErrNotFound indicates a missing restock item.
	ErrNotFound = errors.New("restock: item not found")
	// ErrDuplicate is returned by repositories when the variant already has an open item.
	ErrDuplicate = errors.New("restock: variant already listed")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("restock: validation failed")
)
