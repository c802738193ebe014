package catalog

import (
	"errors"
	"time"
)

// ProductBase is a generic product family, e.g. "Cola" by "FizzCo".
type ProductBase struct {
	ID        string    `json:"id"`
	Name      string    `json:"nombre"`
	Brand     string    `json:"marca,omitempty"`
	Category  string    `json:"categoria,omitempty"`
	ImageURL  string    `json:"imagen,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProductVariant is one sellable SKU of a ProductBase.
type ProductVariant struct {
	ID        string    `json:"id"`
	BaseID    string    `json:"productoBaseId"`
	Barcode   string    `json:"ean"`
	FullName  string    `json:"nombreCompleto"`
	Type      string    `json:"tipo,omitempty"`
	Size      string    `json:"tamano,omitempty"`
	Flavor    string    `json:"sabor,omitempty"`
	Unit      string    `json:"unidad,omitempty"`
	ImageURL  string    `json:"imagen,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Product is the unified record every lookup resolves to.
type Product struct {
	Base    ProductBase    `json:"base"`
	Variant ProductVariant `json:"variante"`
}

// ManualDescriptor carries the fields a user types when no source knows a barcode.
type ManualDescriptor struct {
	BaseName string `json:"baseName" validate:"required,max=200"`
	Brand    string `json:"marca" validate:"max=120"`
	Category string `json:"categoria" validate:"max=120"`
	ImageURL string `json:"imagen" validate:"omitempty,url"`
	FullName string `json:"nombreCompleto" validate:"max=300"`
	Type     string `json:"tipo" validate:"max=120"`
	Size     string `json:"tamano" validate:"max=60"`
	Flavor   string `json:"sabor" validate:"max=120"`
	Unit     string `json:"unidad" validate:"max=20"`
}

var (
	// ErrNotFound indicates a missing store row.
	ErrNotFound = errors.New("catalog: not found")
	// ErrValidation indicates invalid input for a catalog operation.
	ErrValidation = errors.New("catalog: validation failed")
)
