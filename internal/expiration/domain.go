package expiration

import (
	"errors"
	"time"

	"github.com/gondolapp/gondolapp/internal/catalog"
)

// AlertLevel grades how close an item is to its expiration date.
type AlertLevel string

const (
	AlertNormal   AlertLevel = "normal"
	AlertCaution  AlertLevel = "caution"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Levels lists every alert level from least to most urgent.
var Levels = []AlertLevel{AlertNormal, AlertCaution, AlertWarning, AlertCritical}

// Alert thresholds in days until expiration, inclusive.
const (
	CriticalDays = 7
	WarningDays  = 15
	CautionDays  = 30
)

// Item records a lot of a variant that expires on a given day.
type Item struct {
	ID         string     `json:"id"`
	VariantID  string     `json:"varianteId"`
	ExpiresOn  time.Time  `json:"fechaVencimiento"`
	Quantity   *int       `json:"cantidad,omitempty"`
	LotCode    string     `json:"lote,omitempty"`
	AddedAt    time.Time  `json:"fechaAgregado"`
	AlertLevel AlertLevel `json:"alerta"`
	DaysLeft   int        `json:"diasRestantes"`
}

// Entry pairs an item with its variant; Variant is nil for dangling items.
type Entry struct {
	Item
	Variant *catalog.ProductVariant `json:"variante,omitempty"`
}

// AddInput describes a new expiration record. ExpiresOn uses YYYY-MM-DD.
type AddInput struct {
	VariantID string `json:"varianteId" validate:"required"`
	ExpiresOn string `json:"fechaVencimiento" validate:"required,datetime=2006-01-02"`
	Quantity  *int   `json:"cantidad" validate:"omitempty,gte=1"`
	LotCode   string `json:"lote" validate:"max=64"`
}

var (
	// ErrNotFound indicates a missing expiration item.
	ErrNotFound = errors.New("expiration: item not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("expiration: validation failed")
)

// DaysUntil counts whole UTC calendar days from now to the expiration day.
// Expired items yield negative values.
func DaysUntil(now, expiresOn time.Time) int {
	today := truncateDay(now)
	day := truncateDay(expiresOn)
	return int(day.Sub(today).Hours() / 24)
}

// LevelFor maps days until expiration to an alert level.
func LevelFor(days int) AlertLevel {
	switch {
	case days <= CriticalDays:
		return AlertCritical
	case days <= WarningDays:
		return AlertWarning
	case days <= CautionDays:
		return AlertCaution
	default:
		return AlertNormal
	}
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
