package product

import (
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Status codes stored on the products table. Spreadsheet imports carry the
// textual labels; anything unrecognized falls back to StatusOutOfStock.
const (
	StatusOutOfStock   = 0
	StatusSelling      = 1
	StatusDiscontinued = 2
)

var statusByLabel = map[string]int{
	"out of stock": StatusOutOfStock,
	"selling":      StatusSelling,
	"discontinued": StatusDiscontinued,
}

var labelByStatus = map[int]string{
	StatusOutOfStock:   "out of stock",
	StatusSelling:      "selling",
	StatusDiscontinued: "discontinued",
}

func StatusCode(label string) int {
	if code, ok := statusByLabel[strings.ToLower(strings.TrimSpace(label))]; ok {
		return code
	}
	return StatusOutOfStock
}

func StatusLabel(code int) string {
	if label, ok := labelByStatus[code]; ok {
		return label
	}
	return labelByStatus[StatusOutOfStock]
}

type Product struct {
	Code      string         `gorm:"primaryKey;size:16" json:"code"`
	Name      string         `gorm:"size:255;not null" json:"name"`
	Category  string         `gorm:"size:100" json:"category"`
	Price     float64        `gorm:"not null" json:"price"`
	Stock     int            `gorm:"not null;default:0" json:"stock"`
	Status    int            `gorm:"not null;default:0" json:"status"`
	Tags      pq.StringArray `gorm:"type:text[]" json:"tags"`
	URL       string         `gorm:"size:512" json:"url"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Product) TableName() string {
	return "products"
}
