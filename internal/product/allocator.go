package product

import (
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// CodeAllocator hands out product codes of the form <letter><8 digits>.
//
// The letter bucket is the first alphabetic character of the product name
// (uppercased; X when the name has none). The first allocation for a bucket
// scans existing codes once, including soft-deleted rows so their numbers are
// never reissued, and every later allocation for that bucket increments an
// in-memory counter. The cache is valid for the lifetime of one batch only;
// the unique constraint on products.code is the final collision arbiter when
// batches race.
type CodeAllocator struct {
	db   *gorm.DB
	next map[string]int
}

func NewCodeAllocator(db *gorm.DB) *CodeAllocator {
	return &CodeAllocator{db: db, next: make(map[string]int)}
}

// Bucket derives the allocation bucket from a display name.
func Bucket(name string) string {
	for _, r := range name {
		if r >= 'a' && r <= 'z' {
			return strings.ToUpper(string(r))
		}
		if r >= 'A' && r <= 'Z' {
			return string(r)
		}
	}
	return "X"
}

// Next allocates a fresh code for the given display name.
func (a *CodeAllocator) Next(name string) (string, error) {
	bucket := Bucket(name)

	if _, ok := a.next[bucket]; !ok {
		var codes []string
		if err := a.db.Unscoped().Model(&Product{}).
			Where("code LIKE ?", bucket+"%").
			Pluck("code", &codes).Error; err != nil {
			return "", err
		}

		max := 0
		for _, code := range codes {
			n, err := strconv.Atoi(strings.TrimPrefix(code, bucket))
			if err != nil {
				continue
			}
			if n > max {
				max = n
			}
		}
		a.next[bucket] = max + 1
	}

	n := a.next[bucket]
	a.next[bucket]++

	return fmt.Sprintf("%s%08d", bucket, n), nil
}
