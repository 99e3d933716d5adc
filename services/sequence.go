package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kendall-kelly/installations-scheduling-api/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sequence hands out strictly increasing numbers per name. Two callers never
// receive the same value.
type Sequence interface {
	Next(ctx context.Context, name string) (int64, error)
}

// SeedFunc returns the starting value for a counter that does not exist yet,
// so numbering continues after orders created before the counter existed.
type SeedFunc func(ctx context.Context, name string) (int64, error)

const installationCounter = "installation"

// InvoiceCounter names the per-branch per-year invoice sequence
func InvoiceCounter(branchCode string, year int) string {
	return fmt.Sprintf("invoice:%s:%02d", branchCode, year%100)
}

// FormatInvoiceNumber renders INV-{branch}-{YY}-{seq}
func FormatInvoiceNumber(branchCode string, year int, seq int64) string {
	return fmt.Sprintf("INV-%s-%02d-%04d", branchCode, year%100, seq)
}

// FormatInstallationNumber renders INS-{seq} padded to six digits
func FormatInstallationNumber(seq int64) string {
	return fmt.Sprintf("INS-%06d", seq)
}

// GormSequence keeps counters in the counters table
type GormSequence struct {
	db   *gorm.DB
	seed SeedFunc
}

// NewGormSequence creates a table-backed sequence
func NewGormSequence(db *gorm.DB, seed SeedFunc) *GormSequence {
	return &GormSequence{db: db, seed: seed}
}

// Next increments the named counter inside one transaction and returns the
// new value.
func (s *GormSequence) Next(ctx context.Context, name string) (int64, error) {
	var start int64
	if s.seed != nil {
		var exists int64
		if err := s.db.WithContext(ctx).Model(&models.Counter{}).Where("name = ?", name).Count(&exists).Error; err != nil {
			return 0, err
		}
		if exists == 0 {
			n, err := s.seed(ctx, name)
			if err != nil {
				return 0, err
			}
			start = n
		}
	}

	var counter models.Counter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Counter{Name: name, Value: start}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Counter{}).Where("name = ?", name).
			Update("value", gorm.Expr("value + 1")).Error; err != nil {
			return err
		}
		return tx.Where("name = ?", name).First(&counter).Error
	})
	if err != nil {
		return 0, err
	}
	return counter.Value, nil
}

// RedisSequence keeps counters as redis integers
type RedisSequence struct {
	rdb  *redis.Client
	seed SeedFunc
}

// NewRedisSequence creates a redis-backed sequence
func NewRedisSequence(rdb *redis.Client, seed SeedFunc) *RedisSequence {
	return &RedisSequence{rdb: rdb, seed: seed}
}

// Next seeds the key once with SETNX and then INCRs it
func (s *RedisSequence) Next(ctx context.Context, name string) (int64, error) {
	key := "seq:" + name
	if s.seed != nil {
		exists, err := s.rdb.Exists(ctx, key).Result()
		if err != nil {
			return 0, err
		}
		if exists == 0 {
			n, err := s.seed(ctx, name)
			if err != nil {
				return 0, err
			}
			if err := s.rdb.SetNX(ctx, key, n, 0).Err(); err != nil {
				return 0, err
			}
		}
	}
	return s.rdb.Incr(ctx, key).Result()
}

// OrderCountSeed seeds counters from orders already stored: installation
// numbers continue after the highest existing order count, invoice numbers
// after the invoices already issued for that branch and year.
func OrderCountSeed(db *gorm.DB) SeedFunc {
	return func(ctx context.Context, name string) (int64, error) {
		var n int64
		q := db.WithContext(ctx)
		switch {
		case name == installationCounter:
			err := q.Model(&models.InstallationOrder{}).Count(&n).Error
			return n, err
		case strings.HasPrefix(name, "invoice:"):
			parts := strings.Split(name, ":")
			if len(parts) != 3 {
				return 0, nil
			}
			prefix := fmt.Sprintf("INV-%s-%s-%%", parts[1], parts[2])
			err := q.Model(&models.DeliveryOrder{}).Where("invoice_number LIKE ?", prefix).Count(&n).Error
			return n, err
		}
		return 0, nil
	}
}

// currentYear is swapped in tests
var currentYear = func() int {
	return time.Now().Year()
}
