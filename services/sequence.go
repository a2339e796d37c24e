package services

import (
	"fmt"
	"time"

	"schoolcore/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	PrefixInvoice     = "INV"
	PrefixPayment     = "PAY"
	PrefixExpenditure = "EXP"
	PrefixSalary      = "SAL"
)

// lockForUpdate adds SELECT ... FOR UPDATE. SQLite has no row locks and
// serializes writers itself, so the clause is left out there.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// NextSequence allocates the next value of the (prefix, period) counter. It
// must run inside tx; the counter row stays locked until tx ends.
func NextSequence(tx *gorm.DB, prefix, period string) (int64, error) {
	seed := models.DocumentSequence{Prefix: prefix, Period: period}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "prefix"}, {Name: "period"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return 0, fmt.Errorf("seed sequence %s/%s: %w", prefix, period, err)
	}

	var row models.DocumentSequence
	if err := lockForUpdate(tx).
		Where("prefix = ? AND period = ?", prefix, period).
		First(&row).Error; err != nil {
		return 0, fmt.Errorf("lock sequence %s/%s: %w", prefix, period, err)
	}

	row.LastValue++
	if err := tx.Model(&models.DocumentSequence{}).
		Where("id = ?", row.ID).
		Updates(map[string]interface{}{"last_value": row.LastValue, "updated_at": time.Now()}).Error; err != nil {
		return 0, fmt.Errorf("advance sequence %s/%s: %w", prefix, period, err)
	}
	return row.LastValue, nil
}

// FormatDocumentNumber renders PREFIX/PERIOD/0001.
func FormatDocumentNumber(prefix, period string, n int64) string {
	return fmt.Sprintf("%s/%s/%04d", prefix, period, n)
}

// PeriodFor returns the numbering period of a prefix: the day for
// expenditures, the year for everything else.
func PeriodFor(prefix string, at time.Time) string {
	if prefix == PrefixExpenditure {
		return at.Format("20060102")
	}
	return at.Format("2006")
}

// NextDocumentNumber allocates and formats the next number for prefix at time at.
func NextDocumentNumber(tx *gorm.DB, prefix string, at time.Time) (string, error) {
	period := PeriodFor(prefix, at)
	n, err := NextSequence(tx, prefix, period)
	if err != nil {
		return "", err
	}
	return FormatDocumentNumber(prefix, period, n), nil
}
