package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNextDocumentNumber(t *testing.T) {
	db := newTestDB(t)
	at := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	next := func(prefix string, when time.Time) string {
		var out string
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			var err error
			out, err = NextDocumentNumber(tx, prefix, when)
			return err
		}))
		return out
	}

	assert.Equal(t, "INV/2026/0001", next(PrefixInvoice, at))
	assert.Equal(t, "INV/2026/0002", next(PrefixInvoice, at))
	assert.Equal(t, "PAY/2026/0001", next(PrefixPayment, at))
	assert.Equal(t, "INV/2027/0001", next(PrefixInvoice, at.AddDate(1, 0, 0)))
	assert.Equal(t, "EXP/20260309/0001", next(PrefixExpenditure, at))
	assert.Equal(t, "EXP/20260310/0001", next(PrefixExpenditure, at.AddDate(0, 0, 1)))
}

func TestNextSequenceRollsBackWithTransaction(t *testing.T) {
	db := newTestDB(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := NextSequence(tx, PrefixInvoice, "2026"); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	var n int64
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		n, err = NextSequence(tx, PrefixInvoice, "2026")
		return err
	}))
	assert.Equal(t, int64(1), n)
}

func TestNextDocumentNumberConcurrent(t *testing.T) {
	db := newTestDB(t)
	at := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	const workers = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[string]struct{}, workers)
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var num string
			err := db.Transaction(func(tx *gorm.DB) error {
				var err error
				num, err = NextDocumentNumber(tx, PrefixInvoice, at)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			numbers[num] = struct{}{}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, numbers, workers)
	assert.Contains(t, numbers, "INV/2026/0001")
	assert.Contains(t, numbers, "INV/2026/0050")
}
