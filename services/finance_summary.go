package services

import (
	"context"
	"fmt"
	"time"

	"schoolcore/models"
	"schoolcore/utils"

	"gorm.io/gorm"
)

type FinanceSummary struct {
	Start            time.Time `json:"start_date"`
	End              time.Time `json:"end_date"`
	TotalRevenue     float64   `json:"total_revenue"`
	TotalExpenditure float64   `json:"total_expenditure"`
	NetIncome        float64   `json:"net_income"`
	OutstandingFees  float64   `json:"outstanding_fees"`
	PaidInvoices     int64     `json:"paid_invoices"`
	PartialInvoices  int64     `json:"partial_invoices"`
	UnpaidInvoices   int64     `json:"unpaid_invoices"`
}

// monthWindow returns [first of month, first of next month) around t.
func monthWindow(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

func sumColumn(q *gorm.DB, column string) (float64, error) {
	var v float64
	err := q.Select("COALESCE(SUM(" + column + "), 0)").Scan(&v).Error
	return utils.Round2(v), err
}

// Summary reports money in and out over [start, end). Nil bounds default to
// the current month. Outstanding fees and invoice counts are not ranged.
func (s *LedgerService) Summary(ctx context.Context, start, end *time.Time) (*FinanceSummary, error) {
	db := s.db.WithContext(ctx)
	from, to := monthWindow(s.now())
	if start != nil {
		from = *start
	}
	if end != nil {
		to = *end
	}
	if !to.After(from) {
		return nil, &ValidationError{Message: "invalid date range", Fields: map[string]string{"end_date": "must be after start_date"}}
	}

	out := &FinanceSummary{Start: from, End: to}
	var err error
	if out.TotalRevenue, err = sumColumn(db.Model(&models.Payment{}).
		Where("payment_date >= ? AND payment_date < ?", from, to), "amount_paid"); err != nil {
		return nil, fmt.Errorf("sum revenue: %w", err)
	}
	if out.TotalExpenditure, err = sumColumn(db.Model(&models.Expenditure{}).
		Where("transaction_date >= ? AND transaction_date < ?", from, to), "amount"); err != nil {
		return nil, fmt.Errorf("sum expenditure: %w", err)
	}
	out.NetIncome = utils.Round2(out.TotalRevenue - out.TotalExpenditure)

	if out.OutstandingFees, err = sumColumn(db.Model(&models.Invoice{}).
		Where("status IN ?", []string{models.InvoiceUnpaid, models.InvoicePartial}), "balance"); err != nil {
		return nil, fmt.Errorf("sum outstanding fees: %w", err)
	}

	var counts []struct {
		Status string
		N      int64
	}
	if err := db.Model(&models.Invoice{}).Select("status, COUNT(*) AS n").Group("status").Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("count invoices: %w", err)
	}
	for _, c := range counts {
		switch c.Status {
		case models.InvoicePaid:
			out.PaidInvoices = c.N
		case models.InvoicePartial:
			out.PartialInvoices = c.N
		case models.InvoiceUnpaid:
			out.UnpaidInvoices = c.N
		}
	}
	return out, nil
}

type MethodTotal struct {
	PaymentMethod string  `json:"payment_method"`
	Total         float64 `json:"total"`
	Count         int64   `json:"count"`
}

type DailyCollection struct {
	Date         string        `json:"date"`
	Total        float64       `json:"total"`
	Transactions int64         `json:"transactions"`
	ByMethod     []MethodTotal `json:"by_method"`
}

// DailyCollection totals the payments taken on the calendar day of date.
func (s *LedgerService) DailyCollection(ctx context.Context, date time.Time) (*DailyCollection, error) {
	from := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	to := from.AddDate(0, 0, 1)

	var rows []MethodTotal
	if err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Select("payment_method, COALESCE(SUM(amount_paid), 0) AS total, COUNT(*) AS count").
		Where("payment_date >= ? AND payment_date < ?", from, to).
		Group("payment_method").
		Order("payment_method").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("daily collection: %w", err)
	}

	out := &DailyCollection{Date: from.Format("2006-01-02"), ByMethod: []MethodTotal{}}
	for _, r := range rows {
		r.Total = utils.Round2(r.Total)
		out.Total += r.Total
		out.Transactions += r.Count
		out.ByMethod = append(out.ByMethod, r)
	}
	out.Total = utils.Round2(out.Total)
	return out, nil
}

type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Count    int64   `json:"count"`
}

func (s *LedgerService) CategorySummary(ctx context.Context, start, end *time.Time) ([]CategoryTotal, error) {
	q := s.db.WithContext(ctx).Model(&models.Expenditure{})
	if start != nil {
		q = q.Where("transaction_date >= ?", *start)
	}
	if end != nil {
		q = q.Where("transaction_date < ?", *end)
	}
	var out []CategoryTotal
	if err := q.Select("category, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Group("category").
		Order("total DESC").
		Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("expenditure category summary: %w", err)
	}
	for i := range out {
		out[i].Total = utils.Round2(out[i].Total)
	}
	return out, nil
}

type MonthTrend struct {
	Month       int     `json:"month"`
	Revenue     float64 `json:"revenue"`
	Expenditure float64 `json:"expenditure"`
	Net         float64 `json:"net"`
}

// MonthlyTrends returns twelve entries, January first. Months are bucketed
// in Go so the query stays the same on every database driver.
func (s *LedgerService) MonthlyTrends(ctx context.Context, year int) ([]MonthTrend, error) {
	db := s.db.WithContext(ctx)
	loc := s.now().Location()
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	to := from.AddDate(1, 0, 0)

	var payments []models.Payment
	if err := db.Select("amount_paid", "payment_date").
		Where("payment_date >= ? AND payment_date < ?", from, to).
		Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("load payments of %d: %w", year, err)
	}
	var expenditures []models.Expenditure
	if err := db.Select("amount", "transaction_date").
		Where("transaction_date >= ? AND transaction_date < ?", from, to).
		Find(&expenditures).Error; err != nil {
		return nil, fmt.Errorf("load expenditures of %d: %w", year, err)
	}

	out := make([]MonthTrend, 12)
	for i := range out {
		out[i].Month = i + 1
	}
	for _, p := range payments {
		out[p.PaymentDate.In(loc).Month()-1].Revenue += p.AmountPaid
	}
	for _, e := range expenditures {
		out[e.TransactionDate.In(loc).Month()-1].Expenditure += e.Amount
	}
	for i := range out {
		out[i].Revenue = utils.Round2(out[i].Revenue)
		out[i].Expenditure = utils.Round2(out[i].Expenditure)
		out[i].Net = utils.Round2(out[i].Revenue - out[i].Expenditure)
	}
	return out, nil
}
