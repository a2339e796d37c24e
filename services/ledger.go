package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"schoolcore/models"
	"schoolcore/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultDueDays = 30

// LedgerService owns invoices, payments, expenditures and fee structures.
type LedgerService struct {
	db      *gorm.DB
	dueDays int
	now     func() time.Time
}

func NewLedgerService(db *gorm.DB, dueDays int) *LedgerService {
	if dueDays <= 0 {
		dueDays = defaultDueDays
	}
	return &LedgerService{db: db, dueDays: dueDays, now: time.Now}
}

// DeriveInvoiceStatus maps paid against total. A cancelled invoice stays cancelled.
func DeriveInvoiceStatus(current string, total, paid float64) string {
	switch {
	case current == models.InvoiceCancelled:
		return models.InvoiceCancelled
	case paid >= total:
		return models.InvoicePaid
	case paid > 0:
		return models.InvoicePartial
	default:
		return models.InvoiceUnpaid
	}
}

// RecomputeInvoice rederives amount_paid, balance and status from the
// invoice's payments. Running it twice changes nothing.
func RecomputeInvoice(tx *gorm.DB, invoiceID uint) (*models.Invoice, error) {
	var inv models.Invoice
	if err := tx.First(&inv, invoiceID).Error; err != nil {
		return nil, lookupErr(err, "invoice", invoiceID)
	}

	var paid float64
	if err := tx.Model(&models.Payment{}).
		Where("invoice_id = ?", invoiceID).
		Select("COALESCE(SUM(amount_paid), 0)").
		Scan(&paid).Error; err != nil {
		return nil, fmt.Errorf("sum payments of invoice %d: %w", invoiceID, err)
	}

	inv.AmountPaid = utils.Round2(paid)
	inv.Balance = utils.Round2(inv.TotalAmount - inv.AmountPaid)
	inv.Status = DeriveInvoiceStatus(inv.Status, utils.Round2(inv.TotalAmount), inv.AmountPaid)

	if err := tx.Model(&models.Invoice{}).Where("id = ?", inv.ID).Updates(map[string]interface{}{
		"amount_paid": inv.AmountPaid,
		"balance":     inv.Balance,
		"status":      inv.Status,
	}).Error; err != nil {
		return nil, fmt.Errorf("update invoice %d: %w", invoiceID, err)
	}
	return &inv, nil
}

// ParseInvoiceTerm accepts a school term or "annual".
func ParseInvoiceTerm(s string) (models.Term, bool) {
	if strings.EqualFold(strings.TrimSpace(s), string(models.TermAnnual)) {
		return models.TermAnnual, true
	}
	return models.ParseTerm(s)
}

type GenerateInvoiceInput struct {
	StudentID      uint   `json:"student_id" validate:"required"`
	AcademicYearID uint   `json:"academic_year_id" validate:"required"`
	Term           string `json:"term" validate:"required"`
	DueDays        int    `json:"due_days" validate:"gte=0"`
	GeneratedBy    *uint  `json:"-"`
}

func (s *LedgerService) GenerateInvoice(ctx context.Context, in GenerateInvoiceInput) (*models.Invoice, error) {
	var out *models.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.generateTx(tx, in)
		if err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"invoice_number": out.InvoiceNumber,
		"student_id":     out.StudentID,
		"total":          out.TotalAmount,
	}).Info("Invoice generated")
	return out, nil
}

// studentClassInYear finds the class the student sits in for a year,
// preferring an active enrollment. Nil means not enrolled that year.
func studentClassInYear(tx *gorm.DB, studentID, yearID uint) (*uint, error) {
	var enrollments []models.Enrollment
	if err := tx.Model(&models.Enrollment{}).
		Joins("JOIN classes ON classes.id = enrollments.class_id").
		Where("enrollments.student_id = ? AND classes.academic_year_id = ?", studentID, yearID).
		Order("enrollments.id DESC").
		Find(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("load enrollments of student %d: %w", studentID, err)
	}
	if len(enrollments) == 0 {
		return nil, nil
	}
	pick := enrollments[0]
	for _, e := range enrollments {
		if e.Status == models.EnrollmentActive {
			pick = e
			break
		}
	}
	return &pick.ClassID, nil
}

func (s *LedgerService) generateTx(tx *gorm.DB, in GenerateInvoiceInput) (*models.Invoice, error) {
	term, ok := ParseInvoiceTerm(in.Term)
	if !ok {
		return nil, &ValidationError{Message: "invalid invoice", Fields: map[string]string{"term": "must be first, second, third or annual"}}
	}

	var student models.Student
	if err := tx.First(&student, in.StudentID).Error; err != nil {
		return nil, lookupErr(err, "student", in.StudentID)
	}
	var year models.AcademicYear
	if err := tx.First(&year, in.AcademicYearID).Error; err != nil {
		return nil, lookupErr(err, "academic year", in.AcademicYearID)
	}

	var dup int64
	if err := tx.Model(&models.Invoice{}).
		Where("student_id = ? AND academic_year_id = ? AND term = ? AND status <> ?",
			in.StudentID, in.AcademicYearID, term, models.InvoiceCancelled).
		Count(&dup).Error; err != nil {
		return nil, fmt.Errorf("check existing invoices: %w", err)
	}
	if dup > 0 {
		return nil, NewValidationError("student %s already has a %s term invoice for %s", student.AdmissionNumber, term, year.YearName)
	}

	classID, err := studentClassInYear(tx, in.StudentID, in.AcademicYearID)
	if err != nil {
		return nil, err
	}

	q := tx.Where("academic_year_id = ? AND is_mandatory = ?", in.AcademicYearID, true)
	if classID != nil {
		q = q.Where("class_id IS NULL OR class_id = ?", *classID)
	} else {
		q = q.Where("class_id IS NULL")
	}
	if term != models.TermAnnual {
		q = q.Where("term IN ?", []models.Term{term, models.TermAll})
	}
	var structures []models.FeeStructure
	if err := q.Order("id").Find(&structures).Error; err != nil {
		return nil, fmt.Errorf("load fee structures: %w", err)
	}
	if len(structures) == 0 {
		return nil, NewValidationError("no mandatory fee structures apply to student %s for %s %s", student.AdmissionNumber, year.YearName, term)
	}

	now := s.now()
	number, err := NextDocumentNumber(tx, PrefixInvoice, now)
	if err != nil {
		return nil, err
	}

	dueDays := in.DueDays
	if dueDays <= 0 {
		dueDays = s.dueDays
	}

	items := make([]models.InvoiceItem, 0, len(structures))
	var total float64
	for _, fs := range structures {
		fsID := fs.ID
		items = append(items, models.InvoiceItem{FeeStructureID: &fsID, Description: fs.CategoryName, Amount: utils.Round2(fs.Amount)})
		total += utils.Round2(fs.Amount)
	}

	inv := models.Invoice{
		InvoiceNumber:  number,
		StudentID:      in.StudentID,
		AcademicYearID: in.AcademicYearID,
		Term:           term,
		TotalAmount:    utils.Round2(total),
		Balance:        utils.Round2(total),
		DueDate:        now.AddDate(0, 0, dueDays),
		Status:         models.InvoiceUnpaid,
		GeneratedBy:    in.GeneratedBy,
	}
	if err := tx.Omit(clause.Associations).Create(&inv).Error; err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	for i := range items {
		items[i].InvoiceID = inv.ID
	}
	if err := tx.Create(&items).Error; err != nil {
		return nil, fmt.Errorf("create invoice items: %w", err)
	}

	out, err := RecomputeInvoice(tx, inv.ID)
	if err != nil {
		return nil, err
	}
	out.Items = items
	return out, nil
}

type BulkGenerateInput struct {
	ClassID        uint   `json:"class_id" validate:"required"`
	AcademicYearID uint   `json:"academic_year_id"`
	Term           string `json:"term" validate:"required"`
	DueDays        int    `json:"due_days" validate:"gte=0"`
	GeneratedBy    *uint  `json:"-"`
}

type BulkGenerateResult struct {
	SuccessCount int              `json:"success_count"`
	ErrorCount   int              `json:"error_count"`
	Invoices     []models.Invoice `json:"invoices"`
	ErrorDetails []BatchItemError `json:"error_details"`
}

// BulkGenerate invoices every actively enrolled student of a class. Each
// student gets its own transaction, so one failure does not undo the others.
func (s *LedgerService) BulkGenerate(ctx context.Context, in BulkGenerateInput) (*BulkGenerateResult, error) {
	db := s.db.WithContext(ctx)

	var class models.Class
	if err := db.First(&class, in.ClassID).Error; err != nil {
		return nil, lookupErr(err, "class", in.ClassID)
	}
	yearID := in.AcademicYearID
	if yearID == 0 {
		yearID = class.AcademicYearID
	}

	var enrollments []models.Enrollment
	if err := db.Preload("Student").
		Where("class_id = ? AND status = ?", in.ClassID, models.EnrollmentActive).
		Order("roll_number").
		Find(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("load enrollments of class %d: %w", in.ClassID, err)
	}
	if len(enrollments) == 0 {
		return nil, NewValidationError("class %s has no active students", class.ClassName)
	}

	res := &BulkGenerateResult{Invoices: []models.Invoice{}, ErrorDetails: []BatchItemError{}}
	for _, e := range enrollments {
		var inv *models.Invoice
		err := db.Transaction(func(tx *gorm.DB) error {
			var err error
			inv, err = s.generateTx(tx, GenerateInvoiceInput{
				StudentID:      e.StudentID,
				AcademicYearID: yearID,
				Term:           in.Term,
				DueDays:        in.DueDays,
				GeneratedBy:    in.GeneratedBy,
			})
			return err
		})
		if err != nil {
			res.ErrorDetails = append(res.ErrorDetails, BatchItemError{
				StudentID:       e.StudentID,
				AdmissionNumber: e.Student.AdmissionNumber,
				Error:           err.Error(),
			})
			continue
		}
		res.Invoices = append(res.Invoices, *inv)
	}
	res.SuccessCount = len(res.Invoices)
	res.ErrorCount = len(res.ErrorDetails)

	logrus.WithFields(logrus.Fields{
		"class_id": in.ClassID,
		"success":  res.SuccessCount,
		"failed":   res.ErrorCount,
	}).Info("Bulk invoice generation finished")

	if res.SuccessCount == 0 {
		return res, &BatchFailedError{Errors: res.ErrorDetails}
	}
	return res, nil
}

type PaymentInput struct {
	InvoiceID            uint       `json:"invoice_id" validate:"required"`
	AmountPaid           float64    `json:"amount_paid" validate:"required"`
	PaymentMethod        string     `json:"payment_method"`
	TransactionReference string     `json:"transaction_reference" validate:"max=100"`
	PaymentDate          *time.Time `json:"payment_date"`
	Remarks              string     `json:"remarks"`
	ReceivedBy           *uint      `json:"-"`
}

// RecordPayment books a payment against an invoice with the invoice row
// locked, then rederives the invoice's balance and status.
func (s *LedgerService) RecordPayment(ctx context.Context, in PaymentInput) (*models.Payment, *models.Invoice, error) {
	fe := fieldErrors{}
	amount := utils.Round2(in.AmountPaid)
	if amount <= 0 {
		fe.add("amount_paid", "must be greater than zero")
	}
	method := strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	if method == "" {
		method = models.PaymentCash
	}
	if !models.IsValidPaymentMethod(method) {
		fe.add("payment_method", "unknown payment method")
	}
	if err := fe.err("invalid payment"); err != nil {
		return nil, nil, err
	}

	now := s.now()
	paidAt := now
	if in.PaymentDate != nil {
		paidAt = *in.PaymentDate
	}

	var (
		payment models.Payment
		invoice *models.Invoice
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv models.Invoice
		if err := lockForUpdate(tx).First(&inv, in.InvoiceID).Error; err != nil {
			return lookupErr(err, "invoice", in.InvoiceID)
		}
		switch {
		case inv.Status == models.InvoiceCancelled:
			return NewValidationError("invoice %s is cancelled", inv.InvoiceNumber)
		case inv.Status == models.InvoicePaid || utils.Round2(inv.Balance) <= 0:
			return NewValidationError("invoice %s is already paid", inv.InvoiceNumber)
		case amount > utils.Round2(inv.Balance):
			return &ValidationError{
				Message: fmt.Sprintf("payment exceeds outstanding balance of %.2f", inv.Balance),
				Fields:  map[string]string{"amount_paid": "exceeds outstanding balance"},
			}
		}

		number, err := NextDocumentNumber(tx, PrefixPayment, now)
		if err != nil {
			return err
		}
		payment = models.Payment{
			PaymentNumber:        number,
			InvoiceID:            inv.ID,
			AmountPaid:           amount,
			PaymentMethod:        method,
			TransactionReference: strings.TrimSpace(in.TransactionReference),
			PaymentDate:          paidAt,
			Remarks:              in.Remarks,
			ReceivedBy:           in.ReceivedBy,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return fmt.Errorf("create payment: %w", err)
		}

		invoice, err = RecomputeInvoice(tx, inv.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	logrus.WithFields(logrus.Fields{
		"payment_number": payment.PaymentNumber,
		"invoice_id":     invoice.ID,
		"amount":         payment.AmountPaid,
		"status":         invoice.Status,
	}).Info("Payment recorded")
	return &payment, invoice, nil
}

// CancelInvoice voids an invoice that has no payments.
func (s *LedgerService) CancelInvoice(ctx context.Context, id uint) (*models.Invoice, error) {
	var out models.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&out, id).Error; err != nil {
			return lookupErr(err, "invoice", id)
		}
		if out.Status == models.InvoiceCancelled {
			return nil
		}
		var payments int64
		if err := tx.Model(&models.Payment{}).Where("invoice_id = ?", id).Count(&payments).Error; err != nil {
			return fmt.Errorf("count payments of invoice %d: %w", id, err)
		}
		if payments > 0 {
			return NewValidationError("invoice %s has payments and cannot be cancelled", out.InvoiceNumber)
		}
		out.Status = models.InvoiceCancelled
		return tx.Model(&models.Invoice{}).Where("id = ?", id).Update("status", models.InvoiceCancelled).Error
	})
	if err != nil {
		return nil, err
	}
	logrus.WithField("invoice_number", out.InvoiceNumber).Info("Invoice cancelled")
	return &out, nil
}

func (s *LedgerService) GetInvoice(ctx context.Context, id uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.db.WithContext(ctx).
		Preload("Student").
		Preload("Items").
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("payment_date") }).
		First(&inv, id).Error
	if err != nil {
		return nil, lookupErr(err, "invoice", id)
	}
	return &inv, nil
}

type InvoiceFilter struct {
	StudentID      uint
	AcademicYearID uint
	Term           models.Term
	Status         string
	// Overdue keeps open invoices whose due date has passed.
	Overdue        bool
	Page
}

func (s *LedgerService) ListInvoices(ctx context.Context, f InvoiceFilter) ([]models.Invoice, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Invoice{})
	if f.StudentID != 0 {
		q = q.Where("student_id = ?", f.StudentID)
	}
	if f.AcademicYearID != 0 {
		q = q.Where("academic_year_id = ?", f.AcademicYearID)
	}
	if f.Term != "" {
		q = q.Where("term = ?", f.Term)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Overdue {
		q = q.Where("due_date < ? AND status IN ?", s.now(), []string{models.InvoiceUnpaid, models.InvoicePartial})
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}
	var out []models.Invoice
	if err := f.Page.apply(q.Preload("Student")).Order("created_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	return out, total, nil
}

func (s *LedgerService) InvoicePayments(ctx context.Context, invoiceID uint) ([]models.Payment, error) {
	db := s.db.WithContext(ctx)
	var inv models.Invoice
	if err := db.Select("id").First(&inv, invoiceID).Error; err != nil {
		return nil, lookupErr(err, "invoice", invoiceID)
	}
	var out []models.Payment
	if err := db.Where("invoice_id = ?", invoiceID).Order("payment_date, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list payments of invoice %d: %w", invoiceID, err)
	}
	return out, nil
}

type PaymentFilter struct {
	InvoiceID uint
	StudentID uint
	Method    string
	From      *time.Time
	To        *time.Time
	Page
}

func (s *LedgerService) ListPayments(ctx context.Context, f PaymentFilter) ([]models.Payment, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Payment{})
	if f.InvoiceID != 0 {
		q = q.Where("payments.invoice_id = ?", f.InvoiceID)
	}
	if f.StudentID != 0 {
		q = q.Joins("JOIN invoices ON invoices.id = payments.invoice_id").Where("invoices.student_id = ?", f.StudentID)
	}
	if f.Method != "" {
		q = q.Where("payments.payment_method = ?", f.Method)
	}
	if f.From != nil {
		q = q.Where("payments.payment_date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("payments.payment_date < ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	var out []models.Payment
	if err := f.Page.apply(q).Order("payments.payment_date DESC, payments.id DESC").Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	return out, total, nil
}

type ExpenditureInput struct {
	ItemName        string     `json:"item_name" validate:"required,max=255"`
	Category        string     `json:"category" validate:"required"`
	Amount          float64    `json:"amount" validate:"required"`
	VendorName      string     `json:"vendor_name" validate:"max=255"`
	TransactionDate *time.Time `json:"transaction_date"`
	PaymentMethod   string     `json:"payment_method"`
	Description     string     `json:"description"`
	ApprovedBy      *uint      `json:"approved_by"`
	ProcessedBy     *uint      `json:"-"`
}

func (s *LedgerService) CreateExpenditure(ctx context.Context, in ExpenditureInput) (*models.Expenditure, error) {
	fe := fieldErrors{}
	if strings.TrimSpace(in.ItemName) == "" {
		fe.add("item_name", "is required")
	}
	category := strings.ToLower(strings.TrimSpace(in.Category))
	if !models.IsValidExpenditureCategory(category) {
		fe.add("category", "must be one of "+strings.Join(models.ExpenditureCategories, ", "))
	}
	if utils.Round2(in.Amount) <= 0 {
		fe.add("amount", "must be greater than zero")
	}
	method := strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	if method != "" && !models.IsValidPaymentMethod(method) {
		fe.add("payment_method", "unknown payment method")
	}
	if err := fe.err("invalid expenditure"); err != nil {
		return nil, err
	}

	now := s.now()
	exp := models.Expenditure{
		ItemName:        utils.SanitizeString(in.ItemName),
		Category:        category,
		Amount:          utils.Round2(in.Amount),
		VendorName:      utils.SanitizeString(in.VendorName),
		TransactionDate: now,
		PaymentMethod:   method,
		Description:     in.Description,
		ApprovedBy:      in.ApprovedBy,
		ProcessedBy:     in.ProcessedBy,
	}
	if in.TransactionDate != nil {
		exp.TransactionDate = *in.TransactionDate
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := NextDocumentNumber(tx, PrefixExpenditure, now)
		if err != nil {
			return err
		}
		exp.ExpenditureNumber = number
		if err := tx.Create(&exp).Error; err != nil {
			return fmt.Errorf("create expenditure: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"expenditure_number": exp.ExpenditureNumber,
		"category":           exp.Category,
		"amount":             exp.Amount,
	}).Info("Expenditure recorded")
	return &exp, nil
}

func (s *LedgerService) GetExpenditure(ctx context.Context, id uint) (*models.Expenditure, error) {
	var exp models.Expenditure
	if err := s.db.WithContext(ctx).First(&exp, id).Error; err != nil {
		return nil, lookupErr(err, "expenditure", id)
	}
	return &exp, nil
}

type ExpenditureFilter struct {
	Category string
	From     *time.Time
	To       *time.Time
	Page
}

func (s *LedgerService) ListExpenditures(ctx context.Context, f ExpenditureFilter) ([]models.Expenditure, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Expenditure{})
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.From != nil {
		q = q.Where("transaction_date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("transaction_date < ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count expenditures: %w", err)
	}
	var out []models.Expenditure
	if err := f.Page.apply(q).Order("transaction_date DESC, id DESC").Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("list expenditures: %w", err)
	}
	return out, total, nil
}

// AttachReceipt stores the location of an uploaded receipt on an expenditure.
func (s *LedgerService) AttachReceipt(ctx context.Context, id uint, url string) (*models.Expenditure, error) {
	res := s.db.WithContext(ctx).Model(&models.Expenditure{}).Where("id = ?", id).Update("receipt_url", url)
	if res.Error != nil {
		return nil, fmt.Errorf("attach receipt to expenditure %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, &NotFoundError{Resource: "expenditure", ID: id}
	}
	return s.GetExpenditure(ctx, id)
}

type FeeStructureInput struct {
	AcademicYearID uint    `json:"academic_year_id" validate:"required"`
	ClassID        *uint   `json:"class_id"`
	CategoryName   string  `json:"category_name" validate:"required,max=100"`
	Amount         float64 `json:"amount" validate:"gte=0"`
	Frequency      string  `json:"frequency"`
	Term           string  `json:"term"`
	IsMandatory    *bool   `json:"is_mandatory"`
	Description    string  `json:"description"`
}

func (s *LedgerService) CreateFeeStructure(ctx context.Context, in FeeStructureInput) (*models.FeeStructure, error) {
	fe := fieldErrors{}
	if strings.TrimSpace(in.CategoryName) == "" {
		fe.add("category_name", "is required")
	}
	if in.Amount < 0 {
		fe.add("amount", "must not be negative")
	}
	frequency := strings.ToLower(strings.TrimSpace(in.Frequency))
	if frequency == "" {
		frequency = models.FrequencyTerm
	}
	switch frequency {
	case models.FrequencyOneTime, models.FrequencyTerm, models.FrequencyAnnual:
	default:
		fe.add("frequency", "must be one_time, term or annual")
	}
	term := models.TermAll
	if v := strings.TrimSpace(in.Term); v != "" && !strings.EqualFold(v, string(models.TermAll)) {
		t, ok := models.ParseTerm(v)
		if !ok {
			fe.add("term", "must be first, second, third or all")
		}
		term = t
	}
	if err := fe.err("invalid fee structure"); err != nil {
		return nil, err
	}

	fs := models.FeeStructure{
		AcademicYearID: in.AcademicYearID,
		ClassID:        in.ClassID,
		CategoryName:   utils.SanitizeString(in.CategoryName),
		Amount:         utils.Round2(in.Amount),
		Frequency:      frequency,
		Term:           term,
		IsMandatory:    in.IsMandatory == nil || *in.IsMandatory,
		Description:    in.Description,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var year models.AcademicYear
		if err := tx.First(&year, in.AcademicYearID).Error; err != nil {
			return lookupErr(err, "academic year", in.AcademicYearID)
		}
		if in.ClassID != nil {
			var class models.Class
			if err := tx.First(&class, *in.ClassID).Error; err != nil {
				return lookupErr(err, "class", *in.ClassID)
			}
		}
		// is_mandatory has a database default of true; write false explicitly.
		if err := tx.Omit(clause.Associations).Create(&fs).Error; err != nil {
			return fmt.Errorf("create fee structure: %w", err)
		}
		if !fs.IsMandatory {
			return tx.Model(&models.FeeStructure{}).Where("id = ?", fs.ID).Update("is_mandatory", false).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &fs, nil
}

func (s *LedgerService) ListFeeStructures(ctx context.Context, yearID, classID uint) ([]models.FeeStructure, error) {
	q := s.db.WithContext(ctx).Model(&models.FeeStructure{})
	if yearID != 0 {
		q = q.Where("academic_year_id = ?", yearID)
	}
	if classID != 0 {
		q = q.Where("class_id IS NULL OR class_id = ?", classID)
	}
	var out []models.FeeStructure
	if err := q.Order("academic_year_id, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list fee structures: %w", err)
	}
	return out, nil
}
