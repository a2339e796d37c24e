package controllers

import (
	"strconv"
	"strings"
	"time"

	"schoolcore/middleware"
	"schoolcore/services"
	"schoolcore/storage"

	"github.com/gofiber/fiber/v2"
)

// FinanceController covers invoices, payments, expenditures, fee structures
// and the finance dashboard.
type FinanceController struct {
	ledger  *services.LedgerService
	storage *storage.StorageService
}

// NewFinanceController accepts a nil storage; receipt uploads then answer 503.
func NewFinanceController(ledger *services.LedgerService, store *storage.StorageService) *FinanceController {
	return &FinanceController{ledger: ledger, storage: store}
}

func (fc *FinanceController) GenerateInvoice(c *fiber.Ctx) error {
	var in services.GenerateInvoiceInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	in.GeneratedBy = middleware.CurrentUserID(c)

	invoice, err := fc.ledger.GenerateInvoice(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Invoice generated successfully",
		"invoice": invoice,
	})
}

// BulkGenerate invoices every active member of a class. Partial failures are
// reported in error_details.
func (fc *FinanceController) BulkGenerate(c *fiber.Ctx) error {
	var in services.BulkGenerateInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	in.GeneratedBy = middleware.CurrentUserID(c)

	res, err := fc.ledger.BulkGenerate(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (fc *FinanceController) GetInvoices(c *fiber.Ctx) error {
	f := services.InvoiceFilter{
		Status:  strings.ToLower(c.Query("status")),
		Overdue: c.QueryBool("overdue"),
		Page:    pageOf(c),
	}
	var err error
	if f.StudentID, err = queryUint(c, "student_id"); err != nil {
		return respondError(c, err)
	}
	if f.AcademicYearID, err = queryUint(c, "academic_year_id"); err != nil {
		return respondError(c, err)
	}
	if v := strings.TrimSpace(c.Query("term")); v != "" {
		term, ok := services.ParseInvoiceTerm(v)
		if !ok {
			return respondError(c, &services.ValidationError{Message: "invalid term", Fields: map[string]string{"term": "must be first, second, third or annual"}})
		}
		f.Term = term
	}

	invoices, total, err := fc.ledger.ListInvoices(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"invoices":   invoices,
		"pagination": pagination(f.Page, total),
	})
}

func (fc *FinanceController) GetInvoice(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	invoice, err := fc.ledger.GetInvoice(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"invoice": invoice})
}

func (fc *FinanceController) GetInvoicePayments(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	payments, err := fc.ledger.InvoicePayments(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"payments": payments, "total": len(payments)})
}

func (fc *FinanceController) CancelInvoice(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	invoice, err := fc.ledger.CancelInvoice(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Invoice cancelled",
		"invoice": invoice,
	})
}

// RecordPayment applies a payment and returns it with the updated invoice.
func (fc *FinanceController) RecordPayment(c *fiber.Ctx) error {
	var in services.PaymentInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	in.ReceivedBy = middleware.CurrentUserID(c)

	payment, invoice, err := fc.ledger.RecordPayment(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Payment recorded successfully",
		"payment": payment,
		"invoice": invoice,
	})
}

func (fc *FinanceController) GetPayments(c *fiber.Ctx) error {
	f := services.PaymentFilter{Method: strings.ToLower(c.Query("payment_method")), Page: pageOf(c)}
	var err error
	if f.InvoiceID, err = queryUint(c, "invoice_id"); err != nil {
		return respondError(c, err)
	}
	if f.StudentID, err = queryUint(c, "student_id"); err != nil {
		return respondError(c, err)
	}
	if f.From, f.To, err = queryRange(c); err != nil {
		return respondError(c, err)
	}

	payments, total, err := fc.ledger.ListPayments(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"payments":   payments,
		"pagination": pagination(f.Page, total),
	})
}

// DailyCollection totals the payments of ?date= (default today) by method.
func (fc *FinanceController) DailyCollection(c *fiber.Ctx) error {
	date, err := queryDate(c, "date")
	if err != nil {
		return respondError(c, err)
	}
	day := time.Now()
	if date != nil {
		day = *date
	}
	out, err := fc.ledger.DailyCollection(c.UserContext(), day)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(out)
}

func (fc *FinanceController) CreateExpenditure(c *fiber.Ctx) error {
	var in services.ExpenditureInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	in.ProcessedBy = middleware.CurrentUserID(c)

	exp, err := fc.ledger.CreateExpenditure(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":     "Expenditure recorded successfully",
		"expenditure": exp,
	})
}

func (fc *FinanceController) GetExpenditures(c *fiber.Ctx) error {
	f := services.ExpenditureFilter{Category: strings.ToLower(c.Query("category")), Page: pageOf(c)}
	var err error
	if f.From, f.To, err = queryRange(c); err != nil {
		return respondError(c, err)
	}

	exps, total, err := fc.ledger.ListExpenditures(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"expenditures": exps,
		"pagination":   pagination(f.Page, total),
	})
}

func (fc *FinanceController) CategorySummary(c *fiber.Ctx) error {
	start, end, err := queryRange(c)
	if err != nil {
		return respondError(c, err)
	}
	out, err := fc.ledger.CategorySummary(c.UserContext(), start, end)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"categories": out})
}

// UploadReceipt stores the "file" form field in S3 and links it to the expenditure.
func (fc *FinanceController) UploadReceipt(c *fiber.Ctx) error {
	if fc.storage == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "File storage is not configured"})
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if _, err := fc.ledger.GetExpenditure(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	file, err := c.FormFile("file")
	if err != nil {
		return respondError(c, badRequest("File is required"))
	}

	url, err := fc.storage.UploadReceipt(c.UserContext(), file, id)
	if err != nil {
		return respondError(c, err)
	}
	exp, err := fc.ledger.AttachReceipt(c.UserContext(), id, url)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":     "Receipt uploaded successfully",
		"expenditure": exp,
	})
}

func (fc *FinanceController) CreateFeeStructure(c *fiber.Ctx) error {
	var in services.FeeStructureInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	fs, err := fc.ledger.CreateFeeStructure(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":       "Fee structure created successfully",
		"fee_structure": fs,
	})
}

func (fc *FinanceController) GetFeeStructures(c *fiber.Ctx) error {
	yearID, err := queryUint(c, "academic_year_id")
	if err != nil {
		return respondError(c, err)
	}
	classID, err := queryUint(c, "class_id")
	if err != nil {
		return respondError(c, err)
	}
	out, err := fc.ledger.ListFeeStructures(c.UserContext(), yearID, classID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"fee_structures": out, "total": len(out)})
}

// Summary reports collections, outstanding balances and spending for
// ?start_date=&end_date= (default this month).
func (fc *FinanceController) Summary(c *fiber.Ctx) error {
	start, end, err := queryRange(c)
	if err != nil {
		return respondError(c, err)
	}
	out, err := fc.ledger.Summary(c.UserContext(), start, end)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(out)
}

func (fc *FinanceController) MonthlyTrends(c *fiber.Ctx) error {
	year := time.Now().Year()
	if v := strings.TrimSpace(c.Query("year")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1900 || n > 9999 {
			return respondError(c, badRequest("Invalid year"))
		}
		year = n
	}
	out, err := fc.ledger.MonthlyTrends(c.UserContext(), year)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"year": year, "months": out})
}
