package models

import "time"

const (
	FrequencyOneTime = "one_time"
	FrequencyTerm    = "term"
	FrequencyAnnual  = "annual"
)

// FeeStructure is a billable fee for a year. A nil ClassID applies to every class.
type FeeStructure struct {
	BaseModel
	AcademicYearID uint    `json:"academic_year_id" gorm:"not null;index"`
	ClassID        *uint   `json:"class_id" gorm:"index"`
	CategoryName   string  `json:"category_name" gorm:"size:100;not null"`
	Amount         float64 `json:"amount" gorm:"type:decimal(12,2);not null"`
	Frequency      string  `json:"frequency" gorm:"size:20;not null;default:'term'"` // one_time, term, annual
	Term           Term    `json:"term" gorm:"size:10;not null;default:'all'"`       // first, second, third, all
	IsMandatory    bool    `json:"is_mandatory" gorm:"default:true"`
	Description    string  `json:"description" gorm:"type:text"`

	AcademicYear AcademicYear `json:"academic_year,omitempty" gorm:"foreignKey:AcademicYearID"`
}

const (
	InvoiceUnpaid    = "unpaid"
	InvoicePartial   = "partial"
	InvoicePaid      = "paid"
	InvoiceCancelled = "cancelled"
)

// Invoice amounts paid, balance and status are derived from its payments.
type Invoice struct {
	RecordModel
	InvoiceNumber  string    `json:"invoice_number" gorm:"size:30;not null;uniqueIndex"`
	StudentID      uint      `json:"student_id" gorm:"not null;index"`
	AcademicYearID uint      `json:"academic_year_id" gorm:"not null;index"`
	Term           Term      `json:"term" gorm:"size:10;not null"` // first, second, third, annual
	TotalAmount    float64   `json:"total_amount" gorm:"type:decimal(12,2);not null;default:0"`
	AmountPaid     float64   `json:"amount_paid" gorm:"type:decimal(12,2);not null;default:0"`
	Balance        float64   `json:"balance" gorm:"type:decimal(12,2);not null;default:0"`
	DueDate        time.Time `json:"due_date"`
	Status         string    `json:"status" gorm:"size:20;not null;default:'unpaid';index"` // unpaid, partial, paid, cancelled
	GeneratedBy    *uint     `json:"generated_by"`

	Student  Student       `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	Items    []InvoiceItem `json:"items,omitempty" gorm:"foreignKey:InvoiceID"`
	Payments []Payment     `json:"payments,omitempty" gorm:"foreignKey:InvoiceID"`
}

// InvoiceItem model
type InvoiceItem struct {
	RecordModel
	InvoiceID      uint    `json:"invoice_id" gorm:"not null;index"`
	FeeStructureID *uint   `json:"fee_structure_id"`
	Description    string  `json:"description" gorm:"size:255;not null"`
	Amount         float64 `json:"amount" gorm:"type:decimal(12,2);not null"`
}

const (
	PaymentCash         = "cash"
	PaymentBankTransfer = "bank_transfer"
	PaymentCard         = "card"
	PaymentMobileMoney  = "mobile_money"
	PaymentCheque       = "cheque"
)

// IsValidPaymentMethod reports whether m is an accepted payment method.
func IsValidPaymentMethod(m string) bool {
	switch m {
	case PaymentCash, PaymentBankTransfer, PaymentCard, PaymentMobileMoney, PaymentCheque:
		return true
	}
	return false
}

// Payment rows are immutable once recorded.
type Payment struct {
	RecordModel
	PaymentNumber        string    `json:"payment_number" gorm:"size:30;not null;uniqueIndex"`
	InvoiceID            uint      `json:"invoice_id" gorm:"not null;index"`
	AmountPaid           float64   `json:"amount_paid" gorm:"type:decimal(12,2);not null"`
	PaymentMethod        string    `json:"payment_method" gorm:"size:20;not null"`
	TransactionReference string    `json:"transaction_reference" gorm:"size:100"`
	PaymentDate          time.Time `json:"payment_date" gorm:"not null;index"`
	Remarks              string    `json:"remarks" gorm:"type:text"`
	ReceivedBy           *uint     `json:"received_by"`
}

var ExpenditureCategories = []string{"utilities", "supplies", "maintenance", "salaries", "transport", "other"}

// IsValidExpenditureCategory reports whether c is a known expenditure category.
func IsValidExpenditureCategory(c string) bool {
	for _, v := range ExpenditureCategories {
		if v == c {
			return true
		}
	}
	return false
}

// Expenditure model
type Expenditure struct {
	BaseModel
	ExpenditureNumber string    `json:"expenditure_number" gorm:"size:30;not null;uniqueIndex"`
	ItemName          string    `json:"item_name" gorm:"size:255;not null"`
	Category          string    `json:"category" gorm:"size:30;not null;index"`
	Amount            float64   `json:"amount" gorm:"type:decimal(12,2);not null"`
	VendorName        string    `json:"vendor_name" gorm:"size:255"`
	TransactionDate   time.Time `json:"transaction_date" gorm:"not null;index"`
	PaymentMethod     string    `json:"payment_method" gorm:"size:20"`
	Description       string    `json:"description" gorm:"type:text"`
	ReceiptURL        string    `json:"receipt_url" gorm:"size:500"`
	ApprovedBy        *uint     `json:"approved_by"`
	ProcessedBy       *uint     `json:"processed_by"`
}

// DocumentSequence is the counter row behind INV/PAY/EXP/SAL numbering.
type DocumentSequence struct {
	ID        uint   `gorm:"primaryKey"`
	Prefix    string `gorm:"size:10;not null;uniqueIndex:idx_sequence_scope"`
	Period    string `gorm:"size:10;not null;uniqueIndex:idx_sequence_scope"`
	LastValue int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}
