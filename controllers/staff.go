package controllers

import (
	"strings"

	"schoolcore/middleware"
	"schoolcore/models"
	"schoolcore/services"

	"github.com/gofiber/fiber/v2"
)

// StaffController serves payroll, staff attendance and leave requests.
type StaffController struct {
	payroll *services.PayrollService
}

func NewStaffController(payroll *services.PayrollService) *StaffController {
	return &StaffController{payroll: payroll}
}

func (sc *StaffController) SetSalaryStructure(c *fiber.Ctx) error {
	var in services.SalaryStructureInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	structure, err := sc.payroll.SetSalaryStructure(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"salary_structure": structure})
}

func (sc *StaffController) GetSalaryStructures(c *fiber.Ctx) error {
	teacherID, err := queryUint(c, "teacher_id")
	if err != nil {
		return respondError(c, err)
	}
	out, err := sc.payroll.ListSalaryStructures(c.UserContext(), teacherID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"salary_structures": out, "total": len(out)})
}

func (sc *StaffController) ProcessSalary(c *fiber.Ctx) error {
	var in services.ProcessSalaryInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	in.ProcessedBy = middleware.CurrentUserID(c)

	payment, err := sc.payroll.ProcessSalary(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":        "Salary processed successfully",
		"salary_payment": payment,
	})
}

func (sc *StaffController) MarkSalaryPaid(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var in services.MarkSalaryPaidInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	in.PaidBy = middleware.CurrentUserID(c)

	payment, err := sc.payroll.MarkSalaryPaid(c.UserContext(), id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"salary_payment": payment})
}

func (sc *StaffController) GetSalaryPayments(c *fiber.Ctx) error {
	f := services.SalaryPaymentFilter{
		Status: strings.ToLower(c.Query("status")),
		Period: strings.TrimSpace(c.Query("payment_period")),
		Page:   pageOf(c),
	}
	var err error
	if f.TeacherID, err = queryUint(c, "teacher_id"); err != nil {
		return respondError(c, err)
	}
	return sc.listSalaryPayments(c, f)
}

// GetSalaryHistory lists one staff member's salary payments, newest period first.
func (sc *StaffController) GetSalaryHistory(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	return sc.listSalaryPayments(c, services.SalaryPaymentFilter{TeacherID: id, Page: pageOf(c)})
}

func (sc *StaffController) listSalaryPayments(c *fiber.Ctx, f services.SalaryPaymentFilter) error {
	payments, total, err := sc.payroll.ListSalaryPayments(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"salary_payments": payments,
		"pagination":      pagination(f.Page, total),
	})
}

func (sc *StaffController) RecordAttendance(c *fiber.Ctx) error {
	var in services.AttendanceInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	row, err := sc.payroll.RecordAttendance(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"attendance": row})
}

func (sc *StaffController) GetAttendance(c *fiber.Ctx) error {
	f := services.AttendanceFilter{
		Status: strings.ToLower(c.Query("status")),
		Page:   pageOf(c),
	}
	var err error
	if f.TeacherID, err = queryUint(c, "teacher_id"); err != nil {
		return respondError(c, err)
	}
	if f.From, f.To, err = queryRange(c); err != nil {
		return respondError(c, err)
	}
	rows, total, err := sc.payroll.ListAttendance(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"attendance": rows,
		"pagination": pagination(f.Page, total),
	})
}

// ownStaffID resolves the caller's staff record when the caller is a teacher.
// Other roles act on any staff member and get 0.
func (sc *StaffController) ownStaffID(c *fiber.Ctx) (uint, error) {
	p, err := middleware.GetPrincipal(c)
	if err != nil {
		return 0, err
	}
	if p.Role != models.RoleTeacher {
		return 0, nil
	}
	return sc.payroll.StaffIDForUser(c.UserContext(), p.UserID)
}

// RequestLeave files a leave request. Teachers always file for themselves.
func (sc *StaffController) RequestLeave(c *fiber.Ctx) error {
	var in services.LeaveInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	own, err := sc.ownStaffID(c)
	if err != nil {
		return respondError(c, err)
	}
	if own != 0 {
		in.TeacherID = own
	}

	leave, err := sc.payroll.RequestLeave(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"leave_request": leave})
}

// GetLeaveRequests lists leave requests. Teachers only see their own.
func (sc *StaffController) GetLeaveRequests(c *fiber.Ctx) error {
	f := services.LeaveFilter{
		Status: strings.ToLower(c.Query("status")),
		Page:   pageOf(c),
	}
	var err error
	if f.TeacherID, err = queryUint(c, "teacher_id"); err != nil {
		return respondError(c, err)
	}
	own, err := sc.ownStaffID(c)
	if err != nil {
		return respondError(c, err)
	}
	if own != 0 {
		f.TeacherID = own
	}

	rows, total, err := sc.payroll.ListLeaveRequests(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"leave_requests": rows,
		"pagination":     pagination(f.Page, total),
	})
}

func (sc *StaffController) ReviewLeave(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var in services.LeaveReviewInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	in.ReviewedBy = middleware.CurrentUserID(c)

	leave, err := sc.payroll.ReviewLeave(c.UserContext(), id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"leave_request": leave})
}
