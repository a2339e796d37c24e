package controllers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"schoolcore/models"
	"schoolcore/services"
	"schoolcore/storage"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

var validate = validator.New()

// requestError is a malformed request, mapped straight to its status.
type requestError struct {
	status  int
	message string
	fields  map[string]string
}

func (e *requestError) Error() string { return e.message }

func badRequest(message string) error {
	return &requestError{status: fiber.StatusBadRequest, message: message}
}

// bind parses the JSON body into dst and runs its validate tags.
func bind(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return badRequest("Invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return badRequest("Invalid input")
		}
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[jsonName(fe.Field())] = fe.Tag()
		}
		return &requestError{status: fiber.StatusUnprocessableEntity, message: "Validation failed", fields: fields}
	}
	return nil
}

// jsonName turns a Go field name such as AcademicYearID into academic_year_id.
func jsonName(field string) string {
	var b strings.Builder
	runes := []rune(field)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// respondError writes the JSON error response for err.
func respondError(c *fiber.Ctx, err error) error {
	var (
		reqErr    *requestError
		validErr  *services.ValidationError
		notFound  *services.NotFoundError
		capacity  *services.CapacityExceededError
		duplicate *services.DuplicateEnrollmentError
		conflict  *services.ConflictDetectedError
		batch     *services.BatchFailedError
		uploadErr *storage.UploadError
		fiberErr  *fiber.Error
	)
	switch {
	case errors.As(err, &reqErr):
		body := fiber.Map{"error": reqErr.message}
		if len(reqErr.fields) > 0 {
			body["fields"] = reqErr.fields
		}
		return c.Status(reqErr.status).JSON(body)
	case errors.As(err, &validErr):
		body := fiber.Map{"error": validErr.Message}
		if len(validErr.Fields) > 0 {
			body["fields"] = validErr.Fields
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(body)
	case errors.As(err, &notFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": notFound.Error()})
	case errors.As(err, &capacity):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": capacity.Error(), "capacity": capacity.Capacity})
	case errors.As(err, &duplicate):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": duplicate.Error()})
	case errors.As(err, &conflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":     "Timetable conflict detected",
			"conflicts": conflict.Conflicts,
		})
	case errors.As(err, &batch):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": batch.Error(), "error_details": batch.Errors})
	case errors.As(err, &uploadErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": uploadErr.Error()})
	case errors.As(err, &fiberErr):
		return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
	}

	logrus.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Path(),
		"method": c.Method(),
	}).Error("Request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
}

func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(param), 10, 32)
	if err != nil || id == 0 {
		return 0, badRequest("Invalid " + strings.ReplaceAll(param, "_", " "))
	}
	return uint(id), nil
}

// queryUint reads an optional numeric query parameter; absent means 0.
func queryUint(c *fiber.Ctx, key string) (uint, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, badRequest("Invalid " + key)
	}
	return uint(n), nil
}

// queryTerm reads an optional term; absent means "".
func queryTerm(c *fiber.Ctx, key string) (models.Term, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return "", nil
	}
	t, ok := models.ParseTerm(v)
	if !ok {
		return "", &services.ValidationError{Message: "invalid term", Fields: map[string]string{key: "must be first, second or third"}}
	}
	return t, nil
}

// queryDate accepts YYYY-MM-DD or RFC 3339.
func queryDate(c *fiber.Ctx, key string) (*time.Time, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, badRequest("Invalid " + key + " (expected YYYY-MM-DD)")
}

// queryRange reads start_date and end_date. A date-only end_date includes
// that whole day.
func queryRange(c *fiber.Ctx) (*time.Time, *time.Time, error) {
	start, err := queryDate(c, "start_date")
	if err != nil {
		return nil, nil, err
	}
	end, err := queryDate(c, "end_date")
	if err != nil {
		return nil, nil, err
	}
	if end != nil && len(strings.TrimSpace(c.Query("end_date"))) == len("2006-01-02") {
		next := end.AddDate(0, 0, 1)
		end = &next
	}
	return start, end, nil
}

func pageOf(c *fiber.Ctx) services.Page {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	return services.Page{Page: page, PageSize: limit}
}

func pagination(p services.Page, total int64) fiber.Map {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
	return fiber.Map{
		"page":        p.Page,
		"limit":       p.PageSize,
		"total":       total,
		"total_pages": (total + int64(p.PageSize) - 1) / int64(p.PageSize),
	}
}
