package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"schoolcore/database"
	"schoolcore/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recorded struct {
	mu      sync.Mutex
	entries []models.ActivityLog
}

func (r *recorded) Record(_ context.Context, e models.ActivityLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newUser(t *testing.T, db *gorm.DB, name string, role models.Role, status string) *models.User {
	t.Helper()
	u := &models.User{Username: name, Password: "x", Role: role, Status: status}
	require.NoError(t, db.Create(u).Error)
	return u
}

func testApp(auth *Authenticator, rec ActivityRecorder) *fiber.App {
	app := fiber.New()
	app.Use(RequestID())
	app.Use(LogActivityMiddleware(rec))
	api := app.Group("/api", auth.Middleware())
	api.Get("/invoices", RequireRole(FinanceRoles...), func(c *fiber.Ctx) error {
		p, err := GetPrincipal(c)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"user": p.Username, "role": p.Role})
	})
	api.Post("/invoices/:id/cancel", RequireRole(FinanceRoles...), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	api.Post("/grades", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "bad"})
	})
	return app
}

func call(t *testing.T, app *fiber.App, method, path, token string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func TestAuthMiddlewareAndRoles(t *testing.T) {
	db := newDB(t)
	auth := NewAuthenticator(db, nil, "test-secret-0123456789", time.Hour)
	rec := &recorded{}
	app := testApp(auth, rec)

	bursar := newUser(t, db, "bursar", models.RoleBursar, "active")
	teacher := newUser(t, db, "teacher", models.RoleTeacher, "active")
	gone := newUser(t, db, "gone", models.RoleAdmin, "suspended")

	bursarToken, expires, err := auth.GenerateToken(bursar)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)
	teacherToken, _, err := auth.GenerateToken(teacher)
	require.NoError(t, err)
	goneToken, _, err := auth.GenerateToken(gone)
	require.NoError(t, err)

	status, body := call(t, app, "GET", "/api/invoices", bursarToken)
	assert.Equal(t, 200, status)
	assert.Equal(t, "bursar", body["user"])

	status, _ = call(t, app, "GET", "/api/invoices", teacherToken)
	assert.Equal(t, 403, status)

	status, body = call(t, app, "GET", "/api/invoices", "")
	assert.Equal(t, 401, status)
	assert.Equal(t, "Missing authorization header", body["error"])

	status, _ = call(t, app, "GET", "/api/invoices", "not-a-jwt")
	assert.Equal(t, 401, status)

	status, _ = call(t, app, "GET", "/api/invoices", goneToken)
	assert.Equal(t, 401, status)

	other := NewAuthenticator(db, nil, "another-secret-987654", time.Hour)
	forged, _, err := other.GenerateToken(bursar)
	require.NoError(t, err)
	status, _ = call(t, app, "GET", "/api/invoices", forged)
	assert.Equal(t, 401, status)

	// Role changed after the token was issued.
	require.NoError(t, db.Model(bursar).Update("role", models.RoleTeacher).Error)
	status, _ = call(t, app, "GET", "/api/invoices", bursarToken)
	assert.Equal(t, 401, status)
}

func TestExpiredToken(t *testing.T) {
	db := newDB(t)
	auth := NewAuthenticator(db, nil, "test-secret-0123456789", time.Hour)
	u := newUser(t, db, "admin", models.RoleAdmin, "active")
	auth.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := auth.GenerateToken(u)
	require.NoError(t, err)
	auth.now = time.Now

	status, _ := call(t, testApp(auth, &recorded{}), "GET", "/api/invoices", token)
	assert.Equal(t, 401, status)

	assert.Error(t, auth.Revoke(context.Background(), token))
}

func TestActivityMiddlewareRecordsSuccessfulMutations(t *testing.T) {
	db := newDB(t)
	auth := NewAuthenticator(db, nil, "test-secret-0123456789", time.Hour)
	rec := &recorded{}
	app := testApp(auth, rec)
	admin := newUser(t, db, "admin", models.RoleAdmin, "active")
	token, _, err := auth.GenerateToken(admin)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/invoices/42/cancel", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(RequestIDHeader, "req-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "req-1", resp.Header.Get(RequestIDHeader))

	call(t, app, "GET", "/api/invoices", token)
	call(t, app, "POST", "/api/grades", token)
	call(t, app, "POST", "/api/invoices/7/cancel", "")

	require.Len(t, rec.entries, 1)
	e := rec.entries[0]
	assert.Equal(t, "CREATE", e.Action)
	assert.Equal(t, "invoices", e.Resource)
	assert.Equal(t, uint(42), e.ResourceID)
	assert.Equal(t, admin.ID, e.UserID)

	var details map[string]interface{}
	require.NoError(t, json.Unmarshal(e.Details, &details))
	assert.Equal(t, "req-1", details["request_id"])
	assert.Equal(t, float64(200), details["status_code"])
}

func TestRequestIDGenerated(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(GetRequestID(c)) })
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Len(t, resp.Header.Get(RequestIDHeader), 36)
}

func TestResourceOf(t *testing.T) {
	cases := []struct {
		path     string
		resource string
		id       uint
	}{
		{"/api/invoices/12/cancel", "invoices", 12},
		{"/api/payments", "payments", 0},
		{"/api/grades/import", "grades", 0},
		{"/health", "health", 0},
		{"/", "", 0},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			r, id := resourceOf(tc.path)
			assert.Equal(t, tc.resource, r)
			assert.Equal(t, tc.id, id)
		})
	}
}
