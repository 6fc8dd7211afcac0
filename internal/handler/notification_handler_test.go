package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rmupfumira/classup/internal/auth"
	"github.com/rmupfumira/classup/internal/domain"
	"github.com/rmupfumira/classup/internal/repository"
	"github.com/rmupfumira/classup/internal/service"
	"github.com/rmupfumira/classup/internal/transport"
)

func TestListNotificationsReturnsPage(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	svc := &stubNotificationService{
		listFn: func(ctx context.Context, principal auth.Principal, params repository.ListNotificationsParams) (*service.NotificationPage, error) {
			if !params.UnreadOnly {
				t.Fatal("unreadOnly query should be parsed")
			}
			return &service.NotificationPage{
				Notifications: []domain.Notification{{
					ID:        uuid.New(),
					TenantID:  principal.TenantID,
					UserID:    principal.UserID,
					Title:     "Report ready",
					Body:      "The term report is finalized.",
					Type:      domain.EventReportFinalized,
					CreatedAt: createdAt,
				}},
				Total:    1,
				Page:     1,
				PageSize: 20,
			}, nil
		},
	}

	app := newNotificationTestApp(t, svc)

	resp, body := performAuthedRequest(t, app, http.MethodGet, "/v1/notifications?unreadOnly=true", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, body)
	}

	var parsed struct {
		Data []map[string]any `json:"data"`
		Meta map[string]any   `json:"meta"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(parsed.Data) != 1 {
		t.Fatalf("data length = %d, want 1", len(parsed.Data))
	}
	if parsed.Data[0]["notificationType"] != domain.EventReportFinalized {
		t.Fatalf("notificationType = %v, want %s", parsed.Data[0]["notificationType"], domain.EventReportFinalized)
	}
	if parsed.Meta["total"] != float64(1) {
		t.Fatalf("meta total = %v, want 1", parsed.Meta["total"])
	}
}

func TestListNotificationsRequiresIdentity(t *testing.T) {
	t.Parallel()

	app := newNotificationTestApp(t, &stubNotificationService{})

	req := httptest.NewRequest(http.MethodGet, "/v1/notifications", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestMarkReadMapsConflictTo409(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		markReadFn: func(ctx context.Context, principal auth.Principal, id uuid.UUID) error {
			return domain.ErrConflict
		},
	}
	app := newNotificationTestApp(t, svc)

	resp, _ := performAuthedRequest(t, app, http.MethodPost, "/v1/notifications/"+uuid.NewString()+"/read", "")
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestMarkReadRejectsMalformedID(t *testing.T) {
	t.Parallel()

	app := newNotificationTestApp(t, &stubNotificationService{})

	resp, _ := performAuthedRequest(t, app, http.MethodPost, "/v1/notifications/not-a-uuid/read", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestMarkAllReadReportsCount(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		markAllReadFn: func(ctx context.Context, principal auth.Principal) (int64, error) {
			return 3, nil
		},
	}
	app := newNotificationTestApp(t, svc)

	resp, body := performAuthedRequest(t, app, http.MethodPost, "/v1/notifications/read-all", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["marked"] != float64(3) {
		t.Fatalf("marked = %v, want 3", parsed["marked"])
	}
}

func TestUnreadCountEndpoint(t *testing.T) {
	t.Parallel()

	svc := &stubNotificationService{
		unreadCountFn: func(ctx context.Context, principal auth.Principal) (int64, error) {
			return 5, nil
		},
	}
	app := newNotificationTestApp(t, svc)

	resp, body := performAuthedRequest(t, app, http.MethodGet, "/v1/notifications/unread-count", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["unread"] != float64(5) {
		t.Fatalf("unread = %v, want 5", parsed["unread"])
	}
}

// Test helpers and stubs shared by the handler tests.

var testPrincipal = auth.Principal{
	TenantID: uuid.MustParse("6f1c2b7e-aaaa-4bbb-8ccc-000000000001"),
	UserID:   uuid.MustParse("6f1c2b7e-aaaa-4bbb-8ccc-000000000002"),
	Role:     auth.RoleAdmin,
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})
	app.Use(PrincipalMiddleware())
	return app
}

func newNotificationTestApp(t *testing.T, svc NotificationService) *fiber.App {
	t.Helper()

	app := newTestApp(t)
	if err := RegisterNotificationRoutes(app, svc); err != nil {
		t.Fatalf("RegisterNotificationRoutes() error = %v", err)
	}
	return app
}

func performAuthedRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(TenantHeader, testPrincipal.TenantID.String())
	req.Header.Set(UserHeader, testPrincipal.UserID.String())
	req.Header.Set(RoleHeader, testPrincipal.Role.String())

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

type stubNotificationService struct {
	listFn        func(ctx context.Context, principal auth.Principal, params repository.ListNotificationsParams) (*service.NotificationPage, error)
	unreadCountFn func(ctx context.Context, principal auth.Principal) (int64, error)
	markReadFn    func(ctx context.Context, principal auth.Principal, id uuid.UUID) error
	markAllReadFn func(ctx context.Context, principal auth.Principal) (int64, error)
	deleteFn      func(ctx context.Context, principal auth.Principal, id uuid.UUID) error
}

func (s *stubNotificationService) List(ctx context.Context, principal auth.Principal, params repository.ListNotificationsParams) (*service.NotificationPage, error) {
	if s.listFn == nil {
		return &service.NotificationPage{Page: 1, PageSize: 20}, nil
	}
	return s.listFn(ctx, principal, params)
}

func (s *stubNotificationService) UnreadCount(ctx context.Context, principal auth.Principal) (int64, error) {
	if s.unreadCountFn == nil {
		return 0, nil
	}
	return s.unreadCountFn(ctx, principal)
}

func (s *stubNotificationService) MarkRead(ctx context.Context, principal auth.Principal, id uuid.UUID) error {
	if s.markReadFn == nil {
		return nil
	}
	return s.markReadFn(ctx, principal, id)
}

func (s *stubNotificationService) MarkAllRead(ctx context.Context, principal auth.Principal) (int64, error) {
	if s.markAllReadFn == nil {
		return 0, nil
	}
	return s.markAllReadFn(ctx, principal)
}

func (s *stubNotificationService) Delete(ctx context.Context, principal auth.Principal, id uuid.UUID) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, principal, id)
}
