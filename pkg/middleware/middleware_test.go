package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/permgate/pkg/authz"
	"github.com/permgate/pkg/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGate struct {
	decision authz.Decision
	err      error
	got      authz.Request
}

func (s *stubGate) Authorize(ctx context.Context, req authz.Request) (authz.Decision, error) {
	s.got = req
	return s.decision, s.err
}

func newTestApp(gate Authorizer) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(Recovery(), RequestID(), Authorize(gate, "token"))
	app.Get("/users/:id", func(c *fiber.Ctx) error {
		return response.Success(c, fiber.Map{
			"userId":  GetUserID(c),
			"roleId":  GetRoleID(c),
			"deptId":  GetDeptID(c),
			"filter":  GetDataScope(c),
			"fromCtx": authz.FilterFromContext(c.UserContext()),
		})
	})
	app.Get("/panic", func(c *fiber.Ctx) error {
		panic("boom")
	})
	return app
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestAuthorize_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		decision authz.Decision
		err      error
		status   int
	}{
		{"unauthenticated", authz.Decision{Outcome: authz.OutcomeUnauthenticated, Reason: authz.ReasonMissingCredential}, nil, http.StatusUnauthorized},
		{"insufficient", authz.Decision{Outcome: authz.OutcomeDenied, Reason: authz.ReasonInsufficientPermission}, nil, http.StatusForbidden},
		{"no role", authz.Decision{Outcome: authz.OutcomeDenied, Reason: authz.ReasonNoRole}, nil, http.StatusForbidden},
		{"lookup failure", authz.Decision{}, &authz.LookupError{Op: "find role", Err: io.ErrUnexpectedEOF}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&stubGate{decision: tt.decision, err: tt.err})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/users/42", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			body := decode(t, resp)
			assert.EqualValues(t, tt.status, body["code"])
		})
	}
}

func TestAuthorize_PermittedSetsLocals(t *testing.T) {
	gate := &stubGate{decision: authz.Decision{
		Outcome:      authz.OutcomePermitted,
		Reason:       authz.ReasonGranted,
		Principal:    &authz.Principal{UserID: "u1", RoleID: "r1", DeptID: "d1"},
		PermissionID: "p1",
		Filter:       &authz.DataScopeFilter{Scope: authz.DataScopeDept, FilterType: authz.FilterDept, DeptID: "d1"},
	}}
	app := newTestApp(gate)

	req := httptest.NewRequest(http.MethodGet, "/users/42?token=abc", nil)
	req.Header.Set("Authorization", "Bearer xyz")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	assert.Equal(t, authz.Request{
		Path:          "/users/42",
		Method:        http.MethodGet,
		Authorization: "Bearer xyz",
		QueryToken:    "abc",
	}, gate.got)

	data := decode(t, resp)["data"].(map[string]interface{})
	assert.Equal(t, "u1", data["userId"])
	assert.Equal(t, "r1", data["roleId"])
	assert.Equal(t, "d1", data["deptId"])

	filter := data["filter"].(map[string]interface{})
	assert.Equal(t, "dept", filter["filterType"])
	assert.Equal(t, "d1", filter["deptId"])
	assert.Equal(t, filter, data["fromCtx"])
}

func TestRecovery(t *testing.T) {
	app := newTestApp(&stubGate{decision: authz.Decision{Outcome: authz.OutcomePermitted, Filter: authz.AllFilter()}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/panic", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestRequestID_Preserved(t *testing.T) {
	app := newTestApp(&stubGate{decision: authz.Decision{Outcome: authz.OutcomePermitted, Filter: authz.AllFilter()}})

	req := httptest.NewRequest(http.MethodGet, "/users/1", nil)
	req.Header.Set("X-Request-ID", "req-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "req-1", resp.Header.Get("X-Request-ID"))
}
