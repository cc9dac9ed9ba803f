package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"axiapac.com/workforce/attendance/audit"
	attendance "axiapac.com/workforce/attendance/core"
	"axiapac.com/workforce/attendance/model"
	"axiapac.com/workforce/console"
	tenancy "axiapac.com/workforce/core"
	"axiapac.com/workforce/security"
	"axiapac.com/workforce/web/middlewares"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = base64.StdEncoding.EncodeToString([]byte("test-signing-secret-0123456789"))

type fakeClocker struct {
	err      error
	requests []attendance.ClockRequest
	kinds    []model.ClockType
	from, to string
}

func (f *fakeClocker) clock(kind model.ClockType, req attendance.ClockRequest) (*attendance.ClockResult, error) {
	f.kinds = append(f.kinds, kind)
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &attendance.ClockResult{
		Event: model.ClockEvent{ID: "ev-1", Type: kind, Latitude: *req.Latitude, Longitude: *req.Longitude, Method: req.Method},
		Day:   model.AttendanceDay{Date: "2025-03-03", Status: model.StatusPresent},
	}, nil
}

func (f *fakeClocker) ClockIn(_ context.Context, req attendance.ClockRequest) (*attendance.ClockResult, error) {
	return f.clock(model.ClockIn, req)
}

func (f *fakeClocker) ClockOut(_ context.Context, req attendance.ClockRequest) (*attendance.ClockResult, error) {
	return f.clock(model.ClockOut, req)
}

func (f *fakeClocker) Today(_ context.Context, _, _ string) (*attendance.DayView, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &attendance.DayView{Date: "2025-03-03", Entries: []attendance.EntryView{}}, nil
}

func (f *fakeClocker) History(_ context.Context, _, _, from, to string) ([]attendance.DayView, error) {
	f.from, f.to = from, to
	if f.err != nil {
		return nil, f.err
	}
	return []attendance.DayView{{Date: to}, {Date: from}}, nil
}

type fakeAuditor struct {
	result audit.CompanyAudit
	fixed  bool
}

func (f *fakeAuditor) AuditCompany(_ context.Context, code string, fix bool) audit.CompanyAudit {
	f.fixed = fix
	res := f.result
	res.Company = code
	return res
}

type fakeCompanies struct {
	refreshed []string
}

func (f *fakeCompanies) RefreshCompany(_ context.Context, code string) (*console.Company, error) {
	f.refreshed = append(f.refreshed, code)
	switch code {
	case "ACME":
		return &console.Company{Code: "ACME", DisplayName: "Acme", DBPassword: "hunter2", Timezone: "Australia/Brisbane", WorkStart: "07:00"}, nil
	case "DOWN":
		return nil, &tenancy.PoolConnectionError{CompanyCode: code, Err: assert.AnError}
	default:
		return nil, tenancy.ErrCompanyNotFoundOrInactive
	}
}

func newRouter(t *testing.T, clock Clocker, audits Auditor) *gin.Engine {
	return newRouterWith(t, clock, audits, &fakeCompanies{})
}

func newRouterWith(t *testing.T, clock Clocker, audits Auditor, companies Companies) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	key, err := security.DecodeSecret(secret)
	require.NoError(t, err)

	r := gin.New()
	group := r.Group("/api/attendance/v1.0", middlewares.Authentication(key))
	Register(group, clock, audits, companies)
	return r
}

func token(t *testing.T, identity security.Identity) string {
	t.Helper()
	tok, err := security.CreateIdentityToken(identity, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(r *gin.Engine, method, path, tok string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

var employee = security.Identity{CompanyCode: "ACME", EmployeeNo: "E100", Role: security.RoleEmployee}

func clockBody() gin.H {
	return gin.H{
		"companyCode": "acme",
		"employeeNo":  "E100",
		"latitude":    -27.47,
		"longitude":   153.02,
		"method":      "button",
	}
}

func TestClockEndpoints(t *testing.T) {
	clock := &fakeClocker{}
	r := newRouter(t, clock, &fakeAuditor{})
	tok := token(t, employee)

	w := do(r, http.MethodPost, "/api/attendance/v1.0/attendance/clock-in", tok, clockBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]any)
	event := data["event"].(map[string]any)
	assert.Equal(t, "in", event["type"])
	assert.Equal(t, "button", event["method"])
	assert.Equal(t, -27.47, event["latitude"])

	w = do(r, http.MethodPost, "/api/attendance/v1.0/attendance/clock-out", tok, clockBody())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []model.ClockType{model.ClockIn, model.ClockOut}, clock.kinds)
}

func TestClockErrorsCarryReason(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		reason string
	}{
		{name: "duplicate", err: &attendance.ClockError{Reason: attendance.ReasonDuplicateClockEvent, Status: 409, Message: "Already clocked in"}, status: 409, reason: "duplicate-clock-event"},
		{name: "liveness", err: &attendance.ClockError{Reason: attendance.ReasonLivenessFailed, Status: 403, Message: "Liveness check failed"}, status: 403, reason: "liveness-failed"},
		{name: "company", err: attendance.TenantError(tenancy.ErrCompanyNotFoundOrInactive), status: 404, reason: "company-not-found"},
		{name: "unexpected", err: assert.AnError, status: 500, reason: "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(t, &fakeClocker{err: tt.err}, &fakeAuditor{})
			w := do(r, http.MethodPost, "/api/attendance/v1.0/attendance/clock-in", token(t, employee), clockBody())
			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.reason, body["reason"])
			assert.NotEmpty(t, body["message"])
			assert.NotContains(t, body["message"], assert.AnError.Error())
		})
	}
}

func TestClockRequestValidation(t *testing.T) {
	clock := &fakeClocker{}
	r := newRouter(t, clock, &fakeAuditor{})
	tok := token(t, employee)

	tests := []struct {
		name    string
		mutate  func(gin.H)
		message string
	}{
		{name: "missing latitude", mutate: func(b gin.H) { delete(b, "latitude") }, message: "Field 'latitude' is required"},
		{name: "bad method", mutate: func(b gin.H) { b["method"] = "pin" }, message: "Field 'method' must be one of face, button"},
		{name: "longitude range", mutate: func(b gin.H) { b["longitude"] = 200 }, message: "Field 'longitude' must be at most 180"},
		{name: "wrong type", mutate: func(b gin.H) { b["latitude"] = "north" }, message: "Field 'latitude' should be of type float64"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := clockBody()
			tt.mutate(body)
			w := do(r, http.MethodPost, "/api/attendance/v1.0/attendance/clock-in", tok, body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			res := decode(t, w)
			assert.Equal(t, "invalid-request", res["reason"])
			assert.Contains(t, res["message"], tt.message)
			assert.NotEmpty(t, res["fields"])
		})
	}
	assert.Empty(t, clock.requests)
}

func TestAuthentication(t *testing.T) {
	r := newRouter(t, &fakeClocker{}, &fakeAuditor{})

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{name: "no token", token: "", status: http.StatusUnauthorized},
		{name: "garbage", token: "abc.def.ghi", status: http.StatusUnauthorized},
		{name: "other employee", token: token(t, security.Identity{CompanyCode: "ACME", EmployeeNo: "E200"}), status: http.StatusForbidden},
		{name: "other company", token: token(t, security.Identity{CompanyCode: "GLOBEX", EmployeeNo: "E100"}), status: http.StatusForbidden},
		{name: "company device", token: token(t, security.Identity{CompanyCode: "ACME"}), status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/attendance/v1.0/attendance/clock-in", tt.token, clockBody())
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestTodayAndHistoryEndpoints(t *testing.T) {
	clock := &fakeClocker{}
	r := newRouter(t, clock, &fakeAuditor{})
	tok := token(t, employee)

	w := do(r, http.MethodGet, "/api/attendance/v1.0/attendance/today?companyCode=ACME&employeeNo=E100", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2025-03-03", decode(t, w)["data"].(map[string]any)["date"])

	w = do(r, http.MethodGet, "/api/attendance/v1.0/attendance/history?companyCode=ACME&employeeNo=E100&startDate=2025-03-01&endDate=2025-03-03", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["data"], 2)
	assert.Equal(t, 2.0, body["pagination"].(map[string]any)["total"])
	assert.Equal(t, "2025-03-01", clock.from)

	w = do(r, http.MethodGet, "/api/attendance/v1.0/attendance/history?companyCode=ACME&employeeNo=E100", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/attendance/v1.0/attendance/history?companyCode=ACME&employeeNo=E100&startDate=01/03/2025&endDate=2025-03-03", tok, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["message"], "Field 'startDate' must match 2006-01-02")

	w = do(r, http.MethodGet, "/api/attendance/v1.0/attendance/today?companyCode=ACME&employeeNo=E200", tok, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuditEndpoints(t *testing.T) {
	auditor := &fakeAuditor{result: audit.CompanyAudit{
		Reports: []audit.ConsistencyReport{{TableName: audit.TableAttendanceIntegrity, Issues: []audit.Issue{{Type: audit.IssueError, Description: "attendance days with negative hours", Count: 1}}}},
	}}
	r := newRouter(t, &fakeClocker{}, auditor)
	admin := token(t, security.Identity{CompanyCode: "ACME", Role: security.RoleAdmin})

	w := do(r, http.MethodGet, "/api/attendance/v1.0/audit/ACME", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, 1.0, data["errorCount"])
	assert.False(t, auditor.fixed)

	w = do(r, http.MethodPost, "/api/attendance/v1.0/audit/ACME/fix", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, auditor.fixed)

	w = do(r, http.MethodGet, "/api/attendance/v1.0/audit/ACME", token(t, employee), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodGet, "/api/attendance/v1.0/audit/GLOBEX", admin, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuditUnknownCompany(t *testing.T) {
	auditor := &fakeAuditor{result: audit.CompanyAudit{Error: tenancy.ErrCompanyNotFoundOrInactive.Error(), Err: tenancy.ErrCompanyNotFoundOrInactive}}
	r := newRouter(t, &fakeClocker{}, auditor)

	w := do(r, http.MethodGet, "/api/attendance/v1.0/audit/NOPE", token(t, security.Identity{Role: security.RoleAdmin}), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "company-not-found", decode(t, w)["reason"])
}

func TestRefreshCompany(t *testing.T) {
	companies := &fakeCompanies{}
	r := newRouterWith(t, &fakeClocker{}, &fakeAuditor{}, companies)
	admin := token(t, security.Identity{Role: security.RoleAdmin})

	w := do(r, http.MethodPost, "/api/attendance/v1.0/companies/ACME/refresh", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "ACME", data["companyCode"])
	assert.Equal(t, "07:00", data["workStart"])
	assert.NotContains(t, w.Body.String(), "hunter2")

	tests := []struct {
		code   string
		tok    string
		status int
		reason string
	}{
		{code: "NOPE", tok: admin, status: http.StatusNotFound, reason: "company-not-found"},
		{code: "DOWN", tok: admin, status: http.StatusInternalServerError},
		{code: "ACME", tok: token(t, employee), status: http.StatusForbidden},
		{code: "GLOBEX", tok: token(t, security.Identity{CompanyCode: "ACME", Role: security.RoleAdmin}), status: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/attendance/v1.0/companies/"+tt.code+"/refresh", tt.tok, nil)
			assert.Equal(t, tt.status, w.Code)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, decode(t, w)["reason"])
			}
		})
	}
	assert.Equal(t, []string{"ACME", "NOPE", "DOWN"}, companies.refreshed)
}
