package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/phase"
	"github.com/pavelanni/saber/internal/store"
)

const testAdminKey = "s3cret"

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	cfg := model.EngineConfig{
		RankingConcurrency: 4,
		Phase2Questions:    10,
		AdminKeyHash:       string(hash),
		CORSOrigins:        []string{"http://localhost:5173"},
		Lang:               "es",
	}
	h, err := New(phase.New(st, nil, nil, cfg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h.Router()
}

func do(t *testing.T, srv http.Handler, method, path, body string, headers map[string]string) (int, response) {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: invalid envelope %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, resp
}

func admin() map[string]string {
	return map[string]string{adminKeyHeader: testAdminKey, adminIDHeader: "rector"}
}

func TestAdminRoutesRequireKey(t *testing.T) {
	srv := newTestServer(t)
	body := `{"gradeName":"11A","phase":"first"}`

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"missing key", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{adminKeyHeader: "nope"}, http.StatusUnauthorized},
		{"valid key", admin(), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := do(t, srv, http.MethodPost, "/api/grades/g1/authorizations", body, tt.headers)
			if code != tt.want {
				t.Errorf("status = %d, want %d (%s)", code, tt.want, resp.Error)
			}
		})
	}
}

func TestAuthorizeAndAccessFlow(t *testing.T) {
	srv := newTestServer(t)

	code, resp := do(t, srv, http.MethodGet, "/api/students/s1/phases/first/access?grade=g1", "", nil)
	if code != http.StatusOK {
		t.Fatalf("access status = %d", code)
	}
	var access model.AccessResult
	json.Unmarshal(resp.Data, &access)
	if access.CanAccess || access.ReasonCode != "PhaseNotAuthorized" {
		t.Errorf("before authorization: %+v", access)
	}

	code, resp = do(t, srv, http.MethodPost, "/api/grades/g1/authorizations", `{"gradeName":"11A","phase":"1"}`, admin())
	if code != http.StatusOK {
		t.Fatalf("authorize status = %d: %s", code, resp.Error)
	}
	var rec model.PhaseAuthorization
	json.Unmarshal(resp.Data, &rec)
	if rec.ID != "g1_first" || rec.AuthorizedBy != "rector" {
		t.Errorf("unexpected record %+v", rec)
	}

	_, resp = do(t, srv, http.MethodGet, "/api/students/s1/phases/first/access?grade=g1", "", nil)
	json.Unmarshal(resp.Data, &access)
	if !access.CanAccess {
		t.Errorf("after authorization: %+v", access)
	}

	code, _ = do(t, srv, http.MethodDelete, "/api/grades/g1/authorizations/first", "", admin())
	if code != http.StatusOK {
		t.Fatalf("revoke status = %d", code)
	}
	_, resp = do(t, srv, http.MethodGet, "/api/grades/g1/authorizations", "", nil)
	var list []model.PhaseAuthorization
	json.Unmarshal(resp.Data, &list)
	if len(list) != 1 || list[0].Authorized {
		t.Errorf("expected one revoked record, got %+v", list)
	}
}

func TestAccessReasonIsLocalized(t *testing.T) {
	srv := newTestServer(t)
	_, resp := do(t, srv, http.MethodGet, "/api/students/s1/phases/second/access?grade=g1", "", map[string]string{"Accept-Language": "en"})
	var access model.AccessResult
	json.Unmarshal(resp.Data, &access)
	if !strings.Contains(access.Reason, "Phase II") {
		t.Errorf("reason = %q", access.Reason)
	}
}

func TestExamFlow(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/grades/g1/authorizations", `{"phase":"first"}`, admin())

	code, resp := do(t, srv, http.MethodPost, "/api/students/s1/exams/start", `{"gradeId":"g1","phase":"first","subject":"Matemáticas"}`, nil)
	if code != http.StatusOK {
		t.Fatalf("start status = %d: %s", code, resp.Error)
	}

	complete := `{"gradeId":"g1","phase":"first","subject":"matematicas",
		"score":{"correctAnswers":3,"totalQuestions":4,"percentage":75},
		"questionDetails":[
			{"topic":"algebra","isCorrect":true,"answered":true},
			{"topic":"algebra","isCorrect":true,"answered":true},
			{"topic":"geometria","isCorrect":true,"answered":true},
			{"topic":"geometria","isCorrect":false,"answered":true}]}`
	code, resp = do(t, srv, http.MethodPost, "/api/students/s1/exams/complete", complete, nil)
	if code != http.StatusOK {
		t.Fatalf("complete status = %d: %s", code, resp.Error)
	}
	var out model.CompletionOutcome
	json.Unmarshal(resp.Data, &out)
	if out.Analysis == nil || out.Analysis.PrimaryWeakness != "geometria" {
		t.Errorf("analysis = %+v", out.Analysis)
	}

	code, resp = do(t, srv, http.MethodGet, "/api/students/s1/subjects/matematicas/distribution", "", nil)
	if code != http.StatusOK {
		t.Fatalf("distribution status = %d: %s", code, resp.Error)
	}
	var d model.QuestionDistribution
	json.Unmarshal(resp.Data, &d)
	if d.TotalQuestions != 10 || d.Sum() != 10 {
		t.Errorf("distribution = %+v", d)
	}

	code, resp = do(t, srv, http.MethodGet, "/api/students/s1/overview?grade=g1", "", nil)
	if code != http.StatusOK {
		t.Fatalf("overview status = %d: %s", code, resp.Error)
	}
	var ov model.PhaseOverview
	json.Unmarshal(resp.Data, &ov)
	if len(ov.Phases) != 3 || !ov.Phases[0].Subjects[0].Completed {
		t.Errorf("overview = %+v", ov)
	}
}

func TestStartExamDeniedIsForbidden(t *testing.T) {
	srv := newTestServer(t)
	code, resp := do(t, srv, http.MethodPost, "/api/students/s1/exams/start", `{"gradeId":"g1","phase":"first","subject":"fisica"}`, nil)
	if code != http.StatusForbidden || resp.Success || resp.Error == "" {
		t.Errorf("status = %d, resp = %+v", code, resp)
	}
}

func TestBadInput(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"bad phase", http.MethodGet, "/api/students/s1/phases/ninth/progress", ""},
		{"bad subject", http.MethodGet, "/api/students/s1/subjects/arte/analysis", ""},
		{"bad total", http.MethodGet, "/api/students/s1/subjects/fisica/distribution?total=x", ""},
		{"negative total", http.MethodGet, "/api/students/s1/subjects/fisica/distribution?total=-3", ""},
		{"bad body", http.MethodPost, "/api/students/s1/phases/first/progress", `{"subject":`},
		{"unknown body subject", http.MethodPost, "/api/students/s1/phases/first/progress", `{"gradeId":"g1","subject":"arte"}`},
		{"ranking without phase", http.MethodGet, "/api/ranking?user=s1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := do(t, srv, tt.method, tt.path, tt.body, nil)
			if code != http.StatusBadRequest || resp.Success {
				t.Errorf("status = %d, resp = %+v", code, resp)
			}
		})
	}
}

func TestRankingUnknownUser(t *testing.T) {
	srv := newTestServer(t)
	code, resp := do(t, srv, http.MethodGet, "/api/ranking?user=ghost&phase=first", "", nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d: %s", code, resp.Error)
	}
	var r model.RankingResult
	json.Unmarshal(resp.Data, &r)
	if r.Rank != nil || r.TotalInGrade != 0 {
		t.Errorf("ranking = %+v", r)
	}
}

func TestProgressMissingIsNull(t *testing.T) {
	srv := newTestServer(t)
	code, resp := do(t, srv, http.MethodGet, "/api/students/s1/phases/first/progress", "", nil)
	if code != http.StatusOK || !resp.Success || len(resp.Data) != 0 && string(resp.Data) != "null" {
		t.Errorf("status = %d, data = %s", code, resp.Data)
	}
}
