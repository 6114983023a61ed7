package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/npnl/enigma-request/internal/catalog"
	"github.com/npnl/enigma-request/internal/estimate"
	"github.com/npnl/enigma-request/internal/middleware"
	"github.com/npnl/enigma-request/internal/services"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []services.Message
}

func (n *recordingNotifier) Send(_ context.Context, msg services.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

type testEnv struct {
	h     http.Handler
	jwt   *middleware.JWT
	store *memoryStore
	sent  *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMemoryStore()
	_ = store.AddAdmin(string(services.ScopeDirectory), "admin@lab.org")
	_ = store.AddAdmin(string(services.ScopeDataRequest), "reviewer@lab.org")

	jwt := middleware.NewJWT("0123456789abcdef", "enigma-test")
	n := &recordingNotifier{}
	table := &estimate.Table{
		Columns: []string{estimate.ColSubject, estimate.ColSession, estimate.ColSite, "AGE"},
		Rows: []estimate.Row{
			{Subject: "s1", Session: "ses-1", Site: "A", Present: map[string]bool{"AGE": true}},
			{Subject: "s2", Session: "ses-1", Site: "B", Present: map[string]bool{}},
		},
	}
	rt := NewRouter(Options{
		Store: store,
		Catalog: services.NewCatalogService(func() (catalog.Pair, error) {
			return catalog.Split(catalog.Catalog{
				"Demographics": {"": {{MetricName: "AGE", VariableType: catalog.TypeInt}}},
			}), nil
		}),
		Rows:       services.NewRowCountService(func() (*estimate.Table, error) { return table, nil }),
		Notifier:   n,
		Auth:       jwt,
		Mode:       "admin",
		AdminEmail: "npnl@lab.org",
		TokenTTL:   time.Hour,
	})
	_, err := rt.Directory().Import([]*services.Collaborator{
		{PrimaryEmail: "pi@lab.org", FirstName: "Pat", LastName: "Smith", Role: services.RolePI, IsActive: true, CohortEnigmaList: []string{"Cohort A"}},
		{PrimaryEmail: "m1@lab.org", FirstName: "Max", LastName: "Lee", Role: services.RoleMember, IsActive: true, PILastName: []string{"Smith"}},
		{PrimaryEmail: "gone@lab.org", FirstName: "Old", LastName: "Timer", Role: services.RoleMember},
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	return &testEnv{h: rt.Handler(), jwt: jwt, store: store, sent: n}
}

// do sends a request as email; an empty email sends no token.
func (e *testEnv) do(t *testing.T, method, path, email string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if email != "" {
		tok, err := e.jwt.Sign(email, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rr := httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d: %s", rr.Code, want, rr.Body.String())
	}
}

func TestConfigAndMetrics(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodGet, "/config", "", nil)
	expectStatus(t, rr, http.StatusOK)
	if decode[map[string]string](t, rr)["mode"] != "admin" {
		t.Fatalf("config = %s", rr.Body.String())
	}

	rr = e.do(t, http.MethodGet, "/metrics", "", nil)
	expectStatus(t, rr, http.StatusOK)
	pair := decode[catalog.Pair](t, rr)
	if _, ok := pair.Find("Demographics", "AGE"); !ok {
		t.Fatalf("metrics = %s", rr.Body.String())
	}

	expectStatus(t, e.do(t, http.MethodPost, "/metrics", "", nil), http.StatusMethodNotAllowed)

	rr = e.do(t, http.MethodGet, "/boolean-data", "", nil)
	expectStatus(t, rr, http.StatusOK)
	if len(decode[[]map[string]any](t, rr)) != 2 {
		t.Fatalf("boolean data = %s", rr.Body.String())
	}
}

func TestRowsCount(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/rows-count", "", map[string]any{"timepoint": "baseline", "required_metrics": []string{"AGE"}})
	expectStatus(t, rr, http.StatusOK)
	got := decode[struct {
		Success         bool           `json:"success"`
		Count           int            `json:"count"`
		TotalSites      int            `json:"total_sites"`
		SessionsPerSite map[string]int `json:"sessions_per_site"`
	}](t, rr)
	if !got.Success || got.Count != 1 || got.TotalSites != 1 || got.SessionsPerSite["A"] != 1 {
		t.Fatalf("rows-count = %+v", got)
	}

	expectStatus(t, e.do(t, http.MethodPost, "/rows-count", "", map[string]any{"timepoint": "weekly"}), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodPost, "/rows-count", "", "{not json"), http.StatusBadRequest)
}

const submitBody = `{"requestor":{"name":"Ada","email":"ada@usc.edu"},"timepoint":"baseline",` +
	`"behavior":{"required":[{"metric_name":"AGE","category":"Demographics"}],"optional":[]},` +
	`"imaging":{"required":[],"optional":[]},"or_groups":[],"notes":""}`

func TestSubmitAndReadRequests(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/submit-request", "", submitBody)
	expectStatus(t, rr, http.StatusOK)
	fileName := decode[map[string]string](t, rr)["file_name"]
	if !strings.HasPrefix(fileName, "data-request-") {
		t.Fatalf("file_name = %q", fileName)
	}
	if len(e.sent.sent) != 1 || e.sent.sent[0].To != "npnl@lab.org" || !strings.Contains(e.sent.sent[0].Body, fileName) {
		t.Fatalf("notification = %+v", e.sent.sent)
	}

	empty := `{"requestor":{"name":"Ada","email":"ada@usc.edu"},"timepoint":"baseline"}`
	rr = e.do(t, http.MethodPost, "/submit-request", "", empty)
	expectStatus(t, rr, http.StatusBadRequest)
	if decode[map[string]string](t, rr)["message"] != "You haven't selected any data!" {
		t.Fatalf("empty submit = %s", rr.Body.String())
	}

	expectStatus(t, e.do(t, http.MethodGet, "/get-requests", "", nil), http.StatusUnauthorized)
	expectStatus(t, e.do(t, http.MethodGet, "/get-requests", "m1@lab.org", nil), http.StatusForbidden)

	rr = e.do(t, http.MethodGet, "/get-requests", "reviewer@lab.org", nil)
	expectStatus(t, rr, http.StatusOK)
	list := decode[[]services.DataRequest](t, rr)
	if len(list) != 1 || list[0].FileName != fileName {
		t.Fatalf("requests = %s", rr.Body.String())
	}

	rr = e.do(t, http.MethodGet, "/get-request/"+fileName, "admin@lab.org", nil)
	expectStatus(t, rr, http.StatusOK)
	got := decode[services.DataRequest](t, rr)
	if got.Name != "Ada" || len(got.Data.Behavior.Required) != 1 {
		t.Fatalf("request = %+v", got)
	}
	expectStatus(t, e.do(t, http.MethodGet, "/get-request/missing.json", "admin@lab.org", nil), http.StatusNotFound)
}

func TestAuthCheck(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodGet, "/auth/check", "pi@lab.org", nil)
	expectStatus(t, rr, http.StatusOK)
	if !decode[services.AuthCheck](t, rr).Authorized {
		t.Fatalf("pi not authorized: %s", rr.Body.String())
	}

	rr = e.do(t, http.MethodGet, "/auth/check", "gone@lab.org", nil)
	expectStatus(t, rr, http.StatusForbidden)
	body := decode[map[string]any](t, rr)
	if body["authorized"] != false || !strings.Contains(body["message"].(string), "inactive") {
		t.Fatalf("inactive = %s", rr.Body.String())
	}

	expectStatus(t, e.do(t, http.MethodGet, "/auth/check", "stranger@else.org", nil), http.StatusForbidden)
	expectStatus(t, e.do(t, http.MethodGet, "/auth/check", "", nil), http.StatusUnauthorized)
}

func TestCollaboratorRoutes(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodGet, "/collaborators/get_all_collaborators", "admin@lab.org", nil)
	expectStatus(t, rr, http.StatusOK)
	if rows := decode[[]map[string]any](t, rr); len(rows) != 3 || rows[0]["index"] != float64(3) {
		t.Fatalf("admin list = %s", rr.Body.String())
	}

	rr = e.do(t, http.MethodPost, "/collaborators/add_collaborator", "pi@lab.org", map[string]any{
		"emails":     "new@lab.org",
		"first_name": "Nia",
		"last_name":  "Park",
	})
	expectStatus(t, rr, http.StatusCreated)
	expectStatus(t, e.do(t, http.MethodPost, "/collaborators/add_collaborator", "pi@lab.org", map[string]any{"emails": "new@lab.org"}), http.StatusConflict)
	expectStatus(t, e.do(t, http.MethodPost, "/collaborators/add_collaborator", "m1@lab.org", map[string]any{"emails": "x@lab.org"}), http.StatusForbidden)

	rr = e.do(t, http.MethodGet, "/collaborators/get_all_collaborators", "pi@lab.org", nil)
	expectStatus(t, rr, http.StatusOK)
	if rows := decode[[]map[string]any](t, rr); len(rows) != 3 {
		t.Fatalf("pi list = %s", rr.Body.String())
	}

	rr = e.do(t, http.MethodPost, "/collaborators/update_user_details", "pi@lab.org", map[string]any{"index": "2", "first_name": "Maxine"})
	expectStatus(t, rr, http.StatusOK)
	expectStatus(t, e.do(t, http.MethodPost, "/collaborators/update_user_details", "pi@lab.org", map[string]any{"first_name": "x"}), http.StatusBadRequest)

	rr = e.do(t, http.MethodGet, "/collaborators/get_user_by_index?index=2", "admin@lab.org", nil)
	expectStatus(t, rr, http.StatusOK)
	if c := decode[services.Collaborator](t, rr); c.FirstName != "Maxine" {
		t.Fatalf("updated = %+v", c)
	}
	expectStatus(t, e.do(t, http.MethodGet, "/collaborators/get_user_by_index", "admin@lab.org", nil), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodGet, "/collaborators/get_user_by_index?index=2", "gone@lab.org", nil), http.StatusForbidden)

	rr = e.do(t, http.MethodGet, "/collaborators/check_collaborator_by_email?email=NEW@lab.org", "pi@lab.org", nil)
	expectStatus(t, rr, http.StatusOK)
	if l := decode[services.EmailLookup](t, rr); !l.Exists || l.Index != 4 {
		t.Fatalf("lookup = %+v", l)
	}

	rr = e.do(t, http.MethodGet, "/collaborators/pis-by-cohort", "m1@lab.org", nil)
	expectStatus(t, rr, http.StatusOK)
	if refs := decode[map[string][]services.PIRef](t, rr)["Cohort A"]; len(refs) != 1 || refs[0].Name != "Pat Smith" {
		t.Fatalf("pis = %s", rr.Body.String())
	}

	rr = e.do(t, http.MethodGet, "/collaborators/get_current_user_role", "m1@lab.org", nil)
	expectStatus(t, rr, http.StatusOK)
	if role := decode[services.RoleInfo](t, rr); role.Role != services.RoleMember || role.IsAdmin {
		t.Fatalf("role = %+v", role)
	}

	expectStatus(t, e.do(t, http.MethodDelete, "/collaborators/delete_collaborator", "pi@lab.org", map[string]any{"index": 2}), http.StatusForbidden)
	expectStatus(t, e.do(t, http.MethodDelete, "/collaborators/delete_collaborator", "admin@lab.org", map[string]any{"index": 2}), http.StatusOK)
	expectStatus(t, e.do(t, http.MethodGet, "/collaborators/get_user_by_index?index=2", "admin@lab.org", nil), http.StatusNotFound)
	expectStatus(t, e.do(t, http.MethodDelete, "/collaborators/delete_collaborator", "admin@lab.org", map[string]any{}), http.StatusBadRequest)
}

func TestAdminRoutes(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodGet, "/data-request/admins", "reviewer@lab.org", nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[map[string][]string](t, rr)["admins"]; len(got) != 1 || got[0] != "reviewer@lab.org" {
		t.Fatalf("admins = %s", rr.Body.String())
	}
	expectStatus(t, e.do(t, http.MethodGet, "/data-request/admins", "admin@lab.org", nil), http.StatusForbidden)
	expectStatus(t, e.do(t, http.MethodPost, "/data-request/admins", "reviewer@lab.org", emailBody{Email: "second@lab.org"}), http.StatusOK)
	expectStatus(t, e.do(t, http.MethodPost, "/data-request/admins", "reviewer@lab.org", emailBody{Email: "second@lab.org"}), http.StatusConflict)
	expectStatus(t, e.do(t, http.MethodDelete, "/data-request/admins", "reviewer@lab.org", emailBody{Email: "nobody@lab.org"}), http.StatusNotFound)
	expectStatus(t, e.do(t, http.MethodDelete, "/data-request/admins", "reviewer@lab.org", emailBody{Email: "second@lab.org"}), http.StatusOK)

	rr = e.do(t, http.MethodGet, "/collaborators/get_admins", "admin@lab.org", nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[map[string][]string](t, rr)["admins"]; len(got) != 1 || got[0] != "admin@lab.org" {
		t.Fatalf("directory admins = %s", rr.Body.String())
	}
	expectStatus(t, e.do(t, http.MethodPost, "/collaborators/get_admins", "admin@lab.org", nil), http.StatusMethodNotAllowed)
	expectStatus(t, e.do(t, http.MethodGet, "/collaborators/get_admins?scope=bogus", "admin@lab.org", nil), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodPost, "/collaborators/add_admin", "admin@lab.org", emailBody{Email: "pi@lab.org"}), http.StatusOK)

	rr = e.do(t, http.MethodGet, "/collaborators/check_admin_status", "pi@lab.org", nil)
	expectStatus(t, rr, http.StatusOK)
	if !decode[map[string]bool](t, rr)["is_admin"] {
		t.Fatalf("pi should now be an admin")
	}
	rr = e.do(t, http.MethodGet, "/collaborators/check_admin_status", "m1@lab.org", nil)
	if decode[map[string]bool](t, rr)["is_admin"] {
		t.Fatalf("member reported as admin")
	}
}

func TestDownloadCSVAndInvite(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodGet, "/collaborators/download-csv", "admin@lab.org", nil)
	expectStatus(t, rr, http.StatusOK)
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/csv") || strings.Count(rr.Body.String(), "\n") != 4 {
		t.Fatalf("csv = %q", rr.Body.String())
	}
	expectStatus(t, e.do(t, http.MethodGet, "/collaborators/download-csv", "pi@lab.org", nil), http.StatusForbidden)

	rr = e.do(t, http.MethodPost, "/collaborators/send_invite_email", "pi@lab.org", map[string]string{"email": "friend@lab.org", "sender_name": "Pat"})
	expectStatus(t, rr, http.StatusOK)
	if len(e.sent.sent) != 1 || e.sent.sent[0].To != "friend@lab.org" {
		t.Fatalf("invite = %+v", e.sent.sent)
	}
	expectStatus(t, e.do(t, http.MethodPost, "/collaborators/send_invite_email", "m1@lab.org", map[string]string{"email": "friend@lab.org"}), http.StatusForbidden)
}

func TestRegisterAndLogin(t *testing.T) {
	e := newTestEnv(t)

	creds := credentials{Email: "PI@lab.org", Password: "correct horse"}
	expectStatus(t, e.do(t, http.MethodPost, "/auth/register", "", credentials{Email: "stranger@else.org", Password: "correct horse"}), http.StatusForbidden)

	rr := e.do(t, http.MethodPost, "/auth/register", "", creds)
	expectStatus(t, rr, http.StatusCreated)
	res := decode[services.AuthResult](t, rr)
	claims, err := e.jwt.Parse(res.Token)
	if err != nil || claims.Email != "pi@lab.org" {
		t.Fatalf("claims = %+v err=%v", claims, err)
	}
	expectStatus(t, e.do(t, http.MethodPost, "/auth/register", "", creds), http.StatusConflict)

	expectStatus(t, e.do(t, http.MethodPost, "/auth/login", "", credentials{Email: "pi@lab.org", Password: "wrong password"}), http.StatusUnauthorized)
	expectStatus(t, e.do(t, http.MethodPost, "/auth/login", "", creds), http.StatusOK)
}

func TestFlexInt(t *testing.T) {
	var v struct {
		A FlexInt `json:"a"`
		B FlexInt `json:"b"`
		C FlexInt `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a": 7, "b": " 12 ", "c": ""}`), &v); err != nil {
		t.Fatal(err)
	}
	if v.A != 7 || v.B != 12 || v.C != 0 {
		t.Fatalf("decoded %+v", v)
	}
	if err := json.Unmarshal([]byte(`{"a": "seven"}`), &v); err == nil {
		t.Fatalf("expected error for non-numeric index")
	}
}
