package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/npnl/enigma-request/internal/estimate"
	"github.com/npnl/enigma-request/internal/middleware"
	"github.com/npnl/enigma-request/internal/reqdoc"
	"github.com/npnl/enigma-request/internal/services"
)

const maxBodyBytes = 1 << 20

// Options wires the router to its collaborators. Store defaults to an
// in-memory store and Notifier to a logging notifier.
type Options struct {
	Store      Store
	Catalog    *services.CatalogService
	Rows       *services.RowCountService
	Notifier   services.Notifier
	Auth       *middleware.JWT
	Log        *zap.Logger
	Mode       string
	AdminEmail string
	TokenTTL   time.Duration
}

type Router struct {
	catalog   *services.CatalogService
	rows      *services.RowCountService
	requests  *services.RequestService
	directory *services.DirectoryService
	identity  *services.IdentityService
	auth      *middleware.JWT
	log       *zap.Logger
	mode      string
}

func NewRouter(opts Options) *Router {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	store := opts.Store
	if store == nil {
		store = newMemoryStore()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = services.NewLogNotifier(log)
	}
	mode := opts.Mode
	if mode == "" {
		mode = "user"
	}
	rt := &Router{
		catalog: opts.Catalog,
		rows:    opts.Rows,
		auth:    opts.Auth,
		log:     log,
		mode:    mode,
	}
	if rt.catalog == nil {
		rt.catalog = services.NewCatalogService(nil)
	}
	if rt.rows == nil {
		rt.rows = services.NewRowCountService(nil)
	}
	rt.directory = services.NewDirectoryService(newDirectoryStoreAdapter(store), notifier, log)
	rt.requests = services.NewRequestService(newRequestStoreAdapter(store), rt.directory, notifier, opts.AdminEmail, log)
	var signer services.TokenSigner
	if opts.Auth != nil {
		signer = opts.Auth.Sign
	}
	rt.identity = services.NewIdentityService(newIdentityStoreAdapter(store), rt.directory, signer, opts.TokenTTL)
	return rt
}

// Directory exposes the directory service for seeding.
func (rt *Router) Directory() *services.DirectoryService { return rt.directory }

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/config", rt.handleConfig)                             // GET
	mux.HandleFunc("/auth/register", rt.handleRegister)                    // POST
	mux.HandleFunc("/auth/login", rt.handleLogin)                          // POST
	mux.HandleFunc("/metrics", rt.handleMetrics)                           // GET
	mux.HandleFunc("/boolean-data", rt.handleBooleanData)                  // GET
	mux.HandleFunc("/rows-count", rt.handleRowsCount)                      // POST
	mux.HandleFunc("/submit-request", rt.handleSubmitRequest)              // POST
	mux.Handle("/auth/check", authed(rt.handleAuthCheck))                  // GET
	mux.Handle("/get-requests", authed(rt.handleGetRequests))              // GET
	mux.Handle("/get-request/", authed(rt.handleGetRequest))               // GET /get-request/{fileName}
	mux.Handle("/data-request/admins", authed(rt.handleDataRequestAdmins)) // GET|POST|DELETE
	rt.registerCollaborators(mux)
}

// Handler returns the routes with bearer tokens parsed into the request
// context.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	rt.Register(mux)
	if rt.auth == nil {
		return mux
	}
	return rt.auth.WithAuth(mux)
}

func authed(fn http.HandlerFunc) http.Handler {
	return middleware.RequireAuth(fn)
}

func viewer(r *http.Request) services.Viewer {
	email, _ := middleware.EmailFromContext(r.Context())
	return services.Viewer{Email: email}
}

func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeError maps service error codes onto HTTP statuses. Anything else is
// logged and reported as an internal error.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if se, ok := services.AsServiceError(err); ok {
		status := http.StatusBadRequest
		switch se.Code {
		case services.ErrorUnauthorized:
			status = http.StatusUnauthorized
		case services.ErrorForbidden:
			status = http.StatusForbidden
		case services.ErrorNotFound:
			status = http.StatusNotFound
		case services.ErrorConflict:
			status = http.StatusConflict
		}
		writeMessage(w, status, se.Message)
		return
	}
	rt.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeMessage(w, http.StatusInternalServerError, "Internal server error")
}

// FlexInt decodes a JSON number, a numeric string, or an empty string (0).
type FlexInt int

func (n *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*n = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
		if s == "" {
			*n = 0
			return nil
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return errors.New("index must be an integer")
	}
	*n = FlexInt(v)
	return nil
}

// GET /config
func (rt *Router) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": rt.mode})
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /auth/register {email, password}
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req credentials
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := rt.identity.Register(req.Email, req.Password)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// POST /auth/login {email, password}
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req credentials
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := rt.identity.Login(req.Email, req.Password)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /auth/check
func (rt *Router) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	res, err := rt.directory.CheckAuthorization(viewer(r))
	if err != nil {
		if se, ok := services.AsServiceError(err); ok && se.Code == services.ErrorForbidden {
			writeJSON(w, http.StatusForbidden, map[string]any{"authorized": false, "message": se.Message})
			return
		}
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /metrics
func (rt *Router) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	pair, err := rt.catalog.Catalogs()
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// GET /boolean-data
func (rt *Router) handleBooleanData(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	records, err := rt.rows.Records()
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// POST /rows-count {timepoint, required_metrics, or_groups}
func (rt *Router) handleRowsCount(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var q estimate.Query
	if !decodeBody(w, r, &q) {
		return
	}
	res, err := rt.rows.Estimate(q)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	sessions := res.SessionsPerSite
	if sessions == nil {
		sessions = map[string]int{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"count":             res.Count,
		"total_sites":       res.TotalSites,
		"sessions_per_site": sessions,
	})
}

// POST /submit-request with a request document body
func (rt *Router) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	doc, err := reqdoc.Parse(body)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req, err := rt.requests.Submit(r.Context(), doc)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "success",
		"message":   "Data request submitted successfully",
		"file_name": req.FileName,
	})
}

// GET /get-requests
func (rt *Router) handleGetRequests(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	list, err := rt.requests.List(viewer(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GET /get-request/{fileName}
func (rt *Router) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/get-request/")
	if name == "" {
		http.NotFound(w, r)
		return
	}
	req, err := rt.requests.Get(viewer(r), name)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type emailBody struct {
	Email string `json:"email"`
}

// GET|POST|DELETE /data-request/admins
func (rt *Router) handleDataRequestAdmins(w http.ResponseWriter, r *http.Request) {
	rt.serveAdmins(w, r, services.ScopeDataRequest)
}

func (rt *Router) serveAdmins(w http.ResponseWriter, r *http.Request, scope services.AdminScope) {
	if !allowMethod(w, r, http.MethodGet, http.MethodPost, http.MethodDelete) {
		return
	}
	v := viewer(r)
	if r.Method == http.MethodGet {
		admins, err := rt.directory.ListAdmins(v, scope)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"admins": admins})
		return
	}
	var body emailBody
	if !decodeBody(w, r, &body) {
		return
	}
	if r.Method == http.MethodPost {
		if err := rt.directory.AddAdmin(v, scope, body.Email); err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeMessage(w, http.StatusOK, "Admin added successfully")
		return
	}
	if err := rt.directory.DeleteAdmin(v, scope, body.Email); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Admin deleted successfully")
}
