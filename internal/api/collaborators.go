package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/npnl/enigma-request/internal/services"
)

func (rt *Router) registerCollaborators(mux *http.ServeMux) {
	routes := map[string]http.HandlerFunc{
		"get_all_collaborators":       rt.handleListCollaborators,  // GET
		"get_user_details":            rt.handleUserDetails,        // GET
		"get_user_by_index":           rt.handleUserByIndex,        // GET ?index=
		"update_user_details":         rt.handleUpdateCollaborator, // POST
		"add_collaborator":            rt.handleAddCollaborator,    // POST
		"delete_collaborator":         rt.handleDeleteCollaborator, // DELETE
		"check_collaborator_by_email": rt.handleCheckByEmail,       // GET ?email=
		"get_current_user_role":       rt.handleCurrentRole,        // GET
		"pis-by-cohort":               rt.handlePIsByCohort,        // GET
		"download-csv":                rt.handleDownloadCSV,        // GET
		"get_admins":                  rt.handleDirectoryAdmins,    // GET
		"add_admin":                   rt.handleDirectoryAdmins,    // POST
		"delete_admin":                rt.handleDirectoryAdmins,    // DELETE
		"check_admin_status":          rt.handleAdminStatus,        // GET
		"send_invite_email":           rt.handleSendInvite,         // POST
	}
	for name, fn := range routes {
		mux.Handle("/collaborators/"+name, authed(fn))
	}
}

// GET /collaborators/get_all_collaborators
func (rt *Router) handleListCollaborators(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	rows, err := rt.directory.List(viewer(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// GET /collaborators/get_user_details
func (rt *Router) handleUserDetails(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	c, err := rt.directory.UserDetails(viewer(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GET /collaborators/get_user_by_index?index=N
func (rt *Router) handleUserByIndex(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("index"))
	if raw == "" {
		writeMessage(w, http.StatusBadRequest, "Missing index")
		return
	}
	index, err := strconv.Atoi(raw)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	c, err := rt.directory.GetByIndex(viewer(r), index)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// POST /collaborators/update_user_details {index, ...fields}
func (rt *Router) handleUpdateCollaborator(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil || len(bytes.TrimSpace(body)) == 0 {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	var target struct {
		Index FlexInt `json:"index"`
	}
	if err := json.Unmarshal(body, &target); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if target.Index <= 0 {
		writeMessage(w, http.StatusBadRequest, "Missing index")
		return
	}
	var upd services.CollaboratorUpdate
	if err := json.Unmarshal(body, &upd); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	c, err := rt.directory.Update(viewer(r), int(target.Index), upd)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "User details updated successfully", "collaborator": c})
}

// POST /collaborators/add_collaborator
func (rt *Router) handleAddCollaborator(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var in services.CollaboratorInput
	if !decodeBody(w, r, &in) {
		return
	}
	c, err := rt.directory.Add(viewer(r), in)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Collaborator added successfully", "collaborator": c})
}

// DELETE /collaborators/delete_collaborator {index?, email?}
func (rt *Router) handleDeleteCollaborator(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodDelete) {
		return
	}
	var body struct {
		Index FlexInt `json:"index"`
		Email string  `json:"email"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := rt.directory.Delete(viewer(r), int(body.Index), body.Email); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Collaborator deleted successfully")
}

// GET /collaborators/check_collaborator_by_email?email=
func (rt *Router) handleCheckByEmail(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	res, err := rt.directory.CheckByEmail(r.URL.Query().Get("email"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /collaborators/get_current_user_role
func (rt *Router) handleCurrentRole(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	res, err := rt.directory.CurrentRole(viewer(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /collaborators/pis-by-cohort
func (rt *Router) handlePIsByCohort(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	res, err := rt.directory.PIsByCohort()
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /collaborators/download-csv
func (rt *Router) handleDownloadCSV(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	b, err := rt.directory.ExportCSV(viewer(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=collaborators.csv")
	_, _ = w.Write(b)
}

// get_admins, add_admin and delete_admin share one handler; ?scope= selects
// the data-request list instead of the directory list.
func (rt *Router) handleDirectoryAdmins(w http.ResponseWriter, r *http.Request) {
	want := map[string]string{
		"/collaborators/get_admins":   http.MethodGet,
		"/collaborators/add_admin":    http.MethodPost,
		"/collaborators/delete_admin": http.MethodDelete,
	}[r.URL.Path]
	if !allowMethod(w, r, want) {
		return
	}
	scope, err := services.ParseAdminScope(r.URL.Query().Get("scope"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.serveAdmins(w, r, scope)
}

// GET /collaborators/check_admin_status
func (rt *Router) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	ok, err := rt.directory.IsAdmin(services.ScopeDirectory, viewer(r).Email)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_admin": ok})
}

// POST /collaborators/send_invite_email {email, sender_name}
func (rt *Router) handleSendInvite(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var body struct {
		Email      string `json:"email"`
		SenderName string `json:"sender_name"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := rt.directory.SendInvite(r.Context(), viewer(r), body.Email, body.SenderName); err != nil {
		if _, ok := services.AsServiceError(err); !ok {
			rt.log.Error("invite failed", zap.Error(err))
			writeMessage(w, http.StatusInternalServerError, "Failed to send invitation email")
			return
		}
		rt.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Invitation email sent successfully")
}
