/*
handlers.go - HTTP API handlers for the checklist engine

PURPOSE:
  Exposes instance listing, status changes and the small administration
  surface over REST. Handles HTTP request/response and JSON serialization,
  and delegates to the assembler, auditor and store.

ENDPOINTS:
  Instances:
    GET    /api/instances          List instances (query = assembler.Query)
    GET    /api/instances.ics      Same listing as an iCalendar feed
    PUT    /api/instances/status   Set status {key, status, comment}
    DELETE /api/instances/status   Clear status {key}

  Dashboard:
    GET    /api/dashboard          Per-day counts, completion, at-risk list

  Tasks:
    GET    /api/tasks              List task definitions
    POST   /api/tasks              Create or replace a task (factory.TaskJSON)
    DELETE /api/tasks/{id}         Delete a task and all its overrides

  Holidays:
    GET    /api/holidays           Custom holidays
    POST   /api/holidays           Add a custom holiday
    DELETE /api/holidays/{id}      Remove a custom holiday

  Admin:
    POST   /api/admin/audit        Run the missed-instance auditor now
    GET    /api/admin/audit/runs   Recent auditor runs

CALLER IDENTITY:
  Authentication is handled upstream. The caller's user id arrives in the
  X-User-ID header (or the user_id query parameter for calendar clients
  that cannot set headers).

ERROR HANDLING:
  Errors are returned as JSON {error, details}:
  - 400: invalid input (bad key, status, task definition, range too long)
  - 403: caller may not change the instance
  - 404: task, instance or user not found
  - 409: duplicate holiday
  - 500: internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/warp/checklist-engine/assembler"
	"github.com/warp/checklist-engine/auditor"
	"github.com/warp/checklist-engine/calendar"
	"github.com/warp/checklist-engine/checklist"
	"github.com/warp/checklist-engine/factory"
	"github.com/warp/checklist-engine/feed"
	applog "github.com/warp/checklist-engine/internal/log"
	"github.com/warp/checklist-engine/recurrence"
	"github.com/warp/checklist-engine/stats"
	"github.com/warp/checklist-engine/store/sqlite"
)

// UserHeader carries the caller identity.
const UserHeader = "X-User-ID"

const (
	defaultMaxRangeDays = 400
	defaultAuditRuns    = 20
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       *sqlite.Store
	Assembler   *assembler.Assembler
	Auditor     *auditor.Auditor
	TaskFactory *factory.TaskFactory

	// Country is used when a request does not name one.
	Country      string
	MaxRangeDays int
	AtRiskWindow time.Duration
	Logger       logrus.FieldLogger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires a handler over a store, assembler and auditor.
func NewHandler(store *sqlite.Store, asm *assembler.Assembler, aud *auditor.Auditor, country string) *Handler {
	return &Handler{
		Store:        store,
		Assembler:    asm,
		Auditor:      aud,
		TaskFactory:  factory.NewTaskFactory(),
		Country:      country,
		MaxRangeDays: defaultMaxRangeDays,
		AtRiskWindow: stats.DefaultAtRiskWindow,
		Logger:       applog.GetLogger(),
	}
}

// SyncHolidays pushes the stored custom holidays into the calendar service.
func (h *Handler) SyncHolidays(ctx context.Context) error {
	list, err := h.Store.ListHolidays(ctx)
	if err != nil {
		return err
	}
	h.Assembler.Calendar().SetCustomHolidays(list)
	return nil
}

func (h *Handler) log() logrus.FieldLogger {
	return applog.OrDefault(h.Logger)
}

// =============================================================================
// INSTANCE HANDLERS
// =============================================================================

// ListInstances returns the instances matching the query.
// GET /api/instances?from=2024-01-01&to=2024-01-31&status=pending
func (h *Handler) ListInstances(w http.ResponseWriter, r *http.Request) {
	list, ok := h.list(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, InstanceDTOs(list))
}

// InstancesFeed renders the listing as an iCalendar document.
// GET /api/instances.ics
func (h *Handler) InstancesFeed(w http.ResponseWriter, r *http.Request) {
	list, ok := h.list(w, r)
	if !ok {
		return
	}
	name := "Checklist"
	if u := callerID(r); u != "" {
		name = fmt.Sprintf("Checklist (%s)", u)
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(feed.Build(name, list, h.Assembler.Now())))
}

// list parses the query and runs it, writing the error response itself.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) ([]checklist.Instance, bool) {
	q, err := h.parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return nil, false
	}
	list, err := h.Assembler.List(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list instances", err)
		return nil, false
	}
	return list, true
}

// parseQuery maps query parameters onto an assembler.Query. Unparsable
// dates pass through (the assembler answers them with an empty list);
// malformed filters and over-long ranges are rejected.
func (h *Handler) parseQuery(r *http.Request) (assembler.Query, error) {
	v := r.URL.Query()
	q := assembler.Query{
		From:        v.Get("from"),
		To:          v.Get("to"),
		Status:      checklist.Status(strings.ToLower(v.Get("status"))),
		Periodicity: checklist.Periodicity(strings.ToLower(v.Get("periodicity"))),
		Search:      v.Get("search"),
		UserID:      checklist.UserID(callerID(r)),
		GroupID:     checklist.GroupID(v.Get("group_id")),
		Country:     h.country(v.Get("country")),
	}
	if q.From == "" || q.To == "" {
		return q, errors.New("from and to are required (YYYY-MM-DD)")
	}
	if q.Status != "" && !q.Status.Valid() {
		return q, fmt.Errorf("%w: %q", checklist.ErrInvalidStatus, q.Status)
	}
	if q.Periodicity != "" && !q.Periodicity.Valid() {
		return q, fmt.Errorf("unknown periodicity %q", q.Periodicity)
	}
	if s := v.Get("is_delegated"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return q, fmt.Errorf("invalid is_delegated: %w", err)
		}
		q.IsDelegated = &b
	}
	if s := v.Get("include_future"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return q, fmt.Errorf("invalid include_future: %w", err)
		}
		q.IncludeFuture = b
	}

	limit := h.MaxRangeDays
	if limit <= 0 {
		limit = defaultMaxRangeDays
	}
	if p, ok := recurrence.ParseRange(q.From, q.To); ok && p.Len() > limit {
		return q, fmt.Errorf("range spans %d days, limit is %d", p.Len(), limit)
	}
	return q, nil
}

// SetStatus writes a status override for one instance.
// PUT /api/instances/status
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	req, key, user, ok := h.statusRequest(w, r)
	if !ok {
		return
	}

	inst, err := h.Assembler.SetStatus(r.Context(), key, user, checklist.Status(strings.ToLower(req.Status)), req.Comment, h.country(req.Country))
	if err != nil {
		writeDomainError(w, "Failed to set status", err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceDTO(inst))
}

// ClearStatus removes the override, returning the instance to its
// computed default.
// DELETE /api/instances/status
func (h *Handler) ClearStatus(w http.ResponseWriter, r *http.Request) {
	req, key, user, ok := h.statusRequest(w, r)
	if !ok {
		return
	}

	inst, err := h.Assembler.ClearStatus(r.Context(), key, user, h.country(req.Country))
	if err != nil {
		writeDomainError(w, "Failed to clear status", err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceDTO(inst))
}

func (h *Handler) statusRequest(w http.ResponseWriter, r *http.Request) (StatusRequest, checklist.InstanceKey, checklist.UserID, bool) {
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return req, checklist.InstanceKey{}, "", false
	}
	user := callerID(r)
	if user == "" {
		writeError(w, http.StatusBadRequest, "Missing "+UserHeader+" header", nil)
		return req, checklist.InstanceKey{}, "", false
	}
	key, err := checklist.ParseInstanceKey(req.Key)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid instance key", err)
		return req, checklist.InstanceKey{}, "", false
	}
	return req, key, checklist.UserID(user), true
}

// =============================================================================
// DASHBOARD
// =============================================================================

// Dashboard returns per-day counts and the at-risk list for a range.
// GET /api/dashboard?from=...&to=...
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}
	list, err := h.Assembler.List(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list instances", err)
		return
	}

	zone := h.Assembler.Calendar().Zone(q.Country)
	summary := stats.Summarize(list, zone, h.Assembler.Now(), h.AtRiskWindow)
	writeJSON(w, http.StatusOK, toDashboardDTO(q.From, q.To, summary))
}

// =============================================================================
// TASK HANDLERS
// =============================================================================

// ListTasks returns all task definitions.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Store.ListTasks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tasks", err)
		return
	}
	dtos := make([]factory.TaskJSON, 0, len(tasks))
	for _, t := range tasks {
		dtos = append(dtos, h.TaskFactory.ToJSON(t))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTask validates and stores a task definition.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req factory.TaskJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	task, err := h.TaskFactory.FromJSON(req)
	if err != nil {
		writeDomainError(w, "Invalid task", err)
		return
	}
	if err := h.Store.SaveTask(r.Context(), *task); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save task", err)
		return
	}

	h.log().WithFields(logrus.Fields{
		"task_id":     task.ID,
		"periodicity": task.Periodicity,
	}).Info("task saved")
	writeJSON(w, http.StatusCreated, h.TaskFactory.ToJSON(*task))
}

// DeleteTask removes a task with its overrides and delegations.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := checklist.TaskID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteTask(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete task", err)
		return
	}
	h.log().WithField("task_id", id).Info("task deleted")
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns the custom holidays.
// GET /api/holidays
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListHolidays(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list holidays", err)
		return
	}
	dtos := make([]HolidayDTO, 0, len(list))
	for _, hol := range list {
		dtos = append(dtos, toHolidayDTO(hol))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday adds a custom holiday and refreshes the calendar.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := calendar.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	saved, err := h.Store.SaveHoliday(r.Context(), calendar.Holiday{
		Country:   strings.ToUpper(strings.TrimSpace(req.Country)),
		Date:      date,
		Name:      strings.TrimSpace(req.Name),
		Recurring: req.Recurring,
	})
	if errors.Is(err, sqlite.ErrDuplicateHoliday) {
		writeError(w, http.StatusConflict, "Holiday already exists", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save holiday", err)
		return
	}
	if err := h.SyncHolidays(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to refresh holidays", err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayDTO(saved))
}

// DeleteHoliday removes a custom holiday.
// DELETE /api/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	removed, err := h.Store.DeleteHoliday(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete holiday", err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "Holiday not found", nil)
		return
	}
	if err := h.SyncHolidays(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to refresh holidays", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerAudit runs the auditor synchronously.
// POST /api/admin/audit?country=FR
func (h *Handler) TriggerAudit(w http.ResponseWriter, r *http.Request) {
	result, err := h.Auditor.Run(r.Context(), h.country(r.URL.Query().Get("country")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Audit failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditResultDTO(result))
}

// ListAuditRuns returns the most recent auditor runs.
// GET /api/admin/audit/runs?limit=20
func (h *Handler) ListAuditRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditRuns
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListAuditRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list audit runs", err)
		return
	}
	dtos := make([]AuditRunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toAuditRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) country(c string) string {
	if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
		return c
	}
	return h.Country
}

func callerID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(UserHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("user_id"))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps checklist errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case checklist.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case checklist.IsForbidden(err):
		writeError(w, http.StatusForbidden, message, err)
	case checklist.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
