package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/LeventeLantos/drama-notifier/internal/auth"
	"github.com/LeventeLantos/drama-notifier/internal/cache"
	"github.com/LeventeLantos/drama-notifier/internal/model"
	"github.com/LeventeLantos/drama-notifier/internal/repo"
	"github.com/LeventeLantos/drama-notifier/internal/scheduler"
	"github.com/LeventeLantos/drama-notifier/internal/service"
)

const maxBodyBytes = 1 << 20

type Deps struct {
	Auth       *auth.Authenticator
	Catalog    *service.Catalog
	Dispatcher *service.Dispatcher
	Ledger     repo.Ledger
	Scheduler  *scheduler.Scheduler
	Runs       cache.RunStore
}

type Handler struct {
	auth       *auth.Authenticator
	catalog    *service.Catalog
	dispatcher *service.Dispatcher
	ledger     repo.Ledger
	sched      *scheduler.Scheduler
	runs       cache.RunStore
	now        func() time.Time
}

func NewHandler(d Deps) *Handler {
	runs := d.Runs
	if runs == nil {
		runs = cache.NewMemoryRunStore()
	}
	return &Handler{
		auth:       d.Auth,
		catalog:    d.Catalog,
		dispatcher: d.Dispatcher,
		ledger:     d.Ledger,
		sched:      d.Scheduler,
		runs:       runs,
		now:        time.Now,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	token, p, err := h.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Role: p.Role})
}

func (h *Handler) CreateSubAdmin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	u, err := h.auth.CreateSubAdmin(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUser(u))
}

func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.ListRecipients(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(items, toContact)})
}

func (h *Handler) CreateContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var in service.RecipientInput
	if req.Name != nil {
		in.Name = *req.Name
	}
	if req.Phone != nil {
		in.Phone = *req.Phone
	}

	c, err := h.catalog.CreateRecipient(r.Context(), principalFrom(r.Context()), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContact(c))
}

func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := h.catalog.UpdateRecipient(r.Context(), r.PathValue("id"), model.RecipientPatch{Name: req.Name, Phone: req.Phone})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContact(c))
}

func (h *Handler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteRecipient(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListDramas(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.ListEvents(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(items, toDrama)})
}

func (h *Handler) CreateDrama(w http.ResponseWriter, r *http.Request) {
	var req dramaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	e, err := h.catalog.CreateEvent(r.Context(), principalFrom(r.Context()), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDrama(e))
}

func (h *Handler) UpdateDrama(w http.ResponseWriter, r *http.Request) {
	var req dramaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	patch, err := req.patch()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	e, err := h.catalog.UpdateEvent(r.Context(), principalFrom(r.Context()), r.PathValue("id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDrama(e))
}

func (h *Handler) DeleteDrama(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteEvent(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SendManual(w http.ResponseWriter, r *http.Request) {
	res, err := h.dispatcher.DispatchManual(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, manualResponse{Message: res.Message(), ManualResult: res})
}

func (h *Handler) SendScheduled(w http.ResponseWriter, r *http.Request) {
	res, err := h.dispatcher.DispatchScheduled(r.Context(), h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduledResponse{
		Message:         res.Message(),
		TargetDate:      model.FormatDate(res.TargetDate),
		ScheduledResult: res,
	})
}

func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := repo.DeliveryQuery{
		EventID: q.Get("dramaId"),
		Status:  model.Status(q.Get("status")),
		Limit:   parseInt(q.Get("limit"), 50),
		Offset:  parseInt(q.Get("offset"), 0),
	}
	if query.Status != "" && query.Status != model.Sent && query.Status != model.Failed {
		writeError(w, http.StatusBadRequest, "status must be sent or failed")
		return
	}

	items, err := h.ledger.ListDeliveries(r.Context(), query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(items, toDelivery)})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.schedulerState(r.Context()))
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) schedulerState(ctx context.Context) map[string]any {
	st := h.sched.Status()
	body := map[string]any{
		"running":  st.Running,
		"interval": st.Interval.String(),
		"ticks":    st.Ticks,
	}
	if !st.LastTick.IsZero() {
		body["lastTick"] = st.LastTick
	}
	if st.LastError != "" {
		body["lastError"] = st.LastError
	}

	lastRuns := map[string]any{}
	for _, trig := range []model.Trigger{model.TriggerManual, model.TriggerScheduled} {
		s, ok, err := h.runs.LastRun(ctx, trig)
		if err != nil {
			slog.Warn("last run lookup failed", "trigger", trig, "error", err)
			continue
		}
		if ok {
			lastRuns[string(trig)] = s
		}
	}
	body["lastRuns"] = lastRuns
	return body
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var badReq badRequestError
	switch {
	case errors.As(err, &badReq),
		errors.Is(err, service.ErrValidation),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repo.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return false
	}
	return true
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
