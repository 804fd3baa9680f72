package api

import (
	"net/http"

	"github.com/LeventeLantos/drama-notifier/internal/model"
)

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()
	admin := func(fn http.HandlerFunc) http.HandlerFunc { return h.require(model.RoleAdmin, fn) }
	staff := func(fn http.HandlerFunc) http.HandlerFunc { return h.require(model.RoleSubAdmin, fn) }

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("POST /v1/auth/login", h.Login)
	mux.HandleFunc("POST /v1/auth/sub-admins", admin(h.CreateSubAdmin))

	mux.HandleFunc("GET /v1/contacts", admin(h.ListContacts))
	mux.HandleFunc("POST /v1/contacts", admin(h.CreateContact))
	mux.HandleFunc("PUT /v1/contacts/{id}", admin(h.UpdateContact))
	mux.HandleFunc("DELETE /v1/contacts/{id}", admin(h.DeleteContact))

	mux.HandleFunc("GET /v1/dramas", staff(h.ListDramas))
	mux.HandleFunc("POST /v1/dramas", admin(h.CreateDrama))
	mux.HandleFunc("PUT /v1/dramas/{id}", staff(h.UpdateDrama))
	mux.HandleFunc("DELETE /v1/dramas/{id}", admin(h.DeleteDrama))

	mux.HandleFunc("POST /v1/sms/send/{id}", admin(h.SendManual))
	mux.HandleFunc("POST /v1/sms/scheduled", admin(h.SendScheduled))
	mux.HandleFunc("GET /v1/sms/logs", admin(h.ListLogs))

	mux.HandleFunc("GET /v1/scheduler/status", admin(h.SchedulerStatus))
	mux.HandleFunc("POST /v1/scheduler/start", admin(h.SchedulerStart))
	mux.HandleFunc("POST /v1/scheduler/stop", admin(h.SchedulerStop))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("drama-notifier"))
	})

	return mux
}
