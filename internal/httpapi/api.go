// Package httpapi is the HTTP boundary: routing, request decoding, error
// mapping and the middleware chain. Domain rules live in internal/circle
// and internal/user; nothing here mutates state directly.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"padisave.org/internal/circle"
	"padisave.org/internal/obs"
	"padisave.org/internal/user"
)

// ReadyProbe reports readiness; with a database attached it pings it.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API carries the HTTP handlers and their service dependencies.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	users      *user.Service
	circles    *circle.Service
}

// New wires the route table. Paths under /api/ mirror the mobile client's
// calling convention (verb-style PascalCase operations).
func New(rp ReadyProbe, version string, users *user.Service, circles *circle.Service) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		users:      users,
		circles:    circles,
	}

	a.mux.HandleFunc("/api/Signup", a.handleSignup)
	a.mux.HandleFunc("/api/Login", a.handleLogin)
	a.mux.HandleFunc("/api/GetUserData", a.handleGetUserData)

	a.mux.HandleFunc("/api/CreateCircle", a.handleCreateCircle)
	a.mux.HandleFunc("/api/JoinCircle", a.handleJoinCircle)
	a.mux.HandleFunc("/api/LeaveCircle", a.handleLeaveCircle)
	a.mux.HandleFunc("/api/CircleStatus", a.handleCircleStatus)

	a.mux.HandleFunc("/api/RecordPayment", a.handleRecordPayment)
	a.mux.HandleFunc("/api/AdvanceCycle", a.handleAdvanceCycle)
	a.mux.HandleFunc("/api/MarkOverdue", a.handleMarkOverdue)
	a.mux.HandleFunc("/api/WriteOffContribution", a.handleWriteOff)

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full handler: authentication plus metrics around the
// route table. The outer middleware chain (request IDs, logging, rate
// limiting) is assembled by the caller.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.withAuth(a.mux))
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "padisave-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "padisave-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps domain sentinels onto HTTP status codes.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, circle.ErrInvalidInput),
		errors.Is(err, circle.ErrAmountMismatch),
		errors.Is(err, user.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, user.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, circle.ErrNotFound), errors.Is(err, user.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, circle.ErrAlreadyMember),
		errors.Is(err, circle.ErrCircleFull),
		errors.Is(err, circle.ErrAlreadyPaid),
		errors.Is(err, circle.ErrAlreadySettled),
		errors.Is(err, circle.ErrCircleNotActive),
		errors.Is(err, circle.ErrCycleIncomplete),
		errors.Is(err, circle.ErrRotationLocked),
		errors.Is(err, user.ErrDuplicateEmail):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, circle.ErrCodeExhausted):
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
