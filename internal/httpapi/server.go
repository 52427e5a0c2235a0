package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BrandonDHaskell/lasergate/internal/clock"
	"github.com/BrandonDHaskell/lasergate/internal/hw/sim"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/service"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/store"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

// StatusSource publishes the controller's last tick.
type StatusSource interface {
	Status() types.Status
}

type Dependencies struct {
	Logger *slog.Logger
	Addr   string
	Status StatusSource
	Users  store.UserStore
	Clock  clock.Clock // defaults to clock.Real

	// Sim enables the /v1/sim routes. Nil on real hardware.
	Sim *sim.Board

	RateLimit float64 // requests per second per client; 0 disables
	Burst     int
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	mux        *http.ServeMux
	status     StatusSource
	users      store.UserStore
	clock      clock.Clock
	sim        *sim.Board
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()
	if d.Clock == nil {
		d.Clock = clock.Real()
	}

	s := &Server{
		logger: d.Logger,
		mux:    mux,
		status: d.Status,
		users:  d.Users,
		clock:  d.Clock,
		sim:    d.Sim,
	}

	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/users/{card_id}", s.handleUser)
	if d.Sim != nil {
		mux.HandleFunc("PUT /v1/sim/card", s.handleSimPresent)
		mux.HandleFunc("DELETE /v1/sim/card", s.handleSimRemove)
		mux.HandleFunc("PUT /v1/sim/done", s.handleSimDone)
		mux.HandleFunc("POST /v1/sim/keys", s.handleSimKeys)
	}

	var handler http.Handler = mux
	if d.RateLimit > 0 {
		handler = newClientLimiter(d.RateLimit, d.Burst).middleware(handler)
	}
	handler = loggingMiddleware(d.Logger, handler)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.status.Status()
	if wantsProtobuf(r) {
		msg, err := statusToProto(st)
		if err != nil {
			s.logger.Error("status encode", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// userView is a record plus the decision it would get right now.
type userView struct {
	types.UserRecord
	Decision string `json:"decision"`
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	cardID := strings.TrimSpace(r.PathValue("card_id"))

	rec, err := s.users.Lookup(r.Context(), cardID)
	switch {
	case err == nil, errors.Is(err, store.ErrDuplicateRecord):
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "no user for card")
		return
	case errors.Is(err, store.ErrInvalidCardID):
		writeError(w, http.StatusBadRequest, "invalid_card_id", err.Error())
		return
	default:
		s.logger.Error("user lookup", "card", cardID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	view := userView{
		UserRecord: rec,
		Decision:   service.Decide(&rec, s.clock.Now()).String(),
	}
	if wantsProtobuf(r) {
		msg, err := userToProto(view)
		if err != nil {
			s.logger.Error("user encode", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ── Simulator ────────────────────────────────────────────────────────────────

func (s *Server) handleSimPresent(w http.ResponseWriter, r *http.Request) {
	var card types.Card
	if err := readJSON(r, &card); err != nil || strings.TrimSpace(card.ID) == "" {
		writeError(w, http.StatusBadRequest, "bad_json", "body must be {\"card_id\": ...}")
		return
	}
	s.sim.Reader.Present(card)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSimRemove(w http.ResponseWriter, _ *http.Request) {
	s.sim.Reader.Remove()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSimDone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pressed bool `json:"pressed"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	s.sim.Done.Set(req.Pressed)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSimKeys(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text   string `json:"text"`
		Submit bool   `json:"submit"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	queued := s.sim.Type(req.Text, req.Submit)
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}

// ── Encoding helpers ─────────────────────────────────────────────────────────

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}
