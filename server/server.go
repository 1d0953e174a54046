// Package server exposes invoice sessions and stored receipts over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"invoice_nft_receipt/extractor"
	"invoice_nft_receipt/render"
	"invoice_nft_receipt/store"
)

const defaultListLimit = 50

type Server struct {
	newSession extractor.SessionFactory
	records    store.RecordStore
	sessions   *sessionStore
	logger     *zap.Logger
}

// DefaultSessionTTL is how long an untouched session is kept.
const DefaultSessionTTL = 30 * time.Minute

type sessionEntry struct {
	sess    *extractor.Session
	touched time.Time
}

// sessionStore holds live sessions. Idle ones are evicted lazily on access.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	ttl      time.Duration
	now      func() time.Time
}

func newStore() *sessionStore {
	return &sessionStore{
		sessions: make(map[string]*sessionEntry),
		ttl:      DefaultSessionTTL,
		now:      time.Now,
	}
}

func (s *sessionStore) set(id string, sess *extractor.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.evictLocked(now)
	s.sessions[id] = &sessionEntry{sess: sess, touched: now}
}

func (s *sessionStore) get(id string) (*extractor.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.evictLocked(now)
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	e.touched = now
	return e.sess, true
}

func (s *sessionStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *sessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *sessionStore) evictLocked(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	for id, e := range s.sessions {
		if now.Sub(e.touched) > s.ttl {
			delete(s.sessions, id)
		}
	}
}

func New(factory extractor.SessionFactory, records store.RecordStore, logger *zap.Logger) (*Server, error) {
	if factory == nil {
		return nil, errors.New("session factory required")
	}
	if records == nil {
		return nil, errors.New("record store required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		newSession: factory,
		records:    records,
		sessions:   newStore(),
		logger:     logger,
	}, nil
}

// SetSessionTTL changes how long an untouched session survives. Zero keeps
// sessions until they close.
func (s *Server) SetSessionTTL(d time.Duration) {
	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()
	s.sessions.ttl = d
}

func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions", s.handleSessionCreate).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.handleSessionGet).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleSessionCancel).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/reply", s.handleSessionReply).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/retry", s.handleSessionRetry).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/preview", s.handleSessionPreview).Methods(http.MethodGet)

	api.HandleFunc("/receipts", s.handleReceiptList).Methods(http.MethodGet)
	api.HandleFunc("/receipts/{cid}", s.handleReceiptGet).Methods(http.MethodGet)
	api.HandleFunc("/receipts/{cid}/pdf", s.handleReceiptPDF).Methods(http.MethodGet)

	r.Use(s.logMiddleware)
	return r
}

// --- Handlers ---

type textReq struct {
	Text string `json:"text"`
}

func decodeText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req textReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return "", false
	}
	return text, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	text, ok := decodeText(w, r)
	if !ok {
		return
	}
	id := uuid.NewString()
	sess := s.newSession(id)
	snap, err := sess.Start(r.Context(), text)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	if !snap.Closed {
		s.sessions.set(id, sess)
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleSessionReply(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	text, ok := decodeText(w, r)
	if !ok {
		return
	}
	snap, err := sess.Reply(r.Context(), text)
	s.respond(w, sess, snap, err)
}

func (s *Server) handleSessionRetry(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	snap, err := sess.Retry(r.Context())
	s.respond(w, sess, snap, err)
}

func (s *Server) handleSessionCancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	snap, err := sess.Cancel()
	s.respond(w, sess, snap, err)
}

func (s *Server) handleSessionPreview(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	snap := sess.Snapshot()
	if snap.Draft == nil {
		writeError(w, http.StatusNotFound, "no draft yet")
		return
	}
	html, err := render.HTML(render.Markdown(*snap.Draft, snap.Flags))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}

func (s *Server) handleReceiptList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	receipts, err := s.records.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

func (s *Server) handleReceiptGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.records.Get(r.Context(), mux.Vars(r)["cid"])
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleReceiptPDF(w http.ResponseWriter, r *http.Request) {
	cid := mux.Vars(r)["cid"]
	rec, err := s.records.Get(r.Context(), cid)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	pdf, err := render.ReceiptPDF(rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": "invoice-" + cid + ".pdf"}))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	_, _ = w.Write(pdf)
}

// --- Helpers ---

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*extractor.Session, bool) {
	sess, ok := s.sessions.get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
	}
	return sess, ok
}

// respond writes snap and forgets the session once it is closed.
func (s *Server) respond(w http.ResponseWriter, sess *extractor.Session, snap extractor.Snapshot, err error) {
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	if snap.Closed {
		s.sessions.remove(sess.ID)
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, extractor.ErrSessionClosed), errors.Is(err, extractor.ErrUnexpectedEvent):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("session request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "receipt not found")
		return
	}
	s.logger.Error("record store failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}
