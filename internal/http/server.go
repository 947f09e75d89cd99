package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"time"

	"entitydb/pkg/config"
	"entitydb/pkg/dberrors"
	"entitydb/pkg/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	contentTypeJSON        = "application/json"
	contentTypeJSONPatch   = "application/json-patch+json"
	defaultShutdownTimeout = time.Second * 5
	maxBodyBytes           = 8 << 20
)

type iCatalog interface {
	Names() []string
	Collection(name string) (*store.DocumentCollection, error)
}

// Server exposes the collections of a catalog over a JSON API.
type Server struct {
	db                iCatalog
	metrics           http.Handler
	readHeaderTimeout time.Duration
	httpServer        *http.Server
	URL               string
	addr              string
}

// NewServer creates a new server instance. A nil metrics handler serves the
// default prometheus registry.
func NewServer(db iCatalog, cfg config.ServerConfig, metrics http.Handler) *Server {
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	port := cfg.Port
	if port == 0 {
		port = config.Default().Server.Port
	}
	return &Server{
		db:                db,
		metrics:           metrics,
		readHeaderTimeout: cfg.ReadHeaderTimeout,
		URL:               fmt.Sprintf("http://localhost:%d", port),
		addr:              fmt.Sprintf(":%d", port),
	}
}

// Start starts the server
func (s *Server) Start() error {
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}
	return nil
}

// Handler returns the API router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.createRouter()
}

// createRouter builds chi router
func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics)

	r.Route("/api/collections", func(r chi.Router) {
		r.Get("/", s.handleCollections)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/entities", s.handleList)
			r.Post("/entities", s.handleAdd)
			r.Put("/entities", s.handleUpsert)
			r.Delete("/entities", s.handleRemoveMany)
			r.Get("/entities/{key}", s.handleGet)
			r.Patch("/entities/{key}", s.handleUpdate)
			r.Delete("/entities/{key}", s.handleRemove)
			r.Get("/indexes/{index}", s.handleIndex)
			r.Get("/indexes/{index}/{value}", s.handleBucket)
		})
	})

	return r
}

func (s *Server) startHTTPServer() error {
	timeout := s.readHeaderTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.createRouter(),
		ReadHeaderTimeout: timeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", s.URL)
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dberrors.ErrNotFound),
		errors.Is(err, dberrors.ErrUnknownCollection),
		errors.Is(err, dberrors.ErrUnknownIndex):
		status = http.StatusNotFound
	case errors.Is(err, dberrors.ErrInvalidArgument),
		errors.Is(err, store.ErrInvalidPatch),
		errors.Is(err, store.ErrInvalidPredicate):
		status = http.StatusBadRequest
	case errors.Is(err, dberrors.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, NewErrorResponse(err.Error()))
}

func (s *Server) writeResult(w http.ResponseWriter, res store.Result, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewWriteResponse(res))
}

func (s *Server) collection(w http.ResponseWriter, r *http.Request) (*store.DocumentCollection, bool) {
	c, err := s.db.Collection(chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return c, true
}

func (s *Server) param(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil || v == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid "+name))
		return "", false
	}
	return v, true
}

// decodeDocuments reads a JSON array of documents, or a single document.
func decodeDocuments(r *http.Request) ([]store.Document, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dberrors.ErrInvalidArgument, err)
	}

	var docs []store.Document
	if err := json.Unmarshal(body, &docs); err == nil {
		return docs, nil
	}
	var doc store.Document
	if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object or an array of objects", dberrors.ErrInvalidArgument)
	}
	return []store.Document{doc}, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewValueResponse(s.db.Names()))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r)
	if !ok {
		return
	}

	where := r.URL.Query().Get("where")
	if where == "" {
		s.writeJSON(w, http.StatusOK, NewValueResponse(c.All()))
		return
	}

	docs, err := c.Filter(where)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if docs == nil {
		docs = []store.Document{}
	}
	s.writeJSON(w, http.StatusOK, NewValueResponse(docs))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r)
	if !ok {
		return
	}
	key, ok := s.param(w, r, "key")
	if !ok {
		return
	}

	doc, err := c.Get(c.ResolveKey(key))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewValueResponse(doc))
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r)
	if !ok {
		return
	}
	docs, err := decodeDocuments(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := c.Add(docs...)
	s.writeResult(w, res, err)
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r)
	if !ok {
		return
	}
	docs, err := decodeDocuments(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var res store.Result
	switch r.URL.Query().Get("replace") {
	case "":
		res, err = c.Upsert(docs...)
	case "all":
		res, err = c.SetAll(docs)
	case "each":
		res, err = c.Set(docs...)
	default:
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("replace must be all or each"))
		return
	}
	s.writeResult(w, res, err)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r)
	if !ok {
		return
	}
	raw, ok := s.param(w, r, "key")
	if !ok {
		return
	}
	key := c.ResolveKey(raw)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Failed to read body"))
		return
	}

	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == contentTypeJSONPatch {
		res, err := c.Patch(key, body)
		s.writeResult(w, res, err)
		return
	}

	var changes map[string]any
	if err := json.Unmarshal(body, &changes); err != nil || changes == nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("body must be a JSON object"))
		return
	}
	res, err := c.UpdateOne(key, changes)
	s.writeResult(w, res, err)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r)
	if !ok {
		return
	}
	raw, ok := s.param(w, r, "key")
	if !ok {
		return
	}

	res, err := c.RemoveOne(c.ResolveKey(raw))
	s.writeResult(w, res, err)
}

func (s *Server) handleRemoveMany(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r)
	if !ok {
		return
	}

	if where := r.URL.Query().Get("where"); where != "" {
		res, err := c.RemoveMatching(where)
		s.writeResult(w, res, err)
		return
	}
	res, err := c.RemoveAll()
	s.writeResult(w, res, err)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r)
	if !ok {
		return
	}
	index, ok := s.param(w, r, "index")
	if !ok {
		return
	}

	if r.URL.Query().Get("all") != "" {
		docs, err := c.IndexAll(index)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, NewValueResponse(docs))
		return
	}

	keys, err := c.IndexKeys(index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewValueResponse(keys))
}

func (s *Server) handleBucket(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collection(w, r)
	if !ok {
		return
	}
	index, ok := s.param(w, r, "index")
	if !ok {
		return
	}
	value, ok := s.param(w, r, "value")
	if !ok {
		return
	}

	docs, err := c.Bucket(index, c.ResolveIndexKey(index, value))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewValueResponse(docs))
}
