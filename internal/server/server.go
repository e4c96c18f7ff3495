package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/copyleftdev/sumfunc/internal/config"
	"github.com/copyleftdev/sumfunc/internal/errors"
	"github.com/copyleftdev/sumfunc/internal/logging"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 8 << 20

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithRegisterer registers the server metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Server) { s.registerer = reg }
}

// Server implements the HTTP and JSON-RPC front end of the objective engine.
// Every minimization runs synchronously within its request; finished runs are
// kept, oldest evicted first, for later lookup by id.
type Server struct {
	cfg        *config.Config
	logger     Logger
	zlog       *zap.Logger
	registerer prometheus.Registerer
	metrics    *metrics

	// ctx is cancelled by Close and stops in-flight runs.
	ctx    context.Context
	cancel context.CancelFunc

	results   map[string]*Result
	order     []string
	resultsMu sync.RWMutex // Protects results and order
}

// NewServer creates a new server instance with the given config and logger
// The logger parameter accepts any type that implements the Logger interface
func NewServer(cfg *config.Config, logger Logger, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		zlog:    logging.NewZapLogger(logger.WithFields(map[string]interface{}{"component": "engine"})),
		ctx:     ctx,
		cancel:  cancel,
		results: make(map[string]*Result),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newMetrics(s.registerer)
	return s
}

func (s *Server) RegisterRoutes(r chi.Router) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/minimize", s.handleMinimize)
		r.Post("/pattern", s.handlePattern)
		r.Get("/result/{id}", s.handleResult)
		r.Delete("/result/{id}", s.handleDeleteResult)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// runContext derives a context that ends with either the request or the server.
func (s *Server) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if s.ctx.Err() != nil {
		cancel()
		return ctx, cancel
	}
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// startMinimize runs req and stores the result.
func (s *Server) startMinimize(ctx context.Context, req *ProblemRequest) (*Result, error) {
	ctx, cancel := s.runContext(ctx)
	defer cancel()

	res, err := s.minimize(ctx, req)
	if err != nil {
		return nil, err
	}
	res.ID = uuid.NewString()
	s.store(res)

	fields := map[string]interface{}{
		"result_id":  res.ID,
		"method":     res.Method,
		"status":     res.Status,
		"iterations": res.Iterations,
		"variables":  len(req.Variables),
		"terms":      len(req.Terms),
	}
	if res.Error != "" {
		fields["error"] = res.Error
		s.logger.Warn("Minimization failed", fields)
	} else {
		s.logger.Info("Minimization finished", fields)
	}
	return res, nil
}

func (s *Server) store(res *Result) {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()

	s.results[res.ID] = res
	s.order = append(s.order, res.ID)
	if limit := s.cfg.Objective.MaxResults; limit > 0 {
		for len(s.order) > limit {
			delete(s.results, s.order[0])
			s.order = s.order[1:]
		}
	}
	s.metrics.storedResults.Set(float64(len(s.results)))
}

func (s *Server) lookup(id string) (*Result, error) {
	s.resultsMu.RLock()
	defer s.resultsMu.RUnlock()

	res, ok := s.results[id]
	if !ok {
		return nil, errors.WithStatus(errors.Errorf("result %q not found", id), http.StatusNotFound)
	}
	return res, nil
}

func (s *Server) remove(id string) error {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()

	if _, ok := s.results[id]; !ok {
		return errors.WithStatus(errors.Errorf("result %q not found", id), http.StatusNotFound)
	}
	delete(s.results, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.metrics.storedResults.Set(float64(len(s.results)))
	return nil
}

// Close cancels in-flight runs and drops stored results.
func (s *Server) Close() error {
	s.cancel()

	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	s.results = make(map[string]*Result)
	s.order = nil
	s.metrics.storedResults.Set(0)
	return nil
}

// decodeProblem reads a ProblemRequest body, rejecting unknown fields.
func decodeProblem(w http.ResponseWriter, r *http.Request) (*ProblemRequest, error) {
	var req ProblemRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, errors.WithStatus(errors.Wrap(err, "invalid request body"), http.StatusBadRequest)
	}
	return &req, nil
}

// writeError reports err to the client; server faults are logged with the
// stack they were wrapped at.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	if errors.StatusCode(err) >= http.StatusInternalServerError {
		s.logger.Error("Request failed", errors.Fields(err))
	}
	errors.WriteJSON(w, err)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleMinimize handles POST /api/v1/minimize
func (s *Server) handleMinimize(w http.ResponseWriter, r *http.Request) {
	req, err := decodeProblem(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.startMinimize(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handlePattern handles POST /api/v1/pattern
func (s *Server) handlePattern(w http.ResponseWriter, r *http.Request) {
	req, err := decodeProblem(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out, err := s.pattern(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleResult handles GET /api/v1/result/{id}
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.lookup(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDeleteResult handles DELETE /api/v1/result/{id}
func (s *Server) handleDeleteResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.remove(id); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Debug("Result deleted", map[string]interface{}{"result_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
	rpcNotFound       = -32004
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&request); err != nil {
		s.respondWithError(w, rpcParseError, "Parse error", nil, nil)
		return
	}

	// Validate JSON-RPC 2.0 request
	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, rpcInvalidRequest, "Invalid Request", request.ID, nil)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "objective.minimize":
		var req ProblemRequest
		if err = decodeParams(request.Params, &req); err == nil {
			result, err = s.startMinimize(r.Context(), &req)
		}
	case "objective.pattern":
		var req ProblemRequest
		if err = decodeParams(request.Params, &req); err == nil {
			result, err = s.pattern(&req)
		}
	case "objective.result":
		var p struct {
			ID string `json:"id"`
		}
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.lookup(p.ID)
		}
	default:
		s.respondWithError(w, rpcMethodNotFound, "Method not found", request.ID, nil)
		return
	}

	if err != nil {
		status := errors.StatusCode(err)
		code := rpcServerError
		switch status {
		case http.StatusBadRequest:
			code = rpcInvalidParams
		case http.StatusNotFound:
			code = rpcNotFound
		default:
			if status >= http.StatusInternalServerError {
				s.logger.Error("JSON-RPC call failed", errors.Fields(err))
			}
		}
		s.respondWithError(w, code, err.Error(), request.ID, map[string]int{"status": status})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// decodeParams accepts params either as an object or as a one-element array
// holding the object.
func decodeParams(raw json.RawMessage, v interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return errors.WithStatus(errors.New("missing required parameters"), http.StatusBadRequest)
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil || len(list) != 1 {
			return errors.WithStatus(errors.New("params must be an object or a one-element array"), http.StatusBadRequest)
		}
		raw = list[0]
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.WithStatus(fmt.Errorf("invalid params: %w", err), http.StatusBadRequest)
	}
	return nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}, data interface{}) {
	s.logger.Warn("JSON-RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error":   rpcError{Code: code, Message: message, Data: data},
		"id":      id,
	})
}
