package httpx

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/taskboard/internal/service/auth"
	"github.com/splax/taskboard/internal/service/task"
	"github.com/splax/taskboard/internal/ws"
)

const streamPath = "/api/tasks/stream"

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	handler  http.Handler
	logger   *slog.Logger
	auth     auth.Service
	tasks    task.Service
	hub      *ws.Hub
	upgrader websocket.Upgrader
	limiter  RateLimiter
	schemas  requestSchemas
	dbHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	streamClients      prometheus.Gauge
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitRegister  = 5
	rateLimitLogin     = 12
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second
)

// Options carries the optional collaborators of a Router.
type Options struct {
	Hub         *ws.Hub
	Limiter     RateLimiter
	CORSOrigins []string
	DBHealth    func(context.Context) error
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, taskSvc task.Service, opts Options) (*Router, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, fmt.Errorf("compile request schemas: %w", err)
	}
	policy := newCORS(opts.CORSOrigins)
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger,
		auth:   authSvc,
		tasks:  taskSvc,
		hub:    opts.Hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: websocketOriginCheck(policy),
		},
		limiter:  opts.Limiter,
		schemas:  schemas,
		dbHealth: opts.DBHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	r.handler = policy.Handler(r.mux)
	return r, nil
}

// ServeHTTP delegates to the CORS-wrapped mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.HandleFunc("/metrics", r.metricsHandler())
	r.mux.HandleFunc("/api/auth/register", r.audit("/api/auth/register", r.withRateLimit("/api/auth/register", rateLimitRegister, rateWindowDefault, rateLimitKeyIP, r.handleRegister)))
	r.mux.HandleFunc("/api/auth/login", r.audit("/api/auth/login", r.withRateLimit("/api/auth/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/api/tasks", r.audit("/api/tasks", r.handlerAuthRate("/api/tasks", rateLimitUserRead, rateWindowDefault, r.handleTasks)))
	r.mux.HandleFunc("/api/tasks/{id}", r.audit("/api/tasks/{id}", r.handlerAuthRate("/api/tasks/{id}", rateLimitUserWrite, rateWindowDefault, r.handleTask)))
	r.mux.HandleFunc(streamPath, r.audit(streamPath, r.handlerAuthRate(streamPath, rateLimitWebsocket, rateWindowRealtime, r.handleTaskStream)))
	r.mux.HandleFunc("/", r.audit("unmatched", func(w http.ResponseWriter, _ *http.Request) { r.notFound(w) }))
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload credentialsPayload
	if err := decodeBody(w, req, r.schemas.credentials, &payload); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	token, err := r.auth.Register(req.Context(), payload.Email, payload.Password)
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload credentialsPayload
	if err := decodeBody(w, req, r.schemas.credentials, &payload); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	token, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (r *Router) handleTasks(w http.ResponseWriter, req *http.Request) {
	info, ok := r.authInfo(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodGet:
		tasks, err := r.tasks.List(req.Context(), info.UserID)
		if err != nil {
			writeServiceError(w, r.logger, req, err)
			return
		}
		writeJSON(w, http.StatusOK, tasks)
	case http.MethodPost:
		var payload taskPayload
		if err := decodeBody(w, req, r.schemas.taskCreate, &payload); err != nil {
			writeServiceError(w, r.logger, req, err)
			return
		}
		dueAt, err := payload.dueAt()
		if err != nil {
			writeServiceError(w, r.logger, req, err)
			return
		}
		input := task.CreateInput{}
		if title := payload.title(); title != nil {
			input.Title = *title
		}
		if payload.Description != nil {
			input.Description = *payload.Description
		}
		if dueAt != nil {
			input.DueAt = *dueAt
		}
		created, err := r.tasks.Create(req.Context(), info.UserID, input)
		if err != nil {
			writeServiceError(w, r.logger, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTask(w http.ResponseWriter, req *http.Request) {
	info, ok := r.authInfo(w, req)
	if !ok {
		return
	}
	taskID := strings.TrimSpace(req.PathValue("id"))
	switch req.Method {
	case http.MethodPut, http.MethodPatch:
		var payload taskPayload
		if err := decodeBody(w, req, r.schemas.taskUpdate, &payload); err != nil {
			writeServiceError(w, r.logger, req, err)
			return
		}
		dueAt, err := payload.dueAt()
		if err != nil {
			writeServiceError(w, r.logger, req, err)
			return
		}
		ack, err := r.tasks.Update(req.Context(), info.UserID, taskID, task.UpdateInput{
			Title:       payload.title(),
			Description: payload.Description,
			DueAt:       dueAt,
		})
		if err != nil {
			writeServiceError(w, r.logger, req, err)
			return
		}
		writeJSON(w, http.StatusOK, ack)
	case http.MethodDelete:
		ack, err := r.tasks.Delete(req.Context(), info.UserID, taskID)
		if err != nil {
			writeServiceError(w, r.logger, req, err)
			return
		}
		writeJSON(w, http.StatusOK, ack)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTaskStream(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.authInfo(w, req)
	if !ok {
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "task stream unavailable")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(info.UserID, client)
	r.trackStream(1)
	go func() {
		defer func() {
			r.hub.Unregister(info.UserID, client)
			client.Close()
			r.trackStream(-1)
		}()
		client.Serve()
	}()
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			r.logger.Error("store health check failed", "error", err)
			status = "degraded"
			components["store"] = map[string]any{"status": "down"}
		} else {
			components["store"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) authInfo(w http.ResponseWriter, req *http.Request) (authInfo, bool) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
	}
	return info, ok
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the websocket upgrader take over the connection; a hijacked stream is audited as 101.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		sr.status = http.StatusSwitchingProtocols
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
