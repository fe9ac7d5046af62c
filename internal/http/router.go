// Package httpx serves the local dashboard API.
package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/peephost/internal/domain"
	"github.com/splax/peephost/internal/repository"
	"github.com/splax/peephost/internal/service/dependency"
	"github.com/splax/peephost/internal/service/diagnose"
	"github.com/splax/peephost/internal/service/ingress"
	"github.com/splax/peephost/internal/service/mail"
	"github.com/splax/peephost/internal/service/project"
	"github.com/splax/peephost/internal/service/teardown"
	"github.com/splax/peephost/internal/templates"
	"github.com/splax/peephost/internal/validate"
	"github.com/splax/peephost/internal/ws"
)

// ProjectService is the lifecycle facade exposed over HTTP.
type ProjectService interface {
	List(ctx context.Context) ([]domain.ProjectRecord, error)
	Get(ctx context.Context, name string) (domain.ProjectRecord, error)
	Create(ctx context.Context, name, templateID string) (domain.ProjectRecord, error)
	LinkDomain(ctx context.Context, name, domainName string) (domain.ProjectRecord, error)
	SetupMail(ctx context.Context, name string, installWebmail bool) error
	Delete(ctx context.Context, name string) (teardown.Report, error)
}

// HealthCheck probes one component for /healthz.
type HealthCheck func(ctx context.Context) error

// RateConfig bounds authenticated requests per operator.
type RateConfig struct {
	Requests int
	Window   time.Duration
}

// Options configures the router.
type Options struct {
	Logger     *slog.Logger
	Projects   ProjectService
	Hub        *ws.Hub
	Limiter    RateLimiter
	Rate       RateConfig
	Secret     string
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Health     map[string]HealthCheck
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	projects ProjectService
	hub      *ws.Hub
	upgrader websocket.Upgrader
	limiter  RateLimiter
	rate     RateConfig
	secret   string
	health   map[string]HealthCheck

	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimitHits  *prometheus.CounterVec
}

const healthCheckTimeout = 2 * time.Second

// NewRouter assembles routes with dependencies.
func NewRouter(opts Options) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   opts.Logger,
		projects: opts.Projects,
		hub:      opts.Hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter: opts.Limiter,
		rate:    opts.Rate,
		secret:  strings.TrimSpace(opts.Secret),
		health:  opts.Health,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	reg, gatherer := opts.Registerer, opts.Gatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.initMetrics(reg)
	r.register(gatherer)
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register(gatherer prometheus.Gatherer) {
	r.mux.HandleFunc("/healthz", r.audit(r.instrument("/healthz", r.handleHealthz)))
	r.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.mux.HandleFunc("/templates", r.audit(r.instrument("/templates", r.handlerAuthRate("/templates", r.handleTemplates))))
	r.mux.HandleFunc("/projects", r.audit(r.instrument("/projects", r.handlerAuthRate("/projects", r.handleProjects))))
	r.mux.HandleFunc("/projects/", r.audit(r.instrument("/projects/{name}", r.handlerAuthRate("/projects/{name}", r.handleProjectSubroutes))))
	r.mux.HandleFunc("/ws/projects", r.audit(r.handlerAuthRate("/ws/projects", r.handleProjectsWS)))
}

// projectView adds the registry key to a record.
type projectView struct {
	Name string `json:"name"`
	domain.ProjectRecord
}

func viewOf(rec domain.ProjectRecord) projectView {
	return projectView{Name: rec.Name, ProjectRecord: rec}
}

func (r *Router) handleProjects(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		records, err := r.projects.List(req.Context())
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		views := make([]projectView, len(records))
		for i, rec := range records {
			views[i] = viewOf(rec)
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": views})
	case http.MethodPost:
		if !r.requireWrite(w, req) {
			return
		}
		var payload struct {
			Name     string `json:"name"`
			Template string `json:"template"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if payload.Template == "" {
			payload.Template = project.DefaultTemplate
		}
		rec, err := r.projects.Create(req.Context(), strings.TrimSpace(payload.Name), payload.Template)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, viewOf(rec))
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleProjectSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(req.URL.Path, "/projects/"), "/")
	parts := strings.Split(trimmed, "/")
	name := parts[0]
	if name == "" {
		r.notFound(w)
		return
	}
	switch {
	case len(parts) == 1:
		r.handleProject(w, req, name)
	case len(parts) == 2 && parts[1] == "domain":
		r.handleProjectDomain(w, req, name)
	case len(parts) == 2 && parts[1] == "mail":
		r.handleProjectMail(w, req, name)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleProject(w http.ResponseWriter, req *http.Request, name string) {
	switch req.Method {
	case http.MethodGet:
		rec, err := r.projects.Get(req.Context(), name)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(rec))
	case http.MethodDelete:
		if !r.requireWrite(w, req) {
			return
		}
		report, err := r.projects.Delete(req.Context(), name)
		var tdErr *teardown.TeardownError
		if err != nil && !errors.As(err, &tdErr) {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"project": name,
			"clean":   report.Clean(),
			"steps":   report.Steps,
		})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleProjectDomain(w http.ResponseWriter, req *http.Request, name string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if !r.requireWrite(w, req) {
		return
	}
	var payload struct {
		Domain string `json:"domain"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rec, err := r.projects.LinkDomain(req.Context(), name, strings.ToLower(strings.TrimSpace(payload.Domain)))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(rec))
}

func (r *Router) handleProjectMail(w http.ResponseWriter, req *http.Request, name string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if !r.requireWrite(w, req) {
		return
	}
	var payload struct {
		Webmail bool `json:"webmail"`
	}
	if req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if err := r.projects.SetupMail(req.Context(), name, payload.Webmail); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"project": name, "mail": "configured", "webmail": payload.Webmail})
}

func (r *Router) handleTemplates(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	type item struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	var out []item
	for _, t := range templates.Catalog() {
		out = append(out, item{ID: t.ID, Name: t.Name, Description: t.Description})
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": out})
}

func (r *Router) handleProjectsWS(w http.ResponseWriter, req *http.Request) {
	if _, ok := authInfoFromContext(req.Context()); !ok {
		r.logger.Error("auth context missing for projects websocket", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "realtime updates disabled")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	if payload, err := r.Snapshot(req.Context()); err == nil {
		_ = client.Send(payload)
	} else {
		r.logger.Warn("initial snapshot failed", "error", err)
	}
	r.hub.Register(ws.TopicProjects, client)
	go func() {
		defer func() {
			r.hub.Unregister(ws.TopicProjects, client)
			client.Close()
		}()
		client.Drain()
	}()
}

// Snapshot renders the registry for websocket subscribers.
func (r *Router) Snapshot(ctx context.Context) ([]byte, error) {
	records, err := r.projects.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]projectView, len(records))
	for i, rec := range records {
		views[i] = viewOf(rec)
	}
	return json.Marshal(map[string]any{
		"type":      ws.TopicProjects,
		"projects":  views,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	names := make([]string, 0, len(r.health))
	for name := range r.health {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		err := r.health[name](ctx)
		cancel()
		if err != nil {
			status = "degraded"
			components[name] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components[name] = map[string]any{"status": "up"}
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

// writeServiceError maps the service error taxonomy onto status codes.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	var (
		restartErr    *diagnose.ServiceRestartError
		validationErr *ingress.ConfigValidationError
		depErr        *dependency.Error
	)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrExists), errors.Is(err, repository.ErrDomainInUse), errors.Is(err, mail.ErrMailUserExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, validate.ErrInvalid), errors.Is(err, project.ErrUnknownTemplate), errors.Is(err, mail.ErrNoDomain):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrLocked):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &restartErr):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":      err.Error(),
			"diagnosis":  restartErr.Diagnosis,
			"remediated": restartErr.Remediated,
		})
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":  err.Error(),
			"output": validationErr.Output,
		})
	case errors.As(err, &depErr):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": err.Error(),
			"tool":  depErr.Tool,
		})
	default:
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (r *Router) requireWrite(w http.ResponseWriter, req *http.Request) bool {
	if canWrite(req.Context()) {
		return true
	}
	writeError(w, http.StatusForbidden, "token scope does not allow changes")
	return false
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
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
			actor = "operator"
			fields = append(fields, "operator", info.Operator)
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
	sr.status = code
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
	if setter, ok := sr.ResponseWriter.(contextSetter); ok {
		setter.SetContext(ctx)
	}
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
