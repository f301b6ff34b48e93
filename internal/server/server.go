package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	cache "github.com/hanpama/graphcache/internal/cache"
	eventbus "github.com/hanpama/graphcache/internal/eventbus"
	events "github.com/hanpama/graphcache/internal/events"
	language "github.com/hanpama/graphcache/internal/language"
	reqid "github.com/hanpama/graphcache/internal/reqid"
)

// Handler is an http.Handler exposing a cache for inspection and devtools:
// writes, reads and diffs against the live cache plus store snapshots. It is
// a debugging surface over the in-memory core, not a transport the core
// depends on.
type Handler struct {
	cache *cache.Cache
	opt   Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}

// New creates an inspector handler over the given cache.
func New(c *cache.Cache, opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{cache: c, opt: op}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, _ = reqid.NewContext(ctx)
	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
	}()

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}
	if r.Method == http.MethodOptions {
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	switch {
	case r.URL.Path == "/store" && r.Method == http.MethodGet:
		h.writeJSON(w, status, h.cache.Store().Extract())
	case r.URL.Path == "/write" && r.Method == http.MethodPost:
		status = h.handleWrite(ctx, w, r)
	case r.URL.Path == "/read" && r.Method == http.MethodPost:
		status = h.handleRead(ctx, w, r)
	case r.URL.Path == "/diff" && r.Method == http.MethodPost:
		status = h.handleDiff(ctx, w, r)
	default:
		status = http.StatusNotFound
		h.writeJSON(w, status, errorBody("not found"))
	}
}

type writeRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Data          map[string]any `json:"data"`
}

type readRequest struct {
	Query           string         `json:"query"`
	OperationName   string         `json:"operationName,omitempty"`
	Variables       map[string]any `json:"variables,omitempty"`
	SkipUncommitted bool           `json:"skipUncommitted,omitempty"`
}

type missingBody struct {
	ID        string `json:"id"`
	Selection string `json:"selection"`
}

func (h *Handler) handleWrite(ctx context.Context, w http.ResponseWriter, r *http.Request) int {
	var req writeRequest
	if status, ok := h.decode(w, r, &req); !ok {
		return status
	}
	doc, err := language.ParseQuery(req.Query)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return http.StatusBadRequest
	}
	result, err := h.cache.WriteQuery(ctx, doc, req.OperationName, req.Variables, req.Data)
	if err != nil {
		return h.cacheError(w, err)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"data":    result.Data,
		"records": h.cache.Store().Len(),
	})
	return http.StatusOK
}

func (h *Handler) handleRead(ctx context.Context, w http.ResponseWriter, r *http.Request) int {
	var req readRequest
	if status, ok := h.decode(w, r, &req); !ok {
		return status
	}
	doc, err := language.ParseQuery(req.Query)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return http.StatusBadRequest
	}
	result, err := h.cache.ReadQuery(ctx, doc, req.OperationName, req.Variables)
	if err != nil {
		return h.cacheError(w, err)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"data":  result.Data,
		"stale": result.Stale,
	})
	return http.StatusOK
}

func (h *Handler) handleDiff(ctx context.Context, w http.ResponseWriter, r *http.Request) int {
	var req readRequest
	if status, ok := h.decode(w, r, &req); !ok {
		return status
	}
	doc, err := language.ParseQuery(req.Query)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return http.StatusBadRequest
	}
	result, err := h.cache.DiffQuery(ctx, doc, req.OperationName, req.Variables)
	if err != nil {
		return h.cacheError(w, err)
	}
	missing := make([]missingBody, len(result.Missing))
	for i, m := range result.Missing {
		missing[i] = missingBody{
			ID:        string(m.ID),
			Selection: language.RenderSelectionSet(m.Selection),
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"result":    result.Result,
		"isMissing": result.IsMissing,
		"missing":   missing,
	})
	return http.StatusOK
}

// decode reads a JSON body subject to the configured size limit.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) (int, bool) {
	reader := io.Reader(r.Body)
	if h.opt.MaxBodyBytes > 0 {
		reader = io.LimitReader(r.Body, h.opt.MaxBodyBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return http.StatusBadRequest, false
	}
	defer r.Body.Close()
	if h.opt.MaxBodyBytes > 0 && int64(len(body)) > h.opt.MaxBodyBytes {
		h.writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("request body too large"))
		return http.StatusRequestEntityTooLarge, false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return http.StatusBadRequest, false
	}
	return http.StatusOK, true
}

// cacheError maps the cache error taxonomy onto HTTP statuses: not-cached
// reads are 404, everything else is the caller's fault.
func (h *Handler) cacheError(w http.ResponseWriter, err error) int {
	status := http.StatusUnprocessableEntity
	var partial *cache.PartialReadError
	if errors.As(err, &partial) {
		status = http.StatusNotFound
	}
	h.writeJSON(w, status, errorBody(err.Error()))
	return status
}

func errorBody(msg string) map[string]any {
	return map[string]any{"error": msg}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if h.opt.Pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	for _, allowed := range opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			return
		}
	}
}
