package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// --- ANSI color codes ---
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

type HandlerFunc func(http.ResponseWriter, *http.Request)

type route struct {
	method   string
	path     string
	segments []string
	handler  HandlerFunc
}

type mount struct {
	prefix  string
	handler http.Handler
}

// Router matches routes in registration order. A "*" path segment matches
// exactly one request segment; the matched values are available via Params.
type Router struct {
	routes []route
	mounts []mount
	log    logrus.FieldLogger
	color  bool
}

// New creates a router logging requests through log
func New(log logrus.FieldLogger) *Router {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Router{log: log, color: true}
}

// SetColor toggles ANSI colors in request log lines
func (r *Router) SetColor(on bool) { r.color = on }

type paramsKey struct{}

// Params returns the wildcard segments matched for the request, in order
func Params(req *http.Request) []string {
	p, _ := req.Context().Value(paramsKey{}).([]string)
	return p
}

// Param returns the i-th wildcard segment or ""
func Param(req *http.Request, i int) string {
	p := Params(req)
	if i < 0 || i >= len(p) {
		return ""
	}
	return p[i]
}

// ServeHTTP dispatches and logs one request
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

	r.dispatch(lrw, req)

	duration := time.Since(start)
	entry := r.log.WithFields(logrus.Fields{
		"method":   req.Method,
		"path":     req.URL.Path,
		"status":   lrw.statusCode,
		"duration": duration.String(),
	})
	if !r.color {
		entry.Info("request")
		return
	}
	entry.Infof("%s%s%s %s %s%d%s %s(%v)%s",
		methodColor(req.Method), req.Method, colorReset,
		req.URL.Path,
		statusColor(lrw.statusCode), lrw.statusCode, colorReset,
		colorBlue, duration, colorReset,
	)
}

func (r *Router) dispatch(w http.ResponseWriter, req *http.Request) {
	segments := splitPath(req.URL.Path)
	pathExists := false

	for _, rt := range r.routes {
		params, ok := matchRoute(segments, rt.segments)
		if !ok {
			continue
		}
		if rt.method != req.Method {
			pathExists = true
			continue
		}
		if len(params) > 0 {
			req = req.WithContext(context.WithValue(req.Context(), paramsKey{}, params))
		}
		rt.handler(w, req)
		return
	}

	if pathExists {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	for _, m := range r.mounts {
		if strings.HasPrefix(req.URL.Path, m.prefix) {
			m.handler.ServeHTTP(w, req)
			return
		}
	}
	http.Error(w, "Not Found", http.StatusNotFound)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// matchRoute checks a request path against a route pattern and collects the
// wildcard segments
func matchRoute(requestSegments, routeSegments []string) ([]string, bool) {
	if len(requestSegments) != len(routeSegments) {
		return nil, false
	}
	var params []string
	for i, routeSegment := range routeSegments {
		if routeSegment == "*" {
			if requestSegments[i] == "" {
				return nil, false
			}
			params = append(params, requestSegments[i])
			continue
		}
		if requestSegments[i] != routeSegment {
			return nil, false
		}
	}
	return params, true
}

// --- Register paths ---
func (r *Router) register(method, path string, handler HandlerFunc) {
	r.routes = append(r.routes, route{
		method:   method,
		path:     path,
		segments: splitPath(path),
		handler:  handler,
	})
}

func (r *Router) GET(path string, handler HandlerFunc)   { r.register(http.MethodGet, path, handler) }
func (r *Router) POST(path string, handler HandlerFunc)  { r.register(http.MethodPost, path, handler) }
func (r *Router) PUT(path string, handler HandlerFunc)   { r.register(http.MethodPut, path, handler) }
func (r *Router) PATCH(path string, handler HandlerFunc) { r.register(http.MethodPatch, path, handler) }
func (r *Router) DELETE(path string, handler HandlerFunc) {
	r.register(http.MethodDelete, path, handler)
}

// Mount serves every path under prefix with h, after no route matched
func (r *Router) Mount(prefix string, h http.Handler) {
	r.mounts = append(r.mounts, mount{prefix: prefix, handler: h})
}

// Routes lists registered routes as METHOD:PATH, for tests and startup logs
func (r *Router) Routes() []string {
	out := make([]string, len(r.routes))
	for i, rt := range r.routes {
		out[i] = rt.method + ":" + rt.path
	}
	return out
}

// --- Start server ---

// Server wraps the router in an http.Server for addr
func (r *Router) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// --- Logging response writer to capture status codes ---
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// --- Color helpers ---
func statusColor(code int) string {
	switch {
	case code >= 200 && code < 300:
		return colorGreen
	case code >= 300 && code < 400:
		return colorCyan
	case code >= 400 && code < 500:
		return colorYellow
	default:
		return colorRed
	}
}

func methodColor(method string) string {
	switch method {
	case http.MethodGet:
		return colorGreen
	case http.MethodPost:
		return colorBlue
	case http.MethodPut:
		return colorYellow
	case http.MethodPatch:
		return colorYellow
	case http.MethodDelete:
		return colorRed
	default:
		return colorCyan
	}
}
