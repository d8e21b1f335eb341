package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ProxiedFunctions are the /api routes forwarded to the function endpoints.
var ProxiedFunctions = []string{
	"icp-generator",
	"playbook-generator",
	"company-discovery",
	"contact-discovery",
	"email-personalization",
	"company-analyzer",
}

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ProxyHandler relays /api/<function> requests to FUNCTIONS_BASE_URL
// without touching the body.
type ProxyHandler struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewProxyHandler creates a proxy. client may be nil.
func NewProxyHandler(baseURL string, client *http.Client, logger *slog.Logger) *ProxyHandler {
	if client == nil {
		client = &http.Client{
			Timeout:   2 * time.Minute,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &ProxyHandler{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// Forward returns a handler that relays POSTs to the named function.
func (h *ProxyHandler) Forward(function string) http.Handler {
	target := h.baseURL + "/" + function
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, h.logger, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed"})
			return
		}

		out, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		out.ContentLength = r.ContentLength
		copyHeaders(out.Header, r.Header)

		resp, err := h.client.Do(out)
		if err != nil {
			h.logger.Error("function call failed",
				slog.String("function", function),
				slog.String("error", err.Error()),
			)
			writeJSON(w, h.logger, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error", Details: "function unavailable"})
			return
		}
		defer resp.Body.Close()

		copyHeaders(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			h.logger.Warn("relaying function response failed",
				slog.String("function", function),
				slog.String("error", err.Error()),
			)
		}
	})
}

// NotImplemented answers 501 for routes the product has not built yet.
func (h *ProxyHandler) NotImplemented(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusNotImplemented, ErrorResponse{Error: "not implemented"})
}

// NotFound answers unknown /api sub-routes.
func (h *ProxyHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusNotFound, ErrorResponse{Error: "not found"})
}

// copyHeaders replaces dst's values with src's so relayed CORS headers do not
// duplicate the ones set by middleware.
func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		dst.Del(k)
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	for _, k := range hopHeaders {
		dst.Del(k)
	}
}
