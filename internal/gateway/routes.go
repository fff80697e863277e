package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/orderbot/internal/domain"
	"github.com/soyeahso/orderbot/internal/orders"
	"github.com/soyeahso/orderbot/internal/receipt"
	"github.com/soyeahso/orderbot/internal/version"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	if s.webhook != nil {
		mux.Handle("/webhook", s.webhook)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.receiptsDir != "" {
		mux.Handle("GET "+receipt.URLPath, http.StripPrefix(receipt.URLPath, noListing(http.FileServer(http.Dir(s.receiptsDir)))))
	}

	mux.HandleFunc("GET /api/orders", s.requireToken(s.apiListOrders))
	mux.HandleFunc("GET /api/orders/{number}", s.requireToken(s.apiGetOrder))
	mux.HandleFunc("POST /api/orders/{number}/advance", s.requireToken(s.apiAdvanceOrder))
	mux.HandleFunc("POST /api/orders/{number}/confirm", s.requireToken(s.apiConfirmOrder))
	mux.HandleFunc("GET /api/products", s.requireToken(s.apiListProducts))

	mux.HandleFunc("/", handleNotFound)
}

// noListing hides directory indexes.
func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			handleNotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireToken guards the admin API with the gateway bearer token.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authLimiter.allow(r.RemoteAddr) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many failed auth attempts")
			return
		}
		res := Authorize(s.auth, &ConnectAuth{Token: bearerToken(r)})
		if !res.OK {
			s.authLimiter.recordFailure(r.RemoteAddr)
			s.log.Warn().Str("remote", r.RemoteAddr).Str("path", r.URL.Path).Str("reason", res.Reason).Msg("admin API auth failed")
			writeError(w, http.StatusUnauthorized, "unauthorized", res.Reason)
			return
		}
		if s.orders == nil && strings.HasPrefix(r.URL.Path, "/api/orders") {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "order service not configured")
			return
		}
		next(w, r)
	}
}

// parseFilter reads ?status= and ?limit=.
func parseFilter(status, limit string) (orders.Filter, error) {
	f := orders.Filter{Limit: defaultListLimit}
	if status != "" {
		f.Status = domain.OrderStatus(strings.ToLower(status))
		if !f.Status.Valid() {
			return f, fmt.Errorf("unknown status %q", status)
		}
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			return f, fmt.Errorf("limit must be a positive integer, got %q", limit)
		}
		f.Limit = min(n, maxListLimit)
	}
	return f, nil
}

func (s *Server) apiListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := parseFilter(q.Get("status"), q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", err.Error())
		return
	}
	list, err := s.orders.List(r.Context(), f)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": newOrderViews(list), "count": len(list)})
}

func (s *Server) apiGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.orders.Get(r.Context(), r.PathValue("number"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(o))
}

func (s *Server) apiAdvanceOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", "body must be JSON with a status field")
		return
	}
	s.advance(w, r, domain.OrderStatus(strings.ToLower(body.Status)))
}

func (s *Server) apiConfirmOrder(w http.ResponseWriter, r *http.Request) {
	s.advance(w, r, domain.StatusConfirmed)
}

func (s *Server) advance(w http.ResponseWriter, r *http.Request, to domain.OrderStatus) {
	if !to.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_params", fmt.Sprintf("unknown status %q", to))
		return
	}
	o, err := s.orders.Advance(r.Context(), r.PathValue("number"), to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(o))
}

func (s *Server) apiListProducts(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "catalog not configured")
		return
	}
	list, err := s.catalog.ListAvailable(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": newProductViews(list)})
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status, code := apiError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("admin API request failed")
	}
	writeError(w, status, code, err.Error())
}

// registerRPCHandlers sets up all WebSocket RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("channels.status", s.rpcChannelsStatus)
	s.Handle("orders.list", s.rpcOrdersList)
	s.Handle("orders.get", s.rpcOrdersGet)
	s.Handle("orders.advance", s.rpcOrdersAdvance)
	s.Handle("products.list", s.rpcProductsList)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	h := HealthResponse{
		Status:   "ok",
		Database: s.checkDatabase(rc.Ctx),
		Version:  version.Version,
		Clients:  s.clients.Count(),
	}
	if h.Database == "unreachable" {
		h.Status = "degraded"
	}
	if !s.startedAt.IsZero() {
		h.UptimeMs = time.Since(s.startedAt).Milliseconds()
	}
	if s.channels != nil {
		h.Channels = s.channels.Status()
	}
	rc.Respond(h)
}

func (s *Server) rpcChannelsStatus(rc *RequestContext) {
	if s.channels == nil {
		rc.Respond(map[string]any{"channels": []any{}})
		return
	}
	rc.Respond(map[string]any{"channels": s.channels.Status()})
}

func (s *Server) rpcOrdersList(rc *RequestContext) {
	if s.orders == nil {
		rc.RespondError("unavailable", "order service not configured")
		return
	}
	var p ordersListParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	limit := ""
	if p.Limit != 0 {
		limit = strconv.Itoa(p.Limit)
	}
	f, err := parseFilter(p.Status, limit)
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	list, err := s.orders.List(rc.Ctx, f)
	if err != nil {
		s.rpcServiceError(rc, err)
		return
	}
	rc.Respond(map[string]any{"orders": newOrderViews(list), "count": len(list)})
}

func (s *Server) rpcOrdersGet(rc *RequestContext) {
	if s.orders == nil {
		rc.RespondError("unavailable", "order service not configured")
		return
	}
	var p orderParams
	if err := rc.Params(&p); err != nil || p.Number == "" {
		rc.RespondError("invalid_params", "number is required")
		return
	}
	o, err := s.orders.Get(rc.Ctx, p.Number)
	if err != nil {
		s.rpcServiceError(rc, err)
		return
	}
	rc.Respond(newOrderView(o))
}

func (s *Server) rpcOrdersAdvance(rc *RequestContext) {
	if s.orders == nil {
		rc.RespondError("unavailable", "order service not configured")
		return
	}
	var p advanceParams
	if err := rc.Params(&p); err != nil || p.Number == "" {
		rc.RespondError("invalid_params", "number and status are required")
		return
	}
	to := domain.OrderStatus(strings.ToLower(p.Status))
	if !to.Valid() {
		rc.RespondError("invalid_params", fmt.Sprintf("unknown status %q", p.Status))
		return
	}
	o, err := s.orders.Advance(rc.Ctx, p.Number, to)
	if err != nil {
		s.rpcServiceError(rc, err)
		return
	}
	rc.Respond(newOrderView(o))
}

func (s *Server) rpcProductsList(rc *RequestContext) {
	if s.catalog == nil {
		rc.RespondError("unavailable", "catalog not configured")
		return
	}
	list, err := s.catalog.ListAvailable(rc.Ctx)
	if err != nil {
		s.rpcServiceError(rc, err)
		return
	}
	rc.Respond(map[string]any{"products": newProductViews(list)})
}

func (s *Server) rpcServiceError(rc *RequestContext, err error) {
	_, code := apiError(err)
	if code == "internal" {
		s.log.Error().Err(err).Str("method", rc.Frame.Method).Msg("rpc request failed")
	}
	rc.RespondError(code, err.Error())
}
