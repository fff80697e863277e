package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/soyeahso/orderbot/internal/domain"
	"github.com/soyeahso/orderbot/internal/orders"
)

// HealthResponse is returned by health endpoints. The public HTTP endpoint
// only populates Status; the authenticated RPC handler fills in the rest.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Database string                 `json:"database,omitempty"`
	Version  string                 `json:"version,omitempty"`
	Clients  int                    `json:"clients,omitempty"`
	UptimeMs int64                  `json:"uptimeMs,omitempty"`
	Channels []domain.ChannelStatus `json:"channels,omitempty"`
}

// orderView is the admin representation of an order. Amounts are fixed
// two-decimal strings.
type orderView struct {
	OrderNumber   string               `json:"orderNumber"`
	CustomerPhone string               `json:"customerPhone"`
	CustomerName  string               `json:"customerName"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	TotalAmount   string               `json:"totalAmount"`
	Lines         []lineView           `json:"lines,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

type lineView struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	LineTotal string `json:"lineTotal"`
}

func newOrderView(o *domain.Order) orderView {
	v := orderView{
		OrderNumber:   o.OrderNumber,
		CustomerPhone: o.CustomerPhone,
		CustomerName:  o.CustomerName,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		TotalAmount:   o.TotalAmount.StringFixed(2),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for _, l := range o.Lines {
		v.Lines = append(v.Lines, lineView{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
			LineTotal: l.LineTotal.StringFixed(2),
		})
	}
	return v
}

func newOrderViews(list []domain.Order) []orderView {
	out := make([]orderView, 0, len(list))
	for i := range list {
		out = append(out, newOrderView(&list[i]))
	}
	return out
}

type productView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price"`
	Category    string `json:"category,omitempty"`
}

func newProductViews(list []domain.Product) []productView {
	out := make([]productView, 0, len(list))
	for _, p := range list {
		out = append(out, productView{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.UnitPrice.StringFixed(2),
			Category:    p.Category,
		})
	}
	return out
}

// apiError maps a service error to an HTTP status and error code.
func apiError(err error) (int, string) {
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

const healthPingTimeout = 2 * time.Second

// checkDatabase returns "ok", "unreachable", or "" when no database is
// configured.
func (s *Server) checkDatabase(ctx context.Context) string {
	if s.db == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		s.log.Warn().Err(err).Msg("database ping failed")
		return "unreachable"
	}
	return "ok"
}

// handleHealth reports liveness. Details are only available over RPC.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checkDatabase(r.Context()) == "unreachable" {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

// RequestHandler processes an incoming RPC request frame from a client.
type RequestHandler func(rc *RequestContext)

// RequestContext carries everything an RPC handler needs.
type RequestContext struct {
	Ctx    context.Context
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	if err := rc.Client.RespondError(rc.Frame.ID, ErrorShape{Code: code, Message: message}); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send error response")
	}
}

// Params unmarshals the request params into target.
func (rc *RequestContext) Params(target any) error {
	if len(rc.Frame.Params) == 0 {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}
