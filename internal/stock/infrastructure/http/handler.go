package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/stock-reservation/internal/stock/application"
	"github.com/dmehra2102/stock-reservation/internal/stock/domain"
)

const (
	invalidParams        = "INVALID_PARAMS"
	stockNotFoundMessage = "Stock not found for product sku=[%s]."
)

type Handler struct {
	log     *slog.Logger
	service *application.StockService
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.StockService) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("stock-http"),
	}
}

type createStockReq struct {
	ProductSKU string `json:"productSku"`
	Quantity   int    `json:"quantity"`
}

type stockResp struct {
	ID         int64  `json:"id"`
	ProductSKU string `json:"productSku"`
	Quantity   int    `json:"quantity"`
}

type errorResp struct {
	Message string   `json:"message"`
	Error   string   `json:"error"`
	Errors  []string `json:"errors"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/api/stocks", func(r chi.Router) {
		r.Post("/", h.createStock)
		r.Get("/{productSku}", h.getStock)
		r.Put("/{productSku}", h.updateStock)
		r.Delete("/{productSku}", h.deleteStock)
	})
	return r
}

func (h *Handler) createStock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateStock")
	defer span.End()

	var req createStockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Message: invalidParams, Error: invalidParams, Errors: []string{"invalid body"}})
		return
	}

	stock, err := h.service.Create(ctx, req.ProductSKU, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResp(stock))
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetStock")
	defer span.End()

	sku := chi.URLParam(r, "productSku")
	stock, err := h.service.Get(ctx, sku)
	var berr *application.BusinessError
	if errors.As(err, &berr) && berr.Code == application.CodeNotFound {
		writeJSON(w, http.StatusNotFound, errorResp{Message: fmt.Sprintf(stockNotFoundMessage, sku), Error: berr.Code})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResp(stock))
}

func (h *Handler) updateStock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateStock")
	defer span.End()

	raw := r.URL.Query().Get("quantity")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, errorResp{Message: invalidParams, Error: invalidParams, Errors: []string{"quantity: required request parameter is missing"}})
		return
	}
	quantity, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Message: invalidParams, Error: invalidParams, Errors: []string{"quantity: must be an integer"}})
		return
	}

	stock, err := h.service.Update(ctx, chi.URLParam(r, "productSku"), quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResp(stock))
}

func (h *Handler) deleteStock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DeleteStock")
	defer span.End()

	if err := h.service.Delete(ctx, chi.URLParam(r, "productSku")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		berr *application.BusinessError
		verr *domain.ValidationError
		gerr *application.GatewayError
	)
	switch {
	case errors.As(err, &berr):
		status := http.StatusBadRequest
		if berr.Code == application.CodeNotFound {
			status = http.StatusNotFound
		}
		h.log.WarnContext(r.Context(), "request rejected", "path", r.URL.Path, "code", berr.Code, "err", err)
		writeJSON(w, status, errorResp{Message: berr.Message, Error: berr.Code})
	case errors.As(err, &verr):
		h.log.WarnContext(r.Context(), "invalid stock", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusBadRequest, errorResp{Message: verr.Error(), Error: verr.Code(), Errors: verr.Violations})
	case errors.As(err, &gerr):
		h.log.ErrorContext(r.Context(), "gateway failure", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResp{Message: gerr.Error(), Error: application.CodeGateway})
	default:
		h.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func toResp(s domain.Stock) stockResp {
	return stockResp{ID: s.ID(), ProductSKU: s.ProductSKU(), Quantity: s.Quantity()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
