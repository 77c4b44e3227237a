package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tovarapvp/monarca-next-js-sub000/internal/inventory"
	"github.com/tovarapvp/monarca-next-js-sub000/internal/orders"
	"github.com/tovarapvp/monarca-next-js-sub000/internal/settlement"
)

// InventoryHandler exposes the ledger and the settlement coordinator to the
// storefront backend and the admin panel.
type InventoryHandler struct {
	Ledger      *inventory.Ledger
	Coordinator *settlement.Coordinator
}

type stockChangeReq struct {
	Quantity        int                    `json:"quantity"`
	TransactionType orders.TransactionType `json:"transaction_type,omitempty"`
	ReferenceID     string                 `json:"reference_id,omitempty"`
	Notes           string                 `json:"notes,omitempty"`
}

type itemsReq struct {
	OrderID string           `json:"order_id,omitempty"`
	Items   []inventory.Item `json:"items"`
}

type bulkReq struct {
	Updates []inventory.StockUpdate `json:"updates"`
}

type orderInventoryReq struct {
	PaymentMethod string           `json:"payment_method"`
	Items         []inventory.Item `json:"items"`
}

type response struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
	Kind    string   `json:"kind,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Post("/variants/{id}/reduce", h.reduceStock)
	r.Post("/variants/{id}/increase", h.increaseStock)
	r.Get("/variants/{id}/transactions", h.listTransactions)

	r.Post("/inventory/availability", h.checkAvailability)
	r.Post("/inventory/sales", h.processSale)
	r.Post("/inventory/sales/reverse", h.reverseSale)
	r.Put("/inventory/stock", h.bulkUpdate)

	r.Post("/orders/{id}/inventory", h.processOrderInventory)
	r.Post("/orders/{id}/complete", h.completeOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(kind inventory.Kind) int {
	switch kind {
	case inventory.KindInvalidQuantity, inventory.KindInvalidMethod, inventory.KindInvalidArgument:
		return http.StatusBadRequest
	case inventory.KindNotFound, inventory.KindOrderNotFound:
		return http.StatusNotFound
	case inventory.KindInsufficientStock, inventory.KindInvalidTransition, inventory.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	kind := inventory.KindOf(err)
	msg := err.Error()
	var e *inventory.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	writeJSON(w, statusFor(kind), response{Success: false, Error: msg, Kind: string(kind)})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Error: "invalid json", Kind: string(inventory.KindInvalidArgument)})
		return false
	}
	return true
}

func (h *InventoryHandler) reduceStock(w http.ResponseWriter, r *http.Request) {
	h.changeStock(w, r, orders.TxSale, h.Ledger.ReduceStock)
}

func (h *InventoryHandler) increaseStock(w http.ResponseWriter, r *http.Request) {
	h.changeStock(w, r, orders.TxRestock, h.Ledger.IncreaseStock)
}

type stockOp func(ctx context.Context, variantID string, qty int, typ orders.TransactionType, referenceID, notes string) error

func (h *InventoryHandler) changeStock(w http.ResponseWriter, r *http.Request, def orders.TransactionType, op stockOp) {
	var req stockChangeReq
	if !decode(w, r, &req) {
		return
	}
	if req.TransactionType == "" {
		req.TransactionType = def
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := op(ctx, chi.URLParam(r, "id"), req.Quantity, req.TransactionType, req.ReferenceID, req.Notes); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true})
}

func (h *InventoryHandler) listTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{Error: "limit must be a number", Kind: string(inventory.KindInvalidArgument)})
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	txns, err := h.Ledger.ListTransactions(ctx, chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if txns == nil {
		txns = []orders.InventoryTransaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

func (h *InventoryHandler) checkAvailability(w http.ResponseWriter, r *http.Request) {
	var req itemsReq
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	avail, err := h.Ledger.CheckStockAvailability(ctx, req.Items)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

func (h *InventoryHandler) processSale(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, h.Ledger.ProcessSaleInventory)
}

func (h *InventoryHandler) reverseSale(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, h.Ledger.ReverseSaleInventory)
}

type batchOp func(ctx context.Context, items []inventory.Item, orderID string) (inventory.BatchResult, error)

func (h *InventoryHandler) batch(w http.ResponseWriter, r *http.Request, op batchOp) {
	var req itemsReq
	if !decode(w, r, &req) {
		return
	}
	if req.OrderID == "" {
		writeJSON(w, http.StatusBadRequest, response{Error: "order_id is required", Kind: string(inventory.KindInvalidArgument)})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := op(ctx, req.Items, req.OrderID)
	writeBatch(w, res, err)
}

func (h *InventoryHandler) bulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req bulkReq
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Ledger.BulkUpdateStock(ctx, req.Updates)
	writeBatch(w, res, err)
}

func writeBatch(w http.ResponseWriter, res inventory.BatchResult, err error) {
	if err != nil {
		writeJSON(w, statusFor(inventory.KindOf(err)), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *InventoryHandler) processOrderInventory(w http.ResponseWriter, r *http.Request) {
	var req orderInventoryReq
	if !decode(w, r, &req) {
		return
	}
	method, err := settlement.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out, err := h.Coordinator.ProcessOrderInventory(ctx, chi.URLParam(r, "id"), req.Items, method)
	writeOutcome(w, out, err)
}

func (h *InventoryHandler) completeOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out, err := h.Coordinator.CompleteManualOrder(ctx, chi.URLParam(r, "id"))
	writeOutcome(w, out, err)
}

func (h *InventoryHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out, err := h.Coordinator.CancelOrder(ctx, chi.URLParam(r, "id"))
	writeOutcome(w, out, err)
}

func writeOutcome(w http.ResponseWriter, out settlement.Outcome, err error) {
	if err != nil {
		writeJSON(w, statusFor(inventory.KindOf(err)), out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
