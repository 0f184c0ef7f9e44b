package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/safar/go-order-store/internal/models"
	"github.com/safar/go-order-store/internal/store"
)

type handler struct {
	store          store.Provider
	allocationType int
}

func newRouter(p store.Provider, allocationType int) *mux.Router {
	h := &handler{store: p, allocationType: allocationType}

	router := mux.NewRouter()
	router.HandleFunc("/orders", h.createOrder).Methods(http.MethodPost)
	router.HandleFunc("/orders/{id}", h.getOrder).Methods(http.MethodGet)
	router.HandleFunc("/orders/{id}", h.deleteOrder).Methods(http.MethodDelete)
	router.HandleFunc("/order-lines/{id}/quantity", h.bumpQuantity).Methods(http.MethodPatch)
	router.HandleFunc("/customers/{id}/orders", h.customerHistory).Methods(http.MethodGet)
	router.HandleFunc("/products", h.searchProducts).Methods(http.MethodGet)
	router.HandleFunc("/reports/daily-sales", h.dailySales).Methods(http.MethodGet)
	router.HandleFunc("/reports/top-products", h.topProducts).Methods(http.MethodGet)
	router.HandleFunc("/reports/reorder", h.reorderSuggestions).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}).Methods(http.MethodGet)

	return router
}

func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AllocationType == 0 {
		req.AllocationType = h.allocationType
	}

	id, err := h.store.CreateOrderWithAllocation(r.Context(), req)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Invalid order ID")
	if !ok {
		return
	}

	order, err := h.store.GetOrderWithLines(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if order == nil {
		respondError(w, http.StatusNotFound, "Order not found")
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (h *handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Invalid order ID")
	if !ok {
		return
	}

	deleted, err := h.store.DeleteOrder(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "Order not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) bumpQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Invalid line ID")
	if !ok {
		return
	}

	var req struct {
		Delta float64 `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	affected, err := h.store.BumpOrderLineQuantity(r.Context(), id, req.Delta)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"updated": affected})
}

func (h *handler) customerHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Invalid customer ID")
	if !ok {
		return
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	history, err := h.store.GetCustomerOrderHistory(r.Context(), id, pageSize)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, history)
}

func (h *handler) searchProducts(w http.ResponseWriter, r *http.Request) {
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	products, err := h.store.SearchProducts(r.Context(), r.URL.Query().Get("q"), pageSize)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, products)
}

func (h *handler) dailySales(w http.ResponseWriter, r *http.Request) {
	from, to, ok := dateRange(w, r)
	if !ok {
		return
	}

	sales, err := h.store.GetDailySales(r.Context(), from, to)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, sales)
}

func (h *handler) topProducts(w http.ResponseWriter, r *http.Request) {
	from, to, ok := dateRange(w, r)
	if !ok {
		return
	}
	topN, _ := strconv.Atoi(r.URL.Query().Get("top"))

	top, err := h.store.GetTopProducts(r.Context(), from, to, topN)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, top)
}

func (h *handler) reorderSuggestions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.GetReorderSuggestions(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rows)
}

func pathID(w http.ResponseWriter, r *http.Request, message string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, message)
		return 0, false
	}
	return id, true
}

// dateRange reads the from and to query parameters as RFC 3339 timestamps or
// plain dates, both taken as UTC.
func dateRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	from, err := parseTime(r.URL.Query().Get("from"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid from date")
		return time.Time{}, time.Time{}, false
	}
	to, err := parseTime(r.URL.Query().Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid to date")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func parseTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidLineItem):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrProductNotFound):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("Store error: %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
