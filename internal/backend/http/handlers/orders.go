package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/pribylovaa/go-admin-gateway/internal/backend/errors"
	"github.com/pribylovaa/go-admin-gateway/internal/envelope"
)

// Order - демонстрационный защищённый ресурс.
type Order struct {
	ID        int       `json:"id"`
	Customer  string    `json:"customer"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func demoOrders() []Order {
	statuses := []string{"new", "paid", "shipped", "cancelled"}
	base := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)

	out := make([]Order, 0, 42)
	for i := 1; i <= 42; i++ {
		out = append(out, Order{
			ID:        i,
			Customer:  fmt.Sprintf("customer-%02d", i%7+1),
			Amount:    float64(i*137%1000) + 0.99,
			Status:    statuses[i%len(statuses)],
			CreatedAt: base.Add(time.Duration(i) * 6 * time.Hour),
		})
	}

	return out
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	var q envelope.PageQuery

	for key, dst := range map[string]*int{"page_no": &q.PageNo, "page_size": &q.PageSize} {
		v := r.URL.Query().Get(key)
		if v == "" {
			continue
		}

		n, err := strconv.Atoi(v)
		if err != nil {
			apierrors.WriteError(w, r, fmt.Errorf("%w: %s", apierrors.ErrInvalidArgument, key))
			return
		}
		*dst = n
	}

	if err := h.validate.Struct(q); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	apierrors.WriteOK(w, envelope.Paginate(h.orders, q), "")
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return
	}

	for _, o := range h.orders {
		if o.ID == id {
			apierrors.WriteOK(w, o, "")
			return
		}
	}

	apierrors.WriteError(w, r, apierrors.ErrNotFound)
}
