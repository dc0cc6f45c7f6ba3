package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-storefront-session/internal/model"
	"go-storefront-session/internal/stubapi/middleware"
	"go-storefront-session/internal/stubapi/service"
	"go-storefront-session/pkg/apierror"
)

type CartHandler struct {
	carts   *service.CartService
	catalog *service.Catalog
}

func NewCartHandler(carts *service.CartService, catalog *service.Catalog) *CartHandler {
	return &CartHandler{carts: carts, catalog: catalog}
}

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	writeSuccess(w, http.StatusOK, h.carts.Get(claims.UserID), "")
}

func (h *CartHandler) Replace(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	var payload model.CartSyncRequest
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	data, err := h.carts.Replace(claims.UserID, payload.Items)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, data, "Cart updated")
}

func (h *CartHandler) ListProducts(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, h.catalog.List(), "")
}

func (h *CartHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, product, "")
}
