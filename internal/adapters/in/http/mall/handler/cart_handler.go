// internal/adapters/in/http/mall/handler/cart_handler.go
package mallHandler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"storefront/internal/adapters/in/http/middleware"
	usecase "storefront/internal/application/usecase"
	cartdom "storefront/internal/domain/cart"
)

// CartHandler serves the mall cart endpoints.
//
//	GET    /mall/cart            current actor's cart (empty if none)
//	DELETE /mall/cart            clear
//	POST   /mall/cart/items      add {productId, quantity}
//	PUT    /mall/cart/items      set {productId, quantity}; quantity <= 0 removes
//	DELETE /mall/cart/items      remove ?productId=
//	POST   /mall/cart/merge      fold a guest cart into the account cart (auth;
//	                             sessionId must equal X-Guest-Session-Id)
//
// The actor is the authenticated user when UserAuthMiddleware stored a uid,
// else the guest session from GuestSession.
type CartHandler struct {
	uc  *usecase.CartUsecase
	log *zap.Logger
}

func NewCartHandler(uc *usecase.CartUsecase, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartHandler{uc: uc, log: log.Named("mall_cart_handler")}
}

// ------------------------------------------------------------
// DTOs
// ------------------------------------------------------------

type cartItemDTO struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type cartResponse struct {
	CartID     string        `json:"cartId"`
	Items      []cartItemDTO `json:"items"`
	TotalItems int           `json:"totalItems"`
	UpdatedAt  *time.Time    `json:"updatedAt"`
	ExpiresAt  *time.Time    `json:"expiresAt"`
}

type itemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type mergeRequest struct {
	GuestCartItems []cartItemDTO `json:"guestCartItems"`
	SessionID      string        `json:"sessionId"`
}

func toCartResponse(c *cartdom.Cart, persisted bool) cartResponse {
	out := cartResponse{Items: []cartItemDTO{}}
	if c == nil {
		return out
	}
	out.CartID = c.ID
	for _, it := range c.Items {
		out.Items = append(out.Items, cartItemDTO{ProductID: it.ProductID, Quantity: it.Qty})
	}
	out.TotalItems = c.TotalItems()
	if persisted {
		u, e := c.UpdatedAt.UTC(), c.ExpiresAt.UTC()
		out.UpdatedAt, out.ExpiresAt = &u, &e
	}
	return out
}

// ------------------------------------------------------------
// routing
// ------------------------------------------------------------

func (h *CartHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.uc == nil {
		writeErr(w, http.StatusInternalServerError, "cart handler is not configured")
		return
	}

	path := strings.TrimRight(r.URL.Path, "/")

	switch path {
	case "/mall/cart":
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r)
		case http.MethodDelete:
			h.handleClear(w, r)
		default:
			methodNotAllowed(w)
		}
	case "/mall/cart/items":
		switch r.Method {
		case http.MethodPost:
			h.handleAddItem(w, r)
		case http.MethodPut:
			h.handleSetItemQty(w, r)
		case http.MethodDelete:
			h.handleRemoveItem(w, r)
		default:
			methodNotAllowed(w)
		}
	case "/mall/cart/merge":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.handleMerge(w, r)
	default:
		writeErr(w, http.StatusNotFound, "not found")
	}
}

// ownerKey resolves the acting cart. ok is false when the request carries
// neither a uid nor a guest session.
func ownerKey(r *http.Request) (string, bool) {
	if uid, ok := middleware.CurrentUserUID(r); ok {
		return cartdom.UserKey(uid), true
	}
	if sid, ok := middleware.CurrentGuestSessionID(r); ok {
		return cartdom.GuestKey(sid), true
	}
	return "", false
}

// ------------------------------------------------------------
// handlers
// ------------------------------------------------------------

func (h *CartHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	key, ok := ownerKey(r)
	if !ok {
		// anonymous without a guest session yet: nothing stored
		writeJSON(w, http.StatusOK, toCartResponse(nil, false))
		return
	}

	c, err := h.uc.Get(r.Context(), key)
	if errors.Is(err, usecase.ErrCartNotFound) {
		writeJSON(w, http.StatusOK, cartResponse{CartID: key, Items: []cartItemDTO{}})
		return
	}
	if err != nil {
		h.writeUsecaseErr(w, "get", key, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c, true))
}

func (h *CartHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	key, ok := ownerKey(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "bearer token or guest session required")
		return
	}
	if err := h.uc.Clear(r.Context(), key); err != nil {
		h.writeUsecaseErr(w, "clear", key, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{CartID: key, Items: []cartItemDTO{}})
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	key, req, ok := h.readItemRequest(w, r)
	if !ok {
		return
	}
	c, err := h.uc.AddItem(r.Context(), key, req.ProductID, req.Quantity)
	if err != nil {
		h.writeUsecaseErr(w, "add", key, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c, true))
}

func (h *CartHandler) handleSetItemQty(w http.ResponseWriter, r *http.Request) {
	key, req, ok := h.readItemRequest(w, r)
	if !ok {
		return
	}
	c, err := h.uc.SetItemQty(r.Context(), key, req.ProductID, req.Quantity)
	if err != nil {
		h.writeUsecaseErr(w, "set", key, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c, true))
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	key, ok := ownerKey(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "bearer token or guest session required")
		return
	}
	pid := strings.TrimSpace(r.URL.Query().Get("productId"))
	if pid == "" {
		writeErr(w, http.StatusBadRequest, "productId is required")
		return
	}
	c, err := h.uc.RemoveItem(r.Context(), key, pid)
	if err != nil {
		h.writeUsecaseErr(w, "remove", key, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c, true))
}

func (h *CartHandler) handleMerge(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.CurrentUserUID(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "merge requires an authenticated user")
		return
	}

	var req mergeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	// a caller may only fold the guest session it is presenting
	sid := strings.TrimSpace(req.SessionID)
	if sid != "" {
		if !cartdom.ValidGuestSessionID(sid) {
			writeErr(w, http.StatusBadRequest, "invalid sessionId")
			return
		}
		if cur, ok := middleware.CurrentGuestSessionID(r); !ok || cur != sid {
			h.log.Warn("merge rejected: sessionId does not match guest session header",
				zap.String("uid", uid),
				zap.String("sessionId", sid),
			)
			writeErr(w, http.StatusForbidden, "sessionId must match "+middleware.GuestSessionHeader)
			return
		}
	}

	items := make([]cartdom.CartItem, 0, len(req.GuestCartItems))
	for _, it := range req.GuestCartItems {
		items = append(items, cartdom.CartItem{ProductID: it.ProductID, Qty: it.Quantity})
	}

	c, err := h.uc.MergeGuestCart(r.Context(), uid, sid, items)
	if err != nil {
		h.writeUsecaseErr(w, "merge", cartdom.UserKey(uid), err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c, true))
}

func (h *CartHandler) readItemRequest(w http.ResponseWriter, r *http.Request) (string, itemRequest, bool) {
	key, ok := ownerKey(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "bearer token or guest session required")
		return "", itemRequest{}, false
	}
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return "", itemRequest{}, false
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		writeErr(w, http.StatusBadRequest, "productId is required")
		return "", itemRequest{}, false
	}
	return key, req, true
}

func (h *CartHandler) writeUsecaseErr(w http.ResponseWriter, op, key string, err error) {
	switch {
	case errors.Is(err, usecase.ErrCartMergeConflict):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, usecase.ErrCartInvalidArgument), errors.Is(err, cartdom.ErrInvalidCart):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, usecase.ErrCartNotFound):
		writeErr(w, http.StatusNotFound, err.Error())
	default:
		h.log.Error("cart operation failed", zap.String("op", op), zap.String("cartId", key), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}
