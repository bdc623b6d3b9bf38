package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"storefront-gateway/internal/api"
	"storefront-gateway/internal/cache"
	"storefront-gateway/internal/guest"
	"storefront-gateway/internal/models"
	"storefront-gateway/internal/session"
	"storefront-gateway/pkg/utils"
)

// CartHandler serves the cart the UI sees: the local guest cart
// before login, the account's authoritative cart after.
type CartHandler struct {
	Guest   *guest.Store
	Session *session.Store
	API     *api.Client
}

func NewCartHandler(guestStore *guest.Store, sessionStore *session.Store, apiClient *api.Client) *CartHandler {
	return &CartHandler{
		Guest:   guestStore,
		Session: sessionStore,
		API:     apiClient,
	}
}

// token reads the bearer fresh on every request so a refresh mid-use
// is picked up.
func (h *CartHandler) token(ctx context.Context) string {
	token, err := h.Session.Token(ctx)
	if err != nil {
		log.Printf("[Cart] failed to read token: %v", err)
		return ""
	}
	return token
}

func (h *CartHandler) guestView() (*models.Cart, error) {
	items, err := h.Guest.Cart()
	if err != nil {
		return nil, err
	}
	cart := &models.Cart{Items: items, TotalItems: models.CountItems(items)}
	for _, it := range items {
		cart.TotalPrice += float64(it.Quantity) * it.UnitPrice
	}
	return cart, nil
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	token := h.token(r.Context())
	if token == "" {
		cart, err := h.guestView()
		if err != nil {
			utils.Error(w, http.StatusInternalServerError, "Failed to read cart")
			return
		}
		utils.JSON(w, http.StatusOK, cart)
		return
	}

	if cart, ok := cache.GetCachedCart(r.Context()); ok {
		utils.JSON(w, http.StatusOK, cart)
		return
	}

	cart, err := h.API.GetCart(r.Context(), token)
	if err != nil {
		log.Printf("[Cart] fetch failed: %v", err)
		utils.Error(w, http.StatusBadGateway, "Cart is unavailable")
		return
	}
	cache.SetCachedCart(r.Context(), cart)
	utils.JSON(w, http.StatusOK, cart)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req models.CartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	item := models.CartItem{ProductID: req.ProductID, Quantity: req.Quantity, UnitPrice: req.UnitPrice}

	token := h.token(r.Context())
	if token == "" {
		if err := h.Guest.AddItem(item); err != nil {
			utils.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		cart, _ := h.guestView()
		utils.JSON(w, http.StatusOK, cart)
		return
	}

	cart, err := h.API.AddCartItem(r.Context(), token, item)
	if err != nil {
		log.Printf("[Cart] add failed: %v", err)
		utils.Error(w, http.StatusBadGateway, "Failed to add item")
		return
	}
	cache.SetCachedCart(r.Context(), cart)
	utils.JSON(w, http.StatusOK, cart)
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	productID := mux.Vars(r)["productId"]

	var req models.QuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token := h.token(r.Context())
	if token == "" {
		if err := h.Guest.UpdateQuantity(productID, req.Quantity); err != nil {
			utils.Error(w, http.StatusNotFound, err.Error())
			return
		}
		cart, _ := h.guestView()
		utils.JSON(w, http.StatusOK, cart)
		return
	}

	cart, err := h.API.UpdateCartItem(r.Context(), token, productID, req.Quantity)
	if err != nil {
		log.Printf("[Cart] update failed: %v", err)
		utils.Error(w, http.StatusBadGateway, "Failed to update item")
		return
	}
	cache.SetCachedCart(r.Context(), cart)
	utils.JSON(w, http.StatusOK, cart)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := mux.Vars(r)["productId"]

	token := h.token(r.Context())
	if token == "" {
		if err := h.Guest.RemoveItem(productID); err != nil {
			utils.Error(w, http.StatusInternalServerError, "Failed to remove item")
			return
		}
		cart, _ := h.guestView()
		utils.JSON(w, http.StatusOK, cart)
		return
	}

	cart, err := h.API.RemoveCartItem(r.Context(), token, productID)
	if err != nil {
		log.Printf("[Cart] remove failed: %v", err)
		utils.Error(w, http.StatusBadGateway, "Failed to remove item")
		return
	}
	cache.SetCachedCart(r.Context(), cart)
	utils.JSON(w, http.StatusOK, cart)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	token := h.token(r.Context())
	if token == "" {
		if err := h.Guest.Clear(); err != nil {
			utils.Error(w, http.StatusInternalServerError, "Failed to clear cart")
			return
		}
		utils.JSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}

	if err := h.API.ClearCart(r.Context(), token); err != nil {
		log.Printf("[Cart] clear failed: %v", err)
		utils.Error(w, http.StatusBadGateway, "Failed to clear cart")
		return
	}
	cache.InvalidateCart(r.Context())
	utils.JSON(w, http.StatusOK, map[string]bool{"success": true})
}
