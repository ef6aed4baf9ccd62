package handler

import (
	"net/http"

	"storefront/internal/cart"
	"storefront/internal/middleware"
	"storefront/internal/service"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
)

type CartHandler struct {
	cartService service.CartService
	auth        *middleware.Authorizer
}

func NewCartHandler(cartService service.CartService, auth *middleware.Authorizer) *CartHandler {
	return &CartHandler{cartService: cartService, auth: auth}
}

// RegisterRoutes mounts the cart of the authenticated user. Extra middleware
// (rate limiting) runs after authentication.
func (h *CartHandler) RegisterRoutes(router *gin.RouterGroup, mw ...gin.HandlerFunc) {
	group := router.Group("/api/cart")
	group.Use(h.auth.Authenticate())
	group.Use(mw...)
	{
		group.GET("", h.GetCart)
		group.DELETE("", h.Clear)
		group.POST("/items", h.AddItem)
		group.PUT("/items/:id", h.UpdateItem)
		group.DELETE("/items/:id", h.RemoveItem)
		group.POST("/sync", h.Sync)
	}
}

func (h *CartHandler) reply(c *gin.Context, result cart.Cart, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// GetCart returns the caller's cart
// @Summary      Get cart
// @Tags         cart
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=cart.Cart}
// @Router       /api/cart [get]
func (h *CartHandler) GetCart(c *gin.Context) {
	result, err := h.cartService.GetCart(c.Request.Context(), middleware.UserID(c))
	h.reply(c, result, err)
}

// AddItem adds a product line or bumps the matching one
// @Summary      Add cart item
// @Tags         cart
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.AddCartItemRequest  true  "Item"
// @Success      200      {object}  response.Response{data=cart.Cart}
// @Failure      404      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/cart/items [post]
func (h *CartHandler) AddItem(c *gin.Context) {
	var req service.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.cartService.AddItem(c.Request.Context(), middleware.UserID(c), req)
	h.reply(c, result, err)
}

// UpdateItem sets the quantity of a line
// @Summary      Update cart item
// @Tags         cart
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                         true  "Cart item ID"
// @Param        payload  body      service.UpdateCartItemRequest  true  "Quantity"
// @Success      200      {object}  response.Response{data=cart.Cart}
// @Failure      404      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/cart/items/{id} [put]
func (h *CartHandler) UpdateItem(c *gin.Context) {
	var req service.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.cartService.UpdateItem(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Quantity)
	h.reply(c, result, err)
}

// RemoveItem deletes a line
// @Summary      Remove cart item
// @Tags         cart
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Cart item ID"
// @Success      200  {object}  response.Response{data=cart.Cart}
// @Failure      404  {object}  response.Response
// @Router       /api/cart/items/{id} [delete]
func (h *CartHandler) RemoveItem(c *gin.Context) {
	result, err := h.cartService.RemoveItem(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	h.reply(c, result, err)
}

// Clear empties the cart
// @Summary      Clear cart
// @Tags         cart
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=cart.Cart}
// @Router       /api/cart [delete]
func (h *CartHandler) Clear(c *gin.Context) {
	result, err := h.cartService.Clear(c.Request.Context(), middleware.UserID(c))
	h.reply(c, result, err)
}

// Sync merges a guest cart into the caller's cart
// @Summary      Merge guest cart
// @Description  Lines with the same product and variation add up, clamped to stock. Unknown or sold out products are skipped.
// @Tags         cart
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      cart.Cart  true  "Guest cart"
// @Success      200      {object}  response.Response{data=cart.Cart}
// @Router       /api/cart/sync [post]
func (h *CartHandler) Sync(c *gin.Context) {
	var local cart.Cart
	if err := c.ShouldBindJSON(&local); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.cartService.Sync(c.Request.Context(), middleware.UserID(c), local)
	h.reply(c, result, err)
}
