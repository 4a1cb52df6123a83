package gateway

import (
	"context"
	"net/http"

	"github.com/example/bytespark/pkg/models"
	"github.com/gin-gonic/gin"
)

type cartItemRequest struct {
	ProductID string `json:"productId"`
}

func (g *Gateway) getCart(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	items, err := g.carts.Get(c.Request.Context(), uid)
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (g *Gateway) addToCart(c *gin.Context) {
	g.cartItemMutation(c, g.carts.Add)
}

func (g *Gateway) increaseCartItem(c *gin.Context) {
	g.cartItemMutation(c, g.carts.Increase)
}

func (g *Gateway) decreaseCartItem(c *gin.Context) {
	g.cartItemMutation(c, g.carts.Decrease)
}

func (g *Gateway) removeCartItem(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	items, err := g.carts.Remove(c.Request.Context(), uid, c.Param("productId"))
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (g *Gateway) clearCart(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	items, err := g.carts.Clear(c.Request.Context(), uid)
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// cartItemMutation handles the endpoints taking {"productId": ...} in the body.
func (g *Gateway) cartItemMutation(
	c *gin.Context,
	mutate func(ctx context.Context, userID, productID string) ([]models.ResolvedItem, error),
) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req cartItemRequest
	if !bindJSON(c, &req) {
		return
	}

	items, err := mutate(c.Request.Context(), uid, req.ProductID)
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}
