package gateway

import (
	"net/http"

	"github.com/example/bytespark/pkg/models"
	"github.com/example/bytespark/pkg/service"
	"github.com/gin-gonic/gin"
)

type placeOrderRequest struct {
	Shipping      *models.Shipping `json:"shipping"`
	PaymentMethod string           `json:"paymentMethod"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (g *Gateway) placeOrder(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req placeOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := g.orders.PlaceOrder(c.Request.Context(), uid, service.PlaceOrderInput{
		Shipping:      req.Shipping,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (g *Gateway) myOrders(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	orders, err := g.orders.MyOrders(c.Request.Context(), uid)
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (g *Gateway) getOrder(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	order, err := g.orders.GetOrder(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (g *Gateway) adminListOrders(c *gin.Context) {
	orders, err := g.orders.AdminListAll(c.Request.Context())
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (g *Gateway) adminGetOrder(c *gin.Context) {
	order, err := g.orders.AdminGetOne(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (g *Gateway) adminUpdateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := g.orders.AdminSetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		g.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
