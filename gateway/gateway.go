package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/example/bytespark/pkg/auth"
	"github.com/example/bytespark/pkg/config"
	"github.com/example/bytespark/pkg/models"
	"github.com/example/bytespark/pkg/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthAPI interface {
	Signup(ctx context.Context, in service.SignupInput) (*models.User, error)
	Login(ctx context.Context, number, password string) (*service.LoginResult, error)
}

type CartAPI interface {
	Get(ctx context.Context, userID string) ([]models.ResolvedItem, error)
	Add(ctx context.Context, userID, productID string) ([]models.ResolvedItem, error)
	Increase(ctx context.Context, userID, productID string) ([]models.ResolvedItem, error)
	Decrease(ctx context.Context, userID, productID string) ([]models.ResolvedItem, error)
	Remove(ctx context.Context, userID, productID string) ([]models.ResolvedItem, error)
	Clear(ctx context.Context, userID string) ([]models.ResolvedItem, error)
}

type OrderAPI interface {
	PlaceOrder(ctx context.Context, userID string, in service.PlaceOrderInput) (*models.Order, error)
	MyOrders(ctx context.Context, userID string) ([]*models.Order, error)
	GetOrder(ctx context.Context, userID, orderID string) (*models.Order, error)
	AdminListAll(ctx context.Context) ([]*models.AdminOrder, error)
	AdminGetOne(ctx context.Context, orderID string) (*models.AdminOrder, error)
	AdminSetStatus(ctx context.Context, orderID, status string) (*models.AdminOrder, error)
}

// HealthReporter returns the latest dependency check, nil meaning healthy.
type HealthReporter interface {
	Last() map[string]error
}

type Deps struct {
	Tokens *auth.TokenService
	Auth   AuthAPI
	Carts  CartAPI
	Orders OrderAPI
	Health HealthReporter
}

type Gateway struct {
	config *config.Config
	logger *zap.Logger
	router *gin.Engine
	server *http.Server

	tokens *auth.TokenService
	auth   AuthAPI
	carts  CartAPI
	orders OrderAPI
	health HealthReporter
}

func NewGateway(cfg *config.Config, logger *zap.Logger, deps Deps) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))
	router.Use(cors.New(corsConfig(cfg.CORS)))

	return &Gateway{
		config: cfg,
		logger: logger,
		router: router,
		tokens: deps.Tokens,
		auth:   deps.Auth,
		carts:  deps.Carts,
		orders: deps.Orders,
		health: deps.Health,
	}
}

func (g *Gateway) SetupRoutes() {
	g.router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Bytespark Backend Running")
	})
	g.router.GET("/health", g.healthCheck)

	authenticated := authenticate(g.tokens)

	authRoutes := g.router.Group("/auth")
	authRoutes.Use(rateLimit(g.config.RateLimit))
	{
		authRoutes.POST("/signup", g.signup)
		authRoutes.POST("/login", g.login)
		authRoutes.GET("/admin/verify", authenticated, requireAdmin(), g.verifyAdmin)
	}

	cart := g.router.Group("/cart", authenticated, requireUser())
	{
		cart.GET("", g.getCart)
		cart.POST("/add", g.addToCart)
		cart.PUT("/increase", g.increaseCartItem)
		cart.PUT("/decrease", g.decreaseCartItem)
		cart.DELETE("/remove/:productId", g.removeCartItem)
		cart.DELETE("/clear", g.clearCart)
	}

	orders := g.router.Group("/orders", authenticated)
	{
		admin := orders.Group("/admin", requireAdmin())
		{
			admin.GET("/all", g.adminListOrders)
			admin.GET("/:id", g.adminGetOrder)
			admin.PATCH("/:id/status", g.adminUpdateOrderStatus)
		}

		orders.POST("", requireUser(), g.placeOrder)
		orders.GET("/my-orders", requireUser(), g.myOrders)
		orders.GET("/:id", requireUser(), g.getOrder)
	}
}

func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) Start() error {
	addr := g.config.Server.Addr()
	g.server = &http.Server{
		Addr:              addr,
		Handler:           g.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.logger.Info("Gateway starting", zap.String("address", addr))
	return g.server.ListenAndServe()
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}

func (g *Gateway) healthCheck(c *gin.Context) {
	if g.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	status := "ok"
	code := http.StatusOK
	deps := gin.H{}
	for name, err := range g.health.Last() {
		if err != nil {
			deps[name] = "unavailable"
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	c.JSON(code, gin.H{"status": status, "dependencies": deps})
}

// corsConfig allows the configured origins, or every origin without
// credentials when none are configured.
func corsConfig(cfg config.CORSConfig) cors.Config {
	conf := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 {
		conf.AllowAllOrigins = true
		return conf
	}
	conf.AllowOrigins = cfg.AllowedOrigins
	conf.AllowCredentials = true
	return conf
}
