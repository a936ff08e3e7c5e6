// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/checkout"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/payment"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/interfaces/http/handlers"
	"github.com/your-org/storefront-backend/internal/interfaces/http/middleware"
	"github.com/your-org/storefront-backend/internal/pkg/pdf"
)

// Services bundles the constructed domain services the HTTP surface
// depends on. Built once in main and injected here.
type Services struct {
	Carts      *cart.Service
	Checkout   *checkout.Service
	Orders     *order.Service
	Products   *product.Service
	Gateway    *payment.StripeClient
	Reconciler *payment.Reconciler
	Invoices   *pdf.Service
	Logger     *logrus.Logger
}

// SetupRoutes wires all API routes
func SetupRoutes(rg *gin.RouterGroup, cfg *config.Config, svc *Services) {
	cartHandler := handlers.NewCartHandler(svc.Carts)
	checkoutHandler := handlers.NewCheckoutHandler(svc.Checkout)
	orderHandler := handlers.NewOrderHandler(svc.Orders, svc.Gateway, svc.Invoices)
	productHandler := handlers.NewProductHandler(svc.Products)
	webhookHandler := handlers.NewWebhookHandler(cfg, svc.Reconciler, svc.Logger)

	products := rg.Group("/products")
	{
		products.GET("", productHandler.List)
		products.GET("/:id", productHandler.Get)
	}

	// Cart and checkout serve guests and signed-in users alike; the
	// session middleware supplies the guest identity.
	cartGroup := rg.Group("/cart")
	cartGroup.Use(middleware.OptionalAuth(cfg), middleware.Session())
	{
		cartGroup.GET("", cartHandler.GetCart)
		cartGroup.POST("/items", cartHandler.AddItem)
		cartGroup.PUT("/items/:productID", cartHandler.UpdateItem)
		cartGroup.DELETE("/items/:productID", cartHandler.RemoveItem)
		cartGroup.POST("/coupons", cartHandler.ApplyCoupon)
		cartGroup.DELETE("/coupons/:code", cartHandler.RemoveCoupon)
		cartGroup.POST("/merge", cartHandler.Merge)
	}

	checkoutGroup := rg.Group("/checkout")
	checkoutGroup.Use(middleware.OptionalAuth(cfg), middleware.Session())
	{
		checkoutGroup.POST("", checkoutHandler.Begin)
		checkoutGroup.GET("/shipping-methods", checkoutHandler.ShippingMethods)
		checkoutGroup.GET("/summary", checkoutHandler.Summary)
	}

	orders := rg.Group("/orders")
	orders.Use(middleware.Auth(cfg))
	{
		orders.GET("", orderHandler.List)
		orders.GET("/:id", orderHandler.Get)
		orders.POST("/:id/cancel", orderHandler.Cancel)
		orders.GET("/:id/invoice", orderHandler.Invoice)
	}

	admin := rg.Group("/admin")
	admin.Use(middleware.Auth(cfg), middleware.RequireAdmin())
	{
		admin.POST("/orders/:id/refund", orderHandler.Refund)
	}

	webhooks := rg.Group("/webhooks")
	{
		webhooks.POST("/stripe", webhookHandler.HandleStripe)
	}
}
