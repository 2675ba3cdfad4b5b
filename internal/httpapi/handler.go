// Package httpapi maps the REST surface onto the services. Handlers stay
// thin: decode, delegate, encode; all policy lives in the services.
package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stripe/stripe-go/v81"

	"github.com/goliatone/go-pickup-market/internal/analytics"
	"github.com/goliatone/go-pickup-market/internal/auth"
	"github.com/goliatone/go-pickup-market/internal/carts"
	"github.com/goliatone/go-pickup-market/internal/catalog"
	"github.com/goliatone/go-pickup-market/internal/orders"
	"github.com/goliatone/go-pickup-market/internal/payments"
	"github.com/goliatone/go-pickup-market/internal/store"
	"github.com/goliatone/go-pickup-market/pkg/apperr"
	"github.com/goliatone/go-pickup-market/pkg/metrics"
)

// maxWebhookBody bounds the Stripe webhook payload.
const maxWebhookBody = int64(65536)

// Handler carries the service dependencies for every route.
type Handler struct {
	orders    *orders.Service
	catalog   *catalog.Service
	analytics *analytics.Service
	carts     *carts.Service
	payments  payments.Provider
	keys      *auth.Keys
	logger    *slog.Logger
}

func NewHandler(
	ordersSvc *orders.Service,
	catalogSvc *catalog.Service,
	analyticsSvc *analytics.Service,
	cartsSvc *carts.Service,
	paymentsProvider payments.Provider,
	keys *auth.Keys,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		orders:    ordersSvc,
		catalog:   catalogSvc,
		analytics: analyticsSvc,
		carts:     cartsSvc,
		payments:  paymentsProvider,
		keys:      keys,
		logger:    logger,
	}
}

// API builds the gin engine with all routes wired.
func API(h *Handler, serverMetrics *metrics.ServerMetrics, registry *prometheus.Registry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(h.RequestLogger(), Observe(serverMetrics), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if registry != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(registry)))
	}
	r.POST("/webhooks/stripe", h.StripeWebhook)

	v1 := r.Group("/v1")
	{
		// Public catalog.
		v1.GET("/products", h.ListProducts)
		v1.GET("/products/:id", h.GetProduct)
		v1.GET("/shops", h.ListShops)
		v1.GET("/producers", h.SearchProducers)

		authed := v1.Group("")
		authed.Use(h.Authentication())

		authed.GET("/orders/:id", h.GetOrder)

		customer := authed.Group("")
		customer.Use(RequireRole(auth.RoleCustomer))
		{
			customer.POST("/orders", h.CreateOrder)
			customer.GET("/customers/me/orders", h.ListMyOrders)
			customer.POST("/orders/:id/payment-intent", h.CreateOrderPaymentIntent)

			customer.GET("/cart", h.GetCart)
			customer.POST("/cart/items", h.AddCartItem)
			customer.PATCH("/cart/items/:id", h.UpdateCartItem)
			customer.DELETE("/cart/items/:id", h.RemoveCartItem)
			customer.DELETE("/cart", h.ClearCart)
			customer.POST("/cart/resync", h.ResyncCart)
		}

		producer := authed.Group("/producers/me")
		producer.Use(RequireRole(auth.RoleProducer))
		{
			producer.GET("/orders", h.ListProducerOrders)
			producer.PATCH("/orders/:id/status", h.UpdateOrderStatus)
			producer.GET("/analytics", h.Analytics)

			producer.GET("/shops", h.ListMyShops)
			producer.POST("/shops", h.CreateShop)
			producer.PUT("/shops/:id", h.UpdateShop)
			producer.DELETE("/shops/:id", h.DeleteShop)

			producer.POST("/products", h.CreateProduct)
			producer.PUT("/products/:id", h.UpdateProduct)
			producer.DELETE("/products/:id", h.DeleteProduct)
		}
	}

	return r
}

// respondError maps an error through the taxonomy to {error, code}.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{
		"error": apperr.MessageOf(err),
		"code":  apperr.CodeOf(err),
	})
}

func claims(c *gin.Context) auth.Claims {
	cl, _ := auth.FromContext(c.Request.Context())
	return cl
}

func queryInt(c *gin.Context, name string) int {
	n, _ := strconv.Atoi(c.Query(name))
	return n
}

func queryTime(c *gin.Context, name string) *time.Time {
	v := c.Query(name)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

// --- Orders ---

func (h *Handler) CreateOrder(c *gin.Context) {
	var in orders.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, apperr.Wrap(err, apperr.InvalidInput, "invalid_body", "invalid request body"))
		return
	}
	in.CustomerID = claims(c).Subject

	order, err := h.orders.Create(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), c.Param("id"), claims(c).Subject)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	var in struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, apperr.Wrap(err, apperr.InvalidInput, "invalid_body", "invalid request body"))
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), in.Status, claims(c).Subject)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func listFilter(c *gin.Context) orders.ListFilter {
	return orders.ListFilter{
		Status: c.Query("status"),
		From:   queryTime(c, "from"),
		To:     queryTime(c, "to"),
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
	}
}

func (h *Handler) ListMyOrders(c *gin.Context) {
	page, err := h.orders.ListByCustomer(c.Request.Context(), claims(c).Subject, listFilter(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) ListProducerOrders(c *gin.Context) {
	page, err := h.orders.ListByProducer(c.Request.Context(), claims(c).Subject, listFilter(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// --- Analytics ---

func (h *Handler) Analytics(c *gin.Context) {
	window := c.DefaultQuery("window", string(analytics.WindowMonth))
	summary, err := h.analytics.Summarize(c.Request.Context(), claims(c).Subject, window)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// --- Catalog ---

func (h *Handler) ListProducts(c *gin.Context) {
	page, err := h.catalog.ListProducts(c.Request.Context(), catalog.ProductFilter{
		Category:   c.Query("category"),
		Search:     c.Query("search"),
		ShopID:     c.Query("shop_id"),
		ProducerID: c.Query("producer_id"),
		Page:       queryInt(c, "page"),
		Limit:      queryInt(c, "limit"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) GetProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) ListShops(c *gin.Context) {
	page, err := h.catalog.ListShops(c.Request.Context(), catalog.ShopFilter{
		Search: c.Query("search"),
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) SearchProducers(c *gin.Context) {
	page, err := h.catalog.SearchProducers(c.Request.Context(), catalog.ProducerFilter{
		Search: c.Query("search"),
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) ListMyShops(c *gin.Context) {
	shops, err := h.catalog.ListShopsByProducer(c.Request.Context(), claims(c).Subject)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": shops})
}

func (h *Handler) CreateShop(c *gin.Context) {
	var in catalog.ShopInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, apperr.Wrap(err, apperr.InvalidInput, "invalid_body", "invalid request body"))
		return
	}
	shop, err := h.catalog.CreateShop(c.Request.Context(), claims(c).Subject, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, shop)
}

func (h *Handler) UpdateShop(c *gin.Context) {
	var in catalog.ShopInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, apperr.Wrap(err, apperr.InvalidInput, "invalid_body", "invalid request body"))
		return
	}
	shop, err := h.catalog.UpdateShop(c.Request.Context(), c.Param("id"), claims(c).Subject, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, shop)
}

func (h *Handler) DeleteShop(c *gin.Context) {
	if err := h.catalog.DeleteShop(c.Request.Context(), c.Param("id"), claims(c).Subject); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) CreateProduct(c *gin.Context) {
	var in catalog.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, apperr.Wrap(err, apperr.InvalidInput, "invalid_body", "invalid request body"))
		return
	}
	product, err := h.catalog.CreateProduct(c.Request.Context(), claims(c).Subject, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) UpdateProduct(c *gin.Context) {
	var in catalog.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, apperr.Wrap(err, apperr.InvalidInput, "invalid_body", "invalid request body"))
		return
	}
	product, err := h.catalog.UpdateProduct(c.Request.Context(), c.Param("id"), claims(c).Subject, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) DeleteProduct(c *gin.Context) {
	if err := h.catalog.DeleteProduct(c.Request.Context(), c.Param("id"), claims(c).Subject); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Cart ---

func (h *Handler) GetCart(c *gin.Context) {
	cart, err := h.carts.Get(c.Request.Context(), claims(c).Subject)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) AddCartItem(c *gin.Context) {
	var in carts.AddInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, apperr.Wrap(err, apperr.InvalidInput, "invalid_body", "invalid request body"))
		return
	}
	cart, err := h.carts.AddItem(c.Request.Context(), claims(c).Subject, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) UpdateCartItem(c *gin.Context) {
	var in struct {
		Quantity int `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, apperr.Wrap(err, apperr.InvalidInput, "invalid_body", "invalid request body"))
		return
	}
	cart, err := h.carts.UpdateItemQuantity(c.Request.Context(), claims(c).Subject, c.Param("id"), in.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) RemoveCartItem(c *gin.Context) {
	cart, err := h.carts.RemoveItem(c.Request.Context(), claims(c).Subject, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) ClearCart(c *gin.Context) {
	if err := h.carts.Clear(c.Request.Context(), claims(c).Subject); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ResyncCart(c *gin.Context) {
	result, err := h.carts.Resync(c.Request.Context(), claims(c).Subject)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// --- Payments ---

func (h *Handler) CreateOrderPaymentIntent(c *gin.Context) {
	cl := claims(c)
	order, err := h.orders.Get(c.Request.Context(), c.Param("id"), cl.Subject)
	if err != nil {
		h.respondError(c, err)
		return
	}

	intent, err := h.payments.CreatePaymentIntent(c.Request.Context(), payments.IntentInput{
		OrderID:    order.ID,
		CustomerID: cl.Subject,
		Total:      order.Total,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, intent)
}

// StripeWebhook verifies the signature and records the payment verdict on
// the order named in the intent metadata.
func (h *Handler) StripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.respondError(c, apperr.Wrap(err, apperr.InvalidInput, "invalid_body", "reading webhook body"))
		return
	}

	event, err := h.payments.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			h.respondError(c, apperr.Wrap(err, apperr.InvalidInput, "invalid_event", "unmarshalling payment intent"))
			return
		}
		orderID := intent.Metadata["order_id"]
		if orderID == "" {
			h.respondError(c, apperr.New(apperr.InvalidInput, "invalid_event", "payment intent carries no order_id"))
			return
		}

		status := store.PaymentStatusPaid
		if event.Type == "payment_intent.payment_failed" {
			status = store.PaymentStatusFailed
		}
		if err := h.orders.UpdatePaymentStatus(c.Request.Context(), orderID, status, intent.ID); err != nil {
			h.respondError(c, err)
			return
		}
		c.Status(http.StatusOK)

	default:
		h.logger.Info("unhandled stripe event", "event_type", string(event.Type))
		c.JSON(http.StatusOK, gin.H{"message": "event type not handled"})
	}
}
