// Package store holds the persistent entities and database plumbing for the
// pickup market. Entities are plain bun models; services assemble read
// models through explicit queries, never implicit lazy loading.
package store

import (
	"time"

	"github.com/uptrace/bun"
)

// OrderStatus is the order lifecycle enum. The intended flow driven by the
// producer UI is pending → preparee → prete → recuperee, with annulee
// reachable from pending. The data layer stays permissive: any defined value
// may be assigned via the status update operation, no transition graph is
// enforced here.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPrepared OrderStatus = "preparee"
	OrderStatusReady    OrderStatus = "prete"
	OrderStatusPickedUp OrderStatus = "recuperee"
	OrderStatusCanceled OrderStatus = "annulee"
)

// ParseOrderStatus validates a wire value against the closed enum.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusPrepared, OrderStatusReady,
		OrderStatusPickedUp, OrderStatusCanceled:
		return OrderStatus(s), true
	}
	return "", false
}

// PaymentStatus tracks the payment provider's view of an order, independent
// of the pickup lifecycle.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Producer is a seller account operating one or more shops.
type Producer struct {
	bun.BaseModel `bun:"table:producers,alias:pr"`

	ID               string    `bun:",pk" json:"id"`
	Name             string    `bun:",notnull" json:"name"`
	Email            string    `bun:",notnull,unique" json:"email"`
	PickupLocation   string    `json:"pickup_location"`
	StripeAccountID  string    `json:"-"`
	CreatedAt        time.Time `bun:",notnull" json:"created_at"`
	UpdatedAt        time.Time `bun:",notnull" json:"updated_at"`
}

// Customer is a buyer account.
type Customer struct {
	bun.BaseModel `bun:"table:customers,alias:cu"`

	ID               string    `bun:",pk" json:"id"`
	Name             string    `bun:",notnull" json:"name"`
	Email            string    `bun:",notnull,unique" json:"email"`
	StripeCustomerID string    `json:"-"`
	CreatedAt        time.Time `bun:",notnull" json:"created_at"`
	UpdatedAt        time.Time `bun:",notnull" json:"updated_at"`
}

// Shop is a producer's storefront, owning products.
type Shop struct {
	bun.BaseModel `bun:"table:shops,alias:sh"`

	ID          string    `bun:",pk" json:"id"`
	ProducerID  string    `bun:",notnull" json:"producer_id"`
	Name        string    `bun:",notnull" json:"name"`
	Description string    `json:"description"`
	Address     string    `json:"address"`
	CreatedAt   time.Time `bun:",notnull" json:"created_at"`
	UpdatedAt   time.Time `bun:",notnull" json:"updated_at"`
}

// Product is a sellable item in a shop. Price is the live unit price; orders
// snapshot it at creation time and never read it back.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID          string    `bun:",pk" json:"id"`
	ShopID      string    `bun:",notnull" json:"shop_id"`
	ProducerID  string    `bun:",notnull" json:"producer_id"`
	Name        string    `bun:",notnull" json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Unit        string    `json:"unit"`
	Price       float64   `bun:",notnull" json:"price"`
	Stock       int       `bun:",notnull" json:"stock"`
	ImageURL    string    `json:"image_url"`
	Available   bool      `bun:",notnull" json:"available"`
	CreatedAt   time.Time `bun:",notnull" json:"created_at"`
	UpdatedAt   time.Time `bun:",notnull" json:"updated_at"`
}

// Order is one purchase transaction from one customer to one producer. Total
// equals the sum of item subtotals at creation time. Orders are never hard
// deleted in normal operation; cancellation is a status value.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID              string        `bun:",pk" json:"id"`
	CustomerID      string        `bun:",notnull" json:"customer_id"`
	ProducerID      string        `bun:",notnull" json:"producer_id"`
	Status          OrderStatus   `bun:",notnull" json:"status"`
	Total           float64       `bun:",notnull" json:"total"`
	PickupDate      *time.Time    `json:"pickup_date,omitempty"`
	PickupPoint     string        `json:"pickup_point"`
	Notes           string        `json:"notes,omitempty"`
	PaymentMethodID string        `json:"payment_method_id,omitempty"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty"`
	PaymentStatus   PaymentStatus `bun:",notnull" json:"payment_status"`
	CreatedAt       time.Time     `bun:",notnull" json:"created_at"`
	UpdatedAt       time.Time     `bun:",notnull" json:"updated_at"`

	Items []*OrderItem `bun:"rel:has-many,join:id=order_id" json:"items,omitempty"`
}

// OrderItem is an immutable snapshot of one purchased product line, owned
// exclusively by its order and removed only through the order's cascade.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID          string  `bun:",pk" json:"id"`
	OrderID     string  `bun:",notnull" json:"order_id"`
	ProductID   string  `bun:",notnull" json:"product_id"`
	ProductName string  `bun:",notnull" json:"product_name"`
	Quantity    int     `bun:",notnull" json:"quantity"`
	UnitPrice   float64 `bun:",notnull" json:"unit_price"`
	Subtotal    float64 `bun:",notnull" json:"subtotal"`
}

// Cart is a customer's mutable pre-order staging area.
type Cart struct {
	bun.BaseModel `bun:"table:carts,alias:c"`

	ID         string    `bun:",pk" json:"id"`
	CustomerID string    `bun:",notnull,unique" json:"customer_id"`
	CreatedAt  time.Time `bun:",notnull" json:"created_at"`
	UpdatedAt  time.Time `bun:",notnull" json:"updated_at"`

	Items []*CartItem `bun:"rel:has-many,join:id=cart_id" json:"items,omitempty"`
}

// CartItem stores a display snapshot of the product taken at add time, so
// later price or name changes do not silently alter what the customer sees
// until an explicit resync.
type CartItem struct {
	bun.BaseModel `bun:"table:cart_items,alias:ci"`

	ID           string    `bun:",pk" json:"id"`
	CartID       string    `bun:",notnull" json:"cart_id"`
	ProductID    string    `bun:",notnull" json:"product_id"`
	ProductName  string    `bun:",notnull" json:"product_name"`
	UnitPrice    float64   `bun:",notnull" json:"unit_price"`
	Unit         string    `json:"unit"`
	ProducerName string    `json:"producer_name"`
	ImageURL     string    `json:"image_url"`
	Category     string    `json:"category"`
	Quantity     int       `bun:",notnull" json:"quantity"`
	CreatedAt    time.Time `bun:",notnull" json:"created_at"`
	UpdatedAt    time.Time `bun:",notnull" json:"updated_at"`
}
