package tools

import (
	"context"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"voice-relay-service/internal/schema"
)

const CheckOrderStatusName = "check_order_status"

// Order is the status of one customer order.
type Order struct {
	Status       string `json:"status"`
	DeliveryDate string `json:"delivery_date"`
}

// OrderStatus is the check_order_status result.
type OrderStatus struct {
	OrderID      string `json:"order_id"`
	Status       string `json:"status"`
	DeliveryDate string `json:"delivery_date"`
}

// OrderBook is an in-memory order store backing check_order_status.
// Read-only once built.
type OrderBook struct {
	orders map[string]Order
}

// DefaultOrders seeds the demo order book.
func DefaultOrders() map[string]Order {
	return map[string]Order{
		"12345": {Status: "shipped", DeliveryDate: "2026-10-22"},
		"67890": {Status: "processing", DeliveryDate: "2026-10-28"},
		"24680": {Status: "delivered", DeliveryDate: "2026-10-15"},
		"13579": {Status: "cancelled"},
	}
}

func NewOrderBook(seed map[string]Order) *OrderBook {
	orders := make(map[string]Order, len(seed))
	for id, o := range seed {
		orders[id] = o
	}
	return &OrderBook{orders: orders}
}

// Status looks an order up. Unknown ids report status "not_found".
func (b *OrderBook) Status(orderID string) OrderStatus {
	id := strings.TrimSpace(orderID)
	o, ok := b.orders[id]
	if !ok {
		return OrderStatus{OrderID: id, Status: "not_found"}
	}
	return OrderStatus{OrderID: id, Status: o.Status, DeliveryDate: o.DeliveryDate}
}

// CheckOrderStatusTool exposes the order book to the model.
func (b *OrderBook) CheckOrderStatusTool() Tool {
	return Tool{
		Name:        CheckOrderStatusName,
		Description: "Get the status and delivery date of a customer's order.",
		Parameters: schema.Object(map[string]*jsonschema.Schema{
			"order_id": {
				Type:        "string",
				Description: "The order ID provided by the user.",
			},
		}, "order_id"),
		Handler: func(ctx context.Context, args Args) (any, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			id, _ := args.String("order_id")
			return b.Status(id), nil
		},
	}
}
