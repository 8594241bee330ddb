package models

import (
	"time"

	"gorm.io/gorm"
)

// OrderStatus is the lifecycle state of an order. The value is the label
// shown to staff and stored in the orders table.
type OrderStatus string

const (
	OrderStatusBooked                OrderStatus = "Booked"
	OrderStatusConfirmed             OrderStatus = "Confirmed"
	OrderStatusWorkerAssigned        OrderStatus = "Worker Assigned"
	OrderStatusWorkerReachedLocation OrderStatus = "Worker Reached Location"
	OrderStatusServiceOngoing        OrderStatus = "Service Ongoing"
	OrderStatusCompleted             OrderStatus = "Completed"
	OrderStatusCancelled             OrderStatus = "Cancelled"
)

// AllOrderStatuses returns every status in lifecycle order
func AllOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusBooked,
		OrderStatusConfirmed,
		OrderStatusWorkerAssigned,
		OrderStatusWorkerReachedLocation,
		OrderStatusServiceOngoing,
		OrderStatusCompleted,
		OrderStatusCancelled,
	}
}

// ParseOrderStatus converts a stored label into an OrderStatus
func ParseOrderStatus(s string) (OrderStatus, bool) {
	for _, st := range AllOrderStatuses() {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsTerminal reports whether no trigger can move the order any further
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Order is a single booked cleaning engagement
type Order struct {
	ID                   string      `json:"id" gorm:"type:uuid;primaryKey"`
	CustomerID           string      `json:"customer_id" gorm:"type:uuid;not null;index"`
	VehicleID            *string     `json:"vehicle_id" gorm:"type:uuid"`
	AddressID            *string     `json:"address_id" gorm:"type:uuid"`
	Status               OrderStatus `json:"status" gorm:"type:varchar(40);not null;default:'Booked';index"`
	ScheduledDate        string      `json:"scheduled_date" gorm:"type:varchar(20)"`
	ScheduledTime        string      `json:"scheduled_time" gorm:"type:varchar(40)"`
	TotalAmount          float64     `json:"total_amount" gorm:"type:decimal(10,2);not null;default:0;check:total_amount >= 0"`
	WaterAvailable       bool        `json:"water_available" gorm:"default:false"`
	ElectricityAvailable bool        `json:"electricity_available" gorm:"default:false"`
	Notes                string      `json:"notes" gorm:"type:text"`
	Version              int         `json:"version" gorm:"not null;default:0"`
	CreatedAt            time.Time   `json:"created_at" gorm:"index"`
	UpdatedAt            time.Time   `json:"updated_at"`

	// Relationships
	Customer User        `json:"customer" gorm:"foreignKey:CustomerID"`
	Vehicle  *Vehicle    `json:"vehicle,omitempty" gorm:"foreignKey:VehicleID"`
	Address  *Address    `json:"address,omitempty" gorm:"foreignKey:AddressID"`
	Items    []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string {
	return "orders"
}

// BeforeCreate assigns an id and the initial status
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = NewID()
	}
	if o.Status == "" {
		o.Status = OrderStatusBooked
	}
	return nil
}

// OrderItem is a catalog line (service or product) attached to an order
type OrderItem struct {
	ID       string  `json:"id" gorm:"type:uuid;primaryKey"`
	OrderID  string  `json:"order_id" gorm:"type:uuid;not null;index"`
	Name     string  `json:"name" gorm:"size:255;not null"`
	Price    float64 `json:"price" gorm:"type:decimal(10,2);not null"`
	ItemType string  `json:"item_type" gorm:"size:40"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = NewID()
	}
	return nil
}

// OrderSnapshot is the reduced read projection used by the dashboard.
// Status is kept raw so that unknown labels can be detected, and a zero
// CreatedAt means the timestamp was missing or could not be read.
type OrderSnapshot struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	TotalAmount  float64   `json:"total_amount"`
	CreatedAt    time.Time `json:"created_at"`
	CustomerID   string    `json:"customer_id"`
	CustomerName string    `json:"customer_name"`
}

// OrderStatusEvent is emitted after a transition has been committed
type OrderStatusEvent struct {
	OrderID    string       `json:"order_id"`
	From       OrderStatus  `json:"from"`
	To         OrderStatus  `json:"to"`
	Trigger    OrderTrigger `json:"trigger"`
	WorkerID   string       `json:"worker_id,omitempty"`
	ActorID    string       `json:"actor_id,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}
