package models

import (
	"encoding/json"
	"time"
)

// Change event types emitted by the backend's row-change pipeline.
const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
)

// ChangeEvent is one row-level change fanned out on the change topic.
// New carries the row after the change (INSERT/UPDATE), Old the row before
// (UPDATE/DELETE). Delivery is at-least-once; consumers must merge
// idempotently.
type ChangeEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Table     string          `json:"table"`
	New       json.RawMessage `json:"new,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ProductChange is a ChangeEvent decoded for the products table.
type ProductChange struct {
	EventType string
	New       *Product
	Old       *Product
}

// DecodeProductChange unmarshals the row payloads of a products-table event.
func DecodeProductChange(ev ChangeEvent) (ProductChange, error) {
	pc := ProductChange{EventType: ev.EventType}
	if len(ev.New) > 0 {
		var p Product
		if err := json.Unmarshal(ev.New, &p); err != nil {
			return pc, err
		}
		pc.New = &p
	}
	if len(ev.Old) > 0 {
		var p Product
		if err := json.Unmarshal(ev.Old, &p); err != nil {
			return pc, err
		}
		pc.Old = &p
	}
	return pc, nil
}

// StaffStockPayload is the body posted to the automation webhook for a staff
// stock receipt.
type StaffStockPayload struct {
	ProductID  string   `json:"product_id"`
	Quantity   float64  `json:"quantity"`
	UnitType   string   `json:"unit_type"`
	DamagedQty *float64 `json:"damaged_qty,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	RecordedBy string   `json:"recorded_by"`
}

// DailySalesPayload is the body posted to the automation webhook for a sale.
type DailySalesPayload struct {
	ProductID     string  `json:"product_id"`
	Quantity      float64 `json:"quantity"`
	UnitType      string  `json:"unit_type"`
	TotalPrice    float64 `json:"total_price"`
	PaymentMethod string  `json:"payment_method"`
	RecordedBy    string  `json:"recorded_by"`
}
