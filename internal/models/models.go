package models

import "time"

// Product represents a sellable/stockable SKU. Quantities are float64 because
// variable-weight products are tracked in kilograms.
type Product struct {
	ID                string    `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Category          string    `db:"category" json:"category,omitempty"`
	UnitPrice         float64   `db:"unit_price" json:"unit_price"`
	BoxPrice          *float64  `db:"box_price" json:"box_price,omitempty"`
	CostPrice         *float64  `db:"cost_price" json:"cost_price,omitempty"`
	BaseUnit          string    `db:"base_unit" json:"base_unit"`
	IsVariableWeight  bool      `db:"is_variable_weight" json:"is_variable_weight"`
	StandardBoxWeight *float64  `db:"standard_box_weight" json:"standard_box_weight,omitempty"`
	ImageURL          string    `db:"image_url" json:"image_url,omitempty"`
	IsActive          bool      `db:"is_active" json:"is_active"`
	Unit              float64   `db:"unit" json:"unit"`
	CreatedBy         string    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// NewProduct carries the fields accepted on product creation.
type NewProduct struct {
	Name              string   `json:"name" binding:"required"`
	Category          string   `json:"category"`
	UnitPrice         float64  `json:"unit_price" binding:"required"`
	BoxPrice          *float64 `json:"box_price"`
	CostPrice         *float64 `json:"cost_price"`
	BaseUnit          string   `json:"base_unit" binding:"required"`
	IsVariableWeight  bool     `json:"is_variable_weight"`
	StandardBoxWeight *float64 `json:"standard_box_weight"`
	ImageURL          string   `json:"image_url"`
	CreatedBy         string   `json:"created_by"`
}

// ProductPatch is a partial update. Nil fields are left untouched.
type ProductPatch struct {
	Name              *string  `json:"name"`
	Category          *string  `json:"category"`
	UnitPrice         *float64 `json:"unit_price"`
	BoxPrice          *float64 `json:"box_price"`
	CostPrice         *float64 `json:"cost_price"`
	BaseUnit          *string  `json:"base_unit"`
	IsVariableWeight  *bool    `json:"is_variable_weight"`
	StandardBoxWeight *float64 `json:"standard_box_weight"`
	ImageURL          *string  `json:"image_url"`
	Unit              *float64 `json:"unit"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ProductPatch) IsEmpty() bool {
	return p.Name == nil && p.Category == nil && p.UnitPrice == nil &&
		p.BoxPrice == nil && p.CostPrice == nil && p.BaseUnit == nil &&
		p.IsVariableWeight == nil && p.StandardBoxWeight == nil &&
		p.ImageURL == nil && p.Unit == nil
}

// Apply merges the patch onto a product (shallow merge, optimistic path).
func (p ProductPatch) Apply(prod *Product) {
	if p.Name != nil {
		prod.Name = *p.Name
	}
	if p.Category != nil {
		prod.Category = *p.Category
	}
	if p.UnitPrice != nil {
		prod.UnitPrice = *p.UnitPrice
	}
	if p.BoxPrice != nil {
		prod.BoxPrice = p.BoxPrice
	}
	if p.CostPrice != nil {
		prod.CostPrice = p.CostPrice
	}
	if p.BaseUnit != nil {
		prod.BaseUnit = *p.BaseUnit
	}
	if p.IsVariableWeight != nil {
		prod.IsVariableWeight = *p.IsVariableWeight
	}
	if p.StandardBoxWeight != nil {
		prod.StandardBoxWeight = p.StandardBoxWeight
	}
	if p.ImageURL != nil {
		prod.ImageURL = *p.ImageURL
	}
	if p.Unit != nil {
		prod.Unit = *p.Unit
	}
}

// StockEntry is a stock receipt recorded by the owner. Immutable once created;
// the product quantity moves via a backend trigger, not by this service.
type StockEntry struct {
	ID            string    `db:"id" json:"id"`
	ProductID     string    `db:"product_id" json:"product_id"`
	Quantity      float64   `db:"quantity" json:"quantity"`
	InputQuantity *float64  `db:"input_quantity" json:"input_quantity,omitempty"`
	UnitType      string    `db:"unit_type" json:"unit_type"`
	TotalWeight   *float64  `db:"total_weight" json:"total_weight,omitempty"`
	UnitCost      *float64  `db:"unit_cost" json:"unit_cost,omitempty"`
	UnitPrice     *float64  `db:"unit_price" json:"unit_price,omitempty"`
	BoxPrice      *float64  `db:"box_price" json:"box_price,omitempty"`
	TotalCost     *float64  `db:"total_cost" json:"total_cost,omitempty"`
	LogisticsFee  *float64  `db:"logistics_fee" json:"logistics_fee,omitempty"`
	ReferenceNote string    `db:"reference_note" json:"reference_note,omitempty"`
	RecordedBy    string    `db:"recorded_by" json:"recorded_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// StaffStockEntry is the staff-side receipt, kept in its own table so the
// reconciliation pipeline can compare the two independent counts.
type StaffStockEntry struct {
	ID         string    `db:"id" json:"id"`
	ProductID  string    `db:"product_id" json:"product_id"`
	Quantity   float64   `db:"quantity" json:"quantity"`
	UnitType   string    `db:"unit_type" json:"unit_type"`
	DamagedQty *float64  `db:"damaged_qty" json:"damaged_qty,omitempty"`
	Notes      string    `db:"notes" json:"notes,omitempty"`
	RecordedBy string    `db:"recorded_by" json:"recorded_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Sale represents one sale transaction recorded by staff.
type Sale struct {
	ID            string    `db:"id" json:"id"`
	ProductID     string    `db:"product_id" json:"product_id"`
	ProductName   string    `db:"product_name" json:"product_name,omitempty"`
	Quantity      float64   `db:"quantity" json:"quantity"`
	UnitType      string    `db:"unit_type" json:"unit_type"`
	TotalPrice    float64   `db:"total_price" json:"total_price"`
	PaymentMethod string    `db:"payment_method" json:"payment_method"`
	Status        string    `db:"status" json:"status"`
	RecordedBy    string    `db:"recorded_by" json:"recorded_by"`
	RecordedName  string    `db:"recorded_name" json:"recorded_name,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Sale statuses
const (
	SaleStatusCompleted = "completed"
	SaleStatusVoided    = "voided"
)

// Mismatch statuses. Pending means neither match nor resolved.
const (
	MismatchStatusMismatch       = "MISMATCH"
	MismatchStatusMissingInSales = "MISSING IN SALES"
	MismatchStatusExtraInSales   = "EXTRA IN SALES"
	MismatchStatusMatch          = "match"
	MismatchStatusResolved       = "resolved"
)

// ReconciliationMismatch is a detected disagreement between the owner-side and
// staff-side stock counts for one product. ProductName and ProductUnit come
// from the join at fetch time; ProductUnit is the baseline the resolution
// delta is applied to.
type ReconciliationMismatch struct {
	ID             string    `db:"id" json:"id"`
	ProductID      string    `db:"product_id" json:"product_id"`
	SystemQuantity float64   `db:"system_quantity" json:"system_quantity"`
	StaffQuantity  float64   `db:"staff_quantity" json:"staff_quantity"`
	OwnerQuantity  float64   `db:"owner_quantity" json:"owner_quantity"`
	Difference     float64   `db:"difference" json:"difference"`
	Status         string    `db:"status" json:"status"`
	ProductName    string    `db:"product_name" json:"product_name"`
	ProductUnit    float64   `db:"product_unit" json:"product_unit"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Pending reports whether the mismatch still needs a resolution.
func (m ReconciliationMismatch) Pending() bool {
	return m.Status != MismatchStatusMatch && m.Status != MismatchStatusResolved
}

// AuditLogEntry is the append-only before/after record written for every
// state-changing action.
type AuditLogEntry struct {
	ID         string    `db:"id" json:"id"`
	TableName  string    `db:"table_name" json:"table_name"`
	RecordID   string    `db:"record_id" json:"record_id"`
	Action     string    `db:"action" json:"action"`
	ChangedBy  string    `db:"changed_by" json:"changed_by"`
	BeforeData string    `db:"before_data" json:"before_data"`
	AfterData  string    `db:"after_data" json:"after_data"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Notification is a user-facing alert row.
type Notification struct {
	ID        string    `db:"id" json:"id"`
	Message   string    `db:"message" json:"message"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// UserProfile mirrors the users table for staff management.
type UserProfile struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AIStockReport is the latest generated stock analysis snapshot.
type AIStockReport struct {
	ID        string    `db:"id" json:"id"`
	Report    string    `db:"report" json:"report"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ProductHistoryItem is one normalized row of a product's movement history,
// merged from owner receipts (IN) and sales (OUT).
type ProductHistoryItem struct {
	ID           string    `json:"id"`
	Date         time.Time `json:"date"`
	Type         string    `json:"type"` // "IN" or "OUT"
	Quantity     float64   `json:"quantity"`
	Unit         string    `json:"unit"`
	OriginalQty  *float64  `json:"original_qty,omitempty"`
	OriginalUnit string    `json:"original_unit,omitempty"`
	Note         string    `json:"note,omitempty"`
}

// DashboardMetrics aggregates the owner dashboard numbers.
type DashboardMetrics struct {
	TotalValue float64 `json:"total_value"`
	LowStock   int     `json:"low_stock"`
	TotalItems int     `json:"total_items"`
}

// SalesMetrics aggregates sales dashboard numbers.
type SalesMetrics struct {
	TotalSalesValue float64 `json:"total_sales_value"`
	TotalUnitsSold  float64 `json:"total_units_sold"`
}

// DailyEntryStatus reports whether both sides have submitted counts today.
type DailyEntryStatus struct {
	OwnerReady bool `json:"owner_ready"`
	SalesReady bool `json:"sales_ready"`
}
