package models

import (
	"time"

	_ "github.com/lib/pq"
)

type User struct {
	ID          int       `json:"id" example:"1"`
	EmployeeId  string    `json:"employee_id" example:"EMP001"`
	Email       string    `json:"email" example:"user@example.com"`
	Password    string    `json:"password" example:""`
	FirstName   string    `json:"first_name" example:"John"`
	LastName    string    `json:"last_name" example:"Doe"`
	CreatedAt   time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt   time.Time `json:"updated_at" example:"2024-01-15T10:30:00Z"`
	FirstAccess time.Time `json:"first_access,omitempty" example:"2024-01-15T10:30:00Z"`
	LastAccess  time.Time `json:"last_access,omitempty" example:"2024-01-15T10:30:00Z"`
	ProfilePic  string    `json:"profile_picture" example:""`
	IsAdmin     bool      `json:"is_admin" example:"false"`
	Phone       string    `json:"phone" example:"5551234567"`
	RoleID      int       `json:"role_id" example:"1"`
	RoleName    string    `json:"role_name" example:"Estimator"`
	Suspended   bool      `json:"suspended" example:"false"`
	Permissions []string  `json:"permissions,omitempty"`
}

type Session struct {
	UserID                int       `json:"user_id" example:"1"`
	SessionID             string    `json:"session_id" example:""`
	HostName              string    `json:"host_name" example:""`
	IPAddress             string    `json:"ip_address" example:"127.0.0.1"`
	Timestamp             time.Time `json:"timestamp" example:"2024-01-15T10:30:00Z"`
	ExpiresAt             time.Time `json:"expires_at" example:"2024-01-16T10:30:00Z"`
	RefreshToken          string    `json:"refresh_token,omitempty" example:""`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at,omitempty" example:"2024-01-30T10:30:00Z"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required" example:"user@example.com"`
	Password string `json:"password" binding:"required" example:""`
}

type LoginResponse struct {
	SessionID    string `json:"session_id" example:""`
	AccessToken  string `json:"access_token" example:""`
	RefreshToken string `json:"refresh_token" example:""`
	User         User   `json:"user"`
}

// Lead represents the leads table - a prospective or active roofing job.
type Lead struct {
	ID           int       `json:"id" example:"1"`
	CustomerName string    `json:"customer_name" example:"Jane Smith"`
	Email        string    `json:"email" example:"jane@example.com"`
	Phone        string    `json:"phone" example:"5559876543"`
	Address      string    `json:"address" example:"742 Evergreen Terrace"`
	City         string    `json:"city" example:"Springfield"`
	State        string    `json:"state" example:"IL"`
	ZipCode      string    `json:"zip_code" example:"62704"`
	Status       string    `json:"status" example:"new"` // new, contacted, measured, quoted, contracted, in_progress, completed, lost
	Source       string    `json:"source" example:"referral"`
	AssignedTo   int       `json:"assigned_to" example:"2"`
	AssignedName string    `json:"assigned_name,omitempty" example:"John Doe"`
	Notes        string    `json:"notes" example:""`
	CreatedBy    int       `json:"created_by" example:"1"`
	CreatedAt    time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt    time.Time `json:"updated_at" example:"2024-01-15T10:30:00Z"`
}

// Measurement represents the measurement table - an immutable roof geometry
// snapshot for one lead. A lead may accumulate a history of snapshots;
// calculations always use the most recent one.
type Measurement struct {
	ID             int       `json:"id" example:"1"`
	LeadID         int       `json:"lead_id" example:"1"`
	TotalSquares   float64   `json:"total_squares" example:"24.5"`
	ActualSquares  float64   `json:"actual_squares" example:"22.0"`
	HipFeet        float64   `json:"hip_feet" example:"40.0"`
	RidgeFeet      float64   `json:"ridge_feet" example:"35.0"`
	ValleyFeet     float64   `json:"valley_feet" example:"28.0"`
	RakeFeet       float64   `json:"rake_feet" example:"60.0"`
	EaveFeet       float64   `json:"eave_feet" example:"90.0"`
	RoofPitch      string    `json:"roof_pitch" example:"6/12"`
	RoofComplexity string    `json:"roof_complexity" example:"moderate"`
	CreatedBy      int       `json:"created_by" example:"1"`
	CreatedAt      time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

// HipRidgeTotal returns the combined hip and ridge length in feet.
func (m Measurement) HipRidgeTotal() float64 {
	return m.HipFeet + m.RidgeFeet
}

// PerimeterTotal returns the combined rake and eave length in feet.
func (m Measurement) PerimeterTotal() float64 {
	return m.RakeFeet + m.EaveFeet
}

// Material represents the material catalog table.
type Material struct {
	ID              int       `json:"id" example:"1"`
	SKU             string    `json:"sku" example:"SHG-ARCH-30"`
	Name            string    `json:"name" example:"Architectural Shingles 30yr"`
	Category        string    `json:"category" example:"materials"` // labor, materials, equipment, other
	Unit            string    `json:"unit" example:"bundle"`
	CurrentCost     float64   `json:"current_cost" example:"38.50"`
	MeasurementType string    `json:"measurement_type" example:"squares"`
	PerUnitQuantity float64   `json:"per_unit_quantity" example:"3"`
	Active          bool      `json:"active" example:"true"`
	CreatedAt       time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt       time.Time `json:"updated_at" example:"2024-01-15T10:30:00Z"`
}

// MaterialLocationPrice represents the material_location_price table -
// a per-branch override of a material's catalog cost.
type MaterialLocationPrice struct {
	ID         int       `json:"id" example:"1"`
	MaterialID int       `json:"material_id" example:"1"`
	LocationID int       `json:"location_id" example:"3"`
	Price      float64   `json:"price" example:"36.75"`
	UpdatedAt  time.Time `json:"updated_at" example:"2024-01-15T10:30:00Z"`
}

// Template represents the template table - a reusable ordered collection of
// line-item prototypes. Editing a template creates a new revision so that
// orders generated from an older revision keep their historical pricing.
type Template struct {
	ID          int            `json:"id" example:"1"`
	Name        string         `json:"name" example:"Standard Tear-Off & Replace"`
	Description string         `json:"description" example:"Full replacement, architectural shingles"`
	Revision    string         `json:"revision" example:"RV-01"`
	Active      bool           `json:"active" example:"true"`
	CreatedBy   int            `json:"created_by" example:"1"`
	CreatedAt   time.Time      `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt   time.Time      `json:"updated_at" example:"2024-01-15T10:30:00Z"`
	Items       []TemplateItem `json:"items,omitempty"`
}

// TemplateItem represents the template_item table. MaterialID is 0 for
// labor/other items that do not reference the catalog. CurrentCost is a
// joined display field carrying the referenced material's catalog cost.
type TemplateItem struct {
	ID              int     `json:"id" example:"1"`
	TemplateID      int     `json:"template_id" example:"1"`
	MaterialID      int     `json:"material_id" example:"1"`
	Category        string  `json:"category" example:"materials"`
	Description     string  `json:"description" example:"Architectural Shingles 30yr"`
	MeasurementType string  `json:"measurement_type" example:"squares"`
	PerUnitQuantity float64 `json:"per_unit_quantity" example:"3"`
	Unit            string  `json:"unit" example:"bundle"`
	DefaultUnitCost float64 `json:"default_unit_cost" example:"38.50"`
	SortOrder       int     `json:"sort_order" example:"1"`
	CurrentCost     float64 `json:"current_cost,omitempty" example:"38.50"`
}

// LineItem is the shared shape for quote, material-order and work-order
// items. LineTotal is always recomputed from quantity and unit price,
// never edited independently. TemplateItemID and MaterialID are 0 when
// the item has no stable origin reference.
type LineItem struct {
	ID             int     `json:"id" example:"1"`
	Category       string  `json:"category" example:"materials"` // labor, materials, equipment, other
	Description    string  `json:"description" example:"Architectural Shingles 30yr"`
	Quantity       float64 `json:"quantity" example:"66"`
	Unit           string  `json:"unit" example:"bundle"`
	UnitPrice      float64 `json:"unit_price" example:"38.50"`
	LineTotal      float64 `json:"line_total" example:"2541.00"`
	Notes          string  `json:"notes,omitempty" example:""`
	SortOrder      int     `json:"sort_order" example:"1"`
	TemplateItemID int     `json:"template_item_id,omitempty" example:"1"`
	MaterialID     int     `json:"material_id,omitempty" example:"1"`
}

// Quote represents the quote table. TaxRate is stored as a decimal
// (0.08 = 8%); handlers convert submitted percentages before persisting.
type Quote struct {
	ID             int        `json:"id" example:"1"`
	LeadID         int        `json:"lead_id" example:"1"`
	Number         string     `json:"number" example:"QT-000042"`
	Status         string     `json:"status" example:"draft"` // draft, sent, accepted, declined
	TaxRate        float64    `json:"tax_rate" example:"0.08"`
	DiscountAmount float64    `json:"discount_amount" example:"50.00"`
	Subtotal       float64    `json:"subtotal" example:"1000.00"`
	TaxAmount      float64    `json:"tax_amount" example:"76.00"`
	TotalAmount    float64    `json:"total_amount" example:"1026.00"`
	Notes          string     `json:"notes" example:""`
	ValidUntil     *time.Time `json:"valid_until,omitempty" example:"2024-02-15T00:00:00Z"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty" example:"2024-01-20T10:30:00Z"`
	CreatedBy      int        `json:"created_by" example:"1"`
	CreatedByName  string     `json:"created_by_name,omitempty" example:"John Doe"`
	CreatedAt      time.Time  `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt      time.Time  `json:"updated_at" example:"2024-01-15T10:30:00Z"`
	Items          []LineItem `json:"items,omitempty"`
}

// Invoice represents the invoice table. Source records provenance:
// an invoice built from an accepted quote carries source "quote" and its
// totals are never re-taxed (the quote total is already tax-inclusive).
type Invoice struct {
	ID             int        `json:"id" example:"1"`
	LeadID         int        `json:"lead_id" example:"1"`
	QuoteID        int        `json:"quote_id,omitempty" example:"1"`
	Number         string     `json:"number" example:"INV-000017"`
	Source         string     `json:"source" example:"quote"` // quote, standalone
	TaxRate        float64    `json:"tax_rate" example:"0"`
	DiscountAmount float64    `json:"discount_amount" example:"0"`
	Subtotal       float64    `json:"subtotal" example:"2700.00"`
	TaxAmount      float64    `json:"tax_amount" example:"0"`
	TotalAmount    float64    `json:"total_amount" example:"2700.00"`
	TotalPaid      float64    `json:"total_paid" example:"0"`
	PaymentStatus  string     `json:"payment_status" example:"unpaid"` // unpaid, partial, paid, overdue
	DueDate        *time.Time `json:"due_date,omitempty" example:"2024-02-15T00:00:00Z"`
	CreatedBy      int        `json:"created_by" example:"1"`
	CreatedByName  string     `json:"created_by_name,omitempty" example:"John Doe"`
	CreatedAt      time.Time  `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt      time.Time  `json:"updated_at" example:"2024-01-15T10:30:00Z"`
	Items          []LineItem `json:"items,omitempty"`
}

// Payment represents the payment table.
type Payment struct {
	ID         int       `json:"id" example:"1"`
	InvoiceID  int       `json:"invoice_id" example:"1"`
	Amount     float64   `json:"amount" example:"1350.00"`
	Method     string    `json:"method" example:"check"` // check, card, cash, ach, other
	Reference  string    `json:"reference" example:"CHK-1042"`
	ReceivedAt time.Time `json:"received_at" example:"2024-01-22T00:00:00Z"`
	CreatedBy  int       `json:"created_by" example:"1"`
	CreatedAt  time.Time `json:"created_at" example:"2024-01-22T10:30:00Z"`
}

// MaterialOrder represents the material_order table.
type MaterialOrder struct {
	ID             int        `json:"id" example:"1"`
	LeadID         int        `json:"lead_id" example:"1"`
	Number         string     `json:"number" example:"MO-000009"`
	Status         string     `json:"status" example:"draft"` // draft, submitted, received, cancelled
	SupplierName   string     `json:"supplier_name" example:"ABC Roofing Supply"`
	LocationID     int        `json:"location_id,omitempty" example:"3"`
	TaxRate        float64    `json:"tax_rate" example:"0.08"`
	DiscountAmount float64    `json:"discount_amount" example:"0"`
	Subtotal       float64    `json:"subtotal" example:"2541.00"`
	TaxAmount      float64    `json:"tax_amount" example:"203.28"`
	TotalAmount    float64    `json:"total_amount" example:"2744.28"`
	CreatedBy      int        `json:"created_by" example:"1"`
	CreatedAt      time.Time  `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt      time.Time  `json:"updated_at" example:"2024-01-15T10:30:00Z"`
	Items          []LineItem `json:"items,omitempty"`
}

// WorkOrder represents the work_order table.
type WorkOrder struct {
	ID             int        `json:"id" example:"1"`
	LeadID         int        `json:"lead_id" example:"1"`
	Number         string     `json:"number" example:"WO-000013"`
	Status         string     `json:"status" example:"draft"` // draft, scheduled, in_progress, completed, cancelled
	CrewName       string     `json:"crew_name" example:"Crew A"`
	ScheduledDate  *time.Time `json:"scheduled_date,omitempty" example:"2024-02-01T00:00:00Z"`
	TaxRate        float64    `json:"tax_rate" example:"0"`
	DiscountAmount float64    `json:"discount_amount" example:"0"`
	Subtotal       float64    `json:"subtotal" example:"1800.00"`
	TaxAmount      float64    `json:"tax_amount" example:"0"`
	TotalAmount    float64    `json:"total_amount" example:"1800.00"`
	Description    string     `json:"description" example:"Tear-off and replace, south slope"`
	CreatedBy      int        `json:"created_by" example:"1"`
	CreatedAt      time.Time  `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt      time.Time  `json:"updated_at" example:"2024-01-15T10:30:00Z"`
	Items          []LineItem `json:"items,omitempty"`
}

// PermissionTemplate represents the permission_template table - a named
// bundle of permission keys that can be applied to users wholesale.
type PermissionTemplate struct {
	ID          int       `json:"id" example:"1"`
	Name        string    `json:"name" example:"Office Manager"`
	Description string    `json:"description" example:"Full quoting and invoicing access"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt   time.Time `json:"updated_at" example:"2024-01-15T10:30:00Z"`
}

// Notification represents the notifications table.
type Notification struct {
	ID        int       `json:"id" example:"1"`
	UserID    int       `json:"user_id" example:"2"`
	Message   string    `json:"message" example:"Lead #14 assigned to you"`
	Status    string    `json:"status" example:"unread"` // unread, read
	Action    string    `json:"action" example:"/leads/14"`
	CreatedAt time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt time.Time `json:"updated_at" example:"2024-01-15T10:30:00Z"`
}

// Setting represents the user_settings table.
type Setting struct {
	UserID              int       `json:"user_id" example:"1"`
	DefaultTaxRate      float64   `json:"default_tax_rate" example:"0.08"`
	DefaultLocationID   int       `json:"default_location_id" example:"3"`
	EmailNotifications  bool      `json:"email_notifications" example:"true"`
	PushNotifications   bool      `json:"push_notifications" example:"true"`
	AllowMultipleLogins bool      `json:"allow_multiple_logins" example:"false"`
	UpdatedAt           time.Time `json:"updated_at" example:"2024-01-15T10:30:00Z"`
}
