package models

import (
	"time"

	"gorm.io/datatypes"
)

// DeliveryOrder is a delivery to a customer. Completed deliveries flagged
// RequiresInstallation feed the installation importer.
type DeliveryOrder struct {
	ID            string `gorm:"primaryKey;size:36" json:"id"`
	InvoiceNumber string `gorm:"size:32;uniqueIndex;not null" json:"invoice_number"`
	BranchID      string `gorm:"size:36;index" json:"branch_id"`

	// Location. Region and governorate are always derived from the district.
	DistrictID    string `gorm:"size:36;index" json:"district_id"`
	RegionID      string `gorm:"size:36;index" json:"region_id"`
	GovernorateID string `gorm:"size:36" json:"governorate_id"`
	LocationName  string `gorm:"size:255" json:"location_name,omitempty"` // legacy free-text location, only when DistrictID is empty
	Address       string `gorm:"size:512" json:"address"`

	CustomerName  string `gorm:"size:255;not null" json:"customer_name"`
	CustomerPhone string `gorm:"size:10;not null" json:"customer_phone"`

	TechnicianID         *string        `gorm:"size:36;index" json:"technician_id,omitempty"`
	DeliveryDate         datatypes.Date `gorm:"index" json:"delivery_date"`
	RequiresInstallation bool           `gorm:"not null;default:false" json:"requires_installation"`
	Status               DeliveryStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	StatusVersion        int            `gorm:"not null;default:0" json:"status_version"`
	Attachment           BlobRef        `gorm:"embedded;embeddedPrefix:attachment_" json:"attachment"`
	Notes                string         `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// TableName specifies the table name for the DeliveryOrder model
func (DeliveryOrder) TableName() string {
	return "delivery_orders"
}

// Blobs returns every blob reference the order owns
func (o *DeliveryOrder) Blobs() []BlobRef {
	if o.Attachment.IsZero() {
		return nil
	}
	return []BlobRef{o.Attachment}
}

// Location returns the stored district/region/governorate triple
func (o *DeliveryOrder) Location() Location {
	return Location{DistrictID: o.DistrictID, RegionID: o.RegionID, GovernorateID: o.GovernorateID}
}

// SetLocation writes a resolved location onto the order
func (o *DeliveryOrder) SetLocation(loc Location) {
	o.DistrictID = loc.DistrictID
	o.RegionID = loc.RegionID
	o.GovernorateID = loc.GovernorateID
}
