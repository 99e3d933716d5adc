package models

import (
	"time"

	"gorm.io/datatypes"
)

// SourceType records how an installation order came to exist
type SourceType string

const (
	SourceManual   SourceType = "manual"
	SourceImported SourceType = "imported"
)

// ServiceType is one kind of work performed on a visit
type ServiceType string

const (
	ServiceInstall     ServiceType = "install"
	ServiceRemove      ServiceType = "remove"
	ServiceReinstall   ServiceType = "reinstall"
	ServiceMaintenance ServiceType = "maintenance"
)

// Valid reports whether t is a known service type
func (t ServiceType) Valid() bool {
	switch t {
	case ServiceInstall, ServiceRemove, ServiceReinstall, ServiceMaintenance:
		return true
	}
	return false
}

// EvidenceSlot names one of the two evidence images
type EvidenceSlot string

const (
	EvidenceBefore EvidenceSlot = "before"
	EvidenceAfter  EvidenceSlot = "after"
)

// InstallationOrder is an on-site installation visit, either entered manually
// or imported from a completed delivery order.
type InstallationOrder struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	SequenceNumber string     `gorm:"size:16;uniqueIndex;not null" json:"sequence_number"`
	SourceType     SourceType `gorm:"size:16;not null;default:'manual'" json:"source_type"`
	SourceID       *string    `gorm:"size:36;uniqueIndex" json:"source_id,omitempty"` // at most one installation per delivery order
	DocumentNumber string     `gorm:"size:32" json:"document_number,omitempty"`

	DistrictID        string `gorm:"size:36;index" json:"district_id"`
	RegionID          string `gorm:"size:36;index" json:"region_id"`
	GovernorateID     string `gorm:"size:36" json:"governorate_id"`
	Address           string `gorm:"size:512" json:"address"`
	AddressIncomplete bool   `gorm:"not null;default:false" json:"address_incomplete"`

	CustomerName  string `gorm:"size:255;not null" json:"customer_name"`
	CustomerPhone string `gorm:"size:10" json:"customer_phone"`

	// Technician fields are written together or not at all
	TechnicianID    *string `gorm:"size:36;index" json:"technician_id,omitempty"`
	TechnicianName  string  `gorm:"size:255" json:"technician_name,omitempty"`
	TechnicianPhone string  `gorm:"size:32" json:"technician_phone,omitempty"`

	ServiceTypes     datatypes.JSONSlice[ServiceType] `json:"service_types"`
	InstallationDate *datatypes.Date                  `gorm:"index" json:"installation_date,omitempty"`
	Status           InstallationStatus               `gorm:"size:20;not null;default:'new';index" json:"status"`
	StatusVersion    int                              `gorm:"not null;default:0" json:"status_version"`
	BeforeImage      BlobRef                          `gorm:"embedded;embeddedPrefix:before_image_" json:"before_image"`
	AfterImage       BlobRef                          `gorm:"embedded;embeddedPrefix:after_image_" json:"after_image"`
	Notes            string                           `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt        time.Time                        `json:"created_at"`
	UpdatedAt        time.Time                        `json:"updated_at"`
}

// TableName specifies the table name for the InstallationOrder model
func (InstallationOrder) TableName() string {
	return "installation_orders"
}

// HasEvidence is true only when both the before and after images exist
func (o *InstallationOrder) HasEvidence() bool {
	return !o.BeforeImage.IsZero() && !o.AfterImage.IsZero()
}

// Blobs returns every blob reference the order owns
func (o *InstallationOrder) Blobs() []BlobRef {
	var refs []BlobRef
	for _, ref := range []BlobRef{o.BeforeImage, o.AfterImage} {
		if !ref.IsZero() {
			refs = append(refs, ref)
		}
	}
	return refs
}

// Image returns the evidence reference stored in slot
func (o *InstallationOrder) Image(slot EvidenceSlot) BlobRef {
	if slot == EvidenceAfter {
		return o.AfterImage
	}
	return o.BeforeImage
}

// Location returns the stored district/region/governorate triple
func (o *InstallationOrder) Location() Location {
	return Location{DistrictID: o.DistrictID, RegionID: o.RegionID, GovernorateID: o.GovernorateID}
}

// SetLocation writes a resolved location onto the order
func (o *InstallationOrder) SetLocation(loc Location) {
	o.DistrictID = loc.DistrictID
	o.RegionID = loc.RegionID
	o.GovernorateID = loc.GovernorateID
}
