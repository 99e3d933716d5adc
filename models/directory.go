package models

// Governorate is the top level of the location hierarchy
type Governorate struct {
	ID   string `gorm:"primaryKey;size:36" json:"id"`
	Name string `gorm:"size:255;not null" json:"name"`
}

func (Governorate) TableName() string {
	return "governorates"
}

// Region groups districts and is the unit capacity is measured against
type Region struct {
	ID            string `gorm:"primaryKey;size:36" json:"id"`
	Name          string `gorm:"size:255;not null" json:"name"`
	GovernorateID string `gorm:"size:36;index" json:"governorate_id"`
}

func (Region) TableName() string {
	return "regions"
}

// District is the finest location unit; it carries its ancestors
type District struct {
	ID            string `gorm:"primaryKey;size:36" json:"id"`
	Name          string `gorm:"size:255;not null;index" json:"name"`
	RegionID      string `gorm:"size:36;not null;index" json:"region_id"`
	GovernorateID string `gorm:"size:36;not null" json:"governorate_id"`
}

func (District) TableName() string {
	return "districts"
}

// TechnicianStatus controls whether a technician may take new work
type TechnicianStatus string

const (
	TechnicianActive   TechnicianStatus = "active"
	TechnicianDisabled TechnicianStatus = "disabled"
	TechnicianOnLeave  TechnicianStatus = "on-leave"
)

// Technician performs deliveries and installations
type Technician struct {
	ID     string           `gorm:"primaryKey;size:36" json:"id"`
	Name   string           `gorm:"size:255;not null" json:"name"`
	Phone  string           `gorm:"size:32" json:"phone"`
	Status TechnicianStatus `gorm:"size:16;not null;default:'active'" json:"status"`
}

func (Technician) TableName() string {
	return "technicians"
}

// Branch issues invoices; its code is part of every invoice number
type Branch struct {
	ID   string `gorm:"primaryKey;size:36" json:"id"`
	Code string `gorm:"size:8;uniqueIndex;not null" json:"code"`
	Name string `gorm:"size:255;not null" json:"name"`
}

func (Branch) TableName() string {
	return "branches"
}

// Location is a resolved district with its ancestors
type Location struct {
	DistrictID    string `json:"district_id"`
	RegionID      string `json:"region_id"`
	GovernorateID string `json:"governorate_id"`
}

// IsZero reports whether no district is set
func (l Location) IsZero() bool {
	return l.DistrictID == ""
}
