package models

import "time"

// TransitionEvent records one successful status change
type TransitionEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id" bson:"-"`
	OrderKind  OrderKind `gorm:"size:16;not null;index:idx_event_order" json:"order_kind" bson:"order_kind"`
	OrderID    string    `gorm:"size:36;not null;index:idx_event_order" json:"order_id" bson:"order_id"`
	FromStatus string    `gorm:"size:20" json:"from_status" bson:"from_status"`
	ToStatus   string    `gorm:"size:20;not null" json:"to_status" bson:"to_status"`
	Actor      string    `gorm:"size:255" json:"actor,omitempty" bson:"actor,omitempty"`
	Note       string    `gorm:"size:255" json:"note,omitempty" bson:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

func (TransitionEvent) TableName() string {
	return "transition_events"
}

// All returns every model owned by the service, in migration order
func All() []interface{} {
	return []interface{}{
		&Governorate{},
		&Region{},
		&District{},
		&Technician{},
		&Branch{},
		&DeliveryOrder{},
		&InstallationOrder{},
		&RegionCapacitySetting{},
		&CapacitySlot{},
		&Counter{},
		&TransitionEvent{},
	}
}
