package models

// DeliveryStatus is the lifecycle state of a delivery order
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryCompleted DeliveryStatus = "completed"
	DeliveryArchived  DeliveryStatus = "archived"
	DeliveryCancelled DeliveryStatus = "cancelled"
)

// DeliveryTransitions lists every legal move between delivery states
var DeliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryPending:   {DeliveryCompleted, DeliveryCancelled},
	DeliveryCompleted: {DeliveryArchived},
	DeliveryArchived:  {},
	DeliveryCancelled: {},
}

// CanTransition reports whether a delivery order may move from s to to
func (s DeliveryStatus) CanTransition(to DeliveryStatus) bool {
	for _, next := range DeliveryTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known delivery status
func (s DeliveryStatus) Valid() bool {
	_, ok := DeliveryTransitions[s]
	return ok
}

// Terminal reports whether no further transitions are possible
func (s DeliveryStatus) Terminal() bool {
	return len(DeliveryTransitions[s]) == 0
}

// InstallationStatus is the lifecycle state of an installation order
type InstallationStatus string

const (
	InstallationNew       InstallationStatus = "new"
	InstallationConfirmed InstallationStatus = "confirmed"
	InstallationCompleted InstallationStatus = "completed"
	InstallationArchived  InstallationStatus = "archived"
)

// InstallationTransitions lists every legal move between installation states.
// Preconditions (date for confirmed, evidence for completed) are enforced by the services.
var InstallationTransitions = map[InstallationStatus][]InstallationStatus{
	InstallationNew:       {InstallationConfirmed},
	InstallationConfirmed: {InstallationCompleted, InstallationArchived},
	InstallationCompleted: {InstallationArchived},
	InstallationArchived:  {},
}

// CanTransition reports whether an installation order may move from s to to
func (s InstallationStatus) CanTransition(to InstallationStatus) bool {
	for _, next := range InstallationTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known installation status
func (s InstallationStatus) Valid() bool {
	_, ok := InstallationTransitions[s]
	return ok
}

// OrderKind distinguishes the two order streams
type OrderKind string

const (
	KindDelivery     OrderKind = "delivery"
	KindInstallation OrderKind = "installation"
)

// Valid reports whether k is a known order kind
func (k OrderKind) Valid() bool {
	return k == KindDelivery || k == KindInstallation
}
