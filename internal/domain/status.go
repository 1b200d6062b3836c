package domain

type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusKitchen   OrderStatus = "KITCHEN"
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusReady     OrderStatus = "READY"
	OrderStatusServed    OrderStatus = "SERVED"
	OrderStatusClosed    OrderStatus = "CLOSED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Valid reports whether the status is one a terminal is allowed to send.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusOpen, OrderStatusKitchen, OrderStatusPreparing, OrderStatusReady,
		OrderStatusServed, OrderStatusClosed, OrderStatusCancelled:
		return true
	}
	return false
}

type SyncDirection string

const (
	SyncDirectionPull SyncDirection = "PULL"
	SyncDirectionPush SyncDirection = "PUSH"
)

type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "SUCCESS"
	SyncStatusFailed  SyncStatus = "FAILED"
)

type DeductionStatus string

const (
	DeductionStatusPending    DeductionStatus = "pending"
	DeductionStatusProcessing DeductionStatus = "processing"
	DeductionStatusDone       DeductionStatus = "done"
	DeductionStatusFailed     DeductionStatus = "failed"
)
