package domain

// ChangeBatch is what a terminal pushes after working offline. Every list is
// optional and every element carries its own stable client id.
type ChangeBatch struct {
	Shifts     []Shift     `json:"shifts,omitempty"`
	Orders     []Order     `json:"orders,omitempty"`
	OrderItems []OrderItem `json:"orderItems,omitempty"`
	Payments   []Payment   `json:"payments,omitempty"`
	AuditLogs  []AuditLog  `json:"auditLogs,omitempty"`
}

// Size is the number of records in the batch.
func (b *ChangeBatch) Size() int {
	return len(b.Shifts) + len(b.Orders) + len(b.OrderItems) + len(b.Payments) + len(b.AuditLogs)
}

// RecordError reports a single record that could not be applied.
type RecordError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type PushResult struct {
	Success            bool          `json:"success"`
	ProcessedOrders    int           `json:"processedOrders"`
	ProcessedShifts    int           `json:"processedShifts"`
	ProcessedAuditLogs int           `json:"processedAuditLogs"`
	Errors             []RecordError `json:"errors,omitempty"`
}

// RecordsPushed is the volume written to the sync ledger.
func (r *PushResult) RecordsPushed() int {
	return r.ProcessedOrders + r.ProcessedShifts + r.ProcessedAuditLogs
}
