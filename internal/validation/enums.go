package validation

// Common enum values - these MUST match DB CHECK constraints in the schema.
var (
	ValidRoles                 = []string{"admin", "service_advisor", "parts", "viewer"}
	ValidPOStatuses            = []string{"draft", "submitted", "partial", "received", "cancelled"}
	ValidRequestItemStatuses   = []string{"approved", "reserved", "ordered", "picking", "picked", "partially_received", "received"}
	ValidStockTransactionTypes = []string{"receive", "issue", "adjust", "reserve", "release"}
	ValidSupplierStatuses      = []string{"active", "inactive"}
	ValidWOStatuses            = []string{"open", "in_progress", "completed", "invoiced", "closed"}
	ValidLineStatuses          = []string{"awaiting", "authorized", "in_progress", "done"}
)
