package metadata

// Default status and priority tables.
//
// The Autotask REST API exposes no stable endpoint for these picklists that
// works across all integration permission levels, so the cache seeds both
// sets from the standard Autotask defaults below. Tenant-customized status
// or priority codes are NOT reflected: an id a tenant added upstream will be
// rejected by validation even though Autotask would accept it. This is a
// known, intentional limitation; do not silently wire these to a live
// source without revisiting validation semantics.

// DefaultStatuses returns the standard Autotask ticket status table.
func DefaultStatuses() []Entry {
	return []Entry{
		{ID: 1, Name: "New", Active: true, System: true},
		{ID: 5, Name: "Complete", Active: true, System: true},
		{ID: 7, Name: "Waiting Customer", Active: true, System: true},
		{ID: 8, Name: "In Progress", Active: true, System: true},
		{ID: 9, Name: "Waiting Materials", Active: true, System: true},
		{ID: 10, Name: "Dispatched", Active: true, System: true},
		{ID: 11, Name: "Escalate", Active: true, System: true},
		{ID: 12, Name: "Waiting Vendor", Active: true, System: true},
		{ID: 13, Name: "Waiting Approval", Active: true, System: true},
		{ID: 14, Name: "On Hold", Active: true, System: true},
	}
}

// DefaultPriorities returns the standard Autotask ticket priority table.
func DefaultPriorities() []Entry {
	return []Entry{
		{ID: 1, Name: "High", Active: true, System: true},
		{ID: 2, Name: "Medium", Active: true, System: true},
		{ID: 3, Name: "Low", Active: true, System: true},
		{ID: 4, Name: "Critical", Active: true, System: true},
	}
}
