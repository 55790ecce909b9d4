package models

// All returns every model managed by the API, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Category{},
		&Reason{},
		&Booking{},
		&WorkProof{},
		&TechnicianStats{},
	}
}
