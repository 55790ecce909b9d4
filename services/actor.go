package services

import (
	"github.com/shridhar/dispatch-api/models"
)

// Actor is the authenticated caller of an engine operation
type Actor struct {
	ID   uint
	Role models.Role
}

// IsAdmin reports whether the actor is a dispatcher.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// IsTechnician reports whether the actor is a field technician.
func (a Actor) IsTechnician() bool {
	return a.Role == models.RoleTechnician
}

// IsCustomer reports whether the actor is a customer.
func (a Actor) IsCustomer() bool {
	return a.Role == models.RoleCustomer
}

// Owns reports whether the actor is the customer who created b.
func (a Actor) Owns(b *models.Booking) bool {
	return a.IsCustomer() && b.CustomerID == a.ID
}

// Works reports whether the actor is the technician bound to b.
func (a Actor) Works(b *models.Booking) bool {
	return a.IsTechnician() && b.IsAssignedTo(a.ID)
}

type operation string

const (
	opCreate        operation = "create"
	opView          operation = "view"
	opAssign        operation = "assign"
	opAccept        operation = "accept"
	opReject        operation = "reject"
	opCancel        operation = "cancel"
	opStartWork     operation = "start_work"
	opSubmitProof   operation = "submit_proof"
	opComplete      operation = "complete"
	opRecordPayment operation = "record_payment"
	opStats         operation = "stats"
	opRebuildStats  operation = "rebuild_stats"
)

// capabilities lists the roles allowed to attempt each operation.
// Ownership is checked separately against the booking.
var capabilities = map[operation][]models.Role{
	opCreate:        {models.RoleCustomer},
	opView:          {models.RoleCustomer, models.RoleTechnician, models.RoleAdmin},
	opAssign:        {models.RoleAdmin, models.RoleTechnician},
	opAccept:        {models.RoleTechnician},
	opReject:        {models.RoleTechnician},
	opCancel:        {models.RoleCustomer, models.RoleAdmin},
	opStartWork:     {models.RoleTechnician},
	opSubmitProof:   {models.RoleTechnician},
	opComplete:      {models.RoleTechnician},
	opRecordPayment: {models.RoleAdmin},
	opStats:         {models.RoleTechnician, models.RoleAdmin},
	opRebuildStats:  {models.RoleAdmin},
}

func authorize(op operation, actor Actor) error {
	for _, role := range capabilities[op] {
		if actor.Role == role {
			return nil
		}
	}
	return notEligible("role %q may not %s bookings", actor.Role, op)
}
