// Package events defines the event types published on the event bus.
package events

// Run lifecycle events published by the execution session facade.
const (
	RunStarted   = "run.started"
	RunProgress  = "run.progress"
	RunCompleted = "run.completed"
	RunFailed    = "run.failed"
	RunCancelled = "run.cancelled"
)

// Ticket events published by the ticket API.
const (
	TicketCreated = "ticket.created"
	TicketUpdated = "ticket.updated"
	TicketDeleted = "ticket.deleted"
	TicketMoved   = "ticket.moved"
)
