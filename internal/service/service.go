// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services accept primitives (usernames, team IDs), never *http.Request, and
// return apperror kinds, never status codes. The same calls back the HTTP
// API and the rallyctl operator tool.
//
// DEPENDENCY INJECTION:
// Every service takes repository interfaces, not *sqlite.DB, so tests pass
// in-memory fakes (see the _test.go files in this package).
package service

// EventRecorder counts completed mutations. *metrics.Metrics implements it.
type EventRecorder interface {
	RecordEvent(event string)
}

type noopRecorder struct{}

func (noopRecorder) RecordEvent(string) {}

func recorderOrNoop(r EventRecorder) EventRecorder {
	if r == nil {
		return noopRecorder{}
	}
	return r
}

// Event names passed to EventRecorder.
const (
	EventRegister   = "register"
	EventLogin      = "login"
	EventCreateTeam = "create_team"
	EventJoinTeam   = "join_team"
	EventCheckIn    = "checkin"
)
