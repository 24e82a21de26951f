package auth

import "context"

type contextKey string

const actorKey contextKey = "actor"

// ActorType distinguishes human actors from the system itself in audit trails.
type ActorType string

const (
	ActorTypeClinician ActorType = "clinician"
	ActorTypePatient   ActorType = "patient"
	ActorTypeSystem    ActorType = "system"
)

// Actor is the already-authenticated identity performing an operation. The
// core does not issue sessions; it only consumes what the auth middleware
// resolved from the request.
type Actor struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Type  ActorType `json:"type"`
	Roles []string  `json:"roles"`
}

// SystemActor is used for machine-initiated transitions (draft computation,
// stale-version flagging) so the ledger never records an empty actor.
func SystemActor() Actor {
	return Actor{ID: "system", Name: "triage-core", Type: ActorTypeSystem, Roles: []string{"system"}}
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role || r == "admin" {
			return true
		}
	}
	return false
}

// WithActor stores the actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext retrieves the actor from context. The boolean is false
// when no auth middleware ran.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}
