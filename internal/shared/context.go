package shared

import "context"

// Roles recognised by the ledger.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID       string
	Username string
	Name     string
	Role     string
}

// CanVoid reports whether the actor may void sales.
func (a Actor) CanVoid() bool {
	return a.Role == RoleAdmin || a.Role == RoleManager
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// DisplayName prefers the full name and falls back to username.
func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Username
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
