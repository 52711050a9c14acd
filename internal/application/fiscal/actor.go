package fiscal

import "context"

type actorKey struct{}

// SystemActor actor de las operaciones sin usuario (barrido de contingencia).
const SystemActor = "system"

// WithActor asocia al contexto el usuario que origina la operación (auditoría).
func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom devuelve el actor del contexto o SystemActor.
func ActorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return SystemActor
}
