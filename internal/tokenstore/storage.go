package tokenstore

import "context"

// Storage is the pluggable persistence slot for a single TokenData. It
// carries no buffer/refresh logic of its own — Store owns that — so a
// durable backend can be swapped in without touching the scheduling
// semantics (spec §4.B, §9 "token store as an owned object, not
// environment-mutating globals").
type Storage interface {
	Load(ctx context.Context) (*TokenData, error)
	Save(ctx context.Context, tok TokenData) error
	Delete(ctx context.Context) error
}
