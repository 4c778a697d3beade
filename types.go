package castellan

import (
	"context"
	"time"

	"github.com/castellan-dev/castellan/permission"
)

// Role is the permission-bearing role attached to a principal.
type Role = permission.Role

// StaticRole is a fixed role definition suitable for providers that
// load role grants from config or a database row.
type StaticRole = permission.StaticRole

// Principal is the authenticated identity as the backing store knows
// it. PasswordHash and Salt are stored verbatim; the engine never
// writes them back except through UpdatePasswordHash.
type Principal struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Salt         string

	LastLoginAt   time.Time
	LastFailureAt time.Time
	FailureCount  int

	Roles []Role
}

// PrincipalProvider is the application's bridge to its user storage.
// Lookup methods return ErrPrincipalNotFound (possibly wrapped) when no
// account matches; any other error is treated as a backend failure.
//
// The Record* methods persist login bookkeeping. The engine treats
// their failures as non-fatal: it logs and continues, because an
// otherwise valid login should not bounce on a stats write.
type PrincipalProvider interface {
	FindByUsername(ctx context.Context, username string) (*Principal, error)
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	FindByID(ctx context.Context, id int64) (*Principal, error)

	RecordLogin(ctx context.Context, id int64, at time.Time) error
	RecordFailure(ctx context.Context, id int64, at time.Time, failureCount int) error

	// UpdatePasswordHash stores a rehashed credential after a
	// successful login verified against a legacy hash.
	UpdatePasswordHash(ctx context.Context, id int64, newHash string) error
}
