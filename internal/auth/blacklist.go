package auth

import (
	"context"
	"time"
)

// TokenBlacklist stores revoked token IDs. Entries expire together with the
// token they revoke, so the blacklist never grows beyond the set of
// still-valid revoked tokens.
type TokenBlacklist interface {
	// Add blacklists the jti until the token's original expiry.
	Add(ctx context.Context, jti string, originalTokenExpTime time.Time) error
	// IsBlacklisted checks whether the jti has been revoked.
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}
