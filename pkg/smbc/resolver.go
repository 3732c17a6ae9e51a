package smbc

import (
	"context"
)

// Credentials are the values an authentication attempt uses.
type Credentials struct {
	Workgroup string
	Username  string
	Password  string
}

// IsAnonymous reports an empty user and password.
func (c Credentials) IsAnonymous() bool {
	return c.Username == "" && c.Password == ""
}

// CredentialResolver supplies credentials when a session needs them. It
// receives the server, the share and the current guesses. An error makes
// the session continue with the next credential source.
type CredentialResolver interface {
	ResolveCredentials(ctx context.Context, server, share string, current Credentials) (Credentials, error)
}

// CredentialResolverFunc adapts a function to CredentialResolver.
type CredentialResolverFunc func(ctx context.Context, server, share string, current Credentials) (Credentials, error)

func (f CredentialResolverFunc) ResolveCredentials(ctx context.Context, server, share string, current Credentials) (Credentials, error) {
	return f(ctx, server, share, current)
}
