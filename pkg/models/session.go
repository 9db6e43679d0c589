package models

import "context"

// Credential is the explicit session handed to every storage operation.
type Credential struct {
	// AccessToken authorizes calls to the provider (OAuth token server-side,
	// drivepane session token client-side). It may be empty for providers
	// that use service credentials.
	AccessToken string
	// Subject identifies the signed-in account.
	Subject string
}

// SessionSource yields the current credential, or nil when signed out.
type SessionSource interface {
	Session(ctx context.Context) (*Credential, error)
}

// SessionFunc adapts a function to SessionSource.
type SessionFunc func(ctx context.Context) (*Credential, error)

// Session calls f.
func (f SessionFunc) Session(ctx context.Context) (*Credential, error) {
	return f(ctx)
}

// StaticSession always returns cred.
func StaticSession(cred *Credential) SessionSource {
	return SessionFunc(func(context.Context) (*Credential, error) {
		return cred, nil
	})
}

// RequireSession resolves the session and maps absence to ErrNotAuthenticated.
func RequireSession(ctx context.Context, src SessionSource) (*Credential, error) {
	if src == nil {
		return nil, ErrNotAuthenticated
	}
	cred, err := src.Session(ctx)
	if err != nil {
		return nil, &AuthError{Msg: err.Error()}
	}
	if cred == nil {
		return nil, ErrNotAuthenticated
	}
	return cred, nil
}
