// Package auth identifies the contributor behind an API request.
//
// Requests are tried against a chain of authenticators and the first
// success wins:
//
//  1. Bearer: an identity-provider ID token in the Authorization header.
//  2. Token: a private annotator token in the "token" query parameter.
//  3. Anonymous: the remote address, when anonymous access is enabled.
package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"annopedia/internal/config"
	"annopedia/internal/logging"
	"annopedia/internal/store"
	"annopedia/internal/types"
)

// Method names how a principal was authenticated.
type Method string

const (
	MethodBearer    Method = "bearer"
	MethodToken     Method = "token"
	MethodAnonymous Method = "anonymous"
)

// Principal is an authenticated caller.
type Principal struct {
	Contributor *types.Contributor
	// Annotator is set only for token authentication.
	Annotator *types.Annotator
	Method    Method
}

// Store is the persistence the authenticators need.
type Store interface {
	GetOrCreateContributor(ctx context.Context, username, email string) (*types.Contributor, error)
	GetPrivateAnnotatorByToken(ctx context.Context, token string) (*types.Annotator, error)
}

// Authenticator tries to identify the caller of r. It returns a nil
// principal and nil error when its credentials are absent or rejected, so the
// next authenticator can try; errors are reserved for infrastructure failures.
type Authenticator interface {
	Name() string
	Authenticate(r *http.Request) (*Principal, error)
}

// Chain runs authenticators in order.
type Chain []Authenticator

// New builds the chain configured by cfg. A nil verifier disables bearer
// authentication.
func New(cfg config.AuthConfig, st Store, verifier IdentityVerifier) Chain {
	var chain Chain
	if verifier != nil {
		chain = append(chain, &BearerAuthenticator{store: st, verifier: verifier})
	}
	chain = append(chain, &TokenAuthenticator{store: st})
	if cfg.AllowAnonymous {
		chain = append(chain, &AnonymousAuthenticator{store: st, email: cfg.AnonymousEmail})
	}
	return chain
}

// Authenticate returns the first principal any authenticator produces.
func (c Chain) Authenticate(r *http.Request) (*Principal, error) {
	for _, a := range c {
		p, err := a.Authenticate(r)
		if err != nil {
			logging.Get(logging.CategoryAuth).Error("%s authenticator failed: %v", a.Name(), err)
			return nil, err
		}
		if p != nil {
			logging.AuthDebug("Authenticated %s via %s", p.Contributor.Username, a.Name())
			return p, nil
		}
	}
	return nil, types.Unauthorized("Unauthorized")
}

// =============================================================================
// AUTHENTICATORS
// =============================================================================

// BearerAuthenticator verifies identity-provider ID tokens. The contributor
// is keyed by the provider's user id and created on first sight.
type BearerAuthenticator struct {
	store    Store
	verifier IdentityVerifier
}

func (a *BearerAuthenticator) Name() string { return string(MethodBearer) }

func (a *BearerAuthenticator) Authenticate(r *http.Request) (*Principal, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, nil
	}
	id, err := a.verifier.Verify(r.Context(), strings.TrimSpace(token))
	if err != nil {
		logging.AuthDebug("Bearer token rejected: %v", err)
		return nil, nil
	}
	c, err := a.store.GetOrCreateContributor(r.Context(), id.UID, id.Email)
	if err != nil {
		return nil, err
	}
	return &Principal{Contributor: c, Method: MethodBearer}, nil
}

// TokenAuthenticator resolves private annotator tokens. Inactive
// contributors are rejected.
type TokenAuthenticator struct {
	store Store
}

func (a *TokenAuthenticator) Name() string { return string(MethodToken) }

func (a *TokenAuthenticator) Authenticate(r *http.Request) (*Principal, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		return nil, nil
	}
	ann, err := a.store.GetPrivateAnnotatorByToken(r.Context(), token)
	if errors.Is(err, store.ErrNoRows) {
		logging.AuthDebug("Unknown private annotator token")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ann.Contributor == nil || !ann.Contributor.Active {
		logging.Auth("Inactive private annotator %d refused", ann.ID)
		return nil, nil
	}
	return &Principal{Contributor: ann.Contributor, Annotator: ann, Method: MethodToken}, nil
}

// AnonymousAuthenticator identifies callers by remote address.
type AnonymousAuthenticator struct {
	store Store
	email string
}

func (a *AnonymousAuthenticator) Name() string { return string(MethodAnonymous) }

func (a *AnonymousAuthenticator) Authenticate(r *http.Request) (*Principal, error) {
	host := RemoteHost(r)
	if host == "" {
		return nil, nil
	}
	c, err := a.store.GetOrCreateContributor(r.Context(), host, a.email)
	if err != nil {
		return nil, err
	}
	return &Principal{Contributor: c, Method: MethodAnonymous}, nil
}

// RemoteHost returns the host part of the request's remote address.
func RemoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// =============================================================================
// CONTEXT
// =============================================================================

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
