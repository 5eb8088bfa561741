package rbac

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bubbleup/bubbleup/pkg/httputil"
	"github.com/bubbleup/bubbleup/pkg/identity"
	"github.com/bubbleup/bubbleup/pkg/observability"
)

// Authenticator turns an inbound request into an authorization decision.
// It validates the bearer credential, resolves the caller's effective role
// for the target project and checks it against the roles the endpoint
// accepts.
type Authenticator struct {
	verifier identity.Verifier
	store    *Store
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewAuthenticator creates a request authenticator
func NewAuthenticator(verifier identity.Verifier, store *Store, logger *observability.Logger, metrics *observability.Metrics) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		store:    store,
		logger:   logger,
		metrics:  metrics,
	}
}

// Authenticate validates the request credential and resolves the caller's
// capabilities for the target project.
//
// requiredRoles lists the roles permitted to proceed; an empty list admits
// any authenticated caller. requireProject demands a resolvable target
// project (query parameter, path variable or request body), failing with
// 400 when absent.
//
// The credential format is checked before the identity provider or the role
// store is consulted. On denial the returned error is an *httputil.APIError
// carrying the machine-readable kind.
func (a *Authenticator) Authenticate(r *http.Request, requiredRoles []Role, requireProject bool) (*AuthContext, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		a.decision("unauthenticated")
		return nil, httputil.Unauthenticated("missing Authorization header")
	}
	credential := strings.TrimPrefix(header, "Bearer ")
	if credential == header || credential == "" {
		a.decision("unauthenticated")
		return nil, httputil.Unauthenticated("Authorization header must be of the form 'Bearer <token>'")
	}

	ident, err := a.verifier.VerifyCredential(r.Context(), credential)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredential) {
			a.decision("unauthenticated")
			return nil, httputil.Unauthenticated("invalid or expired credential")
		}
		a.decision("error")
		a.logger.WithError(err).Error("identity provider verification failed")
		return nil, httputil.Infrastructure("identity provider unavailable", err)
	}

	project := httputil.ProjectFromRequest(r)
	if requireProject && project == "" {
		a.decision("bad_request")
		return nil, httputil.BadRequest("a target project is required for this operation")
	}

	role, err := a.lookupRole(r, ident.UserID, project)
	if err != nil {
		a.decision("error")
		a.logger.WithError(err).WithField("user_id", ident.UserID).Error("role lookup failed")
		return nil, httputil.Infrastructure("role lookup failed", err)
	}

	if len(requiredRoles) > 0 {
		member := false
		for _, required := range requiredRoles {
			if role == required {
				member = true
				break
			}
		}
		if !member {
			a.decision("forbidden")
			actual := "none"
			if role != "" {
				actual = string(role)
			}
			return nil, httputil.Forbidden(fmt.Sprintf(
				"role %s is not permitted for this operation (requires one of: %s)",
				actual, RoleNames(requiredRoles),
			))
		}
	}

	a.decision("allow")
	return &AuthContext{
		UserID:       ident.UserID,
		Email:        ident.Email,
		Project:      project,
		Role:         role,
		Capabilities: Resolve(role),
	}, nil
}

// lookupRole resolves the effective role, recording lookup metrics. An
// empty role means the user holds no grant; store failures propagate.
func (a *Authenticator) lookupRole(r *http.Request, userID, project string) (Role, error) {
	start := time.Now()
	assignment, err := a.store.EffectiveRole(r.Context(), userID, project)
	a.metrics.RoleLookupDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		a.metrics.RoleLookupsTotal.WithLabelValues("error").Inc()
		return "", err
	case assignment == nil:
		a.metrics.RoleLookupsTotal.WithLabelValues("none").Inc()
		return "", nil
	case assignment.Wildcard():
		a.metrics.RoleLookupsTotal.WithLabelValues("wildcard").Inc()
		return assignment.Role, nil
	default:
		a.metrics.RoleLookupsTotal.WithLabelValues("exact").Inc()
		return assignment.Role, nil
	}
}

func (a *Authenticator) decision(outcome string) {
	a.metrics.AuthDecisionsTotal.WithLabelValues(outcome).Inc()
}
