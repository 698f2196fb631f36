package auth

import (
	"fmt"
	"sort"
	"strings"

	"hazardline/internal/config"
	"hazardline/internal/errclass"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	ActorID    string
	Permission string
}

func (e ForbiddenError) Error() string {
	if e.ActorID == "" {
		return fmt.Sprintf("permission %s required", e.Permission)
	}
	return fmt.Sprintf("actor %s lacks permission %s", e.ActorID, e.Permission)
}

// Unwrap exposes the forbidden class so errors.Is and errclass.Code work.
func (e ForbiddenError) Unwrap() error {
	return errclass.ErrForbidden.WithMessage(e.Error())
}

// Actor is an authenticated caller with its effective permissions.
type Actor struct {
	ID          string
	Roles       []string
	Permissions []string
}

// Can reports whether the actor holds perm, directly or through "*".
func (a Actor) Can(perm string) bool {
	for _, p := range a.Permissions {
		if p == perm || p == config.PermAll {
			return true
		}
	}
	return false
}

// Service resolves permissions from the RBAC section of the config.
type Service struct {
	Config *config.Config
}

// Resolve builds an actor from its rbac bindings in the config. Roles and
// permissions never come from the caller.
func (s Service) Resolve(actorID string) Actor {
	actorID = strings.TrimSpace(actorID)
	var roles, perms []string
	if s.Config != nil {
		roles = union(s.Config.ActorRoles(actorID))
		perms = union(s.Config.RolePermissions(roles))
	}
	return Actor{ID: actorID, Roles: roles, Permissions: perms}
}

// Require returns a ForbiddenError unless a holds perm.
func (s Service) Require(a Actor, perm string) error {
	if strings.TrimSpace(a.ID) == "" {
		return errclass.ErrValidation.WithMessage("actor_id required")
	}
	if !a.Can(perm) {
		return ForbiddenError{ActorID: a.ID, Permission: perm}
	}
	return nil
}

func union(lists ...[]string) []string {
	set := map[string]struct{}{}
	for _, l := range lists {
		for _, v := range l {
			v = strings.TrimSpace(v)
			if v != "" {
				set[v] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
