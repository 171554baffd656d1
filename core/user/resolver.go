package user

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/dojo/core"
)

// RoleStrategy is one link of the role resolution chain.
// ok == false hands the principal over to the next strategy.
type RoleStrategy interface {
	ResolveRole(ctx context.Context, id Identity) (role string, ok bool, err error)
}

type RoleStrategyFunc func(ctx context.Context, id Identity) (string, bool, error)

func (f RoleStrategyFunc) ResolveRole(ctx context.Context, id Identity) (string, bool, error) {
	return f(ctx, id)
}

// AllowListStrategy grants the admin role to a fixed set of e-mail addresses.
func AllowListStrategy(emails []string) RoleStrategy {
	allowed := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = core.CleanString(e, true /* lower */); e != "" {
			allowed[e] = struct{}{}
		}
	}
	return RoleStrategyFunc(func(_ context.Context, id Identity) (string, bool, error) {
		_, ok := allowed[core.CleanString(id.Email, true /* lower */)]
		return RoleAdmin, ok, nil
	})
}

// ProfileReader is the part of the profile store the resolver needs.
type ProfileReader interface {
	GetUser(ctx context.Context, filter GetFilter) (User, error)
}

// ProfileStrategy uses the role stored on the principal's profile, when set to a known role.
func ProfileStrategy(profiles ProfileReader) RoleStrategy {
	return RoleStrategyFunc(func(ctx context.Context, id Identity) (string, bool, error) {
		usr, err := profiles.GetUser(ctx, GetFilter{ID: id.ID})
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return "", false, nil
			}
			return "", false, errors.Wrap(err, "finding profile")
		}
		role := core.CleanString(usr.Role, true /* lower */)
		return role, IsValidRole(role), nil
	})
}

// DefaultStrategy always answers with role.
func DefaultStrategy(role string) RoleStrategy {
	return RoleStrategyFunc(func(context.Context, Identity) (string, bool, error) {
		return role, true, nil
	})
}

// RoleResolver walks its strategies in order; the first one that answers wins.
// It never fails: a strategy error degrades the principal to RoleUser, the least privileged role.
type RoleResolver struct {
	chain  []RoleStrategy
	logger core.Logger
}

func NewRoleResolver(logger core.Logger, chain ...RoleStrategy) *RoleResolver {
	return &RoleResolver{chain: chain, logger: logger}
}

// NewDefaultRoleResolver returns the standard chain: admin allow-list, stored profile role, RoleUser.
func NewDefaultRoleResolver(adminEmails []string, profiles ProfileReader, logger core.Logger) *RoleResolver {
	return NewRoleResolver(
		logger,
		AllowListStrategy(adminEmails),
		ProfileStrategy(profiles),
		DefaultStrategy(RoleUser),
	)
}

func (r *RoleResolver) Resolve(ctx context.Context, id Identity) Resolution {
	for _, strategy := range r.chain {
		role, ok, err := strategy.ResolveRole(ctx, id)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn("role resolution failed, falling back to "+RoleUser, err, map[string]interface{}{"user_id": id.ID})
			}
			return newResolution(RoleUser)
		}
		if ok {
			return newResolution(role)
		}
	}
	return newResolution(RoleUser)
}

// Principal resolves id into a Principal.
func (r *RoleResolver) Principal(ctx context.Context, id Identity) Principal {
	return Principal{Identity: id, Resolution: r.Resolve(ctx, id)}
}
