package user

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/dojo/core"
)

var (
	// errors
	ErrNotFound    = core.NewError(core.ErrNotFound, "user not found")
	ErrEmailExists = core.NewError(core.ErrConflict, "a user with this email already exists")
)

type (
	Repository interface {
		ProfileReader

		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service interface {
		CheckUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		SetRole(ctx context.Context, id, role string) (User, error)
		SetActive(ctx context.Context, id string, active bool) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
	}

	service struct {
		repo    Repository
		nowFunc func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo, nowFunc: time.Now}
}

func (svc *service) now() time.Time { return svc.nowFunc().UTC() }

func (svc *service) CheckUniqueness(ctx context.Context, email string, excludedUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, excludedUsers...); err != nil {
		if errors.Is(err, ErrEmailExists) {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := svc.now()
	usr := User{
		Name:      nu.Name,
		Email:     nu.Email,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, core.FilterOrderings(ordering, OrderingFields...))
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	return svc.modify(ctx, id, func(usr *User) error {
		usr.Name = uu.Name
		if uu.Password != "" {
			return usr.SetPassword(uu.Password)
		}
		return nil
	})
}

// SetRole promotes or demotes the user. Whether the caller may grant role is decided by the caller.
func (svc *service) SetRole(ctx context.Context, id, role string) (User, error) {
	if role != "" && !IsValidRole(role) {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: "invalid role"})
	}
	return svc.modify(ctx, id, func(usr *User) error {
		usr.Role = role
		return nil
	})
}

func (svc *service) SetActive(ctx context.Context, id string, active bool) (User, error) {
	return svc.modify(ctx, id, func(usr *User) error {
		usr.IsActive = active
		return nil
	})
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	return svc.modify(ctx, usr.ID, func(u *User) error {
		u.LastLogin = svc.now()
		return nil
	})
}

func (svc *service) modify(ctx context.Context, id string, fn func(usr *User) error) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}
	if err = fn(&usr); err != nil {
		return User{}, err
	}
	usr.UpdatedAt = svc.now()
	return svc.repo.UpdateUser(ctx, usr)
}
