package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/dojo/core"
	"github.com/trezcool/dojo/core/user"
)

// addUser updates or creates a user.User. The password policy applies to new users only.
func (cli *commandLine) addUser(email, name, pwd string, isAdmin bool) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if err = cli.resetPassword(email, pwd); err != nil {
			return err
		}
		if usr, err = cli.usrSvc.SetActive(ctx, usr.ID, true); err != nil {
			return errors.Wrap(err, "activating user")
		}
	case errors.Is(err, user.ErrNotFound):
		nu := user.NewUser{Name: name, Email: email, Password: pwd, PasswordConfirm: pwd}
		if nu.Name == "" {
			nu.Name = email
		}
		if err = nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
			return invalid(err)
		}
		if usr, err = cli.usrSvc.Create(ctx, nu); err != nil {
			return errors.Wrap(err, "creating user")
		}
	default:
		return err
	}

	if isAdmin {
		if _, err = cli.usrSvc.SetRole(ctx, usr.ID, user.RoleAdmin); err != nil {
			return errors.Wrap(err, "setting admin role")
		}
	}
	fmt.Printf("user %s (%s) saved\n", usr.Email, usr.ID)
	return nil
}

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	uu := user.UpdateUser{Password: pwd, PasswordConfirm: pwd}
	if err = uu.Validate(usr, cli.validate); err != nil {
		return invalid(err)
	}
	if _, err = cli.usrSvc.Update(ctx, usr.ID, uu); err != nil {
		return errors.Wrap(err, "updating password")
	}
	return nil
}

func (cli *commandLine) setRole(email, role string) error {
	ctx := context.Background()
	rc := user.RoleChange{Role: role}
	if err := rc.Validate(cli.validate); err != nil {
		return invalid(err)
	}
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if _, err = cli.usrSvc.SetRole(ctx, usr.ID, rc.Role); err != nil {
		return errors.Wrap(err, "setting role")
	}
	return nil
}

// invalid marks validator errors as core.ErrInvalid.
func invalid(err error) error {
	if errors.Is(err, core.ErrInvalid) {
		return err
	}
	return core.NewValidationError(err)
}
