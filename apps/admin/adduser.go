package main

import (
	"context"
	"fmt"

	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/user"
)

// addUser creates a user.User, or reactivates an existing one with the given role and password.
func (cli *commandLine) addUser(name, uname, email, role, pwd string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	if core.CleanString(name) == "" {
		name = uname
	}

	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if !core.IsNotFound(err) {
			return err
		}

		nu := user.NewUser{
			Name:            name,
			Username:        uname,
			Email:           email,
			Role:            role,
			Password:        pwd,
			PasswordConfirm: pwd,
		}
		if err = nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
			return err
		}
		if usr, err = cli.usrSvc.Create(ctx, nu); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "created %s (%s)\n", usr.Username, usr.Role)
		return nil
	}

	active := true
	uu := user.UpdateUser{
		Name:            name,
		Email:           email,
		IsActive:        &active,
		Role:            role,
		Password:        pwd,
		PasswordConfirm: pwd,
	}
	if err = uu.Validate(ctx, usr, cli.validate, cli.usrSvc); err != nil {
		return err
	}
	if usr, err = cli.usrSvc.Update(ctx, usr, uu); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "updated %s (%s)\n", usr.Username, usr.Role)
	return nil
}
