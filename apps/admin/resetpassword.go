package main

import (
	"context"

	"github.com/trezcool/awe-academy/core/user"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if err = user.ValidatePassword(cli.validate, pwd, usr.Name, usr.Username, usr.Email); err != nil {
		return err
	}
	return cli.usrSvc.ResetPassword(ctx, usr.Username, pwd)
}
