package main

import (
	"context"
	"errors"
	"fmt"
)

var errNotAdmin = errors.New("reconcile must be run by an active admin")

func (cli *commandLine) reconcile(uname string, fix bool) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if !usr.IsAdmin() || !usr.IsActive {
		return errNotAdmin
	}

	found, err := cli.feeSvc.Reconcile(ctx, usr.Actor(), fix)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Fprintln(cli.out, "ledger is consistent")
		return nil
	}

	for _, d := range found {
		fmt.Fprintf(cli.out, "student fee %d: amount_paid %s, payments %s, status %s (expected %s)\n",
			d.StudentFeeID, d.AmountPaid.StringFixed(2), d.PaymentsTotal.StringFixed(2), d.Status, d.ExpectedStatus)
	}
	if fix {
		fmt.Fprintf(cli.out, "fixed %d student fee(s)\n", len(found))
	}
	return nil
}
