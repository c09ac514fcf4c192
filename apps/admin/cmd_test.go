package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/fee"
	"github.com/trezcool/awe-academy/core/student"
	"github.com/trezcool/awe-academy/core/user"
	"github.com/trezcool/awe-academy/storage/database"
	"github.com/trezcool/awe-academy/storage/database/dummy"
	"github.com/trezcool/awe-academy/tests"
)

const strongPwd = "Awe$0me-Pwd"

var (
	usrRepo     user.Repository
	studentRepo student.Repository
	feeRepo     fee.Repository
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	conf := core.NewTestConfig()
	validate, _ := testutil.NewValidator()

	db := dummydb.Open()
	usrRepo = dummydb.NewUserRepository(db)
	studentRepo = dummydb.NewStudentRepository(db)
	feeRepo = dummydb.NewFeeRepository(db)

	out := new(bytes.Buffer)
	return &commandLine{
		usrSvc:   user.NewService(usrRepo),
		feeSvc:   fee.NewService(feeRepo, validate, nil, nil, testutil.NewLogger(conf), conf),
		validate: validate,
		out:      out,
	}, out
}

type cliTest struct {
	name           string
	args           []string // without program name
	wantErr        error
	wantErrStr     string
	wantValidation bool
	extra          interface{}
}

func checkErr(t *testing.T, tt cliTest, err error) {
	if tt.wantValidation {
		if !core.IsValidation(err) {
			t.Errorf("cli.run() error = %v, want a validation error", err)
		}
		return
	}
	if err == nil {
		if tt.wantErr != nil || tt.wantErrStr != "" {
			t.Errorf("cli.run() error = nil, wantErr %v%s", tt.wantErr, tt.wantErrStr)
		}
		return
	}
	switch {
	case tt.wantErr != nil:
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
		}
	default:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)
	t.Cleanup(func() { gooseRunFunc = database.Migrate })

	gooseRunFunc = func(db *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "scholarships", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(args))
		})
	}
}

func Test_commandLine_migrateDB(t *testing.T) {
	db := testutil.PrepareDB(t)
	cli, _ := setup(t)
	cli.db = db
	gooseRunFunc = database.Migrate

	for _, args := range [][]string{{"migrate", "status"}, {"migrate", "down"}, {"migrate", "up"}} {
		if err := cli.run(append([]string{"admin"}, args...)); err != nil {
			t.Errorf("cli.run(%v) unexpected error = %v", args, err)
		}
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, out := setup(t)
	gone := testutil.CreateUser(t, usrRepo, "Gone", "gone", "gone@awe.test", "", user.RoleFinanceOfficer, false)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no email", args: []string{"adduser", "-username", "root"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "root", "-email", "root@awe.test"}, wantErr: errHelp},
		{name: "weak password", args: []string{"adduser", "-username", "root", "-email", "root@awe.test"}, extra: extra{pwd: "12345678"}, wantValidation: true},
		{name: "create admin", args: []string{"adduser", "-username", "Root", "-email", "root@awe.test"}, extra: extra{pwd: strongPwd}},
		{name: "reactivate", args: []string{"adduser", "-username", gone.Username, "-email", gone.Email, "-role", user.RoleSupplyOfficer}, extra: extra{pwd: strongPwd}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}
		readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }

		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(args))
		})
	}

	root, err := usrRepo.GetUserByUsernameOrEmail(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, root.Role)
	assert.True(t, root.IsActive)
	assert.NoError(t, root.CheckPassword(strongPwd))

	reactivated, err := usrRepo.GetUserByID(context.Background(), gone.ID)
	require.NoError(t, err)
	assert.True(t, reactivated.IsActive)
	assert.Equal(t, user.RoleSupplyOfficer, reactivated.Role)
	assert.NoError(t, reactivated.CheckPassword(strongPwd))

	assert.Contains(t, out.String(), "created root (admin)")
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "Old$ecret1", user.RoleFinanceOfficer, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: strongPwd}, wantErrStr: "user not found"},
		{name: "weak password", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "awe12345"}, wantValidation: true},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "N3w$ecret-1"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: strongPwd}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}
		readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			checkErr(t, tt, err)
			if err != nil {
				return
			}
			refreshedUsr, err := usrRepo.GetUserByID(context.Background(), usr.ID)
			if err != nil {
				t.Fatalf("GetUserByID() failed, %v", err)
			}
			if err = refreshedUsr.CheckPassword(pwd); err != nil {
				t.Error("failed to update new password")
			}
		})
	}
}

func Test_commandLine_reconcile(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@awe.test", "", user.RoleAdmin, true)
	finance := testutil.CreateUser(t, usrRepo, "Finance", "finance", "finance@awe.test", "", user.RoleFinanceOfficer, true)

	s := testutil.CreateStudent(t, studentRepo, "AWE-001", "Amani", "Kabila", "", student.StatusActive)
	f := testutil.CreateFee(t, feeRepo, "Tuition", "500")
	now := time.Now().UTC()
	sf, err := feeRepo.CreateStudentFee(ctx, fee.StudentFee{
		StudentID: s.ID, FeeID: f.ID, AmountPaid: decimal.Zero, PaymentStatus: fee.StatusUnpaid, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	// drift the stored balance away from the (empty) payment rows
	require.NoError(t, feeRepo.SetStudentFeeBalance(ctx, sf.ID, decimal.NewFromInt(120), fee.StatusPartial, now))

	tests := []cliTest{
		{name: "no username", args: []string{"reconcile"}, wantErr: errHelp},
		{name: "not an admin", args: []string{"reconcile", "-username", finance.Username}, wantErr: errNotAdmin},
		{name: "report", args: []string{"reconcile", "-username", admin.Username}},
		{name: "fix", args: []string{"reconcile", "-username", admin.Username, "-fix"}},
		{name: "consistent", args: []string{"reconcile", "-username", admin.Username}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(args))
		})
	}

	got, err := feeRepo.GetStudentFee(ctx, sf.ID)
	require.NoError(t, err)
	assert.True(t, got.AmountPaid.IsZero())
	assert.Equal(t, fee.StatusUnpaid, got.PaymentStatus)

	lines := out.String()
	assert.Equal(t, 2, strings.Count(lines, "student fee "+strconv.Itoa(sf.ID)+":"))
	assert.Contains(t, lines, "fixed 1 student fee(s)")
	assert.Contains(t, lines, "ledger is consistent")
}
