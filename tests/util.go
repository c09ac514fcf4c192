package testutil

import (
	"context"
	"io"
	"log"
	"os"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/fee"
	"github.com/trezcool/awe-academy/core/student"
	"github.com/trezcool/awe-academy/core/supply"
	"github.com/trezcool/awe-academy/core/user"
	logsvc "github.com/trezcool/awe-academy/services/logger"
	"github.com/trezcool/awe-academy/storage/database"
)

// NewLogger returns a logger writing nowhere.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "TEST : ", 0), conf)
}

// NewValidator returns a validator with every custom validation and translation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// PrepareDB opens a migrated and emptied postgres database.
// The test is skipped unless TEST_DATABASE_HOST is set.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	host := os.Getenv("TEST_DATABASE_HOST")
	if host == "" {
		t.Skip("TEST_DATABASE_HOST is not set")
	}

	conf := core.NewTestConfig()
	conf.Database.Host = host
	conf.Database.Port = getenv("TEST_DATABASE_PORT", conf.Database.Port)
	conf.Database.User = getenv("TEST_DATABASE_USER", "postgres")
	conf.Database.Password = getenv("TEST_DATABASE_PASSWORD", "postgres")
	conf.Database.AdminUser = getenv("TEST_DATABASE_ADMIN_USER", conf.Database.User)
	conf.Database.AdminPassword = getenv("TEST_DATABASE_ADMIN_PASSWORD", conf.Database.Password)
	conf.Database.Name = getenv("TEST_DATABASE_NAME", conf.Database.Name)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, database.CreateIfNotExist(ctx, conf), "CreateIfNotExist()")
	db, err := database.Open(ctx, conf)
	require.NoError(t, err, "Open()")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db, "up"), "Migrate()")
	ResetDB(t, db)
	return db
}

// ResetDB empties every table and restarts the id sequences.
func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()
	_, err := db.Exec(`TRUNCATE system_logs, supply_distributions, supplies, payments, student_fees, fees, students, users
		RESTART IDENTITY CASCADE`)
	require.NoError(t, err, "ResetDB()")
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		require.NoError(t, usr.SetPassword(pwd), "SetPassword()")
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	require.NoError(t, err, "CreateUser()")
	return usr
}

func CreateStudent(t *testing.T, repo student.Repository, number, first, last, email, status string) student.Student {
	t.Helper()

	now := time.Now().UTC()
	s, err := repo.CreateStudent(context.Background(), student.Student{
		StudentNumber: number,
		FirstName:     first,
		LastName:      last,
		DateOfBirth:   time.Date(2010, time.March, 14, 0, 0, 0, 0, time.UTC),
		Gender:        "F",
		Address:       "12 Avenue Lumumba",
		Email:         email,
		ClassYear:     "Grade 7",
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	require.NoError(t, err, "CreateStudent()")
	return s
}

// CreateFee stores a fee directly, without assessing any student.
func CreateFee(t *testing.T, repo fee.Repository, name, amount string) fee.Fee {
	t.Helper()

	now := time.Now().UTC()
	f, err := repo.CreateFee(context.Background(), fee.Fee{
		Name:         name,
		Amount:       decimal.RequireFromString(amount),
		AcademicYear: "2024-2025",
		DueDate:      time.Date(2024, time.September, 30, 0, 0, 0, 0, time.UTC),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(t, err, "CreateFee()")
	return f
}

func CreateSupply(t *testing.T, repo supply.Repository, name string, quantity int) supply.Supply {
	t.Helper()

	now := time.Now().UTC()
	s, err := repo.CreateSupply(context.Background(), supply.Supply{
		Name:              name,
		QuantityAvailable: quantity,
		Unit:              "pcs",
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	require.NoError(t, err, "CreateSupply()")
	return s
}

// Actor returns the actor of a user that is not stored anywhere.
func Actor(id int, role string) core.Actor {
	return core.Actor{UserID: id, Role: role}
}
