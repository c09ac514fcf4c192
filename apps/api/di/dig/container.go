package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/awe-academy/apps/api/echo"
	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/audit"
	"github.com/trezcool/awe-academy/core/fee"
	"github.com/trezcool/awe-academy/core/student"
	"github.com/trezcool/awe-academy/core/supply"
	"github.com/trezcool/awe-academy/core/user"
	emailsvc "github.com/trezcool/awe-academy/services/email"
	logsvc "github.com/trezcool/awe-academy/services/logger"
	metricsvc "github.com/trezcool/awe-academy/services/metrics"
	"github.com/trezcool/awe-academy/storage/database"
	sqlxrepos "github.com/trezcool/awe-academy/storage/database/sqlx"
)

const dbSetupTimeout = 30 * time.Second

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type serverParams struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	UserSvc    user.ServiceInterface
	StudentSvc student.ServiceInterface
	FeeSvc     fee.ServiceInterface
	SupplySvc  supply.ServiceInterface
	AuditSvc   audit.ServiceInterface
	Validate   *validator.Validate
	Translator ut.Translator
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		ctx, cancel := context.WithTimeout(context.Background(), dbSetupTimeout)
		defer cancel()

		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}
		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, err
		}
		if err = database.Migrate(db, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newMetrics(logger core.Logger) core.LedgerMetrics {
	m, err := metricsvc.NewPrometheusMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal(fmt.Sprintf("registering metrics: %v", err), err)
	}
	return m
}

// newValidator returns a validator with every custom validation registered on `translator`.
func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

// services are provided as their interfaces, the types the server depends on

func newUserService(repo user.Repository) user.ServiceInterface {
	return user.NewService(repo)
}

func newStudentService(repo student.Repository, validate *validator.Validate) student.ServiceInterface {
	return student.NewService(repo, validate)
}

func newFeeService(
	repo fee.Repository,
	validate *validator.Validate,
	mailSvc core.EmailService,
	metrics core.LedgerMetrics,
	logger core.Logger,
	conf *core.Config,
) fee.ServiceInterface {
	return fee.NewService(repo, validate, mailSvc, metrics, logger, conf)
}

func newSupplyService(repo supply.Repository, validate *validator.Validate, metrics core.LedgerMetrics, conf *core.Config) supply.ServiceInterface {
	return supply.NewService(repo, validate, metrics, conf)
}

func newAuditService(repo audit.Repository) audit.ServiceInterface {
	return audit.NewService(repo)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		UserSvc:    p.UserSvc,
		StudentSvc: p.StudentSvc,
		FeeSvc:     p.FeeSvc,
		SupplySvc:  p.SupplySvc,
		AuditSvc:   p.AuditSvc,
		Validate:   p.Validate,
		Translator: p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(newMetrics))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository))
	must(c.Provide(sqlxrepos.NewStudentRepository))
	must(c.Provide(sqlxrepos.NewFeeRepository))
	must(c.Provide(sqlxrepos.NewSupplyRepository))
	must(c.Provide(sqlxrepos.NewAuditRepository))

	must(provideServices(c))

	must(c.Provide(newServer))

	return c
}

// provideServices registers the domain services on top of their repositories.
func provideServices(c *dig.Container) error {
	for _, constructor := range []interface{}{
		newUserService,
		newStudentService,
		newFeeService,
		newSupplyService,
		newAuditService,
	} {
		if err := c.Provide(constructor); err != nil {
			return err
		}
	}
	return nil
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
