package dig_container

import (
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/dig"

	"github.com/trezcool/awe-academy/core"
	emailsvc "github.com/trezcool/awe-academy/services/email"
	"github.com/trezcool/awe-academy/storage/database/dummy"
	"github.com/trezcool/awe-academy/tests"
)

func Test_provideServices(t *testing.T) {
	c := dig.New()
	for _, constructor := range []interface{}{
		core.NewTestConfig,
		testutil.NewLogger,
		func(conf *core.Config, logger core.Logger) core.EmailService {
			return emailsvc.NewConsoleServiceMock(conf, logger)
		},
		func() core.LedgerMetrics { return core.NopMetrics },
		core.NewTranslator,
		func(translator ut.Translator) *validator.Validate { return newValidator(translator) },
		dummydb.Open,
		dummydb.NewUserRepository,
		dummydb.NewStudentRepository,
		dummydb.NewFeeRepository,
		dummydb.NewSupplyRepository,
		dummydb.NewAuditRepository,
	} {
		require.NoError(t, c.Provide(constructor))
	}
	require.NoError(t, provideServices(c))

	err := c.Invoke(func(p serverParams) {
		assert.NotNil(t, p.UserSvc)
		assert.NotNil(t, p.StudentSvc)
		assert.NotNil(t, p.FeeSvc)
		assert.NotNil(t, p.SupplySvc)
		assert.NotNil(t, p.AuditSvc)
	})
	assert.NoError(t, err)
}
