package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/audit"
	"github.com/trezcool/awe-academy/core/fee"
	"github.com/trezcool/awe-academy/core/student"
	"github.com/trezcool/awe-academy/core/supply"
	"github.com/trezcool/awe-academy/core/user"
	emailsvc "github.com/trezcool/awe-academy/services/email"
	"github.com/trezcool/awe-academy/storage/database/dummy"
	"github.com/trezcool/awe-academy/tests"
)

const testPassword = "Awe$0me-Pwd"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	*Server
	conf        *core.Config
	db          *dummydb.DB
	usrRepo     user.Repository
	studentRepo student.Repository
	feeRepo     fee.Repository
	supplyRepo  supply.Repository
	mailSvc     *emailsvc.ConsoleServiceMock

	admin, finance, supplier, registrar user.User
}

func setup(t *testing.T) *testApp {
	conf := core.NewTestConfig()
	conf.Debug = false // keep error messages as served in production
	logger := testutil.NewLogger(conf)
	validate, translator := testutil.NewValidator()

	db := dummydb.Open()
	app := &testApp{
		conf:        conf,
		db:          db,
		usrRepo:     dummydb.NewUserRepository(db),
		studentRepo: dummydb.NewStudentRepository(db),
		feeRepo:     dummydb.NewFeeRepository(db),
		supplyRepo:  dummydb.NewSupplyRepository(db),
		mailSvc:     emailsvc.NewConsoleServiceMock(conf, logger),
	}

	app.Server = NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		UserSvc:    user.NewService(app.usrRepo),
		StudentSvc: student.NewService(app.studentRepo, validate),
		FeeSvc:     fee.NewService(app.feeRepo, validate, app.mailSvc, nil, logger, conf),
		SupplySvc:  supply.NewService(app.supplyRepo, validate, nil, conf),
		AuditSvc:   audit.NewService(dummydb.NewAuditRepository(db)),
		Validate:   validate,
		Translator: translator,
	})
	t.Cleanup(func() { _ = app.Close() })

	app.admin = testutil.CreateUser(t, app.usrRepo, "Grace Admin", "admin", "admin@awe.test", testPassword, user.RoleAdmin, true)
	app.finance = testutil.CreateUser(t, app.usrRepo, "Frank Finance", "finance", "finance@awe.test", testPassword, user.RoleFinanceOfficer, true)
	app.supplier = testutil.CreateUser(t, app.usrRepo, "Sam Supply", "supply", "supply@awe.test", testPassword, user.RoleSupplyOfficer, true)
	app.registrar = testutil.CreateUser(t, app.usrRepo, "Rita Registrar", "registrar", "registrar@awe.test", testPassword, user.RoleStudentOfficer, true)
	return app
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	token, err := GenerateToken(app.conf, GetUserClaims(app.conf, usr))
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}
	return token
}

// do serves one request and returns the recorded response.
func (app *testApp) do(method, path, token string, body ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, body...)
	app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func itoa(id int) string {
	return strconv.Itoa(id)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func unmarchall(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest), "body: %s", rec.Body.String())
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}
