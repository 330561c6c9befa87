package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/masomo-credits/apps/api/echo"
	"github.com/trezcool/masomo-credits/core"
	"github.com/trezcool/masomo-credits/core/credit"
	emailsvc "github.com/trezcool/masomo-credits/services/email"
	metricsvc "github.com/trezcool/masomo-credits/services/metrics"
	inmemdb "github.com/trezcool/masomo-credits/storage/database/inmem"
	testutil "github.com/trezcool/masomo-credits/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type app struct {
	conf    *core.Config
	server  *echoapi.Server
	repo    credit.Repository
	mailSvc *emailsvc.ConsoleServiceMock
	logger  *testutil.Logger
}

func setup(t *testing.T) app {
	t.Helper()

	conf := testutil.NewConfig()
	conf.Server.DisableReqLogs = true
	logger := new(testutil.Logger)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	credit.InitValidators(validate, translator)

	// set up DB & repos
	repo := inmemdb.NewCreditRepository(inmemdb.OpenSeeded())

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(logger, conf)
	metrics := metricsvc.NewCreditMetrics()
	creditSvc := credit.NewService(repo, mailSvc, logger, conf, credit.WithMetrics(metrics))

	// set up server
	server := echoapi.NewServer(conf, logger, validate, translator, metrics, creditSvc)
	return app{conf: conf, server: server, repo: repo, mailSvc: mailSvc, logger: logger}
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
	rec := httptest.NewRecorder()
	return req, rec
}

func (a app) do(t *testing.T, method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	t.Helper()
	req, rec := newAuthRequest(method, path, token, data...)
	a.server.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, conf *core.Config, owner string) string {
	t.Helper()
	token, err := echoapi.GenerateToken(conf, echoapi.NewOwnerClaims(conf, owner, "bursar", "bursar@school.test"))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func unmarchall(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarchall(%s): %v", rec.Body.String(), err)
	}
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
	t.Helper()
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

func runHTTPTests(t *testing.T, a app, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}
