package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/trezcool/dojo/core"
	"github.com/trezcool/dojo/core/activity"
	"github.com/trezcool/dojo/core/attendance"
	"github.com/trezcool/dojo/core/booking"
	"github.com/trezcool/dojo/core/entitlement"
	"github.com/trezcool/dojo/core/subscription"
	"github.com/trezcool/dojo/core/user"
	emailsvc "github.com/trezcool/dojo/services/email"
	logsvc "github.com/trezcool/dojo/services/logger"
	inmemdb "github.com/trezcool/dojo/storage/database/inmem"
	testutil "github.com/trezcool/dojo/tests"
)

var (
	db      *inmemdb.DB
	app     Server
	tokens  *tokenizer
	gates   *entitlement.Registry
	mailSvc *emailsvc.ConsoleServiceMock

	usrRepo     user.Repository
	subRepo     subscription.Repository
	bookingRepo booking.Repository

	bossEmail = "boss@dojo.test"

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

func TestMain(m *testing.M) {
	conf := &core.Config{
		Env:         "TEST",
		TestMode:    true,
		AppName:     "Dojo",
		SecretKey:   "test-secret",
		AdminEmails: []string{bossEmail},
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
		},
		Billing:                   core.BillingConfig{DueDay: 5},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
	}
	logger := logsvc.NewQuietLogger()

	// set up DB & repos
	db = inmemdb.NewDB()
	usrRepo = inmemdb.NewUserRepository(db)
	subRepo = inmemdb.NewSubscriptionRepository(db)
	bookingRepo = inmemdb.NewBookingRepository(db)

	// set up services
	mailSvc = emailsvc.NewConsoleServiceMock(conf, logger)
	recorder := activity.NewRecorderMock(inmemdb.NewActivityRepository(db), logger)
	usrSvc := user.NewService(usrRepo)
	resolver := user.NewDefaultRoleResolver(conf.AdminEmails, usrRepo, logger)
	subSvc := subscription.NewService(subRepo, conf.Billing)
	bookingSvc := booking.NewService(bookingRepo)
	attendanceSvc := attendance.NewService(inmemdb.NewAttendanceRepository(db), bookingSvc, usrRepo, recorder)

	gateOpts := entitlement.Options{
		MaxRetries: 0,
		Sleep:      func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
	gates = entitlement.NewRegistry(func(id user.Identity) *entitlement.Gate {
		return entitlement.NewGate(id, resolver, subSvc, gateOpts)
	})

	validate, translator := testutil.NewValidator()
	tokens = newTokenizer(conf)

	// set up server
	app = NewServer(ServerDeps{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		DisableReqLogs:  true,
		UserSvc:         usrSvc,
		Resetter:        user.NewResetter(conf, usrSvc, mailSvc, validate),
		Resolver:        resolver,
		Gates:           gates,
		SubscriptionSvc: subSvc,
		BookingSvc:      bookingSvc,
		AttendanceSvc:   attendanceSvc,
		Recorder:        recorder,
		Notifier:        activity.NewNotifier(mailSvc, recorder, conf.AdminEmails, logger),
	})

	os.Exit(m.Run())
}

// resetDB empties the store and the sent mails.
func resetDB() {
	db.Reset()
	mailSvc.Reset()
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
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	if method == "" {
		method = http.MethodGet
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// do serves tt and returns the response.
func do(tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	app.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := tokens.login(usr)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	t.Helper()
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal(%s): %v", rec.Body.String(), err)
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

func checkCode(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, wantCode, rec.Body.String())
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	checkCode(t, tt, rec)
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func TestServer_home(t *testing.T) {
	req, rec := newRequest(http.MethodGet, "/")
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("home code = %v; want %v", rec.Code, http.StatusOK)
	}
	if got, want := rec.Body.String(), "Welcome to Dojo API!"; got != want {
		t.Errorf("home body = %q; want %q", got, want)
	}
}
