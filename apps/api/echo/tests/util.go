package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/capdesk/capdesk/apps/api/echo"
	"github.com/capdesk/capdesk/core"
	"github.com/capdesk/capdesk/core/defense"
	"github.com/capdesk/capdesk/core/evaluation"
	"github.com/capdesk/capdesk/core/group"
	"github.com/capdesk/capdesk/core/user"
	emailsvc "github.com/capdesk/capdesk/services/email"
	logsvc "github.com/capdesk/capdesk/services/logger"
	dummydb "github.com/capdesk/capdesk/storage/database/dummy"
)

// defenseStore widens defense.Repository with the dummy store's
// fixture seeders.
type defenseStore interface {
	defense.Repository
	SetLegacyStageStatus(st defense.LegacyStageStatus)
	SetDefaultPanel(ctx context.Context, program string, panelists []string) error
}

var (
	usrRepo  user.Repository
	grpRepo  group.Repository
	defRepo  defenseStore
	evalRepo evaluation.Repository

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

func setup(t *testing.T) Server {
	t.Helper()

	conf := &core.Config{
		Env:       "TEST",
		TestMode:  true,
		AppName:   "Capdesk",
		SecretKey: "s3cr3t-t3st-k3y",
		Server:    core.ServerConfig{JWTExpirationDelta: time.Hour},
	}

	// set up DB & repos
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed, %v", err)
	}
	usrRepo = dummydb.NewUserRepository(db)
	grpRepo = dummydb.NewGroupRepository(db)
	defRepo = dummydb.NewDefenseRepository(db)
	evalRepo = dummydb.NewEvaluationRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	gate := defense.NewGate(evalRepo, evalRepo, defRepo)
	usrSvc := user.NewService(usrRepo, conf)
	grpSvc := group.NewService(grpRepo)
	defSvc := defense.NewService(defRepo, grpRepo, gate, user.NewPanelDirectory(usrRepo), mailSvc, conf)
	evalSvc := evaluation.NewService(evalRepo, defRepo, gate)

	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// set up server
	return NewServer(
		"", /* addr */
		&Deps{
			Conf:       conf,
			Logger:     logger,
			UserSvc:    usrSvc,
			GroupSvc:   grpSvc,
			DefenseSvc: defSvc,
			EvalSvc:    evalSvc,
			Validate:   validate,
			Translator: translator,
		},
	)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
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

func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	l1, ok1 := j1.([]interface{})
	l2, ok2 := j2.([]interface{})
	if ok1 && ok2 && len(l1) == len(l2) {
		return assert.ElementsMatch(t, l1, l2), nil
	}
	return false, nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
