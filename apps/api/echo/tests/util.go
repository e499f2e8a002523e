package tests

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/colegio/apps/api/echo"
	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/document"
	"github.com/trezcool/colegio/core/quota"
	"github.com/trezcool/colegio/core/task"
	"github.com/trezcool/colegio/core/user"
	appfs "github.com/trezcool/colegio/fs"
	"github.com/trezcool/colegio/services/email"
	"github.com/trezcool/colegio/storage/database/sqlxrepos"
	"github.com/trezcool/colegio/storage/objectstore/memstore"
	"github.com/trezcool/colegio/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type env struct {
	conf     *core.Config
	app      *Server
	usrRepo  user.Repository
	store    *memstore.Store
	mailSvc  *emailsvc.ConsoleServiceMock
	logger   *testutil.Logger
	quotaSvc *quota.Service
	docSvc   *document.Service
	taskSvc  *task.Service
	registry *prometheus.Registry
}

func setup(t *testing.T) *env {
	conf := &core.Config{
		AppName:         "Colegio",
		SecretKey:       "test-secret",
		TestMode:        true,
		FrontendBaseURL: "http://front.test",
		Server: core.ServerConfig{
			DisableReqLogs:     true,
			JWTExpirationDelta: time.Hour,
		},
	}

	// set up DB & repos
	db := testutil.PrepareDB(t)
	e := &env{
		conf:     conf,
		usrRepo:  sqlxrepos.NewUserRepository(db),
		store:    memstore.New(core.DocumentsBucket, "http://storage.test"),
		logger:   new(testutil.Logger),
		registry: prometheus.NewRegistry(),
	}

	// set up services
	validate := testutil.NewValidator()
	renderer := core.NewTemplateRenderer(appfs.EmailTemplates(), conf.FrontendBaseURL, true)
	e.mailSvc = emailsvc.NewConsoleServiceMock(conf, renderer, e.logger)
	usrSvc := user.NewService(e.usrRepo, validate)
	e.quotaSvc = quota.NewService(sqlxrepos.NewQuotaRepository(db), e.logger, validate, testutil.QuotaConfig())
	e.docSvc = document.NewService(sqlxrepos.NewDocumentRepository(db), usrSvc, e.quotaSvc, e.store, e.logger, validate)
	e.taskSvc = task.NewService(db, sqlxrepos.NewTaskRepository(db), usrSvc, e.quotaSvc, e.store, e.mailSvc, e.logger, validate)

	// set up server
	e.app = NewServer(
		ServerDeps{
			Conf:        conf,
			Logger:      e.logger,
			DocumentSvc: e.docSvc,
			QuotaSvc:    e.quotaSvc,
			TaskSvc:     e.taskSvc,
			Validate:    validate,
			Translator:  core.NewTranslator(),
			Registry:    e.registry,
		},
	)
	return e
}

func (e *env) getToken(t *testing.T, usr user.User) string {
	token, err := GenerateToken(GetUserClaims(usr, e.conf), e.conf.SecretKey)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func (e *env) do(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	e.app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type kindErr struct {
	Error string         `json:"error"`
	Kind  core.ErrorKind `json:"kind"`
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

type upload struct {
	name        string
	contentType string
	content     []byte
}

// newMultipartRequest builds a multipart/form-data request carrying fields and an optional "file".
func newMultipartRequest(
	t *testing.T,
	method, path, token string,
	fields map[string][]string,
	file *upload,
) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for key, values := range fields {
		for _, v := range values {
			if err := w.WriteField(key, v); err != nil {
				t.Fatalf("WriteField() failed: %v", err)
			}
		}
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+file.name+`"`)
		h.Set("Content-Type", file.contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart() failed: %v", err)
		}
		_, _ = part.Write(file.content)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("multipart.Close() failed: %v", err)
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; body %s", err, rec.Body.String())
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
		assert.JSONEq(t, string(tt.wantData), rec.Body.String())
	}
}

func runHTTPTests(t *testing.T, e *env, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, e.do(req, rec))
		})
	}
}
