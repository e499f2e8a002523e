package tests

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/colegio/core/quota"
	"github.com/trezcool/colegio/core/user"
	"github.com/trezcool/colegio/tests"
)

func Test_metrics(t *testing.T) {
	e := setup(t)

	admin := testutil.CreateUser(t, e.usrRepo, "Admin", "admin@test.co", []string{user.RoleSuperAdmin}, true)
	token := e.getToken(t, admin)
	limit := int64(20)
	_, err := e.quotaSvc.SetLimits(context.Background(), "inst-1", quota.Limits{DocumentsLimit: &limit})
	require.NoError(t, err)

	post := func(content string) *httptest.ResponseRecorder {
		req, rec := newMultipartRequest(t, http.MethodPost, docsPath+"?institutionId=inst-1", token,
			map[string][]string{"title": {"PEI"}, "category": {"PEI"}},
			&upload{name: "pei.pdf", contentType: "application/pdf", content: []byte(content)},
		)
		return e.do(req, rec)
	}
	require.Equal(t, http.StatusCreated, post("%PDF-1.4").Code)
	require.Equal(t, http.StatusForbidden, post("%PDF-1.4 too big").Code)

	t.Run("domain errors", func(t *testing.T) {
		expected := `
# HELP colegio_domain_errors_total Requests rejected by a domain rule, by kind (eg: quota_exceeded).
# TYPE colegio_domain_errors_total counter
colegio_domain_errors_total{kind="quota_exceeded"} 1
`
		assert.NoError(t, promtest.GatherAndCompare(e.registry, strings.NewReader(expected), "colegio_domain_errors_total"))
	})

	t.Run("uploaded bytes", func(t *testing.T) {
		expected := `
# HELP colegio_storage_uploaded_bytes_total Bytes uploaded to object storage, by quota category.
# TYPE colegio_storage_uploaded_bytes_total counter
colegio_storage_uploaded_bytes_total{category="documents"} 8
`
		assert.NoError(t, promtest.GatherAndCompare(e.registry, strings.NewReader(expected), "colegio_storage_uploaded_bytes_total"))
	})

	t.Run("scrape", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rec := e.do(req, httptest.NewRecorder())
		require.Equal(t, http.StatusOK, rec.Code)

		body := rec.Body.String()
		assert.Contains(t, body, `colegio_http_requests_total{code="201",method="POST",path="/api/institutional-documents"} 1`)
		assert.Contains(t, body, `colegio_http_requests_total{code="403",method="POST",path="/api/institutional-documents"} 1`)
		assert.Contains(t, body, `colegio_http_request_duration_seconds_count{method="POST",path="/api/institutional-documents"} 2`)
	})
}
