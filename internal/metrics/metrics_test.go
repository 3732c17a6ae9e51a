package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return string(body)
}

func TestRecordRequest(t *testing.T) {
	m := New()
	m.RecordRequest("READ", "STATUS_SUCCESS", 0.01)
	m.RecordRequest("READ", "STATUS_SUCCESS", 0.02)
	m.RecordRequest("CREATE", "STATUS_ACCESS_DENIED", 0.01)
	m.RecordBytes("read", 4096)
	m.RecordBytes("write", 0)

	out := scrape(t, m)
	assert.Contains(t, out, `smbclient_requests_total{command="READ",status="STATUS_SUCCESS"} 2`)
	assert.Contains(t, out, `smbclient_requests_total{command="CREATE",status="STATUS_ACCESS_DENIED"} 1`)
	assert.Contains(t, out, `smbclient_request_duration_seconds_count{command="READ"} 2`)
	assert.Contains(t, out, `smbclient_bytes_total{direction="read"} 4096`)
	assert.NotContains(t, out, `direction="write"`)
}

func TestSessionGauge(t *testing.T) {
	m := New()
	m.RecordSessionSetup("ntlm", true)
	m.RecordSessionSetup("kerberos", false)
	m.RecordSessionSetup("ntlm", true)
	m.SessionClosed()

	out := scrape(t, m)
	assert.Contains(t, out, "smbclient_sessions_active 1")
	assert.Contains(t, out, `smbclient_session_setups_total{mechanism="kerberos",result="failure"} 1`)
	assert.Contains(t, out, `smbclient_session_setups_total{mechanism="ntlm",result="success"} 2`)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("READ", "STATUS_SUCCESS", 1)
		m.RecordBytes("read", 1)
		m.RecordSessionSetup("ntlm", true)
		m.SessionClosed()
	})
}

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}
