package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wondertwin-ai/apiprobe/internal/harness"
)

func TestObserve(t *testing.T) {
	r := New()
	r.Observe(harness.Result{Suite: "auth", Success: true, Method: "POST", Duration: 20 * time.Millisecond})
	r.Observe(harness.Result{Suite: "auth", Success: false, Method: "GET", Duration: 5 * time.Millisecond})
	r.Observe(harness.Result{Suite: "chat", Success: true})
	r.Observe(harness.Result{Suite: "chat", Success: true})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.checks.WithLabelValues("auth", "pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.checks.WithLabelValues("auth", "fail")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.checks.WithLabelValues("chat", "pass")))
	assert.Equal(t, 0.75, testutil.ToFloat64(r.ratio))
	assert.Equal(t, 2, testutil.CollectAndCount(r.duration), "field checks carry no request latency")
}

func TestPush(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		data, _ := io.ReadAll(req.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	r.Observe(harness.Result{Suite: "kyc", Success: true})
	require.NoError(t, r.Push(context.Background(), srv.URL, "apiprobe"))

	assert.Equal(t, "/metrics/job/apiprobe", gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New().Push(context.Background(), srv.URL, "apiprobe")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "pushing metrics"))
}
