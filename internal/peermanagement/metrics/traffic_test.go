package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrafficCount(t *testing.T) {
	tc := NewTrafficCount()

	tc.AddIn(100)
	tc.AddOutcome(OutcomeForwarded, 100)
	tc.AddIn(50)
	tc.AddOutcome(OutcomeMutated, 60)
	tc.AddIn(10)
	tc.AddOutcome(OutcomeDropped, 0)
	tc.AddIn(20)
	tc.AddOutcome(OutcomeRejected, 0)
	tc.AddIn(40)
	tc.AddOut(40)

	s := tc.Snapshot()
	assert.Equal(t, Stats{
		Forwarded: 2,
		Mutated:   1,
		Dropped:   1,
		Rejected:  1,
		BytesIn:   220,
		BytesOut:  200,
	}, s)
	assert.Equal(t, uint64(4), s.Messages())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "forwarded", OutcomeForwarded.String())
	assert.Equal(t, "rejected", OutcomeRejected.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveMessage("0-1", "0->1", OutcomeForwarded, 10, 10)
	r.ObserveMessage("0-1", "0->1", OutcomeForwarded, 5, 5)
	r.ObserveMessage("0-1", "1->0", OutcomeDropped, 7, 0)
	r.ObserveControllerUnavailable()
	r.ObserveArbitration(time.Millisecond, nil)
	r.ObserveFaultDelay(100 * time.Millisecond)
	r.ObserveHandshake("ok")
	r.LinkUp()
	r.LinkUp()
	r.LinkDown()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.messages.WithLabelValues("0-1", "0->1", "forwarded")))
	assert.Equal(t, 15.0, testutil.ToFloat64(r.bytes.WithLabelValues("0-1", "0->1", "out")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.bytes.WithLabelValues("0-1", "1->0", "in")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.controllerFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.activeLinks))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "interceptor_messages_total"))
}

// TestRecorder_Nil tests that a nil recorder is a no-op
func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveMessage("a", "b", OutcomeForwarded, 1, 1)
		r.ObserveArbitration(time.Second, nil)
		r.ObserveControllerUnavailable()
		r.ObserveFaultDelay(time.Second)
		r.ObserveHandshake("ok")
		r.LinkUp()
		r.LinkDown()
	})
}
