package stats

import (
	"expvar"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsUpdater(t *testing.T) {
	// expvar map names are global to the process, so a single updater is
	// shared across the subtests.
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	require.NotNil(t, su, "expected StatsUpdater to be non-nil")
	require.NotNil(t, su.updateChan, "expected updateChan to be initialized")

	t.Run("registers the debug vars handler", func(t *testing.T) {
		handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
		assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
		assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")
	})

	t.Run("register metric is idempotent", func(t *testing.T) {
		su.RegisterMetric(ActiveConnections)
		metric := su.vars.Get(ActiveConnections)
		require.NotNil(t, metric)

		su.RegisterMetric(ActiveConnections)
		assert.Same(t, metric, su.vars.Get(ActiveConnections), "expected re-registration to keep the existing var")
	})

	t.Run("incr and decr update the metric", func(t *testing.T) {
		su.RegisterMetric(MessagesPersisted)
		su.Run()
		defer su.Stop()

		su.Incr(MessagesPersisted)
		su.Incr(MessagesPersisted)
		su.Decr(MessagesPersisted)

		assert.Eventually(t, func() bool {
			return su.vars.Get(MessagesPersisted).(*expvar.Int).Value() == 1
		}, time.Second, 10*time.Millisecond)
	})
}
