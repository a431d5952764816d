package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistration(t *testing.T) {
	// promauto registers against the global registry at init; incrementing and
	// reading back each vec proves the collectors were built with valid opts.

	t.Run("RedisOperationsTotal", func(t *testing.T) {
		RedisOperationsTotal.WithLabelValues("publish", "ok").Inc()
		val := testutil.ToFloat64(RedisOperationsTotal.WithLabelValues("publish", "ok"))
		if val < 1 {
			t.Errorf("Expected RedisOperationsTotal to be at least 1, got %v", val)
		}
	})

	t.Run("RedisOperationDuration", func(t *testing.T) {
		// Histograms have no simple value accessor; observing without panic is the goal.
		RedisOperationDuration.WithLabelValues("publish").Observe(0.1)
	})

	t.Run("EventsDispatched", func(t *testing.T) {
		EventsDispatched.WithLabelValues("chat", "ok").Inc()
		val := testutil.ToFloat64(EventsDispatched.WithLabelValues("chat", "ok"))
		if val < 1 {
			t.Errorf("Expected EventsDispatched to be at least 1, got %v", val)
		}
	})

	t.Run("SessionGauge", func(t *testing.T) {
		before := testutil.ToFloat64(ActiveChatSessions)
		IncSession()
		if got := testutil.ToFloat64(ActiveChatSessions); got != before+1 {
			t.Errorf("Expected gauge %v after IncSession, got %v", before+1, got)
		}
		DecSession()
		if got := testutil.ToFloat64(ActiveChatSessions); got != before {
			t.Errorf("Expected gauge %v after DecSession, got %v", before, got)
		}
	})
}
