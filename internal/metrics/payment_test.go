package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterPaymentMetrics_Idempotent(t *testing.T) {
	RegisterPaymentMetrics()
	RegisterPaymentMetrics()

	before := testutil.ToFloat64(ChargesTotal.WithLabelValues(OutcomeCharged))
	ChargesTotal.WithLabelValues(OutcomeCharged).Inc()
	if got := testutil.ToFloat64(ChargesTotal.WithLabelValues(OutcomeCharged)); got != before+1 {
		t.Errorf("charges_total = %f, want %f", got, before+1)
	}
}
