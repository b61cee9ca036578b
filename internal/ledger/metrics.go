package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	auditEventsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_events_recorded_total",
		Help: "Total audit events recorded.",
	})

	auditBlocksSealedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_blocks_sealed_total",
		Help: "Total blocks sealed.",
	})

	auditSealBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "audit_seal_batch_size",
		Help:    "Number of events sealed per non-empty block.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 11),
	})

	auditSealEmptyTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_seal_empty_total",
		Help: "Seal invocations that found nothing to seal.",
	})

	auditVerifyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_verify_total",
		Help: "Chain verifications by result.",
	}, []string{"result"})
)

func observeRecord() {
	auditEventsRecordedTotal.Inc()
}

func observeSeal(batch int) {
	if batch == 0 {
		auditSealEmptyTotal.Inc()
		return
	}
	auditBlocksSealedTotal.Inc()
	auditSealBatchSize.Observe(float64(batch))
}

func observeVerify(ok bool) {
	if ok {
		auditVerifyTotal.WithLabelValues("ok").Inc()
	} else {
		auditVerifyTotal.WithLabelValues("violation").Inc()
	}
}
