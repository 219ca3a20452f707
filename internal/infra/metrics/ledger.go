package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		ledgerEntriesTotal,
		ledgerTokensTotal,
		ledgerReplaysTotal,
	)
}

var (
	ledgerEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_ledger_entries_total",
			Help: "Appended ledger entries by type.",
		},
		[]string{"type"},
	)

	ledgerTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_ledger_tokens_total",
			Help: "Absolute token volume moved through the ledger, by direction.",
		},
		[]string{"direction"},
	)

	ledgerReplaysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "token_ledger_replays_suppressed_total",
			Help: "Credits suppressed by the related-payment dedup guard.",
		},
	)
)

func ObserveLedgerEntry(typ string, amount int64) {
	ledgerEntriesTotal.WithLabelValues(norm(typ)).Inc()
	if amount >= 0 {
		ledgerTokensTotal.WithLabelValues("credit").Add(float64(amount))
	} else {
		ledgerTokensTotal.WithLabelValues("debit").Add(float64(-amount))
	}
}

func IncLedgerReplay() {
	ledgerReplaysTotal.Inc()
}
