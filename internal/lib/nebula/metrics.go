package nebula

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promActivatedStake = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "nebula",
		Name:      "validator_activated_stake_sol",
	})
	promCommission = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "nebula",
		Name:      "validator_commission_percent",
	})
	promDelinquent = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "nebula",
		Name:      "validator_delinquent",
	})
	promEpoch = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "nebula",
		Name:      "epoch",
	})
	promWalletStaked = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "nebula",
		Name:      "wallet_staked_sol",
	}, []string{"wallet"})
	promWalletAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "nebula",
		Name:      "wallet_available_sol",
	}, []string{"wallet"})
	promRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "nebula",
		Name:      "requests_total",
	}, []string{"action", "outcome"})
)
