package flow

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"

	"flowscan/internal/domain/options"
	flowsvc "flowscan/internal/services/flow"
	"flowscan/internal/workers"
	"flowscan/pkg/errors"
)

// topFlowsLogged caps how many ranked flows one iteration reports
const topFlowsLogged = 10

// ScanWorker periodically sweeps the configured ticker universe for
// institutional options flow and reports the ranked findings
type ScanWorker struct {
	*workers.BaseWorker
	service  *flowsvc.Service
	universe []string
}

// NewScanWorker creates a flow scan worker
func NewScanWorker(service *flowsvc.Service, universe []string, interval time.Duration, enabled bool) *ScanWorker {
	return &ScanWorker{
		BaseWorker: workers.NewBaseWorker("flow_scan", interval, enabled),
		service:    service,
		universe:   universe,
	}
}

// Run executes one scan over the universe
func (w *ScanWorker) Run(ctx context.Context) error {
	if len(w.universe) == 0 {
		w.Log().Debug("No universe configured, skipping iteration")
		return nil
	}

	trades, err := w.service.ScanTickers(ctx, w.universe)
	if err != nil {
		w.RecordError(err)
		return errors.Wrap(err, "flow scan")
	}
	w.RecordRun()

	if len(trades) == 0 {
		w.Log().Info("No institutional flow detected", "universe", len(w.universe))
		return nil
	}

	w.logTopFlows(trades)
	return nil
}

func (w *ScanWorker) logTopFlows(trades []*options.Trade) {
	n := len(trades)
	if n > topFlowsLogged {
		n = topFlowsLogged
	}

	for _, t := range trades[:n] {
		premium, _ := t.TotalPremium.Float64()
		w.Log().Info("Flow detected",
			"type", string(t.Classification),
			"contract", t.ContractSymbol,
			"side", string(t.OptionType),
			"size", humanize.Comma(t.Size),
			"premium", "$"+humanize.CommafWithDigits(premium, 0),
			"moneyness", string(t.Moneyness),
			"dte", t.DaysToExpiry,
			"exchange", t.ExchangeName,
		)
	}

	w.Log().Info("Flow scan summary",
		"flows", len(trades),
		"universe", len(w.universe),
	)
}
