package observability

import (
	"errors"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/uber-go/tally"
)

// Push starts a goroutine that periodically exports every metric family in
// the registry to a tally.Scope, in the same shape as the teacher's
// internal/pally pusher: a ticker loop with a final export on Stop, guarded
// so a Registry can only ever push to one Scope at a time.
func (r *Registry) Push(scope tally.Scope, tick time.Duration) (stop func(), err error) {
	r.mu.Lock()
	if r.pusherStop != nil {
		r.mu.Unlock()
		return nil, errors.New("observability: registry is already pushing to a tally scope")
	}
	stopCh := make(chan struct{})
	stoppedCh := make(chan struct{})
	r.pusherStop = stopCh
	r.mu.Unlock()

	go r.runPusher(scope, tick, stopCh, stoppedCh)

	return func() {
		close(stopCh)
		<-stoppedCh
	}, nil
}

func (r *Registry) runPusher(scope tally.Scope, tick time.Duration, stop, stopped chan struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	defer r.pushOnce(scope)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.pushOnce(scope)
		}
	}
}

func (r *Registry) pushOnce(scope tally.Scope) {
	families, err := r.prom.Gather()
	if err != nil {
		return
	}
	for _, mf := range families {
		name := mf.GetName()
		for _, m := range mf.Metric {
			labeled := scope.Tagged(labelsOf(m))
			switch mf.GetType().String() {
			case "COUNTER":
				labeled.Counter(name).Inc(int64(m.GetCounter().GetValue()))
			case "GAUGE":
				labeled.Gauge(name).Update(m.GetGauge().GetValue())
			case "HISTOGRAM":
				h := labeled.Histogram(name, tally.DefaultBuckets)
				h.RecordValue(m.GetHistogram().GetSampleSum())
			}
		}
	}
}

func labelsOf(m *dto.Metric) map[string]string {
	if len(m.Label) == 0 {
		return nil
	}
	out := make(map[string]string, len(m.Label))
	for _, l := range m.Label {
		out[l.GetName()] = l.GetValue()
	}
	return out
}
