package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/statekit-dev/statekit/pkg/registry"
)

type testComponent struct{}

func (testComponent) RequestUpdate(property string, oldValue any) {}

func newTestCollector(t *testing.T) (*registry.Registry, *Collector) {
	t.Helper()
	reg := registry.New()
	collector := Instrument(reg, WithRegistry(prometheus.NewRegistry()))
	return reg, collector
}

func TestSetCounters(t *testing.T) {
	reg, collector := newTestCollector(t)

	reg.Set("count", 1)
	reg.Set("count", 1) // skipped
	reg.Set("count", 2)

	applied := testutil.ToFloat64(collector.setsTotal.WithLabelValues("count", "applied"))
	if applied != 2 {
		t.Errorf("Expected 2 applied sets, got %v", applied)
	}
	skipped := testutil.ToFloat64(collector.setsTotal.WithLabelValues("count", "skipped"))
	if skipped != 1 {
		t.Errorf("Expected 1 skipped set, got %v", skipped)
	}
}

func TestNotificationCounters(t *testing.T) {
	reg, collector := newTestCollector(t)

	reg.AddListener("count", func(value, old any) {})
	reg.Register("count", testComponent{}, "a", "b")

	reg.Set("count", 1)

	listeners := testutil.ToFloat64(collector.notificationsTotal.WithLabelValues("count", "listener"))
	if listeners != 1 {
		t.Errorf("Expected 1 listener notification, got %v", listeners)
	}
	components := testutil.ToFloat64(collector.notificationsTotal.WithLabelValues("count", "component"))
	if components != 2 {
		t.Errorf("Expected 2 component notifications, got %v", components)
	}
}

func TestKeysGauge(t *testing.T) {
	reg, collector := newTestCollector(t)

	reg.Set("a", 1)
	reg.Set("b", 2)

	if got := testutil.ToFloat64(collector.keys); got != 2 {
		t.Errorf("Expected keys gauge 2, got %v", got)
	}
}

func TestSetDurationObserved(t *testing.T) {
	reg, collector := newTestCollector(t)

	reg.Set("count", 1)

	count := testutil.CollectAndCount(collector.setDuration)
	if count != 1 {
		t.Errorf("Expected 1 duration series, got %d", count)
	}
}

func TestCustomNamespace(t *testing.T) {
	promReg := prometheus.NewRegistry()
	reg := registry.New()
	Instrument(reg, WithRegistry(promReg), WithNamespace("myapp"), WithSubsystem("state"))

	reg.Set("count", 1)

	families, err := promReg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "myapp_state_sets_total" {
			found = true
		}
	}
	if !found {
		t.Error("Expected metric myapp_state_sets_total to be registered")
	}
}
