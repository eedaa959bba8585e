package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterExposesNamespacedCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	MonitorExitsTotal.WithLabelValues("deleted").Inc()
	DispatchErrorsTotal.WithLabelValues("sink").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		if !strings.HasPrefix(f.GetName(), "hlswatch_") {
			t.Fatalf("expected hlswatch_ prefix, got %s", f.GetName())
		}
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"hlswatch_monitors_running",
		"hlswatch_monitor_exits_total",
		"hlswatch_dispatch_errors_total",
		"hlswatch_dispatch_queue_depth",
	} {
		if !names[want] {
			t.Fatalf("expected %s to be registered", want)
		}
	}
}

func TestRegisterTwiceOnSameRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	defer func() {
		if recover() == nil {
			t.Fatal("expected duplicate registration to panic")
		}
	}()
	Register(reg)
}
