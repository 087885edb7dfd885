package bus

import (
	"testing"
	"time"

	"github.com/lsh-protocol/lshd/pkg/service"
)

func TestEffectiveTimingFillsDefaults(t *testing.T) {
	got := effectiveTiming(service.Timing{})
	if got != service.DefaultTiming() {
		t.Errorf("effectiveTiming(zero) = %+v, want defaults", got)
	}

	custom := service.Timing{WatchdogInterval: 5 * time.Second}
	got = effectiveTiming(custom)
	if got.WatchdogInterval != 5*time.Second {
		t.Errorf("WatchdogInterval = %v, want 5s", got.WatchdogInterval)
	}
	if got.ClickTimeout != service.DefaultTiming().ClickTimeout {
		t.Errorf("ClickTimeout = %v, want default", got.ClickTimeout)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("missing broker URL accepted")
	}
	if _, err := New(Config{BrokerURL: "tcp://localhost:1883"}); err == nil {
		t.Error("missing config file accepted")
	}
	if _, err := New(Config{BrokerURL: "tcp://localhost:1883", ConfigFile: "x.yaml", Encoding: "xml"}); err == nil {
		t.Error("unknown encoding accepted")
	}
}
