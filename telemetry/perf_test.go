package telemetry

import (
	"testing"
	"time"
)

type timedPhase struct {
	ph Phase
	d  time.Duration
}

func runTicks(pc *PerfCollector, n int, phases ...timedPhase) {
	for i := 0; i < n; i++ {
		pc.StartTick()
		for _, p := range phases {
			pc.StartPhase(p.ph)
			time.Sleep(p.d)
		}
		pc.EndTick()
	}
}

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)
	runTicks(pc, 5,
		timedPhase{PhaseFlush, 100 * time.Microsecond},
		timedPhase{PhaseMotion, 200 * time.Microsecond},
	)

	stats := pc.Stats()
	if stats.Samples != 5 {
		t.Errorf("Samples = %d, want 5", stats.Samples)
	}
	if stats.Mean <= 0 {
		t.Error("expected positive mean tick duration")
	}
	if stats.PhaseMean[PhaseFlush] <= 0 || stats.PhaseMean[PhaseMotion] <= 0 {
		t.Errorf("phase means not tracked: %v", stats.PhaseMean)
	}
	if stats.PhaseMean[PhaseCommit] != 0 {
		t.Errorf("untimed phase mean = %v, want 0", stats.PhaseMean[PhaseCommit])
	}
	if !(stats.Min <= stats.Mean && stats.Mean <= stats.Max) {
		t.Errorf("min/mean/max out of order: %v %v %v", stats.Min, stats.Mean, stats.Max)
	}
	if stats.P95 < stats.Min || stats.P95 > stats.Max {
		t.Errorf("p95 %v outside [%v, %v]", stats.P95, stats.Min, stats.Max)
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)
	runTicks(pc, 10, timedPhase{PhaseFlush, 0})

	stats := pc.Stats()
	if stats.Samples != 5 {
		t.Errorf("Samples = %d, want 5", stats.Samples)
	}
	if stats.Mean <= 0 {
		t.Error("expected positive mean tick duration after window filled")
	}
	if stats.TicksPerSecond <= 0 {
		t.Error("expected positive ticks per second")
	}
}

func TestPerfCollector_PhaseShares(t *testing.T) {
	pc := NewPerfCollector(10)
	runTicks(pc, 5,
		timedPhase{PhaseTarget, 10 * time.Microsecond},
		timedPhase{PhaseFlush, 500 * time.Microsecond},
	)

	stats := pc.Stats()
	fast, slow := stats.Share(PhaseTarget), stats.Share(PhaseFlush)
	if slow <= fast {
		t.Errorf("expected flush share (%v%%) > target share (%v%%)", slow, fast)
	}
	if total := fast + slow; total > 100.0001 {
		t.Errorf("shares sum to %v%%, want <= 100", total)
	}
	if got := stats.Share(Phase(42)); got != 0 {
		t.Errorf("Share(unknown) = %v, want 0", got)
	}
}

func TestPerfCollector_Empty(t *testing.T) {
	stats := NewPerfCollector(10).Stats()
	if stats != (PerfStats{}) {
		t.Errorf("empty collector stats = %+v, want zero", stats)
	}
}

func TestPhase_String(t *testing.T) {
	tests := []struct {
		ph   Phase
		want string
	}{
		{PhaseTarget, "target"},
		{PhaseMotion, "motion"},
		{PhaseCommit, "commit"},
		{PhaseFlush, "flush"},
		{PhaseTelemetry, "telemetry"},
		{noPhase, "unknown"},
		{numPhases, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.ph.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(tt.ph), got, tt.want)
		}
	}
}

func TestPerfStats_Row(t *testing.T) {
	var stats PerfStats
	stats.Samples = 4
	stats.Mean = 1500 * time.Microsecond
	stats.Min = time.Millisecond
	stats.P95 = 1900 * time.Microsecond
	stats.Max = 2 * time.Millisecond
	stats.PhaseShare[PhaseMotion] = 60
	stats.PhaseShare[PhaseFlush] = 30

	row := stats.Row(120)
	if row.WindowEnd != 120 || row.Samples != 4 {
		t.Errorf("WindowEnd/Samples = %d/%d, want 120/4", row.WindowEnd, row.Samples)
	}
	if row.AvgTickUS != 1500 || row.MinTickUS != 1000 || row.P95TickUS != 1900 || row.MaxTickUS != 2000 {
		t.Errorf("tick us = %d/%d/%d/%d", row.AvgTickUS, row.MinTickUS, row.P95TickUS, row.MaxTickUS)
	}
	if row.MotionPct != 60 || row.FlushPct != 30 || row.CommitPct != 0 {
		t.Errorf("phase pct motion=%v flush=%v commit=%v", row.MotionPct, row.FlushPct, row.CommitPct)
	}
}
