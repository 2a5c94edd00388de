package collector

import (
	"errors"
	"testing"
	"time"
)

// fakeSource returns scripted enumeration results, one per call.
type fakeSource struct {
	results [][]ProcInfo
	errs    []error
	calls   int
}

func (f *fakeSource) Processes() ([]ProcInfo, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.results) {
		return nil, nil
	}
	return f.results[i], nil
}

// newTestSampler wires a sampler to a fake clock that advances one
// second per Sample call.
func newTestSampler(src ProcessSource, cores int) *ProcessSampler {
	s := NewProcessSampler(src, cores)
	t0 := time.Unix(1000, 0)
	tick := -1
	s.now = func() time.Time {
		tick++
		return t0.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func TestSample_CPUPercentFromBaselinePair(t *testing.T) {
	// coreCount=4, cumulative 10.000s -> 10.400s over 1s wall time:
	// 100 * 0.4 / (1 * 4) = 10.0
	src := &fakeSource{results: [][]ProcInfo{
		{{PID: 1, Name: "worker", CPUTime: 10 * time.Second, RSS: 100 * 1024 * 1024}},
		{{PID: 1, Name: "worker", CPUTime: 10*time.Second + 400*time.Millisecond, RSS: 100 * 1024 * 1024}},
	}}
	s := newTestSampler(src, 4)

	first := s.Sample(5)
	if len(first) != 1 || first[0].CPUPercent != 0 {
		t.Fatalf("first tick = %+v, want single entry with zero cpu", first)
	}

	second := s.Sample(5)
	if len(second) != 1 {
		t.Fatalf("second tick len = %d, want 1", len(second))
	}
	if got := second[0].CPUPercent; got < 9.999 || got > 10.001 {
		t.Fatalf("CPUPercent = %v, want 10.0", got)
	}
}

func TestSample_NegativeDeltaClampsToZero(t *testing.T) {
	// Counter going backwards (timing skew) must never yield a
	// negative percentage.
	src := &fakeSource{results: [][]ProcInfo{
		{{PID: 1, Name: "a", CPUTime: 10 * time.Second}},
		{{PID: 1, Name: "a", CPUTime: 10*time.Second - 5*time.Millisecond}},
	}}
	s := newTestSampler(src, 2)

	s.Sample(5)
	got := s.Sample(5)
	if got[0].CPUPercent != 0 {
		t.Fatalf("CPUPercent = %v, want clamped 0", got[0].CPUPercent)
	}
}

func TestSample_FirstObservationIsZeroRegardlessOfMemory(t *testing.T) {
	src := &fakeSource{results: [][]ProcInfo{
		{{PID: 7, Name: "big", CPUTime: 99 * time.Second, RSS: 8 << 30}},
	}}
	s := newTestSampler(src, 4)

	got := s.Sample(5)
	if len(got) != 1 || got[0].CPUPercent != 0 {
		t.Fatalf("first observation = %+v, want zero cpu", got)
	}
	if got[0].ResidentMB != 8*1024 {
		t.Fatalf("ResidentMB = %d, want %d", got[0].ResidentMB, 8*1024)
	}
}

func TestSample_RankingSwitchIsWholeTick(t *testing.T) {
	t.Run("all zero cpu ranks by memory", func(t *testing.T) {
		src := &fakeSource{results: [][]ProcInfo{
			{
				{PID: 1, Name: "small", CPUTime: 0, RSS: 50 * 1024 * 1024},
				{PID: 2, Name: "large", CPUTime: 0, RSS: 120 * 1024 * 1024},
			},
		}}
		s := newTestSampler(src, 1)

		got := s.Sample(1)
		if len(got) != 1 || got[0].Name != "large" {
			t.Fatalf("top-1 = %+v, want the 120MB entry", got)
		}
	})

	t.Run("any nonzero cpu ranks by cpu", func(t *testing.T) {
		src := &fakeSource{results: [][]ProcInfo{
			{
				{PID: 1, Name: "busy", CPUTime: 0, RSS: 50 * 1024 * 1024},
				{PID: 2, Name: "idle-hog", CPUTime: 0, RSS: 500 * 1024 * 1024},
			},
			{
				{PID: 1, Name: "busy", CPUTime: 50 * time.Millisecond, RSS: 50 * 1024 * 1024},
				{PID: 2, Name: "idle-hog", CPUTime: 0, RSS: 500 * 1024 * 1024},
			},
		}}
		s := newTestSampler(src, 1)

		s.Sample(1)
		got := s.Sample(1)
		if len(got) != 1 || got[0].Name != "busy" {
			t.Fatalf("top-1 = %+v, want the nonzero-cpu entry", got)
		}
	})
}

func TestSample_EvictsExitedProcesses(t *testing.T) {
	src := &fakeSource{results: [][]ProcInfo{
		{
			{PID: 1, Name: "stays", CPUTime: time.Second},
			{PID: 2, Name: "exits", CPUTime: time.Second},
		},
		{
			{PID: 1, Name: "stays", CPUTime: 2 * time.Second},
		},
		{
			{PID: 1, Name: "stays", CPUTime: 3 * time.Second},
			{PID: 2, Name: "exits", CPUTime: 10 * time.Second},
		},
	}}
	s := newTestSampler(src, 1)

	s.Sample(10)
	got := s.Sample(10)
	if len(got) != 1 || got[0].PID != 1 {
		t.Fatalf("tick 2 = %+v, want only pid 1", got)
	}
	if _, ok := s.baselines[2]; ok {
		t.Fatal("baseline for exited pid 2 not evicted")
	}

	// Pid 2 reappearing is a first observation again: its old counter
	// must not be used as a baseline.
	got = s.Sample(10)
	for _, m := range got {
		if m.PID == 2 && m.CPUPercent != 0 {
			t.Fatalf("reappeared pid 2 CPUPercent = %v, want 0", m.CPUPercent)
		}
	}
}

func TestSample_EnumerationFailureYieldsSentinel(t *testing.T) {
	src := &fakeSource{errs: []error{errors.New("proc unavailable")}}
	s := newTestSampler(src, 4)

	got := s.Sample(3)
	if len(got) != 1 || !got[0].Err {
		t.Fatalf("Sample() = %+v, want single sentinel error entry", got)
	}
	if s.ProcessCount() != 0 {
		t.Fatalf("ProcessCount() = %d, want 0 after enumeration failure", s.ProcessCount())
	}
}

func TestSample_TruncatesToTopN(t *testing.T) {
	src := &fakeSource{results: [][]ProcInfo{
		{
			{PID: 1, Name: "a", RSS: 1 * 1024 * 1024},
			{PID: 2, Name: "b", RSS: 3 * 1024 * 1024},
			{PID: 3, Name: "c", RSS: 2 * 1024 * 1024},
		},
	}}
	s := newTestSampler(src, 1)

	got := s.Sample(2)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "b" || got[1].Name != "c" {
		t.Fatalf("order = [%s %s], want [b c]", got[0].Name, got[1].Name)
	}
	if s.ProcessCount() != 3 {
		t.Fatalf("ProcessCount() = %d, want 3 (count precedes truncation)", s.ProcessCount())
	}
}

func TestSample_BaselineTimestampsAdvance(t *testing.T) {
	src := &fakeSource{results: [][]ProcInfo{
		{{PID: 1, Name: "a", CPUTime: time.Second}},
		{{PID: 1, Name: "a", CPUTime: 2 * time.Second}},
	}}
	s := newTestSampler(src, 1)

	s.Sample(5)
	t1 := s.baselines[1].observedAt
	s.Sample(5)
	t2 := s.baselines[1].observedAt
	if !t2.After(t1) {
		t.Fatalf("baseline observedAt did not advance: %v -> %v", t1, t2)
	}
}
