package host

import (
	"testing"
	"time"
)

func TestNaiveScheduler(t *testing.T) {
	type spec struct {
		speed1    float32
		speed2    float32
		numFrames uint32
		expRows1  uint32
		expRows2  uint32
	}
	specs := []spec{
		{1, 2, 10, 4, 6},
		{2, 1, 10, 7, 3},
		{1, 1000, 10, 1, 9},
		{1, 1, 1, 1, 0},
		{0, 0, 4, 2, 2},
	}

	for index, s := range specs {
		w1 := makeMockWorker(s.speed1)
		w2 := makeMockWorker(s.speed2)
		workers := []Worker{w1, w2}

		sch := NaiveScheduler()
		assignment := sch.Schedule(workers, s.numFrames)

		if assignment[0] != s.expRows1 {
			t.Fatalf("[spec %d] expected worker 0 to be assigned %d frames; got %d", index, s.expRows1, assignment[0])
		}

		if assignment[1] != s.expRows2 {
			t.Fatalf("[spec %d] expected worker 1 to be assigned %d frames; got %d", index, s.expRows2, assignment[1])
		}
	}
}

func TestPerfectScheduler(t *testing.T) {
	type spec struct {
		numFrames uint32
		bTime1    time.Duration
		bTime2    time.Duration
		expRows1  uint32
		expRows2  uint32
	}
	specs := []spec{
		// First call always behaves like the naive scheduler
		{10, time.Duration(1), time.Duration(5), 5, 5},
		// Second call should use the batch times to assign frames
		{10, time.Duration(1), time.Duration(5), 9, 1},
		// This time worker 2 performed much better
		{10, time.Duration(5), time.Duration(1), 7, 3},
	}

	// Workers have same speed
	w1 := makeMockWorker(1)
	w2 := makeMockWorker(1)
	workers := []Worker{w1, w2}

	sch := PerfectScheduler()
	for index, s := range specs {
		w1.stats.BatchTime = int64(s.bTime1)
		w2.stats.BatchTime = int64(s.bTime2)

		assignment := sch.Schedule(workers, s.numFrames)

		if assignment[0] != s.expRows1 {
			t.Fatalf("[spec %d] expected worker 0 to be assigned %d frames; got %d", index, s.expRows1, assignment[0])
		}

		if assignment[1] != s.expRows2 {
			t.Fatalf("[spec %d] expected worker 1 to be assigned %d frames; got %d", index, s.expRows2, assignment[1])
		}

		w1.stats.BatchSize = assignment[0]
		w2.stats.BatchSize = assignment[1]
	}
}

type mockWorker struct {
	speed float32
	stats *Stats
}

func makeMockWorker(speed float32) *mockWorker {
	return &mockWorker{
		speed: speed,
		stats: &Stats{},
	}
}

func (mw *mockWorker) SpeedEstimate() float32 {
	return mw.speed
}

func (mw *mockWorker) Stats() *Stats {
	return mw.stats
}
