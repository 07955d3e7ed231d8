package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockSweeper struct {
	mock.Mock
}

func (m *MockSweeper) FailStale(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestWorker_StartStop(t *testing.T) {
	sweeper := new(MockSweeper)
	sweeper.On("FailStale", mock.Anything).Return(2, nil)

	worker := NewWorker(sweeper, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(180 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	sweeper.AssertCalled(t, "FailStale", mock.Anything)
}

func TestWorker_ContextCancellation(t *testing.T) {
	sweeper := new(MockSweeper)
	sweeper.On("FailStale", mock.Anything).Return(0, nil)

	worker := NewWorker(sweeper, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(130 * time.Millisecond)

	cancel()
	wg.Wait()

	sweeper.AssertCalled(t, "FailStale", mock.Anything)
}

func TestWorker_KeepsRunningAfterSweepError(t *testing.T) {
	sweeper := new(MockSweeper)
	sweeper.On("FailStale", mock.Anything).Return(0, errors.New("db down"))

	worker := NewWorker(sweeper, 30*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Start(ctx)
	time.Sleep(150 * time.Millisecond)
	worker.Stop()

	if calls := len(sweeper.Calls); calls < 2 {
		t.Fatalf("expected repeated sweeps after an error, got %d", calls)
	}
}
