package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingService struct {
	name   string
	starts atomic.Int32
	failN  int32
}

func (s *countingService) Serve(ctx context.Context) error {
	n := s.starts.Add(1)
	if n <= s.failN {
		return errors.New("boom")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *countingService) String() string { return s.name }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTreeRunsEveryLayer(t *testing.T) {
	tree := NewTree(quietLogger(), TreeConfig{FailureBackoff: 10 * time.Millisecond, ShutdownTimeout: time.Second})

	hub := &countingService{name: "hub"}
	cleanup := &countingService{name: "cleanup"}
	api := &countingService{name: "api"}
	tree.AddMessagingService(hub)
	tree.AddMaintenanceService(cleanup)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	done := tree.ServeBackground(ctx)

	require.Eventually(t, func() bool {
		return hub.starts.Load() == 1 && cleanup.starts.Load() == 1 && api.starts.Load() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not stop")
	}

	report, err := tree.UnstoppedServiceReport()
	require.NoError(t, err)
	assert.Empty(t, report)
}

func TestTreeRestartsFailedService(t *testing.T) {
	tree := NewTree(quietLogger(), TreeConfig{FailureThreshold: 10, FailureBackoff: 10 * time.Millisecond, ShutdownTimeout: time.Second})

	flaky := &countingService{name: "flaky", failN: 2}
	steady := &countingService{name: "steady"}
	tree.AddMaintenanceService(flaky)
	tree.AddAPIService(steady)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := tree.ServeBackground(ctx)

	require.Eventually(t, func() bool { return flaky.starts.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), steady.starts.Load(), "failures stay inside their layer")

	cancel()
	<-done
}
