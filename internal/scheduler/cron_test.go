package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingChecker struct {
	calls atomic.Int32
}

func (c *countingChecker) Check(context.Context) Response {
	c.calls.Add(1)
	return Response{Success: true}
}

func TestNewTriggerRejectsBadSpec(t *testing.T) {
	t.Parallel()

	_, err := NewTrigger("every day please", &countingChecker{}, zap.NewNop())
	require.ErrorContains(t, err, "parse cron spec")
}

func TestTriggerFiresCheck(t *testing.T) {
	t.Parallel()

	checker := &countingChecker{}
	trig, err := NewTrigger("@every 1s", checker, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, trig.Start(context.Background()))
	defer trig.Stop()

	require.Eventually(t, func() bool { return checker.calls.Load() > 0 }, 5*time.Second, 50*time.Millisecond)
}
