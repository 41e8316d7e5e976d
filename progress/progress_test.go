package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type logLine struct {
	msg     string
	keyvals []any
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *recordingLogger) Debug(ctx context.Context, msg string, keyvals ...any) {}

func (l *recordingLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{msg: msg, keyvals: keyvals})
}

func (l *recordingLogger) Error(ctx context.Context, msg string, keyvals ...any) {}

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

func TestNew_DefaultInterval(t *testing.T) {
	tracker := New(Config{})

	assert.Equal(t, 10*time.Second, tracker.config.Interval)
}

func TestTracker_Counters(t *testing.T) {
	tracker := New(Config{})

	tracker.AddScanned(500)
	tracker.AddCommitted(500)
	tracker.AddScanned(20)
	tracker.AddFailed(20)

	snap := tracker.Snapshot()
	assert.Equal(t, int64(520), snap.Scanned)
	assert.Equal(t, int64(500), snap.Updated)
	assert.Equal(t, int64(20), snap.Failed)
	assert.Equal(t, int64(1), snap.Batches)
	assert.GreaterOrEqual(t, snap.Elapsed, time.Duration(0))
}

func TestRun_LogsAtConfiguredInterval(t *testing.T) {
	logger := &recordingLogger{}
	tracker := New(Config{
		Logger:     logger,
		Interval:   50 * time.Millisecond,
		RunID:      "run-1",
		Collection: "vehicles",
	})
	tracker.AddScanned(3)

	ctx, cancel := context.WithTimeout(context.Background(), 175*time.Millisecond)
	defer cancel()

	tracker.Run(ctx)

	count := logger.count()
	assert.GreaterOrEqual(t, count, 2, "expected at least 2 progress lines in 175ms with 50ms interval")
	assert.LessOrEqual(t, count, 4, "expected at most 4 progress lines in 175ms with 50ms interval")

	line := logger.lines[0]
	assert.Equal(t, "migration progress", line.msg)
	assert.Contains(t, line.keyvals, "run-1")
	assert.Contains(t, line.keyvals, "vehicles")
	assert.Contains(t, line.keyvals, int64(3))
}

func TestRun_WithoutLoggerStopsOnCancel(t *testing.T) {
	tracker := New(Config{Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		tracker.Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestStart_StopWaitsForGoroutine(t *testing.T) {
	logger := &recordingLogger{}
	tracker := New(Config{Logger: logger, Interval: 10 * time.Millisecond})

	stop := tracker.Start(context.Background())
	time.Sleep(35 * time.Millisecond)
	stop()

	after := logger.count()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, logger.count(), "no progress lines after stop returns")
}
