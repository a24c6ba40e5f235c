package supervisor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentboard/agentboard/internal/common/config"
	"github.com/agentboard/agentboard/internal/common/logger"
	"github.com/agentboard/agentboard/internal/run/agentcli"
	"github.com/agentboard/agentboard/internal/run/progress"
	"github.com/agentboard/agentboard/internal/run/registry"
	v1 "github.com/agentboard/agentboard/pkg/api/v1"
)

// fakeAgent builds a Supervisor whose "agent" is a shell script. The
// script must drain stdin first: the prompt is delivered there and the
// write fails if the child never reads it.
func fakeAgent(t *testing.T, script string) (*Supervisor, *progress.Store, *registry.Registry) {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)

	cli := agentcli.New(config.AgentConfig{
		Binary:       "sh",
		Args:         []string{"-c", script},
		ProbeTimeout: 5,
	})
	store := progress.NewStore(log)
	reg := registry.NewRegistry(log)
	return New(cli, store, reg, log), store, reg
}

func TestSupervisor_SuccessfulRun(t *testing.T) {
	script := `cat > /dev/null; echo '{"type":"result","is_error":false,"total_cost_usd":0.02,"usage":{"input_tokens":100,"output_tokens":50}}'`
	sup, store, reg := fakeAgent(t, script)
	instance := t.TempDir()

	var lines []string
	report, err := sup.Run(context.Background(), Request{
		TicketID:       "ticket-1",
		InstancePath:   instance,
		WorkDir:        t.TempDir(),
		Title:          "test task",
		Requirements:   "do the thing",
		OnProgressLine: func(line string) { lines = append(lines, line) },
	})
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.True(t, report.Success)
	assert.Equal(t, 0.02, report.TotalCostUSD)
	assert.Equal(t, int64(100), report.Usage.InputTokens)
	assert.Equal(t, int64(50), report.Usage.OutputTokens)
	assert.Equal(t, "unknown", report.Model)

	snap, err := store.Read(instance)
	require.NoError(t, err)
	assert.Equal(t, v1.RunStatusCompleted, snap.Status)

	persisted, err := store.ReadReport(instance)
	require.NoError(t, err)
	assert.Equal(t, report, persisted)

	assert.NotEmpty(t, lines, "result event produces a completion line")
	assert.False(t, reg.IsActive("ticket-1"), "deregistered on exit")
}

func TestSupervisor_NonZeroExitFails(t *testing.T) {
	script := `cat > /dev/null; echo oops >&2; exit 3`
	sup, store, reg := fakeAgent(t, script)
	instance := t.TempDir()

	report, err := sup.Run(context.Background(), Request{
		TicketID:     "ticket-2",
		InstancePath: instance,
		WorkDir:      t.TempDir(),
		Title:        "failing task",
		Requirements: "break",
	})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.Contains(t, err.Error(), "exited with code 3")

	snap, readErr := store.Read(instance)
	require.NoError(t, readErr)
	assert.Equal(t, v1.RunStatusFailed, snap.Status)
	assert.Equal(t, "Error", snap.Phase)

	persisted, readErr := store.ReadReport(instance)
	require.NoError(t, readErr)
	assert.Nil(t, persisted, "no report on failure")
	assert.False(t, reg.IsActive("ticket-2"))
}

func TestSupervisor_ExitWithoutResultFails(t *testing.T) {
	script := `cat > /dev/null; echo plain text output`
	sup, store, _ := fakeAgent(t, script)
	instance := t.TempDir()

	_, err := sup.Run(context.Background(), Request{
		TicketID:     "ticket-3",
		InstancePath: instance,
		WorkDir:      t.TempDir(),
		Title:        "silent task",
		Requirements: "say nothing structured",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a result event")

	// The unparseable stdout line was still forwarded as raw text.
	snap, readErr := store.Read(instance)
	require.NoError(t, readErr)
	assert.Contains(t, snap.Log, "plain text output")
}

func TestSupervisor_ProgressLinesInOrder(t *testing.T) {
	script := `cat > /dev/null
echo '{"type":"system","subtype":"init","model":"claude-sonnet-4"}'
echo '{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","name":"Edit","input":{"file_path":"/tmp/main.go"}}]}}'
echo '{"type":"result","is_error":false}'`
	sup, _, _ := fakeAgent(t, script)

	var lines []string
	_, err := sup.Run(context.Background(), Request{
		TicketID:       "ticket-4",
		InstancePath:   t.TempDir(),
		WorkDir:        t.TempDir(),
		Title:          "ordered",
		Requirements:   "stream",
		OnProgressLine: func(line string) { lines = append(lines, line) },
	})
	require.NoError(t, err)

	require.Len(t, lines, 3)
	assert.Equal(t, "Session started (model: claude-sonnet-4)", lines[0])
	assert.Equal(t, "Editing main.go", lines[1])
	assert.Equal(t, "Completed", lines[2])
}

func TestSupervisor_Cancellation(t *testing.T) {
	script := `cat > /dev/null; sleep 30`
	sup, store, reg := fakeAgent(t, script)
	instance := t.TempDir()

	done := make(chan error, 1)
	go func() {
		_, err := sup.Run(context.Background(), Request{
			TicketID:     "ticket-5",
			InstancePath: instance,
			WorkDir:      t.TempDir(),
			Title:        "long task",
			Requirements: "sleep",
		})
		done <- err
	}()

	require.Eventually(t, func() bool {
		return reg.IsActive("ticket-5")
	}, 5*time.Second, 10*time.Millisecond, "run never registered")

	require.True(t, reg.Cancel("ticket-5"))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cancelled")
	case <-time.After(10 * time.Second):
		t.Fatal("run did not terminate after cancellation")
	}

	snap, err := store.Read(instance)
	require.NoError(t, err)
	assert.Equal(t, v1.RunStatusFailed, snap.Status)
}

func TestSupervisor_InterleavedStreamsKeepEveryLine(t *testing.T) {
	script := `cat > /dev/null
i=0
while [ $i -lt 20 ]; do
  echo '{"type":"assistant","message":{"content":[{"type":"text","text":"out '$i';"}]}}'
  echo "err $i;" >&2
  sleep 0.01
  i=$((i+1))
done
echo '{"type":"result","is_error":false}'`
	sup, store, _ := fakeAgent(t, script)
	instance := t.TempDir()

	var mu sync.Mutex
	var lines []string
	_, err := sup.Run(context.Background(), Request{
		TicketID:     "ticket-7",
		InstancePath: instance,
		WorkDir:      t.TempDir(),
		Title:        "noisy task",
		Requirements: "interleave output",
		OnProgressLine: func(line string) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	snap, err := store.Read(instance)
	require.NoError(t, err)
	logText := strings.Join(snap.Log, "\n")
	mu.Lock()
	callbackText := strings.Join(lines, "\n")
	mu.Unlock()

	for i := 0; i < 20; i++ {
		out := fmt.Sprintf("out %d;", i)
		errLine := fmt.Sprintf("err %d;", i)
		assert.Contains(t, logText, out, "stdout line survived in the snapshot")
		assert.Contains(t, logText, errLine, "stderr line survived in the snapshot")
		assert.Contains(t, callbackText, out)
		assert.Contains(t, callbackText, errLine)
	}
}

func TestSupervisor_CancellationEscalatesToKill(t *testing.T) {
	// The script ignores SIGTERM, and its children inherit the ignored
	// disposition, so only the escalation kill can end the group.
	script := `trap '' TERM; cat > /dev/null; while :; do sleep 1; done`
	sup, store, reg := fakeAgent(t, script)
	sup.killGrace = 200 * time.Millisecond
	instance := t.TempDir()

	done := make(chan error, 1)
	go func() {
		_, err := sup.Run(context.Background(), Request{
			TicketID:     "ticket-8",
			InstancePath: instance,
			WorkDir:      t.TempDir(),
			Title:        "stubborn task",
			Requirements: "ignore signals",
		})
		done <- err
	}()

	require.Eventually(t, func() bool {
		return reg.IsActive("ticket-8")
	}, 5*time.Second, 10*time.Millisecond, "run never registered")

	require.True(t, reg.Cancel("ticket-8"))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cancelled")
	case <-time.After(10 * time.Second):
		t.Fatal("run not killed after the grace period")
	}

	snap, err := store.Read(instance)
	require.NoError(t, err)
	assert.Equal(t, v1.RunStatusFailed, snap.Status)
}

func TestSupervisor_FollowUpRequiresChangeRequest(t *testing.T) {
	sup, _, _ := fakeAgent(t, `cat > /dev/null`)

	_, err := sup.RunFollowUp(context.Background(), Request{
		TicketID:     "ticket-6",
		InstancePath: t.TempDir(),
		WorkDir:      t.TempDir(),
		Title:        "follow up",
		Requirements: "reqs",
	})
	require.Error(t, err)
}
