// Package supervisor spawns the agent CLI as a child process, feeds it a
// task prompt over stdin, consumes its line-delimited event stream, and
// resolves to a terminal report or a failure. Stdout is the authoritative
// progress channel; stderr is captured separately for diagnostics.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentboard/agentboard/internal/common/logger"
	"github.com/agentboard/agentboard/internal/run/agentcli"
	"github.com/agentboard/agentboard/internal/run/progress"
	"github.com/agentboard/agentboard/internal/run/registry"
	v1 "github.com/agentboard/agentboard/pkg/api/v1"
	"github.com/agentboard/agentboard/pkg/claudecode"
)

// killGracePeriod is how long a cancelled process gets to exit after
// SIGTERM before the whole process group is killed.
const killGracePeriod = 10 * time.Second

// Request describes one supervised execution.
type Request struct {
	TicketID     string
	InstancePath string
	WorkDir      string
	Title        string
	Requirements string
	// ChangeRequest is set for follow-up runs only.
	ChangeRequest string
	// OnProgressLine receives every synthesized human-readable line, in
	// emission order, before the line is appended to the progress store.
	OnProgressLine func(line string)
}

// Supervisor runs agent executions one subprocess at a time per request.
type Supervisor struct {
	cli       *agentcli.CLI
	store     *progress.Store
	registry  *registry.Registry
	killGrace time.Duration
	logger    *logger.Logger
}

// New creates a supervisor.
func New(cli *agentcli.CLI, store *progress.Store, reg *registry.Registry, log *logger.Logger) *Supervisor {
	return &Supervisor{
		cli:       cli,
		store:     store,
		registry:  reg,
		killGrace: killGracePeriod,
		logger:    log.WithFields(zap.String("component", "supervisor")),
	}
}

// Run executes a fresh implementation run and blocks until the subprocess
// terminates. It never resolves successfully without a report.
func (s *Supervisor) Run(ctx context.Context, req Request) (*v1.Report, error) {
	return s.execute(ctx, req, buildPrompt(req))
}

// RunFollowUp executes a change-request run against an existing instance.
func (s *Supervisor) RunFollowUp(ctx context.Context, req Request) (*v1.Report, error) {
	if req.ChangeRequest == "" {
		return nil, errors.New("follow-up run requires a change request")
	}
	return s.execute(ctx, req, buildFollowUpPrompt(req))
}

func (s *Supervisor) execute(ctx context.Context, req Request, prompt string) (*v1.Report, error) {
	log := s.logger.WithFields(
		zap.String("ticket_id", req.TicketID),
		zap.String("instance_path", req.InstancePath))

	// exec.Command rather than CommandContext: shutdown is driven by the
	// cancellation registry, and CommandContext would SIGKILL the child
	// on context cancellation before it can exit cleanly.
	cmd := exec.Command(s.cli.Binary, s.cli.CommandArgs()...)
	cmd.Dir = req.WorkDir
	cmd.Env = s.cli.Env(nil)
	// New process group so cancellation can signal the agent and all of
	// its own children together.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, s.fail(req, fmt.Sprintf("failed to create stdin pipe: %v", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, s.fail(req, fmt.Sprintf("failed to create stdout pipe: %v", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, s.fail(req, fmt.Sprintf("failed to create stderr pipe: %v", err))
	}

	if err := cmd.Start(); err != nil {
		return nil, s.fail(req, fmt.Sprintf("failed to start agent: %v", err))
	}

	log.Info("agent process started",
		zap.Int("pid", cmd.Process.Pid),
		zap.String("work_dir", req.WorkDir))

	running := v1.RunStatusRunning
	phase := "Execution"
	if err := s.store.Update(req.InstancePath, progress.Update{Status: &running, Phase: &phase}); err != nil {
		log.Warn("failed to mark run as running", zap.Error(err))
	}

	var cancelled atomic.Bool
	waitDone := make(chan struct{})
	pid := cmd.Process.Pid
	s.registry.Register(req.TicketID, func() {
		cancelled.Store(true)
		if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
			_ = cmd.Process.Kill()
			return
		}
		go func() {
			// Escalate only while the group is still ours; once Wait has
			// returned the pid may belong to an unrelated process.
			select {
			case <-waitDone:
			case <-time.After(s.killGrace):
				_ = syscall.Kill(-pid, syscall.SIGKILL)
			}
		}()
	})
	defer s.registry.Deregister(req.TicketID)

	parser := claudecode.NewParser()
	var result *claudecode.CLIMessage

	// Both pumps funnel their synthesized lines through one emitter
	// goroutine so the progress record and the caller's callback have a
	// single writer for the whole run.
	emitted := make(chan string, 64)
	emitterDone := make(chan struct{})
	go func() {
		defer close(emitterDone)
		for line := range emitted {
			s.emit(req, line)
		}
	}()

	var g errgroup.Group
	g.Go(func() error {
		defer stdin.Close()
		_, err := io.WriteString(stdin, prompt)
		return err
	})
	g.Go(func() error {
		buf := make([]byte, 4096)
		for {
			n, readErr := stdout.Read(buf)
			if n > 0 {
				chunk := buf[:n]
				s.store.AppendDebug(req.InstancePath, "stdout", chunk)
				for _, line := range parser.Feed(chunk) {
					handleLine(line, &result, emitted)
				}
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					return nil
				}
				return readErr
			}
		}
	})
	g.Go(func() error {
		buf := make([]byte, 4096)
		for {
			n, readErr := stderr.Read(buf)
			if n > 0 {
				chunk := buf[:n]
				s.store.AppendDebug(req.InstancePath, "stderr", chunk)
				emitted <- "stderr: " + truncate(string(chunk), maxTextPreview)
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					return nil
				}
				return readErr
			}
		}
	})

	pumpErr := g.Wait()
	for _, line := range parser.Flush() {
		handleLine(line, &result, emitted)
	}
	close(emitted)
	<-emitterDone

	waitErr := cmd.Wait()
	close(waitDone)

	switch {
	case cancelled.Load():
		return nil, s.fail(req, "run cancelled by user")
	case waitErr != nil:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return nil, s.fail(req, fmt.Sprintf("agent exited with code %d", exitErr.ExitCode()))
		}
		return nil, s.fail(req, fmt.Sprintf("agent process error: %v", waitErr))
	case pumpErr != nil:
		return nil, s.fail(req, fmt.Sprintf("failed reading agent output: %v", pumpErr))
	case result == nil:
		return nil, s.fail(req, "agent exited without a result event")
	}

	report := buildReport(result)
	if err := s.store.WriteReport(req.InstancePath, report); err != nil {
		return nil, s.fail(req, fmt.Sprintf("failed to persist report: %v", err))
	}

	completed := v1.RunStatusCompleted
	donePhase := "Done"
	msg := "Run completed"
	if err := s.store.Update(req.InstancePath, progress.Update{
		Status:  &completed,
		Phase:   &donePhase,
		Message: &msg,
	}); err != nil {
		log.Warn("failed to mark run as completed", zap.Error(err))
	}

	log.Info("agent run completed",
		zap.Bool("success", report.Success),
		zap.Float64("cost_usd", report.TotalCostUSD),
		zap.Int("num_turns", report.NumTurns))
	return report, nil
}

// handleLine converts one parsed line into a progress line. Unparseable
// lines are forwarded as raw text rather than dropped.
func handleLine(line claudecode.Line, result **claudecode.CLIMessage, emitted chan<- string) {
	if line.Msg == nil {
		emitted <- truncate(line.Raw, maxTextPreview)
		return
	}
	if line.Msg.Type == claudecode.MessageTypeResult {
		*result = line.Msg
	}
	if label := labelFor(line.Msg); label != "" {
		emitted <- label
	}
}

// emit delivers a line to the caller's callback first, then appends it to
// the progress store. Order matters for strict FIFO delivery.
func (s *Supervisor) emit(req Request, line string) {
	if req.OnProgressLine != nil {
		req.OnProgressLine(line)
	}
	if err := s.store.AppendLog(req.InstancePath, line); err != nil {
		s.logger.Warn("failed to append progress line",
			zap.String("instance_path", req.InstancePath),
			zap.Error(err))
	}
}

// fail records a FAILED terminal state and returns it as an error.
func (s *Supervisor) fail(req Request, msg string) error {
	s.emit(req, msg)

	failed := v1.RunStatusFailed
	phase := "Error"
	if err := s.store.Update(req.InstancePath, progress.Update{
		Status:  &failed,
		Phase:   &phase,
		Message: &msg,
	}); err != nil {
		s.logger.Warn("failed to mark run as failed", zap.Error(err))
	}
	return errors.New(msg)
}

// buildReport constructs the terminal report from the result event.
// Missing numeric fields default to zero; success is the negation of the
// event's error flag.
func buildReport(msg *claudecode.CLIMessage) *v1.Report {
	report := &v1.Report{
		Success:      !msg.IsError,
		DurationMS:   msg.DurationMS,
		TotalCostUSD: msg.TotalCostUSD,
		NumTurns:     msg.NumTurns,
		Model:        msg.ModelName(),
		Summary:      msg.ResultText(),
	}
	if msg.Usage != nil {
		report.Usage = v1.TokenUsage{
			InputTokens:         msg.Usage.InputTokens,
			OutputTokens:        msg.Usage.OutputTokens,
			CacheReadTokens:     msg.Usage.CacheReadInputTokens,
			CacheCreationTokens: msg.Usage.CacheCreationInputTokens,
		}
	}
	return report
}
