// Package session is the entry point for agent executions: it validates
// preconditions, provisions the workspace, persists run state onto the
// ticket record, and starts the supervisor without blocking the caller's
// request. Errors after acceptance are only observable through the
// progress record and the ticket itself.
package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agentboard/agentboard/internal/common/config"
	"github.com/agentboard/agentboard/internal/common/errors"
	"github.com/agentboard/agentboard/internal/common/logger"
	"github.com/agentboard/agentboard/internal/events"
	"github.com/agentboard/agentboard/internal/events/bus"
	"github.com/agentboard/agentboard/internal/run/agentcli"
	"github.com/agentboard/agentboard/internal/run/progress"
	"github.com/agentboard/agentboard/internal/run/registry"
	"github.com/agentboard/agentboard/internal/run/supervisor"
	"github.com/agentboard/agentboard/internal/run/workspace"
	"github.com/agentboard/agentboard/internal/ticket/models"
	"github.com/agentboard/agentboard/internal/ticket/repository"
	v1 "github.com/agentboard/agentboard/pkg/api/v1"
)

// Service coordinates one agent run per ticket.
type Service struct {
	repo       repository.Repository
	workspaces *workspace.Manager
	store      *progress.Store
	supervisor *supervisor.Supervisor
	registry   *registry.Registry
	cli        *agentcli.CLI
	bus        bus.EventBus
	logMax     int
	logTrim    int
	logger     *logger.Logger
}

// NewService creates the execution session facade.
func NewService(
	repo repository.Repository,
	workspaces *workspace.Manager,
	store *progress.Store,
	sup *supervisor.Supervisor,
	reg *registry.Registry,
	cli *agentcli.CLI,
	eventBus bus.EventBus,
	runner config.RunnerConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:       repo,
		workspaces: workspaces,
		store:      store,
		supervisor: sup,
		registry:   reg,
		cli:        cli,
		bus:        eventBus,
		logMax:     runner.TicketLogMaxBytes,
		logTrim:    runner.TicketLogTrimBytes,
		logger:     log.WithFields(zap.String("component", "run-session")),
	}
}

// Start begins a fresh run for a ticket. It returns once the run is
// accepted; the supervisor proceeds in the background. At most one active
// run per ticket is permitted.
func (s *Service) Start(ctx context.Context, ticketID string) error {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}

	if err := s.checkPreconditions(ctx, ticket); err != nil {
		return err
	}

	instancePath, err := s.workspaces.CreateInstance(ticket.Title, ticket.Description)
	if err != nil {
		return errors.InternalError("failed to create instance", err)
	}

	workDir, branch := s.workspaces.CreateIsolatedWorkspace(ctx, instancePath, ticket.CodebasePath)

	if err := s.markLaunching(ctx, ticket, instancePath); err != nil {
		return err
	}
	s.publish(ctx, events.RunStarted, ticket.ID, instancePath)

	s.logger.Info("run accepted",
		zap.String("ticket_id", ticket.ID),
		zap.String("instance_path", instancePath),
		zap.String("branch", branch))

	go s.executeRun(ticket.ID, supervisor.Request{
		TicketID:     ticket.ID,
		InstancePath: instancePath,
		WorkDir:      workDir,
		Title:        ticket.Title,
		Requirements: ticket.Description,
	}, false)
	return nil
}

// FollowUp begins a change-request run against a ticket's existing
// instance, reusing its isolated workspace.
func (s *Service) FollowUp(ctx context.Context, ticketID, changeRequest string) error {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}

	if changeRequest == "" {
		return errors.Precondition("change request text is required")
	}
	if ticket.InstancePath == "" {
		return errors.Precondition("ticket has no prior run to follow up on")
	}
	if err := s.checkPreconditions(ctx, ticket); err != nil {
		return err
	}

	if err := s.workspaces.WriteChangeRequest(ticket.InstancePath, changeRequest); err != nil {
		return errors.InternalError("failed to write change request", err)
	}

	workDir, _ := s.workspaces.CreateIsolatedWorkspace(ctx, ticket.InstancePath, ticket.CodebasePath)

	if err := s.markLaunching(ctx, ticket, ticket.InstancePath); err != nil {
		return err
	}
	s.publish(ctx, events.RunStarted, ticket.ID, ticket.InstancePath)

	go s.executeRun(ticket.ID, supervisor.Request{
		TicketID:      ticket.ID,
		InstancePath:  ticket.InstancePath,
		WorkDir:       workDir,
		Title:         ticket.Title,
		Requirements:  ticket.Description,
		ChangeRequest: changeRequest,
	}, true)
	return nil
}

// Cancel requests termination of a ticket's active run. Best-effort: it
// signals the process and returns immediately. The ticket and progress
// record are marked FAILED here as well, covering the case where the
// process never acknowledges the signal.
func (s *Service) Cancel(ctx context.Context, ticketID string) error {
	if !s.registry.Cancel(ticketID) {
		return errors.Precondition("no active run for ticket")
	}

	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	failed := v1.RunStatusFailed
	ticket.RunStatus = &failed
	ticket.RunCompletedAt = &now
	ticket.RunLog = s.truncateLog(ticket.RunLog + "Run cancelled by user\n")
	if err := s.repo.UpdateTicket(ctx, ticket); err != nil {
		return err
	}

	if ticket.InstancePath != "" {
		phase := "Error"
		msg := "Run cancelled by user"
		if err := s.store.Update(ticket.InstancePath, progress.Update{
			Status:  &failed,
			Phase:   &phase,
			Message: &msg,
		}); err != nil {
			s.logger.Warn("failed to mark cancelled run in progress store", zap.Error(err))
		}
	}

	s.publish(ctx, events.RunCancelled, ticketID, ticket.InstancePath)
	return nil
}

// Progress returns the current progress snapshot for a ticket's run.
func (s *Service) Progress(ctx context.Context, ticketID string) (*v1.ProgressSnapshot, error) {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.InstancePath == "" {
		return nil, errors.NotFound("run", ticketID)
	}
	snap, err := s.store.Read(ticket.InstancePath)
	if err != nil {
		return nil, errors.InternalError("failed to read progress", err)
	}
	if snap == nil {
		snap = &v1.ProgressSnapshot{Status: v1.RunStatusLaunching, Log: []string{}}
	}
	return snap, nil
}

// Report returns the terminal report for a ticket's run, or nil when the
// run produced none.
func (s *Service) Report(ctx context.Context, ticketID string) (*v1.Report, error) {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.InstancePath == "" {
		return nil, errors.NotFound("run", ticketID)
	}
	report, err := s.store.ReadReport(ticket.InstancePath)
	if err != nil {
		return nil, errors.InternalError("failed to read report", err)
	}
	return report, nil
}

// Cleanup removes a ticket's instance directory and isolated checkout.
// Rejected while a run is active; filesystem failures during removal are
// swallowed by the workspace manager.
func (s *Service) Cleanup(ctx context.Context, ticketID string) error {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.RunStatus != nil && ticket.RunStatus.Active() {
		return errors.Conflict("cannot clean up while a run is active")
	}
	if ticket.InstancePath == "" {
		return nil
	}

	s.workspaces.Cleanup(ctx, ticket.InstancePath, ticket.CodebasePath)

	ticket.InstancePath = ""
	return s.repo.UpdateTicket(ctx, ticket)
}

// checkPreconditions rejects a run before anything is provisioned: the
// ticket must carry requirements text, the agent CLI must be installed,
// and no run may already be active for the ticket.
func (s *Service) checkPreconditions(ctx context.Context, ticket *models.Ticket) error {
	if ticket.Description == "" {
		return errors.Precondition("ticket has no requirements text")
	}

	timeout := s.cli.ProbeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	discovery, err := s.cli.Available(probeCtx)
	if err != nil || !discovery.Available {
		return errors.Precondition(fmt.Sprintf("agent CLI %q is not installed", s.cli.Binary))
	}

	if ticket.RunStatus != nil && ticket.RunStatus.Active() {
		return errors.Conflict("a run is already active for this ticket")
	}
	return nil
}

func (s *Service) markLaunching(ctx context.Context, ticket *models.Ticket, instancePath string) error {
	now := time.Now().UTC()
	launching := v1.RunStatusLaunching
	ticket.InstancePath = instancePath
	ticket.RunStatus = &launching
	ticket.RunStartedAt = &now
	ticket.RunCompletedAt = nil
	ticket.RunLog = ""
	if err := s.repo.UpdateTicket(ctx, ticket); err != nil {
		return errors.InternalError("failed to persist run state", err)
	}
	return nil
}

// executeRun drives the supervisor to completion in the background and
// propagates the terminal state back onto the ticket record.
func (s *Service) executeRun(ticketID string, req supervisor.Request, followUp bool) {
	ctx := context.Background()
	req.OnProgressLine = func(line string) {
		s.appendTicketLog(ctx, ticketID, line)
		s.publishProgress(ctx, ticketID, req.InstancePath, line)
	}

	var err error
	if followUp {
		_, err = s.supervisor.RunFollowUp(ctx, req)
	} else {
		_, err = s.supervisor.Run(ctx, req)
	}

	ticket, getErr := s.repo.GetTicket(ctx, ticketID)
	if getErr != nil {
		s.logger.Error("failed to load ticket after run",
			zap.String("ticket_id", ticketID), zap.Error(getErr))
		return
	}

	now := time.Now().UTC()
	ticket.RunCompletedAt = &now

	if err != nil {
		failed := v1.RunStatusFailed
		ticket.RunStatus = &failed
		ticket.RunLog = s.truncateLog(ticket.RunLog + err.Error() + "\n")
		if updErr := s.repo.UpdateTicket(ctx, ticket); updErr != nil {
			s.logger.Error("failed to persist failed run", zap.Error(updErr))
		}
		s.publish(ctx, events.RunFailed, ticketID, req.InstancePath)
		return
	}

	completed := v1.RunStatusCompleted
	ticket.RunStatus = &completed
	ticket.State = v1.TicketStateInReview
	if updErr := s.repo.UpdateTicket(ctx, ticket); updErr != nil {
		s.logger.Error("failed to persist completed run", zap.Error(updErr))
	}
	s.publish(ctx, events.RunCompleted, ticketID, req.InstancePath)
}

// appendTicketLog appends one line to the ticket's own log copy, keeping
// a trailing window once the configured ceiling is exceeded. This buffer
// is bounded independently of the progress store's line-count retention.
func (s *Service) appendTicketLog(ctx context.Context, ticketID, line string) {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		s.logger.Warn("failed to load ticket for log append",
			zap.String("ticket_id", ticketID), zap.Error(err))
		return
	}

	ticket.RunLog = s.truncateLog(ticket.RunLog + line + "\n")
	if err := s.repo.UpdateTicket(ctx, ticket); err != nil {
		s.logger.Warn("failed to persist ticket log",
			zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

// publishProgress emits one run.progress event per synthesized line.
func (s *Service) publishProgress(ctx context.Context, ticketID, instancePath, line string) {
	if s.bus == nil {
		return
	}
	evt := bus.NewEvent(events.RunProgress, "run-session", map[string]interface{}{
		"ticket_id":     ticketID,
		"instance_path": instancePath,
		"line":          line,
	})
	if err := s.bus.Publish(ctx, events.RunProgress, evt); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("event", events.RunProgress), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, eventType, ticketID, instancePath string) {
	if s.bus == nil {
		return
	}
	evt := bus.NewEvent(eventType, "run-session", map[string]interface{}{
		"ticket_id":     ticketID,
		"instance_path": instancePath,
	})
	if err := s.bus.Publish(ctx, eventType, evt); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("event", eventType), zap.Error(err))
	}
}

func (s *Service) truncateLog(log string) string {
	if len(log) <= s.logMax {
		return log
	}
	return log[len(log)-s.logTrim:]
}
