// Package workspace manages execution instance directories and optional
// version-control isolation for agent runs.
package workspace

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/agentboard/agentboard/internal/common/config"
	"github.com/agentboard/agentboard/internal/common/logger"
	"github.com/agentboard/agentboard/internal/run/progress"
	v1 "github.com/agentboard/agentboard/pkg/api/v1"
)

// Files and directories inside an instance directory.
const (
	RequirementsFile  = "PRD.md"
	ChangeRequestFile = "CHANGE_REQUEST.md"
	WorktreeDir       = "worktree"
)

// Manager allocates instance directories under a well-known root and
// provisions isolated worktrees when the codebase is under git.
type Manager struct {
	root            string
	branchPrefix    string
	worktreeEnabled bool
	store           *progress.Store
	logger          *logger.Logger
}

// NewManager creates a workspace manager rooted at the resolved instances
// directory.
func NewManager(root string, wt config.WorktreeConfig, store *progress.Store, log *logger.Logger) *Manager {
	return &Manager{
		root:            root,
		branchPrefix:    wt.BranchPrefix,
		worktreeEnabled: wt.Enabled,
		store:           store,
		logger:          log.WithFields(zap.String("component", "workspace")),
	}
}

// CreateInstance allocates a fresh instance directory named
// <slug>-<unix-millis>, writes the task's requirements text into it, and
// initializes the progress record to LAUNCHING. The millisecond component
// is bumped on collision so two instances created in the same millisecond
// for identically slugified titles still get distinct paths. Instance paths
// are never reused for a different task.
func (m *Manager) CreateInstance(title, requirements string) (string, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return "", fmt.Errorf("failed to create instances root: %w", err)
	}

	slug := slugify(title)
	millis := time.Now().UnixMilli()

	var instancePath string
	for {
		instancePath = filepath.Join(m.root, slug+"-"+strconv.FormatInt(millis, 10))
		err := os.Mkdir(instancePath, 0o755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("failed to create instance directory: %w", err)
		}
		millis++
	}

	if err := os.WriteFile(filepath.Join(instancePath, RequirementsFile), []byte(requirements), 0o644); err != nil {
		return "", fmt.Errorf("failed to write requirements: %w", err)
	}

	status := v1.RunStatusLaunching
	phase := "Initialization"
	msg := "Instance created"
	if err := m.store.Update(instancePath, progress.Update{
		Status:  &status,
		Phase:   &phase,
		Message: &msg,
	}); err != nil {
		return "", err
	}

	m.logger.Info("created instance",
		zap.String("instance_path", instancePath),
		zap.String("slug", slug))
	return instancePath, nil
}

// WriteChangeRequest records a follow-up change request inside an existing
// instance directory.
func (m *Manager) WriteChangeRequest(instancePath, changeRequest string) error {
	if err := os.WriteFile(filepath.Join(instancePath, ChangeRequestFile), []byte(changeRequest), 0o644); err != nil {
		return fmt.Errorf("failed to write change request: %w", err)
	}
	return nil
}

// CreateIsolatedWorkspace attempts to provision a dedicated branch plus a
// linked worktree under the instance directory. Isolation is best-effort:
// on any failure (not a git repository, dirty state, name collision, git
// unavailable) it appends one note to the progress log and returns the
// original codebase root with an empty branch name. It never fails the run.
func (m *Manager) CreateIsolatedWorkspace(ctx context.Context, instancePath, codebaseRoot string) (workDir, branch string) {
	worktreePath := filepath.Join(instancePath, WorktreeDir)

	// Follow-up runs reuse the worktree provisioned by the fresh run.
	if _, err := os.Stat(worktreePath); err == nil {
		return worktreePath, m.branchPrefix + filepath.Base(instancePath)
	}

	if !m.worktreeEnabled {
		m.degrade(instancePath, "worktree isolation disabled; working directly on primary copy")
		return codebaseRoot, ""
	}

	if _, err := os.Stat(filepath.Join(codebaseRoot, ".git")); err != nil {
		m.degrade(instancePath, "codebase is not a git repository; working directly on primary copy")
		return codebaseRoot, ""
	}

	branch = m.branchPrefix + filepath.Base(instancePath)

	// git worktree add -b <branch> <path>
	cmd := exec.CommandContext(ctx, "git", "worktree", "add", "-b", branch, worktreePath)
	cmd.Dir = codebaseRoot
	if output, err := cmd.CombinedOutput(); err != nil {
		m.logger.Warn("git worktree add failed",
			zap.String("output", string(output)),
			zap.Error(err))
		m.degrade(instancePath, "worktree creation failed; working directly on primary copy")
		return codebaseRoot, ""
	}

	m.logger.Info("created isolated worktree",
		zap.String("instance_path", instancePath),
		zap.String("branch", branch))
	return worktreePath, branch
}

// Cleanup removes the isolated checkout (if any) and the instance
// directory tree. Errors are swallowed and logged: cleanup runs from
// background and teardown paths and must never propagate.
func (m *Manager) Cleanup(ctx context.Context, instancePath, codebaseRoot string) {
	worktreePath := filepath.Join(instancePath, WorktreeDir)
	if _, err := os.Stat(worktreePath); err == nil {
		cmd := exec.CommandContext(ctx, "git", "worktree", "remove", "--force", worktreePath)
		cmd.Dir = codebaseRoot
		if output, err := cmd.CombinedOutput(); err != nil {
			m.logger.Warn("failed to remove worktree",
				zap.String("output", string(output)),
				zap.Error(err))
		}
		cmd = exec.CommandContext(ctx, "git", "worktree", "prune")
		cmd.Dir = codebaseRoot
		if err := cmd.Run(); err != nil {
			m.logger.Warn("git worktree prune failed", zap.Error(err))
		}
	}

	if err := os.RemoveAll(instancePath); err != nil {
		m.logger.Warn("failed to remove instance directory",
			zap.String("instance_path", instancePath),
			zap.Error(err))
	}
}

func (m *Manager) degrade(instancePath, note string) {
	if err := m.store.AppendLog(instancePath, "note: "+note); err != nil {
		m.logger.Warn("failed to log isolation note", zap.Error(err))
	}
}
