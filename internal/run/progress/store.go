// Package progress implements the file-backed progress store. Each
// execution instance directory holds a structured snapshot, an append-only
// human-readable transcript, a raw subprocess debug transcript, and, on
// success, a structured report plus a rendered document. Being disk-resident,
// records survive process restarts.
package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentboard/agentboard/internal/common/logger"
	v1 "github.com/agentboard/agentboard/pkg/api/v1"
)

// Files written inside an instance directory.
const (
	SnapshotFile   = "progress.json"
	TranscriptFile = "progress.log"
	DebugFile      = "debug.log"
	ReportFile     = "report.json"
	ReportDocFile  = "REPORT.md"
)

// MaxLogLines bounds the rolling log buffer in the structured snapshot.
// Older lines are discarded silently once the cap is exceeded.
const MaxLogLines = 100

// Update is a partial change merged into the stored snapshot. Nil fields
// are left untouched; AppendLog lines are appended, never replaced.
type Update struct {
	Status    *v1.RunStatus
	Phase     *string
	Message   *string
	AppendLog []string
}

// Store reads and writes progress records keyed by instance path.
// Within one run there is exactly one writer (that run's supervisor),
// so no write-write race exists by construction.
type Store struct {
	logger *logger.Logger
}

// NewStore creates a progress store.
func NewStore(log *logger.Logger) *Store {
	return &Store{logger: log.WithFields(zap.String("component", "progress-store"))}
}

// Read parses the persisted snapshot. A record that does not exist yet is
// not an error: it returns (nil, nil), the expected state immediately after
// instance creation races with a first read.
func (s *Store) Read(instancePath string) (*v1.ProgressSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(instancePath, SnapshotFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read progress snapshot: %w", err)
	}

	var snap v1.ProgressSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse progress snapshot: %w", err)
	}
	return &snap, nil
}

// Update merges a partial update into the existing snapshot, creating a
// default record when none exists, and rewrites the file.
func (s *Store) Update(instancePath string, upd Update) error {
	snap, err := s.Read(instancePath)
	if err != nil {
		return err
	}
	if snap == nil {
		snap = &v1.ProgressSnapshot{
			Status: v1.RunStatusLaunching,
			Log:    []string{},
		}
	}

	if upd.Status != nil {
		snap.Status = *upd.Status
	}
	if upd.Phase != nil {
		snap.Phase = *upd.Phase
	}
	if upd.Message != nil {
		snap.Message = *upd.Message
	}
	if len(upd.AppendLog) > 0 {
		snap.Log = append(snap.Log, upd.AppendLog...)
		if len(snap.Log) > MaxLogLines {
			snap.Log = snap.Log[len(snap.Log)-MaxLogLines:]
		}
	}
	snap.Timestamp = time.Now().UTC()

	return s.write(instancePath, snap)
}

// AppendLog records one human-readable line in both the structured snapshot
// and the append-only transcript. Blank input is a no-op.
func (s *Store) AppendLog(instancePath, line string) error {
	line = strings.TrimRight(line, "\n")
	if strings.TrimSpace(line) == "" {
		return nil
	}

	if err := s.Update(instancePath, Update{AppendLog: []string{line}}); err != nil {
		return err
	}

	entry := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format("15:04:05"), line)
	if err := appendFile(filepath.Join(instancePath, TranscriptFile), []byte(entry)); err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}
	return nil
}

// AppendDebug mirrors a raw subprocess chunk verbatim to the debug
// transcript, tagged by stream. Kept independent of the parsed channel so
// parser misbehavior can be diagnosed post-mortem.
func (s *Store) AppendDebug(instancePath, tag string, chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	entry := append([]byte("["+tag+"] "), chunk...)
	if entry[len(entry)-1] != '\n' {
		entry = append(entry, '\n')
	}
	if err := appendFile(filepath.Join(instancePath, DebugFile), entry); err != nil {
		s.logger.Warn("failed to append debug log",
			zap.String("instance_path", instancePath),
			zap.Error(err))
	}
}

// WriteReport persists the terminal report as a structured artifact and a
// rendered human-readable document. Written once; never mutated afterward.
func (s *Store) WriteReport(instancePath string, report *v1.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(instancePath, ReportFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	doc := renderReport(report)
	if err := os.WriteFile(filepath.Join(instancePath, ReportDocFile), []byte(doc), 0o644); err != nil {
		return fmt.Errorf("failed to write report document: %w", err)
	}
	return nil
}

// ReadReport parses a previously written report. Returns (nil, nil) when
// the run produced none.
func (s *Store) ReadReport(instancePath string) (*v1.Report, error) {
	data, err := os.ReadFile(filepath.Join(instancePath, ReportFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var report v1.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// ReadTranscript returns transcript text appended since offset, plus the
// new offset. The transcript is append-only, so offset-based reads are
// stable across polls. A missing transcript yields ("", offset, nil).
func (s *Store) ReadTranscript(instancePath string, offset int64) (string, int64, error) {
	f, err := os.Open(filepath.Join(instancePath, TranscriptFile))
	if os.IsNotExist(err) {
		return "", offset, nil
	}
	if err != nil {
		return "", offset, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, 0); err != nil {
		return "", offset, fmt.Errorf("failed to seek transcript: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", offset, fmt.Errorf("failed to read transcript: %w", err)
	}
	return string(data), offset + int64(len(data)), nil
}

func (s *Store) write(instancePath string, snap *v1.ProgressSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal progress snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(instancePath, SnapshotFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write progress snapshot: %w", err)
	}
	return nil
}

func renderReport(r *v1.Report) string {
	var b strings.Builder
	b.WriteString("# Execution Report\n\n")
	if r.Success {
		b.WriteString("**Result:** success\n\n")
	} else {
		b.WriteString("**Result:** error\n\n")
	}
	fmt.Fprintf(&b, "- Duration: %s\n", (time.Duration(r.DurationMS) * time.Millisecond).String())
	fmt.Fprintf(&b, "- Cost: $%.4f\n", r.TotalCostUSD)
	fmt.Fprintf(&b, "- Turns: %d\n", r.NumTurns)
	fmt.Fprintf(&b, "- Model: %s\n", r.Model)
	fmt.Fprintf(&b, "- Tokens: %d in / %d out (cache: %d read, %d created)\n",
		r.Usage.InputTokens, r.Usage.OutputTokens,
		r.Usage.CacheReadTokens, r.Usage.CacheCreationTokens)
	if r.Summary != "" {
		b.WriteString("\n## Summary\n\n")
		b.WriteString(r.Summary)
		b.WriteString("\n")
	}
	return b.String()
}

func appendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}
