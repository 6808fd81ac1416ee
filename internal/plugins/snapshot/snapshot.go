package snapshotplugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/model"
	"github.com/gridci/gridci/internal/plugin"
)

// snapshotPlugin fetches unpinned development snapshots of external
// dependencies. Snapshots deliberately track a moving ref, so an existing
// checkout is still refreshed on every run.
type snapshotPlugin struct{}

// New creates a new snapshot plugin.
func New() plugin.Plugin {
	return &snapshotPlugin{}
}

var _ plugin.Plugin = (*snapshotPlugin)(nil)

func (p *snapshotPlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "snapshot",
		Version:     "1.0.0",
		Type:        "snapshot",
		Description: "Fetches development snapshots via git clone or zip archive download.",
	}
}

func (p *snapshotPlugin) Schema() any {
	return config.SnapshotStep{}
}

// snapshotEvaluationData carries existence checks from Evaluate to Apply.
type snapshotEvaluationData struct {
	DestinationExists bool
	IsGitRepo         bool
	ActualURL         string
}

func (p *snapshotPlugin) Evaluate(ctx context.Context, step *config.Step) (*model.EvaluationResult, error) {
	cfg := step.Snapshot
	if cfg == nil {
		return nil, plugin.NewValidationError(step.ID, fmt.Errorf("snapshot configuration missing"))
	}

	if err := ctx.Err(); err != nil {
		return nil, plugin.NewStateError(step.ID, err)
	}

	dest := step.Resolve(cfg.Destination)

	exists := true
	if _, err := os.Stat(dest); err != nil {
		if os.IsNotExist(err) {
			exists = false
		} else {
			return nil, plugin.NewStateError(step.ID, fmt.Errorf("cannot access destination: %w", err))
		}
	}

	data := &snapshotEvaluationData{DestinationExists: exists}

	if exists && cfg.Format == "git" {
		if repo, err := git.PlainOpen(dest); err == nil {
			data.IsGitRepo = true
			if remote, err := repo.Remote("origin"); err == nil && len(remote.Config().URLs) > 0 {
				data.ActualURL = remote.Config().URLs[0]
			}
		}
	}

	if !exists {
		return &model.EvaluationResult{
			StepID:         step.ID,
			CurrentState:   model.StateMissing,
			RequiresAction: true,
			Message:        fmt.Sprintf("snapshot destination %s does not exist", cfg.Destination),
			Diff:           fmt.Sprintf("Would fetch: %s", cfg.URL),
			InternalData:   data,
		}, nil
	}

	// The snapshot tracks upstream head, so a present checkout is still
	// refreshed rather than treated as satisfied.
	return &model.EvaluationResult{
		StepID:         step.ID,
		CurrentState:   model.StateDrifted,
		RequiresAction: true,
		Message:        fmt.Sprintf("snapshot %s refreshes from %s", cfg.Destination, cfg.URL),
		Diff:           fmt.Sprintf("Would refresh: %s", cfg.URL),
		InternalData:   data,
	}, nil
}

func (p *snapshotPlugin) Apply(ctx context.Context, evalResult *model.EvaluationResult, step *config.Step) (*model.StepResult, error) {
	cfg := step.Snapshot
	if cfg == nil {
		return nil, plugin.NewValidationError(step.ID, fmt.Errorf("snapshot configuration missing"))
	}

	var data *snapshotEvaluationData
	if evalResult != nil {
		if typed, ok := evalResult.InternalData.(*snapshotEvaluationData); ok {
			data = typed
		}
	}
	if data == nil {
		refreshed, err := p.Evaluate(ctx, step)
		if err != nil {
			return nil, err
		}
		data = refreshed.InternalData.(*snapshotEvaluationData)
	}

	dest := step.Resolve(cfg.Destination)

	var err error
	switch cfg.Format {
	case "zip":
		err = fetchArchive(ctx, cfg.URL, dest)
	default:
		err = fetchClone(ctx, cfg, dest, data)
	}

	if err != nil {
		return &model.StepResult{
			StepID:  step.ID,
			Status:  model.StatusFailed,
			Message: err.Error(),
			Error:   err,
		}, plugin.NewExecutionError(step.ID, err)
	}

	return &model.StepResult{
		StepID:  step.ID,
		Status:  model.StatusSuccess,
		Message: fmt.Sprintf("snapshot %s fetched into %s", cfg.URL, cfg.Destination),
	}, nil
}

func fetchClone(ctx context.Context, cfg *config.SnapshotStep, dest string, data *snapshotEvaluationData) error {
	if data.IsGitRepo {
		if data.ActualURL != "" && data.ActualURL != cfg.URL {
			return fmt.Errorf("destination %s tracks %s, want %s", cfg.Destination, data.ActualURL, cfg.URL)
		}
		return pullHead(ctx, cfg, dest)
	}

	if data.DestinationExists {
		return fmt.Errorf("destination %s exists but is not a git repository", cfg.Destination)
	}

	opts := &git.CloneOptions{URL: cfg.URL, Depth: 1}
	if cfg.Ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(cfg.Ref)
		opts.SingleBranch = true
	}

	_, err := git.PlainCloneContext(ctx, dest, false, opts)
	if err != nil {
		return fmt.Errorf("clone %s: %w", cfg.URL, err)
	}
	return nil
}

func pullHead(ctx context.Context, cfg *config.SnapshotStep, dest string) error {
	repo, err := git.PlainOpen(dest)
	if err != nil {
		return err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return err
	}

	opts := &git.PullOptions{RemoteName: "origin"}
	if cfg.Ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(cfg.Ref)
		opts.SingleBranch = true
	}

	if err := worktree.PullContext(ctx, opts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pull %s: %w", cfg.URL, err)
	}
	return nil
}

func ensureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
