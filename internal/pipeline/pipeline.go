package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forPelevin/reelforge/internal/config"
	"github.com/forPelevin/reelforge/internal/faults"
	"github.com/forPelevin/reelforge/internal/ledger"
	"github.com/forPelevin/reelforge/internal/logging"
	"github.com/forPelevin/reelforge/internal/types"
	"github.com/forPelevin/reelforge/internal/usecase"
	"github.com/forPelevin/reelforge/internal/workspace"
)

// LedgerFile sits in the workspace root and is shared by all projects.
const LedgerFile = "ledger.db"

type Options struct {
	Theme string
	// ProjectID resumes or creates that project. Empty allocates project_N.
	ProjectID string
	// From restarts at this stage using the saved manifest. Empty runs all
	// stages.
	From usecase.Stage
	Log  *slog.Logger

	// LookPath resolves binaries during preflight; exec.LookPath when nil.
	LookPath func(string) (string, error)
}

func (o Options) validate() error {
	if o.From == "" {
		return nil
	}
	if len(usecase.From(o.From)) == 0 {
		return faults.InvalidInput("pipeline", "unknown start stage %q", o.From)
	}
	if o.From != usecase.StageScript && strings.TrimSpace(o.ProjectID) == "" {
		return faults.InvalidInput("pipeline", "starting at %q requires a project id", o.From)
	}
	return nil
}

type Result struct {
	ProjectID string
	RunID     string
	Script    types.Script
}

// Run builds the configured engines, checks their binaries and drives the
// stages for one project.
func Run(ctx context.Context, cfg *config.Config, opts Options) (Result, error) {
	if err := opts.validate(); err != nil {
		return Result{}, err
	}
	log := opts.Log
	if log == nil {
		log = logging.NewNop()
	}
	eng, err := BuildEngines(cfg, log)
	if err != nil {
		return Result{}, err
	}
	if err := Preflight(eng.Binaries(stagesFor(opts.From)), opts.LookPath); err != nil {
		return Result{}, err
	}
	return run(ctx, cfg, opts, eng)
}

func stagesFor(from usecase.Stage) []usecase.Stage {
	if from == "" {
		return usecase.Stages
	}
	return usecase.From(from)
}

func run(ctx context.Context, cfg *config.Config, opts Options, eng Engines) (Result, error) {
	log := opts.Log
	if log == nil {
		log = logging.NewNop()
	}
	if err := opts.validate(); err != nil {
		return Result{}, err
	}
	stages := stagesFor(opts.From)
	resume := opts.From != "" && opts.From != usecase.StageScript

	ws := workspace.New(cfg.Workspace.Dir)
	if err := os.MkdirAll(ws.Root(), 0o755); err != nil {
		return Result{}, fmt.Errorf("create workspace: %w", err)
	}
	projectID, err := resolveProjectID(ws, opts.ProjectID)
	if err != nil {
		return Result{}, err
	}
	runID := uuid.NewString()
	log = log.With("run_id", runID, "project_id", projectID)

	project, err := ws.Open(projectID)
	if err != nil {
		return Result{}, err
	}
	defer project.Close()

	store, err := ledger.Open(filepath.Join(ws.Root(), LedgerFile))
	if err != nil {
		return Result{}, err
	}
	defer store.Close()
	if n, err := store.MarkInterrupted(ctx, projectID); err != nil {
		return Result{}, err
	} else if n > 0 {
		log.Warn("previous run was interrupted", "stages", n)
	}

	var cur types.Script
	if resume {
		if cur, err = project.LoadManifest(); err != nil {
			return Result{}, err
		}
		cur.ProjectID = projectID
	} else {
		cur = newScript(cfg, opts.Theme, projectID)
	}
	cur.RunID = runID

	uc := usecase.New(eng.deps(log), settings(cfg, eng.ImageExt))
	res := Result{ProjectID: projectID, RunID: runID}
	log.Info("run started", "theme", cur.Theme, "stages", len(stages), "from", stages[0])

	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			res.Script = cur
			return res, err
		}
		fn, err := uc.Stage(st)
		if err != nil {
			return res, err
		}
		rowID, err := store.Begin(ctx, projectID, runID, string(st))
		if err != nil {
			return res, err
		}

		started := time.Now()
		stageLog := log.With("stage", st)
		stageLog.Info("stage started")
		next, stageErr := fn(ctx, cur, project)
		if err := store.Finish(ctx, rowID, stageErr); err != nil {
			stageLog.Warn("ledger update failed", "error", err)
		}
		if stageErr != nil {
			stageLog.Error("stage failed", "error", stageErr, "elapsed", time.Since(started).Round(time.Millisecond))
			res.Script = cur
			return res, fmt.Errorf("stage %s: %w", st, stageErr)
		}

		cur = next
		cur.UpdatedAt = time.Now().UTC()
		if err := project.SaveManifest(cur); err != nil {
			res.Script = cur
			return res, err
		}
		stageLog.Info("stage finished", "elapsed", time.Since(started).Round(time.Millisecond))
	}

	res.Script = cur
	log.Info("run finished", "final_video", cur.FinalVideoPath)
	return res, nil
}

func resolveProjectID(ws *workspace.Workspace, requested string) (string, error) {
	if strings.TrimSpace(requested) != "" {
		return workspace.NormalizeProjectID(requested)
	}
	return ws.NextProjectID()
}

func newScript(cfg *config.Config, theme, projectID string) types.Script {
	p := cfg.Pipeline
	now := time.Now().UTC()
	return types.Script{
		ProjectID: projectID,
		Theme:     strings.TrimSpace(theme),
		Config: types.PipelineConfig{
			ScriptEngine:   p.ScriptEngine,
			VoiceEngine:    p.VoiceEngine,
			ImageEngine:    p.ImageEngine,
			VideoEngine:    p.VideoEngine,
			MusicEngine:    p.MusicEngine,
			NumScenes:      p.NumScenes,
			TargetDuration: p.TargetDuration,
			Angle:          p.Angle,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func settings(cfg *config.Config, imageExt string) usecase.Settings {
	r := cfg.Render
	return usecase.Settings{
		Language:      cfg.Pipeline.Language,
		ImageExt:      imageExt,
		ClipSeconds:   cfg.Animation.ClipSeconds,
		MusicGain:     cfg.Music.Gain,
		Subtitles:     cfg.Subtitles.Enabled,
		SubtitleStyle: cfg.Subtitles.Style,
		Render: usecase.RenderSettings{
			Width:             r.Width,
			Height:            r.Height,
			FrameRate:         r.FrameRate,
			TransitionSeconds: r.TransitionSeconds,
			MaxZoom:           r.MaxZoom,
			Preset:            r.Preset,
			CRF:               r.CRF,
		},
	}
}

// History returns the recorded stage runs for a project, newest first.
func History(ctx context.Context, root, projectID string, limit int) ([]ledger.Run, error) {
	path := filepath.Join(workspace.New(root).Root(), LedgerFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	store, err := ledger.Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.List(ctx, projectID, limit)
}
