package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/forPelevin/reelforge/internal/config"
	"github.com/forPelevin/reelforge/internal/domain/timing"
	"github.com/forPelevin/reelforge/internal/ledger"
	"github.com/forPelevin/reelforge/internal/logging"
	"github.com/forPelevin/reelforge/internal/pipeline"
	"github.com/forPelevin/reelforge/internal/usecase"
	"github.com/forPelevin/reelforge/internal/workspace"
)

func newRenderCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "render <project-id>",
		Short: "Re-run assembly for a project from its saved manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			if err := cfg.Normalize(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			id, err := workspace.NormalizeProjectID(args[0])
			if err != nil {
				return err
			}
			manifest, err := workspace.New(cfg.Workspace.Dir).ManifestPath(id)
			if err != nil {
				return err
			}
			if _, err := os.Stat(manifest); err != nil {
				return fmt.Errorf("project %s has no manifest: %w", id, err)
			}
			return execute(cmd, cfg, pipeline.Options{
				ProjectID: id,
				From:      usecase.StageAssemble,
			})
		},
	}
}

func newPlanCommand(g *globalOptions) *cobra.Command {
	var (
		duration   float64
		count      int
		transition float64
		fps        int
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print how a voice track of the given length is split across scenes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if !f.Changed("duration") {
				duration = float64(cfg.Pipeline.TargetDuration)
			}
			if !f.Changed("count") {
				count = cfg.Pipeline.NumScenes
			}
			if !f.Changed("transition") {
				transition = cfg.Render.TransitionSeconds
			}
			if !f.Changed("fps") {
				fps = cfg.Render.FrameRate
			}

			plans, err := timing.Plan(duration, count, transition, fps)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(plans))
			for _, p := range plans {
				offset := "-"
				if p.Offset > 0 {
					offset = seconds(p.Offset)
				}
				rows = append(rows, []string{
					strconv.Itoa(p.Index + 1),
					seconds(p.Base),
					seconds(p.Overlap),
					seconds(p.Duration),
					strconv.Itoa(p.Frames),
					offset,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Scene", "Base", "Overlap", "Duration", "Frames", "Xfade at"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			fmt.Fprintf(out, "Total: %ss at %d fps\n", seconds(timing.Total(plans)), fps)
			return nil
		},
	}
	cmd.Flags().Float64Var(&duration, "duration", 0, "Voice track length in seconds (default pipeline.target_duration)")
	cmd.Flags().IntVar(&count, "count", 0, "Number of visual assets (default pipeline.num_scenes)")
	cmd.Flags().Float64Var(&transition, "transition", 0, "Cross-fade length in seconds (default render.transition_seconds)")
	cmd.Flags().IntVar(&fps, "fps", 0, "Frame rate (default render.frame_rate)")
	return cmd
}

func newHistoryCommand(g *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [project-id]",
		Short: "Show recorded stage runs, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			projectID := ""
			if len(args) == 1 {
				if projectID, err = workspace.NormalizeProjectID(args[0]); err != nil {
					return err
				}
			}
			runs, err := pipeline.History(cmd.Context(), cfg.Workspace.Dir, projectID, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No stage runs recorded")
				return nil
			}
			colorize := logging.IsTerminal(out)
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					shortID(r.RunID),
					r.ProjectID,
					r.Stage,
					statusText(r.Status, colorize),
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					elapsed(r),
					firstLine(r.Error, 60),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Project", "Stage", "Status", "Started", "Elapsed", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows to show (0 for all)")
	return cmd
}

func newInitConfigCommand() *cobra.Command {
	var (
		targetPath string
		overwrite  bool
	)
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Create a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				target = config.DefaultFileName
			}
			if overwrite {
				if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("replace config: %w", err)
				}
			} else if _, err := os.Stat(target); err == nil {
				return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set GEMINI_API_KEY (and FAL_KEY for the fal image engine) in .env before running reelforge.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file (default ./reelforge.toml)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func seconds(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func elapsed(r ledger.Run) string {
	d := r.Duration()
	if d == 0 {
		return "-"
	}
	return d.Round(10 * time.Millisecond).String()
}

func statusText(s ledger.Status, colorize bool) string {
	if !colorize {
		return string(s)
	}
	switch s {
	case ledger.StatusSucceeded:
		return text.FgGreen.Sprint(s)
	case ledger.StatusFailed:
		return text.FgRed.Sprint(s)
	case ledger.StatusInterrupted:
		return text.FgYellow.Sprint(s)
	default:
		return text.FgBlue.Sprint(s)
	}
}

func firstLine(s string, n int) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
