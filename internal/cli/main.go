package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := newRootCommand(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalOptions struct {
	configPath string
	workspace  string
	logLevel   string
	logFormat  string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	g := &globalOptions{}
	rf := &runFlags{}

	root := &cobra.Command{
		Use:          "reelforge <theme>",
		Short:        "Turn a theme into a narrated vertical short video",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			theme := ""
			if len(args) == 1 {
				theme = args[0]
			}
			return runRoot(cmd, g, rf, theme)
		},
	}

	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SilenceErrors = true

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Path to a TOML config file (default ./reelforge.toml when present)")
	pf.StringVar(&g.workspace, "workspace", "", "Workspace directory holding projects")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format: auto, console or json")

	f := root.Flags()
	f.StringVar(&rf.projectID, "project-id", "", "Project to create or resume (default: next project_N)")
	f.StringVar(&rf.from, "from", "", "Restart at this stage using the saved manifest")
	f.IntVar(&rf.scenes, "scenes", 0, "Number of scenes")
	f.IntVar(&rf.duration, "duration", 0, "Target duration in seconds")
	f.StringVar(&rf.angle, "angle", "", "Editorial angle for the script")
	f.StringVar(&rf.language, "language", "", "Narration language")
	f.StringVar(&rf.voice, "voice-engine", "", "Voice engine: edge_tts or espeak")
	f.StringVar(&rf.image, "image-engine", "", "Image engine: dummy or fal")
	f.StringVar(&rf.video, "video-engine", "", "Video engine: still or kenburns")
	f.StringVar(&rf.music, "music-engine", "", "Music engine: none, silent or local")
	f.BoolVar(&rf.noSubtitles, "no-subtitles", false, "Do not burn subtitles")

	root.AddCommand(
		newRenderCommand(g),
		newPlanCommand(g),
		newHistoryCommand(g),
		newInitConfigCommand(),
	)
	return root
}
