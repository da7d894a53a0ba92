package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forPelevin/reelforge/internal/config"
	"github.com/forPelevin/reelforge/internal/usecase"
)

func execRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("REELFORGE_LLM_API_KEY", "")
	t.Setenv("WORKSPACE_DIR", "")

	var stdout, stderr bytes.Buffer
	root := newRootCommand(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func TestPlan_PrintsTimingTable(t *testing.T) {
	out, err := execRoot(t, "plan", "--duration", "30", "--count", "3", "--transition", "0.5", "--fps", "24")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	for _, want := range []string{"Xfade at", "10.500", "252", "20.000", "Total: 30.000s at 24 fps"} {
		if !strings.Contains(out, want) {
			t.Fatalf("plan output missing %q:\n%s", want, out)
		}
	}
}

func TestPlan_RejectsOverlongTransition(t *testing.T) {
	_, err := execRoot(t, "plan", "--duration", "2", "--count", "4", "--transition", "0.5", "--fps", "24")
	if err == nil || !strings.Contains(err.Error(), "must be shorter than per-asset duration") {
		t.Fatalf("expected overlap error, got %v", err)
	}
}

func TestInitConfig_WritesOnce(t *testing.T) {
	target := filepath.Join(t.TempDir(), "reelforge.toml")
	out, err := execRoot(t, "init-config", "--path", target)
	if err != nil {
		t.Fatalf("init-config: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("unexpected output: %s", out)
	}
	b, err := os.ReadFile(target)
	if err != nil || !strings.Contains(string(b), "[pipeline]") {
		t.Fatalf("sample config not written: %v", err)
	}

	if _, err := execRoot(t, "init-config", "--path", target); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected refusal to overwrite, got %v", err)
	}
	if _, err := execRoot(t, "init-config", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
}

func TestHistory_EmptyWorkspace(t *testing.T) {
	out, err := execRoot(t, "history", "--workspace", t.TempDir())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No stage runs recorded") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestRoot_RequiresTheme(t *testing.T) {
	_, err := execRoot(t, "--workspace", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "theme is required") {
		t.Fatalf("expected theme error, got %v", err)
	}
}

func TestRoot_RequiresAPIKey(t *testing.T) {
	_, err := execRoot(t, "--workspace", t.TempDir(), "la pluie")
	if err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY is required") {
		t.Fatalf("expected api key error, got %v", err)
	}
}

func TestRoot_RejectsUnknownStage(t *testing.T) {
	_, err := execRoot(t, "--workspace", t.TempDir(), "--from", "upload", "--project-id", "project_1")
	if err == nil || !strings.Contains(err.Error(), "unknown stage") {
		t.Fatalf("expected stage error, got %v", err)
	}
}

func TestRoot_InvalidFlagsFailValidation(t *testing.T) {
	_, err := execRoot(t, "--workspace", t.TempDir(), "--scenes", "0", "--music-engine", "suno", "x")
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"config:", "num_scenes", "music_engine"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error missing %q: %v", want, err)
		}
	}
}

func TestRender_MissingManifest(t *testing.T) {
	_, err := execRoot(t, "render", "project_9", "--workspace", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "has no manifest") {
		t.Fatalf("expected missing manifest error, got %v", err)
	}
}

func TestNeedsLLM(t *testing.T) {
	cfg := config.Default()
	if !needsLLM(&cfg, "") {
		t.Fatal("full run writes a script")
	}
	if needsLLM(&cfg, usecase.StageImages) {
		t.Fatal("images onwards needs no chat endpoint with music none")
	}
	cfg.Pipeline.MusicEngine = config.MusicLocal
	if !needsLLM(&cfg, usecase.StageMusic) {
		t.Fatal("local music asks the model to choose a track")
	}
}
