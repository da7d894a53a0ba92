package cli

import (
	"strings"
	"testing"
)

func TestRenderTable_KeepsHeaderCase(t *testing.T) {
	out := renderTable(
		[]string{"Scene", "Xfade at"},
		[][]string{{"1", "-"}, {"2"}},
		[]columnAlignment{alignRight, alignRight},
	)
	if !strings.Contains(out, "Xfade at") || strings.Contains(out, "XFADE AT") {
		t.Fatalf("headers should be printed as given:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("no headers renders nothing")
	}
}
