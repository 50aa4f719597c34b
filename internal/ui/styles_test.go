package ui

import (
	"strings"
	"testing"
)

func TestRender_Plain(t *testing.T) {
	SetColor(false)
	t.Cleanup(func() { SetColor(false) })

	renders := map[string]func(string) string{
		"pass":   RenderPass,
		"warn":   RenderWarn,
		"fail":   RenderFail,
		"accent": RenderAccent,
		"muted":  RenderMuted,
		"bold":   RenderBold,
	}
	for name, fn := range renders {
		if got := fn("✓ done"); got != "✓ done" {
			t.Errorf("%s: got %q, want input unchanged", name, got)
		}
	}
}

func TestRender_Colored(t *testing.T) {
	SetColor(true)
	t.Cleanup(func() { SetColor(false) })

	// The profile comes from the environment and may be Ascii under test.
	if got := RenderBold("x"); !strings.Contains(got, "x") {
		t.Errorf("RenderBold() = %q", got)
	}
}
