package prompt

import (
	"strings"
	"testing"
)

func TestSupportPromptCoversProtocol(t *testing.T) {
	t.Parallel()

	p := Support()
	for _, want := range []string{"THOUGHT", "REFLECTION", "lookup_policy", "Never guess", "professional"} {
		if !strings.Contains(p, want) {
			t.Fatalf("support prompt is missing %q", want)
		}
	}
	if p != strings.TrimSpace(p) {
		t.Fatal("support prompt is not trimmed")
	}
}
