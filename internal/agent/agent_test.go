package agent

import (
	"context"
	"strings"
	"testing"
)

func TestSucceeded(t *testing.T) {
	cases := []struct {
		name        string
		inv         Invocation
		interactive bool
		want        bool
	}{
		{"interactive exit 0", Invocation{ExitCode: 0}, true, true},
		{"interactive exit 1", Invocation{ExitCode: 1}, true, false},
		{"captured with marker", Invocation{ExitCode: 0, Stdout: "done\n<SUCCESS>\n"}, false, true},
		{"captured without marker", Invocation{ExitCode: 0, Stdout: "done\n"}, false, false},
		{"captured marker but nonzero exit", Invocation{ExitCode: 2, Stdout: "<SUCCESS>"}, false, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.inv.Succeeded(c.interactive); got != c.want {
				t.Errorf("Succeeded(%v) = %v, want %v", c.interactive, got, c.want)
			}
		})
	}
}

func TestCollectDiagnostics(t *testing.T) {
	stdout := "line one\nline two\nline three\n"
	stderr := "error: Permission denied while writing /etc/hosts\n"

	diags := collectDiagnostics(stdout, stderr)

	foundDenied := false
	foundTail := false
	for _, d := range diags {
		if strings.Contains(d, "Permission denied") {
			foundDenied = true
		}
		if strings.HasPrefix(d, "last output:") {
			foundTail = true
		}
	}
	if !foundDenied {
		t.Errorf("diagnostics missing permission-denied line: %v", diags)
	}
	if !foundTail {
		t.Errorf("diagnostics missing output tail: %v", diags)
	}
}

func TestLastLines(t *testing.T) {
	got := lastLines("a\nb\nc\nd\ne\nf", 3)
	if got != "d / e / f" {
		t.Errorf("lastLines = %q, want %q", got, "d / e / f")
	}
	if lastLines("", 5) != "" {
		t.Error("empty input should yield empty tail")
	}
}

func TestInvokeRejectsMissingCommand(t *testing.T) {
	r := NewCLIRunner()
	if _, err := r.Invoke(context.Background(), Options{}); err == nil {
		t.Error("empty command should error")
	}
	if _, err := r.Invoke(context.Background(), Options{Command: "definitely-not-a-real-binary-xyz"}); err == nil {
		t.Error("missing binary should error")
	}
}
