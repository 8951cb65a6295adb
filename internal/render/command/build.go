package command

import (
	"context"
	"os/exec"
	"strings"
)

// buildCommand constructs an *exec.Cmd for a configured command line.
// It avoids invoking a shell when not necessary, and respects an explicit
// shell invocation already present in the string (e.g. "sh -c '...'")
// without double-wrapping it.
func buildCommand(ctx context.Context, line string) *exec.Cmd {
	cmdStr := strings.TrimSpace(line)
	if _, afterC, ok := parseExplicitShell(cmdStr); ok {
		// Absolute shell path avoids a PATH dependency when Env is isolated.
		// #nosec G204
		return exec.CommandContext(ctx, "/bin/sh", "-c", afterC)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.CommandContext(ctx, "/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.CommandContext(ctx, parts[0], parts[1:]...)
}

func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			// strip one pair of wrapping quotes so the shell parses the script itself
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}
