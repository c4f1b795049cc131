package manifest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/testhost/packages/core/framework"
)

const (
	// warningPrefix marks an output line as a test warning
	warningPrefix = "::warning::"

	waitDelay = 500 * time.Millisecond
)

// ShellBody returns a body running command via sh -c in dir. A leading "-"
// ignores a non-zero exit. env is added to the process environment, then
// the row values, then LC_ALL when the run has a culture.
func ShellBody(command, dir string, env map[string]string) framework.Body {
	return func(ctx context.Context, t *framework.T) error {
		cmdStr := strings.TrimSpace(command)
		if cmdStr == "" {
			return nil
		}

		ignoreError := strings.HasPrefix(cmdStr, "-")
		if ignoreError {
			cmdStr = strings.TrimSpace(strings.TrimPrefix(cmdStr, "-"))
		}

		cmd := exec.CommandContext(ctx, "sh", "-c", cmdStr)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), environ(env)...)
		cmd.Env = append(cmd.Env, environ(t.Row.Values)...)
		if culture, ok := framework.Culture(ctx); ok {
			cmd.Env = append(cmd.Env, "LC_ALL="+posixLocale(culture))
		}

		// children of sh may keep the pipes open after a kill
		cmd.WaitDelay = waitDelay

		w := &lineWriter{t: t}
		cmd.Stdout = w
		cmd.Stderr = w

		err := cmd.Run()
		w.flush()

		if err == nil || ignoreError {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return framework.Fail("command exited with code %d: %s", exitErr.ExitCode(), cmdStr)
		}
		return err
	}
}

func environ(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}

// posixLocale turns a BCP 47 tag into a POSIX locale name; the invariant
// culture is "C"
func posixLocale(culture string) string {
	if culture == "" {
		return "C"
	}
	return strings.ReplaceAll(culture, "-", "_") + ".UTF-8"
}

// lineWriter forwards complete lines of process output to the test
type lineWriter struct {
	t   *framework.T
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// keep the partial line for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emit(strings.TrimSuffix(line, "\n"))
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *lineWriter) emit(line string) {
	if msg, ok := strings.CutPrefix(line, warningPrefix); ok {
		w.t.Warn(strings.TrimSpace(msg))
		return
	}
	w.t.Log(line)
}
