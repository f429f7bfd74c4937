package version

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	old := [3]string{Version, Commit, BuildTime}
	defer func() { Version, Commit, BuildTime = old[0], old[1], old[2] }()

	Version, Commit, BuildTime = "1.2.3", "abc123", "2024-01-01T00:00:00Z"
	want := "1.2.3 (abc123) built 2024-01-01T00:00:00Z"
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("starting", Attrs())

	out := buf.String()
	for _, want := range []string{"build.version=" + Version, "build.commit=" + Commit} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %q missing %q", out, want)
		}
	}
}
