package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestPidFile(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "iconrender.pid")

	if err := writePidFile(pidFile, os.Getpid()); err != nil {
		t.Fatalf("writePidFile failed: %v", err)
	}
	b, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if string(b) != strconv.Itoa(os.Getpid()) {
		t.Errorf("pid file = %q", b)
	}

	if err := removePidFile(pidFile); err != nil {
		t.Errorf("removePidFile failed: %v", err)
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Error("PID file was not removed")
	}
	if err := removePidFile(""); err != nil {
		t.Errorf("empty pid path: %v", err)
	}
}

func TestChildArgs(t *testing.T) {
	in := []string{"--config", "a.toml", "run", "--daemonize", "--pidfile", "/tmp/x.pid", "--logfile=/tmp/x.log", "--daemonize=true"}
	got := childArgs(in)
	want := []string{"--config", "a.toml", "run"}
	if len(got) != len(want) {
		t.Fatalf("childArgs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("childArgs = %v, want %v", got, want)
		}
	}
}
