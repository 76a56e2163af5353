package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestGetCommands_HitRoutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/remove/mixwell" {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte("primary channel cannot be removed"))
			return
		}
		w.Write([]byte("ok " + r.URL.Path))
	}))
	defer srv.Close()

	tests := []struct {
		args     []string
		wantPath string
	}{
		{[]string{"status"}, "/status"},
		{[]string{"status", "foo"}, "/status/foo"},
		{[]string{"list"}, "/list"},
		{[]string{"add", "foo"}, "/add/foo"},
		{[]string{"change", "bar"}, "/change/bar"},
		{[]string{"stop"}, "/exit"},
		{[]string{"health"}, "/health/ready"},
	}
	for _, tt := range tests {
		out, _, err := run(t, append(tt.args, "--addr", srv.URL)...)
		if err != nil {
			t.Errorf("%v: %v", tt.args, err)
			continue
		}
		if out != "ok "+tt.wantPath+"\n" {
			t.Errorf("%v: output = %q", tt.args, out)
		}
	}

	_, errOut, err := run(t, "remove", "mixwell", "--addr", srv.URL)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("remove primary error = %v, want a 403 error", err)
	}
	if !strings.Contains(errOut, "cannot be removed") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestGetCommands_ArgumentValidation(t *testing.T) {
	if _, _, err := run(t, "add"); err == nil {
		t.Error("add without a channel should fail")
	}
	if _, _, err := run(t, "list", "extra"); err == nil {
		t.Error("list with an argument should fail")
	}
}

func TestGetCommands_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	out, _, err := run(t, "list", "--addr", addr)
	if err != nil {
		t.Fatalf("list against a dead server: %v", err)
	}
	if out != notRunningMsg+"\n" {
		t.Errorf("output = %q, want %q", out, notRunningMsg)
	}
}

func TestLogCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watcher.log")
	if err := os.WriteFile(path, []byte("line one\nline two\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := run(t, "log", "--file", path)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if out != "line one\nline two\n" {
		t.Errorf("output = %q", out)
	}

	out, _, err = run(t, "log", "--file", filepath.Join(t.TempDir(), "missing.log"))
	if err != nil {
		t.Fatalf("log missing: %v", err)
	}
	if out != noLogMsg+"\n" {
		t.Errorf("output = %q, want %q", out, noLogMsg)
	}
}
