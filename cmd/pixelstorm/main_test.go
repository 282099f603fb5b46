package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDemo(t *testing.T) {
	out, err := execute(t, "demo", "--log-level", "error")
	if err != nil {
		t.Fatalf("demo failed: %v\n%s", err, out)
	}
	for _, want := range []string{
		"undo x3                layers=1 frames=1\n",
		"redo x3                layers=1 frames=2 cel2.opacity=128 linked=true\n",
		"history:\n",
		"Set Frame Duration",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("demo output missing %q:\n%s", want, out)
		}
	}
}

func TestRunScript(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "pixelstorm.toml", `
[log]
level = "error"

[autosave]
enabled = true
in_memory = true
`)
	lua := writeFile(t, dir, "edit.lua", `
sprite.transaction("Setup", function()
	sprite.add_frame()
	sprite.add_layer("Ink")
end)
print("frames", sprite.frames())
`)

	out, err := execute(t, "--config", cfg, "run", "--history", "--width", "8", "--height", "8", lua)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	for _, want := range []string{"frames\t2\n", "autosaved ", "*   1 Setup\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("run output missing %q:\n%s", want, out)
		}
	}
}

func TestRunScriptError(t *testing.T) {
	dir := t.TempDir()
	lua := writeFile(t, dir, "bad.lua", `sprite.remove_frame(1)`)
	out, err := execute(t, "--log-level", "error", "run", lua)
	if err == nil {
		t.Fatalf("run accepted a failing script:\n%s", out)
	}
}

func TestRunRejectsBadFormat(t *testing.T) {
	dir := t.TempDir()
	lua := writeFile(t, dir, "noop.lua", `return`)
	if _, err := execute(t, "--log-level", "error", "run", "--format", "cmyk", lua); err == nil {
		t.Fatal("run accepted an unknown pixel format")
	}
}
