package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestAppendWritesImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	out, err := New(path)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer out.Close()

	if err := out.Append(context.Background(), []byte("(Info)a\n \n(Info)b\n \n")); err != nil {
		t.Fatalf("Append error: %v", err)
	}

	// Data must be on disk before Close.
	data, _ := os.ReadFile(path)
	if string(data) != "(Info)a\n \n(Info)b\n \n" {
		t.Errorf("file contents = %q", data)
	}
}

func TestAppendKeepsExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	os.WriteFile(path, []byte("old\n"), 0644)

	out, err := New(path)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	out.Append(context.Background(), []byte("new\n"))
	out.Close()

	data, _ := os.ReadFile(path)
	if string(data) != "old\nnew\n" {
		t.Errorf("file contents = %q, want old then new", data)
	}
}

func TestNewCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "out.log")
	out, err := New(path)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	out.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
}

func TestRotationTriggersAtMaxSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")

	out, err := New(path, WithMaxSize(100))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	line := []byte(strings.Repeat("x", 59) + "\n")
	for i := 0; i < 5; i++ {
		if err := out.Append(context.Background(), line); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}
	out.Close()

	if _, err := os.Stat(path + ".1"); os.IsNotExist(err) {
		t.Error("expected rotated file .1 to exist")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("current file stat error: %v", err)
	}
	if info.Size() == 0 {
		t.Error("current file is empty after rotation")
	}
}

func TestConcurrentAppendsSafe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	out, err := New(path)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out.Append(context.Background(), []byte("line\n"))
		}()
	}
	wg.Wait()
	out.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 50 {
		t.Errorf("got %d lines, want 50", len(lines))
	}
}

func TestRotationKeepsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	out, err := New(path, WithMaxSize(10), WithBackups(2))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := out.Append(context.Background(), []byte(fmt.Sprintf("line-%d-xx\n", i))); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}
	out.Close()

	want := map[string]string{
		path:        "line-4-xx\n",
		path + ".1": "line-3-xx\n",
		path + ".2": "line-2-xx\n",
	}
	for p, content := range want {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		if string(data) != content {
			t.Errorf("%s = %q, want %q", filepath.Base(p), data, content)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Error("expected no third backup")
	}
}

func TestBlobNeverSplitAcrossRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	out, _ := New(path, WithMaxSize(8))
	blob := []byte("(Info)a\n \n(Info)b\n \n")
	out.Append(context.Background(), blob)
	out.Append(context.Background(), blob)
	out.Close()

	for _, p := range []string{path, path + ".1"} {
		data, _ := os.ReadFile(p)
		if string(data) != string(blob) {
			t.Errorf("%s = %q, want one whole blob", filepath.Base(p), data)
		}
	}
}

func TestSyncAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	out, err := New(path, WithSync(true))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer out.Close()
	if err := out.Append(context.Background(), []byte("x\n")); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "x\n" {
		t.Errorf("file contents = %q", data)
	}
}

func TestAppendAfterClose(t *testing.T) {
	out, _ := New(filepath.Join(t.TempDir(), "out.log"))
	if err := out.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Errorf("second Close error: %v", err)
	}
	if err := out.Append(context.Background(), []byte("x\n")); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("Append after Close = %v, want fs.ErrClosed", err)
	}
}
