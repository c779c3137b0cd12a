package ml

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testdataPaths() ArtifactPaths {
	return ArtifactPaths{
		PreprocessorPath: "testdata/preprocessor.json",
		ModelType:        ModelXGBoost,
		ModelPath:        "testdata/xgb_model.json",
	}
}

func TestLoadPipeline(t *testing.T) {
	p, err := LoadPipeline(testdataPaths())
	if err != nil {
		t.Fatalf("LoadPipeline: %v", err)
	}
	rows, err := p.Transform(exampleFrame(t))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	got, err := p.Predict(rows[0])
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got != 143 {
		t.Fatalf("expected 143, got %v", got)
	}
}

func TestLoadPipelineWidthMismatch(t *testing.T) {
	dir := t.TempDir()
	paths := testdataPaths()
	paths.ModelType = ModelLinear
	paths.ModelPath = writeFile(t, dir, "linear.json", `{"coefficients": [1, 2, 3], "intercept": 0}`)
	_, err := LoadPipeline(paths)
	var shape *ShapeError
	if !errors.As(err, &shape) {
		t.Fatalf("expected ShapeError, got %v", err)
	}

	paths = testdataPaths()
	paths.PreprocessorPath = filepath.Join(dir, "absent.json")
	if _, err := LoadPipeline(paths); err == nil || !strings.Contains(err.Error(), "load preprocessor") {
		t.Fatalf("expected preprocessor error, got %v", err)
	}
}

func TestRegistryGetLoadsOnce(t *testing.T) {
	r := NewRegistry(testdataPaths(), nil)
	var calls atomic.Int32
	r.load = func(paths ArtifactPaths) (*Pipeline, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return LoadPipeline(paths)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Get(); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()
	if calls.Load() != 1 {
		t.Fatalf("expected a single load, got %d", calls.Load())
	}
}

func TestRegistryRetriesFailedLoad(t *testing.T) {
	r := NewRegistry(testdataPaths(), nil)
	fail := true
	r.load = func(paths ArtifactPaths) (*Pipeline, error) {
		if fail {
			return nil, errors.New("artifact missing")
		}
		return LoadPipeline(paths)
	}
	if _, err := r.Get(); err == nil {
		t.Fatalf("expected load error")
	}
	if r.Current() != nil {
		t.Fatalf("expected no pipeline after failed load")
	}
	fail = false
	if _, err := r.Get(); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
}

func TestRegistryKeepsPreviousOnFailedReload(t *testing.T) {
	r := NewRegistry(testdataPaths(), nil)
	if err := r.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	before := r.Current()
	r.load = func(ArtifactPaths) (*Pipeline, error) {
		return nil, errors.New("corrupt")
	}
	if err := r.Load(); err == nil {
		t.Fatalf("expected reload error")
	}
	if r.Current() != before {
		t.Fatalf("expected previous pipeline to stay current")
	}
}

func TestRegistryWatchReloads(t *testing.T) {
	dir := t.TempDir()
	copyFile := func(src, name string) string {
		payload, err := os.ReadFile(src)
		if err != nil {
			t.Fatalf("read %s: %v", src, err)
		}
		return writeFile(t, dir, name, string(payload))
	}
	paths := ArtifactPaths{
		PreprocessorPath: copyFile("testdata/preprocessor.json", "preprocessor.json"),
		ModelType:        ModelXGBoost,
		ModelPath:        copyFile("testdata/xgb_model.json", "model.json"),
	}
	r := NewRegistry(paths, nil)
	if err := r.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	before := r.Current()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	// a broken write is ignored
	writeFile(t, dir, "model.json", "{")
	time.Sleep(2 * reloadDebounce)
	if r.Current() != before {
		t.Fatalf("expected broken artifact to be ignored")
	}

	payload, _ := os.ReadFile("testdata/xgb_model.json")
	updated := strings.Replace(string(payload), `"[1.2E2]"`, `"[2E2]"`, 1)
	writeFile(t, dir, "model.json", updated)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if p := r.Current(); p != before {
			rows, err := p.Transform(exampleFrame(t))
			if err != nil {
				t.Fatalf("Transform: %v", err)
			}
			got, _ := p.Predict(rows[0])
			if got != 223 {
				t.Fatalf("expected reloaded model to predict 223, got %v", got)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("pipeline was not reloaded")
}
