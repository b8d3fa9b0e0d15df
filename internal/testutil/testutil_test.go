package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// recordingTB captures failures instead of failing the running test.
// Fatal stops the calling goroutine, so run helpers through record.
type recordingTB struct {
	testing.TB
	failed bool
	msg    string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(format string, args ...interface{}) {
	r.failed = true
	r.msg = fmt.Sprintf(format, args...)
}

func (r *recordingTB) Fatalf(format string, args ...interface{}) {
	r.Errorf(format, args...)
	runtime.Goexit()
}

func (r *recordingTB) Fatal(args ...interface{}) {
	r.failed = true
	r.msg = fmt.Sprint(args...)
	runtime.Goexit()
}

func record(fn func(tb testing.TB)) *recordingTB {
	rec := &recordingTB{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(rec)
	}()
	<-done
	return rec
}

func TestAssertNoError(t *testing.T) {
	t.Parallel()

	// Verify nil error doesn't cause issues
	AssertNoError(t, nil)
}

func TestAssertNoError_FailurePath(t *testing.T) {
	t.Parallel()

	rec := record(func(tb testing.TB) { AssertNoError(tb, errors.New("boom")) })
	if !rec.failed {
		t.Fatal("expected failure when error is non-nil")
	}
	if rec.msg != "unexpected error: boom" {
		t.Errorf("message = %q", rec.msg)
	}
}

func TestAssertError(t *testing.T) {
	t.Parallel()

	AssertError(t, errors.New("test error"))
}

func TestAssertError_FailurePath(t *testing.T) {
	t.Parallel()

	rec := record(func(tb testing.TB) { AssertError(tb, nil) })
	if !rec.failed {
		t.Fatal("expected failure when error is nil")
	}
}

func TestAssertNear(t *testing.T) {
	t.Parallel()

	AssertNear(t, "x", 1.0000001, 1.0, 1e-6)

	rec := record(func(tb testing.TB) { AssertNear(tb, "x", 1.1, 1.0, 1e-6) })
	if !rec.failed {
		t.Fatal("expected failure outside tolerance")
	}
}

func TestAssertVecNear(t *testing.T) {
	t.Parallel()

	AssertVecNear(t, r3.Vec{X: 1, Y: 2, Z: 3}, r3.Vec{X: 1, Y: 2, Z: 3 + 1e-9}, 1e-6)

	rec := record(func(tb testing.TB) { AssertVecNear(tb, r3.Vec{X: 1}, r3.Vec{Y: 1}, 1e-6) })
	if !rec.failed {
		t.Fatal("expected failure outside tolerance")
	}
}

func TestTempDBPath(t *testing.T) {
	t.Parallel()

	path := TempDBPath(t)
	if filepath.Base(path) != "test.db" {
		t.Errorf("base = %s, want test.db", filepath.Base(path))
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("temp dir missing: %v", err)
	}
}

func TestWriteTempFile(t *testing.T) {
	t.Parallel()

	path := WriteTempFile(t, "in.txt", "hello")
	data, err := os.ReadFile(path)
	AssertNoError(t, err)
	if string(data) != "hello" {
		t.Errorf("content = %q, want hello", data)
	}
}
