package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	Logf("moved %s by %d counts", "mono", 40)
	if got != "moved mono by 40 counts" {
		t.Errorf("captured log = %q", got)
	}

	// nil installs a no-op rather than a nil func
	called := false
	SetLogger(func(string, ...interface{}) { called = true })
	SetLogger(nil)
	Logf("dropped")
	if called {
		t.Error("no-op logger invoked the previous logger")
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
}
