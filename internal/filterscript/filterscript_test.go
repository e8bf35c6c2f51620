package filterscript

import "testing"

func TestScriptFilterEvaluatesExpression(t *testing.T) {
	f, err := New("payload.Value >= 5")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if f.ShouldProcess(map[string]any{"Value": 3}) {
		t.Fatalf("expected 3 to be filtered out")
	}
	if !f.ShouldProcess(map[string]any{"Value": 7}) {
		t.Fatalf("expected 7 to pass")
	}
}

func TestScriptFilterCompileErrorIsReported(t *testing.T) {
	if _, err := New("payload.("); err == nil {
		t.Fatalf("expected compile error for malformed expression")
	}
}

func TestScriptFilterRuntimeErrorFailsClosed(t *testing.T) {
	f, err := New("payload.nested.deep")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if f.ShouldProcess(map[string]any{}) {
		t.Fatalf("expected runtime error accessing undefined nested property to fail closed")
	}
}

func TestScriptFilterReusableAcrossCalls(t *testing.T) {
	f, err := New("payload > 0")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := -2; i <= 2; i++ {
		got := f.ShouldProcess(i)
		want := i > 0
		if got != want {
			t.Fatalf("ShouldProcess(%d) = %v, want %v", i, got, want)
		}
	}
}
