package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	err := Validation("w must be positive, got %d", -3)
	if CodeOf(err) != CodeValidation {
		t.Fatalf("CodeOf = %q, want %q", CodeOf(err), CodeValidation)
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Fatal("plain error should have no code")
	}
}

func TestWrappedCodeSurvives(t *testing.T) {
	inner := Collaborator("vision", errors.New("timeout"))
	outer := fmt.Errorf("process page 3: %w", inner)
	if !IsCode(outer, CodeCollaborator) {
		t.Fatal("code lost through wrapping")
	}
	var e *Error
	if !errors.As(outer, &e) {
		t.Fatal("errors.As failed")
	}
	if e.Details["stage"] != "vision" {
		t.Fatalf("stage detail = %v", e.Details["stage"])
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := Precondition("markdown_ready", "generate requires extracted markdown")
	if !errors.Is(err, &Error{Code: CodePrecondition}) {
		t.Fatal("Is should match by code")
	}
	if errors.Is(err, &Error{Code: CodeValidation}) {
		t.Fatal("Is should not match a different code")
	}
}

func TestTraversalOmitsPaths(t *testing.T) {
	err := Traversal("../../etc/passwd")
	if got := err.Error(); got != "PATH_TRAVERSAL_REJECTED: asset path escapes job root" {
		t.Fatalf("message leaks detail: %q", got)
	}
}
