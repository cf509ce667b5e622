package renderer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"doctrans/fault"
)

type stubRenderer struct {
	name      string
	available bool
	pdf       []byte
	err       error
	calls     int
}

func (s *stubRenderer) Engine() string  { return s.name }
func (s *stubRenderer) Available() bool { return s.available }

func (s *stubRenderer) Render(ctx context.Context, html []byte, baseDir string) ([]byte, error) {
	s.calls++
	return s.pdf, s.err
}

func TestChainFirstSuccessWins(t *testing.T) {
	first := &stubRenderer{name: "a", available: true, pdf: []byte("%PDF-a")}
	second := &stubRenderer{name: "b", available: true, pdf: []byte("%PDF-b")}
	chain := NewChain([]Renderer{first, second})

	pdf, err := chain.Render(context.Background(), []byte("<html></html>"), "")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if string(pdf) != "%PDF-a" {
		t.Errorf("pdf = %q", pdf)
	}
	if second.calls != 0 {
		t.Error("second engine should not run after first success")
	}
}

func TestChainFallsThrough(t *testing.T) {
	first := &stubRenderer{name: "a", available: true, err: errors.New("a broke")}
	second := &stubRenderer{name: "b", available: true, pdf: []byte("%PDF-b")}
	chain := NewChain([]Renderer{first, second})

	pdf, err := chain.Render(context.Background(), []byte("<html></html>"), "")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if string(pdf) != "%PDF-b" {
		t.Errorf("pdf = %q", pdf)
	}
}

func TestChainSkipsUnavailable(t *testing.T) {
	missing := &stubRenderer{name: "a", available: false, err: errors.New("should not run")}
	working := &stubRenderer{name: "b", available: true, pdf: []byte("%PDF")}
	chain := NewChain([]Renderer{missing, working})

	if _, err := chain.Render(context.Background(), nil, ""); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if missing.calls != 0 {
		t.Error("unavailable engine was invoked")
	}
}

func TestChainAllFailReportsCollaborator(t *testing.T) {
	first := &stubRenderer{name: "a", available: true, err: errors.New("crash")}
	second := &stubRenderer{name: "b", available: true, err: fmt.Errorf("exec: %w", errors.New("executable file not found in $PATH"))}
	chain := NewChain([]Renderer{first, second})

	_, err := chain.Render(context.Background(), nil, "")
	if !fault.IsCode(err, fault.CodeCollaborator) {
		t.Fatalf("err = %v, want COLLABORATOR_FAILURE", err)
	}
	var ferr *fault.Error
	if !errors.As(err, &ferr) {
		t.Fatal("not a fault.Error")
	}
	if ferr.Details["hint"] != "install the rendering binary and ensure it is on PATH" {
		t.Errorf("hint = %v", ferr.Details["hint"])
	}
	attempts, ok := ferr.Details["attempts"].([]string)
	if !ok || len(attempts) != 2 {
		t.Errorf("attempts = %v", ferr.Details["attempts"])
	}
}

func TestChainNoEnginesInstalled(t *testing.T) {
	chain := NewChain([]Renderer{&stubRenderer{name: "a"}})

	_, err := chain.Render(context.Background(), nil, "")
	if !fault.IsCode(err, fault.CodeCollaborator) {
		t.Fatalf("err = %v, want COLLABORATOR_FAILURE", err)
	}
	var ferr *fault.Error
	errors.As(err, &ferr)
	if ferr.Details["hint"] == "" {
		t.Error("expected installation hint")
	}
}

func TestChainHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng := &stubRenderer{name: "a", available: true, pdf: []byte("%PDF")}
	chain := NewChain([]Renderer{eng})

	if _, err := chain.Render(ctx, nil, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if eng.calls != 0 {
		t.Error("engine ran after cancellation")
	}
}

func TestHintFor(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{errors.New("exec: \"wkhtmltopdf\": executable file not found in $PATH"), "install the rendering binary and ensure it is on PATH"},
		{errors.New("fork/exec: permission denied"), "check execute permissions on the rendering binary"},
		{errors.New("context deadline exceeded"), "rendering timed out; raise the render timeout or reduce document size"},
		{errors.New("chromium sandbox crashed"), "browser sandbox failure; reinstall the browser or relax sandboxing"},
		{errors.New("something else"), "rendering failed; check engine logs for details"},
	}
	for _, tc := range cases {
		if got := hintFor(tc.err); got != tc.want {
			t.Errorf("hintFor(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
