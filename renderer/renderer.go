// Package renderer converts composed HTML into PDF bytes through external
// rendering engines. Engines are tried in a fixed order; when every engine
// fails the chain reports a collaborator failure carrying a remediation hint
// derived from the last error, so operators can fix the environment without
// reading stack traces.
package renderer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"doctrans/fault"
	"doctrans/observability"
)

// Renderer turns an HTML document into PDF bytes.
type Renderer interface {
	// Engine returns a short engine identifier for logs and reports.
	Engine() string
	// Available reports whether the engine can run in this environment.
	Available() bool
	// Render converts the HTML payload to PDF. BaseDir, when non-empty, is
	// the directory relative asset references resolve against.
	Render(ctx context.Context, html []byte, baseDir string) ([]byte, error)
}

// CommandRenderer shells out to an HTML-to-PDF binary. The argument list is
// templated with {in} and {out} placeholders for the input HTML file and the
// output PDF file.
type CommandRenderer struct {
	Name string
	Bin  string
	Args []string
}

// Chromium renders through a headless Chromium or Chrome binary.
func Chromium(bin string) *CommandRenderer {
	return &CommandRenderer{
		Name: "chromium",
		Bin:  bin,
		Args: []string{
			"--headless", "--no-sandbox", "--disable-gpu",
			"--no-pdf-header-footer", "--print-to-pdf={out}", "{in}",
		},
	}
}

// WKHTMLToPDF renders through the wkhtmltopdf binary.
func WKHTMLToPDF() *CommandRenderer {
	return &CommandRenderer{
		Name: "wkhtmltopdf",
		Bin:  "wkhtmltopdf",
		Args: []string{"--enable-local-file-access", "--quiet", "{in}", "{out}"},
	}
}

// WeasyPrint renders through the weasyprint CLI.
func WeasyPrint() *CommandRenderer {
	return &CommandRenderer{
		Name: "weasyprint",
		Bin:  "weasyprint",
		Args: []string{"{in}", "{out}"},
	}
}

func (r *CommandRenderer) Engine() string { return r.Name }

// Available reports whether the binary is on PATH.
func (r *CommandRenderer) Available() bool {
	_, err := exec.LookPath(r.Bin)
	return err == nil
}

// Render writes the HTML next to the job assets so relative references
// resolve, runs the binary, and reads the produced PDF back.
func (r *CommandRenderer) Render(ctx context.Context, html []byte, baseDir string) ([]byte, error) {
	dir := baseDir
	if dir == "" {
		var err error
		dir, err = os.MkdirTemp("", "render-")
		if err != nil {
			return nil, fmt.Errorf("create render dir: %w", err)
		}
		defer os.RemoveAll(dir)
	}

	inPath := filepath.Join(dir, ".render_input.html")
	outPath := filepath.Join(dir, ".render_output.pdf")
	if err := os.WriteFile(inPath, html, 0o644); err != nil {
		return nil, fmt.Errorf("write render input: %w", err)
	}
	defer os.Remove(inPath)
	defer os.Remove(outPath)

	args := make([]string, 0, len(r.Args))
	for _, a := range r.Args {
		a = strings.ReplaceAll(a, "{in}", inPath)
		a = strings.ReplaceAll(a, "{out}", outPath)
		args = append(args, a)
	}

	cmd := exec.CommandContext(ctx, r.Bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", r.Name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", r.Name, err)
	}

	pdf, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("%s produced no output: %w", r.Name, err)
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("%s produced an empty document", r.Name)
	}
	return pdf, nil
}

// Chain tries renderers in order until one succeeds.
type Chain struct {
	renderers []Renderer
	log       observability.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithLogger sets the chain logger.
func WithLogger(log observability.Logger) ChainOption {
	return func(c *Chain) {
		if log != nil {
			c.log = log
		}
	}
}

// NewChain builds a fallback chain over the given renderers.
func NewChain(renderers []Renderer, opts ...ChainOption) *Chain {
	c := &Chain{renderers: renderers, log: observability.NopLogger{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultChain returns the standard engine order: chromium, chrome,
// wkhtmltopdf, weasyprint.
func DefaultChain(opts ...ChainOption) *Chain {
	return NewChain([]Renderer{
		Chromium("chromium"),
		Chromium("google-chrome"),
		WKHTMLToPDF(),
		WeasyPrint(),
	}, opts...)
}

func (c *Chain) Engine() string  { return "chain" }
func (c *Chain) Available() bool { return len(c.available()) > 0 }

func (c *Chain) available() []Renderer {
	out := make([]Renderer, 0, len(c.renderers))
	for _, r := range c.renderers {
		if r.Available() {
			out = append(out, r)
		}
	}
	return out
}

// Render tries each available engine in order, collecting per-engine
// failures. When no engine is installed or all fail, the returned error has
// code COLLABORATOR_FAILURE and carries a remediation hint plus the collected
// attempts in its details.
func (c *Chain) Render(ctx context.Context, html []byte, baseDir string) ([]byte, error) {
	avail := c.available()
	if len(avail) == 0 {
		err := fault.Collaborator("render", fmt.Errorf("no rendering engine installed"))
		err.Details["hint"] = "install chromium, wkhtmltopdf or weasyprint"
		return nil, err
	}

	attempts := make([]string, 0, len(avail))
	var lastErr error
	for _, r := range avail {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pdf, err := r.Render(ctx, html, baseDir)
		if err == nil {
			c.log.Debug("rendered document",
				observability.String("engine", r.Engine()),
				observability.Int("bytes", len(pdf)))
			return pdf, nil
		}
		c.log.Warn("render engine failed",
			observability.String("engine", r.Engine()),
			observability.Error("error", err))
		attempts = append(attempts, fmt.Sprintf("%s: %v", r.Engine(), err))
		lastErr = err
	}

	ferr := fault.Collaborator("render", lastErr)
	ferr.Details["hint"] = hintFor(lastErr)
	ferr.Details["attempts"] = attempts
	return nil, ferr
}

// hintFor maps a terminal render failure to an operator-facing remediation.
func hintFor(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "executable file not found"):
		return "install the rendering binary and ensure it is on PATH"
	case strings.Contains(msg, "permission denied"):
		return "check execute permissions on the rendering binary"
	case strings.Contains(msg, "signal: killed"), strings.Contains(msg, "context deadline"):
		return "rendering timed out; raise the render timeout or reduce document size"
	case strings.Contains(msg, "sandbox"):
		return "browser sandbox failure; reinstall the browser or relax sandboxing"
	default:
		return "rendering failed; check engine logs for details"
	}
}
