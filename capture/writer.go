// CLAUDE:SUMMARY Atomic debug captures of lookup pages: markdown with YAML frontmatter, sanitized HTML, PNG screenshot.
// Package capture writes the page state of failed or unclear lookups to a
// directory so selectors can be repaired from real pages.
//
// Each capture produces <id>.md (YAML frontmatter + Markdown rendering),
// <id>.html (sanitized page) and, when a screenshot was taken, <id>.png.
// Files are written atomically (write .tmp then rename).
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/censo/idgen"
	"github.com/hazyhaar/censo/verifier"
)

// Metadata is the frontmatter of a capture.
type Metadata struct {
	ID         string    `yaml:"id"`
	Identifier string    `yaml:"identifier"` // masked
	Kind       string    `yaml:"kind"`
	Step       string    `yaml:"step"`
	URL        string    `yaml:"url"`
	Error      string    `yaml:"error,omitempty"`
	Screenshot string    `yaml:"screenshot,omitempty"`
	CapturedAt time.Time `yaml:"captured_at"`
}

// Option configures a Writer.
type Option func(*Writer)

// WithIDGenerator overrides capture IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(w *Writer) { w.newID = gen }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) { w.logger = l }
}

// Writer deposits captures into a directory. It implements
// verifier.Capturer.
type Writer struct {
	dir    string
	newID  idgen.Generator
	logger *slog.Logger
	md     *converter.Converter
	policy *bluemonday.Policy
}

// NewWriter creates a Writer targeting dir. The directory is created on
// first write.
func NewWriter(dir string, opts ...Option) *Writer {
	w := &Writer{
		dir:    dir,
		newID:  idgen.Prefixed("cap_", idgen.Timestamped(idgen.NanoID(6))),
		logger: slog.Default(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		policy: pagePolicy(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// pagePolicy keeps the structure selectors are written against (classes,
// ids, form controls) and drops scripts and event handlers.
func pagePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("form", "input", "button", "select", "option", "label", "section", "main")
	p.AllowAttrs("class", "id").Globally()
	p.AllowAttrs("name", "type", "placeholder", "value").OnElements("input", "button", "select", "option")
	return p
}

// Capture implements verifier.Capturer.
func (w *Writer) Capture(ctx context.Context, c verifier.Capture) error {
	_, err := w.Write(ctx, c)
	return err
}

// Write stores one capture and returns the path of its .md file.
func (w *Writer) Write(ctx context.Context, c verifier.Capture) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("capture: %w", err)
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("capture: mkdir %s: %w", w.dir, err)
	}

	at := c.At
	if at.IsZero() {
		at = time.Now()
	}
	meta := Metadata{
		ID:         w.newID(),
		Identifier: verifier.Mask(c.Identifier),
		Kind:       string(c.Kind),
		Step:       c.Step,
		URL:        c.URL,
		Error:      c.Err,
		CapturedAt: at.UTC(),
	}

	if len(c.Screenshot) > 0 {
		meta.Screenshot = meta.ID + ".png"
		if err := writeAtomic(filepath.Join(w.dir, meta.Screenshot), c.Screenshot); err != nil {
			return "", err
		}
	}

	clean := w.policy.Sanitize(c.HTML)
	if err := writeAtomic(filepath.Join(w.dir, meta.ID+".html"), []byte(clean)); err != nil {
		return "", err
	}

	front, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("capture: frontmatter: %w", err)
	}
	body := w.markdown(clean, c.URL)

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(front)
	b.WriteString("---\n\n")
	b.WriteString(body)
	b.WriteByte('\n')

	target := filepath.Join(w.dir, meta.ID+".md")
	if err := writeAtomic(target, []byte(b.String())); err != nil {
		return "", err
	}

	w.logger.Info("capture: written", "id", meta.ID, "kind", meta.Kind, "step", meta.Step)
	return target, nil
}

func (w *Writer) markdown(page, url string) string {
	if strings.TrimSpace(page) == "" {
		return "_(empty page)_"
	}
	md, err := w.md.ConvertString(page, converter.WithDomain(url))
	if err != nil || strings.TrimSpace(md) == "" {
		return "_(no text content)_"
	}
	return strings.TrimSpace(md)
}

// ReadMetadata parses the frontmatter of a capture .md file.
func ReadMetadata(path string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, fmt.Errorf("capture: %w", err)
	}
	rest, ok := strings.CutPrefix(string(data), "---\n")
	if !ok {
		return meta, fmt.Errorf("capture: %s: missing frontmatter", path)
	}
	front, _, ok := strings.Cut(rest, "\n---\n")
	if !ok {
		return meta, fmt.Errorf("capture: %s: unterminated frontmatter", path)
	}
	if err := yaml.Unmarshal([]byte(front), &meta); err != nil {
		return meta, fmt.Errorf("capture: %s: %w", path, err)
	}
	return meta, nil
}

func writeAtomic(target string, data []byte) error {
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("capture: write tmp: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("capture: rename: %w", err)
	}
	return nil
}
