// Package convert implements the optional external-converter step that
// turns an assembled HTML Document into PDF, EPUB, or DOCX, the way the
// teacher's plugins/tool/pandoc wraps the real pandoc binary: shell out,
// capture combined output on failure, never treat the failure as fatal to
// the request (spec.md §7 ConverterError — the document is still
// delivered as HTML).
package convert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/scriptoria/weaver/internal/errs"
	"github.com/scriptoria/weaver/internal/model"
)

// Converter shells out to an external pandoc binary to produce non-HTML
// output formats from an assembled document's HTML.
type Converter struct {
	// PandocPath is the binary invoked; defaults to "pandoc" if empty.
	PandocPath string
}

// New returns a Converter using pandocPath (falls back to "pandoc").
func New(pandocPath string) *Converter {
	if pandocPath == "" {
		pandocPath = "pandoc"
	}
	return &Converter{PandocPath: pandocPath}
}

// pandocTarget maps a requested OutputFormat to pandoc's -t value and the
// file extension the output file gets written with.
var pandocTarget = map[model.OutputFormat]string{
	model.OutputPDF:  "pdf",
	model.OutputEPUB: "epub",
	model.OutputDOCX: "docx",
}

// Convert writes doc.HTML to a temp file and invokes pandoc once per
// requested non-HTML format in cfg.Outputs, populating doc.Formats with
// the resulting file path on success. A per-format failure is collected
// and returned as a ConverterError but does not stop the remaining
// formats from being attempted, and never fails the overall document.
func (c *Converter) Convert(ctx context.Context, doc *model.Document, cfg model.AssemblyConfig, outDir string) []error {
	var wanted []model.OutputFormat
	for f := range pandocTarget {
		if cfg.WantsOutput(f) {
			wanted = append(wanted, f)
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	htmlPath, err := c.writeSourceHTML(doc, outDir)
	if err != nil {
		return []error{&errs.ConverterError{Format: "html-source", Err: err}}
	}
	defer os.Remove(htmlPath)

	var errsOut []error
	if doc.Formats == nil {
		doc.Formats = map[model.OutputFormat]string{}
	}
	for _, f := range wanted {
		outPath := filepath.Join(outDir, fmt.Sprintf("%s.%s", documentBaseName(doc), pandocTarget[f]))
		if err := c.run(ctx, htmlPath, outPath); err != nil {
			errsOut = append(errsOut, &errs.ConverterError{Format: string(f), Err: err})
			continue
		}
		doc.Formats[f] = outPath
	}
	return errsOut
}

func documentBaseName(doc *model.Document) string {
	if doc.Key != "" {
		return doc.Key
	}
	return "document"
}

func (c *Converter) writeSourceHTML(doc *model.Document, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outDir, documentBaseName(doc)+".src.html")
	if err := os.WriteFile(path, doc.HTML, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (c *Converter) run(ctx context.Context, inputPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, c.PandocPath, "-f", "html", "-o", outputPath, inputPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
