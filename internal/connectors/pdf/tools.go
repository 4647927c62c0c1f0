package pdf

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// Tools runs the Poppler and Ghostscript programs the PDF Sources need.
type Tools struct {
	Runner driven.CommandRunner

	// GhostscriptRunner runs gs; it falls back to Runner.
	GhostscriptRunner driven.CommandRunner
	Ghostscript       domain.GhostscriptSettings
}

// Info is the parsed output of pdfinfo.
type Info map[string]string

// Pages returns the page count, or 0.
func (i Info) Pages() int {
	n, _ := strconv.Atoi(i["Pages"])
	return n
}

// Encrypted reports whether the document is encrypted.
func (i Info) Encrypted() bool {
	return strings.HasPrefix(i["Encrypted"], "yes")
}

func parseInfo(out []byte) Info {
	info := make(Info)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		info[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return info
}

// Info runs pdfinfo on a document.
func (t *Tools) Info(ctx context.Context, path string) (Info, error) {
	out, err := t.Runner.Run(ctx, "pdfinfo", path)
	if err != nil {
		return nil, err
	}
	return parseInfo(out), nil
}

// Compress rewrites path with Ghostscript into outputDir and returns the
// new file's path.
func (t *Tools) Compress(ctx context.Context, path, outputDir string) (string, error) {
	gs := t.Ghostscript
	converted := filepath.Join(outputDir, "gs-temporary.pdf")
	args := []string{"-q"}
	args = append(args, strings.Fields(gs.BaseArguments)...)
	args = append(args, "-dPDFSETTINGS="+gs.PDFProfile, "-sOutputFile="+converted)
	args = append(args, strings.Fields(gs.ExtraArgs)...)
	args = append(args, path)

	runner := t.GhostscriptRunner
	if runner == nil {
		runner = t.Runner
	}
	if _, err := runner.Run(ctx, "gs", args...); err != nil {
		return "", err
	}
	return converted, nil
}

// ExtractPage writes the text of one page to outputDir/page.txt and,
// unless skipImages is set, its embedded images as outputDir/image-*.
func (t *Tools) ExtractPage(ctx context.Context, path, page, outputDir string, skipImages bool) error {
	if _, err := t.Runner.Run(ctx, "pdftotext",
		"-q", "-nopgbrk", "-eol", "unix", "-f", page, "-l", page,
		path, filepath.Join(outputDir, "page.txt")); err != nil {
		return err
	}
	if skipImages {
		return nil
	}
	_, err := t.Runner.Run(ctx, "pdfimages",
		"-q", "-all", "-f", page, "-l", page,
		path, filepath.Join(outputDir, "image"))
	return err
}

// listDir returns the sorted names of the regular files in dir.
func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
