package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/datascanner/internal/connectors/filesystem"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driving"
	"github.com/custodia-labs/datascanner/internal/logger"
)

// noConversion is printed for objects that have no representation.
const noConversion = "no conversion possible"

var (
	convertType string
	convertRaw  bool
)

var convertCmd = &cobra.Command{
	Use:   "convert [flags] <file[::mime]>...",
	Short: "Convert files to a representation",
	Long: `Converts each file to the requested representation. Files that cannot be
converted directly but are containers (archives, mail, PDFs, office documents)
are opened and their contents converted instead.

A MIME type can be forced for a file with the path::mime syntax.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	types := make([]string, 0, len(domain.AllOutputTypes()))
	for _, ot := range domain.AllOutputTypes() {
		types = append(types, string(ot))
	}
	convertCmd.Flags().StringVarP(&convertType, "type", "t", string(domain.OutputText),
		"the conversion to perform ("+strings.Join(types, ", ")+")")
	convertCmd.Flags().BoolVarP(&convertRaw, "raw", "r", false,
		"just print the representation with no headers or indentation")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	if conversionService == nil || encoder == nil || newStateManager == nil {
		return errors.New("conversion service not configured")
	}
	ot := domain.OutputType(convertType)
	if !ot.IsValid() {
		return fmt.Errorf("%w: unknown conversion %q", domain.ErrInvalidInput, convertType)
	}

	sm, done := newStateManager()
	defer done()

	for _, arg := range args {
		path, mime, _ := strings.Cut(arg, "::")
		abs, err := filepath.Abs(path)
		if err != nil {
			logger.Error("%s: %v", path, err)
			continue
		}
		h, err := filesystem.MakeHandle(abs)
		if err != nil {
			logger.Error("%s: %v", path, err)
			continue
		}
		for outcome := range conversionService.Convert(cmd.Context(), sm, h, ot, mime) {
			printOutcome(cmd, ot, outcome)
		}
	}
	return nil
}

func printOutcome(cmd *cobra.Command, ot domain.OutputType, o driving.ConversionOutcome) {
	text := noConversion
	if o.Err != nil {
		logger.Error("%s: %v", o.Handle, o.Err)
	} else if o.Value != nil {
		encoded, err := encodeRepresentation(ot, o.Value, !convertRaw)
		if err != nil {
			logger.Error("%s: %v", o.Handle, err)
		} else {
			text = encoded
		}
	}

	if convertRaw {
		cmd.Print(text)
		return
	}
	cached := ""
	if o.Cached {
		cached = " (from cache)"
	}
	cmd.Printf("%s%s\n", o.Handle, cached)
	for _, line := range strings.Split(text, "\n") {
		cmd.Printf("    %s\n", line)
	}
}

func encodeRepresentation(ot domain.OutputType, v any, indent bool) (string, error) {
	obj, err := encoder.Encode(ot, v)
	if err != nil {
		return "", err
	}
	var b []byte
	if indent {
		b, err = json.MarshalIndent(obj, "", "    ")
	} else {
		b, err = json.Marshal(obj)
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}
