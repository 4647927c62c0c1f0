package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/datascanner/internal/core/domain"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect collected document reports",
	Long:  `List and show the document reports stored by the collect command.`,
}

var reportsListCmd = &cobra.Command{
	Use:   "list <scanner-pk>",
	Short: "List the reports of a scanner",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportsList,
}

var reportsGetCmd = &cobra.Command{
	Use:   "get <scanner-pk> <path>",
	Short: "Show one report",
	Args:  cobra.ExactArgs(2),
	RunE:  runReportsGet,
}

// reportsUnresolved is a flag for the list command.
var reportsUnresolved bool

func init() {
	reportsListCmd.Flags().BoolVarP(&reportsUnresolved, "unresolved", "u", false, "only list reports without a resolution")

	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsGetCmd)
	rootCmd.AddCommand(reportsCmd)
}

func parseScannerPK(arg string) (int, error) {
	pk, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%w: scanner %q is not a number", domain.ErrInvalidInput, arg)
	}
	return pk, nil
}

func runReportsList(cmd *cobra.Command, args []string) error {
	if reportStore == nil {
		return errors.New("report store not configured")
	}
	pk, err := parseScannerPK(args[0])
	if err != nil {
		return err
	}

	reports, err := reportStore.ListReports(cmd.Context(), pk)
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	shown := 0
	for _, r := range reports {
		if reportsUnresolved && r.Resolved() {
			continue
		}
		if shown == 0 {
			cmd.Printf("Reports for scanner %d:\n\n", pk)
		}
		shown++
		cmd.Printf("  %s\n", r.Name)
		cmd.Printf("    Path:    %s\n", r.Path)
		cmd.Printf("    Status:  %s\n", reportStatus(r))
		if r.Owner != "" {
			cmd.Printf("    Owner:   %s\n", r.Owner)
		}
		cmd.Println()
	}

	if shown == 0 {
		cmd.Printf("No reports found for scanner: %d\n", pk)
		return nil
	}
	cmd.Printf("Total: %d reports\n", shown)
	return nil
}

func runReportsGet(cmd *cobra.Command, args []string) error {
	if reportStore == nil {
		return errors.New("report store not configured")
	}
	pk, err := parseScannerPK(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	r, err := reportStore.GetReport(ctx, pk, args[1])
	if err != nil {
		return fmt.Errorf("failed to get report: %w", err)
	}

	cmd.Printf("Report: %s\n\n", r.ID)
	cmd.Printf("  Name:         %s\n", r.Name)
	cmd.Printf("  Source type:  %s\n", r.SourceType)
	cmd.Printf("  Scanner:      %s (%d)\n", r.ScannerName, r.ScannerJobPK)
	cmd.Printf("  Scanned:      %s\n", r.ScanTime.Format("2006-01-02 15:04:05"))
	cmd.Printf("  Status:       %s\n", reportStatus(r))
	if r.DatasourceLastModified != nil {
		cmd.Printf("  Modified:     %s\n", r.DatasourceLastModified.Format("2006-01-02 15:04:05"))
	}
	if r.Sensitivity != nil {
		cmd.Printf("  Sensitivity:  %d\n", *r.Sensitivity)
	}
	if r.Probability != nil {
		cmd.Printf("  Probability:  %.2f\n", *r.Probability)
	}
	if r.Owner != "" {
		cmd.Printf("  Owner:        %s\n", r.Owner)
	}

	aliases, err := reportStore.ReportAliases(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("failed to get aliases: %w", err)
	}
	if len(aliases) > 0 {
		cmd.Println("\n  Aliases:")
		for _, a := range aliases {
			cmd.Printf("    %s: %s\n", a.Type, a.Value)
		}
	}

	if len(r.RawMatches) > 0 {
		cmd.Println("\n  Matches:")
		printIndentedJSON(cmd, r.RawMatches)
	}
	if len(r.RawProblem) > 0 {
		cmd.Println("\n  Problem:")
		printIndentedJSON(cmd, r.RawProblem)
	}
	return nil
}

func reportStatus(r *domain.DocumentReport) string {
	switch {
	case r.Resolved() && r.ResolutionTime != nil:
		return fmt.Sprintf("%s at %s", r.ResolutionStatus, r.ResolutionTime.Format("2006-01-02 15:04:05"))
	case r.Resolved():
		return r.ResolutionStatus.String()
	case len(r.RawProblem) > 0:
		return "problem"
	case len(r.RawMatches) > 0:
		return "matched"
	default:
		return "open"
	}
}

func printIndentedJSON(cmd *cobra.Command, raw json.RawMessage) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		cmd.Printf("    %s\n", raw)
		return
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		cmd.Printf("    %s\n", raw)
		return
	}
	for _, line := range strings.Split(string(b), "\n") {
		cmd.Printf("    %s\n", line)
	}
}
