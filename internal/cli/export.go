package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sparks-care/sparks-api/internal/database"
	"github.com/sparks-care/sparks-api/internal/reports"
)

// ValidExportFormats defines the allowed export formats.
var ValidExportFormats = []string{"csv", "xlsx"}

type exportOptions struct {
	Format  string
	Out     string
	Status  string
	Purpose string
}

// NewExportCommand creates the export command group.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export records for accounting",
	}
	cmd.AddCommand(newExportPaymentsCommand(rootOpts))
	return cmd
}

func newExportPaymentsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:          "payments",
		Short:        "Export payments as CSV or Excel",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExportPayments(cmd.Context(), rootOpts, opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Format, "format", "csv", "output format (csv|xlsx)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only payments with this status")
	cmd.Flags().StringVar(&opts.Purpose, "purpose", "", "only SESSION or DONATION payments")
	return cmd
}

func runExportPayments(ctx context.Context, rootOpts *RootOptions, opts *exportOptions, cmd *cobra.Command) error {
	write := reports.WritePaymentsCSV
	switch opts.Format {
	case "csv":
	case "xlsx":
		write = reports.WritePaymentsXLSX
	default:
		return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidExportFormats)
	}

	db, err := rootOpts.open()
	if err != nil {
		return err
	}
	defer database.Close(db)

	payments, err := reports.Payments(ctx, db, reports.Filter{Status: opts.Status, Purpose: opts.Purpose})
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.Out != "" {
		f, err := os.Create(opts.Out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := write(w, payments); err != nil {
		return err
	}
	if opts.Out != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote %d payment(s) to %s\n", len(payments), opts.Out)
	}
	return nil
}
