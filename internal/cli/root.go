// Package cli implements sparksctl, the operator tool for the SPARKS API.
package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/sparks-care/sparks-api/internal/database"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Database string
	Verbose  bool
}

// NewRootCommand creates the root command for sparksctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	v := viper.New()
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "sparksctl",
		Short:         "Operate a SPARKS deployment",
		Long:          "Administrative commands for the SPARKS therapy platform.",
		SilenceErrors: true, // main prints the error once
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// --database wins over DATABASE_URL
			if opts.Database == "" {
				opts.Database = v.GetString("DATABASE_URL")
			}
			if opts.Database == "" {
				return errors.New("no database: pass --database or set DATABASE_URL")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "database", "", "database URL (postgres://... or sqlite://path)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log SQL statements")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewCreateAdminCommand(opts))
	cmd.AddCommand(NewRemindCommand(opts, v))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

// open connects and migrates; callers close the returned db.
func (o *RootOptions) open() (*gorm.DB, error) {
	return database.Open(o.Database, o.Verbose)
}
