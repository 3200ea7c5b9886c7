package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sparks-care/sparks-api/internal/database"
	"github.com/sparks-care/sparks-api/internal/logger"
	"github.com/sparks-care/sparks-api/internal/services"
)

// NewRemindCommand creates the remind command, which runs one reminder pass
// the same way the API's scheduler does.
func NewRemindCommand(rootOpts *RootOptions, env *viper.Viper) *cobra.Command {
	var lead time.Duration
	cmd := &cobra.Command{
		Use:          "remind",
		Short:        "Send reminders for sessions starting soon",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rootOpts.open()
			if err != nil {
				return err
			}
			defer database.Close(db)

			log := logger.New(env.GetString("ROLLBAR_TOKEN"), env.GetString("ENV"))
			notify := services.NewNotificationService(db, nil, log)
			if key := env.GetString("TEXTBELT_API_KEY"); key != "" {
				notify.SetSMS(services.NewTextbeltSMS(key))
			}
			defer notify.Wait()

			sent, err := services.NewReminderService(db, notify, log, lead).SendDueReminders(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %d reminder(s) sent\n", sent)
			return nil
		},
	}
	cmd.Flags().DurationVar(&lead, "lead", time.Hour, "remind for sessions starting within this window")
	return cmd
}
