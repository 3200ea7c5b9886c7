package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sparks-care/sparks-api/internal/database"
	"github.com/sparks-care/sparks-api/internal/models"
	"github.com/sparks-care/sparks-api/internal/utils"
)

type createAdminOptions struct {
	Email    string
	Name     string
	Password string
	Role     string
}

// NewCreateAdminCommand creates the create-admin command. Staff accounts
// can't sign up through the API, so this is how the first one is made.
func NewCreateAdminCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &createAdminOptions{}
	cmd := &cobra.Command{
		Use:          "create-admin",
		Short:        "Create an admin or manager account",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateAdmin(rootOpts, opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Email, "email", "", "login email (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "full name (required)")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password, at least 8 characters (required)")
	cmd.Flags().StringVar(&opts.Role, "role", models.RoleAdmin, "admin or manager")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func runCreateAdmin(rootOpts *RootOptions, opts *createAdminOptions, cmd *cobra.Command) error {
	if opts.Role != models.RoleAdmin && opts.Role != models.RoleManager {
		return fmt.Errorf("invalid role %q: must be admin or manager", opts.Role)
	}
	if len(opts.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	email := strings.ToLower(strings.TrimSpace(opts.Email))

	db, err := rootOpts.open()
	if err != nil {
		return err
	}
	defer database.Close(db)

	var n int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("an account with email %s already exists", email)
	}

	hash, err := utils.HashPassword(opts.Password)
	if err != nil {
		return err
	}
	user := models.User{
		FullName: strings.TrimSpace(opts.Name),
		Email:    email,
		Password: hash,
		Role:     opts.Role,
		IsActive: true,
	}
	if err := db.Create(&user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s %s (id %d)\n", user.Role, user.Email, user.ID)
	return nil
}
