package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"merchantcrm/internal/auth"
	"merchantcrm/internal/config"
	"merchantcrm/internal/db"
	"merchantcrm/internal/models"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	cfg  *config.Config
	conn *gorm.DB

	newUser struct {
		email      string
		password   string
		role       string
		firstName  string
		lastName   string
		agentID    uint
		merchantID uint
	}
)

var rootCmd = &cobra.Command{
	Use:           "crm-admin",
	Short:         "Maintenance commands for the merchant CRM",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		conn, err = db.InitDB(cfg.DBDriver, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := db.Migrate(conn); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the default acquirers and campaigns",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := db.Seed(cmd.Context(), conn)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d acquirers and %d campaigns\n", res.Acquirers, res.Campaigns)
		return nil
	},
}

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create a user account",
	Long: `Creates an active user. Use it to bootstrap the first admin:

  crm-admin create-user --email admin@example.com --password '...' --role admin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := createUser(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s user %s (id %d)\n", user.Role, user.Email, user.ID)
		return nil
	},
}

func createUser(ctx context.Context) (*models.User, error) {
	if !models.ValidRole(newUser.role) {
		return nil, fmt.Errorf("unknown role %q", newUser.role)
	}
	email := models.NormalizeEmail(newUser.email)
	if email == "" {
		return nil, errors.New("--email is required")
	}

	hash, err := auth.HashPassword(newUser.password, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    newUser.firstName,
		LastName:     newUser.lastName,
		Role:         newUser.role,
		Status:       models.UserStatusActive,
	}
	switch newUser.role {
	case models.RoleAgent:
		if newUser.agentID == 0 {
			return nil, errors.New("agent users need --agent-id")
		}
		user.AgentID = &newUser.agentID
	case models.RoleMerchant:
		if newUser.merchantID == 0 {
			return nil, errors.New("merchant users need --merchant-id")
		}
		user.MerchantID = &newUser.merchantID
	}

	if err := gorm.G[models.User](conn).Create(ctx, &user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

func init() {
	flags := createUserCmd.Flags()
	flags.StringVar(&newUser.email, "email", "", "login email")
	flags.StringVar(&newUser.password, "password", "", "initial password")
	flags.StringVar(&newUser.role, "role", models.RoleAdmin, "admin, agent or merchant")
	flags.StringVar(&newUser.firstName, "first-name", "", "first name")
	flags.StringVar(&newUser.lastName, "last-name", "", "last name")
	flags.UintVar(&newUser.agentID, "agent-id", 0, "agent the user works for")
	flags.UintVar(&newUser.merchantID, "merchant-id", 0, "merchant the user belongs to")
	_ = createUserCmd.MarkFlagRequired("email")
	_ = createUserCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(migrateCmd, seedCmd, createUserCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
