package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stravaldi/internal/config"
	"stravaldi/internal/database"
	"stravaldi/internal/export"
	"stravaldi/internal/strava"
	"stravaldi/internal/syncer"
	"stravaldi/internal/tokens"
)

var (
	cfg     *config.Config
	userID  string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "stravaldi",
		Short:         "Local Strava activity cache with OAuth token management",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// CLI commands log quietly to stderr; serve switches to JSON
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))

			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			if userID == "" {
				userID = cfg.DefaultUserID
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "local account id (default: DEFAULT_USER_ID)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openDB opens and initializes the configured database
func openDB() (*database.DB, error) {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Refresh the activity cache from the Strava API",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			client := strava.NewClient(cfg.StravaClientID, cfg.StravaClientSecret)
			manager := tokens.NewManager(db, client)
			s := syncer.New(db, client, manager, cfg.SyncPageSize)

			result, err := s.Sync(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			fmt.Printf("Synced activities for %s (athlete %d)\n", userID, result.AthleteID)
			fmt.Printf("  listed:  %d\n", result.Listed)
			fmt.Printf("  fetched: %d\n", result.Fetched)
			fmt.Printf("  cached:  %d\n", result.Skipped)
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export cached activities as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			out := os.Stdout
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			if err := export.New(db).WriteCSV(out, userID); err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write CSV to a file instead of stdout")
	return cmd
}

func newAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Acquire Strava tokens interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			client := strava.NewClient(cfg.StravaClientID, cfg.StravaClientSecret)
			manager := tokens.NewManager(db, client)

			authURL, _ := manager.AuthCodeURL("https://localhost", userID)

			fmt.Println("Visit the URL below and authorize this app to access your account.")
			fmt.Println("Your browser will be redirected to a URL that fails to load.")
			fmt.Println("************")
			fmt.Println(authURL)
			fmt.Println("************")
			fmt.Print("Copy that URL here: ")

			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read redirect URL: %w", err)
			}

			redirectURL, err := url.Parse(strings.TrimSpace(line))
			if err != nil {
				return fmt.Errorf("failed to parse redirect URL: %w", err)
			}

			query := redirectURL.Query()
			if query.Get("error") == "access_denied" {
				return fmt.Errorf("authorization denied by user")
			}

			code := query.Get("code")
			state := query.Get("state")
			if code == "" || state == "" {
				return fmt.Errorf("redirect URL missing code or state parameter")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			_, athleteID, err := manager.HandleCallback(ctx, code, state, query.Get("scope"))
			if err != nil {
				return fmt.Errorf("token exchange failed: %w", err)
			}

			fmt.Printf("✓ Tokens stored for %s (athlete %d)\n", userID, athleteID)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cache and token status for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			fmt.Printf("User: %s\n", userID)

			athlete, err := db.GetAthleteByUser(userID)
			if err != nil {
				return err
			}
			if athlete == nil {
				fmt.Println("Athlete: (not cached)")
			} else {
				fmt.Printf("Athlete: %d (profile synced %s)\n",
					athlete.AthleteID,
					time.Unix(athlete.LastUpdated, 0).Format(time.RFC3339))
			}

			count, err := db.CountActivities(userID)
			if err != nil {
				return err
			}
			fmt.Printf("Cached activities: %d\n", count)

			access, err := db.LookupAccessToken(userID)
			if err != nil {
				return err
			}
			switch {
			case access == nil:
				fmt.Println("Access token: (none, run 'stravaldi auth')")
			case time.Now().Unix() > access.ExpiresAt:
				fmt.Printf("Access token: expired %s (will refresh on next sync)\n",
					time.Unix(access.ExpiresAt, 0).Format(time.RFC3339))
			default:
				fmt.Printf("Access token: valid until %s\n",
					time.Unix(access.ExpiresAt, 0).Format(time.RFC3339))
			}

			return nil
		},
	}
}
