package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/civicsense/civicsense/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
	insecure  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "civic: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "civic",
	Short: "CivicSense CLI",
	Long: `civic is the command-line interface for CivicSense.

It lets you create an account, submit civic issue reports with photos,
track their status, and check your eco and civic scores.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".civic"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.civic/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "CivicSense API URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification (development only)")

	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(versionCmd)
}

// ─── Credentials ─────────────────────────────────────────────────────────────

// credentials is the token pair persisted under ~/.civic/credentials.json.
type credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Username     string `json:"username"`
}

func credentialsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".civic", "credentials.json"), nil
}

func saveCredentials(creds *credentials) error {
	path, err := credentialsPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

func loadCredentials() (*credentials, error) {
	path, err := credentialsPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("not logged in (run 'civic login' first): %w", err)
	}
	var creds credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return &creds, nil
}

func newClient(token string) (*client.Client, error) {
	opts := []client.Option{}
	if token != "" {
		opts = append(opts, client.WithBearerToken(token))
	}
	if insecure {
		opts = append(opts, client.WithInsecureSkipVerify())
	}
	return client.New(serverURL, opts...)
}

// authedClient builds a client from the stored credentials, refreshing the
// token pair once when the access token has expired.
func authedClient(ctx context.Context) (*client.Client, error) {
	creds, err := loadCredentials()
	if err != nil {
		return nil, err
	}

	c, err := newClient(creds.AccessToken)
	if err != nil {
		return nil, err
	}

	// Cheap liveness probe: profile fetch. On auth failure, try a refresh.
	if _, _, probeErr := c.Profile(ctx); probeErr != nil {
		refresher, err := newClient("")
		if err != nil {
			return nil, err
		}
		pair, refreshErr := refresher.Refresh(ctx, creds.RefreshToken)
		if refreshErr != nil {
			return nil, fmt.Errorf("session expired, run 'civic login' again")
		}
		creds.AccessToken = pair.AccessToken
		creds.RefreshToken = pair.RefreshToken
		if err := saveCredentials(creds); err != nil {
			return nil, err
		}
		return newClient(creds.AccessToken)
	}
	return c, nil
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

// ─── signup ──────────────────────────────────────────────────────────────────

var (
	signupEmail string
	signupPhone string
)

var signupCmd = &cobra.Command{
	Use:   "signup <username>",
	Short: "Create a CivicSense account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := args[0]
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}

		c, err := newClient("")
		if err != nil {
			return err
		}
		res, err := c.Signup(cmd.Context(), username, signupEmail, password, signupPhone)
		if err != nil {
			return err
		}

		if err := saveCredentials(&credentials{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			Username:     res.User.Username,
		}); err != nil {
			return err
		}

		fmt.Printf("✓ Account created: %s\n", res.User.Username)
		fmt.Println("You are now logged in. Submit your first report with 'civic report'.")
		return nil
	},
}

func init() {
	signupCmd.Flags().StringVar(&signupEmail, "email", "", "Email address")
	signupCmd.Flags().StringVar(&signupPhone, "phone", "", "Phone number (optional)")
	_ = signupCmd.MarkFlagRequired("email")
}

// ─── login ───────────────────────────────────────────────────────────────────

var loginCmd = &cobra.Command{
	Use:   "login <username-or-email>",
	Short: "Log in and store the session locally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}

		c, err := newClient("")
		if err != nil {
			return err
		}
		res, err := c.Login(cmd.Context(), args[0], password)
		if err != nil {
			return err
		}

		if err := saveCredentials(&credentials{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			Username:     res.User.Username,
		}); err != nil {
			return err
		}

		fmt.Printf("✓ Logged in as %s\n", res.User.Username)
		return nil
	},
}

// ─── report ──────────────────────────────────────────────────────────────────

var (
	reportPhoto     string
	reportVoiceNote string
	reportIssueType string
	reportLocation  string
)

var reportCmd = &cobra.Command{
	Use:   "report <description>",
	Short: "Submit a new civic issue report",
	Long: `report submits a civic issue. Attach a photo with --photo to have the
issue validated and classified automatically:

  civic report "overflowing bin on Main St" --photo bin.jpg --location "Main St"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient(cmd.Context())
		if err != nil {
			return err
		}

		req := client.CreateReportRequest{
			Description: args[0],
			IssueType:   reportIssueType,
			Location:    reportLocation,
		}
		if reportPhoto != "" {
			data, err := os.ReadFile(reportPhoto)
			if err != nil {
				return fmt.Errorf("read photo: %w", err)
			}
			req.Photo = data
		}
		if reportVoiceNote != "" {
			data, err := os.ReadFile(reportVoiceNote)
			if err != nil {
				return fmt.Errorf("read voice note: %w", err)
			}
			req.VoiceNote = data
		}

		rep, err := c.CreateReport(cmd.Context(), req)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Report submitted\n\n")
		fmt.Printf("  ID:     %s\n", rep.ID)
		fmt.Printf("  Status: %s\n", rep.Status)
		if req.Photo != nil {
			fmt.Println("\nThe photo is being validated; check back with 'civic reports'.")
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportPhoto, "photo", "", "Photo file to attach")
	reportCmd.Flags().StringVar(&reportVoiceNote, "voice-note", "", "Voice note file to attach")
	reportCmd.Flags().StringVar(&reportIssueType, "type", "", "Issue type label")
	reportCmd.Flags().StringVar(&reportLocation, "location", "", "Location description")
}

// ─── reports ─────────────────────────────────────────────────────────────────

var reportsAll bool

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List your submitted reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient(cmd.Context())
		if err != nil {
			return err
		}

		var list []*client.Report
		if reportsAll {
			list, err = c.ListAllReports(cmd.Context())
		} else {
			list, err = c.ListReports(cmd.Context())
		}
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No reports yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tCATEGORY\tSEVERITY\tDESCRIPTION")
		for _, r := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.Status, strOrDash(r.Category), strOrDash(r.Severity), truncate(r.Description, 48))
		}
		return w.Flush()
	},
}

func init() {
	reportsCmd.Flags().BoolVar(&reportsAll, "all", false, "List every report (supervisor/admin only)")
}

func strOrDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// ─── stats ───────────────────────────────────────────────────────────────────

var statsGlobal bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show report counts by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient(cmd.Context())
		if err != nil {
			return err
		}
		s, err := c.Stats(cmd.Context(), statsGlobal)
		if err != nil {
			return err
		}

		fmt.Printf("Total:       %d\n", s.Total)
		fmt.Printf("Pending:     %d\n", s.Pending)
		fmt.Printf("In progress: %d\n", s.InProgress)
		fmt.Printf("Resolved:    %d\n", s.Resolved)
		fmt.Printf("Invalid:     %d\n", s.Invalid)
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsGlobal, "global", false, "Platform-wide counts (supervisor/admin only)")
}

// ─── profile ─────────────────────────────────────────────────────────────────

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show your account and scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient(cmd.Context())
		if err != nil {
			return err
		}
		u, p, err := c.Profile(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Username:        %s\n", u.Username)
		fmt.Printf("Role:            %s\n", u.Role)
		fmt.Printf("Badge:           %s\n", p.Badge)
		fmt.Printf("Eco score:       %d\n", p.EcoScore)
		fmt.Printf("Civic score:     %d\n", p.CivicScore)
		fmt.Printf("Carbon credits:  %d\n", p.CarbonCredits)
		fmt.Printf("Issues reported: %d\n", p.IssuesReported)
		return nil
	},
}

// ─── classify ────────────────────────────────────────────────────────────────

var classifyCmd = &cobra.Command{
	Use:   "classify <image-file>",
	Short: "Classify an image without creating a report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}

		c, err := authedClient(cmd.Context())
		if err != nil {
			return err
		}
		res, err := c.Classify(cmd.Context(), data)
		if err != nil {
			return err
		}

		fmt.Printf("Category: %s\n", res.Category)
		fmt.Printf("Severity: %s\n", res.Severity)
		fmt.Printf("SLA:      %s\n", res.ResponseTime)
		return nil
	},
}

// ─── version ─────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the civic CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("civic %s\n", version)
	},
}
