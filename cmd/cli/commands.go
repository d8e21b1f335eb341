package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/personaops/backend/internal/domain"
	"github.com/personaops/backend/internal/handler"
	"github.com/personaops/backend/internal/infrastructure/logger"
	"github.com/personaops/backend/internal/repository"
	"github.com/personaops/backend/internal/security/auth"
	"github.com/personaops/backend/internal/worker"
	"github.com/personaops/backend/pkg/config"
	"github.com/personaops/backend/pkg/database"
)

type cliOptions struct {
	apiURL    string
	tokenPath string
	client    *http.Client
}

func (o *cliOptions) httpClient() *http.Client {
	if o.client != nil {
		return o.client
	}
	return &http.Client{Timeout: 2 * time.Minute}
}

func (o *cliOptions) tokenFile() string {
	if o.tokenPath != "" {
		return o.tokenPath
	}
	return defaultTokenFile()
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(ctx context.Context, pool *database.ConnectionPool, cfg *config.Config) error {
				applied, err := database.Migrate(ctx, pool.GetDB(), logger.NewLogger(cfg.LogLevel))
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date")
					return nil
				}
				for _, name := range applied {
					fmt.Fprintf(cmd.OutOrStdout(), "✓ applied %s\n", name)
				}
				return nil
			})
		},
	}
}

func newBackfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-icp-ids",
		Short: "Link analyzer outputs without an ICP to the owner's latest ICP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(ctx context.Context, pool *database.ConnectionPool, cfg *config.Config) error {
				log := logger.NewLogger(cfg.LogLevel)
				outputs := repository.NewPostgresAnalyzerOutputRepository(pool.GetDB(), log)
				updated, err := worker.NewBackfillWorker(outputs, log, 0).RunOnce(ctx, "cli")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ updated %d analyzer outputs\n", updated)
				return nil
			})
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		userID string
		email  string
		role   string
		ttl    time.Duration
		save   bool
		path   string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token signed with SUPABASE_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := auth.NewTokenManager(cfg.SupabaseJWTSecret, "").GenerateToken(userID, email, role, ttl)
			if err != nil {
				return err
			}
			if save {
				if path == "" {
					path = defaultTokenFile()
				}
				if err := saveToken(path, token); err != nil {
					return fmt.Errorf("failed to save token: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "✓ token saved to %s\n", path)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (sub claim)")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&role, "role", auth.RoleAuthenticated, "role claim (authenticated or service_role)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&save, "save", false, "store the token for later commands")
	cmd.Flags().StringVar(&path, "token-file", "", "where --save writes the token")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.Remove(defaultTokenFile()); err != nil && !os.IsNotExist(err) {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
			return nil
		},
	}
}

func newCallCmd(opts *cliOptions) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:       "call <function>",
		Short:     "Invoke a backend function and print its JSON response",
		Args:      cobra.ExactArgs(1),
		ValidArgs: handler.ProxiedFunctions,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isKnownFunction(args[0]) {
				return fmt.Errorf("unknown function %q (known: %s)", args[0], strings.Join(handler.ProxiedFunctions, ", "))
			}
			if data == "-" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				data = string(raw)
			}
			if !json.Valid([]byte(data)) {
				return fmt.Errorf("--data must be valid JSON")
			}

			body, err := opts.do(cmd.Context(), http.MethodPost, "/functions/v1/"+args[0], strings.NewReader(data))
			if err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, body, "", "  "); err != nil {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "{}", `request body as JSON, or "-" to read stdin`)
	return cmd
}

func newOutputsCmd(opts *cliOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "outputs",
		Short: "List recent company analyzer outputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := opts.do(cmd.Context(), http.MethodGet, "/api/company-analyzer/outputs?limit="+strconv.Itoa(limit), nil)
			if err != nil {
				return err
			}
			var resp struct {
				Outputs []domain.AnalyzerOutput `json:"outputs"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			if len(resp.Outputs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No analyzer outputs")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCOMPANY\tWEBSITE\tICP\tCREATED")
			for _, o := range resp.Outputs {
				icp := "-"
				if o.ICPID != nil {
					icp = *o.ICPID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", o.ID, o.CompanyName, o.WebsiteURL, icp, o.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// do sends an authenticated request and returns the body of a 2xx response.
func (o *cliOptions) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(o.apiURL, "/")+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := loadToken(o.tokenFile())
	if token == "" {
		return nil, fmt.Errorf("not logged in: run `personaops token --user <id> --save` first")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := o.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr handler.ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			if apiErr.Details != "" {
				return nil, fmt.Errorf("%s: %s (%s)", resp.Status, apiErr.Error, apiErr.Details)
			}
			return nil, fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return nil, fmt.Errorf("%s", resp.Status)
	}
	return raw, nil
}

func withDatabase(ctx context.Context, fn func(ctx context.Context, pool *database.ConnectionPool, cfg *config.Config) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := database.NewConnectionPool(ctx, &database.Config{URL: cfg.DatabaseURL}, logger.NewLogger(cfg.LogLevel))
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, pool, cfg)
}

func isKnownFunction(name string) bool {
	for _, fn := range handler.ProxiedFunctions {
		if fn == name {
			return true
		}
	}
	return false
}

func apiURLFromEnv() string {
	if url := os.Getenv("PERSONAOPS_API"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

func defaultTokenFile() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".personaops", "token")
}

func saveToken(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token), 0o600)
}

func loadToken(path string) string {
	data, _ := os.ReadFile(path)
	return strings.TrimSpace(string(data))
}
