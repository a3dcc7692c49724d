package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/teemow/cozictl/internal/config"
	"github.com/teemow/cozictl/internal/cozi"
	"github.com/teemow/cozictl/internal/instrumentation"
	"github.com/teemow/cozictl/internal/logging"
)

// Credential environment variables.
const (
	EnvUsername = "COZI_USERNAME"
	EnvPassword = "COZI_PASSWORD"
)

// defaultEnvFile is loaded when present; an explicit --env-file must exist.
const defaultEnvFile = ".env"

// version will be set by main
var version = "dev"

// SetVersion sets the version reported by the CLI and sent in the User-Agent.
func SetVersion(v string) {
	version = v
	cozi.Version = v
}

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	envFile    string
	username   string
	password   string
	debug      bool
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "cozictl",
		Short: "Read-only client for the Cozi family organizer",
		Long: `cozictl reads shopping lists, to-do lists, household members and the
family calendar from a Cozi account.

It can run as:
  - A command-line tool printing JSON
  - An MCP (Model Context Protocol) server for AI assistants

Credentials are taken from --username/--password or the COZI_USERNAME and
COZI_PASSWORD environment variables, optionally loaded from a .env file.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.loadEnvFile(cmd.Flags().Changed("env-file"))
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "cozictl version %s\n" .Version}}`)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/cozictl/config.yaml)")
	flags.StringVar(&opts.envFile, "env-file", defaultEnvFile, "File with KEY=value lines to load into the environment")
	flags.StringVar(&opts.username, "username", "", "Cozi account e-mail. Can also use COZI_USERNAME env var.")
	flags.StringVar(&opts.password, "password", "", "Cozi account password. Can also use COZI_PASSWORD env var.")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newListsCmd(opts))
	rootCmd.AddCommand(newListCmd(opts))
	rootCmd.AddCommand(newPeopleCmd(opts))
	rootCmd.AddCommand(newMonthCmd(opts))
	rootCmd.AddCommand(newItemCmd(opts))
	rootCmd.AddCommand(newDayCmd(opts))
	rootCmd.AddCommand(newWeekCmd(opts))
	rootCmd.AddCommand(newYearCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute is the main entry point for the CLI application
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadEnvFile loads the env file without overriding variables that are
// already set. A missing default file is ignored.
func (o *globalOptions) loadEnvFile(explicit bool) error {
	if o.envFile == "" {
		return nil
	}
	err := godotenv.Load(o.envFile)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", o.envFile, err)
}

// logger returns a text logger on w, at Debug level with --debug.
func (o *globalOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// credentials resolves the login from flags, then the environment.
func (o *globalOptions) credentials() (cozi.Credentials, error) {
	creds := cozi.Credentials{Username: o.username, Password: o.password}
	if creds.Username == "" {
		creds.Username = os.Getenv(EnvUsername)
	}
	if creds.Password == "" {
		creds.Password = os.Getenv(EnvPassword)
	}
	if creds.Username == "" || creds.Password == "" {
		return creds, fmt.Errorf("cozi credentials missing: pass --username/--password or set %s and %s", EnvUsername, EnvPassword)
	}
	return creds, nil
}

func (o *globalOptions) loadConfig(logger *slog.Logger) (*config.Config, error) {
	return config.Load(o.configPath, logging.NewSlogAdapter(logger))
}

// connect builds a client from the configuration and logs in.
func (o *globalOptions) connect(ctx context.Context, logger *slog.Logger, metrics *instrumentation.Metrics) (*cozi.Client, error) {
	creds, err := o.credentials()
	if err != nil {
		return nil, err
	}
	cfg, err := o.loadConfig(logger)
	if err != nil {
		return nil, err
	}

	clientOpts := cfg.ClientOptions()
	clientOpts.Logger = logger
	clientOpts.Metrics = metrics
	client, err := cozi.New(clientOpts)
	if err != nil {
		return nil, err
	}

	if err := client.Login(ctx, creds.Username, creds.Password); err != nil {
		return nil, err
	}
	logger.Debug("logged in", logging.Account(client.AccountID()), logging.UserHash(creds.Username))
	return client, nil
}
