package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/opwatch/internal/conventions"
	"github.com/slok/opwatch/internal/log"
	"github.com/slok/opwatch/internal/model"
	"github.com/slok/opwatch/internal/printer"
	storageio "github.com/slok/opwatch/internal/storage/io"
	"github.com/slok/opwatch/pkg/lib"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"

	// StateTypeSQLite persists the state on a SQLite database.
	StateTypeSQLite = "sqlite"
	// StateTypeMemory keeps the state in memory for the command execution only.
	StateTypeMemory = "memory"

	formatTable = "table"
	formatJSON  = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	StateType  string
	DBPath     string
	ConfigFile string
	APIURL     string
	APIToken   string
	FakeAPI    bool

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)
	app.Flag("state", "Selects where the tracked state is kept.").Default(StateTypeSQLite).EnumVar(&c.StateType, StateTypeSQLite, StateTypeMemory)

	app.Flag("db-path", "Path to the SQLite database file.").Envar("OPWATCH_DB_PATH").Default(conventions.DBPath()).StringVar(&c.DBPath)
	app.Flag("config", "Path to a YAML settings file (default: ~/.opwatch/config.yaml if present).").StringVar(&c.ConfigFile)
	app.Flag("api-url", "Back office API root URL, overrides the settings file.").StringVar(&c.APIURL)
	app.Flag("api-token", "Back office API bearer token, overrides the settings file.").StringVar(&c.APIToken)
	app.Flag("fake-api", "Use a simulated in-memory back office.").BoolVar(&c.FakeAPI)

	return c
}

// clientOptions are per command tweaks of the SDK client.
type clientOptions struct {
	JobPollInterval time.Duration
	OnNotification  func(n lib.Notification)
	OnTaskUpdate    func(t lib.Task)
}

// newClient loads the settings and creates the SDK client used by all the commands.
func (r RootCommand) newClient(ctx context.Context, opts clientOptions) (*lib.Client, error) {
	settings, err := r.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	cfg := r.clientConfig(settings)
	if opts.JobPollInterval > 0 {
		cfg.JobPollInterval = opts.JobPollInterval
	}
	cfg.OnNotification = opts.OnNotification
	cfg.OnTaskUpdate = opts.OnTaskUpdate

	client, err := lib.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("could not create client: %w", err)
	}

	return client, nil
}

func (r RootCommand) loadSettings(ctx context.Context) (model.Settings, error) {
	configPath := r.ConfigFile
	if configPath == "" {
		// The default settings file is optional.
		configPath = conventions.SettingsPath()
		if _, err := os.Stat(configPath); configPath == "" || err != nil {
			return model.Settings{}, nil
		}
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return model.Settings{}, fmt.Errorf("could not resolve config path: %w", err)
		}
		configPath = absPath
	}

	repo := storageio.NewSettingsYAMLRepository(os.DirFS("/"))
	settings, err := repo.GetSettings(ctx, configPath[1:])
	if err != nil {
		return model.Settings{}, fmt.Errorf("could not load settings: %w", err)
	}

	return settings, nil
}

// clientConfig merges the settings file with the global flags, flags win.
func (r RootCommand) clientConfig(settings model.Settings) lib.Config {
	cfg := lib.Config{
		DBPath:            r.DBPath,
		InMemory:          r.StateType == StateTypeMemory,
		APIURL:            settings.APIURL,
		APIToken:          settings.APIToken,
		FakeAPI:           r.FakeAPI,
		StatsPollInterval: settings.StatsPollInterval,
		JobPollInterval:   settings.JobPollInterval,
		FreshnessWindow:   settings.FreshnessWindow,
		NotificationTTL:   settings.NotificationTTL,
		MaxNotifications:  settings.MaxNotifications,
		Logger:            r.Logger,
	}

	if r.APIURL != "" {
		cfg.APIURL = r.APIURL
	}
	if r.APIToken != "" {
		cfg.APIToken = r.APIToken
	}

	return cfg
}

func (r RootCommand) printer(format string) printer.Printer {
	if format == formatJSON {
		return printer.NewJSONPrinter(r.Stdout)
	}
	return printer.NewTablePrinter(r.Stdout)
}
