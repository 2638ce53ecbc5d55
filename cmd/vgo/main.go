package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/time/rate"

	"github.com/jason-riddle/vault-go"
	"github.com/jason-riddle/vault-go/internal/config"
	"github.com/jason-riddle/vault-go/internal/download"
	"github.com/jason-riddle/vault-go/internal/notify"
	"github.com/jason-riddle/vault-go/internal/session"
)

const usage = `usage: vgo [flags] <command> [args]
Available commands:
  ls                                  - Show the current folder or the dashboard
  cd <dashboard|folder-id>            - Change the current route
  mkdir <name>                        - Create a folder
  rename <folder-id> <name>           - Rename a folder
  rmdir <folder-id>                   - Delete a folder and its documents
  upload [-name n] [-tag t]... <file> - Upload a file into the current folder
  watch <dir>                         - Upload files as they appear in dir
  edit [-name n] [-tag t]... <doc-id> - Rename or retag a document
  rm <doc-id>                         - Delete a document
  download [-o dir] <doc-id>          - Save a document's file
  search [-tag t]... [query]          - Search documents
  tags                                - List tags
  profile [-email e] [-first-name f] [-last-name l] - Show or update the profile
  passwd <old> <new>                  - Change the password
  route                               - Print the saved route and its file path`

// outputJSON writes data as indented JSON
func outputJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// newLogger returns a tint logger on w, coloured only for terminals.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	out := colorable.NewNonColorable(w)
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
		if !noColor {
			out = colorable.NewColorable(f)
		}
	}
	return slog.New(tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	}))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is what a command runs against.
type app struct {
	cfg    config.Config
	client *vault.Client
	sess   *session.Session
	logger *slog.Logger
	notify notify.Notifier
	stdout io.Writer
	stderr io.Writer

	// unauthorized is called instead of notifying when the server rejects
	// the token.
	unauthorized func(error)
}

// fail reports err through the notifier unless it is a rejected token.
func (a *app) fail(err error, msg string) {
	if vault.IsUnauthorized(err) {
		a.unauthorized(err)
		return
	}
	a.notify.Show(notify.Error, msg)
}

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"ls":       cmdList,
	"cd":       cmdChangeRoute,
	"mkdir":    cmdMakeFolder,
	"rename":   cmdRenameFolder,
	"rmdir":    cmdRemoveFolder,
	"upload":   cmdUpload,
	"watch":    cmdWatch,
	"edit":     cmdEdit,
	"rm":       cmdRemoveDocument,
	"download": cmdDownload,
	"search":   cmdSearch,
	"tags":     cmdTags,
	"profile":  cmdProfile,
	"passwd":   cmdPassword,
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("vgo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags config.Config
	fs.StringVar(&flags.URL, "url", "", "Vault API URL (default: $VAULT_URL)")
	fs.StringVar(&flags.Token, "token", "", "API authentication token (default: $VAULT_TOKEN)")
	configPath := fs.String("config", "", "Config file (default: $VAULT_CONFIG, then $XDG_CONFIG_HOME/vault-go/config.yaml)")
	fs.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn or error (default info)")
	fs.DurationVar(&flags.Timeout, "timeout", 0, "Per-request timeout (default 30s)")
	fs.Float64Var(&flags.RateLimit, "rate-limit", 0, "Maximum requests per second, 0 for no limit")
	inMemory := fs.Bool("memory", false, "Keep the route in memory only, do not write it to disk")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return errors.New(usage)
	}
	name, cmdArgs := rest[0], rest[1:]

	cfg, err := loadConfig(getenv, *configPath, flags)
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := newLogger(stderr, level)
	routes := newRouteStore(getenv, *inMemory, logger)

	// Handle route command (no auth required)
	if name == "route" {
		return outputJSON(stdout, map[string]string{
			"route": routes.Load().String(),
			"path":  routes.path,
		})
	}

	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command: %s\n%s", name, usage)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts := []vault.Option{
		vault.WithTimeout(cfg.Timeout),
		vault.WithUserAgent("vgo"),
		vault.WithLogger(logger),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, vault.WithRateLimit(rate.Limit(cfg.RateLimit), 1))
	}
	client := vault.NewClient(cfg.URL, cfg.Token, opts...)
	notifier := notify.NewLog(logger)

	unauthorized := func(err error) {
		logger.Error("The server rejected the API token, check -token or VAULT_TOKEN", "err", err)
	}
	a := &app{
		cfg:          cfg,
		client:       client,
		logger:       logger,
		notify:       notifier,
		stdout:       stdout,
		stderr:       stderr,
		unauthorized: unauthorized,
	}
	a.sess = session.New(client, routes.Load(),
		session.WithLogger(logger),
		session.WithNotifier(notifier),
		session.WithSaver(download.DirSaver{Dir: cfg.DownloadDir}),
		session.WithUnauthorized(a.unauthorized))

	if err := cmd(ctx, a, cmdArgs); err != nil {
		return err
	}
	routes.Save(a.sess.Store.Route())
	return nil
}

// loadConfig merges defaults, the config file, the environment and flags,
// in increasing precedence.
func loadConfig(getenv func(string) string, path string, flags config.Config) (config.Config, error) {
	if path == "" {
		p, err := config.Path(getenv)
		if err != nil {
			return config.Config{}, err
		}
		path = p
	}
	file, err := config.LoadFile(path)
	if err != nil {
		return config.Config{}, err
	}
	return config.Default().Merge(file).Merge(config.FromEnv(getenv)).Merge(flags), nil
}
