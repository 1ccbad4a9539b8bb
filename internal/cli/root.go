// Package cli wires the code-llm commands together.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sokinpui/code-llm/internal/app"
	"github.com/sokinpui/code-llm/internal/config"
	"github.com/sokinpui/code-llm/internal/llm"
	"github.com/sokinpui/code-llm/internal/logging"
	"github.com/sokinpui/code-llm/internal/source"
	"github.com/sokinpui/code-llm/internal/ui"
)

// Env holds the process surroundings a command runs in. Tests replace it.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Interactive reports whether stdin and stderr are terminals.
	Interactive func() bool
	// Backend builds the model backend. Nil talks to Ollama.
	Backend func(cfg *config.Config, logger *zap.Logger) (llm.Backend, error)
	// Source reads responses for apply. Nil reads stdin or the clipboard.
	Source *source.Provider
}

func defaultEnv() *Env {
	return &Env{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Interactive: func() bool {
			return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stderr.Fd())
		},
	}
}

// flags are the options shared by every command.
type flags struct {
	root     string
	model    string
	apiURL   string
	logLevel string
	verbose  bool
	plain    bool
	noWatch  bool
}

type command struct {
	env   *Env
	flags flags
	in    *bufio.Reader
}

// NewRootCmd builds the command tree. A nil env uses the real process.
func NewRootCmd(env *Env, version string) *cobra.Command {
	if env == nil {
		env = defaultEnv()
	}
	c := &command{env: env, in: bufio.NewReader(env.Stdin)}

	root := &cobra.Command{
		Use:     "code-llm",
		Version: version,
		Short:   "Chat with a local model about the current project and review its edits",
		Long: `code-llm sends your requests, together with the text files of the current
project, to a local model. Unified diffs in the answers are shown hunk by hunk
and written only once you accept them.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.Out = env.Stderr
			if c.flags.plain {
				color.NoColor = true
			}
		},
		RunE: c.runChat,
	}
	root.SetIn(env.Stdin)
	root.SetOut(env.Stdout)
	root.SetErr(env.Stderr)
	if version != "" {
		root.SetVersionTemplate("{{.Version}}\n")
	}

	root.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&c.flags.root, "root", "C", "", "Project root (default: current directory)")
	pf.StringVarP(&c.flags.model, "model", "m", "", "Model name, overriding the config")
	pf.StringVar(&c.flags.apiURL, "api-url", "", "Ollama endpoint, overriding the config")
	pf.StringVar(&c.flags.logLevel, "log-level", "", "Log level for .code-llm/logs (debug, info, warn, error)")
	pf.BoolVarP(&c.flags.verbose, "verbose", "v", false, "Write a debug log to .code-llm/logs")
	pf.BoolVar(&c.flags.plain, "plain", false, "Disable colours, markdown rendering and full-screen prompts")
	root.Flags().BoolVar(&c.flags.noWatch, "no-watch", false, "Do not refresh the context when files change between requests")

	root.AddCommand(
		c.newInitCmd(),
		c.newContextCmd(),
		c.newApplyCmd(),
		c.newHistoryCmd(),
		c.newUndoCmd(),
	)
	return root
}

// projectRoot resolves --root to an absolute directory.
func (c *command) projectRoot() (string, error) {
	root := c.flags.root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}

// loadConfig reads the layered config and applies the flag overrides.
func (c *command) loadConfig(root string) (*config.Config, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if c.flags.model != "" {
		cfg.Model = c.flags.model
	}
	if c.flags.apiURL != "" {
		cfg.APIURL = c.flags.apiURL
	}
	if c.flags.logLevel != "" {
		cfg.LogLevel = c.flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *command) interactive() bool {
	return !c.flags.plain && c.env.Interactive != nil && c.env.Interactive()
}

// project is a resolved root with its config and logger.
type project struct {
	root   string
	cfg    *config.Config
	logger *zap.Logger
}

func (c *command) setup() (*project, error) {
	root, err := c.projectRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := c.loadConfig(root)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(root, cfg.LogLevel, c.flags.verbose)
	if err != nil {
		return nil, err
	}
	return &project{root: root, cfg: cfg, logger: logger}, nil
}

func (p *project) newApp(opts app.Options) (*app.App, error) {
	opts.Root = p.root
	opts.Config = p.cfg
	opts.Logger = p.logger
	return app.New(opts)
}

func (p *project) close() { _ = p.logger.Sync() }

func (c *command) backend(cfg *config.Config, logger *zap.Logger) (llm.Backend, error) {
	if c.env.Backend != nil {
		return c.env.Backend(cfg, logger)
	}
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	return llm.NewOllama(cfg.APIURL, timeout, logger.Named("ollama")), nil
}
