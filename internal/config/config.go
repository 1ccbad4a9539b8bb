// Package config loads the layered TOML configuration: built-in defaults,
// then ~/.code-llm/config.toml, then <root>/.code-llm/config.toml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pelletier/go-toml/v2"

	"github.com/sokinpui/code-llm/internal/fs"
	"github.com/sokinpui/code-llm/internal/ignore"
)

const fileName = "config.toml"

var ErrConfigExists = errors.New("config file already exists")

// DefaultSystemPrompt asks the model for diff blocks the parser understands.
const DefaultSystemPrompt = `You are a helpful assistant for software development. When suggesting changes to code:

1. ALWAYS present code edits as unified diff blocks:
` + "```diff" + `
--- a/path/to/file.ext
+++ b/path/to/file.ext
@@ -12,3 +12,3 @@
 unchanged line
-old line
+new line
 unchanged line
` + "```" + `

2. IMPORTANT RULES for code suggestions:
   - Start a NEW diff block for EACH file you modify
   - Use complete paths starting from the repository root
   - Include enough unchanged context lines for the change to be located
   - Keep the line counts in each @@ header exact

3. For new files, use --- /dev/null as the old path and add every line with '+'.

4. ALWAYS show diffs for ANY code changes you suggest. Do not just describe changes.`

// Config holds every setting. Sizes are written the way humans do ("100 KiB").
type Config struct {
	Model               string            `toml:"model" comment:"Model name passed to the backend"`
	APIURL              string            `toml:"api_url" comment:"Ollama server address"`
	Timeout             string            `toml:"timeout" comment:"Maximum time to wait for one response"`
	LogLevel            string            `toml:"log_level,omitempty" comment:"debug, info, warn or error; empty disables the log file"`
	DefaultSystemPrompt string            `toml:"default_system_prompt,multiline"`
	ModelPrompts        map[string]string `toml:"model_prompts" comment:"System prompts for specific models"`
	Context             ContextConfig     `toml:"context"`
	Patch               PatchConfig       `toml:"patch"`
	Review              ReviewConfig      `toml:"review"`
}

type ContextConfig struct {
	MaxFileSize    string   `toml:"max_file_size"`
	MaxContextSize string   `toml:"max_context_size"`
	IgnoreFiles    []string `toml:"ignore_files"`
	// IgnorePatterns replaces the default patterns when set.
	IgnorePatterns []string `toml:"ignore_patterns,omitempty"`
}

type PatchConfig struct {
	SearchWindow     int  `toml:"search_window" comment:"Lines searched around the claimed position of a hunk"`
	IgnoreWhitespace bool `toml:"ignore_whitespace"`
}

type ReviewConfig struct {
	Archive bool `toml:"archive" comment:"Keep a record of every review under .code-llm/sessions"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model:               "llama3",
		APIURL:              "http://localhost:11434",
		Timeout:             "5m",
		DefaultSystemPrompt: DefaultSystemPrompt,
		ModelPrompts:        map[string]string{},
		Context: ContextConfig{
			MaxFileSize:    "100 KiB",
			MaxContextSize: "8 MiB",
			IgnoreFiles:    []string{".gitignore", ".codellmignore"},
		},
		Patch:  PatchConfig{SearchWindow: 10, IgnoreWhitespace: true},
		Review: ReviewConfig{Archive: true},
	}
}

// GlobalPath is the per-user config file.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ignore.ToolDir, fileName), nil
}

// ProjectPath is the config file of the project at root.
func ProjectPath(root string) string {
	return filepath.Join(root, ignore.ToolDir, fileName)
}

// Load reads the global and project files over the defaults. Missing files
// are skipped.
func Load(root string) (*Config, error) {
	var paths []string
	if global, err := GlobalPath(); err == nil {
		paths = append(paths, global)
	}
	paths = append(paths, ProjectPath(root))
	return LoadFiles(paths...)
}

// LoadFiles reads each file over the defaults in order. Keys present in a
// later file override earlier values; absent keys keep them.
func LoadFiles(paths ...string) (*Config, error) {
	cfg := Default()
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", p, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that need parsing.
func (c *Config) Validate() error {
	if _, _, err := c.Limits(); err != nil {
		return err
	}
	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	if c.Patch.SearchWindow < 0 {
		return fmt.Errorf("patch.search_window must not be negative, got %d", c.Patch.SearchWindow)
	}
	return nil
}

// Limits returns the per-file and total context budgets in bytes.
func (c *Config) Limits() (maxFile, maxContext int64, err error) {
	f, err := humanize.ParseBytes(c.Context.MaxFileSize)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid context.max_file_size %q: %w", c.Context.MaxFileSize, err)
	}
	t, err := humanize.ParseBytes(c.Context.MaxContextSize)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid context.max_context_size %q: %w", c.Context.MaxContextSize, err)
	}
	return int64(f), int64(t), nil
}

func (c *Config) TimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	return d, nil
}

// SystemPrompt returns the prompt configured for model, or the default one.
func (c *Config) SystemPrompt(model string) string {
	if p, ok := c.ModelPrompts[model]; ok {
		return p
	}
	return c.DefaultSystemPrompt
}

// Init writes the defaults to the project config file and returns its path.
func Init(root string, force bool) (string, error) {
	path := ProjectPath(root)
	if _, err := os.Stat(path); err == nil && !force {
		return path, fmt.Errorf("%w: %s", ErrConfigExists, path)
	}
	data, err := toml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	if err := fs.AtomicWrite(path, data, fs.DefaultPerm); err != nil {
		return "", err
	}
	return path, nil
}
