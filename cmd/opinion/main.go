package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jdgilhuly/go_second_opinion/pkg/config"
	"github.com/jdgilhuly/go_second_opinion/pkg/dispatch"
	"github.com/jdgilhuly/go_second_opinion/pkg/logging"
	"github.com/jdgilhuly/go_second_opinion/pkg/metrics"
	"github.com/jdgilhuly/go_second_opinion/pkg/provider"
	"github.com/jdgilhuly/go_second_opinion/pkg/report"
	"github.com/jdgilhuly/go_second_opinion/pkg/tools"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "opinion",
	Short: "Second-opinion router for AI agents",
	Long: `Route a question to one or more independent AI backends and collect
their answers.

Use 'opinion serve' to expose the tools to an agent over MCP stdio, or
'opinion ask' and 'opinion compare' to query backends from the terminal.
Run 'opinion init' to write an example opinion.yaml.`,
	Version:      version,
	SilenceUsage: true,
}

// runtime bundles everything built from one config file.
type runtime struct {
	cfg        *config.Config
	logger     *zap.Logger
	providers  []provider.Provider
	collector  *metrics.Collector
	dispatcher *dispatch.Dispatcher
	registry   *tools.Registry
}

// newRuntime loads and validates the config and wires the components.
// Validation failure is fatal: nothing is built from a bad config.
func newRuntime(cfgPath string) (*runtime, error) {
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	providers := provider.FromConfig(cfg, logger)
	collector := metrics.NewCollector()
	d := dispatch.New(providers, logger, collector)

	return &runtime{
		cfg:        cfg,
		logger:     logger,
		providers:  providers,
		collector:  collector,
		dispatcher: d,
		registry:   tools.NewRegistry(d, cfg.Tools, logger, collector),
	}, nil
}

func (rt *runtime) close() {
	_ = rt.logger.Sync()
}

// useColor reports whether w is a terminal and color was not disabled.
func useColor(cmd *cobra.Command, w io.Writer) bool {
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		return false
	}
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func requestFromFlags(cmd *cobra.Command, question string) dispatch.Request {
	req := dispatch.Request{Question: question}
	req.Context, _ = cmd.Flags().GetString("context")
	if cmd.Flags().Lookup("role") != nil {
		req.Role, _ = cmd.Flags().GetString("role")
	}
	if cmd.Flags().Lookup("model") != nil {
		req.Model, _ = cmd.Flags().GetString("model")
	}
	return req
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- ask command ---

var askCmd = &cobra.Command{
	Use:   "ask <provider> <question>",
	Short: "Ask one provider",
	Long: `Send a question to a single provider and print its answer.

Provider is one of: openai, gemini, ollama, claude. A provider that is
not enabled in the config answers with a "not configured" error and is
never contacted.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		rt, err := newRuntime(cfgPath)
		if err != nil {
			return err
		}
		defer rt.close()

		res, err := rt.dispatcher.Opinion(cmd.Context(), args[0], requestFromFlags(cmd, args[1]))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			if err := writeJSON(out, res.Envelope()); err != nil {
				return err
			}
		} else {
			report.PrintOpinion(out, res, useColor(cmd, out))
		}
		if !res.OK() {
			return fmt.Errorf("%s did not answer", args[0])
		}
		return nil
	},
}

// --- compare command ---

var compareCmd = &cobra.Command{
	Use:   "compare <question>",
	Short: "Ask every ready provider at once",
	Long: `Send a question to every enabled provider concurrently and print all
answers side by side. Each provider uses its default role and its own
timeout; a failing provider never hides the others' answers.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		rt, err := newRuntime(cfgPath)
		if err != nil {
			return err
		}
		defer rt.close()

		start := time.Now()
		cmp, err := rt.dispatcher.Compare(cmd.Context(), requestFromFlags(cmd, args[0]))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(out, cmp.Flatten())
		}
		report.PrintComparison(out, cmp, time.Since(start), useColor(cmd, out))
		return nil
	},
}

// --- providers command ---

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show which providers are ready",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		rt, err := newRuntime(cfgPath)
		if err != nil {
			return err
		}
		defer rt.close()

		out := cmd.OutOrStdout()
		report.PrintProviders(out, rt.providers, useColor(cmd, out))
		return nil
	},
}

// --- validate command ---

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config file",
	Long: `Check the configuration for errors.

Validates YAML syntax, required fields of enabled providers, timeouts,
custom prompt templates and the log level. Every problem is reported,
not just the first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.LoadOrDefault(cfgPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Config %q is valid.\n", cfgPath)
		return nil
	},
}

// --- init command ---

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example config file",
	Long: `Write an example opinion.yaml with every provider listed and disabled.

Enable the providers you have access to, then run 'opinion validate'.
OPENAI_API_KEY and OLLAMA_BASE_URL override the file when set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		if err := writeYAML(cmd.OutOrStdout(), path, config.Default()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "\nRun 'opinion validate' to check your config.")
		return nil
	},
}

func writeYAML(w io.Writer, path string, data any) error {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "  skipped %s (already exists)\n", path)
		return nil
	}

	out, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(w, "  created %s\n", path)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "opinion.yaml", "Path to config file")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	// ask command flags
	askCmd.Flags().String("context", "", "Background prepended to the question")
	askCmd.Flags().StringP("role", "r", "", "Override the provider's default role")
	askCmd.Flags().StringP("model", "m", "", "Override the configured model")
	askCmd.Flags().Bool("json", false, "Print the response envelope as JSON")

	// compare command flags
	compareCmd.Flags().String("context", "", "Background prepended to the question")
	compareCmd.Flags().Bool("json", false, "Print the opinions as a JSON object")

	// serve command flags
	serveCmd.Flags().String("http-addr", "", "Also serve tools over HTTP on this address (e.g. :8080)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(initCmd)
}
