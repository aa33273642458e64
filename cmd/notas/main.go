// Command notas is the command-line client for the shared notes server.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ernanint/notas-de-vidro/client"
)

// Build-time variables set via ldflags.
var (
	version   = "0.1.0"
	commit    = ""
	buildDate = ""
)

const defaultURL = "http://localhost:3030"

var (
	apiClient *client.Client
	flagURL   string
	flagToken string
	flagFmt   string
)

func versionString() string {
	if commit != "" && buildDate != "" {
		return fmt.Sprintf("notas version %s (commit: %s, built: %s)", version, commit, buildDate)
	}
	return fmt.Sprintf("notas version %s-dev", version)
}

// configFile is ~/.notas/config.yaml. The flat url/token pair is read when no
// profile matches.
type configFile struct {
	URL           string                   `yaml:"url,omitempty"`
	Token         string                   `yaml:"token,omitempty"`
	Profiles      map[string]configProfile `yaml:"profiles,omitempty"`
	ActiveProfile string                   `yaml:"active_profile,omitempty"`
}

type configProfile struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// resolve returns the url and token of the active profile, falling back to
// the flat fields.
func (f *configFile) resolve() (url, token string) {
	url, token = f.URL, f.Token
	if f.Profiles == nil {
		return url, token
	}

	name := f.ActiveProfile
	if name == "" {
		name = "default"
	}
	if p, ok := f.Profiles[name]; ok {
		if p.URL != "" {
			url = p.URL
		}
		if p.Token != "" {
			token = p.Token
		}
	}
	return url, token
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".notas", "config.yaml"), nil
}

func loadConfigFile() (string, *configFile, error) {
	path, err := configPath()
	if err != nil {
		return "", nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return path, nil, err
	}
	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return path, nil, err
	}
	return path, &cfg, nil
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "notas",
		Short:   "notas: shared notes, tasks and checklists",
		Version: versionString(),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			resolveConfig()
			var opts []client.Option
			if flagToken != "" {
				opts = append(opts, client.WithToken(flagToken))
			}
			apiClient = client.New(flagURL, opts...)
		},
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&flagURL, "url", defaultURL, "Server URL (env: NOTAS_URL)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "Bearer token (env: NOTAS_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&flagFmt, "format", "table", "Output format: json|table|quiet")

	initCmd := newInitCmd()
	initCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {} // skip client setup
	doctorCmd := newDoctorCmd()
	doctorCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {} // skip client setup

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(doctorCmd)
	for _, spec := range kindSpecs {
		rootCmd.AddCommand(newEntityCmd(spec))
	}
	rootCmd.AddCommand(newAuditCmd())
	rootCmd.AddCommand(newWatchCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfig() {
	// Flag takes precedence, then env, then config file.
	if flagURL == defaultURL {
		if v := os.Getenv("NOTAS_URL"); v != "" {
			flagURL = v
		}
	}
	if flagToken == "" {
		flagToken = os.Getenv("NOTAS_TOKEN")
	}

	_, cfg, err := loadConfigFile()
	if err != nil {
		return
	}

	url, token := cfg.resolve()
	if flagURL == defaultURL && url != "" {
		flagURL = url
	}
	if flagToken == "" && token != "" {
		flagToken = token
	}
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s %s: %v\n", errorLabel(), msg, err)
	if client.IsRetryable(err) {
		fmt.Fprintln(os.Stderr, "This looks temporary; try again shortly.")
	}
	os.Exit(1)
}
