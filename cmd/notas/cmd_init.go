package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ernanint/notas-de-vidro/client"
)

func newInitCmd() *cobra.Command {
	var (
		initURL   string
		initToken string
		profile   string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up notas CLI configuration",
		Long:  "Interactive setup wizard that creates ~/.notas/config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			nonInteractive := initURL != "" || initToken != ""
			return runInit(initURL, initToken, profile, nonInteractive)
		},
	}

	cmd.Flags().StringVar(&initURL, "url", "", "Server URL (non-interactive mode)")
	cmd.Flags().StringVar(&initToken, "token", "", "Bearer token (non-interactive mode)")
	cmd.Flags().StringVar(&profile, "profile", "default", "Profile name to write")
	return cmd
}

func runInit(url, token, profile string, nonInteractive bool) error {
	if !nonInteractive {
		fmt.Println()
		fmt.Println(headerColor.Sprint("  notas setup"))
		fmt.Println()

		reader := bufio.NewReader(os.Stdin)

		fmt.Printf("  Server URL [%s]: ", defaultURL)
		line, _ := reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			url = line
		}

		fmt.Print("  Token: ")
		tokenLine, _ := reader.ReadString('\n')
		token = strings.TrimSpace(tokenLine)
	}

	if url == "" {
		url = defaultURL
	}

	if token == "" {
		return fmt.Errorf("token is required")
	}

	if !nonInteractive {
		fmt.Print("\n  Testing connection... ")
	}

	ver, err := testConnection(url, token)
	if err != nil {
		if !nonInteractive {
			fmt.Println(errorColor.Sprint("✗"))
		}
		return fmt.Errorf("connection failed: %w", err)
	}

	if !nonInteractive {
		fmt.Println(successColor.Sprintf("✓ Connected (v%s)", ver))
	}

	cfgPath, err := writeConfig(url, token, profile)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	if nonInteractive {
		fmt.Printf("Config saved to %s\n", cfgPath)
	} else {
		fmt.Printf("\n  Config saved to %s\n", cfgPath)
		fmt.Println()
		fmt.Println("  Next steps:")
		fmt.Println("    notas doctor        # Full diagnostic check")
		fmt.Println("    notas note list     # See your notes")
		fmt.Println("    notas watch         # Follow live changes")
		fmt.Println()
	}

	return nil
}

// testConnection checks the token against an authenticated endpoint and
// returns the server version.
func testConnection(url, token string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := client.New(url, client.WithToken(token))

	health, err := c.Health(ctx)
	if err != nil {
		return "", err
	}
	if _, err := c.Notes.List(ctx); err != nil {
		return "", err
	}

	if health.Version == "" {
		return "unknown", nil
	}
	return health.Version, nil
}

// writeConfig stores url and token under profile, keeping other profiles.
func writeConfig(url, token, profile string) (string, error) {
	cfgPath, err := configPath()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
		return "", err
	}

	cfg := &configFile{}
	if _, existing, err := loadConfigFile(); err == nil {
		cfg = existing
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]configProfile)
	}
	cfg.Profiles[profile] = configProfile{URL: url, Token: token}
	cfg.ActiveProfile = profile

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		return "", err
	}

	return cfgPath, nil
}
