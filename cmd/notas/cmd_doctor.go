package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ernanint/notas-de-vidro/client"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration and connectivity",
		Long:  "Run diagnostic checks against config, server, and auth",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor()
		},
	}
}

type checkResult struct {
	Name   string
	Passed bool
	Detail string
	Hint   string
}

func runDoctor() error {
	fmt.Println()
	fmt.Println(headerColor.Sprint("notas doctor"))
	fmt.Println("============")

	var results []checkResult

	cfgPath, cfg, cfgErr := loadConfigFile()
	if cfgErr != nil {
		results = append(results, checkResult{
			Name: "Config file", Passed: false,
			Detail: cfgPath,
			Hint:   "Run: notas init",
		})
	} else {
		results = append(results, checkResult{
			Name: "Config file", Passed: true,
			Detail: fmt.Sprintf("found (%s)", cfgPath),
		})
	}

	url, token := doctorResolveSettings(cfg)

	results = append(results, checkResult{Name: "Server URL", Passed: true, Detail: url})

	if token == "" {
		results = append(results, checkResult{
			Name: "Token", Passed: false,
			Hint: "Set --token, NOTAS_TOKEN, or run notas init",
		})
	} else {
		results = append(results, checkResult{Name: "Token", Passed: true, Detail: "configured"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := client.New(url, client.WithToken(token))

	health, err := c.Health(ctx)
	if err != nil {
		results = append(results, checkResult{
			Name: "Server reachable", Passed: false,
			Detail: url,
			Hint:   fmt.Sprintf("Is notas-server running?\n   Error: %v", err),
		})
	} else {
		results = append(results, checkResult{
			Name: "Server reachable", Passed: true,
			Detail: fmt.Sprintf("v%s, %s storage", health.Version, health.Storage),
		})
		ready := c.Ready(ctx)
		detail := health.Database
		if ready != nil {
			detail = "not ready"
		}
		results = append(results, checkResult{
			Name:   "Storage",
			Passed: ready == nil,
			Detail: detail,
			Hint:   "The server cannot use its storage backend (unreachable or not migrated); check its logs",
		})
	}

	if err == nil && token != "" {
		if _, err := c.Notes.List(ctx); err != nil {
			results = append(results, checkResult{
				Name: "Authentication", Passed: false,
				Hint: fmt.Sprintf("Check your token. Error: %v", err),
			})
		} else {
			results = append(results, checkResult{Name: "Authentication", Passed: true, Detail: "valid"})
		}
	}

	fmt.Println()
	allPassed := true
	for _, r := range results {
		mark := successColor.Sprint("✓")
		if !r.Passed {
			allPassed = false
			mark = errorColor.Sprint("✗")
		}
		if r.Detail != "" {
			fmt.Printf("%s %s: %s\n", mark, r.Name, r.Detail)
		} else {
			fmt.Printf("%s %s\n", mark, r.Name)
		}
		if !r.Passed && r.Hint != "" {
			fmt.Printf("   Hint: %s\n", r.Hint)
		}
	}

	fmt.Println()
	if !allPassed {
		fmt.Println(errorColor.Sprint("Some checks failed."))
		return fmt.Errorf("doctor found issues")
	}
	fmt.Println(successColor.Sprint("All checks passed!"))
	return nil
}

// doctorResolveSettings applies the same precedence as resolveConfig without
// mutating the global flags.
func doctorResolveSettings(cfg *configFile) (url, token string) {
	url, token = flagURL, flagToken

	if url == defaultURL {
		if v := os.Getenv("NOTAS_URL"); v != "" {
			url = v
		}
	}
	if token == "" {
		token = os.Getenv("NOTAS_TOKEN")
	}

	if cfg != nil {
		fileURL, fileToken := cfg.resolve()
		if url == defaultURL && fileURL != "" {
			url = fileURL
		}
		if token == "" && fileToken != "" {
			token = fileToken
		}
	}

	return url, token
}
