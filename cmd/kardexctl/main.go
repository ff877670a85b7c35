// Package main provides the kardex operator CLI.
//
// Usage:
//
//	kardexctl migrate up|down|version|force <n>
//	kardexctl recalc --owner <uuid> --unit <uuid> --from 2025-01-31 [--reason text]
//	kardexctl kardex --unit <uuid> --from 2025-01-01 --to 2025-01-31 [--json]
//	kardexctl seq --owner <uuid> --type GR [--peek]
//	kardexctl close-period --owner <uuid> --until 2024-12-31
//	kardexctl catalog --kind product|warehouse --code P-1 --name "Widget" [--id <uuid>]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"kardex/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: envOr("LOG_LEVEL", "warn")})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	ctx := logger.WithLogger(context.Background(), log)

	cmd, ok := commands[os.Args[1]]
	if !ok {
		if os.Args[1] == "help" || os.Args[1] == "--help" || os.Args[1] == "-h" {
			printUsage()
			return
		}
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err := cmd(ctx, os.Args[2:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			printUsage()
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Kardex operator CLI

Usage:
  kardexctl <command> [options]

Commands:
  migrate       Apply or roll back schema migrations (up|down|version|force <n>)
  recalc        Recalculate a stock unit from a date
  kardex        Print the kardex of a stock unit
  seq           Show or take the next sequence number
  close-period  Close the books of an owner up to a date
  catalog       Register a product or warehouse
  help          Show this help

Configuration is read like the server: DATABASE_URL (required), REDIS_ADDR,
PERIODS_DEPTH_EXPRESSION, config.yaml.

Examples:
  kardexctl migrate up
  kardexctl recalc --owner <uuid> --unit <uuid> --from 2025-01-31 --reason "late invoice"
  kardexctl kardex --unit <uuid> --from 2025-01-01 --to 2025-01-31
  kardexctl seq --owner <uuid> --type GR --peek`)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
