// Copyright 2026 The OpenBug Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/openbug-ai/cli/cmd/openbug/cli"
	"github.com/openbug-ai/cli/lib/capture"
	"github.com/openbug-ai/cli/relay"
)

// queryTimeout bounds a one-shot relay query, dial included.
const queryTimeout = 10 * time.Second

func projectsCommand() *cli.Command {
	var (
		flags     commonFlags
		projectID string
		asJSON    bool
	)
	return &cli.Command{
		Name:    "projects",
		Summary: "List the services attached to a project",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("projects", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&projectID, "project", "", "project id (default: client.project_id)")
			flagSet.BoolVar(&asJSON, "json", false, "print JSON instead of a table")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "List services in the configured project", Command: "openbug projects"},
			{Command: "openbug projects --project checkout --json"},
		},
		Run: func(args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if projectID == "" {
				projectID = cfg.Client.ProjectID
			}
			ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
			defer cancel()
			return listProjects(ctx, cfg.Relay.URL, projectID, asJSON, os.Stdout)
		},
	}
}

func listProjects(ctx context.Context, url, projectID string, asJSON bool, out io.Writer) error {
	client, err := dialRelay(ctx, url)
	if err != nil {
		return err
	}
	defer client.Close()

	services, err := client.FetchProjects(ctx, projectID)
	if err != nil {
		return err
	}

	if asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(services)
	}
	if len(services) == 0 {
		fmt.Fprintf(out, "no services attached to %s\n", projectID)
		return nil
	}
	table := tabwriter.NewWriter(out, 2, 0, 2, ' ', 0)
	fmt.Fprintln(table, "WINDOW ID\tNAME\tLOGS\tCODE\tPATH\tDESCRIPTION")
	for _, service := range services {
		name := service.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(table, "%d\t%s\t%s\t%s\t%s\t%s\n",
			service.WindowID, name,
			yesNo(service.LogsAvailable), yesNo(service.CodeAvailable),
			service.Path, service.Description)
	}
	return table.Flush()
}

func logsCommand() *cli.Command {
	var (
		flags    commonFlags
		windowID int64
		tail     int
		grep     string
		errorsN  int
	)
	return &cli.Command{
		Name:    "logs",
		Summary: "Print a service's buffered output from the relay",
		Description: `Print a service's buffered output from the relay.

The relay keeps the most recent output of each attached service. The
--tail, --grep and --errors filters run the same queries the assistant
uses through its log tools.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("logs", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.Int64Var(&windowID, "window-id", 0, "service instance to read (see 'openbug projects')")
			flagSet.IntVar(&tail, "tail", 0, "print only the last N lines")
			flagSet.StringVar(&grep, "grep", "", "print lines containing this text, with context")
			flagSet.IntVar(&errorsN, "errors", 0, "print the N most recent error-looking lines")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Show the last 100 lines", Command: "openbug logs --window-id 1760000000000 --tail 100"},
			{Command: "openbug logs --window-id 1760000000000 --grep timeout"},
		},
		Run: func(args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}
			if windowID <= 0 {
				return errors.New("--window-id is required")
			}
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
			defer cancel()
			return printLogs(ctx, cfg.Relay.URL, windowID, logFilter{tail: tail, grep: grep, errors: errorsN}, os.Stdout)
		},
	}
}

// logFilter selects at most one query over the fetched text. The
// first non-zero field wins, in declaration order.
type logFilter struct {
	tail   int
	grep   string
	errors int
}

func (f logFilter) apply(text string) string {
	switch {
	case f.tail > 0:
		return capture.Tail(text, f.tail)
	case f.grep != "":
		return capture.Grep(text, f.grep, 5, 5)
	case f.errors > 0:
		return capture.RecentErrors(text, f.errors)
	}
	return text
}

func printLogs(ctx context.Context, url string, windowID int64, filter logFilter, out io.Writer) error {
	client, err := dialRelay(ctx, url)
	if err != nil {
		return err
	}
	defer client.Close()

	text, err := client.FetchLogs(ctx, windowID)
	if err != nil {
		return err
	}
	if text == "" {
		fmt.Fprintf(os.Stderr, "no output buffered for window %d\n", windowID)
		return &cli.ExitError{Code: 1}
	}

	text = filter.apply(text)
	if _, err := io.WriteString(out, text); err != nil {
		return err
	}
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(out)
	}
	return nil
}

// dialRelay connects to the relay with an error that says how to
// start one.
func dialRelay(ctx context.Context, url string) (*relay.Client, error) {
	client, err := relay.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("no relay at %s (start one with 'openbug relay' or 'openbug attach'): %w", url, err)
	}
	return client, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
