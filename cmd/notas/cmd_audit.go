package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ernanint/notas-de-vidro/client"
)

// auditRows splits "task.share" style actions into kind and verb columns.
func auditRows(entries []client.AuditEntry) ([]string, [][]string) {
	headers := []string{"WHEN", "KIND", "ACTION", "ENTITY", "DETAIL"}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		kind, verb, ok := strings.Cut(e.Action, ".")
		if !ok {
			kind, verb = e.EntityKind, e.Action
		}
		detail := ""
		if target, ok := e.Detail["target"].(string); ok {
			detail = "user " + target
		} else if title, ok := e.Detail["title"].(string); ok {
			detail = fmt.Sprintf("%q", title)
		}
		rows = append(rows, []string{shortTime(e.CreatedAt), kind, verb, e.EntityID, detail})
	}
	return headers, rows
}

func newAuditCmd() *cobra.Command {
	var entityID, action, since string
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show your recent actions",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			opts := &client.AuditQueryOptions{
				EntityID: entityID,
				Action:   action,
				Limit:    limit,
			}
			if since != "" {
				d, err := time.ParseDuration(since)
				if err != nil {
					fatal("parse --since", err)
				}
				t := time.Now().Add(-d)
				opts.Since = &t
			}
			entries, more, err := apiClient.Audit.Query(context.Background(), opts)
			if err != nil {
				fatal("audit query", err)
			}
			if flagFmt == "table" {
				formatTable(auditRows(entries))
				if more {
					fmt.Println(dimColor.Sprint("more entries exist; raise --limit or narrow with --since"))
				}
				return
			}
			output(entries, "")
		},
	}
	cmd.Flags().StringVar(&entityID, "entity", "", "Filter by entity ID")
	cmd.Flags().StringVar(&action, "action", "", "Filter by action, e.g. note.share")
	cmd.Flags().StringVar(&since, "since", "", "Only entries newer than this duration, e.g. 24h")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max results")
	return cmd
}
