package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ernanint/notas-de-vidro/client"
)

// watchKinds maps command arguments onto the server's kind names.
func watchKinds(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, a := range args {
		switch strings.ToLower(a) {
		case "note", "notes":
			out = append(out, client.KindNotes)
		case "task", "tasks":
			out = append(out, client.KindTasks)
		case "check", "checklist", "item", "items":
			out = append(out, client.KindChecklist)
		default:
			return nil, fmt.Errorf("unknown kind %q (want note, task or check)", a)
		}
	}
	return out, nil
}

func printSnapshot(s *client.Snapshot) {
	title := fmt.Sprintf("== %s (%d) ==", s.Kind, len(s.Items))
	if !s.Ready {
		title += dimColor.Sprint(" loading")
	}
	fmt.Println(headerColor.Sprint(title))

	completable := s.Kind != "note"
	for _, e := range s.Items {
		line := e.Title
		if completable {
			line = checkbox(e.Completed) + " " + line
		}
		if len(e.SharedWith) > 0 {
			line += dimColor.Sprintf("  (shared with %s)", strings.Join(e.SharedWith, ", "))
		}
		fmt.Println("  " + line)
	}
}

func handleEvent(ev client.Event) error {
	if flagFmt == "json" {
		formatJSON(ev)
		return nil
	}

	switch ev.Type {
	case client.EventSnapshot:
		s, err := ev.Snapshot()
		if err != nil {
			return err
		}
		printSnapshot(s)
	case client.EventNotice:
		n, err := ev.Notice()
		if err != nil {
			return err
		}
		fmt.Println(noticeLine(n))
	case client.EventShutdown:
		fmt.Println(dimColor.Sprint("server shutting down"))
	}
	return nil
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [note|task|check...]",
		Short: "Stream live lists and notices until interrupted",
		Run: func(cmd *cobra.Command, args []string) {
			kinds, err := watchKinds(args)
			if err != nil {
				fatal("watch", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := apiClient.Watch(ctx, kinds, handleEvent); err != nil {
				fatal("watch", err)
			}
		},
	}
}
