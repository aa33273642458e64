package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ernanint/notas-de-vidro/client"
)

// kindSpec describes one entity command group.
type kindSpec struct {
	use         string
	aliases     []string
	kind        string
	label       string
	completable bool
}

var kindSpecs = []kindSpec{
	{use: "note", aliases: []string{"notes"}, kind: client.KindNotes, label: "note"},
	{use: "task", aliases: []string{"tasks"}, kind: client.KindTasks, label: "task", completable: true},
	{use: "check", aliases: []string{"checklist", "item"}, kind: client.KindChecklist, label: "checklist item", completable: true},
}

// entityFlags holds the field flags shared by create and update.
type entityFlags struct {
	title       string
	content     string
	password    string
	description string
	priority    string
	due         string
	clearDue    bool
	color       string
	image       string
	reason      string
}

func (f *entityFlags) register(cmd *cobra.Command, spec kindSpec, update bool) {
	if update {
		cmd.Flags().StringVar(&f.title, "title", "", "New title")
		cmd.Flags().StringVar(&f.reason, "reason", "", "Why the change was made (kept in history)")
	}
	switch spec.kind {
	case client.KindNotes:
		cmd.Flags().StringVar(&f.content, "content", "", "Note body")
		cmd.Flags().StringVar(&f.password, "password", "", "Lock the note with a password")
	case client.KindTasks:
		cmd.Flags().StringVar(&f.description, "description", "", "Task description")
		cmd.Flags().StringVar(&f.priority, "priority", "", "Priority: low|medium|high")
		cmd.Flags().StringVar(&f.due, "due", "", "Due date (YYYY-MM-DD or RFC3339)")
		if update {
			cmd.Flags().BoolVar(&f.clearDue, "clear-due", false, "Remove the due date")
		}
	}
	cmd.Flags().StringVar(&f.color, "color", "", "Background color")
	cmd.Flags().StringVar(&f.image, "image", "", "Background image URL or data URI")
}

// parseDue accepts a calendar date or a full RFC3339 timestamp.
func parseDue(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid due date %q: use YYYY-MM-DD or RFC3339", s)
	}
	return &t, nil
}

func createRequest(title string, f *entityFlags) (*client.CreateRequest, error) {
	due, err := parseDue(f.due)
	if err != nil {
		return nil, err
	}
	return &client.CreateRequest{
		Title:           title,
		Content:         f.content,
		Password:        f.password,
		Description:     f.description,
		Priority:        strings.ToLower(f.priority),
		DueDate:         due,
		BackgroundColor: f.color,
		BackgroundImage: f.image,
	}, nil
}

// updateRequest includes only the flags the user set, so an explicit empty
// value still reaches the server.
func updateRequest(cmd *cobra.Command, f *entityFlags) (*client.UpdateRequest, error) {
	req := &client.UpdateRequest{Reason: f.reason, ClearDueDate: f.clearDue}
	changed := cmd.Flags().Changed

	set := func(name string, v *string) *string {
		if changed(name) {
			return v
		}
		return nil
	}
	req.Title = set("title", &f.title)
	req.Content = set("content", &f.content)
	req.Password = set("password", &f.password)
	req.Description = set("description", &f.description)
	req.BackgroundColor = set("color", &f.color)
	req.BackgroundImage = set("image", &f.image)
	if changed("priority") {
		p := strings.ToLower(f.priority)
		req.Priority = &p
	}
	if changed("due") {
		due, err := parseDue(f.due)
		if err != nil {
			return nil, err
		}
		req.DueDate = due
	}

	if req.Title == nil && req.Content == nil && req.Password == nil && req.Description == nil &&
		req.Priority == nil && req.DueDate == nil && !req.ClearDueDate &&
		req.BackgroundColor == nil && req.BackgroundImage == nil {
		return nil, fmt.Errorf("nothing to update: pass at least one field flag")
	}
	return req, nil
}

func newEntityCmd(spec kindSpec) *cobra.Command {
	cmd := &cobra.Command{
		Use:     spec.use,
		Aliases: spec.aliases,
		Short:   fmt.Sprintf("Manage %ss", spec.label),
	}

	svc := func() *client.EntityService {
		s, err := apiClient.Entities(spec.kind)
		if err != nil {
			fatal("select kind", err)
		}
		return s
	}

	cmd.AddCommand(entityCreateCmd(spec, svc))
	cmd.AddCommand(entityListCmd(spec, svc))
	cmd.AddCommand(entityGetCmd(spec, svc))
	cmd.AddCommand(entityUpdateCmd(spec, svc))
	if spec.completable {
		cmd.AddCommand(entityToggleCmd(spec, svc))
	}
	cmd.AddCommand(entityShareCmd(spec, svc))
	cmd.AddCommand(entityUnshareCmd(spec, svc))
	cmd.AddCommand(entityDeleteCmd(spec, svc))
	cmd.AddCommand(entityHistoryCmd(spec, svc))
	return cmd
}

func entityCreateCmd(spec kindSpec, svc func() *client.EntityService) *cobra.Command {
	var f entityFlags
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a " + spec.label,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			req, err := createRequest(args[0], &f)
			if err != nil {
				fatal("create "+spec.label, err)
			}
			e, err := svc().Create(context.Background(), req)
			if err != nil {
				fatal("create "+spec.label, err)
			}
			if flagFmt == "table" {
				fmt.Println(successColor.Sprintf("Created %s %s", spec.label, e.ID))
				return
			}
			output(e, e.ID)
		},
	}
	f.register(cmd, spec, false)
	return cmd
}

func entityListCmd(spec kindSpec, svc func() *client.EntityService) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List %ss you own or that are shared with you", spec.label),
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			items, err := svc().List(context.Background())
			if err != nil {
				fatal("list "+spec.label+"s", err)
			}
			switch flagFmt {
			case "table":
				formatTable(entityRows(items, spec.completable))
			case "quiet":
				for _, e := range items {
					fmt.Println(e.ID)
				}
			default:
				output(items, "")
			}
		},
	}
}

func entityGetCmd(spec kindSpec, svc func() *client.EntityService) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a " + spec.label,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			e, err := svc().Get(context.Background(), args[0])
			if err != nil {
				fatal("get "+spec.label, err)
			}
			output(e, e.ID)
		},
	}
}

func entityUpdateCmd(spec kindSpec, svc func() *client.EntityService) *cobra.Command {
	var f entityFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a " + spec.label,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			req, err := updateRequest(cmd, &f)
			if err != nil {
				fatal("update "+spec.label, err)
			}
			e, err := svc().Update(context.Background(), args[0], req)
			if err != nil {
				fatal("update "+spec.label, err)
			}
			output(e, e.ID)
		},
	}
	f.register(cmd, spec, true)
	return cmd
}

func entityToggleCmd(spec kindSpec, svc func() *client.EntityService) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Mark a " + spec.label + " complete or reopen it",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			e, err := svc().Toggle(context.Background(), args[0])
			if err != nil {
				fatal("toggle "+spec.label, err)
			}
			if flagFmt == "table" {
				fmt.Printf("%s %s\n", checkbox(e.Completed), e.Title)
				return
			}
			output(e, e.ID)
		},
	}
}

func entityShareCmd(spec kindSpec, svc func() *client.EntityService) *cobra.Command {
	return &cobra.Command{
		Use:   "share <id> <user>",
		Short: "Give another user access to a " + spec.label,
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			e, err := svc().Share(context.Background(), args[0], args[1])
			if client.IsConflict(err) {
				fmt.Printf("%s is already shared with %s\n", spec.label, args[1])
				return
			}
			if err != nil {
				fatal("share "+spec.label, err)
			}
			output(e, e.ID)
		},
	}
}

func entityUnshareCmd(spec kindSpec, svc func() *client.EntityService) *cobra.Command {
	return &cobra.Command{
		Use:   "unshare <id> <user>",
		Short: "Revoke a user's access to a " + spec.label,
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			e, err := svc().Unshare(context.Background(), args[0], args[1])
			if err != nil {
				fatal("unshare "+spec.label, err)
			}
			output(e, e.ID)
		},
	}
}

func entityDeleteCmd(spec kindSpec, svc func() *client.EntityService) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a " + spec.label,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := svc().Delete(context.Background(), args[0]); err != nil {
				fatal("delete "+spec.label, err)
			}
			fmt.Println("deleted")
		},
	}
}

func entityHistoryCmd(spec kindSpec, svc func() *client.EntityService) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show who changed a " + spec.label + " and when",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			changes, err := svc().History(context.Background(), args[0])
			if err != nil {
				fatal("get history", err)
			}
			if flagFmt == "table" {
				formatTable(historyRows(changes))
				return
			}
			output(changes, "")
		},
	}
}
