// ABOUTME: Subcommands of coven-responder-admin
// ABOUTME: list, add, delete, match, migrate, and audit over the responder database

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-responder/internal/responds"
	"github.com/2389/coven-responder/internal/store"
)

// entryView is the JSON shape of an entry.
type entryView struct {
	Trigger string  `json:"trigger"`
	Room    *string `json:"room"`
	Value   string  `json:"value"`
}

func viewOf(e responds.Entry) entryView {
	v := entryView{Trigger: e.Trigger, Value: e.Value}
	if !e.Global() {
		room := e.Room
		v.Room = &room
	}
	return v
}

func scopeLabel(room string) string {
	if room == "" {
		return "global"
	}
	return room
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Fprintln(out(cmd), string(data))
	return nil
}

func (a *app) listCmd() *cobra.Command {
	var room string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List responds",
		Long: `List every respond in storage order, or only those that answer in one room.

Example:
  coven-responder-admin list
  coven-responder-admin list --room '!abc:example.org'`,
		Args: cobra.NoArgs,
		RunE: a.withStore(true, func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var entries []responds.Entry
			var err error
			if room != "" {
				entries, err = a.registry.ListRoom(ctx, room)
			} else {
				entries, err = a.registry.List(ctx)
			}
			if err != nil {
				return fmt.Errorf("list responds: %w", err)
			}

			if a.jsonOutput {
				views := make([]entryView, 0, len(entries))
				for _, e := range entries {
					views = append(views, viewOf(e))
				}
				return printJSON(cmd, views)
			}

			if len(entries) == 0 {
				fmt.Fprintln(out(cmd), "No responds found.")
				return nil
			}

			w := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TRIGGER\tSCOPE\tVALUE")
			fmt.Fprintln(w, "-------\t-----\t-----")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.Trigger, scopeLabel(e.Room), e.Value)
			}
			return w.Flush()
		}),
	}

	cmd.Flags().StringVar(&room, "room", "", "only list responds eligible in this room")
	return cmd
}

func (a *app) addCmd() *cobra.Command {
	var room string

	cmd := &cobra.Command{
		Use:   "add <trigger> <value...>",
		Short: "Add or replace a respond",
		Long: `Add stores a reply for a trigger phrase. An existing reply for the same
trigger and scope is replaced. The value may use {sender} and {room}.

Example:
  coven-responder-admin add "coffee break" "Enjoy your coffee, {sender}!"
  coven-responder-admin add standup "Standup at 10" --room '!team:example.org'`,
		Args: cobra.MinimumNArgs(2),
		RunE: a.withStore(true, func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			trigger := args[0]
			value := strings.Join(args[1:], " ")

			result, err := a.registry.Upsert(ctx, trigger, value, room)
			if errors.Is(err, responds.ErrInvalidTrigger) {
				return fmt.Errorf("trigger %q is empty after trimming", trigger)
			}
			if err != nil {
				return fmt.Errorf("save respond: %w", err)
			}

			action := store.AuditCreateRespond
			if result == responds.Updated {
				action = store.AuditUpdateRespond
			}
			a.audit(cmd, action, trigger, room, map[string]any{"value": value})

			if a.jsonOutput {
				return printJSON(cmd, map[string]string{"result": result.String(), "trigger": responds.NormalizeTrigger(trigger)})
			}
			color.New(color.FgGreen).Fprintf(out(cmd), "✓ Respond %s: %s (%s)\n", result, responds.NormalizeTrigger(trigger), scopeLabel(room))
			return nil
		}),
	}

	cmd.Flags().StringVar(&room, "room", "", "scope the respond to this room")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	var room string
	var global bool

	cmd := &cobra.Command{
		Use:   "delete <trigger>",
		Short: "Delete a respond",
		Long: `Delete removes a trigger. Without flags every scope of the trigger is
removed; --room removes one room's entry and --global only the global one.

Example:
  coven-responder-admin delete "coffee break"
  coven-responder-admin delete standup --room '!team:example.org'`,
		Args: cobra.ExactArgs(1),
		RunE: a.withStore(true, func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			trigger := args[0]

			var removed bool
			var err error
			if global {
				removed, err = a.registry.RemoveGlobal(ctx, trigger)
			} else {
				removed, err = a.registry.Remove(ctx, trigger, room)
			}
			if err != nil {
				return fmt.Errorf("delete respond: %w", err)
			}
			if !removed {
				return fmt.Errorf("no respond to %q", responds.NormalizeTrigger(trigger))
			}

			a.audit(cmd, store.AuditDeleteRespond, trigger, room, nil)

			if a.jsonOutput {
				return printJSON(cmd, map[string]string{"deleted": responds.NormalizeTrigger(trigger), "status": "success"})
			}
			fmt.Fprintf(out(cmd), "Deleted respond: %s\n", responds.NormalizeTrigger(trigger))
			return nil
		}),
	}

	cmd.Flags().StringVar(&room, "room", "", "only delete the entry scoped to this room")
	cmd.Flags().BoolVar(&global, "global", false, "only delete the global entry")
	cmd.MarkFlagsMutuallyExclusive("room", "global")
	return cmd
}

func (a *app) matchCmd() *cobra.Command {
	var room, sender string

	cmd := &cobra.Command{
		Use:   "match <text...>",
		Short: "Show the reply a message would get",
		Long: `Match runs text through the matcher as if it were posted in a room and
prints the rendered reply.

Example:
  coven-responder-admin match "let's take a coffee break" --room '!abc:example.org' --sender Alex`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.withStore(true, func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			matcher := responds.NewMatcher(a.registry, nil)

			e, ok := matcher.Match(cmd.Context(), text, room)
			if !ok {
				if a.jsonOutput {
					return printJSON(cmd, map[string]any{"matched": false})
				}
				fmt.Fprintln(out(cmd), "No match.")
				return nil
			}

			reply := responds.Render(e.Value, responds.MessageVars(sender, room))
			if a.jsonOutput {
				return printJSON(cmd, map[string]any{"matched": true, "entry": viewOf(e), "reply": reply})
			}
			color.New(color.FgCyan).Fprintf(out(cmd), "%s (%s)\n", e.Trigger, scopeLabel(e.Room))
			fmt.Fprintln(out(cmd), reply)
			return nil
		}),
	}

	cmd.Flags().StringVar(&room, "room", "", "room the message is posted in")
	cmd.Flags().StringVar(&sender, "sender", "someone", "value for {sender}")
	return cmd
}

func (a *app) migrateCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade stored responds to the current format",
		Long: `Migrate applies every pending schema migration to the responds store.
coven-responder does this on start; the command is for upgrading offline
or inspecting what would run.

Example:
  coven-responder-admin migrate --dry-run
  coven-responder-admin migrate`,
		Args: cobra.NoArgs,
		RunE: a.withStore(false, func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			migrator := responds.NewMigrator(a.store, nil)
			steps := responds.Migrations()

			cursor, err := migrator.Cursor(ctx)
			if err != nil {
				return err
			}
			if cursor >= len(steps) {
				fmt.Fprintf(out(cmd), "Store is current (%d/%d migrations applied).\n", cursor, len(steps))
				return nil
			}

			present, err := a.respondKeys(ctx)
			if err != nil {
				return err
			}
			if len(present) == 0 {
				fmt.Fprintln(out(cmd), "Stored responds: none")
			} else {
				fmt.Fprintf(out(cmd), "Stored responds: %s\n", strings.Join(present, ", "))
			}

			fmt.Fprintf(out(cmd), "%d/%d migrations applied. Pending:\n", cursor, len(steps))
			for i := cursor; i < len(steps); i++ {
				fmt.Fprintf(out(cmd), "  %d. %s\n", i+1, steps[i].Name)
			}
			if dryRun {
				return nil
			}

			applied, err := migrator.Migrate(ctx)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			a.audit(cmd, store.AuditMigrate, "", "", map[string]any{"from": cursor, "to": cursor + applied})
			color.New(color.FgGreen).Fprintf(out(cmd), "✓ Applied %d migrations.\n", applied)
			return nil
		}),
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
	return cmd
}

func (a *app) auditCmd() *cobra.Command {
	var limit int
	var action, trigger, actor, since string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent changes to the responds",
		Long: `Audit lists changes newest first.

Example:
  coven-responder-admin audit --limit 20
  coven-responder-admin audit --action delete_respond --since 24h`,
		Args: cobra.NoArgs,
		RunE: a.withStore(false, func(cmd *cobra.Command, args []string) error {
			filter := store.AuditFilter{Limit: limit}
			if action != "" {
				act := store.AuditAction(action)
				if !validAction(act) {
					return fmt.Errorf("unknown action %q", action)
				}
				filter.Action = &act
			}
			if trigger != "" {
				t := responds.NormalizeTrigger(trigger)
				filter.Trigger = &t
			}
			if actor != "" {
				filter.Actor = &actor
			}
			if since != "" {
				d, err := time.ParseDuration(since)
				if err != nil {
					return fmt.Errorf("parsing --since %q: %w", since, err)
				}
				from := time.Now().Add(-d)
				filter.Since = &from
			}

			entries, err := a.store.ListAuditLog(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("list audit log: %w", err)
			}

			if a.jsonOutput {
				return printJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out(cmd), "No audit entries found.")
				return nil
			}

			w := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACTOR\tACTION\tTRIGGER\tSCOPE")
			fmt.Fprintln(w, "----\t-----\t------\t-------\t-----")
			for _, e := range entries {
				room := ""
				if e.Room != nil {
					room = *e.Room
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Actor, e.Action, e.Trigger, scopeLabel(room))
			}
			return w.Flush()
		}),
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show")
	cmd.Flags().StringVar(&action, "action", "", "only show this action (create_respond, update_respond, delete_respond, migrate)")
	cmd.Flags().StringVar(&trigger, "trigger", "", "only show changes to this trigger")
	cmd.Flags().StringVar(&actor, "actor", "", "only show changes by this actor")
	cmd.Flags().StringVar(&since, "since", "", "only show changes within this duration, e.g. 24h")
	return cmd
}

func validAction(action store.AuditAction) bool {
	for _, a := range store.ValidAuditActions {
		if a == action {
			return true
		}
	}
	return false
}

// audit records a CLI change. A failure is reported but does not undo the change.
func (a *app) audit(cmd *cobra.Command, action store.AuditAction, trigger, room string, detail map[string]any) {
	entry := &store.AuditEntry{
		Actor:   adminActor,
		Action:  action,
		Trigger: responds.NormalizeTrigger(trigger),
		Detail:  detail,
	}
	if room != "" {
		entry.Room = &room
	}
	if err := a.store.AppendAuditLog(cmd.Context(), entry); err != nil {
		color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "warning: audit log not written: %v\n", err)
	}
}
