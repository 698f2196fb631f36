package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hazardline/internal/app"
	"hazardline/internal/config"
	"hazardline/internal/engine/auth"
	"hazardline/internal/events"
	"hazardline/internal/report"
	"hazardline/internal/stage"
)

func reportCmd() *cobra.Command {
	var markdown bool
	cmd := &cobra.Command{
		Use:   "report <hazard-id>",
		Short: "Render the corrective action report preview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				if err := a.Engine.Auth.Require(actor, config.PermHazardRead); err != nil {
					return err
				}
				h, err := a.Engine.Get(ctx, args[0])
				if err != nil {
					return err
				}
				draft := report.BuildPreview(h, report.Options{PendingPlaceholder: a.Config.Report.PendingPlaceholder})
				if viper.GetBool("json") {
					return printJSON(draft)
				}
				if markdown {
					fmt.Print(draft.Markdown())
					return nil
				}
				renderDraft(draft)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&markdown, "markdown", false, "print markdown instead of a tree")
	return cmd
}

func renderDraft(d report.Draft) {
	lw := list.NewWriter()
	lw.SetOutputMirror(os.Stdout)
	lw.SetStyle(list.StyleConnectedRounded)
	lw.AppendItem(fmt.Sprintf("%s %s [%s]", d.HazardID, d.Title, d.Stage.Label()))
	lw.Indent()
	for _, s := range d.Sections() {
		lw.AppendItem(s.Title)
		lw.Indent()
		if len(s.Lines) == 0 {
			lw.AppendItem("(none)")
		}
		for _, l := range s.Lines {
			lw.AppendItem(l)
		}
		lw.UnIndent()
	}
	lw.Render()
}

func progressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <hazard-id>",
		Short: "Show phase progress and who the next stage notifies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				if err := a.Engine.Auth.Require(actor, config.PermHazardRead); err != nil {
					return err
				}
				h, err := a.Engine.Get(ctx, args[0])
				if err != nil {
					return err
				}
				p := stage.ProgressOf(h.Stage)
				var next []string
				if ns, ok := stage.Next(h.Stage); ok {
					next = a.Engine.Recipients(h, ns)
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"progress": p, "next_recipients": next})
				}
				fmt.Printf("%s at %s (%d%%)\n", h.ID, p.Label, p.Percent)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Phase", "Status", "Stages"})
				for _, ph := range p.Phases {
					tw.AppendRow(table.Row{ph.Phase, ph.Status, len(ph.Stages)})
				}
				tw.Render()
				if len(next) > 0 {
					fmt.Printf("Next stage notifies: %v\n", next)
				}
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	var limit int
	var evtType, hazardID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				if err := a.Engine.Auth.Require(actor, config.PermEventsRead); err != nil {
					return err
				}
				evts, err := a.Source.LatestEvents(ctx, events.Filter{Type: evtType, EntityID: hazardID, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Hazard", "Actor"})
				for _, e := range evts {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityID, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVarP(&limit, "limit", "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "filter by event type")
	tail.Flags().StringVar(&hazardID, "hazard", "", "filter by hazard id")
	cmd.AddCommand(tail)
	return cmd
}
