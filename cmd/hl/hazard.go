package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hazardline/internal/app"
	"hazardline/internal/catalog"
	"hazardline/internal/config"
	"hazardline/internal/domain"
	"hazardline/internal/engine/auth"
	"hazardline/internal/stage"
	"hazardline/internal/store"
)

func hazardCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "hazard", Short: "File, list, show and delete hazard reports"}
	cmd.AddCommand(hazardSubmitCmd(), hazardListCmd(), hazardShowCmd(), hazardDeleteCmd(), hazardStatsCmd())
	return cmd
}

func hazardSubmitCmd() *cobra.Command {
	var in catalog.Input
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "File a new hazard report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				if err := a.Engine.Auth.Require(actor, config.PermHazardSubmit); err != nil {
					return err
				}
				h, err := a.Catalog.Submit(ctx, in, actor.ID)
				if err != nil {
					return err
				}
				return printHazard(h)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.ID, "id", "", "explicit hazard id (default: next HZ-NNN)")
	f.StringVar(&in.Title, "title", "", "short title")
	f.StringVar(&in.Description, "description", "", "what was observed")
	f.StringVar(&in.Severity, "severity", "", "Critical, High, Medium or Low")
	f.StringVar(&in.ReportedBy, "reported-by", "", "reporter name (default: actor id)")
	f.StringVar(&in.ReportedDate, "date", "", "report date YYYY-MM-DD (default: today)")
	f.StringVar(&in.Location, "location", "", "where the hazard was seen")
	f.StringVar(&in.Category, "category", "", "hazard category")
	f.StringVar(&in.ImmediateActions, "immediate-actions", "", "actions already taken")
	f.StringVar(&in.PotentialConsequences, "consequences", "", "potential consequences")
	f.StringVar(&in.SubmitterLineManager, "line-manager", "", "submitter's line manager")
	f.BoolVar(&in.IsAnonymous, "anonymous", false, "hide the reporter")
	f.StringSliceVar(&in.RiskFactors, "risk-factor", nil, "risk factor (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("severity")
	return cmd
}

func hazardListCmd() *cobra.Command {
	var stageName, severity, cursor string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List hazards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				if err := a.Engine.Auth.Require(actor, config.PermHazardRead); err != nil {
					return err
				}
				f := store.Filter{Severity: severity, Limit: limit, Cursor: cursor}
				if stageName != "" {
					st, err := stage.Parse(stageName)
					if err != nil {
						return err
					}
					f.Stage = st
				}
				items, err := a.Catalog.List(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Severity", "Stage", "Phase", "Updated"})
				for _, h := range items {
					tw.AppendRow(table.Row{h.ID, h.Title, h.Severity, h.Stage.Label(), stage.PhaseOf(h.Stage), h.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stageName, "stage", "", "filter by stage")
	cmd.Flags().StringVar(&severity, "severity", "", "filter by severity")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	cmd.Flags().StringVar(&cursor, "cursor", "", "resume after this cursor")
	return cmd
}

func hazardShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <hazard-id>",
		Short: "Show one hazard",
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
				return printHazard(h)
			})
		},
	}
}

func hazardDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <hazard-id>",
		Short: "Delete a hazard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				if err := a.Engine.Auth.Require(actor, config.PermHazardDelete); err != nil {
					return err
				}
				if err := a.Catalog.Delete(ctx, args[0], actor.ID); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"deleted": args[0]})
				}
				fmt.Printf("Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func hazardStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count hazards per stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				if err := a.Engine.Auth.Require(actor, config.PermHazardRead); err != nil {
					return err
				}
				counts, err := countByStage(ctx, a)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Stage", "Phase", "Hazards"})
				total := 0
				for _, st := range stage.All() {
					tw.AppendRow(table.Row{st.Label(), stage.PhaseOf(st), counts[st]})
					total += counts[st]
				}
				tw.AppendFooter(table.Row{"", "Total", total})
				tw.Render()
				return nil
			})
		},
	}
}

func countByStage(ctx context.Context, a *app.App) (map[stage.Stage]int, error) {
	if a.Keys != nil {
		return a.Keys.CountByStage(ctx)
	}
	items, err := a.Catalog.List(ctx, store.Filter{})
	if err != nil {
		return nil, err
	}
	counts := make(map[stage.Stage]int)
	for _, h := range items {
		counts[h.Stage]++
	}
	return counts, nil
}

func printHazard(h domain.Hazard) error {
	if viper.GetBool("json") {
		return printJSON(h)
	}
	fmt.Printf("%s  %s\n", h.ID, h.Title)
	fmt.Printf("  severity: %s\n", h.Severity)
	fmt.Printf("  stage:    %s (%s, %d%%)\n", h.Stage.Label(), stage.PhaseOf(h.Stage), stage.PercentComplete(h.Stage))
	fmt.Printf("  reported: %s by %s\n", h.ReportedDate, h.ReportedBy)
	if h.Location != "" {
		fmt.Printf("  location: %s\n", h.Location)
	}
	if h.RiskAnalysis != nil {
		fmt.Printf("  risk:     severity %d, likelihood %d\n", h.RiskAnalysis.Severity, h.RiskAnalysis.Likelihood)
	}
	if h.FinalCorrectiveAction != "" {
		fmt.Printf("  plan:     %s\n", oneLine(h.FinalCorrectiveAction))
	}
	fmt.Printf("  version:  %d\n", h.Version)
	return nil
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 72 {
		return s[:69] + "..."
	}
	return s
}
