package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hazardline/internal/app"
	"hazardline/internal/domain"
	"hazardline/internal/engine"
	"hazardline/internal/engine/auth"
	"hazardline/internal/stage"
)

type hazardOp func(ctx context.Context, a *app.App, actor auth.Actor, args []string) (domain.Hazard, error)

// hazardCommand wraps an engine mutation whose first argument is the hazard id.
func hazardCommand(use, short string, args cobra.PositionalArgs, op hazardOp) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				h, err := op(ctx, a, actor, argv)
				if err != nil {
					return err
				}
				return printHazard(h)
			})
		},
	}
}

func advanceCmd() *cobra.Command {
	return hazardCommand("advance <hazard-id> [stage]", "Move a hazard to its next stage",
		cobra.RangeArgs(1, 2),
		func(ctx context.Context, a *app.App, actor auth.Actor, args []string) (domain.Hazard, error) {
			var target stage.Stage
			if len(args) == 2 {
				st, err := stage.Parse(args[1])
				if err != nil {
					return domain.Hazard{}, err
				}
				target = st
			} else {
				h, err := a.Engine.Get(ctx, args[0])
				if err != nil {
					return domain.Hazard{}, err
				}
				next, ok := stage.Next(h.Stage)
				if !ok {
					return domain.Hazard{}, fmt.Errorf("%s is already %s", h.ID, h.Stage)
				}
				target = next
			}
			return a.Engine.Advance(ctx, args[0], target, actor)
		})
}

func navigateCmd() *cobra.Command {
	return hazardCommand("navigate <hazard-id> <stage>", "Jump a hazard to any stage (administrative)",
		cobra.ExactArgs(2),
		func(ctx context.Context, a *app.App, actor auth.Actor, args []string) (domain.Hazard, error) {
			st, err := stage.Parse(args[1])
			if err != nil {
				return domain.Hazard{}, err
			}
			return a.Engine.NavigateTo(ctx, args[0], st, actor)
		})
}

func riskCmd() *cobra.Command {
	var severity, likelihood int
	cmd := hazardCommand("risk <hazard-id>", "Record the risk matrix assessment",
		cobra.ExactArgs(1),
		func(ctx context.Context, a *app.App, actor auth.Actor, args []string) (domain.Hazard, error) {
			return a.Engine.RecordRiskAssessment(ctx, args[0], severity, likelihood, actor)
		})
	cmd.Flags().IntVar(&severity, "severity", 0, "severity 1-5")
	cmd.Flags().IntVar(&likelihood, "likelihood", 0, "likelihood 0-4")
	_ = cmd.MarkFlagRequired("severity")
	_ = cmd.MarkFlagRequired("likelihood")
	return cmd
}

func whysCmd() *cobra.Command {
	return hazardCommand("whys <hazard-id> [why...]", "Record up to five whys; empty strings leave a why unanswered",
		cobra.RangeArgs(1, 6),
		func(ctx context.Context, a *app.App, actor auth.Actor, args []string) (domain.Hazard, error) {
			return a.Engine.RecordRootCause(ctx, args[0], args[1:], actor)
		})
}

type textOp func(e engine.Engine, ctx context.Context, id, text string, actor auth.Actor) (domain.Hazard, error)

func textCmds() []*cobra.Command {
	mk := func(use, short string, op textOp) *cobra.Command {
		return hazardCommand(use+" <hazard-id> <text>", short, cobra.ExactArgs(2),
			func(ctx context.Context, a *app.App, actor auth.Actor, args []string) (domain.Hazard, error) {
				return op(a.Engine, ctx, args[0], args[1], actor)
			})
	}
	return []*cobra.Command{
		mk("notes", "Record investigation notes", engine.Engine.RecordInvestigationNotes),
		mk("synthesize", "Write the final corrective action plan", engine.Engine.SynthesizePlan),
		mk("implementation", "Record implementation notes", engine.Engine.RecordImplementationNotes),
		mk("publish", "Record the publication content", engine.Engine.RecordPublication),
		mk("effectiveness", "Record the effectiveness review", engine.Engine.RecordEffectivenessReview),
	}
}

func decisionCmds() []*cobra.Command {
	var approveComments, rejectComments string
	approve := hazardCommand("approve <hazard-id>", "Approve the plan at the current approval stage",
		cobra.ExactArgs(1),
		func(ctx context.Context, a *app.App, actor auth.Actor, args []string) (domain.Hazard, error) {
			return a.Engine.ApproverDecision(ctx, args[0], true, approveComments, actor)
		})
	approve.Flags().StringVar(&approveComments, "comments", "", "decision comments")
	reject := hazardCommand("reject <hazard-id>", "Reject the plan and return it for rework",
		cobra.ExactArgs(1),
		func(ctx context.Context, a *app.App, actor auth.Actor, args []string) (domain.Hazard, error) {
			return a.Engine.ApproverDecision(ctx, args[0], false, rejectComments, actor)
		})
	reject.Flags().StringVar(&rejectComments, "comments", "", "reason for rejection")
	return []*cobra.Command{approve, reject}
}

func componentsCmd() *cobra.Command {
	var c domain.CorrectiveActionComponents
	cmd := hazardCommand("components <hazard-id>", "Set which corrective action components apply",
		cobra.ExactArgs(1),
		func(ctx context.Context, a *app.App, actor auth.Actor, args []string) (domain.Hazard, error) {
			return a.Engine.SetCorrectiveActionComponents(ctx, args[0], c, actor)
		})
	cmd.Flags().BoolVar(&c.Communications, "communications", false, "communications component")
	cmd.Flags().BoolVar(&c.Training, "training", false, "training component")
	cmd.Flags().BoolVar(&c.Policy, "policy", false, "policy component")
	cmd.Flags().BoolVar(&c.Equipment, "equipment", false, "equipment component")
	return cmd
}

func attachCmd() *cobra.Command {
	var att domain.Attachment
	cmd := &cobra.Command{
		Use:   "attach <hazard-id>",
		Short: "Add attachment metadata to a hazard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, actor auth.Actor) error {
				h, id, err := a.Engine.AddAttachment(ctx, args[0], att, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"attachment_id": id, "hazard": h})
				}
				fmt.Printf("Attached %s to %s as %s\n", att.Name, h.ID, id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&att.Name, "name", "", "file name")
	cmd.Flags().StringVar(&att.URL, "url", "", "where the file lives")
	cmd.Flags().StringVar(&att.Type, "type", "", "media type")
	cmd.Flags().Int64Var(&att.Size, "size", 0, "size in bytes")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func detachCmd() *cobra.Command {
	return hazardCommand("detach <hazard-id> <attachment-id>", "Remove an attachment",
		cobra.ExactArgs(2),
		func(ctx context.Context, a *app.App, actor auth.Actor, args []string) (domain.Hazard, error) {
			return a.Engine.RemoveAttachment(ctx, args[0], args[1], actor)
		})
}
