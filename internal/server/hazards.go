package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"hazardline/internal/catalog"
	"hazardline/internal/config"
	"hazardline/internal/domain"
	"hazardline/internal/engine/auth"
	"hazardline/internal/logging"
	"hazardline/internal/pace"
	"hazardline/internal/report"
	"hazardline/internal/risk"
	"hazardline/internal/stage"
	"hazardline/internal/store"
)

type hazardPath struct {
	HazardID string `path:"hazard_id"`
}

type hazardOutput struct {
	Body domain.Hazard `json:"body"`
}

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusPreconditionFailed,
}

// mutation is the shape shared by engine operations that return the updated
// hazard.
type mutation func(ctx context.Context, id string, actor auth.Actor) (domain.Hazard, error)

func (h handlers) run(ctx context.Context, id string, op mutation) (*hazardOutput, error) {
	actor, err := h.actor(ctx)
	if err != nil {
		return nil, h.handleError(ctx, err)
	}
	ctx = logging.WithFields(ctx, logging.Fields{HazardID: id, ActorID: actor.ID})
	hz, err := op(ctx, id, actor)
	if err != nil {
		return nil, h.handleError(ctx, err)
	}
	return &hazardOutput{Body: hz}, nil
}

func registerHazards(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-hazard",
		Method:        http.MethodPost,
		Path:          "/hazards",
		Summary:       "Submit a hazard report",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusPreconditionFailed},
	}, func(ctx context.Context, input *struct {
		Body catalog.Input `json:"body"`
	}) (*hazardOutput, error) {
		actor, err := h.require(ctx, config.PermHazardSubmit)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		hz, err := h.catalog.Submit(ctx, input.Body, actor.ID)
		h.metrics.Operation("submit", err)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &hazardOutput{Body: hz}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-hazards",
		Method:      http.MethodGet,
		Path:        "/hazards",
		Summary:     "List hazards",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Stage    string `query:"stage"`
		Severity string `query:"severity"`
		Limit    int    `query:"limit" default:"50"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body paginatedHazards `json:"body"`
	}, error) {
		if _, err := h.require(ctx, config.PermHazardRead); err != nil {
			return nil, h.handleError(ctx, err)
		}
		f := store.Filter{Severity: strings.TrimSpace(input.Severity), Cursor: input.Cursor}
		if input.Stage != "" {
			s, err := stage.Parse(input.Stage)
			if err != nil {
				return nil, h.handleError(ctx, err)
			}
			f.Stage = s
		}
		limit := normalizeLimit(input.Limit)
		f.Limit = limit + 1
		items, err := h.catalog.List(ctx, f)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		resp := paginatedHazards{Items: nonNilSlice(items)}
		if len(items) > limit {
			resp.Items = items[:limit]
			resp.NextCursor = store.ComposeCursor(items[limit-1])
		}
		return &struct {
			Body paginatedHazards `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-hazard",
		Method:      http.MethodGet,
		Path:        "/hazards/{hazard_id}",
		Summary:     "Get hazard",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *hazardPath) (*hazardOutput, error) {
		hz, err := h.read(ctx, input.HazardID)
		if err != nil {
			return nil, err
		}
		return &hazardOutput{Body: hz}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-hazard",
		Method:        http.MethodDelete,
		Path:          "/hazards/{hazard_id}",
		Summary:       "Delete hazard",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *hazardPath) (*struct{}, error) {
		actor, err := h.require(ctx, config.PermHazardDelete)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		err = h.catalog.Delete(ctx, input.HazardID, actor.ID)
		h.metrics.Operation("delete", err)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func (h handlers) read(ctx context.Context, id string) (domain.Hazard, error) {
	if _, err := h.require(ctx, config.PermHazardRead); err != nil {
		return domain.Hazard{}, h.handleError(ctx, err)
	}
	hz, err := h.engine.Get(ctx, id)
	if err != nil {
		return domain.Hazard{}, h.handleError(ctx, err)
	}
	return hz, nil
}

func registerWorkflow(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "advance-hazard",
		Method:      http.MethodPost,
		Path:        "/hazards/{hazard_id}/advance",
		Summary:     "Advance to the next stage",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		HazardID string       `path:"hazard_id"`
		Body     StageRequest `json:"body"`
	}) (*hazardOutput, error) {
		target, err := stage.Parse(input.Body.Stage)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return h.run(ctx, input.HazardID, func(ctx context.Context, id string, actor auth.Actor) (domain.Hazard, error) {
			return h.engine.Advance(ctx, id, target, actor)
		})
	})

	huma.Register(api, huma.Operation{
		OperationID: "navigate-hazard",
		Method:      http.MethodPost,
		Path:        "/hazards/{hazard_id}/navigate",
		Summary:     "Move to any stage (privileged, no side effects)",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		HazardID string       `path:"hazard_id"`
		Body     StageRequest `json:"body"`
	}) (*hazardOutput, error) {
		target, err := stage.Parse(input.Body.Stage)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return h.run(ctx, input.HazardID, func(ctx context.Context, id string, actor auth.Actor) (domain.Hazard, error) {
			return h.engine.NavigateTo(ctx, id, target, actor)
		})
	})

	for _, d := range []struct {
		op       string
		approved bool
		summary  string
	}{
		{op: "approve", approved: true, summary: "Approve the plan at the current approval stage"},
		{op: "reject", approved: false, summary: "Reject the plan back to rework"},
	} {
		huma.Register(api, huma.Operation{
			OperationID: d.op + "-hazard",
			Method:      http.MethodPost,
			Path:        "/hazards/{hazard_id}/" + d.op,
			Summary:     d.summary,
			Errors:      mutationErrors,
		}, func(ctx context.Context, input *struct {
			HazardID string          `path:"hazard_id"`
			Body     DecisionRequest `json:"body" required:"false"`
		}) (*hazardOutput, error) {
			return h.run(ctx, input.HazardID, func(ctx context.Context, id string, actor auth.Actor) (domain.Hazard, error) {
				return h.engine.ApproverDecision(ctx, id, d.approved, input.Body.Comments, actor)
			})
		})
	}
}

func registerInvestigation(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "record-risk",
		Method:      http.MethodPut,
		Path:        "/hazards/{hazard_id}/risk",
		Summary:     "Record the risk assessment",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		HazardID string      `path:"hazard_id"`
		Body     RiskRequest `json:"body"`
	}) (*hazardOutput, error) {
		return h.run(ctx, input.HazardID, func(ctx context.Context, id string, actor auth.Actor) (domain.Hazard, error) {
			return h.engine.RecordRiskAssessment(ctx, id, input.Body.Severity, input.Body.Likelihood, actor)
		})
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-root-cause",
		Method:      http.MethodPut,
		Path:        "/hazards/{hazard_id}/root-cause",
		Summary:     "Record the five-whys analysis",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		HazardID string      `path:"hazard_id"`
		Body     WhysRequest `json:"body"`
	}) (*hazardOutput, error) {
		return h.run(ctx, input.HazardID, func(ctx context.Context, id string, actor auth.Actor) (domain.Hazard, error) {
			return h.engine.RecordRootCause(ctx, id, input.Body.Whys, actor)
		})
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-investigation-notes",
		Method:      http.MethodPut,
		Path:        "/hazards/{hazard_id}/investigation-notes",
		Summary:     "Record investigation notes",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		HazardID string      `path:"hazard_id"`
		Body     TextRequest `json:"body"`
	}) (*hazardOutput, error) {
		return h.run(ctx, input.HazardID, func(ctx context.Context, id string, actor auth.Actor) (domain.Hazard, error) {
			return h.engine.RecordInvestigationNotes(ctx, id, input.Body.Text, actor)
		})
	})
}

func registerCorrectiveAction(api huma.API, h handlers) {
	texts := []struct {
		id, path, summary string
		apply             func(ctx context.Context, id, text string, actor auth.Actor) (domain.Hazard, error)
	}{
		{"synthesize-plan", "plan", "Store the consolidated corrective-action plan", h.engine.SynthesizePlan},
		{"record-implementation-notes", "implementation-notes", "Record implementation notes", h.engine.RecordImplementationNotes},
		{"record-publication", "publication", "Record the lessons-learned publication", h.engine.RecordPublication},
		{"record-effectiveness-review", "effectiveness-review", "Record the effectiveness review", h.engine.RecordEffectivenessReview},
	}
	for _, t := range texts {
		huma.Register(api, huma.Operation{
			OperationID: t.id,
			Method:      http.MethodPut,
			Path:        "/hazards/{hazard_id}/" + t.path,
			Summary:     t.summary,
			Errors:      mutationErrors,
		}, func(ctx context.Context, input *struct {
			HazardID string      `path:"hazard_id"`
			Body     TextRequest `json:"body"`
		}) (*hazardOutput, error) {
			return h.run(ctx, input.HazardID, func(ctx context.Context, id string, actor auth.Actor) (domain.Hazard, error) {
				return t.apply(ctx, id, input.Body.Text, actor)
			})
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "set-components",
		Method:      http.MethodPut,
		Path:        "/hazards/{hazard_id}/components",
		Summary:     "Set corrective-action component flags",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		HazardID string            `path:"hazard_id"`
		Body     ComponentsRequest `json:"body"`
	}) (*hazardOutput, error) {
		c := domain.CorrectiveActionComponents(input.Body)
		return h.run(ctx, input.HazardID, func(ctx context.Context, id string, actor auth.Actor) (domain.Hazard, error) {
			return h.engine.SetCorrectiveActionComponents(ctx, id, c, actor)
		})
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-attachment",
		Method:        http.MethodPost,
		Path:          "/hazards/{hazard_id}/attachments",
		Summary:       "Attach evidence metadata",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		HazardID string            `path:"hazard_id"`
		Body     AttachmentRequest `json:"body"`
	}) (*struct {
		Body AttachmentResponse `json:"body"`
	}, error) {
		actor, err := h.actor(ctx)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		att := domain.Attachment{Name: input.Body.Name, Type: input.Body.Type, Size: input.Body.Size, URL: input.Body.URL}
		hz, attID, err := h.engine.AddAttachment(ctx, input.HazardID, att, actor)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body AttachmentResponse `json:"body"`
		}{Body: AttachmentResponse{Hazard: hz, AttachmentID: attID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-attachment",
		Method:      http.MethodDelete,
		Path:        "/hazards/{hazard_id}/attachments/{attachment_id}",
		Summary:     "Remove an attachment",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		HazardID     string `path:"hazard_id"`
		AttachmentID string `path:"attachment_id"`
	}) (*hazardOutput, error) {
		return h.run(ctx, input.HazardID, func(ctx context.Context, id string, actor auth.Actor) (domain.Hazard, error) {
			return h.engine.RemoveAttachment(ctx, id, input.AttachmentID, actor)
		})
	})
}

// registerViews exposes the read-only projections of a hazard.
func registerViews(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "hazard-report",
		Method:      http.MethodGet,
		Path:        "/hazards/{hazard_id}/report",
		Summary:     "Corrective-action report preview",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *hazardPath) (*struct {
		Body report.Draft `json:"body"`
	}, error) {
		hz, err := h.read(ctx, input.HazardID)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body report.Draft `json:"body"`
		}{Body: report.BuildPreview(hz, h.report)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hazard-report-markdown",
		Method:      http.MethodGet,
		Path:        "/hazards/{hazard_id}/report/markdown",
		Summary:     "Report preview rendered as Markdown",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *hazardPath) (*struct {
		Body ReportMarkdownResponse `json:"body"`
	}, error) {
		hz, err := h.read(ctx, input.HazardID)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body ReportMarkdownResponse `json:"body"`
		}{Body: ReportMarkdownResponse{HazardID: hz.ID, Markdown: report.BuildPreview(hz, h.report).Markdown()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hazard-progress",
		Method:      http.MethodGet,
		Path:        "/hazards/{hazard_id}/progress",
		Summary:     "Phase progress",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *hazardPath) (*struct {
		Body stage.Progress `json:"body"`
	}, error) {
		hz, err := h.read(ctx, input.HazardID)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body stage.Progress `json:"body"`
		}{Body: stage.ProgressOf(hz.Stage)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hazard-history",
		Method:      http.MethodGet,
		Path:        "/hazards/{hazard_id}/history",
		Summary:     "Workflow history, oldest first",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *hazardPath) (*struct {
		Body []domain.HistoryEntry `json:"body"`
	}, error) {
		hz, err := h.read(ctx, input.HazardID)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body []domain.HistoryEntry `json:"body"`
		}{Body: nonNilSlice(hz.History)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hazard-risk",
		Method:      http.MethodGet,
		Path:        "/hazards/{hazard_id}/risk",
		Summary:     "Risk score and band",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *hazardPath) (*struct {
		Body RiskResponse `json:"body"`
	}, error) {
		hz, err := h.read(ctx, input.HazardID)
		if err != nil {
			return nil, err
		}
		resp := RiskResponse{HazardID: hz.ID}
		if hz.RiskAnalysis != nil {
			s := risk.Summarize(*hz.RiskAnalysis)
			resp.Summary = &s
		}
		return &struct {
			Body RiskResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hazard-root-causes",
		Method:      http.MethodGet,
		Path:        "/hazards/{hazard_id}/root-causes",
		Summary:     "Answered whys with their original numbering",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *hazardPath) (*struct {
		Body RootCausesResponse `json:"body"`
	}, error) {
		hz, err := h.read(ctx, input.HazardID)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body RootCausesResponse `json:"body"`
		}{Body: RootCausesResponse{HazardID: hz.ID, Whys: hz.WhyAnalysis, RootCauses: nonNilSlice(risk.Answered(hz.WhyAnalysis))}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hazard-recipients",
		Method:      http.MethodGet,
		Path:        "/hazards/{hazard_id}/recipients",
		Summary:     "Who is notified when the hazard enters a stage",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		HazardID string `path:"hazard_id"`
		Stage    string `query:"stage"`
	}) (*struct {
		Body RecipientsResponse `json:"body"`
	}, error) {
		hz, err := h.read(ctx, input.HazardID)
		if err != nil {
			return nil, err
		}
		target := hz.Stage
		if input.Stage != "" {
			if target, err = stage.Parse(input.Stage); err != nil {
				return nil, h.handleError(ctx, err)
			}
		}
		return &struct {
			Body RecipientsResponse `json:"body"`
		}{Body: RecipientsResponse{HazardID: hz.ID, Stage: target, Recipients: nonNilSlice(h.engine.Recipients(hz, target))}}, nil
	})
}

func registerPace(api huma.API, h handlers) {
	for _, s := range []struct {
		segment string
		role    pace.Role
	}{
		{"process-owner", pace.ProcessOwner},
		{"approver", pace.Approver},
	} {
		huma.Register(api, huma.Operation{
			OperationID: "set-" + s.segment,
			Method:      http.MethodPut,
			Path:        "/hazards/{hazard_id}/pace/" + s.segment,
			Summary:     "Assign the " + strings.ReplaceAll(s.segment, "-", " "),
			Errors:      mutationErrors,
		}, func(ctx context.Context, input *struct {
			HazardID string      `path:"hazard_id"`
			Body     SlotRequest `json:"body"`
		}) (*hazardOutput, error) {
			return h.run(ctx, input.HazardID, func(ctx context.Context, id string, actor auth.Actor) (domain.Hazard, error) {
				return h.engine.UpsertPaceSlot(ctx, id, s.role, input.Body.fields(), actor)
			})
		})
	}

	for _, l := range []struct {
		segment string
		role    pace.Role
		add     func(ctx context.Context, id string, f pace.Fields, actor auth.Actor) (domain.Hazard, string, error)
		remove  func(ctx context.Context, id, slotID string, actor auth.Actor) (domain.Hazard, error)
	}{
		{"contributors", pace.Contributor, h.engine.AddContributor, h.engine.RemoveContributor},
		{"executers", pace.Executer, h.engine.AddExecuter, h.engine.RemoveExecuter},
	} {
		huma.Register(api, huma.Operation{
			OperationID:   "add-" + string(l.role),
			Method:        http.MethodPost,
			Path:          "/hazards/{hazard_id}/pace/" + l.segment,
			Summary:       "Add a " + string(l.role),
			DefaultStatus: http.StatusCreated,
			Errors:        mutationErrors,
		}, func(ctx context.Context, input *struct {
			HazardID string      `path:"hazard_id"`
			Body     SlotRequest `json:"body"`
		}) (*struct {
			Body MemberResponse `json:"body"`
		}, error) {
			actor, err := h.actor(ctx)
			if err != nil {
				return nil, h.handleError(ctx, err)
			}
			hz, slotID, err := l.add(ctx, input.HazardID, input.Body.fields(), actor)
			if err != nil {
				return nil, h.handleError(ctx, err)
			}
			return &struct {
				Body MemberResponse `json:"body"`
			}{Body: MemberResponse{Hazard: hz, SlotID: slotID}}, nil
		})

		huma.Register(api, huma.Operation{
			OperationID: "update-" + string(l.role),
			Method:      http.MethodPatch,
			Path:        "/hazards/{hazard_id}/pace/" + l.segment + "/{slot_id}",
			Summary:     "Update a " + string(l.role),
			Errors:      mutationErrors,
		}, func(ctx context.Context, input *struct {
			HazardID string      `path:"hazard_id"`
			SlotID   string      `path:"slot_id"`
			Body     SlotRequest `json:"body"`
		}) (*hazardOutput, error) {
			ref := pace.Ref{Role: l.role, ID: input.SlotID}
			return h.run(ctx, input.HazardID, func(ctx context.Context, id string, actor auth.Actor) (domain.Hazard, error) {
				return h.engine.UpdatePaceMember(ctx, id, ref, input.Body.fields(), actor)
			})
		})

		huma.Register(api, huma.Operation{
			OperationID: "remove-" + string(l.role),
			Method:      http.MethodDelete,
			Path:        "/hazards/{hazard_id}/pace/" + l.segment + "/{slot_id}",
			Summary:     "Remove a " + string(l.role),
			Errors:      mutationErrors,
		}, func(ctx context.Context, input *struct {
			HazardID string `path:"hazard_id"`
			SlotID   string `path:"slot_id"`
		}) (*hazardOutput, error) {
			return h.run(ctx, input.HazardID, func(ctx context.Context, id string, actor auth.Actor) (domain.Hazard, error) {
				return l.remove(ctx, id, input.SlotID, actor)
			})
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "record-response",
		Method:      http.MethodPost,
		Path:        "/hazards/{hazard_id}/responses",
		Summary:     "Record an assignee response",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		HazardID string `path:"hazard_id"`
		Body     struct {
			Slot string `json:"slot" doc:"processOwner, approver, contributor:<id> or executer:<id>"`
			Text string `json:"text"`
		} `json:"body"`
	}) (*hazardOutput, error) {
		ref, err := pace.ParseRef(input.Body.Slot)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return h.run(ctx, input.HazardID, func(ctx context.Context, id string, actor auth.Actor) (domain.Hazard, error) {
			return h.engine.RecordAssigneeResponse(ctx, id, ref, input.Body.Text, actor)
		})
	})
}
