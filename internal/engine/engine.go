package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"hazardline/internal/config"
	"hazardline/internal/domain"
	"hazardline/internal/engine/auth"
	"hazardline/internal/errclass"
	"hazardline/internal/events"
	"hazardline/internal/logging"
	"hazardline/internal/metrics"
	"hazardline/internal/pace"
	"hazardline/internal/risk"
	"hazardline/internal/stage"
	"hazardline/internal/store"
)

// History actions.
const (
	ActionSubmitted   = "submitted"
	ActionAdvanced    = "advanced"
	ActionNavigated   = "navigated"
	ActionApproved    = "approved"
	ActionRejected    = "rejected"
	ActionRisk        = "risk_assessed"
	ActionRootCause   = "root_cause_recorded"
	ActionNotes       = "notes_recorded"
	ActionPace        = "pace_updated"
	ActionResponse    = "response_recorded"
	ActionPlan        = "plan_synthesized"
	ActionComponents  = "components_updated"
	ActionImplement   = "implementation_recorded"
	ActionPublication = "publication_recorded"
	ActionReview      = "effectiveness_recorded"
	ActionAttachment  = "attachments_updated"
)

type Engine struct {
	Store   store.HazardStore
	Events  events.Recorder
	Config  *config.Config
	Auth    auth.Service
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func New(st store.HazardStore, rec events.Recorder, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		Store:  st,
		Events: rec,
		Config: cfg,
		Auth:   auth.Service{Config: cfg},
		Logger: slog.Default(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// change is what one operation wants written, plus how to audit it.
type change struct {
	patch   store.Patch
	action  string
	evtType string
	payload events.Payload
}

// mutate runs one unit of work: read, check, mutate a copy, write with the
// version that was read. Rejected operations never write.
func (e Engine) mutate(ctx context.Context, op, id string, actor auth.Actor, perm string, fn func(h domain.Hazard, now string) (change, error)) (updated domain.Hazard, err error) {
	ctx = logging.WithFields(ctx, logging.Fields{HazardID: id, ActorID: actor.ID})
	defer func() {
		e.Metrics.Operation(op, err)
		if err != nil {
			e.logger().DebugContext(ctx, "operation rejected", "operation", op, "error", err)
		}
	}()
	if err := e.Auth.Require(actor, perm); err != nil {
		return domain.Hazard{}, err
	}
	h, err := e.Store.Get(ctx, id)
	if err != nil {
		return domain.Hazard{}, err
	}
	now := e.stamp()
	c, err := fn(store.Clone(h), now)
	if err != nil {
		return domain.Hazard{}, err
	}
	resulting := h.Stage
	if c.patch.Stage != nil {
		resulting = *c.patch.Stage
	}
	history := append(append([]domain.HistoryEntry{}, h.History...), domain.HistoryEntry{
		Stage:     resulting,
		Timestamp: now,
		Actor:     actor.ID,
		Action:    c.action,
	})
	c.patch.History = &history
	c.patch.ExpectedVersion = h.Version
	c.patch.UpdatedAt = now

	updated, err = e.Store.Update(ctx, id, c.patch)
	if err != nil {
		return domain.Hazard{}, err
	}
	if resulting != h.Stage {
		e.logger().InfoContext(ctx, "stage changed", "from", h.Stage, "to", resulting, "action", c.action)
	}
	e.record(ctx, c.evtType, id, actor.ID, c.payload)
	return updated, nil
}

// record appends a workflow event. The hazard write already happened, so a
// failure here is logged rather than returned.
func (e Engine) record(ctx context.Context, evtType, hazardID, actorID string, payload events.Payload) {
	if e.Events == nil || evtType == "" {
		return
	}
	evt, err := events.New(evtType, hazardID, actorID, payload)
	if err == nil {
		_, err = e.Events.Record(ctx, evt)
	}
	e.Metrics.Event(evtType, err)
	if err != nil {
		e.logger().WarnContext(ctx, "record event failed", "event_type", evtType, "error", err)
	}
}

func ensureStage(h domain.Hazard, op string, allowed ...stage.Stage) error {
	for _, s := range allowed {
		if h.Stage == s {
			return nil
		}
	}
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return errclass.ErrInvalidState.WithMessagef("%s not allowed in stage %s (allowed: %s)", op, h.Stage, strings.Join(names, ", "))
}

func ensureInvestigation(h domain.Hazard, op string) error {
	if stage.PhaseOf(h.Stage) != stage.Investigation {
		return errclass.ErrInvalidState.WithMessagef("%s only allowed during the %s phase, hazard is in %s", op, stage.Investigation, h.Stage)
	}
	return nil
}

func ensureOpen(h domain.Hazard, op string) error {
	if !stage.Before(h.Stage, stage.Closed) {
		return errclass.ErrInvalidState.WithMessagef("%s not allowed on a closed hazard", op)
	}
	return nil
}

// Get returns the current hazard.
func (e Engine) Get(ctx context.Context, id string) (domain.Hazard, error) {
	return e.Store.Get(ctx, id)
}

// Advance moves the hazard to target, which must be the next stage.
func (e Engine) Advance(ctx context.Context, id string, target stage.Stage, actor auth.Actor) (domain.Hazard, error) {
	var from stage.Stage
	h, err := e.mutate(ctx, "advance", id, actor, config.PermHazardAdvance, func(h domain.Hazard, now string) (change, error) {
		if !target.Valid() {
			return change{}, errclass.ErrValidation.WithMessagef("unknown stage %q", target)
		}
		next, ok := stage.Next(h.Stage)
		if !ok || next != target {
			return change{}, errclass.ErrInvalidTransition.WithMessagef("cannot advance from %s to %s", h.Stage, target)
		}
		from = h.Stage
		c := change{action: ActionAdvanced, evtType: events.TypeHazardAdvanced}
		e.enter(&c.patch, h, target, actor.ID, now)
		c.payload = events.Payload{"from": string(h.Stage), "to": string(target), "recipients": e.Recipients(h, target)}
		return c, nil
	})
	if err == nil {
		e.Metrics.Transition(string(from), string(target), "advance")
	}
	return h, err
}

// enter sets the stage on p and applies the side effects of arriving there.
func (e Engine) enter(p *store.Patch, h domain.Hazard, target stage.Stage, actorID, now string) {
	p.Stage = &target
	switch target {
	case stage.AssignedCorrectiveAction:
		if h.Pace == nil {
			p.Pace = pace.New()
		}
	case stage.SmCaReview:
		p.Pace = pace.MarkPending(h.Pace)
	case stage.Closed:
		approvals := h.Approvals
		approvals.FinalSafetyClosure = &domain.Decision{Approved: true, By: actorID, Date: now}
		p.Approvals = &approvals
	}
}

// NavigateTo sets the stage directly, bypassing the forward map. It is a
// privileged, separately audited override.
func (e Engine) NavigateTo(ctx context.Context, id string, target stage.Stage, actor auth.Actor) (domain.Hazard, error) {
	var from stage.Stage
	h, err := e.mutate(ctx, "navigate", id, actor, config.PermHazardNavigate, func(h domain.Hazard, _ string) (change, error) {
		if !target.Valid() {
			return change{}, errclass.ErrValidation.WithMessagef("unknown stage %q", target)
		}
		from = h.Stage
		return change{
			patch:   store.Patch{Stage: &target},
			action:  ActionNavigated,
			evtType: events.TypeHazardNavigated,
			payload: events.Payload{"from": string(h.Stage), "to": string(target)},
		}, nil
	})
	if err == nil {
		e.Metrics.Transition(string(from), string(target), "navigate")
	}
	return h, err
}

// RecordRiskAssessment stores the severity/likelihood matrix position.
func (e Engine) RecordRiskAssessment(ctx context.Context, id string, severity, likelihood int, actor auth.Actor) (domain.Hazard, error) {
	return e.mutate(ctx, "risk", id, actor, config.PermHazardInvestigate, func(h domain.Hazard, _ string) (change, error) {
		ra, err := risk.Assess(severity, likelihood)
		if err != nil {
			return change{}, err
		}
		if err := ensureInvestigation(h, "risk assessment"); err != nil {
			return change{}, err
		}
		sum := risk.Summarize(ra)
		return change{
			patch:   store.Patch{RiskAnalysis: &ra},
			action:  ActionRisk,
			evtType: events.TypeHazardUpdated,
			payload: events.Payload{"field": "risk_analysis", "score": sum.Score, "band": string(sum.Band)},
		}, nil
	})
}

// RecordRootCause stores up to five whys; blanks are unanswered.
func (e Engine) RecordRootCause(ctx context.Context, id string, whys []string, actor auth.Actor) (domain.Hazard, error) {
	return e.mutate(ctx, "root_cause", id, actor, config.PermHazardInvestigate, func(h domain.Hazard, _ string) (change, error) {
		w, err := risk.WhysFrom(whys)
		if err != nil {
			return change{}, err
		}
		if err := ensureInvestigation(h, "root cause analysis"); err != nil {
			return change{}, err
		}
		return change{
			patch:   store.Patch{WhyAnalysis: &w},
			action:  ActionRootCause,
			evtType: events.TypeHazardUpdated,
			payload: events.Payload{"field": "why_analysis", "answered": len(risk.Answered(w))},
		}, nil
	})
}

// RecordInvestigationNotes replaces the free-text investigation notes.
func (e Engine) RecordInvestigationNotes(ctx context.Context, id, notes string, actor auth.Actor) (domain.Hazard, error) {
	return e.mutate(ctx, "investigation_notes", id, actor, config.PermHazardInvestigate, func(h domain.Hazard, _ string) (change, error) {
		if err := ensureInvestigation(h, "investigation notes"); err != nil {
			return change{}, err
		}
		notes = strings.TrimSpace(notes)
		return change{
			patch:   store.Patch{InvestigationNotes: &notes},
			action:  ActionNotes,
			evtType: events.TypeHazardUpdated,
			payload: events.Payload{"field": "investigation_notes"},
		}, nil
	})
}

// PACE editing windows.
var (
	paceStages     = []stage.Stage{stage.AssignedCorrectiveAction, stage.SmCaReview}
	executerStages = []stage.Stage{stage.AssignedCorrectiveAction, stage.SmCaReview, stage.ImplementationAssignment}
)


func paceChange(a *domain.Assignments, ref pace.Ref, op string) change {
	return change{
		patch:   store.Patch{Pace: a},
		action:  ActionPace,
		evtType: events.TypePaceUpdated,
		payload: events.Payload{"op": op, "slot": ref.String()},
	}
}

// UpsertPaceSlot sets the Process Owner or Approver.
func (e Engine) UpsertPaceSlot(ctx context.Context, id string, role pace.Role, f pace.Fields, actor auth.Actor) (domain.Hazard, error) {
	return e.mutate(ctx, "pace_upsert", id, actor, config.PermPaceManage, func(h domain.Hazard, _ string) (change, error) {
		if err := ensureStage(h, "PACE assignment", paceStages...); err != nil {
			return change{}, err
		}
		a, err := pace.UpsertSlot(h.Pace, role, f)
		if err != nil {
			return change{}, err
		}
		return paceChange(a, pace.Ref{Role: role}, "upsert"), nil
	})
}

// AddContributor appends a contributor and returns its new slot id.
func (e Engine) AddContributor(ctx context.Context, id string, f pace.Fields, actor auth.Actor) (domain.Hazard, string, error) {
	return e.addMember(ctx, id, pace.Contributor, f, actor)
}

// AddExecuter appends an executer and returns its new slot id.
func (e Engine) AddExecuter(ctx context.Context, id string, f pace.Fields, actor auth.Actor) (domain.Hazard, string, error) {
	return e.addMember(ctx, id, pace.Executer, f, actor)
}

func (e Engine) addMember(ctx context.Context, id string, role pace.Role, f pace.Fields, actor auth.Actor) (domain.Hazard, string, error) {
	var slotID string
	h, err := e.mutate(ctx, "pace_add", id, actor, config.PermPaceManage, func(h domain.Hazard, _ string) (change, error) {
		if err := ensureStage(h, "PACE assignment", windowFor(role)...); err != nil {
			return change{}, err
		}
		add := pace.AddContributor
		if role == pace.Executer {
			add = pace.AddExecuter
		}
		a, sid, err := add(h.Pace, f)
		if err != nil {
			return change{}, err
		}
		slotID = sid
		return paceChange(a, pace.Ref{Role: role, ID: sid}, "add"), nil
	})
	if err != nil {
		return domain.Hazard{}, "", err
	}
	return h, slotID, nil
}

// UpdatePaceMember edits a contributor or executer by id.
func (e Engine) UpdatePaceMember(ctx context.Context, id string, ref pace.Ref, f pace.Fields, actor auth.Actor) (domain.Hazard, error) {
	return e.mutate(ctx, "pace_update", id, actor, config.PermPaceManage, func(h domain.Hazard, _ string) (change, error) {
		if err := ensureStage(h, "PACE assignment", windowFor(ref.Role)...); err != nil {
			return change{}, err
		}
		a, err := pace.UpdateMember(h.Pace, ref, f)
		if err != nil {
			return change{}, err
		}
		return paceChange(a, ref, "update"), nil
	})
}

// RemoveContributor drops the contributor with slotID.
func (e Engine) RemoveContributor(ctx context.Context, id, slotID string, actor auth.Actor) (domain.Hazard, error) {
	return e.removeMember(ctx, id, pace.Ref{Role: pace.Contributor, ID: slotID}, actor)
}

// RemoveExecuter drops the executer with slotID.
func (e Engine) RemoveExecuter(ctx context.Context, id, slotID string, actor auth.Actor) (domain.Hazard, error) {
	return e.removeMember(ctx, id, pace.Ref{Role: pace.Executer, ID: slotID}, actor)
}

func (e Engine) removeMember(ctx context.Context, id string, ref pace.Ref, actor auth.Actor) (domain.Hazard, error) {
	return e.mutate(ctx, "pace_remove", id, actor, config.PermPaceManage, func(h domain.Hazard, _ string) (change, error) {
		if err := ensureStage(h, "PACE assignment", windowFor(ref.Role)...); err != nil {
			return change{}, err
		}
		remove := pace.RemoveContributor
		if ref.Role == pace.Executer {
			remove = pace.RemoveExecuter
		}
		a, err := remove(h.Pace, ref.ID)
		if err != nil {
			return change{}, err
		}
		return paceChange(a, ref, "remove"), nil
	})
}

func windowFor(role pace.Role) []stage.Stage {
	if role == pace.Executer {
		return executerStages
	}
	return paceStages
}

// RecordAssigneeResponse stores an assignee's answer on the addressed slot.
func (e Engine) RecordAssigneeResponse(ctx context.Context, id string, ref pace.Ref, text string, actor auth.Actor) (domain.Hazard, error) {
	return e.mutate(ctx, "respond", id, actor, config.PermPaceRespond, func(h domain.Hazard, now string) (change, error) {
		// Plan inputs freeze once the plan leaves review; executers report
		// completion through implementation.
		if ref.Role == pace.Executer {
			if !stage.Between(h.Stage, stage.SmCaReview, stage.ImplementationInProgress) {
				return change{}, errclass.ErrInvalidState.WithMessagef("executer responses are not accepted in stage %s", h.Stage)
			}
		} else if err := ensureStage(h, string(ref.Role)+" response", stage.SmCaReview); err != nil {
			return change{}, err
		}
		a, err := pace.RecordResponse(h.Pace, ref, text, now)
		if err != nil {
			return change{}, err
		}
		return change{
			patch:   store.Patch{Pace: a},
			action:  ActionResponse,
			evtType: events.TypeResponseRecorded,
			payload: events.Payload{"slot": ref.String()},
		}, nil
	})
}

// ApproverDecision approves (advance) or rejects (back to rework) the plan.
// comments are kept on the decision record.
func (e Engine) ApproverDecision(ctx context.Context, id string, approved bool, comments string, actor auth.Actor) (domain.Hazard, error) {
	var from, to stage.Stage
	h, err := e.mutate(ctx, "decision", id, actor, config.PermHazardApprove, func(h domain.Hazard, now string) (change, error) {
		if err := ensureStage(h, "approver decision", stage.LineManagerApproval, stage.ExecApproval); err != nil {
			return change{}, err
		}
		from = h.Stage
		decision := &domain.Decision{Approved: approved, By: actor.ID, Date: now, Comments: strings.TrimSpace(comments)}
		approvals := h.Approvals
		if h.Stage == stage.LineManagerApproval {
			approvals.LineManager = decision
		} else {
			approvals.Executive = decision
		}
		c := change{action: ActionApproved, evtType: events.TypeDecisionRecorded}
		status := domain.SlotApproved
		if approved {
			to, _ = stage.Next(h.Stage)
			e.enter(&c.patch, h, to, actor.ID, now)
		} else {
			to = stage.AssignedCorrectiveAction
			c.patch.Stage = &to
			c.action = ActionRejected
			status = domain.SlotRejected
		}
		c.patch.Approvals = &approvals
		c.patch.Pace = pace.SetApproverStatus(h.Pace, status)
		c.payload = events.Payload{
			"decision":   c.action,
			"from":       string(from),
			"to":         string(to),
			"comments":   decision.Comments,
			"recipients": e.Recipients(h, to),
		}
		return c, nil
	})
	if err == nil {
		kind := "approve"
		if !approved {
			kind = "reject"
		}
		e.Metrics.Transition(string(from), string(to), kind)
	}
	return h, err
}

// SynthesizePlan stores the consolidated corrective-action narrative.
func (e Engine) SynthesizePlan(ctx context.Context, id, text string, actor auth.Actor) (domain.Hazard, error) {
	return e.mutate(ctx, "synthesize", id, actor, config.PermHazardPlan, func(h domain.Hazard, _ string) (change, error) {
		if err := ensureStage(h, "plan synthesis", stage.SmCaReview); err != nil {
			return change{}, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return change{}, errclass.ErrValidation.WithMessage("plan text is required")
		}
		return change{
			patch:   store.Patch{FinalCorrectiveAction: &text},
			action:  ActionPlan,
			evtType: events.TypeHazardUpdated,
			payload: events.Payload{"field": "final_corrective_action"},
		}, nil
	})
}

// SetCorrectiveActionComponents records which kinds of action the plan covers.
func (e Engine) SetCorrectiveActionComponents(ctx context.Context, id string, c domain.CorrectiveActionComponents, actor auth.Actor) (domain.Hazard, error) {
	return e.mutate(ctx, "components", id, actor, config.PermHazardPlan, func(h domain.Hazard, _ string) (change, error) {
		if err := ensureStage(h, "corrective action components", paceStages...); err != nil {
			return change{}, err
		}
		return change{
			patch:   store.Patch{CorrectiveActionComponents: &c},
			action:  ActionComponents,
			evtType: events.TypeHazardUpdated,
			payload: events.Payload{"field": "corrective_action_components"},
		}, nil
	})
}

// RecordImplementationNotes replaces the implementation notes.
func (e Engine) RecordImplementationNotes(ctx context.Context, id, notes string, actor auth.Actor) (domain.Hazard, error) {
	return e.mutate(ctx, "implementation", id, actor, config.PermHazardImplement, func(h domain.Hazard, _ string) (change, error) {
		if err := ensureStage(h, "implementation notes", stage.ImplementationAssignment, stage.ImplementationInProgress); err != nil {
			return change{}, err
		}
		notes = strings.TrimSpace(notes)
		return change{
			patch:   store.Patch{ImplementationNotes: &notes},
			action:  ActionImplement,
			evtType: events.TypeHazardUpdated,
			payload: events.Payload{"field": "implementation_notes"},
		}, nil
	})
}

// RecordPublication stores the lessons-learned text shared with staff.
func (e Engine) RecordPublication(ctx context.Context, id, content string, actor auth.Actor) (domain.Hazard, error) {
	return e.mutate(ctx, "publication", id, actor, config.PermHazardPublish, func(h domain.Hazard, _ string) (change, error) {
		if err := ensureOpen(h, "publication"); err != nil {
			return change{}, err
		}
		content = strings.TrimSpace(content)
		return change{
			patch:   store.Patch{PublicationContent: &content},
			action:  ActionPublication,
			evtType: events.TypeHazardUpdated,
			payload: events.Payload{"field": "publication_content"},
		}, nil
	})
}

// RecordEffectivenessReview stores the post-implementation review.
func (e Engine) RecordEffectivenessReview(ctx context.Context, id, notes string, actor auth.Actor) (domain.Hazard, error) {
	return e.mutate(ctx, "effectiveness", id, actor, config.PermHazardPublish, func(h domain.Hazard, _ string) (change, error) {
		if err := ensureStage(h, "effectiveness review", stage.EffectivenessReview); err != nil {
			return change{}, err
		}
		notes = strings.TrimSpace(notes)
		return change{
			patch:   store.Patch{EffectivenessReviewNotes: &notes},
			action:  ActionReview,
			evtType: events.TypeHazardUpdated,
			payload: events.Payload{"field": "effectiveness_review_notes"},
		}, nil
	})
}

var newAttachmentID = uuid.NewString

// AddAttachment registers an evidence reference. Content lives elsewhere.
func (e Engine) AddAttachment(ctx context.Context, id string, att domain.Attachment, actor auth.Actor) (domain.Hazard, string, error) {
	var attID string
	h, err := e.mutate(ctx, "attach", id, actor, config.PermAttachmentManage, func(h domain.Hazard, now string) (change, error) {
		if err := ensureOpen(h, "attachment"); err != nil {
			return change{}, err
		}
		att.Name = strings.TrimSpace(att.Name)
		if att.Name == "" {
			return change{}, errclass.ErrValidation.WithMessage("attachment name is required")
		}
		if att.Size < 0 {
			return change{}, errclass.ErrValidation.WithMessage("attachment size must be >= 0")
		}
		att.ID = newAttachmentID()
		att.UploadedBy = actor.ID
		att.UploadedDate = now
		list := append(append([]domain.Attachment{}, h.Attachments...), att)
		attID = att.ID
		return change{
			patch:   store.Patch{Attachments: &list},
			action:  ActionAttachment,
			evtType: events.TypeHazardUpdated,
			payload: events.Payload{"field": "attachments", "added": att.ID, "name": att.Name},
		}, nil
	})
	if err != nil {
		return domain.Hazard{}, "", err
	}
	return h, attID, nil
}

// RemoveAttachment drops the attachment reference with attachmentID.
func (e Engine) RemoveAttachment(ctx context.Context, id, attachmentID string, actor auth.Actor) (domain.Hazard, error) {
	return e.mutate(ctx, "detach", id, actor, config.PermAttachmentManage, func(h domain.Hazard, _ string) (change, error) {
		if err := ensureOpen(h, "attachment"); err != nil {
			return change{}, err
		}
		list := make([]domain.Attachment, 0, len(h.Attachments))
		found := false
		for _, a := range h.Attachments {
			if a.ID == attachmentID {
				found = true
				continue
			}
			list = append(list, a)
		}
		if !found {
			return change{}, errclass.ErrNotFound.WithMessagef("attachment %s not found", attachmentID)
		}
		return change{
			patch:   store.Patch{Attachments: &list},
			action:  ActionAttachment,
			evtType: events.TypeHazardUpdated,
			payload: events.Payload{"field": "attachments", "removed": attachmentID},
		}, nil
	})
}

// Recipients lists who should hear about h arriving at target.
func (e Engine) Recipients(h domain.Hazard, target stage.Stage) []string {
	mb := e.Config.Notifications.Mailboxes
	var out []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		for _, have := range out {
			if have == v {
				return
			}
		}
		out = append(out, v)
	}
	switch target {
	case stage.AssignedCorrectiveAction:
		if h.Pace != nil && h.Pace.ProcessOwner.Assigned() {
			add(contact(h.Pace.ProcessOwner))
		}
	case stage.LineManagerApproval:
		add(h.SubmitterLineManager)
		add(mb.LineManager)
	case stage.ExecApproval:
		add(mb.Executive)
	case stage.ImplementationAssignment:
		if h.Pace != nil {
			for _, s := range h.Pace.Executers {
				add(contact(s))
			}
		}
	}
	if len(out) == 0 {
		add(mb.SafetyTeam)
	}
	return out
}

func contact(s domain.RoleSlot) string {
	if s.CustomEmail != "" {
		return s.CustomEmail
	}
	return s.AssigneeRef
}

// IsRejection reports whether err is a typed refusal the caller can fix,
// as opposed to a storage failure.
func IsRejection(err error) bool {
	switch {
	case errors.Is(err, errclass.ErrNotFound),
		errors.Is(err, errclass.ErrValidation),
		errors.Is(err, errclass.ErrInvalidTransition),
		errors.Is(err, errclass.ErrInvalidState),
		errors.Is(err, errclass.ErrForbidden),
		errors.Is(err, errclass.ErrConflict):
		return true
	}
	return false
}
