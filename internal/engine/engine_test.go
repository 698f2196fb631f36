package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"hazardline/internal/catalog"
	"hazardline/internal/config"
	"hazardline/internal/db"
	"hazardline/internal/domain"
	"hazardline/internal/engine"
	"hazardline/internal/engine/auth"
	"hazardline/internal/errclass"
	"hazardline/internal/events"
	"hazardline/internal/logging"
	"hazardline/internal/migrate"
	"hazardline/internal/pace"
	"hazardline/internal/report"
	"hazardline/internal/repo"
	"hazardline/internal/stage"
	"hazardline/internal/store"
)

type testEnv struct {
	Engine  engine.Engine
	Catalog catalog.Service
	Repo    repo.Repo
	Ctx     context.Context
}

var owner = auth.Actor{ID: "sam", Roles: []string{"owner"}, Permissions: []string{config.PermAll}}

func fixedNow() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	rec := events.Writer{Log: r, Now: fixedNow}
	cfg := config.Default()
	cfg.RBAC.Actors["ana"] = []string{"safety_manager"}
	eng := engine.New(r, rec, cfg)
	eng.Now = fixedNow
	eng.Logger = logging.Discard()
	return testEnv{
		Engine:  eng,
		Catalog: catalog.Service{Store: r, Events: rec, Logger: eng.Logger, Now: fixedNow},
		Repo:    r,
		Ctx:     ctx,
	}
}

func (env testEnv) submit(t *testing.T, id string) domain.Hazard {
	t.Helper()
	h, err := env.Catalog.Submit(env.Ctx, catalog.Input{
		ID:          id,
		Title:       "Leaking valve",
		Description: "Hydraulic fluid under hangar 3 pump",
		Severity:    domain.SeverityHigh,
		ReportedBy:  "john",
	}, "john")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return h
}

// walk advances one stage at a time until the hazard reaches target.
func (env testEnv) walk(t *testing.T, id string, target stage.Stage) domain.Hazard {
	t.Helper()
	h, err := env.Engine.Get(env.Ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for h.Stage != target {
		next, ok := stage.Next(h.Stage)
		if !ok {
			t.Fatalf("cannot reach %s", target)
		}
		h, err = env.Engine.Advance(env.Ctx, id, next, owner)
		if err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}
	return h
}

func TestAdvanceScenarioHZ010(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, "HZ-010")

	h, err := env.Engine.Advance(env.Ctx, "HZ-010", stage.SmInitialReview, owner)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if h.Stage != stage.SmInitialReview {
		t.Fatalf("stage = %s", h.Stage)
	}
	last := h.History[len(h.History)-1]
	if last.Action != engine.ActionAdvanced || last.Actor != "sam" || last.Stage != stage.SmInitialReview {
		t.Fatalf("history entry = %+v", last)
	}

	_, err = env.Engine.Advance(env.Ctx, "HZ-010", stage.SmCaReview, owner)
	if !errors.Is(err, errclass.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	after, _ := env.Engine.Get(env.Ctx, "HZ-010")
	if after.Stage != stage.SmInitialReview || after.Version != h.Version {
		t.Fatalf("rejected advance wrote: stage=%s version=%d", after.Stage, after.Version)
	}
}

func TestAdvanceNeverSkipsOrReverses(t *testing.T) {
	env := newTestEnv(t)
	h := env.submit(t, "")
	for _, s := range stage.All()[1:] {
		for _, other := range stage.All() {
			if other == s {
				continue
			}
			if _, err := env.Engine.Advance(env.Ctx, h.ID, other, owner); !errors.Is(err, errclass.ErrInvalidTransition) {
				t.Fatalf("advance %s -> %s should fail, got %v", h.Stage, other, err)
			}
		}
		var err error
		h, err = env.Engine.Advance(env.Ctx, h.ID, s, owner)
		if err != nil {
			t.Fatalf("advance to %s: %v", s, err)
		}
	}
	if _, err := env.Engine.Advance(env.Ctx, h.ID, stage.Closed, owner); !errors.Is(err, errclass.ErrInvalidTransition) {
		t.Fatalf("closed hazard advanced: %v", err)
	}
	if _, err := env.Engine.Advance(env.Ctx, h.ID, stage.Stage("Archived"), owner); !errors.Is(err, errclass.ErrValidation) {
		t.Fatalf("unknown stage should be a validation error, got %v", err)
	}
}

func TestStageSideEffects(t *testing.T) {
	env := newTestEnv(t)
	h := env.submit(t, "")
	if h.Pace != nil {
		t.Fatalf("pace exists before action plan")
	}
	h = env.walk(t, h.ID, stage.AssignedCorrectiveAction)
	if h.Pace == nil || h.Pace.ProcessOwner.Status != domain.SlotPending || len(h.Pace.Contributors) != 0 {
		t.Fatalf("pace not initialised: %+v", h.Pace)
	}
	if _, err := env.Engine.UpsertPaceSlot(env.Ctx, h.ID, pace.ProcessOwner, pace.Fields{AssigneeType: domain.AssigneeUser, AssigneeRef: "maria"}, owner); err != nil {
		t.Fatalf("set owner: %v", err)
	}

	h = env.walk(t, h.ID, stage.SmCaReview)
	if h.Pace.ProcessOwner.Response != "" || h.Pace.ProcessOwner.Status != domain.SlotPending {
		t.Fatalf("process owner response fabricated: %+v", h.Pace.ProcessOwner)
	}

	h = env.walk(t, h.ID, stage.Closed)
	if h.Approvals.FinalSafetyClosure == nil || h.Approvals.FinalSafetyClosure.By != "sam" {
		t.Fatalf("closure not recorded: %+v", h.Approvals)
	}
}

func TestApproverDecision(t *testing.T) {
	for _, at := range []stage.Stage{stage.LineManagerApproval, stage.ExecApproval} {
		t.Run(string(at), func(t *testing.T) {
			env := newTestEnv(t)
			h := env.submit(t, "")
			env.walk(t, h.ID, at)

			h, err := env.Engine.ApproverDecision(env.Ctx, h.ID, false, "Needs cost estimate", owner)
			if err != nil {
				t.Fatalf("reject: %v", err)
			}
			if h.Stage != stage.AssignedCorrectiveAction {
				t.Fatalf("rejected hazard in %s", h.Stage)
			}
			d := h.Approvals.LineManager
			if at == stage.ExecApproval {
				d = h.Approvals.Executive
			}
			if d == nil || d.Approved || d.Comments != "Needs cost estimate" {
				t.Fatalf("decision not recorded: %+v", d)
			}
			if h.Pace.Approver.Status != domain.SlotRejected {
				t.Fatalf("approver slot = %s", h.Pace.Approver.Status)
			}
			if h.History[len(h.History)-1].Action != engine.ActionRejected {
				t.Fatalf("history = %+v", h.History[len(h.History)-1])
			}

			env.walk(t, h.ID, at)
			h, err = env.Engine.ApproverDecision(env.Ctx, h.ID, true, "", owner)
			if err != nil {
				t.Fatalf("approve: %v", err)
			}
			want, _ := stage.Next(at)
			if h.Stage != want || h.Pace.Approver.Status != domain.SlotApproved {
				t.Fatalf("approved hazard: stage=%s approver=%s", h.Stage, h.Pace.Approver.Status)
			}
		})
	}
}

func TestApproverDecisionOutsideApprovalStages(t *testing.T) {
	env := newTestEnv(t)
	h := env.submit(t, "")
	for _, approved := range []bool{true, false} {
		if _, err := env.Engine.ApproverDecision(env.Ctx, h.ID, approved, "", owner); !errors.Is(err, errclass.ErrInvalidState) {
			t.Fatalf("expected invalid state, got %v", err)
		}
	}
}

func TestRiskAssessmentBoundsAndPhase(t *testing.T) {
	env := newTestEnv(t)
	h := env.submit(t, "")
	bad := [][2]int{{0, 2}, {6, 2}, {3, -1}, {3, 5}}
	for _, in := range bad {
		if _, err := env.Engine.RecordRiskAssessment(env.Ctx, h.ID, in[0], in[1], owner); !errors.Is(err, errclass.ErrValidation) {
			t.Fatalf("severity=%d likelihood=%d accepted: %v", in[0], in[1], err)
		}
	}
	for sev := 1; sev <= 5; sev++ {
		for lik := 0; lik <= 4; lik++ {
			if _, err := env.Engine.RecordRiskAssessment(env.Ctx, h.ID, sev, lik, owner); err != nil {
				t.Fatalf("severity=%d likelihood=%d rejected: %v", sev, lik, err)
			}
		}
	}
	h, _ = env.Engine.Get(env.Ctx, h.ID)
	if h.RiskAnalysis == nil || h.RiskAnalysis.Severity != 5 || h.RiskAnalysis.Likelihood != 4 {
		t.Fatalf("risk = %+v", h.RiskAnalysis)
	}

	env.walk(t, h.ID, stage.AssignedCorrectiveAction)
	if _, err := env.Engine.RecordRiskAssessment(env.Ctx, h.ID, 2, 2, owner); !errors.Is(err, errclass.ErrInvalidState) {
		t.Fatalf("risk outside investigation: %v", err)
	}
	if _, err := env.Engine.RecordRootCause(env.Ctx, h.ID, []string{"why"}, owner); !errors.Is(err, errclass.ErrInvalidState) {
		t.Fatalf("whys outside investigation: %v", err)
	}

	if _, err := env.Engine.NavigateTo(env.Ctx, h.ID, stage.SmInitialReview, owner); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if _, err := env.Engine.RecordRootCause(env.Ctx, h.ID, []string{"Seal worn", "", "No inspection"}, owner); err != nil {
		t.Fatalf("whys after re-open: %v", err)
	}
	if _, err := env.Engine.RecordRootCause(env.Ctx, h.ID, make([]string, 6), owner); !errors.Is(err, errclass.ErrValidation) {
		t.Fatalf("six whys accepted: %v", err)
	}
}

func TestNavigateRequiresPrivilege(t *testing.T) {
	env := newTestEnv(t)
	h := env.submit(t, "")
	reporter := env.Engine.Auth.Resolve("walk-in")
	_, err := env.Engine.NavigateTo(env.Ctx, h.ID, stage.Published, reporter)
	if !errors.Is(err, errclass.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	manager := env.Engine.Auth.Resolve("ana")
	h, err = env.Engine.NavigateTo(env.Ctx, h.ID, stage.Published, manager)
	if err != nil {
		t.Fatalf("navigate: %v", err)
	}
	last := h.History[len(h.History)-1]
	if h.Stage != stage.Published || last.Action != engine.ActionNavigated || last.Actor != "ana" {
		t.Fatalf("navigate result stage=%s history=%+v", h.Stage, last)
	}
	evts, err := env.Repo.LatestEvents(env.Ctx, events.Filter{Type: events.TypeHazardNavigated})
	if err != nil || len(evts) != 1 {
		t.Fatalf("navigate event missing: %v %d", err, len(evts))
	}
}

func TestContributorRemovalKeepsOthers(t *testing.T) {
	env := newTestEnv(t)
	h := env.submit(t, "")
	env.walk(t, h.ID, stage.AssignedCorrectiveAction)

	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		_, id, err := env.Engine.AddContributor(env.Ctx, h.ID, pace.Fields{AssigneeType: domain.AssigneeUser, AssigneeRef: name}, owner)
		if err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
		ids = append(ids, id)
	}
	h, err := env.Engine.RemoveContributor(env.Ctx, h.ID, ids[1], owner)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	got := h.Pace.Contributors
	if len(got) != 2 || got[0].ID != ids[0] || got[1].ID != ids[2] || got[1].AssigneeRef != "c" {
		t.Fatalf("contributors after removal: %+v", got)
	}
	if _, err := env.Engine.RemoveContributor(env.Ctx, h.ID, ids[1], owner); !errors.Is(err, errclass.ErrNotFound) {
		t.Fatalf("removing twice: %v", err)
	}
	if _, _, err := env.Engine.AddContributor(env.Ctx, h.ID, pace.Fields{AssigneeType: domain.AssigneeCustom, CustomName: "X", CustomEmail: "not-an-email"}, owner); !errors.Is(err, errclass.ErrValidation) {
		t.Fatalf("bad email accepted: %v", err)
	}
}

func TestPaceEditingWindows(t *testing.T) {
	env := newTestEnv(t)
	h := env.submit(t, "")
	fields := pace.Fields{AssigneeType: domain.AssigneeUser, AssigneeRef: "maria"}
	if _, err := env.Engine.UpsertPaceSlot(env.Ctx, h.ID, pace.Approver, fields, owner); !errors.Is(err, errclass.ErrInvalidState) {
		t.Fatalf("pace edit before action plan: %v", err)
	}
	env.walk(t, h.ID, stage.ImplementationAssignment)
	if _, _, err := env.Engine.AddContributor(env.Ctx, h.ID, fields, owner); !errors.Is(err, errclass.ErrInvalidState) {
		t.Fatalf("contributor edit after approval: %v", err)
	}
	h, id, err := env.Engine.AddExecuter(env.Ctx, h.ID, fields, owner)
	if err != nil {
		t.Fatalf("executer during implementation assignment: %v", err)
	}
	h, err = env.Engine.UpdatePaceMember(env.Ctx, h.ID, pace.Ref{Role: pace.Executer, ID: id}, pace.Fields{AssigneeType: domain.AssigneeUser, AssigneeRef: "luis"}, owner)
	if err != nil || h.Pace.Executers[0].AssigneeRef != "luis" || h.Pace.Executers[0].ID != id {
		t.Fatalf("update executer: %v %+v", err, h.Pace)
	}
	if _, err := env.Engine.RemoveExecuter(env.Ctx, h.ID, id, owner); err != nil {
		t.Fatalf("remove executer: %v", err)
	}
}

func TestResponseShowsInReport(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, "HZ-010")
	h := env.walk(t, "HZ-010", stage.SmCaReview)
	if h.Pace.ProcessOwner.Status != domain.SlotPending || h.Pace.ProcessOwner.Response != "" {
		t.Fatalf("entering review fabricated a response: %+v", h.Pace.ProcessOwner)
	}

	if _, err := env.Engine.RecordAssigneeResponse(env.Ctx, "HZ-010", pace.Ref{Role: pace.Contributor, ID: "nope"}, "hi", owner); !errors.Is(err, errclass.ErrNotFound) {
		t.Fatalf("unknown slot: %v", err)
	}
	h, err := env.Engine.RecordAssigneeResponse(env.Ctx, "HZ-010", pace.Ref{Role: pace.ProcessOwner}, "Fixed the valve", owner)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if h.Pace.ProcessOwner.Status != domain.SlotSubmitted || h.Pace.ProcessOwner.ResponseDate != "2024-01-01T00:00:00Z" {
		t.Fatalf("slot = %+v", h.Pace.ProcessOwner)
	}
	d := report.BuildPreview(h, report.Options{})
	if d.Feedback[0].Response != "Fixed the valve" || d.Feedback[0].Pending {
		t.Fatalf("report feedback = %+v", d.Feedback[0])
	}

	if _, err := env.Engine.SynthesizePlan(env.Ctx, "HZ-010", "  ", owner); !errors.Is(err, errclass.ErrValidation) {
		t.Fatalf("empty plan accepted: %v", err)
	}
	h, err = env.Engine.SynthesizePlan(env.Ctx, "HZ-010", "Replace seal and add inspection", owner)
	if err != nil || h.FinalCorrectiveAction != "Replace seal and add inspection" {
		t.Fatalf("synthesize: %v", err)
	}
	env.walk(t, "HZ-010", stage.LineManagerApproval)
	if _, err := env.Engine.SynthesizePlan(env.Ctx, "HZ-010", "late edit", owner); !errors.Is(err, errclass.ErrInvalidState) {
		t.Fatalf("plan edit outside review: %v", err)
	}
}

func TestResponsesRejectedOutsideWindow(t *testing.T) {
	env := newTestEnv(t)
	h := env.submit(t, "")
	if _, err := env.Engine.RecordAssigneeResponse(env.Ctx, h.ID, pace.Ref{Role: pace.ProcessOwner}, "early", owner); !errors.Is(err, errclass.ErrInvalidState) {
		t.Fatalf("response before action plan: %v", err)
	}
	env.walk(t, h.ID, stage.AssignedCorrectiveAction)
	if _, err := env.Engine.RecordAssigneeResponse(env.Ctx, h.ID, pace.Ref{Role: pace.ProcessOwner}, "before review", owner); !errors.Is(err, errclass.ErrInvalidState) {
		t.Fatalf("response before collection: %v", err)
	}
}

func TestPlanInputsFrozenAfterApproval(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, "HZ-010")
	env.walk(t, "HZ-010", stage.AssignedCorrectiveAction)
	_, execID, err := env.Engine.AddExecuter(env.Ctx, "HZ-010", pace.Fields{AssigneeType: domain.AssigneeUser, AssigneeRef: "tech-1"}, owner)
	if err != nil {
		t.Fatalf("add executer: %v", err)
	}
	env.walk(t, "HZ-010", stage.SmCaReview)
	if _, err := env.Engine.RecordAssigneeResponse(env.Ctx, "HZ-010", pace.Ref{Role: pace.ProcessOwner}, "Fixed the valve", owner); err != nil {
		t.Fatalf("respond in review: %v", err)
	}
	env.walk(t, "HZ-010", stage.LineManagerApproval)
	for _, want := range []stage.Stage{stage.ExecApproval, stage.ImplementationAssignment} {
		h, err := env.Engine.ApproverDecision(env.Ctx, "HZ-010", true, "", owner)
		if err != nil || h.Stage != want {
			t.Fatalf("approve: stage=%s err=%v", h.Stage, err)
		}
	}

	for _, ref := range []pace.Ref{{Role: pace.ProcessOwner}, {Role: pace.Approver}} {
		if _, err := env.Engine.RecordAssigneeResponse(env.Ctx, "HZ-010", ref, "Actually, a different fix", owner); !errors.Is(err, errclass.ErrInvalidState) {
			t.Fatalf("%s response after approval: %v", ref, err)
		}
	}
	h, err := env.Engine.Get(env.Ctx, "HZ-010")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if h.Pace.ProcessOwner.Response != "Fixed the valve" {
		t.Fatalf("approved response rewritten: %+v", h.Pace.ProcessOwner)
	}

	h = env.walk(t, "HZ-010", stage.ImplementationInProgress)
	h, err = env.Engine.RecordAssigneeResponse(env.Ctx, "HZ-010", pace.Ref{Role: pace.Executer, ID: execID}, "Seal replaced", owner)
	if err != nil {
		t.Fatalf("executer response during implementation: %v", err)
	}
	if h.Pace.Executers[0].Status != domain.SlotCompleted || h.Pace.Executers[0].Response != "Seal replaced" {
		t.Fatalf("executer slot = %+v", h.Pace.Executers[0])
	}
	env.walk(t, "HZ-010", stage.Published)
	if _, err := env.Engine.RecordAssigneeResponse(env.Ctx, "HZ-010", pace.Ref{Role: pace.Executer, ID: execID}, "late", owner); !errors.Is(err, errclass.ErrInvalidState) {
		t.Fatalf("executer response after implementation: %v", err)
	}
}

func TestSupplementaryRecords(t *testing.T) {
	env := newTestEnv(t)
	h := env.submit(t, "")
	if _, err := env.Engine.RecordInvestigationNotes(env.Ctx, h.ID, "Spoke to night shift", owner); err != nil {
		t.Fatalf("notes: %v", err)
	}
	h, attID, err := env.Engine.AddAttachment(env.Ctx, h.ID, domain.Attachment{Name: "photo.jpg", Type: "image/jpeg", Size: 2048}, owner)
	if err != nil || len(h.Attachments) != 1 || h.Attachments[0].UploadedBy != "sam" {
		t.Fatalf("attach: %v %+v", err, h.Attachments)
	}
	if _, err := env.Engine.RemoveAttachment(env.Ctx, h.ID, "missing", owner); !errors.Is(err, errclass.ErrNotFound) {
		t.Fatalf("remove missing attachment: %v", err)
	}
	if h, err = env.Engine.RemoveAttachment(env.Ctx, h.ID, attID, owner); err != nil || len(h.Attachments) != 0 {
		t.Fatalf("detach: %v", err)
	}

	env.walk(t, h.ID, stage.AssignedCorrectiveAction)
	comps := domain.CorrectiveActionComponents{Training: true, Equipment: true}
	if h, err = env.Engine.SetCorrectiveActionComponents(env.Ctx, h.ID, comps, owner); err != nil || h.CorrectiveActionComponents != comps {
		t.Fatalf("components: %v", err)
	}
	if _, err := env.Engine.RecordImplementationNotes(env.Ctx, h.ID, "too early", owner); !errors.Is(err, errclass.ErrInvalidState) {
		t.Fatalf("implementation notes early: %v", err)
	}
	env.walk(t, h.ID, stage.ImplementationInProgress)
	if _, err := env.Engine.RecordImplementationNotes(env.Ctx, h.ID, "Seal ordered", owner); err != nil {
		t.Fatalf("implementation notes: %v", err)
	}
	if _, err := env.Engine.RecordPublication(env.Ctx, h.ID, "Lessons learned", owner); err != nil {
		t.Fatalf("publication: %v", err)
	}
	env.walk(t, h.ID, stage.EffectivenessReview)
	if h, err = env.Engine.RecordEffectivenessReview(env.Ctx, h.ID, "No recurrence", owner); err != nil || h.EffectivenessReviewNotes != "No recurrence" {
		t.Fatalf("effectiveness: %v", err)
	}
	env.walk(t, h.ID, stage.Closed)
	if _, err := env.Engine.RecordPublication(env.Ctx, h.ID, "after close", owner); !errors.Is(err, errclass.ErrInvalidState) {
		t.Fatalf("publication after close: %v", err)
	}
}

// racingStore bumps the stored version between the engine's read and write.
type racingStore struct {
	store.HazardStore
}

func (s racingStore) Update(ctx context.Context, id string, p store.Patch) (domain.Hazard, error) {
	if _, err := s.HazardStore.Update(ctx, id, store.Patch{}); err != nil {
		return domain.Hazard{}, err
	}
	return s.HazardStore.Update(ctx, id, p)
}

func TestLostUpdateSurfacesConflict(t *testing.T) {
	env := newTestEnv(t)
	h := env.submit(t, "")
	racing := env.Engine
	racing.Store = racingStore{HazardStore: env.Repo}
	if _, err := racing.Advance(env.Ctx, h.ID, stage.SmInitialReview, owner); !errors.Is(err, errclass.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	after, _ := env.Engine.Get(env.Ctx, h.ID)
	if after.Stage != stage.Submitted {
		t.Fatalf("conflicting write landed: %s", after.Stage)
	}
}

func TestRecipients(t *testing.T) {
	eng := engine.New(nil, nil, config.Default())
	h := domain.Hazard{
		SubmitterLineManager: "boss@example.com",
		Pace: &domain.Assignments{
			ProcessOwner: domain.RoleSlot{AssigneeType: domain.AssigneeCustom, CustomName: "Maria", CustomEmail: "maria@example.com"},
			Executers:    []domain.RoleSlot{{ID: "e1", AssigneeType: domain.AssigneeUser, AssigneeRef: "luis"}},
		},
	}
	cases := map[stage.Stage][]string{
		stage.AssignedCorrectiveAction: {"maria@example.com"},
		stage.LineManagerApproval:      {"boss@example.com", "line-manager@example.com"},
		stage.ExecApproval:             {"executive@example.com"},
		stage.ImplementationAssignment: {"luis"},
		stage.Published:                {"safety@example.com"},
	}
	for s, want := range cases {
		got := eng.Recipients(h, s)
		if len(got) != len(want) {
			t.Fatalf("%s: recipients %v, want %v", s, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s: recipients %v, want %v", s, got, want)
			}
		}
	}
}

func TestEventsRecordedPerOperation(t *testing.T) {
	env := newTestEnv(t)
	h := env.submit(t, "")
	env.walk(t, h.ID, stage.AssignedCorrectiveAction)
	evts, err := env.Repo.EventsAfter(env.Ctx, 100, 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	want := []string{events.TypeHazardSubmitted, events.TypeHazardAdvanced, events.TypeHazardAdvanced}
	if len(evts) != len(want) {
		t.Fatalf("events = %d, want %d", len(evts), len(want))
	}
	for i, w := range want {
		if evts[i].Type != w || evts[i].EntityID != h.ID {
			t.Fatalf("event %d = %+v", i, evts[i])
		}
	}
}
