// Package pace manipulates PACE role assignments (Process Owner, Approver,
// Contributors, Executers). Every operation works on a copy and returns it;
// the input is never modified.
package pace

import (
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"hazardline/internal/domain"
	"hazardline/internal/errclass"
)

type Role string

const (
	ProcessOwner Role = "processOwner"
	Approver     Role = "approver"
	Contributor  Role = "contributor"
	Executer     Role = "executer"
)

// Ref addresses one slot. ID is set only for list roles.
type Ref struct {
	Role Role
	ID   string
}

func (r Ref) String() string {
	if r.ID == "" {
		return string(r.Role)
	}
	return string(r.Role) + ":" + r.ID
}

// ParseRef accepts "processOwner", "approver", "contributor:<id>" or
// "executer:<id>".
func ParseRef(in string) (Ref, error) {
	in = strings.TrimSpace(in)
	role, id, _ := strings.Cut(in, ":")
	switch Role(role) {
	case ProcessOwner, Approver:
		if id != "" {
			return Ref{}, errclass.ErrValidation.WithMessagef("role %s takes no id", role)
		}
		return Ref{Role: Role(role)}, nil
	case Contributor, Executer:
		if strings.TrimSpace(id) == "" {
			return Ref{}, errclass.ErrValidation.WithMessagef("role %s requires an id", role)
		}
		return Ref{Role: Role(role), ID: strings.TrimSpace(id)}, nil
	}
	return Ref{}, errclass.ErrValidation.WithMessagef("unknown role reference %q", in)
}

// Fields are the assignee attributes a caller may set on a slot.
type Fields struct {
	AssigneeType       domain.AssigneeType `json:"assignee_type" enum:"user,custom"`
	AssigneeRef        string              `json:"assignee_ref,omitempty"`
	CustomName         string              `json:"custom_name,omitempty"`
	CustomEmail        string              `json:"custom_email,omitempty"`
	CustomInstructions string              `json:"custom_instructions,omitempty"`
}

var newID = uuid.NewString

// New returns the empty structure created on entering the action-plan stage.
func New() *domain.Assignments {
	return &domain.Assignments{
		ProcessOwner: domain.RoleSlot{Status: domain.SlotPending},
		Approver:     domain.RoleSlot{Status: domain.SlotPending},
		Contributors: []domain.RoleSlot{},
		Executers:    []domain.RoleSlot{},
	}
}

func Clone(a *domain.Assignments) *domain.Assignments {
	if a == nil {
		return nil
	}
	out := *a
	out.Contributors = append([]domain.RoleSlot{}, a.Contributors...)
	out.Executers = append([]domain.RoleSlot{}, a.Executers...)
	return &out
}

// Validate checks the required fields for the assignee type.
func (f Fields) Validate() error {
	switch f.AssigneeType {
	case domain.AssigneeUser:
		if strings.TrimSpace(f.AssigneeRef) == "" {
			return errclass.ErrValidation.WithMessage("assignee_ref is required for user assignees")
		}
	case domain.AssigneeCustom:
		if strings.TrimSpace(f.CustomName) == "" {
			return errclass.ErrValidation.WithMessage("custom_name is required for custom assignees")
		}
		if strings.TrimSpace(f.CustomEmail) == "" {
			return errclass.ErrValidation.WithMessage("custom_email is required for custom assignees")
		}
		if _, err := mail.ParseAddress(f.CustomEmail); err != nil {
			return errclass.ErrValidation.WithMessagef("custom_email %q is not a valid address", f.CustomEmail)
		}
	default:
		return errclass.ErrValidation.WithMessagef("assignee_type must be user or custom, got %q", f.AssigneeType)
	}
	return nil
}

func apply(slot domain.RoleSlot, f Fields) domain.RoleSlot {
	prev := slot
	slot.AssigneeType = f.AssigneeType
	slot.CustomInstructions = strings.TrimSpace(f.CustomInstructions)
	if f.AssigneeType == domain.AssigneeUser {
		slot.AssigneeRef = strings.TrimSpace(f.AssigneeRef)
		slot.CustomName = ""
		slot.CustomEmail = ""
	} else {
		slot.AssigneeRef = ""
		slot.CustomName = strings.TrimSpace(f.CustomName)
		slot.CustomEmail = strings.TrimSpace(f.CustomEmail)
	}
	// A response belongs to the person who gave it.
	if prev.AssigneeType != slot.AssigneeType || prev.AssigneeRef != slot.AssigneeRef || prev.CustomEmail != slot.CustomEmail {
		slot.Response = ""
		slot.ResponseDate = ""
		slot.Status = domain.SlotPending
	}
	if slot.Status == "" {
		slot.Status = domain.SlotPending
	}
	return slot
}

// UpsertSlot sets the Process Owner or Approver.
func UpsertSlot(a *domain.Assignments, role Role, f Fields) (*domain.Assignments, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	out := Clone(orNew(a))
	switch role {
	case ProcessOwner:
		out.ProcessOwner = apply(out.ProcessOwner, f)
	case Approver:
		out.Approver = apply(out.Approver, f)
	default:
		return nil, errclass.ErrValidation.WithMessagef("role %s is not a single slot", role)
	}
	return out, nil
}

func AddContributor(a *domain.Assignments, f Fields) (*domain.Assignments, string, error) {
	return addMember(a, Contributor, f)
}

func AddExecuter(a *domain.Assignments, f Fields) (*domain.Assignments, string, error) {
	return addMember(a, Executer, f)
}

func addMember(a *domain.Assignments, role Role, f Fields) (*domain.Assignments, string, error) {
	if err := f.Validate(); err != nil {
		return nil, "", err
	}
	out := Clone(orNew(a))
	slot := apply(domain.RoleSlot{ID: newID()}, f)
	if role == Contributor {
		out.Contributors = append(out.Contributors, slot)
	} else {
		out.Executers = append(out.Executers, slot)
	}
	return out, slot.ID, nil
}

// UpdateMember edits a contributor or executer in place, keeping its id
// and list position.
func UpdateMember(a *domain.Assignments, ref Ref, f Fields) (*domain.Assignments, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	out := Clone(orNew(a))
	list := listFor(out, ref.Role)
	if list == nil {
		return nil, errclass.ErrValidation.WithMessagef("role %s is not a list role", ref.Role)
	}
	i := indexOf(*list, ref.ID)
	if i < 0 {
		return nil, errclass.ErrNotFound.WithMessagef("%s %s not found", ref.Role, ref.ID)
	}
	(*list)[i] = apply((*list)[i], f)
	return out, nil
}

func RemoveContributor(a *domain.Assignments, id string) (*domain.Assignments, error) {
	return removeMember(a, Ref{Role: Contributor, ID: id})
}

func RemoveExecuter(a *domain.Assignments, id string) (*domain.Assignments, error) {
	return removeMember(a, Ref{Role: Executer, ID: id})
}

func removeMember(a *domain.Assignments, ref Ref) (*domain.Assignments, error) {
	out := Clone(orNew(a))
	list := listFor(out, ref.Role)
	if list == nil {
		return nil, errclass.ErrValidation.WithMessagef("role %s is not a list role", ref.Role)
	}
	i := indexOf(*list, ref.ID)
	if i < 0 {
		return nil, errclass.ErrNotFound.WithMessagef("%s %s not found", ref.Role, ref.ID)
	}
	kept := make([]domain.RoleSlot, 0, len(*list)-1)
	kept = append(kept, (*list)[:i]...)
	kept = append(kept, (*list)[i+1:]...)
	*list = kept
	return out, nil
}

// Resolve returns the slot addressed by ref.
func Resolve(a *domain.Assignments, ref Ref) (domain.RoleSlot, error) {
	if a == nil {
		return domain.RoleSlot{}, errclass.ErrNotFound.WithMessage("no PACE assignments on this hazard")
	}
	switch ref.Role {
	case ProcessOwner:
		return a.ProcessOwner, nil
	case Approver:
		return a.Approver, nil
	case Contributor:
		if i := indexOf(a.Contributors, ref.ID); i >= 0 {
			return a.Contributors[i], nil
		}
	case Executer:
		if i := indexOf(a.Executers, ref.ID); i >= 0 {
			return a.Executers[i], nil
		}
	}
	return domain.RoleSlot{}, errclass.ErrNotFound.WithMessagef("role %s not found", ref)
}

// RecordResponse stores an assignee's free-text response. Executers complete
// their slot; everyone else submits.
func RecordResponse(a *domain.Assignments, ref Ref, text, at string) (*domain.Assignments, error) {
	if _, err := Resolve(a, ref); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errclass.ErrValidation.WithMessage("response text is required")
	}
	out := Clone(a)
	status := domain.SlotSubmitted
	if ref.Role == Executer {
		status = domain.SlotCompleted
	}
	set := func(s *domain.RoleSlot) {
		s.Response = text
		s.ResponseDate = at
		s.Status = status
	}
	switch ref.Role {
	case ProcessOwner:
		set(&out.ProcessOwner)
	case Approver:
		set(&out.Approver)
	case Contributor:
		set(&out.Contributors[indexOf(out.Contributors, ref.ID)])
	case Executer:
		set(&out.Executers[indexOf(out.Executers, ref.ID)])
	}
	return out, nil
}

// MarkPending sets every slot without a response to pending. No response is
// ever fabricated.
func MarkPending(a *domain.Assignments) *domain.Assignments {
	out := Clone(orNew(a))
	mark := func(s *domain.RoleSlot) {
		if s.Response == "" {
			s.Status = domain.SlotPending
		}
	}
	mark(&out.ProcessOwner)
	mark(&out.Approver)
	for i := range out.Contributors {
		mark(&out.Contributors[i])
	}
	for i := range out.Executers {
		mark(&out.Executers[i])
	}
	return out
}

// SetApproverStatus records the approver's decision on the approver slot.
func SetApproverStatus(a *domain.Assignments, status domain.SlotStatus) *domain.Assignments {
	out := Clone(orNew(a))
	out.Approver.Status = status
	return out
}

func orNew(a *domain.Assignments) *domain.Assignments {
	if a == nil {
		return New()
	}
	return a
}

func indexOf(list []domain.RoleSlot, id string) int {
	for i, s := range list {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func listFor(a *domain.Assignments, role Role) *[]domain.RoleSlot {
	switch role {
	case Contributor:
		return &a.Contributors
	case Executer:
		return &a.Executers
	}
	return nil
}
