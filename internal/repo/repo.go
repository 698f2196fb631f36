package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"hazardline/internal/domain"
	"hazardline/internal/errclass"
	"hazardline/internal/stage"
	"hazardline/internal/store"
)

// Repo is the SQLite-backed HazardStore. Report facts live in columns;
// nested workflow structures are stored as JSON and replaced whole.
type Repo struct {
	DB *sql.DB
}

var _ store.HazardStore = Repo{}

// ErrNotFound is the class returned for missing rows.
var ErrNotFound = errclass.ErrNotFound

const hazardColumns = `id,title,description,COALESCE(immediate_actions,''),COALESCE(potential_consequences,''),
COALESCE(location,''),COALESCE(category,''),reported_by,reported_date,severity,COALESCE(submitter_line_manager,''),
is_anonymous,risk_factors_json,workflow_stage,risk_severity,risk_likelihood,why_json,COALESCE(investigation_notes,''),
pace_json,attachments_json,components_json,COALESCE(final_corrective_action,''),approvals_json,
COALESCE(implementation_notes,''),COALESCE(publication_content,''),COALESCE(effectiveness_review_notes,''),
history_json,version,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHazard(row rowScanner) (domain.Hazard, error) {
	var (
		h                                    domain.Hazard
		anon                                 int
		stageName                            string
		riskSev, riskLik                     sql.NullInt64
		factors, whys, paceJSON, attachments sql.NullString
		components, approvals, history       sql.NullString
	)
	err := row.Scan(&h.ID, &h.Title, &h.Description, &h.ImmediateActions, &h.PotentialConsequences,
		&h.Location, &h.Category, &h.ReportedBy, &h.ReportedDate, &h.Severity, &h.SubmitterLineManager,
		&anon, &factors, &stageName, &riskSev, &riskLik, &whys, &h.InvestigationNotes,
		&paceJSON, &attachments, &components, &h.FinalCorrectiveAction, &approvals,
		&h.ImplementationNotes, &h.PublicationContent, &h.EffectivenessReviewNotes,
		&history, &h.Version, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return h, err
	}
	h.IsAnonymous = anon != 0
	h.Stage = stage.Stage(stageName)
	if riskSev.Valid && riskLik.Valid {
		h.RiskAnalysis = &domain.RiskAnalysis{Severity: int(riskSev.Int64), Likelihood: int(riskLik.Int64)}
	}
	for _, f := range []struct {
		raw  sql.NullString
		dest any
		name string
	}{
		{factors, &h.RiskFactors, "risk_factors"},
		{whys, &h.WhyAnalysis, "why_analysis"},
		{paceJSON, &h.Pace, "pace"},
		{attachments, &h.Attachments, "attachments"},
		{components, &h.CorrectiveActionComponents, "components"},
		{approvals, &h.Approvals, "approvals"},
		{history, &h.History, "history"},
	} {
		if !f.raw.Valid || f.raw.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw.String), f.dest); err != nil {
			return h, fmt.Errorf("decode %s for %s: %w", f.name, h.ID, err)
		}
	}
	return h, nil
}

type hazardArgs struct {
	factors, whys, pace, attachments, components, approvals, history any
	riskSev, riskLik                                                 any
}

func encodeHazard(h domain.Hazard) (hazardArgs, error) {
	var a hazardArgs
	var err error
	if a.factors, err = jsonOrNil(h.RiskFactors, len(h.RiskFactors) == 0); err != nil {
		return a, err
	}
	if a.whys, err = jsonOrNil(h.WhyAnalysis, false); err != nil {
		return a, err
	}
	if a.pace, err = jsonOrNil(h.Pace, h.Pace == nil); err != nil {
		return a, err
	}
	if a.attachments, err = jsonOrNil(h.Attachments, len(h.Attachments) == 0); err != nil {
		return a, err
	}
	if a.components, err = jsonOrNil(h.CorrectiveActionComponents, false); err != nil {
		return a, err
	}
	if a.approvals, err = jsonOrNil(h.Approvals, false); err != nil {
		return a, err
	}
	if a.history, err = jsonOrNil(h.History, len(h.History) == 0); err != nil {
		return a, err
	}
	if h.RiskAnalysis != nil {
		a.riskSev = h.RiskAnalysis.Severity
		a.riskLik = h.RiskAnalysis.Likelihood
	}
	return a, nil
}

func jsonOrNil(v any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r Repo) Create(ctx context.Context, h domain.Hazard) (string, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", errclass.Storage(err)
	}
	defer tx.Rollback()

	if h.ID == "" {
		ids, err := hazardIDs(ctx, tx)
		if err != nil {
			return "", errclass.Storage(err)
		}
		h.ID = store.NextID(ids)
	} else {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM hazards WHERE id=?`, h.ID).Scan(&n); err != nil {
			return "", errclass.Storage(err)
		}
		if n > 0 {
			return "", errclass.ErrConflict.WithMessagef("hazard %s already exists", h.ID)
		}
	}
	a, err := encodeHazard(h)
	if err != nil {
		return "", errclass.Storage(err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO hazards(id,title,description,immediate_actions,potential_consequences,location,category,
reported_by,reported_date,severity,submitter_line_manager,is_anonymous,risk_factors_json,workflow_stage,risk_severity,risk_likelihood,
why_json,investigation_notes,pace_json,attachments_json,components_json,final_corrective_action,approvals_json,implementation_notes,
publication_content,effectiveness_review_notes,history_json,version,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,1,?,?)`,
		h.ID, h.Title, h.Description, nullable(h.ImmediateActions), nullable(h.PotentialConsequences), nullable(h.Location), nullable(h.Category),
		h.ReportedBy, h.ReportedDate, h.Severity, nullable(h.SubmitterLineManager), boolInt(h.IsAnonymous), a.factors, string(h.Stage), a.riskSev, a.riskLik,
		a.whys, nullable(h.InvestigationNotes), a.pace, a.attachments, a.components, nullable(h.FinalCorrectiveAction), a.approvals, nullable(h.ImplementationNotes),
		nullable(h.PublicationContent), nullable(h.EffectivenessReviewNotes), a.history, h.CreatedAt, h.UpdatedAt)
	if err != nil {
		return "", errclass.Storage(fmt.Errorf("insert hazard: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return "", errclass.Storage(err)
	}
	return h.ID, nil
}

func hazardIDs(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM hazards WHERE id LIKE 'HZ-%'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) Get(ctx context.Context, id string) (domain.Hazard, error) {
	h, err := scanHazard(r.DB.QueryRowContext(ctx, `SELECT `+hazardColumns+` FROM hazards WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Hazard{}, ErrNotFound.WithMessagef("hazard %s not found", id)
	}
	if err != nil {
		return domain.Hazard{}, errclass.Storage(err)
	}
	return h, nil
}

// Update reads, merges and writes inside one transaction. The write is
// conditional on the version read so a concurrent writer surfaces as a
// conflict rather than a lost update.
func (r Repo) Update(ctx context.Context, id string, p store.Patch) (domain.Hazard, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Hazard{}, errclass.Storage(err)
	}
	defer tx.Rollback()

	h, err := scanHazard(tx.QueryRowContext(ctx, `SELECT `+hazardColumns+` FROM hazards WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Hazard{}, ErrNotFound.WithMessagef("hazard %s not found", id)
	}
	if err != nil {
		return domain.Hazard{}, errclass.Storage(err)
	}
	if err := p.CheckVersion(h); err != nil {
		return domain.Hazard{}, err
	}
	read := h.Version
	p.Apply(&h)
	h.Version = read + 1
	a, err := encodeHazard(h)
	if err != nil {
		return domain.Hazard{}, errclass.Storage(err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE hazards SET workflow_stage=?,risk_severity=?,risk_likelihood=?,why_json=?,investigation_notes=?,
pace_json=?,attachments_json=?,components_json=?,final_corrective_action=?,approvals_json=?,implementation_notes=?,publication_content=?,
effectiveness_review_notes=?,history_json=?,version=?,updated_at=? WHERE id=? AND version=?`,
		string(h.Stage), a.riskSev, a.riskLik, a.whys, nullable(h.InvestigationNotes),
		a.pace, a.attachments, a.components, nullable(h.FinalCorrectiveAction), a.approvals, nullable(h.ImplementationNotes), nullable(h.PublicationContent),
		nullable(h.EffectivenessReviewNotes), a.history, h.Version, h.UpdatedAt, id, read)
	if err != nil {
		return domain.Hazard{}, errclass.Storage(fmt.Errorf("update hazard: %w", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Hazard{}, errclass.Storage(err)
	}
	if affected == 0 {
		return domain.Hazard{}, errclass.ErrConflict.WithMessagef("hazard %s changed concurrently", id)
	}
	if err := tx.Commit(); err != nil {
		return domain.Hazard{}, errclass.Storage(err)
	}
	return h, nil
}

func (r Repo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM hazards WHERE id=?`, id)
	if err != nil {
		return errclass.Storage(err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound.WithMessagef("hazard %s not found", id)
	}
	return nil
}

func (r Repo) List(ctx context.Context, f store.Filter) ([]domain.Hazard, error) {
	afterTS, afterID, err := store.ParseCursor(f.Cursor)
	if err != nil {
		return nil, err
	}
	var (
		where []string
		args  []any
	)
	if f.Stage != "" {
		where = append(where, "workflow_stage=?")
		args = append(args, string(f.Stage))
	}
	if f.Severity != "" {
		where = append(where, "severity=? COLLATE NOCASE")
		args = append(args, f.Severity)
	}
	if afterID != "" {
		where = append(where, "(created_at > ? OR (created_at = ? AND id > ?))")
		args = append(args, afterTS, afterTS, afterID)
	}
	query := `SELECT ` + hazardColumns + ` FROM hazards`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errclass.Storage(err)
	}
	defer rows.Close()
	var out []domain.Hazard
	for rows.Next() {
		h, err := scanHazard(rows)
		if err != nil {
			return nil, errclass.Storage(err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errclass.Storage(err)
	}
	return out, nil
}

// CountByStage returns the number of hazards per workflow stage.
func (r Repo) CountByStage(ctx context.Context) (map[stage.Stage]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT workflow_stage, COUNT(*) FROM hazards GROUP BY workflow_stage`)
	if err != nil {
		return nil, errclass.Storage(err)
	}
	defer rows.Close()
	out := map[stage.Stage]int{}
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, errclass.Storage(err)
		}
		out[stage.Stage(s)] = n
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
