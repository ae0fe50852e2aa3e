package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/virtlab-edu/virtlab-go/internal/domain"
	"github.com/virtlab-edu/virtlab-go/internal/repo"
)

type RunStore struct {
	db DB
}

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db}
}

func (s *RunStore) Create(ctx context.Context, run domain.Run) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	observationsJSON, resultJSON, statsJSON, err := encodeRunDocuments(run)
	if err != nil {
		return err
	}
	var completedAt sql.NullTime
	if run.CompletedAt != nil {
		completedAt = sql.NullTime{Time: run.CompletedAt.UTC(), Valid: true}
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO experiment_runs (
			run_id,
			user_id,
			experiment_id,
			experiment_title,
			kind,
			observations,
			result,
			stats,
			is_complete,
			started_at,
			completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		strings.TrimSpace(run.ID),
		strings.TrimSpace(run.UserID),
		strings.TrimSpace(run.ExperimentID),
		nullIfEmpty(run.ExperimentTitle),
		string(run.Kind),
		observationsJSON,
		resultJSON,
		statsJSON,
		run.IsComplete,
		normalizeTime(run.StartedAt),
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *RunStore) Get(ctx context.Context, id string) (domain.Run, error) {
	if s == nil || s.db == nil {
		return domain.Run{}, fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Run{}, fmt.Errorf("run id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT run_id, user_id, experiment_id, experiment_title, kind,
			observations, result, stats, is_complete, started_at, completed_at
		 FROM experiment_runs
		 WHERE run_id = $1`,
		id,
	)
	return scanRun(row.Scan)
}

// Save replaces the run's mutable document fields in one write.
func (s *RunStore) Save(ctx context.Context, run domain.Run) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	observationsJSON, resultJSON, statsJSON, err := encodeRunDocuments(run)
	if err != nil {
		return err
	}
	var completedAt sql.NullTime
	if run.CompletedAt != nil {
		completedAt = sql.NullTime{Time: run.CompletedAt.UTC(), Valid: true}
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE experiment_runs
		 SET observations = $2,
			result = $3,
			stats = $4,
			is_complete = $5,
			completed_at = $6
		 WHERE run_id = $1`,
		strings.TrimSpace(run.ID),
		observationsJSON,
		resultJSON,
		statsJSON,
		run.IsComplete,
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run rows affected: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *RunStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("run id is required")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM experiment_runs WHERE run_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run rows affected: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *RunStore) List(ctx context.Context, filter repo.RunFilter) ([]repo.RunListEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store not initialized")
	}
	query, args := buildRunListQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]repo.RunListEntry, 0)
	for rows.Next() {
		var entry repo.RunListEntry
		var experimentTitle sql.NullString
		var kind string
		var observationsJSON, resultJSON, statsJSON []byte
		var completedAt sql.NullTime
		var submitterFirst, submitterLast, submitterEmail sql.NullString
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.ExperimentID, &experimentTitle, &kind,
			&observationsJSON, &resultJSON, &statsJSON, &entry.IsComplete, &entry.StartedAt, &completedAt,
			&submitterFirst, &submitterLast, &submitterEmail); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		entry.Kind = domain.Kind(kind)
		if experimentTitle.Valid {
			entry.ExperimentTitle = experimentTitle.String
		}
		if completedAt.Valid {
			completed := completedAt.Time.UTC()
			entry.CompletedAt = &completed
		}
		if err := decodeRunDocuments(&entry.Run, observationsJSON, resultJSON, statsJSON); err != nil {
			return nil, err
		}
		entry.SubmitterName = strings.TrimSpace(submitterFirst.String + " " + submitterLast.String)
		if submitterEmail.Valid {
			entry.SubmitterEmail = submitterEmail.String
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return entries, nil
}

func buildRunListQuery(filter repo.RunFilter) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`SELECT r.run_id, r.user_id, r.experiment_id, r.experiment_title, r.kind,
		r.observations, r.result, r.stats, r.is_complete, r.started_at, r.completed_at,
		u.first_name, u.last_name, u.email
	FROM experiment_runs r
	LEFT JOIN users u ON u.user_id = r.user_id`)

	args := make([]any, 0, 3)
	conditions := make([]string, 0, 3)
	if strings.TrimSpace(string(filter.Kind)) != "" {
		args = append(args, string(filter.Kind))
		conditions = append(conditions, fmt.Sprintf("r.kind = $%d", len(args)))
	}
	if strings.TrimSpace(filter.UserID) != "" {
		args = append(args, strings.TrimSpace(filter.UserID))
		conditions = append(conditions, fmt.Sprintf("r.user_id = $%d", len(args)))
	}
	if strings.TrimSpace(filter.ExperimentID) != "" {
		args = append(args, strings.TrimSpace(filter.ExperimentID))
		conditions = append(conditions, fmt.Sprintf("r.experiment_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}
	sb.WriteString(" ORDER BY r.started_at DESC")
	return sb.String(), args
}

func (s *RunStore) FindByUserAndExperiment(ctx context.Context, userID, experimentID string) (domain.Run, error) {
	if s == nil || s.db == nil {
		return domain.Run{}, fmt.Errorf("run store not initialized")
	}
	userID = strings.TrimSpace(userID)
	experimentID = strings.TrimSpace(experimentID)
	if userID == "" || experimentID == "" {
		return domain.Run{}, fmt.Errorf("user id and experiment id are required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT run_id, user_id, experiment_id, experiment_title, kind,
			observations, result, stats, is_complete, started_at, completed_at
		 FROM experiment_runs
		 WHERE user_id = $1 AND experiment_id = $2
		 ORDER BY started_at DESC
		 LIMIT 1`,
		userID,
		experimentID,
	)
	return scanRun(row.Scan)
}

func scanRun(scan func(dest ...any) error) (domain.Run, error) {
	var run domain.Run
	var experimentTitle sql.NullString
	var kind string
	var observationsJSON, resultJSON, statsJSON []byte
	var completedAt sql.NullTime
	if err := scan(&run.ID, &run.UserID, &run.ExperimentID, &experimentTitle, &kind,
		&observationsJSON, &resultJSON, &statsJSON, &run.IsComplete, &run.StartedAt, &completedAt); err != nil {
		return domain.Run{}, handleNotFound(err)
	}
	run.Kind = domain.Kind(kind)
	if experimentTitle.Valid {
		run.ExperimentTitle = experimentTitle.String
	}
	if completedAt.Valid {
		completed := completedAt.Time.UTC()
		run.CompletedAt = &completed
	}
	if err := decodeRunDocuments(&run, observationsJSON, resultJSON, statsJSON); err != nil {
		return domain.Run{}, err
	}
	return run, nil
}

func encodeRunDocuments(run domain.Run) (observations, result, stats []byte, err error) {
	if run.Observations == nil {
		run.Observations = []domain.Observation{}
	}
	observations, err = encodeJSON(run.Observations)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode observations: %w", err)
	}
	result, err = encodeJSON(run.Result)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode result: %w", err)
	}
	stats, err = encodeJSON(run.Stats)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode stats: %w", err)
	}
	return observations, result, stats, nil
}

func decodeRunDocuments(run *domain.Run, observations, result, stats []byte) error {
	run.Observations = []domain.Observation{}
	if err := decodeJSON(observations, &run.Observations); err != nil {
		return fmt.Errorf("decode observations: %w", err)
	}
	if err := decodeJSON(result, &run.Result); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	if err := decodeJSON(stats, &run.Stats); err != nil {
		return fmt.Errorf("decode stats: %w", err)
	}
	return nil
}
