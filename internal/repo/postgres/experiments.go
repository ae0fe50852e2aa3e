package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/virtlab-edu/virtlab-go/internal/domain"
	"github.com/virtlab-edu/virtlab-go/internal/repo"
)

type ExperimentStore struct {
	db DB
}

func NewExperimentStore(db DB) *ExperimentStore {
	if db == nil {
		return nil
	}
	return &ExperimentStore{db: db}
}

func (s *ExperimentStore) Create(ctx context.Context, experiment domain.Experiment) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("experiment store not initialized")
	}
	if err := experiment.Validate(); err != nil {
		return err
	}
	createdAt := normalizeTime(experiment.CreatedAt)
	updatedAt := normalizeTime(experiment.UpdatedAt)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO experiments (
			experiment_id,
			title,
			subtitle,
			description,
			kind,
			video_key,
			created_by,
			created_at,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		strings.TrimSpace(experiment.ID),
		strings.TrimSpace(experiment.Title),
		nullIfEmpty(experiment.Subtitle),
		nullIfEmpty(experiment.Description),
		string(experiment.Kind),
		nullIfEmpty(experiment.VideoKey),
		strings.TrimSpace(experiment.CreatedBy),
		createdAt,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert experiment: %w", err)
	}
	return nil
}

func (s *ExperimentStore) Get(ctx context.Context, id string) (domain.Experiment, error) {
	if s == nil || s.db == nil {
		return domain.Experiment{}, fmt.Errorf("experiment store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Experiment{}, fmt.Errorf("experiment id is required")
	}
	var experiment domain.Experiment
	var subtitle, description, videoKey sql.NullString
	var kind string
	row := s.db.QueryRowContext(
		ctx,
		`SELECT experiment_id, title, subtitle, description, kind, video_key, created_by, created_at, updated_at
		 FROM experiments
		 WHERE experiment_id = $1`,
		id,
	)
	if err := row.Scan(&experiment.ID, &experiment.Title, &subtitle, &description, &kind,
		&videoKey, &experiment.CreatedBy, &experiment.CreatedAt, &experiment.UpdatedAt); err != nil {
		return domain.Experiment{}, handleNotFound(err)
	}
	experiment.Kind = domain.Kind(kind)
	if subtitle.Valid {
		experiment.Subtitle = subtitle.String
	}
	if description.Valid {
		experiment.Description = description.String
	}
	if videoKey.Valid {
		experiment.VideoKey = videoKey.String
	}
	return experiment, nil
}

func (s *ExperimentStore) List(ctx context.Context, filter repo.ExperimentFilter) ([]repo.ExperimentListEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("experiment store not initialized")
	}
	query, args := buildExperimentListQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query experiments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]repo.ExperimentListEntry, 0)
	for rows.Next() {
		var entry repo.ExperimentListEntry
		var subtitle, description, videoKey sql.NullString
		var creatorFirst, creatorLast, creatorEmail sql.NullString
		var kind string
		if err := rows.Scan(&entry.ID, &entry.Title, &subtitle, &description, &kind, &videoKey,
			&entry.CreatedBy, &entry.CreatedAt, &entry.UpdatedAt,
			&creatorFirst, &creatorLast, &creatorEmail); err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		entry.Kind = domain.Kind(kind)
		if subtitle.Valid {
			entry.Subtitle = subtitle.String
		}
		if description.Valid {
			entry.Description = description.String
		}
		if videoKey.Valid {
			entry.VideoKey = videoKey.String
		}
		entry.CreatorName = strings.TrimSpace(creatorFirst.String + " " + creatorLast.String)
		if creatorEmail.Valid {
			entry.CreatorEmail = creatorEmail.String
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate experiments: %w", err)
	}
	return entries, nil
}

func buildExperimentListQuery(filter repo.ExperimentFilter) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`SELECT e.experiment_id, e.title, e.subtitle, e.description, e.kind, e.video_key,
		e.created_by, e.created_at, e.updated_at,
		u.first_name, u.last_name, u.email
	FROM experiments e
	LEFT JOIN users u ON u.user_id = e.created_by`)

	args := make([]any, 0, 2)
	conditions := make([]string, 0, 2)
	if strings.TrimSpace(string(filter.Kind)) != "" {
		args = append(args, string(filter.Kind))
		conditions = append(conditions, fmt.Sprintf("e.kind = $%d", len(args)))
	}
	if strings.TrimSpace(filter.CreatedBy) != "" {
		args = append(args, strings.TrimSpace(filter.CreatedBy))
		conditions = append(conditions, fmt.Sprintf("e.created_by = $%d", len(args)))
	}
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}
	sb.WriteString(" ORDER BY e.created_at DESC")
	return sb.String(), args
}

func (s *ExperimentStore) SetVideoKey(ctx context.Context, id, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("experiment store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("experiment id is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE experiments SET video_key = $2, updated_at = NOW() WHERE experiment_id = $1`,
		id,
		nullIfEmpty(key),
	)
	if err != nil {
		return fmt.Errorf("set video key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set video key rows affected: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *ExperimentStore) Delete(ctx context.Context, id, createdBy string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("experiment store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("experiment id is required")
	}
	createdBy = strings.TrimSpace(createdBy)
	if createdBy == "" {
		return fmt.Errorf("created by is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM experiments WHERE experiment_id = $1 AND created_by = $2`,
		id,
		createdBy,
	)
	if err != nil {
		return fmt.Errorf("delete experiment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete experiment rows affected: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
