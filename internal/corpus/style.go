package corpus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// StyleProfileJSON returns the cached style profile for an exam code as raw
// JSON. The second return is false when no profile has been stored yet.
func (s *Store) StyleProfileJSON(ctx context.Context, examCode string) (string, bool, error) {
	var profile string
	err := s.db.QueryRowContext(ctx,
		"SELECT profile FROM style_profiles WHERE exam_code = ?", examCode,
	).Scan(&profile)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load style profile: %w", err)
	}
	return profile, true, nil
}

// PutStyleProfileJSON stores or replaces the style profile for an exam code.
func (s *Store) PutStyleProfileJSON(ctx context.Context, examCode, profile string) error {
	if examCode == "" {
		return fmt.Errorf("exam code must not be empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO style_profiles (exam_code, profile, updated_at)
		 VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(exam_code) DO UPDATE SET
			profile = excluded.profile,
			updated_at = CURRENT_TIMESTAMP`,
		examCode, profile,
	)
	if err != nil {
		return fmt.Errorf("failed to store style profile: %w", err)
	}
	return nil
}
