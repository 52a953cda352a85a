// Package store provides storage backends for graycells.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/ysdkz/graycells/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// GetUserStatus retrieves the status row for a user, nil if none exists.
func (s *PostgresStore) GetUserStatus(userID string) (*models.UserStatus, error) {
	row := s.db.QueryRow(`SELECT user_id, status, current_diary_id, current_question_no, latest_diary_date
		FROM user_status WHERE user_id = $1`, userID)
	status, err := scanUserStatus(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetUserStatus not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUserStatus failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query user status for %s: %w", userID, err)
	}
	slog.Debug("PostgresStore GetUserStatus found", "userID", userID, "status", status.Status)
	return status, nil
}

// SaveUserStatus inserts or updates the status row for a user.
func (s *PostgresStore) SaveUserStatus(status models.UserStatus) error {
	_, err := s.db.Exec(`INSERT INTO user_status
		(user_id, status, current_diary_id, current_question_no, latest_diary_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			status = EXCLUDED.status,
			current_diary_id = EXCLUDED.current_diary_id,
			current_question_no = EXCLUDED.current_question_no,
			latest_diary_date = EXCLUDED.latest_diary_date`,
		status.UserID, status.Status.Legacy(), nullableInt64(status.CurrentDiaryID),
		nullableInt(status.CurrentQuestionNo), nilIfEmpty(status.LatestDiaryDate))
	if err != nil {
		slog.Error("PostgresStore SaveUserStatus failed", "error", err, "userID", status.UserID)
		return fmt.Errorf("failed to save user status for %s: %w", status.UserID, err)
	}
	slog.Debug("PostgresStore SaveUserStatus succeeded", "userID", status.UserID, "status", status.Status)
	return nil
}

// InsertDiary persists a diary row and returns its assigned ID.
func (s *PostgresStore) InsertDiary(diary models.Diary) (int64, error) {
	var id int64
	err := s.db.QueryRow(`INSERT INTO diary
		(user_id, diary_date, original_text, english_text, japanese_text, number_of_correct_answers)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		diary.UserID, diary.DiaryDate, diary.OriginalText, diary.EnglishText,
		diary.JapaneseText, diary.CorrectAnswers).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore InsertDiary failed", "error", err, "userID", diary.UserID)
		return 0, fmt.Errorf("failed to insert diary for %s: %w", diary.UserID, err)
	}
	slog.Debug("PostgresStore InsertDiary succeeded", "userID", diary.UserID, "diaryID", id)
	return id, nil
}

// GetDiary retrieves a diary by ID, nil if none exists.
func (s *PostgresStore) GetDiary(id int64) (*models.Diary, error) {
	row := s.db.QueryRow(`SELECT id, user_id, diary_date, original_text, english_text, japanese_text, number_of_correct_answers
		FROM diary WHERE id = $1`, id)
	diary, err := scanDiary(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetDiary not found", "diaryID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetDiary failed", "error", err, "diaryID", id)
		return nil, fmt.Errorf("failed to query diary %d: %w", id, err)
	}
	return diary, nil
}

// UpdateDiaryCorrectAnswers sets a diary's correct-answer counter.
func (s *PostgresStore) UpdateDiaryCorrectAnswers(id int64, count int) error {
	_, err := s.db.Exec(`UPDATE diary SET number_of_correct_answers = $1 WHERE id = $2`, count, id)
	if err != nil {
		slog.Error("PostgresStore UpdateDiaryCorrectAnswers failed", "error", err, "diaryID", id)
		return fmt.Errorf("failed to update diary %d correct answers: %w", id, err)
	}
	slog.Debug("PostgresStore UpdateDiaryCorrectAnswers succeeded", "diaryID", id, "count", count)
	return nil
}

// InsertQuestion persists a question row and returns its assigned ID.
func (s *PostgresStore) InsertQuestion(question models.Question) (int64, error) {
	var id int64
	err := s.db.QueryRow(`INSERT INTO question
		(diary_id, question_no, question_text, explanation_text, mistake_flag)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		question.DiaryID, question.QuestionNo, question.QuestionText,
		question.ExplanationText, question.MistakeFlag).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore InsertQuestion failed", "error", err, "diaryID", question.DiaryID, "questionNo", question.QuestionNo)
		return 0, fmt.Errorf("failed to insert question %d for diary %d: %w", question.QuestionNo, question.DiaryID, err)
	}
	slog.Debug("PostgresStore InsertQuestion succeeded", "diaryID", question.DiaryID, "questionID", id)
	return id, nil
}

// GetQuestion retrieves a question by diary ID and question number.
func (s *PostgresStore) GetQuestion(diaryID int64, questionNo int) (*models.Question, error) {
	row := s.db.QueryRow(`SELECT id, diary_id, question_no, question_text, explanation_text, mistake_flag
		FROM question WHERE diary_id = $1 AND question_no = $2`, diaryID, questionNo)
	question, err := scanQuestion(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetQuestion not found", "diaryID", diaryID, "questionNo", questionNo)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetQuestion failed", "error", err, "diaryID", diaryID, "questionNo", questionNo)
		return nil, fmt.Errorf("failed to query question %d of diary %d: %w", questionNo, diaryID, err)
	}
	return question, nil
}

// MarkQuestionMistake sets a question's mistake flag.
func (s *PostgresStore) MarkQuestionMistake(questionID int64) error {
	_, err := s.db.Exec(`UPDATE question SET mistake_flag = TRUE WHERE id = $1`, questionID)
	if err != nil {
		slog.Error("PostgresStore MarkQuestionMistake failed", "error", err, "questionID", questionID)
		return fmt.Errorf("failed to mark question %d mistake: %w", questionID, err)
	}
	slog.Debug("PostgresStore MarkQuestionMistake succeeded", "questionID", questionID)
	return nil
}

// InsertOption persists an option row and returns its assigned ID.
func (s *PostgresStore) InsertOption(option models.Option) (int64, error) {
	var id int64
	err := s.db.QueryRow(`INSERT INTO options
		(question_id, option_no, option_text, correct_flag)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		option.QuestionID, option.OptionNo, option.OptionText, option.CorrectFlag).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore InsertOption failed", "error", err, "questionID", option.QuestionID, "optionNo", option.OptionNo)
		return 0, fmt.Errorf("failed to insert option %d for question %d: %w", option.OptionNo, option.QuestionID, err)
	}
	return id, nil
}

// GetOptions retrieves a question's options ordered by option number.
func (s *PostgresStore) GetOptions(questionID int64) ([]models.Option, error) {
	rows, err := s.db.Query(`SELECT id, question_id, option_no, option_text, correct_flag
		FROM options WHERE question_id = $1 ORDER BY option_no`, questionID)
	if err != nil {
		slog.Error("PostgresStore GetOptions query failed", "error", err, "questionID", questionID)
		return nil, fmt.Errorf("failed to query options for question %d: %w", questionID, err)
	}
	defer rows.Close()

	var options []models.Option
	for rows.Next() {
		option, err := scanOption(rows)
		if err != nil {
			slog.Error("PostgresStore GetOptions scan failed", "error", err, "questionID", questionID)
			return nil, err
		}
		options = append(options, option)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetOptions rows iteration failed", "error", err, "questionID", questionID)
		return nil, fmt.Errorf("failed to iterate option rows: %w", err)
	}
	slog.Debug("PostgresStore GetOptions succeeded", "questionID", questionID, "count", len(options))
	return options, nil
}

// IsCorrectOption reports whether the numbered option is the correct one.
// Unknown questions or option numbers report false.
func (s *PostgresStore) IsCorrectOption(questionID int64, optionNo int) (bool, error) {
	var correct bool
	err := s.db.QueryRow(`SELECT correct_flag FROM options
		WHERE question_id = $1 AND option_no = $2`, questionID, optionNo).Scan(&correct)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Error("PostgresStore IsCorrectOption failed", "error", err, "questionID", questionID, "optionNo", optionNo)
		return false, fmt.Errorf("failed to check option %d of question %d: %w", optionNo, questionID, err)
	}
	return correct, nil
}

// ListUsersWithoutDiaryOn returns users whose latest diary date differs
// from the given date, ordered by user ID.
func (s *PostgresStore) ListUsersWithoutDiaryOn(date string) ([]string, error) {
	rows, err := s.db.Query(`SELECT user_id FROM user_status
		WHERE latest_diary_date IS NULL OR latest_diary_date <> $1
		ORDER BY user_id`, date)
	if err != nil {
		slog.Error("PostgresStore ListUsersWithoutDiaryOn failed", "error", err, "date", date)
		return nil, fmt.Errorf("failed to list users without diary on %s: %w", date, err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
