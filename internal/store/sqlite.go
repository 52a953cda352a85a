// Package store provides storage backends for graycells.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/ysdkz/graycells/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists (skip for in-memory databases)
	if dsn != ":memory:" {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			slog.Error("Failed to create database directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		slog.Debug("SQLite database directory verified/created", "dir", dir)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetUserStatus retrieves the status row for a user, nil if none exists.
func (s *SQLiteStore) GetUserStatus(userID string) (*models.UserStatus, error) {
	row := s.db.QueryRow(`SELECT user_id, status, current_diary_id, current_question_no, latest_diary_date
		FROM user_status WHERE user_id = ?`, userID)
	status, err := scanUserStatus(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetUserStatus not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserStatus failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query user status for %s: %w", userID, err)
	}
	slog.Debug("SQLiteStore GetUserStatus found", "userID", userID, "status", status.Status)
	return status, nil
}

// SaveUserStatus inserts or updates the status row for a user.
func (s *SQLiteStore) SaveUserStatus(status models.UserStatus) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO user_status
		(user_id, status, current_diary_id, current_question_no, latest_diary_date)
		VALUES (?, ?, ?, ?, ?)`,
		status.UserID, status.Status.Legacy(), nullableInt64(status.CurrentDiaryID),
		nullableInt(status.CurrentQuestionNo), nilIfEmpty(status.LatestDiaryDate))
	if err != nil {
		slog.Error("SQLiteStore SaveUserStatus failed", "error", err, "userID", status.UserID)
		return fmt.Errorf("failed to save user status for %s: %w", status.UserID, err)
	}
	slog.Debug("SQLiteStore SaveUserStatus succeeded", "userID", status.UserID, "status", status.Status)
	return nil
}

// InsertDiary persists a diary row and returns its assigned ID.
func (s *SQLiteStore) InsertDiary(diary models.Diary) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO diary
		(user_id, diary_date, original_text, english_text, japanese_text, number_of_correct_answers)
		VALUES (?, ?, ?, ?, ?, ?)`,
		diary.UserID, diary.DiaryDate, diary.OriginalText, diary.EnglishText,
		diary.JapaneseText, diary.CorrectAnswers)
	if err != nil {
		slog.Error("SQLiteStore InsertDiary failed", "error", err, "userID", diary.UserID)
		return 0, fmt.Errorf("failed to insert diary for %s: %w", diary.UserID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		slog.Error("SQLiteStore InsertDiary last insert id failed", "error", err, "userID", diary.UserID)
		return 0, fmt.Errorf("failed to read diary id: %w", err)
	}
	slog.Debug("SQLiteStore InsertDiary succeeded", "userID", diary.UserID, "diaryID", id)
	return id, nil
}

// GetDiary retrieves a diary by ID, nil if none exists.
func (s *SQLiteStore) GetDiary(id int64) (*models.Diary, error) {
	row := s.db.QueryRow(`SELECT id, user_id, diary_date, original_text, english_text, japanese_text, number_of_correct_answers
		FROM diary WHERE id = ?`, id)
	diary, err := scanDiary(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetDiary not found", "diaryID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetDiary failed", "error", err, "diaryID", id)
		return nil, fmt.Errorf("failed to query diary %d: %w", id, err)
	}
	return diary, nil
}

// UpdateDiaryCorrectAnswers sets a diary's correct-answer counter.
func (s *SQLiteStore) UpdateDiaryCorrectAnswers(id int64, count int) error {
	_, err := s.db.Exec(`UPDATE diary SET number_of_correct_answers = ? WHERE id = ?`, count, id)
	if err != nil {
		slog.Error("SQLiteStore UpdateDiaryCorrectAnswers failed", "error", err, "diaryID", id)
		return fmt.Errorf("failed to update diary %d correct answers: %w", id, err)
	}
	slog.Debug("SQLiteStore UpdateDiaryCorrectAnswers succeeded", "diaryID", id, "count", count)
	return nil
}

// InsertQuestion persists a question row and returns its assigned ID.
func (s *SQLiteStore) InsertQuestion(question models.Question) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO question
		(diary_id, question_no, question_text, explanation_text, mistake_flag)
		VALUES (?, ?, ?, ?, ?)`,
		question.DiaryID, question.QuestionNo, question.QuestionText,
		question.ExplanationText, question.MistakeFlag)
	if err != nil {
		slog.Error("SQLiteStore InsertQuestion failed", "error", err, "diaryID", question.DiaryID, "questionNo", question.QuestionNo)
		return 0, fmt.Errorf("failed to insert question %d for diary %d: %w", question.QuestionNo, question.DiaryID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		slog.Error("SQLiteStore InsertQuestion last insert id failed", "error", err)
		return 0, fmt.Errorf("failed to read question id: %w", err)
	}
	slog.Debug("SQLiteStore InsertQuestion succeeded", "diaryID", question.DiaryID, "questionID", id)
	return id, nil
}

// GetQuestion retrieves a question by diary ID and question number.
func (s *SQLiteStore) GetQuestion(diaryID int64, questionNo int) (*models.Question, error) {
	row := s.db.QueryRow(`SELECT id, diary_id, question_no, question_text, explanation_text, mistake_flag
		FROM question WHERE diary_id = ? AND question_no = ?`, diaryID, questionNo)
	question, err := scanQuestion(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetQuestion not found", "diaryID", diaryID, "questionNo", questionNo)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetQuestion failed", "error", err, "diaryID", diaryID, "questionNo", questionNo)
		return nil, fmt.Errorf("failed to query question %d of diary %d: %w", questionNo, diaryID, err)
	}
	return question, nil
}

// MarkQuestionMistake sets a question's mistake flag.
func (s *SQLiteStore) MarkQuestionMistake(questionID int64) error {
	_, err := s.db.Exec(`UPDATE question SET mistake_flag = 1 WHERE id = ?`, questionID)
	if err != nil {
		slog.Error("SQLiteStore MarkQuestionMistake failed", "error", err, "questionID", questionID)
		return fmt.Errorf("failed to mark question %d mistake: %w", questionID, err)
	}
	slog.Debug("SQLiteStore MarkQuestionMistake succeeded", "questionID", questionID)
	return nil
}

// InsertOption persists an option row and returns its assigned ID.
func (s *SQLiteStore) InsertOption(option models.Option) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO options
		(question_id, option_no, option_text, correct_flag)
		VALUES (?, ?, ?, ?)`,
		option.QuestionID, option.OptionNo, option.OptionText, option.CorrectFlag)
	if err != nil {
		slog.Error("SQLiteStore InsertOption failed", "error", err, "questionID", option.QuestionID, "optionNo", option.OptionNo)
		return 0, fmt.Errorf("failed to insert option %d for question %d: %w", option.OptionNo, option.QuestionID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		slog.Error("SQLiteStore InsertOption last insert id failed", "error", err)
		return 0, fmt.Errorf("failed to read option id: %w", err)
	}
	return id, nil
}

// GetOptions retrieves a question's options ordered by option number.
func (s *SQLiteStore) GetOptions(questionID int64) ([]models.Option, error) {
	rows, err := s.db.Query(`SELECT id, question_id, option_no, option_text, correct_flag
		FROM options WHERE question_id = ? ORDER BY option_no`, questionID)
	if err != nil {
		slog.Error("SQLiteStore GetOptions query failed", "error", err, "questionID", questionID)
		return nil, fmt.Errorf("failed to query options for question %d: %w", questionID, err)
	}
	defer rows.Close()

	var options []models.Option
	for rows.Next() {
		option, err := scanOption(rows)
		if err != nil {
			slog.Error("SQLiteStore GetOptions scan failed", "error", err, "questionID", questionID)
			return nil, err
		}
		options = append(options, option)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetOptions rows iteration failed", "error", err, "questionID", questionID)
		return nil, fmt.Errorf("failed to iterate option rows: %w", err)
	}
	slog.Debug("SQLiteStore GetOptions succeeded", "questionID", questionID, "count", len(options))
	return options, nil
}

// IsCorrectOption reports whether the numbered option is the correct one.
// Unknown questions or option numbers report false.
func (s *SQLiteStore) IsCorrectOption(questionID int64, optionNo int) (bool, error) {
	var correct bool
	err := s.db.QueryRow(`SELECT correct_flag FROM options
		WHERE question_id = ? AND option_no = ?`, questionID, optionNo).Scan(&correct)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore IsCorrectOption failed", "error", err, "questionID", questionID, "optionNo", optionNo)
		return false, fmt.Errorf("failed to check option %d of question %d: %w", optionNo, questionID, err)
	}
	return correct, nil
}

// ListUsersWithoutDiaryOn returns users whose latest diary date differs
// from the given date, ordered by user ID.
func (s *SQLiteStore) ListUsersWithoutDiaryOn(date string) ([]string, error) {
	rows, err := s.db.Query(`SELECT user_id FROM user_status
		WHERE latest_diary_date IS NULL OR latest_diary_date <> ?
		ORDER BY user_id`, date)
	if err != nil {
		slog.Error("SQLiteStore ListUsersWithoutDiaryOn failed", "error", err, "date", date)
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

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
