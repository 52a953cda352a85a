// Package store provides storage backends for graycells.
//
// It persists per-user conversation status, diaries, questions and options,
// with SQLite and PostgreSQL backends plus an in-memory store for tests.
package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/ysdkz/graycells/internal/models"
)

// Store is the persistence contract consumed by the conversation engine.
//
// Reads of a missing row return (nil, nil); callers treat nil as not-found.
// Writes propagate failures so a turn can abort instead of proceeding on a
// false assumption of success.
type Store interface {
	// GetUserStatus retrieves the status row for a user, nil if none exists.
	GetUserStatus(userID string) (*models.UserStatus, error)

	// SaveUserStatus inserts or updates the status row for a user.
	SaveUserStatus(status models.UserStatus) error

	// InsertDiary persists a diary row and returns its assigned ID.
	InsertDiary(diary models.Diary) (int64, error)

	// GetDiary retrieves a diary by ID, nil if none exists.
	GetDiary(id int64) (*models.Diary, error)

	// UpdateDiaryCorrectAnswers sets a diary's correct-answer counter.
	UpdateDiaryCorrectAnswers(id int64, count int) error

	// InsertQuestion persists a question row and returns its assigned ID.
	InsertQuestion(question models.Question) (int64, error)

	// GetQuestion retrieves a question by diary ID and question number,
	// nil if none exists.
	GetQuestion(diaryID int64, questionNo int) (*models.Question, error)

	// MarkQuestionMistake sets a question's mistake flag. The flag is never
	// cleared once set.
	MarkQuestionMistake(questionID int64) error

	// InsertOption persists an option row and returns its assigned ID.
	InsertOption(option models.Option) (int64, error)

	// GetOptions retrieves a question's options ordered by option number.
	GetOptions(questionID int64) ([]models.Option, error)

	// IsCorrectOption reports whether the option with the given number is the
	// question's correct one. Unknown questions or option numbers report
	// false, never an error.
	IsCorrectOption(questionID int64, optionNo int) (bool, error)

	// ListUsersWithoutDiaryOn returns the IDs of known users whose latest
	// diary date differs from the given date, ordered by user ID.
	ListUsersWithoutDiaryOn(date string) ([]string, error)

	// Close releases the underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports "postgres" for PostgreSQL-style DSNs and "sqlite"
// for anything else (a bare file path is treated as SQLite).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	// Key/value form, e.g. "host=... user=... dbname=...". Match whole
	// tokens so a file path that merely contains "host=" stays SQLite.
	for _, token := range strings.Fields(dsn) {
		key, _, ok := strings.Cut(token, "=")
		if !ok {
			continue
		}
		switch key {
		case "host", "port", "user", "password", "dbname", "sslmode":
			return "postgres"
		}
	}
	return "sqlite"
}

// InMemoryStore is a mutex-guarded in-memory Store used in tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	statuses  map[string]models.UserStatus
	diaries   map[int64]models.Diary
	questions map[int64]models.Question
	options   map[int64]models.Option
	nextID    int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		statuses:  make(map[string]models.UserStatus),
		diaries:   make(map[int64]models.Diary),
		questions: make(map[int64]models.Question),
		options:   make(map[int64]models.Option),
	}
}

func (s *InMemoryStore) assignID() int64 {
	s.nextID++
	return s.nextID
}

// GetUserStatus retrieves the status row for a user, nil if none exists.
func (s *InMemoryStore) GetUserStatus(userID string) (*models.UserStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[userID]
	if !ok {
		return nil, nil
	}
	return &status, nil
}

// SaveUserStatus inserts or updates the status row for a user.
func (s *InMemoryStore) SaveUserStatus(status models.UserStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[status.UserID] = status
	return nil
}

// InsertDiary persists a diary row and returns its assigned ID.
func (s *InMemoryStore) InsertDiary(diary models.Diary) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	diary.ID = s.assignID()
	s.diaries[diary.ID] = diary
	return diary.ID, nil
}

// GetDiary retrieves a diary by ID, nil if none exists.
func (s *InMemoryStore) GetDiary(id int64) (*models.Diary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	diary, ok := s.diaries[id]
	if !ok {
		return nil, nil
	}
	return &diary, nil
}

// UpdateDiaryCorrectAnswers sets a diary's correct-answer counter.
func (s *InMemoryStore) UpdateDiaryCorrectAnswers(id int64, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	diary, ok := s.diaries[id]
	if !ok {
		return nil
	}
	diary.CorrectAnswers = count
	s.diaries[id] = diary
	return nil
}

// InsertQuestion persists a question row and returns its assigned ID.
func (s *InMemoryStore) InsertQuestion(question models.Question) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	question.ID = s.assignID()
	s.questions[question.ID] = question
	return question.ID, nil
}

// GetQuestion retrieves a question by diary ID and question number.
func (s *InMemoryStore) GetQuestion(diaryID int64, questionNo int) (*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.questions {
		if q.DiaryID == diaryID && q.QuestionNo == questionNo {
			question := q
			return &question, nil
		}
	}
	return nil, nil
}

// MarkQuestionMistake sets a question's mistake flag.
func (s *InMemoryStore) MarkQuestionMistake(questionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	question, ok := s.questions[questionID]
	if !ok {
		return nil
	}
	question.MistakeFlag = true
	s.questions[questionID] = question
	return nil
}

// InsertOption persists an option row and returns its assigned ID.
func (s *InMemoryStore) InsertOption(option models.Option) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	option.ID = s.assignID()
	s.options[option.ID] = option
	return option.ID, nil
}

// GetOptions retrieves a question's options ordered by option number.
func (s *InMemoryStore) GetOptions(questionID int64) ([]models.Option, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var options []models.Option
	for _, o := range s.options {
		if o.QuestionID == questionID {
			options = append(options, o)
		}
	}
	sort.Slice(options, func(i, j int) bool { return options[i].OptionNo < options[j].OptionNo })
	return options, nil
}

// IsCorrectOption reports whether the numbered option is the correct one.
func (s *InMemoryStore) IsCorrectOption(questionID int64, optionNo int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.options {
		if o.QuestionID == questionID && o.OptionNo == optionNo {
			return o.CorrectFlag, nil
		}
	}
	return false, nil
}

// ListUsersWithoutDiaryOn returns users whose latest diary date differs
// from the given date, ordered by user ID.
func (s *InMemoryStore) ListUsersWithoutDiaryOn(date string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var users []string
	for userID, status := range s.statuses {
		if status.LatestDiaryDate != date {
			users = append(users, userID)
		}
	}
	sort.Strings(users)
	return users, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
