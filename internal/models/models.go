// Package models defines the core data structures for graycells.
//
// It includes the persisted diary/quiz rows, the per-user conversation
// status, and the event/reply shapes shared across modules.
package models

import (
	"errors"
	"fmt"
)

// Status represents the per-user conversation state.
type Status string

const (
	// StatusIdle means no quiz or question session is in progress.
	StatusIdle Status = "idle"
	// StatusQuizzing means the user is answering the open diary's quiz.
	StatusQuizzing Status = "quizzing"
	// StatusAsking means the user is asking free-form questions about the open diary.
	StatusAsking Status = "asking"
)

// Legacy wire values for the status column. The original schema stores the
// status as "0"/"1"/"2", so the store boundary keeps that encoding.
const (
	legacyStatusIdle     = "0"
	legacyStatusQuizzing = "1"
	legacyStatusAsking   = "2"
)

// Cardinality of a diary's quiz set.
const (
	// QuestionsPerDiary is the number of questions generated for each diary.
	QuestionsPerDiary = 3
	// OptionsPerQuestion is the number of options generated for each question.
	OptionsPerQuestion = 3
)

// DateLayout is the calendar-date format used for diary dates.
const DateLayout = "2006-01-02"

// Error variables for better error handling and testability
var (
	ErrEmptyUserID      = errors.New("user ID cannot be empty")
	ErrUnknownEventKind = errors.New("unknown event kind")
	ErrEmptyMessageText = errors.New("message text cannot be empty")
	ErrEmptyPostbackKey = errors.New("postback key cannot be empty")
)

// IsValid checks if the given status is one of the three known states.
func (s Status) IsValid() bool {
	switch s {
	case StatusIdle, StatusQuizzing, StatusAsking:
		return true
	default:
		return false
	}
}

// Legacy returns the legacy string encoding used by the status column.
func (s Status) Legacy() string {
	switch s {
	case StatusQuizzing:
		return legacyStatusQuizzing
	case StatusAsking:
		return legacyStatusAsking
	default:
		return legacyStatusIdle
	}
}

// StatusFromLegacy decodes the legacy status column value.
func StatusFromLegacy(v string) (Status, error) {
	switch v {
	case legacyStatusIdle, "":
		return StatusIdle, nil
	case legacyStatusQuizzing:
		return StatusQuizzing, nil
	case legacyStatusAsking:
		return StatusAsking, nil
	default:
		return "", fmt.Errorf("unknown legacy status value %q", v)
	}
}

// UserStatus is the per-user conversation state row.
//
// CurrentQuestionNo is set iff the status is StatusQuizzing, and
// CurrentDiaryID is set while a diary is open (quizzing, asking, or created
// today but not yet consumed). The engine maintains these invariants; the
// store only persists them.
type UserStatus struct {
	UserID            string `json:"user_id"`
	Status            Status `json:"status"`
	CurrentDiaryID    *int64 `json:"current_diary_id,omitempty"`
	CurrentQuestionNo *int   `json:"current_question_no,omitempty"`
	LatestDiaryDate   string `json:"latest_diary_date,omitempty"` // DateLayout
}

// Diary is one day's generated narrative artifact for one user.
type Diary struct {
	ID             int64  `json:"id"`
	UserID         string `json:"user_id"`
	DiaryDate      string `json:"diary_date"` // DateLayout
	OriginalText   string `json:"original_text"`
	EnglishText    string `json:"english_text"`
	JapaneseText   string `json:"japanese_text"`
	CorrectAnswers int    `json:"number_of_correct_answers"`
}

// Question is one of the three comprehension questions linked to a diary.
type Question struct {
	ID              int64  `json:"id"`
	DiaryID         int64  `json:"diary_id"`
	QuestionNo      int    `json:"question_no"` // 1-based, unique per diary
	QuestionText    string `json:"question_text"`
	ExplanationText string `json:"explanation_text"`
	MistakeFlag     bool   `json:"mistake_flag"`
}

// Option is one of the three choices linked to a question. Exactly one
// option per question carries CorrectFlag.
type Option struct {
	ID          int64  `json:"id"`
	QuestionID  int64  `json:"question_id"`
	OptionNo    int    `json:"option_no"` // 1-based, unique per question
	OptionText  string `json:"option_text"`
	CorrectFlag bool   `json:"correct_flag"`
}

// APIStatus defines standardized status values for API responses.
type APIStatus string

const (
	// APIStatusOK indicates a successful operation.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates a failed operation.
	APIStatusError APIStatus = "error"
)

// APIResponse is the JSON envelope returned by the HTTP surface.
type APIResponse struct {
	Status  APIStatus   `json:"status,omitempty"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Accepted creates the webhook acknowledgement body {"message":"ok"}.
func Accepted() APIResponse {
	return APIResponse{Message: "ok"}
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: APIStatusError, Message: message}
}
