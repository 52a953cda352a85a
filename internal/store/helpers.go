package store

import (
	"database/sql"
	"fmt"

	"github.com/ysdkz/graycells/internal/models"
)

// rowScanner abstracts sql.Row and sql.Rows for the shared scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullableInt64 converts an optional int64 for a nullable column.
func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// nullableInt converts an optional int for a nullable column.
func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// scanUserStatus scans a user_status row shared by both SQL backends.
func scanUserStatus(row rowScanner) (*models.UserStatus, error) {
	var status models.UserStatus
	var legacy string
	var diaryID, questionNo sql.NullInt64
	var latestDate sql.NullString
	if err := row.Scan(&status.UserID, &legacy, &diaryID, &questionNo, &latestDate); err != nil {
		return nil, err
	}
	decoded, err := models.StatusFromLegacy(legacy)
	if err != nil {
		return nil, fmt.Errorf("scan user status failed: %w", err)
	}
	status.Status = decoded
	if diaryID.Valid {
		id := diaryID.Int64
		status.CurrentDiaryID = &id
	}
	if questionNo.Valid {
		no := int(questionNo.Int64)
		status.CurrentQuestionNo = &no
	}
	status.LatestDiaryDate = latestDate.String
	return &status, nil
}

// scanDiary scans a diary row shared by both SQL backends.
func scanDiary(row rowScanner) (*models.Diary, error) {
	var diary models.Diary
	if err := row.Scan(&diary.ID, &diary.UserID, &diary.DiaryDate, &diary.OriginalText,
		&diary.EnglishText, &diary.JapaneseText, &diary.CorrectAnswers); err != nil {
		return nil, err
	}
	return &diary, nil
}

// scanQuestion scans a question row shared by both SQL backends.
func scanQuestion(row rowScanner) (*models.Question, error) {
	var question models.Question
	if err := row.Scan(&question.ID, &question.DiaryID, &question.QuestionNo,
		&question.QuestionText, &question.ExplanationText, &question.MistakeFlag); err != nil {
		return nil, err
	}
	return &question, nil
}

// scanOption scans an options row shared by both SQL backends.
func scanOption(row rowScanner) (models.Option, error) {
	var option models.Option
	err := row.Scan(&option.ID, &option.QuestionID, &option.OptionNo,
		&option.OptionText, &option.CorrectFlag)
	if err != nil {
		return option, fmt.Errorf("scan option row failed: %w", err)
	}
	return option, nil
}
