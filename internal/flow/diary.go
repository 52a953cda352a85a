package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ysdkz/graycells/internal/genai"
	"github.com/ysdkz/graycells/internal/models"
)

// createDiary generates a structured draft from the user's raw text and
// persists the diary with its questions and options.
//
// Writes happen sequentially and there is no rollback: a failure mid-way can
// leave earlier rows in place, but a generator failure aborts before any
// write, so no diary exists without the generation having succeeded.
func (e *Engine) createDiary(ctx context.Context, userID, rawText, date string) (int64, error) {
	e.notifyLoading(ctx, userID)

	raw, err := e.genai.GenerateStructured(ctx, genai.DiaryProfile, rawText)
	if err != nil {
		return 0, fmt.Errorf("diary generation failed: %w", err)
	}
	draft, err := models.ParseDiaryDraft([]byte(raw))
	if err != nil {
		return 0, fmt.Errorf("diary draft rejected: %w", err)
	}

	diaryID, err := e.store.InsertDiary(models.Diary{
		UserID:       userID,
		DiaryDate:    date,
		OriginalText: rawText,
		EnglishText:  draft.Original,
		JapaneseText: draft.Translation,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert diary: %w", err)
	}

	for _, ex := range draft.Exercises {
		questionID, err := e.store.InsertQuestion(models.Question{
			DiaryID:         diaryID,
			QuestionNo:      ex.QuestionNo,
			QuestionText:    ex.Question,
			ExplanationText: ex.Explanation,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to insert question %d: %w", ex.QuestionNo, err)
		}
		for _, opt := range ex.Options {
			if _, err := e.store.InsertOption(models.Option{
				QuestionID:  questionID,
				OptionNo:    opt.OptionNo,
				OptionText:  opt.Option,
				CorrectFlag: opt.OptionNo == ex.Answer,
			}); err != nil {
				return 0, fmt.Errorf("failed to insert option %d of question %d: %w", opt.OptionNo, ex.QuestionNo, err)
			}
		}
	}

	slog.Debug("Engine createDiary succeeded", "userID", userID, "diaryID", diaryID, "date", date)
	return diaryID, nil
}
