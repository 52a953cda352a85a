package flow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ysdkz/graycells/internal/models"
)

// questionReply builds the prompt for one question: its text, the numbered
// options, and digit quick actions the user can tap instead of typing.
// Returns nil if the question or its options are missing.
func (e *Engine) questionReply(diaryID int64, questionNo int) (*models.Reply, error) {
	question, err := e.store.GetQuestion(diaryID, questionNo)
	if err != nil {
		return nil, fmt.Errorf("failed to load question: %w", err)
	}
	if question == nil {
		return nil, nil
	}
	options, err := e.store.GetOptions(question.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load options: %w", err)
	}
	if len(options) == 0 {
		return nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Q%d. %s", question.QuestionNo, question.QuestionText)
	for _, o := range options {
		fmt.Fprintf(&b, "\n%d. %s", o.OptionNo, o.OptionText)
	}
	return &models.Reply{Text: b.String(), Actions: optionNumberActions()}, nil
}

// optionNumberActions builds the digit quick actions for answering a question.
func optionNumberActions() []models.QuickAction {
	actions := make([]models.QuickAction, 0, models.OptionsPerQuestion)
	for no := 1; no <= models.OptionsPerQuestion; no++ {
		digit := strconv.Itoa(no)
		actions = append(actions, models.QuickAction{
			Label: digit,
			Kind:  models.ActionKindMessage,
			Data:  digit,
		})
	}
	return actions
}
