// Package models defines the structured diary draft returned by the
// content generator.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Draft validation errors.
var (
	ErrDraftMissingNarrative   = errors.New("draft has no narrative text")
	ErrDraftMissingTranslation = errors.New("draft has no translation text")
	ErrDraftExerciseCount      = errors.New("draft must contain exactly 3 exercises")
	ErrDraftOptionCount        = errors.New("exercise must contain exactly 3 options")
	ErrDraftNumbering          = errors.New("draft numbering must cover 1..3 without repeats")
)

// DiaryDraft is the structured generator output a diary is created from.
// The narrative may arrive under either "original" or "english".
type DiaryDraft struct {
	Original    string     `json:"original"`
	English     string     `json:"english,omitempty"`
	Translation string     `json:"translation"`
	Exercises   []Exercise `json:"exercises"`
}

// Exercise is one generated comprehension question with its options.
type Exercise struct {
	QuestionNo  int              `json:"question_no"`
	Question    string           `json:"question"`
	Options     []ExerciseOption `json:"options"`
	Answer      int              `json:"answer"` // 1-based index of the correct option
	Explanation string           `json:"explanation"`
}

// ExerciseOption is one generated answer choice.
type ExerciseOption struct {
	OptionNo int    `json:"option_no"`
	Option   string `json:"option"`
}

// ParseDiaryDraft decodes and validates a structured generator response.
// A response that does not conform to the diary contract is a generator
// failure, so callers must not persist anything from a returned error.
func ParseDiaryDraft(data []byte) (*DiaryDraft, error) {
	var draft DiaryDraft
	if err := json.Unmarshal(data, &draft); err != nil {
		return nil, fmt.Errorf("failed to decode diary draft: %w", err)
	}
	if draft.Original == "" {
		draft.Original = draft.English
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	return &draft, nil
}

// Validate checks the draft against the diary creation contract:
// a narrative, a translation, and exactly 3 exercises whose question numbers
// cover 1..3, each with 3 options covering 1..3 and a correct-answer index
// in range. The numbering checks matter because the correct option is the
// one whose number equals the answer index; a draft numbered outside 1..3
// would persist a question with no correct option.
func (d *DiaryDraft) Validate() error {
	if d.Original == "" {
		return ErrDraftMissingNarrative
	}
	if d.Translation == "" {
		return ErrDraftMissingTranslation
	}
	if len(d.Exercises) != QuestionsPerDiary {
		return fmt.Errorf("%w: got %d", ErrDraftExerciseCount, len(d.Exercises))
	}
	seenQuestions := make(map[int]bool, QuestionsPerDiary)
	for i := range d.Exercises {
		ex := &d.Exercises[i]
		if ex.QuestionNo == 0 {
			ex.QuestionNo = i + 1
		}
		if ex.QuestionNo < 1 || ex.QuestionNo > QuestionsPerDiary {
			return fmt.Errorf("%w: question number %d", ErrDraftNumbering, ex.QuestionNo)
		}
		if seenQuestions[ex.QuestionNo] {
			return fmt.Errorf("%w: duplicate question number %d", ErrDraftNumbering, ex.QuestionNo)
		}
		seenQuestions[ex.QuestionNo] = true
		if ex.Question == "" {
			return fmt.Errorf("exercise %d has no question text", ex.QuestionNo)
		}
		if ex.Explanation == "" {
			return fmt.Errorf("exercise %d has no explanation text", ex.QuestionNo)
		}
		if len(ex.Options) != OptionsPerQuestion {
			return fmt.Errorf("%w: exercise %d has %d", ErrDraftOptionCount, ex.QuestionNo, len(ex.Options))
		}
		seenOptions := make(map[int]bool, OptionsPerQuestion)
		for j := range ex.Options {
			opt := &ex.Options[j]
			if opt.OptionNo == 0 {
				opt.OptionNo = j + 1
			}
			if opt.OptionNo < 1 || opt.OptionNo > OptionsPerQuestion {
				return fmt.Errorf("%w: exercise %d option number %d", ErrDraftNumbering, ex.QuestionNo, opt.OptionNo)
			}
			if seenOptions[opt.OptionNo] {
				return fmt.Errorf("%w: exercise %d duplicate option number %d", ErrDraftNumbering, ex.QuestionNo, opt.OptionNo)
			}
			seenOptions[opt.OptionNo] = true
			if opt.Option == "" {
				return fmt.Errorf("exercise %d option %d has no text", ex.QuestionNo, opt.OptionNo)
			}
		}
		if ex.Answer < 1 || ex.Answer > OptionsPerQuestion {
			return fmt.Errorf("exercise %d has out-of-range answer index %d", ex.QuestionNo, ex.Answer)
		}
	}
	return nil
}
