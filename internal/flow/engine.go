// Package flow implements the per-user conversation state machine for
// graycells.
//
// One inbound event plus the user's persisted status produces zero or more
// replies, the minimal set of store mutations, and at most one status write
// per turn, issued after all replies for the turn are computed.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ysdkz/graycells/internal/genai"
	"github.com/ysdkz/graycells/internal/models"
	"github.com/ysdkz/graycells/internal/store"
)

// Notifier requests a typing/loading indication before long-running turns.
// Calls are best-effort; implementations must swallow their own failures.
type Notifier interface {
	NotifyLoading(ctx context.Context, userID string)
}

// Engine is the conversation engine. It serializes turns per user, so two
// concurrent webhook deliveries for one user cannot race on the status row.
type Engine struct {
	store    store.Store
	genai    genai.ClientInterface
	notifier Notifier
	location *time.Location
	now      func() time.Time
	locks    userLocks
}

// EngineOption defines a configuration option for the Engine.
type EngineOption func(*Engine)

// WithNotifier sets the loading-indication notifier.
func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithLocation sets the timezone used for diary dates.
func WithLocation(loc *time.Location) EngineOption {
	return func(e *Engine) {
		e.location = loc
	}
}

// WithClock sets the time source (for tests).
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a conversation engine over the given store and generator.
func NewEngine(st store.Store, gen genai.ClientInterface, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    st,
		genai:    gen,
		location: time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// today returns the current calendar date in the configured timezone.
func (e *Engine) today() string {
	return e.now().In(e.location).Format(models.DateLayout)
}

// HandleEvent processes one inbound event through the state machine and
// returns the replies to deliver. A returned error means the turn could not
// even be attempted; generator failures inside a turn instead surface as an
// apology reply.
func (e *Engine) HandleEvent(ctx context.Context, event models.Event) ([]models.Reply, error) {
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}

	unlock := e.locks.lock(event.UserID)
	defer unlock()

	status, err := e.store.GetUserStatus(event.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load status: %w", err)
	}

	slog.Debug("Engine HandleEvent", "userID", event.UserID, "kind", event.Kind, "status_exists", status != nil)

	switch event.Kind {
	case models.EventKindText:
		return e.handleText(ctx, event, status)
	case models.EventKindPostback:
		return e.handlePostback(ctx, event, status)
	}
	return nil, models.ErrUnknownEventKind
}

func (e *Engine) handleText(ctx context.Context, event models.Event, status *models.UserStatus) ([]models.Reply, error) {
	today := e.today()

	// First contact: create today's diary together with the status row.
	// The diary itself is echoed on the user's next message.
	if status == nil {
		diaryID, err := e.createDiary(ctx, event.UserID, event.Text, today)
		if err != nil {
			slog.Error("Engine first diary creation failed", "error", err, "userID", event.UserID)
			return apologyReplies(), nil
		}
		newStatus := models.UserStatus{
			UserID:          event.UserID,
			Status:          models.StatusIdle,
			CurrentDiaryID:  &diaryID,
			LatestDiaryDate: today,
		}
		if err := e.store.SaveUserStatus(newStatus); err != nil {
			return nil, fmt.Errorf("failed to save status: %w", err)
		}
		slog.Info("Engine created first diary", "userID", event.UserID, "diaryID", diaryID)
		return nil, nil
	}

	switch status.Status {
	case models.StatusQuizzing:
		return e.handleQuizAnswer(ctx, event, status)
	case models.StatusAsking:
		return e.handleAskText(ctx, event, status)
	}

	// Idle with an open diary: echo the narrative with the next actions.
	if status.CurrentDiaryID != nil {
		diary, err := e.store.GetDiary(*status.CurrentDiaryID)
		if err != nil {
			return nil, fmt.Errorf("failed to load diary: %w", err)
		}
		if diary != nil {
			reply := models.Reply{
				Text:    diary.EnglishText,
				Actions: []models.QuickAction{answerQuizAction(), askQuestionAction()},
			}
			return []models.Reply{reply}, nil
		}
		// Stale reference: drop it and continue as if no diary were open,
		// so later turns do not re-read the dead row.
		slog.Warn("Engine current diary missing", "userID", event.UserID, "diaryID", *status.CurrentDiaryID)
		status.CurrentDiaryID = nil
		status.CurrentQuestionNo = nil
		if err := e.store.SaveUserStatus(*status); err != nil {
			return nil, fmt.Errorf("failed to save status: %w", err)
		}
	}

	// Today's diary already consumed: degrade to a free-form reply.
	// Status is deliberately not persisted on this path.
	if status.LatestDiaryDate == today {
		e.notifyLoading(ctx, event.UserID)
		text, err := e.genai.GeneratePrompt(ctx, "", event.Text)
		if err != nil {
			slog.Error("Engine free-form reply failed", "error", err, "userID", event.UserID)
			return apologyReplies(), nil
		}
		return []models.Reply{models.TextReply(text)}, nil
	}

	// New day: create a fresh diary.
	diaryID, err := e.createDiary(ctx, event.UserID, event.Text, today)
	if err != nil {
		slog.Error("Engine diary creation failed", "error", err, "userID", event.UserID)
		return apologyReplies(), nil
	}
	status.Status = models.StatusIdle
	status.CurrentDiaryID = &diaryID
	status.CurrentQuestionNo = nil
	status.LatestDiaryDate = today
	if err := e.store.SaveUserStatus(*status); err != nil {
		return nil, fmt.Errorf("failed to save status: %w", err)
	}
	slog.Info("Engine created diary", "userID", event.UserID, "diaryID", diaryID, "date", today)
	return nil, nil
}

// handleAskText answers a free-form question about the open diary. The
// status remains ASKING, so nothing is persisted this turn.
func (e *Engine) handleAskText(ctx context.Context, event models.Event, status *models.UserStatus) ([]models.Reply, error) {
	diary, err := e.currentDiary(status)
	if err != nil {
		return nil, err
	}
	if diary == nil {
		return e.resetToIdle(event.UserID, status)
	}

	e.notifyLoading(ctx, event.UserID)
	answer, err := e.genai.GeneratePrompt(ctx, genai.QAProfile(diary.EnglishText, diary.JapaneseText), event.Text)
	if err != nil {
		slog.Error("Engine Q&A reply failed", "error", err, "userID", event.UserID)
		return apologyReplies(), nil
	}
	reply := models.Reply{
		Text:    answer + textAskContinuation,
		Actions: []models.QuickAction{answerQuizAction()},
	}
	return []models.Reply{reply}, nil
}

func (e *Engine) handlePostback(ctx context.Context, event models.Event, status *models.UserStatus) ([]models.Reply, error) {
	switch event.Postback {
	case models.PostbackTryToAnswer:
		return e.startQuiz(ctx, event, status)
	case models.PostbackAskQuestion:
		return e.startAsking(event, status)
	}
	slog.Warn("Engine ignoring unknown postback", "userID", event.UserID, "postback", event.Postback)
	return nil, nil
}

// startQuiz begins the open diary's quiz at question 1. The postback is
// accepted from IDLE and from ASKING, since the ask flow offers it too.
func (e *Engine) startQuiz(ctx context.Context, event models.Event, status *models.UserStatus) ([]models.Reply, error) {
	if status == nil || status.CurrentDiaryID == nil {
		return []models.Reply{models.TextReply(textNoDiaryNudge)}, nil
	}
	reply, err := e.questionReply(*status.CurrentDiaryID, 1)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return e.resetToIdle(event.UserID, status)
	}

	questionNo := 1
	status.Status = models.StatusQuizzing
	status.CurrentQuestionNo = &questionNo
	if err := e.store.SaveUserStatus(*status); err != nil {
		return nil, fmt.Errorf("failed to save status: %w", err)
	}
	return []models.Reply{*reply}, nil
}

// startAsking opens a free-form question session about the open diary.
func (e *Engine) startAsking(event models.Event, status *models.UserStatus) ([]models.Reply, error) {
	if status == nil || status.CurrentDiaryID == nil {
		return []models.Reply{models.TextReply(textNoDiaryNudge)}, nil
	}
	status.Status = models.StatusAsking
	status.CurrentQuestionNo = nil
	if err := e.store.SaveUserStatus(*status); err != nil {
		return nil, fmt.Errorf("failed to save status: %w", err)
	}
	return []models.Reply{models.TextReply(textAskPrompt)}, nil
}

// handleQuizAnswer grades one answer and advances or finishes the quiz.
func (e *Engine) handleQuizAnswer(ctx context.Context, event models.Event, status *models.UserStatus) ([]models.Reply, error) {
	if status.CurrentDiaryID == nil || status.CurrentQuestionNo == nil {
		slog.Warn("Engine quizzing status without diary or question", "userID", event.UserID)
		return e.resetToIdle(event.UserID, status)
	}
	diaryID := *status.CurrentDiaryID
	questionNo := *status.CurrentQuestionNo

	// The answer must arrive as an option number. Anything else is rejected
	// without grading so an answer is never silently misgraded.
	optionNo, err := strconv.Atoi(strings.TrimSpace(event.Text))
	if err != nil || optionNo < 1 || optionNo > models.OptionsPerQuestion {
		return []models.Reply{{Text: textQuizRetry, Actions: optionNumberActions()}}, nil
	}

	question, err := e.store.GetQuestion(diaryID, questionNo)
	if err != nil {
		return nil, fmt.Errorf("failed to load question: %w", err)
	}
	if question == nil {
		slog.Warn("Engine question missing during quiz", "userID", event.UserID, "diaryID", diaryID, "questionNo", questionNo)
		return e.resetToIdle(event.UserID, status)
	}

	correct, err := e.store.IsCorrectOption(question.ID, optionNo)
	if err != nil {
		return nil, fmt.Errorf("failed to grade answer: %w", err)
	}

	var replies []models.Reply
	if correct {
		diary, err := e.store.GetDiary(diaryID)
		if err != nil {
			return nil, fmt.Errorf("failed to load diary: %w", err)
		}
		if diary != nil {
			if err := e.store.UpdateDiaryCorrectAnswers(diaryID, diary.CorrectAnswers+1); err != nil {
				return nil, fmt.Errorf("failed to update correct answers: %w", err)
			}
		}
		replies = append(replies, models.TextReply(textCorrect))
	} else {
		if err := e.store.MarkQuestionMistake(question.ID); err != nil {
			return nil, fmt.Errorf("failed to mark mistake: %w", err)
		}
		replies = append(replies, models.TextReply(textIncorrect))
	}
	replies = append(replies, models.TextReply(question.ExplanationText))

	if questionNo < models.QuestionsPerDiary {
		next := questionNo + 1
		reply, err := e.questionReply(diaryID, next)
		if err != nil {
			return nil, err
		}
		if reply == nil {
			return e.resetToIdle(event.UserID, status)
		}
		replies = append(replies, *reply)
		status.CurrentQuestionNo = &next
		if err := e.store.SaveUserStatus(*status); err != nil {
			return nil, fmt.Errorf("failed to save status: %w", err)
		}
		return replies, nil
	}

	// Quiz finished: summary, translation, back to IDLE with the diary
	// consumed.
	diary, err := e.store.GetDiary(diaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load diary: %w", err)
	}
	if diary != nil {
		replies = append(replies, models.TextReply(summaryText(diary.CorrectAnswers)), models.TextReply(diary.JapaneseText))
	}
	status.Status = models.StatusIdle
	status.CurrentDiaryID = nil
	status.CurrentQuestionNo = nil
	if err := e.store.SaveUserStatus(*status); err != nil {
		return nil, fmt.Errorf("failed to save status: %w", err)
	}
	slog.Info("Engine quiz finished", "userID", event.UserID, "diaryID", diaryID)
	return replies, nil
}

// resetToIdle recovers from an inconsistent status by clearing the open
// diary references and nudging the user to write a new entry.
func (e *Engine) resetToIdle(userID string, status *models.UserStatus) ([]models.Reply, error) {
	status.Status = models.StatusIdle
	status.CurrentDiaryID = nil
	status.CurrentQuestionNo = nil
	if err := e.store.SaveUserStatus(*status); err != nil {
		return nil, fmt.Errorf("failed to save status: %w", err)
	}
	slog.Info("Engine reset inconsistent status", "userID", userID)
	return []models.Reply{models.TextReply(textNoDiaryNudge)}, nil
}

// currentDiary loads the diary referenced by the status, nil if the
// reference is absent or stale.
func (e *Engine) currentDiary(status *models.UserStatus) (*models.Diary, error) {
	if status.CurrentDiaryID == nil {
		return nil, nil
	}
	diary, err := e.store.GetDiary(*status.CurrentDiaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load diary: %w", err)
	}
	return diary, nil
}

func (e *Engine) notifyLoading(ctx context.Context, userID string) {
	if e.notifier == nil {
		return
	}
	e.notifier.NotifyLoading(ctx, userID)
}
