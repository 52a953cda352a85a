package flow

import (
	"fmt"

	"github.com/ysdkz/graycells/internal/models"
)

// User-visible message strings. The bot speaks Japanese to its users; the
// diary narratives themselves are English.
const (
	textAskPrompt       = "質問をどうぞ！この日記について何でも聞いてください。"
	textAskContinuation = "\n\n他にも質問があれば、続けてどうぞ！"
	textCorrect         = "正解です！"
	textIncorrect       = "残念、不正解です。"
	textQuizRetry       = "1〜3の番号で答えてください。"
	textNoDiaryNudge    = "今日の日記がまだありません。今日の出来事を送って、日記を作りましょう！"
	textApology         = "ごめんなさい、うまく処理できませんでした。少し時間をおいて、もう一度試してください。"
	textReminder        = "今日の日記がまだのようです。今日の出来事をひとこと送ってみませんか？英語の日記にします！"

	labelAnswerQuiz  = "クイズに挑戦"
	labelAskQuestion = "質問する"
)

// summaryText formats the end-of-quiz score line.
func summaryText(correct int) string {
	return fmt.Sprintf("%d問中%d問正解でした！", models.QuestionsPerDiary, correct)
}

// answerQuizAction is the quick action that starts the open diary's quiz.
func answerQuizAction() models.QuickAction {
	return models.QuickAction{
		Label:       labelAnswerQuiz,
		Kind:        models.ActionKindPostback,
		Data:        models.PostbackTryToAnswer,
		DisplayText: labelAnswerQuiz,
	}
}

// askQuestionAction is the quick action that opens a question session.
func askQuestionAction() models.QuickAction {
	return models.QuickAction{
		Label:       labelAskQuestion,
		Kind:        models.ActionKindPostback,
		Data:        models.PostbackAskQuestion,
		DisplayText: labelAskQuestion,
	}
}

// apologyReplies is the turn-local failure reply: the user gets a short
// apology instead of the handler failing the whole delivery.
func apologyReplies() []models.Reply {
	return []models.Reply{models.TextReply(textApology)}
}
