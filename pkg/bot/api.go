package bot

import (
	"context"

	"github.com/chitragupt/chitragupt/pkg/telegram"
)

// ChatAPI is the slice of the Bot API the handlers and the approval
// workflow use. *telegram.Client satisfies it; tests substitute a fake.
type ChatAPI interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error
	GetFile(ctx context.Context, fileID string) (*telegram.File, error)
	BanChatMember(ctx context.Context, chatID, userID int64) error
}
