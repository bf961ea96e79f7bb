package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/lazylemoncat/ProArb-MVP/internal/domain"
	"github.com/lazylemoncat/ProArb-MVP/pkg/logger"
)

// Notifier Telegram 通知器。token 为空时处于关闭状态，所有调用为空操作。
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewNotifier 创建通知器；token 为空返回关闭状态的实例而非错误
func NewNotifier(token string, chatID int64) (*Notifier, error) {
	if token == "" {
		logger.Info("Telegram 通知未配置，跳过")
		return &Notifier{}, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram init")
	}
	return &Notifier{bot: bot, chatID: chatID}, nil
}

// Enabled 是否启用
func (n *Notifier) Enabled() bool {
	return n != nil && n.bot != nil
}

func (n *Notifier) send(text string) {
	if !n.Enabled() {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.bot.Send(msg); err != nil {
		logger.Errorf("Telegram 发送失败: %v", err)
	}
}

// SignalOpened 推送一条正 EV 信号
func (n *Notifier) SignalOpened(res *domain.StrategyResult) {
	n.send(fmt.Sprintf(
		"📈 *信号* `%s`\n策略: %s\n净EV: %.2f USD\nROI: %.2f%%\n合约: %.2f 张 / %.0f tokens\n入场价: %.4f",
		res.MarketID, res.Strategy, res.NetEV, res.ROI, res.Contracts, res.Tokens, res.EntryPrice))
}

// ExitTriggered 推送一次退出决策
func (n *Notifier) ExitTriggered(pos *domain.Position, dec domain.ExitDecision) {
	pnl := 0.0
	if dec.Evaluation != nil {
		pnl = dec.Evaluation.TotalActualPnL
	}
	n.send(fmt.Sprintf(
		"🚪 *退出* `%s`\n动作: %s\n原因: %s\n实际盈亏: %.2f USD",
		pos.MarketID, dec.Action, dec.Reason, pnl))
}

// Alert 推送一条运行告警
func (n *Notifier) Alert(format string, args ...any) {
	n.send("⚠️ " + fmt.Sprintf(format, args...))
}
