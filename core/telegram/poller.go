package telegram

import (
	"net"
	"strconv"
	"time"

	coreconfig "github.com/m3rciful/leadbot/core/config"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPollTimeout = 10 * time.Second

// newPoller picks how updates arrive. config.Normalize has already reduced
// telegram.run_mode to "webhook" or "longpoll".
func newPoller(cfg *coreconfig.Config) tele.Poller {
	if cfg.Telegram.RunMode != coreconfig.RunModeWebhook {
		return &tele.LongPoller{Timeout: longPollTimeout(cfg.Telegram.LongPollTimeoutSeconds)}
	}
	hook := cfg.Webhook
	return &tele.Webhook{
		Listen:   net.JoinHostPort(hook.Listen, strconv.Itoa(hook.Port)),
		Endpoint: &tele.WebhookEndpoint{PublicURL: hook.URL},
	}
}

func longPollTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultLongPollTimeout
	}
	return time.Duration(seconds) * time.Second
}
