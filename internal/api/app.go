package api

import (
	"time"

	"github.com/yourname/sleepbot/internal"
	"github.com/yourname/sleepbot/internal/bot"
	"github.com/yourname/sleepbot/internal/service"
)

type App interface {
	Logger() internal.Logger
	Tracker() *service.Tracker
	Bot() *bot.Bot
	StatsWindow() time.Duration
}
