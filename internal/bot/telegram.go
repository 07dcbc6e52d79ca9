package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rug-sentinel/internal/domain"

	log "github.com/sirupsen/logrus"
	tele "gopkg.in/telebot.v3"
)

const statusTimeout = 10 * time.Second

type SnapshotReader interface {
	LatestSnapshot(ctx context.Context, mint string) (*domain.MetricsSnapshot, error)
}

var newBot = tele.NewBot

// StartTelegramBot starts long polling in the background. It returns nil when token is empty.
func StartTelegramBot(token string, reader SnapshotReader) *tele.Bot {
	if token == "" {
		log.Info("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := newBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/status", func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
		defer cancel()
		return c.Send(statusReply(ctx, reader, c.Args()))
	})

	log.Info("Telegram bot started")
	go b.Start()
	return b
}

func statusReply(ctx context.Context, reader SnapshotReader, args []string) string {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "Usage: /status <mint>"
	}
	mint := strings.TrimSpace(args[0])
	if reader == nil {
		return "Snapshot store unavailable"
	}
	snap, err := reader.LatestSnapshot(ctx, mint)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Sprintf("No data recorded yet for %s", mint)
	}
	if err != nil {
		return fmt.Sprintf("Error reading status for %s: %v", mint, err)
	}
	return fmt.Sprintf(
		"%s\nAs of: %s\nPrice: $%g\nLiquidity: $%.0f\nHolders: %d\nRisk score: %.0f (normalised %.0f)\nVotes: +%d / -%d",
		mint,
		snap.Timestamp.UTC().Format(time.RFC3339),
		snap.Price,
		snap.TotalMarketLiquidity,
		snap.TotalHolders,
		snap.Score,
		snap.ScoreNormalised,
		snap.Upvotes,
		snap.Downvotes,
	)
}
