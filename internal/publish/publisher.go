// Package publish renders a stats report into a Discord embed and applies it
// to the tracked message in place.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/halvden/jellywatch/internal/discord"
	"github.com/halvden/jellywatch/internal/settings"
	"github.com/halvden/jellywatch/internal/stats"
)

const (
	embedTitle = "\U0001F4CA Library Statistics"
	embedColor = 3447003 // blue

	// timestampLayout renders the generation time as day.month.year hour:minute.
	timestampLayout = "02.01.2006 15:04"

	// placeholderContent is the initial text of a freshly created tracked
	// message, cleared by the first publish.
	placeholderContent = "Updating library statistics..."
)

// Publish-stage failures. Both leave previously rendered content untouched.
var (
	// ErrChannelNotFound indicates the configured channel no longer resolves.
	ErrChannelNotFound = errors.New("publish channel not found")
	// ErrMessageNotFound indicates the tracked message was deleted externally.
	// Recoverable by re-running setup; the message is not auto-recreated.
	ErrMessageNotFound = errors.New("tracked message not found")
	// ErrNoTarget indicates setup has never been run.
	ErrNoTarget = errors.New("publish target not configured")
)

// ChatAPI is the slice of the Discord client the publisher uses.
type ChatAPI interface {
	Channel(ctx context.Context, channelID string) (*discord.Channel, error)
	Message(ctx context.Context, channelID, messageID string) (*discord.Message, error)
	CreateMessage(ctx context.Context, channelID, content string) (*discord.Message, error)
	EditMessage(ctx context.Context, channelID, messageID, content string, embeds []discord.Embed) (*discord.Message, error)
}

// Publisher applies reports to the tracked message.
type Publisher struct {
	logger *slog.Logger
}

// NewPublisher creates a publisher.
func NewPublisher(logger *slog.Logger) *Publisher {
	return &Publisher{logger: logger.With(slog.String("component", "publisher"))}
}

// Publish renders the report and overwrites the tracked message. The edit
// clears any leftover text content and replaces the embed wholesale, so
// republishing identical data is idempotent apart from the timestamp.
func (p *Publisher) Publish(ctx context.Context, api ChatAPI, report *stats.Report, target settings.Target) error {
	if !target.Configured() {
		return ErrNoTarget
	}

	if _, err := api.Channel(ctx, target.ChannelID); err != nil {
		if errors.Is(err, discord.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrChannelNotFound, target.ChannelID)
		}
		return fmt.Errorf("resolving channel: %w", err)
	}

	if _, err := api.Message(ctx, target.ChannelID, target.MessageID); err != nil {
		if errors.Is(err, discord.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrMessageNotFound, target.MessageID)
		}
		return fmt.Errorf("fetching tracked message: %w", err)
	}

	embed := renderEmbed(report)
	if _, err := api.EditMessage(ctx, target.ChannelID, target.MessageID, "", []discord.Embed{embed}); err != nil {
		return fmt.Errorf("updating tracked message: %w", err)
	}

	p.logger.Info("tracked message updated",
		"channel_id", target.ChannelID,
		"message_id", target.MessageID,
		"libraries", len(report.Libraries),
	)
	return nil
}

// Setup creates a fresh placeholder message in the given channel and returns
// the new publish target for the caller to persist.
func (p *Publisher) Setup(ctx context.Context, api ChatAPI, channelID string) (settings.Target, error) {
	if _, err := api.Channel(ctx, channelID); err != nil {
		if errors.Is(err, discord.ErrNotFound) {
			return settings.Target{}, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
		}
		return settings.Target{}, fmt.Errorf("resolving channel: %w", err)
	}

	msg, err := api.CreateMessage(ctx, channelID, placeholderContent)
	if err != nil {
		return settings.Target{}, fmt.Errorf("creating tracked message: %w", err)
	}

	target := settings.Target{ChannelID: channelID, MessageID: msg.ID}
	p.logger.Info("tracked message created",
		"channel_id", target.ChannelID, "message_id", target.MessageID)
	return target, nil
}

// renderEmbed builds the display payload: title, generation timestamp, and
// one non-inline field per library in report order.
func renderEmbed(report *stats.Report) discord.Embed {
	fields := make([]discord.EmbedField, 0, len(report.Libraries))
	for _, lib := range report.Libraries {
		fields = append(fields, discord.EmbedField{
			Name:  lib.Name,
			Value: strconv.Itoa(lib.Count),
		})
	}
	return discord.Embed{
		Title:       embedTitle,
		Description: "Updated at: " + report.GeneratedAt.Local().Format(timestampLayout),
		Color:       embedColor,
		Fields:      fields,
	}
}
