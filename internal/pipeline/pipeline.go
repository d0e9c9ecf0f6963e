// Package pipeline wires one full update cycle: read the stored endpoint,
// collect library counts, publish them to the tracked message, and record
// the result. The scheduler loop and manual triggers share this single path.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/halvden/jellywatch/internal/discord"
	"github.com/halvden/jellywatch/internal/event"
	"github.com/halvden/jellywatch/internal/jellyfin"
	"github.com/halvden/jellywatch/internal/publish"
	"github.com/halvden/jellywatch/internal/settings"
	"github.com/halvden/jellywatch/internal/stats"
)

// Factories build API clients per cycle so credential changes in the
// settings store take effect without a restart. Overridable in tests.
type Factories struct {
	Jellyfin func(baseURL, apiKey string) stats.LibraryAPI
	Discord  func(botToken string) publish.ChatAPI
}

func defaultFactories(logger *slog.Logger) Factories {
	return Factories{
		Jellyfin: func(baseURL, apiKey string) stats.LibraryAPI {
			return jellyfin.New(baseURL, apiKey, logger)
		},
		Discord: func(botToken string) publish.ChatAPI {
			return discord.New(botToken, logger)
		},
	}
}

// Pipeline runs update cycles.
type Pipeline struct {
	store     *settings.Store
	collector *stats.Collector
	publisher *publish.Publisher
	bus       *event.Bus
	factories Factories
	logger    *slog.Logger
}

// New creates a pipeline with default client factories.
func New(store *settings.Store, collector *stats.Collector, publisher *publish.Publisher, bus *event.Bus, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:     store,
		collector: collector,
		publisher: publisher,
		bus:       bus,
		factories: defaultFactories(logger),
		logger:    logger.With(slog.String("component", "pipeline")),
	}
}

// SetFactories replaces the client factories (for testing).
func (p *Pipeline) SetFactories(f Factories) {
	p.factories = f
}

// Run executes one cycle: collect, publish, persist the last-update
// timestamp, and emit a lifecycle event. Errors are returned to the caller
// (scheduler or manual trigger) after the failure event is published.
func (p *Pipeline) Run(ctx context.Context) error {
	err := p.run(ctx)
	if err != nil && ctx.Err() == nil {
		p.bus.Publish(event.Event{
			Type: event.CycleFailed,
			Data: map[string]any{"message": err.Error()},
		})
	}
	return err
}

func (p *Pipeline) run(ctx context.Context) error {
	api, err := p.jellyfinClient(ctx)
	if err != nil {
		return err
	}

	report, err := p.collector.Collect(ctx, api)
	if err != nil {
		return err
	}

	chat, err := p.discordClient(ctx)
	if err != nil {
		return err
	}
	target, err := p.store.PublishTarget(ctx)
	if err != nil {
		return err
	}

	if err := p.publisher.Publish(ctx, chat, report, target); err != nil {
		return err
	}

	if err := p.store.SetLastUpdate(ctx, time.Now()); err != nil {
		p.logger.Warn("recording last update time", "error", err)
	}

	p.bus.Publish(event.Event{
		Type: event.StatsUpdated,
		Data: map[string]any{
			"message":   fmt.Sprintf("library statistics updated (%d libraries)", len(report.Libraries)),
			"libraries": report.Libraries,
		},
	})
	return nil
}

// TestConnection probes the configured Jellyfin server and returns its info.
func (p *Pipeline) TestConnection(ctx context.Context) (*jellyfin.SystemInfo, error) {
	url, apiKey, err := p.endpoint(ctx)
	if err != nil {
		return nil, err
	}
	info, err := jellyfin.New(url, apiKey, p.logger).Ping(ctx)
	if err != nil {
		return nil, err
	}
	p.bus.Publish(event.Event{
		Type: event.ConnectionTested,
		Data: map[string]any{"message": "jellyfin connection ok", "version": info.Version},
	})
	return info, nil
}

// Setup creates a fresh tracked message in the given channel and persists
// the new publish target.
func (p *Pipeline) Setup(ctx context.Context, channelID string) (settings.Target, error) {
	chat, err := p.discordClient(ctx)
	if err != nil {
		return settings.Target{}, err
	}

	target, err := p.publisher.Setup(ctx, chat, channelID)
	if err != nil {
		return settings.Target{}, err
	}
	if err := p.store.SetPublishTarget(ctx, target); err != nil {
		return settings.Target{}, fmt.Errorf("persisting publish target: %w", err)
	}

	p.bus.Publish(event.Event{
		Type: event.TargetCreated,
		Data: map[string]any{"message": "tracked message created", "channel_id": channelID},
	})
	return target, nil
}

func (p *Pipeline) endpoint(ctx context.Context) (url, apiKey string, err error) {
	url, err = p.store.ServerURL(ctx)
	if err != nil {
		return "", "", err
	}
	apiKey, err = p.store.APIKey(ctx)
	if err != nil {
		return "", "", err
	}
	if url == "" || apiKey == "" {
		return "", "", stats.ErrNotConfigured
	}
	return url, apiKey, nil
}

func (p *Pipeline) jellyfinClient(ctx context.Context) (stats.LibraryAPI, error) {
	url, apiKey, err := p.endpoint(ctx)
	if err != nil {
		return nil, err
	}
	return p.factories.Jellyfin(url, apiKey), nil
}

func (p *Pipeline) discordClient(ctx context.Context) (publish.ChatAPI, error) {
	token, err := p.store.BotToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, fmt.Errorf("%w: discord bot token missing", stats.ErrNotConfigured)
	}
	return p.factories.Discord(token), nil
}
