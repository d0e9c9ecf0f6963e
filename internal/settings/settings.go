// Package settings persists runtime configuration in the settings key-value
// table: the Jellyfin endpoint, credentials (encrypted at rest), the publish
// target, and scheduling overrides. Values are read fresh on every use so
// admin changes take effect without a restart.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/halvden/jellywatch/internal/encryption"
)

// Settings table keys.
const (
	keyServerURL       = "jellyfin.url"
	keyAPIKey          = "jellyfin.api_key"
	keyBotToken        = "discord.bot_token"
	keyChannelID       = "discord.channel_id"
	keyMessageID       = "discord.message_id"
	keyLastUpdate      = "stats.last_update"
	keyIntervalHours   = "schedule.interval_hours"
	keyBackoffMinutes  = "schedule.backoff_minutes"
	defaultIntervalHrs = 7 * 24
	defaultBackoffMin  = 60
)

// Target identifies the channel and tracked message the report is published
// to. Zero values mean setup has not been run yet.
type Target struct {
	ChannelID string
	MessageID string
}

// Configured reports whether setup created a tracked message.
func (t Target) Configured() bool {
	return t.ChannelID != "" && t.MessageID != ""
}

// Store provides typed access to the settings table.
type Store struct {
	db  *sql.DB
	enc *encryption.Encryptor
}

// NewStore creates a settings store.
func NewStore(db *sql.DB, enc *encryption.Encryptor) *Store {
	return &Store{db: db, enc: enc}
}

// ServerURL returns the Jellyfin base URL, or "" if unset.
func (s *Store) ServerURL(ctx context.Context) (string, error) {
	return s.get(ctx, keyServerURL)
}

// SetServerURL stores the Jellyfin base URL with any trailing slash removed.
func (s *Store) SetServerURL(ctx context.Context, url string) error {
	return s.set(ctx, keyServerURL, strings.TrimRight(url, "/"))
}

// APIKey returns the decrypted Jellyfin API key, or "" if unset.
func (s *Store) APIKey(ctx context.Context) (string, error) {
	return s.getSecret(ctx, keyAPIKey)
}

// SetAPIKey encrypts and stores the Jellyfin API key.
func (s *Store) SetAPIKey(ctx context.Context, apiKey string) error {
	return s.setSecret(ctx, keyAPIKey, apiKey)
}

// BotToken returns the decrypted Discord bot token, or "" if unset.
func (s *Store) BotToken(ctx context.Context) (string, error) {
	return s.getSecret(ctx, keyBotToken)
}

// SetBotToken encrypts and stores the Discord bot token.
func (s *Store) SetBotToken(ctx context.Context, token string) error {
	return s.setSecret(ctx, keyBotToken, token)
}

// PublishTarget returns the stored channel and tracked message IDs.
func (s *Store) PublishTarget(ctx context.Context) (Target, error) {
	channelID, err := s.get(ctx, keyChannelID)
	if err != nil {
		return Target{}, err
	}
	messageID, err := s.get(ctx, keyMessageID)
	if err != nil {
		return Target{}, err
	}
	return Target{ChannelID: channelID, MessageID: messageID}, nil
}

// SetPublishTarget stores the channel and tracked message IDs.
func (s *Store) SetPublishTarget(ctx context.Context, t Target) error {
	if err := s.set(ctx, keyChannelID, t.ChannelID); err != nil {
		return err
	}
	return s.set(ctx, keyMessageID, t.MessageID)
}

// LastUpdate returns the timestamp of the last successful publish, or the
// zero time if no cycle has completed yet.
func (s *Store) LastUpdate(ctx context.Context) (time.Time, error) {
	v, err := s.get(ctx, keyLastUpdate)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing last update: %w", err)
	}
	return t, nil
}

// SetLastUpdate records the timestamp of a successful publish.
func (s *Store) SetLastUpdate(ctx context.Context, t time.Time) error {
	return s.set(ctx, keyLastUpdate, t.UTC().Format(time.RFC3339))
}

// UpdateInterval returns the time between scheduled cycles. Defaults to
// weekly.
func (s *Store) UpdateInterval(ctx context.Context) time.Duration {
	return s.durationSetting(ctx, keyIntervalHours, time.Hour, defaultIntervalHrs)
}

// Backoff returns the sleep applied after a failed cycle. Defaults to an
// hour.
func (s *Store) Backoff(ctx context.Context) time.Duration {
	return s.durationSetting(ctx, keyBackoffMinutes, time.Minute, defaultBackoffMin)
}

func (s *Store) durationSetting(ctx context.Context, key string, unit time.Duration, def int) time.Duration {
	v, err := s.get(ctx, key)
	if err != nil || v == "" {
		return time.Duration(def) * unit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return time.Duration(def) * unit
	}
	return time.Duration(n) * unit
}

func (s *Store) getSecret(ctx context.Context, key string) (string, error) {
	encrypted, err := s.get(ctx, key)
	if err != nil || encrypted == "" {
		return "", err
	}
	plaintext, err := s.enc.Decrypt(encrypted)
	if err != nil {
		return "", fmt.Errorf("decrypting %s: %w", key, err)
	}
	return plaintext, nil
}

func (s *Store) setSecret(ctx context.Context, key, value string) error {
	encrypted, err := s.enc.Encrypt(value)
	if err != nil {
		return fmt.Errorf("encrypting %s: %w", key, err)
	}
	return s.set(ctx, key, encrypted)
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading setting %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}
	return nil
}
