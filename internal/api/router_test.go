package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/halvden/jellywatch/internal/api/middleware"
	"github.com/halvden/jellywatch/internal/database"
	"github.com/halvden/jellywatch/internal/discord"
	"github.com/halvden/jellywatch/internal/encryption"
	"github.com/halvden/jellywatch/internal/event"
	"github.com/halvden/jellywatch/internal/jellyfin"
	"github.com/halvden/jellywatch/internal/pipeline"
	"github.com/halvden/jellywatch/internal/publish"
	"github.com/halvden/jellywatch/internal/scheduler"
	"github.com/halvden/jellywatch/internal/settings"
	"github.com/halvden/jellywatch/internal/stats"
	"github.com/halvden/jellywatch/internal/webhook"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// blockingLibraryAPI serves fixed folders; when gate is non-nil every
// enumeration blocks until the gate closes.
type blockingLibraryAPI struct {
	gate    chan struct{}
	started chan struct{}
}

func (f *blockingLibraryAPI) MediaFolders(ctx context.Context) ([]jellyfin.MediaFolder, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	return []jellyfin.MediaFolder{{ID: "lib-1", Name: "Movies", CollectionType: "movies"}}, nil
}

func (f *blockingLibraryAPI) CountItems(ctx context.Context, libraryID string, seriesOnly bool) (int, error) {
	return 42, nil
}

type acceptAllChatAPI struct{}

func (acceptAllChatAPI) Channel(ctx context.Context, channelID string) (*discord.Channel, error) {
	return &discord.Channel{ID: channelID}, nil
}

func (acceptAllChatAPI) Message(ctx context.Context, channelID, messageID string) (*discord.Message, error) {
	return &discord.Message{ID: messageID, ChannelID: channelID}, nil
}

func (acceptAllChatAPI) CreateMessage(ctx context.Context, channelID, content string) (*discord.Message, error) {
	return &discord.Message{ID: "msg-new", ChannelID: channelID}, nil
}

func (acceptAllChatAPI) EditMessage(ctx context.Context, channelID, messageID, content string, embeds []discord.Embed) (*discord.Message, error) {
	return &discord.Message{ID: messageID, ChannelID: channelID}, nil
}

type fixture struct {
	handler  http.Handler
	store    *settings.Store
	jellyfin *blockingLibraryAPI
}

func setup(t *testing.T, apiToken string) *fixture {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	enc, _, err := encryption.New("")
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}

	logger := testLogger()
	store := settings.NewStore(db, enc)
	bus := event.NewBus(logger, 16)
	go bus.Start()
	t.Cleanup(bus.Stop)

	jf := &blockingLibraryAPI{}
	p := pipeline.New(store, stats.NewCollector(logger), publish.NewPublisher(logger), bus, logger)
	p.SetFactories(pipeline.Factories{
		Jellyfin: func(baseURL, apiKey string) stats.LibraryAPI { return jf },
		Discord:  func(botToken string) publish.ChatAPI { return acceptAllChatAPI{} },
	})

	auth, err := middleware.NewTokenAuth(apiToken)
	if err != nil {
		t.Fatalf("NewTokenAuth failed: %v", err)
	}

	router := NewRouter(RouterDeps{
		Store:          store,
		Pipeline:       p,
		Scheduler:      scheduler.New(p, store, logger),
		WebhookService: webhook.NewService(db),
		Auth:           auth,
		Logger:         logger,
	})
	return &fixture{handler: router.Handler(), store: store, jellyfin: jf}
}

func configure(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	for _, step := range []error{
		f.store.SetServerURL(ctx, "https://jellyfin.example.com"),
		f.store.SetAPIKey(ctx, "jf-key"),
		f.store.SetBotToken(ctx, "bot-token"),
		f.store.SetPublishTarget(ctx, settings.Target{ChannelID: "chan-1", MessageID: "msg-1"}),
	} {
		if step != nil {
			t.Fatal(step)
		}
	}
}

func (f *fixture) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v: %s", err, rec.Body.String())
	}
	return body
}

func TestHealth(t *testing.T) {
	f := setup(t, "")

	rec := f.request(t, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestHealth_PublicEvenWithAuth(t *testing.T) {
	f := setup(t, "admin-token")

	rec := f.request(t, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health must not require auth, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	f := setup(t, "admin-token")

	rec := f.request(t, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	auth := httptest.NewRecorder()
	f.handler.ServeHTTP(auth, req)
	if auth.Code != http.StatusOK {
		t.Errorf("authorized status = %d, want 200", auth.Code)
	}
}

func TestStatus(t *testing.T) {
	f := setup(t, "")
	configure(t, f)

	rec := f.request(t, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)

	if body["jellyfin_url"] != "https://jellyfin.example.com" {
		t.Errorf("jellyfin_url = %v", body["jellyfin_url"])
	}
	if body["api_key_set"] != true || body["bot_token_set"] != true {
		t.Errorf("credential flags = %v / %v", body["api_key_set"], body["bot_token_set"])
	}
	if body["channel_id"] != "chan-1" || body["message_id"] != "msg-1" {
		t.Errorf("target = %v / %v", body["channel_id"], body["message_id"])
	}
	if body["update_interval"] != "168h0m0s" {
		t.Errorf("update_interval = %v", body["update_interval"])
	}
	if _, ok := body["last_update"]; ok {
		t.Error("last_update must be omitted before the first cycle")
	}
}

func TestStatus_NeverLeaksSecrets(t *testing.T) {
	f := setup(t, "")
	configure(t, f)

	rec := f.request(t, http.MethodGet, "/api/v1/status", "")
	if strings.Contains(rec.Body.String(), "jf-key") || strings.Contains(rec.Body.String(), "bot-token") {
		t.Errorf("status response leaks credentials: %s", rec.Body.String())
	}
}

func TestUpdateSettings(t *testing.T) {
	f := setup(t, "")

	rec := f.request(t, http.MethodPut, "/api/v1/settings",
		`{"jellyfin_url":"https://jf.example.com/","jellyfin_api_key":"new-key"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	ctx := context.Background()
	url, _ := f.store.ServerURL(ctx)
	if url != "https://jf.example.com" {
		t.Errorf("url = %q, want trailing slash trimmed", url)
	}
	key, _ := f.store.APIKey(ctx)
	if key != "new-key" {
		t.Errorf("api key = %q", key)
	}
	// Fields absent from the body stay untouched.
	token, _ := f.store.BotToken(ctx)
	if token != "" {
		t.Errorf("bot token = %q, want unset", token)
	}
}

func TestUpdateSettings_BadBody(t *testing.T) {
	f := setup(t, "")

	rec := f.request(t, http.MethodPut, "/api/v1/settings", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRefresh(t *testing.T) {
	f := setup(t, "")
	configure(t, f)

	rec := f.request(t, http.MethodPost, "/api/v1/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRefresh_NotConfigured(t *testing.T) {
	f := setup(t, "")

	rec := f.request(t, http.MethodPost, "/api/v1/refresh", "")
	if rec.Code != http.StatusPreconditionFailed {
		t.Errorf("status = %d, want 412", rec.Code)
	}
}

func TestRefresh_ConflictWhileRunning(t *testing.T) {
	f := setup(t, "")
	configure(t, f)

	f.jellyfin.gate = make(chan struct{})
	f.jellyfin.started = make(chan struct{}, 1)

	firstDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		firstDone <- f.request(t, http.MethodPost, "/api/v1/refresh", "")
	}()

	select {
	case <-f.jellyfin.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first refresh never started collecting")
	}

	rec := f.request(t, http.MethodPost, "/api/v1/refresh", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("concurrent refresh status = %d, want 409", rec.Code)
	}

	close(f.jellyfin.gate)
	select {
	case first := <-firstDone:
		if first.Code != http.StatusOK {
			t.Errorf("first refresh status = %d: %s", first.Code, first.Body.String())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first refresh never finished")
	}
}

func TestSetupTarget(t *testing.T) {
	f := setup(t, "")
	if err := f.store.SetBotToken(context.Background(), "bot-token"); err != nil {
		t.Fatal(err)
	}

	rec := f.request(t, http.MethodPost, "/api/v1/target", `{"channel_id":"chan-9"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["channel_id"] != "chan-9" || body["message_id"] != "msg-new" {
		t.Errorf("body = %v", body)
	}

	target, err := f.store.PublishTarget(context.Background())
	if err != nil || !target.Configured() {
		t.Errorf("target not persisted: %+v, %v", target, err)
	}
}

func TestSetupTarget_MissingChannelID(t *testing.T) {
	f := setup(t, "")

	rec := f.request(t, http.MethodPost, "/api/v1/target", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSetupTarget_NoBotToken(t *testing.T) {
	f := setup(t, "")

	rec := f.request(t, http.MethodPost, "/api/v1/target", `{"channel_id":"chan-9"}`)
	if rec.Code != http.StatusPreconditionFailed {
		t.Errorf("status = %d, want 412", rec.Code)
	}
}

func TestWebhookCRUDOverHTTP(t *testing.T) {
	f := setup(t, "")

	rec := f.request(t, http.MethodPost, "/api/v1/webhooks",
		`{"name":"notify","url":"https://example.com/hook","type":"generic","events":["stats.updated"],"enabled":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody(t, rec)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("create response missing id: %v", created)
	}

	rec = f.request(t, http.MethodGet, "/api/v1/webhooks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}

	rec = f.request(t, http.MethodGet, "/api/v1/webhooks/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = f.request(t, http.MethodPut, "/api/v1/webhooks/"+id, `{"enabled":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody(t, rec)
	if updated["enabled"] != false {
		t.Errorf("enabled = %v, want false", updated["enabled"])
	}

	rec = f.request(t, http.MethodDelete, "/api/v1/webhooks/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = f.request(t, http.MethodGet, "/api/v1/webhooks/"+id, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}
