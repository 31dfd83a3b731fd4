package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/smartschedule/schedulebot/bot/config"
	"github.com/smartschedule/schedulebot/bot/snapshot"
	coreconfig "github.com/smartschedule/schedulebot/core/config"
	"github.com/smartschedule/schedulebot/core/metrics"
	coretelegram "github.com/smartschedule/schedulebot/core/telegram"
)

type recordingAPI struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingAPI) Send(_ tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := what.(string); ok {
		r.texts = append(r.texts, s)
	}
	return &tele.Message{ID: len(r.texts)}, nil
}

func (r *recordingAPI) Edit(tele.Editable, interface{}, ...interface{}) (*tele.Message, error) {
	return nil, nil
}

func (r *recordingAPI) Delete(tele.Editable) error { return nil }

func (r *recordingAPI) Raw(string, interface{}) ([]byte, error) { return nil, nil }

func (r *recordingAPI) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Config: coreconfig.Config{
			Telegram: coreconfig.TelegramConfig{Token: "123:abc"},
		},
		Schedule: config.ScheduleConfig{BaseURL: baseURL, Timezone: "UTC", ChunkDelayMS: 1},
		Snapshot: config.SnapshotConfig{Path: filepath.Join(t.TempDir(), "user_data.txt")},
	}
	require.NoError(t, coreconfig.Normalize(&cfg.Config))
	require.NoError(t, config.Normalize(cfg))
	return cfg
}

type harness struct {
	app  *App
	api  *recordingAPI
	bot  *tele.Bot
	cfg  *config.Config
	file *snapshot.FileStore
}

func newHarness(t *testing.T, seed snapshot.Data, prepare ...func(cfg *config.Config)) *harness {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`["Econ","Law"]`))
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv.URL)
	for _, fn := range prepare {
		fn(cfg)
	}
	file := snapshot.NewFileStore(cfg.Snapshot.Path)
	if len(seed.Known) > 0 {
		require.NoError(t, file.Save(context.Background(), seed))
	}

	// callback answers go to a stub Bot API
	tg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	t.Cleanup(tg.Close)
	bot, err := tele.NewBot(tele.Settings{URL: tg.URL, Token: "123:abc", Offline: true})
	require.NoError(t, err)
	api := &recordingAPI{}

	a, err := assemble(context.Background(), cfg, parts{
		bot:       bot,
		api:       api,
		metrics:   metrics.New(),
		snapshots: file,
	})
	require.NoError(t, err)
	return &harness{app: a, api: api, bot: bot, cfg: cfg, file: file}
}

func TestAssembleRestoresPresence(t *testing.T) {
	h := newHarness(t, snapshot.Data{Known: []int64{7, 42}, Names: map[int64]string{7: "A:B", 42: "C"}})

	assert.Equal(t, map[int64]string{7: "A:B", 42: "C"}, h.app.presence.Known())
	st := h.app.presence.Snapshot(time.Now())
	assert.Equal(t, 2, st.Known)
	assert.Zero(t, st.ActiveCount())
}

func TestRunOptions(t *testing.T) {
	h := newHarness(t, snapshot.Data{})
	opts, err := h.app.TelegramRunOptions()
	require.NoError(t, err)

	assert.Same(t, h.bot, opts.Bot)
	assert.Same(t, h.app.registry, opts.Registry)
	require.Len(t, opts.Routes, 2)
	assert.Equal(t, tele.OnText, opts.Routes[0].Endpoint)
	assert.Equal(t, tele.OnCallback, opts.Routes[1].Endpoint)
	assert.NotEmpty(t, opts.Middlewares)

	visible := h.app.registry.ListCommands(true)
	require.Len(t, visible, 2)
	assert.Equal(t, "help", visible[0].Text)
	assert.Equal(t, "start", visible[1].Text)
	_, _, ok := h.app.registry.LookupCommand("/admin")
	assert.True(t, ok)
}

func TestTextRouteReachesMachine(t *testing.T) {
	h := newHarness(t, snapshot.Data{})
	opts, err := h.app.TelegramRunOptions()
	require.NoError(t, err)

	upd := tele.Update{ID: 1, Message: &tele.Message{
		Sender: &tele.User{ID: 9, Username: "student"},
		Chat:   &tele.Chat{ID: 9},
		Text:   "/start",
	}}
	require.NoError(t, opts.Routes[0].Handler(h.bot.NewContext(upd)))

	sent := h.api.sent()
	require.Len(t, sent, 2, "welcome and role prompt")
	assert.Contains(t, sent[0], "Welcome")
	st, ok := h.app.machine.State(9)
	require.True(t, ok)
	assert.Zero(t, st.Role)
}

func TestCallbackRouteReachesMachine(t *testing.T) {
	h := newHarness(t, snapshot.Data{})
	opts, err := h.app.TelegramRunOptions()
	require.NoError(t, err)

	upd := tele.Update{ID: 2, Callback: &tele.Callback{
		ID:      "cb",
		Sender:  &tele.User{ID: 9},
		Data:    "student",
		Message: &tele.Message{ID: 77, Chat: &tele.Chat{ID: 9}},
	}}
	_ = opts.Routes[1].Handler(h.bot.NewContext(upd))

	st, ok := h.app.machine.State(9)
	require.True(t, ok)
	assert.Equal(t, "student", st.Role.String())
}

func TestStopWritesSnapshot(t *testing.T) {
	h := newHarness(t, snapshot.Data{Known: []int64{7}, Names: map[int64]string{7: "old"}})
	h.app.presence.RecordActivity(42, "new", time.Now())

	opts, err := h.app.TelegramRunOptions()
	require.NoError(t, err)
	require.NoError(t, opts.OnStop(context.Background(), coretelegram.Runtime{}))

	data, err := h.file.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 42}, data.Known)
	assert.Equal(t, "new", data.Names[42])

	_, err = os.Stat(h.cfg.Snapshot.Path)
	require.NoError(t, err)
	require.NoError(t, h.app.Close())
}

func TestUnreadableSnapshotDoesNotBlockStartup(t *testing.T) {
	h := newHarness(t, snapshot.Data{}, func(cfg *config.Config) {
		require.NoError(t, os.Mkdir(cfg.Snapshot.Path, 0o755))
	})
	assert.Empty(t, h.app.presence.Known())

	h.app.presence.RecordActivity(42, "new", time.Now())
	opts, err := h.app.TelegramRunOptions()
	require.NoError(t, err)
	require.NoError(t, opts.OnStop(context.Background(), coretelegram.Runtime{}))

	info, err := os.Stat(h.cfg.Snapshot.Path)
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "unreadable snapshot is left in place")
	require.NoError(t, h.app.Close())
}

func TestSaveRetriesLoadAfterFailure(t *testing.T) {
	h := newHarness(t, snapshot.Data{}, func(cfg *config.Config) {
		require.NoError(t, os.Mkdir(cfg.Snapshot.Path, 0o755))
	})
	h.app.presence.RecordActivity(42, "new", time.Now())

	require.NoError(t, os.Remove(h.cfg.Snapshot.Path))
	require.NoError(t, h.app.saveSnapshot(context.Background()))

	data, err := h.file.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, data.Known)
}

func TestCommandText(t *testing.T) {
	cases := []struct {
		in, bot, want string
	}{
		{"/start@ScheduleBot", "ScheduleBot", "/start"},
		{"/start@schedulebot", "ScheduleBot", "/start"},
		{"/start@OtherBot", "ScheduleBot", "/start@OtherBot"},
		{"/start", "ScheduleBot", "/start"},
		{"mail me@ScheduleBot", "ScheduleBot", "mail me@ScheduleBot"},
		{"/x y@ScheduleBot", "ScheduleBot", "/x y@ScheduleBot"},
		{"/start@ScheduleBot", "", "/start@ScheduleBot"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, commandText(c.in, c.bot), c.in)
	}
}
