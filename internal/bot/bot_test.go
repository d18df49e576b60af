package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/iconidentify/tubefetch/internal/delivery"
	"github.com/iconidentify/tubefetch/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// Fakes
// =============================================================================

// fakeAPI records what the bot sends to Discord.
type fakeAPI struct {
	mu          sync.Mutex
	responses   []*discordgo.InteractionResponse
	edits       []string
	followups   []*discordgo.WebhookParams
	fileBodies  [][]string
	respondErr  error
	followupErr error
}

func (f *fakeAPI) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return f.respondErr
}

func (f *fakeAPI) InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, *edit.Content)
	return &discordgo.Message{}, nil
}

func (f *fakeAPI) FollowupMessageCreate(i *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	// read files now; the sink closes them after the call returns
	var bodies []string
	for _, file := range data.Files {
		b, _ := io.ReadAll(file.Reader)
		bodies = append(bodies, string(b))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.followups = append(f.followups, data)
	f.fileBodies = append(f.fileBodies, bodies)
	return &discordgo.Message{}, f.followupErr
}

func (f *fakeAPI) lastEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return ""
	}
	return f.edits[len(f.edits)-1]
}

// fakeQueue records submitted requests.
type fakeQueue struct {
	mu    sync.Mutex
	reqs  []domain.DownloadRequest
	sinks []delivery.Sink
	err   error
}

func (q *fakeQueue) Submit(ctx context.Context, req domain.DownloadRequest, sink delivery.Sink) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.reqs = append(q.reqs, req)
	q.sinks = append(q.sinks, sink)
	return domain.NewJob("job_test", req), nil
}

type fakeFormats struct {
	text string
	err  error
	url  chan string
}

func (f *fakeFormats) Formats(ctx context.Context, url string) (string, error) {
	f.url <- url
	return f.text, f.err
}

func stringOpt(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

func boolOpt(name string, value bool) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionBoolean,
		Value: value,
	}
}

func commandInteraction(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:   "interaction-1",
		Type: discordgo.InteractionApplicationCommand,
		Data: discordgo.ApplicationCommandInteractionData{
			Name:    name,
			Options: opts,
		},
		Member: &discordgo.Member{User: &discordgo.User{ID: "user-1"}},
	}
}

// =============================================================================
// Option parsing
// =============================================================================

func TestParseFetchOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []*discordgo.ApplicationCommandInteractionDataOption
		want fetchOptions
	}{
		{
			name: "url only",
			opts: []*discordgo.ApplicationCommandInteractionDataOption{stringOpt(optionURL, " https://example.com/v ")},
			want: fetchOptions{URL: "https://example.com/v", Quality: "best"},
		},
		{
			name: "all options",
			opts: []*discordgo.ApplicationCommandInteractionDataOption{
				stringOpt(optionURL, "https://example.com/v"),
				stringOpt(optionQuality, "720p"),
				boolOpt(optionSubtitles, true),
				stringOpt(optionLanguage, "de"),
			},
			want: fetchOptions{URL: "https://example.com/v", Quality: "720p", Subtitles: true, Language: "de"},
		},
		{
			name: "language implies subtitles",
			opts: []*discordgo.ApplicationCommandInteractionDataOption{
				stringOpt(optionURL, "https://example.com/v"),
				stringOpt(optionLanguage, "fr"),
			},
			want: fetchOptions{URL: "https://example.com/v", Quality: "best", Subtitles: true, Language: "fr"},
		},
		{
			name: "blank quality keeps default",
			opts: []*discordgo.ApplicationCommandInteractionDataOption{
				stringOpt(optionURL, "https://example.com/v"),
				stringOpt(optionQuality, "  "),
			},
			want: fetchOptions{URL: "https://example.com/v", Quality: "best"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFetchOptions(tt.opts)
			if err != nil {
				t.Fatalf("parseFetchOptions() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("parseFetchOptions() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseFetchOptions_MissingURL(t *testing.T) {
	_, err := parseFetchOptions([]*discordgo.ApplicationCommandInteractionDataOption{stringOpt(optionQuality, "720p")})
	if !errors.Is(err, domain.ErrInvalidURL) {
		t.Errorf("error = %v, want ErrInvalidURL", err)
	}
}

func TestFetchOptions_Request(t *testing.T) {
	req := fetchOptions{URL: "https://example.com/v", Quality: "1080p", Subtitles: true, Language: "ES"}.request()

	if req.ID == "" {
		t.Error("request should have an id")
	}
	if req.RequestedQuality != "1080p" || !req.WantSubtitles || req.SubtitleLang != "es" {
		t.Errorf("request = %+v", req)
	}
	if req.IsResolved() {
		t.Error("new request should not be resolved")
	}
}

func TestCommands(t *testing.T) {
	cmds := Commands()
	if len(cmds) != 2 {
		t.Fatalf("got %d commands, want 2", len(cmds))
	}
	if cmds[0].Name != commandFetch || cmds[1].Name != commandFormats {
		t.Errorf("command names = %s, %s", cmds[0].Name, cmds[1].Name)
	}
	if !cmds[0].Options[0].Required || cmds[0].Options[0].Name != optionURL {
		t.Error("fetch url option should be first and required")
	}
	quality := cmds[0].Options[1]
	if quality.Name != optionQuality || len(quality.Choices) != 0 || !quality.Autocomplete {
		t.Errorf("quality option should be free-form with suggestions: %+v", quality)
	}
}

func TestQualityCompletions(t *testing.T) {
	tests := []struct {
		typed string
		want  []string
	}{
		{"", qualitySuggestions},
		{"1", []string{"1440p", "1080p", "144p"}},
		{" 72", []string{"720p"}},
		{"W", []string{"worst"}},
		{"360x", nil},
	}

	for _, tt := range tests {
		t.Run(tt.typed, func(t *testing.T) {
			got := qualityCompletions(tt.typed)
			if len(got) != len(tt.want) {
				t.Fatalf("qualityCompletions(%q) = %d choices, want %d", tt.typed, len(got), len(tt.want))
			}
			for i, c := range got {
				if c.Value != tt.want[i] {
					t.Errorf("choice %d = %v, want %s", i, c.Value, tt.want[i])
				}
			}
		})
	}
}

// =============================================================================
// Sink
// =============================================================================

func TestInteractionSink_Progress(t *testing.T) {
	api := &fakeAPI{}
	sink := newInteractionSink(api, commandInteraction(commandFetch))

	if err := sink.Progress(context.Background(), "Downloading... 50%"); err != nil {
		t.Fatal(err)
	}
	if api.lastEdit() != "Downloading... 50%" {
		t.Errorf("edit = %q", api.lastEdit())
	}
}

func TestInteractionSink_DeliverFiles(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	subs := filepath.Join(dir, "clip.en.vtt")
	os.WriteFile(video, []byte("video-bytes"), 0644)
	os.WriteFile(subs, []byte("WEBVTT"), 0644)

	api := &fakeAPI{}
	sink := newInteractionSink(api, commandInteraction(commandFetch))

	err := sink.Deliver(context.Background(), domain.Message{Files: []domain.Attachment{
		{Name: "clip.mp4", Path: video},
		{Name: "clip.en.vtt", Path: subs},
	}})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if len(api.followups) != 1 {
		t.Fatalf("followups = %d, want 1", len(api.followups))
	}
	files := api.followups[0].Files
	if len(files) != 2 || files[0].ContentType != "video/mp4" || files[1].ContentType != "text/vtt" {
		t.Errorf("files = %+v", files)
	}
	if got := api.fileBodies[0]; got[0] != "video-bytes" || got[1] != "WEBVTT" {
		t.Errorf("file bodies = %q", got)
	}

	// the sink must not hold the files open; removal works everywhere only once closed
	if err := os.Remove(video); err != nil {
		t.Errorf("remove after delivery: %v", err)
	}
}

func TestInteractionSink_DeliverLink(t *testing.T) {
	api := &fakeAPI{}
	sink := newInteractionSink(api, commandInteraction(commandFetch))

	err := sink.Deliver(context.Background(), domain.Message{
		Text: "Video (600 MB) uploaded to pixeldrain, permanent:",
		Link: "https://pixeldrain.com/u/abc",
	})
	if err != nil {
		t.Fatal(err)
	}

	want := "Video (600 MB) uploaded to pixeldrain, permanent: https://pixeldrain.com/u/abc"
	if got := api.followups[0].Content; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestInteractionSink_DeliverMissingFile(t *testing.T) {
	api := &fakeAPI{}
	sink := newInteractionSink(api, commandInteraction(commandFetch))

	err := sink.Deliver(context.Background(), domain.Message{Files: []domain.Attachment{
		{Name: "gone.mp4", Path: filepath.Join(t.TempDir(), "gone.mp4")},
	}})
	if !errors.Is(err, domain.ErrDelivery) {
		t.Errorf("error = %v, want ErrDelivery", err)
	}
	if len(api.followups) != 0 {
		t.Error("nothing should be sent when a file cannot be opened")
	}
}

func TestInteractionSink_DeliverError(t *testing.T) {
	api := &fakeAPI{followupErr: errors.New("413 request entity too large")}
	sink := newInteractionSink(api, commandInteraction(commandFetch))

	if err := sink.Deliver(context.Background(), domain.Message{Text: "hi"}); err == nil {
		t.Error("expected error from failed followup")
	}
}

func TestMessageContent(t *testing.T) {
	tests := []struct {
		name string
		msg  domain.Message
		want string
	}{
		{"text only", domain.Message{Text: "done"}, "done"},
		{"link only", domain.Message{Link: "https://x/y"}, "https://x/y"},
		{"link already in text", domain.Message{Text: "see https://x/y", Link: "https://x/y"}, "see https://x/y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := messageContent(tt.msg); got != tt.want {
				t.Errorf("messageContent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	short := "fine"
	if truncate(short) != short {
		t.Error("short text should be unchanged")
	}

	long := strings.Repeat("é", maxContentLength)
	got := truncate(long)
	if len(got) > maxContentLength {
		t.Errorf("len = %d, want <= %d", len(got), maxContentLength)
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("truncated text should end with ellipsis")
	}
	if !strings.HasPrefix(got, "é") || strings.ContainsRune(got, '�') {
		t.Error("truncation should not split a rune")
	}
}

// =============================================================================
// Handlers
// =============================================================================

func TestHandleFetch_AcknowledgesAndQueues(t *testing.T) {
	api := &fakeAPI{}
	queue := &fakeQueue{}
	bctx := &BotContext{Logger: testLogger(), Queue: queue}

	i := commandInteraction(commandFetch, stringOpt(optionURL, "https://example.com/v"), stringOpt(optionQuality, "480p"))
	bctx.handleInteraction(api, i)

	if len(api.responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(api.responses))
	}
	resp := api.responses[0]
	if resp.Data.Content != ackText || resp.Data.Flags != discordgo.MessageFlagsEphemeral {
		t.Errorf("ack = %+v", resp.Data)
	}

	if len(queue.reqs) != 1 {
		t.Fatalf("queued = %d, want 1", len(queue.reqs))
	}
	if queue.reqs[0].URL != "https://example.com/v" || queue.reqs[0].RequestedQuality != "480p" {
		t.Errorf("request = %+v", queue.reqs[0])
	}
	if _, ok := queue.sinks[0].(*interactionSink); !ok {
		t.Errorf("sink = %T, want *interactionSink", queue.sinks[0])
	}
}

func TestHandleFetch_FreeFormQuality(t *testing.T) {
	api := &fakeAPI{}
	queue := &fakeQueue{}
	bctx := &BotContext{Logger: testLogger(), Queue: queue}

	i := commandInteraction(commandFetch, stringOpt(optionURL, "https://example.com/v"), stringOpt(optionQuality, "360"))
	bctx.handleInteraction(api, i)

	if len(queue.reqs) != 1 {
		t.Fatalf("queued = %d, want 1", len(queue.reqs))
	}
	if got := queue.reqs[0].RequestedQuality; got != "360" {
		t.Errorf("RequestedQuality = %q, want 360", got)
	}
}

func TestHandleAutocomplete_SuggestsQualities(t *testing.T) {
	api := &fakeAPI{}
	queue := &fakeQueue{}
	bctx := &BotContext{Logger: testLogger(), Queue: queue}

	typed := stringOpt(optionQuality, "48")
	typed.Focused = true
	i := commandInteraction(commandFetch, stringOpt(optionURL, "https://example.com/v"), typed)
	i.Type = discordgo.InteractionApplicationCommandAutocomplete
	bctx.handleInteraction(api, i)

	if len(queue.reqs) != 0 {
		t.Error("autocomplete must not queue a fetch")
	}
	if len(api.responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(api.responses))
	}
	resp := api.responses[0]
	if resp.Type != discordgo.InteractionApplicationCommandAutocompleteResult {
		t.Errorf("response type = %v, want autocomplete result", resp.Type)
	}
	if len(resp.Data.Choices) != 1 || resp.Data.Choices[0].Value != "480p" {
		t.Errorf("choices = %+v", resp.Data.Choices)
	}
}

func TestHandleFetch_QueueFull(t *testing.T) {
	api := &fakeAPI{}
	bctx := &BotContext{Logger: testLogger(), Queue: &fakeQueue{err: domain.ErrQueueFull}}

	bctx.handleInteraction(api, commandInteraction(commandFetch, stringOpt(optionURL, "https://example.com/v")))

	if !strings.Contains(api.lastEdit(), "busy") {
		t.Errorf("edit = %q, want busy message", api.lastEdit())
	}
}

func TestHandleFetch_MissingURL(t *testing.T) {
	api := &fakeAPI{}
	queue := &fakeQueue{}
	bctx := &BotContext{Logger: testLogger(), Queue: queue}

	bctx.handleInteraction(api, commandInteraction(commandFetch))

	if len(queue.reqs) != 0 {
		t.Error("nothing should be queued without a url")
	}
	if len(api.responses) != 1 || !strings.Contains(api.responses[0].Data.Content, "video link") {
		t.Errorf("responses = %+v", api.responses)
	}
}

func TestHandleFetch_AckFailureSkipsQueue(t *testing.T) {
	api := &fakeAPI{respondErr: errors.New("unknown interaction")}
	queue := &fakeQueue{}
	bctx := &BotContext{Logger: testLogger(), Queue: queue}

	bctx.handleInteraction(api, commandInteraction(commandFetch, stringOpt(optionURL, "https://example.com/v")))

	if len(queue.reqs) != 0 {
		t.Error("request should not be queued when the interaction is gone")
	}
}

func TestHandleFormats(t *testing.T) {
	api := &fakeAPI{}
	formats := &fakeFormats{text: "Available qualities:\n- 720p (12 MB, attachment)", url: make(chan string, 1)}
	bctx := &BotContext{Logger: testLogger(), Formats: formats, FormatsTimeout: time.Second}

	bctx.handleInteraction(api, commandInteraction(commandFormats, stringOpt(optionURL, "https://example.com/v")))

	if got := <-formats.url; got != "https://example.com/v" {
		t.Errorf("url = %q", got)
	}
	waitFor(t, func() bool { return api.lastEdit() != "" })

	if api.responses[0].Type != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Errorf("response type = %v, want deferred", api.responses[0].Type)
	}
	if api.lastEdit() != formats.text {
		t.Errorf("edit = %q", api.lastEdit())
	}
}

func TestHandleFormats_Error(t *testing.T) {
	api := &fakeAPI{}
	formats := &fakeFormats{err: domain.ErrResolution, url: make(chan string, 1)}
	bctx := &BotContext{Logger: testLogger(), Formats: formats, FormatsTimeout: time.Second}

	bctx.handleInteraction(api, commandInteraction(commandFormats, stringOpt(optionURL, "https://example.com/v")))

	<-formats.url
	waitFor(t, func() bool { return api.lastEdit() != "" })

	if !strings.Contains(api.lastEdit(), "Could not read that video") {
		t.Errorf("edit = %q", api.lastEdit())
	}
}

func TestHandleInteraction_IgnoresOtherTypes(t *testing.T) {
	api := &fakeAPI{}
	bctx := &BotContext{Logger: testLogger(), Queue: &fakeQueue{}}

	bctx.handleInteraction(api, &discordgo.Interaction{Type: discordgo.InteractionPing})
	bctx.handleInteraction(api, commandInteraction("unknown"))

	if len(api.responses) != 0 {
		t.Errorf("responses = %d, want 0", len(api.responses))
	}
}

func TestNew_RequiresToken(t *testing.T) {
	if _, err := New("", BotContext{Logger: testLogger()}); err == nil {
		t.Error("expected error for empty token")
	}

	b, err := New("token", BotContext{Logger: testLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if b.bctx.FormatsTimeout != defaultFormatsTimeout {
		t.Errorf("FormatsTimeout = %v, want default", b.bctx.FormatsTimeout)
	}
}

func TestInteractionUserID(t *testing.T) {
	if id := interactionUserID(commandInteraction(commandFetch)); id != "user-1" {
		t.Errorf("guild user id = %q", id)
	}
	dm := &discordgo.Interaction{User: &discordgo.User{ID: "dm-user"}}
	if id := interactionUserID(dm); id != "dm-user" {
		t.Errorf("dm user id = %q", id)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
