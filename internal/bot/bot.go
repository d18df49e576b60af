package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/iconidentify/tubefetch/internal/service"
)

const (
	ackText               = "Downloading video, please wait..."
	defaultFormatsTimeout = 45 * time.Second
)

// Bot connects the Discord gateway to the fetch queue.
type Bot struct {
	bctx    BotContext
	session *discordgo.Session
}

// New creates a bot for the given token. It does not connect.
func New(token string, bctx BotContext) (*Bot, error) {
	if token == "" {
		return nil, errors.New("discord token is required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	if bctx.FormatsTimeout <= 0 {
		bctx.FormatsTimeout = defaultFormatsTimeout
	}

	b := &Bot{bctx: bctx, session: session}
	session.AddHandler(b.onInteractionCreate)
	return b, nil
}

// Open connects to the gateway and registers the slash commands.
func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}

	appID := b.session.State.User.ID
	registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.bctx.GuildID, Commands())
	if err != nil {
		b.session.Close()
		return fmt.Errorf("register commands: %w", err)
	}

	b.bctx.Logger.Info("discord bot connected",
		"user", b.session.State.User.Username,
		"guild_id", b.bctx.GuildID,
		"commands", len(registered),
	)
	return nil
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	return b.session.Close()
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.bctx.handleInteraction(s, i.Interaction)
}

func (c *BotContext) handleInteraction(api interactionAPI, i *discordgo.Interaction) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
	case discordgo.InteractionApplicationCommandAutocomplete:
		c.handleAutocomplete(api, i)
		return
	default:
		return
	}

	data := i.ApplicationCommandData()
	switch data.Name {
	case commandFetch:
		c.handleFetch(api, i, data.Options)
	case commandFormats:
		c.handleFormats(api, i, data.Options)
	default:
		c.Logger.Warn("unknown command", "command", data.Name)
	}
}

func (c *BotContext) handleAutocomplete(api interactionAPI, i *discordgo.Interaction) {
	data := i.ApplicationCommandData()
	opt := focusedOption(data.Options)
	if data.Name != commandFetch || opt == nil || opt.Name != optionQuality {
		return
	}

	err := api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: qualityCompletions(opt.StringValue())},
	})
	if err != nil {
		c.Logger.Debug("failed to send quality suggestions", "error", err)
	}
}

func (c *BotContext) handleFetch(api interactionAPI, i *discordgo.Interaction, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	parsed, err := parseFetchOptions(opts)
	if err != nil {
		c.respondEphemeral(api, i, service.UserMessage(err))
		return
	}

	req := parsed.request()
	logger := c.Logger.With("request_id", req.ID, "user_id", interactionUserID(i))

	if err := c.respondEphemeral(api, i, ackText); err != nil {
		return
	}

	if _, err := c.Queue.Submit(context.Background(), req, newInteractionSink(api, i)); err != nil {
		logger.Warn("fetch rejected", "error", err)
		c.editResponse(api, i, service.UserMessage(err))
		return
	}

	logger.Info("fetch accepted", "url", req.URL, "quality", req.RequestedQuality)
}

func (c *BotContext) handleFormats(api interactionAPI, i *discordgo.Interaction, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	url := optionString(opts, optionURL)

	err := api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		c.Logger.Error("failed to defer formats response", "error", err)
		return
	}

	// resolution can take longer than the interaction deadline allows
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.FormatsTimeout)
		defer cancel()

		text, err := c.Formats.Formats(ctx, url)
		if err != nil {
			c.Logger.Warn("formats lookup failed", "url", url, "error", err)
			text = service.UserMessage(err)
		}
		c.editResponse(api, i, text)
	}()
}

func (c *BotContext) respondEphemeral(api interactionAPI, i *discordgo.Interaction, text string) error {
	err := api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: truncate(text),
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		c.Logger.Error("failed to respond to interaction", "error", err)
	}
	return err
}

func (c *BotContext) editResponse(api interactionAPI, i *discordgo.Interaction, text string) {
	content := truncate(text)
	if _, err := api.InteractionResponseEdit(i, &discordgo.WebhookEdit{Content: &content}); err != nil {
		c.Logger.Error("failed to edit interaction response", "error", err)
	}
}

func interactionUserID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
