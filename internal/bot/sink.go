package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/iconidentify/tubefetch/internal/domain"
)

// maxContentLength is Discord's limit on message content.
const maxContentLength = 2000

// interactionAPI is the part of *discordgo.Session the bot talks to.
type interactionAPI interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// interactionSink routes one request's messages back to the interaction
// that started it. Progress edits the ephemeral acknowledgement; the terminal
// message is a public followup in the channel.
type interactionSink struct {
	api         interactionAPI
	interaction *discordgo.Interaction
}

func newInteractionSink(api interactionAPI, interaction *discordgo.Interaction) *interactionSink {
	return &interactionSink{api: api, interaction: interaction}
}

// Progress replaces the acknowledgement text.
func (s *interactionSink) Progress(ctx context.Context, text string) error {
	content := truncate(text)
	_, err := s.api.InteractionResponseEdit(s.interaction, &discordgo.WebhookEdit{
		Content: &content,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("edit response: %w", err)
	}
	return nil
}

// Deliver posts the terminal message with any attachments.
func (s *interactionSink) Deliver(ctx context.Context, msg domain.Message) error {
	files, closeFiles, err := openAttachments(msg.Files)
	if err != nil {
		return err
	}
	defer closeFiles()

	_, err = s.api.FollowupMessageCreate(s.interaction, true, &discordgo.WebhookParams{
		Content: messageContent(msg),
		Files:   files,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send followup: %w", err)
	}
	return nil
}

// messageContent joins the text and link of msg.
func messageContent(msg domain.Message) string {
	content := msg.Text
	if msg.Link != "" && !strings.Contains(content, msg.Link) {
		if content != "" {
			content += " "
		}
		content += msg.Link
	}
	return truncate(content)
}

func truncate(s string) string {
	if len(s) <= maxContentLength {
		return s
	}
	cut := maxContentLength - len("...")
	// back off to a rune boundary
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func openAttachments(attachments []domain.Attachment) ([]*discordgo.File, func(), error) {
	files := make([]*discordgo.File, 0, len(attachments))
	opened := make([]*os.File, 0, len(attachments))

	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	for _, a := range attachments {
		f, err := os.Open(a.Path)
		if err != nil {
			closeAll()
			return nil, func() {}, errors.Join(domain.ErrDelivery, fmt.Errorf("open attachment %s: %w", a.Name, err))
		}
		opened = append(opened, f)
		files = append(files, &discordgo.File{
			Name:        a.Name,
			ContentType: contentType(a.Name),
			Reader:      f,
		})
	}
	return files, closeAll, nil
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".mp4"):
		return "video/mp4"
	case strings.HasSuffix(name, ".webm"):
		return "video/webm"
	case strings.HasSuffix(name, ".mkv"):
		return "video/x-matroska"
	case strings.HasSuffix(name, ".vtt"):
		return "text/vtt"
	case strings.HasSuffix(name, ".srt"):
		return "application/x-subrip"
	default:
		return "application/octet-stream"
	}
}
