package bot

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/iconidentify/tubefetch/internal/domain"
	"github.com/iconidentify/tubefetch/internal/service"
)

const (
	commandFetch   = "fetch"
	commandFormats = "formats"

	optionURL       = "url"
	optionQuality   = "quality"
	optionSubtitles = "subtitles"
	optionLanguage  = "language"
)

// maxChoices is the most suggestions Discord accepts for one option.
const maxChoices = 25

// qualitySuggestions are offered while typing; any other value is accepted.
var qualitySuggestions = []string{
	"best", "2160p", "1440p", "1080p", "720p", "480p", "360p", "240p", "144p", "worst",
}

// Commands returns the slash commands the bot registers.
func Commands() []*discordgo.ApplicationCommand {
	urlOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        optionURL,
		Description: "Video page URL",
		Required:    true,
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        commandFetch,
			Description: "Download a video and post it here",
			Options: []*discordgo.ApplicationCommandOption{
				urlOption,
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         optionQuality,
					Description:  "Preferred quality such as 720p, 360 or best (default best)",
					Autocomplete: true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        optionSubtitles,
					Description: "Attach subtitles when available",
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optionLanguage,
					Description: "Subtitle language code (default en)",
				},
			},
		},
		{
			Name:        commandFormats,
			Description: "List the qualities and subtitles available for a video",
			Options:     []*discordgo.ApplicationCommandOption{urlOption},
		},
	}
}

// fetchOptions are the parsed arguments of /fetch.
type fetchOptions struct {
	URL       string
	Quality   string
	Subtitles bool
	Language  string
}

func parseFetchOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) (fetchOptions, error) {
	parsed := fetchOptions{Quality: "best"}

	for _, opt := range opts {
		switch opt.Name {
		case optionURL:
			parsed.URL = strings.TrimSpace(opt.StringValue())
		case optionQuality:
			if q := strings.TrimSpace(opt.StringValue()); q != "" {
				parsed.Quality = q
			}
		case optionSubtitles:
			parsed.Subtitles = opt.BoolValue()
		case optionLanguage:
			parsed.Language = strings.TrimSpace(opt.StringValue())
		}
	}

	if parsed.URL == "" {
		return parsed, fmt.Errorf("%w: missing %s option", domain.ErrInvalidURL, optionURL)
	}
	// asking for a language implies wanting subtitles
	if parsed.Language != "" {
		parsed.Subtitles = true
	}
	return parsed, nil
}

func (o fetchOptions) request() domain.DownloadRequest {
	return service.NewRequest(o.URL, o.Quality, o.Subtitles, o.Language)
}

// qualityCompletions suggests qualities starting with what the user typed.
func qualityCompletions(typed string) []*discordgo.ApplicationCommandOptionChoice {
	typed = strings.ToLower(strings.TrimSpace(typed))

	choices := []*discordgo.ApplicationCommandOptionChoice{}
	for _, q := range qualitySuggestions {
		if !strings.HasPrefix(q, typed) {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: q, Value: q})
		if len(choices) == maxChoices {
			break
		}
	}
	return choices
}

func focusedOption(opts []*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range opts {
		if opt.Focused {
			return opt
		}
	}
	return nil
}

func optionString(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range opts {
		if opt.Name == name {
			return strings.TrimSpace(opt.StringValue())
		}
	}
	return ""
}
