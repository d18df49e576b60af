package delivery

import (
	"os"
	"path/filepath"
	"strings"
)

// subtitleFormats are tried in order next to the video file.
var subtitleFormats = []string{".vtt", ".srt"}

// FindSubtitle returns the subtitle file for lang written beside videoPath,
// as "{base}.{lang}.vtt" or "{base}.{lang}.srt". It returns "" when there is
// none; a missing track is not an error.
func FindSubtitle(videoPath, lang string) string {
	lang = strings.TrimSpace(lang)
	if videoPath == "" || lang == "" {
		return ""
	}

	base := strings.TrimSuffix(videoPath, filepath.Ext(videoPath))
	for _, ext := range subtitleFormats {
		candidate := base + "." + lang + ext
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}
