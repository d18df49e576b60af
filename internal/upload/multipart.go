package upload

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// maxResponseBody bounds how much of a host's reply is read.
const maxResponseBody = 64 << 10

type formField struct {
	name  string
	value string
}

// multipartFileBody streams a multipart form with fields followed by the file
// at path under fileField, without buffering the file in memory.
func multipartFileBody(path, fileField string, fields []formField) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeMultipart(writer, path, fileField, fields))
	}()

	return pr, writer.FormDataContentType()
}

func writeMultipart(writer *multipart.Writer, path, fileField string, fields []formField) error {
	for _, f := range fields {
		if err := writer.WriteField(f.name, f.value); err != nil {
			return fmt.Errorf("write %s field: %w", f.name, err)
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile(fileField, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy file: %w", err)
	}

	return writer.Close()
}

// readTextLink reads a plain-text URL reply, as returned by catbox-style hosts.
func readTextLink(resp *http.Response) (string, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	text := strings.TrimSpace(string(body))

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, text)
	}
	if !strings.HasPrefix(text, "http://") && !strings.HasPrefix(text, "https://") {
		return "", fmt.Errorf("unexpected response: %q", text)
	}
	return text, nil
}
