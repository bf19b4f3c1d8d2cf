package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds Bot API connection settings
type Config struct {
	APIURL  string
	Token   string
	Timeout time.Duration
}

// Client is a minimal Bot API client for status edits and media uploads
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger
}

// APIError is returned when the Bot API answers with ok=false
type APIError struct {
	Method      string
	StatusCode  int
	ErrorCode   int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (%d): %s", e.Method, e.StatusCode, e.Description)
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// AudioUpload describes a sendAudio call
type AudioUpload struct {
	ChatID    int64
	File      io.Reader
	FileName  string
	Thumbnail string // optional path to a JPEG
	Title     string
	Performer string
	Caption   string
	Duration  time.Duration
}

// VideoUpload describes a sendVideo call
type VideoUpload struct {
	ChatID            int64
	File              io.Reader
	FileName          string
	Thumbnail         string
	Caption           string
	Duration          time.Duration
	SupportsStreaming bool
}

// NewClient creates a Bot API client
func NewClient(config *Config, logger *slog.Logger) *Client {
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// EditMessageText replaces the text of a sent message
func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error {
	return c.postJSON(ctx, "editMessageText", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
		"parse_mode": "Markdown",
	})
}

// DeleteMessage removes a sent message
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return c.postJSON(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	})
}

// SendAudio uploads an audio file, streaming it from upload.File
func (c *Client) SendAudio(ctx context.Context, upload AudioUpload) error {
	fields := map[string]string{
		"chat_id":   strconv.FormatInt(upload.ChatID, 10),
		"title":     upload.Title,
		"performer": upload.Performer,
		"caption":   upload.Caption,
	}
	if upload.Duration > 0 {
		fields["duration"] = strconv.Itoa(int(upload.Duration.Seconds()))
	}

	return c.postMultipart(ctx, "sendAudio", fields, "audio", upload.FileName, upload.File, upload.Thumbnail)
}

// SendVideo uploads a video file, streaming it from upload.File
func (c *Client) SendVideo(ctx context.Context, upload VideoUpload) error {
	fields := map[string]string{
		"chat_id":            strconv.FormatInt(upload.ChatID, 10),
		"caption":            upload.Caption,
		"supports_streaming": strconv.FormatBool(upload.SupportsStreaming),
	}
	if upload.Duration > 0 {
		fields["duration"] = strconv.Itoa(int(upload.Duration.Seconds()))
	}

	return c.postMultipart(ctx, "sendVideo", fields, "video", upload.FileName, upload.File, upload.Thumbnail)
}

func (c *Client) methodURL(method string) string {
	return strings.TrimRight(c.config.APIURL, "/") + "/bot" + c.config.Token + "/" + method
}

func (c *Client) postJSON(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, method)
}

// postMultipart streams the file part through a pipe so large uploads are never buffered
func (c *Client) postMultipart(ctx context.Context, method string, fields map[string]string, fileField, fileName string, file io.Reader, thumbnail string) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeParts(mw, fields, fileField, fileName, file, thumbnail))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), pr)
	if err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	err = c.do(req, method)
	// unblock the writer if the request ended before the body was consumed
	pr.CloseWithError(io.ErrClosedPipe)
	return err
}

func writeParts(mw *multipart.Writer, fields map[string]string, fileField, fileName string, file io.Reader, thumbnail string) error {
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := mw.WriteField(key, value); err != nil {
			return err
		}
	}

	if thumbnail != "" {
		if err := copyFilePart(mw, "thumbnail", thumbnail); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile(fileField, fileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}

	return mw.Close()
}

func copyFilePart(mw *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", field, err)
	}
	defer f.Close()

	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

func (c *Client) do(req *http.Request, method string) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode telegram %s response (status %d): %w", method, resp.StatusCode, err)
	}

	if !result.OK {
		return &APIError{
			Method:      method,
			StatusCode:  resp.StatusCode,
			ErrorCode:   result.ErrorCode,
			Description: result.Description,
		}
	}

	c.logger.Debug("Telegram call succeeded",
		slog.String("method", method),
	)

	return nil
}
