package accessory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxAudioBytes = 50 << 20

// Recognizer extracts text from a page image.
type Recognizer interface {
	Recognize(ctx context.Context, documentID string, page int, imageData string) (string, error)
}

// Synthesizer turns text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice VoiceConfig) ([]byte, error)
}

// TokenSource supplies the bearer token for collaborator calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type client struct {
	url    string
	http   *http.Client
	tokens TokenSource
}

func newClient(url string, timeout time.Duration, tokens TokenSource) client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return client{url: url, http: &http.Client{Timeout: timeout}, tokens: tokens}
}

func (c client) post(ctx context.Context, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return resp, nil
}

// OCRClient calls the OCR service: POST {note_id, page_number, image_data} -> {text}.
type OCRClient struct {
	client
}

// NewOCRClient creates an OCR client for url.
func NewOCRClient(url string, timeout time.Duration, tokens TokenSource) *OCRClient {
	return &OCRClient{client: newClient(url, timeout, tokens)}
}

// Recognize sends a base64 image data URL and returns the recognized text.
func (c *OCRClient) Recognize(ctx context.Context, documentID string, page int, imageData string) (string, error) {
	resp, err := c.post(ctx, map[string]any{
		"note_id":     documentID,
		"page_number": page,
		"image_data":  imageData,
	})
	if err != nil {
		return "", fmt.Errorf("accessory: ocr: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("accessory: ocr: decode response: %w", err)
	}
	return out.Text, nil
}

// SpeechClient calls the speech service: POST {text, voice_type, speaking_rate} -> audio bytes.
type SpeechClient struct {
	client
}

// NewSpeechClient creates a speech client for url.
func NewSpeechClient(url string, timeout time.Duration, tokens TokenSource) *SpeechClient {
	return &SpeechClient{client: newClient(url, timeout, tokens)}
}

// Synthesize returns the audio for text.
func (c *SpeechClient) Synthesize(ctx context.Context, text string, voice VoiceConfig) ([]byte, error) {
	resp, err := c.post(ctx, map[string]any{
		"text":          text,
		"voice_type":    voice.Voice,
		"speaking_rate": voice.Rate,
	})
	if err != nil {
		return nil, fmt.Errorf("accessory: speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("accessory: speech: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("accessory: speech: empty audio")
	}
	return audio, nil
}
