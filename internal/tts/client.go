// Package tts talks to the speech synthesis HTTP service. Synthesis is a
// two-step exchange: a multipart POST that returns the MP3's relative URL,
// then polling that URL until the file is rendered.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/anqingli/tingshu/internal/domain"
	"github.com/anqingli/tingshu/internal/infra/config"
	"github.com/anqingli/tingshu/internal/infra/logger"
)

const (
	synthesizeTimeout = 120 * time.Second
	pollTimeout       = 60 * time.Second
)

type Client struct {
	httpClient       *http.Client
	pollClient       *http.Client
	apiURL           string
	apiKey           string
	speakerAudioPath string
	params           SynthesisParams
	pollAttempts     int
	pollInterval     time.Duration
	log              *logger.Logger
}

// Result is a finished synthesis: the rendered MP3 and, when the server
// reports it, the audio duration in seconds.
type Result struct {
	Audio    []byte
	Duration *int
}

type synthesizeResponse struct {
	MP3URL   string `json:"mp3_url"`
	Duration *int   `json:"duration"`
}

func NewClient(cfg config.TTSConfig, log *logger.Logger) (*Client, error) {
	params, err := LoadParams(cfg.ProfilePath)
	if err != nil {
		return nil, err
	}

	return &Client{
		httpClient:       &http.Client{Timeout: synthesizeTimeout},
		pollClient:       &http.Client{Timeout: pollTimeout},
		apiURL:           cfg.APIURL,
		apiKey:           cfg.APIKey,
		speakerAudioPath: cfg.SpeakerAudioPath,
		params:           params,
		pollAttempts:     cfg.PollAttempts,
		pollInterval:     time.Duration(cfg.PollInterval) * time.Second,
		log:              log,
	}, nil
}

// Synthesize renders the given text as speech in the configured speaker's
// voice and returns the MP3 bytes.
func (c *Client) Synthesize(ctx context.Context, text string) (*Result, error) {
	body, contentType, err := c.buildRequestBody(text)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("synthesis request returned status %d", resp.StatusCode)
	}

	var payload synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode synthesis response: %w", err)
	}
	if payload.MP3URL == "" {
		return nil, domain.ErrMissingMP3URL
	}

	audio, err := c.pollMP3(ctx, payload.MP3URL)
	if err != nil {
		return nil, err
	}

	return &Result{Audio: audio, Duration: payload.Duration}, nil
}

func (c *Client) buildRequestBody(text string) (io.Reader, string, error) {
	speaker, err := os.Open(c.speakerAudioPath)
	if err != nil {
		return nil, "", fmt.Errorf("could not open speaker audio: %w", err)
	}
	defer speaker.Close()

	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)

	if err := mw.WriteField("text", text); err != nil {
		return nil, "", err
	}
	for field, value := range c.params.FormFields() {
		if err := mw.WriteField(field, value); err != nil {
			return nil, "", err
		}
	}

	part, err := mw.CreateFormFile("speaker_audio", "speaker.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, speaker); err != nil {
		return nil, "", fmt.Errorf("could not read speaker audio: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}

	return buf, mw.FormDataContentType(), nil
}

// pollMP3 fetches the rendered MP3, waiting out 202 responses with a linear
// backoff (interval, 2x interval, 3x interval, ...).
func (c *Client) pollMP3(ctx context.Context, mp3URL string) ([]byte, error) {
	fullURL, err := c.resolveMP3URL(mp3URL)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.pollClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("mp3 poll failed: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			audio, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to read mp3 body: %w", err)
			}
			return audio, nil
		case resp.StatusCode == http.StatusAccepted:
			resp.Body.Close()
			c.log.Debug("mp3 not ready yet, attempt %d/%d", attempt+1, c.pollAttempts)
			wait := c.pollInterval * time.Duration(attempt+1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		default:
			resp.Body.Close()
			return nil, fmt.Errorf("mp3 poll returned status %d", resp.StatusCode)
		}
	}

	return nil, domain.ErrMP3NotReady
}

// resolveMP3URL resolves the (usually relative) mp3 URL against the API URL.
func (c *Client) resolveMP3URL(mp3URL string) (string, error) {
	base, err := url.Parse(c.apiURL)
	if err != nil {
		return "", fmt.Errorf("invalid api url: %w", err)
	}
	ref, err := url.Parse(mp3URL)
	if err != nil {
		return "", fmt.Errorf("invalid mp3 url %q: %w", mp3URL, err)
	}
	return base.ResolveReference(ref).String(), nil
}
