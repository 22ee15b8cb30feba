// Package notify posts operational events to a Discord webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

const (
	ColorGreen = 0x00FF00
	ColorBlue  = 0x3498DB
	ColorRed   = 0xFF0000
)

// Discord Embed Structures (based on documentation)
type EmbedFooter struct {
	Text    string `json:"text,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"` // ISO8601 timestamp
	Color       int          `json:"color,omitempty"`     // Decimal color code
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

// WebhookPayload is the structure Discord expects for webhook requests with embeds
type WebhookPayload struct {
	Username string  `json:"username,omitempty"`
	Content  string  `json:"content,omitempty"`
	Embeds   []Embed `json:"embeds"`
}

// Discord sends embeds to one webhook. The zero URL disables it.
type Discord struct {
	url      string
	username string
	client   *http.Client
	wg       sync.WaitGroup
}

func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		url:      webhookURL,
		username: "StudyHub Notifier",
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (d *Discord) Enabled() bool { return d != nil && d.url != "" }

// Notify sends embed in the background so request handling never waits on Discord.
func (d *Discord) Notify(embed Embed) {
	if !d.Enabled() {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.client.Timeout)
		defer cancel()
		if err := d.Send(ctx, embed); err != nil {
			log.Printf("ERROR: Failed to send Discord embed notification: %v", err)
			return
		}
		log.Printf("INFO: Sent Discord embed notification: %s", embed.Title)
	}()
}

// Wait blocks until background notifications have finished.
func (d *Discord) Wait() {
	if d != nil {
		d.wg.Wait()
	}
}

func (d *Discord) Send(ctx context.Context, embed Embed) error {
	if !d.Enabled() {
		return nil
	}
	if embed.Timestamp == "" {
		embed.Timestamp = time.Now().Format(time.RFC3339)
	}

	jsonPayload, err := json.Marshal(WebhookPayload{Username: d.username, Embeds: []Embed{embed}})
	if err != nil {
		return fmt.Errorf("failed to marshal Discord embed payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(jsonPayload))
	if err != nil {
		return fmt.Errorf("failed to create Discord embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("discord webhook returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}
