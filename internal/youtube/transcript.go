package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	RE_YOUTUBE        = `(?:youtube\.com\/(?:[^\/]+\/.+\/|(?:v|e(?:mbed)?)\/|.*[?&]v=)|youtu\.be\/)([^"&?\/\s]{11})`
	RE_XML_TRANSCRIPT = `<text start="([^"]*)" dur="([^"]*)">([^<]*)<\/text>`

	// cap on page and transcript bodies
	maxBodyBytes = 8 << 20
)

var (
	youtubeRe    = regexp.MustCompile(RE_YOUTUBE)
	transcriptRe = regexp.MustCompile(RE_XML_TRANSCRIPT)
	titleRe      = regexp.MustCompile(`<title>(.+?) - YouTube</title>`)
)

type TranscriptResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Offset   float64 `json:"offset"`
	Lang     string  `json:"lang"`
}

type YoutubeTranscript struct {
	client  *http.Client
	baseURL string
}

func New() *YoutubeTranscript {
	return NewWithClient(&http.Client{Timeout: 15 * time.Second}, "https://www.youtube.com")
}

// NewWithClient points the fetcher at another watch-page host, e.g. a test server.
func NewWithClient(client *http.Client, baseURL string) *YoutubeTranscript {
	return &YoutubeTranscript{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// GetTranscript returns the video's captions joined into one passage.
// An empty lang takes the first caption track.
func (yt *YoutubeTranscript) GetTranscript(ctx context.Context, url string, lang string) (string, error) {
	videoId, err := retrieveVideoId(url)
	if err != nil {
		return "", err
	}

	transcripts, title, err := yt.fetchTranscript(ctx, videoId, lang)
	if err != nil {
		return "", err
	}
	log.Printf("INFO: Fetched %d transcript lines for video %s (%q)", len(transcripts), videoId, title)

	// Combine all transcript texts into one string
	var fullText strings.Builder
	for _, t := range transcripts {
		fullText.WriteString(html.UnescapeString(t.Text))
		fullText.WriteString(" ")
	}

	return strings.TrimSpace(fullText.String()), nil
}

func (yt *YoutubeTranscript) fetchTranscript(ctx context.Context, videoId string, lang string) ([]TranscriptResponse, string, error) {
	videoPageBody, err := yt.get(ctx, fmt.Sprintf("%s/watch?v=%s", yt.baseURL, videoId))
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch video page: %w", err)
	}

	var videoTitle string
	if titleMatch := titleRe.FindSubmatch(videoPageBody); len(titleMatch) > 1 {
		videoTitle = html.UnescapeString(string(titleMatch[1]))
	}

	splittedHTML := strings.Split(string(videoPageBody), `"captions":`)
	if len(splittedHTML) <= 1 {
		log.Printf("DEBUG: Could not find '\"captions\":' marker in video page HTML for video %s. HTML snippet near expected location: %s", videoId, getHTMLSnippet(string(videoPageBody), `"captions":`))
		return nil, "", fmt.Errorf("no captions available for video %s", videoId)
	}

	var captions struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []struct {
				BaseURL      string `json:"baseUrl"`
				LanguageCode string `json:"languageCode"`
			} `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	}

	end := strings.Index(splittedHTML[1], ",\"videoDetails")
	if end < 0 {
		return nil, "", fmt.Errorf("unexpected video page layout for video %s", videoId)
	}
	captionsData := splittedHTML[1][:end]
	if err := json.Unmarshal([]byte(captionsData), &captions); err != nil {
		return nil, "", fmt.Errorf("failed to parse captions data: %w", err)
	}

	tracks := captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		log.Printf("DEBUG: Parsed captions data for video %s, but CaptionTracks array is empty. Captions JSON: %s", videoId, captionsData)
		return nil, "", fmt.Errorf("no transcripts available for video %s", videoId)
	}

	transcriptURL := tracks[0].BaseURL
	if lang != "" {
		transcriptURL = ""
		for _, track := range tracks {
			if track.LanguageCode == lang {
				transcriptURL = track.BaseURL
				break
			}
		}
		if transcriptURL == "" {
			return nil, "", fmt.Errorf("no transcript available in language %s", lang)
		}
	}

	transcriptBody, err := yt.get(ctx, transcriptURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch transcript: %w", err)
	}

	matches := transcriptRe.FindAllStringSubmatch(string(transcriptBody), -1)
	results := make([]TranscriptResponse, 0, len(matches))
	for _, match := range matches {
		duration, _ := strconv.ParseFloat(match[2], 64)
		offset, _ := strconv.ParseFloat(match[1], 64)
		results = append(results, TranscriptResponse{
			Text:     match[3],
			Duration: duration,
			Offset:   offset,
			Lang:     lang,
		})
	}
	if len(results) == 0 {
		return nil, "", fmt.Errorf("transcript for video %s is empty", videoId)
	}

	return results, videoTitle, nil
}

func (yt *YoutubeTranscript) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := yt.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Host)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

func retrieveVideoId(url string) (string, error) {
	if len(url) == 11 {
		return url, nil
	}
	match := youtubeRe.FindStringSubmatch(url)
	if match != nil {
		return match[1], nil
	}
	return "", fmt.Errorf("invalid YouTube URL or video ID")
}

// Helper function to get a snippet of HTML around a search term
func getHTMLSnippet(htmlContent string, searchTerm string) string {
	index := strings.Index(htmlContent, searchTerm)
	start := 0
	if index > 200 {
		start = index - 200
	}
	end := len(htmlContent)
	if index != -1 && index+len(searchTerm)+200 < len(htmlContent) {
		end = index + len(searchTerm) + 200
	} else if index == -1 && 400 < len(htmlContent) {
		end = 400
	}

	snippet := htmlContent[start:end]
	if index == -1 {
		return fmt.Sprintf("[Search term '%s' not found] Start of HTML: %s...", searchTerm, snippet)
	}
	return fmt.Sprintf("...HTML around '%s': %s...", searchTerm, snippet)
}
