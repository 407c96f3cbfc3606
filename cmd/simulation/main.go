package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/fatih/color"
)

// Simplified DTOs for the script
type evidence struct {
	SourceURL      string  `json:"source_url"`
	AuthorityScore float64 `json:"authority_score"`
	Excerpt        string  `json:"excerpt"`
}

type record struct {
	Kind         string         `json:"kind"`
	QualityScore float64        `json:"quality_score"`
	Payload      map[string]any `json:"payload"`
	Evidence     []evidence     `json:"evidence"`
}

type writeSessionRequest struct {
	SessionID     string            `json:"session_id"`
	DestinationID string            `json:"destination_id"`
	CreatedAt     time.Time         `json:"created_at"`
	Records       map[string]record `json:"records"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// runs replays two producer runs for one destination: the second improves the
// cruise theme and adds a nuance, so the engine should cut version 2.
func runs(dest string, start time.Time) []writeSessionRequest {
	first := writeSessionRequest{
		SessionID:     start.UTC().Format("session_20060102_150405"),
		DestinationID: dest,
		CreatedAt:     start,
		Records: map[string]record{
			"sunset-cruise": {
				Kind:         "theme",
				QualityScore: 0.6,
				Payload:      map[string]any{"title": "Sunset cruise", "departs": "Ammoudi"},
				Evidence: []evidence{
					{SourceURL: "https://www.greeka.com/cyclades/santorini/cruises", AuthorityScore: 0.7, Excerpt: "Catamarans leave Ammoudi bay at dusk."},
					{SourceURL: "https://www.lonelyplanet.com/greece/santorini", AuthorityScore: 0.9, Excerpt: "Book the sunset sail a day ahead."},
				},
			},
			"caldera-hike": {
				Kind:         "theme",
				QualityScore: 0.75,
				Payload:      map[string]any{"title": "Fira to Oia hike", "km": 10},
				Evidence: []evidence{
					{SourceURL: "https://www.alltrails.com/trail/greece/santorini", AuthorityScore: 0.6, Excerpt: "Start early to avoid the heat."},
				},
			},
		},
	}
	second := writeSessionRequest{
		SessionID:     start.Add(24 * time.Hour).UTC().Format("session_20060102_150405"),
		DestinationID: dest,
		CreatedAt:     start.Add(24 * time.Hour),
		Records: map[string]record{
			"sunset-cruise": {
				Kind:         "theme",
				QualityScore: 0.8,
				Payload:      map[string]any{"title": "Sunset catamaran cruise", "departs": "Vlychada"},
				Evidence: []evidence{
					{SourceURL: "https://www.tripadvisor.com/Attractions-santorini", AuthorityScore: 0.6, Excerpt: "Hot springs stop included in most tours."},
				},
			},
			"cash-only-tavernas": {
				Kind:         "nuance",
				QualityScore: 0.55,
				Payload:      map[string]any{"note": "Village tavernas in Pyrgos often take cash only"},
			},
		},
	}
	return []writeSessionRequest{first, second}
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "travel-intel base URL")
	dest := flag.String("destination", "Santorini, Greece", "destination to simulate")
	flag.Parse()

	color.Cyan("🚀 Simulating producer runs for %s\n", *dest)

	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, req := range runs(*dest, start) {
		color.Yellow("\n[PRODUCER] %d. Writing %s (%d records)", i+1, req.SessionID, len(req.Records))
		env, status, err := call(http.MethodPost, *baseURL+"/api/session/v1", req)
		if err != nil {
			log.Fatalf("Failed to write session: %v", err)
		}
		report(status, env)
	}

	// The consumer consolidates on SESSION_WRITTEN; give it a moment.
	time.Sleep(500 * time.Millisecond)

	path := *baseURL + "/api/dataset/v1/" + url.PathEscape(*dest)
	color.Yellow("\n[ENGINE] Forcing a consolidation run")
	env, status, err := call(http.MethodPost, path+"/consolidate", nil)
	if err != nil {
		log.Fatalf("Failed to consolidate: %v", err)
	}
	report(status, env)

	color.Yellow("\n[EXPORT] Latest dataset manifest")
	env, status, err = call(http.MethodGet, path+"/manifests", nil)
	if err != nil {
		log.Fatalf("Failed to read manifests: %v", err)
	}
	report(status, env)
	printJSON(env.Data)

	color.Yellow("\n[EXPORT] Diff history")
	env, status, err = call(http.MethodGet, path+"/history?limit=5", nil)
	if err != nil {
		log.Fatalf("Failed to read history: %v", err)
	}
	report(status, env)
	printJSON(env.Data)
}

func call(method, target string, body any) (*envelope, int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return &env, resp.StatusCode, nil
}

func report(status int, env *envelope) {
	if status >= 300 {
		color.Red("Status: %d %s", status, env.Message)
		return
	}
	color.Green("Status: %d %s", status, env.Message)
}

func printJSON(raw json.RawMessage) {
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(out.String())
}
