// Command mock_frontend drives a running server the way the web client
// does: it posts every audio file in a directory to the analysis API.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"samplemind/audio"
	"samplemind/features"
	"samplemind/models"
)

func main() {
	dir := flag.String("dir", "samples", "directory of audio files to post (ignored if -file is set)")
	file := flag.String("file", "", "single audio file to post (overrides -dir)")
	server := flag.String("url", "http://localhost:5000", "server base URL")
	kind := flag.String("ai", "", "request an AI analysis of this kind instead of plain features")
	depth := flag.String("depth", "standard", "analysis depth")
	delay := flag.Duration("delay", time.Second, "delay between requests when using -dir")
	flag.Parse()

	files, err := resolveFiles(*file, *dir)
	if err != nil {
		log.Fatalf("failed to resolve files: %v", err)
	}
	if len(files) == 0 {
		log.Fatalf("no audio files found (file=%s dir=%s)", *file, *dir)
	}

	fmt.Printf("Posting %d file(s) to %s\n\n", len(files), *server)
	for idx, path := range files {
		abs, err := filepath.Abs(path)
		if err != nil {
			log.Printf("skipping %s: %v\n", path, err)
			continue
		}
		fmt.Printf("→ %s\n", filepath.Base(path))
		if *kind != "" {
			err = postAI(*server, models.AIAnalyzeRequest{Path: abs, Depth: *depth, Kind: *kind})
		} else {
			err = postAnalyze(*server, models.AnalyzeRequest{Path: abs, Depth: *depth})
		}
		if err != nil {
			log.Printf("request failed for %s: %v\n", path, err)
		}

		if idx < len(files)-1 && *delay > 0 {
			time.Sleep(*delay)
		}
	}
}

func resolveFiles(single, dir string) ([]string, error) {
	if single != "" {
		return []string{single}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !audio.HasAudioExtension(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

func post(endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := http.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr models.APIError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("server returned %d (%s): %s", resp.StatusCode, apiErr.Kind, apiErr.Message)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(data))
	}
	return json.Unmarshal(data, out)
}

func postAnalyze(server string, req models.AnalyzeRequest) error {
	var rec features.Record
	if err := post(server+"/api/analyze", req, &rec); err != nil {
		return err
	}
	if rec.Rhythmic != nil && rec.Tonal != nil {
		fmt.Printf("   %.1f BPM, %s %s\n", float64(rec.Rhythmic.Tempo), rec.Tonal.Key, rec.Tonal.Mode)
	}
	if len(rec.Warnings) > 0 {
		fmt.Printf("   %d warning(s)\n", len(rec.Warnings))
	}
	return nil
}

func postAI(server string, req models.AIAnalyzeRequest) error {
	var resp models.AIAnalyzeResponse
	if err := post(server+"/api/ai/analyze", req, &resp); err != nil {
		return err
	}
	a := resp.Analysis
	if a == nil {
		return fmt.Errorf("response carried no analysis")
	}
	fmt.Printf("   %s/%s cached=%t confidence=%.2f cost=$%.4f\n", a.Provider, a.Model, a.Cached, a.Confidence, a.Cost)
	fmt.Printf("   %s\n", a.Summary)
	return nil
}
