package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
)

// endpoints maps a data subdirectory to the route and form field it is sent to.
var endpoints = []struct {
	dir   string
	path  string
	field string
}{
	{"image", "/generate-from-image", "image"},
	{"document", "/generate-from-document", "document"},
	{"audio", "/generate-from-audio", "audio"},
}

func main() {
	addr := flag.String("addr", "http://localhost:5000", "gateway base URL")
	dataDir := flag.String("data", "./data", "directory with image/, document/ and audio/ samples")
	prompt := flag.String("prompt", "", "prompt sent with every file; empty uses the endpoint default")
	timeout := flag.Duration("timeout", 5*time.Minute, "per-request timeout")
	flag.Parse()

	ctx := context.Background()
	client := &http.Client{Timeout: *timeout}

	var results []BenchResult
	for _, ep := range endpoints {
		dataPath := filepath.Join(*dataDir, ep.dir)

		samples, _ := os.ReadDir(dataPath)

		for _, sample := range samples {
			if sample.IsDir() {
				continue
			}
			filePath := filepath.Join(dataPath, sample.Name())
			res := benchmarkFile(ctx, client, *addr+ep.path, ep.field, filePath, *prompt)

			if res.Err != nil {
				log.Println("ERR:", res.File, res.Err)
			} else {
				log.Printf("OK %s %v", res.File, res.Duration)
			}

			results = append(results, res)
		}
	}

	fmt.Println()
	writeReport(os.Stdout, results)
}

func benchmarkFile(ctx context.Context, client *http.Client, url, field, filePath, prompt string) BenchResult {
	start := time.Now()

	fileRaw, err := os.ReadFile(filePath)
	if err != nil {
		return BenchResult{File: filePath, Endpoint: field, Err: err}
	}

	resp, err := sendUpload(ctx, client, url, field, filepath.Base(filePath), fileRaw, prompt)

	return BenchResult{
		File:     filepath.Base(filePath),
		Endpoint: field,
		Duration: time.Since(start),
		Chars:    len(resp.Result),
		Err:      err,
		Size:     int64(len(fileRaw)),
	}
}

func sendUpload(ctx context.Context, client *http.Client, url, field, name string, data []byte, prompt string) (GenerateResponse, error) {
	var out GenerateResponse

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if prompt != "" {
		if err := mw.WriteField("prompt", prompt); err != nil {
			return out, err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		h.Set("Content-Type", ct)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		return out, err
	}
	if _, err := part.Write(data); err != nil {
		return out, err
	}
	if err := mw.Close(); err != nil {
		return out, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return out, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(httpReq)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, err
	}
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("bad status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("bad status %d: %s", resp.StatusCode, out.Error)
	}
	return out, nil
}

func aggregate(results []BenchResult) map[string]Agg {
	m := map[string]Agg{}
	for _, r := range results {
		a := m[r.Endpoint]
		if r.Err != nil {
			a.Failed++
		} else {
			a.Count++
			a.Total += r.Duration
			a.TotalBytes += r.Size
			a.TotalChars += r.Chars
		}
		m[r.Endpoint] = a
	}
	return m
}

// writeReport prints one Markdown row per endpoint in request order.
// Averages cover successful requests only.
func writeReport(w io.Writer, results []BenchResult) {
	agg := aggregate(results)

	fmt.Fprintln(w, "| Endpoint | OK | Failed | Avg Time | Avg Size | Avg Chars |")
	fmt.Fprintln(w, "|----------|----|--------|----------|----------|-----------|")
	for _, ep := range endpoints {
		a, ok := agg[ep.field]
		if !ok {
			continue
		}
		if a.Count == 0 {
			fmt.Fprintf(w, "| %s | 0 | %d | - | - | - |\n", ep.path, a.Failed)
			continue
		}
		n := int64(a.Count)
		fmt.Fprintf(w, "| %s | %d | %d | %v | %.1f KiB | %d |\n",
			ep.path,
			a.Count,
			a.Failed,
			(a.Total / time.Duration(n)).Round(time.Millisecond),
			float64(a.TotalBytes/n)/1024,
			int64(a.TotalChars)/n,
		)
	}
}
