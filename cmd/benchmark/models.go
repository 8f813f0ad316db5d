package main

import "time"

type GenerateResponse struct {
	Result string `json:"result"`
	Error  string `json:"error"`
}

type BenchResult struct {
	File     string
	Endpoint string
	Duration time.Duration
	Chars    int
	Err      error
	Size     int64
}

type Agg struct {
	Count      int
	Failed     int
	Total      time.Duration
	TotalBytes int64
	TotalChars int
}
