// Command benchmark drives the Transfer Facade with concurrent workers and
// reports a throughput/outcome histogram. Every accepted POST /transfers
// returns 200 immediately with a status field rather than a 201/409 pair.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	totalAccts  int
)

var (
	totalRequests   uint64
	outcomePending  uint64
	outcomeInvalid  uint64 // 400 responses
	outcomeHTTPFail uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "Transfer Facade base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&totalAccts, "accounts", 1000, "Number of seeded accounts (IDs 1..N)")
}

func main() {
	flag.Parse()
	log.Printf("Starting benchmark: %s | workers=%d | duration=%s | target=%s", workload, concurrency, duration, targetURL)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}
	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 10 * time.Second}

	for time.Since(start) < duration {
		from, to := generateAccounts()
		key := fmt.Sprintf("bench-%d-%d-%d", from, to, time.Now().UnixNano())

		payload := map[string]interface{}{
			"fromAccountId": from,
			"toAccountId":   to,
			"amount":        "1.00",
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest(http.MethodPost, targetURL+"/transfers", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&outcomeHTTPFail, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case http.StatusOK:
			var body struct {
				Status string `json:"status"`
			}
			_ = json.NewDecoder(resp.Body).Decode(&body)
			if body.Status == "PENDING" {
				atomic.AddUint64(&outcomePending, 1)
			}
		case http.StatusBadRequest:
			atomic.AddUint64(&outcomeInvalid, 1)
		default:
			atomic.AddUint64(&outcomeHTTPFail, 1)
		}
		resp.Body.Close()
	}
}

func generateAccounts() (int64, int64) {
	if workload == "hotspot" && rand.Float32() < 0.90 {
		if rand.Float32() < 0.5 {
			return 1, 2
		}
		return 2, 1
	}

	a := rand.Intn(totalAccts) + 1
	b := rand.Intn(totalAccts) + 1
	for a == b {
		b = rand.Intn(totalAccts) + 1
	}
	return int64(a), int64(b)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	pending := atomic.LoadUint64(&outcomePending)
	invalid := atomic.LoadUint64(&outcomeInvalid)
	httpFail := atomic.LoadUint64(&outcomeHTTPFail)

	tps := float64(total) / d.Seconds()

	results := map[string]interface{}{
		"workload":         workload,
		"duration_sec":     d.Seconds(),
		"total_requests":   total,
		"throughput_tps":   tps,
		"accepted_pending": pending,
		"rejected_invalid": invalid,
		"transport_errors": httpFail,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err == nil {
		defer file.Close()
		_ = json.NewEncoder(file).Encode(results)
	}
}
