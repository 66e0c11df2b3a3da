// Load generator for exercising the Shikra assessment API.
//
// Usage:
//   go run cmd/loadgen/main.go -url http://localhost:8080 -count 5000
//
// This tool:
//   1. Synthesizes mobile-money traffic for a population of users
//   2. Injects known-bad patterns (large transfers, night bursts, structuring)
//   3. Sends each transaction to POST /api/v1/assess
//   4. Reports action distribution, latency, and throughput
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// AssessRequest is the Shikra API request format.
type AssessRequest struct {
	UserID      string  `json:"userId"`
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Recipient   string  `json:"recipient,omitempty"`
	Description string  `json:"description,omitempty"`
	Platform    string  `json:"platform,omitempty"`
}

// AssessResponse is the subset of the assessment we report on.
type AssessResponse struct {
	ID        string `json:"id"`
	RiskScore int    `json:"riskScore"`
	RiskLevel string `json:"riskLevel"`
	Action    string `json:"action"`
	AlertID   string `json:"alertId,omitempty"`
}

// Metrics tracks load run results.
type Metrics struct {
	TotalSent   int64
	TotalErrors int64

	Approved            int64
	Flagged             int64
	RequireVerification int64
	Blocked             int64
	Alerts              int64

	LatencyMs int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Shikra base URL")
	count := flag.Int("count", 1000, "Total transactions to send")
	users := flag.Int("users", 50, "Size of the simulated user population")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudRate := flag.Float64("fraud", 0.05, "Fraction of transactions drawn from fraud patterns (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each flagged or blocked result")
	flag.Parse()

	fmt.Println("SHIKRA LOAD GENERATOR")
	fmt.Printf("\nShikra URL:  %s\n", *baseURL)
	fmt.Printf("Count:       %d\n", *count)
	fmt.Printf("Users:       %d\n", *users)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Fraud Rate:  %.2f\n", *fraudRate)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Shikra not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Shikra is running:")
		fmt.Println("  go run cmd/shikra/main.go")
		os.Exit(1)
	}
	fmt.Println("Shikra is healthy")

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	txs := generate(rng, *count, *users, *fraudRate)
	fmt.Printf("Generated %d transactions\n", len(txs))

	fmt.Printf("\nRunning with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := run(txs, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// generate builds a mixed workload. Normal traffic is small debits and
// credits to a few repeat recipients; fraud traffic draws from the patterns
// the factor scorers target.
func generate(rng *rand.Rand, count, users int, fraudRate float64) []AssessRequest {
	userIDs := make([]string, users)
	for i := range userIDs {
		userIDs[i] = fmt.Sprintf("+2547%08d", rng.Intn(100_000_000))
	}

	recipients := make([]string, 20)
	for i := range recipients {
		recipients[i] = fmt.Sprintf("+2547%08d", rng.Intn(100_000_000))
	}

	txs := make([]AssessRequest, 0, count)
	for i := 0; i < count; i++ {
		userID := userIDs[rng.Intn(len(userIDs))]

		if rng.Float64() < fraudRate {
			txs = append(txs, fraudTransaction(rng, userID))
			continue
		}

		req := AssessRequest{
			UserID:    userID,
			Type:      "DEBIT",
			Amount:    float64(500 + rng.Intn(20_000)),
			Recipient: recipients[rng.Intn(len(recipients))],
			Platform:  "whatsapp",
		}
		if rng.Float64() < 0.2 {
			req.Type = "CREDIT"
			req.Recipient = ""
		}
		txs = append(txs, req)
	}

	return txs
}

func fraudTransaction(rng *rand.Rand, userID string) AssessRequest {
	switch rng.Intn(3) {
	case 0:
		// Large transfer to a fresh recipient
		return AssessRequest{
			UserID:    userID,
			Type:      "DEBIT",
			Amount:    600_000 + float64(rng.Intn(900_000)),
			Recipient: fmt.Sprintf("+8501%07d", rng.Intn(10_000_000)),
			Platform:  "whatsapp",
		}
	case 1:
		// Just under the large-transfer threshold
		return AssessRequest{
			UserID:    userID,
			Type:      "DEBIT",
			Amount:    460_000 + float64(rng.Intn(35_000)),
			Recipient: fmt.Sprintf("+2547%08d", rng.Intn(100_000_000)),
			Platform:  "whatsapp",
		}
	default:
		// Rapid-fire small debits land as velocity pressure
		return AssessRequest{
			UserID:    userID,
			Type:      "DEBIT",
			Amount:    float64(1_000 + rng.Intn(5_000)),
			Recipient: fmt.Sprintf("+2547%08d", rng.Intn(100_000_000)),
			Platform:  "telegram",
		}
	}
}

func run(txs []AssessRequest, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan AssessRequest, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for tx := range work {
				start := time.Now()
				result, err := assess(client, baseURL, tx)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.LatencyMs, elapsed)
				atomic.AddInt64(&metrics.TotalSent, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", tx.UserID, err)
					}
					continue
				}

				switch result.Action {
				case "APPROVE":
					atomic.AddInt64(&metrics.Approved, 1)
				case "FLAG_FOR_REVIEW":
					atomic.AddInt64(&metrics.Flagged, 1)
				case "REQUIRE_VERIFICATION":
					atomic.AddInt64(&metrics.RequireVerification, 1)
				case "BLOCK":
					atomic.AddInt64(&metrics.Blocked, 1)
				}
				if result.AlertID != "" {
					atomic.AddInt64(&metrics.Alerts, 1)
				}

				if verbose && result.Action != "APPROVE" {
					fmt.Printf("%-13s | Amount: %12.2f | Score: %3d | %-8s | %s\n",
						tx.UserID,
						tx.Amount,
						result.RiskScore,
						result.RiskLevel,
						result.Action,
					)
				}
			}
		}()
	}

	for _, tx := range txs {
		work <- tx
	}
	close(work)

	wg.Wait()

	return metrics
}

func assess(client *http.Client, baseURL string, tx AssessRequest) (*AssessResponse, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/assess", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AssessResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nRESULTS")
	fmt.Printf("   Total Sent:            %d\n", m.TotalSent)
	fmt.Printf("   Errors:                %d\n", m.TotalErrors)
	fmt.Println()
	fmt.Printf("   Approved:              %d\n", m.Approved)
	fmt.Printf("   Flagged for Review:    %d\n", m.Flagged)
	fmt.Printf("   Require Verification:  %d\n", m.RequireVerification)
	fmt.Printf("   Blocked:               %d\n", m.Blocked)
	fmt.Printf("   Alerts Raised:         %d\n", m.Alerts)

	fmt.Println("\nPERFORMANCE")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalSent > 0 {
		avgMs := float64(m.LatencyMs) / float64(m.TotalSent)
		tps := float64(m.TotalSent) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}
	fmt.Println()
}
