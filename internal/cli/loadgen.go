package cli

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
)

var (
	loadgenTarget      string
	loadgenSiteID      string
	loadgenOrigin      string
	loadgenCount       int
	loadgenConcurrency int
)

var loadgenPaths = []string{"/", "/pricing", "/docs", "/blog", "/about", "/signup"}

var loadgenAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:130.0) Gecko/20100101 Firefox/130.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Mobile Safari/537.36",
}

var loadgenCmd = &cobra.Command{
	Use:   "loadgen [--url <base>] [--site <uuid>] [--count n] [--concurrency n]",
	Short: "Fire synthetic beacons at a running server",
	Long: `Send synthetic pageview beacons to /api/send for smoke testing and
capacity checks. Either --site (an explicit website_id) or --origin (a
registered domain sent as the Origin header) selects the target site.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if loadgenSiteID == "" && loadgenOrigin == "" {
			return fmt.Errorf("one of --site or --origin is required")
		}
		return runLoadgen()
	},
}

func runLoadgen() error {
	client := &fasthttp.Client{
		MaxConnsPerHost: loadgenConcurrency * 2,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
	}

	jobs := make(chan int)
	var accepted, failed atomic.Int64
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < loadgenConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(i)))
			for range jobs {
				if sendBeacon(client, rng) {
					accepted.Add(1)
				} else {
					failed.Add(1)
				}
			}
		}()
	}

	for i := 0; i < loadgenCount; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("%d accepted, %d failed in %s (%.0f req/s)\n",
		accepted.Load(), failed.Load(), elapsed.Round(time.Millisecond),
		float64(loadgenCount)/elapsed.Seconds())
	if failed.Load() > 0 {
		return fmt.Errorf("%d beacons rejected", failed.Load())
	}
	return nil
}

func sendBeacon(client *fasthttp.Client, rng *rand.Rand) bool {
	payload := map[string]any{
		"type":     "pageview",
		"pathname": loadgenPaths[rng.Intn(len(loadgenPaths))],
	}
	if loadgenSiteID != "" {
		payload["website_id"] = loadgenSiteID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(loadgenTarget + "/api/send")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("text/plain")
	req.Header.SetUserAgent(loadgenAgents[rng.Intn(len(loadgenAgents))])
	// Spread beacons across fake client addresses so visitor counts vary.
	req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", rng.Intn(254)+1))
	if loadgenOrigin != "" {
		req.Header.Set("Origin", "https://"+loadgenOrigin)
	}
	req.SetBody(body)

	if err := client.Do(req, resp); err != nil {
		return false
	}
	return resp.StatusCode() == fasthttp.StatusAccepted
}

func init() {
	loadgenCmd.Flags().StringVar(&loadgenTarget, "url", "http://localhost:3000", "base URL of the server")
	loadgenCmd.Flags().StringVar(&loadgenSiteID, "site", "", "website_id to send in the payload")
	loadgenCmd.Flags().StringVar(&loadgenOrigin, "origin", "", "registered domain to send as the Origin header")
	loadgenCmd.Flags().IntVar(&loadgenCount, "count", 1000, "number of beacons to send")
	loadgenCmd.Flags().IntVar(&loadgenConcurrency, "concurrency", 8, "parallel senders")
	RootCmd.AddCommand(loadgenCmd)
}
