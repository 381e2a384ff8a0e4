package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Yendza/controller-backend/internal/adapter/handler"
)

type client struct {
	baseURL string
	http    *http.Client
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (c *client) submit(ctx context.Context, kind, productID string, quantity int64) (int, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/transactions", handler.SubmitRequest{
		TransactionID: uuid.NewString(),
		Kind:          kind,
		Lines:         []handler.LineRequest{{ProductID: productID, Quantity: quantity}},
	}, nil)
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "ledger HTTP address")
	productID := flag.String("product", "flash-sale-item", "product id; must exist in the catalog")
	initialStock := flag.Int64("stock", 20, "quantity purchased before the run")
	totalRequests := flag.Int("requests", 50, "number of concurrent single-unit sales")
	flag.Parse()

	ctx := context.Background()
	c := &client{baseURL: *baseURL, http: &http.Client{Timeout: 30 * time.Second}}

	var before handler.LevelResponse
	if status, err := c.do(ctx, http.MethodGet, "/api/v1/stock/"+*productID, nil, &before); err != nil || status != http.StatusOK {
		log.Fatalf("failed to read stock for %s: status=%d err=%v", *productID, status, err)
	}
	if before.Quantity > 0 {
		if status, err := c.submit(ctx, "adjustment", *productID, -before.Quantity); err != nil || status != http.StatusOK {
			log.Fatalf("failed to clear stock: status=%d err=%v", status, err)
		}
	}
	if status, err := c.submit(ctx, "purchase", *productID, *initialStock); err != nil || status != http.StatusOK {
		log.Fatalf("failed to set initial stock: status=%d err=%v", status, err)
	}

	var (
		mu       sync.Mutex
		statuses = make(map[int]int)
		errCount atomic.Int32
		wg       sync.WaitGroup
	)
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			status, err := c.submit(ctx, "sale", *productID, 1)
			if err != nil {
				errCount.Add(1)
				return
			}
			mu.Lock()
			statuses[status]++
			mu.Unlock()
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	committed := statuses[http.StatusOK]
	rejected := statuses[http.StatusUnprocessableEntity]
	expected := int(min(*initialStock, int64(*totalRequests)))

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Committed:        %d\n", committed)
	fmt.Printf("Insufficient:     %d\n", rejected)
	fmt.Printf("Transport Errors: %d\n", errCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)

	codes := make([]int, 0, len(statuses))
	for code := range statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  HTTP %d: %d\n", code, statuses[code])
	}
	fmt.Println("==========================================")

	if committed == expected && rejected == *totalRequests-expected {
		fmt.Printf("PASS: exactly %d sales committed, %d rejected\n", committed, rejected)
	} else {
		fmt.Printf("FAIL: expected %d committed/%d rejected, got %d/%d\n",
			expected, *totalRequests-expected, committed, rejected)
	}

	var after handler.LevelResponse
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/stock/"+*productID, nil, &after); err != nil {
		log.Fatalf("failed to read final stock: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", after.Quantity)
	if want := *initialStock - int64(committed); after.Quantity == want {
		fmt.Println("PASS: projection matches committed sales")
	} else {
		fmt.Printf("FAIL: expected stock %d, got %d\n", want, after.Quantity)
	}

	var recon handler.ReconcileResponse
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/stock/"+*productID+"/reconcile", nil, &recon); err != nil {
		log.Fatalf("failed to reconcile: %v", err)
	}
	for _, r := range recon.Results {
		fmt.Printf("Reconcile %-30s %s (ledger=%d projection=%d)\n", r.Key, r.Status, r.Expected, r.Actual)
	}
}
