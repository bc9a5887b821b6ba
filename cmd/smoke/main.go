// Command smoke drives a running tallybook-api through a full cycle:
// account, schedule, processing, snapshot, forecast. Exits non-zero the
// moment the arithmetic stops adding up.
package main

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	base := os.Getenv("TALLYBOOK_API_ADDR")
	if base == "" {
		base = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 5 * time.Second}
	today := time.Now().UTC().Format("2006-01-02")

	acc, code := postJSON(client, base+"/v1/accounts", map[string]any{
		"name":    fmt.Sprintf("Smoke Checking %d", time.Now().UnixNano()),
		"type":    "checking",
		"balance": "1000",
	})
	if code != http.StatusCreated {
		log.Fatalf("create account: status %d (%v)", code, acc["error"])
	}
	accID := acc["id"].(string)

	sch, code := postJSON(client, base+"/v1/schedules", map[string]any{
		"kind":          "payment",
		"account_id":    accID,
		"name":          "Smoke bill",
		"amount":        "420",
		"scheduled_for": today,
	})
	if code != http.StatusCreated {
		log.Fatalf("create schedule: status %d (%v)", code, sch["error"])
	}
	schID := sch["id"].(string)

	if _, code = postJSON(client, base+"/v1/schedules/"+schID+"/processed", nil); code != http.StatusOK {
		log.Fatalf("process schedule: status %d", code)
	}

	got, code := getJSON(client, base+"/v1/accounts/"+accID)
	if code != http.StatusOK {
		log.Fatalf("get account: status %d", code)
	}
	balance := mustDecimal(got["balance"])
	if !balance.Equal(decimal.RequireFromString("580")) {
		log.Fatalf("balance after payment: want 580, got %s", balance)
	}

	// Re-runs on the same day hit the one-snapshot-per-day rule; that is
	// the API working, not a failure.
	snap, code := postJSON(client, base+"/v1/accounts/"+accID+"/snapshots", map[string]any{
		"balance": "580",
	})
	switch code {
	case http.StatusCreated:
		rec, code := getJSON(client, base+"/v1/accounts/"+accID+"/reconciliation")
		if code != http.StatusOK {
			log.Fatalf("reconciliation: status %d", code)
		}
		if drift := mustDecimal(rec["drift"]); !drift.IsZero() {
			log.Fatalf("fresh snapshot should have zero drift, got %s", drift)
		}
	case http.StatusConflict:
		log.Printf("snapshot already recorded today: %v", snap["error"])
	default:
		log.Fatalf("record snapshot: status %d (%v)", code, snap["error"])
	}

	fc, code := getJSON(client, base+"/v1/forecast?horizon_days=7")
	if code != http.StatusOK {
		log.Fatalf("forecast: status %d", code)
	}
	if _, ok := fc["opening_balance"]; !ok {
		log.Fatalf("forecast missing opening_balance: %v", fc)
	}

	fmt.Printf("✅ tallybook smoke test passed: account=%s\n", accID)
}

func postJSON(client *http.Client, url string, body any) (map[string]any, int) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal %s: %v", url, err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("new request %s: %v", url, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return doJSON(client, req)
}

func getJSON(client *http.Client, url string) (map[string]any, int) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		log.Fatalf("new request %s: %v", url, err)
	}
	return doJSON(client, req)
}

func doJSON(client *http.Client, req *http.Request) (map[string]any, int) {
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return out, resp.StatusCode
}

func mustDecimal(v any) decimal.Decimal {
	s, ok := v.(string)
	if !ok {
		log.Fatalf("expected decimal string, got %T (%v)", v, v)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}
