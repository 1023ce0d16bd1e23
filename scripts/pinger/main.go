package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/YasiruR/mule-sync/domain/messages"
	"github.com/YasiruR/mule-sync/graph/paths"
	"github.com/YasiruR/mule-sync/log"
)

const (
	attempts = 3
	timeout  = 10 * time.Second
)

var logger = log.NewLogger(true, `INFO`)

// pinger measures how long each relay listed in the given csv file
// (label,endpoint per row) takes to serve its catalog
func main() {
	file := `relays.csv`
	if len(os.Args) > 1 {
		file = os.Args[1]
	}

	labels, endpoints := read(file)
	client := &http.Client{Timeout: timeout}
	for i, e := range endpoints {
		fmt.Printf("# catalog ping to %s (%s)\n", labels[i], paths.CatalogURL(e))
		var total int64
		var ok int64
		for j := 0; j < attempts; j++ {
			latency, items, err := ping(client, e)
			if err != nil {
				fmt.Printf("	> attempt %d failed: %s\n", j, err)
				continue
			}
			total += latency
			ok++
			fmt.Printf("	> attempt %d: %d ms, %d items\n", j, latency, items)
		}

		if ok == 0 {
			fmt.Printf("  unreachable\n\n")
			continue
		}
		fmt.Printf("  average: %d ms\n\n", total/ok)
	}
}

func read(file string) (labels []string, endpoints []string) {
	f, err := os.Open(file)
	if err != nil {
		logger.Fatal(fmt.Sprintf(`opening file failed - %v`, err))
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		logger.Fatal(fmt.Sprintf(`reading relays failed - %v`, err))
	}

	for _, row := range records {
		if len(row) < 2 {
			continue
		}
		labels = append(labels, row[0])
		endpoints = append(endpoints, row[1])
	}

	return
}

func ping(client *http.Client, endpoint string) (int64, int, error) {
	start := time.Now()
	res, err := client.Get(paths.CatalogURL(endpoint))
	if err != nil {
		return 0, 0, fmt.Errorf(`request failed - %v`, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return 0, 0, fmt.Errorf(`reading response failed - %v`, err)
	}

	if res.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf(`relay responded with status %d`, res.StatusCode)
	}

	var cr messages.CatalogResponse
	if err = json.Unmarshal(data, &cr); err != nil {
		return 0, 0, fmt.Errorf(`decoding catalog failed - %v`, err)
	}

	if !cr.Success {
		return 0, 0, fmt.Errorf(`relay error - %s`, cr.Error)
	}

	return latency, len(cr.Catalog), nil
}
