// research-cli runs a research query against a deepresearch server and
// renders the event stream in the terminal.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

type cliEvent struct {
	Type     string   `json:"type"`
	Query    string   `json:"query"`
	Progress *float64 `json:"progress"`
	Content  string   `json:"content"`
	Kind     string   `json:"kind"`
	Sources  []struct {
		URL    string `json:"url"`
		Title  string `json:"title"`
		Domain string `json:"domain"`
	} `json:"sources"`
	Details *struct {
		Queries struct {
			Current      int    `json:"current"`
			Total        int    `json:"total"`
			CurrentQuery string `json:"currentQuery"`
		} `json:"queries"`
	} `json:"details"`
	Metrics *struct {
		TotalTimeSeconds float64 `json:"totalTimeSeconds"`
		ModelID          string  `json:"modelId"`
	} `json:"metrics"`
}

func main() {
	server := flag.String("server", "http://localhost:8080", "deepresearch server URL")
	deep := flag.Bool("deep", false, "run iterative deep research")
	depth := flag.Int("depth", 2, "research depth (deep mode)")
	breadth := flag.Int("breadth", 3, "queries per level (deep mode)")
	model := flag.String("model", "", "model id (server default when empty)")
	output := flag.String("o", "", "write the final report to this file")
	flag.Parse()

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: research-cli [flags] <query>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	body, err := json.Marshal(map[string]any{
		"query":   query,
		"isDeep":  *deep,
		"depth":   *depth,
		"breadth": *breadth,
		"modelId": *model,
	})
	if err != nil {
		fatal("encode request: %v", err)
	}

	resp, err := http.Post(*server+"/api/research", "application/json", bytes.NewReader(body))
	if err != nil {
		fatal("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fatal("server returned status %d", resp.StatusCode)
	}

	report, failed := render(resp)

	if report != "" && *output != "" {
		if err := os.WriteFile(*output, []byte(report), 0o644); err != nil {
			fatal("write report: %v", err)
		}
		color.Green("Report written to %s", *output)
	}
	if failed {
		os.Exit(1)
	}
}

// render consumes the NDJSON stream and prints one line per event,
// returning the final report text and whether the session failed.
func render(resp *http.Response) (report string, failed bool) {
	bold := color.New(color.Bold)
	dim := color.New(color.Faint)

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 1024*1024), 16*1024*1024)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev cliEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			dim.Fprintf(os.Stderr, "skipping unparseable event: %v\n", err)
			continue
		}

		switch ev.Type {
		case "start":
			bold.Printf("Researching: %s\n", ev.Query)
		case "progress":
			if ev.Progress != nil && ev.Details != nil {
				q := ev.Details.Queries
				dim.Printf("[%5.1f%%] %d/%d %s\n", *ev.Progress, q.Current, q.Total, q.CurrentQuery)
			}
		case "sources":
			for _, src := range ev.Sources {
				color.Cyan("  source: %s (%s)", src.Title, src.Domain)
			}
		case "learning":
			color.Yellow("  learning: %s", ev.Content)
		case "content":
			report = ev.Content
		case "error":
			failed = true
			color.Red("error (%s): %s", ev.Kind, ev.Content)
		case "complete":
			if ev.Metrics != nil {
				color.Green("Done in %s (model %s)",
					time.Duration(ev.Metrics.TotalTimeSeconds*float64(time.Second)).Round(time.Second),
					ev.Metrics.ModelID)
			} else {
				color.Green("Done")
			}
		}
		// Unknown event types are skipped, per the protocol.
	}
	if err := sc.Err(); err != nil {
		color.Red("stream error: %v", err)
		failed = true
	}

	if report != "" {
		fmt.Println()
		fmt.Println(report)
	}
	return report, failed
}

func fatal(format string, args ...any) {
	color.Red(format, args...)
	os.Exit(1)
}
