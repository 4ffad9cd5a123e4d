package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/h1v3-io/relay/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "health":
		cmdHealth()
	case "bots":
		cmdBots()
	case "tickets":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: relayctl tickets <list|show>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdTicketsList(os.Args[3:])
		case "show":
			if len(os.Args) < 5 {
				fmt.Fprintln(os.Stderr, "usage: relayctl tickets show <bot> <user>")
				os.Exit(1)
			}
			cmdTicketsShow(os.Args[3], os.Args[4])
		default:
			fmt.Fprintf(os.Stderr, "unknown tickets subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "replies":
		cmdReplies()
	case "audit":
		cmdAudit(os.Args[2:])
	case "logs":
		cmdLogs(os.Args[2:])
	case "jobs":
		cmdJobs()
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: relayctl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// --- API client commands ---

func cmdHealth() {
	fmt.Println(string(mustGet("/api/health")))
}

func cmdBots() {
	var bots []map[string]any
	json.Unmarshal(mustGet("/api/bots"), &bots)
	for _, b := range bots {
		fmt.Printf("%-16s %s\n", b["key"], str(b["display_name"]))
	}
}

func cmdTicketsList(args []string) {
	fs := flag.NewFlagSet("tickets list", flag.ExitOnError)
	status := fs.String("status", "", "Filter by status (open|closed)")
	bot := fs.String("bot", "", "Filter by bot key")
	limit := fs.Int("limit", 50, "Max results")
	fs.Parse(args)

	q := url.Values{}
	q.Set("limit", fmt.Sprint(*limit))
	if *status != "" {
		q.Set("status", *status)
	}
	if *bot != "" {
		q.Set("bot", *bot)
	}

	var tickets []map[string]any
	json.Unmarshal(mustGet("/api/tickets?"+q.Encode()), &tickets)
	for _, t := range tickets {
		fmt.Printf("#%-9s %-7s %-16s %s\n", t["id"], t["status"], t["bot_key"], t["user_id"])
	}
}

func cmdTicketsShow(bot, user string) {
	fmt.Println(prettyJSON(mustGet("/api/tickets/" + url.PathEscape(bot) + "/" + url.PathEscape(user))))
}

func cmdReplies() {
	var replies []map[string]any
	json.Unmarshal(mustGet("/api/replies"), &replies)
	if len(replies) == 0 {
		fmt.Println("no armed reply targets")
		return
	}
	for _, r := range replies {
		fmt.Printf("%-16s -> %-14s armed %s\n", r["bot_key"], r["target_user_id"], r["armed_at"])
	}
}

func cmdAudit(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	bot := fs.String("bot", "", "Filter by bot key")
	user := fs.String("user", "", "Filter by user ID")
	ticket := fs.String("ticket", "", "Filter by ticket ID")
	kind := fs.String("kind", "", "Filter by entry kind")
	limit := fs.Int("limit", 100, "Max results")
	fs.Parse(args)

	q := url.Values{}
	q.Set("limit", fmt.Sprint(*limit))
	for k, v := range map[string]string{"bot": *bot, "user": *user, "ticket": *ticket, "kind": *kind} {
		if v != "" {
			q.Set(k, v)
		}
	}

	var entries []map[string]any
	json.Unmarshal(mustGet("/api/audit?"+q.Encode()), &entries)
	for _, e := range entries {
		fmt.Printf("%s %-14s %-16s %-14s %s\n", e["at"], e["kind"], e["bot_key"], str(e["user_id"]), str(e["detail"]))
	}
}

func cmdLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	level := fs.String("level", "info", "Minimum level (debug|info|warn|error)")
	bot := fs.String("bot", "", "Filter by bot key")
	since := fs.Duration("since", 0, "Only entries newer than this (e.g. 10m)")
	limit := fs.Int("limit", 200, "Max results")
	fs.Parse(args)

	q := url.Values{}
	q.Set("level", *level)
	q.Set("limit", fmt.Sprint(*limit))
	if *bot != "" {
		q.Set("bot", *bot)
	}
	if *since > 0 {
		q.Set("since", fmt.Sprint(time.Now().Add(-*since).UnixMilli()))
	}

	var entries []map[string]any
	json.Unmarshal(mustGet("/api/logs?"+q.Encode()), &entries)
	for _, e := range entries {
		line := fmt.Sprintf("%s %-5s %s", e["time"], e["level"], e["message"])
		if attrs, ok := e["attrs"].(map[string]any); ok && len(attrs) > 0 {
			b, _ := json.Marshal(attrs)
			line += " " + string(b)
		}
		fmt.Println(line)
	}
}

func cmdJobs() {
	var jobs []map[string]any
	json.Unmarshal(mustGet("/api/jobs"), &jobs)
	for _, j := range jobs {
		fmt.Printf("%-16s %-14s next %s\n", j["name"], j["schedule"], j["next"])
	}
}

func cmdConfigValidate(path string) {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("config is valid (%d bots, mode %s)\n", len(cfg.Bots), cfg.Telegram.Mode)
}

// --- Helpers ---

func mustGet(path string) []byte {
	body, err := apiGet(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	return body
}

func apiGet(path string) ([]byte, error) {
	base := envOr("RELAY_API_URL", "http://localhost:3000")

	req, err := http.NewRequest("GET", base+path, nil)
	if err != nil {
		return nil, err
	}
	if key := os.Getenv("RELAY_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func str(v any) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println("relayctl - support relay management CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  health                     Check daemon health")
	fmt.Println("  bots                       List bot identities")
	fmt.Println("  tickets list               List tickets (--status, --bot, --limit)")
	fmt.Println("  tickets show <bot> <user>  Show one ticket")
	fmt.Println("  replies                    Show armed reply targets")
	fmt.Println("  audit                      Query the audit journal (--bot, --user, --ticket, --kind)")
	fmt.Println("  logs                       Tail recent daemon logs (--level, --bot, --since)")
	fmt.Println("  jobs                       List housekeeping jobs")
	fmt.Println("  config validate <path>     Validate config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  RELAY_API_URL   Daemon URL (default: http://localhost:3000)")
	fmt.Println("  RELAY_API_KEY   API key for authentication")
}
