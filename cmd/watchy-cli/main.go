// Command watchy-cli is an operator CLI for submitting audits to a
// running watchy-server and inspecting results, mirroring slctl's
// flag-based subcommand style.
//
// Watchy has no in-process scheduler (see SPEC_FULL.md open question
// #3): recurring audits are the operator's responsibility, driven by
// cron/CI calling "watchy-cli audit submit" on a schedule.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	defaultAddr := getenv("WATCHY_ADDR", "http://localhost:8090")
	defaultKey := os.Getenv("WATCHY_API_KEY")

	root := flag.NewFlagSet("watchy-cli", flag.ContinueOnError)
	root.SetOutput(io.Discard)
	addrFlag := root.String("addr", defaultAddr, "watchy-server base URL (env WATCHY_ADDR)")
	keyFlag := root.String("api-key", defaultKey, "X-API-Key header value (env WATCHY_API_KEY)")
	timeoutFlag := root.Duration("timeout", 15*time.Second, "HTTP request timeout")
	if err := root.Parse(args); err != nil {
		return usageError(err)
	}

	remaining := root.Args()
	if len(remaining) == 0 {
		return usageError(errors.New("no command specified"))
	}

	client := &apiClient{
		baseURL: strings.TrimRight(*addrFlag, "/"),
		apiKey:  strings.TrimSpace(*keyFlag),
		http:    &http.Client{Timeout: *timeoutFlag},
	}

	switch remaining[0] {
	case "audit":
		return handleAudit(ctx, client, remaining[1:])
	case "agent":
		return handleAgent(ctx, client, remaining[1:])
	case "health":
		return handleHealth(ctx, client)
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		return usageError(fmt.Errorf("unknown command %q", remaining[0]))
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func usageError(err error) error {
	printRootUsage()
	return err
}

func printRootUsage() {
	fmt.Println(`Watchy CLI (watchy-cli)

Usage:
  watchy-cli [global flags] <command> [subcommand] [flags]

Global Flags:
  --addr       watchy-server base URL (env WATCHY_ADDR, default http://localhost:8090)
  --api-key    X-API-Key header value (env WATCHY_API_KEY)
  --timeout    HTTP timeout (default 15s)

Commands:
  audit submit --agent-id <id> --chain-id <id> [--callback-url <url>]
  audit status --id <audit-id>
  audit report --id <audit-id>
  agent audits --registry <addr> --agent-id <id> --chain-id <id> [--limit N] [--offset N]
  health

Watchy does not schedule recurring audits; run "watchy-cli audit submit"
from cron or CI for periodic coverage.`)
}

type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func (c *apiClient) request(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		var parsed struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &parsed); err == nil && parsed.Message != "" {
			msg = fmt.Sprintf("%s (%s)", parsed.Message, parsed.Code)
		}
		return nil, fmt.Errorf("%s %s: %s (status %d)", method, path, msg, resp.StatusCode)
	}
	return data, nil
}

func prettyPrint(data []byte) {
	if len(data) == 0 {
		fmt.Println("(empty)")
		return
	}
	var dst bytes.Buffer
	if err := json.Indent(&dst, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(dst.String())
}

func handleHealth(ctx context.Context, client *apiClient) error {
	data, err := client.request(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	prettyPrint(data)
	return nil
}

func handleAudit(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		fmt.Println(`Usage:
  watchy-cli audit submit --agent-id <id> --chain-id <id> [--callback-url <url>]
  watchy-cli audit status --id <audit-id>
  watchy-cli audit report --id <audit-id>`)
		return nil
	}
	switch args[0] {
	case "submit":
		fs := flag.NewFlagSet("audit submit", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var agentID, callbackURL string
		var chainID uint64
		fs.StringVar(&agentID, "agent-id", "", "On-chain agent token ID (required)")
		fs.Uint64Var(&chainID, "chain-id", 0, "EIP-155 chain ID of the registry (required)")
		fs.StringVar(&callbackURL, "callback-url", "", "Webhook URL to notify on completion")
		if err := fs.Parse(args[1:]); err != nil {
			return usageError(err)
		}
		if agentID == "" || chainID == 0 {
			return usageError(errors.New("agent-id and chain-id are required"))
		}
		payload := map[string]any{
			"agent_id": agentID,
			"chain_id": chainID,
		}
		if callbackURL != "" {
			payload["callback_url"] = callbackURL
		}
		data, err := client.request(ctx, http.MethodPost, "/audit", payload)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "status":
		fs := flag.NewFlagSet("audit status", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var auditID string
		fs.StringVar(&auditID, "id", "", "Audit ID (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return usageError(err)
		}
		if auditID == "" {
			return usageError(errors.New("id is required"))
		}
		data, err := client.request(ctx, http.MethodGet, "/audit/"+auditID, nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "report":
		fs := flag.NewFlagSet("audit report", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var auditID string
		fs.StringVar(&auditID, "id", "", "Audit ID (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return usageError(err)
		}
		if auditID == "" {
			return usageError(errors.New("id is required"))
		}
		data, err := client.request(ctx, http.MethodGet, "/audit/"+auditID+"/report", nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	default:
		return fmt.Errorf("unknown audit subcommand %q", args[0])
	}
	return nil
}

func handleAgent(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 || args[0] != "audits" {
		fmt.Println(`Usage:
  watchy-cli agent audits --registry <addr> --agent-id <id> --chain-id <id> [--limit N] [--offset N]`)
		if len(args) == 0 {
			return nil
		}
		return fmt.Errorf("unknown agent subcommand %q", args[0])
	}

	fs := flag.NewFlagSet("agent audits", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var registry, agentID string
	var chainID uint64
	var limit, offset int
	fs.StringVar(&registry, "registry", "", "Registry contract address (required)")
	fs.StringVar(&agentID, "agent-id", "", "On-chain agent token ID (required)")
	fs.Uint64Var(&chainID, "chain-id", 0, "EIP-155 chain ID (required)")
	fs.IntVar(&limit, "limit", 0, "Maximum audits to return")
	fs.IntVar(&offset, "offset", 0, "Pagination offset")
	if err := fs.Parse(args[1:]); err != nil {
		return usageError(err)
	}
	if registry == "" || agentID == "" || chainID == 0 {
		return usageError(errors.New("registry, agent-id, and chain-id are required"))
	}

	path := fmt.Sprintf("/agents/%s/%s/audits?chain_id=%d", url.PathEscape(registry), url.PathEscape(agentID), chainID)
	if limit > 0 {
		path += "&limit=" + strconv.Itoa(limit)
	}
	if offset > 0 {
		path += "&offset=" + strconv.Itoa(offset)
	}
	data, err := client.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	prettyPrint(data)
	return nil
}
