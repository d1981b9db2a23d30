// Sequencer CLI - command-line interface for talking to a running
// sequencer node's read API.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	apiAddr := flag.NewFlagSet("sequencerctl", flag.ExitOnError)
	addr := apiAddr.String("api-addr", "http://127.0.0.1:8080", "sequencer read API base URL")
	apiAddr.Parse(os.Args[2:])

	client := &httpClient{base: strings.TrimRight(*addr, "/"), hc: &http.Client{Timeout: 5 * time.Second}}

	switch os.Args[1] {
	case "version":
		fmt.Printf("sequencerctl v%s\n", version)

	case "help":
		printUsage()

	case "health":
		cmdHealth(client)

	case "status":
		cmdStatus(client)

	case "account":
		if apiAddr.NArg() < 1 {
			fmt.Println("Usage: sequencerctl account <hex_account_id>")
			os.Exit(1)
		}
		cmdAccount(client, apiAddr.Arg(0))

	case "batch":
		if apiAddr.NArg() < 1 || apiAddr.Arg(0) != "latest" {
			fmt.Println("Usage: sequencerctl batch latest")
			os.Exit(1)
		}
		cmdBatchLatest(client)

	case "deposit":
		if apiAddr.NArg() < 4 || apiAddr.Arg(0) != "replay" {
			fmt.Println("Usage: sequencerctl deposit replay <hex_account_id> <amount> <l1_seq>")
			os.Exit(1)
		}
		cmdDepositReplay(client, apiAddr.Arg(1), apiAddr.Arg(2), apiAddr.Arg(3))

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("sequencerctl - command-line interface for the sequencer read API")
	fmt.Println()
	fmt.Println("Usage: sequencerctl <command> [-api-addr url] [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  version            Show version information")
	fmt.Println("  help               Show this help message")
	fmt.Println("  health             Check node liveness")
	fmt.Println("  status             Show batch-in-progress status")
	fmt.Println("  account <hex_id>   Look up an account's balance and nonce")
	fmt.Println("  batch latest       Show the most recently sealed batch")
	fmt.Println("  deposit replay <hex_account_id> <amount> <l1_seq>")
	fmt.Println("                     Manually submit a deposit event (operator recovery only)")
}

// httpClient is a thin wrapper over the sequencer's JSON envelope
// convention: {"status": "ok"|"error", "data"?: ..., "error"?: "..."}.
type httpClient struct {
	base string
	hc   *http.Client
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
}

func (c *httpClient) get(path string) (json.RawMessage, error) {
	resp, err := c.hc.Get(c.base + path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp.Body)
}

func (c *httpClient) postJSON(path string, body interface{}) (json.RawMessage, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Post(c.base+path, "application/json", strings.NewReader(string(buf)))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp.Body)
}

func decodeEnvelope(r io.Reader) (json.RawMessage, error) {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if env.Status != "ok" {
		return nil, fmt.Errorf("sequencer error: %s", env.Error)
	}
	return env.Data, nil
}

func cmdHealth(c *httpClient) {
	data, err := c.get("/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		os.Exit(1)
	}
	printJSON(data)
}

func cmdStatus(c *httpClient) {
	data, err := c.get("/status/batch")
	if err != nil {
		fmt.Fprintf(os.Stderr, "status request failed: %v\n", err)
		os.Exit(1)
	}
	printJSON(data)
}

func cmdAccount(c *httpClient, hexID string) {
	data, err := c.get("/account/" + hexID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "account lookup failed: %v\n", err)
		os.Exit(1)
	}
	printJSON(data)
}

func cmdBatchLatest(c *httpClient) {
	data, err := c.get("/batch/latest")
	if err != nil {
		fmt.Fprintf(os.Stderr, "batch lookup failed: %v\n", err)
		os.Exit(1)
	}
	printJSON(data)
}

func cmdDepositReplay(c *httpClient, hexID, amountStr, l1SeqStr string) {
	amount, err := strconv.ParseUint(amountStr, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid amount: %v\n", err)
		os.Exit(1)
	}
	l1Seq, err := strconv.ParseUint(l1SeqStr, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid l1_seq: %v\n", err)
		os.Exit(1)
	}
	body := map[string]interface{}{"account_id": hexID, "amount": amount, "l1_seq": l1Seq}
	data, err := c.postJSON("/deposit/replay", body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "deposit replay failed: %v\n", err)
		os.Exit(1)
	}
	printJSON(data)
}

func printJSON(data json.RawMessage) {
	var pretty interface{}
	if err := json.Unmarshal(data, &pretty); err != nil {
		fmt.Println(string(data))
		return
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(string(out))
}
