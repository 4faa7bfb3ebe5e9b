// Replay feeds recorded alert payloads through the full admission and
// routing path against a paper exchange, then prints the resulting book.
// Input is a JSONL file: lines shaped {"price":{"symbol":...,"price":...}}
// set the paper price; every other line is treated as a raw alert payload.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/quantfold/signal-engine/internal/config"
	"github.com/quantfold/signal-engine/internal/exchange"
	"github.com/quantfold/signal-engine/internal/gateway"
	"github.com/quantfold/signal-engine/internal/guard"
	"github.com/quantfold/signal-engine/internal/notify"
	"github.com/quantfold/signal-engine/internal/params"
	"github.com/quantfold/signal-engine/internal/position"
)

type priceLine struct {
	Price *struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	} `json:"price"`
}

func main() {
	inputPath := flag.String("input", "", "JSONL file of recorded payloads")
	flag.Parse()
	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay -input <file.jsonl>")
		os.Exit(1)
	}

	f, err := os.Open(*inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open input: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	cfg := config.Default()
	tmpDir, err := os.MkdirTemp("", "replay")
	if err != nil {
		fmt.Fprintf(os.Stderr, "tempdir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(tmpDir)

	prm, err := params.New(tmpDir+"/params.json", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "params: %v\n", err)
		os.Exit(1)
	}

	paper := exchange.NewPaper()
	store := position.NewStore(paper, cfg.Position.RemoteRetries, 10*time.Millisecond)
	capGuard := guard.New(store, func() int { return cfg.Guard.MaxOpenPositions }, time.Second)
	audit, err := gateway.NewAudit(tmpDir + "/alerts.jsonl")
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: %v\n", err)
		os.Exit(1)
	}

	gw := gateway.New(cfg.Gateway, prm, store, paper, capGuard, notify.Nop{}, audit)

	ctx, cancel := context.WithCancel(context.Background())
	capGuard.Start(ctx)
	gw.Start(ctx)

	counts := map[string]int{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var pl priceLine
		if json.Unmarshal(line, &pl) == nil && pl.Price != nil {
			paper.SetPrice(pl.Price.Symbol, pl.Price.Price)
			continue
		}
		out := gw.Admit(line)
		counts[out.Status]++
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "scan: %v\n", err)
	}

	// Let workers drain before reading the book.
	time.Sleep(500 * time.Millisecond)
	cancel()
	gw.Wait()

	fmt.Println("admission outcomes:")
	for status, n := range counts {
		fmt.Printf("  %-10s %d\n", status, n)
	}
	fmt.Println("open positions:")
	for key, pos := range store.Snapshot() {
		fmt.Printf("  %-20s entry=%.4f size=%.6f\n", key.String(), pos.EntryPrice, pos.Size)
	}
}
