package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/V4T54L/txn-watch/internal/adapter/logline"
)

func main() {
	target := flag.String("addr", "127.0.0.1:20000", "UDP address of the relay")
	realtime := flag.Bool("realtime", false, "Pace lines by the delta between their Uxt timestamps")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: replay [-addr host:port] [-realtime] <logfile>")
		os.Exit(1)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer f.Close()

	conn, err := net.Dial("udp", *target)
	if err != nil {
		log.Fatalf("failed to dial %s: %v", *target, err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sent, err := replay(ctx, f, conn, logline.NewPacer(*realtime), sleep)
	if err != nil && ctx.Err() == nil {
		log.Fatalf("replay failed after %d lines: %v", sent, err)
	}
	log.Printf("Replayed %d lines to %s", sent, *target)
}

// replay sends every non-blank line of r as one JSON datagram, waiting as the
// pacer says before each send.
func replay(ctx context.Context, r io.Reader, w io.Writer, pacer *logline.Pacer, wait func(context.Context, time.Duration) error) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	sent := 0
	for scanner.Scan() {
		fields, ok := logline.Parse(scanner.Text())
		if !ok {
			continue
		}
		if err := wait(ctx, pacer.Next(fields)); err != nil {
			return sent, err
		}
		payload, err := json.Marshal(fields)
		if err != nil {
			return sent, err
		}
		if _, err := w.Write(payload); err != nil {
			return sent, fmt.Errorf("send line %d: %w", sent+1, err)
		}
		sent++
	}
	return sent, scanner.Err()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
