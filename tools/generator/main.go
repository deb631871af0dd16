package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

var statusCycle = []string{"START", "INFO", "SUCCESS"}

// template mirrors a production event; Status, Tid and Uxt are filled per packet.
var template = map[string]string{
	"Uxd": "03/12/2025",
	"Eid": "sss",
	"Hnm": "bdolitutapp1.telkom.co.za",
	"Pid": "4272",
	"Fid": "_log_QueryProviderEmployeesByFunction",
	"Fnm": "ssssessionimpl.cc",
	"Mtp": "TrnEnd",
	"Key": "11",
	"Uid": "Kgopajt",
	"Cid": "PIGGYBACK NOT USED",
	"Icn": "10.254.105.48",
	"Ret": "0",
	"Ern": "0",
	"Ct1": "17547",
	"Ct2": "-1:0",
	"Msg": "Transaction ended with success",
}

// sequence yields START, INFO, SUCCESS for one transaction id, then moves to
// a fresh id.
type sequence struct {
	tid   string
	index int
	newID func() string
}

func newSequence(newID func() string) *sequence {
	return &sequence{tid: newID(), newID: newID}
}

func (s *sequence) next(now time.Time) map[string]string {
	event := make(map[string]string, len(template)+3)
	for k, v := range template {
		event[k] = v
	}
	event["Status"] = statusCycle[s.index]
	event["Tid"] = s.tid
	event["Uxt"] = now.Format("15:04:05.000")

	s.index = (s.index + 1) % len(statusCycle)
	if s.index == 0 {
		s.tid = s.newID()
	}
	return event
}

func main() {
	target := flag.String("addr", envOr("UDP_ADDR", "127.0.0.1:20000"), "UDP address of the relay")
	pps := flag.Int("pps", 100, "Packets per second")
	duration := flag.Duration("d", 0, "How long to run (0 runs until interrupted)")
	flag.Parse()

	if err := checkRate(*pps); err != nil {
		fmt.Fprintf(os.Stderr, "usage: generator [-addr host:port] [-pps n] [-d duration]: %v\n", err)
		os.Exit(2)
	}

	conn, err := net.Dial("udp", *target)
	if err != nil {
		log.Fatalf("failed to dial %s: %v", *target, err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	log.Printf("Starting generator -> %s at %d pkts/s (START -> INFO -> SUCCESS per Tid)", *target, *pps)

	limiter := rate.NewLimiter(rate.Limit(*pps), max(1, *pps/10))
	seq := newSequence(uuid.NewString)
	start := time.Now()
	var sent, failed int64

	for {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		payload, err := json.Marshal(seq.next(time.Now()))
		if err != nil {
			failed++
			continue
		}
		if _, err := conn.Write(payload); err != nil {
			failed++
			continue
		}
		sent++
		if sent%int64(*pps) == 0 {
			log.Printf("Sent %d pkts | Avg Rate: %.1f pkts/s", sent, float64(sent)/time.Since(start).Seconds())
		}
	}

	elapsed := time.Since(start).Seconds()
	log.Println("Generator stopped.")
	log.Printf("Sent: %d, Errors: %d, Avg Rate: %.1f pkts/s", sent, failed, float64(sent)/elapsed)
}

// checkRate rejects rates the limiter and progress log cannot use.
func checkRate(pps int) error {
	if pps <= 0 {
		return fmt.Errorf("-pps must be positive, got %d", pps)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
