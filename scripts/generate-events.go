//go:build ignore

// Package main writes synthetic change notifications into a spool directory
// for load testing 'indexgen run'.
// Usage: go run scripts/generate-events.go -events 1000 -pids 100 -output /tmp/indexgen-spool
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/indexgen/internal/meta"
	"github.com/Aman-CERP/indexgen/internal/notify"
)

var (
	numEvents = flag.Int("events", 1000, "Number of events to generate")
	numPIDs   = flag.Int("pids", 100, "Number of distinct identifiers")
	outputDir = flag.String("output", "testdata/spool", "Spool directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var memberNodes = []string{"urn:node:KNB", "urn:node:ARCTIC", "urn:node:ESS_DIVE", "urn:node:CN"}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
		os.Exit(1)
	}

	serials := make([]int64, *numPIDs)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < *numEvents; i++ {
		n := rng.Intn(*numPIDs)
		serials[n]++

		kind := notify.KindUpdate
		switch {
		case serials[n] == 1:
			kind = notify.KindAdd
		case rng.Intn(50) == 0:
			kind = notify.KindDelete
		}

		snap := meta.Snapshot{
			Identifier:    fmt.Sprintf("urn:uuid:%s", uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprint(n)))),
			DateModified:  base.Add(time.Duration(i) * time.Second),
			SerialVersion: big.NewInt(serials[n]),
			FormatID:      "eml://ecoinformatics.org/eml-2.1.1",
			Size:          uint64(rng.Intn(1 << 20)),
		}
		for j := 0; j <= rng.Intn(len(memberNodes)); j++ {
			snap.Replicas = append(snap.Replicas, meta.Replica{
				MemberNode: memberNodes[j],
				Verified:   snap.DateModified.Add(-time.Hour),
			})
		}

		ev := notify.Event{
			ID:         uuid.NewString(),
			Kind:       kind,
			Snapshot:   snap,
			ObjectPath: fmt.Sprintf("/var/data/objects/%02x/%d", n%256, n),
		}
		data, err := json.Marshal(ev)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode event: %v\n", err)
			os.Exit(1)
		}

		// Dot-prefixed until renamed so the spool never sees a partial file.
		name := fmt.Sprintf("%08d-%s.json", i, ev.ID)
		tmp := filepath.Join(*outputDir, "."+name)
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write event: %v\n", err)
			os.Exit(1)
		}
		if err := os.Rename(tmp, filepath.Join(*outputDir, name)); err != nil {
			fmt.Fprintf(os.Stderr, "rename event: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Wrote %d events for %d identifiers to %s\n", *numEvents, *numPIDs, *outputDir)
}
