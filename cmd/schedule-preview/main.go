// Package main provides a CLI that prints the reminder schedule for a
// medications document without running the service.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/upmed/go-remind/internal/domain/prescription"
	"github.com/upmed/go-remind/internal/domain/schedule"
	"github.com/upmed/go-remind/internal/scheduling/synthesizer"
)

type input struct {
	Medications []prescription.MedicationOrder `json:"medications"`
	Anchors     *schedule.Anchors              `json:"anchors,omitempty"`
}

func main() {
	tz := flag.String("tz", "Asia/Seoul", "IANA time zone for all wall-clock anchors")
	file := flag.String("f", "-", "medications JSON file, - for stdin")
	flag.Parse()

	if err := run(*tz, *file); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(tz, file string) error {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", tz, err)
	}

	var r io.Reader = os.Stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var in input
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}

	doc := prescription.Document{Medications: in.Medications}
	if err := doc.Validate(); err != nil {
		return err
	}

	anchors := schedule.DefaultAnchors()
	if in.Anchors != nil {
		anchors = *in.Anchors
	}

	entries, err := synthesizer.New(loc).SynthesizeDocument(&doc, anchors, time.Now())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
