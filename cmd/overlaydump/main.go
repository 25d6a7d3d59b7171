// Package main provides a diagnostic tool that parses a book's media
// overlays and prints the resulting alignment model.
package main

import (
	"encoding/json/v2"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/listenupapp/listenup-reader/internal/overlay"
)

func main() {
	asJSON := flag.Bool("json", false, "Emit the full model as JSON")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-json] <book.epub>\n", os.Args[0])
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	model, err := overlay.Load(flag.Arg(0), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load book: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		if err := json.MarshalWrite(os.Stdout, model, json.Deterministic(true)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode model: %v\n", err)
			os.Exit(1)
		}
		fmt.Println()
		return
	}

	fmt.Printf("%s\n", model.Title)
	fmt.Printf("  sections: %d, aligned duration: %.1fs\n\n", len(model.Sections), model.TotalDuration())

	for i := range model.Sections {
		sec := &model.Sections[i]
		kind := "text-only"
		if sec.HasAudio() {
			kind = fmt.Sprintf("%d entries, %.1fs", len(sec.Entries), sec.Duration())
		}
		label := sec.Label
		if label == "" {
			label = "(unlabeled)"
		}
		fmt.Printf("%3d  %-40s %s  [%s]\n", sec.Index, label, sec.Path, kind)
	}
}
