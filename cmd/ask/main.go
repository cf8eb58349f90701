package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"tutorbase/internal/bootstrap"
	"tutorbase/internal/config"
	"tutorbase/internal/core/domain"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	ctx := context.Background()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	switch os.Args[1] {
	case "upload":
		runUpload(ctx, app, os.Args[2:])
	case "ask":
		runAsk(ctx, app, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  ask upload -collection <id> -file <path>")
	fmt.Fprintln(os.Stderr, "  ask ask -collection <id> -q <question> [-limit N] [-threshold F] [-web]")
}

func runUpload(ctx context.Context, app *bootstrap.App, args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	collection := fs.String("collection", "", "collection id")
	path := fs.String("file", "", "path to the document")
	_ = fs.Parse(args)

	if *collection == "" || *path == "" {
		usage()
		os.Exit(2)
	}

	f, err := os.Open(*path)
	if err != nil {
		log.Fatalf("open file: %v", err)
	}
	defer f.Close()

	mimeType := mime.TypeByExtension(filepath.Ext(*path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	doc, err := app.IngestUC.Upload(ctx, *collection, filepath.Base(*path), mimeType, f)
	if err != nil {
		log.Fatalf("upload error: %v", err)
	}
	fmt.Printf("uploaded %s as document %s (status %s)\n", doc.Filename, doc.ID, doc.Status)
}

func runAsk(ctx context.Context, app *bootstrap.App, args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	collection := fs.String("collection", "", "collection id")
	question := fs.String("q", "", "question to answer")
	limit := fs.Int("limit", 0, "max chunks to retrieve")
	threshold := fs.Float64("threshold", 0, "minimum similarity")
	web := fs.Bool("web", false, "supplement with web search")
	asJSON := fs.Bool("json", false, "print the full answer as json")
	_ = fs.Parse(args)

	if *collection == "" || *question == "" {
		usage()
		os.Exit(2)
	}

	start := time.Now()
	answer, err := app.AskUC.Ask(ctx, *collection, *question, domain.AskOptions{
		Limit:        *limit,
		Threshold:    *threshold,
		UseWebSearch: *web,
	})
	if err != nil {
		app.QueryMetrics.RecordAsk("ask-cli", "", 0, time.Since(start), err)
		log.Fatalf("ask error: %v", err)
	}
	app.QueryMetrics.RecordAsk("ask-cli", string(answer.Tier), answer.ChunksRetrieved, time.Since(start), nil)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(answer); err != nil {
			log.Fatalf("encode answer: %v", err)
		}
		return
	}

	fmt.Println(answer.Text)
	if len(answer.Citations) > 0 {
		fmt.Println("\nSources:")
		for _, c := range answer.Citations {
			if c.URL != "" {
				fmt.Printf("  [%d] %s (%s)\n", c.Index, c.Title, c.URL)
				continue
			}
			fmt.Printf("  [%d] %s, pages %d-%d\n", c.Index, c.Filename, c.PageStart, c.PageEnd)
		}
	}
}
