package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sheetmap/internal"
	"sheetmap/internal/config"
	"sheetmap/internal/connectors"
	gmailconnector "sheetmap/internal/connectors/gmail"
	imapconnector "sheetmap/internal/connectors/imap"
	"sheetmap/internal/grid"
	"sheetmap/internal/listener"
	"sheetmap/internal/llm"
	"sheetmap/internal/logging"
	"sheetmap/internal/pipeline"
	"sheetmap/internal/registry"
	"sheetmap/internal/storage"
	"sheetmap/internal/web"
)

func main() {
	cfg, err := config.Load()
	must(err)
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "parse":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "input file path (.xlsx/.xls/.html)")
		output := fs.String("output", "", "optional output xlsx path")
		persist := fs.Bool("persist", false, "store the run in the database")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--input is required"))
		}

		var db *storage.DB
		if *persist {
			db, err = storage.Open(cfg.DBPath)
			must(err)
			defer db.Close()
		}

		g, err := loadGrid(*input)
		must(err)
		processor := pipeline.NewProcessingService(cfg, registry.New(), makeGateway(cfg), db)
		result, err := processor.ParseGrid(context.Background(), filepath.Base(*input), g)
		must(err)

		if strings.TrimSpace(*output) != "" {
			must(pipeline.ExportResultToXLSX(result, *output))
			fmt.Printf("parse done cells=%d successful=%d semanticCalls=%d output=%s\n",
				result.TotalCells, result.SuccessfulParses, result.SemanticCalls, *output)
			return
		}
		encoded, err := json.MarshalIndent(result, "", "  ")
		must(err)
		fmt.Println(string(encoded))
	case "serve":
		db, err := storage.Open(cfg.DBPath)
		must(err)
		defer db.Close()
		processor := pipeline.NewProcessingService(cfg, registry.New(), makeGateway(cfg), db)
		must(web.NewServer(cfg, processor).ListenAndServe())
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.ListenerProvider, "gmail|imap")
		label := fs.String("label", cfg.ListenerLabel, "mailbox/label")
		max := fs.Int("max", cfg.ListenerFetchMax, "max messages")
		_ = fs.Parse(os.Args[2:])

		db, err := storage.Open(cfg.DBPath)
		must(err)
		defer db.Close()
		conn, err := makeConnector(cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn)
		result, err := fetch.FetchAndStore(*label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d\n", *provider, result.Fetched, result.Stored)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.ListenerProvider, "gmail|imap")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", cfg.ListenerProcessBatch, "batch size")
		_ = fs.Parse(os.Args[2:])

		db, err := storage.Open(cfg.DBPath)
		must(err)
		defer db.Close()
		processor := pipeline.NewProcessingService(cfg, registry.New(), makeGateway(cfg), db)
		if strings.TrimSpace(*messageID) != "" {
			tables, err := processor.ProcessByProviderMessageID(context.Background(), *provider, *messageID)
			must(err)
			fmt.Printf("processed report messageId=%s tables=%d\n", *messageID, tables)
			return
		}
		reports, tables, err := processor.ProcessPending(context.Background(), *batch, *provider)
		must(err)
		fmt.Printf("processed pending reports=%d tables=%d\n", reports, tables)
	case "mail:listen":
		db, err := storage.Open(cfg.DBPath)
		must(err)
		defer db.Close()
		processor := pipeline.NewProcessingService(cfg, registry.New(), makeGateway(cfg), db)
		must(listener.NewService(db, cfg, processor).Run(context.Background()))
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.Int("runId", 0, "stored parse run id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if *runID == 0 || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--runId and --out are required"))
		}

		db, err := storage.Open(cfg.DBPath)
		must(err)
		defer db.Close()
		run, err := db.GetParseRun(*runID)
		must(err)
		if run == nil {
			must(fmt.Errorf("no parse run with runId=%d", *runID))
		}
		var result internal.ParseResult
		must(json.Unmarshal([]byte(run.ResultJSON), &result))
		must(pipeline.ExportResultToXLSX(result, *out))
		fmt.Printf("exported run=%d cells=%d to %s\n", run.ID, result.TotalCells, *out)
	default:
		usage()
		os.Exit(1)
	}
}

func loadGrid(path string) (grid.Grid, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xls"):
		return grid.FromXLSX(content)
	case strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".htm"):
		return grid.FromHTMLTable(string(content))
	default:
		return nil, fmt.Errorf("unsupported input type: %s", filepath.Ext(path))
	}
}

func makeGateway(cfg config.Config) *llm.Client {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return nil
	}
	return llm.NewClient(cfg)
}

func makeConnector(cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func usage() {
	fmt.Println("usage: sheetmap <command>")
	fmt.Println("commands:")
	fmt.Println("  parse --input=report.xlsx [--output=out.xlsx] [--persist]")
	fmt.Println("  serve")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=20")
	fmt.Println("  mail:process --provider=gmail|imap [--messageId=...] [--batch=20]")
	fmt.Println("  mail:listen")
	fmt.Println("  export:xlsx --runId=1 --out=./out/result.xlsx")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
