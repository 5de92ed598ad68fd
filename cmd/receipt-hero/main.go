package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/receipt-hero/internal/receipt"
	"github.com/zombor/receipt-hero/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env is fine; flags and the real environment still apply
	_ = godotenv.Load()

	fs := ff.NewFlagSet("receipt-hero")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		oracleType  = fs.StringLong("oracle", "gemini", "Extraction oracle: 'gemini' or 'ollama'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama vision model name")
		extractURL  = fs.StringLong("extract-url", "", "Base URL of a remote extraction service; replaces the local oracle")
		persistence = fs.StringLong("persistence", "bolt", "Snapshot persistence: 'file', 'bolt' or 'mongo'")
		dataDir     = fs.StringLong("data-dir", "./data", "Directory for file persistence")
		dbPath      = fs.StringLong("db", "receipt-hero.db", "BoltDB file path")
		mongoURI    = fs.StringLong("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
		mongoDB     = fs.StringLong("mongo-db", "receipt_hero", "MongoDB database name")
		concurrency = fs.IntLong("concurrency", 0, "Maximum concurrent extractions per batch (0 = no limit)")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat   = fs.StringLong("log-format", "text", "Log format: text or json")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_HERO"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	setupLogger(*logLevel, *logFormat)

	// Initialize persistence
	slog.Info("Initializing persistence...", "backend", *persistence)
	kv, closeKV, err := openKV(*persistence, *dataDir, *dbPath, *mongoURI, *mongoDB)
	if err != nil {
		slog.Error("Failed to initialize persistence", "error", err)
		os.Exit(1)
	}
	defer closeKV()

	// Initialize extraction
	var extractor scanning.Extractor
	if *extractURL != "" {
		slog.Info("Using remote extraction service", "url", *extractURL)
		extractor = scanning.NewClient(strings.TrimSuffix(*extractURL, "/"))
	} else {
		oracle, err := openOracle(*oracleType, *geminiKey, *geminiModel, *ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize oracle", "error", err)
			os.Exit(1)
		}
		defer oracle.Close()
		extractor = scanning.NewGateway(oracle)
	}

	store := receipt.NewStore(kv)
	store.Initialize()

	processor := receipt.NewProcessorWithDeps(extractor, receipt.NewUUIDGenerator(), *concurrency)
	receiptService := receipt.NewService(processor, store)

	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(receiptService, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

// setupLogger installs the default slog logger
func setupLogger(level, format string) {
	var slogLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: slogLevel}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// openOracle creates the configured extraction oracle
func openOracle(oracleType, geminiKey, geminiModel, ollamaURL, ollamaModel string) (scanning.Oracle, error) {
	switch oracleType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
		}
		slog.Info("Initializing Gemini oracle...", "model", geminiModel)
		return scanning.NewGemini(apiKey, geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama oracle...", "url", ollamaURL, "model", ollamaModel)
		return scanning.NewOllama(ollamaURL, ollamaModel)
	}
	return nil, fmt.Errorf("invalid oracle type %q: valid are gemini or ollama", oracleType)
}

// openKV creates the configured snapshot persistence and its cleanup func
func openKV(backend, dataDir, dbPath, mongoURI, mongoDB string) (receipt.KV, func(), error) {
	switch backend {
	case "file":
		kv, err := receipt.NewLocalStorage(filepath.Clean(dataDir))
		if err != nil {
			return nil, nil, err
		}
		return kv, func() {}, nil
	case "bolt":
		kv, err := receipt.NewBoltDB(dbPath)
		if err != nil {
			return nil, nil, err
		}
		return kv, func() { kv.Close() }, nil
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		kv, err := receipt.NewMongoKV(ctx, mongoURI, mongoDB)
		if err != nil {
			return nil, nil, err
		}
		return kv, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			kv.Close(ctx)
		}, nil
	}
	return nil, nil, fmt.Errorf("invalid persistence backend %q: valid are file, bolt or mongo", backend)
}
