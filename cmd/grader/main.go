package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/xcalificator/grader/internal/blob"
	"github.com/xcalificator/grader/internal/gradebook"
	"github.com/xcalificator/grader/internal/grading"
	"github.com/xcalificator/grader/internal/handler"
	appI18n "github.com/xcalificator/grader/internal/i18n"
	"github.com/xcalificator/grader/internal/llm"
	"github.com/xcalificator/grader/internal/llm/prompts"
	"github.com/xcalificator/grader/internal/metrics"
	"github.com/xcalificator/grader/internal/model"
	"github.com/xcalificator/grader/internal/ocr"
	"github.com/xcalificator/grader/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "grader",
		Short: "Exam auto-grading service",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), extractCmd(), hashTokenCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `grader --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addDBFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db-driver", store.DriverSQLite, "Database driver (sqlite, postgres)")
	f.String("db", "grader.db", "SQLite database path or PostgreSQL connection URL")
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addOCRFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("ocr-url", "http://localhost:8001", "Text recognition service base URL")
	f.Duration("ocr-timeout", ocr.DefaultRecognizerTimeout, "Timeout of one text recognition call")
	f.Int("max-image-dim", ocr.DefaultMaxImageDim, "Longest side of preprocessed images in pixels")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP grading server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	addDBFlags(cmd)
	f.StringSlice("exams", nil, "Exam definition JSON files to import (repeatable)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Duration("llm-timeout", 120*time.Second, "Timeout of one grading call to the LLM")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.StringP("lang", "l", "en", "Default feedback language (en, es)")
	addOCRFlags(cmd)
	f.String("unknown-type-policy", string(model.UnknownAsOpen), "Where untyped questions go (open, pending)")
	f.Bool("defer-open-on-submit", false, "Leave open questions pending at submission; resolve them on regrade")
	f.Int64("max-upload-size", handler.DefaultMaxUploadSize, "Maximum upload size in bytes")
	f.String("blob-driver", "fs", "Upload storage (fs, minio)")
	f.String("upload-dir", "uploads", "Directory for uploaded files (fs driver)")
	f.String("public-base-url", "", "URL prefix of served uploads (fs driver)")
	f.String("minio-endpoint", "localhost:9000", "MinIO endpoint")
	f.String("minio-access-key", "", "MinIO access key")
	f.String("minio-secret-key", "", "MinIO secret key")
	f.String("minio-bucket", "grader-uploads", "MinIO bucket")
	f.Bool("minio-ssl", false, "Use TLS for MinIO")
	f.String("api-token-hash", "", "bcrypt hash of the API bearer token (see hash-token)")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the grades of an exam as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	addDBFlags(cmd)
	f.String("exam-id", "", "Exam to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("exam-id")

	return cmd
}

func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Extract and parse the answers of a scanned or printed exam",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtract,
	}
	addOCRFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func hashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token TOKEN",
		Short: "Print the bcrypt hash of an API token for --api-token-hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return err
		},
	}
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("GRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("grader")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/grader")
	v.AddConfigPath("/etc/grader")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// loadConfig resolves the serve configuration and validates it.
func loadConfig(v *viper.Viper) (model.Config, error) {
	cfg := model.Config{
		Addr:         v.GetString("addr"),
		DBDriver:     v.GetString("db-driver"),
		DBDSN:        v.GetString("db"),
		Lang:         v.GetString("lang"),
		APITokenHash: v.GetString("api-token-hash"),
		CORSOrigins:  v.GetStringSlice("cors-origins"),

		LLMURL:     v.GetString("llm-url"),
		LLMKey:     v.GetString("llm-key"),
		LLMModel:   v.GetString("llm-model"),
		LLMTimeout: v.GetDuration("llm-timeout"),

		OCRURL:     v.GetString("ocr-url"),
		OCRTimeout: v.GetDuration("ocr-timeout"),

		BlobDriver:    v.GetString("blob-driver"),
		UploadDir:     v.GetString("upload-dir"),
		PublicBaseURL: v.GetString("public-base-url"),
		MinIO: model.MinIOConfig{
			Endpoint:  v.GetString("minio-endpoint"),
			AccessKey: v.GetString("minio-access-key"),
			SecretKey: v.GetString("minio-secret-key"),
			Bucket:    v.GetString("minio-bucket"),
			UseSSL:    v.GetBool("minio-ssl"),
		},

		Grading: model.GradingConfig{
			UnknownTypePolicy: model.UnknownTypePolicy(strings.ToLower(v.GetString("unknown-type-policy"))),
			DeferOpenOnSubmit: v.GetBool("defer-open-on-submit"),
			PromptVariant:     strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant"))),
			MaxImageDim:       v.GetInt("max-image-dim"),
			MaxUploadSize:     v.GetInt64("max-upload-size"),
		},
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open database.
	db, err := store.New(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Import exam definitions from all specified files.
	if err := importExams(ctx, db, v.GetStringSlice("exams")); err != nil {
		return fmt.Errorf("import exams: %w", err)
	}
	examCount, err := db.ExamCount(ctx)
	if err != nil {
		return fmt.Errorf("count exams: %w", err)
	}
	if examCount == 0 {
		slog.Warn("no exams stored yet, import some with --exams or POST /api/exams/import")
	} else {
		slog.Info("exams available", "count", examCount)
	}

	// Initialize i18n.
	if err := appI18n.Init(cfg.Lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	slog.Info("feedback language", "default", cfg.Lang, "available", appI18n.Languages())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Create LLM client.
	llmClient, err := llm.New(cfg.LLMURL, cfg.LLMKey, cfg.LLMModel, cfg.Grading.PromptVariant,
		llm.WithTimeout(cfg.LLMTimeout), llm.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	if err := llmClient.Ping(ctx); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", cfg.LLMURL, "model", cfg.LLMModel)

	blobs, err := blob.New(cfg)
	if err != nil {
		return fmt.Errorf("create upload storage: %w", err)
	}

	grader := grading.New(llmClient,
		grading.WithUnknownTypePolicy(cfg.Grading.UnknownTypePolicy),
		grading.WithPhrases(appI18n.PhrasesFor(context.Background())),
		grading.WithMetrics(m),
	)
	pipeline := ocr.NewPipeline(ocr.NewHTTPRecognizer(cfg.OCRURL, cfg.OCRTimeout, m), ocr.FitzReader{},
		cfg.Grading.MaxImageDim)
	grades := gradebook.New(db, grader,
		gradebook.WithExtractor(pipeline),
		gradebook.WithBlobStore(blobs),
		gradebook.WithMetrics(m),
		gradebook.WithDeferOpenOnSubmit(cfg.Grading.DeferOpenOnSubmit),
	)

	routerCfg := handler.RouterConfig{
		Lang:         cfg.Lang,
		CORSOrigins:  cfg.CORSOrigins,
		APITokenHash: cfg.APITokenHash,
		Gatherer:     reg,
		Health:       db.Ping,
		Timeout:      cfg.LLMTimeout + cfg.OCRTimeout,
	}
	if fs, ok := blobs.(*blob.FS); ok {
		routerCfg.UploadDir = fs.Dir()
	}
	h := handler.New(grades, db, cfg.Grading.MaxUploadSize)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.NewRouter(h, routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info("starting server",
		"addr", cfg.Addr,
		"db_driver", cfg.DBDriver,
		"model", cfg.LLMModel,
		"llm_url", cfg.LLMURL,
		"ocr_url", cfg.OCRURL,
		"lang", cfg.Lang,
		"prompt_variant", cfg.Grading.PromptVariant,
		"unknown_type_policy", cfg.Grading.UnknownTypePolicy,
		"defer_open_on_submit", cfg.Grading.DeferOpenOnSubmit,
		"blob_driver", cfg.BlobDriver,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, err := store.New(ctx, v.GetString("db-driver"), v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportGrades(ctx, v.GetString("exam-id"))
	if err != nil {
		return fmt.Errorf("export grades: %w", err)
	}
	return writeJSONOutput(v.GetString("output"), export)
}

func runExtract(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	pipeline := ocr.NewPipeline(ocr.NewHTTPRecognizer(v.GetString("ocr-url"), v.GetDuration("ocr-timeout"), nil),
		ocr.FitzReader{}, v.GetInt("max-image-dim"))
	ext, err := pipeline.Process(context.Background(), model.UploadedFile{
		Filename: filepath.Base(args[0]),
		Data:     data,
	})
	if err != nil {
		return fmt.Errorf("extract %s: %w", args[0], err)
	}
	return writeJSONOutput("-", ext)
}

func writeJSONOutput(outPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func importExams(ctx context.Context, db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if _, err := db.ImportExams(ctx, path, data); err != nil {
			return err
		}
	}
	return nil
}
