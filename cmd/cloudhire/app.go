package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/pavelanni/cloudhire/internal/auth"
	"github.com/pavelanni/cloudhire/internal/handler"
	"github.com/pavelanni/cloudhire/internal/llm"
	"github.com/pavelanni/cloudhire/internal/llm/prompts"
	"github.com/pavelanni/cloudhire/internal/mail"
	"github.com/pavelanni/cloudhire/internal/metrics"
	"github.com/pavelanni/cloudhire/internal/model"
	"github.com/pavelanni/cloudhire/internal/pipeline"
	"github.com/pavelanni/cloudhire/internal/questions"
	"github.com/pavelanni/cloudhire/internal/scoring"
	"github.com/pavelanni/cloudhire/internal/storage"
	"github.com/pavelanni/cloudhire/internal/store"
)

func addDBFlag(cmd *cobra.Command) {
	cmd.Flags().String("db", "cloudhire.db", "SQLite database path")
}

func addLinkFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("site-url", "http://localhost:8080", "Public origin used in magic links")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /hire)")
	f.String("magic-secret", "", "HMAC secret for magic-link tokens (at least 16 characters)")
	f.Duration("magic-ttl", auth.DefaultTTL, "Magic link lifetime")
}

func addMailFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("mail-from", "CloudHire <noreply@localhost>", "Sender address")
	f.String("resend-api-key", "", "Resend API key (takes precedence over SMTP)")
	f.String("smtp-host", "", "SMTP relay host")
	f.String("smtp-port", "587", "SMTP relay port")
	f.String("smtp-username", "", "SMTP username")
	f.String("smtp-password", "", "SMTP password")
	f.StringSlice("report-recipients", nil, "Extra report recipients besides admin users")
}

// addPipelineFlags registers everything the report pipeline needs: scoring,
// grading, storage and mail.
func addPipelineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-provider", llm.ProviderOpenAI, "LLM provider (openai, gemini, anthropic)")
	f.String("llm-url", "", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the LLM provider")
	f.String("llm-model", "", "LLM model name (provider default when empty)")
	f.Float64("llm-temperature", 0.2, "Sampling temperature")
	f.Int("llm-max-tokens", 0, "Maximum completion tokens (0 = provider default)")
	f.Duration("llm-timeout", 2*time.Minute, "Per-request LLM timeout")
	f.Int("llm-retries", 3, "Retries for transient LLM errors")
	f.Float64("llm-rate", 1, "Maximum LLM requests per second")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")

	f.Int("total-multiple-choice", scoring.DefaultTotals.MultipleChoice, "Expected multiple-choice questions")
	f.Int("total-concepts", scoring.DefaultTotals.Concepts, "Expected concept questions")
	f.Int("total-calculations", scoring.DefaultTotals.Calculations, "Expected calculation questions")
	f.Bool("totals-from-bank", false, "Count section totals from the question bank for every submission")
	f.Int("efficiency-excellent", scoring.DefaultThresholds.Excellent, "Upper bound in seconds for Excellent time efficiency")
	f.Int("efficiency-good", scoring.DefaultThresholds.Good, "Upper bound in seconds for Good time efficiency")
	f.Int("efficiency-adequate", scoring.DefaultThresholds.Adequate, "Upper bound in seconds for Adequate time efficiency")

	f.String("storage-dir", "uploads", "Directory for uploaded files when S3 is not configured")
	f.String("s3-endpoint", "", "S3-compatible endpoint (e.g. Cloudflare R2); empty for AWS")
	f.String("s3-region", "", "S3 region")
	f.String("s3-access-key", "", "S3 access key; enables the S3 backend")
	f.String("s3-secret-key", "", "S3 secret key")
	f.String("s3-bucket-prefix", "", "Prefix for the resumes, transcripts and projects buckets")
	f.Duration("s3-url-expiry", 15*time.Minute, "Lifetime of presigned download URLs")

	f.String("amqp-url", "", "RabbitMQ URL; empty runs the pipeline in-process")
	f.Int("workers", 2, "Concurrent report workers")

	addMailFlags(cmd)
}

// app is the set of collaborators shared by serve and worker.
type app struct {
	db        *store.Store
	files     storage.FileStore
	mailer    *mail.Dispatcher
	metrics   *metrics.Metrics
	processor *pipeline.Processor
	llmPing   handler.Pinger
}

func buildApp(ctx context.Context, v *viper.Viper) (*app, error) {
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{db: db, metrics: metrics.New()}

	if a.files, err = buildFileStore(ctx, v); err != nil {
		db.Close()
		return nil, err
	}
	a.mailer = buildMailer(v, db)

	agg, err := scoring.New(scoring.Config{
		Totals: scoring.SectionTotals{
			MultipleChoice: v.GetInt("total-multiple-choice"),
			Concepts:       v.GetInt("total-concepts"),
			Calculations:   v.GetInt("total-calculations"),
		},
		Thresholds: scoring.EfficiencyThresholds{
			Excellent: v.GetInt("efficiency-excellent"),
			Good:      v.GetInt("efficiency-good"),
			Adequate:  v.GetInt("efficiency-adequate"),
		},
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	grader, ping, err := buildGrader(ctx, v)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.llmPing = ping

	opts := pipeline.Options{
		Mailer:         a.mailer,
		Files:          a.files,
		Metrics:        a.metrics,
		TotalsFromBank: v.GetBool("totals-from-bank"),
	}
	if grader != nil {
		opts.Grader = grader
	}
	a.processor = pipeline.New(db, agg, opts)
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func buildFileStore(ctx context.Context, v *viper.Viper) (storage.FileStore, error) {
	if v.GetString("s3-access-key") != "" {
		s3, err := storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:     v.GetString("s3-endpoint"),
			Region:       v.GetString("s3-region"),
			AccessKey:    v.GetString("s3-access-key"),
			SecretKey:    v.GetString("s3-secret-key"),
			BucketPrefix: v.GetString("s3-bucket-prefix"),
			URLExpiry:    v.GetDuration("s3-url-expiry"),
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 store: %w", err)
		}
		slog.Info("using S3 file storage", "endpoint", v.GetString("s3-endpoint"))
		return s3, nil
	}
	local, err := storage.NewLocalStore(v.GetString("storage-dir"))
	if err != nil {
		return nil, err
	}
	slog.Info("using local file storage", "dir", local.Root)
	return local, nil
}

func buildMailer(v *viper.Viper, db *store.Store) *mail.Dispatcher {
	from := v.GetString("mail-from")
	var sender mail.Sender
	switch {
	case v.GetString("resend-api-key") != "":
		sender = mail.NewResendSender(v.GetString("resend-api-key"), from)
		slog.Info("mail via Resend")
	case v.GetString("smtp-host") != "":
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     v.GetString("smtp-host"),
			Port:     v.GetString("smtp-port"),
			Username: v.GetString("smtp-username"),
			Password: v.GetString("smtp-password"),
			From:     from,
		})
		slog.Info("mail via SMTP", "host", v.GetString("smtp-host"))
	default:
		sender = mail.LogSender{}
		slog.Warn("no mail transport configured, emails are only logged")
	}
	return mail.NewDispatcher(sender, v.GetStringSlice("report-recipients"), db)
}

// buildGrader returns a nil grader when no LLM is configured; reports are
// then graded heuristically.
func buildGrader(ctx context.Context, v *viper.Viper) (*llm.Grader, handler.Pinger, error) {
	variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", variant)
		variant = string(prompts.PromptStandard)
	}

	cfg := llm.Config{
		Provider:    v.GetString("llm-provider"),
		BaseURL:     v.GetString("llm-url"),
		APIKey:      v.GetString("llm-key"),
		Model:       v.GetString("llm-model"),
		Temperature: v.GetFloat64("llm-temperature"),
		MaxTokens:   v.GetInt("llm-max-tokens"),
		Timeout:     v.GetDuration("llm-timeout"),
	}
	client, err := llm.New(ctx, cfg)
	if errors.Is(err, llm.ErrNotConfigured) {
		slog.Warn("LLM not configured, reports use heuristic grading")
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create LLM client: %w", err)
	}
	ping, _ := client.(handler.Pinger)

	var c llm.Completer = client
	c = llm.WithRetry(c, v.GetInt("llm-retries"), time.Second, 30*time.Second)
	if r := v.GetFloat64("llm-rate"); r > 0 {
		c = llm.WithRateLimit(c, rate.Limit(r), 1)
	}
	grader, err := llm.NewGrader(c, prompts.PromptVariant(variant))
	if err != nil {
		return nil, nil, fmt.Errorf("create grader: %w", err)
	}
	slog.Info("LLM grading enabled", "provider", cfg.Provider, "model", client.Model(), "variant", variant)
	return grader, ping, nil
}

func buildIssuer(v *viper.Viper, db *store.Store) (*auth.Issuer, error) {
	return auth.NewIssuer(
		v.GetString("magic-secret"),
		db,
		v.GetString("site-url"),
		normalizeBasePath(v.GetString("base-path")),
		v.GetDuration("magic-ttl"),
	)
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(p, "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// loadQuestions imports question bank files. Files already imported are
// skipped by content hash.
func loadQuestions(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if _, err := questions.Import(db, path, data); err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
	}
	return nil
}

func seedAdmin(db *store.Store, password, email string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or CLOUDHIRE_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		Email:        strings.ToLower(strings.TrimSpace(email)),
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
