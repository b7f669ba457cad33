package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/pavelanni/cloudhire/internal/events"
	"github.com/pavelanni/cloudhire/internal/handler"
	appI18n "github.com/pavelanni/cloudhire/internal/i18n"
	"github.com/pavelanni/cloudhire/internal/model"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP assessment server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringSliceP("questions", "q", nil, "Question bank files to import (.json, .yaml, .csv; repeatable)")
	f.StringP("lang", "l", "en", "Default UI language (en, ru)")
	f.Bool("negotiate-lang", true, "Pick the UI language from Accept-Language")
	f.Duration("time-limit", 30*time.Minute, "Time allotment shown to candidates")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.Bool("email-invites", true, "Email magic links to candidates when issued")
	f.String("admin-password", "", "Initial admin password (or set CLOUDHIRE_ADMIN_PASSWORD)")
	f.String("admin-email", "", "Email of the initial admin, used for report delivery")
	f.Int("queue-size", 64, "In-process event buffer when --amqp-url is empty")
	addDBFlag(cmd)
	addLinkFlags(cmd)
	addPipelineFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := setup(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, v)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := seedAdmin(a.db, v.GetString("admin-password"), v.GetString("admin-email")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if err := loadQuestions(a.db, v.GetStringSlice("questions")); err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	issuer, err := buildIssuer(v, a.db)
	if err != nil {
		return fmt.Errorf("create magic link issuer: %w", err)
	}

	// With RabbitMQ the pipeline runs in `cloudhire worker`; otherwise a
	// local pool handles events in this process.
	var publisher events.Publisher
	if url := v.GetString("amqp-url"); url != "" {
		bus, err := events.DialAMQP(url)
		if err != nil {
			return err
		}
		defer bus.Close()
		publisher = bus
		slog.Info("publishing submission events to RabbitMQ")
	} else {
		bus := events.NewLocalBus(ctx, v.GetInt("workers"), v.GetInt("queue-size"), a.processor.HandleEvent)
		defer bus.Close()
		publisher = bus
		go func() {
			if err := a.processor.ProcessPending(ctx); err != nil {
				slog.Error("processing pending submissions", "error", err)
			}
		}()
	}

	basePath := normalizeBasePath(v.GetString("base-path"))
	examCfg := model.ExamConfig{
		TimeLimit:     v.GetDuration("time-limit"),
		SiteURL:       v.GetString("site-url"),
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		PromptVariant: v.GetString("prompt-variant"),
		EmailInvites:  v.GetBool("email-invites"),
	}

	h, err := handler.New(a.db, examCfg, handler.Deps{
		Issuer:    issuer,
		Files:     a.files,
		Mailer:    a.mailer,
		Events:    publisher,
		Processor: a.processor,
		Metrics:   a.metrics,
		LLM:       a.llmPing,
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang, v.GetBool("negotiate-lang")))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown", "error", err)
		}
	}()

	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"base_path", basePath,
		"site_url", examCfg.SiteURL,
		"time_limit", examCfg.TimeLimit,
		"mail_configured", a.mailer.Configured(),
		"llm_configured", a.llmPing != nil,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
