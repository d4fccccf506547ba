package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/saber/internal/analysis"
	"github.com/pavelanni/saber/internal/authz"
	"github.com/pavelanni/saber/internal/handler"
	appI18n "github.com/pavelanni/saber/internal/i18n"
	"github.com/pavelanni/saber/internal/llm"
	"github.com/pavelanni/saber/internal/llm/prompts"
	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/phase"
	"github.com/pavelanni/saber/internal/ranking"
	"github.com/pavelanni/saber/internal/store"
	"github.com/pavelanni/saber/internal/subject"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "saber",
		Short:        "Saber 11 phase progression and adaptive assessment engine",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, authorizeCmd(), revokeCmd(), rankingCmd(), importCmd(), hashKeyCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "saber.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", "es", "Default language for messages (es, en)")
	f.Int("ranking-concurrency", ranking.DefaultConcurrency, "Maximum concurrent score lookups when ranking a grade")
	f.Int("phase2-questions", 25, "Default Phase-2 question budget")
	f.String("admin-key-hash", "", "bcrypt hash of the admin key (see 'saber hash-key'); empty disables admin routes")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins (repeatable)")
	f.String("llm-url", "", "OpenAI-compatible API base URL; empty disables study recommendations")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("llm-tone", string(prompts.ToneStandard), "Recommendation tone (concise, standard, detailed)")
	return cmd
}

func authorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Authorize a grade (or one subject) for a phase",
		RunE:  runAuthorize,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.String("grade", "", "Grade ID (required)")
	f.String("grade-name", "", "Grade display name")
	f.String("phase", "", "Phase: first, second, third (required)")
	f.String("subject", "", "Restrict the authorization to one subject")
	f.String("admin", "cli", "Administrator ID recorded on the authorization")
	f.String("institution", "", "Institution ID")
	f.String("campus", "", "Campus ID")
	_ = cmd.MarkFlagRequired("grade")
	_ = cmd.MarkFlagRequired("phase")
	return cmd
}

func revokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a phase authorization",
		RunE:  runRevoke,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.String("grade", "", "Grade ID (required)")
	f.String("phase", "", "Phase: first, second, third (required)")
	f.String("subject", "", "Revoke only this subject")
	_ = cmd.MarkFlagRequired("grade")
	_ = cmd.MarkFlagRequired("phase")
	return cmd
}

func rankingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ranking",
		Short: "Print a student's ranking within their grade as JSON",
		RunE:  runRanking,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.String("user", "", "Student ID (required)")
	f.String("phase", "first", "Phase: first, second, third")
	f.Int("ranking-concurrency", ranking.DefaultConcurrency, "Maximum concurrent score lookups")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func hashKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-key KEY",
		Short: "Print the bcrypt hash of an admin key for --admin-key-hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash admin key: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return err
		},
	}
	return cmd
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

	v.SetEnvPrefix("SABER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("saber")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/saber")
	v.AddConfigPath("/etc/saber")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// openStore runs the startup checks shared by every command and opens the database.
func openStore(v *viper.Viper) (*store.Store, error) {
	if err := subject.Validate(); err != nil {
		return nil, fmt.Errorf("subject alias table: %w", err)
	}
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	cfg := model.EngineConfig{
		RankingConcurrency: v.GetInt("ranking-concurrency"),
		Phase2Questions:    v.GetInt("phase2-questions"),
		AdminKeyHash:       v.GetString("admin-key-hash"),
		CORSOrigins:        v.GetStringSlice("cors-origins"),
		Lang:               lang,
	}
	if cfg.AdminKeyHash == "" {
		slog.Warn("no admin key hash configured, admin routes are disabled")
	}

	advisor := newAdvisor(v, lang)
	engine := phase.New(db, advisor, nil, cfg)

	h, err := handler.New(engine)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"lang", lang,
		"ranking_concurrency", cfg.RankingConcurrency,
		"phase2_questions", cfg.Phase2Questions,
		"recommendations", advisor != nil,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// newAdvisor returns nil when no LLM endpoint is configured. An unreachable
// endpoint is logged; recommendations are advisory.
func newAdvisor(v *viper.Viper, lang string) analysis.Recommender {
	url := v.GetString("llm-url")
	if url == "" {
		return nil
	}
	tone := strings.ToLower(strings.TrimSpace(v.GetString("llm-tone")))
	if !prompts.IsValidTone(tone) {
		slog.Warn("invalid llm-tone, using standard", "tone", tone)
		tone = string(prompts.ToneStandard)
	}
	if err := prompts.Load(nil); err != nil {
		slog.Error("could not load recommendation prompts, recommendations disabled", "error", err)
		return nil
	}
	client := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), prompts.Tone(tone), lang)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		slog.Warn("LLM health check failed, recommendations may be unavailable", "url", url, "error", err)
	} else {
		slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"), "tone", tone)
	}
	return client
}

func parsePhaseAndSubject(v *viper.Viper) (model.Phase, subject.Subject, error) {
	p, err := model.ParsePhase(v.GetString("phase"))
	if err != nil {
		return "", "", err
	}
	var subj subject.Subject
	if name := v.GetString("subject"); name != "" {
		if subj, err = subject.Parse(name); err != nil {
			return "", "", err
		}
	}
	return p, subj, nil
}

func runAuthorize(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	p, subj, err := parsePhaseAndSubject(v)
	if err != nil {
		return err
	}
	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	rec, err := authz.New(db).AuthorizePhase(cmd.Context(), authz.Request{
		GradeID:       v.GetString("grade"),
		GradeName:     v.GetString("grade-name"),
		Phase:         p,
		Subject:       subj,
		AdminID:       v.GetString("admin"),
		InstitutionID: v.GetString("institution"),
		CampusID:      v.GetString("campus"),
	})
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	return printJSON(cmd, rec)
}

func runRevoke(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	p, subj, err := parsePhaseAndSubject(v)
	if err != nil {
		return err
	}
	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	rec, err := authz.New(db).RevokePhaseAuthorization(cmd.Context(), v.GetString("grade"), p, subj)
	if err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	if rec == nil {
		slog.Warn("no authorization to revoke", "grade_id", v.GetString("grade"), "phase", p, "subject", subj)
	}
	return printJSON(cmd, rec)
}

func runRanking(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	p, err := model.ParsePhase(v.GetString("phase"))
	if err != nil {
		return err
	}
	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	engine := phase.New(db, nil, nil, model.EngineConfig{RankingConcurrency: v.GetInt("ranking-concurrency")})
	res, err := engine.Ranking().FetchStudentRanking(cmd.Context(), ranking.Request{UserID: v.GetString("user"), Phase: p})
	if err != nil {
		return fmt.Errorf("ranking: %w", err)
	}
	return printJSON(cmd, res)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
