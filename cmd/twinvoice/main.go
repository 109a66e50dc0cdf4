// Command twinvoice answers recorded interview questions in the voice of a
// configured persona.
//
// Every audio file named on the command line is one question. All questions
// share one conversation, so later answers can refer to earlier ones.
//
//	twinvoice -config twinvoice.yaml -out answers/ question1.webm question2.wav
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/twinvoice/internal/config"
	"github.com/MrWong99/twinvoice/internal/health"
	"github.com/MrWong99/twinvoice/internal/observe"
	"github.com/MrWong99/twinvoice/internal/session"
	"github.com/MrWong99/twinvoice/pkg/types"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	// ---- flags ----
	fs := flag.NewFlagSet("twinvoice", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the YAML configuration file (built-in defaults when empty)")
	envPath := fs.String("env", ".env", "path to an optional dotenv file")
	outDir := fs.String("out", "", "directory to write synthesised answers to")
	play := fs.Bool("play", false, "play synthesised answers with speech.player")
	hold := fs.Bool("serve", false, "keep serving metrics_addr after all questions are answered")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	files := fs.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "twinvoice: no audio files given")
		fs.Usage()
		return 2
	}

	// ---- environment ----
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "twinvoice: load %s: %v\n", *envPath, err)
		return 1
	}

	// ---- configuration ----
	cfg, err := loadConfig(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "twinvoice: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "twinvoice: %v\n", err)
		}
		return 1
	}

	// ---- logger ----
	slog.SetDefault(newLogger(cfg.Server.LogLevel, cfg.Server.LogFormat, os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- telemetry ----
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "twinvoice"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	// ---- pipeline ----
	p, err := build(cfg, config.DefaultRegistry(), *play)
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}
	slog.Info("twinvoice ready",
		"persona", p.profile.Name,
		"providers", p.router.Order(),
		"stt_backends", p.stt.Len(),
		"speech", p.speaker != nil,
	)

	// ---- operator server ----
	var srv *http.Server
	if cfg.Server.MetricsAddr != "" {
		srv = startServer(cfg.Server.MetricsAddr, health.New(p.checkers...))
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	// ---- questions ----
	sess := session.NewLog(session.LogConfig{MaxTurns: cfg.Session.MaxTurns})
	observe.DefaultMetrics().ActiveSessions.Add(ctx, 1)
	defer observe.DefaultMetrics().ActiveSessions.Add(context.Background(), -1)

	failed := 0
	for i, path := range files {
		if ctx.Err() != nil {
			break
		}
		if !answerFile(ctx, p, sess, i+1, path, *outDir, stdout) {
			failed++
		}
	}

	if srv != nil && *hold {
		slog.Info("serving metrics, press Ctrl+C to exit", "addr", cfg.Server.MetricsAddr)
		<-ctx.Done()
	}
	if failed > 0 {
		return 1
	}
	return 0
}

// answerFile answers the question recorded at path and prints the result. It
// reports false when the file could not be read or no answer was produced.
func answerFile(ctx context.Context, p *pipeline, sess *session.Log, n int, path, outDir string, stdout io.Writer) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stdout, "[%d] %s: %v\n", n, path, err)
		return false
	}

	reply := p.orch.Handle(ctx, clipFromFile(path, data), sess)

	fmt.Fprintf(stdout, "[%d] %s\n", n, path)
	if reply.Transcript != "" {
		fmt.Fprintf(stdout, "  Q: %s\n", reply.Transcript)
	}
	if !reply.HasAnswer() {
		fmt.Fprintf(stdout, "  !  %s\n", reply.Notice)
		return false
	}
	fmt.Fprintf(stdout, "  A: %s\n", reply.Answer)
	fmt.Fprintf(stdout, "     (%s via %s)\n", reply.Status, reply.Provider)

	if reply.SpeechErr != nil {
		fmt.Fprintf(stdout, "     text only: %v\n", reply.SpeechErr)
	}
	if reply.Speech != nil && outDir != "" {
		dest, err := writeSpeech(outDir, n, *reply.Speech)
		if err != nil {
			slog.Warn("failed to write speech", "err", err)
		} else {
			fmt.Fprintf(stdout, "     audio: %s\n", dest)
		}
	}
	return true
}

// clipFromFile declares the clip's encoding from the file extension. Unknown
// extensions leave it empty and the normalizer sniffs the payload instead.
func clipFromFile(path string, data []byte) types.AudioClip {
	return types.AudioClip{
		Data:     data,
		Encoding: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
	}
}

func writeSpeech(dir string, n int, speech types.SpeechAudio) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	format := speech.Format
	if format == "" {
		format = "mp3"
	}
	dest := filepath.Join(dir, fmt.Sprintf("answer-%02d.%s", n, format))
	return dest, os.WriteFile(dest, speech.Data, 0o644)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromReader(strings.NewReader(""))
	}
	return config.Load(path)
}

func startServer(addr string, h *health.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	h.Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
	slog.Info("metrics server listening", "addr", addr)
	return srv
}

func newLogger(level config.LogLevel, format config.LogFormat, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
