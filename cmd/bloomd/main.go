package main

import (
	"context"
	"image/png"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"bloom/internal/audio"
	"bloom/internal/capture"
	"bloom/internal/config"
	"bloom/internal/display"
	"bloom/internal/exhibit"
	"bloom/internal/gate"
	"bloom/internal/ipc"
	"bloom/internal/layout"
	"bloom/internal/notify"
	"bloom/internal/proxy"
	"bloom/internal/recognize"
	"bloom/internal/shape"
	"bloom/internal/store"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address for the cloud backend")
	listenAddr := cli.String("listen", ":8090", "Display feed listen address")
	socketPath := cli.String("socket", ipc.DefaultSocketPath, "Control socket path")
	dataDir := cli.String("data", "bloom-data", "Persistence directory")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	godotenv.Load(*envFile)
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(store.Options{Dir: *dataDir})
	if err != nil {
		log.Error("Failed to open store", "dir", *dataDir, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	texts, err := st.Load(ctx)
	if err != nil {
		log.Error("Failed to load utterances", "err", err)
		os.Exit(1)
	}
	log.Debug("Loaded store", "utterances", len(texts))

	graph := audio.NewGraph()
	if err := graph.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer graph.Terminate()
	if err := graph.Build(); err != nil {
		log.Error("Failed to open capture stream", "err", err)
		os.Exit(1)
	}
	defer graph.Close()

	monitor := audio.NewMonitor(graph, cfg.HealthInterval, cfg.MicBackoff)
	graph.OnDead(monitor.StreamDied)
	go monitor.Run(ctx)

	log.Debug("Loaded audio graph")

	cache := shape.NewCache(func() (*shape.Shape, error) {
		return shape.Load(shape.Options{
			ShapePath:     cfg.ShapePath,
			BackdropPath:  cfg.BackdropPath,
			RenderWidth:   cfg.RenderWidth,
			ExpandFactor:  cfg.ExpandFactor,
			ExpandOffsetX: cfg.ExpandOffsetX,
		})
	})

	face, err := layout.LoadFace(cfg.FontPath, cfg.FontSize)
	if err != nil {
		log.Error("Failed to load font", "path", cfg.FontPath, "err", err)
		os.Exit(1)
	}
	engine := layout.NewEngine(face, cfg.LineHeight)

	makeRecognizer, err := recognizerFactory(cfg, *proxyAddr)
	if err != nil {
		log.Error("Failed to configure recognizer", "backend", cfg.Backend, "err", err)
		os.Exit(1)
	}

	chime := notify.NewChime(cfg.ChimePath)
	feed := display.NewServer()
	defer feed.Close()

	// The runtime and the capture controller reference each other; the
	// controller's callbacks close over this late-bound pointer.
	var rt *exhibit.Runtime

	ctrl := capture.New(capture.Options{
		Factory:        func() (recognize.Recognizer, error) { return makeRecognizer(graph) },
		SilenceTimeout: cfg.SilenceTimeout,
		MaxRetries:     cfg.MaxRetries,
		RestartBackoff: cfg.RestartBackoff,
		OnStart: func() {
			chime.PlayAsync()
			rt.Dispatch(exhibit.Event{Kind: exhibit.EvCaptureStarted})
		},
		OnUtterance: func(text string) {
			rt.Dispatch(exhibit.Event{Kind: exhibit.EvUtterance, Utterance: text})
		},
	})
	defer ctrl.Close()

	volumeGate := gate.New(graph, cfg.VolumeThreshold, cfg.PollInterval, ctrl.Start)

	rt = exhibit.New(exhibit.Options{
		DisplayDelay:  cfg.DisplayDelay,
		SettleDelay:   cfg.SettleDelay,
		Watchdog:      cfg.Watchdog,
		CompositeFade: cfg.CompositeFade,
		GlyphFade:     cfg.GlyphFade,

		Capture: ctrl,
		Gate:    volumeGate,
		Store:   st,
		Feed:    feed,
		Admission: func(ctx context.Context, candidate []string) (bool, error) {
			sh, err := cache.Get(ctx)
			if err != nil {
				return false, err
			}
			return engine.WillOverflow(candidate, sh), nil
		},
	})
	defer rt.Close()
	rt.SetTexts(texts)

	// Boot lands in idle without a transition, so arm the gate by hand.
	volumeGate.Arm()

	ctl, err := ipc.Listen(*socketPath, controlHandler(ctx, rt, ctrl, makeRecognizer))
	if err != nil {
		log.Error("Failed to start control channel", "err", err)
		os.Exit(1)
	}
	defer ctl.Close()

	mux := http.NewServeMux()
	mux.Handle("/feed", feed)
	mux.HandleFunc("/composite.png", func(w http.ResponseWriter, r *http.Request) {
		sh, err := cache.Get(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		m := rt.Machine()
		w.Header().Set("Content-Type", "image/png")
		png.Encode(w, engine.Render(m.Texts, sh, rt.PrevCount(), rt.Alpha()))
	})

	srv := &http.Server{Addr: *listenAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Display feed server failed", "err", err)
			cancel()
		}
	}()
	defer srv.Close()

	log.Info("Boot up - successful", "listen", *listenAddr, "socket", *socketPath)

	<-ctx.Done()
	log.Info("Shutting down")
}

// recognizerFactory resolves the configured backend into a constructor taking
// a frame source, so the same backend serves the microphone and file inject.
func recognizerFactory(cfg config.Config, proxyAddr string) (func(recognize.FrameSource) (recognize.Recognizer, error), error) {
	switch cfg.Backend {
	case "whisper":
		return func(src recognize.FrameSource) (recognize.Recognizer, error) {
			return recognize.NewWhisper(cfg.WhisperModel, src)
		}, nil
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			log.Error("OPENAI_API_KEY not set")
			os.Exit(1)
		}
		httpClient, err := proxy.NewSocksClient(proxyAddr, 0)
		if err != nil {
			return nil, err
		}
		return func(src recognize.FrameSource) (recognize.Recognizer, error) {
			return recognize.NewOpenAI(apiKey, cfg.OpenAIModel, httpClient, src), nil
		}, nil
	}
	return nil, &unknownBackendError{cfg.Backend}
}

type unknownBackendError struct{ backend string }

func (e *unknownBackendError) Error() string {
	return "unknown backend " + e.backend + " (whisper, openai)"
}
