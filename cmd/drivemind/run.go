package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-drivemind/internal/config"
	"github.com/teslashibe/go-drivemind/internal/log"
	"github.com/teslashibe/go-drivemind/pkg/eventlog"
	"github.com/teslashibe/go-drivemind/pkg/fanout"
	"github.com/teslashibe/go-drivemind/pkg/intervention"
	"github.com/teslashibe/go-drivemind/pkg/metrics"
	"github.com/teslashibe/go-drivemind/pkg/perception"
	"github.com/teslashibe/go-drivemind/pkg/pipeline"
	"github.com/teslashibe/go-drivemind/pkg/profile"
	"github.com/teslashibe/go-drivemind/pkg/speech"
	"github.com/teslashibe/go-drivemind/pkg/trend"
	"github.com/teslashibe/go-drivemind/pkg/tts"
	"github.com/teslashibe/go-drivemind/pkg/vision"
	"github.com/teslashibe/go-drivemind/pkg/web"
)

func runMonitor(cmd *cobra.Command, _ []string) error {
	applyRunFlags(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.With("component", "cmd.run")

	cam, err := vision.OpenCamera(cfg.Camera.Source)
	if err != nil {
		return err
	}
	defer cam.Close()
	logger.Info("camera opened", "source", cam.Source())

	analyzer := vision.NewAnalyzer(vision.Models{
		FaceDetector:   cfg.Models.FaceDetector,
		Landmarks:      cfg.Models.Landmarks,
		Identity:       cfg.Models.Identity,
		Emotion:        cfg.Models.Emotion,
		DriversDir:     cfg.Models.DriversDir,
		MatchTolerance: cfg.Models.MatchTolerance,
	}, log.L())
	defer analyzer.Close()

	rec := metrics.New()

	profiles := profile.Open(cfg.Storage.ThresholdsPath, log.L())
	profiles.OnWriteError = rec.WriteFailureHook(metrics.StoreProfiles)

	events := eventlog.New(eventlog.Config{
		Path:      cfg.Storage.EventsLogPath,
		Anonymize: cfg.Privacy.AnonymizeLogs,
	}, log.L())
	events.OnWriteError = rec.WriteFailureHook(metrics.StoreEvents)

	source := &pipelineSource{}
	server := web.NewServer(web.Config{
		Port:       cfg.Dashboard.Port,
		EventsPath: cfg.Storage.EventsLogPath,
		Metrics:    rec.Handler(),
	}, source, profiles, log.L())

	voice, closeVoice := buildVoice(cfg.Voice, server, log.L())
	defer closeVoice()
	async := speech.NewAsync(voice, log.L())

	scheduler := intervention.NewScheduler(cfg.Intervention(), async, log.L())
	scheduler.OnSkip = rec.SkipHook

	observers := []pipeline.Observer{rec, server}
	var pub *fanout.Publisher
	if cfg.Fanout.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Fanout.RedisAddr,
			Password: cfg.Fanout.RedisPassword,
		})
		defer client.Close()

		pub = fanout.New(client, fanout.Config{TTL: cfg.Fanout.StatusTTL}, log.L())
		pub.OnError = rec.WriteFailureHook(metrics.StoreFanout)
		if err := pub.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, fanout will keep retrying", "error", err)
		}
		observers = append(observers, pub)
	}

	p := pipeline.New(pipeline.Config{
		Defaults: cfg.Thresholds(),
		Fatigue:  cfg.Fatigue(),
	}, pipeline.Deps{
		Profiles:  profiles,
		Trends:    trend.NewRecorder(cfg.Detection.TrendWindow),
		Events:    events,
		Scheduler: scheduler,
		Observers: observers,
	}, log.L())
	source.p = p

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		async.Run(gctx)
		return nil
	})
	if pub != nil {
		g.Go(func() error {
			pub.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		return capture(gctx, cam, analyzer, p, server, rec, cfg.Privacy.BlurFaces, logger)
	})

	logger.Info("monitoring", "session", p.Session(), "dashboard", "http://localhost:"+cfg.Dashboard.Port)
	return g.Wait()
}

func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	if cmd.Flags().Changed("source") {
		c.Camera.Source = sourceFlag
	}
	if cmd.Flags().Changed("port") {
		c.Dashboard.Port = portFlag
	}
	if noVoiceFlag {
		c.Voice.Enabled = false
	}
	if blurFlag {
		c.Privacy.BlurFaces = true
	}
}

// buildVoice chains every configured TTS provider behind a circuit-broken
// speaker. Without providers, or with voice disabled, advisories are logged.
func buildVoice(vc config.VoiceConfig, sink speech.Sink, logger *slog.Logger) (intervention.Voice, func()) {
	noop := func() {}
	if !vc.Enabled {
		return speech.NewSilent(logger), noop
	}

	var providers []tts.Provider
	if vc.OpenAIAPIKey != "" {
		p, err := tts.NewOpenAI(tts.WithAPIKey(vc.OpenAIAPIKey), tts.WithVoice(vc.OpenAIVoice), tts.WithLogger(logger))
		if err == nil {
			providers = append(providers, p)
		}
	}
	if vc.ElevenLabsAPIKey != "" && vc.ElevenLabsVoice != "" {
		p, err := tts.NewElevenLabs(tts.WithAPIKey(vc.ElevenLabsAPIKey), tts.WithVoice(vc.ElevenLabsVoice), tts.WithLogger(logger))
		if err == nil {
			providers = append(providers, p)
		}
	}

	chain, err := tts.NewChain(providers...)
	if err != nil {
		logger.Warn("no speech provider configured, advisories will only be logged")
		return speech.NewSilent(logger), noop
	}
	chain.WithLogger(logger)

	return speech.NewSpeaker(chain, sink, speech.DefaultBreakerSettings(), logger), func() { chain.Close() }
}

// frameSource is the part of vision.Camera the capture loop needs.
type frameSource interface {
	Read(img *gocv.Mat) error
}

// frameAnalyzer is the part of vision.Analyzer the capture loop needs.
type frameAnalyzer interface {
	Analyze(img gocv.Mat, at time.Time) perception.Observation
}

// preview receives dashboard camera frames.
type preview interface {
	WantsCamera() bool
	SendCameraFrame(jpeg []byte)
}

// capture reads frames until the stream ends or ctx is done. End of stream
// is a normal exit.
func capture(ctx context.Context, src frameSource, an frameAnalyzer, p *pipeline.Pipeline, pv preview, rec *metrics.Recorder, blur bool, logger *slog.Logger) error {
	img := gocv.NewMat()
	defer img.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := src.Read(&img); err != nil {
			if errors.Is(err, vision.ErrEndOfStream) {
				logger.Info("end of stream")
				return nil
			}
			return err
		}

		start := time.Now()
		obs := an.Analyze(img, start)
		p.Process(ctx, obs)
		rec.ObserveFrame(time.Since(start))

		if pv.WantsCamera() {
			if blur {
				vision.BlurFaces(&img, obs.Faces)
			}
			if data, err := vision.EncodeJPEG(img); err == nil {
				pv.SendCameraFrame(data)
			}
		}
	}
}

// pipelineSource lets the dashboard be built before the pipeline it reads.
type pipelineSource struct {
	p *pipeline.Pipeline
}

func (s *pipelineSource) Latest() (pipeline.Result, bool) {
	return s.p.Latest()
}

func (s *pipelineSource) Summary(identity string) trend.Summary {
	return s.p.Summary(identity)
}

func (s *pipelineSource) Subjects() []string {
	return s.p.Subjects()
}
