// Package web serves the live driver-wellness dashboard.
package web

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-drivemind/pkg/hub"
	"github.com/teslashibe/go-drivemind/pkg/intervention"
	"github.com/teslashibe/go-drivemind/pkg/pipeline"
	"github.com/teslashibe/go-drivemind/pkg/profile"
	"github.com/teslashibe/go-drivemind/pkg/speech"
	"github.com/teslashibe/go-drivemind/pkg/trend"
	"github.com/teslashibe/go-drivemind/pkg/tts"
)

//go:embed static
var staticFS embed.FS

// Source provides the live pipeline state.
type Source interface {
	Latest() (pipeline.Result, bool)
	Summary(identity string) trend.Summary
	Subjects() []string
}

// ProfileLister lists stored driver profiles.
type ProfileLister interface {
	All() map[string]profile.Profile
}

// Config holds the server settings.
type Config struct {
	Port string
	// EventsPath is the event log served by /api/events.
	EventsPath string
	// Metrics, if set, is mounted at /metrics.
	Metrics http.Handler
}

// AdvisoryMessage is pushed on /ws/advisories. Audio is base64 in JSON.
type AdvisoryMessage struct {
	Advisory intervention.Advisory `json:"advisory"`
	Audio    []byte                `json:"audio,omitempty"`
	MIMEType string                `json:"mime_type,omitempty"`
}

// Server is the dashboard. It implements pipeline.Observer for live status
// and speech.Sink for advisory audio.
type Server struct {
	cfg      Config
	app      *fiber.App
	source   Source
	profiles ProfileLister
	logger   *slog.Logger

	statusHub   *hub.Hub
	cameraHub   *hub.Hub
	advisoryHub *hub.Hub
}

// NewServer builds the app and its routes.
func NewServer(cfg Config, source Source, profiles ProfileLister, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		cfg:         cfg,
		source:      source,
		profiles:    profiles,
		logger:      logger,
		statusHub:   hub.New("status", logger),
		cameraHub:   hub.New("camera", logger),
		advisoryHub: hub.New("advisories", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "DriveMind Dashboard",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/healthz", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/subjects", s.handleSubjects)
	api.Get("/summary/:subject", s.handleSummary)
	api.Get("/profiles", s.handleProfiles)
	api.Get("/events", s.handleEvents)

	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))
	app.Get("/ws/advisories", websocket.New(s.handleAdvisoriesWS))

	app.Use("/", filesystem.New(filesystem.Config{
		Root:       http.FS(staticFS),
		PathPrefix: "static",
		Index:      "index.html",
	}))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured port until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.cfg.Port)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hubs and serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.statusHub.Run(ctx)
	go s.cameraHub.Run(ctx)
	go s.advisoryHub.Run(ctx)

	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
	}()

	s.logger.Info("dashboard listening", "addr", ln.Addr().String())
	if err := s.app.Listener(ln); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Observe implements pipeline.Observer.
func (s *Server) Observe(_ context.Context, r pipeline.Result) {
	if s.statusHub.ClientCount() == 0 {
		return
	}
	if err := s.statusHub.BroadcastJSON(r); err != nil {
		s.logger.Warn("encode status", "error", err)
	}
}

// Play implements speech.Sink by pushing the advisory and its audio to
// dashboard listeners.
func (s *Server) Play(_ context.Context, a intervention.Advisory, audio *tts.AudioResult) error {
	msg := AdvisoryMessage{Advisory: a}
	if audio != nil {
		msg.Audio = audio.Audio
		msg.MIMEType = audio.Format.MIMEType()
	}
	return s.advisoryHub.BroadcastJSON(msg)
}

// WantsCamera reports whether anyone is watching the camera feed.
func (s *Server) WantsCamera() bool {
	return s.cameraHub.ClientCount() > 0
}

// SendCameraFrame broadcasts one JPEG frame.
func (s *Server) SendCameraFrame(jpeg []byte) {
	s.cameraHub.BroadcastBinary(jpeg)
}

var (
	_ pipeline.Observer = (*Server)(nil)
	_ speech.Sink       = (*Server)(nil)
)
