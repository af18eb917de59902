package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/mrcpd/internal/agent"
	"firestige.xyz/mrcpd/internal/audio"
	"firestige.xyz/mrcpd/internal/config"
	mrcpdlog "firestige.xyz/mrcpd/internal/log"
	"firestige.xyz/mrcpd/internal/media"
	"firestige.xyz/mrcpd/internal/message"
	"firestige.xyz/mrcpd/internal/metrics"
	"firestige.xyz/mrcpd/internal/resource"
	"firestige.xyz/mrcpd/internal/session"
	"firestige.xyz/mrcpd/internal/signaling"
	"firestige.xyz/mrcpd/internal/tracing"
)

// defaultMediaDescriptor is the codec a channel's termination
// negotiates before any real transport exists. §4.6's resampling
// bridge reconciles it against whatever a future SDP-driven offer
// actually settles on; until then it keeps the media context's
// topology well-formed.
var defaultMediaDescriptor = audio.Descriptor{Name: "PCMU", SampleRate: 8000, Channels: 1, FrameMS: 20}

// sessionRegistry is the composition root's session table: one
// session.Session per MRCP session-id, created the first time a
// message names a channel the registry has not seen before (§3, §4.9).
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session.Session

	conn   *agent.Agent
	engine *media.Engine
	sig    signaling.Agent
}

func newSessionRegistry(conn *agent.Agent, engine *media.Engine, sig signaling.Agent) *sessionRegistry {
	return &sessionRegistry{
		sessions: make(map[string]*session.Session),
		conn:     conn,
		engine:   engine,
		sig:      sig,
	}
}

func (r *sessionRegistry) getOrCreate(sessionID string) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		return s
	}
	s := session.New(sessionID)
	s.Connection = session.NewConnectionCollaborator(r.conn)
	s.Media = session.NewMediaCollaborator(r.engine)
	s.Signaling = session.NewSignalingCollaborator(r.sig)
	r.sessions[sessionID] = s
	return s
}

// admit ensures a channel exists for msg's (session-id, resource-name)
// pair, binding it to the connection that delivered msg and to a
// media-engine termination via one Offer round — the concrete path
// that turns an inbound MRCP message into agent.Submit and
// engine.Submit calls (§2's offer → connection-agent/media-engine →
// channel dispatch flow).
func (r *sessionRegistry) admit(remoteAddr string, msg *message.Message, catalogue *resource.Catalogue, tracer *tracing.Tracer) (*session.Channel, error) {
	sess := r.getOrCreate(msg.Channel.SessionID)
	channelID := msg.Channel.String()
	if ch := sess.Channel(channelID); ch != nil {
		return ch, nil
	}

	resourceID := -1
	if entry := catalogue.ByName(msg.Channel.ResourceName); entry != nil {
		resourceID = entry.ID
	}
	ch := sess.AddChannel(resourceID, msg.Channel.ResourceName)

	term := &media.Termination{
		Name: ch.ID,
		Stream: &audio.Stream{
			Direction:    audio.DirSend | audio.DirReceive,
			Capabilities: audio.Capabilities{Descriptors: []audio.Descriptor{defaultMediaDescriptor}},
			RxDescriptor: defaultMediaDescriptor,
			TxDescriptor: defaultMediaDescriptor,
			Vtable:       audio.DiscardVtable{},
		},
	}
	rc := &session.RoundContext{
		Session:    sess,
		Channel:    ch,
		Connection: &session.ConnectionOffer{RemoteAddr: remoteAddr, ConnType: agent.ConnectionExisting},
		Media:      &session.MediaOffer{ContextID: sess.ID, Termination: term, Slot: -1},
	}

	if err := sess.Offer(session.Work{NeedsConnection: true, NeedsMedia: true, Payload: rc}); err != nil {
		return nil, fmt.Errorf("mrcpd: session %s: admit channel %s: %w", sess.ID, ch.ID, err)
	}
	if tracer != nil {
		tracer.StartSession(ch.ID, sess.ID)
		tracer.RecordPhase(ch.ID, tracing.PhaseOffer, time.Now().UnixMilli(), time.Now().UnixMilli(), nil)
	}
	return ch, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mrcpd connection agent and media engine in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := mrcpdlog.Init(cfg.Log)
	if err != nil {
		return err
	}
	logger.Info("mrcpd starting", "role", cfg.Node.Role, "node_id", cfg.Node.ID)

	catalogue, err := loadCatalogue(cfg.Agent.ResourceCatalogue)
	if err != nil {
		return err
	}

	codecs := audio.NewCodecManager()
	engine := media.NewEngine(time.Duration(cfg.Media.FrameIntervalMS)*time.Millisecond, codecs)
	if err := engine.Start(); err != nil {
		return err
	}
	defer engine.Terminate(true)

	role := agent.RoleServer
	if cfg.Node.Role == "client" {
		role = agent.RoleClient
	}

	var tracer *tracing.Tracer
	if cfg.Tracing.Enabled {
		tracer = tracing.New(cfg.Tracing.ServiceName, cfg.Node.ID, nil)
	}

	sigAgent := signaling.NewGosipAgent(func(target string, raw []byte) error {
		return fmt.Errorf("mrcpd: signaling: SIP transport not wired, dropping %d bytes meant for %s", len(raw), target)
	})
	defer sigAgent.Close()

	var conn *agent.Agent
	registry := newSessionRegistry(nil, engine, sigAgent)
	conn = agent.New(agent.Config{
		Role:           role,
		Listen:         cfg.Agent.Listen,
		MaxConnections: cfg.Agent.MaxConnections,
		Catalogue:      catalogue,
		OnMessage: func(remoteAddr string, msg *message.Message) {
			logger.Debug("mrcp message received", "remote", remoteAddr, "kind", msg.Kind.String())
			if _, err := registry.admit(remoteAddr, msg, catalogue, tracer); err != nil {
				logger.Warn("failed to admit channel", "remote", remoteAddr, "channel", msg.Channel.String(), "error", err)
			}
		},
		OnDisconnect: func(channelID string) {
			logger.Info("channel lost its connection", "channel", channelID)
		},
	})
	registry.conn = conn
	if err := conn.Start(); err != nil {
		return err
	}
	defer conn.Terminate(true)

	var activeConns uint64
	ctlSock, err := agent.ListenControlSocket(cfg.Agent.ControlSocket, func() uint64 { return activeConns })
	if err != nil {
		return err
	}
	defer ctlSock.Close()

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		metricsServer.Start(ctx)
		defer metricsServer.Stop(ctx)
	}

	logger.Info("mrcpd ready", "listen", cfg.Agent.Listen, "control_socket", ctlSock.Addr().String())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}
	return nil
}

func loadCatalogue(path string) (*resource.Catalogue, error) {
	if path == "" {
		return resource.LoadFromConfig(nil)
	}
	cat, err := resource.LoadFromFile(path)
	if err != nil {
		slog.Warn("failed to load resource catalogue file, falling back to builtins", "path", path, "error", err)
		return resource.LoadFromConfig(nil)
	}
	return cat, nil
}
