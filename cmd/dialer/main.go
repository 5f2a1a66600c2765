// Command dialer boots the predictive-dialer core: PBX control, RTP
// media, speech, recording, routing, pacing and the scheduler that
// ticks them all, plus the inbound AI-events webhook server. One process,
// one application struct, no package-level mutable state.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rapidaai/dialer/internal/amd"
	"github.com/rapidaai/dialer/internal/config"
	"github.com/rapidaai/dialer/internal/dispatcher"
	"github.com/rapidaai/dialer/internal/droprate"
	"github.com/rapidaai/dialer/internal/eventbus"
	"github.com/rapidaai/dialer/internal/logging"
	"github.com/rapidaai/dialer/internal/media"
	"github.com/rapidaai/dialer/internal/notify"
	"github.com/rapidaai/dialer/internal/pacing"
	"github.com/rapidaai/dialer/internal/pbx/ami"
	"github.com/rapidaai/dialer/internal/pbx/ari"
	"github.com/rapidaai/dialer/internal/recording"
	"github.com/rapidaai/dialer/internal/router"
	"github.com/rapidaai/dialer/internal/rtp"
	"github.com/rapidaai/dialer/internal/scheduler"
	"github.com/rapidaai/dialer/internal/speech"
	"github.com/rapidaai/dialer/internal/store"
	"github.com/rapidaai/dialer/internal/store/cache"
	"github.com/rapidaai/dialer/internal/store/gormstore"
	"github.com/rapidaai/dialer/internal/telephony"
	"github.com/rapidaai/dialer/internal/webhook"
)

// app bundles every wired collaborator; nothing here is global. rtpGateway,
// mediaMgr, speechClient and recorder are held here so the process keeps
// them alive even though the call-flow orchestration that would drive
// them per-call (binding a CallTask's media session to a speech stream)
// is outside this boot path.
type app struct {
	logger       logging.Logger
	cfg          *config.AppConfig
	gormStore    *gormstore.Store
	presence     *cache.PresenceCache
	bus          *eventbus.Bus
	sched        *scheduler.Scheduler
	webhookSrv   *http.Server
	ariEvents    *ari.EventClient
	amiClient    *ami.Client
	telephonySvc *telephony.Service
	rtpGateway   *rtp.Gateway
	mediaMgr     *media.Manager
	speechClient speech.Client
	recorder     *recording.Recorder
}

func main() {
	v, err := config.InitConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config init:", err)
		os.Exit(1)
	}
	cfg, err := config.Load(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config load:", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel})

	a, err := build(cfg, logger)
	if err != nil {
		logger.Errorf("startup failed: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx); err != nil {
		logger.Errorf("dialer exited with error: %v", err)
		os.Exit(1)
	}
}

func build(cfg *config.AppConfig, logger logging.Logger) (*app, error) {
	dsn := postgresDSN(cfg)
	gormDB, err := gormstore.Open(cfg.Postgres.Driver, dsn, gormstore.NewMemoryCacher(30*time.Second), logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := gormDB.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	presence := cache.NewPresenceCache(redisClient)

	ariClient := ari.NewClient(cfg.PBX.AriURL, cfg.PBX.AriUser, cfg.PBX.AriPass, cfg.PBX.AriApp, cfg.PBX.ActionTimeout, logger)
	ariEvents := ari.NewEventClient(cfg.PBX.AriURL, cfg.PBX.AriUser, cfg.PBX.AriPass, cfg.PBX.AriApp, ariClient, logger)
	amiClient := ami.NewClient(cfg.PBX.AmiHost, cfg.PBX.AmiPort, cfg.PBX.AmiUser, cfg.PBX.AmiPass, cfg.PBX.ActionTimeout, logger)

	primary := telephony.NewAriProvider(ariClient)
	fallback := telephony.NewAmiProvider(amiClient, cfg.PBX.AmiDialChannelPrefix, cfg.PBX.AmiDialContext, cfg.PBX.AmiDialExten)
	telephonySvc := telephony.NewService(gormDB, primary, fallback, cfg.PBX.ActionTimeout, logger)

	amdClassifier := amd.NewAMIClassifier(cfg.PBX.AMDWindow)
	telephonySvc.SetAMDClassifier(amdClassifier, cfg.PBX.AMDWindow)
	amiClient.RegisterHandler("UserEvent", amdClassifier.OnUserEvent)

	dispatch := dispatcher.New(gormDB, logger)
	originator := telephony.NewCampaignOriginator(telephonySvc, dispatch)

	// StasisStart/ChannelHangupRequest are Stasis-app lifecycle events;
	// ChannelStateChange/Bridge/BridgeEnter/StasisEnd/ChannelDestroyed
	// drive the rest of TelephonyService.OnEvent's DAG (§4.5).
	ariEvents.On("StasisStart", func(evt ari.Event) {
		if id := channelIDFromEvent(evt); id != "" {
			telephonySvc.OnEvent(context.Background(), id, evt.Type)
		}
	})
	ariEvents.On("ChannelHangupRequest", func(evt ari.Event) {
		if id := channelIDFromEvent(evt); id != "" {
			telephonySvc.OnEvent(context.Background(), id, evt.Type)
		}
	})
	ariEvents.On("ChannelStateChange", func(evt ari.Event) {
		id := channelIDFromEvent(evt)
		state := channelStateFromEvent(evt)
		if id == "" || state == "" {
			return
		}
		telephonySvc.OnEvent(context.Background(), id, "ChannelStateChange:"+state)
	})
	ariEvents.On("Bridge", func(evt ari.Event) {
		if id := channelIDFromEvent(evt); id != "" {
			telephonySvc.OnEvent(context.Background(), id, evt.Type)
		}
	})
	ariEvents.On("BridgeEnter", func(evt ari.Event) {
		if id := channelIDFromEvent(evt); id != "" {
			telephonySvc.OnEvent(context.Background(), id, evt.Type)
		}
	})
	ariEvents.On("StasisEnd", func(evt ari.Event) {
		if id := channelIDFromEvent(evt); id != "" {
			telephonySvc.OnEvent(context.Background(), id, evt.Type)
		}
	})
	ariEvents.On("ChannelDestroyed", func(evt ari.Event) {
		if id := channelIDFromEvent(evt); id != "" {
			telephonySvc.OnEvent(context.Background(), id, evt.Type)
		}
	})
	ariEvents.SetReconcileHook(telephonySvc.ReconcileChannels)

	// AMI mirrors the same transitions for calls riding the fallback path:
	// Newstate reports channel state the same way ChannelStateChange does
	// on ARI, BridgeEnter/Hangup map straight onto OnEvent's existing cases.
	amiClient.RegisterHandler("Newstate", func(msg ami.Message) {
		if msg.Get("ChannelStateDesc") != "Up" {
			return
		}
		if id := msg.Get("Uniqueid"); id != "" {
			telephonySvc.OnEvent(context.Background(), id, "ChannelStateChange:Up")
		}
	})
	amiClient.RegisterHandler("BridgeEnter", func(msg ami.Message) {
		if id := msg.Get("Uniqueid"); id != "" {
			telephonySvc.OnEvent(context.Background(), id, "BridgeEnter")
		}
	})
	amiClient.RegisterHandler("Hangup", func(msg ami.Message) {
		if id := msg.Get("Uniqueid"); id != "" {
			telephonySvc.OnEvent(context.Background(), id, "Hangup")
		}
	})

	rtpGateway := rtp.NewGateway(cfg.RTP.PortMin, cfg.RTP.PortMax, func(sessionID string, pcm []byte, recvAt int64) {
		// Frame hand-off to SpeechClient.StreamTranscribe happens per active
		// call session, wired by the call-flow owner that creates the
		// session (outside this process-boot path).
	}, logger)

	mediaMgr := media.NewManager(ariClient, cfg.PBX.AriURL, "slin16", logger)

	speechClient, err := buildSpeechClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("build speech client: %w", err)
	}

	recBackend, err := buildRecordingBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("build recording backend: %w", err)
	}
	recorder := recording.NewRecorder(ariClient, recBackend, gormDB, func(ctx context.Context, name string) ([]byte, error) {
		return nil, fmt.Errorf("file fetch not wired for recording %s", name)
	}, recording.Config{
		Enabled: true, Format: "wav", SampleRate: 8000,
		MaxDuration: 4 * time.Hour, RetentionDays: cfg.Recording.RetentionDays, ConsentRequired: true,
	}, logger)

	bus := eventbus.New(logger)

	inboundRouter := router.New(presence, eventbusPublisher{bus}, logger)

	pacer := pacing.NewCalculator(time.Now)
	dropMon := droprate.NewMonitor(gormDB, logger)

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build notifier: %w", err)
	}

	metricsSource := store.NewCombinedMetricsSource(presence, gormDB)

	sched := scheduler.New(scheduler.Config{
		Campaigns:  gormDB,
		Store:      gormDB,
		AgentStats: metricsSource,
		Dispatch:   dispatch,
		Pacer:      pacer,
		DropMon:    dropMon,
		Inbound:    inboundRouter,
		Originator: originator,
		Notifier:   notifier,
		Keepalive: func(ctx context.Context) error {
			if err := ariClient.Info(ctx); err != nil {
				return err
			}
			sqlDB, err := gormDB.DB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		Logger:     logger,
	})

	webhookHandler := webhook.NewHandler(cfg.Webhook.Secret, eventbusPublisher{bus}, logger)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.Default())
	webhookHandler.Register(engine)
	webhookSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Webhook.Host, cfg.Webhook.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &app{
		logger:       logger,
		cfg:          cfg,
		gormStore:    gormDB,
		presence:     presence,
		bus:          bus,
		sched:        sched,
		webhookSrv:   webhookSrv,
		ariEvents:    ariEvents,
		amiClient:    amiClient,
		telephonySvc: telephonySvc,
		rtpGateway:   rtpGateway,
		mediaMgr:     mediaMgr,
		speechClient: speechClient,
		recorder:     recorder,
	}, nil
}

func (a *app) run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.sched.Run(gCtx)
	})

	g.Go(func() error {
		if err := a.ariEvents.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := a.amiClient.Connect(gCtx); err != nil {
			return fmt.Errorf("ami connect: %w", err)
		}
		<-gCtx.Done()
		return a.amiClient.Close()
	})

	g.Go(func() error {
		a.logger.Infof("webhook server listening on %s", a.webhookSrv.Addr)
		if err := a.webhookSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.webhookSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func postgresDSN(cfg *config.AppConfig) string {
	if cfg.Postgres.Driver == "sqlite" {
		return cfg.Postgres.DBName
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.User, cfg.Postgres.Password,
		cfg.Postgres.DBName, cfg.Postgres.SSLMode)
}

func buildSpeechClient(cfg *config.AppConfig) (speech.Client, error) {
	bucket := speech.BucketConfig{
		RequestsPerMinute: cfg.Speech.RequestsPerMin,
		RequestsPerHour:   cfg.Speech.RequestsPerHour,
		UnitsPerHour:      cfg.Speech.UnitsPerHour,
	}
	switch cfg.Speech.Provider {
	case "deepgram":
		return speech.NewDeepgramClient(cfg.Speech.APIKey, bucket, cfg.Speech.MaxRetries), nil
	case "google":
		return speech.NewGoogleClient(context.Background(), bucket, cfg.Speech.MaxRetries)
	case "azure":
		return speech.NewAzureClient(cfg.Speech.APIKey, "eastus", bucket, cfg.Speech.MaxRetries), nil
	default:
		return speech.NewOpenAIClient(cfg.Speech.APIKey, bucket, cfg.Speech.MaxRetries), nil
	}
}

func buildRecordingBackend(cfg *config.AppConfig) (recording.Backend, error) {
	switch cfg.Recording.Backend {
	case "s3":
		return recording.NewS3Backend(cfg.Recording.S3Bucket, cfg.Recording.S3Region)
	case "gcs":
		return recording.NewGCSBackend(context.Background(), cfg.Recording.GCSBucket)
	case "azure":
		return recording.NewAzureBackend(cfg.Recording.AzureSASURL), nil
	case "ftp":
		return recording.NewFTPBackend(cfg.Recording.FTPAddr, cfg.Recording.FTPUser, cfg.Recording.FTPPass, cfg.Recording.FTPBaseDir), nil
	default:
		return recording.NewLocalBackend(cfg.Recording.LocalPath), nil
	}
}

func buildNotifier(cfg *config.AppConfig, logger logging.Logger) (notify.Notifier, error) {
	if cfg.Notify.Backend == "sendgrid" {
		return notify.NewSendGridNotifier(cfg.Notify.SendGridKey, cfg.Notify.FromName, cfg.Notify.FromAddress, logger), nil
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Notify.SESRegion)}
	if cfg.Notify.SESAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.Notify.SESAccessKeyID, cfg.Notify.SESSecretAccessKey, "",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return notify.NewSESNotifier(ses.NewFromConfig(awsCfg), cfg.Notify.FromAddress, logger), nil
}

// eventbusPublisher adapts *eventbus.Bus to the narrow Publisher
// interfaces router/webhook depend on, without those packages importing
// eventbus directly.
type eventbusPublisher struct{ bus *eventbus.Bus }

func (p eventbusPublisher) Publish(topic string, payload interface{}) { p.bus.Publish(topic, payload) }

func channelIDFromEvent(evt ari.Event) string {
	channel, ok := evt.Raw["channel"].(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := channel["id"].(string)
	return id
}

func channelStateFromEvent(evt ari.Event) string {
	channel, ok := evt.Raw["channel"].(map[string]interface{})
	if !ok {
		return ""
	}
	state, _ := channel["state"].(string)
	return state
}
