package main

import (
	"context"
	"errors"
	"flag"
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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/venuefarm/bookingbot/internal/api"
	"github.com/venuefarm/bookingbot/internal/flow"
	"github.com/venuefarm/bookingbot/internal/lockfile"
	"github.com/venuefarm/bookingbot/internal/messaging"
	"github.com/venuefarm/bookingbot/internal/metrics"
	"github.com/venuefarm/bookingbot/internal/models"
	"github.com/venuefarm/bookingbot/internal/store"
	"github.com/venuefarm/bookingbot/internal/twiliowhatsapp"
	"github.com/venuefarm/bookingbot/internal/util"
	"github.com/venuefarm/bookingbot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for bookingbot state data
	DefaultStateDir = "/var/lib/bookingbot"
	// DefaultAppDBFileName is the default SQLite database filename for application data
	DefaultAppDBFileName = "bookingbot.db"
	// DefaultWhatsAppDBFileName is the default SQLite database filename for the whatsmeow device store
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

// Transport names accepted by -transport.
const (
	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"
	TransportNone     = "none"
)

func main() {
	config := loadEnvironmentConfig()
	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}
	initializeLogger(*flags.logLevel)

	if *flags.mintTokenTTL > 0 {
		if err := mintAPIToken(os.Stdout, flags); err != nil {
			slog.Error("Failed to mint API token", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping bookingbot", "transport", *flags.transport, "api_addr", *flags.apiAddr, "state_dir", *flags.stateDir)
	if err := run(ctx, flags); err != nil {
		slog.Error("bookingbot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("bookingbot exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	WhatsAppDBDSN    string
	ApplicationDBDSN string
	Transport        string
	APIAddr          string
	APISecret        string
	LogLevel         string
	Timezone         string
	CatalogSeed      string
	VenueCategories  string
	FarmCategories   string
	ListLimit        int
	CatalogTimeout   time.Duration
	WriteTimeout     time.Duration
	LockWait         time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration
	LockTTL       time.Duration

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	TwilioPublicURL  string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput        *string
	numeric         *bool
	stateDir        *string
	waDBDSN         *string
	appDBDSN        *string
	transport       *string
	apiAddr         *string
	apiSecret       *string
	mintTokenTTL    *time.Duration
	logLevel        *string
	timezone        *string
	catalogSeed     *string
	venueCategories *string
	farmCategories  *string
	listLimit       *int
	catalogTimeout  *time.Duration
	writeTimeout    *time.Duration
	lockWait        *time.Duration

	redisAddr     *string
	redisPassword *string
	redisDB       *int
	sessionTTL    *time.Duration
	lockTTL       *time.Duration

	twilioSID       *string
	twilioToken     *string
	twilioFrom      *string
	twilioPublicURL *string
}

// initializeLogger sets up structured logging on stdout at the given level
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func defaultWhatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

func defaultAppDSN(stateDir string) string {
	return filepath.Join(stateDir, DefaultAppDBFileName)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:         util.GetEnvOrDefault("BOOKINGBOT_STATE_DIR", DefaultStateDir),
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		ApplicationDBDSN: os.Getenv("DATABASE_DSN"),
		Transport:        util.GetEnvOrDefault("TRANSPORT", TransportWhatsApp),
		APIAddr:          util.GetEnvOrDefault("API_ADDR", api.DefaultAddr),
		APISecret:        os.Getenv("API_SECRET"),
		LogLevel:         util.GetEnvOrDefault("LOG_LEVEL", "info"),
		Timezone:         util.GetEnvOrDefault("BOOKING_TIMEZONE", flow.DefaultTimezone),
		CatalogSeed:      os.Getenv("CATALOG_SEED"),
		VenueCategories:  os.Getenv("VENUE_CATEGORIES"),
		FarmCategories:   os.Getenv("FARM_CATEGORIES"),
		ListLimit:        util.ParseIntEnv("LIST_LIMIT", flow.DefaultListLimit),
		CatalogTimeout:   util.ParseDurationEnv("CATALOG_TIMEOUT", flow.DefaultCatalogTimeout),
		WriteTimeout:     util.ParseDurationEnv("WRITE_TIMEOUT", flow.DefaultWriteTimeout),
		LockWait:         util.ParseDurationEnv("LOCK_WAIT", store.DefaultLockWait),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       util.ParseIntEnv("REDIS_DB", 0),
		SessionTTL:    util.ParseDurationEnv("SESSION_TTL", store.DefaultSessionTTL),
		LockTTL:       util.ParseDurationEnv("LOCK_TTL", store.DefaultLockTTL),

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioPublicURL:  os.Getenv("TWILIO_WEBHOOK_URL"),
	}

	// DATABASE_DSN wins over the legacy DATABASE_URL name
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = os.Getenv("DATABASE_URL")
	}
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = defaultAppDSN(config.StateDir)
		slog.Debug("No application DSN provided, defaulting to SQLite", "sqlite_path", config.ApplicationDBDSN)
	}
	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = defaultWhatsAppDSN(config.StateDir)
		slog.Debug("No WhatsApp DSN provided, defaulting to SQLite", "sqlite_dsn", config.WhatsAppDBDSN)
	}

	slog.Debug("environment variables loaded",
		"BOOKINGBOT_STATE_DIR", config.StateDir,
		"TRANSPORT", config.Transport,
		"API_ADDR", config.APIAddr,
		"API_SECRET_SET", config.APISecret != "",
		"BOOKING_TIMEZONE", config.Timezone,
		"REDIS_ADDR_SET", config.RedisAddr != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "")

	return config
}

// parseCommandLineFlags parses args into fs with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	flags := Flags{
		qrOutput:        fs.String("qr-output", "", "path to write login QR code"),
		numeric:         fs.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:        fs.String("state-dir", config.StateDir, "state directory for bookingbot data (overrides $BOOKINGBOT_STATE_DIR)"),
		waDBDSN:         fs.String("wa-db-dsn", config.WhatsAppDBDSN, "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)"),
		appDBDSN:        fs.String("db-dsn", config.ApplicationDBDSN, "application database DSN, \"memory\" for in-memory (overrides $DATABASE_DSN or $DATABASE_URL)"),
		transport:       fs.String("transport", config.Transport, "messaging transport: whatsapp, twilio or none (overrides $TRANSPORT)"),
		apiAddr:         fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		apiSecret:       fs.String("api-secret", config.APISecret, "HMAC secret for bearer tokens on user-data API routes (overrides $API_SECRET)"),
		mintTokenTTL:    fs.Duration("mint-api-token", 0, "print an API bearer token valid for this long and exit"),
		logLevel:        fs.String("log-level", config.LogLevel, "log level: debug, info, warn, error (overrides $LOG_LEVEL)"),
		timezone:        fs.String("timezone", config.Timezone, "reference timezone for date checks (overrides $BOOKING_TIMEZONE)"),
		catalogSeed:     fs.String("catalog-seed", config.CatalogSeed, "JSON file of catalog items loaded at startup (overrides $CATALOG_SEED)"),
		venueCategories: fs.String("venue-categories", config.VenueCategories, "comma-separated venue category labels (overrides $VENUE_CATEGORIES)"),
		farmCategories:  fs.String("farm-categories", config.FarmCategories, "comma-separated farm category labels (overrides $FARM_CATEGORIES)"),
		listLimit:       fs.Int("list-limit", config.ListLimit, "maximum items shown per category (overrides $LIST_LIMIT)"),
		catalogTimeout:  fs.Duration("catalog-timeout", config.CatalogTimeout, "catalog query timeout (overrides $CATALOG_TIMEOUT)"),
		writeTimeout:    fs.Duration("write-timeout", config.WriteTimeout, "booking write timeout (overrides $WRITE_TIMEOUT)"),
		lockWait:        fs.Duration("lock-wait", config.LockWait, "how long a message waits for its user's lock (overrides $LOCK_WAIT)"),

		redisAddr:     fs.String("redis-addr", config.RedisAddr, "Redis address for shared sessions and locks (overrides $REDIS_ADDR)"),
		redisPassword: fs.String("redis-password", config.RedisPassword, "Redis password (overrides $REDIS_PASSWORD)"),
		redisDB:       fs.Int("redis-db", config.RedisDB, "Redis database number (overrides $REDIS_DB)"),
		sessionTTL:    fs.Duration("session-ttl", config.SessionTTL, "idle conversation expiry in Redis (overrides $SESSION_TTL)"),
		lockTTL:       fs.Duration("lock-ttl", config.LockTTL, "lease on a user's Redis lock, bounds how long a crashed holder blocks them (overrides $LOCK_TTL)"),

		twilioSID:       fs.String("twilio-account-sid", config.TwilioAccountSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		twilioToken:     fs.String("twilio-auth-token", config.TwilioAuthToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		twilioFrom:      fs.String("twilio-from", config.TwilioFromNumber, "Twilio WhatsApp sender number (overrides $TWILIO_FROM_NUMBER)"),
		twilioPublicURL: fs.String("twilio-webhook-url", config.TwilioPublicURL, "public URL Twilio signs webhook requests for (overrides $TWILIO_WEBHOOK_URL)"),
	}

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	// Default DSNs follow a state directory given on the command line
	if *flags.stateDir != config.StateDir {
		if *flags.appDBDSN == defaultAppDSN(config.StateDir) {
			*flags.appDBDSN = defaultAppDSN(*flags.stateDir)
		}
		if *flags.waDBDSN == defaultWhatsAppDSN(config.StateDir) {
			*flags.waDBDSN = defaultWhatsAppDSN(*flags.stateDir)
		}
		slog.Debug("Updated default DSNs for state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	switch *flags.transport {
	case TransportWhatsApp, TransportTwilio, TransportNone:
	default:
		return Flags{}, fmt.Errorf("unknown transport %q", *flags.transport)
	}
	if *flags.lockTTL <= 0 {
		return Flags{}, fmt.Errorf("lock-ttl must be positive, got %v", *flags.lockTTL)
	}

	slog.Debug("flags parsed",
		"transport", *flags.transport,
		"stateDir", *flags.stateDir,
		"appDSNType", store.DetectDSNType(*flags.appDBDSN),
		"apiAddr", *flags.apiAddr,
		"timezone", *flags.timezone,
		"redis", *flags.redisAddr != "")
	return flags, nil
}

// usesStateDir reports whether any file-backed database lives under the state directory.
func usesStateDir(flags Flags) bool {
	if *flags.appDBDSN != "memory" && store.DetectDSNType(*flags.appDBDSN) == "sqlite3" {
		return true
	}
	return *flags.transport == TransportWhatsApp && store.DetectDSNType(*flags.waDBDSN) == "sqlite3"
}

// openStore opens the application store selected by the DSN.
func openStore(dsn string) (store.Store, error) {
	switch {
	case dsn == "" || dsn == "memory":
		slog.Info("Using in-memory store; data is lost on restart")
		return store.NewInMemoryStore(), nil
	case store.DetectDSNType(dsn) == "postgres":
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	default:
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
		if dir := filepath.Dir(strings.TrimPrefix(dsn, "file:")); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dir, err)
			}
		}
		return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
	}
}

// splitCategories parses a comma-separated label list, dropping blanks.
func splitCategories(raw string) []string {
	var labels []string
	for _, part := range strings.Split(raw, ",") {
		if label := strings.TrimSpace(part); label != "" {
			labels = append(labels, label)
		}
	}
	return labels
}

// buildEngineOptions constructs conversation engine options
func buildEngineOptions(flags Flags, m *metrics.Metrics, canceller store.BookingCanceller) ([]flow.Option, error) {
	loc, err := time.LoadLocation(*flags.timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", *flags.timezone, err)
	}
	opts := []flow.Option{
		flow.WithLocation(loc),
		flow.WithListLimit(*flags.listLimit),
		flow.WithCatalogTimeout(*flags.catalogTimeout),
		flow.WithWriteTimeout(*flags.writeTimeout),
		flow.WithCanceller(canceller),
		flow.WithMetrics(m),
	}
	if labels := splitCategories(*flags.venueCategories); len(labels) > 0 {
		opts = append(opts, flow.WithCategories(models.KindVenue, labels))
	}
	if labels := splitCategories(*flags.farmCategories); len(labels) > 0 {
		opts = append(opts, flow.WithCategories(models.KindFarm, labels))
	}
	return opts, nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.waDBDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDBDSN))
	}
	if *flags.logLevel != "" {
		waOpts = append(waOpts, whatsapp.WithLogLevel(strings.ToUpper(*flags.logLevel)))
	}
	return waOpts
}

// buildTwilioOptions constructs Twilio client options
func buildTwilioOptions(flags Flags) []twiliowhatsapp.Option {
	var twOpts []twiliowhatsapp.Option
	if *flags.twilioSID != "" {
		twOpts = append(twOpts, twiliowhatsapp.WithAccountSID(*flags.twilioSID))
	}
	if *flags.twilioToken != "" {
		twOpts = append(twOpts, twiliowhatsapp.WithAuthToken(*flags.twilioToken))
	}
	if *flags.twilioFrom != "" {
		twOpts = append(twOpts, twiliowhatsapp.WithFromWhats(*flags.twilioFrom))
	}
	return twOpts
}

// buildRedisSessionOptions constructs Redis session store options
func buildRedisSessionOptions(flags Flags) []store.RedisOption {
	return []store.RedisOption{store.WithTTL(*flags.sessionTTL)}
}

// buildRedisLockOptions constructs Redis per-user lock options. The lock
// lease is independent of the session TTL.
func buildRedisLockOptions(flags Flags) []store.RedisOption {
	return []store.RedisOption{
		store.WithTTL(*flags.lockTTL),
		store.WithLockWait(*flags.lockWait),
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	apiOpts := []api.Option{api.WithIdentifierCanonicalizer(messaging.CanonicalizePhone)}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.apiSecret != "" {
		apiOpts = append(apiOpts, api.WithAPISecret(*flags.apiSecret))
	}
	return apiOpts
}

// mintAPIToken writes a bearer token for the user-data routes to w.
func mintAPIToken(w io.Writer, flags Flags) error {
	token, err := api.NewAdminToken(*flags.apiSecret, *flags.mintTokenTTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// transport bundles the messaging service chosen at startup.
type transport struct {
	service messaging.Service
	channel string
	apiOpts []api.Option
	close   func()
}

func openTransport(ctx context.Context, flags Flags) (*transport, error) {
	switch *flags.transport {
	case TransportWhatsApp:
		client, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(flags)...)
		if err != nil {
			return nil, fmt.Errorf("connect WhatsApp: %w", err)
		}
		return &transport{
			service: messaging.NewWhatsAppService(client),
			channel: flow.ChannelWhatsApp,
			close:   client.Disconnect,
		}, nil
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient(buildTwilioOptions(flags)...)
		if err != nil {
			return nil, fmt.Errorf("create Twilio client: %w", err)
		}
		var svcOpts []messaging.TwilioOption
		if *flags.twilioToken != "" {
			svcOpts = append(svcOpts, messaging.WithWebhookValidator(
				twiliowhatsapp.NewSignatureValidator(*flags.twilioToken, *flags.twilioPublicURL)))
		} else {
			slog.Warn("Twilio webhook signature validation disabled: no auth token")
		}
		svc := messaging.NewTwilioService(client, svcOpts...)
		return &transport{
			service: svc,
			channel: flow.ChannelTwilio,
			apiOpts: []api.Option{api.WithTwilioWebhook(http.HandlerFunc(svc.TwilioWebhookHandler))},
			close:   func() {},
		}, nil
	default:
		slog.Info("No messaging transport; only POST /messages is served")
		return nil, nil
	}
}

// run wires the application and blocks until ctx is cancelled or a component fails.
func run(ctx context.Context, flags Flags) error {
	if usesStateDir(flags) {
		lock, err := lockfile.AcquireLock(*flags.stateDir)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := openStore(*flags.appDBDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if *flags.catalogSeed != "" {
		n, err := store.LoadCatalogSeed(ctx, st, *flags.catalogSeed)
		if err != nil {
			return err
		}
		slog.Info("Catalog seed loaded", "path", *flags.catalogSeed, "items", n)
	}

	if n, err := st.PruneDedup(ctx, time.Now().Add(-store.DefaultDedupRetention)); err != nil {
		slog.Warn("Failed to prune inbound dedup records", "error", err)
	} else if n > 0 {
		slog.Info("Pruned inbound dedup records", "count", n)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	apiOpts := buildAPIOptions(flags)
	apiOpts = append(apiOpts, api.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	if p, ok := st.(interface{ Ping(context.Context) error }); ok {
		apiOpts = append(apiOpts, api.WithHealthCheck("database", p.Ping))
	}

	var sessions store.SessionStore = st
	var locker flow.Locker = flow.NewKeyedLocker(*flags.lockWait)
	if *flags.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     *flags.redisAddr,
			Password: *flags.redisPassword,
			DB:       *flags.redisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis %s: %w", *flags.redisAddr, err)
		}
		sessions = store.NewRedisSessionStore(rdb, buildRedisSessionOptions(flags)...)
		locker = store.NewRedisLocker(rdb, buildRedisLockOptions(flags)...)
		apiOpts = append(apiOpts, api.WithHealthCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
		slog.Info("Using Redis for sessions and per-user locks", "addr", *flags.redisAddr)
	}

	engineOpts, err := buildEngineOptions(flags, m, st)
	if err != nil {
		return err
	}
	engine := flow.NewBookingFlow(st, st, engineOpts...)
	processor := flow.NewProcessor(sessions, engine, flow.WithLocker(locker), flow.WithProcessorMetrics(m))

	tr, err := openTransport(ctx, flags)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if tr != nil {
		defer tr.close()
		apiOpts = append(apiOpts, tr.apiOpts...)
		if err := tr.service.Start(gctx); err != nil {
			return fmt.Errorf("start messaging service: %w", err)
		}
		handler := messaging.NewResponseHandler(tr.service, processor,
			messaging.WithDedup(st),
			messaging.WithHandlerMetrics(m),
			messaging.WithChannel(tr.channel),
			messaging.WithSendRetry(messaging.DefaultSendAttempts, messaging.DefaultSendBackoff),
		)
		handler.Start(gctx)
		g.Go(func() error {
			<-gctx.Done()
			// Accepted messages finish and reply before the transport closes.
			handler.Wait()
			if err := tr.service.Stop(); err != nil && !errors.Is(err, messaging.ErrServiceStopped) {
				slog.Warn("Messaging service stop failed", "error", err)
			}
			return nil
		})
	}

	server := api.NewServer(processor, st, apiOpts...)
	g.Go(func() error {
		return server.Run(gctx)
	})
	return g.Wait()
}
