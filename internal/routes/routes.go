package routes

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/mahalle/mahalle-api/internal/account"
	"github.com/mahalle/mahalle-api/internal/auth"
	"github.com/mahalle/mahalle-api/internal/challenge"
	"github.com/mahalle/mahalle-api/internal/config"
	"github.com/mahalle/mahalle-api/internal/guard"
	"github.com/mahalle/mahalle-api/internal/middleware"
	"github.com/mahalle/mahalle-api/internal/neighborhood"
	"github.com/mahalle/mahalle-api/internal/otp"
	"github.com/mahalle/mahalle-api/internal/permission"
	"github.com/mahalle/mahalle-api/internal/sms"
	"github.com/mahalle/mahalle-api/internal/token"
)

// DevNeighborhoodID is seeded into the in-memory neighborhood store so
// registration works without a database.
const DevNeighborhoodID = "00000000-0000-4000-8000-000000000001"

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Sender overrides the configured SMS driver when set.
	Sender sms.Sender
}

// Setup configures middlewares and all application routes. The returned
// function drains background work and must be called on shutdown.
func Setup(app *fiber.App, d Deps) (func(), error) {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	var closers []func()

	var store challenge.Store
	if d.Cache != nil {
		store = challenge.NewRedisStore(d.Cache, d.Cfg.StoreTimeout)
	} else {
		mem := challenge.NewMemoryStore(time.Minute)
		closers = append(closers, mem.Close)
		store = mem
		d.Logger.Warn("redis not configured, using in-memory challenge store")
	}

	var (
		accounts      account.Repository
		neighborhoods neighborhood.Repository
		grants        permission.Repository
	)
	if d.DB != nil {
		accounts = account.NewPostgresRepository(d.DB)
		neighborhoods = neighborhood.NewPostgresRepository(d.DB)
		grants = permission.NewPostgresRepository(d.DB)
	} else {
		accounts = account.NewMemoryRepository()
		neighborhoods = neighborhood.NewMemoryRepository(neighborhood.Neighborhood{
			ID: DevNeighborhoodID, Name: "Dev", District: "Local", IsActive: true,
		})
		grants = permission.NewMemoryRepository()
		d.Logger.Warn("database not configured, using in-memory repositories", slog.String("neighborhood_id", DevNeighborhoodID))
	}

	sender := d.Sender
	if sender == nil {
		var err error
		sender, err = sms.New(d.Cfg.SMS, d.Cfg.OTP.DevMode, d.Logger)
		if err != nil {
			return nil, err
		}
		if c, ok := sender.(io.Closer); ok {
			closers = append(closers, func() { _ = c.Close() })
		}
	}

	tokens, err := token.NewIssuer(token.Config{
		AccessSecret:    d.Cfg.JWT.AccessSecret,
		RefreshSecret:   d.Cfg.JWT.RefreshSecret,
		AccessTTL:       d.Cfg.JWT.AccessTTL,
		RefreshTTL:      d.Cfg.JWT.RefreshTTL,
		RegistrationTTL: d.Cfg.JWT.RegistrationTTL,
		Issuer:          d.Cfg.JWT.Issuer,
	})
	if err != nil {
		return nil, err
	}

	codes := otp.NewManager(store, sender, otp.Policy{
		TTL:         d.Cfg.OTP.TTL,
		HourlyLimit: d.Cfg.OTP.HourlyLimit,
		MaxAttempts: d.Cfg.OTP.MaxAttempts,
		Lockout:     d.Cfg.OTP.Lockout,
		ResendAfter: d.Cfg.OTP.ResendAfter,
		DevMode:     d.Cfg.OTP.DevMode,
		DevCode:     d.Cfg.OTP.DevCode,
		SMSTimeout:  d.Cfg.SMS.Timeout,
	}, d.Logger)
	// Pending SMS sends finish before the sender and store are closed.
	closers = append([]func(){codes.Wait}, closers...)

	g := guard.New(tokens, accounts, grants, d.Cfg.StoreTimeout, d.Logger)
	authSvc := auth.NewService(codes, tokens, accounts, neighborhoods, store, d.Cfg.StoreTimeout, d.Logger)
	permSvc := permission.NewService(grants, accounts, d.Cfg.StoreTimeout)

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	RegisterAuthRoutes(app, auth.NewHandler(authSvc), g, middleware.IPRateLimit(store, d.Cfg.RateLimitPerIP, d.Logger))
	RegisterAdminRoutes(app, permission.NewHandler(permSvc), g)

	return func() {
		for _, c := range closers {
			c()
		}
	}, nil
}
