package setup

import (
	"time"

	"github.com/readshelf/readshelf/internal/config"
	"github.com/readshelf/readshelf/internal/handler"
	"github.com/readshelf/readshelf/internal/mailer"
	"github.com/readshelf/readshelf/internal/middleware"
	"github.com/readshelf/readshelf/internal/service"
	"github.com/readshelf/readshelf/internal/storage/pg"
	"github.com/readshelf/readshelf/internal/token"
)

// Dependencies holds every initialized component the router and main need.
type Dependencies struct {
	Config     *config.Config
	Storage    *pg.Storage
	Dispatcher *mailer.Dispatcher
	Sweeper    *service.Sweeper
	Handler    *handler.Handler

	MailLimiter *middleware.RateLimiter
	AuthLimiter *middleware.RateLimiter
}

func SetupDependencies(cfg *config.Config) (*Dependencies, error) {
	storage, err := pg.New(cfg)
	if err != nil {
		return nil, err
	}

	codec := token.New(cfg.TokenSecret(), cfg.Public.TokenMaxAge)
	dispatcher := mailer.NewDispatcher(mailer.NewSMTPSender(cfg), 128)

	auth := service.NewAuth(storage, storage, codec, dispatcher, &cfg.Public)
	reset := service.NewPasswordReset(storage, storage, storage, codec, dispatcher, &cfg.Public)
	sweeper := service.NewSweeper(storage, storage, &cfg.Public)

	h := handler.New(auth, reset, storage, cfg)

	mailRPS := cfg.Public.AuthRPS
	if mailRPS == 0 {
		mailRPS = 0.1 // one email-sending request per 10s per IP
	}
	burst := cfg.Public.AuthBurst
	if burst == 0 {
		burst = 3
	}

	return &Dependencies{
		Config:      cfg,
		Storage:     storage,
		Dispatcher:  dispatcher,
		Sweeper:     sweeper,
		Handler:     h,
		MailLimiter: middleware.NewRateLimiter(mailRPS, burst, 5*time.Minute),
		AuthLimiter: middleware.NewRateLimiter(1, 5, 5*time.Minute),
	}, nil
}
