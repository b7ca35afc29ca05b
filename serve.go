package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/c4u/launchpad/pkg/config"
	"github.com/c4u/launchpad/pkg/identity"
	"github.com/c4u/launchpad/pkg/live"
	"github.com/c4u/launchpad/pkg/logger"
	"github.com/c4u/launchpad/pkg/mirror"
	"github.com/c4u/launchpad/repos/papersheet"
	"github.com/c4u/launchpad/repos/resend"
	"github.com/c4u/launchpad/services/events"
	"github.com/c4u/launchpad/services/papers"
	"github.com/c4u/launchpad/services/session"
	"github.com/c4u/launchpad/services/stats"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "store", Usage: "Document store to use: firestore or memory."},
			&cli.StringFlag{Name: "port", Usage: "Port to listen on. Overrides PORT."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("port") {
				cfg.Port = c.String("port")
			}

			ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	store, verifier, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	backoff := mirror.WithBackoff(500*time.Millisecond, 30*time.Second, cfg.Mirror.MaxRetries)
	hub := live.NewHub()
	gate := identity.NewGate(cfg.Gate.TTL, identity.WithMaxPending(cfg.Gate.MaxPending))

	eventOpts := []events.Option{events.WithLocation(loc), events.WithMirrorOptions(backoff)}
	if announcer := resend.NewService(cfg.Mail.ResendKey, cfg.Mail.From, cfg.Mail.To, cfg.Mail.HostURL); announcer != nil {
		eventOpts = append(eventOpts, events.WithAnnouncer(announcer))
	}
	eventsService := events.NewEventsService(store, hub, eventOpts...)

	papersService := papers.NewPapersService(store,
		papersheet.NewService(cfg.Papers.Endpoint, nil),
		newMetadataResolver(cfg),
		papers.WithRefresh(cfg.Papers.Refresh),
		papers.WithConcurrency(cfg.Papers.Concurrency),
		papers.WithMirrorOptions(backoff),
	)
	statsService := stats.NewStatsService(eventsService, papersService)

	router := gin.New()
	router.Use(gin.Recovery(), logger.Middleware())
	if len(cfg.CORS.Hosts) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.CORS.Hosts
		corsConfig.AllowCredentials = true
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", identity.DisplayNameHeader}
		router.Use(cors.New(corsConfig))
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"events": eventsService.Status(),
			"papers": papersService.Status(),
		})
	})

	actors := identity.Middleware(identity.NewResolver(verifier))

	eventsRouter := router.Group("/events/v1")
	eventsRouter.Use(actors)

	papersRouter := router.Group("/papers/v1")
	papersRouter.Use(actors)

	sessionRouter := router.Group("/session/v1")
	sessionRouter.Use(actors)

	statsRouter := router.Group("/stats/v1")

	events.NewHTTPHandler(events.HTTPOptions{
		Service: eventsService,
		Gate:    gate,
		Hub:     hub,
		Router:  eventsRouter,
	})

	papers.NewHTTPHandler(papers.HTTPOptions{
		Service: papersService,
		Gate:    gate,
		Router:  papersRouter,
	})

	session.NewHTTPHandler(session.HTTPOptions{
		Gate:   gate,
		Router: sessionRouter,
	})

	stats.NewHTTPHandler(stats.HTTPOptions{
		Service: statsService,
		Router:  statsRouter,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	// A mirror that gives up keeps its error in the status; the API stays up.
	g.Go(func() error {
		if err := eventsService.Run(ctx); err != nil {
			log.Errorf("Events mirror stopped: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := papersService.Run(ctx); err != nil {
			log.Errorf("Papers mirror stopped: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Infof("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
