package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"google.golang.org/api/option"

	"github.com/c4u/launchpad/pkg/config"
	"github.com/c4u/launchpad/pkg/identity"
	"github.com/c4u/launchpad/pkg/logger"
	"github.com/c4u/launchpad/repos/docstore"
	"github.com/c4u/launchpad/repos/metadata"
	"github.com/c4u/launchpad/repos/papersheet"
	"github.com/c4u/launchpad/services/papers"
)

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "launchpad",
		Usage: "Research group events board and paper voting backend.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to an optional configuration file."},
		},
		Commands: []*cli.Command{
			serveCommand(),
			papersCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Errorf("launchpad failed: %v", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.NewConfig(c.String("config"))
	if err != nil {
		return cfg, err
	}
	if c.IsSet("store") {
		cfg.Store = c.String("store")
		if err := cfg.Validate(); err != nil {
			return cfg, err
		}
	}
	if err := logger.PrepareLogger(cfg.Logger); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// openStore connects the document store and, for Firestore, the token verifier
// of the same Firebase project. The memory store has no verifier, so only
// display names identify users.
func openStore(ctx context.Context, cfg config.Config) (docstore.Store, identity.TokenVerifier, error) {
	if cfg.Store == "memory" {
		log.Warn("Using the in-memory store; nothing is persisted")
		return docstore.NewMemory(), nil, nil
	}

	var opts []option.ClientOption
	if cfg.Firebase.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.Firebase.CredentialsJSON)))
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.Firebase.ProjectID, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	firebaseApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Firebase.ProjectID}, opts...)
	if err != nil {
		firestoreClient.Close()
		return nil, nil, fmt.Errorf("error initializing app: %w", err)
	}
	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		firestoreClient.Close()
		return nil, nil, fmt.Errorf("error getting Auth client: %w", err)
	}

	return docstore.NewFirestore(firestoreClient), authClient, nil
}

func newMetadataResolver(cfg config.Config) *metadata.Resolver {
	opts := []metadata.Option{metadata.WithTimeout(cfg.Papers.MetadataTimeout)}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		opts = append(opts, metadata.WithCache(metadata.NewRedisCache(rdb, cfg.Redis.TTL)))
	}
	return metadata.NewResolver(opts...)
}

func papersCommand() *cli.Command {
	return &cli.Command{
		Name:  "papers",
		Usage: "Read the paper sheet once and print it with resolved titles.",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			source := papersheet.NewService(cfg.Papers.Endpoint, nil)
			service := papers.NewPapersService(docstore.NewMemory(), source, newMetadataResolver(cfg),
				papers.WithConcurrency(cfg.Papers.Concurrency))
			if err := service.Reload(c.Context); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPRESENTED\tPRESENTER\tTITLE\tAUTHORS")
			for _, p := range service.Papers() {
				fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n", p.ID, p.Presented, p.Presenter, orDash(p.Title), orDash(p.Authors))
			}
			return w.Flush()
		},
	}
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
