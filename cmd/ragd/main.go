package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mnemosyne-ai/ragcore"
	"github.com/mnemosyne-ai/ragcore/llm/factory"
	"github.com/mnemosyne-ai/ragcore/persistence"

	httpT "github.com/mnemosyne-ai/ragcore/transport/http"
	natsT "github.com/mnemosyne-ai/ragcore/transport/nats"
)

func main() {
	cmd := &cli.Command{
		Name:  "ragd",
		Usage: "document indexing and retrieval service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "Path to the service work directory",
			},
			&cli.StringFlag{
				Name:    "http-addr",
				Usage:   "HTTP server address",
				Value:   ":8080",
				Sources: cli.EnvVars("RAGD_HTTP_ADDR"),
			},
			&cli.BoolFlag{
				Name:  "nats",
				Usage: "Enable NATS transport",
				Value: false,
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				Value:   nats.DefaultURL,
				Sources: cli.EnvVars("NATS_URL"),
			},
		},
		Action: run,
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err.Error())
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("path")
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		path = filepath.Join(homeDir, ".ragcore")
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)

	// API keys live in the environment; a .env next to the config is
	// picked up when present.
	godotenv.Load(filepath.Join(path, ".env"))

	f, err := os.Open(filepath.Join(path, "config.yaml"))
	if err != nil {
		return err
	}
	defer f.Close()

	var cfg ragcore.Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return err
	}

	if cfg.Vector.Path == "" {
		cfg.Vector.Path = filepath.Join(path, "vectors")
	}

	provider, err := factory.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}

	index, err := persistence.NewIndex(cfg.Vector)
	if err != nil {
		return err
	}

	svc, err := ragcore.NewService(cfg, provider, index)
	if err != nil {
		return err
	}
	defer svc.Close()

	svc = ragcore.LoggingMiddleware(log)(svc)

	endpoints := ragcore.EndpointSet{
		ProcessAndIndex: ragcore.ProcessAndIndexEndpoint(svc),
		AnswerQuery:     ragcore.AnswerQueryEndpoint(svc),
		Search:          ragcore.SearchEndpoint(svc),
		ResetCollection: ragcore.ResetCollectionEndpoint(svc),
		CollectionInfo:  ragcore.CollectionInfoEndpoint(svc),
	}

	natsEnabled := cmd.Bool("nats")
	if natsEnabled {
		nc, err := nats.Connect(cmd.String("nats-url"),
			nats.Name("ragcore"),
		)
		if err != nil {
			return err
		}
		defer nc.Drain()

		srv, err := micro.AddService(nc, micro.Config{
			Name:    "ragcore",
			Version: "1.0.0",
		})
		if err != nil {
			return err
		}
		defer srv.Stop()

		root := srv.AddGroup("ragcore")
		natsT.AddEndpoints(root, endpoints)
	}

	r := gin.Default()
	httpT.AddRouters(r, endpoints)

	httpAddr := cmd.String("http-addr")
	go r.Run(httpAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sign := <-quit

	log.Info("graceful shutdown", zap.String("signal", sign.String()))
	return nil
}
