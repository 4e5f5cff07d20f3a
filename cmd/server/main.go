package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/logging"
	"github.com/Tyrowin/roomchat/internal/push"
	"github.com/Tyrowin/roomchat/internal/server"
)

func newServerCommand() *cobra.Command {
	var (
		port  string
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "roomchat",
		Short: "Real-time chat server with rooms, direct messages and web push",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := server.NewConfigFromEnv()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if debug {
				cfg.Debug = true
			}
			return run(cmd.Context(), server.SetConfig(cfg))
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen address, e.g. :8080 (overrides SERVER_PORT)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	return cmd
}

func run(ctx context.Context, cfg server.Config) error {
	log := logging.New(cfg.Debug)
	logging.Set(log)
	defer func() { _ = log.Sync() }()

	log.Info("starting roomchat", zap.String("port", cfg.Port), zap.Strings("origins", cfg.AllowedOrigins))

	vapid, err := vapidConfig(cfg.Push, log)
	if err != nil {
		return err
	}
	sender := push.NewWebPushSender(vapid, &http.Client{Timeout: cfg.Push.Timeout})

	var hub *server.Hub
	dispatcher := push.NewDispatcher(sender, push.Config{
		Workers:   cfg.Push.Workers,
		QueueSize: cfg.Push.QueueSize,
		Timeout:   cfg.Push.Timeout,
	}, func(user, endpoint string) {
		hub.ExpireSubscription(user, endpoint)
	}, log.Named("push"))
	hub = server.NewHub(log.Named("hub"), chat.WithNotifier(dispatcher))

	httpServer := server.CreateServer(cfg.Port, server.NewRouter(hub, sender.PublicKey()))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		return server.StartServer(httpServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
		if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
			log.Warn("hub shutdown", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

// vapidConfig returns the configured key pair, generating a throwaway one when
// either half is missing.
func vapidConfig(cfg server.PushConfig, log *zap.Logger) (push.VAPIDConfig, error) {
	vapid := push.VAPIDConfig{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subject:    cfg.Subject,
		TTL:        cfg.TTL,
	}
	if vapid.PublicKey != "" && vapid.PrivateKey != "" {
		return vapid, nil
	}

	public, private, err := push.GenerateKeys()
	if err != nil {
		return vapid, err
	}
	vapid.PublicKey, vapid.PrivateKey = public, private
	log.Warn("VAPID keys not configured; generated a key pair for this process only",
		zap.String("public_key", public))
	return vapid, nil
}

func main() {
	if err := newServerCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
