package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"stravachallenge/app/activity"
	"stravachallenge/app/athlete"
	"stravachallenge/app/challenge"
	"stravachallenge/app/config"
	"stravachallenge/app/feed"
	"stravachallenge/app/notification"
	"stravachallenge/app/server"
	"stravachallenge/app/storage"
	"stravachallenge/app/storage/models"
	"stravachallenge/app/strava"
	"stravachallenge/app/token"
	"stravachallenge/app/utils"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("error while loading config", "err", err)
		os.Exit(1)
	}
	slog.SetLogLoggerLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("shutting down with error", "err", err)
		os.Exit(1)
	}
	slog.Info("shut down")
}

func run(ctx context.Context, cfg *config.Config) error {
	store := storage.NewSQLiteStore(cfg.DBPath, storage.NewTokenSealer(cfg.TokenSecret))
	if err := store.Connect(); err != nil {
		return err
	}
	defer store.Close()

	stravaClient := strava.NewStravaClient(cfg.StravaClientID, cfg.StravaClientSecret)
	tokens := token.NewCache(store, stravaClient, cfg.TokenRefreshSkew)

	activities := feed.NewBus[models.Activity]("activities")
	challenges := feed.NewBus[models.Challenge]("challenges")
	athletes := feed.NewBus[models.Athlete]("athletes")
	notifications := feed.NewBus[models.Notification]("notifications")
	defer activities.Close()
	defer challenges.Close()
	defer athletes.Close()
	defer notifications.Close()

	if cfg.RedisURL != "" {
		closeRelays, err := startRelays(ctx, cfg.RedisURL, activities, challenges, athletes, notifications)
		if err != nil {
			return err
		}
		defer closeRelays()
	}

	g, ctx := errgroup.WithContext(ctx)

	var sender notification.Sender
	if cfg.IsDev() || cfg.TelegramAPIKey == "" {
		slog.Info("telegram delivery disabled")
	} else {
		tg := notification.NewTelegram(cfg.TelegramAPIKey, cfg.URL)
		if err := tg.Start(ctx); err != nil {
			return err
		}
		sender = tg
	}
	notifier := notification.NewService(store, notifications, sender)

	activityService := activity.NewService(store, stravaClient, tokens, activities).
		WithPaging(cfg.ImportPageSize, cfg.ImportPageDelay)
	athleteService := athlete.NewService(store, stravaClient, tokens, activityService, notifier, athletes)
	engine := challenge.NewEngine(store, challenges, notifier)

	syncer := activity.NewSyncer(store, activityService, activity.DefaultSyncWindow)
	if err := syncer.Schedule(cfg.SyncSchedule); err != nil {
		return err
	}
	syncer.Start()
	defer syncer.Stop()

	srv := &server.HttpHandler{
		Url:            cfg.URL,
		Port:           cfg.Port,
		StravaToken:    cfg.StravaVerifyToken,
		StravaClientId: cfg.StravaClientID,
		WebhookTimeout: cfg.WebhookTimeout,
		Activities:     activityService,
		Athletes:       athleteService,
		Challenges:     engine,
		Notifications:  notifier,
		JWT:            utils.JWT{Key: []byte(cfg.JWTKey)},
	}
	g.Go(func() error {
		return srv.Start(ctx)
	})

	slog.Info("press CTRL+C to stop program")
	err := g.Wait()
	athleteService.Wait()
	return err
}

// startRelays mirrors every bus through Redis so several instances share
// one stream of updates.
func startRelays(ctx context.Context, url string, activities *feed.Bus[models.Activity], challenges *feed.Bus[models.Challenge],
	athletes *feed.Bus[models.Athlete], notifications *feed.Bus[models.Notification]) (func(), error) {
	client, err := feed.NewGoRedisClient(url)
	if err != nil {
		return nil, err
	}
	instance := uuid.NewString()

	var relays []interface{ Close() }
	closeAll := func() {
		for _, r := range relays {
			r.Close()
		}
		if err := client.Close(); err != nil {
			slog.Warn("error while closing redis client", "err", err)
		}
	}
	fail := func(err error) (func(), error) {
		closeAll()
		return nil, err
	}

	ar, err := feed.NewRelay(ctx, activities, client, instance)
	if err != nil {
		return fail(err)
	}
	relays = append(relays, ar)
	cr, err := feed.NewRelay(ctx, challenges, client, instance)
	if err != nil {
		return fail(err)
	}
	relays = append(relays, cr)
	atr, err := feed.NewRelay(ctx, athletes, client, instance)
	if err != nil {
		return fail(err)
	}
	relays = append(relays, atr)
	nr, err := feed.NewRelay(ctx, notifications, client, instance)
	if err != nil {
		return fail(err)
	}
	relays = append(relays, nr)

	slog.Info("feed relay enabled", "instance", instance)
	return closeAll, nil
}
