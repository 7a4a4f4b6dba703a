package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/jessevdk/go-flags"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
	nhttp "net/http"
	"os"
	"os/signal"
	"resume-scheduler/internal/hh"
	"resume-scheduler/internal/http"
	"resume-scheduler/internal/model"
	"resume-scheduler/internal/notify"
	"resume-scheduler/internal/schedule"
	"resume-scheduler/internal/scheduler"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"
)

type HeadHunterOptions struct {
	ClientID     string `long:"client-id" env:"HH_CLIENT_ID" description:"HeadHunter application client id"`
	ClientSecret string `long:"client-secret" env:"HH_CLIENT_SECRET" description:"HeadHunter application client secret"`
	RedirectURL  string `long:"redirect-url" default:"http://localhost:8080/auth/" description:"OAuth redirect URL served by this process"`
	UserAgent    string `long:"user-agent" default:"resume-scheduler/1.0" description:"User-Agent sent to the HeadHunter API"`
	Secret       string `long:"state-secret" env:"HH_STATE_SECRET" description:"Secret mixed into OAuth state"`
}

type Options struct {
	Storage           string            `long:"storage" choice:"postgres" choice:"memory" default:"postgres" description:"Job storage backend"`
	DbHost            string            `short:"u" long:"db-url" env:"DB_HOST" default:"localhost" description:"Database host url"`
	DbPort            uint              `short:"p" long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DbUser            string            `short:"l" long:"db-login" env:"DB_USER" description:"Database user login"`
	DbName            string            `short:"n" long:"db-name" env:"DB_NAME" description:"Database name"`
	Listen            string            `long:"listen" default:"localhost:8080" description:"REST API listen address"`
	PollInterval      time.Duration     `long:"poll-interval" default:"5s" description:"How often due jobs are looked up"`
	MaxConcurrentJobs int               `long:"max-concurrent-jobs" default:"100" description:"Maximum number of jobs running at once"`
	JobTimeout        time.Duration     `long:"job-timeout" default:"30s" description:"Timeout of a single job run"`
	ServerTimezone    string            `long:"server-timezone" description:"Timezone of the server clock, process local by default"`
	TelegramToken     string            `long:"telegram-token" env:"TELEGRAM_TOKEN" description:"Bot token used to notify users about failed updates"`
	NotifyRate        int               `long:"notify-rate" default:"20" description:"Maximum notifications per second"`
	LogLevel          string            `long:"log-level" default:"info" description:"Log level"`
	LogJSON           bool              `long:"log-json" description:"Log in JSON format"`
	HeadHunter        HeadHunterOptions `group:"HeadHunter" namespace:"hh"`
}

const serverShutdownTimeout = 30 * time.Second

func main() {
	opts := Options{}
	_, err := flags.Parse(&opts)
	if err != nil {
		if flags.WroteHelp(err) {
			return
		}
		log.Fatal(fmt.Errorf("could not parse command line args: %w", err))
	}
	if err = setupLogging(opts); err != nil {
		log.Fatal(err)
	}

	serverLocation := time.Local
	if opts.ServerTimezone != "" {
		if serverLocation, err = time.LoadLocation(opts.ServerTimezone); err != nil {
			log.Fatal(fmt.Errorf("could not load server timezone: %w", err))
		}
	}

	background := context.Background()
	jobStorage, userStorage, err := openStorage(background, opts)
	if err != nil {
		log.Fatal(fmt.Errorf("could not create storage: %w", err))
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if opts.TelegramToken != "" {
		if notifier, err = notify.NewTelegramNotifier(notify.TelegramConfig{Token: opts.TelegramToken, RatePerSec: opts.NotifyRate}); err != nil {
			log.Fatal(fmt.Errorf("could not create notifier: %w", err))
		}
	}

	skd := scheduler.New(jobStorage, notifier, scheduler.Config{
		PingInterval:  opts.PollInterval,
		MaxConcurrent: opts.MaxConcurrentJobs,
		JobTimeout:    opts.JobTimeout,
	})

	var resumes http.Resumes
	if opts.HeadHunter.ClientID != "" {
		client, err := hh.NewClient(hh.Config{
			ClientID:     opts.HeadHunter.ClientID,
			ClientSecret: opts.HeadHunter.ClientSecret,
			RedirectURL:  opts.HeadHunter.RedirectURL,
			UserAgent:    opts.HeadHunter.UserAgent,
			Secret:       opts.HeadHunter.Secret,
		}, userStorage)
		if err != nil {
			log.Fatal(fmt.Errorf("could not create HeadHunter client: %w", err))
		}
		skd.Register(model.KindUpdateResume, client)
		resumes = client
	} else {
		log.Warn("HeadHunter client is not configured, scheduled updates will fail")
	}

	manager := schedule.NewManager(jobStorage, serverLocation)
	server, err := http.NewScheduleServer(manager, userStorage, resumes, opts.Listen)
	if err != nil {
		log.Fatal(fmt.Errorf("could not create schedule server: %w", err))
	}

	cancelCtx, cancel := context.WithCancel(background)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	wg := sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		skd.Start(cancelCtx)
	}()
	go func() {
		defer wg.Done()
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nhttp.ErrServerClosed) {
			log.Error(fmt.Errorf("listen and serve error: %w", err))
		}
	}()
	<-sigs
	cancel()
	timeoutCtx, timeoutCancel := context.WithTimeout(background, serverShutdownTimeout)
	defer timeoutCancel()
	if err = server.Shutdown(timeoutCtx); err != nil {
		log.Error(fmt.Errorf("failed to shutdown server: %w", err))
	}
	wg.Wait()
}

func setupLogging(opts Options) error {
	level, err := log.ParseLevel(opts.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)
	if opts.LogJSON {
		log.SetFormatter(&log.JSONFormatter{})
	}
	return nil
}

func openStorage(ctx context.Context, opts Options) (model.JobStorage, model.UserStorage, error) {
	if opts.Storage == "memory" {
		log.Warn("Using in-memory storage, schedules are lost on restart")
		return model.NewMemoryJobStorage(), model.NewMemoryUserStorage(), nil
	}
	if opts.DbUser == "" || opts.DbName == "" {
		return nil, nil, errors.New("db-login and db-name are required for postgres storage")
	}

	datasourceName := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		opts.DbHost,
		opts.DbPort,
		opts.DbUser,
		os.Getenv("POSTGRES_PASSWORD"),
		opts.DbName,
	)
	database, err := model.OpenDatabase(ctx, "postgres", datasourceName)
	if err != nil {
		return nil, nil, err
	}
	jobStorage, err := model.NewSQLJobStorage(ctx, database)
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return jobStorage, model.NewSQLUserStorage(database), nil
}
