package main

import (
	"os"
	"os/signal"
	"syscall"

	pkg "git.solsynth.dev/hypernet/meet/pkg"
	"git.solsynth.dev/hypernet/meet/pkg/internal/cache"
	"git.solsynth.dev/hypernet/meet/pkg/internal/database"
	"git.solsynth.dev/hypernet/meet/pkg/internal/grpc"
	server "git.solsynth.dev/hypernet/meet/pkg/internal/http"
	"git.solsynth.dev/hypernet/meet/pkg/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
}

func main() {
	// Configure settings
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.SetConfigName("settings")
	viper.SetConfigType("toml")
	viper.SetEnvPrefix("MEET")
	viper.AutomaticEnv()
	viper.SetDefault("relay.heartbeat_timeout", "30s")
	viper.SetDefault("relay.sweep_interval", "10s")

	// Load settings
	if err := viper.ReadInConfig(); err != nil {
		log.Panic().Err(err).Msg("An error occurred when loading settings.")
	}

	// Connect to database
	if err := database.NewSource(); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when connect to database.")
	} else if err := database.RunMigration(database.C); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when running database auto migration.")
	}

	// Initialize cache
	if err := cache.NewCache(); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when initializing cache.")
	}

	// Connect other services
	if err := services.SetupEvents(); err != nil {
		log.Error().Err(err).Msg("An error occurred when connecting to nats, room events will not be published...")
	}
	services.SetupLiveKit()
	services.SetupBookings()
	services.SetupRelay()

	// Server
	httpServer := server.NewServer()
	go httpServer.Listen()

	grpcServer := grpc.NewGrpc()
	go func() {
		if err := grpcServer.Listen(); err != nil {
			log.Fatal().Err(err).Msg("An error occurred when starting grpc server...")
		}
	}()
	grpcServer.SetServing(true)

	// Configure timed tasks
	quartz := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(&log.Logger)))
	quartz.AddFunc("@every "+viper.GetDuration("relay.sweep_interval").String(), services.DoSilentConnectionSweep)
	quartz.AddFunc("@every 60m", services.DoAutoDatabaseCleanup)
	quartz.Start()

	// Messages
	log.Info().Msgf("Meet v%s is started...", pkg.AppVersion)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msgf("Meet v%s is quitting...", pkg.AppVersion)

	quartz.Stop()
	grpcServer.Stop()
	_ = httpServer.Shutdown()
	if services.Nc != nil {
		services.Nc.Close()
	}
}
