// Command eventstreamd runs the event stream broker: a local producer
// socket that accepts notifications and an HTTP server that fans them out
// to subscribed SSE consumers.
package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/NYTimes/logrotate"
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/multi"
	"github.com/apex/log/handlers/text"
	"github.com/spf13/cobra"

	"github.com/srittau/eventstreamd/internal/auth"
	"github.com/srittau/eventstreamd/internal/config"
	"github.com/srittau/eventstreamd/internal/daemon"
	"github.com/srittau/eventstreamd/internal/httpapi"
	"github.com/srittau/eventstreamd/internal/ingest"
	"github.com/srittau/eventstreamd/internal/sse"
)

const defaultConfigFile = "/etc/eventstreamd.conf"

var flags struct {
	ConfigFile string
	Socket     string
	SSLKey     string
	SSLCert    string
	Port       int
	Debug      bool
	LogFile    string
}

func main() {
	root := &cobra.Command{
		Use:   "eventstreamd",
		Short: "A simple event stream server.",
		RunE:  run,
	}
	root.Flags().StringVarP(&flags.ConfigFile, "config-file", "c", "", "configuration file")
	root.Flags().StringVarP(&flags.Socket, "socket", "s", "", "socket file")
	root.Flags().StringVar(&flags.SSLKey, "ssl-key", "", "SSL key file")
	root.Flags().StringVar(&flags.SSLCert, "ssl-cert", "", "SSL certificate file")
	root.Flags().IntVarP(&flags.Port, "port", "p", 0, "HTTP port")
	root.Flags().BoolVarP(&flags.Debug, "debug", "d", false, "enable debug mode")
	root.Flags().StringVar(&flags.LogFile, "log-file", "", "rotatable log file, in addition to stderr")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(*cobra.Command, []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if err := setupLogging(cfg.Debug); err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}

	if err := daemon.PrepareSocket(cfg.SocketFile); err != nil {
		if err == daemon.ErrServerAlreadyRunning {
			fmt.Fprintln(os.Stderr, "server already running, exiting")
			os.Exit(1)
		}
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := sse.NewDispatcher(ctx)

	socketLn, err := net.Listen("unix", cfg.SocketFile)
	if err != nil {
		return fmt.Errorf("listening on producer socket: %w", err)
	}
	defer func() { _ = daemon.RemoveSocket(cfg.SocketFile) }()

	if err := daemon.SetSocketPermissions(cfg.SocketFile, os.FileMode(cfg.SocketMode), cfg.SocketOwner, cfg.SocketGroup); err != nil {
		return fmt.Errorf("setting producer socket permissions: %w", err)
	}

	producer := ingest.NewServer(dispatcher)
	go func() {
		if err := producer.Serve(socketLn); err != nil {
			log.WithError(err).Info("producer socket closed")
		}
	}()

	httpLn, err := listenHTTP(cfg)
	if err != nil {
		return fmt.Errorf("listening on HTTP port: %w", err)
	}

	httpServer := httpapi.NewServer(dispatcher, auth.AllowAll{}, cfg.PingInterval)
	go func() {
		if err := httpServer.Serve(ctx, httpLn); err != nil {
			log.WithError(err).Info("HTTP server closed")
		}
	}()

	log.Infof("eventstreamd listening: socket=%s http-port=%d", cfg.SocketFile, cfg.HTTPPort)
	daemon.WaitForSignal(ctx)
	log.Info("shutting down")

	_ = socketLn.Close()
	_ = httpLn.Close()
	daemon.Shutdown(dispatcher.DisconnectAll)

	return nil
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if flags.ConfigFile != "" {
		cfg, err = config.Load(flags.ConfigFile)
	} else {
		cfg, err = config.LoadDefault(defaultConfigFile)
	}
	if err != nil {
		return nil, err
	}

	cfg.Debug = flags.Debug
	if flags.Socket != "" {
		cfg.SocketFile = flags.Socket
	}
	if flags.SSLKey != "" {
		cfg.SSLKeyFile = flags.SSLKey
	}
	if flags.SSLCert != "" {
		cfg.SSLCertificateFile = flags.SSLCert
	}
	if flags.Port != 0 {
		cfg.HTTPPort = flags.Port
	}
	return cfg, nil
}

func setupLogging(debug bool) error {
	handlers := []log.Handler{cli.Default}
	if flags.LogFile != "" {
		file, err := logrotate.NewFile(flags.LogFile)
		if err != nil {
			return err
		}
		handlers = append(handlers, text.New(file))
	}
	log.SetHandler(multi.New(handlers...))
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	return nil
}

func listenHTTP(cfg *config.Config) (net.Listener, error) {
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	if !cfg.WithSSL() {
		return net.Listen("tcp", addr)
	}
	return listenTLS(addr, cfg.SSLCertificateFile, cfg.SSLKeyFile)
}
