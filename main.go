package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xiaoyuanzhu-com/screenshot-taker/api"
	"github.com/xiaoyuanzhu-com/screenshot-taker/config"
	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
	"github.com/xiaoyuanzhu-com/screenshot-taker/server"
)

func main() {
	cfg := config.Get()
	log.SetLevel(cfg.LogLevel)

	srv, err := server.New(server.FromAppConfig(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize server")
	}

	// Setup API routes
	api.SetupRoutes(srv.Router(), api.NewHandlers(srv))

	// Start server
	go func() {
		printNetworkAddresses(cfg.Port)

		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Shutdown server with timeout; the capture process gets its EXIT and
	// kill grace inside this window
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}

func printNetworkAddresses(port int) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return
	}

	var addresses []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok {
				if ip4 := ipnet.IP.To4(); ip4 != nil {
					addresses = append(addresses, fmt.Sprintf("http://%s:%d", ip4.String(), port))
				}
			}
		}
	}

	for _, addr := range addresses {
		log.Info().Str("url", addr).Msg("network")
	}
}
