package main

import (
	"context"
	"crypto/tls"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessarion/netpack"
	"github.com/tessarion/netpack/common/lg"
	"github.com/tessarion/netpack/server"
)

func echoCmd() *cobra.Command {
	var (
		listen    string
		pf        protoFlags
		certFile  string
		keyFile   string
		reusePort bool
	)

	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Run a TCP packet echo server",
		Long: `Run a TCP server that sends every received packet back to its
sender. Useful to exercise clients and protocol settings.

Examples:
  netpackd echo --listen :9000
  netpackd echo --listen :9000 --protocol gob --checksum sha256
  netpackd echo --listen :9443 --tls-cert cert.pem --tls-key key.pem`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEcho(listen, &pf, certFile, keyFile, reusePort)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", ":9000", "address to listen on")
	pf.register(cmd)
	cmd.Flags().StringVar(&certFile, "tls-cert", "", "serve TLS with this certificate")
	cmd.Flags().StringVar(&keyFile, "tls-key", "", "private key for --tls-cert")
	cmd.Flags().BoolVar(&reusePort, "reuse-port", false, "set SO_REUSEPORT on the listening socket")

	return cmd
}

func runEcho(listen string, pf *protoFlags, certFile, keyFile string, reusePort bool) error {
	proto, err := pf.stream()
	if err != nil {
		return err
	}
	var opts []server.ServerOption
	if reusePort {
		opts = append(opts, server.WithSocketOptions(true, false))
	}
	if certFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithTLS(&tls.Config{Certificates: []tls.Certificate{cert}}))
	}

	h := server.HandlerFunc(func(ctx context.Context, client *server.ConnectedClient, packet any) error {
		lg.Debugf("echo %v to %s", packet, client.Addr().String())
		return client.SendPacket(ctx, packet)
	})
	s, err := server.NewTCPServer(listen, proto, h, opts...)
	if err != nil {
		return err
	}
	shutdownOnSignal(func(ctx context.Context) error { return s.Shutdown(ctx) })

	err = s.Serve()
	if errors.Is(err, netpack.ErrServerClosed) {
		return nil
	}
	return err
}

func shutdownOnSignal(shutdown func(ctx context.Context) error) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		lg.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			lg.Warningf("shutdown: %v", err)
		}
	}()
}
