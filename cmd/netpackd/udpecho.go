package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/tessarion/netpack"
	"github.com/tessarion/netpack/common/lg"
	"github.com/tessarion/netpack/server"
)

func udpEchoCmd() *cobra.Command {
	var (
		listen    string
		protoName string
		reusePort bool
	)

	cmd := &cobra.Command{
		Use:   "udp-echo",
		Short: "Run a UDP packet echo server",
		Long: `Run a UDP server that sends every received packet back to its
sender, one packet per datagram.

Examples:
  netpackd udp-echo --listen :9001
  netpackd udp-echo --listen :9001 --protocol gob`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUDPEcho(listen, protoName, reusePort)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", ":9001", "address to listen on")
	cmd.Flags().StringVarP(&protoName, "protocol", "P", "json", "packet protocol (json or gob)")
	cmd.Flags().BoolVar(&reusePort, "reuse-port", false, "set SO_REUSEPORT on the listening socket")

	return cmd
}

func runUDPEcho(listen, protoName string, reusePort bool) error {
	codec, err := buildCodec(protoName)
	if err != nil {
		return err
	}
	var opts []server.ServerOption
	if reusePort {
		opts = append(opts, server.WithSocketOptions(true, false))
	}
	h := server.HandlerFunc(func(ctx context.Context, client *server.ConnectedClient, packet any) error {
		lg.Debugf("echo %v to %s", packet, client.Addr().String())
		return client.SendPacket(ctx, packet)
	})
	s, err := server.NewUDPServer(listen, codec, h, opts...)
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
