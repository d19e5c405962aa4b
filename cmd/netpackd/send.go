package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessarion/netpack"
)

func sendCmd() *cobra.Command {
	var (
		pf      protoFlags
		useUDP  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send <address> <json-payload>",
		Short: "Send one packet and print the reply",
		Long: `Send a single packet to a server and print the reply packet.
The payload is given as JSON and converted to the chosen protocol.

Examples:
  netpackd send localhost:9000 '{"op":"ping"}'
  netpackd send --udp localhost:9001 '{"op":"ping"}'
  netpackd send --protocol gob localhost:9000 '{"n":1}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(args[0], args[1], &pf, useUDP, timeout)
		},
	}

	pf.register(cmd)
	cmd.Flags().BoolVarP(&useUDP, "udp", "u", false, "send over UDP instead of TCP")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 5*time.Second, "bound for the whole exchange")

	return cmd
}

func runSend(address, payload string, pf *protoFlags, useUDP bool, timeout time.Duration) error {
	var packet any
	if err := json.Unmarshal([]byte(payload), &packet); err != nil {
		return fmt.Errorf("payload is not valid json: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var reply any
	if useUDP {
		codec, err := buildCodec(pf.name)
		if err != nil {
			return err
		}
		c, err := netpack.NewUDPClientTo(address, codec, netpack.WithConnectTimeout(timeout))
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.SendPacket(ctx, packet); err != nil {
			return err
		}
		reply, err = c.RecvPacket(ctx)
		if err != nil {
			return err
		}
	} else {
		proto, err := pf.stream()
		if err != nil {
			return err
		}
		c, err := netpack.NewTCPClient(address, proto, netpack.WithConnectTimeout(timeout))
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.SendPacket(ctx, packet); err != nil {
			return err
		}
		reply, err = c.RecvPacket(ctx)
		if err != nil {
			return err
		}
	}

	out, err := json.Marshal(reply)
	if err != nil {
		fmt.Printf("%v\n", reply)
		return nil
	}
	fmt.Println(string(out))
	return nil
}
