package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tessarion/netpack/common/lg"
	"github.com/tessarion/netpack/protocol"
)

func main() {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "netpackd",
		Short:         "Packet echo servers and a probe client",
		Long:          "netpackd runs packet oriented echo servers over TCP or UDP and ships a small probe client to talk to them.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				l := logrus.New()
				l.SetLevel(logrus.TraceLevel)
				lg.UseLogrus(l)
				lg.MinimalLevel = lg.LvDebug
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		echoCmd(),
		udpEchoCmd(),
		sendCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// protoFlags is the protocol selection shared by the stream based
// subcommands. The framing flags only apply where they make sense,
// --separator to json, --magic and --checksum to gob.
type protoFlags struct {
	name      string
	separator string
	magic     string
	checksum  string
}

func (f *protoFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.name, "protocol", "P", "json", "packet protocol (json or gob)")
	cmd.Flags().StringVar(&f.separator, "separator", "", "frame json packets with this separator instead of scanning documents")
	cmd.Flags().StringVar(&f.magic, "magic", "", "frame marker for the gob protocol, length must be a power of 2")
	cmd.Flags().StringVar(&f.checksum, "checksum", "", "frame digest for the gob protocol: md5, sha1, sha256 or sha512")
}

func (f *protoFlags) stream() (protocol.StreamProtocol, error) {
	switch f.name {
	case "json":
		if f.separator != "" {
			return protocol.NewAutoSeparated(protocol.JSONCodec{}, []byte(f.separator))
		}
		return protocol.NewJSONStream(), nil
	case "gob":
		var opts []protocol.AutoParsedOption
		if f.magic != "" {
			opts = append(opts, protocol.WithMagic([]byte(f.magic)))
		}
		if f.checksum != "" {
			opts = append(opts, protocol.WithChecksum(f.checksum))
		}
		return protocol.NewAutoParsed(protocol.GobCodec{}, opts...)
	default:
		return nil, fmt.Errorf("unknown protocol %q (want json or gob)", f.name)
	}
}

func buildCodec(name string) (protocol.Codec, error) {
	switch name {
	case "json":
		return protocol.JSONCodec{}, nil
	case "gob":
		return protocol.GobCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown protocol %q (want json or gob)", name)
	}
}
