package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/framemux/internal/peer"
	"github.com/danmuck/framemux/internal/protocol/codec"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference peer (string request -> int32 length)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if listen != "" {
				cfg.ListenAddr = listen
			}
			srv, err := peer.NewServer[string, int32](cfg.Peer(), codec.String{}, codec.Int32{}, strlenHandler)
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", cfg.ListenAddr)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Serve(ctx, ln)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides config listen_addr")
	return cmd
}
