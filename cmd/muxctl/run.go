package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/framemux/internal/admin"
	"github.com/danmuck/framemux/internal/driver"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Submit configured probes every tick and serve the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			ch, err := newStringChannel(cfg)
			if err != nil {
				return err
			}
			defer ch.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			probes := newProbeSet(ch, cfg.Probes)
			tk := driver.New(cfg.Driver(), driver.CycleFunc{ID: "probes", Fn: probes.submit}, ch)

			errCh := make(chan error, 2)
			go func() { errCh <- tk.Run(ctx) }()
			running := 1
			if cfg.AdminAddr != "" {
				srv := admin.New(admin.Config{Addr: cfg.AdminAddr, CorsOrigins: cfg.CorsOrigins}, ch)
				go func() { errCh <- srv.Run(ctx) }()
				running++
			}

			var firstErr error
			for i := 0; i < running; i++ {
				err := <-errCh
				if err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
					firstErr = err
					stop()
				}
			}
			return firstErr
		},
	}
}

// probeSet resubmits fixed requests; dedup keeps one in flight per probe.
type probeSet struct {
	ch     *stringChannel
	probes []string
	ids    map[string]uuid.UUID
}

func newProbeSet(ch *stringChannel, probes []string) *probeSet {
	return &probeSet{ch: ch, probes: probes, ids: make(map[string]uuid.UUID)}
}

func (p *probeSet) submit(context.Context) error {
	for _, probe := range p.probes {
		if id, ok := p.ids[probe]; ok {
			if resp, ok := p.ch.Take(id); ok {
				log.Info().Str("probe", probe).Str("id", id.String()).Int32("response", resp).Msg("probe resolved")
			}
		}
		p.ids[probe] = p.ch.Send(probe)
	}
	return nil
}
