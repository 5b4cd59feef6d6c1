package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/framemux/internal/driver"
	"github.com/danmuck/framemux/internal/mux"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newSendCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "send <request>...",
		Short: "Submit requests and tick until every one is resolved",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := newStringChannel(opts.cfg)
			if err != nil {
				return err
			}
			defer ch.Close()

			ids := make([]uuid.UUID, len(args))
			for i, req := range args {
				ids[i] = ch.Send(req)
			}

			// unencodable requests are dropped so the rest can finish
			skipped := make(map[uuid.UUID]error)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			tk := driver.New(opts.cfg.Driver(), ch)
			if err := tickUntil(ctx, tk, opts.cfg.Driver().Interval, func(tickErr error) bool {
				var skip *mux.SkippedError
				if errors.As(tickErr, &skip) {
					for i, id := range skip.IDs {
						ch.Cancel(id)
						skipped[id] = skip.Errs[i]
					}
				}
				pending, _ := ch.Counts()
				return pending == 0
			}); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, id := range ids {
				if err, ok := skipped[id]; ok {
					fmt.Fprintf(out, "%s\t%s\tskipped: %v\n", id, preview(args[i]), err)
					continue
				}
				resp, _ := ch.Read(id)
				fmt.Fprintf(out, "%s\t%s\t%d\n", id, preview(args[i]), resp)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "give up after this long")
	return cmd
}

// tickUntil runs ticks on interval until done reports true for the latest
// tick result or ctx expires. Cycle errors are left to the ticker's backoff.
func tickUntil(ctx context.Context, tk *driver.Ticker, interval time.Duration, done func(tickErr error) bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if done(tk.Tick(ctx)) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("requests still pending: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func preview(s string) string {
	const limit = 32
	if len(s) > limit {
		return fmt.Sprintf("%q...(%d bytes)", s[:limit], len(s))
	}
	return fmt.Sprintf("%q", s)
}
