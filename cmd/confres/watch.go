// cmd/confres/watch.go
//
// `confres watch` – resolve once, then report every change.
//
// Each successful reload that changes something prints one line per
// change, in the same format as `confres diff`.  A failed reload is logged
// and the previous snapshot stays in effect.  SIGHUP forces a reload;
// SIGINT or SIGTERM stops the command.
//
// With --listen (or server.listen_addr) the live snapshot is served on
// /config and Prometheus metrics on /metrics.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yanizio/confres/internal/diff"
	"github.com/yanizio/confres/internal/server"
	"github.com/yanizio/confres/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		src      sourceFlags
		debounce time.Duration
		listen   string
		reveal   bool
	)
	cmd := &cobra.Command{
		Use:   "watch [-- app flags]",
		Short: "Resolve and keep reporting changes as files are edited",
		RunE: func(cmd *cobra.Command, args []string) error {
			appArgs, err := afterDash(cmd, args)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, opts, cleanup, err := src.prepare(ctx, a, appArgs, true)
			if err != nil {
				return err
			}
			defer cleanup()

			if !cmd.Flags().Changed("debounce") {
				debounce = a.cfg.Watch.Debounce
			}
			if !cmd.Flags().Changed("listen") {
				listen = a.cfg.Server.ListenAddr
			}

			out := &syncWriter{w: cmd.OutOrStdout()}
			w, err := watch.New(ctx, watch.Config{
				Schema:  s,
				Options: opts,
				OnChange: func(_, _ map[string]any, changes []diff.Change) {
					out.changes(changes)
				},
				OnError: func(err error) {
					a.log.Errorw("reload rejected", "err", err)
				},
				Debounce: debounce,
				Logger:   a.log,
			})
			if err != nil {
				return err
			}
			defer w.Close()
			a.log.Infow("watching", "files", w.Files(), "debounce", debounce)

			if listen != "" {
				srv := server.New(listen, server.Router(w, s, reveal || !a.cfg.Print.Mask))
				go func() {
					a.log.Infow("status server listening", "addr", listen)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.log.Errorw("status server failed", "err", err)
						stop()
					}
				}()
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(sctx)
				}()
			}

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			for {
				select {
				case <-ctx.Done():
					a.log.Infow("watch stopped")
					return nil
				case <-hup:
					a.log.Infow("SIGHUP, reloading")
					_ = w.Reload(ctx)
				}
			}
		},
	}
	src.bind(cmd.Flags())
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before a reload (default from watch.debounce)")
	cmd.Flags().StringVar(&listen, "listen", "", "serve /config and /metrics on this address (default from server.listen_addr)")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "serve sensitive values unmasked")
	return cmd
}

// syncWriter serialises change output from reload goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) changes(changes []diff.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "# %s\n", time.Now().Format(time.RFC3339))
	printChanges(s.w, changes)
}
