// Command ioengined is a toy echo server demonstrating how an external
// acceptor and CLI wiring sit around the ioworker core: accept-loop socket
// binding, config loading, and metrics/scheduler collaborators are all kept
// outside the core package, per its stated scope.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/solenodon/ioworker"
)

const serverIdentity = "echo"

// echoHandler is the toy Handler used by the example server: it writes back
// whatever it reads. It queues bytes through Connection.Send rather than
// OnWritable, since OnWritable is only ever pulled once the outbound queue
// is already non-empty — a producer with nothing else arming OP_WRITE would
// never be called.
type echoHandler struct {
	id   int64
	conn *ioworker.Connection
}

func (h *echoHandler) ID() int64 { return h.id }

func (h *echoHandler) OnBytes(data []byte) {
	if h.conn == nil {
		return
	}
	if _, err := h.conn.Send(data); err != nil {
		logrus.WithError(err).WithField("conn_id", h.id).Warn("echo send failed")
	}
}

func (h *echoHandler) OnConnected(conn *ioworker.Connection) { h.conn = conn }

func (h *echoHandler) OnDisconnected(cause ioworker.DisconnectCause) {}

func (h *echoHandler) OnWritable(out []byte) int { return 0 }

func newEchoInitializer() *ioworker.Initializer {
	return &ioworker.Initializer{
		OnConnect: func(ctx ioworker.Context) (ioworker.Handler, error) {
			return &echoHandler{id: ctx.ItemID()}, nil
		},
		OnShutdown: func() {},
	}
}

func acceptLoop(ln net.Listener, pool *ioworker.WorkerPool, log *logrus.Logger) {
	attempt := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.WithError(err).Error("accept failed")
			return
		}
		attempt++
		if err := pool.NewConnection(serverIdentity, conn, attempt); err != nil {
			log.WithError(err).Warn("could not hand connection to pool")
			_ = conn.Close()
		}
	}
}

func run() error {
	v := viper.New()
	v.SetEnvPrefix("ioengine")
	v.AutomaticEnv()

	var listenAddr string

	root := &cobra.Command{
		Use:   "ioengined",
		Short: "Example TCP echo server built on the ioworker engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.New()
			cfg := ioworker.LoadConfig(v)

			pool, err := ioworker.NewWorkerPool(cfg, log, nil, nil, func(event any) {
				log.WithField("event", fmt.Sprintf("%T", event)).Info("notification")
			})
			if err != nil {
				return err
			}
			pool.Start()
			defer pool.Stop()

			if err := pool.RegisterServer(serverIdentity, func() (*ioworker.Initializer, error) {
				return newEchoInitializer(), nil
			}); err != nil {
				return err
			}

			ln, err := net.Listen("tcp", listenAddr)
			if err != nil {
				return err
			}
			defer ln.Close()

			log.WithField("addr", ln.Addr().String()).Info("listening")
			acceptLoop(ln, pool, log)
			return nil
		},
	}

	root.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:9000", "address to listen on")
	root.Flags().Int("num-workers", 0, "worker count (0 = CPU core count)")
	root.Flags().Duration("max-idle-time", 0, "per-connection idle ceiling (0 = infinite)")
	_ = v.BindPFlag("num-workers", root.Flags().Lookup("num-workers"))
	_ = v.BindPFlag("max-idle-time", root.Flags().Lookup("max-idle-time"))

	return root.Execute()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
