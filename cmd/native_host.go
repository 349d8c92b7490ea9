package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mj1618/web-bridge/internal/transport/nativemsg"
)

var nativeHostCmd = &cobra.Command{
	Use:   "native-host",
	Short: "Relay length-prefixed stdio frames to the bridge websocket",
	Long: `Run as the secondary channel host. Frames arrive on stdin with a 4-byte
little-endian length prefix and are forwarded to the bridge websocket as text
messages; messages from the bridge are written back to stdout the same way.

Point secondary.command in the config file at this command to use it as the
fallback channel for "web-bridge serve".`,
	RunE: runNativeHost,
}

func init() {
	rootCmd.AddCommand(nativeHostCmd)
	nativeHostCmd.Flags().String("upstream", "", "Bridge websocket URL (default: bridge.url from the config file)")
}

func runNativeHost(cmd *cobra.Command, args []string) error {
	upstream, _ := cmd.Flags().GetString("upstream")
	if upstream == "" {
		upstream = cfg.Bridge.URL
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	in := cmd.InOrStdin()
	var closers []io.Closer
	if c, ok := in.(io.Closer); ok {
		closers = append(closers, c)
	}
	frames := nativemsg.NewConn(in, cmd.OutOrStdout(), cfg.Secondary.MaxFrameSize, closers...)
	return relayFrames(ctx, frames, upstream)
}

// relayFrames copies messages between frames and a websocket at upstream
// until either side closes.
func relayFrames(ctx context.Context, frames *nativemsg.Conn, upstream string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	ws, resp, err := dialer.DialContext(ctx, upstream, http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", upstream, err)
	}
	logger.Info("native host connected", "upstream", upstream)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		_ = ws.Close()
		_ = frames.Close()
		return nil
	})
	g.Go(func() error {
		defer ws.Close()
		for {
			body, err := frames.ReadMessage()
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			if err != nil {
				return fmt.Errorf("read frame: %w", err)
			}
			if err := ws.WriteMessage(websocket.TextMessage, body); err != nil {
				return fmt.Errorf("write upstream: %w", err)
			}
		}
	})
	g.Go(func() error {
		for {
			_, body, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return io.EOF
				}
				return fmt.Errorf("read upstream: %w", err)
			}
			if err := frames.WriteMessage(body); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
		}
	})
	// io.EOF ends the group when either side hangs up cleanly.
	if err := g.Wait(); err != nil && !errors.Is(err, io.EOF) && ctx.Err() == nil {
		return err
	}
	logger.Info("native host disconnected")
	return nil
}
