// Slotwatch prints the live slot stream of a running jellyfish dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-jellyfish/internal/config"
	"github.com/teslashibe/go-jellyfish/pkg/protocol"
)

func main() {
	addr := flag.String("addr", "localhost:"+config.WebPort(config.DefaultWebPort), "Dashboard host:port")
	activeOnly := flag.Bool("active", false, "Only print active slots")
	status := flag.Bool("status", false, "Also print pipeline status")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	w := &watcher{out: os.Stdout, activeOnly: *activeOnly, status: *status}
	if err := w.Watch(ctx, "ws://"+*addr+"/ws/slots"); err != nil {
		stdlog.Fatalf("❌ %v", err)
	}
}

// watcher prints dashboard messages as they arrive.
type watcher struct {
	out        io.Writer
	activeOnly bool
	status     bool
}

// Watch reads from url until ctx is done or the server closes.
func (w *watcher) Watch(ctx context.Context, url string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", url, err)
	}
	defer ws.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			ws.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := w.handle(data); err != nil {
			fmt.Fprintf(w.out, "⚠️  %v\n", err)
		}
	}
}

func (w *watcher) handle(data []byte) error {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return err
	}
	switch msg.Type {
	case protocol.TypeSlots:
		slots, err := msg.GetSlotsData()
		if err != nil {
			return err
		}
		fmt.Fprintln(w.out, formatSlots(slots, w.activeOnly))
	case protocol.TypeStatus:
		if !w.status {
			return nil
		}
		st, err := msg.GetStatusData()
		if err != nil {
			return err
		}
		fmt.Fprintln(w.out, formatStatus(st))
	default:
		return errors.New("unknown message type " + string(msg.Type))
	}
	return nil
}

func formatSlots(d *protocol.SlotsData, activeOnly bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%-6d", d.Frame)
	for _, s := range d.Slots {
		if !s.Active {
			if !activeOnly {
				fmt.Fprintf(&b, " [%d ----]", s.Index)
			}
			continue
		}
		fmt.Fprintf(&b, " [%d x=%.2f y=%.2f s=%.2f e=%.0f]", s.Index, s.X, s.Y, s.Size, s.Energy)
	}
	return b.String()
}

func formatStatus(s *protocol.StatusData) string {
	return fmt.Sprintf("status frames=%d sent=%d throttled=%d active=%d fps=%.1f errors=%d/%d/%d",
		s.Frames, s.Sent, s.Throttled, s.Active, s.FPS, s.ReadErrors, s.DetectErrors, s.SendErrors)
}
