// roomba-monitor: prints the live status stream of a roomba node.
package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-roomba/pkg/protocol"
)

var (
	server = flag.String("server", "localhost:8080", "Roomba node host:port")
	robots = flag.String("robot", "", "Comma-separated namespaces to show (default all)")
	raw    = flag.Bool("raw", false, "Print raw JSON messages")
)

func main() {
	flag.Parse()

	filter := map[string]bool{}
	for _, ns := range strings.Split(*robots, ",") {
		if ns = strings.TrimSpace(ns); ns != "" {
			filter[ns] = true
		}
	}

	u := url.URL{Scheme: "ws", Host: *server, Path: "/ws/state"}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ dial %s: %v\n", u.String(), err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Printf("📺 Watching %s\n\n", u.String())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					fmt.Fprintf(os.Stderr, "❌ read: %v\n", err)
				}
				return
			}
			printMessage(data, filter)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-done:
	case <-quit:
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

func printMessage(data []byte, filter map[string]bool) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  bad message: %v\n", err)
		return
	}
	if len(filter) > 0 && !filter[msg.Robot] {
		return
	}
	if *raw {
		fmt.Println(string(data))
		return
	}
	if msg.Type != protocol.TypeState {
		return
	}
	state, err := msg.GetStateData()
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  bad state from %s: %v\n", msg.Robot, err)
		return
	}
	slow := ""
	if state.RunningSlowly {
		slow = " 🐢"
	}
	fmt.Printf("%s %s%s\n", time.UnixMilli(msg.Timestamp).Format("15:04:05.000"), state.Text, slow)
}
