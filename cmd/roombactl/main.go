// roombactl: operator CLI for a roomba node. Talks to the HTTP API by
// default, or straight to the message bus with -bus.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/teslashibe/go-roomba/internal/httpc"
	"github.com/teslashibe/go-roomba/pkg/messaging"
	"github.com/teslashibe/go-roomba/pkg/protocol"
	"github.com/teslashibe/go-roomba/pkg/robot"
)

var (
	server = flag.String("server", "http://localhost:8080", "Roomba node API base URL")
	bus    = flag.String("bus", "", "MQTT broker host; publish activation and quad commands on the bus instead of HTTP")
	port   = flag.Int("port", 1883, "MQTT broker port")
	prefix = flag.String("prefix", "roomba", "Topic prefix")
)

const usage = `usage: roombactl [flags] <command> [args]

commands:
  robots                   list robots
  state <ns>               latest status report
  activate <ns>            activate a robot
  deactivate <ns>          deactivate a robot
  toggle <ns>              toggle a robot
  bumper <ns>              current bumper state
  events [ns] [limit]      recent journal events
  arena                    registry contents
  quad <x> <y> <z>         set the quad position
  quad-clear               forget the quad position
`

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var err error
	if *bus != "" {
		err = runBus(args)
	} else {
		err = runHTTP(args)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func runHTTP(args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "robots":
		return get("/api/robots")
	case "arena":
		return get("/api/arena")
	case "state":
		ns, err := namespaceArg(rest)
		if err != nil {
			return err
		}
		return get("/api/robots/" + ns + "/state")
	case "bumper":
		ns, err := namespaceArg(rest)
		if err != nil {
			return err
		}
		return get("/api/robots/" + ns + "/bumper_trigger")
	case "activate", "deactivate", "toggle":
		ns, err := namespaceArg(rest)
		if err != nil {
			return err
		}
		op := cmd
		if op == "toggle" {
			op = "toggle_activate"
		}
		return post("/api/robots/"+ns+"/"+op, nil)
	case "events":
		path := "/api/events"
		q := ""
		if len(rest) > 0 {
			q = "?robot=" + rest[0]
		}
		if len(rest) > 1 {
			if _, err := strconv.Atoi(rest[1]); err != nil {
				return fmt.Errorf("limit must be a number: %q", rest[1])
			}
			q += "&limit=" + rest[1]
		}
		return get(path + q)
	case "quad":
		pos, err := vecArg(rest)
		if err != nil {
			return err
		}
		body, _ := json.Marshal(map[string]float64{"x": pos.X, "y": pos.Y, "z": pos.Z})
		return post("/api/quad", body)
	case "quad-clear":
		req, err := http.NewRequest(http.MethodDelete, *server+"/api/quad", nil)
		if err != nil {
			return err
		}
		resp, err := httpc.Do(req)
		if err != nil {
			return err
		}
		return printResponse(resp)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func get(path string) error {
	resp, err := httpc.Get(*server + path)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func post(path string, body []byte) error {
	resp, err := httpc.Post(*server+path, "application/json", body)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if json.Indent(&out, data, "", "  ") != nil {
		out.Reset()
		out.Write(data)
	}
	fmt.Println(out.String())
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s", resp.Status)
	}
	return nil
}

// runBus publishes commands as a remote operator or quad tracker would.
func runBus(args []string) error {
	cfg := messaging.DefaultConfig()
	cfg.Backend = messaging.BackendMQTT
	cfg.Prefix = *prefix
	cfg.ClientID = fmt.Sprintf("roombactl-%d", os.Getpid())
	cfg.MQTT.Broker = *bus
	cfg.MQTT.Port = *port

	client, err := messaging.NewClient(cfg, nil)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return err
	}
	topics := client.Topics()

	cmd, rest := args[0], args[1:]
	var (
		msg        *protocol.Message
		topic, key string
	)
	switch cmd {
	case "activate", "deactivate", "toggle":
		ns, err := namespaceArg(rest)
		if err != nil {
			return err
		}
		id, err := robot.ParseNamespace(ns)
		if err != nil {
			return err
		}
		kind := map[string]string{
			"activate":   messaging.KindActivate,
			"deactivate": messaging.KindDeactivate,
			"toggle":     messaging.KindToggleActivate,
		}[cmd]
		msg, err = protocol.NewActivationMessage(protocol.MessageType(kind), id, "roombactl")
		if err != nil {
			return err
		}
		topic, key = topics.Robot(id, kind)
	case "quad":
		pos, err := vecArg(rest)
		if err != nil {
			return err
		}
		msg, err = protocol.NewQuadPoseMessage(pos)
		if err != nil {
			return err
		}
		topic, key = topics.Quad()
	default:
		return fmt.Errorf("command %q is not available on the bus", cmd)
	}

	payload, err := msg.Bytes()
	if err != nil {
		return err
	}
	if err := client.Publish(topic, key, payload); err != nil {
		return err
	}
	fmt.Printf("📤 %s → %s\n", msg.Type, topic)
	return nil
}

func namespaceArg(rest []string) (string, error) {
	if len(rest) < 1 {
		return "", fmt.Errorf("missing robot namespace (e.g. ground_0)")
	}
	if _, err := robot.ParseNamespace(rest[0]); err != nil {
		return "", err
	}
	return rest[0], nil
}

func vecArg(rest []string) (robot.Vec3, error) {
	if len(rest) != 3 {
		return robot.Vec3{}, fmt.Errorf("want x y z")
	}
	var v [3]float64
	for i, s := range rest {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return robot.Vec3{}, fmt.Errorf("bad coordinate %q: %w", s, err)
		}
		v[i] = f
	}
	return robot.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}
