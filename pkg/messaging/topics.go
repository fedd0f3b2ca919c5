package messaging

import (
	"strings"

	"github.com/teslashibe/go-roomba/pkg/robot"
)

// Topic kinds. On MQTT each robot has its own topic per kind
// ({prefix}/{namespace}/{kind}); on Kafka every robot shares one topic per
// kind ({prefix}.{kind}) and the namespace travels as the message key.
const (
	KindState          = "state"
	KindPose           = "pose"
	KindCmdVel         = "cmd_vel"
	KindBumper         = "bumper"
	KindActivate       = "activate"
	KindDeactivate     = "deactivate"
	KindToggleActivate = "toggle_activate"
)

// QuadNamespace is the namespace the quad tracker publishes under.
const QuadNamespace = "quad"

// Topics is a helper to build fully-qualified topic names.
type Topics struct {
	prefix string
	keyed  bool
}

// NewTopics creates a Topics helper for a backend.
func NewTopics(prefix, backend string) *Topics {
	return &Topics{prefix: prefix, keyed: backend == BackendKafka}
}

// Keyed reports whether the namespace travels in the message key.
func (t *Topics) Keyed() bool { return t.keyed }

// Robot returns the topic and key for one robot's kind.
func (t *Topics) Robot(id robot.Identity, kind string) (topic, key string) {
	return t.forNamespace(id.Namespace(), kind)
}

// Quad returns the topic and key of the quad pose stream.
func (t *Topics) Quad() (topic, key string) {
	return t.forNamespace(QuadNamespace, KindPose)
}

// Subscription returns the topic that receives kind from every namespace.
func (t *Topics) Subscription(kind string) string {
	if t.keyed {
		return t.prefix + "." + kind
	}
	return t.prefix + "/+/" + kind
}

// Parse splits a received topic (and key) into namespace and kind.
func (t *Topics) Parse(topic, key string) (namespace, kind string, ok bool) {
	if t.keyed {
		kind, ok = strings.CutPrefix(topic, t.prefix+".")
		if !ok || kind == "" || key == "" {
			return "", "", false
		}
		return key, kind, true
	}

	rest, ok := strings.CutPrefix(topic, t.prefix+"/")
	if !ok {
		return "", "", false
	}
	namespace, kind, ok = strings.Cut(rest, "/")
	if !ok || namespace == "" || kind == "" || strings.Contains(kind, "/") {
		return "", "", false
	}
	return namespace, kind, true
}

func (t *Topics) forNamespace(ns, kind string) (topic, key string) {
	if t.keyed {
		return t.prefix + "." + kind, ns
	}
	return t.prefix + "/" + ns + "/" + kind, ""
}
