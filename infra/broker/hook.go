package broker

import (
	"bytes"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/kilianp07/mqttbridge/core/auth"
	"github.com/kilianp07/mqttbridge/core/logger"
	"github.com/kilianp07/mqttbridge/core/metrics"
)

// authHook answers mochi's connect and ACL checks.
type authHook struct {
	mqtt.HookBase
	authn     *auth.Authenticator
	authz     *auth.Authorizator
	anonymous bool
	log       logger.Logger
	metrics   metrics.MetricsSink
	now       func() time.Time
}

func (h *authHook) ID() string { return "mqttbridge-auth" }

func (h *authHook) Provides(b byte) bool {
	return bytes.Contains([]byte{mqtt.OnConnectAuthenticate, mqtt.OnACLCheck}, []byte{b})
}

func (h *authHook) OnConnectAuthenticate(cl *mqtt.Client, pk packets.Packet) bool {
	user, pass := string(pk.Connect.Username), string(pk.Connect.Password)
	if user == "" && h.anonymous {
		return true
	}
	if h.authn.CheckValid(user, pass) {
		return true
	}
	h.log.Warnf("connect rejected for user %q (client %s)", user, cl.ID)
	h.denied(user, cl.ID, "", "connect")
	return false
}

func (h *authHook) OnACLCheck(cl *mqtt.Client, topic string, write bool) bool {
	user := string(cl.Properties.Username)
	if write {
		if h.authz.CanWrite(topic, user, cl.ID) {
			return true
		}
		h.log.Warnf("publish to %s denied for user %q", topic, user)
		h.denied(user, cl.ID, topic, "write")
		return false
	}
	if h.authz.CanRead(topic, user, cl.ID) {
		return true
	}
	h.log.Warnf("subscribe to %s denied for user %q", topic, user)
	h.denied(user, cl.ID, topic, "read")
	return false
}

func (h *authHook) denied(user, clientID, topic, reason string) {
	rec, ok := h.metrics.(metrics.AuthFailureRecorder)
	if !ok {
		return
	}
	_ = rec.RecordAuthFailure(metrics.AuthFailureEvent{
		Username: user,
		ClientID: clientID,
		Topic:    topic,
		Reason:   reason,
		Time:     h.now(),
	})
}
