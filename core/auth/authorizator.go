package auth

import (
	"strings"

	"github.com/kilianp07/mqttbridge/core/topic"
)

// Authorizator enforces topic access: admin may do anything, everybody may
// use the bootstrap namespace, and a device may only write its own data
// topic and read its own command topic.
type Authorizator struct {
	adminUser string
}

func NewAuthorizator(adminUser string) *Authorizator {
	return &Authorizator{adminUser: adminUser}
}

func (a *Authorizator) isAdmin(user string) bool {
	return user != "" && user == a.adminUser
}

// CanWrite decides a publish. clientID is accepted for parity with the broker
// hook but does not influence the decision.
func (a *Authorizator) CanWrite(t, user, clientID string) bool {
	_ = clientID
	return a.isAdmin(user) ||
		strings.HasPrefix(t, topic.Bootstrap) ||
		(user != "" && t == topic.DeviceData(user))
}

// CanRead decides a subscribe.
func (a *Authorizator) CanRead(t, user, clientID string) bool {
	_ = clientID
	return a.isAdmin(user) ||
		strings.HasPrefix(t, topic.Bootstrap) ||
		(user != "" && strings.HasPrefix(t, topic.DeviceCommand(user)))
}
