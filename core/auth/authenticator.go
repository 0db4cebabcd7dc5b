package auth

import "github.com/kilianp07/mqttbridge/core/model"

// SecretProvider returns the current secret for an identifier, or false when
// no secret is known.
type SecretProvider interface {
	Secret(id string) (string, bool)
}

// SecretFunc adapts a function to SecretProvider.
type SecretFunc func(id string) (string, bool)

func (f SecretFunc) Secret(id string) (string, bool) { return f(id) }

// Authenticator validates MQTT CONNECT credentials.
type Authenticator struct {
	admin   model.Credentials
	secrets SecretProvider
}

// NewAuthenticator returns an Authenticator accepting admin and any device
// whose secret is known to secrets.
func NewAuthenticator(admin model.Credentials, secrets SecretProvider) *Authenticator {
	return &Authenticator{admin: admin, secrets: secrets}
}

// CheckValid reports whether the pair is the admin pair or a device
// identifier with its exact secret. Unknown identifiers are rejected.
func (a *Authenticator) CheckValid(username, password string) bool {
	if username == "" {
		return false
	}
	if a.admin.Equal(username, password) {
		return true
	}
	if a.secrets == nil {
		return false
	}
	secret, ok := a.secrets.Secret(username)
	return ok && secret != "" && secret == password
}

// IsAdmin reports whether username is the bridge's own identity.
func (a *Authenticator) IsAdmin(username string) bool {
	return username != "" && username == a.admin.Username
}
