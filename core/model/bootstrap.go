package model

import "time"

// BootstrapRecord binds a device identifier to an issued secret and to the
// topic namespace device/<ID>/... . Records are immutable once created.
type BootstrapRecord struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Secret    string    `json:"secret"`
	CreatedAt time.Time `json:"created_at"`
}

// Valid reports whether the record carries the fields required to
// authenticate a device.
func (r BootstrapRecord) Valid() bool {
	return r.ID != "" && r.DeviceID != "" && r.Secret != ""
}

// Credentials is a username/password pair as carried by an MQTT CONNECT.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Equal reports whether both fields match exactly.
func (c Credentials) Equal(username, password string) bool {
	return c.Username != "" && c.Username == username && c.Password == password
}
