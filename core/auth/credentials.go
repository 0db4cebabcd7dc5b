package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/kilianp07/mqttbridge/core/model"
)

// secretBytes is the entropy of generated passwords and device secrets.
const secretBytes = 16

// NewSecret returns 128 random bits hex encoded.
func NewSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewAdminCredentials generates the ephemeral identity the bridge uses for
// its own client connection. The username is a random uuid so it cannot
// collide with a bootstrap identifier or a configured device id.
func NewAdminCredentials() (model.Credentials, error) {
	pw, err := NewSecret()
	if err != nil {
		return model.Credentials{}, err
	}
	return model.Credentials{Username: "admin-" + uuid.NewString(), Password: pw}, nil
}
