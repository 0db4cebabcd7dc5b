package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/mqttbridge/core/router"
	"github.com/kilianp07/mqttbridge/core/topic"
)

// ErrBootstrapRejected is returned when the bridge answers a bootstrap
// request with an error.
var ErrBootstrapRejected = errors.New("bootstrap rejected")

// RequestBootstrap performs the device side of the bootstrap handshake: it
// connects with cfg (normally without credentials), listens on the reply
// topic, publishes req on the bootstrap topic and waits for the answer or
// for ctx to expire. An empty nonce is replaced by a random one.
func RequestBootstrap(ctx context.Context, cfg Config, req router.BootstrapRequest) (router.BootstrapResponse, error) {
	if req.DeviceID == "" {
		return router.BootstrapResponse{}, fmt.Errorf("bootstrap: device id is required")
	}
	if req.Nonce == "" {
		req.Nonce = uuid.NewString()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "device-" + uuid.NewString()[:8]
	}
	cli, err := dial(ctx, cfg)
	if err != nil {
		return router.BootstrapResponse{}, err
	}
	defer cli.Disconnect(disconnectQuiesce)

	replies := make(chan []byte, 1)
	replyTopic := topic.BootstrapResponse(req.DeviceID, req.Nonce)
	sub := cli.Subscribe(replyTopic, 0, func(_ paho.Client, msg paho.Message) {
		select {
		case replies <- append([]byte(nil), msg.Payload()...):
		default:
		}
	})
	if err := waitToken(ctx, sub); err != nil {
		return router.BootstrapResponse{}, fmt.Errorf("subscribe %s: %w", replyTopic, err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return router.BootstrapResponse{}, err
	}
	if err := waitToken(ctx, cli.Publish(topic.Bootstrap, 0, false, body)); err != nil {
		return router.BootstrapResponse{}, fmt.Errorf("publish bootstrap request: %w", err)
	}

	select {
	case <-ctx.Done():
		return router.BootstrapResponse{}, fmt.Errorf("waiting for %s: %w", replyTopic, ctx.Err())
	case b := <-replies:
		var resp router.BootstrapResponse
		if err := json.Unmarshal(b, &resp); err != nil {
			return router.BootstrapResponse{}, fmt.Errorf("decode bootstrap response: %w", err)
		}
		if resp.Error != "" {
			return resp, fmt.Errorf("%w: %s", ErrBootstrapRejected, resp.Error)
		}
		return resp, nil
	}
}

// PublishDeviceData connects as a bootstrapped device and publishes payload
// on its data topic. The bootstrap ID taken from the topic is used as the
// username and secret as the password.
func PublishDeviceData(ctx context.Context, cfg Config, dataTopic, secret string, payload map[string]any) error {
	id, ok := topic.NamespaceID(dataTopic)
	if !ok || topic.Classify(dataTopic) != topic.KindDeviceData {
		return fmt.Errorf("%q is not a device data topic", dataTopic)
	}
	cfg.Username, cfg.Password = id, secret
	if cfg.ClientID == "" {
		cfg.ClientID = "device-" + id
	}
	cli, err := dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer cli.Disconnect(disconnectQuiesce)
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return waitToken(ctx, cli.Publish(dataTopic, 0, false, body))
}

func dial(ctx context.Context, cfg Config) (pahoClient, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	cli := newMQTTClient(opts)
	if err := waitToken(ctx, cli.Connect()); err != nil {
		cli.Disconnect(0)
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	return cli, nil
}

func waitToken(ctx context.Context, t paho.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
