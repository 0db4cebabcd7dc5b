package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/mqttbridge/config"
	"github.com/kilianp07/mqttbridge/core/router"
	"github.com/kilianp07/mqttbridge/infra/mqtt"
)

var bootstrapFlags struct {
	deviceID string
	name     string
	nonce    string
	broker   string
	data     string
	timeout  time.Duration
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Bootstrap a device against a running bridge",
	Long: `Connects as an anonymous device, requests a bootstrap and prints the
response. With --data the returned credentials are used to publish one data
message on the device's data topic.`,
	RunE: runBootstrap,
}

func init() {
	f := bootstrapCmd.Flags()
	f.StringVar(&bootstrapFlags.deviceID, "device-id", "", "device identifier")
	f.StringVar(&bootstrapFlags.name, "name", "", "human readable device name")
	f.StringVar(&bootstrapFlags.nonce, "nonce", "", "request nonce (random when empty)")
	f.StringVar(&bootstrapFlags.broker, "broker", "", "broker URL, overrides mqtt.broker")
	f.StringVar(&bootstrapFlags.data, "data", "", "JSON object to publish after bootstrapping")
	f.DurationVar(&bootstrapFlags.timeout, "timeout", 10*time.Second, "time to wait for the bridge")
	_ = bootstrapCmd.MarkFlagRequired("device-id")
	rootCmd.AddCommand(bootstrapCmd)
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	devCfg := deviceConfig(cfg.MQTT, bootstrapFlags.broker)

	var data map[string]any
	if bootstrapFlags.data != "" {
		if data, err = router.DecodePayload([]byte(bootstrapFlags.data)); err != nil {
			return fmt.Errorf("--data: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), bootstrapFlags.timeout)
	defer cancel()
	resp, err := mqtt.RequestBootstrap(ctx, devCfg, router.BootstrapRequest{
		DeviceID: bootstrapFlags.deviceID,
		Nonce:    bootstrapFlags.nonce,
		Name:     bootstrapFlags.name,
	})
	if err != nil && !errors.Is(err, mqtt.ErrBootstrapRejected) {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(resp); encErr != nil {
		return encErr
	}
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}
	if err := mqtt.PublishDeviceData(ctx, devCfg, resp.Topics.Data, resp.Secret, data); err != nil {
		return fmt.Errorf("publish data: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %d variables to %s\n", len(data), resp.Topics.Data)
	return nil
}

// deviceConfig keeps the transport settings of the bridge configuration but
// drops its identity.
func deviceConfig(c mqtt.Config, broker string) mqtt.Config {
	c.ClientID, c.Username, c.Password = "", "", ""
	if broker != "" {
		c.Broker = broker
	}
	return c
}
