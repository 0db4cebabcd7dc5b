package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/kilianp07/mqttbridge/core/auth"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Generate a bridge username and password",
	Long: `Prints a fresh admin credential pair. Configure it as mqtt.username and
mqtt.password when the bridge connects to an external broker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := auth.NewAdminCredentials()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]string{"username": creds.Username, "password": creds.Password})
	},
}

func init() {
	rootCmd.AddCommand(credentialsCmd)
}
