package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"anvil/internal/version"
)

type versionPayload struct {
	Tool      string `json:"tool"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
}

var versionFormat string

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "pretty", "output format (pretty|json)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show anvil build fingerprints",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyColorMode(cmd); err != nil {
			return err
		}
		payload := versionPayload{
			Tool:      "anvil",
			Version:   version.Version,
			GitCommit: version.GitCommit,
			BuildDate: version.BuildDate,
		}
		switch strings.ToLower(versionFormat) {
		case "pretty":
			fmt.Printf("anvil %s\n", payload.Version)
			if payload.GitCommit != "" {
				fmt.Printf("commit: %s\n", payload.GitCommit)
			}
			if payload.BuildDate != "" {
				fmt.Printf("built:  %s\n", payload.BuildDate)
			}
			return nil
		case "json":
			out, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		default:
			return fmt.Errorf("invalid --format value %q (expected pretty|json)", versionFormat)
		}
	},
}
