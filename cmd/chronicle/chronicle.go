// Package chroniclecmder
package chroniclecmder

import (
	servecmder "github.com/emberworks/chronicle/cmd/chronicle/serve"
	versioncmder "github.com/emberworks/chronicle/cmd/version"
	"github.com/spf13/cobra"
)

const chronicleLongDesc string = `Chronicle is tiered long-term memory for persistent narrative games.

Raw gameplay events are captured and scored, finished sessions condense into
episode summaries, and significant episodes become permanent world lore.

Run the service using:
  chronicle serve      Run the memory engine and API server`

const chronicleShortDesc string = "Chronicle - Narrative Memory Engine"

func NewChronicleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chronicle",
		Short: chronicleShortDesc,
		Long:  chronicleLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().StringP("config", "c", "", "Directory containing chronicle.toml")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
