package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tracecap/internal/catalog"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded sessions",
	Long:  `Lists capture sessions from the local catalog with their status and artifact sizes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cat, err := catalog.Open(viper.GetString("catalog_path"))
		if err != nil {
			fmt.Printf("Error opening catalog: %v\n", err)
			os.Exit(1)
		}
		defer cat.Close()

		sessions, err := cat.List()
		if err != nil {
			fmt.Printf("Error listing sessions: %v\n", err)
			os.Exit(1)
		}

		// --- JSON OUTPUT ---
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(sessions); err != nil {
				fmt.Printf("Error encoding JSON: %v\n", err)
				os.Exit(1)
			}
			return
		}

		if len(sessions) == 0 {
			fmt.Println("No recorded sessions yet.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "STEM\tCREATED\tSTATUS\tVIDEO SIZE")
		fmt.Fprintln(w, "----\t-------\t------\t----------")
		for _, s := range sessions {
			created := humanize.Time(time.Unix(s.CreatedAt, 0))
			size := "-"
			if s.VideoBytes > 0 {
				size = humanize.Bytes(uint64(s.VideoBytes))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Stem, created, s.Status, size)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}
