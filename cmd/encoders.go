package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tracecap/internal/ffmpeg"
)

var encodersCmd = &cobra.Command{
	Use:   "encoders",
	Short: "Show which video encoders the recorder would pick",
	Long: `Probes the ffmpeg binary for available encoders and prints the selection
the recorder supervisor would make for each codec family. Hardware encoders
are preferred; the libx26x software encoders are the fallback.`,
	Run: func(cmd *cobra.Command, args []string) {
		bin, err := ffmpeg.Locate()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("ffmpeg:", bin)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "FAMILY\tSELECTED ENCODER")
		fmt.Fprintln(w, "------\t----------------")
		for _, family := range []string{"h264", "hevc"} {
			fmt.Fprintf(w, "%s\t%s\n", family, ffmpeg.PickEncoder(bin, family))
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(encodersCmd)
}
