package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"usage-projection/internal/calibration"
)

var calibrateOut string

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Recompute the threshold table from the historical population",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.calibrate(cmd.Context())
		if err != nil {
			return err
		}

		out := calibrateOut
		if out == "" {
			out = cfg.ThresholdsPath
		}
		if err := calibration.Save(out, t); err != nil {
			return err
		}
		log.Info().Str("path", out).Str("version", t.Version()).Msg("Threshold table saved")

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "version\t%s\n", t.Version())
		fmt.Fprintf(w, "population\t%d\n\n", t.PopulationSize())
		fmt.Fprintln(w, "THRESHOLD\tVALUE\tPERCENTILE\tQUALIFYING\tBOUNDED")
		for _, name := range t.Names() {
			v, _ := t.Get(name)
			p, _ := t.Provenance(name)
			fmt.Fprintf(w, "%s\t%.4f\t%.0f\t%d\t%v\n", name, v, p.Percentile, p.Qualifying, p.BoundApplied)
		}
		return w.Flush()
	},
}

func init() {
	calibrateCmd.Flags().StringVarP(&calibrateOut, "out", "o", "", "output path (defaults to THRESHOLDS_PATH)")
}
