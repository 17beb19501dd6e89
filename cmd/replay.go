package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/homegrid/homegrid/config"
	"github.com/homegrid/homegrid/core/oscillation"
	"github.com/homegrid/homegrid/infra/logger"
)

var replayCmd = &cobra.Command{
	Use:   "replay [trace.csv]",
	Short: "Replay a grid power trace through the oscillation detector",
	Long: `Replay feeds a recorded grid power trace through the oscillation
detector with the configured tuning, for offline threshold work. The trace
is a CSV of "offset_seconds,grid_power_w" rows.`,
	Args: cobra.ExactArgs(1),
	RunE: replay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func replay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	det := oscillation.NewDetector(cfg.Oscillation, logger.New("replay"))
	start := time.Now()
	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	var rows, detections int
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read trace: %w", err)
		}
		offset, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return fmt.Errorf("row %d: bad offset %q", rows+1, rec[0])
		}
		power, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return fmt.Errorf("row %d: bad power %q", rows+1, rec[1])
		}
		wasOscillating := det.IsOscillating()
		det.AddReading(power, start.Add(time.Duration(offset*float64(time.Second))))
		if !wasOscillating && det.IsOscillating() {
			detections++
			info := det.Info()
			fmt.Printf("t=%.1fs oscillation detected: amplitude %.0f W, baseline %.0f W\n",
				offset, info.AmplitudeW, info.BaselineW)
		}
		rows++
	}

	info := det.Info()
	fmt.Printf("%d samples, %d detections\n", rows, detections)
	fmt.Printf("final state: oscillating=%v amplitude=%.0f W baseline=%.0f W\n",
		info.Oscillating, info.AmplitudeW, info.BaselineW)
	return nil
}
