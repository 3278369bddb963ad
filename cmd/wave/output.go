package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/WavePortal/pkg/client"
	"gopkg.in/yaml.v3"
)

// waveRow is the serialised form used by --format json|yaml.
type waveRow struct {
	Index         int    `json:"index"          yaml:"index"`
	Waver         string `json:"waver"          yaml:"waver"`
	Message       string `json:"message"        yaml:"message"`
	Timestamp     int64  `json:"timestamp"      yaml:"timestamp"`
	Time          string `json:"time"           yaml:"time"`
	OwnerApproved bool   `json:"owner_approved" yaml:"owner_approved"`
}

func toRows(waves []client.Wave) []waveRow {
	rows := make([]waveRow, len(waves))
	for i, w := range waves {
		rows[i] = waveRow{
			Index:         w.Index,
			Waver:         w.Waver,
			Message:       w.Message,
			Timestamp:     w.Timestamp,
			Time:          w.Time().Format(time.RFC3339),
			OwnerApproved: w.OwnerApproved,
		}
	}
	return rows
}

// printWaves renders waves. markPending flags unapproved waves in text output.
func printWaves(out io.Writer, format string, waves []client.Wave, markPending bool) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(toRows(waves))
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(toRows(waves)); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		if len(waves) == 0 {
			fmt.Fprintln(out, "No waves yet.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tTIME\tWAVER\tAPPROVED\tMESSAGE")
		for _, wv := range waves {
			approved := "yes"
			if !wv.OwnerApproved {
				approved = "no"
				if markPending {
					approved = "pending"
				}
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				wv.Index, wv.Time().Format(time.RFC3339), wv.Waver, approved, wv.Message)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown format %q (text, json or yaml)", format)
	}
}
