package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ragaeeb/beltane-pipeline/internal/store"
)

func newSearchCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over transcript segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.DBPath, store.DefaultConfig())
			if err != nil {
				return err
			}
			defer st.Close()

			hits, err := st.SearchSegments(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, h := range hits {
				fmt.Printf("%s [%s - %s] %s\n", h.VideoID, formatHMS(h.StartMS), formatHMS(h.EndMS), h.Text)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of results")
	return cmd
}

func formatHMS(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
