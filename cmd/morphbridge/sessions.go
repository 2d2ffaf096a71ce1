package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/quailyquaily/morphbridge/internal/clifmt"
	"github.com/quailyquaily/morphbridge/internal/logutil"
	"github.com/quailyquaily/morphbridge/internal/registry"
	"github.com/quailyquaily/morphbridge/internal/statepaths"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List registered agent sessions and their liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}

			cfg := configFromViper()
			reg := registry.Open(statepaths.RegistryPath(), statepaths.RegistryLockPath(), cfg.LivenessWindow, logger)

			all := reg.GetAll()
			live := reg.GetActive()

			ids := make([]string, 0, len(all))
			for id := range all {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			rows := make([]clifmt.SessionRow, 0, len(ids))
			for _, id := range ids {
				s := all[id]
				_, isLive := live[id]
				state := "down"
				if isLive {
					state = "live"
				}
				rows = append(rows, clifmt.SessionRow{
					ID:   id,
					Live: isLive,
					Detail: fmt.Sprintf("%s/%s, %s, last seen %s",
						s.Machine, s.Agent, state,
						time.Unix(s.LastSeen, 0).UTC().Format(time.RFC3339)),
				})
			}
			clifmt.PrintSessionTable(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	return cmd
}
