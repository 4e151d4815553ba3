package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gridiron-live/broadcast/internal/controller"
	"github.com/gridiron-live/broadcast/internal/lifecycle"
	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/internal/overlay"
)

var watchCaptions bool

var watchCmd = &cobra.Command{
	Use:   "watch <code>",
	Short: "Follow a session and log scoreboard, flags and captions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		code, err := lifecycle.Join(ctx, client, args[0])
		if err != nil {
			return err
		}
		log := logger.With(zap.String("session_code", code))

		v := controller.NewViewer(client, controller.ViewerConfig{
			Code:            code,
			PollInterval:    cfg.Client.PollInterval,
			CaptionInterval: cfg.Client.CaptionPollInterval,
			Captions:        watchCaptions,
			Seen:            store,
			Logger:          logger,
		})
		v.Flags().OnChange(func(o *overlay.FlagOverlay) {
			if o != nil {
				log.Info("FLAG", zap.String("team", o.Flag.Team), zap.String("reason", o.Flag.Reason), zap.String("side", string(o.Side)))
			}
		})
		v.LatestEvent().OnChange(func(ev models.Event, visible bool) {
			if visible {
				log.Info("event", zap.String("type", string(ev.EventType)), zap.String("description", ev.Description))
			}
		})
		v.Captions().OnChange(func(s overlay.CaptionState) {
			log.Info("caption", zap.String("text", s.Text), zap.Bool("unavailable", s.Unavailable))
		})
		var last models.Scoreboard
		v.OnState(func(s controller.ViewerState, _ []controller.Effect) {
			if s.Scoreboard != nil && *s.Scoreboard != last {
				last = *s.Scoreboard
				log.Info("score",
					zap.String("team1", last.Team1Icon.Label()), zap.Uint("team1_score", last.Team1Score), zap.String("team1_role", string(last.Team1Role)),
					zap.String("team2", last.Team2Icon.Label()), zap.Uint("team2_score", last.Team2Score), zap.String("team2_role", string(last.Team2Role)))
			}
		})

		// joining the realtime feed counts us in the audience
		if feed, err := client.Subscribe(ctx, code); err != nil {
			log.Warn("realtime feed unavailable, polling only", zap.Error(err))
		} else {
			defer feed.Close()
			_ = feed.Send("join", nil)
			go func() {
				for msg := range feed.Messages() {
					if msg.Event == "audience_count" {
						log.Info("audience", zap.ByteString("count", msg.Data))
					}
				}
			}()
		}
		return v.Run(ctx)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <code>",
	Short: "Print a session's current state as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := lifecycle.Join(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		v := controller.NewViewer(client, controller.ViewerConfig{Code: code, Captions: true, Logger: logger})
		if err := v.Refresh(cmd.Context()); err != nil {
			logger.Warn("partial status", zap.Error(err))
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v.Snapshot())
	},
}

var recordingsCmd = &cobra.Command{
	Use:   "recordings <code>",
	Short: "List a session's recordings and audience stats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		code, err := lifecycle.Join(ctx, client, args[0])
		if err != nil {
			return err
		}
		list, err := client.ListRecordings(ctx, code)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tFILE\tDURATION")
		for _, r := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%ds\n", r.ID, r.Status, r.FileName, r.Duration)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if stats, err := client.Stats(ctx, code); err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "viewers: %d now, %d peak\n", stats.CurrentViewers, stats.PeakViewers)
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchCaptions, "captions", true, "poll live captions")
}
