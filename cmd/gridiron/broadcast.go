package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gridiron-live/broadcast/internal/controller"
	"github.com/gridiron-live/broadcast/internal/lifecycle"
	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/internal/scoring"
)

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Run the broadcaster side of a session",
	Long: `Start a session, keep score, report flags and end it.

The session code and resume key are kept in the local store, so every
subcommand after "start" picks up the same session.`,
}

var (
	startName  string
	startTeam1 string
	startTeam2 string

	teamNum    int
	points     int
	flagTeam   string
	flagReason string
	iconsTeam1 string
	iconsTeam2 string
)

var broadcastStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Create a new session and print its code",
	RunE: func(cmd *cobra.Command, _ []string) error {
		t1, err := models.ParseTeamIcon(startTeam1)
		if err != nil {
			return err
		}
		t2, err := models.ParseTeamIcon(startTeam2)
		if err != nil {
			return err
		}
		b := newBroadcaster()
		defer b.Close()
		code, err := b.Start(cmd.Context(), lifecycle.StartParams{Broadcaster: startName, Team1Icon: t1, Team2Icon: t2})
		if err != nil {
			return err
		}
		logger.Info("session started", zap.String("session_code", code), zap.String("broadcaster", startName))
		fmt.Fprintln(cmd.OutOrStdout(), code)
		return nil
	},
}

var broadcastEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the current session",
	RunE: withSession(func(ctx context.Context, cmd *cobra.Command, b *controller.Broadcaster) error {
		code := b.Session().Code()
		if err := b.End(ctx); err != nil {
			return err
		}
		logger.Info("session ended", zap.String("session_code", code))
		return nil
	}),
}

var broadcastScoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Add points to a team (negative points subtract)",
	RunE: withSession(func(ctx context.Context, cmd *cobra.Command, b *controller.Broadcaster) error {
		team, err := scoring.ParseTeam(teamNum)
		if err != nil {
			return err
		}
		if err := b.Score(ctx, team, points); err != nil {
			return err
		}
		return printRow(cmd, b.Board().Snapshot())
	}),
}

var broadcastOffenseCmd = &cobra.Command{
	Use:   "offense",
	Short: "Give a team the ball; the other team defends",
	RunE: withSession(func(ctx context.Context, cmd *cobra.Command, b *controller.Broadcaster) error {
		team, err := scoring.ParseTeam(teamNum)
		if err != nil {
			return err
		}
		if err := b.AssignOffense(ctx, team); err != nil {
			return err
		}
		return printRow(cmd, b.Board().Snapshot())
	}),
}

var broadcastClearRolesCmd = &cobra.Command{
	Use:   "clear-roles",
	Short: "Clear offense and defense",
	RunE: withSession(func(ctx context.Context, cmd *cobra.Command, b *controller.Broadcaster) error {
		if err := b.ClearRoles(ctx); err != nil {
			return err
		}
		return printRow(cmd, b.Board().Snapshot())
	}),
}

var broadcastIconsCmd = &cobra.Command{
	Use:   "icons",
	Short: "Change both team icons",
	RunE: withSession(func(ctx context.Context, cmd *cobra.Command, b *controller.Broadcaster) error {
		t1, err := models.ParseTeamIcon(iconsTeam1)
		if err != nil {
			return err
		}
		t2, err := models.ParseTeamIcon(iconsTeam2)
		if err != nil {
			return err
		}
		if err := b.SetTeamIcons(ctx, t1, t2); err != nil {
			return err
		}
		return printRow(cmd, b.Board().Snapshot())
	}),
}

var broadcastFlagCmd = &cobra.Command{
	Use:   "flag",
	Short: "Report a penalty flag",
	RunE: withSession(func(ctx context.Context, cmd *cobra.Command, b *controller.Broadcaster) error {
		ev, err := b.Flag(ctx, flagTeam, flagReason)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ev.Description)
		return nil
	}),
}

var broadcastClearFlagsCmd = &cobra.Command{
	Use:   "clear-flags",
	Short: "Take down all active flag overlays",
	RunE: withSession(func(ctx context.Context, cmd *cobra.Command, b *controller.Broadcaster) error {
		n, err := client.ClearFlagOverlays(ctx, b.Session().Code())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d flag overlays\n", n)
		return nil
	}),
}

var broadcastPlayCmd = &cobra.Command{
	Use:   "play <description>",
	Short: "Log a play to the event feed",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, cmd *cobra.Command, b *controller.Broadcaster) error {
			_, err := b.Play(ctx, strings.Join(args, " "))
			return err
		})(cmd, args)
	},
}

var broadcastCaptionCmd = &cobra.Command{
	Use:   "caption <text>",
	Short: "Publish a caption line (empty clears it)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, cmd *cobra.Command, b *controller.Broadcaster) error {
			return b.Caption(ctx, strings.Join(args, " "))
		})(cmd, args)
	},
}

func init() {
	broadcastStartCmd.Flags().StringVar(&startName, "name", "", "broadcaster name")
	broadcastStartCmd.Flags().StringVar(&startTeam1, "team1", string(models.TeamIconDolphin), "team 1 icon (dolphin, tornado, fist, bullfrog)")
	broadcastStartCmd.Flags().StringVar(&startTeam2, "team2", string(models.TeamIconBullfrog), "team 2 icon")
	_ = broadcastStartCmd.MarkFlagRequired("name")

	for _, c := range []*cobra.Command{broadcastScoreCmd, broadcastOffenseCmd} {
		c.Flags().IntVar(&teamNum, "team", 0, "team number (1 or 2)")
		_ = c.MarkFlagRequired("team")
	}
	broadcastScoreCmd.Flags().IntVar(&points, "points", 1, "points to add")

	broadcastFlagCmd.Flags().StringVar(&flagTeam, "team", "", `team name, e.g. "Team A"`)
	broadcastFlagCmd.Flags().StringVar(&flagReason, "reason", "", "penalty reason")

	broadcastIconsCmd.Flags().StringVar(&iconsTeam1, "team1", "", "team 1 icon")
	broadcastIconsCmd.Flags().StringVar(&iconsTeam2, "team2", "", "team 2 icon")
	_ = broadcastIconsCmd.MarkFlagRequired("team1")
	_ = broadcastIconsCmd.MarkFlagRequired("team2")

	broadcastCmd.AddCommand(
		broadcastStartCmd,
		broadcastEndCmd,
		broadcastScoreCmd,
		broadcastOffenseCmd,
		broadcastClearRolesCmd,
		broadcastIconsCmd,
		broadcastFlagCmd,
		broadcastClearFlagsCmd,
		broadcastPlayCmd,
		broadcastCaptionCmd,
		broadcastStreamCmd,
	)
}

func newBroadcaster() *controller.Broadcaster {
	return controller.NewBroadcaster(client, controller.BroadcasterConfig{
		Store:        store,
		SyncInterval: cfg.Client.PollInterval,
		Logger:       logger,
	})
}

// withSession resumes the stored session before running fn.
func withSession(fn func(context.Context, *cobra.Command, *controller.Broadcaster) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		b := newBroadcaster()
		defer b.Close()
		if _, err := b.Resume(cmd.Context()); err != nil {
			return fmt.Errorf("resume session: %w", err)
		}
		return fn(cmd.Context(), cmd, b)
	}
}

func printRow(cmd *cobra.Command, row models.Scoreboard) error {
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %d (%s)  -  %s %d (%s)\n",
		row.Team1Icon.Label(), row.Team1Score, row.Team1Role,
		row.Team2Icon.Label(), row.Team2Score, row.Team2Role)
	return err
}
