package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gridiron-live/broadcast/internal/apiclient"
	"github.com/gridiron-live/broadcast/internal/controller"
	"github.com/gridiron-live/broadcast/internal/gameclock"
	"github.com/gridiron-live/broadcast/internal/media"
	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/internal/recording"
)

var (
	cameraPath string
	micPath    string
	record     bool
	recordDir  string
	upload     bool
	ffmpegBin  string
)

var broadcastStreamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Publish video to viewers and take console commands",
	Long: `Stream publishes the camera (an IVF file) and microphone (an Ogg/Opus
file) of the current session to the SFU until interrupted.

Commands read from stdin, one per line:
  mute | unmute | retry-mic
  record start | record stop
  clock start | clock pause | clock reset | clock next | clock halftime
  caption <text>`,
	RunE: runStream,
}

func init() {
	broadcastStreamCmd.Flags().StringVar(&cameraPath, "camera", "", "IVF (VP8/VP9) file used as the camera")
	broadcastStreamCmd.Flags().StringVar(&micPath, "mic", "", "Ogg/Opus file used as the microphone")
	broadcastStreamCmd.Flags().BoolVar(&record, "record", false, "start recording right away")
	broadcastStreamCmd.Flags().StringVar(&recordDir, "record-dir", "", "directory for finished recordings (default $RECORDING_OUTPUT_DIR)")
	broadcastStreamCmd.Flags().BoolVar(&upload, "upload", true, "upload finished recordings to the session service")
	broadcastStreamCmd.Flags().StringVar(&ffmpegBin, "ffmpeg", "ffmpeg", "ffmpeg binary")
	_ = broadcastStreamCmd.MarkFlagRequired("camera")
}

func device(kind media.Kind, path string) media.Device {
	if path == "" {
		return nil
	}
	return media.NewFileDevice(kind, path, true, logger)
}

func runStream(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	code, err := store.SessionCode()
	if err != nil || code == "" {
		return fmt.Errorf("no session to stream; run gridiron broadcast start first")
	}

	bcfg := controller.BroadcasterConfig{
		Store:        store,
		SyncInterval: cfg.Client.PollInterval,
		Camera:       device(media.KindVideo, cameraPath),
		Microphone:   device(media.KindAudio, micPath),
		Logger:       logger,
	}
	input := []string{"-re", "-stream_loop", "-1", "-i", cameraPath}
	if micPath != "" {
		input = append(input, "-re", "-stream_loop", "-1", "-i", micPath)
	}
	bcfg.RecordingBackend = recording.NewFFmpegBackend(ffmpegBin, input, logger)
	bcfg.RecordingPrefix = cfg.Recording.FilePrefix
	var sinks recording.MultiSink
	if dir := firstNonEmpty(recordDir, cfg.Recording.OutputDir); dir != "" {
		sinks = append(sinks, recording.FileSink{Dir: dir})
	}
	if upload {
		sinks = append(sinks, recording.UploadSink{Uploader: client, SessionCode: code})
	}
	bcfg.RecordingSink = sinks

	b := controller.NewBroadcaster(client, bcfg)
	defer b.Close()
	if _, err := b.Resume(ctx); err != nil {
		return fmt.Errorf("resume session: %w", err)
	}
	log := logger.With(zap.String("session_code", code))

	b.Camera().OnChange(func(s media.CaptureState) {
		if s.Err != nil {
			log.Warn("camera error", zap.String("kind", string(s.Err.Kind)), zap.String("message", s.Err.Message))
		}
	})
	b.Microphone().OnChange(func(s media.CaptureState) {
		if s.Err != nil {
			log.Warn("microphone error, type retry-mic to try again", zap.String("kind", string(s.Err.Kind)), zap.String("message", s.Err.Message))
		}
	})
	b.GameClock().OnChange(func(s gameclock.Snapshot) {
		if s.Remaining == 0 || !s.Running {
			log.Info("game clock", zap.String("phase", string(s.Phase)), zap.String("remaining", s.Formatted()), zap.Bool("running", s.Running))
		}
	})
	b.Celebration().OnChange(func(icon models.TeamIcon, visible bool) {
		if visible {
			log.Info("celebration", zap.String("team", icon.Label()))
		}
	})
	if r := b.Recorder(); r != nil {
		r.OnDuration(func(d time.Duration) {
			log.Debug("recording", zap.String("elapsed", gameclock.Format(d)))
		})
	}

	feed, err := client.Subscribe(ctx, code)
	if err != nil {
		return fmt.Errorf("open realtime feed: %w", err)
	}
	defer feed.Close()

	pub, err := media.NewPublisher(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: cfg.WebRTC.ICEUrls}},
	}, feed, log)
	if err != nil {
		return err
	}
	if err := b.StartMedia(ctx); err != nil {
		return err
	}
	if err := b.AttachPublisher(pub); err != nil {
		return err
	}
	if err := pub.Offer(ctx); err != nil {
		return err
	}
	go signalLoop(feed, pub, log)

	if record {
		if err := b.StartRecording(ctx); err != nil {
			log.Warn("recording unavailable", zap.Error(err))
		}
	}

	lines := make(chan string)
	go readLines(os.Stdin, lines)
	log.Info("streaming", zap.String("camera", cameraPath), zap.String("mic", micPath))
	for {
		select {
		case <-ctx.Done():
			return stopRecording(b, log)
		case <-feed.Done():
			_ = stopRecording(b, log)
			return fmt.Errorf("realtime feed closed")
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return stopRecording(b, log)
			}
			if err := console(ctx, b, line); err != nil {
				log.Warn("command failed", zap.String("command", line), zap.Error(err))
			}
		}
	}
}

func signalLoop(feed *apiclient.Feed, pub *media.Publisher, log *zap.Logger) {
	for msg := range feed.Messages() {
		switch msg.Event {
		case "audience_count":
			log.Info("audience", zap.ByteString("count", msg.Data))
		case "webrtc_error":
			log.Warn("sfu error", zap.ByteString("data", msg.Data))
		default:
			if err := pub.HandleSignal(msg.Event, msg.Data); err != nil {
				log.Warn("signal failed", zap.String("event", msg.Event), zap.Error(err))
			}
		}
	}
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out <- line
		}
	}
}

func console(ctx context.Context, b *controller.Broadcaster, line string) error {
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch verb {
	case "mute":
		b.SetMicEnabled(false)
	case "unmute":
		b.SetMicEnabled(true)
	case "retry-mic":
		return b.RetryMicrophone(ctx)
	case "caption":
		return b.Caption(ctx, rest)
	case "record":
		switch rest {
		case "start":
			return b.StartRecording(ctx)
		case "stop":
			out, err := b.StopRecording(ctx)
			if err == nil && out != nil {
				logger.Info("recording saved", zap.String("file", out.FileName), zap.Duration("duration", out.Duration))
			}
			return err
		}
		return fmt.Errorf("usage: record start|stop")
	case "clock":
		c := b.GameClock()
		switch rest {
		case "start":
			c.Start()
		case "pause":
			c.Pause()
		case "reset":
			c.Reset()
		case "next":
			c.NextQuarter()
		case "halftime":
			c.ToggleHalftime()
		default:
			return fmt.Errorf("usage: clock start|pause|reset|next|halftime")
		}
		logger.Info("game clock", zap.String("phase", string(c.Snapshot().Phase)), zap.String("remaining", c.Formatted()))
	default:
		return fmt.Errorf("unknown command %q", verb)
	}
	return nil
}

func stopRecording(b *controller.Broadcaster, log *zap.Logger) error {
	// the interrupt has cancelled ctx; uploads still need one
	out, err := b.StopRecording(context.Background())
	if err != nil {
		return fmt.Errorf("save recording: %w", err)
	}
	if out != nil {
		log.Info("recording saved", zap.String("file", out.FileName), zap.Duration("duration", out.Duration))
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
