package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/kamibot/internal/audio"
	"github.com/user/kamibot/internal/config"
	"github.com/user/kamibot/internal/recorder"
	"github.com/user/kamibot/internal/types"
)

var (
	recordDuration  time.Duration
	recordOutputDir string
)

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.AddCommand(recordListCmd, recordLatestCmd)
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "stop automatically after this long")
	recordCmd.Flags().StringVar(&recordOutputDir, "output-dir", "", "save into this directory instead of recorder.output_dir")
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the microphone to a WAV file",
	Long: `Record the microphone into a timestamped WAV file under recorder.output_dir.
Press Enter to stop and save; Ctrl-C discards the partial file. Audio is read
from recorder.capture_command, which must write 16-bit mono PCM to stdout.
Without one, silence is recorded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rec := newRecorder(cfg)
		if recordOutputDir != "" {
			if err := rec.SetOutputDir(recordOutputDir); err != nil {
				return err
			}
		}
		return record(ctx, rec, os.Stdin, os.Stdout, recordDuration)
	},
}

var recordListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recordings, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printRecordings(os.Stdout, newRecorder(loadConfig()))
	},
}

var recordLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the path of the newest recording",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rec := newRecorder(loadConfig())
		a, err := rec.Latest()
		if errors.Is(err, recorder.ErrNoRecordings) {
			return fmt.Errorf("no recordings in %s", rec.OutputDir())
		}
		if err != nil {
			return err
		}
		fmt.Println(a.Path)
		return nil
	},
}

// newRecorder builds a recorder behind the same microphone gate the agent
// uses at startup.
func newRecorder(cfg *config.Config) *recorder.Recorder {
	mic := audio.NewStaticPermission(
		types.ParsePermissionStatus(cfg.Audio.MicrophonePermission),
		types.PermissionAuthorized,
	)
	var src recorder.Source = recorder.SilenceSource{SampleRate: cfg.Recorder.SampleRate}
	if cfg.Recorder.CaptureCommand != "" {
		src = recorder.CommandSource{Command: cfg.Recorder.CaptureCommand}
	}
	return recorder.New(
		audio.NewCoordinator(mic),
		cfg.RecordingsDir(),
		recorder.NewStreamFactory(src, cfg.Recorder.SampleRate),
	)
}

// record captures until Enter on in, the limit elapses, or ctx ends. Ending
// ctx discards the capture. With a limit set, EOF on in is ignored so the
// command can run unattended.
func record(ctx context.Context, rec *recorder.Recorder, in io.Reader, out io.Writer, limit time.Duration) error {
	if err := rec.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Recording into %s. Press Enter to stop, Ctrl-C to discard.\n", rec.OutputDir())

	enter := make(chan struct{})
	go func() {
		_, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && limit > 0 {
			return
		}
		close(enter)
	}()

	var deadline <-chan time.Time
	if limit > 0 {
		t := time.NewTimer(limit)
		defer t.Stop()
		deadline = t.C
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rec.Cancel()
			fmt.Fprintln(out, "\nRecording discarded.")
			return nil
		case <-ticker.C:
			fmt.Fprintf(out, "\r%s", recorder.FormatElapsed(rec.Elapsed()))
		case <-enter:
			return saveRecording(rec, out)
		case <-deadline:
			return saveRecording(rec, out)
		}
	}
}

func saveRecording(rec *recorder.Recorder, out io.Writer) error {
	a, err := rec.Stop()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nSaved %s (%s)\n", a.Path, recorder.FormatElapsed(a.Duration))
	return nil
}

func printRecordings(out io.Writer, rec *recorder.Recorder) error {
	all, err := rec.Recordings()
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Fprintf(out, "No recordings in %s.\n", rec.OutputDir())
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tLENGTH\tPATH")
	for _, a := range all {
		fmt.Fprintf(w, "%s\t%s\t%s\n", a.CreatedAt.Format("2006-01-02 15:04:05"), recorder.FormatElapsed(a.Duration), a.Path)
	}
	return w.Flush()
}
