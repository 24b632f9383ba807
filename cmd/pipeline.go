package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/audiolibrelab/voicerec/internal/audio"
	"github.com/audiolibrelab/voicerec/internal/service"
)

const meterWidth = 30

var validSteps = map[rune]string{
	'r': "record",
	'p': "play",
	's': "save",
}

func validatePipeline() error {
	if pipeline == "" {
		return nil
	}

	for _, step := range strings.ToLower(pipeline) {
		if _, ok := validSteps[step]; !ok {
			return fmt.Errorf("invalid pipeline step: '%c' (valid: r=record, p=play, s=save)", step)
		}
	}
	return nil
}

// remainingSteps returns the pipeline steps after the first occurrence of start
func remainingSteps(start rune) ([]rune, error) {
	if pipeline == "" {
		return nil, nil
	}

	steps := []rune(strings.ToLower(pipeline))
	for i, step := range steps {
		if step == start {
			return steps[i+1:], nil
		}
	}
	return nil, fmt.Errorf("step '%c' not found in pipeline '%s'", start, pipeline)
}

// executePipeline runs steps against svc in order. Ctrl+C ends the current
// record or play step and moves on to the next one.
func executePipeline(svc service.Service, name string, steps []rune) error {
	for i, step := range steps {
		fmt.Printf("Pipeline: executing step %d/%d: '%c'...\n", i+1, len(steps), step)

		switch step {
		case 'r':
			fmt.Println("Pipeline: recording - Press Ctrl+C to stop...")
			if err := recordUntilDone(svc, 0, true); err != nil {
				return fmt.Errorf("pipeline record failed: %w", err)
			}
			fmt.Println("Pipeline: recording completed")

		case 'p':
			fmt.Println("Pipeline: playing back - Press Ctrl+C to stop...")
			if err := playUntilDone(svc, true); err != nil {
				return fmt.Errorf("pipeline play failed: %w", err)
			}
			fmt.Println("Pipeline: playback completed")

		case 's':
			path, err := svc.Save(name)
			if err != nil {
				return fmt.Errorf("pipeline save failed: %w", err)
			}
			fmt.Printf("Pipeline: saved %s\n", path)

		default:
			return fmt.Errorf("unknown pipeline step: '%c' (valid: r=record, p=play, s=save)", step)
		}
	}
	return nil
}

// interruptContext is cancelled on Ctrl+C, SIGTERM, or after d when d > 0
func interruptContext(d time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if d <= 0 {
		return ctx, stop
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, d)
	return timeoutCtx, func() {
		cancel()
		stop()
	}
}

// recordUntilDone records until interrupted or until d elapses
func recordUntilDone(svc service.Service, d time.Duration, showMeter bool) error {
	ctx, cancel := interruptContext(d)
	defer cancel()

	if showMeter {
		unsubscribe := svc.SubscribeLevels(printMeter)
		defer func() {
			unsubscribe()
			fmt.Fprintln(os.Stderr)
		}()
	}

	if err := svc.Record(); err != nil {
		return err
	}
	<-ctx.Done()

	if err := svc.Stop(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "\nRecorded %.1fs\n", svc.Status().BufferedSeconds)
	return nil
}

// playUntilDone plays the buffer to its end or until interrupted
func playUntilDone(svc service.Service, showMeter bool) error {
	ctx, cancel := interruptContext(0)
	defer cancel()

	finished := make(chan struct{}, 1)
	unsubscribe := svc.SubscribeState(func(from, to service.State) {
		if from == service.StatePlaying && to != service.StatePaused {
			select {
			case finished <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	if showMeter {
		unsubscribeLevels := svc.SubscribeLevels(printMeter)
		defer func() {
			unsubscribeLevels()
			fmt.Fprintln(os.Stderr)
		}()
	}

	if err := svc.Play(); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return svc.Stop()
	}
}

func printMeter(l audio.LevelSnapshot) {
	fmt.Fprintf(os.Stderr, "\r%s", renderMeter(l))
}

// renderMeter draws a level bar with the dB value and the clip light
func renderMeter(l audio.LevelSnapshot) string {
	filled := l.Percent() * meterWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", meterWidth-filled)
	clip := "    "
	if l.ClipLight() == "red" {
		clip = "CLIP"
	}
	return fmt.Sprintf("[%s] %6.1f dBFS %s", bar, l.DBFS, clip)
}
