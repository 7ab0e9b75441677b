package accessory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// Playback is a handle to audio being played.
type Playback interface {
	Pause() error
	Resume() error
	// Stop ends playback and releases its resources. It is idempotent.
	Stop() error
	// Done is closed when playback ends for any reason.
	Done() <-chan struct{}
}

// Player starts playback of synthesized audio.
type Player interface {
	Play(ctx context.Context, audio []byte) (Playback, error)
}

// CommandPlayer writes audio to a file and plays it with an external command
// such as "mpv --no-video" or "afplay". Without a command the file is kept
// and playback ends immediately.
type CommandPlayer struct {
	Command string
	Args    []string
	Dir     string
	Logger  *slog.Logger
}

// Play starts playback of audio.
func (p *CommandPlayer) Play(_ context.Context, audio []byte) (Playback, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if p.Dir != "" {
		if err := os.MkdirAll(p.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("accessory: player dir: %w", err)
		}
	}
	f, err := os.CreateTemp(p.Dir, "speech-*.mp3")
	if err != nil {
		return nil, fmt.Errorf("accessory: create audio file: %w", err)
	}
	if _, err := f.Write(audio); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("accessory: write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("accessory: close audio file: %w", err)
	}

	pb := &commandPlayback{path: f.Name(), done: make(chan struct{})}
	if p.Command == "" {
		logger.Info("speech audio written", slog.String("path", pb.path))
		close(pb.done)
		return pb, nil
	}

	args := append(append([]string{}, p.Args...), pb.path)
	pb.cmd = exec.Command(p.Command, args...)
	if err := pb.cmd.Start(); err != nil {
		os.Remove(pb.path)
		return nil, fmt.Errorf("accessory: start player: %w", err)
	}
	pb.remove = true
	go func() {
		if err := pb.cmd.Wait(); err != nil {
			logger.Debug("player exited", slog.String("error", err.Error()))
		}
		pb.release()
		close(pb.done)
	}()
	return pb, nil
}

type commandPlayback struct {
	path   string
	cmd    *exec.Cmd
	remove bool
	done   chan struct{}

	mu       sync.Mutex
	released bool
}

func (pb *commandPlayback) Done() <-chan struct{} { return pb.done }

func (pb *commandPlayback) Pause() error {
	if pb.cmd == nil {
		return nil
	}
	return suspend(pb.cmd.Process)
}

func (pb *commandPlayback) Resume() error {
	if pb.cmd == nil {
		return nil
	}
	return resume(pb.cmd.Process)
}

func (pb *commandPlayback) Stop() error {
	if pb.cmd != nil {
		select {
		case <-pb.done:
		default:
			_ = resume(pb.cmd.Process)
			// The process may have exited before the wait goroutine closed done.
			if err := pb.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				return fmt.Errorf("accessory: stop player: %w", err)
			}
			<-pb.done
		}
	}
	pb.release()
	return nil
}

func (pb *commandPlayback) release() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.released || !pb.remove {
		return
	}
	pb.released = true
	_ = os.Remove(pb.path)
}
