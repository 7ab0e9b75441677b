//go:build unix

package accessory

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestCommandPlayer_StopReleasesFile(t *testing.T) {
	p := &CommandPlayer{Command: "sh", Args: []string{"-c", "sleep 5", "player"}, Dir: t.TempDir()}
	pb, err := p.Play(context.Background(), []byte("audio"))
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	path := pb.(*commandPlayback).path
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("audio file missing while playing: %v", err)
	}

	if err := pb.Pause(); err != nil {
		t.Errorf("Pause: %v", err)
	}
	if err := pb.Resume(); err != nil {
		t.Errorf("Resume: %v", err)
	}
	if err := pb.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-pb.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not end after Stop")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("audio file should be removed, stat err = %v", err)
	}
	if err := pb.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestCommandPlayback_StopAfterExitBeforeDone(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("true not available: %v", err)
	}
	path := filepath.Join(t.TempDir(), "speech.mp3")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	pb := &commandPlayback{path: path, cmd: cmd, remove: true, done: make(chan struct{})}
	// The process is reaped but done is still open, as when Wait has returned
	// and its goroutine has not finished yet.
	go func() {
		time.Sleep(20 * time.Millisecond)
		pb.release()
		close(pb.done)
	}()

	if err := pb.Stop(); err != nil {
		t.Fatalf("Stop on an exited player: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("audio file should be removed, stat err = %v", err)
	}
}
