//go:build !windows

package bot

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/blacktop/polybot/state"
)

func TestRunSavesStateOnTerminate(t *testing.T) {
	clearNetworkEnv(t)
	dir := t.TempDir()
	ns := state.Namespace{Bot: "term"}

	var onDisk state.State
	b := New("term", func(ctx context.Context, b *Bot) error {
		b.State().Set("progress", "half")
		if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
		case <-time.After(10 * time.Second):
			return errors.New("SIGTERM did not cancel the context")
		}
		// main is still running, so only the signal handler can have saved.
		var err error
		onDisk, err = state.FileBackend{Dir: dir}.Load(ns)
		if err != nil {
			return err
		}
		return ctx.Err()
	})
	if err := b.Run(context.Background(), Options{ConfigDir: dir}); err != nil {
		t.Fatalf("Run = %v, want nil after SIGTERM", err)
	}
	if onDisk["progress"] != "half" {
		t.Errorf("state on disk before main returned = %#v", onDisk)
	}
}

func TestRunSavesStateOnHangup(t *testing.T) {
	clearNetworkEnv(t)
	dir := t.TempDir()
	ns := state.Namespace{Bot: "hup"}

	b := New("hup", func(ctx context.Context, b *Bot) error {
		b.State().Set("progress", "flushed")
		if err := syscall.Kill(os.Getpid(), syscall.SIGHUP); err != nil {
			return err
		}
		deadline := time.Now().Add(10 * time.Second)
		for time.Now().Before(deadline) {
			loaded, err := state.FileBackend{Dir: dir}.Load(ns)
			if err != nil {
				return err
			}
			if loaded["progress"] == "flushed" {
				if ctx.Err() != nil {
					return errors.New("SIGHUP cancelled the context")
				}
				return nil
			}
			time.Sleep(10 * time.Millisecond)
		}
		return errors.New("state not saved on SIGHUP")
	})
	if err := b.Run(context.Background(), Options{ConfigDir: dir}); err != nil {
		t.Errorf("Run: %v", err)
	}
}
