package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrLocked is returned when another worker or process owns a store.
var ErrLocked = errors.New("store is locked by another run")

const staleLockAfter = 2 * time.Minute

type lockOwner struct {
	PID       int    `json:"pid"`
	StartedAt string `json:"startedAt"`
}

func readLockOwner(lockDir string) (lockOwner, bool) {
	raw, err := os.ReadFile(filepath.Join(lockDir, "owner.json"))
	if err != nil {
		return lockOwner{}, false
	}
	var owner lockOwner
	if err := json.Unmarshal(raw, &owner); err != nil || owner.PID <= 0 {
		return lockOwner{}, false
	}
	return owner, true
}

// lockIsStale reports whether a lock can be broken: its owner is known to be
// gone, or liveness is unknowable and the lock is old.
func lockIsStale(lockDir string, now time.Time) bool {
	info, err := os.Stat(lockDir)
	if err != nil {
		return false
	}
	if owner, ok := readLockOwner(lockDir); ok {
		if owner.PID == os.Getpid() {
			return false
		}
		if alive, known := processAlive(owner.PID); known {
			return !alive
		}
	}
	return now.Sub(info.ModTime()) > staleLockAfter
}

func acquireDirLock(lockDir string, wait time.Duration) (func() error, error) {
	deadline := time.Now().Add(wait)
	for {
		err := os.Mkdir(lockDir, 0o755)
		if err == nil {
			owner := lockOwner{PID: os.Getpid(), StartedAt: time.Now().UTC().Format(time.RFC3339Nano)}
			if b, err := json.Marshal(owner); err == nil {
				_ = os.WriteFile(filepath.Join(lockDir, "owner.json"), b, 0o644)
			}
			return func() error { return os.RemoveAll(lockDir) }, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if lockIsStale(lockDir, time.Now()) {
			_ = os.RemoveAll(lockDir)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, lockDir)
		}
		time.Sleep(25 * time.Millisecond)
	}
}
