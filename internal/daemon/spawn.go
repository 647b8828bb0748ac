package daemon

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/lydakis/wcfx/internal/ipc"
	"github.com/lydakis/wcfx/internal/logging"
	"github.com/lydakis/wcfx/internal/paths"
	"github.com/lydakis/wcfx/internal/session"
)

var (
	readNonceFn        = readNonce
	isListeningFn      = isListening
	daemonStatusFn     = daemonStatus
	spawnDaemonFn      = spawnDaemon
	waitForDaemonFn    = waitForDaemon
	waitForExitFn      = waitForExit
	acquireSpawnLockFn = acquireSpawnLock
	execCommandFn      = exec.Command
)

const (
	startupTimeout = 5 * time.Second
	pollInterval   = 50 * time.Millisecond
)

// ErrNotRunning is returned by Connect when no daemon is listening.
var ErrNotRunning = errors.New("daemon not running")

var errNonceMismatch = errors.New("nonce mismatch")

// Connect returns the nonce of an already running daemon. Unlike
// SpawnOrConnect it never starts one.
func Connect() (string, error) {
	nonce, err := readNonceFn()
	if err != nil || !isListeningFn() {
		return "", ErrNotRunning
	}
	return nonce, nil
}

// SpawnOrConnect returns the nonce of a daemon whose session is still
// live, starting one if needed. A daemon whose session already ended is on
// its way out; it is left to exit and replaced.
func SpawnOrConnect() (string, error) {
	if err := paths.EnsureDir(paths.RuntimeDir()); err != nil {
		return "", fmt.Errorf("creating runtime dir: %w", err)
	}

	releaseLock, err := acquireSpawnLockFn(paths.LockPath())
	if err != nil {
		return "", fmt.Errorf("acquiring daemon lock: %w", err)
	}
	defer releaseLock() //nolint:errcheck

	if nonce, err := readNonceFn(); err == nil && isListeningFn() {
		st, err := daemonStatusFn(nonce)
		if errors.Is(err, errNonceMismatch) {
			// The daemon may have restarted between the two reads.
			if fresh, ferr := readNonceFn(); ferr == nil && fresh != nonce {
				nonce = fresh
				st, err = daemonStatusFn(fresh)
			}
		}
		switch {
		case err == nil && !sessionEnded(st.State):
			return nonce, nil
		case err == nil:
			if werr := waitForExitFn(); werr != nil {
				return "", fmt.Errorf("daemon session %s: %w", st.State, werr)
			}
		}
		clearDaemonRuntimeState()
	}

	exited, err := spawnDaemonFn()
	if err != nil {
		return "", err
	}
	return waitForDaemonFn(exited)
}

func sessionEnded(state string) bool {
	return state == string(session.StateFailed) || state == string(session.StateStopped)
}

// daemonStatus asks the daemon for its status, which doubles as the nonce
// check.
func daemonStatus(nonce string) (*ipc.Status, error) {
	client := ipc.NewClient(paths.SocketPath(), nonce)
	client.Timeout = 2 * time.Second
	resp, err := client.Send(&ipc.Request{Type: ipc.TypeStatus})
	if err != nil {
		return nil, err
	}
	if resp.ExitCode != ipc.ExitOK {
		if strings.Contains(strings.ToLower(resp.Stderr), "nonce mismatch") {
			return nil, errNonceMismatch
		}
		return nil, fmt.Errorf("daemon status: %s", resp.Stderr)
	}
	var st ipc.Status
	if err := json.Unmarshal(resp.Content, &st); err != nil {
		return nil, fmt.Errorf("decoding daemon status: %w", err)
	}
	return &st, nil
}

func clearDaemonRuntimeState() {
	_ = os.Remove(paths.SocketPath())
	_ = os.Remove(paths.StatePath())
}

func acquireSpawnLock(path string) (func() error, error) {
	lockFile, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	return func() error {
		unlockErr := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)
		closeErr := lockFile.Close()
		if unlockErr != nil {
			return unlockErr
		}
		return closeErr
	}, nil
}

// spawnDaemon starts the background daemon. The returned channel receives
// the process's exit error if it ends.
func spawnDaemon() (<-chan error, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("finding executable: %w", err)
	}

	cmd, cleanup, err := newDaemonCommand(exe)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawning daemon: %w", err)
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()
	return exited, nil
}

// newDaemonCommand detaches stdin and stdout. Stderr goes to the daemon
// log, so failures before logging is configured are not lost.
func newDaemonCommand(exe string) (*exec.Cmd, func(), error) {
	if err := paths.EnsureDir(paths.StateDir()); err != nil {
		return nil, nil, fmt.Errorf("creating state dir: %w", err)
	}
	logFile, err := logging.OpenFile(paths.LogFile())
	if err != nil {
		return nil, nil, err
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		logFile.Close()
		return nil, nil, fmt.Errorf("opening %s: %w", os.DevNull, err)
	}

	cmd := execCommandFn(exe, "__daemon")
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = logFile
	return cmd, func() {
		_ = devNull.Close()
		_ = logFile.Close()
	}, nil
}

// waitForDaemon waits for the spawned daemon to publish its nonce and
// listen, or to exit.
func waitForDaemon(exited <-chan error) (string, error) {
	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		if nonce, err := readNonceFn(); err == nil && isListeningFn() {
			return nonce, nil
		}
		select {
		case err := <-exited:
			if err == nil {
				err = errors.New("exit status 0")
			}
			return "", fmt.Errorf("daemon exited during startup (%v), see %s", err, paths.LogFile())
		case <-time.After(pollInterval):
		}
	}
	return "", fmt.Errorf("daemon did not start within %s, see %s", startupTimeout, paths.LogFile())
}

// waitForExit waits for a daemon that is shutting down to release its
// socket.
func waitForExit() error {
	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		if !isListeningFn() {
			return nil
		}
		time.Sleep(pollInterval)
	}
	return errors.New("daemon did not exit")
}

func isListening() bool {
	conn, err := net.DialTimeout("unix", paths.SocketPath(), 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func readNonce() (string, error) {
	data, err := os.ReadFile(paths.StatePath())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readOrCreateNonce() (string, error) {
	nonce, err := generateNonce()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(paths.StatePath(), []byte(nonce+"\n"), 0600); err != nil {
		return "", fmt.Errorf("writing nonce: %w", err)
	}
	return nonce, nil
}

func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
