// Supervisor protocol: the two-party keep-alive/respawn state machine.
// The process-wide supervisor context is a Supervisor value owned by
// whichever of StartApplication/StartWatchdog created it. The signal-handling
// goroutine holds it directly; StopApplication reaches it through a
// package-level atomic pointer.
//
// Each peer runs an identical Kick/Reboot pair of tasks on its own
// Scheduler (component D). Kick pings the other peer's last known PID,
// once one is recorded. Reboot either observes the shutdown request, notices the peer has
// gone quiet and respawns it, or simply clears the kick flag for the next
// window.

//go:build unix

package wdinternal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// WatchdogBinaryPath is the path the application execs to spawn its
// watchdog peer. Set it before calling Start; when left empty, a binary
// named "watchdog" is looked up on PATH.
var WatchdogBinaryPath = ""

// SemaphoreBaseDir is the directory holding the named-FIFO semaphores used
// for the startup handshake. Sourced from WatchdogConfig.BaseDir; an empty
// value falls back to os.TempDir().
var SemaphoreBaseDir = ""

const kickFrequency = 5 // Reboot fires once for every kickFrequency Kicks.

// State is a coarse per-peer lifecycle stage.
type State int

const (
	StateInit State = iota
	StateHandshake
	StateRunning
	StateRespawning
	StateShuttingDown
	StateExited
)

func (st State) String() string {
	switch st {
	case StateInit:
		return "Init"
	case StateHandshake:
		return "Handshake"
	case StateRunning:
		return "Running"
	case StateRespawning:
		return "Respawning"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateExited:
		return "Exited"
	default:
		return "Unknown"
	}
}

var supervisorLog = NewCompLogger("supervisor")

// Supervisor is the process-wide context for one peer of the watchdog
// protocol: its own argv as rewritten for respawn, the other peer's PID,
// the scheduler driving Kick/Reboot, the two handshake semaphores and the
// two signal-received flags.
type Supervisor struct {
	isWd         bool
	peerArgv     []string
	graceSeconds int
	kickInterval time.Duration

	peerPID atomic.Int64

	kickReceived atomic.Bool
	stopReceived atomic.Bool

	scheduler *Scheduler
	kickID    TaskID
	rebootID  TaskID

	semThread  *Semaphore
	semProcess *Semaphore

	state atomic.Int32

	wg       sync.WaitGroup
	sigCh    chan os.Signal
	stopSigs chan struct{}
}

var activeSupervisor atomic.Pointer[Supervisor]

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
}

// State reports the supervisor's current lifecycle stage.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// newSupervisor builds the role-specific peer argv: the application
// prepends the watchdog's own invocation (binary path, grace seconds),
// the watchdog strips those two elements back off.
func newSupervisor(rawArgv []string, graceSeconds int, isWd bool) (*Supervisor, error) {
	if graceSeconds < 5 {
		return nil, fmt.Errorf("grace_seconds: %d: must be >= 5", graceSeconds)
	}
	if len(rawArgv) == 0 {
		return nil, errors.New("argv must be non-empty")
	}

	var peerArgv []string
	if !isWd {
		wdPath := WatchdogBinaryPath
		if wdPath == "" {
			resolved, err := exec.LookPath("watchdog")
			if err != nil {
				return nil, fmt.Errorf("locate watchdog binary: %w", err)
			}
			wdPath = resolved
		}
		peerArgv = make([]string, 0, len(rawArgv)+2)
		peerArgv = append(peerArgv, wdPath, fmt.Sprintf("%d", graceSeconds))
		peerArgv = append(peerArgv, rawArgv...)
	} else {
		if len(rawArgv) < 3 {
			return nil, errors.New("watchdog argv must carry its own path, grace_seconds and the application's argv")
		}
		peerArgv = append([]string(nil), rawArgv[2:]...)
	}

	s := &Supervisor{
		isWd:         isWd,
		peerArgv:     peerArgv,
		graceSeconds: graceSeconds,
		kickInterval: time.Duration(graceSeconds/kickFrequency) * time.Second,
		scheduler:    NewScheduler(nil),
	}
	if isWd {
		// The watchdog's peer is the application that spawned it. The
		// application's peer does not exist yet; its PID stays 0 until the
		// initial spawn records it, so the kick task cannot signal the
		// launching shell by mistake.
		s.peerPID.Store(int64(os.Getppid()))
	}
	return s, nil
}

func (s *Supervisor) seedTasks() error {
	kickID, err := s.scheduler.AddTask(FuncTaskBody{ActionFunc: s.taskKick}, s.kickInterval)
	if err != nil {
		return fmt.Errorf("add kick task: %w", err)
	}
	s.kickID = kickID

	rebootID, err := s.scheduler.AddTask(FuncTaskBody{ActionFunc: s.taskReboot}, time.Duration(s.graceSeconds)*time.Second)
	if err != nil {
		return fmt.Errorf("add reboot task: %w", err)
	}
	s.rebootID = rebootID
	return nil
}

// taskKick pings the peer, if one is recorded, and always reschedules.
func (s *Supervisor) taskKick() OpStatus {
	pid := int(s.peerPID.Load())
	if pid <= 0 {
		// No peer recorded yet. kill(0, sig) would signal the whole process
		// group, so skip this window.
		return Reschedule
	}
	if err := SendSignal(pid, syscall.SIGUSR1); err != nil {
		supervisorLog.Warnf("kick: signal pid %d: %v", pid, err)
	}
	return Reschedule
}

// taskReboot implements the watch/respawn decision: observe a shutdown
// request, respawn a silent peer, or clear the kick flag for the next window.
func (s *Supervisor) taskReboot() OpStatus {
	if s.stopReceived.Load() {
		s.scheduler.Stop()
		return Complete
	}

	if !s.kickReceived.Swap(false) {
		// A false-returning Swap means no kick was pending, i.e. the flag
		// was already clear: the peer has been silent this whole window.
		// A hung peer is still a live process, so no liveness probe here;
		// silence alone is the respawn trigger.
		if err := s.respawnPeer(); err != nil {
			supervisorLog.Errorf("respawn peer: %v", err)
			return Failed
		}
	}
	return Reschedule
}

// respawnPeer forks+execs the peer's stored argv, then redoes the startup
// handshake with the new process.
func (s *Supervisor) respawnPeer() error {
	s.setState(StateRespawning)
	defer s.setState(StateRunning)

	cmd := exec.Command(s.peerArgv[0], s.peerArgv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("exec %q: %w", s.peerArgv[0], err)
	}
	go func() { _ = cmd.Wait() }()

	s.peerPID.Store(int64(cmd.Process.Pid))
	supervisorLog.Infof("respawned peer: pid=%d", cmd.Process.Pid)

	return s.syncThreads(s.semThread, s.semProcess)
}

// syncThreads implements the symmetric rendezvous primitive used by both
// handshake directions: post(posted), wait(waited), post(waited). It is the
// half that actually initiates a rendezvous: the app's initial-spawn and
// every later respawnPeer call run it on one side, the watchdog process
// runs it on the other.
func (s *Supervisor) syncThreads(posted, waited *Semaphore) error {
	if err := posted.Post(); err != nil {
		return err
	}
	if err := waited.Wait(); err != nil {
		return err
	}
	return waited.Post()
}

// syncApp implements the application's own top-level half of the startup
// handshake: wait(semThread), post(semThread), wait(semProcess),
// post(semProcess). Unlike syncThreads it never posts first; it only
// drains the credit the real rendezvous (syncThreads, run concurrently by
// the supervisor goroutine's initial respawnPeer call) deposits, then
// restores it. Calling syncThreads here instead would post an extra,
// unmatched credit to semThread before that rendezvous has even started,
// leaving both semaphores off by one for every respawn that follows.
func (s *Supervisor) syncApp() error {
	if err := s.semThread.Wait(); err != nil {
		return err
	}
	if err := s.semThread.Post(); err != nil {
		return err
	}
	if err := s.semProcess.Wait(); err != nil {
		return err
	}
	return s.semProcess.Post()
}

func (s *Supervisor) openSemaphores(baseDir string) error {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	var keyPath string
	if !s.isWd {
		keyPath = s.peerArgv[2] // the application's own binary path
	} else {
		keyPath = s.peerArgv[0]
	}
	pgid, err := syscall.Getpgid(os.Getpid())
	if err != nil {
		pgid = os.Getpid()
	}

	threadPath := ftokPath(baseDir, keyPath, pgid, 1)
	processPath := ftokPath(baseDir, keyPath, pgid, 2)

	semThread, err := OpenSemaphore(threadPath)
	if err != nil {
		return fmt.Errorf("open thread semaphore: %w", err)
	}
	semProcess, err := OpenSemaphore(processPath)
	if err != nil {
		semThread.Close()
		return fmt.Errorf("open process semaphore: %w", err)
	}
	s.semThread = semThread
	s.semProcess = semProcess
	return nil
}

// installSignalHandlers wires SIGUSR1 (kick) and SIGUSR2 (stop) to nothing
// more than boolean flag writes; the flags are observed from the scheduler
// loop only.
func (s *Supervisor) installSignalHandlers() {
	s.sigCh = make(chan os.Signal, 8)
	s.stopSigs = make(chan struct{})
	signal.Notify(s.sigCh, syscall.SIGUSR1, syscall.SIGUSR2)

	go func() {
		for {
			select {
			case sig := <-s.sigCh:
				switch sig {
				case syscall.SIGUSR1:
					s.kickReceived.Store(true)
				case syscall.SIGUSR2:
					s.stopReceived.Store(true)
				}
			case <-s.stopSigs:
				return
			}
		}
	}()
}

func (s *Supervisor) stopSignalHandlers() {
	signal.Stop(s.sigCh)
	close(s.stopSigs)
}

// StartApplication runs the application side of the protocol: it spawns
// the watchdog peer, launches the supervisor goroutine and blocks until
// the startup handshake completes. Returns 0 on success, 1 on failure.
func StartApplication(argv []string, graceSeconds int) int {
	s, err := newSupervisor(argv, graceSeconds, false)
	if err != nil {
		supervisorLog.Errorf("start: %v", err)
		return 1
	}
	s.setState(StateInit)

	if err := s.seedTasks(); err != nil {
		supervisorLog.Errorf("start: %v", err)
		s.scheduler.Destroy()
		return 1
	}
	s.installSignalHandlers()
	if err := s.openSemaphores(SemaphoreBaseDir); err != nil {
		supervisorLog.Errorf("start: %v", err)
		s.stopSignalHandlers()
		s.scheduler.Destroy()
		return 1
	}
	s.setState(StateHandshake)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		time.Sleep(2 * s.kickInterval)
		if status := s.taskReboot(); status == Failed {
			supervisorLog.Error("start: initial peer spawn failed")
			return
		}
		s.setState(StateRunning)
		s.scheduler.Run()
	}()

	if err := s.syncApp(); err != nil {
		supervisorLog.Errorf("start: application-side handshake: %v", err)
		s.scheduler.Stop()
		// Closing the semaphores unblocks the supervisor goroutine if it is
		// still parked in its own handshake leg.
		s.semThread.Close()
		s.semProcess.Close()
		s.wg.Wait()
		s.stopSignalHandlers()
		s.scheduler.Destroy()
		return 1
	}

	activeSupervisor.Store(s)
	return 0
}

// StartWatchdog runs the watchdog side of the protocol: it completes the
// handshake with the application that spawned it, then drives Run on the
// calling goroutine, respawning the application whenever it goes quiet,
// until the application stops it or a respawn fails.
func StartWatchdog(argv []string, graceSeconds int) int {
	s, err := newSupervisor(argv, graceSeconds, true)
	if err != nil {
		supervisorLog.Errorf("start (watchdog): %v", err)
		return 1
	}
	s.setState(StateInit)

	if err := s.seedTasks(); err != nil {
		supervisorLog.Errorf("start (watchdog): %v", err)
		s.scheduler.Destroy()
		return 1
	}
	s.installSignalHandlers()
	if err := s.openSemaphores(SemaphoreBaseDir); err != nil {
		supervisorLog.Errorf("start (watchdog): %v", err)
		s.stopSignalHandlers()
		s.scheduler.Destroy()
		return 1
	}
	s.setState(StateHandshake)
	activeSupervisor.Store(s)

	defer s.gracefulExit()

	if err := s.syncThreads(s.semProcess, s.semThread); err != nil {
		supervisorLog.Errorf("start (watchdog): handshake: %v", err)
		return 1
	}

	s.setState(StateRunning)
	s.scheduler.Run()

	pid := int(s.peerPID.Load())
	if err := SendSignal(pid, syscall.SIGUSR2); err != nil {
		supervisorLog.Warnf("stop signal to application pid %d: %v", pid, err)
	}
	return 0
}

// gracefulExit stops the scheduler, waits one grace period for in-flight
// work to settle, then releases the scheduler and semaphores.
func (s *Supervisor) gracefulExit() {
	s.setState(StateShuttingDown)
	s.scheduler.Stop()
	time.Sleep(time.Duration(s.graceSeconds) * time.Second)
	s.scheduler.Clear()
	s.scheduler.Destroy()
	if s.semProcess != nil {
		s.semProcess.Close()
	}
	if s.semThread != nil {
		s.semThread.Close()
	}
	s.stopSignalHandlers()
	s.setState(StateExited)
}

// StopApplication implements the application's Stop() public API:
// it stops the local scheduler, repeatedly
// signals the watchdog until it acknowledges, joins the supervisor
// goroutine, runs the same graceful-exit sequence and unlinks both named
// semaphores.
func StopApplication() {
	s := activeSupervisor.Load()
	if s == nil {
		return
	}
	s.setState(StateShuttingDown)
	s.scheduler.Stop()

	const closeAttempts = 5
	for i := 0; i < closeAttempts && !s.stopReceived.Load(); i++ {
		pid := int(s.peerPID.Load())
		if !ProcessAlive(pid) {
			// The watchdog is already gone; no acknowledgement will come.
			break
		}
		if err := SendSignal(pid, syscall.SIGUSR2); err != nil {
			supervisorLog.Warnf("stop: signal watchdog pid %d: %v", pid, err)
		}
		time.Sleep(time.Duration(s.graceSeconds) * time.Second)
	}

	s.wg.Wait()
	s.gracefulExit()

	if s.semProcess != nil {
		s.semProcess.Unlink()
	}
	if s.semThread != nil {
		s.semThread.Unlink()
	}
	activeSupervisor.CompareAndSwap(s, nil)
}
