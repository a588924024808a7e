package babysitter

import (
	"os/exec"
	"sync"
	"time"
)

// ProcessState is the ProcessManager's state-machine position (spec §4.4).
type ProcessState string

const (
	StateIdle     ProcessState = "idle"
	StateStarting ProcessState = "starting"
	StateRunning  ProcessState = "running"
	StateCrashed  ProcessState = "crashed"
)

// State holds everything about the supervised worker that other
// components (ControlHTTP, RegistryClient) are allowed to observe. The
// child process itself is exclusively owned by ProcessManager (spec §9);
// everyone else reads only the derived fields below, through the
// accessor methods, which take the guard.
type State struct {
	Config Config

	mu          sync.RWMutex
	state       ProcessState
	cmd         *exec.Cmd
	servicePort int
	portSet     bool
	startTime   time.Time
	restarts    int
}

// NewState builds a fresh, idle State for cfg.
func NewState(cfg Config) *State {
	return &State{Config: cfg, state: StateIdle}
}

func (s *State) setState(v ProcessState) {
	s.mu.Lock()
	s.state = v
	s.mu.Unlock()
}

// CurrentState returns the process manager's current lifecycle state.
func (s *State) CurrentState() ProcessState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *State) setCmd(cmd *exec.Cmd) {
	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()
}

func (s *State) currentCmd() *exec.Cmd {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cmd
}

// ServicePort returns the worker's port once readiness detection has
// set it, and whether it has been set at all.
func (s *State) ServicePort() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.servicePort, s.portSet
}

func (s *State) setServicePort(port int) {
	s.mu.Lock()
	s.servicePort = port
	s.portSet = true
	s.mu.Unlock()
}

func (s *State) setStartTime(t time.Time) {
	s.mu.Lock()
	s.startTime = t
	s.mu.Unlock()
}

// Uptime returns the time elapsed since the current process
// incarnation started, per spec §6's /info response.
func (s *State) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

func (s *State) incrementRestarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarts++
	return s.restarts
}

// RestartCount returns the number of restarts observed so far.
func (s *State) RestartCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restarts
}
