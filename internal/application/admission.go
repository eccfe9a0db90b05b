package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/brelli/genrepl/internal/domain"
	"github.com/brelli/genrepl/internal/ports"
)

const admissionWindow = time.Minute

// AdmissionController is a sliding-window rate limiter for one remote-model
// identity. It only tracks requests this process issued; the profile's
// safety margin absorbs quota shared with other processes.
//
// A controller may be shared across conversations targeting the same model,
// so its timestamp window is mutex-guarded.
type AdmissionController struct {
	mu      sync.Mutex
	profile domain.ModelProfile
	clock   ports.Clock
	stamps  []time.Time
}

func NewAdmissionController(profile domain.ModelProfile, clock ports.Clock) *AdmissionController {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &AdmissionController{profile: profile, clock: clock}
}

// CheckWait reports how long the caller must wait before dispatching the
// next request: zero when under the effective limit, otherwise the time
// until the oldest in-window timestamp ages out.
func (c *AdmissionController) CheckWait() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.prune(now)

	if len(c.stamps) < c.profile.EffectiveLimit() {
		return 0
	}

	wait := c.stamps[0].Add(admissionWindow).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait
}

// Record marks one request as dispatched. Callers invoke it exactly once per
// upstream request, after honoring the admission wait.
func (c *AdmissionController) Record() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stamps = append(c.stamps, c.clock.Now())
}

// AdmissionStatus is a read-only view of the current window occupancy.
type AdmissionStatus struct {
	Model          string
	Used           int
	NominalLimit   int
	EffectiveLimit int
	Remaining      int
	Percent        float64
}

func (c *AdmissionController) Status() AdmissionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.prune(c.clock.Now())

	effective := c.profile.EffectiveLimit()
	used := len(c.stamps)
	remaining := effective - used
	if remaining < 0 {
		remaining = 0
	}

	var percent float64
	if effective > 0 {
		percent = float64(used) / float64(effective) * 100
	}

	return AdmissionStatus{
		Model:          c.profile.Name,
		Used:           used,
		NominalLimit:   c.profile.RequestsPerMinute,
		EffectiveLimit: effective,
		Remaining:      remaining,
		Percent:        percent,
	}
}

func (c *AdmissionController) prune(now time.Time) {
	cutoff := now.Add(-admissionWindow)
	idx := 0
	for idx < len(c.stamps) && !c.stamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		c.stamps = append(c.stamps[:0], c.stamps[idx:]...)
	}
}

// AdmissionRegistry hands out one controller per model identity, created
// lazily from the profile repository and shared for the process lifetime.
type AdmissionRegistry struct {
	mu          sync.Mutex
	repo        ports.ModelProfileRepository
	clock       ports.Clock
	controllers map[string]*AdmissionController
}

func NewAdmissionRegistry(repo ports.ModelProfileRepository, clock ports.Clock) *AdmissionRegistry {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &AdmissionRegistry{
		repo:        repo,
		clock:       clock,
		controllers: map[string]*AdmissionController{},
	}
}

// ForModel returns the shared controller for a model, creating it on first
// use. Unknown models fall back to the conservative default profile.
func (r *AdmissionRegistry) ForModel(ctx context.Context, name string) (*AdmissionController, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if controller, ok := r.controllers[name]; ok {
		return controller, nil
	}

	profile := domain.FallbackModelProfile(name)
	if r.repo != nil {
		stored, err := r.repo.GetByName(ctx, name)
		switch {
		case err == nil:
			profile = stored
		case errors.Is(err, domain.ErrModelNotFound):
		default:
			return nil, err
		}
	}

	controller := NewAdmissionController(profile, r.clock)
	r.controllers[name] = controller

	return controller, nil
}
