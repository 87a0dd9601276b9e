package network

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tanema/gween/ease"

	"github.com/automoto/netcode/shared/messages"
	"github.com/automoto/netcode/shared/netcomponents"
)

var easings = map[string]ease.TweenFunc{
	"linear":         ease.Linear,
	"in-quad":        ease.InQuad,
	"out-quad":       ease.OutQuad,
	"in-out-quad":    ease.InOutQuad,
	"in-out-cubic":   ease.InOutCubic,
	"in-out-sine":    ease.InOutSine,
	"out-sine":       ease.OutSine,
	"in-out-expo":    ease.InOutExpo,
	"in-out-circ":    ease.InOutCirc,
	"out-in-quad":    ease.OutInQuad,
	"in-out-quart":   ease.InOutQuart,
	"in-out-quint":   ease.InOutQuint,
	"out-cubic":      ease.OutCubic,
	"in-cubic":       ease.InCubic,
	"in-sine":        ease.InSine,
	"out-in-sine":    ease.OutInSine,
	"out-in-cubic":   ease.OutInCubic,
	"in-out-bounce":  ease.InOutBounce,
	"in-out-elastic": ease.InOutElastic,
}

// Easing looks up a blend curve by name. The empty name is linear.
func Easing(name string) (ease.TweenFunc, error) {
	if name == "" {
		return ease.Linear, nil
	}
	fn, ok := easings[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown easing %q", name)
	}
	return fn, nil
}

// InterpolatorConfig tunes an Interpolator. All values are in ticks.
type InterpolatorConfig struct {
	Delay            float64
	Capacity         int
	MaxExtrapolation float64 // 0 disables extrapolation past the newest sample
	Ease             ease.TweenFunc
}

// Interpolator buffers recent states of remote entities and renders them a
// fixed delay in the past, blending between the two bracketing samples.
type Interpolator struct {
	cfg      InterpolatorConfig
	samples  map[netcomponents.EntityID][]messages.EntityState
	lastTick uint32
	observed bool
}

func NewInterpolator(cfg InterpolatorConfig) *Interpolator {
	if cfg.Capacity < 2 {
		cfg.Capacity = 2
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.Ease == nil {
		cfg.Ease = ease.Linear
	}
	return &Interpolator{
		cfg:     cfg,
		samples: make(map[netcomponents.EntityID][]messages.EntityState),
	}
}

// Observe buffers every entity in snap except local. Snapshots not newer than
// the last observed one are ignored, and entities the snapshot no longer
// carries are forgotten.
func (in *Interpolator) Observe(snap messages.Snapshot, local netcomponents.EntityID) bool {
	if in.observed && snap.Tick <= in.lastTick {
		return false
	}
	in.lastTick, in.observed = snap.Tick, true

	seen := make(map[netcomponents.EntityID]struct{}, len(snap.Entities))
	for _, e := range snap.Entities {
		if e.EntityID == local {
			continue
		}
		seen[e.EntityID] = struct{}{}
		e.Tick = snap.Tick
		in.push(e)
	}
	for id := range in.samples {
		if _, ok := seen[id]; !ok {
			delete(in.samples, id)
		}
	}
	return true
}

// Push buffers a single sample. Samples not newer than the newest buffered
// one for that entity are ignored.
func (in *Interpolator) Push(state messages.EntityState) bool {
	return in.push(state)
}

func (in *Interpolator) push(state messages.EntityState) bool {
	buf := in.samples[state.EntityID]
	if n := len(buf); n > 0 && state.Tick <= buf[n-1].Tick {
		return false
	}
	if len(buf) == in.cfg.Capacity {
		copy(buf, buf[1:])
		buf = buf[:len(buf)-1]
	}
	in.samples[state.EntityID] = append(buf, state)
	return true
}

// Forget drops an entity's buffer.
func (in *Interpolator) Forget(id netcomponents.EntityID) {
	delete(in.samples, id)
}

// Entities returns the buffered entity ids in ascending order.
func (in *Interpolator) Entities() []netcomponents.EntityID {
	ids := make([]netcomponents.EntityID, 0, len(in.samples))
	for id := range in.samples {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns how many samples are buffered for id.
func (in *Interpolator) Len(id netcomponents.EntityID) int {
	return len(in.samples[id])
}

// State returns id as it should be drawn at renderTick. The lookup target is
// renderTick minus the configured delay.
func (in *Interpolator) State(id netcomponents.EntityID, renderTick float64) (messages.EntityState, bool) {
	buf := in.samples[id]
	switch len(buf) {
	case 0:
		return messages.EntityState{}, false
	case 1:
		return buf[0], true
	}

	target := renderTick - in.cfg.Delay
	oldest, newest := buf[0], buf[len(buf)-1]
	if target <= float64(oldest.Tick) {
		return oldest, true
	}
	if target >= float64(newest.Tick) {
		return in.extrapolate(buf, target), true
	}

	// first sample strictly after target; buf[i-1] is at or before it
	i := sort.Search(len(buf), func(i int) bool { return float64(buf[i].Tick) > target })
	from, to := buf[i-1], buf[i]
	frac := (target - float64(from.Tick)) / float64(to.Tick-from.Tick)
	return messages.EntityState{
		EntityID: id,
		Tick:     uint32(math.Floor(target)),
		Payload:  netcomponents.LerpBody(from.Payload, to.Payload, in.blend(frac)),
	}, true
}

// extrapolate continues the motion of the last two samples for at most
// MaxExtrapolation ticks past the newest one.
func (in *Interpolator) extrapolate(buf []messages.EntityState, target float64) messages.EntityState {
	newest := buf[len(buf)-1]
	if in.cfg.MaxExtrapolation <= 0 {
		return newest
	}
	prev := buf[len(buf)-2]
	ahead := math.Min(target-float64(newest.Tick), in.cfg.MaxExtrapolation)
	span := float64(newest.Tick - prev.Tick)
	return messages.EntityState{
		EntityID: newest.EntityID,
		Tick:     newest.Tick + uint32(ahead),
		Payload:  netcomponents.LerpBody(prev.Payload, newest.Payload, 1+ahead/span),
	}
}

func (in *Interpolator) blend(frac float64) float64 {
	return float64(in.cfg.Ease(float32(frac), 0, 1, 1))
}
