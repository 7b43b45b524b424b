// Package physics implements a batched planar robotics simulator.
//
// Each environment is a point-mass robot driven by a two-dimensional force
// toward a goal inside a square arena. The simulator is built from a
// resource directory holding scene.toml (body and arena constants) and a YAML
// scene document produced by config.MarshalScene (timing, batch size, seed
// and reward weights). Environments that finish are respawned internally.
package physics

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gonum.org/v1/gonum/mat"

	"github.com/fyrsmithlabs/worldmodel/internal/config"
	"github.com/fyrsmithlabs/worldmodel/internal/sim"
)

const (
	// SceneFile is the resource file describing bodies and arena.
	SceneFile = "scene.toml"

	numObs  = 6 // position, velocity, goal offset
	numActs = 2 // force
)

// Reward component names reported by RewardInfo.
const (
	RewardProgress = "progress"
	RewardEffort   = "effort"
	RewardAlive    = "alive"
	RewardTotal    = "total"
)

// ErrClosed is returned by Step and Reset after Close.
var ErrClosed = errors.New("physics simulator closed")

// Resources is the content of scene.toml.
type Resources struct {
	Body  BodyResource  `toml:"body"`
	Arena ArenaResource `toml:"arena"`
}

// BodyResource describes the robot body.
type BodyResource struct {
	Mass     float64 `toml:"mass"`
	MaxForce float64 `toml:"max_force"`
	Damping  float64 `toml:"damping"`
}

// ArenaResource describes the workspace.
type ArenaResource struct {
	HalfWidth   float64 `toml:"half_width"`
	GoalRadius  float64 `toml:"goal_radius"`
	SpawnRadius float64 `toml:"spawn_radius"`
}

// DefaultResources is used for keys scene.toml leaves unset.
func DefaultResources() Resources {
	return Resources{
		Body:  BodyResource{Mass: 1, MaxForce: 5, Damping: 0.5},
		Arena: ArenaResource{HalfWidth: 5, GoalRadius: 0.25, SpawnRadius: 3},
	}
}

// LoadResources reads <dir>/scene.toml over DefaultResources.
func LoadResources(dir string) (Resources, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Resources{}, fmt.Errorf("resource dir: %w", err)
	}
	if !info.IsDir() {
		return Resources{}, fmt.Errorf("resource dir %s is not a directory", dir)
	}

	res := DefaultResources()
	path := filepath.Join(dir, SceneFile)
	if _, err := toml.DecodeFile(path, &res); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Resources{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if res.Body.Mass <= 0 || res.Body.MaxForce <= 0 || res.Arena.HalfWidth <= 0 || res.Arena.GoalRadius <= 0 {
		return Resources{}, fmt.Errorf("%s: mass, max_force, half_width and goal_radius must be positive", path)
	}
	if res.Arena.SpawnRadius >= res.Arena.HalfWidth {
		return Resources{}, fmt.Errorf("%s: spawn_radius must be smaller than half_width", path)
	}
	return res, nil
}

// FrameSink receives rendered frames while visualization is on.
type FrameSink func(*image.RGBA)

// Option configures a simulator.
type Option func(*Env)

// WithFrameSink routes visualization frames to sink.
func WithFrameSink(sink FrameSink) Option {
	return func(e *Env) {
		e.sink = sink
	}
}

type body struct {
	pos, vel, goal [2]float64
	time           float64
}

// Env is a batch of independent point-mass robots.
type Env struct {
	scene    config.SceneConfig
	res      Resources
	numEnvs  int
	substeps int
	rng      *rand.Rand

	bodies []body
	info   []map[string]float64

	visualize bool
	sink      FrameSink
	frames    int
	closed    bool
}

// New builds the simulator from a resource directory and a scene document.
func New(resourceDir, sceneYAML string, opts ...Option) (*Env, error) {
	res, err := LoadResources(resourceDir)
	if err != nil {
		return nil, err
	}
	scene, numEnvs, seed, err := config.ParseScene(sceneYAML)
	if err != nil {
		return nil, err
	}
	scene.ResourceDir = resourceDir
	if err := scene.Validate(); err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}

	e := &Env{
		scene:    scene,
		res:      res,
		numEnvs:  numEnvs,
		substeps: max(1, int(math.Round(scene.ControlDt/scene.SimulationDt))),
		rng:      rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb)),
		bodies:   make([]body, numEnvs),
		info:     make([]map[string]float64, numEnvs),
	}
	for _, opt := range opts {
		opt(e)
	}
	for i := range e.bodies {
		e.spawn(i)
	}
	return e, nil
}

// NumEnvs returns the batch size.
func (e *Env) NumEnvs() int { return e.numEnvs }

// NumObs returns the observation dimension.
func (e *Env) NumObs() int { return numObs }

// NumActs returns the action dimension.
func (e *Env) NumActs() int { return numActs }

// Reset respawns every robot.
func (e *Env) Reset() error {
	if e.closed {
		return ErrClosed
	}
	for i := range e.bodies {
		e.spawn(i)
	}
	return nil
}

// Observe returns the current (num_envs, 6) observation batch.
func (e *Env) Observe() *mat.Dense {
	obs := mat.NewDense(e.numEnvs, numObs, nil)
	for i, b := range e.bodies {
		obs.SetRow(i, []float64{
			b.pos[0], b.pos[1],
			b.vel[0], b.vel[1],
			b.goal[0] - b.pos[0], b.goal[1] - b.pos[1],
		})
	}
	return obs
}

// Step advances every robot by one control interval. Actions are clipped to
// [-1, 1] and scaled by the body's max force. Robots that reach the goal,
// leave the arena or run out of time report done and are respawned.
func (e *Env) Step(action *mat.Dense) (reward []float64, done []bool, err error) {
	if e.closed {
		return nil, nil, ErrClosed
	}
	r, c := action.Dims()
	if r != e.numEnvs || c != numActs {
		return nil, nil, fmt.Errorf("action shape (%d, %d), want (%d, %d)", r, c, e.numEnvs, numActs)
	}

	reward = make([]float64, e.numEnvs)
	done = make([]bool, e.numEnvs)
	w := e.scene.Reward
	dt := e.scene.SimulationDt

	for i := range e.bodies {
		b := &e.bodies[i]
		u := [2]float64{clip(action.At(i, 0)), clip(action.At(i, 1))}
		before := dist(b.pos, b.goal)

		for s := 0; s < e.substeps; s++ {
			for k := 0; k < 2; k++ {
				acc := (u[k]*e.res.Body.MaxForce - e.res.Body.Damping*b.vel[k]) / e.res.Body.Mass
				b.vel[k] += acc * dt
				b.pos[k] += b.vel[k] * dt
			}
		}
		b.time += e.scene.ControlDt

		after := dist(b.pos, b.goal)
		info := map[string]float64{
			RewardProgress: w.Progress * (before - after),
			RewardEffort:   w.Effort * (u[0]*u[0] + u[1]*u[1]),
			RewardAlive:    w.Alive,
		}
		info[RewardTotal] = info[RewardProgress] + info[RewardEffort] + info[RewardAlive]
		e.info[i] = info
		reward[i] = info[RewardTotal]

		hw := e.res.Arena.HalfWidth
		escaped := math.Abs(b.pos[0]) > hw || math.Abs(b.pos[1]) > hw
		done[i] = after < e.res.Arena.GoalRadius || escaped || b.time >= e.scene.MaxTime
		if done[i] {
			e.spawn(i)
		}
	}

	if e.visualize && e.sink != nil {
		e.sink(e.Frame())
		e.frames++
	}
	return reward, done, nil
}

// RewardInfo returns the reward breakdown of the last step, one map per
// environment.
func (e *Env) RewardInfo() []map[string]float64 {
	out := make([]map[string]float64, e.numEnvs)
	for i, m := range e.info {
		cp := make(map[string]float64, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}

// TurnOnVisualization starts emitting frames. Simulation is unaffected.
func (e *Env) TurnOnVisualization() { e.visualize = true }

// TurnOffVisualization stops emitting frames.
func (e *Env) TurnOffVisualization() { e.visualize = false }

// Visualizing reports whether frames are being emitted.
func (e *Env) Visualizing() bool { return e.visualize }

// FramesEmitted counts frames delivered to the sink.
func (e *Env) FramesEmitted() int { return e.frames }

// Frame draws the first robots of the batch and their goals.
func (e *Env) Frame() *image.RGBA {
	const size = 240
	hw := e.res.Arena.HalfWidth
	scale := size / (2 * hw)
	px := func(p [2]float64) (float64, float64) {
		return (p[0] + hw) * scale, (hw - p[1]) * scale
	}

	cv := sim.NewCanvas(size, size, color.RGBA{24, 24, 32, 255})
	for i, b := range e.bodies {
		if i == 8 {
			break
		}
		gx, gy := px(b.goal)
		cv.Circle(color.RGBA{70, 200, 90, 255}, gx, gy, e.res.Arena.GoalRadius*scale)
		x, y := px(b.pos)
		cv.Circle(color.RGBA{80, 160, 255, 255}, x, y, 4)
	}
	return cv.Image()
}

// Close releases the simulator. Close is idempotent.
func (e *Env) Close() error {
	e.closed = true
	e.visualize = false
	return nil
}

func (e *Env) spawn(i int) {
	sr := e.res.Arena.SpawnRadius
	u := func() float64 { return (e.rng.Float64()*2 - 1) * sr }
	e.bodies[i] = body{
		pos:  [2]float64{u(), u()},
		goal: [2]float64{u(), u()},
	}
	e.info[i] = nil
}

func clip(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

func dist(a, b [2]float64) float64 {
	return math.Hypot(a[0]-b[0], a[1]-b[1])
}
