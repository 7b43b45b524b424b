package classic

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand/v2"

	"github.com/fyrsmithlabs/worldmodel/internal/sim"
)

// PendulumID is the registry id of the torque-controlled pendulum swing-up.
const PendulumID = "Pendulum-v1"

const (
	pendulumMaxSpeed  = 8.0
	pendulumMaxTorque = 2.0
	pendulumDt        = 0.05
	pendulumG         = 10.0
	pendulumMass      = 1.0
	pendulumLength    = 1.0
)

// Pendulum is the inverted pendulum swing-up. It never terminates; episodes
// end only by time limit.
type Pendulum struct {
	theta, thetaDot float64
	lastTorque      float64
}

// NewPendulum returns an un-reset pendulum.
func NewPendulum() *Pendulum {
	return &Pendulum{}
}

func (p *Pendulum) Reset(rng *rand.Rand) []float64 {
	p.theta = (rng.Float64()*2 - 1) * math.Pi
	p.thetaDot = rng.Float64()*2 - 1
	p.lastTorque = 0
	return p.obs()
}

func (p *Pendulum) Step(action []float64) ([]float64, float64, bool) {
	u := math.Max(-pendulumMaxTorque, math.Min(pendulumMaxTorque, action[0]))
	p.lastTorque = u

	th := normalizeAngle(p.theta)
	cost := th*th + 0.1*p.thetaDot*p.thetaDot + 0.001*u*u

	newThetaDot := p.thetaDot + (3*pendulumG/(2*pendulumLength)*math.Sin(p.theta)+
		3.0/(pendulumMass*pendulumLength*pendulumLength)*u)*pendulumDt
	newThetaDot = math.Max(-pendulumMaxSpeed, math.Min(pendulumMaxSpeed, newThetaDot))
	p.theta += newThetaDot * pendulumDt
	p.thetaDot = newThetaDot

	return p.obs(), -cost, false
}

func (p *Pendulum) ObservationSpace() sim.Box {
	return sim.NewBox([]float64{-1, -1, -pendulumMaxSpeed}, []float64{1, 1, pendulumMaxSpeed})
}

func (p *Pendulum) ActionSpace() sim.Box {
	return sim.NewBox([]float64{-pendulumMaxTorque}, []float64{pendulumMaxTorque})
}

func (p *Pendulum) FPS() int { return 30 }

func (p *Pendulum) Frame() *image.RGBA {
	const size = 200
	c := size / 2.0
	rod := size * 0.4

	cv := sim.NewCanvas(size, size, color.White)
	tipX := c + rod*math.Sin(p.theta)
	tipY := c - rod*math.Cos(p.theta)
	cv.Line(color.RGBA{204, 77, 77, 255}, c, c, tipX, tipY, 12)
	cv.Circle(color.RGBA{204, 77, 77, 255}, tipX, tipY, 6)
	cv.Circle(color.Black, c, c, 3)
	return cv.Image()
}

func (p *Pendulum) Text() string {
	return fmt.Sprintf("θ=%+.3f ω=%+.3f u=%+.2f", normalizeAngle(p.theta), p.thetaDot, p.lastTorque)
}

func (p *Pendulum) obs() []float64 {
	return []float64{math.Cos(p.theta), math.Sin(p.theta), p.thetaDot}
}

func normalizeAngle(x float64) float64 {
	return math.Mod(math.Mod(x+math.Pi, 2*math.Pi)+2*math.Pi, 2*math.Pi) - math.Pi
}
