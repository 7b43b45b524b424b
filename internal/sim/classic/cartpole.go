package classic

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand/v2"

	"github.com/fyrsmithlabs/worldmodel/internal/sim"
)

// CartPoleID is the registry id of the continuous-action cart-pole.
const CartPoleID = "CartPoleContinuous-v0"

const (
	gravity        = 9.8
	massCart       = 1.0
	massPole       = 0.1
	totalMass      = massCart + massPole
	poleLength     = 0.5 // half the pole length
	poleMassLength = massPole * poleLength
	forceMag       = 30.0
	tau            = 0.02

	xThreshold     = 2.4
	thetaThreshold = 12 * 2 * math.Pi / 360
)

// CartPole balances a pole on a cart pushed by a force in [-1, 1] * forceMag.
// Reward is 1 for every tick the pole stays up.
type CartPole struct {
	x, xDot, theta, thetaDot float64
}

// NewCartPole returns an un-reset cart-pole.
func NewCartPole() *CartPole {
	return &CartPole{}
}

func (c *CartPole) Reset(rng *rand.Rand) []float64 {
	u := func() float64 { return rng.Float64()*0.1 - 0.05 }
	c.x, c.xDot, c.theta, c.thetaDot = u(), u(), u(), u()
	return c.obs()
}

func (c *CartPole) Step(action []float64) ([]float64, float64, bool) {
	force := forceMag * math.Max(-1, math.Min(1, action[0]))

	cosTheta, sinTheta := math.Cos(c.theta), math.Sin(c.theta)
	temp := (force + poleMassLength*c.thetaDot*c.thetaDot*sinTheta) / totalMass
	thetaAcc := (gravity*sinTheta - cosTheta*temp) /
		(poleLength * (4.0/3.0 - massPole*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thetaAcc*cosTheta/totalMass

	c.x += tau * c.xDot
	c.xDot += tau * xAcc
	c.theta += tau * c.thetaDot
	c.thetaDot += tau * thetaAcc

	terminated := c.x < -xThreshold || c.x > xThreshold ||
		c.theta < -thetaThreshold || c.theta > thetaThreshold
	return c.obs(), 1.0, terminated
}

func (c *CartPole) ObservationSpace() sim.Box {
	hi := []float64{xThreshold * 2, math.Inf(1), thetaThreshold * 2, math.Inf(1)}
	return sim.NewBox([]float64{-hi[0], math.Inf(-1), -hi[2], math.Inf(-1)}, hi)
}

func (c *CartPole) ActionSpace() sim.Box {
	return sim.NewBox([]float64{-1}, []float64{1})
}

func (c *CartPole) FPS() int { return 50 }

func (c *CartPole) Frame() *image.RGBA {
	const w, h = 300, 200
	scale := w / (2 * xThreshold)
	cartY := 150.0
	cartX := c.x*scale + w/2

	cv := sim.NewCanvas(w, h, color.White)
	cv.Line(color.Black, 0, cartY+15, w, cartY+15, 1)
	cv.Rect(color.Black, cartX-25, cartY-15, 50, 30)
	tipX := cartX + math.Sin(c.theta)*scale*2*poleLength
	tipY := cartY - math.Cos(c.theta)*scale*2*poleLength
	cv.Line(color.RGBA{202, 152, 101, 255}, cartX, cartY, tipX, tipY, 8)
	cv.Circle(color.RGBA{129, 132, 203, 255}, cartX, cartY, 4)
	return cv.Image()
}

func (c *CartPole) Text() string {
	return fmt.Sprintf("x=%+.3f v=%+.3f θ=%+.3f ω=%+.3f", c.x, c.xDot, c.theta, c.thetaDot)
}

func (c *CartPole) obs() []float64 {
	return []float64{c.x, c.xDot, c.theta, c.thetaDot}
}
