package vector

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/worldmodel/internal/sim"
)

var (
	envLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231"))

	rewardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

// Viewer renders the wrapped environment to a terminal after every tick,
// paced at the environment's frame rate.
type Viewer struct {
	sim.Env

	out     io.Writer
	index   int
	limiter *rate.Limiter
	ret     float64
}

// Human wraps env with a terminal viewer writing to out (stdout if nil).
func Human(env sim.Env, out io.Writer, index int) *Viewer {
	if out == nil {
		out = os.Stdout
	}
	return &Viewer{
		Env:     env,
		out:     out,
		index:   index,
		limiter: rate.NewLimiter(rate.Limit(env.FPS()), 1),
	}
}

func (v *Viewer) Reset(rng *rand.Rand) []float64 {
	obs := v.Env.Reset(rng)
	v.ret = 0
	v.draw(false)
	return obs
}

func (v *Viewer) Step(action []float64) ([]float64, float64, bool) {
	obs, reward, terminated := v.Env.Step(action)
	v.ret += reward
	v.draw(terminated)
	return obs, reward, terminated
}

// pace holds the frame for at most one frame interval. The burst of one
// bounds the delay, so a cancelled run is seen by the vector loop on its
// next tick.
func (v *Viewer) pace() {
	r := v.limiter.Reserve()
	if !r.OK() {
		return
	}
	time.Sleep(r.Delay())
}

func (v *Viewer) draw(terminated bool) {
	v.pace()

	line := envLabelStyle.Render(fmt.Sprintf("[env %d]", v.index)) + " " +
		stateStyle.Render(v.Env.Text()) + " " +
		rewardStyle.Render(fmt.Sprintf("return=%.2f", v.ret))
	if terminated {
		line += " " + doneStyle.Render("done")
	}
	fmt.Fprintln(v.out, line)
}
