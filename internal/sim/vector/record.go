package vector

import (
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/worldmodel/internal/sim"
)

// maxEpisodeFrames bounds the memory held by one episode recording.
const maxEpisodeFrames = 2000

// Recorder writes one animated GIF per episode of the wrapped environment
// to <dir>/<session>-env<index>-ep<episode>.gif.
type Recorder struct {
	sim.Env

	dir     string
	session string
	index   int
	episode int
	frames  []*image.Paletted
	err     error
}

// Record wraps env with an episode recorder.
func Record(env sim.Env, dir, session string, index int) *Recorder {
	return &Recorder{Env: env, dir: dir, session: session, index: index, episode: -1}
}

func (r *Recorder) Reset(rng *rand.Rand) []float64 {
	r.flush()
	r.episode++
	obs := r.Env.Reset(rng)
	r.capture()
	return obs
}

func (r *Recorder) Step(action []float64) ([]float64, float64, bool) {
	obs, reward, terminated := r.Env.Step(action)
	r.capture()
	return obs, reward, terminated
}

// Close writes the episode in progress and reports the first write error.
func (r *Recorder) Close() error {
	r.flush()
	return r.err
}

// Path returns the file episode k is written to.
func (r *Recorder) Path(k int) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s-env%d-ep%d.gif", r.session, r.index, k))
}

func (r *Recorder) capture() {
	if len(r.frames) >= maxEpisodeFrames {
		return
	}
	src := r.Env.Frame()
	dst := image.NewPaletted(src.Bounds(), palette.WebSafe)
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	r.frames = append(r.frames, dst)
}

func (r *Recorder) flush() {
	if len(r.frames) == 0 {
		return
	}
	frames := r.frames
	r.frames = nil
	if err := r.write(frames); err != nil && r.err == nil {
		r.err = err
	}
}

func (r *Recorder) write(frames []*image.Paletted) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create video dir: %w", err)
	}
	delay := 100 / max(r.Env.FPS(), 1)
	anim := &gif.GIF{Image: frames, Delay: make([]int, len(frames))}
	for i := range anim.Delay {
		anim.Delay[i] = delay
	}

	f, err := os.Create(r.Path(r.episode))
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}
	if err := gif.EncodeAll(f, anim); err != nil {
		f.Close()
		return fmt.Errorf("encode recording: %w", err)
	}
	return f.Close()
}
