// Package booth runs the capture, cartoonize, annotate, publish and QR steps
// of the photo booth.
package booth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/algoverse/cartoonbooth/model"
	"github.com/algoverse/cartoonbooth/overlay"
	"github.com/algoverse/cartoonbooth/photo"
)

// Instruction is sent to the model with every photo.
const Instruction = "Cartoonize the following image"

// State is the position of a run in the pipeline.
type State string

const (
	StateIdle         State = "idle"
	StateCapturing    State = "capturing"
	StateTransforming State = "transforming"
	StateAnnotating   State = "annotating"
	StatePublishing   State = "publishing"
	StateEncoding     State = "encoding"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Annotator draws the branding onto a transformed image.
type Annotator interface {
	Annotate(img photo.Image) (*overlay.Annotated, error)
}

// Encoder turns a URL into PNG QR code bytes.
type Encoder interface {
	Encode(url string) ([]byte, error)
}

// Observer is called on every state transition of a run.
type Observer func(runID string, from, to State)

// Result is the outcome of one run. On failure only the annotated image
// survives, and only when the failure happened while publishing.
type Result struct {
	RunID      string
	State      State
	FailedIn   State
	Message    string
	Image      photo.Image
	Placements []overlay.Placement
	URL        string
	QR         []byte
	Timings    map[State]time.Duration
}

// Pipeline wires the stages together. It holds no per-run state and may be
// reused for any number of sequential runs.
type Pipeline struct {
	transformer model.Transformer
	annotator   Annotator
	publisher   Publisher
	encoder     Encoder
	maxSide     int
	log         *slog.Logger
	observer    Observer
}

// NewPipeline creates a pipeline. maxSide bounds decoded captures (0
// disables).
func NewPipeline(transformer model.Transformer, annotator Annotator, publisher Publisher, encoder Encoder, maxSide int, log *slog.Logger) *Pipeline {
	return &Pipeline{
		transformer: transformer,
		annotator:   annotator,
		publisher:   publisher,
		encoder:     encoder,
		maxSide:     maxSide,
		log:         log,
	}
}

// SetObserver registers fn to receive state transitions. Set it before the
// first run.
func (p *Pipeline) SetObserver(fn Observer) {
	p.observer = fn
}

// RunBytes decodes an encoded capture and runs the pipeline on it.
func (p *Pipeline) RunBytes(ctx context.Context, data []byte) (*Result, error) {
	r := p.newRun()
	r.enter(StateCapturing)

	img, err := photo.Decode(bytes.NewReader(data), p.maxSide)
	if err != nil {
		return r.fail(fmt.Errorf("%w: %w", ErrCapture, err))
	}
	return p.process(ctx, r, img)
}

// Run runs the pipeline on an already decoded capture.
func (p *Pipeline) Run(ctx context.Context, img photo.Image) (*Result, error) {
	r := p.newRun()
	r.enter(StateCapturing)
	return p.process(ctx, r, img)
}

func (p *Pipeline) process(ctx context.Context, r *run, img photo.Image) (*Result, error) {
	if img.Empty() {
		return r.fail(fmt.Errorf("%w: %v", ErrCapture, photo.ErrEmpty))
	}
	p.log.Info("run started", "run_id", r.res.RunID, "width", img.Width(), "height", img.Height())

	r.enter(StateTransforming)
	cartoon, err := p.transformer.Transform(ctx, Instruction, img)
	if err != nil {
		return r.fail(fmt.Errorf("%w: %v", ErrTransform, err))
	}
	if cartoon.Empty() {
		return r.fail(fmt.Errorf("%w: model returned an empty image", ErrTransform))
	}

	r.enter(StateAnnotating)
	annotated, err := p.annotator.Annotate(cartoon)
	if err != nil {
		return r.fail(fmt.Errorf("annotate: %w", err))
	}
	r.res.Image = annotated.Image
	r.res.Placements = annotated.Placements

	r.enter(StatePublishing)
	link, err := p.publisher.Publish(ctx, annotated.Image)
	if err != nil {
		if !errors.Is(err, ErrUpload) {
			err = &UploadError{Reason: err.Error()}
		}
		return r.fail(err)
	}
	r.res.URL = link

	r.enter(StateEncoding)
	qr, err := p.encoder.Encode(link)
	if err != nil {
		return r.fail(fmt.Errorf("%w: %v", ErrEncode, err))
	}
	r.res.QR = qr

	r.enter(StateDone)
	p.log.Info("run finished", "run_id", r.res.RunID, "url", link, "elapsed", r.elapsed())
	return r.res, nil
}

func (p *Pipeline) newRun() *run {
	now := time.Now()
	return &run{
		p:       p,
		state:   StateIdle,
		started: now,
		entered: now,
		res: &Result{
			RunID:   uuid.NewString(),
			State:   StateIdle,
			Timings: make(map[State]time.Duration),
		},
	}
}

type run struct {
	p       *Pipeline
	res     *Result
	state   State
	started time.Time
	entered time.Time
}

func (r *run) enter(next State) {
	now := time.Now()
	if r.state != StateIdle {
		r.res.Timings[r.state] = now.Sub(r.entered)
	}
	prev := r.state
	r.state = next
	r.entered = now
	r.res.State = next

	r.p.log.Debug("run state", "run_id", r.res.RunID, "from", prev, "to", next)
	if r.p.observer != nil {
		r.p.observer(r.res.RunID, prev, next)
	}
}

// fail moves the run to StateFailed. Everything except an annotated image
// that could not be published is discarded.
func (r *run) fail(err error) (*Result, error) {
	failedIn := r.state
	if failedIn != StatePublishing {
		r.res.Image = photo.Image{}
		r.res.Placements = nil
	}
	r.res.URL = ""
	r.res.QR = nil
	r.res.FailedIn = failedIn
	r.res.Message = FailureMessage(err)
	r.enter(StateFailed)

	r.p.log.Error("run failed", "run_id", r.res.RunID, "stage", failedIn, "error", err, "elapsed", r.elapsed())
	return r.res, err
}

func (r *run) elapsed() time.Duration {
	return time.Since(r.started)
}
