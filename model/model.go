// Package model talks to the instruction-conditioned image-to-image model
// that produces the cartoon rendering.
package model

import (
	"context"
	"errors"

	"github.com/algoverse/cartoonbooth/photo"
)

// ErrModelLoad is returned when the model cannot be reached or is not served
// by the endpoint. It is fatal at startup.
var ErrModelLoad = errors.New("model load error")

// Transformer edits an image according to a natural-language instruction.
type Transformer interface {
	Transform(ctx context.Context, instruction string, img photo.Image) (photo.Image, error)
}

// TransformFunc adapts a function to Transformer.
type TransformFunc func(ctx context.Context, instruction string, img photo.Image) (photo.Image, error)

// Transform calls f.
func (f TransformFunc) Transform(ctx context.Context, instruction string, img photo.Image) (photo.Image, error) {
	return f(ctx, instruction, img)
}

// Identity is a Transformer that returns its input unchanged. It lets the
// booth run without a model server.
var Identity = TransformFunc(func(_ context.Context, _ string, img photo.Image) (photo.Image, error) {
	return img, nil
})
