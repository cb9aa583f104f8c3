package pipeline

import (
	"context"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// TransformationDecodeInterceptor applies the request's transformations, in
// order, to the decoded bitmap. A transformation returning a nil result is
// skipped. Replaced bitmaps go back to the pool.
type TransformationDecodeInterceptor struct{}

func (*TransformationDecodeInterceptor) Key() string     { return "" }
func (*TransformationDecodeInterceptor) SortWeight() int { return WeightTransformation }

func (*TransformationDecodeInterceptor) Intercept(ctx context.Context, chain core.DecodeChain) (*core.BitmapDecodeResult, error) {
	res, err := chain.Proceed(ctx)
	if err != nil {
		return nil, err
	}
	l := chain.Loader()
	rc := chain.RequestContext()
	req := rc.Request()
	transformations := req.Transformations()
	if len(transformations) == 0 {
		return res, nil
	}

	rc.SetState(core.StateTransforming)
	pool := l.BitmapPool()
	disallow := req.DisallowReuseBitmap()
	current := res.Bitmap
	var tags []string
	for _, t := range transformations {
		var out *core.TransformResult
		err := l.Stage(ctx, "transform", rc, func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var terr error
			out, terr = t.Transform(ctx, l, rc, current)
			return terr
		})
		if err != nil {
			pool.Free(current, disallow)
			return nil, apperrors.Wrap(apperrors.CategoryTransform, "transform."+t.Key(), err)
		}
		if out == nil || out.Bitmap == nil {
			continue
		}
		if out.Bitmap != current {
			pool.Free(current, disallow)
			current = out.Bitmap
		}
		tags = append(tags, out.Transformed)
	}
	if len(tags) == 0 {
		return res, nil
	}

	opts := []core.ResultOption{core.WithBitmap(current)}
	for _, tag := range tags {
		opts = append(opts, core.AddTransformed(tag))
	}
	return res.NewResult(opts...), nil
}

var _ core.DecodeInterceptor = (*TransformationDecodeInterceptor)(nil)
