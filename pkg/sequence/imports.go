package sequence

import (
	"context"

	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/kernel"
)

func brepImport(ctx context.Context, x *Executor, p *ImportParams) ([]string, error) {
	h, err := x.model.Kernel().Read(p.Path)
	if err != nil {
		return nil, err
	}
	return x.importShape(ctx, h, p)
}

func cadImport(ctx context.Context, x *Executor, p *ImportParams) ([]string, error) {
	h, err := x.model.Kernel().ImportCAD(p.Path, unitScale[p.Unit])
	if err != nil {
		return nil, err
	}
	return x.importShape(ctx, h, p)
}

func (x *Executor) importShape(ctx context.Context, h kernel.Shape, p *ImportParams) ([]string, error) {
	k := x.model.Kernel()
	if p.Heal {
		o := p.Fix.options()
		if o.Tolerance == 0 {
			o.Tolerance = x.model.Options().GeomTolerance
		}
		fixed, _, err := k.Heal(h, o)
		if err != nil {
			return nil, errs.KernelOperation("heal %s: %v", p.Path, err)
		}
		h = fixed
	}
	if p.HighestDimOnly {
		h = x.model.SelectHighestDim(h)
	}
	return x.add(ctx, h, "impt")
}
