package graph

// NewMetricsTap returns an OpFunc that forwards its input unchanged while
// invoking observe with the metrics snapshot carried on ctx (taken
// immediately before this tick, to avoid re-entering the graph's mutex
// from inside a dispatch). Wire it in with Registry.SetMetricsTap before
// adding a KindMetricsTap operator.
func NewMetricsTap(observe func(Metrics)) OpFunc {
	return func(input *Tensor, ctx Context) (*Tensor, error) {
		if observe != nil {
			observe(ctx.Metrics)
		}
		if input == nil {
			return nil, nil
		}
		return input, nil
	}
}
