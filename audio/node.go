package audio

// Node is anything that can feed a Gain
type Node interface {
	sample(t, sampleRate float64) float64
	link() *nodeLink
}

type nodeLink struct {
	out *Gain
}

func (l *nodeLink) link() *nodeLink { return l }

// Gain scales the sum of its inputs by an automatable gain
type Gain struct {
	nodeLink
	gain   *Param
	inputs []Node
}

// Gain returns the gain parameter
func (g *Gain) Gain() *Param {
	return g.gain
}

// Inputs returns how many nodes currently feed g
func (g *Gain) Inputs() int {
	g.gain.ctx.mu.Lock()
	defer g.gain.ctx.mu.Unlock()
	return len(g.inputs)
}

func (g *Gain) sample(t, sampleRate float64) float64 {
	if len(g.inputs) == 0 {
		return 0
	}
	sum := 0.0
	for _, in := range g.inputs {
		sum += in.sample(t, sampleRate)
	}
	return sum * g.gain.valueAt(t)
}

func (g *Gain) remove(n Node) {
	for i, in := range g.inputs {
		if in == n {
			g.inputs = append(g.inputs[:i], g.inputs[i+1:]...)
			return
		}
	}
}

// prune walks the subgraph feeding g and folds elapsed automation
func (g *Gain) prune(t float64) {
	g.gain.prune(t)
	for _, in := range g.inputs {
		switch n := in.(type) {
		case *Gain:
			n.prune(t)
		case *Oscillator:
			n.freq.prune(t)
		}
	}
}
