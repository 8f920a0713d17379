// Package ssm implements the selective state-space sequence block and the
// dense float32 primitives it is built from.
//
// Tensors are plain row-major []float32 slices; a sequence is [][]float32
// indexed [step][feature].
package ssm

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// InitKind selects how InitParams fills a parameter.
type InitKind uint8

const (
	InitFanIn   InitKind = iota // uniform in ±1/sqrt(fan_in)
	InitZeros                   // all zero
	InitOnes                    // all one
	InitNormal                  // standard normal, embeddings
	InitUniform                 // uniform in ±1
	InitLogRamp                 // log(1..n), the decay parameter
)

// Param is one named weight tensor. Data aliases the owning module's storage,
// so loaders can fill it in place.
type Param struct {
	Name  string
	Shape []int
	Data  []float32
	Init  InitKind
}

// Size returns the number of elements implied by Shape.
func (p Param) Size() int {
	n := 1
	for _, d := range p.Shape {
		n *= d
	}
	return n
}

// InitParams fills every param according to its InitKind.
func InitParams(params []Param, rng *rand.Rand) {
	for _, p := range params {
		switch p.Init {
		case InitZeros:
			clear(p.Data)
		case InitOnes:
			for i := range p.Data {
				p.Data[i] = 1
			}
		case InitNormal:
			for i := range p.Data {
				p.Data[i] = float32(rng.NormFloat64())
			}
		case InitUniform:
			for i := range p.Data {
				p.Data[i] = float32(rng.Float64()*2 - 1)
			}
		case InitLogRamp:
			for i := range p.Data {
				p.Data[i] = float32(math.Log(float64(i + 1)))
			}
		default:
			fanIn := 1
			if len(p.Shape) > 1 {
				fanIn = p.Shape[len(p.Shape)-1]
			}
			bound := 1 / math.Sqrt(float64(fanIn))
			for i := range p.Data {
				p.Data[i] = float32((rng.Float64()*2 - 1) * bound)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Activations
// ---------------------------------------------------------------------------

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// SiLU is x * sigmoid(x).
func SiLU(x float32) float32 { return float32(float64(x) * sigmoid(float64(x))) }

// Softplus is log(1 + e^x), linear above 20 like the usual threshold.
func Softplus(x float32) float32 {
	if x > 20 {
		return x
	}
	return float32(math.Log1p(math.Exp(float64(x))))
}

// Sigmoid is the logistic function.
func Sigmoid(x float32) float32 { return float32(sigmoid(float64(x))) }

// ---------------------------------------------------------------------------
// Linear
// ---------------------------------------------------------------------------

// Linear is y = W x + b with W stored [Out][In].
type Linear struct {
	In, Out int
	W       []float32
	B       []float32 // nil without bias
}

// NewLinear allocates a zeroed layer.
func NewLinear(in, out int, bias bool) *Linear {
	l := &Linear{In: in, Out: out, W: make([]float32, in*out)}
	if bias {
		l.B = make([]float32, out)
	}
	return l
}

// Params names the layer's tensors under prefix.
func (l *Linear) Params(prefix string) []Param {
	ps := []Param{{Name: prefix + ".weight", Shape: []int{l.Out, l.In}, Data: l.W, Init: InitFanIn}}
	if l.B != nil {
		ps = append(ps, Param{Name: prefix + ".bias", Shape: []int{l.Out}, Data: l.B, Init: InitZeros})
	}
	return ps
}

// Forward returns W x + b. It panics if len(x) != In.
func (l *Linear) Forward(x []float32) []float32 {
	out := make([]float32, l.Out)
	l.ForwardInto(out, x)
	return out
}

// ForwardInto writes W x + b into dst.
func (l *Linear) ForwardInto(dst, x []float32) {
	if len(x) != l.In {
		panic(fmt.Sprintf("ssm: linear input %d, want %d", len(x), l.In))
	}
	for o := 0; o < l.Out; o++ {
		row := l.W[o*l.In : (o+1)*l.In]
		var acc float64
		for i, v := range row {
			acc += float64(v) * float64(x[i])
		}
		if l.B != nil {
			acc += float64(l.B[o])
		}
		dst[o] = float32(acc)
	}
}

// ---------------------------------------------------------------------------
// RMSNorm
// ---------------------------------------------------------------------------

// RMSNorm scales x by the reciprocal root mean square, then by Weight.
type RMSNorm struct {
	Weight []float32
	Eps    float32
}

// NewRMSNorm returns a norm with unit weights.
func NewRMSNorm(d int) *RMSNorm {
	n := &RMSNorm{Weight: make([]float32, d), Eps: 1e-5}
	for i := range n.Weight {
		n.Weight[i] = 1
	}
	return n
}

func (n *RMSNorm) Params(prefix string) []Param {
	return []Param{{Name: prefix + ".weight", Shape: []int{len(n.Weight)}, Data: n.Weight, Init: InitOnes}}
}

// Forward normalizes x.
func (n *RMSNorm) Forward(x []float32) []float32 { return n.ForwardGated(x, nil) }

// ForwardGated normalizes x * silu(z). A nil z disables the gate.
func (n *RMSNorm) ForwardGated(x, z []float32) []float32 {
	v := make([]float64, len(x))
	var ss float64
	for i := range x {
		v[i] = float64(x[i])
		if z != nil {
			v[i] *= float64(SiLU(z[i]))
		}
		ss += v[i] * v[i]
	}
	inv := 1 / math.Sqrt(ss/float64(len(x))+float64(n.Eps))
	out := make([]float32, len(x))
	for i := range v {
		out[i] = float32(v[i] * inv * float64(n.Weight[i]))
	}
	return out
}

// ---------------------------------------------------------------------------
// Depthwise causal convolution
// ---------------------------------------------------------------------------

// Conv1D is a depthwise convolution over time with left padding Kernel-1,
// truncated to the input length, so step t sees only steps ≤ t.
type Conv1D struct {
	Channels int
	Kernel   int
	W        []float32 // [Channels][Kernel]
	B        []float32 // [Channels]
}

// NewConv1D allocates a zeroed depthwise conv.
func NewConv1D(channels, kernel int) *Conv1D {
	return &Conv1D{
		Channels: channels,
		Kernel:   kernel,
		W:        make([]float32, channels*kernel),
		B:        make([]float32, channels),
	}
}

func (c *Conv1D) Params(prefix string) []Param {
	return []Param{
		{Name: prefix + ".weight", Shape: []int{c.Channels, 1, c.Kernel}, Data: c.W, Init: InitFanIn},
		{Name: prefix + ".bias", Shape: []int{c.Channels}, Data: c.B, Init: InitZeros},
	}
}

// Forward computes out[t][ch] = b[ch] + Σk w[ch][k] * in[t+k-(Kernel-1)][ch].
func (c *Conv1D) Forward(seq [][]float32) [][]float32 {
	out := make([][]float32, len(seq))
	for t := range seq {
		row := make([]float32, c.Channels)
		for ch := 0; ch < c.Channels; ch++ {
			acc := float64(c.B[ch])
			w := c.W[ch*c.Kernel : (ch+1)*c.Kernel]
			for k := 0; k < c.Kernel; k++ {
				src := t + k - (c.Kernel - 1)
				if src < 0 {
					continue
				}
				acc += float64(w[k]) * float64(seq[src][ch])
			}
			row[ch] = float32(acc)
		}
		out[t] = row
	}
	return out
}
