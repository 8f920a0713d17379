package ssm

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// ErrChunkSize is returned by ChunkedScan when the chunk length does not
// divide the sequence length.
var ErrChunkSize = errors.New("ssm: chunk size does not divide sequence length")

// ScanInput holds the per-step tensors of one selective scan.
//
//	X  [L][NHeads*HeadDim]  content, not yet scaled by Dt
//	B  [L][DState]          write vector
//	C  [L][DState]          read vector
//	Dt [L][NHeads]          positive step sizes
//	A  [NHeads]             negative decay rates
type ScanInput struct {
	X, B, C, Dt [][]float32
	A           []float32

	NHeads, HeadDim, DState int
}

// Len returns the sequence length.
func (in ScanInput) Len() int { return len(in.X) }

// Scanner evaluates the recurrence
//
//	h_t = h_{t-1} * exp(A*dt_t) + dt_t * outer(x_t, B_t)
//	y_t = h_t · C_t
//
// per head, starting from a zero state. Output is [L][NHeads*HeadDim].
type Scanner interface {
	Scan(in ScanInput) ([][]float32, error)
}

// SelectScanner returns a chunked scanner when chunk > 0 divides length,
// otherwise the sequential one.
func SelectScanner(chunk, length int) Scanner {
	if chunk > 0 && length%chunk == 0 {
		return ChunkedScan{ChunkSize: chunk}
	}
	return SequentialScan{}
}

// ---------------------------------------------------------------------------
// Sequential
// ---------------------------------------------------------------------------

// SequentialScan steps the recurrence one position at a time.
type SequentialScan struct{}

func (SequentialScan) Scan(in ScanInput) ([][]float32, error) {
	H, P, N := in.NHeads, in.HeadDim, in.DState
	h := make([]float64, H*P*N)
	out := make([][]float32, in.Len())

	for t := range in.X {
		y := make([]float32, H*P)
		x, b, c, dt := in.X[t], in.B[t], in.C[t], in.Dt[t]
		for hd := 0; hd < H; hd++ {
			step := float64(dt[hd])
			dA := math.Exp(float64(in.A[hd]) * step)
			for p := 0; p < P; p++ {
				xv := step * float64(x[hd*P+p])
				state := h[(hd*P+p)*N : (hd*P+p+1)*N]
				var acc float64
				for n := 0; n < N; n++ {
					state[n] = state[n]*dA + xv*float64(b[n])
					acc += state[n] * float64(c[n])
				}
				y[hd*P+p] = float32(acc)
			}
		}
		out[t] = y
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Chunked
// ---------------------------------------------------------------------------

// ChunkedScan splits the sequence into equal chunks. Each chunk's own output
// and final state are computed in parallel from a segment-sum decay matrix;
// states are then carried across chunk boundaries with the same matrix built
// over chunk totals, and their contribution is added back per chunk.
type ChunkedScan struct {
	ChunkSize int
}

// segsum returns S[l][s] = a[s+1] + ... + a[l] for l ≥ s and -Inf above the
// diagonal. Each row is a running sum, never a difference of prefix sums.
func segsum(a []float64) [][]float64 {
	T := len(a)
	out := make([][]float64, T)
	for l := range out {
		out[l] = make([]float64, T)
		for s := l + 1; s < T; s++ {
			out[l][s] = math.Inf(-1)
		}
	}
	for s := 0; s < T; s++ {
		var acc float64
		for l := s; l < T; l++ {
			if l > s {
				acc += a[l]
			}
			out[l][s] = acc
		}
	}
	return out
}

// chunkResult is the per-chunk output of the intra-chunk pass.
type chunkResult struct {
	y     [][]float64 // [cs][H*P] diagonal-block output
	cum   [][]float64 // [H][cs] cumulative log decay
	state []float64   // [H][P][N] chunk-final state from a zero start
}

func (s ChunkedScan) Scan(in ScanInput) ([][]float32, error) {
	L, cs := in.Len(), s.ChunkSize
	if cs <= 0 || L%cs != 0 {
		return nil, fmt.Errorf("length %d, chunk %d: %w", L, cs, ErrChunkSize)
	}
	nchunks := L / cs
	H, P, N := in.NHeads, in.HeadDim, in.DState

	results := make([]chunkResult, nchunks)
	var g errgroup.Group
	for ci := 0; ci < nchunks; ci++ {
		g.Go(func() error {
			results[ci] = s.intraChunk(in, ci*cs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Inter-chunk: entering[z] = Σ_{c≤z} exp(segsum(pad(totals)))[z][c] * S[c],
	// where S[0] = 0 and S[c+1] is chunk c's final state.
	entering := make([][]float64, nchunks)
	for z := range entering {
		entering[z] = make([]float64, H*P*N)
	}
	for hd := 0; hd < H; hd++ {
		totals := make([]float64, nchunks+1)
		for c := 0; c < nchunks; c++ {
			totals[c+1] = results[c].cum[hd][cs-1]
		}
		decay := segsum(totals)
		for z := 0; z < nchunks; z++ {
			dst := entering[z][hd*P*N : (hd+1)*P*N]
			for c := 1; c <= z; c++ {
				w := math.Exp(decay[z][c])
				src := results[c-1].state[hd*P*N : (hd+1)*P*N]
				for i := range dst {
					dst[i] += w * src[i]
				}
			}
		}
	}

	out := make([][]float32, L)
	for ci := 0; ci < nchunks; ci++ {
		g.Go(func() error {
			s.offChunk(in, ci*cs, results[ci], entering[ci], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// intraChunk computes the diagonal-block output, the cumulative decay and
// the final state of the chunk starting at t0, assuming a zero entering state.
func (s ChunkedScan) intraChunk(in ScanInput, t0 int) chunkResult {
	cs := s.ChunkSize
	H, P, N := in.NHeads, in.HeadDim, in.DState

	r := chunkResult{
		y:     make([][]float64, cs),
		cum:   make([][]float64, H),
		state: make([]float64, H*P*N),
	}
	for l := range r.y {
		r.y[l] = make([]float64, H*P)
	}

	// C_l · B_s is shared across heads.
	cb := make([][]float64, cs)
	for l := 0; l < cs; l++ {
		cb[l] = make([]float64, cs)
		for sIdx := 0; sIdx <= l; sIdx++ {
			var acc float64
			for n := 0; n < N; n++ {
				acc += float64(in.C[t0+l][n]) * float64(in.B[t0+sIdx][n])
			}
			cb[l][sIdx] = acc
		}
	}

	a := make([]float64, cs)
	for hd := 0; hd < H; hd++ {
		cum := make([]float64, cs)
		var run float64
		for l := 0; l < cs; l++ {
			a[l] = float64(in.A[hd]) * float64(in.Dt[t0+l][hd])
			run += a[l]
			cum[l] = run
		}
		r.cum[hd] = cum
		seg := segsum(a)

		for p := 0; p < P; p++ {
			col := hd*P + p
			// xs = x * dt
			xs := make([]float64, cs)
			for l := 0; l < cs; l++ {
				xs[l] = float64(in.X[t0+l][col]) * float64(in.Dt[t0+l][hd])
			}
			for l := 0; l < cs; l++ {
				var acc float64
				for sIdx := 0; sIdx <= l; sIdx++ {
					acc += cb[l][sIdx] * math.Exp(seg[l][sIdx]) * xs[sIdx]
				}
				r.y[l][col] = acc
			}
			state := r.state[col*N : (col+1)*N]
			for l := 0; l < cs; l++ {
				w := math.Exp(cum[cs-1]-cum[l]) * xs[l]
				for n := 0; n < N; n++ {
					state[n] += w * float64(in.B[t0+l][n])
				}
			}
		}
	}
	return r
}

// offChunk adds the entering state's contribution to the chunk at t0 and
// writes the final rows of out.
func (s ChunkedScan) offChunk(in ScanInput, t0 int, r chunkResult, entering []float64, out [][]float32) {
	H, P, N := in.NHeads, in.HeadDim, in.DState
	for l := 0; l < s.ChunkSize; l++ {
		row := make([]float32, H*P)
		c := in.C[t0+l]
		for hd := 0; hd < H; hd++ {
			decay := math.Exp(r.cum[hd][l])
			for p := 0; p < P; p++ {
				col := hd*P + p
				state := entering[col*N : (col+1)*N]
				var acc float64
				for n := 0; n < N; n++ {
					acc += float64(c[n]) * state[n]
				}
				row[col] = float32(r.y[l][col] + acc*decay)
			}
		}
		out[t0+l] = row
	}
}
