package trainer

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/soundprediction/kgpath/pkg/encoder"
)

const normEps = 1e-8

// rowReader is the part of encoder.NativeEncoder the loss reads.
type rowReader interface {
	Row(id int, dst []float32)
	Dimensions() int
}

// gradient is a sparse gradient over embedding rows.
type gradient map[int][]float64

func (g gradient) add(id int, scale float64, v []float64) {
	row, ok := g[id]
	if !ok {
		row = make([]float64, len(v))
		g[id] = row
	}
	for i, x := range v {
		row[i] += scale * x
	}
}

// merge adds other into g.
func (g gradient) merge(other gradient) {
	for id, v := range other {
		g.add(id, 1, v)
	}
}

// ids returns the touched rows in ascending order.
func (g gradient) ids() []int {
	ids := make([]int, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// result is the outcome of one example's forward (and optional backward)
// pass.
type result struct {
	loss    float64
	correct bool
	grad    gradient
}

// tokenize encodes texts. With rng set, each token after [CLS] is dropped
// with probability dropout.
func tokenize(tok *encoder.Tokenizer, texts []string, dropout float64, rng *rand.Rand) [][]int {
	out := make([][]int, len(texts))
	for i, text := range texts {
		ids := tok.Encode(text)
		if rng != nil && dropout > 0 {
			kept := ids[:1]
			for _, id := range ids[1:] {
				if rng.Float64() >= dropout {
					kept = append(kept, id)
				}
			}
			ids = kept
		}
		out[i] = ids
	}
	return out
}

// pool averages the rows of ids.
func pool(m rowReader, ids []int) []float64 {
	dim := m.Dimensions()
	sum := make([]float64, dim)
	row := make([]float32, dim)
	for _, id := range ids {
		m.Row(id, row)
		for i, x := range row {
			sum[i] += float64(x)
		}
	}
	if len(ids) > 0 {
		inv := 1 / float64(len(ids))
		for i := range sum {
			sum[i] *= inv
		}
	}
	return sum
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// contrastive computes the softmax cross-entropy of cosine logits divided
// by temperature, with the candidate at index 1 of seqs as the target and
// seqs[0] as the anchor. The gradient is only built when backward is set.
func contrastive(m rowReader, seqs [][]int, temperature float64, backward bool) result {
	vecs := make([][]float64, len(seqs))
	norms := make([]float64, len(seqs))
	for i, ids := range seqs {
		vecs[i] = pool(m, ids)
		norms[i] = math.Max(math.Sqrt(dot(vecs[i], vecs[i])), normEps)
	}

	q, qn := vecs[0], norms[0]
	k := len(seqs) - 1
	cos := make([]float64, k)
	logits := make([]float64, k)
	maxLogit := math.Inf(-1)
	for j := 0; j < k; j++ {
		c := vecs[j+1]
		cos[j] = dot(q, c) / (qn * norms[j+1])
		logits[j] = cos[j] / temperature
		maxLogit = math.Max(maxLogit, logits[j])
	}

	var z float64
	probs := make([]float64, k)
	for j, l := range logits {
		probs[j] = math.Exp(l - maxLogit)
		z += probs[j]
	}
	best := 0
	for j := range probs {
		probs[j] /= z
		if logits[j] > logits[best] {
			best = j
		}
	}

	res := result{
		loss:    -math.Log(math.Max(probs[0], math.SmallestNonzeroFloat64)),
		correct: best == 0,
	}
	if !backward {
		return res
	}

	// dL/dcos_j = (p_j - y_j) / T
	// dcos/dq = c/(|q||c|) - cos*q/|q|^2, and symmetrically for c.
	dim := len(q)
	gq := make([]float64, dim)
	res.grad = make(gradient)
	for j := 0; j < k; j++ {
		g := probs[j] / temperature
		if j == 0 {
			g -= 1 / temperature
		}
		if g == 0 {
			continue
		}
		c, cn := vecs[j+1], norms[j+1]
		gc := make([]float64, dim)
		for i := 0; i < dim; i++ {
			gq[i] += g * (c[i]/(qn*cn) - cos[j]*q[i]/(qn*qn))
			gc[i] = g * (q[i]/(qn*cn) - cos[j]*c[i]/(cn*cn))
		}
		spread(res.grad, seqs[j+1], gc)
	}
	spread(res.grad, seqs[0], gq)
	return res
}

// spread distributes a pooled-vector gradient over the rows that were
// averaged into it.
func spread(g gradient, ids []int, v []float64) {
	if len(ids) == 0 {
		return
	}
	scale := 1 / float64(len(ids))
	for _, id := range ids {
		g.add(id, scale, v)
	}
}
