package testutil

import (
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Posting is one document of a term's exact postings.
type Posting struct {
	Doc       int
	Positions []int
}

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Zipf returns a Zipfian-distributed value in [0, n).
// P(k) is proportional to 1/k^s where s is the skew parameter.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return newZipfTable(n, s).sample(r.rand)
}

// Vocabulary returns n distinct words. Word i is the base 36 form of i
// prefixed with "w", so the words do not sort in rank order.
func Vocabulary(n int) []string {
	words := make([]string, n)
	for i := range words {
		words[i] = "w" + strconv.FormatInt(int64(i), 36)
	}
	return words
}

// Corpus is a generated list of documents, each a list of words of one
// field.
type Corpus struct {
	Docs [][]string
}

// Corpus generates num documents of minLen to maxLen words drawn from
// vocab with Zipf skew s, so a few words occur in most documents and most
// words occur rarely.
func (r *RNG) Corpus(num int, vocab []string, minLen, maxLen int, s float64) *Corpus {
	r.mu.Lock()
	defer r.mu.Unlock()

	table := newZipfTable(len(vocab), s)
	c := &Corpus{Docs: make([][]string, num)}
	for i := range c.Docs {
		n := minLen
		if maxLen > minLen {
			n += r.rand.Intn(maxLen - minLen + 1)
		}
		words := make([]string, n)
		for j := range words {
			words[j] = vocab[table.sample(r.rand)]
		}
		c.Docs[i] = words
	}
	return c
}

// Text returns document i as white space separated words.
func (c *Corpus) Text(i int) string {
	return strings.Join(c.Docs[i], " ")
}

// Contains reports whether document i holds word.
func (c *Corpus) Contains(i int, word string) bool {
	for _, w := range c.Docs[i] {
		if w == word {
			return true
		}
	}
	return false
}

// Postings computes the exact postings of every word over the documents
// live reports true for. Documents keep their corpus index as doc ID.
func (c *Corpus) Postings(live func(doc int) bool) map[string][]Posting {
	out := make(map[string][]Posting)
	for doc, words := range c.Docs {
		if live != nil && !live(doc) {
			continue
		}
		for pos, w := range words {
			ps := out[w]
			if n := len(ps); n > 0 && ps[n-1].Doc == doc {
				ps[n-1].Positions = append(ps[n-1].Positions, pos)
				continue
			}
			out[w] = append(ps, Posting{Doc: doc, Positions: []int{pos}})
		}
	}
	return out
}

// Words returns the distinct words of the corpus in sorted order.
func (c *Corpus) Words() []string {
	seen := make(map[string]struct{})
	for _, words := range c.Docs {
		for _, w := range words {
			seen[w] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// zipfTable holds the cumulative weights of ranks 1..n.
type zipfTable []float64

func newZipfTable(n int, s float64) zipfTable {
	if n <= 1 {
		return nil
	}
	t := make(zipfTable, n)
	var sum float64
	for k := 1; k <= n; k++ {
		sum += 1.0 / math.Pow(float64(k), s)
		t[k-1] = sum
	}
	return t
}

func (t zipfTable) sample(rng *rand.Rand) int {
	if len(t) == 0 {
		return 0
	}
	u := rng.Float64() * t[len(t)-1]
	i := sort.SearchFloat64s(t, u)
	if i >= len(t) {
		return len(t) - 1
	}
	return i
}
