package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gosimple/slug"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/oklog/ulid/v2"
)

// codeAlphabet omits 0/O and 1/I so codes survive being read aloud or printed on labels.
const (
	codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	codeLength   = 6
	prefixLength = 4
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Code returns a short human-facing code such as "LAPT-7K2QXM". The prefix is
// derived from source (a category name or explicit prefix); an empty source
// falls back to "ITM".
func Code(source string) string {
	return Prefix(source) + "-" + gonanoid.MustGenerate(codeAlphabet, codeLength)
}

// Prefix normalises source into an upper-case code prefix.
func Prefix(source string) string {
	p := strings.ToUpper(strings.ReplaceAll(slug.Make(source), "-", ""))
	if p == "" {
		return "ITM"
	}
	if len(p) > prefixLength {
		p = p[:prefixLength]
	}
	return p
}
