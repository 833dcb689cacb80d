// Package titles implements the local free-text title index over the AniDB
// title-dump flat file. The index is loaded once at startup and queried
// synchronously; it never touches the network.
package titles

import (
	"bufio"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Title kinds from the dump file.
const (
	kindPrimary  = 1
	kindSynonym  = 2
	kindShort    = 3
	kindOfficial = 4
)

type entry struct {
	id    int
	kind  int
	lower string
}

// Index is a case-insensitive substring-match index over anime titles.
type Index struct {
	log     zerolog.Logger
	entries []entry
}

// Empty returns an index with no entries. Used when loading the dataset
// fails: searches return nothing instead of the daemon refusing to start.
func Empty(log zerolog.Logger) *Index {
	return &Index{log: log.With().Str("component", "title-index").Logger()}
}

// Load reads the title dump at path. Lines are `aid|type|lang|title`, with
// `#` comments; malformed lines are skipped and counted, not fatal.
func Load(path string, log zerolog.Logger) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open title dataset")
	}
	defer f.Close()

	ix := Empty(log)
	skipped := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.SplitN(line, "|", 4)
		if len(fields) != 4 {
			skipped++
			continue
		}

		id, err := strconv.Atoi(fields[0])
		if err != nil || id <= 0 {
			skipped++
			continue
		}
		kind, err := strconv.Atoi(fields[1])
		if err != nil {
			skipped++
			continue
		}
		title := strings.TrimSpace(fields[3])
		if title == "" {
			skipped++
			continue
		}

		ix.entries = append(ix.entries, entry{
			id:    id,
			kind:  kind,
			lower: strings.ToLower(title),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read title dataset")
	}

	ix.log.Info().
		Str("path", path).
		Int("titles", len(ix.entries)).
		Int("skipped", skipped).
		Msg("Title dataset loaded")

	return ix, nil
}

// Len returns the number of indexed titles.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Match ranks. Lower ranks first.
const (
	rankExact = iota
	rankPrimary
	rankOfficial
	rankSecondary
)

// Search returns up to limit distinct identifiers whose titles contain term
// (case-insensitive). Exact matches rank above primary-title matches, which
// rank above official-title matches, which rank above synonyms and short
// forms. Ties keep dataset order, so results are stable across calls.
func (ix *Index) Search(term string, limit int) []int {
	t := strings.ToLower(strings.TrimSpace(term))
	if t == "" || limit <= 0 {
		return nil
	}

	type match struct {
		id   int
		rank int
		pos  int
	}

	best := make(map[int]*match)
	var order []*match

	for pos, e := range ix.entries {
		if !strings.Contains(e.lower, t) {
			continue
		}

		rank := rankSecondary
		switch {
		case e.lower == t:
			rank = rankExact
		case e.kind == kindPrimary:
			rank = rankPrimary
		case e.kind == kindOfficial:
			rank = rankOfficial
		}

		if m, ok := best[e.id]; ok {
			if rank < m.rank {
				m.rank = rank
			}
			continue
		}
		m := &match{id: e.id, rank: rank, pos: pos}
		best[e.id] = m
		order = append(order, m)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].rank != order[j].rank {
			return order[i].rank < order[j].rank
		}
		return order[i].pos < order[j].pos
	})

	if len(order) > limit {
		order = order[:limit]
	}
	if len(order) == 0 {
		return nil
	}

	ids := make([]int, len(order))
	for i, m := range order {
		ids[i] = m.id
	}
	return ids
}
