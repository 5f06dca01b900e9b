package scoring

import (
	"errors"
	"fmt"
	"sort"

	"github.com/terra-clan/gmfm-scoring/internal/catalog"
)

// ErrInvalidRating is returned for ratings outside [MinRating, MaxRating]
var ErrInvalidRating = errors.New("invalid rating")

// Rating is the score recorded for one item during a session
type Rating int

const (
	MinRating Rating = 0
	MaxRating Rating = 3
)

// Valid reports whether r lies in the closed range [0,3]
func (r Rating) Valid() bool {
	return r >= MinRating && r <= MaxRating
}

// RatingMap holds the ratings of one session. Absent items were not tested,
// which is different from a rating of 0.
type RatingMap map[catalog.ItemID]Rating

// RatingError identifies the offending entry of a rejected rating map
type RatingError struct {
	Item  catalog.ItemID
	Value int
}

func (e *RatingError) Error() string {
	return fmt.Sprintf("invalid rating %d for item %d: must be between %d and %d", e.Value, e.Item, MinRating, MaxRating)
}

func (e *RatingError) Unwrap() error { return ErrInvalidRating }

// ParseRating validates a single raw value
func ParseRating(v int) (Rating, error) {
	r := Rating(v)
	if !r.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRating, v)
	}
	return r, nil
}

// ParseRatings converts raw item→value pairs, rejecting the whole map when any
// value is out of range. The lowest offending item number is reported.
func ParseRatings(raw map[int]int) (RatingMap, error) {
	out := make(RatingMap, len(raw))
	for _, id := range sortedKeys(raw) {
		v := raw[id]
		if !Rating(v).Valid() {
			return nil, &RatingError{Item: catalog.ItemID(id), Value: v}
		}
		out[catalog.ItemID(id)] = Rating(v)
	}
	return out, nil
}

// Raw converts the map back to plain integers, e.g. for persistence
func (m RatingMap) Raw() map[int]int {
	out := make(map[int]int, len(m))
	for id, r := range m {
		out[int(id)] = int(r)
	}
	return out
}

// validate returns a *RatingError for the lowest item with an out-of-range value
func (m RatingMap) validate() error {
	ids := make([]int, 0, len(m))
	for id, r := range m {
		if !r.Valid() {
			ids = append(ids, int(id))
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Ints(ids)
	return &RatingError{Item: catalog.ItemID(ids[0]), Value: int(m[catalog.ItemID(ids[0])])}
}

func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
