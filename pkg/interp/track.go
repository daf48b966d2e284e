package interp

import (
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrEmptyTrack is returned when a value is requested from a track without
// keyframes.
var ErrEmptyTrack = errors.New("interp: track has no keyframes")

// Keyframe anchors a value at a frame. Logic governs the segment from this
// keyframe to the next one; nil means [LinearLogic].
type Keyframe struct {
	Frame int64
	Value float64
	Logic Logic
}

// Track is an ordered set of keyframes. It is not safe for concurrent
// mutation.
type Track struct {
	keys []Keyframe
}

// NewTrack returns a track holding keys. Keyframes sharing a frame keep the
// last one given.
func NewTrack(keys ...Keyframe) *Track {
	t := &Track{}
	for _, k := range keys {
		t.Add(k)
	}
	return t
}

// Add inserts k, replacing an existing keyframe at the same frame.
func (t *Track) Add(k Keyframe) {
	i := sort.Search(len(t.keys), func(i int) bool { return t.keys[i].Frame >= k.Frame })
	if i < len(t.keys) && t.keys[i].Frame == k.Frame {
		t.keys[i] = k
		return
	}
	t.keys = append(t.keys, Keyframe{})
	copy(t.keys[i+1:], t.keys[i:])
	t.keys[i] = k
}

// Len returns the number of keyframes.
func (t *Track) Len() int { return len(t.keys) }

// Keyframes returns a copy of the keyframes in frame order.
func (t *Track) Keyframes() []Keyframe {
	return append([]Keyframe(nil), t.keys...)
}

// ValueAt returns the value at frame. Frames before the first keyframe take
// its value, frames at or after the last keyframe take the last value.
func (t *Track) ValueAt(frame int64) (float64, error) {
	n := len(t.keys)
	switch {
	case n == 0:
		return 0, ErrEmptyTrack
	case frame <= t.keys[0].Frame:
		return t.keys[0].Value, nil
	case frame >= t.keys[n-1].Frame:
		return t.keys[n-1].Value, nil
	}

	// First keyframe strictly after frame; the segment starts one before it.
	i := sort.Search(n, func(i int) bool { return t.keys[i].Frame > frame })
	from, to := t.keys[i-1], t.keys[i]
	logic := from.Logic
	if logic == nil {
		logic = LinearLogic{}
	}
	return logic.Calculate(from.Value, to.Value, frame, from.Frame, to.Frame)
}

// HardCopy returns a track whose strategies are independent copies.
func (t *Track) HardCopy() *Track {
	if t == nil {
		return nil
	}
	c := &Track{keys: make([]Keyframe, len(t.keys))}
	for i, k := range t.keys {
		if k.Logic != nil {
			k.Logic = k.Logic.HardCopy()
		}
		c.keys[i] = k
	}
	return c
}

// KeyframeDoc is the persisted form of a [Keyframe].
type KeyframeDoc struct {
	Frame int64   `yaml:"frame"`
	Value float64 `yaml:"value"`
	Logic *Spec   `yaml:"logic,omitempty"`
}

// Doc returns the persisted form of t.
func (t *Track) Doc() []KeyframeDoc {
	docs := make([]KeyframeDoc, len(t.keys))
	for i, k := range t.keys {
		docs[i] = KeyframeDoc{Frame: k.Frame, Value: k.Value}
		if k.Logic != nil {
			s := SpecOf(k.Logic)
			docs[i].Logic = &s
		}
	}
	return docs
}

// Track builds a track from its persisted form, resolving every strategy
// through r.
func (r *Registry) Track(docs []KeyframeDoc) (*Track, error) {
	t := &Track{}
	for i, d := range docs {
		k := Keyframe{Frame: d.Frame, Value: d.Value}
		if d.Logic != nil {
			l, err := r.New(*d.Logic)
			if err != nil {
				return nil, fmt.Errorf("interp: keyframe %d: %w", i, err)
			}
			k.Logic = l
		}
		t.Add(k)
	}
	return t, nil
}

// MarshalTrack encodes t as YAML.
func MarshalTrack(t *Track) ([]byte, error) {
	return yaml.Marshal(t.Doc())
}

// UnmarshalTrack decodes a YAML track and resolves its strategies through r.
func (r *Registry) UnmarshalTrack(data []byte) (*Track, error) {
	var docs []KeyframeDoc
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("interp: decode track: %w", err)
	}
	return r.Track(docs)
}
