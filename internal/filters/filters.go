package filters

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/rg/arcguard/internal/textnorm"
)

type MediaKind string

const (
	MediaImage     MediaKind = "image"
	MediaVideo     MediaKind = "video"
	MediaAnimation MediaKind = "animation"
)

// Filter is a canned response bound to a trigger word.
type Filter struct {
	Trigger      string
	ResponseText string
	Media        string // path relative to the media root, optional
	Kind         MediaKind

	pattern *regexp.Regexp
}

func (f *Filter) HasMedia() bool {
	return f.Media != ""
}

// Response is what a matched filter resolves to at dispatch time.
type Response struct {
	Filter    *Filter
	MediaPath string // absolute path when the asset exists, empty otherwise
	Text      string
}

// Registry keeps filters in file order; the first matching trigger wins.
type Registry struct {
	filters   []*Filter
	mediaRoot string
}

// Load reads the filter definitions file. Malformed JSON is an error, media
// files are not checked until dispatch.
func Load(path, mediaRoot string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read filters file: %w", err)
	}

	r, err := Parse(data, mediaRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to parse filters file %s: %w", path, err)
	}
	return r, nil
}

// Parse builds a registry from a JSON object of
// trigger -> {response_text, media, type}, preserving key order.
func Parse(data []byte, mediaRoot string) (*Registry, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("expected a JSON object of filters")
	}

	r := &Registry{mediaRoot: mediaRoot}
	position := make(map[string]int)

	var parseErr error
	root.ForEach(func(key, value gjson.Result) bool {
		f, err := parseFilter(key.String(), value)
		if err != nil {
			parseErr = err
			return false
		}
		// a repeated trigger keeps its first position and takes the last value
		if i, ok := position[f.Trigger]; ok {
			r.filters[i] = f
			return true
		}
		position[f.Trigger] = len(r.filters)
		r.filters = append(r.filters, f)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return r, nil
}

func parseFilter(trigger string, value gjson.Result) (*Filter, error) {
	trigger = strings.TrimSpace(trigger)
	if trigger == "" {
		return nil, fmt.Errorf("empty filter trigger")
	}
	if !value.IsObject() {
		return nil, fmt.Errorf("filter %q: expected an object", trigger)
	}

	kind, err := parseKind(value.Get("type").String())
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", trigger, err)
	}

	pattern, err := textnorm.WordPattern(strings.ToLower(trigger), textnorm.UnderscoreSuffix)
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", trigger, err)
	}

	return &Filter{
		Trigger:      trigger,
		ResponseText: value.Get("response_text").String(),
		Media:        value.Get("media").String(),
		Kind:         kind,
		pattern:      pattern,
	}, nil
}

func parseKind(s string) (MediaKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gif", "animation":
		return MediaAnimation, nil
	case "image", "photo":
		return MediaImage, nil
	case "video":
		return MediaVideo, nil
	default:
		return "", fmt.Errorf("unknown media type %q", s)
	}
}

// Match returns the first filter, in file order, whose trigger occurs in
// text as a word, optionally followed by "_suffix".
func (r *Registry) Match(text string) *Filter {
	if r == nil {
		return nil
	}
	for _, f := range r.filters {
		if f.pattern.MatchString(text) {
			return f
		}
	}
	return nil
}

// Dispatch matches text and resolves the response. Media is used when the
// asset exists under the media root; otherwise the response text, if any.
func (r *Registry) Dispatch(text string) (Response, bool) {
	f := r.Match(text)
	if f == nil {
		return Response{}, false
	}

	if f.HasMedia() {
		if path, ok := r.resolveMedia(f.Media); ok {
			return Response{Filter: f, MediaPath: path, Text: f.ResponseText}, true
		}
	}
	if f.ResponseText == "" {
		return Response{}, false
	}
	return Response{Filter: f, Text: f.ResponseText}, true
}

func (r *Registry) resolveMedia(media string) (string, bool) {
	path := media
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.mediaRoot, media)
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// Triggers returns every trigger sorted case-insensitively, ignoring a
// leading slash.
func (r *Registry) Triggers() []string {
	out := make([]string, 0, r.Len())
	if r == nil {
		return out
	}
	for _, f := range r.filters {
		out = append(out, f.Trigger)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := sortKey(out[i]), sortKey(out[j])
		if a != b {
			return a < b
		}
		return out[i] < out[j]
	})
	return out
}

func sortKey(trigger string) string {
	return strings.ToLower(strings.TrimPrefix(trigger, "/"))
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.filters)
}
