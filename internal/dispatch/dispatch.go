// Package dispatch maps declared media types and file names to the
// decoder responsible for them.
package dispatch

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/g960059/sweepview/internal/avf"
	"github.com/g960059/sweepview/internal/evf"
	"github.com/g960059/sweepview/internal/replay"
	"github.com/g960059/sweepview/internal/rmv"
	"github.com/g960059/sweepview/internal/source"
)

const (
	MediaTypeArbiter       = "application/x-minesweeper-arbiter"
	MediaTypeViennasweeper = "application/x-viennasweeper"
	MediaTypeMinesweeperX  = "application/x-minesweeper-x"
)

var (
	ErrUnknownMimeType        = errors.New("dispatch: unknown media type")
	ErrMimeTypeNotImplemented = errors.New("dispatch: media type recognized but not implemented")
	ErrUnknownExtension       = errors.New("dispatch: unknown replay file extension")
)

// Definition describes a registered decoder. MediaType may be empty for
// formats that are only recognised by extension.
type Definition struct {
	Format     replay.Format `json:"format"`
	MediaType  string        `json:"media_type,omitempty"`
	Extensions []string      `json:"extensions"`
}

type Decoder interface {
	Definition() Definition
	Decode(b []byte, name string) (replay.Replay, error)
}

type funcDecoder struct {
	def    Definition
	decode func([]byte, string) (replay.Replay, error)
}

func (d funcDecoder) Definition() Definition {
	return d.def
}

func (d funcDecoder) Decode(b []byte, name string) (replay.Replay, error) {
	return d.decode(b, name)
}

func NewAVFDecoder() Decoder {
	return funcDecoder{
		def: Definition{Format: replay.FormatAVF, MediaType: MediaTypeArbiter, Extensions: []string{".avf"}},
		decode: func(b []byte, name string) (replay.Replay, error) {
			r, err := avf.DecodeBytes(b, name)
			if err != nil {
				return nil, err
			}
			return r, nil
		},
	}
}

func NewEVFDecoder() Decoder {
	return funcDecoder{
		def: Definition{Format: replay.FormatEVF, Extensions: []string{".evf"}},
		decode: func(b []byte, name string) (replay.Replay, error) {
			r, err := evf.DecodeBytes(b, name)
			if err != nil {
				return nil, err
			}
			return r, nil
		},
	}
}

func NewRMVDecoder() Decoder {
	return funcDecoder{
		def: Definition{Format: replay.FormatRMV, MediaType: MediaTypeViennasweeper, Extensions: []string{".rmv"}},
		decode: func(b []byte, name string) (replay.Replay, error) {
			r, err := rmv.DecodeBytes(b, name)
			if err != nil {
				return nil, err
			}
			return r, nil
		},
	}
}

type Registry struct {
	mu             sync.RWMutex
	byMediaType    map[string]Decoder
	byExtension    map[string]Decoder
	byFormat       map[replay.Format]Decoder
	notImplemented map[string]struct{}
}

func NewRegistry(decoders ...Decoder) *Registry {
	r := &Registry{
		byMediaType:    map[string]Decoder{},
		byExtension:    map[string]Decoder{},
		byFormat:       map[replay.Format]Decoder{},
		notImplemented: map[string]struct{}{},
	}
	for _, d := range decoders {
		_ = r.Register(d)
	}
	return r
}

func DefaultRegistry() *Registry {
	r := NewRegistry(
		NewAVFDecoder(),
		NewEVFDecoder(),
		NewRMVDecoder(),
	)
	r.MarkNotImplemented(MediaTypeMinesweeperX)
	return r
}

func (r *Registry) Register(d Decoder) error {
	if d == nil {
		return fmt.Errorf("decoder is nil")
	}
	def := d.Definition()
	if def.Format == "" {
		return fmt.Errorf("format is required")
	}
	mediaType := normalizeMediaType(def.MediaType)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byFormat[def.Format]; exists {
		return fmt.Errorf("decoder already registered for format=%s", def.Format)
	}
	if mediaType != "" {
		if _, exists := r.byMediaType[mediaType]; exists {
			return fmt.Errorf("decoder already registered for media_type=%s", mediaType)
		}
		r.byMediaType[mediaType] = d
		delete(r.notImplemented, mediaType)
	}
	for _, ext := range def.Extensions {
		r.byExtension[strings.ToLower(ext)] = d
	}
	r.byFormat[def.Format] = d
	return nil
}

// MarkNotImplemented records a media type that is known but has no
// decoder, so Resolve can tell it apart from an unknown one.
func (r *Registry) MarkNotImplemented(mediaType string) {
	mediaType = normalizeMediaType(mediaType)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byMediaType[mediaType]; !ok && mediaType != "" {
		r.notImplemented[mediaType] = struct{}{}
	}
}

func (r *Registry) Resolve(mediaType string) (Decoder, error) {
	normalized := normalizeMediaType(mediaType)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.byMediaType[normalized]; ok {
		return d, nil
	}
	if _, ok := r.notImplemented[normalized]; ok {
		return nil, fmt.Errorf("%w: %s", ErrMimeTypeNotImplemented, mediaType)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMimeType, mediaType)
}

func (r *Registry) ForFormat(format replay.Format) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byFormat[format]
	return d, ok
}

// ForPath picks a decoder from the file extension, looking through a
// trailing .gz or .zst.
func (r *Registry) ForPath(path string) (Decoder, error) {
	ext := strings.ToLower(filepath.Ext(source.TrimCompressionExt(path)))
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.byExtension[ext]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownExtension, filepath.Base(path))
}

// Supported lists the media types that have a decoder.
func (r *Registry) Supported() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byMediaType))
	for mt := range r.byMediaType {
		out = append(out, mt)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.byFormat))
	for _, d := range r.byFormat {
		def := d.Definition()
		def.Extensions = append([]string(nil), def.Extensions...)
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Format < defs[j].Format
	})
	return defs
}

// Decode decodes b with the decoder registered for mediaType.
func (r *Registry) Decode(mediaType string, b []byte, name string) (replay.Replay, error) {
	d, err := r.Resolve(mediaType)
	if err != nil {
		return nil, err
	}
	return d.Decode(b, name)
}

// DecodeFile reads path, inflating it if compressed, and decodes it with
// the decoder for mediaType, or by extension when mediaType is empty.
func (r *Registry) DecodeFile(path, mediaType string, maxBytes int64) (replay.Replay, error) {
	var (
		d   Decoder
		err error
	)
	if strings.TrimSpace(mediaType) != "" {
		d, err = r.Resolve(mediaType)
	} else {
		d, err = r.ForPath(path)
	}
	if err != nil {
		return nil, err
	}
	b, err := source.ReadFile(path, maxBytes)
	if err != nil {
		return nil, err
	}
	return d.Decode(b, path)
}

func normalizeMediaType(mediaType string) string {
	mt, _, _ := strings.Cut(mediaType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
