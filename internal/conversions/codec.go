package conversions

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// Codec translates representations to and from their JSON wire form:
//
//	text             "string"
//	last-modified    "2006-01-02T15:04:05-0700"
//	image-dimensions [width, height]
//	links            [[url, text], ...]
//	manifest         [Handle, ...]
//	email-headers    {"name": "value", ...}
//	fallback         true
type Codec struct {
	dec driven.Decoder
}

// NewCodec creates a Codec. dec rebuilds the Handles of manifests.
func NewCodec(dec driven.Decoder) *Codec {
	return &Codec{dec: dec}
}

// Encode returns the JSON-compatible form of v.
func (c *Codec) Encode(ot domain.OutputType, v any) (any, error) {
	switch ot {
	case domain.OutputText:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(ot, v)
		}
		return s, nil
	case domain.OutputLastModified:
		t, ok := v.(time.Time)
		if !ok {
			return nil, mismatch(ot, v)
		}
		return domain.FormatTime(t), nil
	case domain.OutputImageDimensions:
		d, ok := v.(domain.Dimensions)
		if !ok {
			return nil, mismatch(ot, v)
		}
		return []int{d.Width, d.Height}, nil
	case domain.OutputLinks:
		links, ok := v.([]domain.Link)
		if !ok {
			return nil, mismatch(ot, v)
		}
		out := make([][]string, 0, len(links))
		for _, l := range links {
			out = append(out, []string{l.URL, l.Text})
		}
		return out, nil
	case domain.OutputManifest:
		handles, ok := v.([]driven.Handle)
		if !ok {
			return nil, mismatch(ot, v)
		}
		out := make([]map[string]any, 0, len(handles))
		for _, h := range handles {
			out = append(out, h.ToJSON())
		}
		return out, nil
	case domain.OutputEmailHeaders:
		headers, ok := v.(map[string]string)
		if !ok {
			return nil, mismatch(ot, v)
		}
		return headers, nil
	case domain.OutputAlwaysTrue:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch(ot, v)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: cannot encode %s", domain.ErrInvalidInput, ot)
}

// Decode rebuilds a representation from the generic value json.Unmarshal
// produced for it.
func (c *Codec) Decode(ot domain.OutputType, raw any) (any, error) {
	switch ot {
	case domain.OutputText:
		if s, ok := raw.(string); ok {
			return s, nil
		}
	case domain.OutputLastModified:
		if s, ok := raw.(string); ok {
			return domain.ParseTime(s)
		}
	case domain.OutputImageDimensions:
		pair, ok := raw.([]any)
		if ok && len(pair) == 2 {
			w, wok := pair[0].(float64)
			h, hok := pair[1].(float64)
			if wok && hok {
				return domain.Dimensions{Width: int(w), Height: int(h)}, nil
			}
		}
	case domain.OutputLinks:
		items, ok := raw.([]any)
		if !ok {
			break
		}
		links := make([]domain.Link, 0, len(items))
		for _, item := range items {
			pair, ok := item.([]any)
			if !ok || len(pair) != 2 {
				return nil, undecodable(ot, raw)
			}
			u, _ := pair[0].(string)
			text, _ := pair[1].(string)
			links = append(links, domain.Link{URL: u, Text: text})
		}
		return links, nil
	case domain.OutputManifest:
		items, ok := raw.([]any)
		if !ok {
			break
		}
		handles := make([]driven.Handle, 0, len(items))
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, undecodable(ot, raw)
			}
			h, err := c.dec.HandleFromJSON(obj)
			if err != nil {
				return nil, err
			}
			handles = append(handles, h)
		}
		return handles, nil
	case domain.OutputEmailHeaders:
		obj, ok := raw.(map[string]any)
		if !ok {
			break
		}
		headers := make(map[string]string, len(obj))
		for k, v := range obj {
			s, _ := v.(string)
			headers[strings.ToLower(k)] = s
		}
		return headers, nil
	case domain.OutputAlwaysTrue:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
	}
	return nil, undecodable(ot, raw)
}

// Marshal encodes v as JSON bytes.
func (c *Codec) Marshal(ot domain.OutputType, v any) ([]byte, error) {
	enc, err := c.Encode(ot, v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(enc)
}

// Unmarshal decodes JSON bytes produced by Marshal.
func (c *Codec) Unmarshal(ot domain.OutputType, data []byte) (any, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDeserialisation, ot, err)
	}
	return c.Decode(ot, raw)
}

func mismatch(ot domain.OutputType, v any) error {
	return fmt.Errorf("%w: %s representation cannot be %T", domain.ErrInvalidInput, ot, v)
}

func undecodable(ot domain.OutputType, raw any) error {
	return fmt.Errorf("%w: %s representation from %T", domain.ErrDeserialisation, ot, raw)
}
