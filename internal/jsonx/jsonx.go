// Package jsonx is the JSON codec used on the hot paths: upstream payloads and
// stream frames.
package jsonx

import "github.com/bytedance/sonic"

var api = sonic.Config{
	EscapeHTML:  false,
	SortMapKeys: false,
	CopyString:  true, // decoded strings must not pin the frame buffer
}.Froze()

func Marshal(v any) ([]byte, error) { return api.Marshal(v) }

func Unmarshal(data []byte, v any) error { return api.Unmarshal(data, v) }
