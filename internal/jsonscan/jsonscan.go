// Package jsonscan finds a single string field in a JSON document by walking
// the token stream, without decoding the rest of the document.
package jsonscan

import (
	"encoding/json"
	"io"
)

type frame struct {
	object  bool
	wantKey bool
	key     string
}

// FindString returns the string value of key when it appears as a member of
// the root object, or as a member of an object stored under one of the
// wrapper keys of the root object. Matches elsewhere are skipped. The scan
// stops at the first match; a document that is not a JSON object, is
// malformed before the match, or has no match yields ok == false.
func FindString(r io.Reader, key string, wrappers ...string) (value string, ok bool) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return "", false
	}
	if d, isDelim := tok.(json.Delim); !isDelim || d != '{' {
		return "", false
	}
	stack := []frame{{object: true, wantKey: true}}

	for {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		top := &stack[len(stack)-1]

		if top.object && top.wantKey {
			if d, isDelim := tok.(json.Delim); isDelim {
				if d != '}' {
					return "", false
				}
				stack = stack[:len(stack)-1]
				if len(stack) == 0 {
					return "", false
				}
				valueDone(&stack[len(stack)-1])
				continue
			}
			name, isString := tok.(string)
			if !isString {
				return "", false
			}
			top.key = name
			top.wantKey = false
			continue
		}

		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{':
				stack = append(stack, frame{object: true, wantKey: true})
			case '[':
				stack = append(stack, frame{})
			default:
				stack = stack[:len(stack)-1]
				if len(stack) == 0 {
					return "", false
				}
				valueDone(&stack[len(stack)-1])
			}
		case string:
			if top.object && top.key == key && matchesPath(stack, wrappers) {
				return t, true
			}
			valueDone(top)
		default:
			valueDone(top)
		}
	}
}

func valueDone(f *frame) {
	if f.object {
		f.wantKey = true
	}
}

func matchesPath(stack []frame, wrappers []string) bool {
	switch len(stack) {
	case 1:
		return true
	case 2:
		parent := stack[0]
		if !parent.object {
			return false
		}
		for _, w := range wrappers {
			if parent.key == w {
				return true
			}
		}
	}
	return false
}
