package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Args collects the call-affecting inputs of one generation call. Every
// argument that can change the external model's output must be added here;
// control parameters (such as the cache refresh flag) must not be.
type Args struct {
	parts map[string]string
}

// NewArgs returns an empty argument set.
func NewArgs() *Args {
	return &Args{parts: make(map[string]string)}
}

// Str adds a string argument.
func (a *Args) Str(key, val string) *Args {
	a.parts[key] = fmt.Sprintf("%q", val)
	return a
}

// Int adds an integer argument.
func (a *Args) Int(key string, val int) *Args {
	a.parts[key] = fmt.Sprintf("%d", val)
	return a
}

// Float adds a float argument.
func (a *Args) Float(key string, val float64) *Args {
	a.parts[key] = fmt.Sprintf("%g", val)
	return a
}

// Bool adds a boolean argument.
func (a *Args) Bool(key string, val bool) *Args {
	a.parts[key] = fmt.Sprintf("%t", val)
	return a
}

// Strs adds a list-of-strings argument, order-sensitive.
func (a *Args) Strs(key string, vals []string) *Args {
	quoted := make([]string, len(vals))
	for i, v := range vals {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	a.parts[key] = "[" + strings.Join(quoted, ",") + "]"
	return a
}

// File adds a file argument as path plus content hash. Two files with the
// same bytes at different paths are different inputs, and the same path with
// changed bytes must miss the cache, so both components participate. A
// missing file contributes its path alone.
func (a *Args) File(key, path string) *Args {
	a.parts[key] = fileToken(path)
	return a
}

// Files adds an ordered list of file arguments.
func (a *Args) Files(key string, paths []string) *Args {
	tokens := make([]string, len(paths))
	for i, p := range paths {
		tokens[i] = fileToken(p)
	}
	a.parts[key] = "[" + strings.Join(tokens, ",") + "]"
	return a
}

// Bytes adds a raw byte argument by content hash.
func (a *Args) Bytes(key string, data []byte) *Args {
	sum := sha256.Sum256(data)
	a.parts[key] = "bytes:" + hex.EncodeToString(sum[:])
	return a
}

func fileToken(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "path:" + path
	}
	sum := sha256.Sum256(data)
	return "path:" + path + ":" + hex.EncodeToString(sum[:])
}

// Key derives the cache key for an operation and its arguments: a sha256
// over the operation name and the canonically ordered argument tokens.
func Key(operation string, args *Args) string {
	pieces := []string{operation}
	if args != nil {
		keys := make([]string, 0, len(args.parts))
		for k := range args.parts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pieces = append(pieces, k+"="+args.parts[k])
		}
	}
	sum := sha256.Sum256([]byte(strings.Join(pieces, "|")))
	return hex.EncodeToString(sum[:])
}
