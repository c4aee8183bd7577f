package build

import (
	"encoding/base64"
	"encoding/binary"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Hasher accumulates the structural identity of a build. Every value is
// written with its length or tag so that adjacent fields cannot run into
// each other.
type Hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

func NewHasher() *Hasher {
	return &Hasher{d: xxhash.New()}
}

func (h *Hasher) WriteUint64(v uint64) {
	binary.BigEndian.PutUint64(h.buf[:], v)
	h.d.Write(h.buf[:])
}

func (h *Hasher) WriteInt(v int) { h.WriteUint64(uint64(v)) }

func (h *Hasher) WriteBool(v bool) {
	if v {
		h.WriteUint64(1)
	} else {
		h.WriteUint64(0)
	}
}

func (h *Hasher) WriteString(s string) {
	h.WriteInt(len(s))
	h.d.WriteString(s)
}

// WriteOptional writes s only when ok, tagged so that an unset value never
// collides with an empty one.
func (h *Hasher) WriteOptional(s string, ok bool) {
	h.WriteBool(ok)
	if ok {
		h.WriteString(s)
	}
}

// WriteStringMap writes m in key order.
func (h *Hasher) WriteStringMap(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	h.WriteInt(len(keys))
	for _, k := range keys {
		h.WriteString(k)
		h.WriteString(m[k])
	}
}

func (h *Hasher) Sum64() uint64 { return h.d.Sum64() }

// Token renders hash as a filesystem-safe string.
func Token(hash uint64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], hash)
	return strings.ReplaceAll(base64.StdEncoding.EncodeToString(b[:]), "/", "_")
}

// DirName is the working directory name of a build.
func DirName(name string, hash uint64) string {
	return "build_" + name + "_" + Token(hash)
}

// InstallDirName is the name of the directory a build without an install
// prefix installs into. It lives next to the working directory.
func InstallDirName(name string, hash uint64) string {
	return "install_" + name + "_" + Token(hash)
}

func identity(name string, source Source, installPrefix string, kind LibraryKind, steps []Step) uint64 {
	h := NewHasher()
	h.WriteString(name)
	source.Hash(h)
	h.WriteOptional(installPrefix, installPrefix != "")
	h.WriteUint64(uint64(kind))
	for i, step := range steps {
		h.WriteInt(i)
		h.WriteString(step.Name())
		step.Hash(h)
	}
	return h.Sum64()
}
