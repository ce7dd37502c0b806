// Package dump implements the binary memory data-dump format used to preload
// and inspect memory contents: an 8-byte little-endian header length, a UTF-8
// JSON header naming the memories, then the raw payload bytes of every memory
// in declaration order.
package dump

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/loomhdl/loom/pkg/values"
)

// maxHeaderLen rejects absurd header lengths before allocating.
const maxHeaderLen = 1 << 24

// Dimensions is a memory's shape, one to four dimension sizes, rendered in
// the header as a tagged form: {"D1": n}, {"D2": [n, m]} and so on.
type Dimensions []uint64

// Size returns the flat element count.
func (d Dimensions) Size() uint64 {
	size := uint64(1)
	for _, n := range d {
		size *= n
	}
	return size
}

func (d Dimensions) MarshalJSON() ([]byte, error) {
	if len(d) < 1 || len(d) > 4 {
		return nil, fmt.Errorf("dump: %d dimensions, must be 1 to 4", len(d))
	}
	tag := fmt.Sprintf("D%d", len(d))
	if len(d) == 1 {
		return json.Marshal(map[string]uint64{tag: d[0]})
	}
	return json.Marshal(map[string][]uint64{tag: d})
}

func (d *Dimensions) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("dump: dimensions must have exactly one tag, got %d", len(raw))
	}
	for tag, body := range raw {
		var n int
		if _, err := fmt.Sscanf(tag, "D%d", &n); err != nil || n < 1 || n > 4 {
			return fmt.Errorf("dump: unknown dimensions tag %q", tag)
		}
		if n == 1 {
			var one uint64
			if err := json.Unmarshal(body, &one); err != nil {
				return err
			}
			*d = Dimensions{one}
			return nil
		}
		var many []uint64
		if err := json.Unmarshal(body, &many); err != nil {
			return err
		}
		if len(many) != n {
			return fmt.Errorf("dump: tag %q carries %d sizes", tag, len(many))
		}
		*d = many
	}
	return nil
}

// Memory declares one memory in the header.
type Memory struct {
	Name       string     `json:"name"`
	Width      uint       `json:"width"`
	Size       uint64     `json:"size"`
	Dimensions Dimensions `json:"dimensions"`
}

// ByteLen returns the payload bytes the memory occupies.
func (m *Memory) ByteLen() uint64 {
	return uint64(values.NumBytes(m.Width)) * m.Size
}

// Header is the JSON header of a dump file.
type Header struct {
	TopLevel string   `json:"top_level"`
	Memories []Memory `json:"memories"`
}

func (h *Header) validate() error {
	for i := range h.Memories {
		m := &h.Memories[i]
		if m.Width == 0 {
			return fmt.Errorf("dump: memory %q has zero width", m.Name)
		}
		if m.Size == 0 {
			return fmt.Errorf("dump: memory %q has zero size", m.Name)
		}
		if got := m.Dimensions.Size(); got != m.Size {
			return fmt.Errorf("dump: memory %q size %d does not match dimensions product %d", m.Name, m.Size, got)
		}
	}
	return nil
}

// Dump is a parsed data-dump: the header plus the concatenated payload.
type Dump struct {
	Header Header
	Data   []byte
}

// New starts an empty dump for the named top-level component.
func New(topLevel string) *Dump {
	return &Dump{Header: Header{TopLevel: topLevel}}
}

// Add declares a memory and appends its encoded contents. Each value takes
// ceil(width/8) little-endian bytes with the padding bits of the last byte
// masked to zero.
func (d *Dump) Add(name string, width uint, dims Dimensions, vs []values.Value) error {
	size := dims.Size()
	if uint64(len(vs)) != size {
		return fmt.Errorf("dump: memory %q declared %d elements, got %d values", name, size, len(vs))
	}
	for i, v := range vs {
		if !v.Defined() {
			return fmt.Errorf("dump: memory %q element %d is undefined", name, i)
		}
		if v.Width() != width {
			return fmt.Errorf("dump: memory %q element %d has width %d, want %d", name, i, v.Width(), width)
		}
		d.Data = append(d.Data, v.LEBytes()...)
	}
	d.Header.Memories = append(d.Header.Memories, Memory{
		Name: name, Width: width, Size: size, Dimensions: dims,
	})
	return nil
}

func (d *Dump) segment(name string) (*Memory, uint64, error) {
	off := uint64(0)
	for i := range d.Header.Memories {
		m := &d.Header.Memories[i]
		if m.Name == name {
			return m, off, nil
		}
		off += m.ByteLen()
	}
	return nil, 0, fmt.Errorf("dump: no memory %q", name)
}

// Values decodes the named memory's payload into one value per element.
func (d *Dump) Values(name string) ([]values.Value, error) {
	m, off, err := d.segment(name)
	if err != nil {
		return nil, err
	}
	stride := uint64(values.NumBytes(m.Width))
	if off+m.ByteLen() > uint64(len(d.Data)) {
		return nil, fmt.Errorf("dump: payload truncated for memory %q", name)
	}
	out := make([]values.Value, m.Size)
	for i := range out {
		b := d.Data[off+uint64(i)*stride : off+uint64(i+1)*stride]
		out[i] = values.FromLEBytes(b, m.Width)
	}
	return out, nil
}

// Write serializes the dump: header length, header, payload.
func (d *Dump) Write(w io.Writer) error {
	if err := d.Header.validate(); err != nil {
		return err
	}
	hdr, err := json.Marshal(&d.Header)
	if err != nil {
		return errors.Wrap(err, "encoding dump header")
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(hdr)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errors.Wrap(err, "writing dump header length")
	}
	if _, err := w.Write(hdr); err != nil {
		return errors.Wrap(err, "writing dump header")
	}
	if _, err := w.Write(d.Data); err != nil {
		return errors.Wrap(err, "writing dump payload")
	}
	return nil
}

// Read parses a serialized dump and validates its header against the payload
// it carries.
func Read(r io.Reader) (*Dump, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, errors.Wrap(err, "reading dump header length")
	}
	hdrLen := binary.LittleEndian.Uint64(lenBuf[:])
	if hdrLen > maxHeaderLen {
		return nil, fmt.Errorf("dump: header length %d exceeds limit", hdrLen)
	}
	hdr := make([]byte, hdrLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, errors.Wrap(err, "reading dump header")
	}
	d := &Dump{}
	if err := json.Unmarshal(hdr, &d.Header); err != nil {
		return nil, errors.Wrap(err, "decoding dump header")
	}
	if err := d.Header.validate(); err != nil {
		return nil, err
	}
	total := uint64(0)
	for i := range d.Header.Memories {
		total += d.Header.Memories[i].ByteLen()
	}
	d.Data = make([]byte, total)
	if _, err := io.ReadFull(r, d.Data); err != nil {
		return nil, errors.Wrap(err, "reading dump payload")
	}
	return d, nil
}
