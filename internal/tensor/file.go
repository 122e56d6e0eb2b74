package tensor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

// ErrBadFile reports a raw f32 file whose size is not a whole number of
// elements or does not match the requested shape.
var ErrBadFile = errors.New("malformed f32 file")

// ReadFile loads a headerless little-endian float32 file. The file is mapped
// read-only when possible and copied out, so the mapping never outlives the
// call.
func ReadFile(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := stat.Size()
	if size%4 != 0 {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrBadFile, path, size)
	}
	if size == 0 {
		return []float32{}, nil
	}
	if size > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: %s is too large", ErrBadFile, path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		out := decodeF32(data)
		if err := unix.Munmap(data); err != nil {
			return nil, err
		}
		return out, nil
	}

	// Fallback for filesystems without mmap support.
	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return decodeF32(buf), nil
}

// ReadTensor loads path as a packed f32 tensor of the given shape.
func ReadTensor(path, name string, ne0, ne1, ne2, ne3 int64) (*Tensor, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if want := ne0 * ne1 * ne2 * ne3; int64(len(data)) != want {
		return nil, fmt.Errorf("%w: %s holds %d elements, shape needs %d", ErrBadFile, path, len(data), want)
	}
	return FromData(name, data, ne0, ne1, ne2, ne3), nil
}

// WriteFile stores data as headerless little-endian float32.
func WriteFile(path string, data []float32) error {
	buf := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return os.WriteFile(path, buf, 0o644)
}

func decodeF32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}
