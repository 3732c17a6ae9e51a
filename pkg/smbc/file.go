package smbc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"os"
)

// chunkSize is the read size used by Chunks.
const chunkSize = 2048

// File is an open remote file with a local offset. A File must not be used
// from more than one goroutine at a time.
type File struct {
	c     *Context
	sess  *session
	h     handle
	id    uint64
	uri   string
	dev   uint64
	flags int

	offset int64
	closed bool
}

// URI returns the URI the file was opened with.
func (f *File) URI() string { return f.uri }

func (f *File) check(op string) error {
	if f.closed {
		return newErr(op, f.uri, InvalidArgument, ErrClosed)
	}
	if f.c.conns.isClosed() {
		return newErr(op, f.uri, Fault, ErrContextClosed)
	}
	return nil
}

// Read reads up to n bytes at the current offset. n == 0 reads everything
// up to end of file. At end of file it returns an empty slice and nil.
func (f *File) Read(ctx context.Context, n int) ([]byte, error) {
	if err := f.check("read"); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, newErr("read", f.uri, InvalidArgument, fmt.Errorf("negative count %d", n))
	}
	ctx, cancel := f.c.opContext(ctx)
	defer cancel()

	if n == 0 {
		info, err := f.h.Stat(ctx)
		if err != nil {
			return nil, wrapErr("read", f.uri, err)
		}
		if info.Size <= f.offset {
			return []byte{}, nil
		}
		n = int(info.Size - f.offset)
	}

	buf := make([]byte, n)
	total := 0
	for total < n {
		got, err := f.h.ReadAt(ctx, buf[total:], f.offset)
		total += got
		f.offset += int64(got)
		if errors.Is(err, io.EOF) || (err == nil && got == 0) {
			break
		}
		if err != nil {
			return nil, wrapErr("read", f.uri, err)
		}
	}
	return buf[:total], nil
}

// ReadBuf fills p from the current offset and returns io.EOF at end of
// file.
func (f *File) ReadBuf(ctx context.Context, p []byte) (int, error) {
	if err := f.check("read"); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	ctx, cancel := f.c.opContext(ctx)
	defer cancel()

	n, err := f.h.ReadAt(ctx, p, f.offset)
	f.offset += int64(n)
	if errors.Is(err, io.EOF) {
		if n > 0 {
			return n, nil
		}
		return 0, io.EOF
	}
	if err != nil {
		return n, wrapErr("read", f.uri, err)
	}
	return n, nil
}

// Reader returns an io.Reader reading from the current offset with ctx.
func (f *File) Reader(ctx context.Context) io.Reader {
	return readerFunc(func(p []byte) (int, error) { return f.ReadBuf(ctx, p) })
}

type readerFunc func([]byte) (int, error)

func (r readerFunc) Read(p []byte) (int, error) { return r(p) }

// Write writes p at the current offset, or at end of file for files opened
// with os.O_APPEND, and returns the number of bytes written.
func (f *File) Write(ctx context.Context, p []byte) (int, error) {
	if err := f.check("write"); err != nil {
		return 0, err
	}
	ctx, cancel := f.c.opContext(ctx)
	defer cancel()

	if f.flags&os.O_APPEND != 0 {
		info, err := f.h.Stat(ctx)
		if err != nil {
			return 0, wrapErr("write", f.uri, err)
		}
		f.offset = info.Size
	}
	if f.offset > math.MaxInt64-int64(len(p)) {
		return 0, newErr("write", f.uri, Overflow, fmt.Errorf("offset %d overflows", f.offset))
	}

	total := 0
	for total < len(p) {
		n, err := f.h.WriteAt(ctx, p[total:], f.offset)
		total += n
		f.offset += int64(n)
		if err != nil {
			return total, wrapErr("write", f.uri, err)
		}
		if n == 0 {
			return total, newErr("write", f.uri, NoSpace, io.ErrShortWrite)
		}
	}
	return total, nil
}

// Writer returns an io.Writer writing at the current offset with ctx.
func (f *File) Writer(ctx context.Context) io.Writer {
	return writerFunc(func(p []byte) (int, error) { return f.Write(ctx, p) })
}

type writerFunc func([]byte) (int, error)

func (w writerFunc) Write(p []byte) (int, error) { return w(p) }

// Seek moves the offset and returns the new one. whence is io.SeekStart,
// io.SeekCurrent or io.SeekEnd.
func (f *File) Seek(ctx context.Context, offset int64, whence int) (int64, error) {
	if err := f.check("seek"); err != nil {
		return 0, err
	}
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.offset
	case io.SeekEnd:
		ctx, cancel := f.c.opContext(ctx)
		defer cancel()
		info, err := f.h.Stat(ctx)
		if err != nil {
			return 0, wrapErr("seek", f.uri, err)
		}
		base = info.Size
	default:
		return 0, newErr("seek", f.uri, InvalidArgument, fmt.Errorf("bad whence %d", whence))
	}
	if (offset > 0 && base > math.MaxInt64-offset) || base+offset < 0 {
		return 0, newErr("seek", f.uri, Overflow, fmt.Errorf("offset %d from %d out of range", offset, base))
	}
	f.offset = base + offset
	return f.offset, nil
}

// Tell returns the current offset.
func (f *File) Tell() (int64, error) {
	if err := f.check("tell"); err != nil {
		return 0, err
	}
	return f.offset, nil
}

// Fstat returns metadata for the open file.
func (f *File) Fstat(ctx context.Context) (*Stat, error) {
	if err := f.check("fstat"); err != nil {
		return nil, err
	}
	ctx, cancel := f.c.opContext(ctx)
	defer cancel()
	info, err := f.h.Stat(ctx)
	if err != nil {
		return nil, wrapErr("fstat", f.uri, err)
	}
	return statFromInfo(info, f.dev), nil
}

// Ftruncate sets the file size. The offset is left unchanged.
func (f *File) Ftruncate(ctx context.Context, size int64) error {
	if err := f.check("ftruncate"); err != nil {
		return err
	}
	if size < 0 {
		return newErr("ftruncate", f.uri, InvalidArgument, fmt.Errorf("negative size %d", size))
	}
	ctx, cancel := f.c.opContext(ctx)
	defer cancel()
	return wrapErr("ftruncate", f.uri, f.h.Truncate(ctx, size))
}

// Chunks iterates over the rest of the file in small reads. Iteration
// stops at end of file or after yielding an error.
func (f *File) Chunks(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			b, err := f.Read(ctx, chunkSize)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(b) == 0 {
				return
			}
			if !yield(b, nil) {
				return
			}
		}
	}
}

// Close releases the remote handle. Closing twice is a no-op.
func (f *File) Close(ctx context.Context) error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.sess.untrack(f.id)
	defer f.c.conns.release(f.sess)
	if f.c.conns.isClosed() {
		return nil
	}
	ctx, cancel := f.c.opContext(ctx)
	defer cancel()
	return wrapErr("close", f.uri, f.h.Close(ctx))
}
