package packager

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// archiveWriter appends regular files to an archive stream.
type archiveWriter interface {
	add(name string, info fs.FileInfo, r io.Reader, buf []byte) error
	Close() error
}

func newArchiveWriter(w io.Writer, f Format, l Level) (archiveWriter, error) {
	switch f {
	case Zip:
		return newZipWriter(w, l), nil
	case TarGz, TarZst:
		return newTarWriter(w, f, l)
	default:
		return nil, fmt.Errorf("unsupported archive format %q", f)
	}
}

type zipWriter struct {
	zw *zip.Writer
}

func newZipWriter(w io.Writer, l Level) *zipWriter {
	var lvl int
	switch l {
	case Fastest:
		lvl = flate.BestSpeed
	case Better:
		lvl = 6
	case Best:
		lvl = flate.BestCompression
	default:
		lvl = flate.DefaultCompression
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, lvl)
	})
	return &zipWriter{zw: zw}
}

func (z *zipWriter) add(name string, info fs.FileInfo, r io.Reader, buf []byte) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create zip header for %s: %w", name, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := z.zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("failed to create zip entry %s: %w", name, err)
	}
	if _, err := io.CopyBuffer(w, r, buf); err != nil {
		return fmt.Errorf("failed to write zip entry %s: %w", name, err)
	}
	return nil
}

func (z *zipWriter) Close() error {
	return z.zw.Close()
}

type tarWriter struct {
	tw         *tar.Writer
	compressor io.WriteCloser
}

func newTarWriter(w io.Writer, f Format, l Level) (*tarWriter, error) {
	var compressor io.WriteCloser
	if f == TarZst {
		var encoderLevel zstd.EncoderLevel
		switch l {
		case Fastest:
			encoderLevel = zstd.SpeedFastest
		case Better:
			encoderLevel = zstd.SpeedBetterCompression
		case Best:
			encoderLevel = zstd.SpeedBestCompression
		default:
			encoderLevel = zstd.SpeedDefault
		}
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(encoderLevel))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		compressor = zw
	} else {
		var lvl int
		switch l {
		case Fastest:
			lvl = pgzip.BestSpeed
		case Better:
			lvl = 6
		case Best:
			lvl = pgzip.BestCompression
		default:
			lvl = pgzip.DefaultCompression
		}
		gw, err := pgzip.NewWriterLevel(w, lvl)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		compressor = gw
	}
	return &tarWriter{tw: tar.NewWriter(compressor), compressor: compressor}, nil
}

func (t *tarWriter) add(name string, info fs.FileInfo, r io.Reader, buf []byte) error {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to create tar header for %s: %w", name, err)
	}
	hdr.Name = name
	// Owner names are meaningless on the deploy host.
	hdr.Uname, hdr.Gname = "", ""

	if err := t.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}
	if _, err := io.CopyBuffer(t.tw, r, buf); err != nil {
		return fmt.Errorf("failed to write tar entry %s: %w", name, err)
	}
	return nil
}

func (t *tarWriter) Close() error {
	if err := t.tw.Close(); err != nil {
		t.compressor.Close()
		return fmt.Errorf("tar writer close failed: %w", err)
	}
	return t.compressor.Close()
}
