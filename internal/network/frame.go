package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Кадр на потоке: [длина uint32 big-endian][данные]
const lengthPrefix = 4

// ErrFrameTooLarge: длина кадра больше допустимой
var ErrFrameTooLarge = errors.New("network: кадр слишком большой")

// WriteFrame пишет кадр с префиксом длины одним вызовом Write
func WriteFrame(w io.Writer, frame []byte) error {
	buf := make([]byte, lengthPrefix+len(frame))
	binary.BigEndian.PutUint32(buf, uint32(len(frame)))
	copy(buf[lengthPrefix:], frame)
	_, err := w.Write(buf)
	return err
}

// ReadFrame читает один кадр. Кадры длиннее max отвергаются.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	var header [lengthPrefix]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if int64(n) > int64(max) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, max)
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(r, frame); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return frame, nil
}
