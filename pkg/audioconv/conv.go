// Package audioconv decodes audio files into the mono 16 kHz float PCM the
// transcriber expects.
package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

const SampleRate = 16000

var ErrUnsupported = errors.New("audioconv: unsupported format")

type Options struct {
	// MaxSamples truncates the output, 0 keeps everything.
	MaxSamples int
}

// decoded is interleaved PCM straight out of a decoder.
type decoded struct {
	samples    []float32
	channels   int
	sampleRate int
}

func (d decoded) normalize(opt Options) []float32 {
	x := downmixInterleaved(d.samples, d.channels)
	x = resampleLinear(x, d.sampleRate, SampleRate)
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return x
}

// DecodeFile picks a decoder by extension, or by sniffing the header when
// the extension is unknown.
func DecodeFile(ctx context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return Decode(ctx, f, format, opt)
}

// Decode reads r as format: wav, mp3, ogg or oga. An empty or unknown format
// is detected from the stream.
func Decode(ctx context.Context, r io.ReadSeeker, format string, opt Options) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch format {
	case "wav", "mp3", "ogg", "oga":
	default:
		sniffed, err := sniff(r)
		if err != nil {
			return nil, err
		}
		format = sniffed
	}

	var (
		d   decoded
		err error
	)
	switch format {
	case "wav":
		d, err = decodeWAV(r)
	case "mp3":
		d, err = decodeMP3(r)
	default:
		d, err = decodeOgg(r)
	}
	if err != nil {
		return nil, fmt.Errorf("audioconv: %s: %w", format, err)
	}

	return d.normalize(opt), nil
}

func sniff(r io.ReadSeeker) (string, error) {
	magic, _ := bufio.NewReader(r).Peek(4)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	switch {
	case string(magic) == "RIFF":
		return "wav", nil
	case string(magic) == "OggS":
		return "ogg", nil
	case len(magic) >= 3 && (string(magic[:3]) == "ID3" || magic[0] == 0xFF && magic[1]&0xE0 == 0xE0):
		return "mp3", nil
	default:
		return "", ErrUnsupported
	}
}

func decodeWAV(r io.ReadSeeker) (decoded, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return decoded{}, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return decoded{}, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return decoded{}, errors.New("empty wav")
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}

	d := decoded{
		samples:    intSliceToFloat32(pb.Data, bd),
		channels:   1,
		sampleRate: 44100,
	}
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			d.channels = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			d.sampleRate = pb.Format.SampleRate
		}
	}
	return d, nil
}

func decodeMP3(r io.Reader) (decoded, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return decoded{}, err
	}

	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return decoded{}, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return decoded{}, err
	}

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	// go-mp3 always produces 16 bit stereo.
	return decoded{samples: int16SliceToFloat32(ints), channels: 2, sampleRate: sr}, nil
}

// decodeOgg tries Vorbis first and falls back to Opus.
func decodeOgg(r io.ReadSeeker) (decoded, error) {
	d, vorbisErr := decodeVorbis(r)
	if vorbisErr == nil {
		return d, nil
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return decoded{}, err
	}
	d, opusErr := decodeOpus(r)
	if opusErr != nil {
		return decoded{}, fmt.Errorf("neither vorbis (%v) nor opus: %w", vorbisErr, opusErr)
	}
	return d, nil
}

func decodeVorbis(r io.Reader) (decoded, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return decoded{}, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return decoded{}, errors.New("invalid vorbis stream")
	}
	return decoded{samples: pcm, channels: format.Channels, sampleRate: format.SampleRate}, nil
}

func decodeOpus(r io.ReadSeeker) (decoded, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return decoded{}, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	var (
		pcm []float32
		buf = make([]int16, 48_000*ch/2)
	)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm = append(pcm, int16SliceToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return decoded{}, err
		}
	}
	if len(pcm) == 0 {
		return decoded{}, errors.New("empty opus stream")
	}

	// Opus always decodes at 48 kHz.
	return decoded{samples: pcm, channels: ch, sampleRate: 48000}, nil
}
