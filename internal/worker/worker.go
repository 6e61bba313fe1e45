package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"

	"github.com/andresmejia3/hyperredact/internal/utils" // Using the SafeCommand wrapper
	"golang.org/x/image/bmp"
)

// Status bytes leading every response body.
const (
	StatusOK    byte = 0
	StatusError byte = 1
)

// maxMessage caps the declared length of a single message.
const maxMessage = 256 << 20

// DetectorProcess is an external detection engine speaking the worker protocol:
//
//	request:  [u32 len][i32 minNeighbors][BMP image]           on the child's stdin
//	response: [u32 len][status][u32 n][n * (x,y,w,h) i32]      on FD 3
//	          [u32 len][status=1][u32 msgLen][msg]             on failure
type DetectorProcess struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
}

// Start launches command (argv form) with the response pipe attached as FD 3.
func Start(ctx context.Context, id int, command []string) (*DetectorProcess, error) {
	if len(command) == 0 {
		return nil, errors.New("empty worker command")
	}
	proc := utils.NewSafeCommand(ctx, command[0], command[1:]...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	proc.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := proc.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := proc.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &DetectorProcess{
		ID:       id,
		Cmd:      proc,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

// Detect sends img to the worker and returns the rectangles it found, in img's
// coordinate space.
func (w *DetectorProcess) Detect(img image.Image, minNeighbors int) ([]image.Rectangle, error) {
	req, err := EncodeRequest(img, minNeighbors)
	if err != nil {
		return nil, err
	}
	body, err := w.Communicate(req)
	if err != nil {
		return nil, fmt.Errorf("worker %d: %w", w.ID, err)
	}
	rects, err := DecodeResponse(body)
	if err != nil {
		return nil, err
	}
	off := img.Bounds().Min
	for i := range rects {
		rects[i] = rects[i].Add(off)
	}
	return rects, nil
}

// Communicate performs one framed round trip.
func (w *DetectorProcess) Communicate(data []byte) ([]byte, error) {
	if err := WriteFrame(w.Stdin, data); err != nil {
		return nil, err
	}
	return ReadFrame(w.DataPipe)
}

// Close ends the session: the worker sees EOF on stdin and exits.
func (w *DetectorProcess) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	return w.Cmd.Wait()
}

// WriteFrame writes data with its big-endian length header.
func WriteFrame(dst io.Writer, data []byte) error {
	if err := binary.Write(dst, binary.BigEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err := dst.Write(data)
	return err
}

// ReadFrame reads one length-prefixed message.
func ReadFrame(src io.Reader) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(src, header); err != nil {
		return nil, err // a crashed worker surfaces here
	}
	n := binary.BigEndian.Uint32(header)
	if n > maxMessage {
		return nil, fmt.Errorf("message length %d exceeds limit", n)
	}
	body := make([]byte, n)
	_, err := io.ReadFull(src, body)
	return body, err
}

// EncodeRequest builds a request body: the neighbour threshold then the image as BMP.
func EncodeRequest(img image.Image, minNeighbors int) ([]byte, error) {
	// The BMP encoder assumes an origin-based pixel buffer.
	if b := img.Bounds(); b.Min != (image.Point{}) {
		rebased := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rebased, rebased.Bounds(), img, b.Min, draw.Src)
		img = rebased
	}
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, int32(minNeighbors))
	if err := bmp.Encode(buf, img); err != nil {
		return nil, fmt.Errorf("encode region: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRequest is the worker-side inverse of EncodeRequest.
func DecodeRequest(body []byte) (image.Image, int, error) {
	if len(body) < 4 {
		return nil, 0, errors.New("short request")
	}
	minNeighbors := int(int32(binary.BigEndian.Uint32(body[:4])))
	img, err := bmp.Decode(bytes.NewReader(body[4:]))
	if err != nil {
		return nil, 0, fmt.Errorf("decode region: %w", err)
	}
	return img, minNeighbors, nil
}

// EncodeResponse serializes a successful detection.
func EncodeResponse(rects []image.Rectangle) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(StatusOK)
	binary.Write(buf, binary.BigEndian, uint32(len(rects)))
	for _, r := range rects {
		binary.Write(buf, binary.BigEndian, [4]int32{int32(r.Min.X), int32(r.Min.Y), int32(r.Dx()), int32(r.Dy())})
	}
	return buf.Bytes()
}

// EncodeError serializes a worker-side failure.
func EncodeError(err error) []byte {
	msg := err.Error()
	buf := new(bytes.Buffer)
	buf.WriteByte(StatusError)
	binary.Write(buf, binary.BigEndian, uint32(len(msg)))
	buf.WriteString(msg)
	return buf.Bytes()
}

// DecodeResponse parses a response body into rectangles.
func DecodeResponse(body []byte) ([]image.Rectangle, error) {
	r := bytes.NewReader(body)
	status, err := r.ReadByte()
	if err != nil {
		return nil, errors.New("empty response")
	}

	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("truncated response: %w", err)
	}

	if status != StatusOK {
		msg := make([]byte, n)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("truncated error message: %w", err)
		}
		return nil, fmt.Errorf("detection worker error: %s", msg)
	}

	if int64(n)*16 != int64(r.Len()) {
		return nil, fmt.Errorf("response declares %d boxes but carries %d bytes", n, r.Len())
	}
	rects := make([]image.Rectangle, 0, n)
	for i := uint32(0); i < n; i++ {
		var q [4]int32
		if err := binary.Read(r, binary.BigEndian, &q); err != nil {
			return nil, err
		}
		rects = append(rects, image.Rect(int(q[0]), int(q[1]), int(q[0]+q[2]), int(q[1]+q[3])))
	}
	return rects, nil
}

// DetectFunc is the engine a served worker runs per request.
type DetectFunc func(img image.Image, minNeighbors int) ([]image.Rectangle, error)

// Serve answers requests from in on out until in reaches EOF. Detection
// failures are reported to the caller as error responses; pipe failures end
// the loop.
func Serve(in io.Reader, out io.Writer, detect DetectFunc) error {
	for {
		body, err := ReadFrame(in)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		var resp []byte
		img, minNeighbors, err := DecodeRequest(body)
		if err == nil {
			var rects []image.Rectangle
			if rects, err = detect(img, minNeighbors); err == nil {
				resp = EncodeResponse(rects)
			}
		}
		if err != nil {
			resp = EncodeError(err)
		}
		if err := WriteFrame(out, resp); err != nil {
			return err
		}
	}
}
