package pose

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"

	_ "image/jpeg"
)

// ONNX pose model geometry. The model takes a square RGB image and emits
// one row of (x, y, z, visibility, presence) per landmark, with x/y in
// input-pixel coordinates.
const (
	onnxInputSize       = 256
	onnxValuesPerPoint  = 5
	onnxOutputLandmarks = NumLandmarks
)

// ortInitOnce guards the process-global ONNX Runtime environment.
var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func initOrtEnvironment() error {
	ortInitOnce.Do(func() {
		if libPath := os.Getenv("ONNXRUNTIME_SHARED_LIB"); libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// ONNXEngine implements Engine using an in-process ONNX Runtime session.
type ONNXEngine struct {
	config Config

	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	started bool
}

// NewONNXEngine creates a new ONNX engine for the given model path. The
// runtime session is not created until Initialize is called.
func NewONNXEngine(config Config) (*ONNXEngine, error) {
	if config.ModelPath == "" {
		return nil, fmt.Errorf("onnx engine requires a model path")
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	return &ONNXEngine{
		config: config,
	}, nil
}

// Initialize loads the model and creates the inference session. Idempotent
// after success; a failed attempt may be retried by calling Initialize again.
func (e *ONNXEngine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}
	return e.createSession()
}

func (e *ONNXEngine) createSession() error {
	if err := initOrtEnvironment(); err != nil {
		return fmt.Errorf("initialize onnx runtime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(runtime.NumCPU())
	options.SetInterOpNumThreads(runtime.NumCPU())

	inputShape := ort.NewShape(1, 3, onnxInputSize, onnxInputSize)
	outputShape := ort.NewShape(1, onnxOutputLandmarks*onnxValuesPerPoint)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		e.config.ModelPath,
		[]string{"input"},
		[]string{"landmarks"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return fmt.Errorf("create session: %w", err)
	}

	e.session = session
	e.input = inputTensor
	e.output = outputTensor
	e.started = true

	return nil
}

// Detect decodes the frame, runs the model, and converts the raw landmark
// rows into a Result with normalized coordinates.
func (e *ONNXEngine) Detect(frame Frame) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil, ErrEngineUninitialized
	}

	img, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode frame: %v", ErrInvalidInput, err)
	}

	resized := imaging.Resize(img, onnxInputSize, onnxInputSize, imaging.Linear)
	fillInputTensor(resized, e.input.GetData())

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: model inference: %v", ErrProcessingFailed, err)
	}

	landmarks, err := decodeLandmarks(e.output.GetData())
	if err != nil {
		return nil, err
	}

	if conf := meanConfidence(landmarks); conf < e.config.MinConfidence {
		return nil, fmt.Errorf("%w: no confident pose in frame (%.2f < %.2f)",
			ErrProcessingFailed, conf, e.config.MinConfidence)
	}

	return NewResult(landmarks, frame.TimestampMs), nil
}

// Close destroys the session and tensors.
func (e *ONNXEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil
	}

	e.session.Destroy()
	e.input.Destroy()
	e.output.Destroy()
	e.session = nil
	e.input = nil
	e.output = nil
	e.started = false

	return nil
}

// fillInputTensor writes the image into the tensor buffer in CHW order with
// pixel values scaled to [0,1].
func fillInputTensor(img *image.NRGBA, data []float32) {
	plane := onnxInputSize * onnxInputSize
	for y := 0; y < onnxInputSize; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < onnxInputSize; x++ {
			i := y*onnxInputSize + x
			data[i] = float32(row[x*4]) / 255.0
			data[plane+i] = float32(row[x*4+1]) / 255.0
			data[2*plane+i] = float32(row[x*4+2]) / 255.0
		}
	}
}

// decodeLandmarks converts raw model output rows into normalized landmarks.
func decodeLandmarks(raw []float32) ([]Landmark, error) {
	if len(raw) < onnxOutputLandmarks*onnxValuesPerPoint {
		return nil, fmt.Errorf("%w: output has %d values, want %d",
			ErrProcessingFailed, len(raw), onnxOutputLandmarks*onnxValuesPerPoint)
	}

	landmarks := make([]Landmark, onnxOutputLandmarks)
	for i := 0; i < onnxOutputLandmarks; i++ {
		row := raw[i*onnxValuesPerPoint:]
		landmarks[i] = Landmark{
			X:          float64(row[0]) / onnxInputSize,
			Y:          float64(row[1]) / onnxInputSize,
			Confidence: sigmoid(float64(row[3])),
			Type:       i,
		}
	}
	return landmarks, nil
}

func sigmoid(v float64) float64 {
	return 1.0 / (1.0 + math.Exp(-v))
}

// meanConfidence is the average per-landmark confidence, used as the
// whole-pose presence score.
func meanConfidence(landmarks []Landmark) float64 {
	if len(landmarks) == 0 {
		return 0
	}
	var sum float64
	for _, l := range landmarks {
		sum += l.Confidence
	}
	return sum / float64(len(landmarks))
}
