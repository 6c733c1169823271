package service

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/rs/zerolog"
)

type fakeDetector struct {
	out *rekognition.DetectTextOutput
	err error
}

func (f *fakeDetector) DetectText(context.Context, *rekognition.DetectTextInput, ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error) {
	return f.out, f.err
}

func detection(text string, conf float32, typ types.TextTypes) types.TextDetection {
	return types.TextDetection{DetectedText: aws.String(text), Confidence: aws.Float32(conf), Type: typ}
}

func TestRecognizePlate(t *testing.T) {
	det := &fakeDetector{out: &rekognition.DetectTextOutput{TextDetections: []types.TextDetection{
		detection("PARKING", 99, types.TextTypesLine),
		detection("29A-123.45", 91, types.TextTypesLine),
		detection("51g 12345", 95, types.TextTypesWord),
	}}}
	svc := NewLPRService(det, zerolog.Nop())

	plate, conf, err := svc.RecognizePlate(context.Background(), []byte("img"))
	if err != nil {
		t.Fatal(err)
	}
	if plate != "51G12345" || conf != 95 {
		t.Errorf("plate = %s conf = %v", plate, conf)
	}
}

func TestRecognizePlateErrors(t *testing.T) {
	none := NewLPRService(&fakeDetector{out: &rekognition.DetectTextOutput{TextDetections: []types.TextDetection{
		detection("HELLO", 99, types.TextTypesLine),
	}}}, zerolog.Nop())
	if _, _, err := none.RecognizePlate(context.Background(), nil); !errors.Is(err, ErrPlateNotFound) {
		t.Errorf("err = %v, want ErrPlateNotFound", err)
	}

	failing := NewLPRService(&fakeDetector{err: errors.New("throttled")}, zerolog.Nop())
	if _, _, err := failing.RecognizePlate(context.Background(), nil); err == nil {
		t.Errorf("expected error")
	}

	disabled := NewLPRService(nil, zerolog.Nop())
	if disabled.Enabled() {
		t.Errorf("nil detector should be disabled")
	}
	if _, _, err := disabled.RecognizePlate(context.Background(), nil); err == nil {
		t.Errorf("expected error when disabled")
	}
}
