package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/rs/zerolog"
)

var ErrPlateNotFound = errors.New("không nhận dạng được biển số từ ảnh")

// TextDetector là phần của rekognition.Client mà LPRService dùng.
type TextDetector interface {
	DetectText(ctx context.Context, params *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

// Biển số VN dạng 29A12345, 51G-123.45 (đã bỏ khoảng trắng và dấu chấm).
var plateRegex = regexp.MustCompile(`^[0-9]{2}[A-Z]{1,2}[0-9]?-?[0-9]{4,5}$`)

type LPRService struct {
	detector TextDetector
	log      zerolog.Logger
}

func NewLPRService(detector TextDetector, log zerolog.Logger) *LPRService {
	return &LPRService{detector: detector, log: log.With().Str("component", "lpr_service").Logger()}
}

func (s *LPRService) Enabled() bool {
	return s != nil && s.detector != nil
}

// RecognizePlate gọi Rekognition DetectText và chọn dòng khớp dạng biển số có độ tin cậy cao nhất.
func (s *LPRService) RecognizePlate(ctx context.Context, imageBytes []byte) (string, float32, error) {
	if !s.Enabled() {
		return "", 0, fmt.Errorf("Rekognition client chưa được khởi tạo")
	}

	result, err := s.detector.DetectText(ctx, &rekognition.DetectTextInput{
		Image: &types.Image{Bytes: imageBytes},
	})
	if err != nil {
		return "", 0, fmt.Errorf("lỗi Rekognition: %w", err)
	}
	s.log.Debug().Int("detections", len(result.TextDetections)).Msg("Rekognition trả về kết quả")

	var (
		best    string
		maxConf float32
		seen    []string
	)
	for _, d := range result.TextDetections {
		if d.DetectedText == nil || d.Confidence == nil {
			continue
		}
		if d.Type != types.TextTypesLine && d.Type != types.TextTypesWord {
			continue
		}
		txt := normalizePlate(*d.DetectedText)
		seen = append(seen, txt)
		if plateRegex.MatchString(txt) && *d.Confidence > maxConf {
			maxConf = *d.Confidence
			best = txt
		}
	}
	if best == "" {
		return "", 0, fmt.Errorf("%w (văn bản: %s)", ErrPlateNotFound, strings.Join(seen, ", "))
	}
	s.log.Info().Str("plate", best).Float32("confidence", maxConf).Msg("Đã nhận dạng biển số")
	return best, maxConf, nil
}

func normalizePlate(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", ".", "").Replace(s)
}
