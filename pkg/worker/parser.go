package worker

import (
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

const (
	BeginMarker = "RESULT_BEGIN"
	EndMarker   = "RESULT_END"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Parse extracts the first marker-delimited result block from the worker's
// combined output and decodes it. Later blocks are ignored.
func Parse(output string) (RawResult, error) {
	block, err := findBlock(output)
	if err != nil {
		return RawResult{}, &MalformedOutputError{Output: output, Err: err}
	}

	result, err := decodeBlock(block)
	if err != nil {
		return RawResult{}, &MalformedOutputError{Output: output, Err: err}
	}

	return result, nil
}

func findBlock(output string) (string, error) {
	begin := strings.Index(output, BeginMarker)
	if begin == -1 {
		return "", errors.New("result begin marker not found")
	}

	rest := output[begin+len(BeginMarker):]
	end := strings.Index(rest, EndMarker)
	if end == -1 {
		return "", errors.New("result end marker not found")
	}

	block := strings.TrimSpace(rest[:end])
	if block == "" {
		return "", errors.New("result block is empty")
	}

	return block, nil
}

func decodeBlock(block string) (RawResult, error) {
	var result RawResult
	if err := json.UnmarshalFromString(block, &result); err != nil {
		return RawResult{}, fmt.Errorf("decode result block: %w", err)
	}

	if strings.TrimSpace(result.ResultImagePath) == "" {
		return RawResult{}, errors.New("result_image_path is missing")
	}

	if result.Detections == nil {
		result.Detections = []RawDetection{}
	}

	for i, d := range result.Detections {
		if d.Confidence < 0 || d.Confidence > 1 {
			return RawResult{}, fmt.Errorf("detection %d: confidence %v outside [0,1]", i, d.Confidence)
		}
		if len(d.BoundingBox) != 4 {
			return RawResult{}, fmt.Errorf("detection %d: bbox has %d coordinates, want 4", i, len(d.BoundingBox))
		}
	}

	return result, nil
}
