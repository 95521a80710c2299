package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Image is one generated image with the provider's reported cost, when
// available.
type Image struct {
	Data []byte
	Cost float64
}

// ImageGenerator is the narrow interface to the image-generation
// collaborator.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, description string) (Image, error)
}

const (
	replicateAPIURL = "https://api.replicate.com/v1/predictions"
	replicatePoll   = 500 * time.Millisecond
)

// Replicate generates images through the Replicate predictions API: create
// a prediction, poll until it settles, download the first output.
type Replicate struct {
	httpClient *http.Client
	apiKey     string
	version    string

	// inputBuilder maps a scene description onto the model-specific input
	// object.
	inputBuilder func(description string) map[string]interface{}
}

// NewReplicate builds a client for one model version. inputBuilder may be
// nil for the common {"prompt": description} shape.
func NewReplicate(apiKey, version string, inputBuilder func(description string) map[string]interface{}) *Replicate {
	if inputBuilder == nil {
		inputBuilder = func(description string) map[string]interface{} {
			return map[string]interface{}{"prompt": description}
		}
	}
	return &Replicate{
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		apiKey:       apiKey,
		version:      version,
		inputBuilder: inputBuilder,
	}
}

type predictionStatus struct {
	Status string   `json:"status"`
	Output []string `json:"output"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
	Metrics struct {
		PredictTime float64 `json:"predict_time"`
	} `json:"metrics"`
}

// GenerateImage implements ImageGenerator.
func (r *Replicate) GenerateImage(ctx context.Context, description string) (Image, error) {
	body, err := json.Marshal(map[string]interface{}{
		"version": r.version,
		"input":   r.inputBuilder(description),
	})
	if err != nil {
		return Image{}, fmt.Errorf("marshal prediction request: %w", err)
	}

	var created predictionStatus
	if err := r.doJSON(ctx, http.MethodPost, replicateAPIURL, body, &created); err != nil {
		return Image{}, fmt.Errorf("create prediction: %w", err)
	}
	if created.URLs.Get == "" {
		return Image{}, fmt.Errorf("create prediction: missing get URL")
	}

	for {
		var status predictionStatus
		if err := r.doJSON(ctx, http.MethodGet, created.URLs.Get, nil, &status); err != nil {
			return Image{}, fmt.Errorf("poll prediction: %w", err)
		}

		switch status.Status {
		case "succeeded":
			if len(status.Output) == 0 {
				return Image{}, fmt.Errorf("prediction succeeded with no output image")
			}
			data, err := r.download(ctx, status.Output[0])
			if err != nil {
				return Image{}, err
			}
			slog.Debug("image generated",
				"bytes", len(data),
				"predict_time", status.Metrics.PredictTime)
			return Image{Data: data, Cost: status.Metrics.PredictTime}, nil

		case "failed", "canceled":
			return Image{}, fmt.Errorf("prediction %s", status.Status)

		default:
			timer := time.NewTimer(replicatePoll)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Image{}, ctx.Err()
			case <-timer.C:
			}
		}
	}
}

func (r *Replicate) doJSON(ctx context.Context, method, url string, body []byte, into interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %s", resp.Status, raw)
	}
	return json.Unmarshal(raw, into)
}

func (r *Replicate) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
