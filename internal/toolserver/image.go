package toolserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Generated images are 1024x1024, matching what chat channels render well.
const (
	imageWidth  = 1024
	imageHeight = 1024
)

func (s *Server) generateImage(ctx context.Context, _ *mcp.CallToolRequest, in imageInput) (*mcp.CallToolResult, any, error) {
	if s.cfg.ImageAPIURL == "" || s.cfg.ImageAPIKey == "" {
		return errorResult("image generation credentials (IMAGE_API_URL, API_KEY) are missing."), nil, nil
	}
	if s.cfg.Images == nil {
		return errorResult("image store is not configured."), nil, nil
	}

	payload, err := json.Marshal(map[string]any{
		"prompt": in.Prompt,
		"width":  imageWidth,
		"height": imageHeight,
		"n":      1,
		"model":  s.cfg.ImageModel,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("encoding image request: %v", err)), nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.ImageAPIURL, bytes.NewReader(payload))
	if err != nil {
		return errorResult(fmt.Sprintf("building image request: %v", err)), nil, nil
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.ImageAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient().Do(req)
	if err != nil {
		return errorResult(fmt.Sprintf("calling image API: %v", err)), nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errorResult(fmt.Sprintf("image API returned %d: %s", resp.StatusCode, detail)), nil, nil
	}

	var body struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
			URL     string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return errorResult(fmt.Sprintf("decoding image response: %v", err)), nil, nil
	}
	if len(body.Data) == 0 {
		return errorResult("image content not found in response."), nil, nil
	}

	item := body.Data[0]
	if item.B64JSON == "" {
		if item.URL != "" {
			// Already hosted elsewhere; hand the link through as is.
			return textResult(fmt.Sprintf("![Generated Image](%s)", item.URL)), nil, nil
		}
		return errorResult("image content not found in response."), nil, nil
	}

	raw, err := base64.StdEncoding.DecodeString(item.B64JSON)
	if err != nil {
		return errorResult(fmt.Sprintf("decoding image payload: %v", err)), nil, nil
	}

	filename, err := s.cfg.Images.SaveJPEG(raw)
	if err != nil {
		return errorResult(fmt.Sprintf("saving generated image: %v", err)), nil, nil
	}

	url := s.cfg.Images.PublicURL(filename)
	s.logger.Info("image generated", "url", url)
	return textResult(fmt.Sprintf("![Generated Image](%s)", url)), nil, nil
}

func (s *Server) httpClient() *http.Client {
	if s.cfg.HTTPClient != nil {
		return s.cfg.HTTPClient
	}
	return &http.Client{Timeout: 120 * time.Second}
}
