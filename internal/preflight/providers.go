package preflight

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Aman-CERP/chatmydocs/internal/config"
	"github.com/Aman-CERP/chatmydocs/internal/lifecycle"
)

// ModelRef names a model that must be installed on an Ollama host.
type ModelRef struct {
	Role  string
	Host  string
	Model string
}

// OllamaModels lists the models the configuration expects Ollama to serve.
func OllamaModels(cfg *config.Config) []ModelRef {
	var refs []ModelRef
	if strings.EqualFold(cfg.Embeddings.Provider, "ollama") {
		refs = append(refs, ModelRef{Role: "embeddings", Host: cfg.Embeddings.Host, Model: cfg.Embeddings.Model})
	}
	if strings.EqualFold(cfg.Generation.Provider, "ollama") {
		refs = append(refs, ModelRef{Role: "generation", Host: cfg.Generation.Host, Model: cfg.Generation.Model})
	}
	return refs
}

// CheckEmbeddings verifies the embedding provider can serve requests.
func (c *Checker) CheckEmbeddings(ctx context.Context) CheckResult {
	e := c.cfg.Embeddings
	switch strings.ToLower(e.Provider) {
	case "static":
		return CheckResult{
			Name:     "embeddings",
			Status:   StatusWarn,
			Message:  "static embeddings (hashing only, no semantic similarity)",
			Details:  "Set embeddings.provider to ollama or openai for semantic search",
			Required: true,
		}
	case "openai":
		return apiKeyResult("embeddings", e.Model, e.APIKey)
	default:
		return c.ollamaResult(ctx, ModelRef{Role: "embeddings", Host: e.Host, Model: e.Model})
	}
}

// CheckGeneration verifies the answer-generation provider can serve requests.
func (c *Checker) CheckGeneration(ctx context.Context) CheckResult {
	g := c.cfg.Generation
	if strings.EqualFold(g.Provider, "openai") {
		return apiKeyResult("generation", g.Model, g.APIKey)
	}
	return c.ollamaResult(ctx, ModelRef{Role: "generation", Host: g.Host, Model: g.Model})
}

func apiKeyResult(name, model, key string) CheckResult {
	if key == "" {
		return CheckResult{
			Name:     name,
			Status:   StatusFail,
			Message:  "openai: no API key configured",
			Details:  "Set OPENAI_API_KEY or " + name + ".api_key",
			Required: true,
		}
	}
	return CheckResult{
		Name:     name,
		Status:   StatusPass,
		Message:  "openai " + model,
		Required: true,
	}
}

func (c *Checker) ollamaResult(ctx context.Context, ref ModelRef) CheckResult {
	result := CheckResult{Name: ref.Role, Required: true}
	m := lifecycle.NewModelManager(ref.Host)

	err := m.EnsureModel(ctx, ref.Model, false, nil)
	var notFound *lifecycle.ModelNotFoundError
	switch {
	case err == nil:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("ollama %s at %s", ref.Model, m.Host())
	case errors.Is(err, lifecycle.ErrNotRunning):
		result.Status = StatusFail
		result.Message = fmt.Sprintf("ollama not reachable at %s", m.Host())
		result.Details = "Start it with 'ollama serve' or set " + ref.Role + ".host"
	case errors.As(err, &notFound):
		result.Status = StatusFail
		result.Message = fmt.Sprintf("model %s not installed", ref.Model)
		result.Details = "Run 'chatmydocs doctor --pull' or 'ollama pull " + ref.Model + "'"
	default:
		result.Status = StatusFail
		result.Message = err.Error()
	}
	return result
}

// CheckStore verifies the configured vector store backend.
func (c *Checker) CheckStore() CheckResult {
	s := c.cfg.Store
	switch strings.ToLower(s.Backend) {
	case config.BackendHosted:
		result := CheckResult{Name: "store", Required: true}
		switch {
		case s.Hosted.Host == "":
			result.Status = StatusFail
			result.Message = "hosted: store.hosted.host is not set"
		case s.Hosted.APIKey == "":
			result.Status = StatusFail
			result.Message = "hosted: no API key configured"
			result.Details = "Set CHATMYDOCS_HOSTED_API_KEY or store.hosted.api_key"
		default:
			result.Status = StatusPass
			result.Message = "hosted " + s.Hosted.Host
		}
		return result
	case config.BackendCluster:
		result := c.CheckWritePermissions("store", s.Cluster.Root)
		if result.Status == StatusPass {
			result.Message = fmt.Sprintf("cluster index %q in %s", s.Cluster.Index, s.Cluster.Root)
		}
		return result
	default:
		result := c.CheckWritePermissions("store", s.Local.Root)
		if result.Status == StatusPass {
			result.Message = "local " + s.Local.Root
		}
		return result
	}
}

// CheckBlob verifies where raw files, manifests and history are kept.
func (c *Checker) CheckBlob() CheckResult {
	b := c.cfg.Blob
	if strings.EqualFold(b.Backend, "s3") {
		result := CheckResult{Name: "blob", Required: true}
		if b.Bucket == "" {
			result.Status = StatusFail
			result.Message = "s3: blob.bucket is not set"
			return result
		}
		result.Status = StatusPass
		result.Message = "s3://" + b.Bucket
		if b.Endpoint != "" {
			result.Details = "endpoint " + b.Endpoint
		}
		return result
	}
	result := c.CheckWritePermissions("blob", b.Root)
	if result.Status == StatusPass {
		result.Message = "fs " + b.Root
	}
	return result
}

// CheckOCR probes the text-recognition service. Scanned PDFs and images
// cannot be ingested without it, so an outage is a warning only.
func (c *Checker) CheckOCR(ctx context.Context) CheckResult {
	result := CheckResult{Name: "ocr"}
	url := c.cfg.Ingestion.OCRURL
	if url == "" {
		result.Status = StatusPass
		result.Message = "disabled"
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("invalid url %s: %v", url, err)
		return result
	}
	resp, err := c.client.Do(req)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("not reachable at %s", url)
		result.Details = err.Error()
		return result
	}
	_ = resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s returned %d", url, resp.StatusCode)
		return result
	}
	result.Status = StatusPass
	result.Message = url
	return result
}
