package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"strings"

	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
	"github.com/yungbote/candidate-intel-backend/internal/platform/pgvector"
	"github.com/yungbote/candidate-intel-backend/internal/platform/qdrant"
	"github.com/yungbote/candidate-intel-backend/internal/platform/vectorstore"
	"github.com/yungbote/candidate-intel-backend/internal/services"
)

var (
	newQdrantVectorStore = func(ctx context.Context, log *logger.Logger, cfg qdrant.Config) (vectorstore.VectorStore, error) {
		return qdrant.NewVectorStore(ctx, log, cfg)
	}
	newPGVectorStore = func(ctx context.Context, log *logger.Logger, cfg pgvector.Config) (vectorstore.VectorStore, func(), error) {
		s, err := pgvector.New(ctx, log, cfg)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	resolveQdrantConfig = qdrant.ResolveConfigFromEnv
)

type VectorProviderBootstrapErrorCode string

const (
	VectorProviderBootstrapErrorInvalidProvider    VectorProviderBootstrapErrorCode = "invalid_provider"
	VectorProviderBootstrapErrorMissingQdrantURL   VectorProviderBootstrapErrorCode = "missing_qdrant_url"
	VectorProviderBootstrapErrorInvalidQdrantURL   VectorProviderBootstrapErrorCode = "invalid_qdrant_url"
	VectorProviderBootstrapErrorMissingQdrantColl  VectorProviderBootstrapErrorCode = "missing_qdrant_collection"
	VectorProviderBootstrapErrorInvalidVectorDim   VectorProviderBootstrapErrorCode = "invalid_vector_dim"
	VectorProviderBootstrapErrorQdrantConfigFailed VectorProviderBootstrapErrorCode = "qdrant_config_failed"
	VectorProviderBootstrapErrorConnectFailed      VectorProviderBootstrapErrorCode = "connect_failed"
	VectorProviderBootstrapErrorProviderInitFailed VectorProviderBootstrapErrorCode = "provider_init_failed"
	VectorProviderBootstrapErrorDimensionMismatch  VectorProviderBootstrapErrorCode = "dimension_mismatch"
	VectorProviderBootstrapErrorVerificationFailed VectorProviderBootstrapErrorCode = "verification_failed"
)

type VectorProviderBootstrapError struct {
	Code     VectorProviderBootstrapErrorCode
	Provider string
	Cause    error
}

func (e *VectorProviderBootstrapError) Error() string {
	if e == nil {
		return "vector provider bootstrap failed"
	}
	return fmt.Sprintf("vector provider bootstrap failed (code=%s provider=%q): %v", e.Code, e.Provider, e.Cause)
}

func (e *VectorProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVectorStore builds the configured index, wraps it with metrics and
// verifies that it accepts vectors of the embedding dimension. The returned
// close func is never nil.
func resolveVectorStore(ctx context.Context, log *logger.Logger, cfg Config) (vectorstore.VectorStore, func(), error) {
	provider := string(cfg.VectorProvider)
	noop := func() {}
	log.Info("Selecting vector store provider", "provider", provider, "vector_dim", cfg.EmbeddingDim)

	var (
		vs      vectorstore.VectorStore
		closeFn = noop
		err     error
	)
	switch cfg.VectorProvider {
	case VectorProviderMemory:
		vs, err = vectorstore.NewMemoryStore(cfg.EmbeddingDim)
	case VectorProviderQdrant:
		var qcfg qdrant.Config
		qcfg, err = resolveQdrantConfig(cfg.EmbeddingDim)
		if err == nil {
			vs, err = newQdrantVectorStore(ctx, log, qcfg)
		}
	case VectorProviderPGVector:
		var c func()
		vs, c, err = newPGVectorStore(ctx, log, pgvector.Config{DSN: cfg.PGVectorDSN, VectorDim: cfg.EmbeddingDim})
		if c != nil {
			closeFn = c
		}
	default:
		err = &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorInvalidProvider,
			Provider: provider,
			Cause:    fmt.Errorf("unsupported vector provider %q", provider),
		}
	}
	if err != nil {
		classified := classifyVectorProviderBootstrapError(provider, err)
		log.Error("Vector store provider bootstrap failed",
			"provider", provider,
			"error_code", vectorProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, noop, classified
	}

	vs = instrumentVectorStore(provider, vs)
	if err := verifyVectorStore(ctx, provider, vs, cfg.EmbeddingDim); err != nil {
		closeFn()
		log.Error("Vector store verification failed", "provider", provider, "error", err)
		return nil, noop, err
	}
	return vs, closeFn, nil
}

// verifyVectorStore issues one probe query at the embedding dimension. An
// index built for another dimension surfaces here instead of on the first
// recruiter search.
func verifyVectorStore(ctx context.Context, provider string, vs vectorstore.VectorStore, dim int) error {
	probe := make([]float32, dim)
	if dim > 0 {
		probe[0] = 1
	}
	_, err := vs.QueryMatches(ctx, services.CandidateNamespace, probe, 1, 1, nil)
	if err == nil {
		return nil
	}
	if errors.Is(err, vectorstore.ErrDimensionMismatch) {
		return &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorDimensionMismatch,
			Provider: provider,
			Cause:    fmt.Errorf("%w: %w", services.ErrSearchMisconfiguration, err),
		}
	}
	return &VectorProviderBootstrapError{
		Code:     VectorProviderBootstrapErrorVerificationFailed,
		Provider: provider,
		Cause:    err,
	}
}

func classifyVectorProviderBootstrapError(provider string, err error) error {
	var already *VectorProviderBootstrapError
	if errors.As(err, &already) {
		return err
	}
	wrap := func(code VectorProviderBootstrapErrorCode) error {
		return &VectorProviderBootstrapError{Code: code, Provider: provider, Cause: err}
	}

	var cfgErr *qdrant.ConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case qdrant.ConfigErrorMissingURL:
			return wrap(VectorProviderBootstrapErrorMissingQdrantURL)
		case qdrant.ConfigErrorInvalidURL:
			return wrap(VectorProviderBootstrapErrorInvalidQdrantURL)
		case qdrant.ConfigErrorMissingCollection:
			return wrap(VectorProviderBootstrapErrorMissingQdrantColl)
		case qdrant.ConfigErrorInvalidVectorDim:
			return wrap(VectorProviderBootstrapErrorInvalidVectorDim)
		default:
			return wrap(VectorProviderBootstrapErrorQdrantConfigFailed)
		}
	}
	var urlErr *neturl.Error
	if errors.As(err, &urlErr) {
		return wrap(VectorProviderBootstrapErrorConnectFailed)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return wrap(VectorProviderBootstrapErrorConnectFailed)
	}
	errLower := strings.ToLower(err.Error())
	if strings.Contains(errLower, "ready check failed") || strings.Contains(errLower, "connection refused") {
		return wrap(VectorProviderBootstrapErrorConnectFailed)
	}

	return wrap(VectorProviderBootstrapErrorProviderInitFailed)
}

func vectorProviderBootstrapErrorCode(err error) VectorProviderBootstrapErrorCode {
	var bootstrapErr *VectorProviderBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return VectorProviderBootstrapErrorConnectFailed
}
