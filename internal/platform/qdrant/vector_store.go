package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/candidate-intel-backend/internal/platform/ctxutil"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
	"github.com/yungbote/candidate-intel-backend/internal/platform/vectorstore"
)

const (
	payloadNamespaceKey = "_ci_namespace"
	payloadVectorIDKey  = "_ci_vector_id"
	maxErrorBodyBytes   = 1024
)

var pointIDNamespaceUUID = uuid.MustParse("6b0f4f0e-7d0a-4c57-9a43-2f8c1f6d2a10")

type VectorStore struct {
	log      *logger.Logger
	cfg      Config
	baseURL  string
	nsPrefix string
	distance string
	http     *http.Client
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type qdrantSearchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// NewVectorStore validates cfg, checks the server is ready and makes sure the
// collection exists with the configured dimension.
func NewVectorStore(ctx context.Context, log *logger.Logger, cfg Config) (*VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	s := newVectorStore(log, cfg, &http.Client{Timeout: 10 * time.Second})
	if err := s.bootstrap(ctx); err != nil {
		return nil, err
	}
	log.Info(
		"Qdrant vector store selected",
		"provider", "qdrant",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"namespace_prefix", s.nsPrefix,
		"vector_dim", cfg.VectorDim,
		"distance", s.distance,
	)
	return s, nil
}

func newVectorStore(log *logger.Logger, cfg Config, hc *http.Client) *VectorStore {
	return &VectorStore{
		log:      log.With("service", "QdrantVectorStore"),
		cfg:      cfg,
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		nsPrefix: strings.TrimSpace(cfg.NamespacePrefix),
		http:     hc,
	}
}

func (s *VectorStore) Upsert(ctx context.Context, namespace string, vectors []vectorstore.Vector) error {
	const op = "upsert"
	if len(vectors) == 0 {
		return nil
	}
	qualifiedNS := s.qualifyNamespace(namespace)
	points := make([]map[string]any, 0, len(vectors))
	for _, v := range vectors {
		vectorID := strings.TrimSpace(v.ID)
		if vectorID == "" {
			return opErr(op, OperationErrorValidation, "vector id is required", nil)
		}
		if len(v.Values) != s.cfg.VectorDim {
			return opErr(op, OperationErrorDimensionMismatch,
				fmt.Sprintf("vector %q dimension mismatch: expected=%d got=%d", vectorID, s.cfg.VectorDim, len(v.Values)),
				vectorstore.ErrDimensionMismatch)
		}
		payload := make(map[string]any, len(v.Metadata)+2)
		for k, val := range v.Metadata {
			payload[k] = val
		}
		payload[payloadNamespaceKey] = qualifiedNS
		payload[payloadVectorIDKey] = vectorID
		points = append(points, map[string]any{
			"id":      s.pointID(qualifiedNS, vectorID),
			"vector":  v.Values,
			"payload": payload,
		})
	}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
}

// QueryMatches runs an HNSW search with ef = poolSize, so at most poolSize
// candidates are examined before the top topK are returned.
func (s *VectorStore) QueryMatches(ctx context.Context, namespace string, q []float32, topK, poolSize int, filter map[string]any) ([]vectorstore.VectorMatch, error) {
	const op = "query"
	if len(q) != s.cfg.VectorDim {
		return nil, opErr(op, OperationErrorDimensionMismatch,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(q)),
			vectorstore.ErrDimensionMismatch)
	}
	if topK <= 0 {
		topK = 10
	}
	if poolSize < topK {
		poolSize = topK
	}

	qualifiedNS := s.qualifyNamespace(namespace)
	qFilter, err := translateFilter(qualifiedNS, filter)
	if err != nil {
		s.log.Warn("qdrant query filter unsupported", "namespace", qualifiedNS, "error", err)
		return nil, err
	}

	req := map[string]any{
		"vector":       q,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
		"filter":       qFilter,
		"params":       map[string]any{"hnsw_ef": poolSize, "exact": false},
	}
	var rawResults []qdrantSearchResultItem
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), req, &rawResults); err != nil {
		return nil, err
	}

	out := make([]vectorstore.VectorMatch, 0, len(rawResults))
	for _, item := range rawResults {
		id := extractVectorID(item)
		if id == "" {
			continue
		}
		out = append(out, vectorstore.VectorMatch{ID: id, Score: s.normalizeScore(item.Score)})
	}
	vectorstore.SortMatches(out)
	return out, nil
}

func (s *VectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	const op = "delete"
	qualifiedNS := s.qualifyNamespace(namespace)
	pointIDs := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		vectorID := strings.TrimSpace(id)
		if vectorID == "" {
			continue
		}
		pid := s.pointID(qualifiedNS, vectorID)
		if _, ok := seen[pid]; ok {
			continue
		}
		seen[pid] = struct{}{}
		pointIDs = append(pointIDs, pid)
	}
	if len(pointIDs) == 0 {
		return nil
	}
	return s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/delete?wait=true"), map[string]any{"points": pointIDs}, nil)
}

type collectionInfo struct {
	Config struct {
		Params struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

func (s *VectorStore) bootstrap(ctx context.Context) error {
	const op = "bootstrap_verify"

	readyReq, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	readyResp, err := s.http.Do(readyReq)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = readyResp.Body.Close()
	if readyResp.StatusCode < 200 || readyResp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: readyResp.StatusCode,
			Message:    fmt.Sprintf("qdrant ready check returned status=%d", readyResp.StatusCode),
		}
	}

	var info collectionInfo
	err = s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &info)
	var opE *OperationError
	if errors.As(err, &opE) && opE.StatusCode == http.StatusNotFound && s.cfg.CreateIfMissing {
		if err := s.createCollection(ctx); err != nil {
			return err
		}
		s.distance = "Cosine"
		return nil
	}
	if err != nil {
		return err
	}

	size := info.Config.Params.Vectors.Size
	if size != s.cfg.VectorDim {
		return opErr(op, OperationErrorDimensionMismatch,
			fmt.Sprintf("qdrant collection %q vector size mismatch: expected=%d actual=%d", s.cfg.Collection, s.cfg.VectorDim, size),
			vectorstore.ErrDimensionMismatch)
	}
	s.distance = strings.TrimSpace(info.Config.Params.Vectors.Distance)
	return nil
}

func (s *VectorStore) createCollection(ctx context.Context) error {
	const op = "create_collection"
	body := map[string]any{
		"vectors": map[string]any{"size": s.cfg.VectorDim, "distance": "Cosine"},
	}
	if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath(""), body, nil); err != nil {
		return err
	}
	index := map[string]any{"field_name": payloadNamespaceKey, "field_schema": "keyword"}
	if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/index?wait=true"), index, nil); err != nil {
		return err
	}
	s.log.Info("qdrant collection created", "collection", s.cfg.Collection, "vector_dim", s.cfg.VectorDim)
	return nil
}

func (s *VectorStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: resp.StatusCode, Message: statusErr}
	}
	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}
	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func (s *VectorStore) qualifyNamespace(namespace string) string {
	ns := strings.TrimSpace(namespace)
	if ns == "" {
		return s.nsPrefix
	}
	if s.nsPrefix == "" {
		return ns
	}
	return s.nsPrefix + ":" + ns
}

func (s *VectorStore) pointID(qualifiedNS, vectorID string) string {
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(qualifiedNS+"|"+vectorID)).String()
}

func (s *VectorStore) collectionPath(suffix string) string {
	return "/collections/" + s.cfg.Collection + suffix
}

func extractVectorID(item qdrantSearchResultItem) string {
	if payloadID, ok := item.Payload[payloadVectorIDKey].(string); ok {
		if id := strings.TrimSpace(payloadID); id != "" {
			return id
		}
	}
	if len(item.ID) == 0 {
		return ""
	}
	var idString string
	if err := json.Unmarshal(item.ID, &idString); err == nil {
		return strings.TrimSpace(idString)
	}
	return strings.TrimSpace(string(item.ID))
}

func (s *VectorStore) normalizeScore(score float64) float64 {
	switch strings.ToLower(strings.TrimSpace(s.distance)) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1.0 / (1.0 + score)
	default:
		return score
	}
}
