package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyerfyer/chroma-admin/internal/chroma"
	"github.com/fyerfyer/chroma-admin/internal/embedding"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultNResults 每个查询默认返回的结果数
	DefaultNResults = 10
	// MaxNResults 每个查询最多返回的结果数
	MaxNResults = 100
)

// QueryInput 相似度查询参数
type QueryInput struct {
	Texts         []string
	NResults      int
	Where         map[string]interface{}
	WhereDocument map[string]interface{}
	Include       []chroma.Include
}

// QueryMatch 展开后的一条查询结果
type QueryMatch struct {
	Query    string                 `json:"query"`
	ID       string                 `json:"id"`
	Document string                 `json:"document,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Distance *float64               `json:"distance,omitempty"`
}

// QueryOutput 查询结果
type QueryOutput struct {
	Collection string       `json:"collection"`
	NResults   int          `json:"n_results"`
	Results    []QueryMatch `json:"results"`
}

// QueryService 查询服务
type QueryService struct {
	client   chroma.Client
	embedder embedding.Client
	logger   *logrus.Logger
}

// NewQueryService 创建查询服务
func NewQueryService(client chroma.Client, opts ...Option) *QueryService {
	o := newOptions(opts)
	return &QueryService{
		client:   client,
		embedder: o.embedder,
		logger:   o.logger,
	}
}

// Query 执行相似度查询，结果按查询顺序展开为一维列表
func (s *QueryService) Query(ctx context.Context, collection string, in QueryInput) (*QueryOutput, error) {
	texts := make([]string, 0, len(in.Texts))
	for _, t := range in.Texts {
		if strings.TrimSpace(t) != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: at least one query text is required", ErrInvalidInput)
	}

	n := in.NResults
	if n <= 0 {
		n = DefaultNResults
	}
	if n > MaxNResults {
		n = MaxNResults
	}

	include := in.Include
	if len(include) == 0 {
		include = []chroma.Include{chroma.IncludeDocuments, chroma.IncludeMetadatas, chroma.IncludeDistances}
	}

	col, err := s.client.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	req := chroma.QueryRequest{
		NResults:      n,
		Where:         in.Where,
		WhereDocument: in.WhereDocument,
		Include:       include,
	}
	if s.embedder != nil {
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		req.QueryEmbeddings = vectors
	} else {
		req.QueryTexts = texts
	}

	result, err := s.client.Query(ctx, col.ID, req)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	out := &QueryOutput{
		Collection: col.Name,
		NResults:   n,
		Results:    flatten(texts, result),
	}
	s.logger.WithFields(logrus.Fields{
		"collection": col.Name,
		"queries":    len(texts),
		"results":    len(out.Results),
	}).Debug("Query completed")
	return out, nil
}

// flatten 把按查询分组的结果展开
func flatten(texts []string, result *chroma.QueryResult) []QueryMatch {
	matches := []QueryMatch{}
	for q, ids := range result.IDs {
		query := ""
		if q < len(texts) {
			query = texts[q]
		}
		for i, id := range ids {
			m := QueryMatch{Query: query, ID: id}
			if q < len(result.Documents) && i < len(result.Documents[q]) {
				m.Document = result.Documents[q][i]
			}
			if q < len(result.Metadatas) && i < len(result.Metadatas[q]) {
				m.Metadata = result.Metadatas[q][i]
			}
			if q < len(result.Distances) && i < len(result.Distances[q]) {
				d := result.Distances[q][i]
				m.Distance = &d
			}
			matches = append(matches, m)
		}
	}
	return matches
}
