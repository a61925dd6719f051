package chroma

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// MemoryScheme 使用内存实现的服务地址前缀
const MemoryScheme = "memory://"

// MemoryClient 进程内的Client实现
// 用于开发和测试环境，不做持久化
type MemoryClient struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection // 名称 -> 集合
}

type memoryCollection struct {
	info    Collection
	order   []string // 按写入顺序保存的ID
	records map[string]*memoryRecord
}

type memoryRecord struct {
	document  string
	metadata  map[string]interface{}
	embedding []float32
}

var _ Client = (*MemoryClient)(nil)

// NewMemoryClient 创建内存客户端
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		collections: make(map[string]*memoryCollection),
	}
}

// New 根据配置创建客户端，BaseURL以memory://开头时使用内存实现
func New(config *Config, opts ...ClientOption) (Client, error) {
	if config != nil && strings.HasPrefix(config.BaseURL, MemoryScheme) {
		return NewMemoryClient(), nil
	}
	client, err := NewClient(config, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (m *MemoryClient) Heartbeat(ctx context.Context) (int64, error) {
	return time.Now().UnixNano(), nil
}

func (m *MemoryClient) Version(ctx context.Context) (string, error) {
	return "memory", nil
}

func (m *MemoryClient) ListCollections(ctx context.Context) ([]Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	collections := make([]Collection, 0, len(m.collections))
	for _, c := range m.collections {
		collections = append(collections, c.info)
	}
	sort.Slice(collections, func(i, j int) bool { return collections[i].Name < collections[j].Name })
	return collections, nil
}

func (m *MemoryClient) CreateCollection(ctx context.Context, name string, metadata map[string]interface{}, getOrCreate bool) (*Collection, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: collection name is required", ErrInvalidRequest)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.collections[name]; ok {
		if !getOrCreate {
			return nil, &APIError{
				StatusCode: http.StatusConflict,
				ErrorType:  "UniqueConstraintError",
				Message:    fmt.Sprintf("Collection %s already exists", name),
			}
		}
		info := existing.info
		return &info, nil
	}

	c := &memoryCollection{
		info:    Collection{ID: uuid.New().String(), Name: name, Metadata: copyMeta(metadata)},
		records: make(map[string]*memoryRecord),
	}
	m.collections[name] = c
	info := c.info
	return &info, nil
}

func (m *MemoryClient) GetCollection(ctx context.Context, name string) (*Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	info := c.info
	return &info, nil
}

func (m *MemoryClient) DeleteCollection(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[name]; !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	delete(m.collections, name)
	return nil
}

func (m *MemoryClient) Count(ctx context.Context, collectionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.byID(collectionID)
	if err != nil {
		return 0, err
	}
	return len(c.order), nil
}

func (m *MemoryClient) Add(ctx context.Context, collectionID string, req AddRequest) error {
	return m.write(collectionID, req, true, false)
}

func (m *MemoryClient) Upsert(ctx context.Context, collectionID string, req AddRequest) error {
	return m.write(collectionID, req, true, true)
}

func (m *MemoryClient) Update(ctx context.Context, collectionID string, req AddRequest) error {
	return m.write(collectionID, req, false, true)
}

// write insert控制是否写入新ID，overwrite控制是否覆盖已有ID
func (m *MemoryClient) write(collectionID string, req AddRequest, insert, overwrite bool) error {
	if req.Len() == 0 {
		return fmt.Errorf("%w: ids are required", ErrInvalidRequest)
	}
	if len(req.Documents) > 0 && len(req.Documents) != req.Len() ||
		len(req.Metadatas) > 0 && len(req.Metadatas) != req.Len() ||
		len(req.Embeddings) > 0 && len(req.Embeddings) != req.Len() {
		return fmt.Errorf("%w: documents, metadatas and embeddings must match ids length", ErrInvalidRequest)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.byID(collectionID)
	if err != nil {
		return err
	}

	for i, id := range req.IDs {
		rec, exists := c.records[id]
		switch {
		case !exists && !insert:
			continue
		case exists && !overwrite:
			continue
		case !exists:
			rec = &memoryRecord{}
			c.records[id] = rec
			c.order = append(c.order, id)
		}

		if i < len(req.Documents) {
			rec.document = req.Documents[i]
		}
		if i < len(req.Metadatas) && req.Metadatas[i] != nil {
			rec.metadata = copyMeta(req.Metadatas[i])
		}
		if i < len(req.Embeddings) {
			rec.embedding = append([]float32(nil), req.Embeddings[i]...)
		}
	}
	return nil
}

func (m *MemoryClient) Get(ctx context.Context, collectionID string, req GetRequest) (*GetResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.byID(collectionID)
	if err != nil {
		return nil, err
	}

	ids := c.filter(req.IDs, req.Where, req.WhereDocument)
	if req.Offset >= len(ids) {
		ids = nil
	} else {
		ids = ids[req.Offset:]
	}
	if req.Limit > 0 && len(ids) > req.Limit {
		ids = ids[:req.Limit]
	}

	include := includeSet(req.Include, IncludeDocuments, IncludeMetadatas)
	result := &GetResult{IDs: make([]string, 0, len(ids))}
	for _, id := range ids {
		rec := c.records[id]
		result.IDs = append(result.IDs, id)
		if include[IncludeDocuments] {
			result.Documents = append(result.Documents, rec.document)
		}
		if include[IncludeMetadatas] {
			result.Metadatas = append(result.Metadatas, copyMeta(rec.metadata))
		}
		if include[IncludeEmbeddings] {
			result.Embeddings = append(result.Embeddings, rec.embedding)
		}
	}
	return result, nil
}

func (m *MemoryClient) Delete(ctx context.Context, collectionID string, req DeleteRequest) ([]string, error) {
	if len(req.IDs) == 0 && len(req.Where) == 0 && len(req.WhereDocument) == 0 {
		return nil, fmt.Errorf("%w: ids or where filter required", ErrInvalidRequest)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.byID(collectionID)
	if err != nil {
		return nil, err
	}

	deleted := c.filter(req.IDs, req.Where, req.WhereDocument)
	removed := make(map[string]bool, len(deleted))
	for _, id := range deleted {
		removed[id] = true
		delete(c.records, id)
	}
	kept := c.order[:0]
	for _, id := range c.order {
		if !removed[id] {
			kept = append(kept, id)
		}
	}
	c.order = kept
	return deleted, nil
}

// Query 有查询向量时按余弦距离排序，否则按词重叠程度排序
func (m *MemoryClient) Query(ctx context.Context, collectionID string, req QueryRequest) (*QueryResult, error) {
	if len(req.QueryEmbeddings) == 0 && len(req.QueryTexts) == 0 {
		return nil, fmt.Errorf("%w: query_texts or query_embeddings required", ErrInvalidRequest)
	}
	nResults := req.NResults
	if nResults <= 0 {
		nResults = 10
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.byID(collectionID)
	if err != nil {
		return nil, err
	}
	candidates := c.filter(nil, req.Where, req.WhereDocument)

	queries := len(req.QueryEmbeddings)
	if queries == 0 {
		queries = len(req.QueryTexts)
	}

	include := includeSet(req.Include, IncludeDocuments, IncludeMetadatas, IncludeDistances)
	result := &QueryResult{}
	for q := 0; q < queries; q++ {
		type scored struct {
			id       string
			distance float64
		}
		hits := make([]scored, 0, len(candidates))
		for _, id := range candidates {
			rec := c.records[id]
			var d float64
			if len(req.QueryEmbeddings) > 0 {
				d = cosineDistance(req.QueryEmbeddings[q], rec.embedding)
			} else {
				d = lexicalDistance(req.QueryTexts[q], rec.document)
			}
			hits = append(hits, scored{id: id, distance: d})
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })
		if len(hits) > nResults {
			hits = hits[:nResults]
		}

		ids := make([]string, 0, len(hits))
		var docs []string
		var metas []map[string]interface{}
		var dists []float64
		for _, h := range hits {
			rec := c.records[h.id]
			ids = append(ids, h.id)
			docs = append(docs, rec.document)
			metas = append(metas, copyMeta(rec.metadata))
			dists = append(dists, h.distance)
		}
		result.IDs = append(result.IDs, ids)
		if include[IncludeDocuments] {
			result.Documents = append(result.Documents, docs)
		}
		if include[IncludeMetadatas] {
			result.Metadatas = append(result.Metadatas, metas)
		}
		if include[IncludeDistances] {
			result.Distances = append(result.Distances, dists)
		}
	}
	return result, nil
}

func (m *MemoryClient) byID(collectionID string) (*memoryCollection, error) {
	for _, c := range m.collections {
		if c.info.ID == collectionID {
			return c, nil
		}
	}
	return nil, &APIError{
		StatusCode: http.StatusNotFound,
		ErrorType:  "NotFoundError",
		Message:    fmt.Sprintf("Collection %s does not exist.", collectionID),
	}
}

// filter 按写入顺序返回满足条件的ID
func (c *memoryCollection) filter(ids []string, where, whereDocument map[string]interface{}) []string {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var out []string
	for _, id := range c.order {
		if len(wanted) > 0 && !wanted[id] {
			continue
		}
		rec := c.records[id]
		if !matchWhere(rec.metadata, where) || !matchDocument(rec.document, whereDocument) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// matchWhere 支持等值、$eq/$ne/$gt/$gte/$lt/$lte/$in/$nin 以及 $and/$or
func matchWhere(meta, where map[string]interface{}) bool {
	for key, cond := range where {
		switch key {
		case "$and", "$or":
			clauses, _ := cond.([]interface{})
			matched := false
			for _, clause := range clauses {
				sub, _ := clause.(map[string]interface{})
				ok := matchWhere(meta, sub)
				if key == "$and" && !ok {
					return false
				}
				matched = matched || ok
			}
			if key == "$or" && !matched {
				return false
			}
		default:
			value, exists := meta[key]
			ops, isOps := cond.(map[string]interface{})
			if !isOps {
				ops = map[string]interface{}{"$eq": cond}
			}
			for op, operand := range ops {
				if !compare(op, value, exists, operand) {
					return false
				}
			}
		}
	}
	return true
}

func compare(op string, value interface{}, exists bool, operand interface{}) bool {
	switch op {
	case "$eq":
		return exists && equalValues(value, operand)
	case "$ne":
		return !exists || !equalValues(value, operand)
	case "$in", "$nin":
		list, _ := operand.([]interface{})
		found := false
		for _, item := range list {
			if exists && equalValues(value, item) {
				found = true
				break
			}
		}
		return found == (op == "$in")
	case "$gt", "$gte", "$lt", "$lte":
		a, okA := toFloat(value)
		b, okB := toFloat(operand)
		if !exists || !okA || !okB {
			return false
		}
		switch op {
		case "$gt":
			return a > b
		case "$gte":
			return a >= b
		case "$lt":
			return a < b
		default:
			return a <= b
		}
	}
	return false
}

// matchDocument 支持 $contains/$not_contains
func matchDocument(doc string, where map[string]interface{}) bool {
	for op, operand := range where {
		needle := fmt.Sprint(operand)
		switch op {
		case "$contains":
			if !strings.Contains(doc, needle) {
				return false
			}
		case "$not_contains":
			if strings.Contains(doc, needle) {
				return false
			}
		}
	}
	return true
}

func equalValues(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// cosineDistance 余弦距离，维度不一致或零向量时返回最大距离
func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if similarity > 1 {
		similarity = 1
	}
	return 1 - similarity
}

// lexicalDistance 查询词在文档中出现的比例越高距离越小
func lexicalDistance(query, doc string) float64 {
	terms := tokenize(query)
	if len(terms) == 0 {
		return 1
	}
	docTerms := make(map[string]bool)
	for _, t := range tokenize(doc) {
		docTerms[t] = true
	}
	hit := 0
	for _, t := range terms {
		if docTerms[t] {
			hit++
		}
	}
	return 1 - float64(hit)/float64(len(terms))
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func includeSet(include []Include, defaults ...Include) map[Include]bool {
	if len(include) == 0 {
		include = defaults
	}
	set := make(map[Include]bool, len(include))
	for _, i := range include {
		set[i] = true
	}
	return set
}

func copyMeta(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
